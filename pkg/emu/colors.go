//go:build unicorn

package emu

import "github.com/fatih/color"

// hook colors
var colorHook = color.New(color.FgHiBlue, color.Faint).SprintfFunc()
var colorDetails = color.New(color.FgWhite, color.Faint, color.Italic).SprintfFunc()
