/*
Copyright © 2026 sectrace authors

Permission is hereby granted, free of charge, to any person obtaining a copy
of this software and associated documentation files (the "Software"), to deal
in the Software without restriction, including without limitation the rights
to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
copies of the Software, and to permit persons to whom the Software is
furnished to do so, subject to the following conditions:

The above copyright notice and this permission notice shall be included in
all copies or substantial portions of the Software.

THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
THE SOFTWARE.
*/
package cmd

import (
	"fmt"

	"github.com/apex/log"
	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/sectrace/sectrace/pkg/image"
)

func init() {
	rootCmd.AddCommand(infoCmd)

	infoCmd.Flags().BoolP("exports", "e", false, "Also list exports")
	viper.BindPFlag("info.exports", infoCmd.Flags().Lookup("exports"))
}

// infoCmd represents the info command
var infoCmd = &cobra.Command{
	Use:           "info <binary>",
	Short:         "Print the module descriptor of a binary (sections, exports)",
	Args:          cobra.ExactArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		if viper.GetBool("verbose") {
			log.SetLevel(log.DebugLevel)
		}
		color.NoColor = !viper.GetBool("color")

		img, err := image.Open(args[0])
		if err != nil {
			return errors.Wrapf(err, "failed to load image %s", args[0])
		}

		bold := color.New(color.Bold).SprintfFunc()
		fmt.Printf("%s base=%#x size=%s entry=%#x\n",
			bold("%s", img.Module.Name), img.Module.Base,
			humanize.Bytes(img.Module.Size), img.Entry)
		fmt.Println(bold("Sections:"))
		for _, sec := range img.Module.Sections {
			fmt.Printf("  %-16s rva=%#-10x size=%#x\n", sec.Name, sec.RVA, sec.Size)
		}
		if viper.GetBool("info.exports") {
			fmt.Println(bold("Exports:"))
			for _, exp := range img.Module.Exports {
				fmt.Printf("  %#-10x %s\n", exp.RVA, exp.Name)
			}
		}
		return nil
	},
}
