//go:build unicorn

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
	"context"

	"github.com/apex/log"
	"github.com/caarlos0/ctrlc"
	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/sectrace/sectrace/pkg/emu"
	"github.com/sectrace/sectrace/pkg/image"
)

func init() {
	rootCmd.AddCommand(emuCmd)
	addTraceFlags(emuCmd)

	emuCmd.Flags().Uint64P("count", "c", 0, "Stop after this many instructions (0 = no limit)")
	emuCmd.Flags().String("state", "", "YAML initial CPU/stack state file")
	viper.BindPFlag("emu.count", emuCmd.Flags().Lookup("count"))
	viper.BindPFlag("emu.state", emuCmd.Flags().Lookup("state"))
}

// emuCmd represents the emu command
var emuCmd = &cobra.Command{
	Use:           "emu <binary>",
	Short:         "Emulate a binary under unicorn and trace it",
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
			return err
		}

		s, err := newSession(cmd, args[0], img.Module.Name)
		if err != nil {
			return err
		}
		defer s.Close()

		em, err := emu.NewEmulation(img, s.Tracer, &emu.Config{
			Verbose:         viper.GetBool("verbose"),
			MaxInstructions: viper.GetUint64("emu.count"),
		})
		if err != nil {
			return err
		}
		defer em.Close()

		if statePath := viper.GetString("emu.state"); statePath != "" {
			state, err := emu.ParseState(statePath)
			if err != nil {
				return err
			}
			if err := em.SetState(state); err != nil {
				return err
			}
		}

		if err := ctrlc.Default.Run(context.Background(), func() error {
			return em.Run()
		}); err != nil {
			if _, ok := err.(ctrlc.ErrorCtrlC); ok {
				log.Warn("emulation interrupted")
			} else {
				log.WithError(err).Warn("emulation ended")
			}
		}

		log.Infof("executed %s instructions", humanize.Comma(int64(em.Executed())))
		return nil
	},
}
