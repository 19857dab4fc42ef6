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
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/sectrace/sectrace/pkg/watchlist"
)

func init() {
	rootCmd.AddCommand(watchlistCmd)

	watchlistCmd.Flags().String("delimiter", "", "Field delimiter (default \";\")")
	viper.BindPFlag("watchlist.delimiter", watchlistCmd.Flags().Lookup("delimiter"))
}

// watchlistCmd represents the watchlist command
var watchlistCmd = &cobra.Command{
	Use:           "watchlist <file>",
	Aliases:       []string{"wl"},
	Short:         "Parse and print a watch list file",
	Args:          cobra.ExactArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		if viper.GetBool("verbose") {
			log.SetLevel(log.DebugLevel)
		}
		color.NoColor = !viper.GetBool("color")

		wl := watchlist.NewList(viper.GetString("watchlist.delimiter"))
		n, err := wl.LoadFile(args[0])
		if err != nil {
			return err
		}
		for _, e := range wl.All() {
			fmt.Println(e)
		}
		log.Infof("Watch %s functions", humanize.Comma(int64(n)))
		return nil
	},
}
