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
	"github.com/fatih/color"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/sectrace/sectrace/internal/db"
)

func init() {
	rootCmd.AddCommand(eventsCmd)

	eventsCmd.Flags().UintP("run", "r", 0, "Run ID to query (default: latest)")
	eventsCmd.Flags().StringP("kind", "k", "", "Only print events of this kind")
	viper.BindPFlag("events.run", eventsCmd.Flags().Lookup("run"))
	viper.BindPFlag("events.kind", eventsCmd.Flags().Lookup("kind"))
}

// eventsCmd represents the events command
var eventsCmd = &cobra.Command{
	Use:           "events <run.db>",
	Short:         "Query a recorded event database",
	Args:          cobra.ExactArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		if viper.GetBool("verbose") {
			log.SetLevel(log.DebugLevel)
		}
		color.NoColor = !viper.GetBool("color")

		database, err := db.NewSqlite(args[0], 100)
		if err != nil {
			return err
		}
		if err := database.Connect(); err != nil {
			return errors.Wrapf(err, "failed to open event database %s", args[0])
		}
		defer database.Close()

		runID := viper.GetUint("events.run")
		if runID == 0 {
			runs, err := database.Runs()
			if err != nil {
				return err
			}
			if len(runs) == 0 {
				return fmt.Errorf("event database %s has no runs", args[0])
			}
			runID = runs[0].ID
			log.Debugf("defaulting to latest run %d (%s)", runID, runs[0].Target)
		}

		events, err := database.Events(runID, viper.GetString("events.kind"))
		if err != nil {
			return errors.Wrapf(err, "failed to query run %d", runID)
		}
		for _, e := range events {
			fmt.Println(e.Text)
		}
		log.Infof("%d events", len(events))
		return nil
	},
}
