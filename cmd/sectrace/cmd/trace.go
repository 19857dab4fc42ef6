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
	"os"
	"time"

	"github.com/apex/log"
	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/sectrace/sectrace/internal/config"
	"github.com/sectrace/sectrace/internal/db"
	"github.com/sectrace/sectrace/internal/model"
	"github.com/sectrace/sectrace/pkg/tracelog"
	"github.com/sectrace/sectrace/pkg/tracer"
	"github.com/sectrace/sectrace/pkg/watchlist"
)

// addTraceFlags registers the flags every tracing command shares.
func addTraceFlags(c *cobra.Command) {
	c.Flags().StringP("output", "o", "", "Trace log output path (default trace.log)")
	c.Flags().StringP("module", "m", "", "Name of the module to trace (default: target basename)")
	c.Flags().StringP("watchlist", "b", "", "Watch list file of functions to snapshot arguments for")
	c.Flags().BoolP("short", "s", false, "Render foreign modules with basenames only")
	c.Flags().BoolP("rdtsc", "d", false, "Log RDTSC events (spoofing is always on)")
	c.Flags().IntP("follow", "f", 0, "Shellcode follow level: 0=none 1=first 2=recursive")
	c.Flags().String("db", "", "Also record events into a sqlite database at this path")
}

// bindTraceFlags points the shared config keys at this command's flags; done
// at run time so sibling commands don't fight over the same keys.
func bindTraceFlags(c *cobra.Command) {
	viper.BindPFlag("trace.output", c.Flags().Lookup("output"))
	viper.BindPFlag("trace.module", c.Flags().Lookup("module"))
	viper.BindPFlag("trace.watchlist", c.Flags().Lookup("watchlist"))
	viper.BindPFlag("trace.short", c.Flags().Lookup("short"))
	viper.BindPFlag("trace.rdtsc", c.Flags().Lookup("rdtsc"))
	viper.BindPFlag("trace.follow", c.Flags().Lookup("follow"))
	viper.BindPFlag("trace.db", c.Flags().Lookup("db"))
}

// session bundles everything a tracing command needs for one run.
type session struct {
	Conf   *config.Config
	Log    *tracelog.Log
	Tracer *tracer.Tracer
	Watch  *watchlist.List

	database db.Database
}

// newSession builds the engine stack for target from the bound config.
// defaultModule fills trace.module when neither flag nor config set one; an
// empty default means the first loaded module becomes the traced one.
func newSession(cmd *cobra.Command, target, defaultModule string) (*session, error) {
	bindTraceFlags(cmd)

	conf, err := config.LoadConfig()
	if err != nil {
		return nil, err
	}
	if conf.Trace.Module == "" {
		conf.Trace.Module = defaultModule
	}

	tlog, err := tracelog.New(&tracelog.Config{
		Path:       conf.Trace.Output,
		ShortNames: conf.Trace.Short,
	})
	if err != nil {
		return nil, err
	}

	s := &session{
		Conf: conf,
		Log:  tlog,
		Tracer: tracer.NewTracer(&tracer.Config{
			Module:   conf.Trace.Module,
			Follow:   tracer.FollowModeFromInt(conf.Trace.Follow),
			LogRdtsc: conf.Trace.Rdtsc,
		}, tlog, nil),
	}

	if conf.Trace.Watchlist != "" {
		s.Watch = watchlist.NewList("")
		n, err := s.Watch.LoadFile(conf.Trace.Watchlist)
		if err != nil {
			tlog.Close()
			return nil, err
		}
		log.Infof("Watch %s functions", humanize.Comma(int64(n)))
	}

	if conf.Trace.DB != "" {
		s.database, err = db.NewSqlite(conf.Trace.DB, 100)
		if err != nil {
			tlog.Close()
			return nil, err
		}
		if err := s.database.Connect(); err != nil {
			tlog.Close()
			return nil, fmt.Errorf("failed to connect event database: %v", err)
		}
		rec, err := db.NewEventRecorder(s.database, &model.Run{
			Target:     target,
			TracedName: conf.Trace.Module,
			StartedAt:  time.Now(),
		})
		if err != nil {
			tlog.Close()
			return nil, fmt.Errorf("failed to create run record: %v", err)
		}
		tlog.AddRecorder(rec)
	}

	name := conf.Trace.Module
	if name == "" {
		name = "first loaded module"
	}
	color.New(color.Bold).Fprintf(os.Stderr, "=== sectrace: tracing %s (module %s) -> %s\n",
		target, name, conf.Trace.Output)

	return s, nil
}

// Close flushes the trace and releases the database.
func (s *session) Close() {
	if err := s.Log.Close(); err != nil {
		log.Errorf("failed to close trace log: %v", err)
	}
	if s.database != nil {
		if err := s.database.Close(); err != nil {
			log.Errorf("failed to close event database: %v", err)
		}
	}
}
