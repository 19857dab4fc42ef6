package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/apex/log"
	clihander "github.com/apex/log/handlers/cli"
	"github.com/apex/log/handlers/memory"
	"github.com/spf13/cobra"
)

func TestNewSessionWatchReport(t *testing.T) {
	h := memory.New()
	log.SetHandler(h)
	defer log.SetHandler(clihander.Default)

	dir := t.TempDir()
	wl := filepath.Join(dir, "watch.txt")
	if err := os.WriteFile(wl, []byte("kernel32.dll;Sleep;1\nkernel32.dll;Sleep;3\n"), 0644); err != nil {
		t.Fatal(err)
	}

	c := &cobra.Command{Use: "test"}
	addTraceFlags(c)
	c.Flags().Set("watchlist", wl)
	c.Flags().Set("output", filepath.Join(dir, "trace.log"))

	s, err := newSession(c, "sample.exe", "sample.exe")
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	// every parsed line counts, merges included
	found := false
	for _, e := range h.Entries {
		if e.Message == "Watch 2 functions" {
			found = true
		}
	}
	if !found {
		var msgs []string
		for _, e := range h.Entries {
			msgs = append(msgs, e.Message)
		}
		t.Errorf("load report missing from log entries %q", msgs)
	}
}
