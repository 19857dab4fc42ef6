// Package replay drives the trace engine from a recorded run instead of a
// live target. Recordings are JSON Lines, one record per observed host
// callback, which makes it both the reference backend and the integration
// test vehicle.
package replay

import (
	"bufio"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/apex/log"
	"github.com/fatih/color"

	"github.com/sectrace/sectrace/internal/utils"
	"github.com/sectrace/sectrace/pkg/tracer"
	"github.com/sectrace/sectrace/pkg/watchlist"
)

// record is one line of a recorded run.
type record struct {
	Type   string            `json:"type"`
	Module *tracer.Module    `json:"module,omitempty"`
	Base   uint64            `json:"base,omitempty"`
	From   uint64            `json:"from,omitempty"`
	To     uint64            `json:"to,omitempty"`
	IP     uint64            `json:"ip,omitempty"`
	EAX    uint32            `json:"eax,omitempty"`
	EDX    uint32            `json:"edx,omitempty"`
	Leaf   uint32            `json:"leaf,omitempty"`
	DLL    string            `json:"dll,omitempty"`
	Func   string            `json:"func,omitempty"`
	Args   []uint64          `json:"args,omitempty"`
	Mem    map[string]string `json:"mem,omitempty"`
}

// Stats summarizes a replayed run.
type Stats struct {
	Records   int
	Skipped   int
	Modules   int
	Transfers int
	Calls     int
}

// Replay feeds recorded host callbacks into a tracer.
type Replay struct {
	t    *tracer.Tracer
	wl   *watchlist.List
	mem  *Snippets
	args sliceArgs
}

// New creates a replay backend for t. wl may be nil when no functions are
// watched.
func New(t *tracer.Tracer, wl *watchlist.List) *Replay {
	r := &Replay{
		t:   t,
		wl:  wl,
		mem: NewSnippets(),
	}
	t.SetMemory(r.mem)
	return r
}

// Run replays the recording at path. Malformed lines are skipped with a
// diagnostic; only an unreadable file fails the run.
func (r *Replay) Run(path string) (*Stats, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open recording %s: %v", path, err)
	}
	defer f.Close()

	stats := &Stats{}
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 1024*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		stats.Records++
		var rec record
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			log.Debugf("skipping malformed record %d: %v", stats.Records, err)
			stats.Skipped++
			continue
		}
		r.stash(rec.Mem)
		switch rec.Type {
		case "module":
			if rec.Module == nil {
				stats.Skipped++
				continue
			}
			r.t.AddModule(*rec.Module)
			r.echoWatched(rec.Module.Name)
			stats.Modules++
		case "unload":
			r.t.RemoveModule(rec.Base)
		case "transfer":
			r.t.SaveTransitions(rec.From, rec.To)
			stats.Transfers++
		case "rdtsc":
			r.t.RdtscExecuted(rec.IP, rec.EAX, rec.EDX)
		case "cpuid":
			r.t.CpuidExecuted(rec.IP, rec.Leaf)
		case "call":
			r.call(rec)
			stats.Calls++
		default:
			log.Debugf("skipping record %d: unknown type %q", stats.Records, rec.Type)
			stats.Skipped++
		}
	}
	if err := scanner.Err(); err != nil {
		return stats, fmt.Errorf("failed to read recording %s: %v", path, err)
	}
	if stats.Skipped > 0 {
		log.Warnf("skipped %d unusable records", stats.Skipped)
	}
	return stats, nil
}

// echoWatched mirrors what a live backend prints when it attaches argument
// hooks to a freshly loaded module.
func (r *Replay) echoWatched(module string) {
	if r.wl == nil {
		return
	}
	for _, e := range r.wl.Lookup(utils.BaseName(module)) {
		color.New(color.FgHiBlue).Printf("Watch %s: %s [%d]\n", utils.BaseName(module), e.Func, e.ParamCount)
	}
}

func (r *Replay) call(rec record) {
	if r.wl == nil {
		return
	}
	e, ok := r.wl.Get(rec.DLL, rec.Func)
	if !ok {
		return
	}
	r.t.WatchHit(rec.IP, fmt.Sprintf("%s.%s", rec.DLL, rec.Func), e.ParamCount, sliceArgs(rec.Args))
}

// stash folds base64 memory snippets into the replayed address space. Keys
// are hex addresses.
func (r *Replay) stash(mem map[string]string) {
	for k, v := range mem {
		addr, err := strconv.ParseUint(strings.TrimPrefix(k, "0x"), 16, 64)
		if err != nil {
			log.Debugf("skipping memory snippet with bad address %q", k)
			continue
		}
		data, err := base64.StdEncoding.DecodeString(v)
		if err != nil {
			log.Debugf("skipping memory snippet at %q: %v", k, err)
			continue
		}
		r.mem.Put(addr, data)
	}
}

// sliceArgs adapts a recorded argument vector to the lazy ArgSource shape.
type sliceArgs []uint64

func (s sliceArgs) Arg(i int) uint64 {
	if i < 0 || i >= len(s) {
		return 0
	}
	return s[i]
}
