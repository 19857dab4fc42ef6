// Package watchlist parses the list of API functions whose call arguments
// should be captured. One entry per line, `dll;func;paramCount`; malformed
// lines are skipped, duplicate entries merge to the larger argument count.
package watchlist

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/apex/log"
	"github.com/spf13/cast"
)

// DefaultDelimiter separates the fields of a watch list line.
const DefaultDelimiter = ";"

// minFields a valid line must have; anything past the third is ignored.
const minFields = 3

// Entry is one watched function.
type Entry struct {
	DLL        string `json:"dll"`
	Func       string `json:"func"`
	ParamCount int    `json:"param_count"`
}

func (e Entry) String() string {
	return fmt.Sprintf("%s!%s [%d]", e.DLL, e.Func, e.ParamCount)
}

type key struct {
	dll string
	fn  string
}

// List is a collection of watched functions keyed case-insensitively by
// (dll, func).
type List struct {
	delim   string
	entries map[key]*Entry
	order   []*Entry
}

// NewList creates an empty watch list using delim, or the default delimiter
// when delim is empty.
func NewList(delim string) *List {
	if delim == "" {
		delim = DefaultDelimiter
	}
	return &List{
		delim:   delim,
		entries: make(map[key]*Entry),
	}
}

// Add merges one entry into the list. An existing (dll, func) entry keeps
// the larger of the two argument counts; counts never shrink.
func (l *List) Add(dll, fn string, paramCount int) {
	if dll == "" || fn == "" || paramCount < 0 {
		return
	}
	k := key{dll: strings.ToLower(dll), fn: strings.ToLower(fn)}
	if e, ok := l.entries[k]; ok {
		if paramCount > e.ParamCount {
			e.ParamCount = paramCount
		}
		return
	}
	e := &Entry{DLL: dll, Func: fn, ParamCount: paramCount}
	l.entries[k] = e
	l.order = append(l.order, e)
}

// Len returns how many distinct functions are watched.
func (l *List) Len() int {
	return len(l.order)
}

// All returns the entries in the order they were first added.
func (l *List) All() []Entry {
	out := make([]Entry, len(l.order))
	for i, e := range l.order {
		out[i] = *e
	}
	return out
}

// Lookup returns the entries watching one module, matched by name
// case-insensitively. Used at image load to attach hooks.
func (l *List) Lookup(dll string) []Entry {
	var out []Entry
	for _, e := range l.order {
		if strings.EqualFold(e.DLL, dll) {
			out = append(out, *e)
		}
	}
	return out
}

// Get returns the entry for (dll, func), if watched.
func (l *List) Get(dll, fn string) (Entry, bool) {
	e, ok := l.entries[key{dll: strings.ToLower(dll), fn: strings.ToLower(fn)}]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// LoadFile reads a watch list file into l and returns how many lines were
// merged in. Lines with fewer than three fields or an unparsable count are
// skipped individually; loading always continues.
func (l *List) LoadFile(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("failed to open watch list %s: %v", path, err)
	}
	defer f.Close()

	loaded := 0
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Split(line, l.delim)
		if len(fields) < minFields {
			log.Debugf("skipping watch list line %q: not enough fields", line)
			continue
		}
		count, err := cast.ToIntE(strings.TrimSpace(fields[2]))
		if err != nil || count < 0 {
			log.Debugf("skipping watch list line %q: bad param count", line)
			continue
		}
		l.Add(strings.TrimSpace(fields[0]), strings.TrimSpace(fields[1]), count)
		loaded++
	}
	if err := scanner.Err(); err != nil {
		return loaded, fmt.Errorf("failed to read watch list %s: %v", path, err)
	}
	return loaded, nil
}
