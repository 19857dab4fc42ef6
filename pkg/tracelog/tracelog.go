// Package tracelog is the append-only sink for trace events. Producers call
// one method per event kind; each call renders a text line into the log file
// and hands the structured event to any attached recorders.
package tracelog

import (
	"bufio"
	"fmt"
	"os"

	"github.com/apex/log"

	"github.com/sectrace/sectrace/internal/utils"
)

// Kind tags the event kinds a trace can contain.
type Kind string

const (
	KindCall           Kind = "call"
	KindShellcodeCall  Kind = "shellcode-call"
	KindShellcodeEntry Kind = "shellcode-entry"
	KindSectionChange  Kind = "section-change"
	KindSectionCall    Kind = "section-call"
	KindRdtsc          Kind = "rdtsc"
	KindCpuid          Kind = "cpuid"
	KindLine           Kind = "line"
)

// Event is one record of the trace, immutable once emitted. RVA is the
// source RVA for traced-module contexts, or the offset within Page when the
// event originated from tracked shellcode.
type Event struct {
	Seq         uint64 `json:"seq"`
	Kind        Kind   `json:"kind"`
	RVA         uint64 `json:"rva"`
	Page        uint64 `json:"page,omitempty"`
	Addr        uint64 `json:"addr,omitempty"`
	Module      string `json:"module,omitempty"`
	Func        string `json:"func,omitempty"`
	Section     string `json:"section,omitempty"`
	PrevSection string `json:"prev_section,omitempty"`
	Leaf        uint32 `json:"leaf,omitempty"`
	Text        string `json:"text"`
}

// Recorder receives every event after its text line has been written. A
// recorder that returns an error is detached; the text trace keeps going.
type Recorder interface {
	Record(Event) error
}

// Config configures a trace log sink.
type Config struct {
	Path       string
	ShortNames bool
}

// Log writes the text trace and fans events out to recorders. It does no
// locking of its own; the analysis path serializes all calls.
type Log struct {
	conf *Config
	f    *os.File
	w    *bufio.Writer
	recs []Recorder
	seq  uint64
}

// New creates a trace log writing to conf.Path, truncating any previous run.
func New(conf *Config) (*Log, error) {
	f, err := os.Create(conf.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to create trace log %s: %v", conf.Path, err)
	}
	return &Log{
		conf: conf,
		f:    f,
		w:    bufio.NewWriter(f),
	}, nil
}

// AddRecorder attaches a structured event sink.
func (l *Log) AddRecorder(r Recorder) {
	l.recs = append(l.recs, r)
}

func (l *Log) moduleName(name string) string {
	if l.conf.ShortNames {
		return utils.BaseName(name)
	}
	return name
}

// emit writes the rendered line and fans the event out. A failed write ends
// the run: once lines go missing the trace can no longer be trusted.
func (l *Log) emit(e Event, line string) {
	l.seq++
	e.Seq = l.seq
	e.Text = line
	if _, err := fmt.Fprintln(l.w, line); err != nil {
		log.Fatalf("trace log write failed: %v", err)
	}
	for i := 0; i < len(l.recs); i++ {
		if err := l.recs[i].Record(e); err != nil {
			log.WithError(err).Warn("detaching trace recorder")
			l.recs = append(l.recs[:i], l.recs[i+1:]...)
			i--
		}
	}
}

// Call records a call out of the traced module into a foreign module.
func (l *Log) Call(rva uint64, module, fn string) {
	if fn == "" {
		fn = "?"
	}
	module = l.moduleName(module)
	l.emit(Event{Kind: KindCall, RVA: rva, Module: module, Func: fn},
		fmt.Sprintf("%x;called: %s.%s", rva, module, fn))
}

// ShellcodeCall records a call from tracked shellcode into a module.
func (l *Log) ShellcodeCall(page, off uint64, module, fn string) {
	if fn == "" {
		fn = "?"
	}
	module = l.moduleName(module)
	l.emit(Event{Kind: KindShellcodeCall, RVA: off, Page: page, Module: module, Func: fn},
		fmt.Sprintf("[%x+%x];called: %s.%s", page, off, module, fn))
}

// ShellcodeEntry records the traced module jumping into unmapped memory.
func (l *Log) ShellcodeEntry(rva, page, addr uint64) {
	l.emit(Event{Kind: KindShellcodeEntry, RVA: rva, Page: page, Addr: addr},
		fmt.Sprintf("%x;shellcode: page=%x,addr=%x", rva, page, addr))
}

// SectionChange records execution landing in a new section of the traced
// module.
func (l *Log) SectionChange(rva uint64, section string) {
	l.emit(Event{Kind: KindSectionChange, RVA: rva, Section: section},
		fmt.Sprintf("%x;section: [%s]", rva, section))
}

// SectionCall records one section of the traced module transferring directly
// into another, the principal OEP signal.
func (l *Log) SectionCall(rva uint64, prev, curr string) {
	l.emit(Event{Kind: KindSectionCall, RVA: rva, Section: curr, PrevSection: prev},
		fmt.Sprintf("%x;called section: [%s]->[%s]", rva, prev, curr))
}

// Rdtsc records an RDTSC hit. Page 0 means the traced module itself; any
// other page is the tracked shellcode region the hit came from.
func (l *Log) Rdtsc(page, off uint64) {
	if page == 0 {
		l.emit(Event{Kind: KindRdtsc, RVA: off}, fmt.Sprintf("%x;rdtsc", off))
		return
	}
	l.emit(Event{Kind: KindRdtsc, RVA: off, Page: page},
		fmt.Sprintf("[%x+%x];rdtsc", page, off))
}

// Cpuid records a CPUID hit with its EAX leaf, same context rule as Rdtsc.
func (l *Log) Cpuid(page, off uint64, leaf uint32) {
	if page == 0 {
		l.emit(Event{Kind: KindCpuid, RVA: off, Leaf: leaf},
			fmt.Sprintf("%x;cpuid: eax=%x", off, leaf))
		return
	}
	l.emit(Event{Kind: KindCpuid, RVA: off, Page: page, Leaf: leaf},
		fmt.Sprintf("[%x+%x];cpuid: eax=%x", page, off, leaf))
}

// Line records a free-form line, used for watched-call argument dumps.
func (l *Log) Line(text string) {
	l.emit(Event{Kind: KindLine}, text)
}

// Flush forces buffered lines to the underlying file.
func (l *Log) Flush() error {
	return l.w.Flush()
}

// Close flushes and closes the log file.
func (l *Log) Close() error {
	if err := l.w.Flush(); err != nil {
		return err
	}
	return l.f.Close()
}
