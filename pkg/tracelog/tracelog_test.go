package tracelog

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func newTestLog(t *testing.T, conf *Config) (*Log, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "trace.log")
	conf.Path = path
	l, err := New(conf)
	if err != nil {
		t.Fatal(err)
	}
	return l, path
}

func readLines(t *testing.T, path string) []string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	return strings.Split(strings.TrimRight(string(data), "\n"), "\n")
}

func TestLineFormats(t *testing.T) {
	l, path := newTestLog(t, &Config{})

	l.Call(0x1000, "kernel32.dll", "Sleep")
	l.Call(0x1010, "ntdll.dll", "")
	l.ShellcodeCall(0x900000, 0x40, "kernel32.dll", "VirtualAlloc")
	l.ShellcodeEntry(0x1020, 0x900000, 0x900123)
	l.SectionChange(0x2000, ".data")
	l.SectionCall(0x1fff, ".text", ".data")
	l.Rdtsc(0, 0x1234)
	l.Rdtsc(0x900000, 0x40)
	l.Cpuid(0, 0x1234, 1)
	l.Cpuid(0x900000, 0x40, 0x40000000)
	l.Line("\tArg[0] = 0")
	if err := l.Close(); err != nil {
		t.Fatal(err)
	}

	want := []string{
		"1000;called: kernel32.dll.Sleep",
		"1010;called: ntdll.dll.?",
		"[900000+40];called: kernel32.dll.VirtualAlloc",
		"1020;shellcode: page=900000,addr=900123",
		"2000;section: [.data]",
		"1fff;called section: [.text]->[.data]",
		"1234;rdtsc",
		"[900000+40];rdtsc",
		"1234;cpuid: eax=1",
		"[900000+40];cpuid: eax=40000000",
		"\tArg[0] = 0",
	}
	got := readLines(t, path)
	if len(got) != len(want) {
		t.Fatalf("got %d lines, want %d:\n%s", len(got), len(want), strings.Join(got, "\n"))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("line %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestShortNames(t *testing.T) {
	l, path := newTestLog(t, &Config{ShortNames: true})

	l.Call(0x1000, `C:\Windows\System32\kernel32.dll`, "Sleep")
	if err := l.Close(); err != nil {
		t.Fatal(err)
	}

	got := readLines(t, path)
	if got[0] != "1000;called: kernel32.dll.Sleep" {
		t.Errorf("line = %q", got[0])
	}
}

func TestSequenceNumbers(t *testing.T) {
	l, _ := newTestLog(t, &Config{})
	defer l.Close()

	var seqs []uint64
	l.AddRecorder(recorderFunc(func(e Event) error {
		seqs = append(seqs, e.Seq)
		return nil
	}))

	l.Call(0x1000, "a.dll", "f")
	l.SectionChange(0x2000, ".data")
	l.Line("x")

	if len(seqs) != 3 || seqs[0] != 1 || seqs[1] != 2 || seqs[2] != 3 {
		t.Errorf("seqs = %v, want [1 2 3]", seqs)
	}
}

func TestFailingRecorderDetaches(t *testing.T) {
	l, path := newTestLog(t, &Config{})

	calls := 0
	l.AddRecorder(recorderFunc(func(Event) error {
		calls++
		return errors.New("db gone")
	}))
	good := 0
	l.AddRecorder(recorderFunc(func(Event) error {
		good++
		return nil
	}))

	l.Call(0x1000, "a.dll", "f")
	l.Call(0x1010, "a.dll", "g")
	if err := l.Close(); err != nil {
		t.Fatal(err)
	}

	if calls != 1 {
		t.Errorf("failing recorder called %d times, want 1", calls)
	}
	if good != 2 {
		t.Errorf("healthy recorder called %d times, want 2", good)
	}
	// the text trace is unaffected
	if got := readLines(t, path); len(got) != 2 {
		t.Errorf("got %d trace lines, want 2", len(got))
	}
}

type recorderFunc func(Event) error

func (f recorderFunc) Record(e Event) error { return f(e) }
