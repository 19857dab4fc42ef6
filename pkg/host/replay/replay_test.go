package replay

import (
	"encoding/base64"
	"os"
	"path/filepath"
	"testing"

	"github.com/sectrace/sectrace/pkg/tracelog"
	"github.com/sectrace/sectrace/pkg/tracer"
	"github.com/sectrace/sectrace/pkg/watchlist"
)

type capture struct {
	events []tracelog.Event
}

func (c *capture) Record(e tracelog.Event) error {
	c.events = append(c.events, e)
	return nil
}

func (c *capture) texts() []string {
	out := make([]string, len(c.events))
	for i, e := range c.events {
		out[i] = e.Text
	}
	return out
}

func writeRecording(t *testing.T, lines ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "run.jsonl")
	var data []byte
	for _, l := range lines {
		data = append(data, l...)
		data = append(data, '\n')
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func newReplay(t *testing.T, wl *watchlist.List) (*Replay, *capture) {
	t.Helper()
	tlog, err := tracelog.New(&tracelog.Config{Path: filepath.Join(t.TempDir(), "trace.log")})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { tlog.Close() })
	cap := &capture{}
	tlog.AddRecorder(cap)
	tr := tracer.NewTracer(&tracer.Config{Module: "sample.exe", Follow: tracer.FollowRecursive}, tlog, nil)
	return New(tr, wl), cap
}

func TestRunEndToEnd(t *testing.T) {
	wl := watchlist.NewList("")
	wl.Add("kernel32.dll", "CreateFileA", 2)

	nameB64 := base64.StdEncoding.EncodeToString(append([]byte("c:\\evil.bin"), 0))
	path := writeRecording(t,
		`{"type":"module","module":{"name":"sample.exe","base":4194304,"size":65536,"sections":[{"name":".text","rva":4096,"size":4096},{"name":".data","rva":8192,"size":4096}]}}`,
		`{"type":"module","module":{"name":"kernel32.dll","base":1879048192,"size":131072,"exports":[{"name":"CreateFileA","rva":4096}]}}`,
		// 0x401000 -> kernel32!CreateFileA
		`{"type":"transfer","from":4198400,"to":1879052288}`,
		// the watched call, return address in the traced module
		`{"type":"call","dll":"kernel32.dll","func":"CreateFileA","ip":4198405,"args":[16781312,3],"mem":{"1001000":"`+nameB64+`"}}`,
		// 0x401010 -> shellcode at 0x900123
		`{"type":"transfer","from":4198416,"to":9437475}`,
		`not json at all`,
		`{"type":"bogus"}`,
	)

	r, cap := newReplay(t, wl)
	stats, err := r.Run(path)
	if err != nil {
		t.Fatal(err)
	}

	if stats.Records != 7 || stats.Skipped != 2 || stats.Modules != 2 || stats.Transfers != 2 || stats.Calls != 1 {
		t.Errorf("stats = %+v", *stats)
	}

	want := []string{
		"1000;called: kernel32.dll.CreateFileA",
		"\tArg[0] = \"c:\\\\evil.bin\"",
		"\tArg[1] = 3",
		"1010;shellcode: page=900000,addr=900123",
	}
	got := cap.texts()
	if len(got) != len(want) {
		t.Fatalf("got %d events, want %d:\n%v", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("event %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestRunUnwatchedCallsDropped(t *testing.T) {
	path := writeRecording(t,
		`{"type":"module","module":{"name":"sample.exe","base":4194304,"size":65536}}`,
		`{"type":"call","dll":"kernel32.dll","func":"Sleep","ip":4198405,"args":[100]}`,
	)

	r, cap := newReplay(t, nil)
	stats, err := r.Run(path)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Calls != 1 {
		t.Errorf("Calls = %d, want 1", stats.Calls)
	}
	if len(cap.events) != 0 {
		t.Errorf("unwatched call produced %d events", len(cap.events))
	}
}

func TestRunUnload(t *testing.T) {
	path := writeRecording(t,
		`{"type":"module","module":{"name":"sample.exe","base":4194304,"size":65536}}`,
		`{"type":"module","module":{"name":"kernel32.dll","base":1879048192,"size":131072}}`,
		`{"type":"unload","base":1879048192}`,
		// after the unload kernel32's range is shellcode, not a call target
		`{"type":"transfer","from":4198400,"to":1879052288}`,
	)

	r, cap := newReplay(t, nil)
	if _, err := r.Run(path); err != nil {
		t.Fatal(err)
	}
	if len(cap.events) != 1 || cap.events[0].Kind != tracelog.KindShellcodeEntry {
		t.Errorf("events = %+v, want one shellcode entry", cap.events)
	}
}

func TestRunMissingFile(t *testing.T) {
	r, _ := newReplay(t, nil)
	if _, err := r.Run(filepath.Join(t.TempDir(), "nope.jsonl")); err == nil {
		t.Error("expected error for missing recording")
	}
}

func TestSnippets(t *testing.T) {
	s := NewSnippets()
	s.Put(0x1000, []byte("hello"))

	if !s.CanRead(0x1002) {
		t.Error("CanRead inside snippet = false")
	}
	if s.CanRead(0x1005) {
		t.Error("CanRead past snippet = true")
	}
	buf := make([]byte, 16)
	n, err := s.ReadAt(0x1002, buf)
	if err != nil || n != 3 || string(buf[:n]) != "llo" {
		t.Errorf("ReadAt = %q, %d, %v", buf[:n], n, err)
	}
}
