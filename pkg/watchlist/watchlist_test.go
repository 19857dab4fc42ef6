package watchlist

import (
	"os"
	"path/filepath"
	"testing"
)

func TestAddMergesToLargerCount(t *testing.T) {
	l := NewList("")
	l.Add("kernel32.dll", "Sleep", 2)
	l.Add("kernel32.dll", "SLEEP", 5)
	l.Add("KERNEL32.DLL", "sleep", 1)

	if l.Len() != 1 {
		t.Fatalf("Len = %d, want 1", l.Len())
	}
	e, ok := l.Get("Kernel32.dll", "Sleep")
	if !ok {
		t.Fatal("entry not found")
	}
	if e.ParamCount != 5 {
		t.Errorf("ParamCount = %d, want 5 (counts never shrink)", e.ParamCount)
	}
	// first spelling wins for display
	if e.DLL != "kernel32.dll" || e.Func != "Sleep" {
		t.Errorf("display names = %s!%s, want kernel32.dll!Sleep", e.DLL, e.Func)
	}
}

func TestAddRejectsInvalid(t *testing.T) {
	l := NewList("")
	l.Add("", "Sleep", 1)
	l.Add("kernel32.dll", "", 1)
	l.Add("kernel32.dll", "Sleep", -1)
	if l.Len() != 0 {
		t.Errorf("Len = %d, want 0", l.Len())
	}
}

func TestLookup(t *testing.T) {
	l := NewList("")
	l.Add("kernel32.dll", "Sleep", 1)
	l.Add("kernel32.dll", "VirtualAlloc", 4)
	l.Add("ntdll.dll", "NtCreateFile", 11)

	if got := l.Lookup("KERNEL32.dll"); len(got) != 2 {
		t.Errorf("Lookup(kernel32) returned %d entries, want 2", len(got))
	}
	if got := l.Lookup("user32.dll"); len(got) != 0 {
		t.Errorf("Lookup(user32) returned %d entries, want 0", len(got))
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "watch.txt")
	content := `# watched APIs
kernel32.dll;Sleep;1
kernel32.dll;Sleep;3

kernel32.dll;VirtualAlloc
not-a-valid-line
ntdll.dll;NtCreateFile;eleven
Kernel32.dll;CreateFileA;7;trailing junk ignored
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	l := NewList(";")
	loaded, err := l.LoadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	// every well-formed line counts, merges included
	if loaded != 3 {
		t.Errorf("loaded = %d, want 3", loaded)
	}
	if l.Len() != 2 {
		t.Errorf("Len = %d, want 2", l.Len())
	}
	if e, _ := l.Get("kernel32.dll", "sleep"); e.ParamCount != 3 {
		t.Errorf("Sleep ParamCount = %d, want 3", e.ParamCount)
	}
	if e, ok := l.Get("kernel32.dll", "createfilea"); !ok || e.ParamCount != 7 {
		t.Errorf("CreateFileA = %+v, %v; want count 7", e, ok)
	}
}

func TestLoadFileMissing(t *testing.T) {
	l := NewList("")
	if _, err := l.LoadFile(filepath.Join(t.TempDir(), "nope.txt")); err == nil {
		t.Error("expected error for missing file")
	}
}
