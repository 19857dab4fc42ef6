package image

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

func TestOpenELF(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("test binary is only an ELF on linux")
	}
	exe, err := os.Executable()
	if err != nil {
		t.Fatal(err)
	}

	img, err := Open(exe)
	if err != nil {
		t.Fatal(err)
	}

	if img.Module.Size == 0 {
		t.Error("module size is zero")
	}
	if img.Entry < img.Module.Base || img.Entry >= img.Module.Base+img.Module.Size {
		t.Errorf("entry %#x outside module [%#x, %#x)", img.Entry, img.Module.Base, img.Module.Base+img.Module.Size)
	}
	if len(img.Segments) == 0 {
		t.Error("no loadable segments")
	}

	var hasText bool
	for _, sec := range img.Module.Sections {
		if sec.Name == ".text" {
			hasText = true
			if sec.Size == 0 {
				t.Error(".text section has zero size")
			}
		}
		if sec.RVA+sec.Size > img.Module.Size {
			t.Errorf("section %s [%#x+%#x] extends past the module", sec.Name, sec.RVA, sec.Size)
		}
	}
	if !hasText {
		t.Error("no .text section found")
	}

	if len(img.Module.Exports) == 0 {
		t.Error("no function symbols found")
	}
}

func TestOpenUnsupported(t *testing.T) {
	path := filepath.Join(t.TempDir(), "junk.bin")
	if err := os.WriteFile(path, []byte{0xde, 0xad, 0xbe, 0xef, 0x00}, 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Open(path); err == nil {
		t.Error("expected error for unknown magic")
	}
}

func TestOpenMissing(t *testing.T) {
	if _, err := Open(filepath.Join(t.TempDir(), "nope")); err == nil {
		t.Error("expected error for missing file")
	}
}
