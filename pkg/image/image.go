// Package image builds tracer module descriptors from binaries on disk. It
// understands PE, ELF and Mach-O images; the emulation backend maps the
// returned segments and the info command prints the descriptor.
package image

import (
	"bytes"
	"fmt"
	"os"

	"github.com/sectrace/sectrace/pkg/tracer"
)

// Segment is a raw chunk of the image to map at Addr.
type Segment struct {
	Addr uint64
	Data []byte
}

// Image is one loadable binary: the tracer's view of it plus what a backend
// needs to actually map and run it.
type Image struct {
	Module   tracer.Module
	Entry    uint64
	Is64     bool
	Segments []Segment
}

var (
	peMagic    = []byte{'M', 'Z'}
	elfMagic   = []byte{0x7f, 'E', 'L', 'F'}
	machoMagic = [][]byte{
		{0xfe, 0xed, 0xfa, 0xce}, {0xce, 0xfa, 0xed, 0xfe},
		{0xfe, 0xed, 0xfa, 0xcf}, {0xcf, 0xfa, 0xed, 0xfe},
	}
)

// Open sniffs the file format and parses the image.
func Open(path string) (*Image, error) {
	magic := make([]byte, 4)
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %v", path, err)
	}
	if _, err := f.Read(magic); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to read magic of %s: %v", path, err)
	}
	f.Close()

	switch {
	case bytes.HasPrefix(magic, peMagic):
		return openPE(path)
	case bytes.HasPrefix(magic, elfMagic):
		return openELF(path)
	default:
		for _, m := range machoMagic {
			if bytes.Equal(magic, m) {
				return openMachO(path)
			}
		}
	}
	return nil, fmt.Errorf("unsupported image format in %s", path)
}
