package image

import (
	"fmt"
	"path/filepath"

	"github.com/blacktop/go-macho"
	"github.com/blacktop/go-macho/types"

	"github.com/sectrace/sectrace/pkg/tracer"
)

func openMachO(path string) (*Image, error) {
	m, err := macho.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Mach-O %s: %v", path, err)
	}
	defer m.Close()

	text := m.Segment("__TEXT")
	if text == nil {
		return nil, fmt.Errorf("Mach-O %s has no __TEXT segment", path)
	}
	base := text.Addr
	var end uint64
	for _, seg := range m.Segments() {
		if seg.Name == "__PAGEZERO" {
			continue
		}
		if seg.Addr+seg.Memsz > end {
			end = seg.Addr + seg.Memsz
		}
	}

	img := &Image{
		Module: tracer.Module{
			Name: filepath.Base(path),
			Base: base,
			Size: end - base,
		},
		// LC_MAIN is relative to the dyld mapping; the raw __TEXT base is
		// close enough for a from-disk descriptor.
		Entry: base,
		Is64:  m.CPU == types.CPUAmd64 || m.CPU == types.CPUArm64,
	}

	for _, sec := range m.Sections {
		if sec.Size == 0 || sec.Addr < base {
			continue
		}
		img.Module.Sections = append(img.Module.Sections, tracer.Section{
			Name: fmt.Sprintf("%s.%s", sec.Seg, sec.Name),
			RVA:  sec.Addr - base,
			Size: sec.Size,
		})
	}

	if m.Symtab != nil {
		for _, sym := range m.Symtab.Syms {
			if sym.Value < base || sym.Name == "" {
				continue
			}
			img.Module.Exports = append(img.Module.Exports, tracer.Export{
				Name: sym.Name,
				RVA:  sym.Value - base,
			})
		}
	}

	for _, seg := range m.Segments() {
		if seg.Name == "__PAGEZERO" || seg.Filesz == 0 {
			continue
		}
		data := make([]byte, seg.Filesz)
		if _, err := m.ReadAt(data, int64(seg.Offset)); err != nil {
			continue
		}
		img.Segments = append(img.Segments, Segment{Addr: seg.Addr, Data: data})
	}

	return img, nil
}
