package image

import (
	"debug/elf"
	"fmt"
	"io"
	"path/filepath"

	"github.com/sectrace/sectrace/pkg/tracer"
)

func openELF(path string) (*Image, error) {
	f, err := elf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to parse ELF %s: %v", path, err)
	}
	defer f.Close()

	var base, end uint64
	first := true
	for _, p := range f.Progs {
		if p.Type != elf.PT_LOAD {
			continue
		}
		if first || p.Vaddr < base {
			base = p.Vaddr
			first = false
		}
		if p.Vaddr+p.Memsz > end {
			end = p.Vaddr + p.Memsz
		}
	}
	if first {
		return nil, fmt.Errorf("ELF %s has no loadable segments", path)
	}

	img := &Image{
		Module: tracer.Module{
			Name: filepath.Base(path),
			Base: base,
			Size: end - base,
		},
		Entry: f.Entry,
		Is64:  f.Class == elf.ELFCLASS64,
	}

	for _, sec := range f.Sections {
		if sec.Flags&elf.SHF_ALLOC == 0 || sec.Size == 0 {
			continue
		}
		img.Module.Sections = append(img.Module.Sections, tracer.Section{
			Name: sec.Name,
			RVA:  sec.Addr - base,
			Size: sec.Size,
		})
	}

	addSyms := func(syms []elf.Symbol) {
		for _, sym := range syms {
			if elf.ST_TYPE(sym.Info) != elf.STT_FUNC || sym.Value == 0 {
				continue
			}
			img.Module.Exports = append(img.Module.Exports, tracer.Export{
				Name: sym.Name,
				RVA:  sym.Value - base,
			})
		}
	}
	if syms, err := f.DynamicSymbols(); err == nil {
		addSyms(syms)
	}
	if syms, err := f.Symbols(); err == nil {
		addSyms(syms)
	}

	for _, p := range f.Progs {
		if p.Type != elf.PT_LOAD || p.Filesz == 0 {
			continue
		}
		data := make([]byte, p.Filesz)
		if _, err := io.ReadFull(p.Open(), data); err != nil {
			continue
		}
		img.Segments = append(img.Segments, Segment{Addr: p.Vaddr, Data: data})
	}

	return img, nil
}
