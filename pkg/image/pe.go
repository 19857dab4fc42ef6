package image

import (
	"debug/pe"
	"encoding/binary"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/sectrace/sectrace/pkg/tracer"
)

func openPE(path string) (*Image, error) {
	f, err := pe.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to parse PE %s: %v", path, err)
	}
	defer f.Close()

	var base, size, entry uint64
	var exportDir pe.DataDirectory
	var is64 bool
	switch oh := f.OptionalHeader.(type) {
	case *pe.OptionalHeader32:
		base = uint64(oh.ImageBase)
		size = uint64(oh.SizeOfImage)
		entry = uint64(oh.AddressOfEntryPoint)
		exportDir = oh.DataDirectory[pe.IMAGE_DIRECTORY_ENTRY_EXPORT]
	case *pe.OptionalHeader64:
		base = oh.ImageBase
		size = uint64(oh.SizeOfImage)
		entry = uint64(oh.AddressOfEntryPoint)
		exportDir = oh.DataDirectory[pe.IMAGE_DIRECTORY_ENTRY_EXPORT]
		is64 = true
	default:
		return nil, fmt.Errorf("PE %s has no optional header", path)
	}

	img := &Image{
		Module: tracer.Module{
			Name: filepath.Base(path),
			Base: base,
			Size: size,
		},
		Entry: base + entry,
		Is64:  is64,
	}

	for _, sec := range f.Sections {
		vsize := uint64(sec.VirtualSize)
		if vsize == 0 {
			vsize = uint64(sec.Size)
		}
		img.Module.Sections = append(img.Module.Sections, tracer.Section{
			Name: strings.TrimRight(sec.Name, "\x00"),
			RVA:  uint64(sec.VirtualAddress),
			Size: vsize,
		})
		data, err := sec.Data()
		if err != nil {
			continue
		}
		if uint64(len(data)) > vsize {
			data = data[:vsize]
		}
		img.Segments = append(img.Segments, Segment{
			Addr: base + uint64(sec.VirtualAddress),
			Data: data,
		})
	}

	if exports, err := parsePEExports(f, exportDir); err == nil {
		img.Module.Exports = exports
	}

	return img, nil
}

// parsePEExports walks the export directory by hand; debug/pe stops at the
// data directory.
func parsePEExports(f *pe.File, dir pe.DataDirectory) ([]tracer.Export, error) {
	if dir.VirtualAddress == 0 || dir.Size == 0 {
		return nil, nil
	}
	read32 := func(rva uint32) (uint32, bool) {
		b, ok := rvaBytes(f, rva, 4)
		if !ok {
			return 0, false
		}
		return binary.LittleEndian.Uint32(b), true
	}
	read16 := func(rva uint32) (uint16, bool) {
		b, ok := rvaBytes(f, rva, 2)
		if !ok {
			return 0, false
		}
		return binary.LittleEndian.Uint16(b), true
	}

	// IMAGE_EXPORT_DIRECTORY: names at +0x18, funcs/names/ordinals at +0x1c..+0x24
	numNames, ok := read32(dir.VirtualAddress + 0x18)
	if !ok {
		return nil, fmt.Errorf("export directory out of range")
	}
	funcsRVA, _ := read32(dir.VirtualAddress + 0x1c)
	namesRVA, _ := read32(dir.VirtualAddress + 0x20)
	ordsRVA, _ := read32(dir.VirtualAddress + 0x24)

	var exports []tracer.Export
	for i := uint32(0); i < numNames; i++ {
		nameRVA, ok := read32(namesRVA + 4*i)
		if !ok {
			break
		}
		ord, ok := read16(ordsRVA + 2*i)
		if !ok {
			break
		}
		fnRVA, ok := read32(funcsRVA + 4*uint32(ord))
		if !ok {
			continue
		}
		name, ok := rvaString(f, nameRVA)
		if !ok || name == "" {
			continue
		}
		exports = append(exports, tracer.Export{Name: name, RVA: uint64(fnRVA)})
	}
	return exports, nil
}

func rvaBytes(f *pe.File, rva, n uint32) ([]byte, bool) {
	for _, sec := range f.Sections {
		if rva >= sec.VirtualAddress && rva+n <= sec.VirtualAddress+sec.Size {
			data, err := sec.Data()
			if err != nil {
				return nil, false
			}
			off := rva - sec.VirtualAddress
			return data[off : off+n], true
		}
	}
	return nil, false
}

func rvaString(f *pe.File, rva uint32) (string, bool) {
	for _, sec := range f.Sections {
		if rva < sec.VirtualAddress || rva >= sec.VirtualAddress+sec.Size {
			continue
		}
		data, err := sec.Data()
		if err != nil {
			return "", false
		}
		off := rva - sec.VirtualAddress
		for end := off; end < uint32(len(data)); end++ {
			if data[end] == 0 {
				return string(data[off:end]), true
			}
		}
	}
	return "", false
}
