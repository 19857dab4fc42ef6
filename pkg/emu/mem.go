//go:build unicorn

package emu

import (
	"fmt"
)

// Align returns an aligned memory addr/size to be uses with unicorn MemMap
func Align(addr, size uint64, growl ...bool) (uint64, uint64) {
	to := uint64(UC_MEM_ALIGN)
	mask := ^(to - 1)
	right := addr + size
	right = (right + to - 1) & mask
	addr &= mask
	size = right - addr
	if len(growl) > 0 && growl[0] {
		size = (size + to - 1) & mask
	}
	return addr, size
}

// mapImage maps every image segment into emulated memory.
func (e *Emulation) mapImage() error {
	for _, seg := range e.img.Segments {
		a, sz := Align(seg.Addr, uint64(len(seg.Data)), true)
		if err := e.mu.MemMapProt(a, sz, 7); err != nil {
			// overlapping PE sections share pages; the first map wins
			if !e.mapped(a) {
				return fmt.Errorf("failed to memmap segment at %#x: %v", a, err)
			}
		}
		if err := e.mu.MemWrite(seg.Addr, seg.Data); err != nil {
			return fmt.Errorf("failed to write segment at %#x: %v", seg.Addr, err)
		}
	}
	return nil
}

func (e *Emulation) mapped(addr uint64) bool {
	regions, err := e.mu.MemRegions()
	if err != nil {
		return false
	}
	for _, r := range regions {
		if addr >= r.Begin && addr <= r.End {
			return true
		}
	}
	return false
}

// CanRead reports whether addr is mapped, implementing tracer.Memory.
func (e *Emulation) CanRead(addr uint64) bool {
	return e.mapped(addr)
}

// ReadAt copies emulated memory into buf, stopping at the mapping boundary.
func (e *Emulation) ReadAt(addr uint64, buf []byte) (int, error) {
	regions, err := e.mu.MemRegions()
	if err != nil {
		return 0, err
	}
	for _, r := range regions {
		if addr < r.Begin || addr > r.End {
			continue
		}
		n := uint64(len(buf))
		if avail := r.End - addr + 1; avail < n {
			n = avail
		}
		data, err := e.mu.MemRead(addr, n)
		if err != nil {
			return 0, err
		}
		return copy(buf, data), nil
	}
	return 0, nil
}
