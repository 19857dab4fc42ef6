package tracer

import "fmt"

// FollowMode controls how far the tracer follows execution that left every
// registered module, i.e. runs from dynamically allocated memory.
type FollowMode int

const (
	// FollowNone logs the first entry into unmapped memory but ignores
	// everything the shellcode does afterwards.
	FollowNone FollowMode = iota
	// FollowFirst keeps watching the first shellcode page the traced
	// module entered, but never re-targets to pages it chains into.
	FollowFirst
	// FollowRecursive re-targets the watched page every time the current
	// shellcode transfers into yet another unmapped page.
	FollowRecursive
)

// FollowModeFromInt maps a numeric option to a FollowMode. Out-of-range
// values select FollowRecursive.
func FollowModeFromInt(v int) FollowMode {
	if v < int(FollowNone) || v > int(FollowRecursive) {
		return FollowRecursive
	}
	return FollowMode(v)
}

func (m FollowMode) String() string {
	switch m {
	case FollowNone:
		return "none"
	case FollowFirst:
		return "first"
	case FollowRecursive:
		return "recursive"
	}
	return fmt.Sprintf("FollowMode(%d)", int(m))
}

const pageSize = 0x1000

// pageOf returns the 4 KiB page base of addr. Page 0 is never treated as a
// valid shellcode page; it doubles as the "nothing tracked" sentinel.
func pageOf(addr uint64) uint64 {
	return addr &^ (pageSize - 1)
}
