package replay

// Snippets is the replayed view of target memory: whatever byte ranges the
// recording carried. It implements tracer.Memory; everything outside a
// stashed range reads as unmapped.
type Snippets struct {
	chunks map[uint64][]byte
}

// NewSnippets creates an empty snippet store.
func NewSnippets() *Snippets {
	return &Snippets{chunks: make(map[uint64][]byte)}
}

// Put stashes data at addr, replacing any previous snippet at that base.
func (s *Snippets) Put(addr uint64, data []byte) {
	s.chunks[addr] = data
}

func (s *Snippets) find(addr uint64) (base uint64, data []byte, ok bool) {
	for b, d := range s.chunks {
		if addr >= b && addr < b+uint64(len(d)) {
			return b, d, true
		}
	}
	return 0, nil, false
}

// CanRead reports whether addr falls inside a stashed snippet.
func (s *Snippets) CanRead(addr uint64) bool {
	_, _, ok := s.find(addr)
	return ok
}

// ReadAt copies snippet bytes starting at addr into buf. Reads stop at the
// snippet boundary; that short read matches how a real probe behaves at the
// edge of a mapping.
func (s *Snippets) ReadAt(addr uint64, buf []byte) (int, error) {
	base, data, ok := s.find(addr)
	if !ok {
		return 0, nil
	}
	return copy(buf, data[addr-base:]), nil
}
