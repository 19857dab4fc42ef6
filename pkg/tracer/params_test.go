package tracer

import "testing"

// fakeMem backs FormatArg tests with a handful of mapped regions.
type fakeMem map[uint64][]byte

func (m fakeMem) CanRead(addr uint64) bool {
	_, ok := m.region(addr)
	return ok
}

func (m fakeMem) ReadAt(addr uint64, buf []byte) (int, error) {
	data, ok := m.region(addr)
	if !ok {
		return 0, nil
	}
	return copy(buf, data), nil
}

func (m fakeMem) region(addr uint64) ([]byte, bool) {
	for base, data := range m {
		if addr >= base && addr < base+uint64(len(data)) {
			return data[addr-base:], true
		}
	}
	return nil, false
}

func wide(s string) []byte {
	out := make([]byte, 0, 2*len(s)+2)
	for i := 0; i < len(s); i++ {
		out = append(out, s[i], 0)
	}
	return append(out, 0, 0)
}

func TestFormatArg(t *testing.T) {
	mem := fakeMem{
		0x1000: append([]byte("hello world"), 0),
		0x2000: wide("kernel32.dll"),
		0x3000: {0x01, 0x02, 0x03, 0x04},
		0x4000: append([]byte("x"), 0, 0, 0),
	}

	tests := []struct {
		name string
		arg  uint64
		want string
	}{
		{name: "null", arg: 0, want: "0"},
		{name: "unreadable", arg: 0xdeadbeef, want: "deadbeef"},
		{name: "ascii string", arg: 0x1000, want: `"hello world"`},
		{name: "wide string", arg: 0x2000, want: `L"kernel32.dll"`},
		{name: "binary pointer", arg: 0x3000, want: "ptr 3000"},
		// a one-character narrow string followed by NULs decodes as a
		// one-character wide string; the heuristic keeps that reading
		{name: "single char", arg: 0x4000, want: `L"x"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FormatArg(mem, tt.arg); got != tt.want {
				t.Errorf("FormatArg(%#x) = %q, want %q", tt.arg, got, tt.want)
			}
		})
	}
}

func TestFormatArgNilMemory(t *testing.T) {
	if got := FormatArg(nil, 0x1234); got != "1234" {
		t.Errorf("FormatArg(nil, 0x1234) = %q, want hex fallback", got)
	}
	if got := FormatArg(nil, 0); got != "0" {
		t.Errorf("FormatArg(nil, 0) = %q, want 0", got)
	}
}

func TestFormatArgTruncation(t *testing.T) {
	long := make([]byte, 2*maxFormatLen)
	for i := range long {
		long[i] = 'a'
	}
	mem := fakeMem{0x1000: long}
	got := FormatArg(mem, 0x1000)
	// quoted, so two extra bytes beyond the scan cap
	if len(got) != maxFormatLen+2 {
		t.Errorf("len(FormatArg) = %d, want %d", len(got), maxFormatLen+2)
	}
}

func TestAsciiRun(t *testing.T) {
	tests := []struct {
		name string
		buf  []byte
		want int
	}{
		{name: "terminated", buf: []byte("abc\x00def"), want: 3},
		{name: "unterminated", buf: []byte("abc"), want: 3},
		{name: "binary before NUL", buf: []byte{'a', 0x01, 0x00}, want: 0},
		{name: "empty", buf: nil, want: 0},
		{name: "whitespace ok", buf: []byte("a\tb\n\x00"), want: 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := asciiRun(tt.buf); got != tt.want {
				t.Errorf("asciiRun(%q) = %d, want %d", tt.buf, got, tt.want)
			}
		})
	}
}

func TestWideRun(t *testing.T) {
	if s, n := wideRun(wide("hi")); s != "hi" || n != 2 {
		t.Errorf("wideRun = %q, %d; want hi, 2", s, n)
	}
	// non-ASCII code unit disqualifies the buffer
	if _, n := wideRun([]byte{0x41, 0x00, 0x80, 0x00}); n != 0 {
		t.Errorf("wideRun accepted a non-ASCII unit, n=%d", n)
	}
}
