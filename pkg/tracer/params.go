package tracer

import (
	"fmt"
	"strconv"
)

// maxFormatLen caps how many bytes of a string argument are inspected and
// echoed into the trace.
const maxFormatLen = 300

// FormatArg renders one raw argument value the way it most likely was
// meant: NULL, a wide string, an ASCII string, some other pointer, or a
// plain number when the value does not point into readable memory.
//
// The wide-string trigger (a narrow printable run of exactly 1) is a
// deliberate approximation carried over from the original heuristic; it
// reads one-character ASCII strings as UTF-16 when the follow-up bytes
// cooperate.
func FormatArg(mem Memory, arg uint64) string {
	if arg == 0 {
		return "0"
	}
	if mem == nil || !mem.CanRead(arg) {
		return fmt.Sprintf("%x", arg)
	}
	buf := make([]byte, maxFormatLen)
	n, err := mem.ReadAt(arg, buf)
	if err != nil || n == 0 {
		return fmt.Sprintf("%x", arg)
	}
	run := asciiRun(buf[:n])
	if run == 1 {
		wbuf := make([]byte, 2*maxFormatLen)
		wn, _ := mem.ReadAt(arg, wbuf)
		if ws, wrun := wideRun(wbuf[:wn]); wrun >= run {
			return "L" + strconv.Quote(ws)
		}
	}
	if run > 1 {
		return strconv.Quote(string(buf[:run]))
	}
	return fmt.Sprintf("ptr %x", arg)
}

func printableASCII(c byte) bool {
	return (c >= 0x20 && c < 0x7f) || c == '\n' || c == '\r' || c == '\t'
}

// asciiRun returns the length of buf's printable prefix, stopping at a
// terminating NUL. A non-printable byte before the terminator disqualifies
// the whole buffer.
func asciiRun(buf []byte) int {
	for i, c := range buf {
		if c == 0 {
			return i
		}
		if !printableASCII(c) {
			return 0
		}
	}
	return len(buf)
}

// wideRun decodes a printable UTF-16LE prefix of buf, returning the decoded
// text and its length in characters. Anything beyond printable ASCII
// disqualifies the buffer, mirroring the narrow scan.
func wideRun(buf []byte) (string, int) {
	var out []byte
	for i := 0; i+1 < len(buf); i += 2 {
		u := uint16(buf[i]) | uint16(buf[i+1])<<8
		if u == 0 {
			break
		}
		if u >= 0x7f || !printableASCII(byte(u)) {
			return "", 0
		}
		out = append(out, byte(u))
	}
	return string(out), len(out)
}
