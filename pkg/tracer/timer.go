package tracer

const tscStep = 100

// tscTimer fabricates the timestamp counter handed back to the target. One
// instance is shared by every thread of the process, so RDTSC deltas stay
// small and steady no matter how long analysis stalls the target.
type tscTimer struct {
	val uint64
}

// next returns the EAX/EDX halves to report for an RDTSC hit. The first
// call seeds the counter from the genuine EDX:EAX reading; every later call
// advances it by a fixed step.
func (t *tscTimer) next(eax, edx uint32) (uint32, uint32) {
	if t.val == 0 {
		t.val = uint64(edx)<<32 | uint64(eax)
	} else {
		t.val += tscStep
	}
	return uint32(t.val), uint32(t.val >> 32)
}
