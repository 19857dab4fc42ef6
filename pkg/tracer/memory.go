package tracer

// Memory is the narrow view of target memory the tracer needs for argument
// dumps. Hosts that cannot read target memory pass nil and pointer
// arguments degrade to plain hex values.
type Memory interface {
	// CanRead reports whether addr is mapped and readable.
	CanRead(addr uint64) bool
	// ReadAt copies target memory starting at addr into buf, returning
	// how many bytes were read. Short reads at region boundaries are
	// expected, not an error.
	ReadAt(addr uint64, buf []byte) (int, error)
}

// ArgSource hands out the arguments of an intercepted call on demand, so a
// host only has to fetch the values a watched function actually declares.
type ArgSource interface {
	// Arg returns the i-th argument by the host's calling convention.
	// Out-of-range indexes return 0.
	Arg(i int) uint64
}
