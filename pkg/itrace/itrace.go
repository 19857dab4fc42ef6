// Package itrace decides which x86 instructions a backend needs to
// instrument: control-flow transfers that feed the transition engine and the
// timing instructions it intercepts.
package itrace

import (
	"golang.org/x/arch/x86/x86asm"
)

// Class groups instructions by how the tracer treats them.
type Class int

const (
	// ClassNone is everything the tracer ignores.
	ClassNone Class = iota
	// ClassCall is a near or far call.
	ClassCall
	// ClassJump is an unconditional or conditional jump.
	ClassJump
	// ClassRet is a near or far return.
	ClassRet
	// ClassRdtsc is RDTSC/RDTSCP.
	ClassRdtsc
	// ClassCpuid is CPUID.
	ClassCpuid
)

func (c Class) String() string {
	switch c {
	case ClassCall:
		return "call"
	case ClassJump:
		return "jump"
	case ClassRet:
		return "ret"
	case ClassRdtsc:
		return "rdtsc"
	case ClassCpuid:
		return "cpuid"
	}
	return "none"
}

// IsControlFlow reports whether instructions of class c change the
// instruction pointer.
func (c Class) IsControlFlow() bool {
	return c == ClassCall || c == ClassJump || c == ClassRet
}

// Decode decodes one instruction from code. mode is 16, 32 or 64.
func Decode(code []byte, mode int) (x86asm.Inst, error) {
	return x86asm.Decode(code, mode)
}

// Classify maps a decoded instruction onto the tracer's instruction classes.
func Classify(inst x86asm.Inst) Class {
	switch inst.Op {
	case x86asm.CALL, x86asm.LCALL:
		return ClassCall
	case x86asm.JMP, x86asm.LJMP,
		x86asm.JA, x86asm.JAE, x86asm.JB, x86asm.JBE,
		x86asm.JCXZ, x86asm.JECXZ, x86asm.JRCXZ,
		x86asm.JE, x86asm.JNE,
		x86asm.JG, x86asm.JGE, x86asm.JL, x86asm.JLE,
		x86asm.JO, x86asm.JNO, x86asm.JP, x86asm.JNP,
		x86asm.JS, x86asm.JNS:
		return ClassJump
	case x86asm.RET, x86asm.LRET, x86asm.IRET, x86asm.IRETD, x86asm.IRETQ:
		return ClassRet
	case x86asm.RDTSC, x86asm.RDTSCP:
		return ClassRdtsc
	case x86asm.CPUID:
		return ClassCpuid
	}
	return ClassNone
}

// ClassifyBytes decodes and classifies in one step, returning the
// instruction length so callers can advance past intercepted instructions.
// Undecodable bytes come back as ClassNone with length 1.
func ClassifyBytes(code []byte, mode int) (Class, int) {
	inst, err := Decode(code, mode)
	if err != nil {
		return ClassNone, 1
	}
	return Classify(inst), inst.Len
}
