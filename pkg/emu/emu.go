//go:build unicorn

// Package emu runs a target image under unicorn and feeds every control-flow
// transfer it executes into the trace engine. It exists so packed samples
// can be traced without a live instrumentation host.
package emu

import (
	"fmt"

	"github.com/apex/log"
	uc "github.com/unicorn-engine/unicorn/bindings/go/unicorn"

	"github.com/sectrace/sectrace/pkg/image"
	"github.com/sectrace/sectrace/pkg/itrace"
	"github.com/sectrace/sectrace/pkg/tracer"
)

const (
	STACK_BASE_32 = 0x0c000000
	STACK_BASE_64 = 0x7ffcf0000000
	STACK_SIZE    = 0x800000
	UC_MEM_ALIGN  = 0x1000
)

// Config is an emulation configuration object
type Config struct {
	Verbose bool
	// MaxInstructions stops the run after that many executed instructions;
	// 0 means run until the target exits or faults.
	MaxInstructions uint64
}

// Emulation drives one image under unicorn.
type Emulation struct {
	mu   uc.Unicorn
	img  *image.Image
	t    *tracer.Tracer
	conf *Config
	mode int
	// pending is the address of the last control-flow instruction; the
	// next code hook reports the (pending, current) pair as a transition.
	pending    uint64
	hasPending bool
	count      uint64
}

// NewEmulation creates an emulation instance for img, maps the image and a
// stack, and wires the hooks into t.
func NewEmulation(img *image.Image, t *tracer.Tracer, conf *Config) (*Emulation, error) {
	e := &Emulation{
		img:  img,
		t:    t,
		conf: conf,
		mode: 32,
	}
	ucMode := uc.MODE_32
	if img.Is64 {
		e.mode = 64
		ucMode = uc.MODE_64
	}

	var err error
	e.mu, err = uc.NewUnicorn(uc.ARCH_X86, ucMode)
	if err != nil {
		return nil, fmt.Errorf("failed to create new unicorn instance: %v", err)
	}

	if err := e.mapImage(); err != nil {
		return nil, err
	}
	if err := e.InitStack(); err != nil {
		return nil, err
	}
	if err := e.SetupHooks(); err != nil {
		return nil, err
	}

	t.AddModule(img.Module)
	t.SetMemory(e)

	return e, nil
}

func (e *Emulation) Close() error {
	return e.mu.Close()
}

// InitStack initialize stack to 8MBs
func (e *Emulation) InitStack() error {
	base := uint64(STACK_BASE_32)
	sp := uc.X86_REG_ESP
	if e.mode == 64 {
		base = uint64(STACK_BASE_64)
		sp = uc.X86_REG_RSP
	}
	if err := e.mu.MemMap(base, STACK_SIZE); err != nil {
		return fmt.Errorf("failed to memmap stack at %#x: %v", base, err)
	}
	// leave headroom so the entry point can fake a return address
	if err := e.mu.RegWrite(sp, base+STACK_SIZE-0x1000); err != nil {
		return fmt.Errorf("failed to set SP register to %#x: %v", base+STACK_SIZE, err)
	}
	return nil
}

// SetupHooks adds all the unicorn hooks
func (e *Emulation) SetupHooks() error {
	//*************
	//* HOOK_CODE *
	//*************
	if _, err := e.mu.HookAdd(uc.HOOK_CODE, func(mu uc.Unicorn, addr uint64, size uint32) {
		if e.hasPending {
			e.t.SaveTransitions(e.pending, addr)
			e.hasPending = false
		}
		e.count++
		if e.conf.MaxInstructions > 0 && e.count > e.conf.MaxInstructions {
			mu.Stop()
			return
		}
		code, err := mu.MemRead(addr, uint64(size))
		if err != nil {
			log.Errorf("failed to read instruction at %#x: %v", addr, err)
			return
		}
		class, ilen := itrace.ClassifyBytes(code, e.mode)
		if e.conf.Verbose && class != itrace.ClassNone {
			fmt.Printf(colorHook("[%s]")+colorDetails(" addr: %#x, size: %d\n"), class, addr, size)
		}
		switch {
		case class.IsControlFlow():
			e.pending = addr
			e.hasPending = true
		case class == itrace.ClassRdtsc:
			e.spoofRdtsc(addr, uint64(ilen))
		case class == itrace.ClassCpuid:
			leaf, _ := e.mu.RegRead(uc.X86_REG_EAX)
			e.t.CpuidExecuted(addr, uint32(leaf))
		}
	}, 1, 0); err != nil {
		return fmt.Errorf("failed to register code hook: %v", err)
	}
	//***********************************************************************
	//* HOOK_MEM_READ_INVALID|HOOK_MEM_WRITE_INVALID|HOOK_MEM_FETCH_INVALID *
	//***********************************************************************
	if _, err := e.mu.HookAdd(uc.HOOK_MEM_READ_INVALID|uc.HOOK_MEM_WRITE_INVALID|uc.HOOK_MEM_FETCH_INVALID,
		func(mu uc.Unicorn, access int, addr uint64, size int, value int64) bool {
			// unpackers allocate and jump into fresh memory all the time;
			// hand them a zeroed page and keep going
			a, sz := Align(addr, uint64(size), true)
			if err := e.mu.MemMap(a, sz); err != nil {
				log.Errorf("failed to memmap at %#x: %v", a, err)
				return false
			}
			if e.conf.Verbose {
				fmt.Printf(colorHook("[MEM_UNMAPPED]")+colorDetails(" addr: %#x, size: %d\n"), addr, size)
			}
			return true
		}, 1, 0); err != nil {
		return fmt.Errorf("failed to register invalid memory hook: %v", err)
	}
	return nil
}

// spoofRdtsc replaces the timestamp the target just asked for and steps the
// program counter past the instruction.
func (e *Emulation) spoofRdtsc(addr, ilen uint64) {
	eax, _ := e.mu.RegRead(uc.X86_REG_EAX)
	edx, _ := e.mu.RegRead(uc.X86_REG_EDX)
	neax, nedx := e.t.RdtscExecuted(addr, uint32(eax), uint32(edx))
	e.mu.RegWrite(uc.X86_REG_EAX, uint64(neax))
	e.mu.RegWrite(uc.X86_REG_EDX, uint64(nedx))
	pc := uc.X86_REG_EIP
	if e.mode == 64 {
		pc = uc.X86_REG_RIP
	}
	if err := e.mu.RegWrite(pc, addr+ilen); err != nil {
		log.Errorf("failed to step over rdtsc at %#x: %v", addr, err)
	}
}

// Run starts execution at the image entry point and returns when the target
// stops, faults or hits the instruction budget.
func (e *Emulation) Run() error {
	log.WithFields(log.Fields{
		"entry": fmt.Sprintf("%#x", e.img.Entry),
		"mode":  e.mode,
	}).Info("starting emulation")
	if err := e.mu.Start(e.img.Entry, 0); err != nil {
		return fmt.Errorf("emulation stopped: %v", err)
	}
	return nil
}

// Executed returns how many instructions ran.
func (e *Emulation) Executed() uint64 {
	return e.count
}
