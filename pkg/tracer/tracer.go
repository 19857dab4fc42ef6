// Package tracer is the transition-detection engine: it classifies every
// control-flow transfer a host backend reports by which memory region it
// leaves and enters, follows execution into unmapped "shellcode" pages,
// spoofs the timestamp counter and snapshots watched call arguments.
package tracer

import (
	"fmt"
	"sync"

	"github.com/apex/log"

	"github.com/sectrace/sectrace/pkg/tracelog"
)

// maxWatchArgs caps how many arguments of a watched call are dumped.
const maxWatchArgs = 10

// Config holds the knobs fixed at startup.
type Config struct {
	// Module is the name of the module to trace, matched against image
	// load notifications.
	Module string
	// Follow selects the shellcode follow policy.
	Follow FollowMode
	// LogRdtsc enables RDTSC event lines. Spoofing itself is always on.
	LogRdtsc bool
}

// Tracer ties the process map, the shellcode tracker and the spoof timer
// together behind one lock. Backends call into it for every module load and
// every control-flow transfer of the target; the lock is coarse on purpose,
// the four analysis branches must see one consistent snapshot of the section
// cursor and the tracked shellcode page.
type Tracer struct {
	mu   sync.Mutex
	conf *Config
	pmap *ProcessMap
	tlog *tracelog.Log
	mem  Memory

	lastShellc uint64
	timer      tscTimer
}

// NewTracer creates a tracer writing through tlog. mem may be nil; watched
// pointer arguments then degrade to plain hex values.
func NewTracer(conf *Config, tlog *tracelog.Log, mem Memory) *Tracer {
	return &Tracer{
		conf: conf,
		pmap: NewProcessMap(conf.Module),
		tlog: tlog,
		mem:  mem,
	}
}

// SetMemory swaps the target memory reader. Backends that only know how to
// read memory once the target is running install it late.
func (t *Tracer) SetMemory(mem Memory) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.mem = mem
}

// Map exposes the process map for callers that need classification outside
// the analysis path, like watch-hook attachment at image load.
func (t *Tracer) Map() *ProcessMap {
	return t.pmap
}

// AddModule registers a newly loaded module.
func (t *Tracer) AddModule(m Module) {
	t.mu.Lock()
	defer t.mu.Unlock()
	mod := t.pmap.AddModule(m)
	if t.pmap.Traced() == mod {
		log.WithFields(log.Fields{
			"name": mod.Name,
			"base": fmt.Sprintf("%#x", mod.Base),
			"size": fmt.Sprintf("%#x", mod.Size),
		}).Info("traced module loaded")
	} else {
		log.WithFields(log.Fields{
			"name": mod.Name,
			"base": fmt.Sprintf("%#x", mod.Base),
		}).Debug("module loaded")
	}
}

// RemoveModule drops the module loaded at base on an unload notification.
func (t *Tracer) RemoveModule(base uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.pmap.RemoveModule(base) {
		log.Debugf("module at %#x unloaded", base)
	}
}

// SaveTransitions is the per-transfer analysis routine, called once for
// every control-flow instruction the target executes and once per observed
// context switch. The branches below are evaluated independently; a single
// transition can fire more than one.
func (t *Tracer) SaveTransitions(from, to uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	isCallerMy := t.pmap.IsMyAddress(from)
	isTargetMy := t.pmap.IsMyAddress(to)
	_, fromMapped := t.pmap.ModuleAt(from)

	// the traced module transfers out: API call or shellcode entry
	if isCallerMy && !isTargetMy {
		fromRVA := t.pmap.AddrToRVA(from)
		if mod, fn, ok := t.pmap.FuncAt(to); ok {
			t.tlog.Call(fromRVA, mod, fn)
		} else {
			t.lastShellc = pageOf(to)
			t.tlog.ShellcodeEntry(fromRVA, t.lastShellc, to)
		}
	}

	// tracked shellcode transfers somewhere
	if t.conf.Follow != FollowNone && !fromMapped {
		fromPage := pageOf(from)
		if fromPage != 0 && fromPage == t.lastShellc {
			if mod, fn, ok := t.pmap.FuncAt(to); ok {
				t.tlog.ShellcodeCall(fromPage, from-fromPage, mod, fn)
			} else if fromPage != pageOf(to) && t.conf.Follow == FollowRecursive {
				t.lastShellc = pageOf(to)
			}
		}
	}

	// execution lands in the traced module: watch for section crossings
	if isTargetMy {
		rva := t.pmap.AddrToRVA(to)
		if t.pmap.UpdateTracedSection(rva) {
			curr := "?"
			if sec, ok := t.pmap.SectionByRVA(rva); ok {
				curr = sec.Name
			}
			if isCallerMy {
				// the crossing names the section the transfer actually left,
				// not the cursor: execution can fall through a boundary
				// without a taken transfer in between
				fromRVA := t.pmap.AddrToRVA(from)
				prev := "?"
				if sec, ok := t.pmap.SectionByRVA(fromRVA); ok {
					prev = sec.Name
				}
				t.tlog.SectionCall(fromRVA, prev, curr)
			}
			t.tlog.SectionChange(rva, curr)
		}
	}
}

// context classifies ip for RDTSC/CPUID/argument events: (0, rva) inside the
// traced module, (page, offset) in unmapped memory when shellcode following
// is on, not watched anywhere else.
func (t *Tracer) context(ip uint64) (page, off uint64, watched bool) {
	if t.pmap.IsMyAddress(ip) {
		return 0, t.pmap.AddrToRVA(ip), true
	}
	if t.conf.Follow == FollowNone {
		return 0, 0, false
	}
	if _, mapped := t.pmap.ModuleAt(ip); mapped {
		return 0, 0, false
	}
	p := pageOf(ip)
	if p == 0 {
		return 0, 0, false
	}
	return p, ip - p, true
}

// RdtscExecuted spoofs the timestamp counter. The backend passes the halves
// the instruction produced and overwrites them with the returned values. One
// counter is shared by every thread so deltas stay small and steady however
// long analysis stalls the target.
func (t *Tracer) RdtscExecuted(ip uint64, eax, edx uint32) (uint32, uint32) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conf.LogRdtsc {
		if page, off, ok := t.context(ip); ok {
			t.tlog.Rdtsc(page, off)
		}
	}
	return t.timer.next(eax, edx)
}

// CpuidExecuted logs a CPUID executed at ip with its EAX leaf.
func (t *Tracer) CpuidExecuted(ip uint64, leaf uint32) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if page, off, ok := t.context(ip); ok {
		t.tlog.Cpuid(page, off, leaf)
	}
}

// WatchHit dumps the arguments of a watched call. retIP is the address the
// call returns to; hits whose return address is neither in the traced module
// nor in followed shellcode belong to foreign-module internals and are
// dropped. The dump is argument lines only; the call itself is already named
// by the transition event that reached it.
func (t *Tracer) WatchHit(retIP uint64, name string, argc int, args ArgSource) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, _, ok := t.context(retIP); !ok {
		return
	}
	log.Debugf("watched call %s returning to %#x", name, retIP)
	if argc > maxWatchArgs {
		argc = maxWatchArgs
	}
	for i := 0; i < argc; i++ {
		t.tlog.Line(fmt.Sprintf("\tArg[%d] = %s", i, FormatArg(t.mem, args.Arg(i))))
	}
}
