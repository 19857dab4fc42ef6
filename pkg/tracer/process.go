package tracer

import (
	"sort"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/sectrace/sectrace/internal/utils"
)

// Section is a named, contiguous region of a module, relative to its base.
// Sections within one module are disjoint and ordered by RVA.
type Section struct {
	Name string `json:"name"`
	RVA  uint64 `json:"rva"`
	Size uint64 `json:"size"`
}

// Export is a named entry point inside a module, relative to its base.
type Export struct {
	Name string `json:"name"`
	RVA  uint64 `json:"rva"`
}

// Module describes one image mapped into the traced process, as reported by
// the host on image load.
type Module struct {
	Name     string    `json:"name"`
	Base     uint64    `json:"base"`
	Size     uint64    `json:"size"`
	Sections []Section `json:"sections,omitempty"`
	Exports  []Export  `json:"exports,omitempty"`
}

// Contains reports whether addr falls inside [Base, Base+Size).
func (m *Module) Contains(addr uint64) bool {
	return addr >= m.Base && addr < m.Base+m.Size
}

const symCacheSize = 4096

// ProcessMap mirrors the loader's view of the traced process: every module
// the host reported, which one of them is the traced target, and the section
// cursor used to spot execution hopping between sections of that target.
//
// ProcessMap does no locking of its own; Tracer serializes all access.
type ProcessMap struct {
	target  string
	modules []*Module
	traced  *Module

	secKnown bool
	secIdx   int

	symCache *lru.Cache[uint64, symEntry]
}

type symEntry struct {
	module string
	fn     string
}

// NewProcessMap creates a process map that will recognize the module named
// target as the traced one. Matching is case-insensitive and tolerates full
// paths on one side and basenames on the other. An empty target makes the
// first registered module the traced one, which in practice is the main
// executable.
func NewProcessMap(target string) *ProcessMap {
	cache, _ := lru.New[uint64, symEntry](symCacheSize)
	return &ProcessMap{target: target, symCache: cache}
}

// Traced returns the traced module, or nil if it has not been seen yet.
func (p *ProcessMap) Traced() *Module {
	return p.traced
}

// AddModule registers a newly loaded module and returns the stored record.
// The first module whose name matches the target becomes the traced module;
// later same-name loads are kept as ordinary modules.
func (p *ProcessMap) AddModule(m Module) *Module {
	mod := &m
	sort.Slice(mod.Sections, func(i, j int) bool { return mod.Sections[i].RVA < mod.Sections[j].RVA })
	sort.Slice(mod.Exports, func(i, j int) bool { return mod.Exports[i].RVA < mod.Exports[j].RVA })
	p.modules = append(p.modules, mod)
	if p.traced == nil && p.matchesTarget(mod.Name) {
		p.traced = mod
		p.secKnown = false
	}
	return mod
}

// RemoveModule drops the module loaded at base. Addresses inside it simply
// stop resolving; if the traced module itself unloads, classification goes
// inert until a matching module loads again.
func (p *ProcessMap) RemoveModule(base uint64) bool {
	for i, mod := range p.modules {
		if mod.Base != base {
			continue
		}
		p.modules = append(p.modules[:i], p.modules[i+1:]...)
		if p.traced == mod {
			p.traced = nil
			p.secKnown = false
		}
		p.symCache.Purge()
		return true
	}
	return false
}

func (p *ProcessMap) matchesTarget(name string) bool {
	if p.target == "" {
		return true
	}
	if strings.EqualFold(name, p.target) {
		return true
	}
	return strings.EqualFold(utils.BaseName(name), utils.BaseName(p.target))
}

// IsMyAddress reports whether addr lies inside the traced module. It is
// false for every address, unmapped ones included, until the traced module
// has been registered.
func (p *ProcessMap) IsMyAddress(addr uint64) bool {
	return p.traced != nil && p.traced.Contains(addr)
}

// AddrToRVA rebases addr against the traced module. Only meaningful when
// IsMyAddress(addr) holds.
func (p *ProcessMap) AddrToRVA(addr uint64) uint64 {
	if p.traced == nil {
		return addr
	}
	return addr - p.traced.Base
}

// ModuleAt returns the module enclosing addr, if any. An address outside
// every registered module is unmapped from the tracer's point of view,
// i.e. candidate shellcode.
func (p *ProcessMap) ModuleAt(addr uint64) (*Module, bool) {
	for _, mod := range p.modules {
		if mod.Contains(addr) {
			return mod, true
		}
	}
	return nil, false
}

// SectionByRVA returns the traced module's section enclosing rva. RVAs in
// inter-section padding return ok=false; callers substitute a placeholder
// instead of failing.
func (p *ProcessMap) SectionByRVA(rva uint64) (Section, bool) {
	if idx := p.sectionIndex(rva); idx >= 0 {
		return p.traced.Sections[idx], true
	}
	return Section{}, false
}

func (p *ProcessMap) sectionIndex(rva uint64) int {
	if p.traced == nil {
		return -1
	}
	for i, sec := range p.traced.Sections {
		if rva >= sec.RVA && rva < sec.RVA+sec.Size {
			return i
		}
	}
	return -1
}

// CursorSectionName names the section the cursor currently sits in, "?" when
// the cursor is in padding or nothing has been observed yet.
func (p *ProcessMap) CursorSectionName() string {
	if p.traced == nil || !p.secKnown || p.secIdx < 0 {
		return "?"
	}
	return p.traced.Sections[p.secIdx].Name
}

// UpdateTracedSection moves the section cursor to the section enclosing rva
// and reports whether it differs from the section recorded before. The very
// first observation after the traced module registers always reports a
// change. Padding counts as its own pseudo-section.
func (p *ProcessMap) UpdateTracedSection(rva uint64) bool {
	idx := p.sectionIndex(rva)
	if !p.secKnown {
		p.secKnown = true
		p.secIdx = idx
		return true
	}
	if idx == p.secIdx {
		return false
	}
	p.secIdx = idx
	return true
}

// FuncAt resolves addr to its module and the nearest preceding export, the
// usual best-effort stand-in for a real symbol at import trampolines and
// API entry points. Hits are memoized since the transition hot path keeps
// resolving the same few trampolines.
func (p *ProcessMap) FuncAt(addr uint64) (module, fn string, ok bool) {
	if e, ok := p.symCache.Get(addr); ok {
		return e.module, e.fn, true
	}
	mod, found := p.ModuleAt(addr)
	if !found {
		return "", "", false
	}
	rva := addr - mod.Base
	var name string
	if i := sort.Search(len(mod.Exports), func(i int) bool { return mod.Exports[i].RVA > rva }); i > 0 {
		name = mod.Exports[i-1].Name
	}
	p.symCache.Add(addr, symEntry{module: mod.Name, fn: name})
	return mod.Name, name, true
}
