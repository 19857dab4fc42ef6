package tracer

import "testing"

func testTracedModule() Module {
	return Module{
		Name: `C:\samples\sample.exe`,
		Base: 0x400000,
		Size: 0x10000,
		Sections: []Section{
			{Name: ".text", RVA: 0x1000, Size: 0x1000},
			{Name: ".data", RVA: 0x2000, Size: 0x800},
			{Name: ".rsrc", RVA: 0x3000, Size: 0x1000},
		},
	}
}

func testForeignModule() Module {
	return Module{
		Name: "kernel32.dll",
		Base: 0x70000000,
		Size: 0x20000,
		Exports: []Export{
			{Name: "Sleep", RVA: 0x1000},
			{Name: "VirtualAlloc", RVA: 0x2000},
		},
	}
}

func TestIsMyAddress(t *testing.T) {
	p := NewProcessMap("sample.exe")
	p.AddModule(testTracedModule())
	p.AddModule(testForeignModule())

	tests := []struct {
		name string
		addr uint64
		want bool
	}{
		{name: "below base", addr: 0x3fffff, want: false},
		{name: "base", addr: 0x400000, want: true},
		{name: "inside", addr: 0x401234, want: true},
		{name: "last byte", addr: 0x40ffff, want: true},
		{name: "one past end", addr: 0x410000, want: false},
		{name: "foreign module", addr: 0x70001000, want: false},
		{name: "unmapped", addr: 0x900000, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := p.IsMyAddress(tt.addr); got != tt.want {
				t.Errorf("IsMyAddress(%#x) = %v, want %v", tt.addr, got, tt.want)
			}
		})
	}

	if rva := p.AddrToRVA(0x401234); rva != 0x1234 {
		t.Errorf("AddrToRVA(0x401234) = %#x, want 0x1234", rva)
	}
}

func TestTargetMatching(t *testing.T) {
	tests := []struct {
		name   string
		target string
		module string
		want   bool
	}{
		{name: "exact", target: "sample.exe", module: "sample.exe", want: true},
		{name: "case insensitive", target: "SAMPLE.EXE", module: "sample.exe", want: true},
		{name: "path vs basename", target: "sample.exe", module: `C:\samples\sample.exe`, want: true},
		{name: "basename vs path", target: `C:\samples\sample.exe`, module: "sample.exe", want: true},
		{name: "different", target: "sample.exe", module: "other.exe", want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewProcessMap(tt.target)
			p.AddModule(Module{Name: tt.module, Base: 0x400000, Size: 0x1000})
			if got := p.Traced() != nil; got != tt.want {
				t.Errorf("target %q vs module %q: traced=%v, want %v", tt.target, tt.module, got, tt.want)
			}
		})
	}
}

func TestFirstMatchWins(t *testing.T) {
	p := NewProcessMap("sample.exe")
	p.AddModule(Module{Name: "sample.exe", Base: 0x400000, Size: 0x1000})
	p.AddModule(Module{Name: "sample.exe", Base: 0x800000, Size: 0x1000})
	if p.Traced().Base != 0x400000 {
		t.Errorf("second same-name module replaced the traced module")
	}
}

func TestSectionByRVA(t *testing.T) {
	p := NewProcessMap("sample.exe")
	p.AddModule(testTracedModule())

	if sec, ok := p.SectionByRVA(0x1800); !ok || sec.Name != ".text" {
		t.Errorf("SectionByRVA(0x1800) = %v, %v; want .text", sec, ok)
	}
	// 0x2800..0x2fff is inter-section padding
	if _, ok := p.SectionByRVA(0x2900); ok {
		t.Error("SectionByRVA in padding should not resolve")
	}
	if _, ok := p.SectionByRVA(0x0); ok {
		t.Error("SectionByRVA in headers should not resolve")
	}
}

func TestUpdateTracedSection(t *testing.T) {
	p := NewProcessMap("sample.exe")
	p.AddModule(testTracedModule())

	if !p.UpdateTracedSection(0x1100) {
		t.Error("first observed RVA must report a section change")
	}
	if p.UpdateTracedSection(0x1f00) {
		t.Error("same section must not report a change")
	}
	if !p.UpdateTracedSection(0x2100) {
		t.Error("different section must report a change")
	}
	if !p.UpdateTracedSection(0x2900) {
		t.Error("moving into padding must report a change")
	}
	if p.UpdateTracedSection(0x2a00) {
		t.Error("staying in padding must not report a change")
	}
	if got := p.CursorSectionName(); got != "?" {
		t.Errorf("CursorSectionName in padding = %q, want ?", got)
	}
}

func TestFuncAt(t *testing.T) {
	p := NewProcessMap("sample.exe")
	p.AddModule(testTracedModule())
	p.AddModule(testForeignModule())

	mod, fn, ok := p.FuncAt(0x70001020)
	if !ok || mod != "kernel32.dll" || fn != "Sleep" {
		t.Errorf("FuncAt(0x70001020) = %q, %q, %v; want kernel32.dll, Sleep", mod, fn, ok)
	}
	// before the first export: module resolves, name does not
	mod, fn, ok = p.FuncAt(0x70000010)
	if !ok || mod != "kernel32.dll" || fn != "" {
		t.Errorf("FuncAt(0x70000010) = %q, %q, %v; want kernel32.dll with empty name", mod, fn, ok)
	}
	if _, _, ok := p.FuncAt(0x900000); ok {
		t.Error("FuncAt on unmapped memory should not resolve")
	}
	// cached lookup answers the same
	mod, fn, ok = p.FuncAt(0x70001020)
	if !ok || fn != "Sleep" {
		t.Errorf("cached FuncAt = %q, %q, %v; want Sleep", mod, fn, ok)
	}
}

func TestRemoveModule(t *testing.T) {
	p := NewProcessMap("sample.exe")
	p.AddModule(testTracedModule())
	p.AddModule(testForeignModule())

	if !p.RemoveModule(0x70000000) {
		t.Fatal("RemoveModule on a registered base should succeed")
	}
	if _, ok := p.ModuleAt(0x70001000); ok {
		t.Error("unloaded module still resolves")
	}
	if p.RemoveModule(0x70000000) {
		t.Error("double unload should report false")
	}
	// the traced module unloading makes classification inert
	p.RemoveModule(0x400000)
	if p.IsMyAddress(0x401000) {
		t.Error("IsMyAddress true after traced module unloaded")
	}
}
