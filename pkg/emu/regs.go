//go:build unicorn

package emu

import (
	"fmt"
	"strings"

	uc "github.com/unicorn-engine/unicorn/bindings/go/unicorn"
)

var regNames = map[string]int{
	"eax": uc.X86_REG_EAX, "ebx": uc.X86_REG_EBX, "ecx": uc.X86_REG_ECX,
	"edx": uc.X86_REG_EDX, "esi": uc.X86_REG_ESI, "edi": uc.X86_REG_EDI,
	"ebp": uc.X86_REG_EBP, "esp": uc.X86_REG_ESP, "eip": uc.X86_REG_EIP,
	"rax": uc.X86_REG_RAX, "rbx": uc.X86_REG_RBX, "rcx": uc.X86_REG_RCX,
	"rdx": uc.X86_REG_RDX, "rsi": uc.X86_REG_RSI, "rdi": uc.X86_REG_RDI,
	"rbp": uc.X86_REG_RBP, "rsp": uc.X86_REG_RSP, "rip": uc.X86_REG_RIP,
	"r8": uc.X86_REG_R8, "r9": uc.X86_REG_R9, "r10": uc.X86_REG_R10,
	"r11": uc.X86_REG_R11, "r12": uc.X86_REG_R12, "r13": uc.X86_REG_R13,
	"r14": uc.X86_REG_R14, "r15": uc.X86_REG_R15,
}

// GetRegisterByName maps a state-file register name onto its unicorn id.
func (e *Emulation) GetRegisterByName(name string) (int, error) {
	if reg, ok := regNames[strings.ToLower(name)]; ok {
		return reg, nil
	}
	return uc.X86_REG_INVALID, fmt.Errorf("failed to find register %s", name)
}

// SetState applies an initial-state file to the emulated CPU.
func (e *Emulation) SetState(state *State) error {
	for regName, regValue := range state.Registers {
		reg, err := e.GetRegisterByName(regName)
		if err != nil {
			return fmt.Errorf("failed to get register %s: %v", regName, err)
		}
		if err := e.mu.RegWrite(reg, regValue); err != nil {
			return fmt.Errorf("failed to set %s register to %#x: %v", regName, regValue, err)
		}
	}
	if state.Stack.DataBase64 != "" {
		data, err := state.StackData()
		if err != nil {
			return err
		}
		if err := e.mu.MemWrite(state.Stack.Addr, data); err != nil {
			return fmt.Errorf("failed to write stack data at %#x: %v", state.Stack.Addr, err)
		}
	}
	return nil
}
