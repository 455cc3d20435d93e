// Copyright (c) 2026 Timo Savola. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package arm provides the ARM register numbering used in unwind opcodes.
package arm

import (
	"strings"

	"gate.computer/ehabi"
)

// Core registers.
const (
	R0 ehabi.Reg = iota
	R1
	R2
	R3
	R4
	R5
	R6
	R7
	R8
	R9
	R10
	R11
	R12
	R13
	R14
	R15
)

// Core register aliases.
const (
	FP = R11
	IP = R12
	SP = R13
	LR = R14
	PC = R15
)

// VFP double-precision registers d0-d31.
const D0 ehabi.Reg = 64

// Registers implements ehabi.RegisterInfo for the core and VFP-D register
// sets.
type Registers struct{}

func (Registers) StackPointer() ehabi.Reg { return SP }

// Encoding returns the value identifying r in unwind opcode bitmasks.
func (Registers) Encoding(r ehabi.Reg) uint8 {
	if r >= D0 {
		return uint8(r - D0)
	}
	return uint8(r)
}

// ByName looks up a register by its assembler name: r0-r15, d0-d31, or
// one of the aliases fp, ip, sp, lr, pc.
func ByName(name string) (ehabi.Reg, bool) {
	switch name = strings.ToLower(name); name {
	case "fp":
		return FP, true
	case "ip":
		return IP, true
	case "sp":
		return SP, true
	case "lr":
		return LR, true
	case "pc":
		return PC, true
	}

	if len(name) < 2 {
		return 0, false
	}

	n := 0
	for _, c := range name[1:] {
		if c < '0' || c > '9' {
			return 0, false
		}
		n = n*10 + int(c-'0')
		if n > 31 {
			return 0, false
		}
	}

	switch name[0] {
	case 'r':
		if n < 16 {
			return ehabi.Reg(n), true
		}
	case 'd':
		return D0 + ehabi.Reg(n), true
	}
	return 0, false
}
