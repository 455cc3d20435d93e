// Copyright (c) 2026 Timo Savola. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ehabi

import (
	"debug/elf"
)

// Reg identifies an architecture register.  The numbering scheme belongs
// to the RegisterInfo implementation; the streamer only forwards values.
type Reg uint16

// Section is a handle to a named output region.
type Section interface {
	Name() string

	// Group returns the link-time group signature, or the empty string if
	// the section is not grouped.
	Group() string
}

// Symbol is a handle to a location in the output.
type Symbol interface {
	// Section containing the symbol, or nil if the symbol has not been
	// placed yet.
	Section() Section
}

// Backend is the object-output surface driven by the streamer.  Package
// obj implements it.
type Backend interface {
	// Symbol creates or looks up a named symbol.
	Symbol(name string) Symbol

	// Temp creates a new unnamed local symbol.
	Temp() Symbol

	// Label places sym at the current output position.
	Label(sym Symbol)

	// Current returns the active section.
	Current() Section

	// Switch makes sec the active section.
	Switch(sec Section)

	// Ensure creates a section or looks up an existing one.  A lookup
	// fails if the existing section's type, flags or group conflict.
	// A non-nil order records a link-order dependency on another section.
	Ensure(name string, typ elf.SectionType, flags elf.SectionFlag, group string, order Section) (Section, error)

	// Align pads the active section with zero bytes to a multiple of n.
	Align(n int)

	// Bytes appends raw bytes to the active section.
	Bytes(p []byte)

	// Word appends a little-endian 32-bit value to the active section.
	Word(v uint32)

	// Value appends a 4-byte value referring to sym with the given
	// relocation type.
	Value(sym Symbol, typ elf.R_ARM)

	// Fixup records a zero-size relocation against sym at the current
	// output position.
	Fixup(sym Symbol, typ elf.R_ARM)
}

// OpcodeAssembler encodes unwind opcodes for one frame.  Opcodes are
// accumulated in directive order; Finalize produces the byte sequence in
// unwind order.  Package opasm implements the ARM EHABI encoding.
type OpcodeAssembler interface {
	// Reset discards all accumulated state.
	Reset()

	// StackOffset accumulates an opcode adding delta bytes to the virtual
	// stack pointer during unwinding.
	StackOffset(delta int64)

	// SetStackPointer accumulates an opcode restoring the stack pointer
	// from the register with the given encoding value.
	SetStackPointer(reg uint8)

	// RegisterSave accumulates pop opcodes for the core registers in mask
	// (bit n set means rn).
	RegisterSave(mask uint32)

	// VectorRegisterSave accumulates pop opcodes for the vector registers
	// in mask (bit n set means dn).
	VectorRegisterSave(mask uint32)

	// SetPersonality selects an explicit personality routine, forcing the
	// generic entry encoding.
	SetPersonality(routine Symbol)

	// Finalize encodes the accumulated opcodes, selecting encoding rules
	// by the given personality index (NumPersonality means automatic
	// selection).  It reports the index actually in effect.
	Finalize(index PersonalityIndex) (PersonalityIndex, []byte, error)
}

// RegisterInfo maps architecture registers to the encoding values used
// inside unwind opcodes.  Package arm implements it.
type RegisterInfo interface {
	// Encoding returns the value identifying r in opcode bitmasks and
	// set-stack-pointer opcodes.
	Encoding(r Reg) uint8

	// StackPointer returns the register serving as the stack pointer.
	StackPointer() Reg
}
