// Copyright (c) 2026 Timo Savola. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ehabi

import (
	"strconv"

	"gate.computer/ehabi/internal/pan"
)

// PersonalityIndex selects a well-known AEABI personality routine.
type PersonalityIndex uint8

const (
	PersonalityPR0 PersonalityIndex = iota // __aeabi_unwind_cpp_pr0
	PersonalityPR1                         // __aeabi_unwind_cpp_pr1
	PersonalityPR2                         // __aeabi_unwind_cpp_pr2

	// NumPersonality means that no well-known personality routine has
	// been selected.
	NumPersonality
)

// CantUnwind is the index entry second word marking a function whose
// frame must not be unwound through.
const CantUnwind uint32 = 1

func personalityName(index PersonalityIndex) string {
	return "__aeabi_unwind_cpp_pr" + strconv.Itoa(int(index))
}

// Streamer converts the unwind directives of one function at a time into
// an index entry and, when needed, a table entry.  Directives must arrive
// in program order; a Streamer must not be used concurrently.
type Streamer struct {
	back Backend
	info RegisterInfo
	asm  OpcodeAssembler

	fnStart     Symbol
	tableEntry  Symbol
	personality Symbol

	personalityIndex PersonalityIndex
	frameReg         Reg
	frameRegOffset   int64 // (final frame pointer) - (stack pointer at frame start)
	spOffset         int64 // (final stack pointer) - (stack pointer at frame start)
	pendingOffset    int64 // (final stack pointer) - (stack pointer as encoded so far)
	usedFrameReg     bool
	cantUnwind       bool
	opcodes          []byte
}

// NewStreamer attaches a streamer to an object backend.  Frames are
// anchored in whichever section is active when StartFrame is called.
func NewStreamer(back Backend, info RegisterInfo, asm OpcodeAssembler) *Streamer {
	s := &Streamer{
		back: back,
		info: info,
		asm:  asm,
	}
	s.reset()
	return s
}

func (s *Streamer) reset() {
	s.fnStart = nil
	s.tableEntry = nil
	s.personality = nil
	s.personalityIndex = NumPersonality
	s.frameReg = s.info.StackPointer()
	s.frameRegOffset = 0
	s.spOffset = 0
	s.pendingOffset = 0
	s.usedFrameReg = false
	s.cantUnwind = false
	s.opcodes = nil
	s.asm.Reset()
}

func (s *Streamer) open() error {
	if s.fnStart == nil {
		return ErrNoFrame
	}
	return nil
}

// StartFrame opens a function frame at the current output position.
func (s *Streamer) StartFrame() error {
	if s.fnStart != nil {
		return ErrNestedFrame
	}

	s.fnStart = s.back.Temp()
	s.back.Label(s.fnStart)
	return nil
}

// SetFramePointer establishes reg as the frame base.  The base register
// must be the stack pointer, or the current frame register when re-basing
// an already established frame pointer.
func (s *Streamer) SetFramePointer(reg, base Reg, offset int64) error {
	if err := s.open(); err != nil {
		return err
	}
	if base != s.info.StackPointer() && base != s.frameReg {
		return ErrFrameBase
	}

	s.usedFrameReg = true
	s.frameReg = reg

	if base == s.info.StackPointer() {
		s.frameRegOffset = s.spOffset + offset
	} else {
		s.frameRegOffset += offset
	}
	return nil
}

// AdjustStack records that the prologue subtracts offset bytes from the
// stack pointer.  Consecutive adjustments are coalesced into a single
// opcode, deferred until the next register save or the end of the frame.
func (s *Streamer) AdjustStack(offset int64) error {
	if err := s.open(); err != nil {
		return err
	}

	s.spOffset -= offset
	s.pendingOffset -= offset
	return nil
}

// SaveRegisters records that the prologue pushes the given registers.
// Duplicates are counted once.  The save opcode must reflect the stack
// pointer at the moment of the save, so any pending adjustment is encoded
// first.
func (s *Streamer) SaveRegisters(regs []Reg, vector bool) error {
	if err := s.open(); err != nil {
		return err
	}

	limit := uint8(16)
	size := int64(4)
	if vector {
		limit = 32
		size = 8
	}

	var mask uint32
	var count int64
	for _, r := range regs {
		enc := s.info.Encoding(r)
		if enc >= limit {
			return ErrRegisterRange
		}
		if bit := uint32(1) << enc; mask&bit == 0 {
			mask |= bit
			count++
		}
	}

	// The push instruction's own stack effect.
	s.spOffset -= count * size

	s.flushPending()
	if vector {
		s.asm.VectorRegisterSave(mask)
	} else {
		s.asm.RegisterSave(mask)
	}
	return nil
}

// MarkCannotUnwind marks the function as non-unwindable.  An index entry
// is still emitted at the end of the frame.
func (s *Streamer) MarkCannotUnwind() error {
	if err := s.open(); err != nil {
		return err
	}

	s.cantUnwind = true
	return nil
}

// SetPersonality selects an explicit personality routine, forcing a table
// entry which starts with a reference to the routine.
func (s *Streamer) SetPersonality(routine Symbol) error {
	if err := s.open(); err != nil {
		return err
	}

	s.personality = routine
	s.asm.SetPersonality(routine)
	return nil
}

// SetPersonalityIndex selects a well-known personality routine.
func (s *Streamer) SetPersonalityIndex(index PersonalityIndex) error {
	if err := s.open(); err != nil {
		return err
	}
	if index >= NumPersonality {
		return ErrPersonalityIndex
	}

	s.personalityIndex = index
	return nil
}

// EmitHandlerData finalizes the unwind opcodes and writes the table entry
// now, leaving the table section active so that the caller can append
// handler data words.  The caller terminates its own data with a zero
// word.  Call at most once per frame.
func (s *Streamer) EmitHandlerData() (err error) {
	defer func() { err = pan.Error(recover()) }()

	pan.Check(s.open())
	s.flushUnwindOpcodes(false)
	return
}

// EndFrame closes the frame.  It finalizes the unwind opcodes unless
// EmitHandlerData already did, emits the index entry, switches back to
// the function's section, and resets the streamer for the next frame.
func (s *Streamer) EndFrame() (err error) {
	defer func() { err = pan.Error(recover()) }()

	if s.fnStart == nil {
		pan.Panic(ErrUnmatchedEnd)
	}

	if s.tableEntry == nil && !s.cantUnwind {
		s.flushUnwindOpcodes(true)
	}

	text := s.fnStart.Section()
	s.switchToIndexSection(text)

	// Reference the selected well-known personality routine so that the
	// linker pulls it in.
	if s.personalityIndex < NumPersonality {
		routine := s.back.Symbol(personalityName(s.personalityIndex))
		s.back.Fixup(routine, personalityFixup)
	}

	s.back.Value(s.fnStart, placeRelative)

	switch {
	case s.cantUnwind:
		s.back.Word(CantUnwind)

	case s.tableEntry != nil:
		s.back.Value(s.tableEntry, placeRelative)

	default:
		// Compact form: the opcode word substitutes for the table entry
		// reference.
		if s.personalityIndex != PersonalityPR0 || len(s.opcodes) != 4 {
			pan.Panic(ErrCompactOpcodes)
		}
		s.back.Bytes(s.opcodes)
	}

	s.back.Switch(text)
	s.reset()
	return
}
