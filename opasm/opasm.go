// Copyright (c) 2026 Timo Savola. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package opasm encodes ARM exception-handling unwind opcodes.
package opasm

import (
	"math/bits"

	"gate.computer/ehabi"
)

const (
	opIncVSP     = 0x00 // vsp = vsp + (x << 2) + 4
	opDecVSP     = 0x40 // vsp = vsp - (x << 2) - 4
	opSetVSP     = 0x90 // vsp = r[x]
	opPopRangeR4 = 0xa0 // pop r4-r[4+x]
	opPopWithLR  = 0xa8 // pop r4-r[4+x], r14
	opFinish     = 0xb0
	opIncVSPBig  = 0xb2 // vsp = vsp + 0x204 + (uleb128 << 2)
	opPopVFPHigh = 0xc8 // pop d[16+x]-d[16+x+y]
	opPopVFP     = 0xc9 // pop d[x]-d[x+y]

	opPopMaskR4 = 0x8000 // pop r4-r15 under 12-bit mask
	opPopMaskR0 = 0xb100 // pop r0-r3 under 4-bit mask
)

// First byte of an entry selecting a well-known personality routine.
const compactPrefix = 0x80

// Assembler accumulates the unwind opcodes of one frame and finalizes
// them into the byte sequence stored in index or table entries.  It
// implements ehabi.OpcodeAssembler.
//
// Opcodes arrive in prologue order, which is the reverse of the order in
// which the unwinder must execute them; Finalize replays the accumulated
// opcodes backwards.
type Assembler struct {
	ops    []byte
	begins []int // start of each opcode in ops
	person bool
}

func New() *Assembler { return new(Assembler) }

func (a *Assembler) Reset() {
	a.ops = a.ops[:0]
	a.begins = a.begins[:0]
	a.person = false
}

func (a *Assembler) SetPersonality(routine ehabi.Symbol) {
	a.person = routine != nil
}

func (a *Assembler) op(b ...byte) {
	a.begins = append(a.begins, len(a.ops))
	a.ops = append(a.ops, b...)
}

// StackOffset encodes adding delta bytes to the virtual stack pointer.
// delta must be a multiple of 4.
func (a *Assembler) StackOffset(delta int64) {
	switch {
	case delta > 0x200:
		var buf [16]byte
		buf[0] = opIncVSPBig
		n := putUleb128(buf[1:], uint64((delta-0x204)>>2))
		a.op(buf[:1+n]...)

	case delta > 0x100:
		a.op(opIncVSP|0x3f, opIncVSP|byte(((delta-0x100)>>2)-1))

	case delta > 0:
		a.op(opIncVSP | byte((delta>>2)-1))

	case delta < 0:
		for delta < -0x100 {
			a.op(opDecVSP | 0x3f)
			delta += 0x100
		}
		a.op(opDecVSP | byte(((-delta)>>2)-1))
	}
}

// SetStackPointer encodes restoring the stack pointer from the register
// with the given encoding value.
func (a *Assembler) SetStackPointer(reg uint8) {
	a.op(opSetVSP | reg)
}

// RegisterSave encodes popping the core registers in mask (bit n set
// means rn).  A dense run starting at r4, optionally joined by r14, gets
// the one-byte range form; leftovers get the r4-r15 and r0-r3 mask forms.
func (a *Assembler) RegisterSave(mask uint32) {
	if mask == 0 {
		return
	}

	if mask&(1<<4) != 0 {
		run := trailingOnes((mask & 0xff0) >> 5)
		dense := mask & 0xff0 & ^(uint32(0xffffffe0) << run)

		switch rest := mask & 0xfff0 &^ dense; rest {
		case 0:
			a.op(opPopRangeR4 | byte(run))
			mask &= 0x000f
		case 1 << 14:
			a.op(opPopWithLR | byte(run))
			mask &= 0x000f
		}
	}

	if m := mask & 0xfff0; m != 0 {
		a.op16(opPopMaskR4 | uint16(m>>4))
	}
	if m := mask & 0x000f; m != 0 {
		a.op16(opPopMaskR0 | uint16(m))
	}
}

// VectorRegisterSave encodes popping the vector registers in mask (bit n
// set means dn).  Each dense run gets one opcode; d0-d15 and d16-d31 use
// distinct forms.
func (a *Assembler) VectorRegisterSave(mask uint32) {
	for _, regs := range [2]uint32{mask & 0xffff0000, mask & 0x0000ffff} {
		for regs != 0 {
			msb := 32 - bits.LeadingZeros32(regs)
			length := leadingOnes(regs << (32 - msb))
			lsb := msb - length

			op := byte(opPopVFP)
			if lsb >= 16 {
				op = opPopVFPHigh
			}
			a.op(op, byte(((lsb%16)<<4)|(length-1)))

			// Clear the run (and the already-zero bits above it).
			regs &= ^(^uint32(0) << lsb)
		}
	}
}

// Finalize encodes the accumulated opcodes, selecting the entry format by
// the personality index: 0 is the one-word compact form, 1 and 2 are
// length-prefixed, and an explicit personality routine uses the generic
// length-prefixed form without an index.  NumPersonality selects
// automatically between 0 and 1.  The sequence is padded to a multiple of
// 4 bytes with finish opcodes.
func (a *Assembler) Finalize(index ehabi.PersonalityIndex) (ehabi.PersonalityIndex, []byte, error) {
	size := len(a.ops)
	var buf []byte

	switch {
	case a.person:
		// The explicit routine reference precedes this word in the table
		// entry; only the word count and the opcodes are encoded here.
		total := round4(size + 1)
		buf = make([]byte, 1, total)
		buf[0] = byte(total/4 - 1)
		index = ehabi.NumPersonality

	case index == ehabi.PersonalityPR0:
		if size > 3 {
			return index, nil, ehabi.ErrCompactOpcodes
		}
		buf = make([]byte, 1, 4)
		buf[0] = compactPrefix

	case index < ehabi.NumPersonality:
		total := round4(size + 2)
		buf = make([]byte, 2, total)
		buf[0] = compactPrefix | byte(index)
		buf[1] = byte(total/4 - 1)

	case size <= 3:
		index = ehabi.PersonalityPR0
		buf = make([]byte, 1, 4)
		buf[0] = compactPrefix

	default:
		index = ehabi.PersonalityPR1
		total := round4(size + 2)
		buf = make([]byte, 2, total)
		buf[0] = compactPrefix | byte(index)
		buf[1] = byte(total/4 - 1)
	}

	// Unwind order: most recently accumulated opcode first.
	for i := len(a.begins) - 1; i >= 0; i-- {
		end := size
		if i+1 < len(a.begins) {
			end = a.begins[i+1]
		}
		buf = append(buf, a.ops[a.begins[i]:end]...)
	}

	for len(buf)%4 != 0 {
		buf = append(buf, opFinish)
	}
	return index, buf, nil
}

func (a *Assembler) op16(v uint16) {
	a.op(byte(v>>8), byte(v))
}

func trailingOnes(x uint32) uint32 {
	return uint32(bits.TrailingZeros32(^x))
}

func leadingOnes(x uint32) int {
	return bits.LeadingZeros32(^x)
}

func putUleb128(b []byte, x uint64) int {
	n := 0
	for {
		c := byte(x & 0x7f)
		x >>= 7
		if x != 0 {
			c |= 0x80
		}
		b[n] = c
		n++
		if x == 0 {
			return n
		}
	}
}

func round4(n int) int {
	return (n + 3) &^ 3
}
