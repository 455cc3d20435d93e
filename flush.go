// Copyright (c) 2026 Timo Savola. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ehabi

import (
	"gate.computer/ehabi/internal/pan"
)

func (s *Streamer) flushPending() {
	if s.pendingOffset != 0 {
		// pendingOffset tracks final minus encoded; the opcode operand is
		// the amount to undo.
		s.asm.StackOffset(-s.pendingOffset)
		s.pendingOffset = 0
	}
}

// flushUnwindOpcodes finalizes the opcode sequence, and writes the table
// entry unless the compact inline form applies.
func (s *Streamer) flushUnwindOpcodes(noHandlerData bool) {
	if s.usedFrameReg {
		// Restoring from the frame register supersedes the pending
		// offset: encode the displacement between the last encoded stack
		// position and the frame register's recorded offset, then the
		// set-stack-pointer opcode.
		encoded := s.spOffset - s.pendingOffset
		s.asm.StackOffset(encoded - s.frameRegOffset)
		s.asm.SetStackPointer(s.info.Encoding(s.frameReg))
	} else {
		s.flushPending()
	}

	index, opcodes, err := s.asm.Finalize(s.personalityIndex)
	pan.Check(err)
	s.personalityIndex = index
	s.opcodes = opcodes

	// Personality routine 0 with no handler data: the opcodes go in the
	// index entry, and no table entry is needed.
	if noHandlerData && s.personalityIndex == PersonalityPR0 {
		return
	}

	s.switchToTableSection()

	s.tableEntry = s.back.Temp()
	s.back.Label(s.tableEntry)

	if s.personality != nil {
		s.back.Value(s.personality, placeRelative)
	}

	s.back.Bytes(s.opcodes)

	// Handler data consists of 32-bit words terminated by a zero word.
	// When the front end supplies no handler data, the terminator alone
	// must still follow the opcodes.
	if noHandlerData {
		s.back.Word(0)
	}
}
