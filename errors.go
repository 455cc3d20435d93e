// Copyright (c) 2026 Timo Savola. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ehabi

// ProtocolError indicates that the front end violated the directive
// sequencing or operand contract.  The error is not recoverable: the
// frame being assembled must be discarded.
type ProtocolError interface {
	error
	ProtocolError() bool
}

type protocolError string

func (e protocolError) Error() string       { return string(e) }
func (e protocolError) PublicError() string { return string(e) }
func (e protocolError) ProtocolError() bool { return true }

var (
	// ErrNestedFrame is returned by StartFrame while a frame is open.
	ErrNestedFrame error = protocolError("frame start directive inside an open frame")

	// ErrUnmatchedEnd is returned by EndFrame without an open frame.
	ErrUnmatchedEnd error = protocolError("frame end directive without an open frame")

	// ErrNoFrame is returned by per-frame directives without an open
	// frame.
	ErrNoFrame error = protocolError("unwind directive without an open frame")

	// ErrFrameBase is returned by SetFramePointer when the base register
	// is neither the stack pointer nor the current frame register.
	ErrFrameBase error = protocolError("frame pointer base is not the stack pointer or the current frame register")

	// ErrRegisterRange is returned by SaveRegisters for a register whose
	// encoding doesn't fit in the save opcode bitmask.
	ErrRegisterRange error = protocolError("register encoding out of range")

	// ErrPersonalityIndex is returned by SetPersonalityIndex for an index
	// with no well-known personality routine.
	ErrPersonalityIndex error = protocolError("personality routine index out of range")

	// ErrCompactOpcodes indicates that personality routine 0 was selected
	// but the finalized opcode sequence is not exactly one word.
	ErrCompactOpcodes error = protocolError("compact unwind entry requires a 4-byte opcode sequence")
)
