// Copyright (c) 2026 Timo Savola. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package ehabi converts ARM exception-handling directives into the binary
// stack-unwinding descriptors consumed by the exception runtime.
//
// A Streamer tracks one function frame at a time.  The front end announces
// the frame with StartFrame, describes the prologue's stack effects with
// SetFramePointer, AdjustStack and SaveRegisters, optionally selects a
// personality routine, and closes the frame with EndFrame.  At that point
// the streamer writes an index entry into the unwind index region derived
// from the function's section (.ARM.exidx for .text), and a table entry
// into the matching table region (.ARM.extab) when the unwind information
// doesn't fit inline in the index entry.
//
// Byte-level opcode encoding is delegated to an OpcodeAssembler (package
// opasm provides one), object construction to a Backend (package obj
// provides one), and register numbering to a RegisterInfo (package arm
// provides one).
//
// # Errors
//
// Directives issued out of sequence, or with operands that violate the
// encoding contract, fail with a ProtocolError.  Such errors indicate a
// bug in the front end or malformed toolchain input; the frame being
// assembled is not usable afterwards.
package ehabi
