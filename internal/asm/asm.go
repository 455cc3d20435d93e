// Copyright (c) 2026 Timo Savola. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package asm drives the unwind streamer with textual assembler
// directives.
package asm

import (
	"bufio"
	"debug/elf"
	"io"
	"strconv"
	"strings"

	"golang.org/x/xerrors"

	"gate.computer/ehabi"
	"gate.computer/ehabi/arm"
	"gate.computer/ehabi/obj"
	"gate.computer/ehabi/opasm"
)

// Assemble reads directive lines from r and returns the populated object
// context.  Errors are annotated with the 1-based line number.
func Assemble(r io.Reader) (*obj.Context, error) {
	ctx := obj.NewContext()
	s := ehabi.NewStreamer(ctx, arm.Registers{}, opasm.New())

	scan := bufio.NewScanner(r)
	line := 0
	for scan.Scan() {
		line++
		if err := assembleLine(ctx, s, scan.Text()); err != nil {
			return nil, xerrors.Errorf("line %d: %w", line, err)
		}
	}
	if err := scan.Err(); err != nil {
		return nil, err
	}
	return ctx, nil
}

func assembleLine(ctx *obj.Context, s *ehabi.Streamer, text string) error {
	if i := strings.IndexByte(text, '@'); i >= 0 {
		text = text[:i]
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	if name, rest, found := cutLabel(text); found {
		ctx.Label(ctx.Symbol(name))
		text = strings.TrimSpace(rest)
		if text == "" {
			return nil
		}
	}

	directive, args, _ := strings.Cut(text, " ")
	args = strings.TrimSpace(args)

	switch directive {
	case ".text":
		sec, err := ctx.Ensure(".text", elf.SHT_PROGBITS, elf.SHF_ALLOC|elf.SHF_EXECINSTR, "", nil)
		if err != nil {
			return err
		}
		ctx.Switch(sec)
		return nil

	case ".section":
		return section(ctx, args)

	case ".global", ".globl", ".type", ".fpu", ".syntax", ".arch", ".cpu":
		// Symbols are global and typed by section here; the rest select
		// processor features which don't affect unwind output.
		return nil

	case ".align", ".balign":
		n, err := strconv.Atoi(args)
		if err != nil {
			return xerrors.Errorf("%s: %w", directive, err)
		}
		if directive == ".align" {
			if n < 0 || n >= 32 {
				return xerrors.Errorf("%s: alignment exponent out of range: %d", directive, n)
			}
			n = 1 << n
		}
		if n <= 0 {
			return xerrors.Errorf("%s: alignment must be positive: %d", directive, n)
		}
		ctx.Align(n)
		return nil

	case ".word", ".long":
		for _, field := range strings.Split(args, ",") {
			v, err := strconv.ParseUint(strings.TrimSpace(field), 0, 32)
			if err != nil {
				return xerrors.Errorf("%s: %w", directive, err)
			}
			ctx.Word(uint32(v))
		}
		return nil

	case ".fnstart":
		return s.StartFrame()

	case ".fnend":
		return s.EndFrame()

	case ".cantunwind":
		return s.MarkCannotUnwind()

	case ".handlerdata":
		return s.EmitHandlerData()

	case ".personality":
		if args == "" {
			return xerrors.New(".personality: routine name missing")
		}
		return s.SetPersonality(ctx.Symbol(args))

	case ".personalityindex":
		n, err := strconv.ParseUint(args, 0, 8)
		if err != nil {
			return xerrors.Errorf(".personalityindex: %w", err)
		}
		return s.SetPersonalityIndex(ehabi.PersonalityIndex(n))

	case ".setfp":
		return setFP(s, args)

	case ".pad":
		offset, err := immediate(args)
		if err != nil {
			return xerrors.Errorf(".pad: %w", err)
		}
		return s.AdjustStack(offset)

	case ".save":
		regs, err := registerList(args)
		if err != nil {
			return xerrors.Errorf(".save: %w", err)
		}
		return s.SaveRegisters(regs, false)

	case ".vsave":
		regs, err := registerList(args)
		if err != nil {
			return xerrors.Errorf(".vsave: %w", err)
		}
		return s.SaveRegisters(regs, true)
	}

	return xerrors.Errorf("unknown directive: %s", directive)
}

func cutLabel(text string) (name, rest string, found bool) {
	i := strings.IndexByte(text, ':')
	if i <= 0 {
		return "", text, false
	}
	name = text[:i]
	for _, c := range name {
		if !labelChar(c) {
			return "", text, false
		}
	}
	return name, text[i+1:], true
}

func labelChar(c rune) bool {
	switch {
	case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		return true
	case c == '_', c == '.', c == '$':
		return true
	}
	return false
}

// section handles ".section name" with optional gas-style flags, type
// and comdat group: .section .text.f,"axG",%progbits,f,comdat
func section(ctx *obj.Context, args string) error {
	if args == "" {
		return xerrors.New(".section: name missing")
	}

	fields := strings.Split(args, ",")
	for i := range fields {
		fields[i] = strings.TrimSpace(fields[i])
	}

	name := fields[0]
	var group string
	for i, field := range fields {
		if field == "comdat" && i > 0 {
			group = strings.Trim(fields[i-1], `"`)
		}
	}

	flags := elf.SHF_ALLOC | elf.SHF_EXECINSTR
	if group != "" {
		flags |= elf.SHF_GROUP
	}

	sec, err := ctx.Ensure(name, elf.SHT_PROGBITS, flags, group, nil)
	if err != nil {
		return err
	}
	ctx.Switch(sec)
	return nil
}

func setFP(s *ehabi.Streamer, args string) error {
	fields := strings.Split(args, ",")
	if len(fields) < 2 || len(fields) > 3 {
		return xerrors.New(".setfp: expected frame register, base register and optional offset")
	}

	reg, found := arm.ByName(strings.TrimSpace(fields[0]))
	if !found {
		return xerrors.Errorf(".setfp: unknown register: %s", fields[0])
	}
	base, found := arm.ByName(strings.TrimSpace(fields[1]))
	if !found {
		return xerrors.Errorf(".setfp: unknown register: %s", fields[1])
	}

	var offset int64
	if len(fields) == 3 {
		var err error
		if offset, err = immediate(strings.TrimSpace(fields[2])); err != nil {
			return xerrors.Errorf(".setfp: %w", err)
		}
	}

	return s.SetFramePointer(reg, base, offset)
}

func immediate(s string) (int64, error) {
	s = strings.TrimPrefix(s, "#")
	return strconv.ParseInt(s, 0, 64)
}

// registerList parses "{r4, r5, lr}" with "d8-d10" style ranges.
func registerList(s string) ([]ehabi.Reg, error) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "{") || !strings.HasSuffix(s, "}") {
		return nil, xerrors.New("register list must be enclosed in braces")
	}

	var regs []ehabi.Reg
	for _, field := range strings.Split(s[1:len(s)-1], ",") {
		field = strings.TrimSpace(field)
		if field == "" {
			return nil, xerrors.New("empty register list entry")
		}

		if first, last, found := strings.Cut(field, "-"); found {
			lo, ok := arm.ByName(strings.TrimSpace(first))
			if !ok {
				return nil, xerrors.Errorf("unknown register: %s", first)
			}
			hi, ok := arm.ByName(strings.TrimSpace(last))
			if !ok {
				return nil, xerrors.Errorf("unknown register: %s", last)
			}
			if hi < lo {
				return nil, xerrors.Errorf("backwards register range: %s", field)
			}
			for r := lo; r <= hi; r++ {
				regs = append(regs, r)
			}
			continue
		}

		r, ok := arm.ByName(field)
		if !ok {
			return nil, xerrors.Errorf("unknown register: %s", field)
		}
		regs = append(regs, r)
	}
	return regs, nil
}
