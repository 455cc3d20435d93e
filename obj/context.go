// Copyright (c) 2026 Timo Savola. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package obj accumulates sections, symbols and relocations, and writes
// them out as a relocatable ELF object for 32-bit little-endian ARM.
package obj

import (
	"debug/elf"
	"encoding/binary"
	"fmt"

	"gate.computer/ehabi"
)

// Reloc is a pending relocation within a section.
type Reloc struct {
	Off  uint32
	Sym  *Symbol
	Type elf.R_ARM
}

// Section is a named region of output bytes with relocations.
type Section struct {
	name  string
	typ   elf.SectionType
	flags elf.SectionFlag
	group string
	order *Section // link-order dependency

	data   []byte
	relocs []Reloc
}

func (s *Section) Name() string           { return s.name }
func (s *Section) Group() string          { return s.group }
func (s *Section) Type() elf.SectionType  { return s.typ }
func (s *Section) Flags() elf.SectionFlag { return s.flags }

// Data returns the section contents accumulated so far.  Words emitted
// via relocated values read as zero until the object is written.
func (s *Section) Data() []byte { return s.data }

// Relocs returns the section's pending relocations in emission order.
func (s *Section) Relocs() []Reloc { return s.relocs }

// Symbol is a location in a section.  A named symbol which is never
// placed with Label becomes an undefined reference in the written object.
type Symbol struct {
	name    string // empty for temporary symbols
	section *Section
	off     uint32
}

func (s *Symbol) Name() string   { return s.name }
func (s *Symbol) Offset() uint32 { return s.off }

func (s *Symbol) Section() ehabi.Section {
	if s.section == nil {
		return nil
	}
	return s.section
}

// Context owns the sections and symbols of one object file.  It
// implements ehabi.Backend.
type Context struct {
	sections []*Section
	byName   map[string]*Section
	syms     []*Symbol
	symName  map[string]*Symbol
	cur      *Section
}

// NewContext creates a context with a default .text section active.
func NewContext() *Context {
	c := &Context{
		byName:  make(map[string]*Section),
		symName: make(map[string]*Symbol),
	}

	text, _ := c.Ensure(".text", elf.SHT_PROGBITS, elf.SHF_ALLOC|elf.SHF_EXECINSTR, "", nil)
	c.cur = text.(*Section)
	return c
}

// Symbol creates or looks up a named symbol.
func (c *Context) Symbol(name string) ehabi.Symbol {
	if s, found := c.symName[name]; found {
		return s
	}

	s := &Symbol{name: name}
	c.symName[name] = s
	c.syms = append(c.syms, s)
	return s
}

// Temp creates a new unnamed local symbol.
func (c *Context) Temp() ehabi.Symbol {
	s := new(Symbol)
	c.syms = append(c.syms, s)
	return s
}

// Label places sym at the current output position.
func (c *Context) Label(sym ehabi.Symbol) {
	s := sym.(*Symbol)
	s.section = c.cur
	s.off = uint32(len(c.cur.data))
}

func (c *Context) Current() ehabi.Section { return c.cur }

func (c *Context) Switch(sec ehabi.Section) { c.cur = sec.(*Section) }

// Ensure creates a section or looks one up.  An existing section must
// have been created with the same type, flags and group.
func (c *Context) Ensure(name string, typ elf.SectionType, flags elf.SectionFlag, group string, order ehabi.Section) (ehabi.Section, error) {
	if s, found := c.byName[name]; found {
		if s.typ != typ || s.flags != flags || s.group != group {
			return nil, fmt.Errorf("section %s redefined with conflicting type, flags or group", name)
		}
		return s, nil
	}

	s := &Section{
		name:  name,
		typ:   typ,
		flags: flags,
		group: group,
	}
	if order != nil {
		s.order = order.(*Section)
	}

	c.byName[name] = s
	c.sections = append(c.sections, s)
	return s, nil
}

// Section looks up a section by name, returning nil if it was never
// created.
func (c *Context) Section(name string) *Section {
	return c.byName[name]
}

// Align pads the current section with zero bytes to a multiple of n.
func (c *Context) Align(n int) {
	for len(c.cur.data)%n != 0 {
		c.cur.data = append(c.cur.data, 0)
	}
}

// Bytes appends raw bytes to the current section.
func (c *Context) Bytes(p []byte) {
	c.cur.data = append(c.cur.data, p...)
}

// Word appends a little-endian 32-bit value to the current section.
func (c *Context) Word(v uint32) {
	c.cur.data = binary.LittleEndian.AppendUint32(c.cur.data, v)
}

// Value appends a 4-byte value referring to sym.  The field is filled in
// when the object is written: locally placed symbols become section
// symbol plus in-place addend.
func (c *Context) Value(sym ehabi.Symbol, typ elf.R_ARM) {
	s := sym.(*Symbol)
	c.cur.relocs = append(c.cur.relocs, Reloc{uint32(len(c.cur.data)), s, typ})
	c.Word(0)
}

// Fixup records a zero-size relocation against sym at the current output
// position.
func (c *Context) Fixup(sym ehabi.Symbol, typ elf.R_ARM) {
	s := sym.(*Symbol)
	c.cur.relocs = append(c.cur.relocs, Reloc{uint32(len(c.cur.data)), s, typ})
}
