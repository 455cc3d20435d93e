// Copyright (c) 2026 Timo Savola. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package obj

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
	"fmt"
	"io"
)

const (
	elfHeaderSize = 52
	grpComdat     = 1          // SHT_GROUP body flag
	armEABIVer5   = 0x05000000 // e_flags
)

// WriteTo writes the contents of a relocatable object file.
func (c *Context) WriteTo(w io.Writer) (n int64, err error) {
	var b bytes.Buffer
	if err := c.write(&b); err != nil {
		return 0, err
	}
	m, err := w.Write(b.Bytes())
	n = int64(m)
	return
}

type stringTable struct {
	buf []byte
	idx map[string]uint32
}

func newStringTable() *stringTable {
	return &stringTable{
		buf: []byte{0},
		idx: map[string]uint32{"": 0},
	}
}

func (t *stringTable) add(s string) uint32 {
	if i, found := t.idx[s]; found {
		return i
	}
	i := uint32(len(t.buf))
	t.idx[s] = i
	t.buf = append(t.buf, s...)
	t.buf = append(t.buf, 0)
	return i
}

func (c *Context) write(b *bytes.Buffer) error {
	// Groups in first-appearance order.
	var groups []string
	groupIndex := make(map[string]int)
	for _, s := range c.sections {
		if s.group != "" {
			if _, found := groupIndex[s.group]; !found {
				groupIndex[s.group] = 1 + len(groups)
				groups = append(groups, s.group)
			}
			// The signature symbol must exist in the symbol table.
			c.Symbol(s.group)
		}
	}

	// Section header indices: null, group sections, user sections,
	// relocation sections, symtab, strtab, shstrtab.
	index := make(map[*Section]int)
	next := 1 + len(groups)
	for _, s := range c.sections {
		index[s] = next
		next++
	}
	relIndex := make(map[*Section]int)
	for _, s := range c.sections {
		if len(s.relocs) > 0 {
			relIndex[s] = next
			next++
		}
	}
	symtabIndex := next
	strtabIndex := next + 1
	shstrtabIndex := next + 2
	shnum := next + 3

	// Symbol table: null, section symbols, then named globals.
	strtab := newStringTable()
	sectionSym := make(map[*Section]int)
	syms := []elf.Sym32{{}}
	for _, s := range c.sections {
		sectionSym[s] = len(syms)
		syms = append(syms, elf.Sym32{
			Info:  elf.ST_INFO(elf.STB_LOCAL, elf.STT_SECTION),
			Shndx: uint16(index[s]),
		})
	}
	firstGlobal := len(syms)

	globalSym := make(map[string]int)
	for _, s := range c.syms {
		if s.name == "" {
			continue
		}
		sym := elf.Sym32{
			Name: strtab.add(s.name),
			Info: elf.ST_INFO(elf.STB_GLOBAL, elf.STT_NOTYPE),
		}
		if s.section != nil {
			sym.Value = s.off
			sym.Shndx = uint16(index[s.section])
			if s.section.flags&elf.SHF_EXECINSTR != 0 {
				sym.Info = elf.ST_INFO(elf.STB_GLOBAL, elf.STT_FUNC)
			}
		}
		globalSym[s.name] = len(syms)
		syms = append(syms, sym)
	}

	// Section bodies.  Data is copied so that in-place addends don't
	// accumulate across writes.
	bodies := make([][]byte, shnum)
	shstrtab := newStringTable()
	headers := make([]elf.Section32, shnum)

	for i, group := range groups {
		var body bytes.Buffer
		binary.Write(&body, binary.LittleEndian, uint32(grpComdat))
		for _, s := range c.sections {
			if s.group == group {
				binary.Write(&body, binary.LittleEndian, uint32(index[s]))
				if ri, found := relIndex[s]; found {
					binary.Write(&body, binary.LittleEndian, uint32(ri))
				}
			}
		}
		bodies[1+i] = body.Bytes()
		headers[1+i] = elf.Section32{
			Name:      shstrtab.add(".group"),
			Type:      uint32(elf.SHT_GROUP),
			Link:      uint32(symtabIndex),
			Info:      uint32(globalSym[group]),
			Addralign: 4,
			Entsize:   4,
		}
	}

	for _, s := range c.sections {
		data := append([]byte{}, s.data...)

		var relBody bytes.Buffer
		for _, r := range s.relocs {
			symIndex, err := relocSymbol(r, sectionSym, globalSym)
			if err != nil {
				return err
			}
			if r.Sym.name == "" && r.Type != elf.R_ARM_NONE {
				// Local target: section symbol plus in-place addend.
				binary.LittleEndian.PutUint32(data[r.Off:], r.Sym.off)
			}
			binary.Write(&relBody, binary.LittleEndian, elf.Rel32{
				Off:  r.Off,
				Info: elf.R_INFO32(uint32(symIndex), uint32(r.Type)),
			})
		}

		bodies[index[s]] = data
		h := elf.Section32{
			Name:      shstrtab.add(s.name),
			Type:      uint32(s.typ),
			Flags:     uint32(s.flags),
			Addralign: 4,
		}
		if s.order != nil {
			h.Link = uint32(index[s.order])
		}
		headers[index[s]] = h

		if ri, found := relIndex[s]; found {
			flags := elf.SHF_INFO_LINK
			if s.group != "" {
				flags |= elf.SHF_GROUP
			}
			bodies[ri] = relBody.Bytes()
			headers[ri] = elf.Section32{
				Name:      shstrtab.add(".rel" + s.name),
				Type:      uint32(elf.SHT_REL),
				Flags:     uint32(flags),
				Link:      uint32(symtabIndex),
				Info:      uint32(index[s]),
				Addralign: 4,
				Entsize:   8,
			}
		}
	}

	var symBody bytes.Buffer
	binary.Write(&symBody, binary.LittleEndian, syms)
	bodies[symtabIndex] = symBody.Bytes()
	headers[symtabIndex] = elf.Section32{
		Name:      shstrtab.add(".symtab"),
		Type:      uint32(elf.SHT_SYMTAB),
		Link:      uint32(strtabIndex),
		Info:      uint32(firstGlobal),
		Addralign: 4,
		Entsize:   16,
	}

	bodies[strtabIndex] = strtab.buf
	headers[strtabIndex] = elf.Section32{
		Name:      shstrtab.add(".strtab"),
		Type:      uint32(elf.SHT_STRTAB),
		Addralign: 1,
	}

	headers[shstrtabIndex] = elf.Section32{
		Name:      shstrtab.add(".shstrtab"),
		Type:      uint32(elf.SHT_STRTAB),
		Addralign: 1,
	}
	bodies[shstrtabIndex] = shstrtab.buf

	// Layout: header, section bodies, section header table.
	offset := uint32(elfHeaderSize)
	for i := 1; i < shnum; i++ {
		offset = align4(offset)
		headers[i].Off = offset
		headers[i].Size = uint32(len(bodies[i]))
		offset += headers[i].Size
	}
	shoff := align4(offset)

	binary.Write(b, binary.LittleEndian, elf.Header32{
		Ident: [elf.EI_NIDENT]byte{
			0:              0x7f,
			1:              'E',
			2:              'L',
			3:              'F',
			elf.EI_CLASS:   byte(elf.ELFCLASS32),
			elf.EI_DATA:    byte(elf.ELFDATA2LSB),
			elf.EI_VERSION: 1,
		},
		Type:      uint16(elf.ET_REL),
		Machine:   uint16(elf.EM_ARM),
		Version:   1,
		Flags:     armEABIVer5,
		Shoff:     shoff,
		Ehsize:    elfHeaderSize,
		Shentsize: 40,
		Shnum:     uint16(shnum),
		Shstrndx:  uint16(shstrtabIndex),
	})

	for i := 1; i < shnum; i++ {
		pad4(b)
		b.Write(bodies[i])
	}
	pad4(b)
	binary.Write(b, binary.LittleEndian, headers)
	return nil
}

func relocSymbol(r Reloc, sectionSym map[*Section]int, globalSym map[string]int) (int, error) {
	if r.Sym.name != "" {
		return globalSym[r.Sym.name], nil
	}
	if r.Sym.section == nil {
		return 0, fmt.Errorf("relocation against unplaced local symbol")
	}
	return sectionSym[r.Sym.section], nil
}

func align4(n uint32) uint32 {
	return (n + 3) &^ 3
}

func pad4(b *bytes.Buffer) {
	for b.Len()%4 != 0 {
		b.WriteByte(0)
	}
}
