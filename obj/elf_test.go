// Copyright (c) 2026 Timo Savola. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package obj_test

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
	"testing"

	"gate.computer/ehabi/obj"
)

func writeObject(t *testing.T, ctx *obj.Context) *elf.File {
	t.Helper()

	var b bytes.Buffer
	if n, err := ctx.WriteTo(&b); err != nil {
		t.Fatal(err)
	} else if n != int64(b.Len()) {
		t.Error(n, b.Len())
	}

	f, err := elf.NewFile(bytes.NewReader(b.Bytes()))
	if err != nil {
		t.Fatal(err)
	}
	return f
}

func sectionIndex(t *testing.T, f *elf.File, name string) int {
	t.Helper()

	for i, s := range f.Sections {
		if s.Name == name {
			return i
		}
	}
	t.Fatal("no section", name)
	return -1
}

func TestWriteObject(t *testing.T) {
	ctx := obj.NewContext()

	fn := ctx.Symbol("f")
	ctx.Label(fn)
	ctx.Bytes([]byte{0x00, 0x48, 0x2d, 0xe9}) // push {r11, lr}
	entry := ctx.Temp()
	ctx.Label(entry)
	ctx.Bytes([]byte{0x1e, 0xff, 0x2f, 0xe1}) // bx lr

	index, err := ctx.Ensure(".ARM.exidx", elf.SHT_LOPROC+1, elf.SHF_ALLOC|elf.SHF_LINK_ORDER, "", ctx.Section(".text"))
	if err != nil {
		t.Fatal(err)
	}
	ctx.Switch(index)
	ctx.Fixup(ctx.Symbol("__aeabi_unwind_cpp_pr0"), elf.R_ARM_NONE)
	ctx.Value(entry, elf.R_ARM_PREL31)
	ctx.Word(0x80b0b0b0)

	f := writeObject(t, ctx)

	if f.Class != elf.ELFCLASS32 || f.Data != elf.ELFDATA2LSB || f.Type != elf.ET_REL || f.Machine != elf.EM_ARM {
		t.Error(f.FileHeader)
	}

	text := f.Section(".text")
	if text == nil {
		t.Fatal("no .text")
	}
	if data, err := text.Data(); err != nil || len(data) != 8 {
		t.Error(data, err)
	}

	sec := f.Section(".ARM.exidx")
	if sec == nil {
		t.Fatal("no .ARM.exidx")
	}
	if sec.Type != elf.SHT_LOPROC+1 {
		t.Error(sec.Type)
	}
	if sec.Flags != elf.SHF_ALLOC|elf.SHF_LINK_ORDER {
		t.Error(sec.Flags)
	}
	if int(sec.Link) != sectionIndex(t, f, ".text") {
		t.Error("link-order dependency:", sec.Link)
	}

	data, err := sec.Data()
	if err != nil {
		t.Fatal(err)
	}
	if len(data) != 8 {
		t.Fatal(len(data))
	}
	// In-place addend of the section-relative reference.
	if x := binary.LittleEndian.Uint32(data[0:]); x != 4 {
		t.Error(x)
	}
	if x := binary.LittleEndian.Uint32(data[4:]); x != 0x80b0b0b0 {
		t.Errorf("%#x", x)
	}

	rel := f.Section(".rel.ARM.exidx")
	if rel == nil {
		t.Fatal("no relocation section")
	}
	if rel.Type != elf.SHT_REL || rel.Entsize != 8 {
		t.Error(rel.Type, rel.Entsize)
	}
	if int(rel.Info) != sectionIndex(t, f, ".ARM.exidx") {
		t.Error(rel.Info)
	}
	if int(rel.Link) != sectionIndex(t, f, ".symtab") {
		t.Error(rel.Link)
	}

	relData, err := rel.Data()
	if err != nil {
		t.Fatal(err)
	}
	if len(relData) != 16 {
		t.Fatal(len(relData))
	}

	syms, err := f.Symbols()
	if err != nil {
		t.Fatal(err)
	}

	var rels [2]elf.Rel32
	if err := binary.Read(bytes.NewReader(relData), binary.LittleEndian, rels[:]); err != nil {
		t.Fatal(err)
	}

	// The personality fixup refers to the undefined named symbol.
	if elf.R_TYPE32(rels[0].Info) != uint32(elf.R_ARM_NONE) {
		t.Error(rels[0])
	}
	// Symbols() drops the initial null entry.
	pr := syms[elf.R_SYM32(rels[0].Info)-1]
	if pr.Name != "__aeabi_unwind_cpp_pr0" || pr.Section != elf.SHN_UNDEF {
		t.Error(pr)
	}

	// The temporary label turned into a section symbol reference.
	if elf.R_TYPE32(rels[1].Info) != uint32(elf.R_ARM_PREL31) || rels[1].Off != 0 {
		t.Error(rels[1])
	}
	ts := syms[elf.R_SYM32(rels[1].Info)-1]
	if elf.ST_TYPE(ts.Info) != elf.STT_SECTION || int(ts.Section) != sectionIndex(t, f, ".text") {
		t.Error(ts)
	}

	// The function symbol is a defined global.
	var found bool
	for _, s := range syms {
		if s.Name == "f" {
			found = true
			if elf.ST_BIND(s.Info) != elf.STB_GLOBAL || elf.ST_TYPE(s.Info) != elf.STT_FUNC || s.Value != 0 {
				t.Error(s)
			}
			if int(s.Section) != sectionIndex(t, f, ".text") {
				t.Error(s.Section)
			}
		}
	}
	if !found {
		t.Error("f not in symbol table")
	}
}

func TestWriteGroup(t *testing.T) {
	ctx := obj.NewContext()

	code, err := ctx.Ensure(".text.f", elf.SHT_PROGBITS, elf.SHF_ALLOC|elf.SHF_EXECINSTR|elf.SHF_GROUP, "f", nil)
	if err != nil {
		t.Fatal(err)
	}
	ctx.Switch(code)
	fn := ctx.Symbol("f")
	ctx.Label(fn)
	ctx.Bytes([]byte{0x1e, 0xff, 0x2f, 0xe1})

	index, err := ctx.Ensure(".ARM.exidx.text.f", elf.SHT_LOPROC+1, elf.SHF_ALLOC|elf.SHF_LINK_ORDER|elf.SHF_GROUP, "f", code)
	if err != nil {
		t.Fatal(err)
	}
	ctx.Switch(index)
	ctx.Value(fn, elf.R_ARM_PREL31)
	ctx.Word(1)

	f := writeObject(t, ctx)

	group := f.Section(".group")
	if group == nil {
		t.Fatal("no group section")
	}
	if group.Type != elf.SHT_GROUP {
		t.Error(group.Type)
	}
	if int(group.Link) != sectionIndex(t, f, ".symtab") {
		t.Error(group.Link)
	}

	data, err := group.Data()
	if err != nil {
		t.Fatal(err)
	}

	words := make([]uint32, len(data)/4)
	if err := binary.Read(bytes.NewReader(data), binary.LittleEndian, words); err != nil {
		t.Fatal(err)
	}
	if words[0] != 1 { // GRP_COMDAT
		t.Error(words)
	}

	want := map[int]bool{
		sectionIndex(t, f, ".text.f"):               false,
		sectionIndex(t, f, ".ARM.exidx.text.f"):     false,
		sectionIndex(t, f, ".rel.ARM.exidx.text.f"): false,
	}
	for _, w := range words[1:] {
		if _, ok := want[int(w)]; !ok {
			t.Error("stray group member:", w)
		}
		want[int(w)] = true
	}
	for i, seen := range want {
		if !seen {
			t.Error("section not in group:", f.Sections[i].Name)
		}
	}

	// The group's signature symbol is the function symbol.
	syms, err := f.Symbols()
	if err != nil {
		t.Fatal(err)
	}
	sig := syms[group.Info-1]
	if sig.Name != "f" {
		t.Error(sig)
	}

	rel := f.Section(".rel.ARM.exidx.text.f")
	if rel == nil {
		t.Fatal("no relocation section")
	}
	if rel.Flags&elf.SHF_GROUP == 0 {
		t.Error(rel.Flags)
	}
}
