// Copyright (c) 2026 Timo Savola. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ehabi

import (
	"debug/elf"

	"gate.computer/ehabi/internal/pan"
)

const (
	indexSectionPrefix = ".ARM.exidx"
	tableSectionPrefix = ".ARM.extab"

	defaultTextSection = ".text"

	// SHT_ARM_EXIDX is not among the generic section types.
	shtARMExidx = elf.SHT_LOPROC + 1
)

// Unwind cross-references are place-relative so that the emitted regions
// are position-independent: 31-bit self-relative words for function,
// table entry and personality references, and a zero-size no-op fixup
// for personality routines referenced by well-known index.
const (
	placeRelative    = elf.R_ARM_PREL31
	personalityFixup = elf.R_ARM_NONE
)

func (s *Streamer) switchToIndexSection(text Section) {
	// The index must be ordered like the code it describes.
	s.switchToUnwindSection(indexSectionPrefix, shtARMExidx, elf.SHF_ALLOC|elf.SHF_LINK_ORDER, text, text)
}

func (s *Streamer) switchToTableSection() {
	s.switchToUnwindSection(tableSectionPrefix, elf.SHT_PROGBITS, elf.SHF_ALLOC, s.fnStart.Section(), nil)
}

// switchToUnwindSection derives the unwind region matching the function's
// own section and makes it the active section.  Functions outside the
// default text section get dedicated regions, so that linker section
// garbage collection keeps unwind information and code together.  A
// grouped code section puts its unwind regions in the same group.
func (s *Streamer) switchToUnwindSection(prefix string, typ elf.SectionType, flags elf.SectionFlag, text, order Section) {
	name := prefix
	if text.Name() != defaultTextSection {
		name += text.Name()
	}

	group := text.Group()
	if group != "" {
		flags |= elf.SHF_GROUP
	}

	s.back.Switch(pan.Must(s.back.Ensure(name, typ, flags, group, order)))
	s.back.Align(4)
}
