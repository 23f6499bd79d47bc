// Package emit writes the final linked image: ELF header, program headers,
// section contents, symbol table, string tables, then section headers, in
// that fixed order (spec.md §4.7). Grounded on the teacher's
// WriteCompleteDynamicELF (elf_complete.go), generalized from its
// hard-coded fixed section list (interp/dynsym/dynstr/hash/rela/plt/
// _start/text/dynamic/got/rodata) to an arbitrary SECTIONS-driven layout
// assembled by internal/layout.
package emit

import (
	"fmt"

	"github.com/rb1005/eld/internal/elf"
)

// Section is one output section's final, fully-addressed content, ready to
// be written verbatim.
type Section struct {
	Name    string
	Data    []byte
	Addr    uint64
	Offset  uint64
	Type    uint32
	Flags   uint64
	Link    uint32
	Info    uint32
	Align   uint64
	EntSize uint64

	// NoBits marks an SHT_NOBITS section (e.g. .bss): Size is its memory
	// extent and Data must be empty -- it occupies address space but
	// contributes no file bytes.
	NoBits bool
	Size   uint64
}

// Segment mirrors internal/layout.Segment's fields the writer needs,
// without importing internal/layout (emit stays a leaf package).
type Segment struct {
	Type, Flags  uint32
	Offset       uint64
	VAddr, PAddr uint64
	FileSz, MemSz, Align uint64
}

// Image is everything WriteImage needs to serialize one output file.
type Image struct {
	Class64 bool
	Machine uint16
	Type    uint16 // ET_EXEC / ET_DYN
	Entry   uint64

	Segments []Segment
	Sections []Section // in final file order, NOT including the null section or .shstrtab

	SymtabData  []byte
	StrtabData  []byte
	ShstrtabData []byte

	PhOff, ShOff uint64 // must already be assigned by the caller's layout pass
}

// WriteImage serializes img into w. Every byte range (phoff, section
// offsets, shoff) must already be final; WriteImage performs no layout
// decisions of its own.
func WriteImage(w elf.Writer, img *Image) error {
	if !img.Class64 {
		return fmt.Errorf("emit: only ELF64 targets are supported")
	}

	hdr := elf.Header64{
		Type: img.Type, Machine: img.Machine, Version: elf.EVCurrent,
		Entry: img.Entry, PhOff: img.PhOff, ShOff: img.ShOff,
		EhSize: elf.EhdrSize64, PhEntSize: elf.PhdrSize64, PhNum: uint16(len(img.Segments)),
		ShEntSize: elf.ShdrSize64, ShNum: uint16(len(img.Sections) + 2), // +1 null +1 shstrtab
		ShStrNdx:     uint16(len(img.Sections) + 1),
		LittleEndian: true, Class64: true,
	}
	if err := writeHeader(w, hdr); err != nil {
		return err
	}

	for i, seg := range img.Segments {
		writePhdr(w, img.PhOff+uint64(i)*elf.PhdrSize64, seg)
	}

	for _, s := range img.Sections {
		if s.NoBits || len(s.Data) == 0 {
			continue
		}
		if _, err := w.WriteAt(s.Data, s.Offset); err != nil {
			return fmt.Errorf("emit: writing section %s: %w", s.Name, err)
		}
	}

	shstrtabOff := img.ShOff - uint64(len(img.ShstrtabData)) // caller places .shstrtab content just before shoff
	if len(img.ShstrtabData) > 0 {
		if _, err := w.WriteAt(img.ShstrtabData, shstrtabOff); err != nil {
			return err
		}
	}

	nameOff := make([]uint32, len(img.Sections))
	var off uint32 = 1 // index 0 is the empty string
	for i, s := range img.Sections {
		nameOff[i] = off
		off += uint32(len(s.Name)) + 1
	}

	shoff := img.ShOff
	writeShdr(w, shoff, elf.Shdr64{}) // SHN_UNDEF
	shoff += elf.ShdrSize64
	for i, s := range img.Sections {
		size := uint64(len(s.Data))
		if s.NoBits {
			size = s.Size
		}
		sh := elf.Shdr64{
			NameOff: nameOff[i], Type: s.Type, Flags: s.Flags, Addr: s.Addr,
			Offset: s.Offset, Size: size, Link: s.Link, Info: s.Info,
			AddrAlign: s.Align, EntSize: s.EntSize,
		}
		writeShdr(w, shoff, sh)
		shoff += elf.ShdrSize64
	}
	writeShdr(w, shoff, elf.Shdr64{
		NameOff: off, Type: elf.SHTStrtab, Offset: shstrtabOff, Size: uint64(len(img.ShstrtabData)), AddrAlign: 1,
	})
	return nil
}

func writeHeader(w elf.Writer, h elf.Header64) error {
	buf := make([]byte, elf.EhdrSize64)
	buf[0], buf[1], buf[2], buf[3] = elf.EIMag0, elf.EIMag1, elf.EIMag2, elf.EIMag3
	buf[4] = elf.ELFClass64
	buf[5] = elf.ELFData2LSB
	buf[6] = elf.EVCurrent
	elf.PutLE(buf[16:18], uint64(h.Type), 2)
	elf.PutLE(buf[18:20], uint64(h.Machine), 2)
	elf.PutLE(buf[20:24], uint64(h.Version), 4)
	elf.PutLE(buf[24:32], h.Entry, 8)
	elf.PutLE(buf[32:40], h.PhOff, 8)
	elf.PutLE(buf[40:48], h.ShOff, 8)
	elf.PutLE(buf[48:52], uint64(h.Flags), 4)
	elf.PutLE(buf[52:54], uint64(h.EhSize), 2)
	elf.PutLE(buf[54:56], uint64(h.PhEntSize), 2)
	elf.PutLE(buf[56:58], uint64(h.PhNum), 2)
	elf.PutLE(buf[58:60], uint64(h.ShEntSize), 2)
	elf.PutLE(buf[60:62], uint64(h.ShNum), 2)
	elf.PutLE(buf[62:64], uint64(h.ShStrNdx), 2)
	_, err := w.WriteAt(buf, 0)
	return err
}

func writePhdr(w elf.Writer, off uint64, s Segment) {
	buf := make([]byte, elf.PhdrSize64)
	elf.PutLE(buf[0:4], uint64(s.Type), 4)
	elf.PutLE(buf[4:8], uint64(s.Flags), 4)
	elf.PutLE(buf[8:16], s.Offset, 8)
	elf.PutLE(buf[16:24], s.VAddr, 8)
	elf.PutLE(buf[24:32], s.PAddr, 8)
	elf.PutLE(buf[32:40], s.FileSz, 8)
	elf.PutLE(buf[40:48], s.MemSz, 8)
	elf.PutLE(buf[48:56], s.Align, 8)
	w.WriteAt(buf, off)
}

func writeShdr(w elf.Writer, off uint64, s elf.Shdr64) {
	buf := make([]byte, elf.ShdrSize64)
	elf.PutLE(buf[0:4], uint64(s.NameOff), 4)
	elf.PutLE(buf[4:8], uint64(s.Type), 4)
	elf.PutLE(buf[8:16], s.Flags, 8)
	elf.PutLE(buf[16:24], s.Addr, 8)
	elf.PutLE(buf[24:32], s.Offset, 8)
	elf.PutLE(buf[32:40], s.Size, 8)
	elf.PutLE(buf[40:44], uint64(s.Link), 4)
	elf.PutLE(buf[44:48], uint64(s.Info), 4)
	elf.PutLE(buf[48:56], s.AddrAlign, 8)
	elf.PutLE(buf[56:64], s.EntSize, 8)
	w.WriteAt(buf, off)
}
