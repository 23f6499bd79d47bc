package input

import (
	"encoding/binary"
	"testing"

	"github.com/rb1005/eld/internal/elf"
	"github.com/rb1005/eld/internal/ir"
)

// buildMiniObject assembles a minimal well-formed ELF64 relocatable object
// with one .text section (containing a 4-byte NOP-like filler), a global
// defined symbol "foo" at offset 0 in .text, an undefined reference to
// "bar", and a single RELA relocation against "bar" at .text+0.
func buildMiniObject(t *testing.T) []byte {
	t.Helper()

	text := []byte{0x90, 0x90, 0x90, 0x90}

	shstrtab := []byte{0}
	shstrtabOff := map[string]uint32{}
	add := func(name string) uint32 {
		off := uint32(len(shstrtab))
		shstrtabOff[name] = off
		shstrtab = append(shstrtab, append([]byte(name), 0)...)
		return off
	}
	textNameOff := add(".text")
	symtabNameOff := add(".symtab")
	strtabNameOff := add(".strtab")
	relaNameOff := add(".rela.text")
	shstrtabNameOff := add(".shstrtab")

	strtab := []byte{0}
	addStr := func(name string) uint32 {
		off := uint32(len(strtab))
		strtab = append(strtab, append([]byte(name), 0)...)
		return off
	}
	fooNameOff := addStr("foo")
	barNameOff := addStr("bar")

	// Symbol table: [0]=null, [1]=foo (global, defined in .text idx 1),
	// [2]=bar (global, undefined).
	symEnt := func(name uint32, info, other byte, shndx uint16, value, size uint64) []byte {
		b := make([]byte, elf.SymSize64)
		binary.LittleEndian.PutUint32(b[0:4], name)
		b[4] = info
		b[5] = other
		binary.LittleEndian.PutUint16(b[6:8], shndx)
		binary.LittleEndian.PutUint64(b[8:16], value)
		binary.LittleEndian.PutUint64(b[16:24], size)
		return b
	}
	var symtab []byte
	symtab = append(symtab, symEnt(0, 0, 0, 0, 0, 0)...)
	symtab = append(symtab, symEnt(fooNameOff, elf.SymInfo(elf.STBGlobal, elf.STTFunc), 0, 1, 0, 4)...)
	symtab = append(symtab, symEnt(barNameOff, elf.SymInfo(elf.STBGlobal, elf.STTNotype), 0, elf.SHNUndef, 0, 0)...)

	relaEnt := make([]byte, elf.RelaSize64)
	binary.LittleEndian.PutUint64(relaEnt[0:8], 0)
	info := (uint64(2) << 32) | uint64(1) // symbol index 2 ("bar"), type 1
	binary.LittleEndian.PutUint64(relaEnt[8:16], info)
	binary.LittleEndian.PutUint64(relaEnt[16:24], 0)

	// Lay out section contents after the ehdr.
	const ehdrSize = elf.EhdrSize64
	textOff := uint64(ehdrSize)
	symtabOff := textOff + uint64(len(text))
	strtabOff := symtabOff + uint64(len(symtab))
	relaOff := strtabOff + uint64(len(strtab))
	shstrtabOff2 := relaOff + uint64(len(relaEnt))
	shoff := shstrtabOff2 + uint64(len(shstrtab))

	const shnum = 6 // null, .text, .symtab, .strtab, .rela.text, .shstrtab
	_ = shnum

	// sections: 0 null, 1 .text, 2 .symtab, 3 .strtab, 4 .rela.text, 5 .shstrtab
	type shdr struct {
		name, typ          uint32
		flags, addr, off   uint64
		size               uint64
		link, info         uint32
		addralign, entsize uint64
	}
	shdrs := []shdr{
		{0, elf.SHTNull, 0, 0, 0, 0, 0, 0, 0, 0},
		{textNameOff, elf.SHTProgbits, elf.SHFAlloc | elf.SHFExecinstr, 0, textOff, uint64(len(text)), 0, 0, 4, 0},
		{symtabNameOff, elf.SHTSymtab, 0, 0, symtabOff, uint64(len(symtab)), 3, 2, 8, elf.SymSize64},
		{strtabNameOff, elf.SHTStrtab, 0, 0, strtabOff, uint64(len(strtab)), 0, 0, 1, 0},
		{relaNameOff, elf.SHTRela, 0, 0, relaOff, uint64(len(relaEnt)), 2, 1, 8, elf.RelaSize64},
		{shstrtabNameOff, elf.SHTStrtab, 0, 0, shstrtabOff2, uint64(len(shstrtab)), 0, 0, 1, 0},
	}

	var buf []byte
	buf = append(buf, make([]byte, ehdrSize)...)
	buf = append(buf, text...)
	buf = append(buf, symtab...)
	buf = append(buf, strtab...)
	buf = append(buf, relaEnt...)
	buf = append(buf, shstrtab...)
	for range shdrs {
		buf = append(buf, make([]byte, elf.ShdrSize64)...)
	}

	// Patch ehdr.
	buf[0], buf[1], buf[2], buf[3] = elf.EIMag0, elf.EIMag1, elf.EIMag2, elf.EIMag3
	buf[4] = elf.ELFClass64
	buf[5] = elf.ELFData2LSB
	binary.LittleEndian.PutUint16(buf[16:18], elf.ETRel)
	binary.LittleEndian.PutUint16(buf[18:20], elf.EMX86_64)
	binary.LittleEndian.PutUint64(buf[40:48], shoff)
	binary.LittleEndian.PutUint16(buf[58:60], elf.ShdrSize64)
	binary.LittleEndian.PutUint16(buf[60:62], uint16(len(shdrs)))
	binary.LittleEndian.PutUint16(buf[62:64], 5)

	// Patch section headers.
	for i, s := range shdrs {
		o := shoff + uint64(i)*elf.ShdrSize64
		binary.LittleEndian.PutUint32(buf[o:o+4], s.name)
		binary.LittleEndian.PutUint32(buf[o+4:o+8], s.typ)
		binary.LittleEndian.PutUint64(buf[o+8:o+16], s.flags)
		binary.LittleEndian.PutUint64(buf[o+16:o+24], s.addr)
		binary.LittleEndian.PutUint64(buf[o+24:o+32], s.off)
		binary.LittleEndian.PutUint64(buf[o+32:o+40], s.size)
		binary.LittleEndian.PutUint32(buf[o+40:o+44], s.link)
		binary.LittleEndian.PutUint32(buf[o+44:o+48], s.info)
		binary.LittleEndian.PutUint64(buf[o+48:o+56], s.addralign)
		binary.LittleEndian.PutUint64(buf[o+56:o+64], s.entsize)
	}

	return buf
}

func TestParseObjectBuildsSectionsSymbolsAndRelocations(t *testing.T) {
	data := buildMiniObject(t)
	pool := ir.NewNamePool()

	file, err := ParseObject("a.o", data, pool)
	if err != nil {
		t.Fatalf("ParseObject: %v", err)
	}
	if file.Kind != ir.InputELFRelocatable {
		t.Fatalf("expected InputELFRelocatable, got %v", file.Kind)
	}
	if len(file.Sections) != 1 || file.Sections[0].Name != ".text" {
		t.Fatalf("expected single .text section, got %+v", file.Sections)
	}
	text := file.Sections[0]
	if text.Size() != 4 {
		t.Fatalf("expected .text size 4, got %d", text.Size())
	}

	foo, ok := pool.Find("foo")
	if !ok {
		t.Fatal("expected symbol foo in pool")
	}
	if foo.Desc != ir.DescDefined || foo.Binding != ir.BindGlobal {
		t.Fatalf("unexpected foo resolve info: %+v", foo)
	}
	if foo.OutSymbol == nil || foo.OutSymbol.Frag == nil || foo.OutSymbol.Frag.Fragment != text.Fragments[0] {
		t.Fatalf("expected foo's occurrence to reference .text's fragment, got %+v", foo.OutSymbol)
	}

	bar, ok := pool.Find("bar")
	if !ok || bar.Desc != ir.DescUndefined {
		t.Fatalf("expected undefined bar, got %+v, ok=%v", bar, ok)
	}

	if len(text.Relocations) != 1 {
		t.Fatalf("expected 1 relocation on .text, got %d", len(text.Relocations))
	}
	rel := text.Relocations[0]
	if rel.Symbol != bar {
		t.Fatalf("expected relocation to reference bar's resolve info")
	}
	if rel.Type != 1 {
		t.Fatalf("expected relocation type 1, got %d", rel.Type)
	}
}

func TestParseObjectRejectsBadMagic(t *testing.T) {
	_, err := ParseObject("bad.o", []byte{0, 0, 0, 0}, ir.NewNamePool())
	if err == nil {
		t.Fatal("expected error for bad magic")
	}
}
