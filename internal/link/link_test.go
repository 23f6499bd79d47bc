package link

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/rb1005/eld/internal/diag"
	"github.com/rb1005/eld/internal/elf"
	"github.com/rb1005/eld/internal/ir"
)

// buildEntryObject assembles a minimal ELF64 relocatable object with a
// single executable .text section and one global defined symbol at its
// start, suitable as a whole program's sole input (no unresolved
// references, matching the default ENTRY name).
func buildEntryObject(t *testing.T, symbolName string) []byte {
	t.Helper()

	text := []byte{0xc3, 0x90, 0x90, 0x90} // ret; nop; nop; nop

	shstrtab := []byte{0}
	add := func(name string) uint32 {
		off := uint32(len(shstrtab))
		shstrtab = append(shstrtab, append([]byte(name), 0)...)
		return off
	}
	textNameOff := add(".text")
	symtabNameOff := add(".symtab")
	strtabNameOff := add(".strtab")
	shstrtabNameOff := add(".shstrtab")

	strtab := []byte{0}
	symNameOff := uint32(len(strtab))
	strtab = append(strtab, append([]byte(symbolName), 0)...)

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
	symtab = append(symtab, symEnt(symNameOff, elf.SymInfo(elf.STBGlobal, elf.STTFunc), 0, 1, 0, uint64(len(text)))...)

	const ehdrSize = elf.EhdrSize64
	textOff := uint64(ehdrSize)
	symtabOff := textOff + uint64(len(text))
	strtabOff := symtabOff + uint64(len(symtab))
	shstrtabOff := strtabOff + uint64(len(strtab))
	shoff := shstrtabOff + uint64(len(shstrtab))

	type shdr struct {
		name, typ        uint32
		flags, off, size uint64
		link, info       uint32
		align, entsize   uint64
	}
	shdrs := []shdr{
		{0, elf.SHTNull, 0, 0, 0, 0, 0, 0, 0},
		{textNameOff, elf.SHTProgbits, elf.SHFAlloc | elf.SHFExecinstr, textOff, uint64(len(text)), 0, 0, 4, 0},
		{symtabNameOff, elf.SHTSymtab, 0, symtabOff, uint64(len(symtab)), 3, 1, 8, elf.SymSize64},
		{strtabNameOff, elf.SHTStrtab, 0, strtabOff, uint64(len(strtab)), 0, 0, 1, 0},
		{shstrtabNameOff, elf.SHTStrtab, 0, shstrtabOff, uint64(len(shstrtab)), 0, 0, 1, 0},
	}

	var buf []byte
	buf = append(buf, make([]byte, ehdrSize)...)
	buf = append(buf, text...)
	buf = append(buf, symtab...)
	buf = append(buf, strtab...)
	buf = append(buf, shstrtab...)
	for range shdrs {
		buf = append(buf, make([]byte, elf.ShdrSize64)...)
	}

	buf[0], buf[1], buf[2], buf[3] = elf.EIMag0, elf.EIMag1, elf.EIMag2, elf.EIMag3
	buf[4] = elf.ELFClass64
	buf[5] = elf.ELFData2LSB
	binary.LittleEndian.PutUint16(buf[16:18], elf.ETRel)
	binary.LittleEndian.PutUint16(buf[18:20], elf.EMX86_64)
	binary.LittleEndian.PutUint64(buf[40:48], shoff)
	binary.LittleEndian.PutUint16(buf[58:60], elf.ShdrSize64)
	binary.LittleEndian.PutUint16(buf[60:62], uint16(len(shdrs)))
	binary.LittleEndian.PutUint16(buf[62:64], 4)

	for i, s := range shdrs {
		o := shoff + uint64(i)*elf.ShdrSize64
		binary.LittleEndian.PutUint32(buf[o:o+4], s.name)
		binary.LittleEndian.PutUint32(buf[o+4:o+8], s.typ)
		binary.LittleEndian.PutUint64(buf[o+8:o+16], s.flags)
		binary.LittleEndian.PutUint64(buf[o+16:o+24], 0)
		binary.LittleEndian.PutUint64(buf[o+24:o+32], s.off)
		binary.LittleEndian.PutUint64(buf[o+32:o+40], s.size)
		binary.LittleEndian.PutUint32(buf[o+40:o+44], s.link)
		binary.LittleEndian.PutUint32(buf[o+44:o+48], s.info)
		binary.LittleEndian.PutUint64(buf[o+48:o+56], s.align)
		binary.LittleEndian.PutUint64(buf[o+56:o+64], s.entsize)
	}

	return buf
}

func TestLinkerRunProducesExecutableImage(t *testing.T) {
	dir := t.TempDir()
	objPath := filepath.Join(dir, "start.o")
	if err := os.WriteFile(objPath, buildEntryObject(t, "_start"), 0o644); err != nil {
		t.Fatal(err)
	}

	opts := &Options{
		Output:  filepath.Join(dir, "a.out"),
		Inputs:  []string{objPath},
		Arch:    ir.ArchX86_64,
		Workers: 1,
	}
	l := New(opts, diag.NewSink(false))
	image, err := l.Run()
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(image) < elf.EhdrSize64 {
		t.Fatalf("image too short: %d bytes", len(image))
	}
	if image[0] != elf.EIMag0 || image[1] != elf.EIMag1 || image[2] != elf.EIMag2 || image[3] != elf.EIMag3 {
		t.Fatalf("missing ELF magic: %v", image[0:4])
	}
	if image[4] != elf.ELFClass64 {
		t.Fatal("expected ELFCLASS64 output")
	}
	etype := binary.LittleEndian.Uint16(image[16:18])
	if etype != elf.ETExec {
		t.Fatalf("expected ET_EXEC, got %d", etype)
	}
	entry := binary.LittleEndian.Uint64(image[24:32])
	if entry == 0 {
		t.Fatal("expected non-zero resolved entry point")
	}
}

func TestLinkerRunReportsUnresolvedSymbol(t *testing.T) {
	dir := t.TempDir()
	// A symbol table with only an undefined reference to "_start" and no
	// definition anywhere: Resolve must report it rather than silently
	// emitting an image with entry 0.
	data := buildEntryObject(t, "_start")
	// Flip the lone symbol's shndx to SHN_UNDEF so it's a reference, not
	// a definition, while keeping every other byte (sizes, offsets) valid.
	symtabOff := uint64(elf.EhdrSize64) + 4
	shndxOff := symtabOff + elf.SymSize64 + 6
	binary.LittleEndian.PutUint16(data[shndxOff:shndxOff+2], elf.SHNUndef)

	objPath := filepath.Join(dir, "undef.o")
	if err := os.WriteFile(objPath, data, 0o644); err != nil {
		t.Fatal(err)
	}

	opts := &Options{
		Output:  filepath.Join(dir, "a.out"),
		Inputs:  []string{objPath},
		Arch:    ir.ArchX86_64,
		Workers: 1,
	}
	l := New(opts, diag.NewSink(false))
	if _, err := l.Run(); err == nil {
		t.Fatal("expected an unresolved-symbol error")
	}
}
