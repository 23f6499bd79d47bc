package emit

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/rb1005/eld/internal/elf"
	"github.com/rb1005/eld/internal/ir"
)

func TestWriteImageProducesValidELFMagicAndCounts(t *testing.T) {
	img := &Image{
		Class64: true,
		Machine: elf.EMX86_64,
		Type:    elf.ETExec,
		Entry:   0x401000,
		Segments: []Segment{
			{Type: elf.PTLoad, Flags: elf.PFR | elf.PFX, Offset: 0, VAddr: 0x400000, PAddr: 0x400000, FileSz: 0x1000, MemSz: 0x1000, Align: 0x1000},
		},
		Sections: []Section{
			{Name: ".text", Data: []byte{0x90, 0x90}, Addr: 0x401000, Offset: 0x1000, Type: elf.SHTProgbits, Flags: 0x6, Align: 16},
		},
		ShstrtabData: []byte{0, '.', 't', 'e', 'x', 't', 0},
	}
	img.PhOff = elf.EhdrSize64
	img.ShOff = 0x2000

	w := elf.NewBufWriter(0x3000)
	if err := WriteImage(w, img); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(w.Buf[0:4], []byte{elf.EIMag0, elf.EIMag1, elf.EIMag2, elf.EIMag3}) {
		t.Fatalf("missing ELF magic: %v", w.Buf[0:4])
	}
	if w.Buf[4] != elf.ELFClass64 {
		t.Fatal("expected ELFCLASS64")
	}
	if got := binary.LittleEndian.Uint16(w.Buf[56:58]); got != 1 {
		t.Fatalf("e_phnum = %d, want 1", got)
	}
	if got := binary.LittleEndian.Uint16(w.Buf[60:62]); got != 3 {
		t.Fatalf("e_shnum = %d, want 3 (null, .text, .shstrtab)", got)
	}
}

func TestWriteSymDefSkipsLocalAndDynamicAndAbsolute(t *testing.T) {
	shared := &ir.InputFile{Kind: ir.InputELFSharedObject}
	syms := []*ir.ResolveInfo{
		{Name: "local_sym", Binding: ir.BindLocal, Type: ir.SymFunc, OutSymbol: &ir.LDSymbol{Value: 1}},
		{Name: "dyn_sym", Binding: ir.BindGlobal, Type: ir.SymFunc, SourceFile: shared, OutSymbol: &ir.LDSymbol{Value: 2}},
		{Name: "abs_sym", Binding: ir.BindGlobal, Desc: ir.DescAbsolute, Type: ir.SymObject, OutSymbol: &ir.LDSymbol{Value: 3}},
		{Name: "exported_fn", Binding: ir.BindGlobal, Type: ir.SymFunc, OutSymbol: &ir.LDSymbol{Value: 0x4000}},
	}
	var buf bytes.Buffer
	if err := WriteSymDef(&buf, syms, ""); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	if bytes.Contains(buf.Bytes(), []byte("local_sym")) || bytes.Contains(buf.Bytes(), []byte("dyn_sym")) || bytes.Contains(buf.Bytes(), []byte("abs_sym")) {
		t.Fatalf("expected filtered symbols to be excluded, got:\n%s", out)
	}
	if want := "0x4000\tFUNC\texported_fn\n"; !bytes.Contains(buf.Bytes(), []byte(want)) {
		t.Fatalf("missing expected line %q in:\n%s", want, out)
	}
}

func TestWriteSymDefHeaderWithStyle(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteSymDef(&buf, nil, "txt"); err != nil {
		t.Fatal(err)
	}
	if got := buf.String(); got != "#<SYMDEFS-txt>#\n#DO NOT EDIT#\n" {
		t.Fatalf("got %q", got)
	}
}

func TestComputeBuildIDIsDeterministic(t *testing.T) {
	data := []byte("final image bytes")
	a := ComputeBuildID(data)
	b := ComputeBuildID(data)
	if a != b {
		t.Fatal("expected deterministic build-id hash")
	}
}

func TestPatchBuildIDNoteRoundTrips(t *testing.T) {
	dst := make([]byte, BuildIDNoteSize)
	tag := ComputeBuildID([]byte("x"))
	PatchBuildIDNote(dst, tag)
	if string(dst[12:16]) != "GNU\x00" {
		t.Fatalf("expected GNU name field, got %q", dst[12:16])
	}
	ZeroBuildIDTag(dst)
	for i := 16; i < len(dst); i++ {
		if dst[i] != 0 {
			t.Fatal("expected tag bytes zeroed")
		}
	}
}
