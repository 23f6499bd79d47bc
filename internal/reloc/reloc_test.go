package reloc

import (
	"encoding/binary"
	"fmt"
	"testing"

	"github.com/rb1005/eld/internal/elf"
	"github.com/rb1005/eld/internal/ir"
)

func TestClassifyAbsoluteLocalUnderPIC(t *testing.T) {
	got := ClassifyGeneric(ShapeAbsolute, &ir.ResolveInfo{Binding: ir.BindLocal}, ScanContext{DynamicLink: true})
	if got != ir.RelocAbsoluteLocalPIC {
		t.Fatalf("got %v", got)
	}
}

func TestClassifyPreemptibleGlobalAbsolute(t *testing.T) {
	sym := &ir.ResolveInfo{Binding: ir.BindGlobal, Visibility: ir.VisDefault}
	got := ClassifyGeneric(ShapeAbsolute, sym, ScanContext{DynamicLink: true})
	if got != ir.RelocAbsolutePreemptibleGlobal {
		t.Fatalf("got %v", got)
	}
}

func TestClassifyTLSGDCollapsesUnderStaticLink(t *testing.T) {
	sym := &ir.ResolveInfo{Binding: ir.BindGlobal}
	got := ClassifyGeneric(ShapeTLSGD, sym, ScanContext{StaticLink: true})
	if got != ir.RelocTLSLE {
		t.Fatalf("expected TLS GD to collapse to LE under static link, got %v", got)
	}
}

func TestX86_64ApplyPC32Overflow(t *testing.T) {
	r := &x86_64Relocator{}
	rel := &ir.Relocation{Type: elf.RX8664PC32}
	dst := make([]byte, 4)
	err := r.Apply(rel, dst, ApplyInputs{SymbolValue: 0xFFFFFFFFFF, Place: 0})
	if err == nil {
		t.Fatal("expected overflow error")
	}
}

func TestX86_64Apply64BitAbsolute(t *testing.T) {
	r := &x86_64Relocator{}
	rel := &ir.Relocation{Type: elf.RX8664_64}
	dst := make([]byte, 8)
	if err := r.Apply(rel, dst, ApplyInputs{SymbolValue: 0x1000, Addend: 4}); err != nil {
		t.Fatal(err)
	}
	var v uint64
	for i := 7; i >= 0; i-- {
		v = v<<8 | uint64(dst[i])
	}
	if v != 0x1004 {
		t.Fatalf("got 0x%x, want 0x1004", v)
	}
}

func TestRISCVHiLoPairRoundTrips(t *testing.T) {
	r := &riscv64Relocator{}
	hi := make([]byte, 4)
	lo := make([]byte, 4)
	// place=0x1000, target=0x12345678 -> offset=0x12344678
	place := uint64(0x1000)
	target := int64(0x12345678)
	offset := target - int64(place)

	if err := applyHi20(hi, offset); err != nil {
		t.Fatal(err)
	}
	if err := applyLo12I(lo, offset); err != nil {
		t.Fatal(err)
	}
	hiImm := int64(int32(binary.LittleEndian.Uint32(hi) &^ 0xFFF))
	loImm := int64(int32(binary.LittleEndian.Uint32(lo)) >> 20)
	if hiImm+loImm != offset {
		t.Fatalf("hi 0x%x + lo 0x%x = 0x%x, want 0x%x", hiImm, loImm, hiImm+loImm, offset)
	}
	_ = r
}

// TestApplyPCRelHi20BoundaryFits exercises the exact boundary the resolved
// Open Question calls for (spec.md §9): an offset of 2^31-1, the last value
// applyHi20 accepts, must apply in place with no AUIPC->LUI rewrite.
func TestApplyPCRelHi20BoundaryFits(t *testing.T) {
	dst := []byte{0x17, 0x00, 0x00, 0x00} // auipc x0, 0
	v := int64(1)<<31 - 1
	in := ApplyInputs{SymbolValue: uint64(v), Place: 0, StaticLink: true}
	if err := applyPCRelHi20(dst, v, in); err != nil {
		t.Fatalf("expected offset at the ±2^31 boundary to fit, got %v", err)
	}
	if dst[0]&0x7f != riscvOpcodeAUIPC {
		t.Fatalf("expected AUIPC opcode preserved, got 0x%x", dst[0]&0x7f)
	}
}

// TestApplyPCRelHi20RewritesAtBoundary puts the *offset* one past the
// boundary (S+A - place == 2^31) while S+A itself still fits a LUI, the
// exact precondition spec.md §8 scenario S6 describes for the rewrite.
func TestApplyPCRelHi20RewritesAtBoundary(t *testing.T) {
	dst := []byte{0x17, 0x00, 0x00, 0x00} // auipc x0, 0
	v := int64(1)<<31 - 1
	place := uint64(0xFFFFFFFFFFFFFFFF) // int64(place) == -1, so offset == v - (-1) == 2^31
	var traced string
	in := ApplyInputs{
		SymbolValue: uint64(v),
		Place:       place,
		StaticLink:  true,
		Trace:       func(format string, args ...any) { traced = fmt.Sprintf(format, args...) },
	}
	if err := applyPCRelHi20(dst, v, in); err != nil {
		t.Fatalf("expected static-link rewrite to succeed, got %v", err)
	}
	if dst[0]&0x7f != riscvOpcodeLUI {
		t.Fatalf("expected AUIPC rewritten to LUI, got opcode 0x%x", dst[0]&0x7f)
	}
	if traced == "" {
		t.Fatal("expected the rewrite to be reported via Trace")
	}
	if got := pcrelLo12Operand(in); got != v {
		t.Fatalf("expected paired LO12 to encode the absolute value 0x%x, got 0x%x", v, got)
	}
}

// TestApplyPCRelHi20RefusesRewriteWithoutStaticLink confirms the fallback
// never fires for a dynamically-linked output, per spec.md §8 S6's
// "under static link" precondition.
func TestApplyPCRelHi20RefusesRewriteWithoutStaticLink(t *testing.T) {
	dst := []byte{0x17, 0x00, 0x00, 0x00}
	v := int64(1)<<31 - 1
	place := uint64(0xFFFFFFFFFFFFFFFF)
	in := ApplyInputs{SymbolValue: uint64(v), Place: place, StaticLink: false}
	if err := applyPCRelHi20(dst, v, in); err == nil {
		t.Fatal("expected overflow error without StaticLink")
	}
}

func TestScannerReservesGOTOncePerSymbol(t *testing.T) {
	relocator := &x86_64Relocator{}
	m := ir.NewModule(ir.ArchX86_64, ir.OutputExecutable, nil)
	s := NewScanner(relocator, m, ScanContext{DynamicLink: true})
	sym := &ir.ResolveInfo{Binding: ir.BindGlobal, Visibility: ir.VisDefault}
	r1 := &ir.Relocation{Type: elf.RX8664GOTPCRel, Symbol: sym}
	r2 := &ir.Relocation{Type: elf.RX8664GOTPCRel, Symbol: sym}
	s.Scan(r1)
	s.Scan(r2)
	if s.GOT.Count() != 1 {
		t.Fatalf("expected a single GOT reservation, got %d", s.GOT.Count())
	}
}
