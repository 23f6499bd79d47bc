package relax

import (
	"testing"

	"github.com/rb1005/eld/internal/elf"
	"github.com/rb1005/eld/internal/ir"
)

func auipcJalr(rd uint32) []byte {
	auipc := uint32(opcodeAUIPC) // imm=0, rd=0 (x0) is fine, decoder only cares about opcode bits for our check
	jalr := (rd << 7) | opcodeJALR
	buf := make([]byte, 8)
	writeU32(buf, 0, auipc)
	writeU32(buf, 4, jalr)
	return buf
}

func TestTryRelaxCallCollapsesInRangeCall(t *testing.T) {
	frag := &ir.Fragment{Kind: ir.FragRegion, Data: auipcJalr(1)} // rd=x1 (ra)
	rel := &ir.Relocation{Type: elf.RRISCVCall, Target: ir.FragmentRef{Fragment: frag, Offset: 0}}

	symValue := func(*ir.Relocation) uint64 { return 0x2000 }
	place := func(f *ir.Fragment, off uint64) uint64 { return 0x1000 + off }

	n := tryRelaxCall(frag, rel, symValue, place)
	if n != 4 {
		t.Fatalf("expected 4 bytes deleted, got %d", n)
	}
	if len(frag.Data) != 4 {
		t.Fatalf("expected fragment shrunk to 4 bytes, got %d", len(frag.Data))
	}
	word := readU32(frag.Data, 0)
	if word&0x7f != opcodeJAL {
		t.Fatalf("expected JAL opcode in collapsed word, got 0x%x", word)
	}
	if (word>>7)&0x1f != 1 {
		t.Fatalf("expected rd=1 preserved from JALR, got %d", (word>>7)&0x1f)
	}
}

func TestTryRelaxCallSkipsOutOfRangeTarget(t *testing.T) {
	frag := &ir.Fragment{Kind: ir.FragRegion, Data: auipcJalr(1)}
	rel := &ir.Relocation{Type: elf.RRISCVCall, Target: ir.FragmentRef{Fragment: frag, Offset: 0}}

	symValue := func(*ir.Relocation) uint64 { return 0x10_0000_0000 }
	place := func(f *ir.Fragment, off uint64) uint64 { return 0 }

	n := tryRelaxCall(frag, rel, symValue, place)
	if n != 0 {
		t.Fatalf("expected no relaxation for out-of-range target, got %d bytes deleted", n)
	}
	if len(frag.Data) != 8 {
		t.Fatal("fragment must be untouched when relaxation does not apply")
	}
}

func TestTryRelaxAlignDeletesNopPadding(t *testing.T) {
	data := make([]byte, 8)
	writeU32(data, 0, 0x00000013) // nop
	writeU32(data, 4, 0x00000013) // nop
	frag := &ir.Fragment{Kind: ir.FragRegion, Data: data}
	rel := &ir.Relocation{Type: elf.RRISCVAlign, Target: ir.FragmentRef{Fragment: frag, Offset: 0}, Addend: 8}

	n := tryRelaxAlign(frag, rel)
	if n != 4 {
		t.Fatalf("expected 4 bytes deleted, got %d", n)
	}
	if len(frag.Data) != 4 {
		t.Fatalf("expected 4 bytes remaining, got %d", len(frag.Data))
	}
}

func TestRunShiftsFollowingRelocationsAndSymbolsAfterDeletion(t *testing.T) {
	// Fragment layout: [0:8) AUIPC+JALR (relaxes to a 4-byte JAL), then
	// [8:12) an unrelated 4-byte instruction targeted by a second
	// relocation and by a symbol's value, both of which must move from
	// offset 8 to offset 4 once the JALR half at [4:8) is deleted.
	data := auipcJalr(1)
	data = append(data, 0, 0, 0, 0)
	frag := &ir.Fragment{Kind: ir.FragRegion, Data: data}
	sec := &ir.Section{Name: ".text"}
	frag.Owner = sec

	call := &ir.Relocation{Type: elf.RRISCVCall, Target: ir.FragmentRef{Fragment: frag, Offset: 0}}
	other := &ir.Relocation{Type: elf.RRISCVBranch, Target: ir.FragmentRef{Fragment: frag, Offset: 8}}
	sec.Relocations = []*ir.Relocation{call, other}

	sym := &ir.LDSymbol{Frag: &ir.FragmentRef{Fragment: frag, Offset: 8}}

	symValue := func(*ir.Relocation) uint64 { return 0x2000 }
	place := func(f *ir.Fragment, off uint64) uint64 { return 0x1000 + off }

	relocsOf := func(*ir.Section) []*ir.Relocation { return sec.Relocations }
	symsOf := func(*ir.Section) []*ir.LDSymbol { return []*ir.LDSymbol{sym} }

	stats := Run([]*ir.Section{sec}, relocsOf, symsOf, symValue, place)

	st := stats[sec]
	if st.BytesDeleted != 4 {
		t.Fatalf("expected 4 bytes deleted, got %d", st.BytesDeleted)
	}
	if len(frag.Data) != 8 {
		t.Fatalf("expected fragment shrunk to 8 bytes, got %d", len(frag.Data))
	}
	if other.Target.Offset != 4 {
		t.Fatalf("expected the second relocation's target offset to shift to 4, got %d", other.Target.Offset)
	}
	if sym.Frag.Offset != 4 {
		t.Fatalf("expected the symbol's fragment offset to shift to 4, got %d", sym.Frag.Offset)
	}
}

func TestEncodeJALRoundTripsOffset(t *testing.T) {
	word := encodeJAL(5, 0x7fe)
	if (word>>7)&0x1f != 5 {
		t.Fatalf("rd not preserved")
	}
	if word&0x7f != opcodeJAL {
		t.Fatalf("opcode mismatch")
	}
}
