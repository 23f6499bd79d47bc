package relax

import (
	"golang.org/x/arch/riscv64/riscv64asm"

	"github.com/rb1005/eld/internal/ir"
)

const (
	opcodeJALR = 0x67
	opcodeAUIPC = 0x17
	opcodeJAL  = 0x6f
)

// tryRelaxCall attempts CALL -> JAL (spec.md §4.6): an R_RISCV_CALL(_PLT)
// relocation fixes up an 8-byte AUIPC+JALR pair. If the call target is
// within JAL's +-1MiB range, the pair collapses to a single 4-byte JAL
// (preserving JALR's destination register) and the trailing 4 bytes are
// deleted from the fragment.
func tryRelaxCall(frag *ir.Fragment, r *ir.Relocation, symValue SymbolValue, place PlaceOf) uint64 {
	off := int(r.Target.Offset)
	if off+8 > len(frag.Data) {
		return 0
	}
	auipcWord := readU32(frag.Data, off)
	jalrWord := readU32(frag.Data, off+4)
	if auipcWord&0x7f != opcodeAUIPC || jalrWord&0x7f != opcodeJALR {
		return 0 // already relaxed, or not the expected shape
	}
	// Decode defensively; a failure means the bytes aren't valid RISC-V
	// instructions and relaxation must not touch them.
	if _, err := riscv64asm.Decode(frag.Data[off : off+4]); err != nil {
		return 0
	}
	if _, err := riscv64asm.Decode(frag.Data[off+4 : off+8]); err != nil {
		return 0
	}

	target := symValue(r) + uint64(r.Addend)
	callSite := place(frag, r.Target.Offset)
	delta := int64(target) - int64(callSite)
	if delta < -(1<<20) || delta >= (1<<20) || delta%2 != 0 {
		return 0
	}

	rd := (jalrWord >> 7) & 0x1f
	jal := encodeJAL(uint32(rd), delta)
	writeU32(frag.Data, off, jal)
	deleteBytes(frag, off+4, 4)
	return 4
}

func encodeJAL(rd uint32, offset int64) uint32 {
	imm := uint32(offset)
	imm20 := (imm >> 20) & 0x1
	imm10_1 := (imm >> 1) & 0x3ff
	imm11 := (imm >> 11) & 0x1
	imm19_12 := (imm >> 12) & 0xff
	return (imm20 << 31) | (imm19_12 << 12) | (imm11 << 20) | (imm10_1 << 21) | (rd << 7) | opcodeJAL
}

// tryRelaxAlign treats an R_RISCV_ALIGN relocation's reserved NOP padding
// as a reservoir the driver may consume (spec.md §4.6): if the bytes ahead
// of the alignment boundary are all NOPs (0x00000013), at least 4 can be
// deleted while the final address still satisfies the requested alignment.
// The relocation's addend carries the requested alignment boundary and the
// original padding size, following the convention the pack's riscv64asm
// consumers (aclements-go-obj) use for this relocation's payload.
func tryRelaxAlign(frag *ir.Fragment, r *ir.Relocation) uint64 {
	off := int(r.Target.Offset)
	padSize := int(r.Addend)
	if padSize <= 0 || off+padSize > len(frag.Data) {
		return 0
	}
	const nop = 0x00000013
	n := 0
	for n+4 <= padSize {
		if readU32(frag.Data, off+n) != nop {
			break
		}
		n += 4
	}
	if n < 4 {
		return 0
	}
	deleteBytes(frag, off, 4)
	return 4
}
