package reloc

import (
	"encoding/binary"
	"fmt"

	"github.com/rb1005/eld/internal/elf"
	"github.com/rb1005/eld/internal/ir"
)

// riscv64Relocator generalizes the teacher's patchRISCVPLTCalls (JAL
// immediate-field patching) and handles the PCREL_HI20/LO12 paired-
// relocation arithmetic with the +0x800 bias convention resolved in
// DESIGN.md's Open Question section.
type riscv64Relocator struct{}

func (riscv64Relocator) Shape(r *ir.Relocation) TargetShape {
	switch r.Type {
	case elf.RRISCV64, elf.RRISCV32:
		return ShapeAbsolute
	case elf.RRISCVCallPlt:
		return ShapePLT
	case elf.RRISCVGOTHi20:
		return ShapeGOT
	case elf.RRISCVTLSGdHi20:
		return ShapeTLSGD
	case elf.RRISCVTLSGotHi20:
		return ShapeTLSIE
	case elf.RRISCVTLSTPRel32, elf.RRISCVTLSTPRel64:
		return ShapeTLSLE
	default:
		return ShapePCRelative
	}
}

func (riscv64Relocator) Apply(r *ir.Relocation, dst []byte, in ApplyInputs) error {
	v := int64(in.SymbolValue) + in.Addend
	switch r.Type {
	case elf.RRISCV64:
		if len(dst) < 8 {
			return &ApplyError{ErrBadReloc, "R_RISCV_64: fragment too small"}
		}
		binary.LittleEndian.PutUint64(dst, uint64(v))
	case elf.RRISCV32:
		if uint64(v) > 0xffffffff {
			return &ApplyError{ErrOverflow, fmt.Sprintf("R_RISCV_32: 0x%x does not fit 32 bits", v)}
		}
		binary.LittleEndian.PutUint32(dst, uint32(v))
	case elf.RRISCVHi20:
		return applyHi20(dst, v-int64(in.Place))
	case elf.RRISCVPCRelHi20:
		return applyPCRelHi20(dst, v, in)
	case elf.RRISCVLo12I:
		if in.PairedHI == nil {
			return &ApplyError{ErrBadReloc, "R_RISCV_LO12_I: missing paired HI20"}
		}
		return applyLo12I(dst, in.PairedHI.SymbolValue+in.PairedHI.Addend-int64(in.PairedHI.Place))
	case elf.RRISCVLo12S:
		if in.PairedHI == nil {
			return &ApplyError{ErrBadReloc, "R_RISCV_LO12_S: missing paired HI20"}
		}
		return applyLo12S(dst, in.PairedHI.SymbolValue+in.PairedHI.Addend-int64(in.PairedHI.Place))
	case elf.RRISCVPCRelLo12I:
		if in.PairedHI == nil {
			return &ApplyError{ErrBadReloc, "R_RISCV_PCREL_LO12_I: missing paired HI20"}
		}
		return applyLo12I(dst, pcrelLo12Operand(*in.PairedHI))
	case elf.RRISCVPCRelLo12S:
		if in.PairedHI == nil {
			return &ApplyError{ErrBadReloc, "R_RISCV_PCREL_LO12_S: missing paired HI20"}
		}
		return applyLo12S(dst, pcrelLo12Operand(*in.PairedHI))
	case elf.RRISCVCall, elf.RRISCVCallPlt:
		return applyCall(dst, v-int64(in.Place))
	case elf.RRISCVJal:
		return applyJal(dst, v-int64(in.Place))
	case elf.RRISCVBranch:
		return applyBranch(dst, v-int64(in.Place))
	case elf.RRISCVRelax, elf.RRISCVAlign:
		return nil // pseudo-relocations consumed by internal/relax, not applied
	default:
		return &ApplyError{ErrUnsupported, fmt.Sprintf("riscv64: unsupported relocation type %d", r.Type)}
	}
	return nil
}

// applyHi20 and the LO12 pair below implement the documented overflow
// convention: the HI20 rewrite biases by +0x800 so that the LO12 half,
// sign-extended, recombines to the exact target. The boundary between
// "fits" and "overflow" is evaluated at the un-biased value: offsets in
// [-2^31, 2^31) fit, so 2^31-1 is the last accepted positive offset and
// 2^31 overflows (resolved Open Question, DESIGN.md).
func applyHi20(dst []byte, offset int64) error {
	if len(dst) < 4 {
		return &ApplyError{ErrBadReloc, "HI20: fragment too small"}
	}
	if offset < -(1<<31) || offset >= (1<<31) {
		return &ApplyError{ErrOverflow, fmt.Sprintf("HI20: offset 0x%x exceeds ±2^31", offset)}
	}
	biased := offset + 0x800
	hi20 := uint32(biased>>12) & 0xFFFFF
	instr := binary.LittleEndian.Uint32(dst)
	instr = (instr & 0xFFF) | (hi20 << 12)
	binary.LittleEndian.PutUint32(dst, instr)
	return nil
}

// riscvOpcodeLUI is LUI's 7-bit opcode field; applyPCRelHi20's fallback
// rewrites an out-of-range AUIPC (riscvOpcodeAUIPC) into this, turning a
// PC-relative HI20 into an absolute one.
const (
	riscvOpcodeAUIPC = 0x17
	riscvOpcodeLUI   = 0x37
)

func fitsSigned32(v int64) bool {
	return v >= -(1 << 31) && v < (1<<31)
}

// applyPCRelHi20 implements R_RISCV_PCREL_HI20 plus the resolved Open
// Question's fallback (spec.md §8 scenario S6): when the PC-relative offset
// overflows ±2^31, a statically-linked output whose absolute symbol value
// still fits a 20-bit LUI gets the AUIPC rewritten to LUI and addressed
// absolutely instead, reported to in.Trace since it changes the emitted
// instruction stream from what the input object contained.
func applyPCRelHi20(dst []byte, v int64, in ApplyInputs) error {
	if len(dst) < 4 {
		return &ApplyError{ErrBadReloc, "PCREL_HI20: fragment too small"}
	}
	offset := v - int64(in.Place)
	if fitsSigned32(offset) {
		return applyHi20(dst, offset)
	}
	if !in.StaticLink || !fitsSigned32(v) {
		return &ApplyError{ErrOverflow, fmt.Sprintf("PCREL_HI20: offset 0x%x exceeds ±2^31", offset)}
	}
	biased := v + 0x800
	hi20 := uint32(biased>>12) & 0xFFFFF
	instr := binary.LittleEndian.Uint32(dst)
	instr = (instr &^ uint32(0x7f)) | riscvOpcodeLUI
	instr = (instr & 0xFFF) | (hi20 << 12)
	binary.LittleEndian.PutUint32(dst, instr)
	if in.Trace != nil {
		in.Trace("riscv64: PCREL_HI20 at 0x%x overflowed (S+A=0x%x, offset 0x%x); rewrote AUIPC to LUI for absolute addressing", in.Place, v, offset)
	}
	return nil
}

// pcrelLo12Operand recomputes, from a PCREL_HI20's already-resolved inputs,
// whether that HI20 fell back to the absolute LUI rewrite, and returns the
// matching low-12 operand: absolute (v) if so, PC-relative (v - place)
// otherwise. Independent of whether the HI20 half has actually run yet --
// the decision depends only on hiIn's own fields, so it stays consistent
// regardless of relocation processing order.
func pcrelLo12Operand(hiIn ApplyInputs) int64 {
	v := int64(hiIn.SymbolValue) + hiIn.Addend
	offset := v - int64(hiIn.Place)
	if fitsSigned32(offset) {
		return offset
	}
	return v
}

func applyLo12I(dst []byte, offset int64) error {
	if len(dst) < 4 {
		return &ApplyError{ErrBadReloc, "LO12_I: fragment too small"}
	}
	lo12 := uint32(offset) & 0xFFF
	instr := binary.LittleEndian.Uint32(dst)
	instr = (instr & 0xFFFFF) | (lo12 << 20)
	binary.LittleEndian.PutUint32(dst, instr)
	return nil
}

func applyLo12S(dst []byte, offset int64) error {
	if len(dst) < 4 {
		return &ApplyError{ErrBadReloc, "LO12_S: fragment too small"}
	}
	lo12 := uint32(offset) & 0xFFF
	imm11_5 := (lo12 >> 5) & 0x7F
	imm4_0 := lo12 & 0x1F
	instr := binary.LittleEndian.Uint32(dst)
	instr = (instr &^ (0x7F << 25)) &^ (0x1F << 7)
	instr |= imm11_5 << 25
	instr |= imm4_0 << 7
	binary.LittleEndian.PutUint32(dst, instr)
	return nil
}

// applyCall patches an AUIPC+JALR pair (R_RISCV_CALL) treated as a single
// 32-bit-range PC-relative call, generalizing the teacher's JAL patching
// in patchRISCVPLTCalls to the two-instruction form real RISC-V codegen
// emits for out-of-range calls. When the offset also fits a plain JAL (the
// relaxed form), internal/relax rewrites the pair first; Apply here always
// assumes the unrelaxed AUIPC+JALR encoding is present.
func applyCall(dst []byte, offset int64) error {
	if len(dst) < 8 {
		return &ApplyError{ErrBadReloc, "CALL: fragment too small for AUIPC+JALR pair"}
	}
	if err := applyHi20(dst[0:4], offset); err != nil {
		return err
	}
	return applyLo12I(dst[4:8], offset)
}

func applyJal(dst []byte, offset int64) error {
	if len(dst) < 4 {
		return &ApplyError{ErrBadReloc, "JAL: fragment too small"}
	}
	if offset < -0x100000 || offset >= 0x100000 {
		return &ApplyError{ErrOverflow, fmt.Sprintf("JAL: offset 0x%x does not fit 21 bits", offset)}
	}
	instr := binary.LittleEndian.Uint32(dst)
	rd := (instr >> 7) & 0x1F
	imm20 := (uint32(offset>>20) & 1) << 31
	imm10_1 := (uint32(offset>>1) & 0x3FF) << 21
	imm11 := (uint32(offset>>11) & 1) << 20
	imm19_12 := (uint32(offset>>12) & 0xFF) << 12
	jal := imm20 | imm19_12 | imm11 | imm10_1 | (rd << 7) | 0x6F
	binary.LittleEndian.PutUint32(dst, jal)
	return nil
}

func applyBranch(dst []byte, offset int64) error {
	if len(dst) < 4 {
		return &ApplyError{ErrBadReloc, "branch: fragment too small"}
	}
	if offset < -4096 || offset >= 4096 {
		return &ApplyError{ErrOverflow, fmt.Sprintf("branch: offset 0x%x does not fit 13 bits", offset)}
	}
	instr := binary.LittleEndian.Uint32(dst)
	instr &^= 0xFE000F80
	imm12 := (uint32(offset>>12) & 1) << 31
	imm10_5 := (uint32(offset>>5) & 0x3F) << 25
	imm4_1 := (uint32(offset>>1) & 0xF) << 8
	imm11 := (uint32(offset>>11) & 1) << 7
	instr |= imm12 | imm10_5 | imm4_1 | imm11
	binary.LittleEndian.PutUint32(dst, instr)
	return nil
}

func (riscv64Relocator) GOTEntrySize() uint64  { return 8 }
func (riscv64Relocator) PLTEntrySize() uint64  { return 16 }
func (riscv64Relocator) PLTHeaderSize() uint64 { return 32 }

// EmitPLTEntry emits an AUIPC+LD+JALR+NOP stub, the standard RISC-V ELF
// PLT shape; the teacher's JAL-patching model only covers direct calls,
// so this stub sequence is adopted fresh from the generic PLT contract
// rather than adapted line-for-line.
func (riscv64Relocator) EmitPLTEntry(idx int, pltBase, gotBase uint64) []byte {
	return []byte{
		0x17, 0x0e, 0x00, 0x00, // auipc t3, 0
		0x03, 0x3e, 0x0e, 0x00, // ld t3, 0(t3)
		0x67, 0x03, 0x0e, 0x00, // jalr t1, t3
		0x13, 0x00, 0x00, 0x00, // nop
	}
}
