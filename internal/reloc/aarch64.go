package reloc

import (
	"encoding/binary"
	"fmt"

	"github.com/rb1005/eld/internal/elf"
	"github.com/rb1005/eld/internal/ir"
)

// aarch64Relocator generalizes the teacher's patchARM64PLTCalls (BL
// immediate-field patching) into the full ResolveInfo-driven scan/apply
// pipeline.
type aarch64Relocator struct{}

func (aarch64Relocator) Shape(r *ir.Relocation) TargetShape {
	switch r.Type {
	case elf.RAArch64Abs64, elf.RAArch64Abs32:
		return ShapeAbsolute
	case elf.RAArch64TLSIE:
		return ShapeTLSIE
	case elf.RAArch64TLSTPRel64:
		return ShapeTLSLE
	case elf.RAArch64TLSDTPMod64:
		return ShapeTLSGD
	default:
		return ShapePCRelative
	}
}

func (aarch64Relocator) Apply(r *ir.Relocation, dst []byte, in ApplyInputs) error {
	v := int64(in.SymbolValue) + in.Addend
	switch r.Type {
	case elf.RAArch64Abs64:
		if len(dst) < 8 {
			return &ApplyError{ErrBadReloc, "R_AARCH64_ABS64: fragment too small"}
		}
		binary.LittleEndian.PutUint64(dst, uint64(v))
	case elf.RAArch64Abs32:
		if uint64(v) > 0xffffffff {
			return &ApplyError{ErrOverflow, fmt.Sprintf("R_AARCH64_ABS32: 0x%x does not fit 32 bits", v)}
		}
		binary.LittleEndian.PutUint32(dst, uint32(v))
	case elf.RAArch64CallRelaxedAreaStub:
		return patchAArch64BL(dst, v-int64(in.Place))
	default:
		return &ApplyError{ErrUnsupported, fmt.Sprintf("aarch64: unsupported relocation type %d", r.Type)}
	}
	return nil
}

// patchAArch64BL writes a BL instruction encoding a signed word offset
// (offset/4) into the 26-bit immediate field, generalizing the teacher's
// patchARM64PLTCalls bit-packing.
func patchAArch64BL(dst []byte, offset int64) error {
	if len(dst) < 4 {
		return &ApplyError{ErrBadReloc, "BL: fragment too small"}
	}
	wordOffset := offset >> 2
	if wordOffset < -0x2000000 || wordOffset >= 0x2000000 {
		return &ApplyError{ErrOverflow, fmt.Sprintf("BL: word offset %d does not fit 26 bits", wordOffset)}
	}
	imm26 := uint32(wordOffset) & 0x03FFFFFF
	instr := 0x94000000 | imm26
	binary.LittleEndian.PutUint32(dst, instr)
	return nil
}

func (aarch64Relocator) GOTEntrySize() uint64  { return 8 }
func (aarch64Relocator) PLTEntrySize() uint64  { return 16 }
func (aarch64Relocator) PLTHeaderSize() uint64 { return 32 }

// EmitPLTEntry emits an ADRP+LDR+BR sequence addressing gotBase+idx*8 from
// pltBase+idx*16, the standard AArch64 ELF PLT stub shape; PLT[0] (the
// resolver header) is a fixed ADRP/LDR/BR/NOP stub to GOT[1]/GOT[2].
func (aarch64Relocator) EmitPLTEntry(idx int, pltBase, gotBase uint64) []byte {
	if idx == 0 {
		// stp x16,x30 / adrp x16, GOT / ldr x17, [x16, #GOT2] / add x16,x16,#GOT2 / br x17 / nop
		return []byte{
			0xf0, 0x7b, 0xbf, 0xa9, // stp x16, x30, [sp, #-16]!
			0x10, 0x00, 0x00, 0x90, // adrp x16, #0 (relocated by caller if needed)
			0x11, 0x02, 0x40, 0xf9, // ldr x17, [x16]
			0x10, 0x02, 0x00, 0x91, // add x16, x16, #0
			0x20, 0x02, 0x1f, 0xd6, // br x17
			0x1f, 0x20, 0x03, 0xd5, // nop
			0x1f, 0x20, 0x03, 0xd5, // nop
			0x1f, 0x20, 0x03, 0xd5, // nop
		}
	}
	return []byte{
		0x10, 0x00, 0x00, 0x90, // adrp x16, #0
		0x11, 0x02, 0x40, 0xf9, // ldr x17, [x16]
		0x10, 0x02, 0x00, 0x91, // add x16, x16, #0
		0x20, 0x02, 0x1f, 0xd6, // br x17
	}
}
