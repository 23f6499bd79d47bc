package reloc

import (
	"encoding/binary"
	"fmt"

	"github.com/rb1005/eld/internal/ir"
)

// armRelocator covers the 32-bit ARM relocation types needed to place and
// patch .ARM.exidx-bearing objects (spec.md's SUPPLEMENTED FEATURES).
// ARM's relocation set is large; only the commonly emitted subset is
// implemented, matching the teacher's stance of supporting a workable
// core rather than a fully exhaustive table (the teacher's own codegen
// only emits a handful of relocation kinds per architecture).
type armRelocator struct{}

const (
	rARMAbs32  = 2
	rARMCall   = 28
	rARMJump24 = 29
	rARMRel32  = 3
)

func (armRelocator) Shape(r *ir.Relocation) TargetShape {
	switch r.Type {
	case rARMAbs32:
		return ShapeAbsolute
	case rARMCall, rARMJump24:
		return ShapePLT
	default:
		return ShapePCRelative
	}
}

func (armRelocator) Apply(r *ir.Relocation, dst []byte, in ApplyInputs) error {
	v := int64(in.SymbolValue) + in.Addend
	switch r.Type {
	case rARMAbs32:
		if len(dst) < 4 {
			return &ApplyError{ErrBadReloc, "R_ARM_ABS32: fragment too small"}
		}
		binary.LittleEndian.PutUint32(dst, uint32(v))
	case rARMCall, rARMJump24:
		offset := v - int64(in.Place)
		if offset < -0x2000000 || offset >= 0x2000000 {
			return &ApplyError{ErrOverflow, fmt.Sprintf("R_ARM_CALL/JUMP24: offset 0x%x does not fit 26 bits", offset)}
		}
		instr := binary.LittleEndian.Uint32(dst)
		imm24 := uint32(offset>>2) & 0xFFFFFF
		instr = (instr &^ 0xFFFFFF) | imm24
		binary.LittleEndian.PutUint32(dst, instr)
	case rARMRel32:
		offset := v - int64(in.Place)
		binary.LittleEndian.PutUint32(dst, uint32(int32(offset)))
	default:
		return &ApplyError{ErrUnsupported, fmt.Sprintf("arm: unsupported relocation type %d", r.Type)}
	}
	return nil
}

func (armRelocator) GOTEntrySize() uint64  { return 4 }
func (armRelocator) PLTEntrySize() uint64  { return 12 }
func (armRelocator) PLTHeaderSize() uint64 { return 20 }

func (armRelocator) EmitPLTEntry(idx int, pltBase, gotBase uint64) []byte {
	return []byte{
		0x04, 0xc0, 0x9f, 0xe5, // ldr ip, [pc, #4]
		0x0c, 0xc0, 0x8f, 0xe0, // add ip, pc, ip
		0x00, 0xf0, 0x9c, 0xe5, // ldr pc, [ip]
	}
}
