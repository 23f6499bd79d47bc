package reloc

import (
	"encoding/binary"
	"fmt"

	"github.com/rb1005/eld/internal/ir"
)

// hexagonRelocator is a minimal backend covering absolute and PC-relative
// word relocations; Hexagon's packet-oriented instruction encoding means
// most real relocation types rewrite sub-fields of a VLIW packet, which is
// out of scope here (spec.md scopes per-target relocation arithmetic
// tables as specified abstractly, not exhaustively implemented for every
// architecture).
type hexagonRelocator struct{}

const (
	rHexagon32   = 6
	rHexagonB22Pcrel = 1
)

func (hexagonRelocator) Shape(r *ir.Relocation) TargetShape {
	if r.Type == rHexagon32 {
		return ShapeAbsolute
	}
	return ShapePCRelative
}

func (hexagonRelocator) Apply(r *ir.Relocation, dst []byte, in ApplyInputs) error {
	v := int64(in.SymbolValue) + in.Addend
	switch r.Type {
	case rHexagon32:
		if len(dst) < 4 {
			return &ApplyError{ErrBadReloc, "R_HEX_32: fragment too small"}
		}
		binary.LittleEndian.PutUint32(dst, uint32(v))
	case rHexagonB22Pcrel:
		offset := v - int64(in.Place)
		if offset < -0x400000 || offset >= 0x400000 {
			return &ApplyError{ErrOverflow, fmt.Sprintf("R_HEX_B22_PCREL: offset 0x%x does not fit 22 bits", offset)}
		}
		instr := binary.LittleEndian.Uint32(dst)
		imm := uint32(offset>>2) & 0x3FFFFF
		instr = (instr &^ 0x3FFFFF) | imm
		binary.LittleEndian.PutUint32(dst, instr)
	default:
		return &ApplyError{ErrUnsupported, fmt.Sprintf("hexagon: unsupported relocation type %d", r.Type)}
	}
	return nil
}

func (hexagonRelocator) GOTEntrySize() uint64  { return 4 }
func (hexagonRelocator) PLTEntrySize() uint64  { return 16 }
func (hexagonRelocator) PLTHeaderSize() uint64 { return 32 }

func (hexagonRelocator) EmitPLTEntry(idx int, pltBase, gotBase uint64) []byte {
	return make([]byte, 16)
}
