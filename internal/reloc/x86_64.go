package reloc

import (
	"encoding/binary"
	"fmt"

	"github.com/rb1005/eld/internal/elf"
	"github.com/rb1005/eld/internal/ir"
)

// x86_64Relocator applies x86-64 relocations, generalizing the teacher's
// patchX86PLTCalls (call-site immediate patching) and GeneratePLT/
// GenerateGOT (plt_got.go) from a fixed function-list model into the
// ResolveInfo-driven scan/apply pipeline.
type x86_64Relocator struct{}

func (x86_64Relocator) Shape(r *ir.Relocation) TargetShape {
	switch r.Type {
	case elf.RX8664_64, elf.RX8664_32, elf.RX8664_32S:
		return ShapeAbsolute
	case elf.RX8664PC32, elf.RX8664PLT32:
		return ShapePLT
	case elf.RX8664GOTPCRel:
		return ShapeGOT
	case elf.RX8664TLSGD:
		return ShapeTLSGD
	case elf.RX8664TLSLD:
		return ShapeTLSLD
	case elf.RX8664GOTTPOff:
		return ShapeTLSIE
	case elf.RX8664TPOff32:
		return ShapeTLSLE
	default:
		return ShapePCRelative
	}
}

func (x86_64Relocator) Apply(r *ir.Relocation, dst []byte, in ApplyInputs) error {
	v := int64(in.SymbolValue) + in.Addend
	switch r.Type {
	case elf.RX8664_64:
		if len(dst) < 8 {
			return &ApplyError{ErrBadReloc, "R_X86_64_64: fragment too small"}
		}
		binary.LittleEndian.PutUint64(dst, uint64(v))
	case elf.RX8664_32:
		if uint64(v) > 0xffffffff {
			return &ApplyError{ErrOverflow, fmt.Sprintf("R_X86_64_32: value 0x%x does not fit 32 bits", v)}
		}
		binary.LittleEndian.PutUint32(dst, uint32(v))
	case elf.RX8664_32S:
		if v < -0x80000000 || v > 0x7fffffff {
			return &ApplyError{ErrOverflow, fmt.Sprintf("R_X86_64_32S: value 0x%x does not fit signed 32 bits", v)}
		}
		binary.LittleEndian.PutUint32(dst, uint32(int32(v)))
	case elf.RX8664PC32, elf.RX8664PLT32, elf.RX8664GOTPCRel, elf.RX8664TLSGD, elf.RX8664TLSLD, elf.RX8664GOTTPOff:
		rel := v - int64(in.Place)
		if rel < -0x80000000 || rel > 0x7fffffff {
			return &ApplyError{ErrOverflow, fmt.Sprintf("PC32-class relocation: offset 0x%x does not fit 32 bits", rel)}
		}
		binary.LittleEndian.PutUint32(dst, uint32(int32(rel)))
	case elf.RX8664TPOff32:
		binary.LittleEndian.PutUint32(dst, uint32(int32(v)))
	default:
		return &ApplyError{ErrUnsupported, fmt.Sprintf("x86_64: unsupported relocation type %d", r.Type)}
	}
	return nil
}

func (x86_64Relocator) GOTEntrySize() uint64  { return 8 }
func (x86_64Relocator) PLTEntrySize() uint64  { return 16 }
func (x86_64Relocator) PLTHeaderSize() uint64 { return 16 }

// EmitPLTEntry mirrors plt_got.go's GeneratePLT byte sequence: a shared
// resolver stub at index 0 (push GOT[1]; jmp *GOT[2]), then one push-index
// + jmp-to-resolver stub per function, all generalized to arbitrary
// GOT/PLT base addresses instead of a fixed function-list offset scheme.
func (x86_64Relocator) EmitPLTEntry(idx int, pltBase, gotBase uint64) []byte {
	if idx == 0 {
		buf := make([]byte, 0, 16)
		buf = append(buf, 0xff, 0x35)
		buf = appendLE32(buf, uint32(gotBase+8-pltBase-6))
		buf = append(buf, 0xff, 0x25)
		buf = appendLE32(buf, uint32(gotBase+16-pltBase-12))
		buf = append(buf, 0x0f, 0x1f, 0x40, 0x00)
		return buf
	}
	pltOffset := pltBase + uint64(idx)*16
	gotOffset := gotBase + uint64(24+(idx-1)*8)
	buf := make([]byte, 0, 16)
	buf = append(buf, 0xff, 0x25)
	buf = appendLE32(buf, uint32(int32(gotOffset-pltOffset-6)))
	buf = append(buf, 0x68)
	buf = appendLE32(buf, uint32(idx-1))
	buf = append(buf, 0xe9)
	buf = appendLE32(buf, uint32(int32(pltBase-pltOffset-16)))
	return buf
}

func appendLE32(dst []byte, v uint32) []byte {
	return append(dst, byte(v), byte(v>>8), byte(v>>16), byte(v>>24))
}
