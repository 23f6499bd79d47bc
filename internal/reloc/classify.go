// Package reloc implements relocation scanning, GOT/PLT/copy-relocation
// synthesis, and the per-target apply phase (spec.md §4.5). Grounded on
// the teacher's plt_got.go (GeneratePLT/GenerateGOT byte-patching shape)
// and elf_complete.go's patchX86PLTCalls/patchARM64PLTCalls/
// patchRISCVPLTCalls functions, generalized from the teacher's
// fixed-function-list model into a per-ResolveInfo reservation scan
// driven by the RelocClass table.
package reloc

import "github.com/rb1005/eld/internal/ir"

// ScanContext carries the link-wide facts ClassifyGeneric needs to apply
// the generic per-relocation classification table of spec.md §4.5 on top
// of the target shape a per-target Relocator reports.
type ScanContext struct {
	DynamicLink  bool
	Symbolic     bool
	StaticLink   bool
	OutputShared bool
}

// ClassifyGeneric maps a target-classified relocation shape plus a
// symbol's preemptibility into the generic RelocClass table.
func ClassifyGeneric(shape TargetShape, sym *ir.ResolveInfo, sc ScanContext) ir.RelocClass {
	preemptible := sym != nil && sym.Preemptible(sc.DynamicLink, sc.Symbolic)

	switch shape {
	case ShapeAbsolute:
		switch {
		case sym == nil || sym.Binding == ir.BindLocal:
			if sc.DynamicLink {
				return ir.RelocAbsoluteLocalPIC
			}
			return ir.RelocNone
		case preemptible:
			return ir.RelocAbsolutePreemptibleGlobal
		case sym.Type == ir.SymFunc || sym.Type == ir.SymObject:
			if sc.DynamicLink && !sc.OutputShared {
				return ir.RelocAbsoluteCopy
			}
			return ir.RelocNone
		default:
			return ir.RelocNone
		}
	case ShapePCRelative:
		return ir.RelocPCRelativeSameTU
	case ShapeGOT:
		return ir.RelocGOTRelative
	case ShapePLT:
		if preemptible {
			return ir.RelocPLTCall
		}
		return ir.RelocPCRelativeSameTU
	case ShapeTLSGD:
		if sc.StaticLink {
			return ir.RelocTLSLE
		}
		return ir.RelocTLSGD
	case ShapeTLSLD:
		if sc.StaticLink {
			return ir.RelocTLSLE
		}
		return ir.RelocTLSLD
	case ShapeTLSIE:
		if sc.StaticLink {
			return ir.RelocTLSLE
		}
		return ir.RelocTLSIE
	case ShapeTLSLE:
		return ir.RelocTLSLE
	default:
		return ir.RelocNone
	}
}

// TargetShape is the architecture-independent "what kind of access is
// this relocation" judgment a per-target relocator makes from its raw
// relocation type number, before the generic preemptibility rules apply.
type TargetShape int

const (
	ShapeAbsolute TargetShape = iota
	ShapePCRelative
	ShapeGOT
	ShapePLT
	ShapeTLSGD
	ShapeTLSLD
	ShapeTLSIE
	ShapeTLSLE
)
