package reloc

import "github.com/rb1005/eld/internal/ir"

// Relocator is the per-target interface spec.md §4.5's "Application"
// paragraph calls for: "invoke the target relocator's apply(relocation)
// -> Result". One implementation per architecture, selected by
// ir.Module.Arch.
type Relocator interface {
	// Shape classifies r's raw Type into the architecture-independent
	// judgment ClassifyGeneric needs.
	Shape(r *ir.Relocation) TargetShape

	// Apply computes the fixed-up bytes for r and writes them into dst
	// (the owning fragment's slice of the output buffer), given the
	// relocation's resolved inputs.
	Apply(r *ir.Relocation, dst []byte, in ApplyInputs) error

	// GOTEntrySize / PLTEntrySize / PLTHeaderSize report the byte sizes
	// GOT/PLT synthesis needs to lay out slots and stubs.
	GOTEntrySize() uint64
	PLTEntrySize() uint64
	PLTHeaderSize() uint64

	// EmitPLTEntry writes the byte-code of PLT stub index idx (0 is the
	// shared resolver header) targeting the given GOT slot address.
	EmitPLTEntry(idx int, pltBase, gotBase uint64) []byte
}

// ApplyInputs bundles the per-relocation resolved state the relocator
// needs: symbol value (already PLT-redirected if applicable), addend,
// the relocation's own virtual address ("place"), and its HI/LO partner
// if paired.
type ApplyInputs struct {
	SymbolValue uint64
	Addend      int64
	Place       uint64
	PairedHI    *ApplyInputs // non-nil when applying a LO12 half needing its HI20's bias

	// StaticLink is set for a statically-linked output, the precondition
	// spec.md §8 scenario S6 requires before a RISC-V PCREL_HI20 overflow
	// may fall back to an absolute LUI/LO12_I rewrite.
	StaticLink bool

	// Trace, when non-nil, receives a human-readable note for any
	// relocation-apply-time rewrite worth surfacing under --verbose (e.g.
	// the PCREL_HI20->LUI fallback).
	Trace func(format string, args ...any)
}

// ErrKind classifies apply-time failures per spec.md §4.5's error list.
type ErrKind int

const (
	ErrOverflow ErrKind = iota
	ErrBadReloc
	ErrUnsupported
)

// ApplyError carries the kind plus a human-readable detail.
type ApplyError struct {
	Kind   ErrKind
	Detail string
}

func (e *ApplyError) Error() string { return e.Detail }

// ForArch returns the Relocator for arch, or nil if unimplemented.
func ForArch(arch ir.Arch) Relocator {
	switch arch {
	case ir.ArchX86_64:
		return &x86_64Relocator{}
	case ir.ArchAArch64:
		return &aarch64Relocator{}
	case ir.ArchRISCV64:
		return &riscv64Relocator{}
	case ir.ArchARM:
		return &armRelocator{}
	case ir.ArchHexagon:
		return &hexagonRelocator{}
	default:
		return nil
	}
}
