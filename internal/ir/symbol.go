package ir

// SymType classifies what a symbol names.
type SymType int

const (
	SymNone SymType = iota
	SymObject
	SymFunc
	SymSection
	SymFile
	SymTLS
	SymCommon
	SymIFunc
)

// Descriptor classifies a symbol's defined-ness.
type Descriptor int

const (
	DescUndefined Descriptor = iota
	DescDefined
	DescCommon
	DescAbsolute
	DescIndirect // ifunc
)

// Binding is the symbol's linkage binding.
type Binding int

const (
	BindLocal Binding = iota
	BindGlobal
	BindWeak
)

// Visibility controls whether a symbol is preemptible across a dynamic
// linking boundary.
type Visibility int

const (
	VisDefault Visibility = iota
	VisInternal
	VisHidden
	VisProtected
)

// minVisibility returns the more restrictive of two visibilities, used when merging
// multiple occurrences of the same name (spec.md §4.1 rule 4: "Visibility
// is the minimum (most restrictive) across occurrences").
func minVisibility(a, b Visibility) Visibility {
	rank := func(v Visibility) int {
		switch v {
		case VisDefault:
			return 0
		case VisProtected:
			return 1
		case VisHidden:
			return 2
		case VisInternal:
			return 3
		}
		return 0
	}
	if rank(a) >= rank(b) {
		return a
	}
	return b
}

// Reserved is a bitmask of linker-synthesized artifacts a ResolveInfo
// requires. Tracking it on the ResolveInfo keeps the relocation scan
// idempotent (spec.md §4.5: "The ResolveInfo.reserved bitmask tracks {GOT,
// PLT, CopyRel, DynRel} to make the scan idempotent").
type Reserved uint8

const (
	ReserveGOT Reserved = 1 << iota
	ReservePLT
	ReserveCopy
	ReserveRel
	ReserveTLSModuleID
	ReserveTLSOffset
)

func (r Reserved) Has(bit Reserved) bool { return r&bit != 0 }

// ResolveInfo is the canonical record for a linkable symbol name: at most
// one exists per name in a NamePool (spec.md §3.1).
type ResolveInfo struct {
	Name       string
	Type       SymType
	Desc       Descriptor
	Binding    Binding
	Visibility Visibility
	Size       uint64

	// SourceFile is the input file that first defined this symbol's
	// current winning occurrence.
	SourceFile *InputFile

	// OutSymbol is the chosen definition that will appear in the output;
	// at most one per ResolveInfo.
	OutSymbol *LDSymbol

	// Alias is the canonical holder when this ResolveInfo's definition is
	// linked into an alias chain (same value+section as another symbol).
	Alias *ResolveInfo

	// ForcedLocal is set by a version-script pattern that demotes this
	// name to local scope (spec.md §4.1 rule 6).
	ForcedLocal bool

	// WrapOriginalBinding preserves --wrap=X's saved original binding of
	// X so later passes can undo or inspect it (spec.md §4.1 rule 5).
	WrapOriginalBinding *Binding

	Reserved Reserved
}

// Preemptible reports whether this symbol can be overridden by a
// definition in another, dynamically-linked component, per spec.md §4.5:
// "default-visibility global in a dynamic link where the symbol is not
// forced-local by version script and the output is not -Bsymbolic for this
// scope."
func (r *ResolveInfo) Preemptible(dynamicLink, symbolic bool) bool {
	if !dynamicLink || symbolic {
		return false
	}
	if r.ForcedLocal || r.Binding == BindLocal {
		return false
	}
	return r.Visibility == VisDefault
}

// LDSymbol is a per-occurrence symbol reference: one is created per input
// sighting of a name, and many share a single ResolveInfo by name.
type LDSymbol struct {
	Info  *ResolveInfo
	Value uint64

	// Frag, when non-nil, anchors this occurrence's value to a fragment
	// offset rather than an absolute value (e.g. SHN_ABS symbols have a
	// nil Frag).
	Frag       *FragmentRef
	SourceFile *InputFile
}

// FragmentRef names a byte offset within a Fragment, the common shape used
// both by LDSymbol.Frag and by Relocation.Target.
type FragmentRef struct {
	Fragment *Fragment
	Offset   uint64
}
