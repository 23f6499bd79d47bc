package ir

// InputKind tags the variant over input-file formats spec.md §3.1 lists.
type InputKind int

const (
	InputELFRelocatable InputKind = iota
	InputELFSharedObject
	InputELFExecutable // --patch-base
	InputArchive
	InputBitcode
	InputLinkerScript
	InputInternal
)

// InternalRole names the well-known synthesized role of an InputInternal
// file (GOT, PLT, common pool, build-ID, etc. -- spec.md §3.1: "Internal
// input files host synthesized sections ... one per well-known internal
// role").
type InternalRole int

const (
	RoleNone InternalRole = iota
	RoleGOT
	RolePLT
	RoleGOTPLT
	RoleCommon
	RoleBuildID
	RoleDynamic
	RoleDynSym
	RoleDynStr
	RoleHash
	RoleGNUHash
	RoleInterp
	RoleBSSCopy
)

// InputFile is a tagged variant over the input-file formats the linker
// consumes.
type InputFile struct {
	Path     string
	Kind     InputKind
	Role     InternalRole // meaningful only when Kind == InputInternal
	Contents []byte       // memory-mapped contents (internal/input owns the mmap)
	Sections []*Section

	// SONAME is set for InputELFSharedObject.
	SONAME string

	// GroupSignature identifies the archive member's containing GROUP()
	// for thin-archive/--start-group transitive extraction bookkeeping.
	GroupSignature string

	// LocalSymbols is this file's own local (non-exported) symbol table;
	// entries here never go through the NamePool.
	LocalSymbols []*LDSymbol

	// ArchiveMembers is populated when Kind == InputArchive: each member
	// becomes its own InputFile, lazily extracted on first reference
	// (spec.md §4.1 rule 7).
	ArchiveMembers []*ArchiveMember
}

// ArchiveMember is one ar member: its name, byte range within the
// archive's Contents, and whether it has been extracted into the link yet.
type ArchiveMember struct {
	Name      string
	Offset    int64
	Size      int64
	Extracted bool
	File      *InputFile // populated once Extracted
}

// NewInternal creates a well-known internal input file hosting
// synthesized sections for the given role.
func NewInternal(role InternalRole) *InputFile {
	return &InputFile{Kind: InputInternal, Role: role, Path: "<internal:" + roleName(role) + ">"}
}

func roleName(r InternalRole) string {
	switch r {
	case RoleGOT:
		return "got"
	case RolePLT:
		return "plt"
	case RoleGOTPLT:
		return "gotplt"
	case RoleCommon:
		return "common"
	case RoleBuildID:
		return "build-id"
	case RoleDynamic:
		return "dynamic"
	case RoleDynSym:
		return "dynsym"
	case RoleDynStr:
		return "dynstr"
	case RoleHash:
		return "hash"
	case RoleGNUHash:
		return "gnu.hash"
	case RoleInterp:
		return "interp"
	case RoleBSSCopy:
		return "bss-copy"
	default:
		return "none"
	}
}
