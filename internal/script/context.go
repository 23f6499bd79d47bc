package script

// MemoryRegion exposes the subset of ScriptMemoryRegion state expressions
// need to answer ORIGIN()/LENGTH() queries.
type MemoryRegion interface {
	Origin() uint64
	Length() uint64
}

// SectionInfo exposes the subset of output-section state SIZEOF/ADDR/
// LOADADDR/ALIGNOF need.
type SectionInfo interface {
	Size() uint64
	Addr() uint64
	LoadAddr() uint64
	Align() uint64
}

// SegmentInfo exposes SIZEOF(:name)'s p_filesz.
type SegmentInfo interface {
	FileSize() uint64
}

// Context is the evaluation environment threaded through Eval: the
// current dot value, the named memory regions and output sections, and
// hooks back into the symbol table and address-override configuration.
type Context struct {
	Dot uint64

	Sections map[string]SectionInfo
	Memories map[string]MemoryRegion
	Segments map[string]SegmentInfo

	// SymbolDefined reports whether name has a chosen, valued definition
	// in the NamePool (DEFINED()).
	SymbolDefined func(name string) bool
	// SymbolValue returns a defined symbol's value (plain symbol refs).
	SymbolValue func(name string) (uint64, bool)

	// SectionStart answers SEGMENT_START: if the user passed
	// -Tseg/--section-start for this segment name, that value is
	// returned; else ok is false and the default expression is used.
	SectionStart func(seg string) (uint64, bool)

	MaxPageSize    uint64
	CommonPageSize uint64

	// SizeofHeaders is precomputed by the layout engine (ELF header size
	// + program header table size) before expressions are evaluated.
	SizeofHeaders uint64

	// OnWarning receives non-fatal diagnostics raised during eval (e.g.
	// ALIGN's non-power-of-2 warning) without aborting evaluation.
	OnWarning func(id int, args ...string)
}

func NewContext() *Context {
	return &Context{
		Sections:       map[string]SectionInfo{},
		Memories:       map[string]MemoryRegion{},
		Segments:       map[string]SegmentInfo{},
		MaxPageSize:    0x1000,
		CommonPageSize: 0x1000,
	}
}
