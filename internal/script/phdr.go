package script

// Phdr is a PhdrSpec: (name, type, FILEHDR, PHDRS, optional AT address
// expression, optional FLAGS expression).
type Phdr struct {
	Name     string
	Type     string // e.g. "PT_LOAD", "PT_DYNAMIC", or a numeric type as text
	FileHdr  bool
	PhdrsHdr bool
	At       *Expression
	Flags    *Expression

	// Sections assigned to this PHDR, populated during layout.
	Sections []string
}

// Phdr has no file-size field: SIZEOF(:name) (spec.md §4.2) reads a
// segment's size through the SegmentInfo interface in Context.Segments,
// not through this struct (Phdr itself only carries the script-level
// spec).

