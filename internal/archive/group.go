package archive

import (
	"github.com/rb1005/eld/internal/ir"
)

// ObjectReader parses one archive member's raw bytes into sections and
// local/exported symbols, registering exported symbols with pool. It is
// supplied by internal/link so this package stays independent of the ELF
// object reader.
type ObjectReader func(pool *ir.NamePool, member *ir.InputFile) error

// ExtractToFixpoint implements spec.md §4.1 rule 7: "when an undefined
// symbol is referenced and an archive provides it, the archive member
// becomes a new input file and its symbols are re-resolved. Extraction is
// transitive and iterates to a fixpoint per GROUP parentheses."
//
// needed reports whether name is currently referenced-but-undefined;
// provides maps a symbol name to the archive member (if any) across every
// archive in the group that defines it. Extraction repeats until no
// archive in the group yields a newly-needed symbol.
func ExtractToFixpoint(pool *ir.NamePool, archives []*ir.InputFile, provides map[string]*MemberLocation, needed func() []string, read ObjectReader) ([]*ir.InputFile, error) {
	var extracted []*ir.InputFile
	for {
		progressed := false
		for _, name := range needed() {
			loc, ok := provides[name]
			if !ok || loc.member.Extracted {
				continue
			}
			member := &ir.InputFile{
				Path:     loc.archive.Path + "(" + loc.member.Name + ")",
				Kind:     ir.InputELFRelocatable,
				Contents: Member(loc.archive, loc.member),
			}
			loc.member.Extracted = true
			loc.member.File = member
			if err := read(pool, member); err != nil {
				return extracted, err
			}
			extracted = append(extracted, member)
			progressed = true
		}
		if !progressed {
			return extracted, nil
		}
	}
}

// MemberLocation names which archive+member defines a given symbol,
// populated by a pre-scan of each archive's member symbol tables (the ar
// "symdef"/index member in a real archive; here it's built by internal/link
// calling ObjectReader in "symbols only" probing mode before the fixpoint
// loop starts, matching the documented extraction semantics without
// requiring this package to understand ELF symbol-table layout itself).
type MemberLocation struct {
	archive *ir.InputFile
	member  *ir.ArchiveMember
}

func NewMemberLocation(archive *ir.InputFile, member *ir.ArchiveMember) *MemberLocation {
	return &MemberLocation{archive: archive, member: member}
}
