// Package archive reads ar-format archives ("!<arch>" magic only; GNU thin
// archives, "!<thin>", are rejected as bad magic) and drives the transitive, fixpoint GROUP()-style extraction spec.md
// §4.1 rule 7 describes. Byte-level ar parsing is hand-rolled stdlib: no
// repo in the retrieval pack carries an ar reader, so there is no library
// to ground this on (see DESIGN.md).
package archive

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/rb1005/eld/internal/ir"
)

const (
	globalHeaderMagic = "!<arch>\n"
	memberHeaderSize  = 60
)

// Parse reads the ar container in data and populates file's ArchiveMembers
// (without extracting any member yet -- extraction is lazy, driven by
// symbol resolution per spec.md §4.1 rule 7).
func Parse(file *ir.InputFile, data []byte) error {
	if len(data) < len(globalHeaderMagic) || string(data[:len(globalHeaderMagic)]) != globalHeaderMagic {
		return fmt.Errorf("archive: %s: not an ar archive (bad magic)", file.Path)
	}

	var longNames []byte
	off := int64(len(globalHeaderMagic))
	for off+memberHeaderSize <= int64(len(data)) {
		hdr := data[off : off+memberHeaderSize]
		name := strings.TrimRight(string(hdr[0:16]), " ")
		sizeStr := strings.TrimSpace(string(hdr[48:58]))
		size, err := strconv.ParseInt(sizeStr, 10, 64)
		if err != nil {
			return fmt.Errorf("archive: %s: malformed member size %q: %w", file.Path, sizeStr, err)
		}

		contentOff := off + memberHeaderSize
		if name == "//" {
			// GNU extended-name table: not itself a link input.
			longNames = data[contentOff : contentOff+size]
		} else {
			resolved := resolveName(name, longNames)
			if resolved != "/" && resolved != "" {
				file.ArchiveMembers = append(file.ArchiveMembers, &ir.ArchiveMember{
					Name:   resolved,
					Offset: contentOff,
					Size:   size,
				})
			}
		}

		// Members are padded to even byte boundaries.
		next := contentOff + size
		if next%2 != 0 {
			next++
		}
		off = next
	}
	return nil
}

// resolveName handles GNU extended names ("/123" into the "//" table) and
// strips the conventional "/" or "/\n" terminator BSD/GNU ar uses.
func resolveName(raw string, longNames []byte) string {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "/") && len(raw) > 1 {
		if idx, err := strconv.Atoi(raw[1:]); err == nil && idx >= 0 && idx < len(longNames) {
			end := idx
			for end < len(longNames) && longNames[end] != '\n' {
				end++
			}
			return strings.TrimRight(string(longNames[idx:end]), "/")
		}
	}
	return strings.TrimSuffix(raw, "/")
}

// Member returns the raw bytes of member within the archive's own mapped
// contents.
func Member(archive *ir.InputFile, member *ir.ArchiveMember) []byte {
	return archive.Contents[member.Offset : member.Offset+member.Size]
}
