package emit

import (
	"crypto/sha1"
	"encoding/binary"
)

// BuildIDNoteSize is the total byte size of a GNU build-ID note
// (Elf_Nhdr header + "GNU\0" name + a 20-byte SHA-1 tag), reserved in the
// layout before the final image bytes are known.
const BuildIDNoteSize = 12 + 4 + sha1.Size

// ComputeBuildID hashes the final image (with the note's tag bytes still
// zeroed) and returns the 20-byte SHA-1 build-ID tag (spec.md §6:
// "computed over the final image and patched back into its note
// section").
func ComputeBuildID(image []byte) [sha1.Size]byte {
	return sha1.Sum(image)
}

// PatchBuildIDNote writes a complete GNU build-ID note (Elf_Nhdr + "GNU\0"
// + tag) into dst, which must be at least BuildIDNoteSize bytes.
func PatchBuildIDNote(dst []byte, tag [sha1.Size]byte) {
	const (
		nameSize = 4 // "GNU\0"
		noteType = 3 // NT_GNU_BUILD_ID
	)
	binary.LittleEndian.PutUint32(dst[0:4], nameSize)
	binary.LittleEndian.PutUint32(dst[4:8], sha1.Size)
	binary.LittleEndian.PutUint32(dst[8:12], noteType)
	copy(dst[12:16], "GNU\x00")
	copy(dst[16:16+sha1.Size], tag[:])
}

// ZeroBuildIDTag clears a previously patched note's tag bytes so the image
// can be rehashed deterministically (e.g. during --patch-enable's
// re-link), leaving the header and name untouched.
func ZeroBuildIDTag(dst []byte) {
	for i := 16; i < 16+sha1.Size; i++ {
		dst[i] = 0
	}
}
