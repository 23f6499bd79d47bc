// Package input reads input files (ELF relocatable objects, shared
// objects, archives, linker scripts) from disk into the memory-mapped
// contents an ir.InputFile owns (spec.md §3.1). Grounded on saferwall-pe's
// use of github.com/edsrzf/mmap-go for exactly this "map the file, don't
// read it" shape.
package input

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/edsrzf/mmap-go"
	"github.com/klauspost/compress/zlib"
)

// MappedFile is a memory-mapped input file. Callers must call Close once
// the link no longer needs its bytes (spec.md §3.3: "Input files: created
// in Prepare, never destroyed before Emit").
type MappedFile struct {
	f    *os.File
	mmap mmap.MMap
	data []byte
}

// Open memory-maps path read-only. Zero-length files (some linker-script
// fixtures, or an empty archive) fall back to a nil-backed empty slice
// since mmap of a zero-length file is an error on most platforms.
func Open(path string) (*MappedFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("input: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("input: %w", err)
	}
	if info.Size() == 0 {
		return &MappedFile{f: f}, nil
	}
	m, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("input: mmap %s: %w", path, err)
	}
	return &MappedFile{f: f, mmap: m, data: []byte(m)}, nil
}

// Bytes returns the mapped contents.
func (m *MappedFile) Bytes() []byte { return m.data }

func (m *MappedFile) Close() error {
	var err error
	if m.mmap != nil {
		err = m.mmap.Unmap()
	}
	if cerr := m.f.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}

// ELFCompressedHeader mirrors Elf64_Chdr: the fixed header prefixing a
// SHF_COMPRESSED section's content.
type ELFCompressedHeader struct {
	Type      uint32
	_         uint32 // reserved/padding
	Size      uint64
	AddrAlign uint64
}

// Decompress inflates a SHF_COMPRESSED/ELFCOMPRESS_ZLIB section's raw
// bytes (header + zlib stream) into its decompressed content (spec.md §6:
// "Compressed sections ... are decompressed on read"). Only the zlib
// compression type is specified by the generic ABI; any other ch_type is
// rejected.
func Decompress(raw []byte) ([]byte, error) {
	if len(raw) < 24 {
		return nil, fmt.Errorf("input: compressed section header truncated")
	}
	chType := leUint32(raw[0:4])
	chSize := leUint64(raw[8:16])
	if chType != 1 { // ELFCOMPRESS_ZLIB
		return nil, fmt.Errorf("input: unsupported compression type %d", chType)
	}
	zr, err := zlib.NewReader(bytes.NewReader(raw[24:]))
	if err != nil {
		return nil, fmt.Errorf("input: zlib: %w", err)
	}
	defer zr.Close()
	out := make([]byte, 0, chSize)
	buf := new(bytes.Buffer)
	if _, err := io.Copy(buf, zr); err != nil {
		return nil, fmt.Errorf("input: zlib decompress: %w", err)
	}
	out = append(out, buf.Bytes()...)
	return out, nil
}

func leUint32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

func leUint64(b []byte) uint64 {
	var v uint64
	for i := 0; i < 8; i++ {
		v |= uint64(b[i]) << (8 * i)
	}
	return v
}
