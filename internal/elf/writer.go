package elf

import "encoding/binary"

// Writer is the abstract per-fragment emitter the core invokes (spec.md
// §1: "the core invokes an abstract emitter per fragment"). A concrete
// implementation owns a backing buffer (mmap'd output file or an in-memory
// byte slice) and writes at absolute file offsets so that distinct
// sections can be written concurrently during emission (spec.md §5: "The
// output memory-mapped buffer is partitioned by section offset; distinct
// writers touch disjoint byte ranges and can proceed in parallel during
// emission").
type Writer interface {
	// WriteAt writes data at the given file offset.
	WriteAt(data []byte, offset uint64) (int, error)
}

// BufWriter is an in-memory Writer; internal/link's Emit builds every
// output image in one, and tests use it directly.
type BufWriter struct {
	Buf []byte
}

func NewBufWriter(size uint64) *BufWriter {
	return &BufWriter{Buf: make([]byte, size)}
}

func (w *BufWriter) WriteAt(data []byte, offset uint64) (int, error) {
	need := offset + uint64(len(data))
	if need > uint64(len(w.Buf)) {
		grown := make([]byte, need)
		copy(grown, w.Buf)
		w.Buf = grown
	}
	copy(w.Buf[offset:], data)
	return len(data), nil
}

// PutLE writes an unsigned little-endian integer of the given width
// (1/2/4/8 bytes) into dst at offset 0, mirroring the teacher's
// o.Write/o.Write2/o.Write4/o.Write8u helpers in elf_complete.go.
func PutLE(dst []byte, v uint64, width int) {
	switch width {
	case 1:
		dst[0] = byte(v)
	case 2:
		binary.LittleEndian.PutUint16(dst, uint16(v))
	case 4:
		binary.LittleEndian.PutUint32(dst, uint32(v))
	case 8:
		binary.LittleEndian.PutUint64(dst, v)
	}
}
