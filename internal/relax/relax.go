// Package relax implements the RISC-V linker relaxation pass (spec.md
// §4.6): an iterative fixed-point loop that rewrites larger instruction
// sequences into smaller equivalents once final addresses are known,
// deleting surplus bytes and shifting every following offset in the same
// fragment list by the deletion size. No pack repo implements linker
// relaxation directly; instruction shapes are decoded with
// golang.org/x/arch/riscv64/riscv64asm (the pack's aclements-go-obj /
// aclements-objbrowse repos use the sibling x86asm/arm64asm packages the
// same way -- decode, inspect, act) instead of hand-rolled opcode masks.
package relax

import (
	"encoding/binary"

	"github.com/rb1005/eld/internal/elf"
	"github.com/rb1005/eld/internal/ir"
)

// Stats records per-section relaxation outcomes, per spec.md §4.6
// ("bytes deleted vs. bytes that could not be deleted").
type Stats struct {
	BytesDeleted     uint64
	BytesUndeletable uint64
	Iterations       int
}

// SymbolValue resolves the effective address a relocation's symbol refers
// to, re-evaluated fresh every iteration (addresses shift as earlier
// fragments shrink).
type SymbolValue func(r *ir.Relocation) uint64

// PlaceOf resolves the absolute address of a fragment-relative offset, also
// re-evaluated every iteration.
type PlaceOf func(frag *ir.Fragment, off uint64) uint64

// Run drives the fixed-point loop over every allocated section in sections
// that carries RISC-V code relocations, until an iteration deletes nothing.
// relocsOf returns the relocations targeting a section's fragments, in
// fragment order. symsOf returns every symbol anchored within the section
// (local and global) whose Frag needs the same offset shift a deletion in
// its fragment applies to relocation target-refs.
func Run(sections []*ir.Section, relocsOf func(*ir.Section) []*ir.Relocation, symsOf func(*ir.Section) []*ir.LDSymbol, symValue SymbolValue, place PlaceOf) map[*ir.Section]*Stats {
	out := make(map[*ir.Section]*Stats, len(sections))
	for _, sec := range sections {
		st := &Stats{}
		out[sec] = st
		var syms []*ir.LDSymbol
		if symsOf != nil {
			syms = symsOf(sec)
		}
		for {
			deleted := relaxOnePass(sec, relocsOf(sec), syms, symValue, place, st)
			st.Iterations++
			if deleted == 0 {
				break
			}
		}
	}
	return out
}

// relaxOnePass walks sec's fragments once, attempting every candidate
// relocation, and returns the number of bytes deleted this pass. Each
// successful deletion shrinks Fragment.Data in place and then shifts every
// other relocation target-ref and symbol anchored past the deletion point in
// the same fragment back by the deleted length (spec.md §4.6: "shift the
// offsets of all following symbols and relocation target-refs in the same
// section by the same amount"), so later candidates in this pass and the
// next full layout iteration see consistent offsets.
func relaxOnePass(sec *ir.Section, relocs []*ir.Relocation, syms []*ir.LDSymbol, symValue SymbolValue, place PlaceOf, st *Stats) uint64 {
	var deletedThisPass uint64
	for _, r := range relocs {
		frag := r.Target.Fragment
		if frag == nil || frag.Owner != sec {
			continue
		}
		var n, deletedAt uint64
		switch r.Type {
		case elf.RRISCVCall, elf.RRISCVCallPlt:
			// tryRelaxCall keeps the first 4 bytes (the collapsed JAL) and
			// deletes the trailing 4 (the former JALR half) at off+4.
			n = tryRelaxCall(frag, r, symValue, place)
			deletedAt = r.Target.Offset + 4
		case elf.RRISCVAlign:
			n = tryRelaxAlign(frag, r)
			deletedAt = r.Target.Offset
		}
		if n == 0 {
			continue
		}
		deletedThisPass += n
		st.BytesDeleted += n
		shiftFollowing(frag, deletedAt, n, relocs, syms)
	}
	return deletedThisPass
}

// shiftFollowing decrements, by n, the offset of every relocation target-ref
// and symbol anchored in frag past the point deletedAt where deleteBytes
// just removed n bytes -- everything at or before deletedAt already points
// at surviving bytes and is left alone. It only corrects positions within
// the very fragment that just shrank: no later fragment's section-relative
// Offset is changed, and Fragment.NoRelaxShift is not consulted.
func shiftFollowing(frag *ir.Fragment, deletedAt, n uint64, relocs []*ir.Relocation, syms []*ir.LDSymbol) {
	for _, r2 := range relocs {
		if r2.Target.Fragment == frag && r2.Target.Offset > deletedAt {
			r2.Target.Offset -= n
		}
	}
	for _, s := range syms {
		if s.Frag != nil && s.Frag.Fragment == frag && s.Frag.Offset > deletedAt {
			s.Frag.Offset -= n
		}
	}
}

func readU32(data []byte, off int) uint32 {
	if off+4 > len(data) {
		return 0
	}
	return binary.LittleEndian.Uint32(data[off:])
}

func writeU32(data []byte, off int, v uint32) {
	binary.LittleEndian.PutUint32(data[off:], v)
}

func deleteBytes(frag *ir.Fragment, off, n int) {
	data := frag.Data
	copy(data[off:], data[off+n:])
	frag.Data = data[:len(data)-n]
}
