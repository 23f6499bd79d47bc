package reloc

import (
	"fmt"

	"github.com/rb1005/eld/internal/ir"
)

// RepatchPLT rewrites every PLT stub's bytes now that pltBase/gotBase are
// known (post-layout), mirroring the teacher's two-phase
// Generate-then-patch flow (GeneratePLT writes placeholder-free but
// base-relative bytes; elf_complete.go's patch*PLTCalls pass resolves call
// sites against the final addresses).
func RepatchPLT(section *ir.Section, relocator Relocator, pltBase, gotBase uint64) {
	for i, f := range section.Fragments {
		f.Data = relocator.EmitPLTEntry(i, pltBase, gotBase)
	}
}

// ApplyAll walks every relocation in post-layout order and invokes the
// relocator's Apply, per spec.md §4.5's "Application" paragraph. symValue
// resolves a relocation's effective symbol value, already PLT-redirected
// when the relocation's class routes through the PLT. place resolves a
// relocation's absolute virtual address. Errors from individual
// relocations are collected rather than aborting the whole pass, so a
// single bad relocation doesn't hide others in the same link.
func ApplyAll(relocs []*ir.Relocation, relocator Relocator, symValue func(*ir.Relocation) uint64, place func(*ir.Relocation) uint64, buf []byte, fragFileOffset func(*ir.Fragment) uint64, staticLink bool, trace func(format string, args ...any)) []error {
	var errs []error
	resolved := map[*ir.Relocation]ApplyInputs{}

	resolve := func(r *ir.Relocation) ApplyInputs {
		if in, ok := resolved[r]; ok {
			return in
		}
		in := ApplyInputs{
			SymbolValue: symValue(r),
			Addend:      r.Addend,
			Place:       place(r),
			StaticLink:  staticLink,
			Trace:       trace,
		}
		resolved[r] = in
		return in
	}

	for _, r := range relocs {
		in := resolve(r)
		if r.PairedWith != nil {
			hiIn := resolve(r.PairedWith)
			in.PairedHI = &hiIn
		}
		off := fragFileOffset(r.Target.Fragment) + r.Target.Offset
		if off >= uint64(len(buf)) {
			errs = append(errs, fmt.Errorf("relocation target offset 0x%x out of range", off))
			continue
		}
		end := off + r.Target.Fragment.Size() - r.Target.Offset
		if end > uint64(len(buf)) {
			end = uint64(len(buf))
		}
		if err := relocator.Apply(r, buf[off:end], in); err != nil {
			errs = append(errs, fmt.Errorf("relocation at 0x%x: %w", in.Place, err))
		}
	}
	return errs
}
