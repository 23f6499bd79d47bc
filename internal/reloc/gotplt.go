package reloc

import "github.com/rb1005/eld/internal/ir"

// BuildGOTFragments creates one FragGOTSlot fragment per symbol reserved
// in got, in reservation order, appending them to section. The slot's
// initial content is the symbol's value for a static-link reference, or
// zero for a slot the dynamic linker will fill (GLOB_DAT/JUMP_SLOT/TPREL),
// generalizing the teacher's GenerateGOT (plt_got.go), which wrote a
// fixed GOT[0..2] header plus one slot per function in a flat function
// list instead of a reservation-ordered map.
func BuildGOTFragments(section *ir.Section, got *Synth, relocator Relocator, dynamicLink bool) {
	for _, info := range got.order {
		f := &ir.Fragment{
			Kind:  ir.FragGOTSlot,
			Align: relocator.GOTEntrySize(),
			Data:  make([]byte, relocator.GOTEntrySize()),
		}
		if !dynamicLink && info.OutSymbol != nil {
			emitLE(f.Data, info.OutSymbol.Value, len(f.Data))
		}
		section.AppendFragment(f)
	}
}

// BuildPLTFragments creates the shared PLT header stub plus one stub per
// symbol reserved in plt, generalizing GeneratePLT's header-plus-entries
// shape (plt_got.go) to arbitrary base addresses resolved later by
// internal/layout rather than being computed inline.
func BuildPLTFragments(section *ir.Section, plt *Synth, relocator Relocator) {
	header := &ir.Fragment{
		Kind:  ir.FragStub,
		Align: relocator.PLTEntrySize(),
		Data:  relocator.EmitPLTEntry(0, 0, 0),
	}
	section.AppendFragment(header)
	for i := range plt.order {
		f := &ir.Fragment{
			Kind:  ir.FragStub,
			Align: relocator.PLTEntrySize(),
			Data:  relocator.EmitPLTEntry(i+1, 0, 0),
		}
		section.AppendFragment(f)
	}
}

func emitLE(dst []byte, v uint64, width int) {
	for i := 0; i < width && i < len(dst); i++ {
		dst[i] = byte(v >> (8 * i))
	}
}
