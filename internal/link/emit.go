package link

import (
	"os"

	"github.com/rb1005/eld/internal/elf"
	"github.com/rb1005/eld/internal/emit"
	"github.com/rb1005/eld/internal/ir"
)

// Emit serializes l.result (produced by Layout) into a final ELF image and
// writes the auxiliary SymDef file, per spec.md §2 Emit / §4.7.
func (l *Linker) Emit() ([]byte, error) {
	img, shstrtab, phOff, shOff := l.buildImage()
	img.ShstrtabData = shstrtab
	img.PhOff = phOff
	img.ShOff = shOff

	w := elf.NewBufWriter(shOff + uint64(len(shstrtab)) + uint64(len(img.Sections)+2)*elf.ShdrSize64)
	if err := emit.WriteImage(w, img); err != nil {
		return nil, err
	}

	for _, s := range img.Sections {
		if s.Name == ".note.gnu.build-id" && uint64(len(s.Data)) >= emit.BuildIDNoteSize {
			note := w.Buf[s.Offset : s.Offset+emit.BuildIDNoteSize]
			emit.ZeroBuildIDTag(note)
			emit.PatchBuildIDNote(note, emit.ComputeBuildID(w.Buf))
		}
	}

	if l.Opts.SymDefFile != "" {
		if err := l.writeSymDefFile(); err != nil {
			return nil, err
		}
	}

	return w.Buf, nil
}

// buildImage converts l.result.segments and l.Mod.SectionMap into the
// leaf emit package's Image shape, appending the non-allocated section
// payloads (symtab/strtab/shstrtab and anything Layout left file-offset
// only) after the allocated image.
func (l *Linker) buildImage() (*emit.Image, []byte, uint64, uint64) {
	img := &emit.Image{
		Class64: l.Mod.Arch.Is64Bit(),
		Machine: l.Mod.Arch.EMachine(),
		Type:    outputType(l.Mod.Kind),
		Entry:   l.result.entry,
	}

	for _, seg := range l.result.segments {
		var off uint64
		if seg.VAddr >= defaultBaseAddr {
			off = seg.VAddr - defaultBaseAddr
		}
		img.Segments = append(img.Segments, emit.Segment{
			Type: seg.Type, Flags: seg.Flags,
			Offset: off, VAddr: seg.VAddr, PAddr: seg.PAddr,
			FileSz: seg.FileSize(), MemSz: seg.MemSz, Align: seg.Align,
		})
	}

	var strtab []byte
	var symtab []byte
	strtab = append(strtab, 0)
	var exported []*ir.ResolveInfo
	for _, name := range l.Mod.Pool.Names() {
		info, ok := l.Mod.Pool.Find(name)
		if !ok || info.Desc == ir.DescUndefined || info.Binding == ir.BindLocal {
			continue
		}
		exported = append(exported, info)
	}
	symtab = append(symtab, make([]byte, elf.SymSize64)...) // null entry
	for _, info := range exported {
		nameOff := uint32(len(strtab))
		strtab = append(strtab, append([]byte(info.Name), 0)...)
		value := uint64(0)
		if info.OutSymbol != nil {
			value = l.symbolValue(info.OutSymbol)
		}
		symtab = append(symtab, encodeSym64(nameOff, elfSymInfo(info), 0, shndxFor(info), value, info.Size)...)
	}

	for _, entry := range l.Mod.SectionMap {
		if !entry.Allocated {
			continue
		}
		sec := emit.Section{
			Name: entry.Name, Addr: entry.Addr, Offset: entry.Offset,
			Type: entry.Type, Flags: entry.Flags, Align: maxAlign(entry.Align),
		}
		if isNoBits(entry) {
			sec.NoBits = true
			sec.Size = sumSectionSizes(entry)
		} else {
			sec.Data = l.sliceAt(entry.Offset, sumSectionSizes(entry))
		}
		img.Sections = append(img.Sections, sec)
	}

	symtabOff := alignUp(uint64(len(l.result.buf)), 8)
	strtabOff := symtabOff + uint64(len(symtab))
	img.Sections = append(img.Sections,
		emit.Section{Name: ".symtab", Data: symtab, Offset: symtabOff, Type: elf.SHTSymtab,
			Link: uint32(len(img.Sections) + 2), Info: 1, EntSize: elf.SymSize64, Align: 8},
		emit.Section{Name: ".strtab", Data: strtab, Offset: strtabOff, Type: elf.SHTStrtab, Align: 1},
	)

	var shstrtab []byte
	shstrtab = append(shstrtab, 0)
	for _, s := range img.Sections {
		shstrtab = append(shstrtab, append([]byte(s.Name), 0)...)
	}

	shOff := alignUp(strtabOff+uint64(len(strtab))+uint64(len(shstrtab)), 8)
	phOff := uint64(elf.EhdrSize64)
	return img, shstrtab, phOff, shOff
}

func outputType(kind ir.OutputKind) uint16 {
	if kind == ir.OutputSharedObject {
		return elf.ETDyn
	}
	return elf.ETExec
}

func maxAlign(a uint64) uint64 {
	if a == 0 {
		return 1
	}
	return a
}

func isNoBits(entry *ir.OutputSectionEntry) bool {
	return entry.Name == ".bss" || entry.Name == ".tbss"
}

func (l *Linker) sliceAt(off, size uint64) []byte {
	end := off + size
	if end > uint64(len(l.result.buf)) {
		end = uint64(len(l.result.buf))
	}
	if off > end {
		return nil
	}
	return l.result.buf[off:end]
}

func elfSymInfo(info *ir.ResolveInfo) byte {
	bind := byte(elf.STBGlobal)
	if info.Binding == ir.BindWeak {
		bind = elf.STBWeak
	}
	typ := byte(elf.STTNotype)
	switch info.Type {
	case ir.SymFunc:
		typ = elf.STTFunc
	case ir.SymObject:
		typ = elf.STTObject
	case ir.SymTLS:
		typ = elf.STTTLS
	}
	return elf.SymInfo(bind, typ)
}

func shndxFor(info *ir.ResolveInfo) uint16 {
	if info.Desc == ir.DescAbsolute {
		return elf.SHNAbs
	}
	return 1
}

func encodeSym64(name uint32, info, other byte, shndx uint16, value, size uint64) []byte {
	b := make([]byte, elf.SymSize64)
	elf.PutLE(b[0:4], uint64(name), 4)
	b[4] = info
	b[5] = other
	elf.PutLE(b[6:8], uint64(shndx), 2)
	elf.PutLE(b[8:16], value, 8)
	elf.PutLE(b[16:24], size, 8)
	return b
}

func (l *Linker) writeSymDefFile() error {
	f, err := os.Create(l.Opts.SymDefFile)
	if err != nil {
		return err
	}
	defer f.Close()

	var symbols []*ir.ResolveInfo
	for _, name := range l.Mod.Pool.Names() {
		if info, ok := l.Mod.Pool.Find(name); ok {
			symbols = append(symbols, info)
		}
	}
	return emit.WriteSymDef(f, symbols, l.Opts.SymDefStyle)
}
