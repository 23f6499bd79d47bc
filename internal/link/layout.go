package link

import (
	"strings"

	"github.com/rb1005/eld/internal/diag"
	"github.com/rb1005/eld/internal/elf"
	"github.com/rb1005/eld/internal/gc"
	"github.com/rb1005/eld/internal/ir"
	"github.com/rb1005/eld/internal/layout"
	"github.com/rb1005/eld/internal/relax"
	"github.com/rb1005/eld/internal/reloc"
	"github.com/rb1005/eld/internal/script"
	"github.com/rb1005/eld/internal/sectionmap"
)

// defaultBaseAddr is the image base of every link: assignAddresses always
// starts the location counter here (plus headerReserve), and neither
// -Ttext/-Tdata/-Tbss/--section-start nor a dot assignment in a SECTIONS
// script moves that starting point. Executables on
// every target spec.md lists conventionally start well above NULL; a
// single fixed base (rather than one tuned per architecture) keeps Layout
// simple at the cost of not matching each platform's customary base
// exactly -- recorded as a known simplification in DESIGN.md.
const defaultBaseAddr = 0x400000

// headerReserve is the file/virtual space reserved at the front of the
// image for the ELF header and program header table, rounded up to one
// page so the first PT_LOAD's file offset and virtual address agree mod
// page size.
const headerReserve = 0x1000

type layoutResult struct {
	buf      []byte
	segments []*layout.Segment
	entry    uint64
}

// Layout runs the address-assignment, section-mapping, garbage
// collection, relaxation and relocation-application steps of spec.md §2
// Layout, leaving l.Mod.SectionMap with final Addr/Offset per section and
// producing the flat pre-emission image buffer.
func (l *Linker) Layout() error {
	if err := l.Mod.State.Advance(ir.CreatingSections); err != nil {
		return err
	}

	if err := l.buildSectionMap(); err != nil {
		return err
	}

	if l.Opts.GCSections {
		l.runGC()
	}

	relocator := reloc.ForArch(l.Mod.Arch)
	scanCtx := reloc.ScanContext{
		DynamicLink:  l.Mod.DynamicLink,
		Symbolic:     l.Mod.Symbolic,
		StaticLink:   l.Opts.Static,
		OutputShared: l.Opts.Shared,
	}
	allRelocs := l.pluginFilteredRelocations()
	if relocator != nil {
		scanner := reloc.NewScanner(relocator, l.Mod, scanCtx)
		scanner.ScanAll(allRelocs)
		l.synthesizeGOTPLT(relocator, scanner)
	}

	if err := l.assignAddresses(); err != nil {
		return err
	}

	if l.Mod.Arch == ir.ArchRISCV64 && l.Opts.Relax {
		if err := l.relaxFixedPoint(relocator); err != nil {
			return err
		}
	}

	buf := l.serializeFragments()

	if relocator != nil {
		symValue := l.symValueFn()
		place := l.placeFn()
		fragOffset := l.fragFileOffsetFn()
		staticLink := !l.Mod.DynamicLink
		for _, err := range reloc.ApplyAll(allRelocs, relocator, symValue, place, buf, fragOffset, staticLink, l.Mod.Sink.Verbosef) {
			l.Mod.Sink.Report(diag.New(diag.Error, diag.ErrBadReloc, err.Error()))
		}
	}

	segs := l.synthesizeSegments()
	l.result = &layoutResult{buf: buf, segments: segs, entry: l.resolveEntry()}

	if err := layout.SynthesizeStartStop(l.Mod.Pool, l.engine.StartStop); err != nil {
		return err
	}

	return l.Mod.State.Advance(ir.AfterLayout)
}

// buildSectionMap assigns every kept input section to an output section
// entry, per spec.md §4.3. Sections matched by neither a script rule nor
// the target's default table are dropped (a GNU-ld-compatible linker
// would warn per-orphan; this keeps to the common case).
func (l *Linker) buildSectionMap() error {
	m, err := sectionmap.Compile(l.sections, l.Mod.Arch)
	if err != nil {
		return err
	}

	// Seed every scripted output section with its CmdOutputSectDesc
	// prolog (spec.md §4.2) up front, so Region/AtExpr/AlignExpr/Phdrs are
	// in place before assignAddresses/synthesizeSegments consult them --
	// even for an output section that ends up with no matched input.
	for _, or := range m.Outputs {
		entry := l.Mod.OutputSection(or.Name)
		entry.Region = or.Desc.Region
		entry.AtExpr = or.Desc.AtExpr
		entry.AlignExpr = or.Desc.AlignExpr
		entry.Phdrs = or.Desc.PhdrNames
	}

	for _, f := range l.Mod.InputFiles {
		if f.Kind != ir.InputELFRelocatable {
			continue
		}
		archiveName, memberName := splitArchiveMember(f.Path)
		for _, sec := range f.Sections {
			switch sec.Kind {
			case ir.KindRelocation, ir.KindGroup, ir.KindIgnore:
				continue
			}
			outName, matched := l.Plugins.MatchOverride(sec)
			if !matched {
				outName, matched = m.Assign(sec, f.Path, archiveName, memberName)
			}
			if !matched {
				continue
			}
			entry := l.Mod.OutputSection(outName)
			entry.Sections = append(entry.Sections, sec)
			entry.Flags |= sec.Flags
			if sec.Align > entry.Align {
				entry.Align = sec.Align
			}
			if sec.Type == elf.SHTProgbits || entry.Type == 0 {
				entry.Type = sec.Type
			}
			if sec.Flags&elf.SHFAlloc != 0 {
				entry.Allocated = true
			}
		}
	}
	return nil
}

func splitArchiveMember(path string) (archiveName, memberName string) {
	i := strings.IndexByte(path, '(')
	if i < 0 || !strings.HasSuffix(path, ")") {
		return path, ""
	}
	return path[:i], path[i+1 : len(path)-1]
}

// allRelocations flattens every kept input section's relocation list.
func (l *Linker) allRelocations() []*ir.Relocation {
	var out []*ir.Relocation
	for _, f := range l.Mod.InputFiles {
		for _, sec := range f.Sections {
			out = append(out, sec.Relocations...)
		}
	}
	return out
}

// pluginFilteredRelocations drops every relocation a registered RelocHook
// claims as fully handled, leaving the rest for the generic scan/apply
// pipeline.
func (l *Linker) pluginFilteredRelocations() []*ir.Relocation {
	all := l.allRelocations()
	if len(all) == 0 {
		return all
	}
	out := all[:0]
	for _, r := range all {
		if !l.Plugins.ApplyRelocHooks(r) {
			out = append(out, r)
		}
	}
	return out
}

func (l *Linker) runGC() {
	relocs := l.allRelocations()
	g := gc.BuildFromRelocations(relocs)
	var allSections []*ir.Section
	for _, f := range l.Mod.InputFiles {
		allSections = append(allSections, f.Sections...)
	}
	g.ResolveStartStopEdges(relocs, allSections)

	cfg := gc.EntryConfig{
		SharedObjectOutput: l.Opts.Shared,
		ExportDynamicAll:   l.Opts.ExportDynamic || l.Opts.PIE,
	}
	if info, ok := l.Mod.Pool.Find(l.Mod.EntrySymbolName); ok {
		cfg.EntrySection = symbolSection(info)
	}
	for _, sec := range allSections {
		if sec.Retained {
			cfg.RetainedSections = append(cfg.RetainedSections, sec)
		}
	}
	for _, name := range l.Mod.Pool.Names() {
		info, _ := l.Mod.Pool.Find(name)
		if info.Binding != ir.BindLocal && info.Desc == ir.DescDefined {
			cfg.AllDefinedGlobals = append(cfg.AllDefinedGlobals, info)
		}
	}
	for _, name := range l.explicitUndefined {
		if info, ok := l.Mod.Pool.Find(name); ok {
			cfg.ExplicitUndefined = append(cfg.ExplicitUndefined, info)
		}
	}
	for _, name := range l.Opts.ExportDynamicSymbols {
		if info, ok := l.Mod.Pool.Find(name); ok {
			cfg.ExportDynamicSyms = append(cfg.ExportDynamicSyms, info)
		}
	}

	live := gc.Run(g, gc.EntrySet(cfg))
	removed := 0
	for _, f := range l.Mod.InputFiles {
		removed += gc.Apply(f.Sections, live)
	}
	l.Mod.Sink.Verbosef("gc-sections: removed %d section(s)", removed)

	for _, entry := range l.Mod.SectionMap {
		kept := entry.Sections[:0]
		for _, sec := range entry.Sections {
			if sec.Kind != ir.KindIgnore {
				kept = append(kept, sec)
			}
		}
		entry.Sections = kept
	}
}

func symbolSection(info *ir.ResolveInfo) *ir.Section {
	if info == nil || info.OutSymbol == nil || info.OutSymbol.Frag == nil {
		return nil
	}
	return info.OutSymbol.Frag.Fragment.Owner
}

// synthesizeGOTPLT builds the .got/.plt internal sections once the
// relocation scan has reserved every slot they need, generalizing the
// teacher's GenerateGOT/GeneratePLT (plt_got.go) fixed-list shape to an
// arbitrary reservation-ordered set.
func (l *Linker) synthesizeGOTPLT(relocator reloc.Relocator, scanner *reloc.Scanner) {
	if scanner.GOT.Count() > 0 {
		gotFile := l.Mod.Internal(ir.RoleGOT)
		gotSec := &ir.Section{Name: ".got", Kind: ir.KindRegular, Type: elf.SHTProgbits,
			Flags: elf.SHFAlloc | elf.SHFWrite, Align: relocator.GOTEntrySize(), Owner: gotFile}
		reloc.BuildGOTFragments(gotSec, scanner.GOT, relocator, l.Mod.DynamicLink)
		gotFile.Sections = append(gotFile.Sections, gotSec)
		entry := l.Mod.OutputSection(".got")
		entry.Sections = append(entry.Sections, gotSec)
		entry.Flags |= gotSec.Flags
		entry.Allocated = true
		entry.Align = relocator.GOTEntrySize()
	}
	if scanner.PLT.Count() > 0 {
		pltFile := l.Mod.Internal(ir.RolePLT)
		pltSec := &ir.Section{Name: ".plt", Kind: ir.KindRegular, Type: elf.SHTProgbits,
			Flags: elf.SHFAlloc | elf.SHFExecinstr, Align: relocator.PLTEntrySize(), Owner: pltFile}
		reloc.BuildPLTFragments(pltSec, scanner.PLT, relocator)
		pltFile.Sections = append(pltFile.Sections, pltSec)
		entry := l.Mod.OutputSection(".plt")
		entry.Sections = append(entry.Sections, pltSec)
		entry.Flags |= pltSec.Flags
		entry.Allocated = true
		entry.Align = relocator.PLTEntrySize()
	}
}

// assignAddresses walks l.Mod.SectionMap in its (script- or
// discovery-ordered) sequence, giving allocated entries a virtual address
// and file offset via layout.Engine and giving non-allocated entries
// (debug info, symbol/string tables -- anything assembled later by Emit)
// a trailing file-offset-only placement.
func (l *Linker) assignAddresses() error {
	ctx := script.NewContext()
	ctx.Dot = defaultBaseAddr + headerReserve
	ctx.SymbolDefined = func(name string) bool { _, ok := l.Mod.Pool.Find(name); return ok }
	ctx.SymbolValue = func(name string) (uint64, bool) {
		sym, ok := l.Mod.Pool.FindSymbol(name)
		if !ok {
			return 0, false
		}
		return l.symbolValue(sym), true
	}
	l.engine = layout.NewEngine(ctx)

	// Resolve every MEMORY region once, up front (spec.md §3.1/§4.6), so
	// Place's cursor-overflow check against the entry's CmdOutputSectDesc
	// Region (seeded in buildSectionMap) has an origin/length to compare
	// against, and ORIGIN()/LENGTH() resolve inside AT()/ALIGN() prologues.
	for _, region := range l.memories {
		if err := region.Resolve(ctx); err != nil {
			return err
		}
		l.engine.Regions[region.Name] = region
		ctx.Memories[region.Name] = region
	}

	var nonAlloc []*ir.OutputSectionEntry
	for _, entry := range l.Mod.SectionMap {
		if !entry.Allocated {
			nonAlloc = append(nonAlloc, entry)
			continue
		}
		if err := l.engine.Place(entry, entry.AlignExpr, entry.AtExpr, entry.Region); err != nil {
			return err
		}
		entry.Offset = entry.Addr - defaultBaseAddr
		var off uint64
		for _, s := range entry.Sections {
			off = alignUp(off, s.Align)
			s.Addr = entry.Addr + off
			s.LoadAddr = entry.LoadAddr + off
			s.Offset = entry.Offset + off
			off += s.Size()
		}
	}

	cursor := uint64(0)
	if len(l.engine.Placed) > 0 {
		last := l.engine.Placed[len(l.engine.Placed)-1]
		cursor = last.Entry.Offset + (last.End - last.Start)
	}
	for _, entry := range nonAlloc {
		size := sumSectionSizes(entry)
		if entry.Align > 1 {
			cursor = alignUp(cursor, entry.Align)
		}
		entry.Offset = cursor
		cursor += size
	}
	return nil
}

func sumSectionSizes(entry *ir.OutputSectionEntry) uint64 {
	var total uint64
	for _, s := range entry.Sections {
		total = alignUp(total, s.Align) + s.Size()
	}
	return total
}

func alignUp(v, align uint64) uint64 {
	if align <= 1 || v%align == 0 {
		return v
	}
	return v + (align - v%align)
}

// symbolValue resolves an LDSymbol to its effective address: a
// fragment-anchored occurrence resolves through its owning section's
// already-assigned Addr; an absolute occurrence (SHN_ABS, or undefined)
// carries its value directly.
func (l *Linker) symbolValue(sym *ir.LDSymbol) uint64 {
	if sym.Frag == nil {
		return sym.Value
	}
	return sym.Frag.Fragment.Owner.Addr + sym.Frag.Fragment.Offset + sym.Frag.Offset
}

func (l *Linker) symValueFn() func(*ir.Relocation) uint64 {
	return func(r *ir.Relocation) uint64 {
		if r.Symbol == nil || r.Symbol.OutSymbol == nil {
			return 0
		}
		return l.symbolValue(r.Symbol.OutSymbol) + uint64(r.Addend)
	}
}

func (l *Linker) placeFn() func(*ir.Relocation) uint64 {
	return func(r *ir.Relocation) uint64 {
		return r.Target.Fragment.Owner.Addr + r.Target.Fragment.Offset + r.Target.Offset
	}
}

func (l *Linker) fragFileOffsetFn() func(*ir.Fragment) uint64 {
	return func(f *ir.Fragment) uint64 {
		return f.Owner.Offset + f.Offset
	}
}

// relaxFixedPoint re-runs address assignment and RISC-V relaxation until a
// pass deletes no further bytes or maxIterations passes have run, per
// spec.md §4.6's "Relaxation... a fixed-point iteration per section".
func (l *Linker) relaxFixedPoint(relocator reloc.Relocator) error {
	const maxIterations = 8
	symValue := l.symValueFn()
	relocsOf := func(s *ir.Section) []*ir.Relocation { return s.Relocations }
	placeOf := func(frag *ir.Fragment, off uint64) uint64 { return frag.Owner.Addr + frag.Offset + off }

	// symsOf gathers every symbol (local and global) anchored within s, so
	// relax.Run can shift its Frag.Offset alongside relocation target-refs
	// when a deletion lands before it in the same fragment.
	symsOf := func(s *ir.Section) []*ir.LDSymbol {
		var syms []*ir.LDSymbol
		if s.Owner != nil {
			for _, ld := range s.Owner.LocalSymbols {
				if ld.Frag != nil && ld.Frag.Fragment != nil && ld.Frag.Fragment.Owner == s {
					syms = append(syms, ld)
				}
			}
		}
		for _, name := range l.Mod.Pool.Names() {
			info, ok := l.Mod.Pool.Find(name)
			if !ok || info.OutSymbol == nil {
				continue
			}
			ld := info.OutSymbol
			if ld.Frag != nil && ld.Frag.Fragment != nil && ld.Frag.Fragment.Owner == s {
				syms = append(syms, ld)
			}
		}
		return syms
	}

	for i := 0; i < maxIterations; i++ {
		var sections []*ir.Section
		for _, entry := range l.Mod.SectionMap {
			if entry.Allocated {
				sections = append(sections, entry.Sections...)
			}
		}
		stats := relax.Run(sections, relocsOf, symsOf, func(r *ir.Relocation) uint64 { return symValue(r) - uint64(r.Addend) }, placeOf)
		deleted := uint64(0)
		for _, st := range stats {
			deleted += st.BytesDeleted
		}
		if deleted == 0 {
			return nil
		}
		if err := l.assignAddresses(); err != nil {
			return err
		}
	}
	return nil
}

// serializeFragments writes every allocated section's fragment bytes into
// a flat buffer at their assigned file offsets (non-allocated sections are
// serialized later, directly by Emit, since they carry no relocations to
// apply in place).
func (l *Linker) serializeFragments() []byte {
	var size uint64
	for _, entry := range l.Mod.SectionMap {
		if !entry.Allocated {
			continue
		}
		end := entry.Offset + sumSectionSizes(entry)
		if end > size {
			size = end
		}
	}
	buf := make([]byte, size)
	for _, entry := range l.Mod.SectionMap {
		if !entry.Allocated {
			continue
		}
		for _, sec := range entry.Sections {
			off := sec.Offset
			for _, frag := range sec.Fragments {
				fend := off + frag.Offset + frag.Size()
				if fend > uint64(len(buf)) {
					continue
				}
				frag.Emit(buf[off+frag.Offset : fend])
			}
		}
	}
	return buf
}

func (l *Linker) synthesizeSegments() []*layout.Segment {
	permsOf := func(entry *ir.OutputSectionEntry) uint32 {
		perms := uint32(elf.PFR)
		if entry.Flags&elf.SHFWrite != 0 {
			perms |= elf.PFW
		}
		if entry.Flags&elf.SHFExecinstr != 0 {
			perms |= elf.PFX
		}
		return perms
	}

	var segs []*layout.Segment
	if len(l.phdrSpecs) > 0 {
		sectionPhdrs := func(entry *ir.OutputSectionEntry) []string { return entry.Phdrs }
		segs = layout.SynthesizeFromScript(l.phdrSpecs, l.engine.Placed, sectionPhdrs)
	} else {
		segs = layout.SynthesizeDefault(l.engine.Placed, permsOf)
	}

	needsPHDR := len(segs) > 0
	phdrSize := uint64(len(segs)+2) * elf.PhdrSize64 // +PT_PHDR, +PT_GNU_STACK
	opts := layout.WellKnownOpts{
		NeedsPHDR: needsPHDR,
		PhdrVAddr: defaultBaseAddr + elf.EhdrSize64,
		PhdrSize:  phdrSize,
		ExecStack: false,
	}
	return layout.AddWellKnownSegments(segs, opts)
}

func (l *Linker) resolveEntry() uint64 {
	if sym, ok := l.Mod.Pool.FindSymbol(l.Mod.EntrySymbolName); ok {
		return l.symbolValue(sym)
	}
	if len(l.engine.Placed) > 0 {
		return l.engine.Placed[0].Start
	}
	return defaultBaseAddr
}

