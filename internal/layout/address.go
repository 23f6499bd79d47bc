// Package layout assigns addresses to output sections, synthesizes
// program headers and __start_X/__stop_X symbols, and builds the GNU and
// SysV hash tables (spec.md §4.6). Grounded on the teacher's
// WriteCompleteDynamicELF (elf_complete.go) for program-header and
// section-order conventions, generalized from its single-PT_LOAD-plus-
// dynamic-segments shape to arbitrary SECTIONS-driven layouts, and on
// original_source's GNUHashFragment.cpp/SysVHashFragment.cpp for the hash
// algorithms.
package layout

import (
	"fmt"

	"github.com/rb1005/eld/internal/ir"
	"github.com/rb1005/eld/internal/script"
)

// Cursor tracks the location counter during address assignment.
type Cursor struct {
	Dot         uint64
	LMA         uint64
	lmaDiverges bool
}

// PlacedSection carries the resolved addresses for one output section
// once Place has run, feeding __start_X/__stop_X synthesis and PHDR
// grouping.
type PlacedSection struct {
	Entry *ir.OutputSectionEntry
	Start uint64
	End   uint64
}

// Engine drives address assignment in script/program order, per spec.md
// §4.6 "Address assignment".
type Engine struct {
	Regions map[string]*script.Region
	Ctx     *script.Context

	Placed []PlacedSection

	// StartStop accumulates __start_X/__stop_X bounds, keyed by output
	// section base name (spec.md: "synthesized at the bounds of every
	// matched output section of that name").
	StartStop map[string]*StartStopBounds
}

type StartStopBounds struct {
	Start, End uint64
	set        bool
}

func NewEngine(ctx *script.Context) *Engine {
	return &Engine{Regions: map[string]*script.Region{}, Ctx: ctx, StartStop: map[string]*StartStopBounds{}}
}

// Place advances dot across entry's fragments, honoring ALIGN (or the
// entry's own alignment) and an AT() load address, then records the
// section's final address range. SUBALIGN and an AT>region LMA region are
// not applied: without AT(), LoadAddr equals Addr. regionName is "" when the section is not bound to a MEMORY
// region (dot simply advances without a cursor-overflow check).
func (e *Engine) Place(entry *ir.OutputSectionEntry, alignExpr *script.Expression, atExpr *script.Expression, regionName string) error {
	if alignExpr != nil {
		v, err := alignExpr.Eval(e.Ctx)
		if err != nil {
			return err
		}
		e.Ctx.Dot = alignUp(e.Ctx.Dot, v)
	} else if entry.Align > 0 {
		e.Ctx.Dot = alignUp(e.Ctx.Dot, entry.Align)
	}

	start := e.Ctx.Dot
	entry.Addr = start

	if atExpr != nil {
		lma, err := atExpr.Eval(e.Ctx)
		if err != nil {
			return err
		}
		entry.LoadAddr = lma
	} else {
		entry.LoadAddr = start
	}

	if isTBSS(entry) {
		// TBSS contributes only to the TLS template size; dot does not
		// advance (spec.md §4.6).
		e.recordBounds(entry, start, start)
		return nil
	}

	size := sectionSize(entry)
	end := start + size
	e.Ctx.Dot = end
	entry.Addr = start

	if regionName != "" {
		region, ok := e.Regions[regionName]
		if !ok {
			return fmt.Errorf("output section %s: unknown memory region %s", entry.Name, regionName)
		}
		if err := region.Advance(entry.Name, size); err != nil {
			return err
		}
	}

	e.Placed = append(e.Placed, PlacedSection{Entry: entry, Start: start, End: end})
	e.recordBounds(entry, start, end)
	return nil
}

func (e *Engine) recordBounds(entry *ir.OutputSectionEntry, start, end uint64) {
	b, ok := e.StartStop[entry.Name]
	if !ok {
		b = &StartStopBounds{}
		e.StartStop[entry.Name] = b
	}
	if !b.set {
		b.Start, b.End, b.set = start, end, true
		return
	}
	if start < b.Start {
		b.Start = start
	}
	if end > b.End {
		b.End = end
	}
}

func isTBSS(entry *ir.OutputSectionEntry) bool {
	const shfTLS = 0x400
	const shtNobits = 8
	return entry.Flags&shfTLS != 0 && entry.Type == shtNobits
}

func sectionSize(entry *ir.OutputSectionEntry) uint64 {
	var off uint64
	for _, s := range entry.Sections {
		off = alignUp(off, max1(s.Align))
		off += s.Size()
	}
	return off
}

func alignUp(v, align uint64) uint64 {
	if align <= 1 {
		return v
	}
	if v%align == 0 {
		return v
	}
	return v + (align - v%align)
}

func max1(a uint64) uint64 {
	if a == 0 {
		return 1
	}
	return a
}
