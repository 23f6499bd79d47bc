package layout

import (
	"testing"

	"github.com/rb1005/eld/internal/ir"
	"github.com/rb1005/eld/internal/script"
)

func intLit(v uint64) *script.Expression { return &script.Expression{Op: script.OpIntLiteral, IntVal: v} }

func sizedSection(size int) *ir.Section {
	s := &ir.Section{}
	s.AppendFragment(&ir.Fragment{Kind: ir.FragRegion, Align: 1, Data: make([]byte, size)})
	return s
}

func TestPlaceAlignsAndAdvancesDot(t *testing.T) {
	ctx := script.NewContext()
	ctx.Dot = 0x1001
	e := NewEngine(ctx)

	entry := &ir.OutputSectionEntry{Name: ".text", Allocated: true}
	entry.Sections = append(entry.Sections, sizedSection(0x20))

	if err := e.Place(entry, intLit(0x10), nil, ""); err != nil {
		t.Fatal(err)
	}
	if entry.Addr != 0x1010 {
		t.Fatalf("got addr 0x%x, want 0x1010", entry.Addr)
	}
	if ctx.Dot != 0x1030 {
		t.Fatalf("got dot 0x%x, want 0x1030", ctx.Dot)
	}
}

func TestPlaceTBSSDoesNotAdvanceDot(t *testing.T) {
	ctx := script.NewContext()
	ctx.Dot = 0x2000
	e := NewEngine(ctx)

	entry := &ir.OutputSectionEntry{Name: ".tbss", Allocated: true, Flags: 0x400, Type: 8}
	entry.Sections = append(entry.Sections, sizedSection(0x100))

	if err := e.Place(entry, nil, nil, ""); err != nil {
		t.Fatal(err)
	}
	if ctx.Dot != 0x2000 {
		t.Fatalf("TBSS advanced dot to 0x%x, want unchanged 0x2000", ctx.Dot)
	}
}

func TestPlaceRegionOverflowReported(t *testing.T) {
	ctx := script.NewContext()
	e := NewEngine(ctx)
	region := &script.Region{Name: "ram", OriginExpr: intLit(0), LengthExpr: intLit(8)}
	if err := region.Resolve(ctx); err != nil {
		t.Fatal(err)
	}
	e.Regions["ram"] = region

	entry := &ir.OutputSectionEntry{Name: ".data", Allocated: true}
	entry.Sections = append(entry.Sections, sizedSection(0x20))

	if err := e.Place(entry, nil, nil, "ram"); err == nil {
		t.Fatal("expected region overflow error")
	}
}

func TestStartStopBoundsAccumulateAcrossMultiplePlacements(t *testing.T) {
	ctx := script.NewContext()
	e := NewEngine(ctx)

	a := &ir.OutputSectionEntry{Name: "my_section", Allocated: true}
	a.Sections = append(a.Sections, sizedSection(0x10))
	if err := e.Place(a, nil, nil, ""); err != nil {
		t.Fatal(err)
	}
	ctx.Dot += 0x100
	b := &ir.OutputSectionEntry{Name: "my_section", Allocated: true}
	b.Sections = append(b.Sections, sizedSection(0x10))
	if err := e.Place(b, nil, nil, ""); err != nil {
		t.Fatal(err)
	}

	bounds := e.StartStop["my_section"]
	if bounds == nil || !bounds.set {
		t.Fatal("expected bounds to be recorded")
	}
	if bounds.Start != 0 || bounds.End != b.Addr+0x10 {
		t.Fatalf("got [0x%x, 0x%x)", bounds.Start, bounds.End)
	}
}

func TestSynthesizeDefaultGroupsContiguousSamePermSections(t *testing.T) {
	text := &ir.OutputSectionEntry{Name: ".text", Allocated: true}
	rodata := &ir.OutputSectionEntry{Name: ".rodata", Allocated: true}
	data := &ir.OutputSectionEntry{Name: ".data", Allocated: true}

	placed := []PlacedSection{
		{Entry: text, Start: 0x1000, End: 0x1100},
		{Entry: rodata, Start: 0x1100, End: 0x1200},
		{Entry: data, Start: 0x2000, End: 0x2100}, // gap: new segment
	}
	perms := map[*ir.OutputSectionEntry]uint32{text: 5, rodata: 5, data: 6}
	segs := SynthesizeDefault(placed, func(e *ir.OutputSectionEntry) uint32 { return perms[e] })
	if len(segs) != 2 {
		t.Fatalf("got %d segments, want 2", len(segs))
	}
	if segs[0].MemSz != 0x200 {
		t.Fatalf("first segment size 0x%x, want 0x200", segs[0].MemSz)
	}
}

func TestSynthesizeStartStopSkipsNonIdentifierNames(t *testing.T) {
	pool := ir.NewNamePool()
	bounds := map[string]*StartStopBounds{
		"valid_name": {Start: 0x10, End: 0x20, set: true},
		".text":      {Start: 0x30, End: 0x40, set: true},
	}
	if err := SynthesizeStartStop(pool, bounds); err != nil {
		t.Fatal(err)
	}
	if _, ok := pool.Find("__start_valid_name"); !ok {
		t.Fatal("expected __start_valid_name to be synthesized")
	}
	if _, ok := pool.Find("__start_.text"); ok {
		t.Fatal("did not expect a symbol synthesized for a non-identifier section name")
	}
}

func TestBuildGNUHashIsDeterministicAndNonEmpty(t *testing.T) {
	syms := []DynSymbol{
		{Name: "foo", Index: 1, Defined: true},
		{Name: "bar", Index: 2, Defined: true},
		{Name: "undef_sym", Index: 3, Defined: false},
	}
	buf1 := BuildGNUHash(syms, true)
	buf2 := BuildGNUHash(syms, true)
	if len(buf1) == 0 {
		t.Fatal("expected non-empty hash table")
	}
	if string(buf1) != string(buf2) {
		t.Fatal("expected deterministic output")
	}
}

func TestBuildSysVHashSizesTableForSymbolCount(t *testing.T) {
	syms := []DynSymbol{{Name: "a", Index: 0}, {Name: "b", Index: 1}}
	buf := BuildSysVHash(syms)
	if len(buf) != int((2+2*2)*4) {
		t.Fatalf("got %d bytes", len(buf))
	}
}
