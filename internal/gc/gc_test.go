package gc

import (
	"testing"

	"github.com/rb1005/eld/internal/ir"
)

func TestBFSReachesTransitiveSections(t *testing.T) {
	a := &ir.Section{Name: ".text.a", Kind: ir.KindRegular}
	b := &ir.Section{Name: ".text.b", Kind: ir.KindRegular}
	c := &ir.Section{Name: ".text.c", Kind: ir.KindRegular}
	unreached := &ir.Section{Name: ".text.dead", Kind: ir.KindRegular}

	g := NewGraph()
	g.addEdge(a, b)
	g.addEdge(b, c)

	live := Run(g, map[*ir.Section]bool{a: true})
	if !live[a] || !live[b] || !live[c] {
		t.Fatalf("expected a,b,c all live: %v", live)
	}
	if live[unreached] {
		t.Fatal("unreached section should not be live")
	}

	sections := []*ir.Section{a, b, c, unreached}
	removed := Apply(sections, live)
	if removed != 1 {
		t.Fatalf("expected 1 section removed, got %d", removed)
	}
	if unreached.Kind != ir.KindIgnore {
		t.Fatalf("expected unreached section marked Ignore, got %v", unreached.Kind)
	}
	if a.Kind != ir.KindRegular {
		t.Fatal("live section should not be marked Ignore")
	}
}

func TestRetainedSectionSurvivesEvenIfUnreachable(t *testing.T) {
	s := &ir.Section{Name: ".init_array", Kind: ir.KindRegular, Retained: true}
	removed := Apply([]*ir.Section{s}, map[*ir.Section]bool{})
	if removed != 0 || s.Kind == ir.KindIgnore {
		t.Fatal("retained section must never be GC'd")
	}
}

func TestIneligibleKindNeverRemoved(t *testing.T) {
	s := &ir.Section{Name: ".debug_info", Kind: ir.KindDebug}
	removed := Apply([]*ir.Section{s}, map[*ir.Section]bool{})
	if removed != 0 || s.Kind != ir.KindDebug {
		t.Fatal("debug sections are ineligible for GC")
	}
}

func TestStartStopPrefixExtraction(t *testing.T) {
	if p, ok := startStopPrefix("__start_mysection"); !ok || p != "mysection" {
		t.Fatalf("got %q %v", p, ok)
	}
	if p, ok := startStopPrefix("__stop_mysection"); !ok || p != "mysection" {
		t.Fatalf("got %q %v", p, ok)
	}
	if _, ok := startStopPrefix("plain_symbol"); ok {
		t.Fatal("plain symbol should not match")
	}
}

func TestNoCrossRefsDetectsViolation(t *testing.T) {
	a := &ir.Section{Name: ".ram_only"}
	b := &ir.Section{Name: ".rom_only"}
	g := NewGraph()
	g.addEdge(a, b)

	outputOf := map[*ir.Section]string{a: "ram", b: "rom"}
	violations := Check([]NoCrossRefsGroup{{Names: []string{"ram", "rom"}}}, g, func(s *ir.Section) string { return outputOf[s] })
	if len(violations) != 1 {
		t.Fatalf("expected 1 violation, got %d: %v", len(violations), violations)
	}
}
