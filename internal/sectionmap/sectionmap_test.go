package sectionmap

import (
	"testing"

	"github.com/rb1005/eld/internal/ir"
	"github.com/rb1005/eld/internal/script"
)

func TestDefaultRulesMatchTextVariants(t *testing.T) {
	m := &Map{Defaults: DefaultRulesForArch(ir.ArchX86_64)}
	sec := &ir.Section{Name: ".text.foo"}
	out, matched := m.Assign(sec, "a.o", "", "")
	if !matched || out != ".text" {
		t.Fatalf("got out=%q matched=%v", out, matched)
	}
}

func TestCompiledRuleMatchesFileAndSectionGlob(t *testing.T) {
	r, err := compileRule(&script.InputSectDesc{
		FilePattern:    "*.o",
		SectionPattern: []string{".text", ".text.*"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if !r.MatchFile("foo.o", "", "") {
		t.Fatal("expected *.o to match foo.o")
	}
	if !r.MatchSection(".text.hot") {
		t.Fatal("expected .text.* to match .text.hot")
	}
	if r.MatchSection(".data") {
		t.Fatal("did not expect .data to match")
	}
}

func TestArchiveMemberPattern(t *testing.T) {
	r, err := compileRule(&script.InputSectDesc{
		FilePattern:    "libfoo.a(bar.o)",
		SectionPattern: []string{"*"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if !r.MatchFile("libfoo.a", "libfoo.a", "bar.o") {
		t.Fatal("expected archive(member) pattern to match")
	}
	if r.MatchFile("libfoo.a", "libfoo.a", "baz.o") {
		t.Fatal("did not expect member mismatch to match")
	}
}

func TestInitPriorityOrdering(t *testing.T) {
	rule := &Rule{Desc: &script.InputSectDesc{SortByInitPriority: true}}
	names := []string{".init_array.200", ".init_array.100", ".init_array"}
	got := rule.Order(names)
	want := []string{".init_array", ".init_array.100", ".init_array.200"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order mismatch at %d: got %v want %v", i, got, want)
		}
	}
}

func TestEXIDXNameDetection(t *testing.T) {
	if !IsEXIDXSection(".ARM.exidx.foo") || !IsEXIDXSection(".ARM.exidx") {
		t.Fatal("expected EXIDX names to be detected")
	}
	if IsEXIDXSection(".ARM.extab") {
		t.Fatal("extab is not exidx")
	}
}
