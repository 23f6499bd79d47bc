package plugin

import (
	"testing"

	"github.com/rb1005/eld/internal/ir"
)

func TestLinkerWrapperAddAndRemoveFragment(t *testing.T) {
	file := &ir.InputFile{Path: "a.o", Kind: ir.InputELFRelocatable}
	sec := &ir.Section{Name: ".text", Owner: file}
	file.Sections = []*ir.Section{sec}
	mod := &ir.Module{InputFiles: []*ir.InputFile{file}}

	reg := NewRegistry()
	w := NewLinkerWrapper(mod, reg)

	frag := &ir.Fragment{Kind: ir.FragFillment, FillSize: 4, Data: []byte{0}}
	if err := w.AddFragment(".text", frag); err != nil {
		t.Fatalf("AddFragment: %v", err)
	}
	if len(sec.Fragments) != 1 || sec.Fragments[0] != frag {
		t.Fatalf("expected fragment appended to .text, got %+v", sec.Fragments)
	}

	if err := w.RemoveFragment(".text", frag); err != nil {
		t.Fatalf("RemoveFragment: %v", err)
	}
	if len(sec.Fragments) != 0 {
		t.Fatalf("expected fragment removed, got %+v", sec.Fragments)
	}

	if err := w.AddFragment(".missing", frag); err == nil {
		t.Fatal("expected error adding fragment to a nonexistent section")
	}
}

func TestRegistryHooksRunInOrderAndShortCircuit(t *testing.T) {
	reg := NewRegistry()
	w := NewLinkerWrapper(&ir.Module{}, reg)

	var calls []string
	w.RegisterRelocHook(func(r *ir.Relocation) bool {
		calls = append(calls, "first")
		return false
	})
	w.RegisterRelocHook(func(r *ir.Relocation) bool {
		calls = append(calls, "second")
		return true
	})
	w.RegisterRelocHook(func(r *ir.Relocation) bool {
		calls = append(calls, "third")
		return true
	})

	if handled := reg.ApplyRelocHooks(&ir.Relocation{}); !handled {
		t.Fatal("expected a hook to report the relocation handled")
	}
	if len(calls) != 2 || calls[0] != "first" || calls[1] != "second" {
		t.Fatalf("expected short-circuit after the first true result, got %v", calls)
	}
}

func TestRegistryMatchOverride(t *testing.T) {
	reg := NewRegistry()
	w := NewLinkerWrapper(&ir.Module{}, reg)

	w.OverrideSectionMatch(func(sec *ir.Section) (string, bool) {
		if sec.Name == ".custom" {
			return ".text", true
		}
		return "", false
	})

	sec := &ir.Section{Name: ".custom"}
	name, ok := reg.MatchOverride(sec)
	if !ok || name != ".text" {
		t.Fatalf("expected override to .text, got %q, %v", name, ok)
	}

	if _, ok := reg.MatchOverride(&ir.Section{Name: ".other"}); ok {
		t.Fatal("expected no override for an unmatched section")
	}
}

func TestRegistryRegisterTracksNames(t *testing.T) {
	reg := NewRegistry()
	reg.Register("audit")
	reg.Register("retain-debug")
	if got := reg.Names(); len(got) != 2 || got[0] != "audit" || got[1] != "retain-debug" {
		t.Fatalf("unexpected registered names: %v", got)
	}
}
