package main

import (
	"testing"

	"github.com/rb1005/eld/internal/ir"
	"github.com/rb1005/eld/internal/link"
)

func TestParseOptionsDefaults(t *testing.T) {
	fl := &flags{output: "a.out", archName: "x86_64", unresolved: "report-all", mapStyle: "txt"}
	opts, err := parseOptions(fl, []string{"a.o"})
	if err != nil {
		t.Fatalf("parseOptions: %v", err)
	}
	if opts.Output != "a.out" || opts.Arch != ir.ArchX86_64 {
		t.Fatalf("unexpected defaults: %+v", opts)
	}
	if len(opts.Inputs) != 1 || opts.Inputs[0] != "a.o" {
		t.Fatalf("expected positional inputs threaded through, got %v", opts.Inputs)
	}
	if opts.Unresolved != link.UnresolvedReportAll {
		t.Fatalf("expected report-all default, got %v", opts.Unresolved)
	}
}

func TestParseOptionsArchAliases(t *testing.T) {
	for _, name := range []string{"arm64", "aarch64"} {
		fl := &flags{archName: name, unresolved: "report-all", mapStyle: "txt"}
		opts, err := parseOptions(fl, nil)
		if err != nil {
			t.Fatalf("parseOptions(%q): %v", name, err)
		}
		if opts.Arch != ir.ArchAArch64 {
			t.Fatalf("parseOptions(%q): expected ArchAArch64, got %v", name, opts.Arch)
		}
	}
}

func TestParseOptionsUnknownArch(t *testing.T) {
	fl := &flags{archName: "sparc", unresolved: "report-all", mapStyle: "txt"}
	if _, err := parseOptions(fl, nil); err == nil {
		t.Fatal("expected an error for an unsupported architecture")
	}
}

func TestParseOptionsGCSectionsNoOverridesYes(t *testing.T) {
	fl := &flags{archName: "x86_64", unresolved: "report-all", mapStyle: "txt", gcSections: true, noGCSections: true}
	opts, err := parseOptions(fl, nil)
	if err != nil {
		t.Fatalf("parseOptions: %v", err)
	}
	if opts.GCSections {
		t.Fatal("expected --no-gc-sections to win when both flags are given")
	}
}

func TestParseOptionsSectionStarts(t *testing.T) {
	fl := &flags{
		archName:      "x86_64",
		unresolved:    "report-all",
		mapStyle:      "txt",
		sectionStarts: []string{".text=0x400000", ".data=0x600000"},
	}
	opts, err := parseOptions(fl, nil)
	if err != nil {
		t.Fatalf("parseOptions: %v", err)
	}
	if opts.SectionStarts[".text"] != 0x400000 || opts.SectionStarts[".data"] != 0x600000 {
		t.Fatalf("unexpected section starts: %+v", opts.SectionStarts)
	}
}

func TestParseOptionsSectionStartMalformed(t *testing.T) {
	fl := &flags{archName: "x86_64", unresolved: "report-all", mapStyle: "txt", sectionStarts: []string{".text"}}
	if _, err := parseOptions(fl, nil); err == nil {
		t.Fatal("expected an error for a NAME=ADDR entry missing the '='")
	}
}

func TestParseOptionsTText(t *testing.T) {
	fl := &flags{archName: "x86_64", unresolved: "report-all", mapStyle: "txt", tText: "0x10000"}
	opts, err := parseOptions(fl, nil)
	if err != nil {
		t.Fatalf("parseOptions: %v", err)
	}
	if opts.TText != 0x10000 {
		t.Fatalf("expected TText 0x10000, got %#x", opts.TText)
	}
}

func TestParseOptionsUnresolvedPolicies(t *testing.T) {
	cases := map[string]link.UnresolvedPolicy{
		"ignore-all":             link.UnresolvedIgnoreAll,
		"report-all":             link.UnresolvedReportAll,
		"ignore-in-object-files": link.UnresolvedIgnoreInObjectFiles,
		"ignore-in-shared-libs":  link.UnresolvedIgnoreInSharedLibs,
	}
	for name, want := range cases {
		fl := &flags{archName: "x86_64", unresolved: name, mapStyle: "txt"}
		opts, err := parseOptions(fl, nil)
		if err != nil {
			t.Fatalf("parseOptions(%q): %v", name, err)
		}
		if opts.Unresolved != want {
			t.Fatalf("parseOptions(%q): got %v, want %v", name, opts.Unresolved, want)
		}
	}
}

func TestParseOptionsUnknownMapStyle(t *testing.T) {
	fl := &flags{archName: "x86_64", unresolved: "report-all", mapStyle: "xml"}
	if _, err := parseOptions(fl, nil); err == nil {
		t.Fatal("expected an error for an unsupported --MapStyle value")
	}
}

func TestParseOptionsRelaxFlagsCompose(t *testing.T) {
	fl := &flags{archName: "x86_64", unresolved: "report-all", mapStyle: "txt", optimize: true, noRelax: true}
	opts, err := parseOptions(fl, nil)
	if err != nil {
		t.Fatalf("parseOptions: %v", err)
	}
	if opts.Relax {
		t.Fatal("expected --no-relax to override -O")
	}
}

func TestNewRootCmdRegistersExpectedFlags(t *testing.T) {
	cmd := newRootCmd()
	for _, name := range []string{"output", "library-path", "gc-sections", "undefined", "export-dynamic", "export-dynamic-symbol", "unresolved-symbols", "allow-multiple-definition", "wrap", "section-start", "Map", "symdef", "patch-enable", "relax", "trace", "plugin", "script"} {
		if cmd.Flags().Lookup(name) == nil {
			t.Fatalf("expected a registered flag named %q", name)
		}
	}
}
