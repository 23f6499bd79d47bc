// Package main is eld's command-line entry point: a cobra/pflag front end
// that parses the CLI surface (spec.md §6) into an internal/link.Options
// and drives a single link.Linker through Run. Grounded on cucaracha's
// cmd/root.go for the root-command shape, replacing the teacher's
// hand-rolled RunCLI/CommandContext dispatcher in cli.go/main.go.
package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rb1005/eld/internal/config"
	"github.com/rb1005/eld/internal/diag"
	"github.com/rb1005/eld/internal/ir"
	"github.com/rb1005/eld/internal/link"
)

// flags collects every pflag-bound value before parseOptions assembles the
// link.Options; cobra/pflag only know how to fill concrete Go variables, not
// the Options struct's derived fields (OutputKind, SectionStarts map shape).
type flags struct {
	output     string
	searchDirs []string
	shared     bool
	static     bool
	pie        bool
	archName   string
	sysroot    string

	gcSections      bool
	noGCSections    bool
	gcCref          string
	printGCSections bool

	undefined            []string
	exportDynamic        bool
	exportDynamicSymbols []string

	unresolved              string
	allowMultipleDefinition bool

	wrap []string

	versionScript string
	dynamicList   string

	tText         string
	tData         string
	tBss          string
	sectionStarts []string

	mapFile  string
	mapStyle string

	symDefFile string

	patchEnable bool
	patchBase   string

	optimize bool
	relax    bool
	noRelax  bool

	trace   bool
	verbose bool

	plugins []string

	script string

	workers int
}

func newRootCmd() *cobra.Command {
	var fl flags
	defaults := config.Load()

	cmd := &cobra.Command{
		Use:   "eld [flags] file...",
		Short: "A modular ELF linker for ARM, AArch64, Hexagon, RISC-V, and x86-64",
		Long: `eld links ELF relocatable objects, archives, and shared objects into an
executable or shared object image, following a linker script's MEMORY/PHDRS/
SECTIONS layout when one is given.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := parseOptions(&fl, args)
			if err != nil {
				return err
			}
			sink := diag.NewSink(fl.verbose)
			l := link.New(opts, sink)
			image, err := l.Run()
			if err != nil {
				return err
			}
			if err := os.WriteFile(opts.Output, image, 0o755); err != nil {
				return fmt.Errorf("eld: writing %s: %w", opts.Output, err)
			}
			return nil
		},
	}

	pf := cmd.Flags()
	pf.StringVarP(&fl.output, "output", "o", "a.out", "output file path")
	pf.StringArrayVarP(&fl.searchDirs, "library-path", "L", defaults.DefaultSearchDirs, "add DIR to the library search path")
	pf.BoolVar(&fl.static, "static", false, "do not link against shared libraries")
	pf.BoolVar(&fl.shared, "shared", false, "produce a shared object")
	pf.BoolVar(&fl.pie, "pie", false, "produce a position-independent executable")
	pf.StringVarP(&fl.archName, "arch", "m", "x86_64", "target architecture (x86_64, aarch64, arm, hexagon, riscv64)")
	pf.StringVar(&fl.sysroot, "sysroot", defaults.Sysroot, "override path resolution for \"=\"-prefixed library paths")

	pf.BoolVar(&fl.gcSections, "gc-sections", false, "remove unreferenced sections")
	pf.BoolVar(&fl.noGCSections, "no-gc-sections", false, "keep unreferenced sections (default)")
	pf.StringVar(&fl.gcCref, "gc-cref", "", "emit a gc-sections cross-reference trace for SYM")
	pf.BoolVar(&fl.printGCSections, "print-gc-sections", false, "list sections removed by gc-sections")

	pf.StringArrayVarP(&fl.undefined, "undefined", "u", nil, "force SYM to be entered in the GC entry set and output symbol table (repeatable)")
	pf.BoolVarP(&fl.exportDynamic, "export-dynamic", "E", false, "add every default-visibility defined global to the GC entry set")
	pf.StringArrayVar(&fl.exportDynamicSymbols, "export-dynamic-symbol", nil, "add SYM to the GC entry set without exporting every global (repeatable)")

	pf.StringVar(&fl.unresolved, "unresolved-symbols", "report-all", "policy for unresolved symbols (ignore-all, report-all, ignore-in-object-files, ignore-in-shared-libs)")
	pf.BoolVar(&fl.allowMultipleDefinition, "allow-multiple-definition", false, "let a later strong definition of a name lose silently instead of failing")

	pf.StringArrayVar(&fl.wrap, "wrap", nil, "use __wrap_SYM in place of SYM (repeatable)")

	pf.StringVar(&fl.versionScript, "version-script", "", "read a version script from F")
	pf.StringVar(&fl.dynamicList, "dynamic-list", "", "read a dynamic symbol list from F")

	pf.StringVar(&fl.tText, "Ttext", "", "set the address of the .text output section")
	pf.StringVar(&fl.tData, "Tdata", "", "set the address of the .data output section")
	pf.StringVar(&fl.tBss, "Tbss", "", "set the address of the .bss output section")
	pf.StringArrayVar(&fl.sectionStarts, "section-start", nil, "set the address of section NAME to ADDR (NAME=ADDR, repeatable)")

	pf.StringVar(&fl.mapFile, "Map", "", "write a link map to F")
	pf.StringVar(&fl.mapStyle, "MapStyle", "txt", "link map rendering (txt, yaml)")

	pf.StringVar(&fl.symDefFile, "symdef", "", "write a symbol-definition listing to F")

	pf.BoolVar(&fl.patchEnable, "patch-enable", false, "enable incremental patching against --patch-base")
	pf.StringVar(&fl.patchBase, "patch-base", "", "base executable image for --patch-enable")

	pf.BoolVarP(&fl.optimize, "optimize", "O", false, "enable target-specific relaxation")
	pf.BoolVar(&fl.relax, "relax", false, "enable target-specific relaxation")
	pf.BoolVar(&fl.noRelax, "no-relax", false, "disable target-specific relaxation")

	pf.BoolVarP(&fl.trace, "trace", "t", false, "print each input file as it is processed")
	pf.BoolVarP(&fl.verbose, "verbose", "v", defaults.Verbose, "enable verbose diagnostics")

	pf.StringArrayVar(&fl.plugins, "plugin", nil, "register a plugin by NAME (ABI hooks only, no code loaded)")

	pf.StringVarP(&fl.script, "script", "T", "", "read a linker script from F")

	pf.IntVar(&fl.workers, "workers", 0, "bound the parallel worker pool (0 means GOMAXPROCS)")

	return cmd
}

// parseOptions turns the bound flag values plus positional args into a
// link.Options, doing the string->enum and NAME=ADDR parsing cobra/pflag
// cannot express directly as a StringVar target.
func parseOptions(fl *flags, args []string) (*link.Options, error) {
	arch, err := ir.ParseArch(fl.archName)
	if err != nil {
		return nil, err
	}

	unresolved, err := parseUnresolvedPolicy(fl.unresolved)
	if err != nil {
		return nil, err
	}

	mapStyle, err := parseMapStyle(fl.mapStyle)
	if err != nil {
		return nil, err
	}

	sectionStarts, err := parseSectionStarts(fl.sectionStarts)
	if err != nil {
		return nil, err
	}

	tText, err := parseOptionalAddr(fl.tText)
	if err != nil {
		return nil, fmt.Errorf("eld: -Ttext: %w", err)
	}
	tData, err := parseOptionalAddr(fl.tData)
	if err != nil {
		return nil, fmt.Errorf("eld: -Tdata: %w", err)
	}
	tBss, err := parseOptionalAddr(fl.tBss)
	if err != nil {
		return nil, fmt.Errorf("eld: -Tbss: %w", err)
	}

	opts := &link.Options{
		Output:     fl.output,
		SearchDirs: fl.searchDirs,
		Inputs:     args,
		Static:     fl.static,
		Shared:     fl.shared,
		PIE:        fl.pie,
		Arch:       arch,
		Sysroot:    fl.sysroot,

		GCSections:      fl.gcSections && !fl.noGCSections,
		GCCrefSymbol:    fl.gcCref,
		PrintGCSections: fl.printGCSections,

		Undefined:            fl.undefined,
		ExportDynamic:        fl.exportDynamic,
		ExportDynamicSymbols: fl.exportDynamicSymbols,

		Unresolved:              unresolved,
		AllowMultipleDefinition: fl.allowMultipleDefinition,

		Wrap: fl.wrap,

		VersionScript: fl.versionScript,
		DynamicList:   fl.dynamicList,

		TText:         tText,
		TData:         tData,
		TBss:          tBss,
		SectionStarts: sectionStarts,

		MapFile:  fl.mapFile,
		MapStyle: mapStyle,

		SymDefFile: fl.symDefFile,

		PatchEnable: fl.patchEnable,
		PatchBase:   fl.patchBase,

		Relax: (fl.optimize || fl.relax) && !fl.noRelax,

		Trace: fl.trace,

		Plugins: fl.plugins,

		LinkerScript: fl.script,

		Workers: fl.workers,
	}
	return opts, nil
}

func parseUnresolvedPolicy(s string) (link.UnresolvedPolicy, error) {
	switch s {
	case "ignore-all":
		return link.UnresolvedIgnoreAll, nil
	case "report-all", "":
		return link.UnresolvedReportAll, nil
	case "ignore-in-object-files":
		return link.UnresolvedIgnoreInObjectFiles, nil
	case "ignore-in-shared-libs":
		return link.UnresolvedIgnoreInSharedLibs, nil
	default:
		return 0, fmt.Errorf("eld: --unresolved-symbols: unknown policy %q", s)
	}
}

func parseMapStyle(s string) (link.MapStyle, error) {
	switch s {
	case "", "txt", "text":
		return link.MapStyleText, nil
	case "yaml":
		return link.MapStyleYAML, nil
	default:
		return 0, fmt.Errorf("eld: --MapStyle: unknown style %q", s)
	}
}

func parseSectionStarts(entries []string) (map[string]uint64, error) {
	if len(entries) == 0 {
		return nil, nil
	}
	out := make(map[string]uint64, len(entries))
	for _, e := range entries {
		name, addrStr, ok := strings.Cut(e, "=")
		if !ok {
			return nil, fmt.Errorf("eld: --section-start: expected NAME=ADDR, got %q", e)
		}
		addr, err := parseAddr(addrStr)
		if err != nil {
			return nil, fmt.Errorf("eld: --section-start=%s: %w", name, err)
		}
		out[name] = addr
	}
	return out, nil
}

func parseOptionalAddr(s string) (uint64, error) {
	if s == "" {
		return 0, nil
	}
	return parseAddr(s)
}

func parseAddr(s string) (uint64, error) {
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	v, err := strconv.ParseUint(s, 16, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid hex address %q", s)
	}
	return v, nil
}
