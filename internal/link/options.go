// Package link orchestrates the six-phase pipeline (spec.md §2): Prepare,
// Normalize, Resolve, LoadNonUniversalPlugins, Layout, Emit. Grounded on
// the teacher's top-level Compile driver (codegen.go) for "one function
// per phase, module threaded through each" shape, and on parallel.go's
// raw-syscall thread pool for the idea of a bounded worker pool -- rather
// than its POSIX-specific mechanism, which internal/link/pool.go replaces
// with sync.WaitGroup plus a buffered-channel semaphore.
package link

import "github.com/rb1005/eld/internal/ir"

// UnresolvedPolicy selects how an undefined symbol reference is handled at
// the end of Resolve (spec.md §6 --unresolved-symbols=).
type UnresolvedPolicy int

const (
	UnresolvedReportAll UnresolvedPolicy = iota
	UnresolvedIgnoreAll
	UnresolvedIgnoreInObjectFiles
	UnresolvedIgnoreInSharedLibs
)

// MapStyle selects the link map's rendering (spec.md §6 --MapStyle=).
type MapStyle int

const (
	MapStyleNone MapStyle = iota
	MapStyleText
	MapStyleYAML
)

// Options is the fully-parsed CLI surface (spec.md §6), independent of how
// it was parsed (cmd/eld's cobra layer populates this; tests construct it
// directly).
type Options struct {
	Output       string   // -o
	SearchDirs   []string // -L
	Inputs       []string // -l and positional file args, in command-line order
	Static       bool     // -static
	Shared       bool     // -shared
	PIE          bool     // -pie
	Arch         ir.Arch  // -m

	// Sysroot overrides path resolution for "="-prefixed library paths
	// (spec.md §6 Environment); empty means no sysroot substitution.
	Sysroot string

	GCSections      bool   // --gc-sections / --no-gc-sections
	GCCrefSymbol    string // --gc-cref=SYM
	PrintGCSections bool   // --print-gc-sections

	// Undefined names symbols forced into the GC entry set and resolution
	// (spec.md §4.4 step 4) via -u/--undefined, in addition to any
	// script EXTERN(...) command.
	Undefined []string

	// ExportDynamic is --export-dynamic / -E: every default-visibility
	// defined global is added to the GC entry set (spec.md §4.4 step 4,
	// "For executables linked with --export-dynamic/-pie"). -pie implies
	// it even when the flag itself is absent.
	ExportDynamic bool

	// ExportDynamicSymbols names individual symbols to export without
	// forcing every global (--export-dynamic-symbol=SYM, repeatable).
	ExportDynamicSymbols []string

	Unresolved UnresolvedPolicy

	// AllowMultipleDefinition is --allow-multiple-definition: a later
	// strong definition of a name already strongly
	// defined loses silently instead of being a fatal error.
	AllowMultipleDefinition bool

	Wrap []string // --wrap=SYM (repeatable)

	VersionScript string // --version-script=F
	DynamicList   string // --dynamic-list=F

	TText          uint64            // -Ttext
	TData          uint64            // -Tdata
	TBss           uint64            // -Tbss
	SectionStarts  map[string]uint64 // --section-start=NAME=ADDR

	MapFile  string // -Map=F
	MapStyle MapStyle

	SymDefFile  string // --symdef=F
	SymDefStyle string

	PatchEnable bool   // --patch-enable
	PatchBase   string // --patch-base=F

	Relax bool // -O / --relax / --no-relax

	Trace bool // --trace / -t

	Plugins []string // --plugin=NAME (script PLUGIN(...) commands merge in too)

	LinkerScript string // explicit script file, if any (-T)

	// Workers bounds the Phase 2 (Normalize) worker pool (spec.md §5);
	// zero means "use GOMAXPROCS".
	Workers int
}

// OutputKind derives the ir.OutputKind implied by the Static/Shared/PIE
// flag combination.
func (o *Options) OutputKind() ir.OutputKind {
	switch {
	case o.Shared:
		return ir.OutputSharedObject
	default:
		return ir.OutputExecutable
	}
}
