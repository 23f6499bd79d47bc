package ir

import (
	"fmt"
	"sync"

	"github.com/rb1005/eld/internal/diag"
	"github.com/rb1005/eld/internal/script"
)

// OutputKind selects whether the Module produces an executable, shared
// object, or relocatable object.
type OutputKind int

const (
	OutputExecutable OutputKind = iota
	OutputSharedObject
	OutputRelocatable
)

// OutputSectionEntry is one ordered entry of the SectionMap (spec.md
// §3.1/§4.3): an output section name plus the rules and fragments placed
// within it.
type OutputSectionEntry struct {
	Name  string
	Rules []*RuleContainer

	Addr      uint64
	LoadAddr  uint64
	Offset    uint64
	Align     uint64
	Flags     uint64
	Type      uint32
	Allocated bool
	Phdrs     []string

	// Region/AtExpr/AlignExpr carry the prolog of this entry's
	// CmdOutputSectDesc (spec.md §4.2), consulted by Layout's address
	// assignment: Region names the MEMORY region to advance, AtExpr is
	// the AT() load-address override, AlignExpr is the output section's
	// own ALIGN() (falling back to Align, the widest input-section
	// alignment, when nil). Unset for entries reached only through the
	// target's default rule table (no SECTIONS command matched them).
	Region    string
	AtExpr    *script.Expression
	AlignExpr *script.Expression

	// Sections lists, in final placement order, every input Section
	// assigned here.
	Sections []*Section
}

// RuleContainer is one `*(pattern)` rule inside an OutputSectionEntry.
type RuleContainer struct {
	FilePattern    string
	SectionPattern []string
	Keep           bool
	SortByName     bool
	SortByAlign    bool
	SortByInit     bool

	MatchCount int
}

// Module is the root aggregate: exactly one per link.
type Module struct {
	mu sync.Mutex

	State State
	Kind  OutputKind
	Arch  Arch

	Pool *NamePool

	InputFiles []*InputFile
	Internals  map[InternalRole]*InputFile

	SectionMap []*OutputSectionEntry

	// EntrySymbolName is the configured entry point (ENTRY() command or
	// -e flag); resolved to an address during Layout.
	EntrySymbolName string
	EntryAddr       uint64

	Sink *diag.Sink

	// DynamicLink is true for OutputSharedObject and for executables that
	// are not statically linked.
	DynamicLink bool
	Symbolic    bool

	// GCSections enables the Layout 5a garbage-collection pass.
	GCSections bool

	// Relaxation enables the Layout 5g relaxation pass (RISC-V).
	Relax bool
}

func NewModule(arch Arch, kind OutputKind, sink *diag.Sink) *Module {
	return &Module{
		State:     Unknown,
		Kind:      kind,
		Arch:      arch,
		Pool:      NewNamePool(),
		Internals: make(map[InternalRole]*InputFile),
		Sink:      sink,
	}
}

// Internal returns (creating if absent) the well-known internal input file
// for role.
func (m *Module) Internal(role InternalRole) *InputFile {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.Internals[role]
	if !ok {
		f = NewInternal(role)
		m.Internals[role] = f
		m.InputFiles = append(m.InputFiles, f)
	}
	return f
}

// AddInputFile appends f to the module's input list, thread-safe for
// Phase 2's parallel per-file parsing (spec.md §5).
func (m *Module) AddInputFile(f *InputFile) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.InputFiles = append(m.InputFiles, f)
}

// OutputSection finds or creates (in script order) the entry named name.
func (m *Module) OutputSection(name string) *OutputSectionEntry {
	for _, e := range m.SectionMap {
		if e.Name == name {
			return e
		}
	}
	e := &OutputSectionEntry{Name: name}
	m.SectionMap = append(m.SectionMap, e)
	return e
}

// Fatal reports a fatal diagnostic and returns it as an error, for the
// common "report and bail" pattern used throughout the phases.
func (m *Module) Fatal(id diag.ID, args ...string) error {
	e := diag.New(diag.Fatal, id, args...)
	if m.Sink != nil {
		m.Sink.Report(e)
	}
	return e
}

// CheckInvariants runs the cheap subset of spec.md §3.2/§8 invariants that
// can be checked at any point without a full layout, primarily used by
// tests. It is not a substitute for the phase-specific checks in
// internal/link.
func (m *Module) CheckInvariants() error {
	for _, name := range m.Pool.Names() {
		info, _ := m.Pool.Find(name)
		if info.OutSymbol != nil && info.OutSymbol.Info.Name != name {
			return fmt.Errorf("ir: invariant violated: name_pool.find(%s).out_symbol.name == %s", name, info.OutSymbol.Info.Name)
		}
	}
	for _, e := range m.SectionMap {
		for _, s := range e.Sections {
			var off uint64
			for _, f := range s.Fragments {
				if f.Offset%max1(f.Align) != 0 {
					return fmt.Errorf("ir: invariant violated: fragment offset %d alignment in section %s", f.Offset, s.Name)
				}
				if f.Offset < off {
					return fmt.Errorf("ir: invariant violated: fragment offsets not monotonic in section %s", s.Name)
				}
				off = f.Offset + f.Size()
			}
		}
		if e.Allocated && e.Align > 0 && e.Addr%e.Align != 0 {
			return fmt.Errorf("ir: invariant violated: section %s addr %% alignment != 0", e.Name)
		}
	}
	return nil
}

func max1(a uint64) uint64 {
	if a == 0 {
		return 1
	}
	return a
}
