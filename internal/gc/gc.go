// Package gc implements --gc-sections (spec.md §4.4): a BFS reachability
// pass over the section-reference graph built from relocation scanning,
// plus NOCROSSREFS validation (nocrossrefs.go). Grounded on
// original_source/lib/GarbageCollection/GarbageCollection.cpp for the
// entry-set construction rules and the section-graph shape; the BFS
// itself is plain graph traversal over a map, which no pack library
// specializes for a custom section IR (justified stdlib use, recorded in
// the grounding ledger).
package gc

import (
	"strings"

	"github.com/rb1005/eld/internal/ir"
)

// Graph is the section-reference graph: edges point from a referencing
// section to every section it reaches via a relocation, a __start_X/
// __stop_X symbol, or a bitcode side-map entry.
type Graph struct {
	edges map[*ir.Section]map[*ir.Section]bool

	// bitcode maps a bitcode-resident section to the symbol names it
	// references, resolved to owning sections at BFS time via resolve.
	bitcode map[*ir.Section][]string
}

func NewGraph() *Graph {
	return &Graph{edges: map[*ir.Section]map[*ir.Section]bool{}, bitcode: map[*ir.Section][]string{}}
}

func (g *Graph) addEdge(from, to *ir.Section) {
	if from == nil || to == nil || from == to {
		return
	}
	m, ok := g.edges[from]
	if !ok {
		m = map[*ir.Section]bool{}
		g.edges[from] = m
	}
	m[to] = true
}

// AddBitcodeReferences records the symbols a bitcode-resident section
// references, since bitcode has no concrete relocations to scan yet
// (spec.md §4.4 step 1: "Bitcode-resident sections are handled via a side
// map bitcode_section -> {referenced symbols}").
func (g *Graph) AddBitcodeReferences(sec *ir.Section, symbols []string) {
	g.bitcode[sec] = append(g.bitcode[sec], symbols...)
}

// BuildFromRelocations scans every relocation in the module, adding an
// edge from the relocation's owning section to its target symbol's
// owning section (spec.md §4.4 step 1). References to __start_X/__stop_X
// symbols get no edge here; ResolveStartStopEdges adds those once the
// full section list is known.
func BuildFromRelocations(relocs []*ir.Relocation) *Graph {
	g := NewGraph()
	for _, r := range relocs {
		if r.Symbol == nil || r.Owner == nil {
			continue
		}
		target := symbolOwningSection(r.Symbol)
		if target != nil {
			g.addEdge(r.Owner, target)
			continue
		}
		if prefix, ok := startStopPrefix(r.Symbol.Name); ok {
			_ = prefix // edges for this are resolved once all sections are known, via ResolveStartStop
		}
	}
	return g
}

func symbolOwningSection(info *ir.ResolveInfo) *ir.Section {
	if info == nil || info.OutSymbol == nil || info.OutSymbol.Frag == nil {
		return nil
	}
	return info.OutSymbol.Frag.Fragment.Owner
}

// startStopPrefix extracts X from a "__start_X" or "__stop_X" symbol name.
func startStopPrefix(name string) (string, bool) {
	switch {
	case strings.HasPrefix(name, "__start_"):
		return strings.TrimPrefix(name, "__start_"), true
	case strings.HasPrefix(name, "__stop_"):
		return strings.TrimPrefix(name, "__stop_"), true
	}
	return "", false
}

// ResolveStartStopEdges adds an edge from every referencer of __start_X /
// __stop_X to every section named X, given the full relocation list and
// section list (done as a second pass since it needs the complete section
// list to enumerate "every section named X").
func (g *Graph) ResolveStartStopEdges(relocs []*ir.Relocation, allSections []*ir.Section) {
	byName := map[string][]*ir.Section{}
	for _, s := range allSections {
		byName[s.Name] = append(byName[s.Name], s)
	}
	for _, r := range relocs {
		if r.Symbol == nil || r.Owner == nil {
			continue
		}
		prefix, ok := startStopPrefix(r.Symbol.Name)
		if !ok {
			continue
		}
		for _, s := range byName[prefix] {
			g.addEdge(r.Owner, s)
		}
	}
}

// EntrySet computes the initial reachable set per spec.md §4.4 step 2.
type EntryConfig struct {
	EntrySection       *ir.Section
	FirstTextSection   *ir.Section // used only if EntrySection is nil
	RetainedSections   []*ir.Section
	KeptSections       []*ir.Section
	CommonOwners       []*ir.Section
	ExplicitUndefined  []*ir.ResolveInfo // -u / --undefined / EXTERN
	ExportDynamicSyms  []*ir.ResolveInfo
	SharedObjectOutput bool
	ExportDynamicAll   bool // --export-dynamic / -pie on an executable
	AllDefinedGlobals  []*ir.ResolveInfo
}

func EntrySet(cfg EntryConfig) map[*ir.Section]bool {
	live := map[*ir.Section]bool{}
	add := func(s *ir.Section) {
		if s != nil {
			live[s] = true
		}
	}
	if cfg.EntrySection != nil {
		add(cfg.EntrySection)
	} else {
		add(cfg.FirstTextSection)
	}
	for _, s := range cfg.RetainedSections {
		add(s)
	}
	for _, s := range cfg.KeptSections {
		add(s)
	}
	for _, s := range cfg.CommonOwners {
		add(s)
	}
	for _, info := range cfg.ExplicitUndefined {
		add(symbolOwningSection(info))
	}
	for _, info := range cfg.ExportDynamicSyms {
		add(symbolOwningSection(info))
	}
	if cfg.SharedObjectOutput || cfg.ExportDynamicAll {
		for _, info := range cfg.AllDefinedGlobals {
			if info.Visibility == ir.VisDefault {
				add(symbolOwningSection(info))
			}
		}
	}
	return live
}

// Run performs the BFS of spec.md §4.4 step 3-4: every section reachable
// from entrySet joins the live set; everything else that is GC-eligible
// is marked Ignore by the caller (Run itself just reports the live set,
// since Section.Kind.EligibleForGC is the caller's business to check
// before acting on a non-live result).
func Run(g *Graph, entrySet map[*ir.Section]bool) map[*ir.Section]bool {
	live := map[*ir.Section]bool{}
	var queue []*ir.Section
	for s := range entrySet {
		if !live[s] {
			live[s] = true
			queue = append(queue, s)
		}
	}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for next := range g.edges[cur] {
			if !live[next] {
				live[next] = true
				queue = append(queue, next)
			}
		}
	}
	return live
}

// Apply marks every GC-eligible section not in live as Ignore, per spec.md
// §4.4 step 4. It mutates each section's Kind only when eligible; sections
// ineligible for GC are left untouched regardless of reachability.
func Apply(sections []*ir.Section, live map[*ir.Section]bool) (removed int) {
	for _, s := range sections {
		if live[s] || s.Retained {
			continue
		}
		if !s.Kind.EligibleForGC() {
			continue
		}
		s.Kind = ir.KindIgnore
		removed++
	}
	return removed
}

// CrefTrace implements --gc-cref=SYM: every section that references SYM
// (spec.md §4.4 step 5). The order of the result follows Go map iteration
// over the graph's edges and is not stable between runs.
func CrefTrace(g *Graph, target *ir.Section) []*ir.Section {
	var out []*ir.Section
	for from, tos := range g.edges {
		if tos[target] {
			out = append(out, from)
		}
	}
	return out
}
