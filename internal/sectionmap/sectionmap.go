// Package sectionmap assigns every input section to an OutputSectionEntry
// (or discards it), implementing the rule-matching algorithm of spec.md
// §4.3. Grounded on the teacher's target.go (a small per-arch dispatch
// table keyed by name) generalized into a script-rule matcher, with
// wildcard matching adopted from the pack's gobwas/glob usage
// (other_examples/manifests/syncthing-syncthing, direktiv-vorteil).
package sectionmap

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/gobwas/glob"

	"github.com/rb1005/eld/internal/ir"
	"github.com/rb1005/eld/internal/script"
)

// Rule is a compiled InputSectDesc: its file/section glob patterns are
// pre-compiled once, then matched against every input section.
type Rule struct {
	Desc *script.InputSectDesc

	filePattern glob.Glob
	archMember  string // non-empty if FilePattern was "archive(member)"
	sectionPats []glob.Glob

	excludeFiles []glob.Glob

	matchCount int
}

// OutputRule pairs an output-section descriptor with its compiled rules,
// in script order.
type OutputRule struct {
	Name  string
	Desc  *script.Command // CmdOutputSectDesc
	Rules []*Rule
}

// Map holds the compiled rule set built from a SECTIONS command, plus the
// default target-provided fallback rules (spec.md §4.3: "Sections not
// matched by any rule ... fall through to default rules").
type Map struct {
	Outputs  []*OutputRule
	Defaults []DefaultRule

	matchedAny map[*ir.Section]bool
}

// DefaultRule is one entry of the target's built-in `name-glob ->
// output-name` table, used when no SECTIONS command matches a section or
// no SECTIONS command is present at all.
type DefaultRule struct {
	Pattern glob.Glob
	Output  string
}

// DefaultRulesForArch returns the standard GNU-ld-compatible default
// section map for a target, ordered most-specific first. The table is the
// same for every arch; it has no .ARM.exidx entry, and arm_exidx.go's
// helpers are not called from this table.
func DefaultRulesForArch(arch ir.Arch) []DefaultRule {
	table := []struct{ pat, out string }{
		{".text.*", ".text"},
		{".text", ".text"},
		{".rodata.*", ".rodata"},
		{".rodata", ".rodata"},
		{".data.rel.ro.*", ".data.rel.ro"},
		{".data.rel.ro", ".data.rel.ro"},
		{".data.*", ".data"},
		{".data", ".data"},
		{".bss.*", ".bss"},
		{".bss", ".bss"},
		{".init_array*", ".init_array"},
		{".fini_array*", ".fini_array"},
		{".ctors*", ".ctors"},
		{".dtors*", ".dtors"},
		{".tdata.*", ".tdata"},
		{".tdata", ".tdata"},
		{".tbss.*", ".tbss"},
		{".tbss", ".tbss"},
		{".eh_frame*", ".eh_frame"},
		{".gcc_except_table*", ".gcc_except_table"},
		{".comment", ".comment"},
		{".debug_*", ".debug_info"},
		{".note.*", ".note"},
	}
	out := make([]DefaultRule, 0, len(table))
	for _, e := range table {
		out = append(out, DefaultRule{Pattern: glob.MustCompile(e.pat), Output: e.out})
	}
	return out
}

// Compile translates a SECTIONS command's output-section descriptors into
// a matchable Map.
func Compile(sections *script.Command, arch ir.Arch) (*Map, error) {
	m := &Map{Defaults: DefaultRulesForArch(arch), matchedAny: map[*ir.Section]bool{}}
	if sections == nil {
		return m, nil
	}
	for _, body := range sections.Body {
		if body.Kind != script.CmdOutputSectDesc {
			continue
		}
		or := &OutputRule{Name: body.OutputName, Desc: body}
		for _, rd := range body.Rules {
			if rd.Assignment != nil {
				continue
			}
			r, err := compileRule(rd)
			if err != nil {
				return nil, fmt.Errorf("output section %s: %w", body.OutputName, err)
			}
			or.Rules = append(or.Rules, r)
		}
		m.Outputs = append(m.Outputs, or)
	}
	return m, nil
}

func compileRule(d *script.InputSectDesc) (*Rule, error) {
	r := &Rule{Desc: d}
	fp := d.FilePattern
	if i, j := strings.IndexByte(fp, '('), strings.LastIndexByte(fp, ')'); i > 0 && j == len(fp)-1 {
		archPat := fp[:i]
		r.archMember = fp[i+1 : j]
		g, err := glob.Compile(archPat)
		if err != nil {
			return nil, err
		}
		r.filePattern = g
	} else {
		g, err := glob.Compile(fp)
		if err != nil {
			return nil, err
		}
		r.filePattern = g
	}
	for _, sp := range d.SectionPattern {
		g, err := glob.Compile(sp)
		if err != nil {
			return nil, err
		}
		r.sectionPats = append(r.sectionPats, g)
	}
	for _, ef := range d.ExcludeFiles {
		g, err := glob.Compile(ef)
		if err != nil {
			return nil, err
		}
		r.excludeFiles = append(r.excludeFiles, g)
	}
	return r, nil
}

// MatchFile reports whether fileName (the input object's on-disk path or
// archive member spec "archive.a(member.o)") satisfies r's file pattern
// and is not excluded.
func (r *Rule) MatchFile(fileName, archiveName, memberName string) bool {
	for _, ex := range r.excludeFiles {
		if ex.Match(fileName) {
			return false
		}
	}
	if r.archMember != "" {
		return r.filePattern.Match(archiveName) && matchGlobString(r.archMember, memberName)
	}
	return r.filePattern.Match(fileName)
}

func matchGlobString(pattern, s string) bool {
	g, err := glob.Compile(pattern)
	if err != nil {
		return pattern == s
	}
	return g.Match(s)
}

// MatchSection reports whether sectionName matches one of r's section
// patterns.
func (r *Rule) MatchSection(sectionName string) bool {
	for _, g := range r.sectionPats {
		if g.Match(sectionName) {
			return true
		}
	}
	return false
}

// Assign implements the matching algorithm of spec.md §4.3: traverse
// rules in script order, the first rule (file pattern and section
// pattern) that matches wins. Falls through to the default table, then
// leaves sec unmatched (internal/link's buildSectionMap drops every
// unmatched section).
func (m *Map) Assign(sec *ir.Section, fileName, archiveName, memberName string) (outputName string, matched bool) {
	for _, or := range m.Outputs {
		for _, r := range or.Rules {
			if !r.MatchFile(fileName, archiveName, memberName) {
				continue
			}
			if !r.MatchSection(sec.Name) {
				continue
			}
			r.matchCount++
			m.matchedAny[sec] = true
			if r.Desc.Keep {
				sec.Retained = true
			}
			return or.Name, true
		}
	}
	for _, d := range m.Defaults {
		if d.Pattern.Match(sec.Name) {
			return d.Output, true
		}
	}
	return "", false
}

// Order applies SORT_BY_NAME / SORT_BY_INIT_PRIORITY wrappers to a rule's
// matched section names, per spec.md §4.3's "Ordering within an output
// section": stable sort by the stated key, encounter order otherwise.
// SORT_BY_ALIGNMENT returns the names in encounter order (Order receives
// names only). No caller in the link pipeline invokes Order, so matched
// sections keep encounter order in the output. initPriority extracts the N from a ".ctors.N" /
// ".dtors.N" / ".init_array.N" style section name, defaulting to 0 (no
// suffix, i.e. the generic unnumbered section) for comparison purposes --
// matching GNU ld's convention that the unnumbered form runs last among
// ctors and first among init_array groups is not modelled here.
func (r *Rule) Order(names []string) []string {
	if !r.Desc.SortByName && !r.Desc.SortByAlignment && !r.Desc.SortByInitPriority {
		return names
	}
	out := append([]string(nil), names...)
	switch {
	case r.Desc.SortByName:
		sort.SliceStable(out, func(i, j int) bool { return out[i] < out[j] })
	case r.Desc.SortByInitPriority:
		sort.SliceStable(out, func(i, j int) bool {
			return initPriority(out[i]) < initPriority(out[j])
		})
	}
	return out
}

func initPriority(sectionName string) int {
	idx := strings.LastIndexByte(sectionName, '.')
	if idx < 0 || idx == len(sectionName)-1 {
		return 0
	}
	n, err := strconv.Atoi(sectionName[idx+1:])
	if err != nil {
		return 0
	}
	return n
}

// MatchCount reports how many sections a given compiled rule has matched
// so far, one of the "observable metrics" spec.md §4.3 calls for.
func (r *Rule) MatchCount() int { return r.matchCount }
