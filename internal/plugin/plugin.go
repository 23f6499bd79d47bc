// Package plugin implements the plugin ABI surface the core exposes
// (spec.md §9 "Plugin callbacks"): narrowly-typed mutators funneled through
// a LinkerWrapper facade, so a plugin never receives a raw index handle
// into Module.SectionMap or Module.InputFiles. No executable plugin
// loading is implemented -- see internal/link's LoadNonUniversalPlugins --
// only the hook surface a loaded plugin would call.
package plugin

import (
	"fmt"

	"github.com/rb1005/eld/internal/ir"
)

// RelocHook inspects and optionally rewrites r ahead of the generic
// relocation scan. Returning true marks r as fully handled, opting it out
// of Layout's ClassifyGeneric/Apply pipeline for that relocation.
type RelocHook func(r *ir.Relocation) bool

// SectionMatchHook overrides which output section sec is assigned to,
// ahead of SECTIONS-script rules and the architecture's default table.
type SectionMatchHook func(sec *ir.Section) (outputName string, ok bool)

// Host is the facade a plugin mutates the link through: add_fragment,
// remove_fragment, register_reloc_hook, override_section_match.
type Host interface {
	AddFragment(sectionName string, frag *ir.Fragment) error
	RemoveFragment(sectionName string, frag *ir.Fragment) error
	RegisterRelocHook(hook RelocHook)
	OverrideSectionMatch(hook SectionMatchHook)
}

// LinkerWrapper is the concrete Host: one Module plus the Registry whose
// hook lists RegisterRelocHook/OverrideSectionMatch append to.
type LinkerWrapper struct {
	Mod      *ir.Module
	Registry *Registry
}

func NewLinkerWrapper(mod *ir.Module, reg *Registry) *LinkerWrapper {
	return &LinkerWrapper{Mod: mod, Registry: reg}
}

func (w *LinkerWrapper) AddFragment(sectionName string, frag *ir.Fragment) error {
	sec := w.findSection(sectionName)
	if sec == nil {
		return fmt.Errorf("plugin: no section named %q", sectionName)
	}
	sec.AppendFragment(frag)
	return nil
}

func (w *LinkerWrapper) RemoveFragment(sectionName string, frag *ir.Fragment) error {
	sec := w.findSection(sectionName)
	if sec == nil {
		return fmt.Errorf("plugin: no section named %q", sectionName)
	}
	for i, existing := range sec.Fragments {
		if existing == frag {
			sec.Fragments = append(sec.Fragments[:i], sec.Fragments[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("plugin: fragment not found in section %q", sectionName)
}

func (w *LinkerWrapper) RegisterRelocHook(hook RelocHook) {
	w.Registry.relocHooks = append(w.Registry.relocHooks, hook)
}

func (w *LinkerWrapper) OverrideSectionMatch(hook SectionMatchHook) {
	w.Registry.matchHooks = append(w.Registry.matchHooks, hook)
}

func (w *LinkerWrapper) findSection(name string) *ir.Section {
	for _, f := range w.Mod.InputFiles {
		for _, sec := range f.Sections {
			if sec.Name == name {
				return sec
			}
		}
	}
	return nil
}

// Registry tracks every plugin named via --plugin=NAME or a script
// PLUGIN(...) command, plus whatever reloc/section-match hooks a loaded
// plugin has registered through a LinkerWrapper. Register only records a
// name for --trace/verbose reporting; the hook lists stay empty unless a
// caller installs one directly through NewLinkerWrapper.
type Registry struct {
	names []string

	relocHooks []RelocHook
	matchHooks []SectionMatchHook
}

func NewRegistry() *Registry { return &Registry{} }

func (r *Registry) Register(name string) { r.names = append(r.names, name) }

func (r *Registry) Names() []string { return r.names }

// ApplyRelocHooks runs every registered hook against rel in registration
// order, stopping at the first one that reports it handled rel.
func (r *Registry) ApplyRelocHooks(rel *ir.Relocation) bool {
	for _, h := range r.relocHooks {
		if h(rel) {
			return true
		}
	}
	return false
}

// MatchOverride runs every registered section-match hook against sec,
// returning the first override offered.
func (r *Registry) MatchOverride(sec *ir.Section) (string, bool) {
	for _, h := range r.matchHooks {
		if name, ok := h(sec); ok {
			return name, true
		}
	}
	return "", false
}
