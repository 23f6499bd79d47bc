package ir

import (
	"fmt"
	"sync"

	"github.com/rb1005/eld/internal/diag"
)

// NamePool maps symbol name -> ResolveInfo. It is append-only within a
// link (spec.md §3.1) and mutable only during Phase 2/3; §5 requires
// serialized or concurrent-safe insertion observably equivalent to
// depth-first insertion in input-file command-line order, so every mutating
// method takes the pool's single mutex regardless of caller goroutine.
type NamePool struct {
	mu      sync.Mutex
	infos   map[string]*ResolveInfo
	order   []string // first-sighted order, for deterministic iteration
	wrapped map[string]string

	// AllowMultipleDefinition gates rule 1's strong-strong duplicate check
	// (--allow-multiple-definition): when set, a later strong definition
	// loses to the first one instead of raising
	// diag.ErrDuplicateStrongDefinition.
	AllowMultipleDefinition bool
}

func NewNamePool() *NamePool {
	return &NamePool{
		infos:   make(map[string]*ResolveInfo),
		wrapped: make(map[string]string),
	}
}

// Wrap registers a --wrap=name directive (spec.md §4.1 rule 5): subsequent
// AddSymbol calls referencing name (DescUndefined occurrences) are
// redirected to __wrap_name, and references to __real_name are redirected
// to name; definitions keep their own names.
func (p *NamePool) Wrap(name string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.wrapped[name] = "__wrap_" + name
	p.wrapped["__real_"+name] = name
}

func (p *NamePool) resolveWrapName(name string) string {
	if w, ok := p.wrapped[name]; ok {
		return w
	}
	return name
}

// AddSymbol records one occurrence of a symbol and returns the resulting
// LDSymbol. It may update the pool's ResolveInfo.OutSymbol if this
// occurrence wins under the precedence rules of spec.md §4.1.
func (p *NamePool) AddSymbol(name string, typ SymType, desc Descriptor, binding Binding,
	size uint64, value uint64, vis Visibility, src *InputFile, frag *FragmentRef) (*LDSymbol, error) {

	p.mu.Lock()
	defer p.mu.Unlock()

	if desc == DescUndefined {
		name = p.resolveWrapName(name)
	}

	info, existed := p.infos[name]
	if !existed {
		info = &ResolveInfo{Name: name, Type: typ, Desc: desc, Binding: binding, Visibility: vis, Size: size}
		p.infos[name] = info
		p.order = append(p.order, name)
	}

	sym := &LDSymbol{Info: info, Value: value, Frag: frag, SourceFile: src}

	win, err := resolvePrecedence(info, desc, binding, size, vis, p.AllowMultipleDefinition)
	if err != nil {
		return sym, err
	}
	if win || !existed {
		info.Desc = desc
		info.Binding = binding
		info.Type = typ
		info.SourceFile = src
		if existed {
			info.Size = maxU64(info.Size, size)
		} else {
			info.Size = size
		}
		info.Visibility = minVisibility(info.Visibility, vis)
		info.OutSymbol = sym
	} else {
		info.Visibility = minVisibility(info.Visibility, vis)
		if desc == DescCommon && info.Desc == DescCommon {
			info.Size = maxU64(info.Size, size)
		}
	}
	return sym, nil
}

// resolvePrecedence decides whether a new occurrence (desc/binding/size/vis)
// should replace the pool's current champion for info, applying spec.md
// §4.1 rules 1-4 in order. It returns an error only for an illegal
// strong-strong duplicate definition.
func resolvePrecedence(info *ResolveInfo, desc Descriptor, binding Binding, size uint64, vis Visibility, allowMultipleDefinition bool) (bool, error) {
	rank := func(d Descriptor, b Binding) int {
		switch {
		case d == DescDefined && b == BindGlobal:
			return 4 // strong defined
		case d == DescDefined && b == BindWeak:
			return 3 // weak defined
		case d == DescCommon:
			return 2
		case d == DescUndefined:
			return 1
		default:
			return 0
		}
	}

	oldRank := rank(info.Desc, info.Binding)
	newRank := rank(desc, binding)

	switch {
	case newRank > oldRank:
		return true, nil
	case newRank < oldRank:
		return false, nil
	default:
		// Equal rank.
		if newRank == 4 {
			// Two strong definitions of the same name: fatal, unless
			// --allow-multiple-definition is set, in which case the first
			// definition wins and the second is silently dropped.
			if allowMultipleDefinition {
				return false, nil
			}
			return false, diag.New(diag.Fatal, diag.ErrDuplicateStrongDefinition, info.Name, "<first>", "<second>")
		}
		if newRank == 2 {
			// common/common: larger size wins (rule 3).
			return size > info.Size, nil
		}
		return false, nil
	}
}

func maxU64(a, b uint64) uint64 {
	if a > b {
		return a
	}
	return b
}

// Find returns the ResolveInfo for name, if any.
func (p *NamePool) Find(name string) (*ResolveInfo, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	i, ok := p.infos[name]
	return i, ok
}

// FindSymbol returns the chosen out-symbol for name, if any.
func (p *NamePool) FindSymbol(name string) (*LDSymbol, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	i, ok := p.infos[name]
	if !ok || i.OutSymbol == nil {
		return nil, false
	}
	return i.OutSymbol, true
}

// Names returns all known names in first-sighted order, satisfying §5's
// determinism requirement that iteration order be a function of
// command-line input order, not insertion goroutine interleaving.
func (p *NamePool) Names() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.order))
	copy(out, p.order)
	return out
}

// Reserve marks bits on info's Reserved mask and reports whether they were
// newly set (false means the artifact already existed — makes relocation
// scanning idempotent per spec.md §4.5).
func (p *NamePool) Reserve(info *ResolveInfo, bits Reserved) (newlyReserved bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if info.Reserved&bits == bits {
		return false
	}
	info.Reserved |= bits
	return true
}

// LinkAlias links child into parent's alias chain: both share the same
// value+section, a canonical holder owns the chain (spec.md §4.1: "when
// two definitions share the same value and section, they are linked as
// aliases; one is the canonical holder, others point to it").
func LinkAlias(canonical, child *ResolveInfo) error {
	if canonical == child {
		return fmt.Errorf("ir: cannot alias a symbol to itself")
	}
	child.Alias = canonical
	return nil
}
