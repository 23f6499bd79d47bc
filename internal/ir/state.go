package ir

import "fmt"

// State is the Module's lifecycle state (spec.md §3.2): it advances
// monotonically and operations that require a given state fail when
// invoked in another.
type State int

const (
	Unknown State = iota
	Initializing
	BeforeLayout
	CreatingSections
	AfterLayout
)

func (s State) String() string {
	switch s {
	case Unknown:
		return "unknown"
	case Initializing:
		return "initializing"
	case BeforeLayout:
		return "before-layout"
	case CreatingSections:
		return "creating-sections"
	case AfterLayout:
		return "after-layout"
	default:
		return "invalid"
	}
}

// Advance moves to next, rejecting any attempt to go backward. Lifecycle
// transitions in this linker are strictly forward: Prepare/Normalize run in
// Initializing, Resolve finishes in BeforeLayout, Layout runs through
// CreatingSections, and Emit requires AfterLayout.
func (s *State) Advance(next State) error {
	if next < *s {
		return fmt.Errorf("ir: illegal state transition %s -> %s", *s, next)
	}
	*s = next
	return nil
}

// Require returns an error if the module is not currently in want.
func (s State) Require(want State) error {
	if s != want {
		return fmt.Errorf("ir: operation requires state %s, module is in %s", want, s)
	}
	return nil
}

// RequireAtLeast returns an error if the module has not yet reached want.
func (s State) RequireAtLeast(want State) error {
	if s < want {
		return fmt.Errorf("ir: operation requires state >= %s, module is in %s", want, s)
	}
	return nil
}
