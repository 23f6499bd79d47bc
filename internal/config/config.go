// Package config resolves environment-sourced defaults the way the
// teacher (xyproto/flapc) uses github.com/xyproto/env/v2 to read optional
// environment overrides, generalized to the linker's sysroot/search-path
// defaults (spec.md §6 Environment).
package config

import (
	"strings"

	"github.com/xyproto/env/v2"
)

// Defaults holds environment-sourced fallbacks consulted only when the
// corresponding CLI flag was not given. LD_LIBRARY_PATH is deliberately not
// one of these fields: spec.md §6 states it is "not consulted at link
// time".
type Defaults struct {
	// Sysroot mirrors --sysroot=; ELD_SYSROOT is an eld-specific escape
	// hatch for environments that can't pass flags (e.g. build systems
	// invoking eld via a fixed wrapper script).
	Sysroot string

	// DefaultSearchDirs augments -L in the absence of any LD_LIBRARY_PATH
	// consultation; sourced from ELD_LIBRARY_PATH, a distinct name chosen
	// specifically to avoid the LD_LIBRARY_PATH semantics spec.md excludes.
	DefaultSearchDirs []string

	// Verbose turns on additional environment-gated tracing without a
	// flag, useful for CI harnesses. Sourced from ELD_VERBOSE.
	Verbose bool
}

// Load reads Defaults from the process environment.
func Load() Defaults {
	var dirs []string
	if raw := env.Str("ELD_LIBRARY_PATH"); raw != "" {
		dirs = strings.Split(raw, ":")
	}
	return Defaults{
		Sysroot:           env.Str("ELD_SYSROOT"),
		DefaultSearchDirs: dirs,
		Verbose:           env.Bool("ELD_VERBOSE"),
	}
}
