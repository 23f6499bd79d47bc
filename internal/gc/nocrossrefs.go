package gc

import (
	"fmt"

	"github.com/rb1005/eld/internal/ir"
)

// NoCrossRefsGroup is one NOCROSSREFS(section1 section2 ...) command: no
// output section in the group may reference any other output section in
// the group, supplemented from original_source's NOCROSSREFS validation
// pass (the distilled spec lists the command but not its check).
type NoCrossRefsGroup struct {
	Names []string
}

// Violation names one offending cross-reference.
type Violation struct {
	From, To string
	Reason   string
}

// Check validates every group against the section-reference graph built
// from relocation scanning (the same Graph gc-sections uses): a violation
// is any edge whose endpoints both land in the group's output-section set.
func Check(groups []NoCrossRefsGroup, g *Graph, sectionOutput func(*ir.Section) string) []Violation {
	var out []Violation
	for _, grp := range groups {
		inGroup := map[string]bool{}
		for _, n := range grp.Names {
			inGroup[n] = true
		}
		for from, tos := range g.edges {
			fromOut := sectionOutput(from)
			if !inGroup[fromOut] {
				continue
			}
			for to := range tos {
				toOut := sectionOutput(to)
				if inGroup[toOut] && toOut != fromOut {
					out = append(out, Violation{
						From:   fromOut,
						To:     toOut,
						Reason: fmt.Sprintf("%s references %s, violating NOCROSSREFS(%v)", fromOut, toOut, grp.Names),
					})
				}
			}
		}
	}
	return out
}
