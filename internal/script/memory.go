package script

import "fmt"

// MemoryAttr is a bit of a ScriptMemoryRegion's attribute-flags word
// (spec.md §3.1: "(R, W, X, A, I/L negated or inverted)").
type MemoryAttr uint8

const (
	AttrR MemoryAttr = 1 << iota
	AttrW
	AttrX
	AttrA
	AttrI // initialized (negated with '!')
	AttrL // same as I
)

// Region is a ScriptMemoryRegion: (name, origin-expr, length-expr,
// attribute-flags) plus runtime cursor state.
type Region struct {
	Name       string
	OriginExpr *Expression
	LengthExpr *Expression
	Attrs      MemoryAttr

	origin uint64
	length uint64
	cursor uint64

	// Placed lists, in placement order, the output sections currently in
	// this region -- used to name "the first offending section" in the
	// overflow diagnostic (spec.md §3.2).
	Placed []string
}

// Resolve evaluates OriginExpr/LengthExpr and resets the cursor to Origin,
// called once at the start of Layout.
func (r *Region) Resolve(ctx *Context) error {
	o, err := r.OriginExpr.Eval(ctx)
	if err != nil {
		return fmt.Errorf("memory region %s: %w", r.Name, err)
	}
	l, err := r.LengthExpr.Eval(ctx)
	if err != nil {
		return fmt.Errorf("memory region %s: %w", r.Name, err)
	}
	r.origin, r.length, r.cursor = o, l, o
	return nil
}

func (r *Region) Origin() uint64 { return r.origin }
func (r *Region) Length() uint64 { return r.length }
func (r *Region) Cursor() uint64 { return r.cursor }

// Advance moves the cursor forward by size bytes after placing a section
// named name, enforcing the invariant from spec.md §3.2: "cursor >= origin
// and at the end of layout cursor <= origin + length -- violation is a
// hard error naming the first section that exceeded the limit." The error
// is returned after the cursor has advanced; internal/layout's Engine.Place
// returns it at once, so address assignment stops at that section.
func (r *Region) Advance(name string, size uint64) error {
	r.cursor += size
	r.Placed = append(r.Placed, name)
	if r.cursor > r.origin+r.length {
		return fmt.Errorf("region %s exceeded: section %s pushed cursor to 0x%x, limit is 0x%x",
			r.Name, name, r.cursor, r.origin+r.length)
	}
	return nil
}

// There is no separate lookup for the first overflowing section: the
// layout engine calls Advance once per placed section, so the first call
// that returns non-nil already names the offending section.
