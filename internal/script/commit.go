package script

import "fmt"

// Commit walks the tree post-order, copying each node's last-evaluated
// value into its committed Result field (spec.md §4.2: "commit() walks the
// tree post-order ... Result() is only valid post-commit"). ASSERT nodes
// raise their diagnostic here, not during Eval, "so that a failing script
// can still be dumped for diagnosis".
func (e *Expression) Commit(ctx *Context) error {
	for _, c := range e.Children {
		if err := c.Commit(ctx); err != nil {
			return err
		}
	}
	v, err := e.Eval(ctx)
	if err != nil {
		return err
	}
	e.result = v
	e.committed = true

	if e.Op == OpAssert && v == 0 {
		return e.withMessage(fmt.Sprintf("assertion failed: %s", e.Msg))
	}
	return nil
}

// Result returns the value committed by the last Commit call. Calling
// this before Commit panics, matching the documented precondition
// ("result() is only valid post-commit").
func (e *Expression) Result() uint64 {
	if !e.committed {
		panic("script: Expression.Result() called before Commit")
	}
	return e.result
}

func (e *Expression) withMessage(msg string) error {
	return fmt.Errorf("%s: %s", e.ctx, msg)
}
