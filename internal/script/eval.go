package script

import (
	"fmt"

	"github.com/rb1005/eld/internal/diag"
)

// Eval evaluates e against ctx, returning a typed result or a diagnostic
// bearing e's textual context (spec.md §4.2: "Every Expression exposes
// eval() -> Result<u64, DiagnosticEntry> that returns a value or a
// diagnostic bearing the command's textual context").
func (e *Expression) Eval(ctx *Context) (uint64, error) {
	v, err := e.evalOp(ctx)
	if err == nil {
		e.result = v
	}
	return v, err
}

func (e *Expression) evalOp(ctx *Context) (uint64, error) {
	switch e.Op {
	case OpIntLiteral:
		return e.IntVal, nil
	case OpDot:
		return ctx.Dot, nil
	case OpSymbolRef:
		if ctx.SymbolValue != nil {
			if v, ok := ctx.SymbolValue(e.Name); ok {
				return v, nil
			}
		}
		return 0, e.errf(diag.ErrUnresolvedSymbol, e.Name)
	case OpDefined:
		if ctx.SymbolDefined != nil && ctx.SymbolDefined(e.Name) {
			return 1, nil
		}
		return 0, nil
	case OpSizeof:
		if len(e.Name) > 0 && e.Name[0] == ':' {
			seg, ok := ctx.Segments[e.Name[1:]]
			if !ok {
				return 0, fmt.Errorf("%s: SIZEOF of segment %s requires a PHDRS block", e.ctx, e.Name[1:])
			}
			return seg.FileSize(), nil
		}
		sec, ok := ctx.Sections[e.Name]
		if !ok {
			return 0, nil
		}
		return sec.Size(), nil
	case OpAddr:
		sec, ok := ctx.Sections[e.Name]
		if !ok {
			return 0, fmt.Errorf("%s: ADDR(%s): no such output section", e.ctx, e.Name)
		}
		return sec.Addr(), nil
	case OpLoadAddr:
		sec, ok := ctx.Sections[e.Name]
		if !ok {
			return 0, fmt.Errorf("%s: LOADADDR(%s): no such output section", e.ctx, e.Name)
		}
		return sec.LoadAddr(), nil
	case OpAlignOf:
		sec, ok := ctx.Sections[e.Name]
		if !ok {
			return 0, fmt.Errorf("%s: ALIGNOF(%s): no such output section", e.ctx, e.Name)
		}
		return sec.Align(), nil
	case OpOrigin:
		m, ok := ctx.Memories[e.Name]
		if !ok {
			return 0, fmt.Errorf("%s: ORIGIN(%s): no such memory region", e.ctx, e.Name)
		}
		return m.Origin(), nil
	case OpLength:
		m, ok := ctx.Memories[e.Name]
		if !ok {
			return 0, fmt.Errorf("%s: LENGTH(%s): no such memory region", e.ctx, e.Name)
		}
		return m.Length(), nil
	case OpConstMaxPageSize:
		return ctx.MaxPageSize, nil
	case OpConstCommonPageSize:
		return ctx.CommonPageSize, nil
	case OpSizeofHeaders:
		return ctx.SizeofHeaders, nil
	case OpSegmentStart:
		if ctx.SectionStart != nil {
			if v, ok := ctx.SectionStart(e.Name); ok {
				return v, nil
			}
		}
		return e.Children[0].Eval(ctx)

	case OpAdd, OpSub, OpMul, OpDiv, OpMod, OpAnd, OpOr, OpXor, OpShl, OpShr,
		OpLAnd, OpLOr, OpEq, OpNe, OpLt, OpGt, OpLe, OpGe:
		return e.evalBinary(ctx)

	case OpTernary:
		cond, err := e.Children[0].Eval(ctx)
		if err != nil {
			return 0, err
		}
		if cond != 0 {
			return e.Children[1].Eval(ctx)
		}
		return e.Children[2].Eval(ctx)

	case OpNeg:
		v, err := e.Children[0].Eval(ctx)
		return uint64(-int64(v)), err
	case OpNot:
		v, err := e.Children[0].Eval(ctx)
		if err != nil {
			return 0, err
		}
		if v == 0 {
			return 1, nil
		}
		return 0, nil
	case OpBitNot:
		v, err := e.Children[0].Eval(ctx)
		return ^v, err

	case OpAlign:
		return e.evalAlign(ctx)
	case OpAlignOfBuiltin:
		return e.Children[0].Eval(ctx)
	case OpAbsolute:
		return e.Children[0].Eval(ctx)
	case OpMax:
		a, err := e.Children[0].Eval(ctx)
		if err != nil {
			return 0, err
		}
		b, err := e.Children[1].Eval(ctx)
		if err != nil {
			return 0, err
		}
		if a > b {
			return a, nil
		}
		return b, nil
	case OpMin:
		a, err := e.Children[0].Eval(ctx)
		if err != nil {
			return 0, err
		}
		b, err := e.Children[1].Eval(ctx)
		if err != nil {
			return 0, err
		}
		if a < b {
			return a, nil
		}
		return b, nil
	case OpFill:
		return e.Children[0].Eval(ctx)
	case OpLog2Ceil:
		v, err := e.Children[0].Eval(ctx)
		if err != nil {
			return 0, err
		}
		return log2Ceil(v), nil
	case OpDataSegmentAlign:
		maxAlign, err := e.Children[0].Eval(ctx)
		if err != nil {
			return 0, err
		}
		common, err := e.Children[1].Eval(ctx)
		if err != nil {
			return 0, err
		}
		// GNU ld: the smaller of the skip-over form and the place-in form.
		skipOver := alignUp(ctx.Dot, maxAlign) + (ctx.Dot & (maxAlign - 1))
		placeIn := alignUp(ctx.Dot, common)
		if skipOver < placeIn {
			return skipOver, nil
		}
		return placeIn, nil
	case OpDataSegmentEnd:
		return e.Children[0].Eval(ctx)
	case OpDataSegmentRelroEnd:
		a, err := e.Children[0].Eval(ctx)
		if err != nil {
			return 0, err
		}
		b, err := e.Children[1].Eval(ctx)
		if err != nil {
			return 0, err
		}
		return alignUp(a+b, ctx.CommonPageSize), nil
	case OpAssert:
		// ASSERT triggers on commit, not eval (spec.md §4.2); Eval just
		// returns the condition's value so the tree can still be dumped.
		return e.Children[0].Eval(ctx)
	}
	return 0, fmt.Errorf("%s: unhandled expression op %d", e.ctx, e.Op)
}

func (e *Expression) evalBinary(ctx *Context) (uint64, error) {
	a, err := e.Children[0].Eval(ctx)
	if err != nil {
		return 0, err
	}
	b, err := e.Children[1].Eval(ctx)
	if err != nil {
		return 0, err
	}
	switch e.Op {
	case OpAdd:
		return a + b, nil
	case OpSub:
		return a - b, nil
	case OpMul:
		return a * b, nil
	case OpDiv:
		if b == 0 {
			return 0, fmt.Errorf("%s: division by zero in expression %s", e.ctx, e.Dump())
		}
		return a / b, nil
	case OpMod:
		if b == 0 {
			return 0, fmt.Errorf("%s: modulo by zero in expression %s", e.ctx, e.Dump())
		}
		return a % b, nil
	case OpAnd:
		return a & b, nil
	case OpOr:
		return a | b, nil
	case OpXor:
		return a ^ b, nil
	case OpShl:
		return a << b, nil
	case OpShr:
		return a >> b, nil
	case OpLAnd:
		if a != 0 && b != 0 {
			return 1, nil
		}
		return 0, nil
	case OpLOr:
		if a != 0 || b != 0 {
			return 1, nil
		}
		return 0, nil
	case OpEq:
		return boolU64(a == b), nil
	case OpNe:
		return boolU64(a != b), nil
	case OpLt:
		return boolU64(a < b), nil
	case OpGt:
		return boolU64(a > b), nil
	case OpLe:
		return boolU64(a <= b), nil
	case OpGe:
		return boolU64(a >= b), nil
	}
	return 0, fmt.Errorf("%s: unhandled binary op", e.ctx)
}

// evalAlign implements "ALIGN(expr, align) returns expr if align==0, else
// (expr + align-1) & ~(align-1) -- a warning is issued if align is not a
// power of two" (spec.md §4.2), and the one-argument ALIGN(expr) form
// which aligns the current dot value.
func (e *Expression) evalAlign(ctx *Context) (uint64, error) {
	var value uint64
	var align uint64
	var err error
	if len(e.Children) == 1 {
		value = ctx.Dot
		align, err = e.Children[0].Eval(ctx)
	} else {
		value, err = e.Children[0].Eval(ctx)
		if err != nil {
			return 0, err
		}
		align, err = e.Children[1].Eval(ctx)
	}
	if err != nil {
		return 0, err
	}
	if align == 0 {
		return value, nil
	}
	if align&(align-1) != 0 && ctx.OnWarning != nil {
		ctx.OnWarning(int(diag.WarnNonPowerOf2ValueToAlignBuiltin), fmt.Sprintf("0x%x", align))
	}
	return alignUp(value, align), nil
}

func alignUp(v, align uint64) uint64 {
	if align == 0 {
		return v
	}
	return (v + align - 1) &^ (align - 1)
}

// log2Ceil implements the documented boundary behaviors exactly:
// LOG2CEIL(0) == 0, LOG2CEIL(1) == 0, LOG2CEIL(2) == 1, LOG2CEIL(5) == 3.
func log2Ceil(v uint64) uint64 {
	if v <= 1 {
		return 0
	}
	var n uint64
	x := v - 1
	for x > 0 {
		x >>= 1
		n++
	}
	return n
}

func boolU64(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}
