package script

import (
	"fmt"

	"github.com/rb1005/eld/internal/diag"
)

// Op is the expression node's operator discriminator. spec.md §9 calls for
// "one function per [operation] with match arms" for the Expression tree;
// Op is the tag that drives those match arms (eval.go: evalOp).
type Op int

const (
	OpIntLiteral Op = iota
	OpSymbolRef
	OpSizeof
	OpAddr
	OpLoadAddr
	OpAlignOf
	OpOffsetOf
	OpOrigin
	OpLength
	OpConstMaxPageSize
	OpConstCommonPageSize
	OpSegmentStart
	OpSizeofHeaders
	OpDefined

	OpAdd
	OpSub
	OpMul
	OpDiv
	OpMod
	OpAnd
	OpOr
	OpXor
	OpShl
	OpShr
	OpLAnd
	OpLOr
	OpEq
	OpNe
	OpLt
	OpGt
	OpLe
	OpGe
	OpTernary
	OpNeg
	OpNot
	OpBitNot

	OpAlign
	OpAlignOfBuiltin
	OpAbsolute
	OpMax
	OpMin
	OpFill
	OpLog2Ceil
	OpDataSegmentAlign
	OpDataSegmentEnd
	OpDataSegmentRelroEnd
	OpAssert
	OpDot
)

// Expression is one node of the linker-script expression tree. Every node
// exposes eval/commit/get_symbols/dump/has_dot per spec.md §3.1.
type Expression struct {
	Op       Op
	Children []*Expression
	IntVal   uint64
	Name     string // SymbolRef/Sizeof/Origin/Length/SegmentStart target
	Msg      string // ASSERT's message

	// ctx is the textual context (file:line) setContext injected; every
	// error raised from this subtree carries it as argument 0 (spec.md
	// §4.2 "Expression evaluation").
	ctx string

	// result is only valid after Commit walks the tree post-order.
	result    uint64
	committed bool
}

// SetContext must be called before the first Eval; per spec.md it injects
// the context string into every error raised from the subtree.
func (e *Expression) SetContext(ctx string) {
	e.ctx = ctx
	for _, c := range e.Children {
		c.SetContext(ctx)
	}
}

// HasDot reports whether this subtree references the dot symbol, which is
// only meaningful inside SECTIONS (spec.md §3.1).
func (e *Expression) HasDot() bool {
	if e.Op == OpDot {
		return true
	}
	for _, c := range e.Children {
		if c.HasDot() {
			return true
		}
	}
	return false
}

// GetSymbols collects every symbol name this subtree references.
func (e *Expression) GetSymbols() []string {
	var out []string
	if e.Op == OpSymbolRef || e.Op == OpDefined {
		out = append(out, e.Name)
	}
	for _, c := range e.Children {
		out = append(out, c.GetSymbols()...)
	}
	return out
}

// Dump renders the expression back to linker-script source text. "Round-trip
// for expressions: parsing dump(e) yields an expression that evaluates to
// the same value as e in the same context (modulo parenthesization)"
// (spec.md §8).
func (e *Expression) Dump() string {
	switch e.Op {
	case OpIntLiteral:
		return fmt.Sprintf("0x%x", e.IntVal)
	case OpSymbolRef:
		return e.Name
	case OpDot:
		return "."
	case OpSizeof:
		return fmt.Sprintf("SIZEOF(%s)", e.Name)
	case OpAddr:
		return fmt.Sprintf("ADDR(%s)", e.Name)
	case OpLoadAddr:
		return fmt.Sprintf("LOADADDR(%s)", e.Name)
	case OpAlignOf:
		return fmt.Sprintf("ALIGNOF(%s)", e.Name)
	case OpOrigin:
		return fmt.Sprintf("ORIGIN(%s)", e.Name)
	case OpLength:
		return fmt.Sprintf("LENGTH(%s)", e.Name)
	case OpConstMaxPageSize:
		return "MAXPAGESIZE"
	case OpConstCommonPageSize:
		return "COMMONPAGESIZE"
	case OpSizeofHeaders:
		return "SIZEOF_HEADERS"
	case OpDefined:
		return fmt.Sprintf("DEFINED(%s)", e.Name)
	case OpSegmentStart:
		return fmt.Sprintf("SEGMENT_START(%s, %s)", e.Name, e.Children[0].Dump())
	case OpAdd, OpSub, OpMul, OpDiv, OpMod, OpAnd, OpOr, OpXor, OpShl, OpShr,
		OpLAnd, OpLOr, OpEq, OpNe, OpLt, OpGt, OpLe, OpGe:
		return fmt.Sprintf("(%s %s %s)", e.Children[0].Dump(), opSym(e.Op), e.Children[1].Dump())
	case OpTernary:
		return fmt.Sprintf("(%s ? %s : %s)", e.Children[0].Dump(), e.Children[1].Dump(), e.Children[2].Dump())
	case OpNeg:
		return fmt.Sprintf("(-%s)", e.Children[0].Dump())
	case OpNot:
		return fmt.Sprintf("(!%s)", e.Children[0].Dump())
	case OpBitNot:
		return fmt.Sprintf("(~%s)", e.Children[0].Dump())
	case OpAlign:
		if len(e.Children) == 1 {
			return fmt.Sprintf("ALIGN(%s)", e.Children[0].Dump())
		}
		return fmt.Sprintf("ALIGN(%s, %s)", e.Children[0].Dump(), e.Children[1].Dump())
	case OpAlignOfBuiltin:
		return fmt.Sprintf("ALIGNOF(%s)", e.Children[0].Dump())
	case OpAbsolute:
		return fmt.Sprintf("ABSOLUTE(%s)", e.Children[0].Dump())
	case OpMax:
		return fmt.Sprintf("MAX(%s, %s)", e.Children[0].Dump(), e.Children[1].Dump())
	case OpMin:
		return fmt.Sprintf("MIN(%s, %s)", e.Children[0].Dump(), e.Children[1].Dump())
	case OpFill:
		return fmt.Sprintf("FILL(%s)", e.Children[0].Dump())
	case OpLog2Ceil:
		return fmt.Sprintf("LOG2CEIL(%s)", e.Children[0].Dump())
	case OpDataSegmentAlign:
		return fmt.Sprintf("DATA_SEGMENT_ALIGN(%s, %s)", e.Children[0].Dump(), e.Children[1].Dump())
	case OpDataSegmentEnd:
		return fmt.Sprintf("DATA_SEGMENT_END(%s)", e.Children[0].Dump())
	case OpDataSegmentRelroEnd:
		return fmt.Sprintf("DATA_SEGMENT_RELRO_END(%s, %s)", e.Children[0].Dump(), e.Children[1].Dump())
	case OpAssert:
		return fmt.Sprintf("ASSERT(%s, %q)", e.Children[0].Dump(), e.Msg)
	default:
		return "<?>"
	}
}

func opSym(op Op) string {
	switch op {
	case OpAdd:
		return "+"
	case OpSub:
		return "-"
	case OpMul:
		return "*"
	case OpDiv:
		return "/"
	case OpMod:
		return "%"
	case OpAnd:
		return "&"
	case OpOr:
		return "|"
	case OpXor:
		return "^"
	case OpShl:
		return "<<"
	case OpShr:
		return ">>"
	case OpLAnd:
		return "&&"
	case OpLOr:
		return "||"
	case OpEq:
		return "=="
	case OpNe:
		return "!="
	case OpLt:
		return "<"
	case OpGt:
		return ">"
	case OpLe:
		return "<="
	case OpGe:
		return ">="
	default:
		return "?"
	}
}

func (e *Expression) errf(id diag.ID, args ...string) error {
	return diag.New(diag.Fatal, id, args...).WithContext(e.ctx)
}
