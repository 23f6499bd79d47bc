package emit

import (
	"fmt"
	"io"

	"github.com/rb1005/eld/internal/ir"
)

// WriteSymDef writes the SymDef text listing to w: one line per exported,
// non-dynamic, non-absolute, non-local, non-section, non-file symbol, in
// the exact format original_source's SymDefWriter.cpp produces --
// "0xVALUE<TAB>{NOTYPE|FUNC|OBJECT}<TAB>NAME". style, when non-empty,
// renders as "#<SYMDEFS-style>#" instead of the default "#<SYMDEFS>#".
func WriteSymDef(w io.Writer, symbols []*ir.ResolveInfo, style string) error {
	if style != "" {
		if _, err := fmt.Fprintf(w, "#<SYMDEFS-%s>#\n", style); err != nil {
			return err
		}
	} else {
		if _, err := fmt.Fprintln(w, "#<SYMDEFS>#"); err != nil {
			return err
		}
	}
	if _, err := fmt.Fprintln(w, "#DO NOT EDIT#"); err != nil {
		return err
	}

	for _, s := range symbols {
		if isDynamic(s) || s.Desc == ir.DescAbsolute || s.Binding == ir.BindLocal {
			continue
		}
		var typeStr string
		switch s.Type {
		case ir.SymNone:
			typeStr = "NOTYPE"
		case ir.SymFunc:
			typeStr = "FUNC"
		case ir.SymObject:
			typeStr = "OBJECT"
		default:
			continue
		}
		if s.OutSymbol == nil {
			continue
		}
		if _, err := fmt.Fprintf(w, "0x%x\t%s\t%s\n", s.OutSymbol.Value, typeStr, s.Name); err != nil {
			return err
		}
	}
	return nil
}

func isDynamic(s *ir.ResolveInfo) bool {
	return s.SourceFile != nil && s.SourceFile.Kind == ir.InputELFSharedObject
}
