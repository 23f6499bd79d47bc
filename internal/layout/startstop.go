package layout

import "github.com/rb1005/eld/internal/ir"

// SynthesizeStartStop materializes __start_<name>/__stop_<name> symbols for
// every output section name whose identifier characters are a valid C
// identifier (spec.md §4.6), at the bounds Engine.Place recorded. Per the
// rule, a start/stop pair is synthesized only if the output section exists
// and nothing else already defines the symbol (AddSymbol's normal weak/local
// precedence handles that: a prior strong definition from an input object
// simply outranks this synthesized one).
func SynthesizeStartStop(pool *ir.NamePool, bounds map[string]*StartStopBounds) error {
	for name, b := range bounds {
		if !b.set || !isCIdent(name) {
			continue
		}
		if _, err := pool.AddSymbol("__start_"+name, ir.SymNone, ir.DescDefined, ir.BindWeak, 0, b.Start, ir.VisDefault, nil, nil); err != nil {
			return err
		}
		if _, err := pool.AddSymbol("__stop_"+name, ir.SymNone, ir.DescDefined, ir.BindWeak, 0, b.End, ir.VisDefault, nil, nil); err != nil {
			return err
		}
	}
	return nil
}

func isCIdent(name string) bool {
	if name == "" {
		return false
	}
	for i := 0; i < len(name); i++ {
		c := name[i]
		ok := c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (i > 0 && c >= '0' && c <= '9')
		if !ok {
			return false
		}
	}
	return true
}
