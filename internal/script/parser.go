package script

import (
	"fmt"
	"strings"
)

// Parser builds a Script (an ordered []*Command) from linker-script source
// text, grounded on the teacher's parser.go (a hand-written recursive-
// descent parser walking a Lexer-produced token stream into an AST with
// Eval methods), generalized to the GNU-ld-compatible grammar.
type Parser struct {
	lex  *Lexer
	tok  Token
	path string
}

func NewParser(src, path string) *Parser {
	p := &Parser{lex: NewLexer(src), path: path}
	p.next()
	return p
}

func (p *Parser) next() { p.tok = p.lex.Next() }

func (p *Parser) ctx() string { return fmt.Sprintf("%s:%d", p.path, p.tok.Line) }

func (p *Parser) expect(t TokenType, what string) (Token, error) {
	if p.tok.Type != t {
		return Token{}, fmt.Errorf("%s: expected %s, got %q", p.ctx(), what, p.tok.Text)
	}
	tok := p.tok
	p.next()
	return tok, nil
}

func (p *Parser) isIdent(name string) bool {
	return p.tok.Type == TokIdent && strings.EqualFold(p.tok.Text, name)
}

// ParseScript parses a whole top-level linker script.
func (p *Parser) ParseScript() ([]*Command, error) {
	var cmds []*Command
	for p.tok.Type != TokEOF {
		cmd, err := p.parseTopCommand()
		if err != nil {
			return cmds, err
		}
		if cmd != nil {
			cmds = append(cmds, cmd)
		}
	}
	return cmds, nil
}

func (p *Parser) parseTopCommand() (*Command, error) {
	line := p.tok.Line
	switch {
	case p.isIdent("ENTRY"):
		p.next()
		names, err := p.parseParenIdentList()
		return &Command{Kind: CmdEntry, Names: names, Line: line}, err
	case p.isIdent("EXTERN"):
		p.next()
		names, err := p.parseParenIdentList()
		return &Command{Kind: CmdExtern, Names: names, Line: line}, err
	case p.isIdent("OUTPUT"):
		p.next()
		names, err := p.parseParenIdentList()
		return &Command{Kind: CmdOutput, Names: names, Line: line}, err
	case p.isIdent("OUTPUT_ARCH"):
		p.next()
		names, err := p.parseParenIdentList()
		return &Command{Kind: CmdOutputArch, Names: names, Line: line}, err
	case p.isIdent("OUTPUT_FORMAT"):
		p.next()
		names, err := p.parseParenIdentList()
		return &Command{Kind: CmdOutputFormat, Names: names, Line: line}, err
	case p.isIdent("SEARCH_DIR"):
		p.next()
		names, err := p.parseParenIdentList()
		return &Command{Kind: CmdSearchDir, Names: names, Line: line}, err
	case p.isIdent("REGION_ALIAS"):
		p.next()
		names, err := p.parseParenIdentList()
		return &Command{Kind: CmdRegionAlias, Names: names, Line: line}, err
	case p.isIdent("NOCROSSREFS"):
		p.next()
		names, err := p.parseParenIdentList()
		return &Command{Kind: CmdNoCrossRefs, Names: names, Line: line}, err
	case p.isIdent("INCLUDE"):
		p.next()
		path, err := p.parsePathArg()
		return &Command{Kind: CmdInclude, Path: path, Line: line}, err
	case p.isIdent("INCLUDE_OPTIONAL"):
		p.next()
		path, err := p.parsePathArg()
		return &Command{Kind: CmdInclude, Path: path, Optional: true, Line: line}, err
	case p.isIdent("GROUP") || p.isIdent("INPUT"):
		kind := CmdInput
		if p.isIdent("GROUP") {
			kind = CmdGroup
		}
		p.next()
		inputs, err := p.parseParenIdentList()
		return &Command{Kind: kind, Inputs: inputs, Line: line}, err
	case p.isIdent("PHDRS"):
		p.next()
		return p.parsePhdrs(line)
	case p.isIdent("MEMORY"):
		p.next()
		return p.parseMemory(line)
	case p.isIdent("SECTIONS"):
		p.next()
		return p.parseSections(line)
	case p.isIdent("ASSERT"):
		p.next()
		return p.parseAssert(line, LevelOutsideSections)
	case p.isIdent("PLUGIN"):
		p.next()
		return p.parsePlugin(line)
	case p.tok.Type == TokIdent:
		return p.parseAssignment(line, LevelOutsideSections)
	case p.tok.Type == TokSemicolon:
		p.next()
		return nil, nil
	default:
		return nil, fmt.Errorf("%s: unexpected token %q at top level", p.ctx(), p.tok.Text)
	}
}

func (p *Parser) parsePathArg() (string, error) {
	tok := p.tok
	if tok.Type != TokString && tok.Type != TokIdent {
		return "", fmt.Errorf("%s: expected a path", p.ctx())
	}
	p.next()
	return tok.Text, nil
}

// parseParenIdentList parses "(" a, b, c ")" where each element is an
// identifier, string, or quoted library reference; used for the simple
// name-list commands (ENTRY, OUTPUT, SEARCH_DIR, INPUT/GROUP members, ...).
func (p *Parser) parseParenIdentList() ([]string, error) {
	if _, err := p.expect(TokLParen, "("); err != nil {
		return nil, err
	}
	var out []string
	for p.tok.Type != TokRParen {
		if p.tok.Type == TokEOF {
			return out, fmt.Errorf("%s: unterminated list", p.ctx())
		}
		out = append(out, p.tok.Text)
		p.next()
		if p.tok.Type == TokComma {
			p.next()
		}
	}
	p.next() // consume ')'
	return out, nil
}

func (p *Parser) parsePlugin(line int) (*Command, error) {
	if _, err := p.expect(TokLParen, "("); err != nil {
		return nil, err
	}
	typ := p.tok.Text
	p.next()
	var name, opts string
	if p.tok.Type == TokComma {
		p.next()
		name = p.tok.Text
		p.next()
	}
	if p.tok.Type == TokComma {
		p.next()
		opts = p.tok.Text
		p.next()
	}
	if _, err := p.expect(TokRParen, ")"); err != nil {
		return nil, err
	}
	return &Command{Kind: CmdPlugin, PluginType: typ, PluginName: name, PluginOptions: opts, Line: line}, nil
}

func (p *Parser) parseAssert(line int, level AssignLevel) (*Command, error) {
	if _, err := p.expect(TokLParen, "("); err != nil {
		return nil, err
	}
	expr, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	msg := ""
	if p.tok.Type == TokComma {
		p.next()
		msg = p.tok.Text
		p.next()
	}
	if _, err := p.expect(TokRParen, ")"); err != nil {
		return nil, err
	}
	if p.tok.Type == TokSemicolon {
		p.next()
	}
	assertExpr := &Expression{Op: OpAssert, Children: []*Expression{expr}, Msg: msg}
	assertExpr.SetContext(p.ctx())
	return &Command{Kind: CmdAssert, AssertExpr: assertExpr, AssertMsg: msg, Level: level, Line: line}, nil
}

func (p *Parser) parseMemory(line int) (*Command, error) {
	if _, err := p.expect(TokLBrace, "{"); err != nil {
		return nil, err
	}
	var regions []*Region
	for p.tok.Type != TokRBrace {
		name := p.tok.Text
		p.next()
		if _, err := p.expect(TokLParen, "("); err != nil {
			return nil, err
		}
		var attrs MemoryAttr
		for p.tok.Type == TokIdent || p.tok.Type == TokBang {
			negate := false
			if p.tok.Type == TokBang {
				negate = true
				p.next()
			}
			for _, c := range p.tok.Text {
				switch c {
				case 'r', 'R':
					attrs |= AttrR
				case 'w', 'W':
					attrs |= AttrW
				case 'x', 'X':
					attrs |= AttrX
				case 'a', 'A':
					attrs |= AttrA
				case 'i', 'I', 'l', 'L':
					if !negate {
						attrs |= AttrI
					}
				}
			}
			p.next()
		}
		if _, err := p.expect(TokRParen, ")"); err != nil {
			return nil, err
		}
		if _, err := p.expect(TokColon, ":"); err != nil {
			return nil, err
		}
		if !p.isIdent("ORIGIN") && !p.isIdent("org") && !p.isIdent("o") {
			return nil, fmt.Errorf("%s: expected ORIGIN", p.ctx())
		}
		p.next()
		if _, err := p.expect(TokAssign, "="); err != nil {
			return nil, err
		}
		originExpr, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if p.tok.Type == TokComma {
			p.next()
		}
		if !p.isIdent("LENGTH") && !p.isIdent("len") && !p.isIdent("l") {
			return nil, fmt.Errorf("%s: expected LENGTH", p.ctx())
		}
		p.next()
		if _, err := p.expect(TokAssign, "="); err != nil {
			return nil, err
		}
		lengthExpr, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		originExpr.SetContext(p.ctx())
		lengthExpr.SetContext(p.ctx())
		regions = append(regions, &Region{Name: name, OriginExpr: originExpr, LengthExpr: lengthExpr, Attrs: attrs})
		if p.tok.Type == TokSemicolon {
			p.next()
		}
	}
	p.next() // consume '}'
	return &Command{Kind: CmdMemory, Regions: regions, Line: line}, nil
}

func (p *Parser) parsePhdrs(line int) (*Command, error) {
	if _, err := p.expect(TokLBrace, "{"); err != nil {
		return nil, err
	}
	var phdrs []*Phdr
	for p.tok.Type != TokRBrace {
		name := p.tok.Text
		p.next()
		typ := p.tok.Text
		p.next()
		ph := &Phdr{Name: name, Type: typ}
		for p.tok.Type != TokSemicolon {
			switch {
			case p.isIdent("FILEHDR"):
				ph.FileHdr = true
				p.next()
			case p.isIdent("PHDRS"):
				ph.PhdrsHdr = true
				p.next()
			case p.isIdent("AT"):
				p.next()
				if _, err := p.expect(TokLParen, "("); err != nil {
					return nil, err
				}
				e, err := p.parseExpr()
				if err != nil {
					return nil, err
				}
				if _, err := p.expect(TokRParen, ")"); err != nil {
					return nil, err
				}
				ph.At = e
			case p.isIdent("FLAGS"):
				p.next()
				if _, err := p.expect(TokLParen, "("); err != nil {
					return nil, err
				}
				e, err := p.parseExpr()
				if err != nil {
					return nil, err
				}
				if _, err := p.expect(TokRParen, ")"); err != nil {
					return nil, err
				}
				ph.Flags = e
			default:
				return nil, fmt.Errorf("%s: unexpected PHDRS clause %q", p.ctx(), p.tok.Text)
			}
		}
		p.next() // consume ';'
		phdrs = append(phdrs, ph)
	}
	p.next() // consume '}'
	return &Command{Kind: CmdPhdrs, Phdrs: phdrs, Line: line}, nil
}

func (p *Parser) parseSections(line int) (*Command, error) {
	if _, err := p.expect(TokLBrace, "{"); err != nil {
		return nil, err
	}
	var body []*Command
	for p.tok.Type != TokRBrace {
		if p.tok.Type == TokEOF {
			return nil, fmt.Errorf("%s: unterminated SECTIONS block", p.ctx())
		}
		if p.isIdent("ASSERT") {
			p.next()
			cmd, err := p.parseAssert(p.tok.Line, LevelSectionsEnd)
			if err != nil {
				return nil, err
			}
			body = append(body, cmd)
			continue
		}
		// An output-section description is "name :" or "name ALIGN(...) :"
		// etc; an assignment is "name = expr ;" or ". = expr ;". We peek
		// past the identifier to disambiguate.
		if p.tok.Type == TokIdent {
			save := *p.lex
			saveTok := p.tok
			name := p.tok.Text
			p.next()
			if p.tok.Type == TokColon || p.isIdent("AT") || p.isIdent("ALIGN") || p.isIdent("SUBALIGN") {
				cmd, err := p.parseOutputSectDesc(name, p.tok.Line)
				if err != nil {
					return nil, err
				}
				body = append(body, cmd)
				continue
			}
			*p.lex = save
			p.tok = saveTok
		}
		cmd, err := p.parseAssignment(p.tok.Line, LevelOutsideSections)
		if err != nil {
			return nil, err
		}
		body = append(body, cmd)
	}
	p.next() // consume '}'
	return &Command{Kind: CmdSections, Body: body, Line: line}, nil
}

func (p *Parser) parseOutputSectDesc(name string, line int) (*Command, error) {
	cmd := &Command{Kind: CmdOutputSectDesc, OutputName: name, Line: line}
	for p.tok.Type != TokColon {
		switch {
		case p.isIdent("AT"):
			p.next()
			if _, err := p.expect(TokLParen, "("); err != nil {
				return nil, err
			}
			e, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			if _, err := p.expect(TokRParen, ")"); err != nil {
				return nil, err
			}
			cmd.AtExpr = e
		case p.isIdent("ALIGN"):
			p.next()
			if _, err := p.expect(TokLParen, "("); err != nil {
				return nil, err
			}
			e, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			if _, err := p.expect(TokRParen, ")"); err != nil {
				return nil, err
			}
			cmd.AlignExpr = e
		case p.isIdent("SUBALIGN"):
			p.next()
			if _, err := p.expect(TokLParen, "("); err != nil {
				return nil, err
			}
			e, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			if _, err := p.expect(TokRParen, ")"); err != nil {
				return nil, err
			}
			cmd.SubAlign = e
		default:
			return nil, fmt.Errorf("%s: unexpected clause %q in output section prolog", p.ctx(), p.tok.Text)
		}
	}
	p.next() // consume ':'
	if _, err := p.expect(TokLBrace, "{"); err != nil {
		return nil, err
	}
	for p.tok.Type != TokRBrace {
		if p.isIdent("KEEP") {
			p.next()
			if _, err := p.expect(TokLParen, "("); err != nil {
				return nil, err
			}
			rule, err := p.parseInputSectPattern()
			if err != nil {
				return nil, err
			}
			rule.Keep = true
			if _, err := p.expect(TokRParen, ")"); err != nil {
				return nil, err
			}
			cmd.Rules = append(cmd.Rules, rule)
		} else if p.tok.Type == TokStar || (p.tok.Type == TokIdent && (looksLikePattern(p.tok.Text) || p.peekIsLParen())) {
			rule, err := p.parseInputSectPattern()
			if err != nil {
				return nil, err
			}
			cmd.Rules = append(cmd.Rules, rule)
		} else {
			assign, err := p.parseAssignment(p.tok.Line, LevelInputSection)
			if err != nil {
				return nil, err
			}
			cmd.Rules = append(cmd.Rules, &InputSectDesc{Assignment: assign})
		}
	}
	p.next() // consume '}'
	if p.tok.Type == TokGt {
		p.next()
		cmd.Region = p.tok.Text
		p.next()
	}
	if p.isIdent("AT") && p.peekIsGt() {
		p.next()
		p.next() // '>'
		cmd.LMARegion = p.tok.Text
		p.next()
	}
	for p.tok.Type == TokColon {
		p.next()
		cmd.PhdrNames = append(cmd.PhdrNames, p.tok.Text)
		p.next()
	}
	if p.tok.Type == TokAssign {
		p.next()
		e, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		cmd.FillExpr = e
	}
	if p.tok.Type == TokSemicolon {
		p.next()
	}
	return cmd, nil
}

func (p *Parser) peekIsLParen() bool {
	save := *p.lex
	next := p.lex.Next()
	*p.lex = save
	return next.Type == TokLParen
}

func (p *Parser) peekIsGt() bool {
	save := *p.lex
	next := p.lex.Next()
	*p.lex = save
	return next.Type == TokGt
}

func looksLikePattern(s string) bool {
	return strings.ContainsAny(s, "*?[.")
}

// parseInputSectPattern parses `file_pattern(section_patterns)` or
// `*(section_patterns)`, optionally wrapped in SORT_BY_NAME/ALIGNMENT/
// INIT_PRIORITY.
func (p *Parser) parseInputSectPattern() (*InputSectDesc, error) {
	rule := &InputSectDesc{}
	switch {
	case p.isIdent("SORT_BY_NAME") || p.isIdent("SORT"):
		rule.SortByName = true
		p.next()
	case p.isIdent("SORT_BY_ALIGNMENT"):
		rule.SortByAlignment = true
		p.next()
	case p.isIdent("SORT_BY_INIT_PRIORITY"):
		rule.SortByInitPriority = true
		p.next()
	}
	if rule.SortByName || rule.SortByAlignment || rule.SortByInitPriority {
		if _, err := p.expect(TokLParen, "("); err != nil {
			return nil, err
		}
	}

	if p.tok.Type == TokStar {
		rule.FilePattern = "*"
		p.next()
	} else {
		rule.FilePattern = p.tok.Text
		p.next()
	}
	if _, err := p.expect(TokLParen, "("); err != nil {
		return nil, err
	}
	for p.tok.Type != TokRParen {
		if p.tok.Type == TokStar {
			rule.SectionPattern = append(rule.SectionPattern, "*")
			p.next()
			continue
		}
		if p.isIdent("EXCLUDE_FILE") {
			p.next()
			if _, err := p.expect(TokLParen, "("); err != nil {
				return nil, err
			}
			for p.tok.Type != TokRParen {
				rule.ExcludeFiles = append(rule.ExcludeFiles, p.tok.Text)
				p.next()
			}
			p.next()
			continue
		}
		rule.SectionPattern = append(rule.SectionPattern, p.tok.Text)
		p.next()
	}
	p.next() // consume ')'

	if rule.SortByName || rule.SortByAlignment || rule.SortByInitPriority {
		if _, err := p.expect(TokRParen, ")"); err != nil {
			return nil, err
		}
	}
	return rule, nil
}

// Expression grammar, precedence climbing from lowest to highest:
//
//	ternary   ::= logicalOr ( '?' expr ':' ternary )?
//	logicalOr ::= logicalAnd ( '||' logicalAnd )*
//	logicalAnd::= bitOr ( '&&' bitOr )*
//	bitOr     ::= bitXor ( '|' bitXor )*
//	bitXor    ::= bitAnd ( '^' bitAnd )*
//	bitAnd    ::= equality ( '&' equality )*
//	equality  ::= relational ( ('==' | '!=') relational )*
//	relational::= shift ( ('<'|'>'|'<='|'>=') shift )*
//	shift     ::= additive ( ('<<'|'>>') additive )*
//	additive  ::= multiplicative ( ('+'|'-') multiplicative )*
//	multiplicative ::= unary ( ('*'|'/'|'%') unary )*
//	unary     ::= ('-'|'!'|'~') unary | primary
//	primary   ::= NUMBER | '.' | IDENT | builtin(...) | '(' expr ')'

func (p *Parser) parseExpr() (*Expression, error) { return p.parseTernary() }

func (p *Parser) parseTernary() (*Expression, error) {
	cond, err := p.parseLogicalOr()
	if err != nil {
		return nil, err
	}
	if p.tok.Type == TokQuestion {
		p.next()
		then, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(TokColon, ":"); err != nil {
			return nil, err
		}
		els, err := p.parseTernary()
		if err != nil {
			return nil, err
		}
		return &Expression{Op: OpTernary, Children: []*Expression{cond, then, els}}, nil
	}
	return cond, nil
}

func (p *Parser) binaryChain(next func() (*Expression, error), ops map[TokenType]Op) (*Expression, error) {
	left, err := next()
	if err != nil {
		return nil, err
	}
	for {
		op, ok := ops[p.tok.Type]
		if !ok {
			return left, nil
		}
		p.next()
		right, err := next()
		if err != nil {
			return nil, err
		}
		left = &Expression{Op: op, Children: []*Expression{left, right}}
	}
}

func (p *Parser) parseLogicalOr() (*Expression, error) {
	return p.binaryChain(p.parseLogicalAnd, map[TokenType]Op{TokPipePipe: OpLOr})
}
func (p *Parser) parseLogicalAnd() (*Expression, error) {
	return p.binaryChain(p.parseBitOr, map[TokenType]Op{TokAmpAmp: OpLAnd})
}
func (p *Parser) parseBitOr() (*Expression, error) {
	return p.binaryChain(p.parseBitXor, map[TokenType]Op{TokPipe: OpOr})
}
func (p *Parser) parseBitXor() (*Expression, error) {
	return p.binaryChain(p.parseBitAnd, map[TokenType]Op{TokCaret: OpXor})
}
func (p *Parser) parseBitAnd() (*Expression, error) {
	return p.binaryChain(p.parseEquality, map[TokenType]Op{TokAmp: OpAnd})
}
func (p *Parser) parseEquality() (*Expression, error) {
	return p.binaryChain(p.parseRelational, map[TokenType]Op{TokEq: OpEq, TokNe: OpNe})
}
func (p *Parser) parseRelational() (*Expression, error) {
	return p.binaryChain(p.parseShift, map[TokenType]Op{
		TokLt: OpLt, TokGt: OpGt, TokLe: OpLe, TokGe: OpGe,
	})
}
func (p *Parser) parseShift() (*Expression, error) {
	return p.binaryChain(p.parseAdditive, map[TokenType]Op{TokShl: OpShl, TokShr: OpShr})
}
func (p *Parser) parseAdditive() (*Expression, error) {
	return p.binaryChain(p.parseMultiplicative, map[TokenType]Op{TokPlus: OpAdd, TokMinus: OpSub})
}
func (p *Parser) parseMultiplicative() (*Expression, error) {
	return p.binaryChain(p.parseUnary, map[TokenType]Op{TokStar: OpMul, TokSlash: OpDiv, TokPercent: OpMod})
}

func (p *Parser) parseUnary() (*Expression, error) {
	switch p.tok.Type {
	case TokMinus:
		p.next()
		c, err := p.parseUnary()
		return &Expression{Op: OpNeg, Children: []*Expression{c}}, err
	case TokBang:
		p.next()
		c, err := p.parseUnary()
		return &Expression{Op: OpNot, Children: []*Expression{c}}, err
	case TokTilde:
		p.next()
		c, err := p.parseUnary()
		return &Expression{Op: OpBitNot, Children: []*Expression{c}}, err
	default:
		return p.parsePrimary()
	}
}

func (p *Parser) parseArgs(n int) ([]*Expression, error) {
	if _, err := p.expect(TokLParen, "("); err != nil {
		return nil, err
	}
	var args []*Expression
	for p.tok.Type != TokRParen {
		e, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		args = append(args, e)
		if p.tok.Type == TokComma {
			p.next()
		}
	}
	p.next()
	if n >= 0 && len(args) != n {
		return nil, fmt.Errorf("%s: expected %d argument(s), got %d", p.ctx(), n, len(args))
	}
	return args, nil
}

func (p *Parser) parseNameArg() (string, error) {
	if _, err := p.expect(TokLParen, "("); err != nil {
		return "", err
	}
	name := p.tok.Text
	p.next()
	if _, err := p.expect(TokRParen, ")"); err != nil {
		return "", err
	}
	return name, nil
}

func (p *Parser) parsePrimary() (*Expression, error) {
	switch {
	case p.tok.Type == TokNumber:
		v := p.tok.Num
		p.next()
		return &Expression{Op: OpIntLiteral, IntVal: v}, nil
	case p.tok.Type == TokDot:
		p.next()
		return &Expression{Op: OpDot}, nil
	case p.tok.Type == TokLParen:
		p.next()
		e, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(TokRParen, ")"); err != nil {
			return nil, err
		}
		return e, nil
	case p.isIdent("SIZEOF"):
		p.next()
		name, err := p.parseNameArg()
		return &Expression{Op: OpSizeof, Name: name}, err
	case p.isIdent("ADDR"):
		p.next()
		name, err := p.parseNameArg()
		return &Expression{Op: OpAddr, Name: name}, err
	case p.isIdent("LOADADDR"):
		p.next()
		name, err := p.parseNameArg()
		return &Expression{Op: OpLoadAddr, Name: name}, err
	case p.isIdent("ALIGNOF"):
		p.next()
		if p.peekIsIdentArg() {
			name, err := p.parseNameArg()
			return &Expression{Op: OpAlignOf, Name: name}, err
		}
		args, err := p.parseArgs(1)
		if err != nil {
			return nil, err
		}
		return &Expression{Op: OpAlignOfBuiltin, Children: args}, nil
	case p.isIdent("ORIGIN") || p.isIdent("org") || p.isIdent("o"):
		p.next()
		name, err := p.parseNameArg()
		return &Expression{Op: OpOrigin, Name: name}, err
	case p.isIdent("LENGTH") || p.isIdent("len") || p.isIdent("l"):
		p.next()
		name, err := p.parseNameArg()
		return &Expression{Op: OpLength, Name: name}, err
	case p.isIdent("DEFINED"):
		p.next()
		name, err := p.parseNameArg()
		return &Expression{Op: OpDefined, Name: name}, err
	case p.isIdent("MAXPAGESIZE") || p.isIdent("CONSTANT"):
		name := p.tok.Text
		p.next()
		if strings.EqualFold(name, "MAXPAGESIZE") {
			return &Expression{Op: OpConstMaxPageSize}, nil
		}
		arg, err := p.parseNameArg()
		if err != nil {
			return nil, err
		}
		if strings.EqualFold(arg, "COMMONPAGESIZE") {
			return &Expression{Op: OpConstCommonPageSize}, nil
		}
		return &Expression{Op: OpConstMaxPageSize}, nil
	case p.isIdent("COMMONPAGESIZE"):
		p.next()
		return &Expression{Op: OpConstCommonPageSize}, nil
	case p.isIdent("SIZEOF_HEADERS"):
		p.next()
		return &Expression{Op: OpSizeofHeaders}, nil
	case p.isIdent("SEGMENT_START"):
		p.next()
		args, err := p.parseArgsRaw(2)
		if err != nil {
			return nil, err
		}
		return &Expression{Op: OpSegmentStart, Name: args.names[0], Children: []*Expression{args.exprs[1]}}, nil
	case p.isIdent("ALIGN"):
		p.next()
		if _, err := p.expect(TokLParen, "("); err != nil {
			return nil, err
		}
		first, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		children := []*Expression{first}
		if p.tok.Type == TokComma {
			p.next()
			second, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			children = append(children, second)
		}
		if _, err := p.expect(TokRParen, ")"); err != nil {
			return nil, err
		}
		return &Expression{Op: OpAlign, Children: children}, nil
	case p.isIdent("ABSOLUTE"):
		p.next()
		args, err := p.parseArgs(1)
		if err != nil {
			return nil, err
		}
		return &Expression{Op: OpAbsolute, Children: args}, nil
	case p.isIdent("MAX"):
		p.next()
		args, err := p.parseArgs(2)
		if err != nil {
			return nil, err
		}
		return &Expression{Op: OpMax, Children: args}, nil
	case p.isIdent("MIN"):
		p.next()
		args, err := p.parseArgs(2)
		if err != nil {
			return nil, err
		}
		return &Expression{Op: OpMin, Children: args}, nil
	case p.isIdent("FILL"):
		p.next()
		args, err := p.parseArgs(1)
		if err != nil {
			return nil, err
		}
		return &Expression{Op: OpFill, Children: args}, nil
	case p.isIdent("LOG2CEIL"):
		p.next()
		args, err := p.parseArgs(1)
		if err != nil {
			return nil, err
		}
		return &Expression{Op: OpLog2Ceil, Children: args}, nil
	case p.isIdent("DATA_SEGMENT_ALIGN"):
		p.next()
		args, err := p.parseArgs(2)
		if err != nil {
			return nil, err
		}
		return &Expression{Op: OpDataSegmentAlign, Children: args}, nil
	case p.isIdent("DATA_SEGMENT_END"):
		p.next()
		args, err := p.parseArgs(1)
		if err != nil {
			return nil, err
		}
		return &Expression{Op: OpDataSegmentEnd, Children: args}, nil
	case p.isIdent("DATA_SEGMENT_RELRO_END"):
		p.next()
		args, err := p.parseArgs(2)
		if err != nil {
			return nil, err
		}
		return &Expression{Op: OpDataSegmentRelroEnd, Children: args}, nil
	case p.isIdent("ASSERT"):
		p.next()
		if _, err := p.expect(TokLParen, "("); err != nil {
			return nil, err
		}
		cond, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		msg := ""
		if p.tok.Type == TokComma {
			p.next()
			msg = p.tok.Text
			p.next()
		}
		if _, err := p.expect(TokRParen, ")"); err != nil {
			return nil, err
		}
		return &Expression{Op: OpAssert, Children: []*Expression{cond}, Msg: msg}, nil
	case p.tok.Type == TokIdent:
		name := p.tok.Text
		p.next()
		return &Expression{Op: OpSymbolRef, Name: name}, nil
	default:
		return nil, fmt.Errorf("%s: unexpected token %q in expression", p.ctx(), p.tok.Text)
	}
}

func (p *Parser) peekIsIdentArg() bool {
	save := *p.lex
	saveTok := p.tok
	ok := p.tok.Type == TokLParen
	if ok {
		p.next()
		ok = p.tok.Type == TokIdent
	}
	*p.lex = save
	p.tok = saveTok
	return ok
}

type rawArgs struct {
	names []string
	exprs []*Expression
}

// parseArgsRaw parses SEGMENT_START(name, expr)'s first argument as a bare
// name (not an expression) and the rest as expressions.
func (p *Parser) parseArgsRaw(n int) (rawArgs, error) {
	var out rawArgs
	if _, err := p.expect(TokLParen, "("); err != nil {
		return out, err
	}
	out.names = append(out.names, p.tok.Text)
	out.exprs = append(out.exprs, nil)
	p.next()
	for p.tok.Type == TokComma {
		p.next()
		e, err := p.parseExpr()
		if err != nil {
			return out, err
		}
		out.names = append(out.names, "")
		out.exprs = append(out.exprs, e)
	}
	if _, err := p.expect(TokRParen, ")"); err != nil {
		return out, err
	}
	if n >= 0 && len(out.exprs) != n {
		return out, fmt.Errorf("%s: expected %d argument(s)", p.ctx(), n)
	}
	return out, nil
}

func (p *Parser) parseAssignment(line int, level AssignLevel) (*Command, error) {
	symbol := p.tok.Text
	provide := false
	provideHidden := false
	if p.isIdent("PROVIDE") {
		provide = true
		p.next()
		if _, err := p.expect(TokLParen, "("); err != nil {
			return nil, err
		}
		symbol = p.tok.Text
		p.next()
	} else if p.isIdent("PROVIDE_HIDDEN") {
		provide = true
		provideHidden = true
		p.next()
		if _, err := p.expect(TokLParen, "("); err != nil {
			return nil, err
		}
		symbol = p.tok.Text
		p.next()
	} else {
		p.next()
	}

	op := "="
	switch p.tok.Type {
	case TokAssign:
		op = "="
	case TokPlusEq:
		op = "+="
	case TokMinusEq:
		op = "-="
	case TokStarEq:
		op = "*="
	case TokSlashEq:
		op = "/="
	default:
		return nil, fmt.Errorf("%s: expected assignment operator after %q", p.ctx(), symbol)
	}
	p.next()

	value, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	value.SetContext(fmt.Sprintf("%s:%d", p.path, line))

	if provide {
		if _, err := p.expect(TokRParen, ")"); err != nil {
			return nil, err
		}
	}
	if p.tok.Type == TokSemicolon {
		p.next()
	}
	return &Command{
		Kind: CmdAssignment, Symbol: symbol, Op: op, Value: value,
		Provide: provide, ProvideHidden: provideHidden, Level: level, Line: line,
	}, nil
}
