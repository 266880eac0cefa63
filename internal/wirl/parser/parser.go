package parser

import (
	"fmt"
	"strconv"

	"github.com/wirl-lang/wirl/internal/wirl/lexer"
)

// Parser is an LL(1) recursive-descent parser over a token stream produced
// by lexer.Lexer. It never backtracks; every production consumes exactly
// the tokens its grammar rule describes.
type Parser struct {
	lex  *lexer.Lexer
	tok  lexer.Token
	peek *lexer.Token
}

// Parse parses WIRL source bytes into a Workflow AST or returns a *ParseError.
func Parse(src []byte) (wf *Workflow, err error) {
	p := &Parser{lex: lexer.New(src)}
	defer func() {
		if r := recover(); r != nil {
			if pe, ok := r.(*ParseError); ok {
				err = pe
				return
			}
			panic(r)
		}
	}()
	if err := p.advance(); err != nil {
		return nil, toParseError(err)
	}
	return p.parseWorkflow(), nil
}

func toParseError(err error) error {
	if le, ok := err.(*lexer.Error); ok {
		return &ParseError{Line: le.Line, Column: le.Column, Msg: le.Msg}
	}
	return err
}

func (p *Parser) advance() error {
	if p.peek != nil {
		p.tok = *p.peek
		p.peek = nil
		return nil
	}
	t, err := p.lex.Next()
	if err != nil {
		panic(toParseError(err))
	}
	p.tok = t
	return nil
}

func (p *Parser) lookahead() lexer.Token {
	if p.peek == nil {
		t, err := p.lex.Next()
		if err != nil {
			panic(toParseError(err))
		}
		p.peek = &t
	}
	return *p.peek
}

func (p *Parser) fail(msg string) {
	panic(errAt(p.tok, msg))
}

func (p *Parser) expect(k lexer.Kind, what string) lexer.Token {
	if p.tok.Kind != k {
		p.fail("expected " + what)
	}
	t := p.tok
	p.advance()
	return t
}

func (p *Parser) at(k lexer.Kind) bool { return p.tok.Kind == k }

// ---- top level ----

func (p *Parser) parseWorkflow() *Workflow {
	p.expect(lexer.KW_WORKFLOW, "'workflow'")
	name := p.expect(lexer.IDENT, "workflow name").Text
	wf := &Workflow{Name: name, Outputs: map[string]ValueExpr{}}
	p.expect(lexer.LBRACE, "'{'")

	for !p.at(lexer.RBRACE) {
		switch p.tok.Kind {
		case lexer.KW_METADATA:
			wf.Metadata = p.parseMetadataBlock()
		case lexer.KW_INPUTS:
			wf.Inputs = p.parseParamBlock()
		case lexer.KW_OUTPUTS:
			wf.Outputs = p.parseOutputExprBlock()
		case lexer.KW_NODE:
			wf.Nodes = append(wf.Nodes, p.parseNode())
		case lexer.KW_CYCLE:
			wf.Cycles = append(wf.Cycles, p.parseCycle())
		default:
			p.fail("expected 'metadata', 'inputs', 'outputs', 'node' or 'cycle'")
		}
	}
	p.expect(lexer.RBRACE, "'}'")
	if p.tok.Kind != lexer.EOF {
		p.fail("expected end of file")
	}
	return wf
}

func (p *Parser) parseMetadataBlock() map[string]Literal {
	p.expect(lexer.KW_METADATA, "'metadata'")
	p.expect(lexer.LBRACE, "'{'")
	m := map[string]Literal{}
	for !p.at(lexer.RBRACE) {
		key := p.identOrKeywordText()
		p.expect(lexer.COLON, "':'")
		m[key] = p.parseLiteral()
		p.consumeOptionalComma()
	}
	p.expect(lexer.RBRACE, "'}'")
	return m
}

// identOrKeywordText accepts IDENT or any keyword token as a bare key name,
// since WIRL keywords are not reserved inside metadata/const maps.
func (p *Parser) identOrKeywordText() string {
	k := p.tok.Kind
	if k == lexer.IDENT || k == lexer.BOOL || k == lexer.NULL || k >= lexer.KW_WORKFLOW {
		t := p.tok.Text
		p.advance()
		return t
	}
	p.fail("expected identifier")
	return ""
}

func (p *Parser) consumeOptionalComma() {
	if p.at(lexer.COMMA) {
		p.advance()
	}
}

func (p *Parser) consumeOptionalSemi() {
	if p.at(lexer.SEMI) {
		p.advance()
	}
}

// parseParamBlock parses `{ [TYPE] NAME ; ... }` declared-only param lists
// (workflow inputs, node outputs).
func (p *Parser) parseParamBlock() []Param {
	p.advance() // 'inputs' or 'outputs' keyword already checked by caller
	p.expect(lexer.LBRACE, "'{'")
	var params []Param
	for !p.at(lexer.RBRACE) {
		params = append(params, p.parseParam())
		p.consumeOptionalSemi()
	}
	p.expect(lexer.RBRACE, "'}'")
	return params
}

func (p *Parser) parseParam() Param {
	typ := ""
	name := p.expect(lexer.IDENT, "parameter name").Text
	if p.at(lexer.IDENT) {
		// two identifiers in a row: first was the declared type
		typ = name
		name = p.tok.Text
		p.advance()
	}
	return Param{Name: name, Type: typ}
}

// parseOutputExprBlock parses `{ NAME = EXPR ; ... }` (workflow/cycle outputs).
func (p *Parser) parseOutputExprBlock() map[string]ValueExpr {
	p.advance() // 'outputs'
	p.expect(lexer.LBRACE, "'{'")
	out := map[string]ValueExpr{}
	for !p.at(lexer.RBRACE) {
		name := p.expect(lexer.IDENT, "output name").Text
		p.expect(lexer.ASSIGN, "'='")
		out[name] = p.parseValueExpr()
		p.consumeOptionalSemi()
	}
	p.expect(lexer.RBRACE, "'}'")
	return out
}

// ---- node ----

func (p *Parser) parseNode() *Node {
	tok := p.tok
	p.expect(lexer.KW_NODE, "'node'")
	name := p.expect(lexer.IDENT, "node name").Text
	n := &Node{Name: name, Const: map[string]Literal{}, Line: tok.Line, Column: tok.Column}
	p.expect(lexer.LBRACE, "'{'")

	for !p.at(lexer.RBRACE) {
		switch p.tok.Kind {
		case lexer.KW_CALL:
			p.advance()
			n.CallTarget = p.expect(lexer.IDENT, "callable name").Text
			p.consumeOptionalSemi()
		case lexer.KW_INPUTS:
			n.Inputs = p.parseNodeInputBlock()
		case lexer.KW_OUTPUTS:
			n.Outputs = p.parseParamBlock()
		case lexer.KW_CONST:
			n.Const = p.parseConstBlock()
		case lexer.KW_WHEN:
			p.advance()
			expr := p.parseBoolExpr()
			n.When = expr
			p.consumeOptionalSemi()
		case lexer.KW_HITL:
			n.HITL = p.parseHITLBlock()
		default:
			p.fail("expected 'call', 'inputs', 'outputs', 'const', 'when' or 'hitl'")
		}
	}
	p.expect(lexer.RBRACE, "'}'")
	return n
}

// parseNodeInputBlock parses `{ [TYPE] NAME = EXPR ; ... }`.
func (p *Parser) parseNodeInputBlock() []NodeInput {
	p.advance() // 'inputs'
	p.expect(lexer.LBRACE, "'{'")
	var list []NodeInput
	for !p.at(lexer.RBRACE) {
		typ := ""
		name := p.expect(lexer.IDENT, "input name").Text
		if p.at(lexer.IDENT) {
			typ = name
			name = p.tok.Text
			p.advance()
		}
		p.expect(lexer.ASSIGN, "'='")
		expr := p.parseValueExpr()
		list = append(list, NodeInput{Name: name, Type: typ, Expr: expr})
		p.consumeOptionalSemi()
	}
	p.expect(lexer.RBRACE, "'}'")
	return list
}

func (p *Parser) parseConstBlock() map[string]Literal {
	p.advance() // 'const'
	p.expect(lexer.LBRACE, "'{'")
	m := map[string]Literal{}
	for !p.at(lexer.RBRACE) {
		key := p.identOrKeywordText()
		p.expect(lexer.COLON, "':'")
		m[key] = p.parseLiteral()
		p.consumeOptionalComma()
	}
	p.expect(lexer.RBRACE, "'}'")
	return m
}

func (p *Parser) parseHITLBlock() *HITL {
	p.advance() // 'hitl'
	p.expect(lexer.LBRACE, "'{'")
	h := &HITL{Correlation: map[string]Literal{}}
	for !p.at(lexer.RBRACE) {
		key := p.identOrKeywordText()
		p.expect(lexer.COLON, "':'")
		h.Correlation[key] = p.parseLiteral()
		p.consumeOptionalComma()
	}
	p.expect(lexer.RBRACE, "'}'")
	return h
}

// ---- cycle ----

func (p *Parser) parseCycle() *Cycle {
	tok := p.tok
	p.expect(lexer.KW_CYCLE, "'cycle'")
	name := p.expect(lexer.IDENT, "cycle name").Text
	c := &Cycle{Name: name, Outputs: map[string]ValueExpr{}, Line: tok.Line, Column: tok.Column}
	p.expect(lexer.LBRACE, "'{'")

	for !p.at(lexer.RBRACE) {
		switch p.tok.Kind {
		case lexer.KW_INPUTS:
			c.Inputs = p.parseNodeInputBlock()
		case lexer.KW_OUTPUTS:
			c.Outputs = p.parseOutputExprBlock()
		case lexer.KW_NODE:
			c.Nodes = append(c.Nodes, p.parseNode())
		case lexer.IDENT:
			// a literal `nodes { node ... node ... }` wrapper is also accepted
			if p.tok.Text == "nodes" {
				p.advance()
				p.expect(lexer.LBRACE, "'{'")
				for p.at(lexer.KW_NODE) {
					c.Nodes = append(c.Nodes, p.parseNode())
				}
				p.expect(lexer.RBRACE, "'}'")
			} else {
				p.fail("expected 'inputs', 'outputs', 'nodes', 'guard' or 'max_iterations'")
			}
		case lexer.KW_GUARD:
			p.advance()
			c.Guard = p.parseBoolExpr()
			p.consumeOptionalSemi()
		case lexer.KW_MAX_ITERATIONS:
			p.advance()
			tok := p.expect(lexer.INT, "integer literal")
			n, err := strconv.Atoi(tok.Text)
			if err != nil {
				panic(errAt(tok, "invalid integer"))
			}
			c.MaxIterations = n
			p.consumeOptionalSemi()
		default:
			p.fail("expected 'inputs', 'outputs', 'nodes', 'guard' or 'max_iterations'")
		}
	}
	p.expect(lexer.RBRACE, "'}'")
	return c
}

// ---- value expressions ----

func (p *Parser) parseValueExpr() ValueExpr {
	tok := p.tok
	switch tok.Kind {
	case lexer.IDENT:
		name := tok.Text
		p.advance()
		if p.at(lexer.DOT) {
			p.advance()
			field := p.expect(lexer.IDENT, "field name").Text
			ve := ValueExpr{Kind: RefDotted, Scope: name, Field: field, Reducer: ReducerReplace, Line: tok.Line, Column: tok.Column}
			if p.at(lexer.LPAREN) {
				p.advance()
				rtok := p.expect(lexer.IDENT, "reducer name")
				switch rtok.Text {
				case "append":
					ve.Reducer = ReducerAppend
				case "merge":
					ve.Reducer = ReducerMerge
				case "replace":
					ve.Reducer = ReducerReplace
				default:
					panic(errAt(rtok, fmt.Sprintf("unknown reducer %q", rtok.Text)))
				}
				p.expect(lexer.RPAREN, "')'")
			}
			return ve
		}
		return ValueExpr{Kind: RefIdent, Name: name, Line: tok.Line, Column: tok.Column}
	case lexer.STRING, lexer.INT, lexer.FLOAT, lexer.BOOL, lexer.NULL, lexer.LBRACK, lexer.LBRACE:
		return ValueExpr{Kind: RefLiteral, Literal: p.parseLiteral(), Line: tok.Line, Column: tok.Column}
	default:
		p.fail("expected a value expression")
		return ValueExpr{}
	}
}

func (p *Parser) parseLiteral() Literal {
	tok := p.tok
	switch tok.Kind {
	case lexer.STRING:
		p.advance()
		return Literal{Kind: LitString, String: tok.Text}
	case lexer.INT:
		p.advance()
		n, err := strconv.ParseInt(tok.Text, 10, 64)
		if err != nil {
			panic(errAt(tok, "invalid integer literal"))
		}
		return Literal{Kind: LitInt, Int: n}
	case lexer.FLOAT:
		p.advance()
		f, err := strconv.ParseFloat(tok.Text, 64)
		if err != nil {
			panic(errAt(tok, "invalid float literal"))
		}
		return Literal{Kind: LitFloat, Float: f}
	case lexer.BOOL:
		p.advance()
		return Literal{Kind: LitBool, Bool: tok.Text == "true"}
	case lexer.NULL:
		p.advance()
		return Literal{Kind: LitNull}
	case lexer.LBRACK:
		p.advance()
		var items []Literal
		for !p.at(lexer.RBRACK) {
			items = append(items, p.parseLiteral())
			if p.at(lexer.COMMA) {
				p.advance()
			}
		}
		p.expect(lexer.RBRACK, "']'")
		return Literal{Kind: LitList, List: items}
	case lexer.LBRACE:
		p.advance()
		obj := map[string]Literal{}
		for !p.at(lexer.RBRACE) {
			key := p.identOrKeywordOrStringText()
			p.expect(lexer.COLON, "':'")
			obj[key] = p.parseLiteral()
			p.consumeOptionalComma()
		}
		p.expect(lexer.RBRACE, "'}'")
		return Literal{Kind: LitObject, Object: obj}
	default:
		p.fail("expected a literal")
		return Literal{}
	}
}

func (p *Parser) identOrKeywordOrStringText() string {
	if p.tok.Kind == lexer.STRING {
		s := p.tok.Text
		p.advance()
		return s
	}
	return p.identOrKeywordText()
}

// ---- boolean expressions ----
// guard/when grammar: Or -> And ('||' And)*
//                     And -> Not ('&&' Not)*
//                     Not -> '!' Not | Cmp
//                     Cmp -> Value [cmpOp Value]
//                     Value -> '(' Or ')' | valueExpr

func (p *Parser) parseBoolExpr() *Expr {
	return p.parseOr()
}

func (p *Parser) parseOr() *Expr {
	left := p.parseAnd()
	for p.at(lexer.PIPEPIPE) {
		tok := p.tok
		p.advance()
		right := p.parseAnd()
		left = &Expr{Op: "||", Children: []*Expr{left, right}, Line: tok.Line, Column: tok.Column}
	}
	return left
}

func (p *Parser) parseAnd() *Expr {
	left := p.parseNot()
	for p.at(lexer.AMPAMP) {
		tok := p.tok
		p.advance()
		right := p.parseNot()
		left = &Expr{Op: "&&", Children: []*Expr{left, right}, Line: tok.Line, Column: tok.Column}
	}
	return left
}

func (p *Parser) parseNot() *Expr {
	if p.at(lexer.BANG) {
		tok := p.tok
		p.advance()
		inner := p.parseNot()
		return &Expr{Op: "!", Children: []*Expr{inner}, Line: tok.Line, Column: tok.Column}
	}
	return p.parseCmp()
}

func cmpOp(k lexer.Kind) string {
	switch k {
	case lexer.EQ:
		return "=="
	case lexer.NEQ:
		return "!="
	case lexer.LT:
		return "<"
	case lexer.LTE:
		return "<="
	case lexer.GT:
		return ">"
	case lexer.GTE:
		return ">="
	}
	return ""
}

func (p *Parser) parseCmp() *Expr {
	left := p.parseBoolPrimary()
	if op := cmpOp(p.tok.Kind); op != "" {
		tok := p.tok
		p.advance()
		right := p.parseBoolPrimary()
		return &Expr{Op: op, Children: []*Expr{left, right}, Line: tok.Line, Column: tok.Column}
	}
	return left
}

func (p *Parser) parseBoolPrimary() *Expr {
	if p.at(lexer.LPAREN) {
		p.advance()
		inner := p.parseOr()
		p.expect(lexer.RPAREN, "')'")
		return inner
	}
	tok := p.tok
	ve := p.parseValueExpr()
	return &Expr{Value: &ve, Line: tok.Line, Column: tok.Column}
}
