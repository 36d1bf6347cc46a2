package rules

import (
	"fmt"

	"github.com/shopspring/decimal"
)

const (
	maxFormulaLength = 1024
	maxFormulaDepth  = 64
)

// Formula is a parsed arithmetic expression. It holds no state and is safe to
// evaluate concurrently.
type Formula struct {
	source string
	root   node
}

func (f *Formula) String() string {
	return f.source
}

// Eval evaluates the formula against fields.
func (f *Formula) Eval(fields FieldMap) (decimal.Decimal, error) {
	return f.root.eval(fields)
}

// Evaluate parses and evaluates formula against fields. The grammar is numbers,
// field names, + - * /, unary minus and parentheses. Nothing else parses.
func Evaluate(formula string, fields FieldMap) (decimal.Decimal, error) {
	f, err := ParseFormula(formula)
	if err != nil {
		return decimal.Zero, err
	}
	return f.Eval(fields)
}

// ParseFormula checks formula syntax without evaluating it.
func ParseFormula(formula string) (*Formula, error) {
	if len(formula) > maxFormulaLength {
		return nil, &EvalError{Code: ErrCodeSyntax, Message: "formula too long", Pos: -1}
	}
	tokens, err := lex(formula)
	if err != nil {
		return nil, err
	}
	p := &parser{tokens: tokens}
	root, err := p.parseExpr(0)
	if err != nil {
		return nil, err
	}
	if tok := p.peek(); tok.kind != tokEOF {
		return nil, syntaxError(tok.pos, "unexpected %q", tok.text)
	}
	return &Formula{source: formula, root: root}, nil
}

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokNumber
	tokIdent
	tokOp
	tokLParen
	tokRParen
)

type token struct {
	kind tokenKind
	text string
	pos  int
}

func isDigit(c byte) bool      { return c >= '0' && c <= '9' }
func isIdentStart(c byte) bool { return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') }
func isIdentPart(c byte) bool  { return isIdentStart(c) || isDigit(c) || c == '.' }

func lex(src string) ([]token, error) {
	var tokens []token
	i := 0
	for i < len(src) {
		c := src[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++
		case isDigit(c) || (c == '.' && i+1 < len(src) && isDigit(src[i+1])):
			start := i
			seenDot := false
			for i < len(src) && (isDigit(src[i]) || (src[i] == '.' && !seenDot)) {
				if src[i] == '.' {
					seenDot = true
				}
				i++
			}
			tokens = append(tokens, token{kind: tokNumber, text: src[start:i], pos: start})
		case isIdentStart(c):
			start := i
			for i < len(src) && isIdentPart(src[i]) {
				i++
			}
			tokens = append(tokens, token{kind: tokIdent, text: src[start:i], pos: start})
		case c == '+' || c == '-' || c == '*' || c == '/':
			tokens = append(tokens, token{kind: tokOp, text: string(c), pos: i})
			i++
		case c == '(':
			tokens = append(tokens, token{kind: tokLParen, text: "(", pos: i})
			i++
		case c == ')':
			tokens = append(tokens, token{kind: tokRParen, text: ")", pos: i})
			i++
		default:
			return nil, syntaxError(i, "unexpected character %q", c)
		}
	}
	return append(tokens, token{kind: tokEOF, pos: len(src)}), nil
}

func syntaxError(pos int, format string, args ...interface{}) *EvalError {
	return &EvalError{Code: ErrCodeSyntax, Message: fmt.Sprintf(format, args...), Pos: pos}
}

// parser is a recursive descent parser:
//
//	expr   := term (("+" | "-") term)*
//	term   := unary (("*" | "/") unary)*
//	unary  := ("-" | "+") unary | primary
//	primary:= NUMBER | IDENT | "(" expr ")"
type parser struct {
	tokens []token
	pos    int
}

func (p *parser) peek() token {
	return p.tokens[p.pos]
}

func (p *parser) next() token {
	tok := p.tokens[p.pos]
	if tok.kind != tokEOF {
		p.pos++
	}
	return tok
}

func (p *parser) parseExpr(depth int) (node, error) {
	if depth > maxFormulaDepth {
		return nil, syntaxError(p.peek().pos, "formula nested too deeply")
	}
	left, err := p.parseTerm(depth)
	if err != nil {
		return nil, err
	}
	for {
		tok := p.peek()
		if tok.kind != tokOp || (tok.text != "+" && tok.text != "-") {
			return left, nil
		}
		p.next()
		right, err := p.parseTerm(depth)
		if err != nil {
			return nil, err
		}
		left = &binaryNode{op: tok.text[0], left: left, right: right, pos: tok.pos}
	}
}

func (p *parser) parseTerm(depth int) (node, error) {
	left, err := p.parseUnary(depth)
	if err != nil {
		return nil, err
	}
	for {
		tok := p.peek()
		if tok.kind != tokOp || (tok.text != "*" && tok.text != "/") {
			return left, nil
		}
		p.next()
		right, err := p.parseUnary(depth)
		if err != nil {
			return nil, err
		}
		left = &binaryNode{op: tok.text[0], left: left, right: right, pos: tok.pos}
	}
}

func (p *parser) parseUnary(depth int) (node, error) {
	tok := p.peek()
	if tok.kind == tokOp && (tok.text == "-" || tok.text == "+") {
		if depth > maxFormulaDepth {
			return nil, syntaxError(tok.pos, "formula nested too deeply")
		}
		p.next()
		operand, err := p.parseUnary(depth + 1)
		if err != nil {
			return nil, err
		}
		if tok.text == "+" {
			return operand, nil
		}
		return &negNode{operand: operand}, nil
	}
	return p.parsePrimary(depth)
}

func (p *parser) parsePrimary(depth int) (node, error) {
	tok := p.next()
	switch tok.kind {
	case tokNumber:
		d, err := decimal.NewFromString(tok.text)
		if err != nil {
			return nil, syntaxError(tok.pos, "invalid number %q", tok.text)
		}
		return &numberNode{value: d}, nil
	case tokIdent:
		return &fieldNode{name: tok.text, pos: tok.pos}, nil
	case tokLParen:
		inner, err := p.parseExpr(depth + 1)
		if err != nil {
			return nil, err
		}
		if closing := p.next(); closing.kind != tokRParen {
			return nil, syntaxError(closing.pos, "expected )")
		}
		return inner, nil
	case tokEOF:
		return nil, syntaxError(tok.pos, "unexpected end of formula")
	}
	return nil, syntaxError(tok.pos, "unexpected %q", tok.text)
}

type node interface {
	eval(fields FieldMap) (decimal.Decimal, error)
}

type numberNode struct {
	value decimal.Decimal
}

func (n *numberNode) eval(FieldMap) (decimal.Decimal, error) {
	return n.value, nil
}

type fieldNode struct {
	name string
	pos  int
}

func (n *fieldNode) eval(fields FieldMap) (decimal.Decimal, error) {
	v, ok := fields.Lookup(n.name)
	if !ok {
		return decimal.Zero, &EvalError{Code: ErrCodeUnknownField, Message: fmt.Sprintf("unknown field %q", n.name), Pos: n.pos}
	}
	d, ok := toDecimal(v)
	if !ok {
		return decimal.Zero, &EvalError{Code: ErrCodeNotNumeric, Message: fmt.Sprintf("field %q is not numeric", n.name), Pos: n.pos}
	}
	return d, nil
}

type negNode struct {
	operand node
}

func (n *negNode) eval(fields FieldMap) (decimal.Decimal, error) {
	v, err := n.operand.eval(fields)
	if err != nil {
		return decimal.Zero, err
	}
	return v.Neg(), nil
}

type binaryNode struct {
	op          byte
	left, right node
	pos         int
}

func (n *binaryNode) eval(fields FieldMap) (decimal.Decimal, error) {
	l, err := n.left.eval(fields)
	if err != nil {
		return decimal.Zero, err
	}
	r, err := n.right.eval(fields)
	if err != nil {
		return decimal.Zero, err
	}
	switch n.op {
	case '+':
		return l.Add(r), nil
	case '-':
		return l.Sub(r), nil
	case '*':
		return l.Mul(r), nil
	case '/':
		if r.IsZero() {
			return decimal.Zero, &EvalError{Code: ErrCodeDivisionByZero, Message: "division by zero", Pos: n.pos}
		}
		return l.Div(r), nil
	}
	return decimal.Zero, syntaxError(n.pos, "unknown operator %q", n.op)
}
