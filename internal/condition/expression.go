package condition

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// Expr is a node of a parsed predicate.
type Expr interface {
	exprNode()
}

// BinaryExpr joins two predicates with AND or OR.
type BinaryExpr struct {
	Op    string
	Left  Expr
	Right Expr
}

func (*BinaryExpr) exprNode() {}

// NotExpr negates a predicate.
type NotExpr struct {
	Expr Expr
}

func (*NotExpr) exprNode() {}

// ComparisonExpr is <operand> <operator> <operand>.
type ComparisonExpr struct {
	Left  Operand
	Op    Operator
	Right Operand
}

func (*ComparisonExpr) exprNode() {}

// FlagExpr is a bare field used as a boolean, e.g. "global".
type FlagExpr struct {
	Field *FieldOperand
}

func (*FlagExpr) exprNode() {}

// Operand is either a literal value or a field reference.
type Operand interface {
	operandNode()
}

// LiteralOperand holds a constant: float64, string or bool.
type LiteralOperand struct {
	Value interface{}
}

func (*LiteralOperand) operandNode() {}

// FieldOperand references an attribute by (dot-separated) path.
type FieldOperand struct {
	Path []string
}

func (*FieldOperand) operandNode() {}

func (f *FieldOperand) String() string { return strings.Join(f.Path, ".") }

type tokenKind int

const (
	tokWord tokenKind = iota
	tokOp
	tokString
	tokNumber
	tokBool
	tokLParen
	tokRParen
	tokEOF
)

type token struct {
	kind tokenKind
	val  string
	pos  int
}

func isNumberStart(s string, i int) bool {
	if unicode.IsDigit(rune(s[i])) {
		return true
	}
	return (s[i] == '-' || s[i] == '.') && i+1 < len(s) && unicode.IsDigit(rune(s[i+1]))
}

func tokenize(src string) ([]token, error) {
	var out []token
	i := 0
	for i < len(src) {
		ch := src[i]
		switch {
		case unicode.IsSpace(rune(ch)):
			i++
		case ch == '(':
			out = append(out, token{tokLParen, "(", i})
			i++
		case ch == ')':
			out = append(out, token{tokRParen, ")", i})
			i++
		case ch == '=' || ch == '!' || ch == '<' || ch == '>':
			if i+1 < len(src) && src[i+1] == '=' {
				out = append(out, token{tokOp, src[i : i+2], i})
				i += 2
			} else {
				out = append(out, token{tokOp, string(ch), i})
				i++
			}
		case ch == '"' || ch == '\'':
			j := i + 1
			var sb strings.Builder
			for j < len(src) && src[j] != ch {
				if src[j] == '\\' && j+1 < len(src) {
					j++
				}
				sb.WriteByte(src[j])
				j++
			}
			if j >= len(src) {
				return nil, fmt.Errorf("unterminated string at position %d", i)
			}
			out = append(out, token{tokString, sb.String(), i})
			i = j + 1
		case isNumberStart(src, i):
			j := i + 1
			for j < len(src) && (unicode.IsDigit(rune(src[j])) || src[j] == '.' || src[j] == 'e' || src[j] == 'E' ||
				((src[j] == '-' || src[j] == '+') && (src[j-1] == 'e' || src[j-1] == 'E'))) {
				j++
			}
			out = append(out, token{tokNumber, src[i:j], i})
			i = j
		case unicode.IsLetter(rune(ch)) || ch == '_':
			j := i
			for j < len(src) && (unicode.IsLetter(rune(src[j])) || unicode.IsDigit(rune(src[j])) || src[j] == '_' || src[j] == '.') {
				j++
			}
			word := src[i:j]
			if lw := strings.ToLower(word); lw == "true" || lw == "false" {
				out = append(out, token{tokBool, lw, i})
			} else {
				out = append(out, token{tokWord, word, i})
			}
			i = j
		default:
			return nil, fmt.Errorf("unexpected character %q at position %d", ch, i)
		}
	}
	out = append(out, token{tokEOF, "", len(src)})
	return out, nil
}

type parser struct {
	tokens []token
	pos    int
}

func (p *parser) peek() token { return p.tokens[p.pos] }

func (p *parser) next() token {
	t := p.tokens[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *parser) keyword(kw string) bool {
	t := p.peek()
	return t.kind == tokWord && strings.EqualFold(t.val, kw)
}

// Parse turns a predicate string into an AST.
//
//	or   = and { "OR" and }
//	and  = not { "AND" not }
//	not  = "NOT" not | "(" or ")" | cmp
//	cmp  = operand [ op operand ]
func Parse(src string) (Expr, error) {
	if strings.TrimSpace(src) == "" {
		return nil, fmt.Errorf("empty expression")
	}
	tokens, err := tokenize(src)
	if err != nil {
		return nil, err
	}
	p := &parser{tokens: tokens}
	e, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if t := p.peek(); t.kind != tokEOF {
		return nil, fmt.Errorf("unexpected %q at position %d", t.val, t.pos)
	}
	return e, nil
}

func (p *parser) parseOr() (Expr, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.keyword("OR") {
		p.next()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &BinaryExpr{Op: "OR", Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseAnd() (Expr, error) {
	left, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	for p.keyword("AND") {
		p.next()
		right, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		left = &BinaryExpr{Op: "AND", Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseNot() (Expr, error) {
	if p.keyword("NOT") {
		p.next()
		inner, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return &NotExpr{Expr: inner}, nil
	}
	if p.peek().kind == tokLParen {
		p.next()
		inner, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if t := p.next(); t.kind != tokRParen {
			return nil, fmt.Errorf("expected \")\" at position %d, got %q", t.pos, t.val)
		}
		return inner, nil
	}
	return p.parseComparison()
}

func (p *parser) parseComparison() (Expr, error) {
	left, err := p.parseOperand()
	if err != nil {
		return nil, err
	}

	var op Operator
	t := p.peek()
	switch {
	case t.kind == tokOp:
		op = Operator(t.val)
		if !op.valid() {
			return nil, fmt.Errorf("unknown operator %q at position %d", t.val, t.pos)
		}
	default:
		// A lone field reads as a flag.
		if f, ok := left.(*FieldOperand); ok {
			return &FlagExpr{Field: f}, nil
		}
		return nil, fmt.Errorf("expected comparison operator at position %d, got %q", t.pos, t.val)
	}
	p.next()

	right, err := p.parseOperand()
	if err != nil {
		return nil, err
	}
	return &ComparisonExpr{Left: left, Op: op, Right: right}, nil
}

func (p *parser) parseOperand() (Operand, error) {
	t := p.next()
	switch t.kind {
	case tokString:
		return &LiteralOperand{Value: t.val}, nil
	case tokNumber:
		f, err := strconv.ParseFloat(t.val, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid number %q at position %d", t.val, t.pos)
		}
		return &LiteralOperand{Value: f}, nil
	case tokBool:
		return &LiteralOperand{Value: t.val == "true"}, nil
	case tokWord:
		return &FieldOperand{Path: strings.Split(t.val, ".")}, nil
	case tokEOF:
		return nil, fmt.Errorf("unexpected end of expression")
	default:
		return nil, fmt.Errorf("expected operand at position %d, got %q", t.pos, t.val)
	}
}
