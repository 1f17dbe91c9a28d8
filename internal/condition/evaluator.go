package condition

import (
	"errors"
	"fmt"
)

// ErrUnknownField is returned when an expression names a field the target
// records do not have.
var ErrUnknownField = errors.New("unknown field")

// EvalContext resolves field references during evaluation.
type EvalContext interface {
	Resolve(path []string) (interface{}, bool)
}

// Evaluate walks the AST against ctx.
func Evaluate(expr Expr, ctx EvalContext) (bool, error) {
	switch e := expr.(type) {
	case *BinaryExpr:
		left, err := Evaluate(e.Left, ctx)
		if err != nil {
			return false, err
		}
		switch e.Op {
		case "AND":
			if !left {
				return false, nil
			}
		case "OR":
			if left {
				return true, nil
			}
		default:
			return false, fmt.Errorf("unknown binary op %q", e.Op)
		}
		return Evaluate(e.Right, ctx)
	case *NotExpr:
		v, err := Evaluate(e.Expr, ctx)
		return !v && err == nil, err
	case *FlagExpr:
		v, err := resolve(e.Field, ctx)
		if err != nil {
			return false, err
		}
		b, ok := v.(bool)
		if !ok {
			return false, fmt.Errorf("field %q is %T, not a flag", e.Field, v)
		}
		return b, nil
	case *ComparisonExpr:
		left, err := resolve(e.Left, ctx)
		if err != nil {
			return false, err
		}
		right, err := resolve(e.Right, ctx)
		if err != nil {
			return false, err
		}
		return compare(e.Op, left, right)
	}
	return false, fmt.Errorf("unknown expr type %T", expr)
}

func resolve(op Operand, ctx EvalContext) (interface{}, error) {
	switch o := op.(type) {
	case *LiteralOperand:
		return o.Value, nil
	case *FieldOperand:
		v, ok := ctx.Resolve(o.Path)
		if !ok {
			return nil, fmt.Errorf("field %q not found", o)
		}
		return v, nil
	}
	return nil, fmt.Errorf("unknown operand type %T", op)
}

// Predicate is a compiled expression ready to run against many contexts.
type Predicate struct {
	src  string
	expr Expr
}

// Compile parses src once for repeated evaluation.
func Compile(src string) (*Predicate, error) {
	expr, err := Parse(src)
	if err != nil {
		return nil, fmt.Errorf("compile %q: %w", src, err)
	}
	return &Predicate{src: src, expr: expr}, nil
}

// Match reports whether ctx satisfies the predicate.
func (p *Predicate) Match(ctx EvalContext) (bool, error) {
	return Evaluate(p.expr, ctx)
}

// String returns the source text.
func (p *Predicate) String() string { return p.src }

// CompileFor compiles src and checks that every field it references is
// accepted by known.
func CompileFor(src string, known func(path []string) bool) (*Predicate, error) {
	p, err := Compile(src)
	if err != nil {
		return nil, err
	}
	for _, f := range Fields(p.expr) {
		if !known(f.Path) {
			return nil, fmt.Errorf("compile %q: %w %q", src, ErrUnknownField, f.String())
		}
	}
	return p, nil
}

// Fields returns the field references in expr, left to right.
func Fields(expr Expr) []*FieldOperand {
	var out []*FieldOperand
	addOperand := func(op Operand) {
		if f, ok := op.(*FieldOperand); ok {
			out = append(out, f)
		}
	}
	var walk func(Expr)
	walk = func(e Expr) {
		switch n := e.(type) {
		case *BinaryExpr:
			walk(n.Left)
			walk(n.Right)
		case *NotExpr:
			walk(n.Expr)
		case *FlagExpr:
			out = append(out, n.Field)
		case *ComparisonExpr:
			addOperand(n.Left)
			addOperand(n.Right)
		}
	}
	walk(expr)
	return out
}
