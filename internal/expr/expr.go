// Package expr provides the expression capability consumed by the engine.
//
// An expression evaluates against a Scope to either a concrete Value or the
// indeterminate outcome, reported as ok == false. Indeterminate is not an
// error: it means the expression refers to a version that has not been
// recorded yet (or cannot be settled), and the caller is expected to keep the
// original expression around and retry against a richer scope later.
//
// Operator semantics live in a registry (see ops.go) so the set of operators
// can be extended without touching the engine.
package expr

import (
	"fmt"
	"strconv"
	"strings"
)

// Expression is anything that can be evaluated against a Scope.
type Expression interface {
	Evaluate(s Scope) (Value, bool)
	String() string
}

// Scope resolves versioned variable references.
type Scope interface {
	// Resolve evaluates version `version` of variable `name`. ok is false when
	// that version does not exist yet or its value is still indeterminate.
	Resolve(name string, version int) (Value, bool)
}

// Ref names one absolute version of a variable, written name@index.
type Ref struct {
	Name  string
	Index int
}

// At builds a variable reference.
func At(name string, index int) Ref { return Ref{Name: name, Index: index} }

func (r Ref) Evaluate(s Scope) (Value, bool) {
	if s == nil {
		return nil, false
	}
	return s.Resolve(r.Name, r.Index)
}

func (r Ref) String() string { return r.Name + "@" + strconv.Itoa(r.Index) }

// ParseRef parses the name@index form.
func ParseRef(text string) (Ref, error) {
	name, idx, ok := strings.Cut(strings.TrimSpace(text), "@")
	if !ok || name == "" {
		return Ref{}, fmt.Errorf("invalid reference %q: want name@index", text)
	}
	n, err := strconv.Atoi(idx)
	if err != nil {
		return Ref{}, fmt.Errorf("invalid reference %q: %w", text, err)
	}
	if n < 0 {
		return Ref{}, fmt.Errorf("invalid reference %q: negative index", text)
	}
	return Ref{Name: name, Index: n}, nil
}

// TupleExpr builds a tuple from element expressions. It is indeterminate as
// long as any element is.
type TupleExpr struct {
	Elems []Expression
}

func (t TupleExpr) Evaluate(s Scope) (Value, bool) {
	out := make(Tuple, 0, len(t.Elems))
	for _, e := range t.Elems {
		v, ok := e.Evaluate(s)
		if !ok {
			return nil, false
		}
		out = append(out, v)
	}
	return out, true
}

func (t TupleExpr) String() string {
	parts := make([]string, len(t.Elems))
	for i, e := range t.Elems {
		parts[i] = e.String()
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

// Unary applies a registered unary operator.
type Unary struct {
	Op      string
	Operand Expression
}

func (u Unary) Evaluate(s Scope) (Value, bool) {
	v, ok := u.Operand.Evaluate(s)
	if !ok {
		return nil, false
	}
	fn, found := lookupUnary(u.Op)
	if !found {
		return nil, false
	}
	return fn(v), true
}

func (u Unary) String() string { return u.Op + " " + u.Operand.String() }

// Binary applies a registered binary operator.
type Binary struct {
	Op          string
	Left, Right Expression
}

func (b Binary) Evaluate(s Scope) (Value, bool) {
	l, ok := b.Left.Evaluate(s)
	if !ok {
		return nil, false
	}
	r, ok := b.Right.Evaluate(s)
	if !ok {
		return nil, false
	}
	fn, found := lookupBinary(b.Op)
	if !found {
		return nil, false
	}
	return fn(l, r), true
}

func (b Binary) String() string {
	return "(" + b.Left.String() + " " + b.Op + " " + b.Right.String() + ")"
}
