package expr

import (
	"strconv"
	"strings"
)

// Value is a concrete evaluation result. Every value is also an expression
// that evaluates to itself, which is how literals are represented.
type Value interface {
	Expression
	// FullyDefined reports whether the value has no undefined parts.
	FullyDefined(s Scope) bool
	// Equal reports structural equality.
	Equal(other Value) bool
}

// Int is a signed integer value.
type Int int64

// Bool is a boolean value.
type Bool bool

// Atom is a symbolic constant.
type Atom string

// Undefined is a value that is known to carry no meaningful content, such as
// the result of dividing by zero. It is distinct from an indeterminate result.
type Undefined struct{}

// Tuple is an ordered sequence of values.
type Tuple []Value

func (v Int) Evaluate(Scope) (Value, bool)       { return v, true }
func (v Bool) Evaluate(Scope) (Value, bool)      { return v, true }
func (v Atom) Evaluate(Scope) (Value, bool)      { return v, true }
func (v Undefined) Evaluate(Scope) (Value, bool) { return v, true }
func (v Tuple) Evaluate(Scope) (Value, bool)     { return v, true }

func (Int) FullyDefined(Scope) bool       { return true }
func (Bool) FullyDefined(Scope) bool      { return true }
func (Atom) FullyDefined(Scope) bool      { return true }
func (Undefined) FullyDefined(Scope) bool { return false }

func (v Tuple) FullyDefined(s Scope) bool {
	for _, e := range v {
		if !e.FullyDefined(s) {
			return false
		}
	}
	return true
}

func (v Int) Equal(o Value) bool {
	w, ok := o.(Int)
	return ok && v == w
}

func (v Bool) Equal(o Value) bool {
	w, ok := o.(Bool)
	return ok && v == w
}

func (v Atom) Equal(o Value) bool {
	w, ok := o.(Atom)
	return ok && v == w
}

func (Undefined) Equal(o Value) bool {
	_, ok := o.(Undefined)
	return ok
}

func (v Tuple) Equal(o Value) bool {
	w, ok := o.(Tuple)
	if !ok || len(v) != len(w) {
		return false
	}
	for i := range v {
		if !v[i].Equal(w[i]) {
			return false
		}
	}
	return true
}

func (v Int) String() string {
	return strconv.FormatInt(int64(v), 10)
}

func (v Bool) String() string {
	if v {
		return "true"
	}
	return "false"
}

func (v Atom) String() string { return ":" + string(v) }

func (Undefined) String() string { return "undefined" }

func (v Tuple) String() string {
	parts := make([]string, len(v))
	for i, e := range v {
		parts[i] = e.String()
	}
	return "(" + strings.Join(parts, ", ") + ")"
}
