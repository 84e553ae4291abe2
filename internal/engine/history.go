package engine

import "github.com/tva-lang/tva/internal/expr"

// Version is one recorded entry of a variable's history: the expression that
// produced it (a value once it could be evaluated) and the index of the
// statement that recorded it.
type Version struct {
	Expr      expr.Expression
	Statement int
}

// History is the append-only version sequence of one variable. Index i is
// version i; index 0 is the first assignment.
type History []Version

func (h History) clone(n int) History {
	out := make(History, n)
	copy(out, h[:n])
	return out
}
