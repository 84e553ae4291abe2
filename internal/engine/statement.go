package engine

import "github.com/tva-lang/tva/internal/expr"

// Statement is one of Mutation, Revision or Prophecy. The set is closed.
type Statement interface {
	Target() expr.Ref
	Source() expr.Expression
	SourceLine() int
	String() string
	isStatement()
}

// Assign holds the parts shared by every statement kind.
type Assign struct {
	Left  expr.Ref
	Right expr.Expression
	Line  int
}

func (a Assign) Target() expr.Ref        { return a.Left }
func (a Assign) Source() expr.Expression { return a.Right }
func (a Assign) SourceLine() int         { return a.Line }

// Mutation appends the next version of a variable: x@n := e.
type Mutation struct{ Assign }

// Revision overwrites an already recorded version and forks a new universe
// from that point: x@n ::= e.
type Revision struct{ Assign }

// Prophecy asserts the value of a future version: x@n :~ e.
type Prophecy struct{ Assign }

func (Mutation) isStatement() {}
func (Revision) isStatement() {}
func (Prophecy) isStatement() {}

func (s Mutation) String() string { return s.Left.String() + " := " + s.Right.String() }
func (s Revision) String() string { return s.Left.String() + " ::= " + s.Right.String() }
func (s Prophecy) String() string { return s.Left.String() + " :~ " + s.Right.String() }

// Mutate builds a Mutation.
func Mutate(left expr.Ref, right expr.Expression, line int) Mutation {
	return Mutation{Assign{Left: left, Right: right, Line: line}}
}

// Revise builds a Revision.
func Revise(left expr.Ref, right expr.Expression, line int) Revision {
	return Revision{Assign{Left: left, Right: right, Line: line}}
}

// Prophesy builds a Prophecy.
func Prophesy(left expr.Ref, right expr.Expression, line int) Prophecy {
	return Prophecy{Assign{Left: left, Right: right, Line: line}}
}

// Program is an ordered statement stream plus the declared slot counts the
// front end computed for it. Programs are shared read-only by all universes.
type Program struct {
	Statements    []Statement
	DeclaredSlots map[string]int
}
