package engine

import (
	"context"
	"fmt"

	"github.com/tva-lang/tva/internal/expr"
)

type outcome int

const (
	outcomeOutput outcome = iota
	outcomeNoOutput
	outcomeProphecyViolated
	outcomeIndeterminateOutput
	outcomeCancelled
)

func (o outcome) String() string {
	switch o {
	case outcomeOutput:
		return "output"
	case outcomeNoOutput:
		return "no-output"
	case outcomeProphecyViolated:
		return "prophecy-violated"
	case outcomeIndeterminateOutput:
		return "indeterminate-output"
	case outcomeCancelled:
		return "cancelled"
	}
	return "unknown"
}

// universe is one timeline being executed by one goroutine.
type universe struct {
	*run
	ctx context.Context
	id  string
	env *Environment

	// spawned numbers this universe's children; it is shared by direct
	// revisions and every resolution pass so sibling ids never collide.
	spawned int
}

// trace writes a verbose-only diagnostic line.
func (u *universe) trace(line int, format string, args ...interface{}) {
	if u.opts.Verbose {
		u.log.Printf("dbg(u:%s,l:%d): %s", u.id, line, fmt.Sprintf(format, args...))
	}
}

// channel writes a debug-channel line; the universe prefix is verbose-only.
func (u *universe) channel(line int, format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	if u.opts.Verbose {
		msg = fmt.Sprintf("dbg(u:%s,l:%d): %s", u.id, line, msg)
	}
	u.log.Printf("%s", msg)
}

// execute runs statements[start:] and then records the universe's output.
func (u *universe) execute(start int) outcome {
	stmts := u.program.Statements
	lastLine := 0
	for i := start; i < len(stmts); i++ {
		if u.ctx.Err() != nil {
			return outcomeCancelled
		}
		stmt := stmts[i]
		lastLine = stmt.SourceLine()
		next := newLedgerEntry(stmt.SourceLine())

		// Resolve before executing, so that a fork violating a pending
		// prophecy is caught before it can run on.
		if prev := u.env.lastEntry(); prev != nil {
			if !u.resolve(prev, next) {
				return outcomeProphecyViolated
			}
		}

		switch s := stmt.(type) {
		case Mutation:
			u.mutate(s, next)
		case Revision:
			u.revise(s, next)
		case Prophecy:
			u.prophesy(s, next)
		default:
			violate(u.id, stmt.SourceLine(), "unknown statement kind %T", stmt)
		}
		u.env.commit(next)
	}

	if prev := u.env.lastEntry(); prev != nil {
		if !u.resolve(prev, nil) {
			return outcomeProphecyViolated
		}
	}
	return u.collect(lastLine)
}

func (u *universe) mutate(s Mutation, next *LedgerEntry) {
	name, idx := s.Left.Name, s.Left.Index
	if idx == 0 && u.env.Has(name) {
		violate(u.id, s.Line, "mutation %s: %s already has %d versions", s.Left, name, u.env.Len(name))
	}
	if idx != 0 && (!u.env.Has(name) || u.env.Len(name) != idx) {
		violate(u.id, s.Line, "mutation %s out of order: %s has %d versions", s.Left, name, u.env.Len(name))
	}

	val, ok := s.Right.Evaluate(u.env)
	if name == u.opts.DebugChannel {
		if !ok {
			next.Debugs = append(next.Debugs, PendingDebug{Line: s.Line, Expr: s.Right})
			u.channel(s.Line, "%s = unknown", s.Right)
		} else if s.Right.String() == val.String() {
			u.channel(s.Line, "%s", val)
		} else {
			u.channel(s.Line, "%s = %s", s.Right, val)
		}
	}

	// Keep the original expression when the value is not settled yet so it
	// can be evaluated again against a later state.
	stored := s.Right
	if ok && val.FullyDefined(u.env) {
		stored = val
	}
	u.env.record(name, stored)
}

func (u *universe) revise(s Revision, next *LedgerEntry) {
	if s.Left.Index >= u.env.Len(s.Left.Name) {
		violate(u.id, s.Line, "revision %s targets a future version: %s has %d versions", s.Left, s.Left.Name, u.env.Len(s.Left.Name))
	}
	val, ok := s.Right.Evaluate(u.env)
	if !ok {
		next.Revisions = append(next.Revisions, s)
		return
	}
	u.fork(s, val)
}

func (u *universe) prophesy(s Prophecy, next *LedgerEntry) {
	if u.env.Has(s.Left.Name) && u.env.Len(s.Left.Name) > s.Left.Index {
		violate(u.id, s.Line, "prophecy %s is about a settled version: %s has %d versions", s.Left, s.Left.Name, u.env.Len(s.Left.Name))
	}
	next.Prophecies = append(next.Prophecies, PendingProphecy{
		Target:   s.Left,
		Expected: Defer(s.Right, u.env),
		Line:     s.Line,
	})
}

// fork rewinds to the revised version and launches the alternate timeline.
func (u *universe) fork(s Revision, val expr.Value) {
	env, at, ok := u.env.Fork(s.Left.Name, s.Left.Index, val)
	if !ok {
		u.trace(s.Line, "Fork happens before big-bang, travel will fail.")
		return
	}
	if !u.budget.TryAcquire() {
		u.log.Warn("spawn limit reached (%d universes), dropping fork of %s at line %d", u.budget.Ceiling(), s.Left, s.Line)
		return
	}
	child := fmt.Sprintf("%s-%d", u.id, u.spawned)
	u.spawned++
	u.trace(s.Line, "Forking to %s at line %d, %s = %s", child, at.Line, s.Left, val)
	u.launch(child, env, at.Statement+1)
}

// collect records the output channel's versions if every one of them is
// known and fully defined.
func (u *universe) collect(lastLine int) outcome {
	name := u.opts.OutputChannel
	hist, ok := u.env.History(name)
	if !ok {
		return outcomeNoOutput
	}
	values := make([]string, len(hist))
	for i, ver := range hist {
		v, ok := u.env.Resolve(name, i)
		if !ok || !v.FullyDefined(u.env) {
			line := 0
			if ver.Statement < len(u.env.ledger) {
				line = u.env.ledger[ver.Statement].Line
			}
			u.trace(lastLine+1, "Indeterminate output at line %d: %s, universe %s failed.", line, ver.Expr, u.id)
			return outcomeIndeterminateOutput
		}
		values[i] = v.String()
	}
	u.results.Store(u.id, values)
	return outcomeOutput
}
