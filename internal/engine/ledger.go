package engine

import (
	"maps"
	"slices"

	"github.com/tva-lang/tva/internal/expr"
)

// Deferred keeps an expression together with its value once known, so a
// later pass can reuse the value instead of evaluating the expression again.
type Deferred struct {
	Expr  expr.Expression
	Value expr.Value
	Known bool
}

// Defer evaluates e against s and records whatever is known.
func Defer(e expr.Expression, s expr.Scope) Deferred {
	v, ok := e.Evaluate(s)
	return Deferred{Expr: e, Value: v, Known: ok}
}

func (d Deferred) Evaluate(s expr.Scope) (expr.Value, bool) {
	if d.Known {
		return d.Value, true
	}
	return d.Expr.Evaluate(s)
}

func (d Deferred) String() string {
	if d.Known {
		return d.Value.String()
	}
	return d.Expr.String()
}

// PendingProphecy is a prophecy that has not been checked yet.
type PendingProphecy struct {
	Target   expr.Ref
	Expected Deferred
	Line     int
}

// PendingDebug is a debug-channel assignment whose value was unknown.
type PendingDebug struct {
	Line int
	Expr expr.Expression
}

// LedgerEntry snapshots one executed statement: the latest version index of
// every variable after it ran, plus everything still waiting to be resolved.
// Entries are never modified once appended to an Environment.
type LedgerEntry struct {
	Line       int
	Versions   map[string]int
	Prophecies []PendingProphecy
	Revisions  []Revision
	Debugs     []PendingDebug
}

func newLedgerEntry(line int) *LedgerEntry {
	return &LedgerEntry{Line: line}
}

func (e LedgerEntry) clone() LedgerEntry {
	return LedgerEntry{
		Line:       e.Line,
		Versions:   maps.Clone(e.Versions),
		Prophecies: slices.Clone(e.Prophecies),
		Revisions:  slices.Clone(e.Revisions),
		Debugs:     slices.Clone(e.Debugs),
	}
}
