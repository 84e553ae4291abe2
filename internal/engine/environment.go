package engine

import (
	"maps"
	"sort"

	"github.com/tva-lang/tva/internal/expr"
)

// Environment is the complete state of one universe: every variable's
// version history and the per-statement ledger. An Environment is owned by
// exactly one goroutine; Fork is the only way state crosses universes and it
// copies everything it keeps.
type Environment struct {
	histories map[string]History
	ledger    []LedgerEntry
	slots     map[string]int

	resolving map[expr.Ref]bool
}

// NewEnvironment creates an empty universe state. slots is the declared
// number of versions per variable; it is carried along but not enforced.
func NewEnvironment(slots map[string]int) *Environment {
	if slots == nil {
		slots = map[string]int{}
	}
	return &Environment{
		histories: make(map[string]History),
		slots:     slots,
		resolving: make(map[expr.Ref]bool),
	}
}

// Resolve implements expr.Scope by evaluating the stored expression of the
// requested version. A version whose evaluation leads back to itself is
// indeterminate.
func (e *Environment) Resolve(name string, version int) (expr.Value, bool) {
	h, ok := e.histories[name]
	if !ok || version < 0 || version >= len(h) {
		return nil, false
	}
	ref := expr.At(name, version)
	if e.resolving[ref] {
		return nil, false
	}
	e.resolving[ref] = true
	defer delete(e.resolving, ref)
	return h[version].Expr.Evaluate(e)
}

// History returns the recorded versions of name. The slice must not be
// modified by the caller.
func (e *Environment) History(name string) (History, bool) {
	h, ok := e.histories[name]
	return h, ok
}

// Len returns how many versions of name have been recorded.
func (e *Environment) Len(name string) int {
	return len(e.histories[name])
}

// Has reports whether name has at least one version.
func (e *Environment) Has(name string) bool {
	_, ok := e.histories[name]
	return ok
}

// Variables returns the names with a history, sorted.
func (e *Environment) Variables() []string {
	names := make([]string, 0, len(e.histories))
	for name := range e.histories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DeclaredSlots returns the declared version count for name.
func (e *Environment) DeclaredSlots(name string) (int, bool) {
	n, ok := e.slots[name]
	return n, ok
}

// Ledger returns the executed-statement ledger. Entries must not be modified.
func (e *Environment) Ledger() []LedgerEntry {
	return e.ledger
}

func (e *Environment) lastEntry() *LedgerEntry {
	if len(e.ledger) == 0 {
		return nil
	}
	return &e.ledger[len(e.ledger)-1]
}

// record appends the next version of name, produced by the statement about
// to be appended to the ledger.
func (e *Environment) record(name string, x expr.Expression) {
	e.histories[name] = append(e.histories[name], Version{Expr: x, Statement: len(e.ledger)})
}

// commit snapshots every variable's latest version into entry and appends it.
func (e *Environment) commit(entry *LedgerEntry) {
	entry.Versions = make(map[string]int, len(e.histories))
	for name, h := range e.histories {
		entry.Versions[name] = len(h) - 1
	}
	e.ledger = append(e.ledger, *entry)
}

// ForkPoint locates the statement a fork rewound to.
type ForkPoint struct {
	// Statement is the ledger index at which the rewritten version was
	// produced; the new universe resumes at Statement+1.
	Statement int
	// Line is the source line of that statement.
	Line int
}

// Fork returns the alternate timeline in which version `version` of `name`
// had always been `value`. ok is false when the variable has no history or
// version is negative. Forking to a version that has not been recorded yet
// is a contract violation.
func (e *Environment) Fork(name string, version int, value expr.Value) (*Environment, ForkPoint, bool) {
	h, ok := e.histories[name]
	if !ok || version < 0 {
		return nil, ForkPoint{}, false
	}
	if version >= len(h) {
		violate("", 0, "fork of %s@%d: only %d versions recorded", name, version, len(h))
	}
	k := h[version].Statement
	if k >= len(e.ledger) {
		violate("", 0, "fork of %s@%d: produced at statement %d beyond ledger of %d", name, version, k, len(e.ledger))
	}
	at := e.ledger[k]

	child := &Environment{
		histories: make(map[string]History, len(at.Versions)),
		ledger:    make([]LedgerEntry, k+1),
		slots:     maps.Clone(e.slots),
		resolving: make(map[expr.Ref]bool),
	}
	for i := 0; i <= k; i++ {
		child.ledger[i] = e.ledger[i].clone()
	}
	for v, hist := range e.histories {
		last, present := at.Versions[v]
		if !present {
			continue
		}
		child.histories[v] = hist.clone(last + 1)
	}
	target := child.histories[name]
	target[version] = Version{Expr: value, Statement: target[version].Statement}
	return child, ForkPoint{Statement: k, Line: at.Line}, true
}
