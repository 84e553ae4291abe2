package engine

import "fmt"

// ContractViolation reports a malformed statement stream: out-of-order
// mutations, revisions of future versions, prophecies about settled versions,
// or forks into the future. These are bugs in whatever produced the
// statements, never an outcome of running a well-formed program.
type ContractViolation struct {
	Universe string
	Line     int
	Msg      string
}

func (e *ContractViolation) Error() string {
	if e.Universe == "" {
		return fmt.Sprintf("contract violation at line %d: %s", e.Line, e.Msg)
	}
	return fmt.Sprintf("contract violation in universe %s at line %d: %s", e.Universe, e.Line, e.Msg)
}

func violate(universe string, line int, format string, args ...interface{}) {
	panic(&ContractViolation{Universe: universe, Line: line, Msg: fmt.Sprintf(format, args...)})
}
