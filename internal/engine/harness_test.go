package engine

import (
	"bytes"
	"context"
	"errors"
	"reflect"
	"sort"
	"strings"
	"testing"

	"github.com/tva-lang/tva/internal/cli"
	"github.com/tva-lang/tva/internal/expr"
)

func at(name string, i int) expr.Ref { return expr.At(name, i) }

func program(stmts ...Statement) *Program {
	return &Program{Statements: stmts}
}

func runProgram(t *testing.T, opts Options, prog *Program) (*Report, string) {
	t.Helper()
	var buf bytes.Buffer
	h := NewHarness(opts, cli.NewLoggerTo(&buf, opts.Verbose, false))
	rep, err := h.Run(context.Background(), prog)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	return rep, buf.String()
}

func outputsByID(rep *Report) map[string][]string {
	m := make(map[string][]string, len(rep.Outputs))
	for _, o := range rep.Outputs {
		m[o.ID] = o.Values
	}
	return m
}

func TestRun_DeterministicWithoutRevisions(t *testing.T) {
	prog := program(
		Mutate(at("x", 0), expr.Int(1), 1),
		Mutate(at("x", 1), expr.Binary{Op: "add", Left: at("x", 0), Right: expr.Int(4)}, 2),
		Mutate(at("out", 0), at("x", 1), 3),
		Mutate(at("out", 1), expr.TupleExpr{Elems: []expr.Expression{at("x", 0), expr.Atom("done")}}, 4),
	)
	first, _ := runProgram(t, DefaultOptions(), prog)
	second, _ := runProgram(t, DefaultOptions(), prog)
	if !reflect.DeepEqual(first.Outputs, second.Outputs) {
		t.Fatalf("runs differ: %v vs %v", first.Outputs, second.Outputs)
	}
	want := []UniverseOutput{{ID: RootUniverse, Values: []string{"5", "(1, :done)"}}}
	if !reflect.DeepEqual(first.Outputs, want) {
		t.Fatalf("outputs = %v", first.Outputs)
	}
	if first.Started != 1 || first.Failed != 0 {
		t.Fatalf("report = %+v", first)
	}
}

func TestRun_ForwardReferenceResolvesLater(t *testing.T) {
	prog := program(
		Mutate(at("out", 0), at("y", 0), 1),
		Mutate(at("y", 0), expr.Int(4), 2),
	)
	rep, _ := runProgram(t, DefaultOptions(), prog)
	if got := outputsByID(rep)[RootUniverse]; !reflect.DeepEqual(got, []string{"4"}) {
		t.Fatalf("out = %v", got)
	}
}

func TestRun_NoOutputChannelIsNotFailure(t *testing.T) {
	rep, _ := runProgram(t, DefaultOptions(), program(Mutate(at("x", 0), expr.Int(1), 1)))
	if len(rep.Outputs) != 0 || rep.Failed != 0 {
		t.Fatalf("report = %+v", rep)
	}
}

func TestRun_IndeterminateOutputDiscardsUniverse(t *testing.T) {
	prog := program(
		Mutate(at("out", 0), expr.Int(1), 1),
		Mutate(at("out", 1), at("never", 0), 2),
	)
	opts := DefaultOptions()
	opts.Verbose = true
	rep, log := runProgram(t, opts, prog)
	if len(rep.Outputs) != 0 || rep.Failed != 1 {
		t.Fatalf("report = %+v", rep)
	}
	if !strings.Contains(log, "Indeterminate output at line 2") {
		t.Fatalf("log = %q", log)
	}
}

func TestRun_UndefinedOutputDiscardsUniverse(t *testing.T) {
	prog := program(Mutate(at("out", 0), expr.Binary{Op: "div", Left: expr.Int(1), Right: expr.Int(0)}, 1))
	rep, _ := runProgram(t, DefaultOptions(), prog)
	if len(rep.Outputs) != 0 || rep.Failed != 1 {
		t.Fatalf("report = %+v", rep)
	}
}

func TestRun_ProphecySatisfied(t *testing.T) {
	prog := program(
		Prophesy(at("x", 0), expr.Binary{Op: "mul", Left: expr.Int(3), Right: expr.Int(2)}, 1),
		Mutate(at("x", 0), expr.Int(6), 2),
		Mutate(at("out", 0), at("x", 0), 3),
	)
	rep, _ := runProgram(t, DefaultOptions(), prog)
	if got := outputsByID(rep)[RootUniverse]; !reflect.DeepEqual(got, []string{"6"}) {
		t.Fatalf("out = %v (report %+v)", got, rep)
	}
}

func TestRun_ProphecyViolated(t *testing.T) {
	prog := program(
		Prophesy(at("x", 0), expr.Int(5), 1),
		Mutate(at("x", 0), expr.Int(6), 2),
		Mutate(at("out", 0), at("x", 0), 3),
	)
	opts := DefaultOptions()
	opts.Verbose = true
	rep, log := runProgram(t, opts, prog)
	if len(rep.Outputs) != 0 || rep.Failed != 1 {
		t.Fatalf("report = %+v", rep)
	}
	if !strings.Contains(log, "dbg(u:root,l:1): Prophecy violated: (x@0 = 6) ≠ 5") {
		t.Fatalf("log = %q", log)
	}
}

func TestRun_ProphecyCheckedAtFinalReconciliation(t *testing.T) {
	prog := program(
		Mutate(at("out", 0), expr.Int(1), 1),
		Prophesy(at("x", 0), expr.Int(5), 2),
		Mutate(at("x", 0), expr.Int(6), 3),
	)
	rep, _ := runProgram(t, DefaultOptions(), prog)
	if len(rep.Outputs) != 0 || rep.Failed != 1 {
		t.Fatalf("report = %+v", rep)
	}
}

func TestRun_UnresolvedProphecyDroppedAtEnd(t *testing.T) {
	prog := program(
		Prophesy(at("x", 3), expr.Int(5), 1),
		Mutate(at("out", 0), expr.Int(1), 2),
	)
	rep, _ := runProgram(t, DefaultOptions(), prog)
	if got := outputsByID(rep)[RootUniverse]; !reflect.DeepEqual(got, []string{"1"}) {
		t.Fatalf("report = %+v", rep)
	}
}

func TestRun_RevisionForksOneChildAndKeepsParent(t *testing.T) {
	prog := program(
		Mutate(at("x", 0), expr.Int(1), 1),
		Mutate(at("x", 1), expr.Int(2), 2),
		Revise(at("x", 1), expr.Int(3), 3),
		Mutate(at("out", 0), at("x", 1), 4),
	)
	opts := DefaultOptions()
	opts.SpawnCeiling = 2
	rep, _ := runProgram(t, opts, prog)
	got := outputsByID(rep)
	want := map[string][]string{
		"root":   {"2"},
		"root-0": {"3"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("outputs = %v", got)
	}
	if rep.Started != 2 {
		t.Fatalf("started = %d", rep.Started)
	}
}

func TestRun_SpawnCeiling(t *testing.T) {
	// Every child replays the revision, so the chain only stops at the ceiling.
	prog := program(
		Mutate(at("x", 0), expr.Int(1), 1),
		Mutate(at("x", 1), expr.Int(2), 2),
		Revise(at("x", 1), expr.Int(3), 3),
		Mutate(at("out", 0), at("x", 1), 4),
	)
	opts := DefaultOptions()
	opts.SpawnCeiling = 5
	rep, log := runProgram(t, opts, prog)
	if rep.Started != 5 {
		t.Fatalf("started = %d, want 5", rep.Started)
	}
	ids := make([]string, 0, len(rep.Outputs))
	for _, o := range rep.Outputs {
		ids = append(ids, o.ID)
	}
	sort.Strings(ids)
	want := []string{"root", "root-0", "root-0-0", "root-0-0-0", "root-0-0-0-0"}
	if !reflect.DeepEqual(ids, want) {
		t.Fatalf("ids = %v", ids)
	}
	if n := strings.Count(log, "spawn limit reached"); n != 1 {
		t.Fatalf("spawn limit warnings = %d, log %q", n, log)
	}
	// the universe hitting the ceiling still produced its own output
	if got := outputsByID(rep)["root-0-0-0-0"]; !reflect.DeepEqual(got, []string{"3"}) {
		t.Fatalf("last universe = %v", got)
	}
}

func TestRun_DeferredRevisionForksOnceKnown(t *testing.T) {
	prog := program(
		Mutate(at("x", 0), expr.Int(1), 1),
		Revise(at("x", 0), at("y", 0), 2),
		Mutate(at("y", 0), expr.Int(7), 3),
		Mutate(at("out", 0), at("x", 0), 4),
	)
	opts := DefaultOptions()
	opts.SpawnCeiling = 3
	rep, _ := runProgram(t, opts, prog)
	want := map[string][]string{
		"root":     {"1"},
		"root-0":   {"7"},
		"root-0-0": {"7"},
	}
	if got := outputsByID(rep); !reflect.DeepEqual(got, want) {
		t.Fatalf("outputs = %v", got)
	}
}

func TestRun_ForkViolatingCarriedProphecyDies(t *testing.T) {
	// x@0 := 1; x@1 :~ 2; x@1 := 2; x@1 ::= 3
	prog := program(
		Mutate(at("x", 0), expr.Int(1), 1),
		Prophesy(at("x", 1), expr.Int(2), 2),
		Mutate(at("x", 1), expr.Int(2), 3),
		Revise(at("x", 1), expr.Int(3), 4),
	)
	opts := DefaultOptions()
	opts.Verbose = true
	rep, log := runProgram(t, opts, prog)
	if rep.Started != 2 {
		t.Fatalf("started = %d", rep.Started)
	}
	if len(rep.Outputs) != 0 {
		t.Fatalf("outputs = %v", rep.Outputs)
	}
	// the root satisfied the prophecy; only the child sees x@1 = 3
	if rep.Failed != 1 {
		t.Fatalf("failed = %d", rep.Failed)
	}
	if !strings.Contains(log, "dbg(u:root,l:4): Forking to root-0 at line 3, x@1 = 3") {
		t.Fatalf("log = %q", log)
	}
	if !strings.Contains(log, "dbg(u:root-0,l:2): Prophecy violated: (x@1 = 3) ≠ 2") {
		t.Fatalf("log = %q", log)
	}
}

func TestRun_CrossDependency(t *testing.T) {
	prog := program(
		Mutate(at("x", 0), expr.Int(1), 1),
		Prophesy(at("x", 1), at("y", 0), 2),
		Mutate(at("z", 0), expr.Int(2), 8),
		Mutate(at("x", 1), expr.Int(2), 13),
		Mutate(at("y", 0), at("z", 0), 14),
		Revise(at("z", 0), expr.Int(3), 15),
		Mutate(at("out", 0), at("z", 0), 17),
		Mutate(at("out", 1), at("z", 1), 18),
	)
	opts := DefaultOptions()
	opts.Verbose = true
	rep, log := runProgram(t, opts, prog)
	if rep.Started != 2 {
		t.Fatalf("started = %d", rep.Started)
	}
	// root: prophecy holds (x@1 = y@0 = 2) but out@1 = z@1 never exists.
	// root-0: z@0 = 3 makes y@0 = 3, contradicting x@1 = 2.
	if len(rep.Outputs) != 0 || rep.Failed != 2 {
		t.Fatalf("report = %+v\n%s", rep, log)
	}
	if !strings.Contains(log, "Forking to root-0 at line 8, z@0 = 3") {
		t.Fatalf("log = %q", log)
	}
	if !strings.Contains(log, "universe root failed") {
		t.Fatalf("log = %q", log)
	}
}

func TestRun_DebugChannel(t *testing.T) {
	prog := program(
		Mutate(at("dbg", 0), expr.Int(1), 1),
		Mutate(at("dbg", 1), at("y", 0), 2),
		Mutate(at("y", 0), expr.Binary{Op: "add", Left: expr.Int(1), Right: expr.Int(2)}, 3),
		Mutate(at("dbg", 2), at("y", 0), 4),
	)
	rep, log := runProgram(t, DefaultOptions(), prog)
	if len(rep.Outputs) != 0 {
		t.Fatalf("debug channel leaked into outputs: %v", rep.Outputs)
	}
	lines := strings.Split(strings.TrimSpace(log), "\n")
	want := []string{"1", "y@0 = unknown", "now known: y@0 = 3", "y@0 = 3"}
	if !reflect.DeepEqual(lines, want) {
		t.Fatalf("lines = %q", lines)
	}
}

func TestRun_CustomChannels(t *testing.T) {
	prog := program(
		Mutate(at("result", 0), expr.Int(1), 1),
		Mutate(at("out", 0), expr.Int(2), 2),
	)
	opts := DefaultOptions()
	opts.OutputChannel = "result"
	rep, _ := runProgram(t, opts, prog)
	if got := outputsByID(rep)[RootUniverse]; !reflect.DeepEqual(got, []string{"1"}) {
		t.Fatalf("out = %v", got)
	}
}

func TestRun_ContractViolations(t *testing.T) {
	tests := []struct {
		name  string
		stmts []Statement
	}{
		{"mutation skips a version", []Statement{
			Mutate(at("x", 0), expr.Int(1), 1),
			Mutate(at("x", 2), expr.Int(1), 2),
		}},
		{"mutation restarts a variable", []Statement{
			Mutate(at("x", 0), expr.Int(1), 1),
			Mutate(at("x", 0), expr.Int(1), 2),
		}},
		{"mutation without history", []Statement{
			Mutate(at("x", 1), expr.Int(1), 1),
		}},
		{"revision of the future", []Statement{
			Mutate(at("x", 0), expr.Int(1), 1),
			Revise(at("x", 1), expr.Int(1), 2),
		}},
		{"revision of unknown variable", []Statement{
			Revise(at("x", 0), expr.Int(1), 1),
		}},
		{"prophecy about the past", []Statement{
			Mutate(at("x", 0), expr.Int(1), 1),
			Prophesy(at("x", 0), expr.Int(1), 2),
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHarness(DefaultOptions(), nil)
			_, err := h.Run(context.Background(), &Program{Statements: tt.stmts})
			var cv *ContractViolation
			if !errors.As(err, &cv) {
				t.Fatalf("expected contract violation, got %v", err)
			}
			if cv.Universe != RootUniverse || cv.Line != len(tt.stmts) {
				t.Fatalf("violation = %+v", cv)
			}
		})
	}
}

func TestRun_SingleWorkerDoesNotDeadlock(t *testing.T) {
	prog := program(
		Mutate(at("x", 0), expr.Int(1), 1),
		Revise(at("x", 0), expr.Int(2), 2),
		Revise(at("x", 0), expr.Int(3), 3),
		Mutate(at("out", 0), at("x", 0), 4),
	)
	opts := DefaultOptions()
	opts.Workers = 1
	opts.SpawnCeiling = 40
	rep, _ := runProgram(t, opts, prog)
	if rep.Started != 40 {
		t.Fatalf("started = %d", rep.Started)
	}
	if len(rep.Outputs) != 40 {
		t.Fatalf("outputs = %d", len(rep.Outputs))
	}
}

func TestRun_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	h := NewHarness(DefaultOptions(), nil)
	_, err := h.Run(ctx, program(Mutate(at("x", 0), expr.Int(1), 1)))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v", err)
	}
}

func TestRun_NilProgram(t *testing.T) {
	if _, err := NewHarness(DefaultOptions(), nil).Run(context.Background(), nil); err == nil {
		t.Fatal("expected error")
	}
}

func TestRun_ForkBeforeBigBangSpawnsNothing(t *testing.T) {
	prog := program(
		Mutate(at("x", 0), expr.Int(1), 1),
		Revise(at("x", -1), expr.Int(5), 2),
		Revise(at("x", -1), at("y", 0), 3),
		Mutate(at("y", 0), expr.Int(2), 4),
		Mutate(at("out", 0), at("x", 0), 5),
	)
	opts := DefaultOptions()
	opts.Verbose = true
	rep, log := runProgram(t, opts, prog)
	if rep.Started != 1 || rep.Failed != 0 {
		t.Fatalf("report = %+v", rep)
	}
	if got := outputsByID(rep)[RootUniverse]; !reflect.DeepEqual(got, []string{"1"}) {
		t.Fatalf("outputs = %v", rep.Outputs)
	}
	for _, want := range []string{
		"dbg(u:root,l:2): Fork happens before big-bang",
		"dbg(u:root,l:3): Fork happens before big-bang",
	} {
		if !strings.Contains(log, want) {
			t.Fatalf("log = %q, missing %q", log, want)
		}
	}
}

func TestRun_DebugLogTracesUniverses(t *testing.T) {
	prog := program(
		Mutate(at("x", 0), expr.Int(1), 1),
		Revise(at("x", 0), expr.Int(2), 2),
		Mutate(at("out", 0), at("x", 0), 3),
	)
	opts := DefaultOptions()
	opts.SpawnCeiling = 2
	var buf bytes.Buffer
	h := NewHarness(opts, cli.NewLoggerTo(&buf, false, true))
	if _, err := h.Run(context.Background(), prog); err != nil {
		t.Fatal(err)
	}
	log := buf.String()
	for _, want := range []string{
		"universe root started at statement 0",
		"universe root finished: output",
		"universe root-0 started at statement 1",
		"universe root-0 finished: output",
	} {
		if !strings.Contains(log, want) {
			t.Fatalf("log = %q, missing %q", log, want)
		}
	}
}
