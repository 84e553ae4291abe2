package program

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/tva-lang/tva/internal/engine"
	"github.com/tva-lang/tva/internal/expr"
	"github.com/tva-lang/tva/internal/runtime/vfs"
)

const crossDependency = `
engine: ">= 0.1.0, < 1.0.0"
statements:
  - { line: 1,  kind: mutate,   target: x@0, value: 1 }
  - { line: 2,  kind: prophesy, target: x@1, value: y@0 }
  - { line: 8,  kind: mutate,   target: z@0, value: 2 }
  - { line: 13, kind: mutate,   target: x@1, value: 2 }
  - { line: 14, kind: mutate,   target: y@0, value: z@0 }
  - { line: 15, kind: revise,   target: z@0, value: 3 }
  - { line: 17, kind: mutate,   target: out@0, value: z@0 }
  - { line: 18, kind: mutate,   target: out@1, value: z@1 }
`

func TestLoad_CrossDependency(t *testing.T) {
	fsys := vfs.NewMem()
	_ = fsys.WriteFile("/progs/cross.yaml", []byte(crossDependency), 0o644)
	f, err := Load(fsys, "/progs/cross.yaml", "0.1.0")
	if err != nil {
		t.Fatal(err)
	}
	stmts := f.Program.Statements
	if len(stmts) != 8 {
		t.Fatalf("statements = %d", len(stmts))
	}
	if p, ok := stmts[1].(engine.Prophecy); !ok || p.Left != expr.At("x", 1) || p.Right != expr.At("y", 0) || p.Line != 2 {
		t.Fatalf("stmt 1 = %#v", stmts[1])
	}
	if r, ok := stmts[5].(engine.Revision); !ok || r.Right != expr.Int(3) {
		t.Fatalf("stmt 5 = %#v", stmts[5])
	}
	want := map[string]int{"x": 2, "z": 1, "y": 1, "out": 2}
	if !f.Derived || !reflect.DeepEqual(f.Program.DeclaredSlots, want) {
		t.Fatalf("slots = %v derived=%v", f.Program.DeclaredSlots, f.Derived)
	}

	rep, err := engine.NewHarness(engine.DefaultOptions(), nil).Run(context.Background(), f.Program)
	if err != nil {
		t.Fatal(err)
	}
	if rep.Started != 2 || len(rep.Outputs) != 0 {
		t.Fatalf("report = %+v", rep)
	}
}

func TestDecode_Values(t *testing.T) {
	src := `
slots: { out: 4 }
statements:
  - kind: mutate
    target: out@0
    value: [1, true, done]
  - kind: mutate
    target: out@1
    value: { op: add, args: [out@0, [7]] }
  - kind: mutate
    target: out@2
    value: { op: len, args: [out@1] }
  - kind: mutate
    target: out@3
    value: ~
`
	f, err := Decode([]byte(src), "0.1.0")
	if err != nil {
		t.Fatal(err)
	}
	if f.Derived || f.Program.DeclaredSlots["out"] != 4 {
		t.Fatalf("slots = %v", f.Program.DeclaredSlots)
	}
	if f.Program.Statements[2].SourceLine() != 3 {
		t.Fatalf("default line = %d", f.Program.Statements[2].SourceLine())
	}
	got := make([]string, 0, 4)
	for _, s := range f.Program.Statements {
		got = append(got, s.String())
	}
	want := []string{
		"out@0 := (1, true, :done)",
		"out@1 := (out@0 add (7))",
		"out@2 := len out@1",
		"out@3 := undefined",
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %q", got)
	}
}

func TestDecode_Errors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want error
	}{
		{"unknown kind", `statements: [{kind: assign, target: x@0, value: 1}]`, ErrUnknownKind},
		{"bad target", `statements: [{kind: mutate, target: x, value: 1}]`, ErrBadTarget},
		{"missing value", `statements: [{kind: mutate, target: x@0}]`, ErrBadValue},
		{"unknown operator", `statements: [{kind: mutate, target: x@0, value: {op: pow, args: [1, 2]}}]`, ErrBadValue},
		{"float", `statements: [{kind: mutate, target: x@0, value: 1.5}]`, ErrBadValue},
		{"engine too old", "engine: \">= 2.0.0\"\nstatements: [{kind: mutate, target: x@0, value: 1}]", ErrEngineVersion},
		{"empty", `statements: []`, ErrEmptyStatements},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.src), "0.1.0")
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestDecode_UnknownField(t *testing.T) {
	_, err := Decode([]byte(`statments: []`), "0.1.0")
	if err == nil || !strings.Contains(err.Error(), "parse") {
		t.Fatalf("err = %v", err)
	}
}

func TestDecode_JSON(t *testing.T) {
	src := `{"statements": [
		{"kind": "mutate", "target": "x@0", "value": 5},
		{"kind": "mutate", "target": "out@0", "value": {"op": "neg", "args": ["x@0"]}}
	]}`
	f, err := Decode([]byte(src), "0.1.0")
	if err != nil {
		t.Fatal(err)
	}
	rep, err := engine.NewHarness(engine.DefaultOptions(), nil).Run(context.Background(), f.Program)
	if err != nil {
		t.Fatal(err)
	}
	if len(rep.Outputs) != 1 || !reflect.DeepEqual(rep.Outputs[0].Values, []string{"-5"}) {
		t.Fatalf("outputs = %+v", rep.Outputs)
	}
}

func TestLoad_Missing(t *testing.T) {
	if _, err := Load(vfs.NewMem(), "nope.yaml", "0.1.0"); err == nil {
		t.Fatal("expected error")
	}
}

func TestSummary(t *testing.T) {
	f, err := Decode([]byte(crossDependency), "0.1.0")
	if err != nil {
		t.Fatal(err)
	}
	s := f.Summary()
	if !strings.HasPrefix(s, "8 statements: 6 mutations, 1 revisions, 1 prophecies\n") {
		t.Fatalf("summary = %q", s)
	}
	if !strings.Contains(s, "  out: 2 versions (derived)") {
		t.Fatalf("summary = %q", s)
	}
}
