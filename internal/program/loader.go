// Package program loads statement streams from program files.
//
// A program file is YAML (JSON is accepted too, being a subset):
//
//	engine: ">= 0.1.0"
//	slots: { x: 2, out: 1 }
//	statements:
//	  - { line: 1, kind: mutate,   target: x@0, value: 1 }
//	  - { line: 2, kind: prophesy, target: x@1, value: y@0 }
//	  - { kind: revise, target: z@0, value: { op: add, args: [z@0, 1] } }
//
// Value nodes: integer and boolean scalars are literals, strings containing
// '@' are variable references, `~` or `undefined` is the undefined literal,
// other strings are atoms, sequences are tuples and {op, args} mappings apply
// a registered operator.
package program

import (
	"bytes"
	"errors"
	"fmt"
	"sort"
	"strings"

	semver "github.com/Masterminds/semver/v3"
	"gopkg.in/yaml.v3"

	"github.com/tva-lang/tva/internal/engine"
	"github.com/tva-lang/tva/internal/expr"
	"github.com/tva-lang/tva/internal/runtime/vfs"
)

var (
	ErrUnknownKind     = errors.New("unknown statement kind")
	ErrBadTarget       = errors.New("invalid statement target")
	ErrBadValue        = errors.New("invalid value")
	ErrEngineVersion   = errors.New("engine version not supported")
	ErrEmptyStatements = errors.New("program has no statements")
)

// File is a decoded program together with where it came from.
type File struct {
	Path    string
	Engine  string
	Program *engine.Program
	// Derived reports whether slot counts were computed rather than declared.
	Derived bool
}

type fileDisk struct {
	Engine     string         `yaml:"engine"`
	Slots      map[string]int `yaml:"slots"`
	Statements []stmtDisk     `yaml:"statements"`
}

type stmtDisk struct {
	Line   int       `yaml:"line"`
	Kind   string    `yaml:"kind"`
	Target string    `yaml:"target"`
	Value  yaml.Node `yaml:"value"`
}

// Load reads and decodes a program file from fsys and checks it against
// the running engine version.
func Load(fsys vfs.FileSystem, path, engineVersion string) (*File, error) {
	if path == "" {
		return nil, fmt.Errorf("program: empty path")
	}
	data, err := fsys.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("program: read %s: %w", path, err)
	}
	f, err := Decode(data, engineVersion)
	if err != nil {
		return nil, fmt.Errorf("program: %s: %w", path, err)
	}
	f.Path = path
	return f, nil
}

// Decode parses program file contents.
func Decode(data []byte, engineVersion string) (*File, error) {
	var raw fileDisk
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}
	if err := checkEngine(raw.Engine, engineVersion); err != nil {
		return nil, err
	}
	if len(raw.Statements) == 0 {
		return nil, ErrEmptyStatements
	}

	prog := &engine.Program{Statements: make([]engine.Statement, 0, len(raw.Statements))}
	for i, s := range raw.Statements {
		line := s.Line
		if line == 0 {
			line = i + 1
		}
		stmt, err := s.toStatement(line)
		if err != nil {
			return nil, fmt.Errorf("statement %d (line %d): %w", i+1, line, err)
		}
		prog.Statements = append(prog.Statements, stmt)
	}

	f := &File{Engine: raw.Engine, Program: prog}
	if len(raw.Slots) > 0 {
		prog.DeclaredSlots = raw.Slots
	} else {
		prog.DeclaredSlots = DeriveSlots(prog.Statements)
		f.Derived = true
	}
	return f, nil
}

func checkEngine(constraint, version string) error {
	if strings.TrimSpace(constraint) == "" {
		return nil
	}
	c, err := semver.NewConstraint(constraint)
	if err != nil {
		return fmt.Errorf("engine constraint %q: %w", constraint, err)
	}
	v, err := semver.NewVersion(version)
	if err != nil {
		return fmt.Errorf("engine version %q: %w", version, err)
	}
	if !c.Check(v) {
		return fmt.Errorf("%w: program requires %s, running %s", ErrEngineVersion, constraint, v)
	}
	return nil
}

func (s stmtDisk) toStatement(line int) (engine.Statement, error) {
	ref, err := expr.ParseRef(s.Target)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadTarget, err)
	}
	if s.Value.Kind == 0 {
		return nil, fmt.Errorf("%w: missing value", ErrBadValue)
	}
	right, err := decodeExpr(&s.Value)
	if err != nil {
		return nil, err
	}
	switch strings.ToLower(strings.TrimSpace(s.Kind)) {
	case "mutate", "mutation", ":=":
		return engine.Mutate(ref, right, line), nil
	case "revise", "revision", "::=":
		return engine.Revise(ref, right, line), nil
	case "prophesy", "prophecy", ":~":
		return engine.Prophesy(ref, right, line), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownKind, s.Kind)
}

type opDisk struct {
	Op   string      `yaml:"op"`
	Args []yaml.Node `yaml:"args"`
}

func decodeExpr(n *yaml.Node) (expr.Expression, error) {
	switch n.Kind {
	case yaml.DocumentNode:
		if len(n.Content) == 1 {
			return decodeExpr(n.Content[0])
		}
	case yaml.AliasNode:
		return decodeExpr(n.Alias)
	case yaml.ScalarNode:
		return decodeScalar(n)
	case yaml.SequenceNode:
		elems := make([]expr.Expression, 0, len(n.Content))
		for _, c := range n.Content {
			e, err := decodeExpr(c)
			if err != nil {
				return nil, err
			}
			elems = append(elems, e)
		}
		return expr.TupleExpr{Elems: elems}, nil
	case yaml.MappingNode:
		var op opDisk
		if err := n.Decode(&op); err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrBadValue, n.Line, err)
		}
		return decodeOp(op, n.Line)
	}
	return nil, fmt.Errorf("%w: line %d: unsupported node", ErrBadValue, n.Line)
}

func decodeOp(op opDisk, line int) (expr.Expression, error) {
	if !expr.HasOperator(op.Op, len(op.Args)) {
		return nil, fmt.Errorf("%w: line %d: unknown operator %q with %d operands", ErrBadValue, line, op.Op, len(op.Args))
	}
	args := make([]expr.Expression, len(op.Args))
	for i := range op.Args {
		e, err := decodeExpr(&op.Args[i])
		if err != nil {
			return nil, err
		}
		args[i] = e
	}
	if len(args) == 1 {
		return expr.Unary{Op: op.Op, Operand: args[0]}, nil
	}
	return expr.Binary{Op: op.Op, Left: args[0], Right: args[1]}, nil
}

func decodeScalar(n *yaml.Node) (expr.Expression, error) {
	switch n.ShortTag() {
	case "!!int":
		var i int64
		if err := n.Decode(&i); err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrBadValue, n.Line, err)
		}
		return expr.Int(i), nil
	case "!!bool":
		var b bool
		if err := n.Decode(&b); err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrBadValue, n.Line, err)
		}
		return expr.Bool(b), nil
	case "!!null":
		return expr.Undefined{}, nil
	case "!!str":
		text := strings.TrimSpace(n.Value)
		switch {
		case text == "undefined":
			return expr.Undefined{}, nil
		case strings.Contains(text, "@"):
			ref, err := expr.ParseRef(text)
			if err != nil {
				return nil, fmt.Errorf("%w: line %d: %v", ErrBadValue, n.Line, err)
			}
			return ref, nil
		case text == "":
			return nil, fmt.Errorf("%w: line %d: empty atom", ErrBadValue, n.Line)
		}
		return expr.Atom(strings.TrimPrefix(text, ":")), nil
	}
	return nil, fmt.Errorf("%w: line %d: unsupported scalar %s", ErrBadValue, n.Line, n.ShortTag())
}

// DeriveSlots computes each variable's version count from its mutations.
func DeriveSlots(stmts []engine.Statement) map[string]int {
	slots := make(map[string]int)
	for _, s := range stmts {
		m, ok := s.(engine.Mutation)
		if !ok {
			continue
		}
		if n := m.Left.Index + 1; n > slots[m.Left.Name] {
			slots[m.Left.Name] = n
		}
	}
	return slots
}

// Summary describes a loaded program in a few lines.
func (f *File) Summary() string {
	var b strings.Builder
	counts := map[string]int{}
	for _, s := range f.Program.Statements {
		switch s.(type) {
		case engine.Mutation:
			counts["mutations"]++
		case engine.Revision:
			counts["revisions"]++
		case engine.Prophecy:
			counts["prophecies"]++
		}
	}
	fmt.Fprintf(&b, "%d statements: %d mutations, %d revisions, %d prophecies\n",
		len(f.Program.Statements), counts["mutations"], counts["revisions"], counts["prophecies"])
	names := make([]string, 0, len(f.Program.DeclaredSlots))
	for name := range f.Program.DeclaredSlots {
		names = append(names, name)
	}
	sort.Strings(names)
	source := "declared"
	if f.Derived {
		source = "derived"
	}
	for _, name := range names {
		fmt.Fprintf(&b, "  %s: %d versions (%s)\n", name, f.Program.DeclaredSlots[name], source)
	}
	return b.String()
}
