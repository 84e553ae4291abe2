package engine

import (
	"context"
	"errors"
	"runtime"
	"sync/atomic"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/tva-lang/tva/internal/cli"
	"github.com/tva-lang/tva/internal/runtime/concurrency"
)

// RootUniverse is the identifier of the universe every run starts with.
const RootUniverse = "root"

// Options configures a Harness.
type Options struct {
	// Verbose enables the fork/prophecy/output trace on the diagnostic stream.
	Verbose bool
	// OutputChannel names the variable whose versions become a universe's output.
	OutputChannel string
	// DebugChannel names the variable whose assignments are reported as diagnostics.
	DebugChannel string
	// SpawnCeiling caps the number of universes ever started in one run,
	// the root included.
	SpawnCeiling int
	// Workers bounds how many universes execute at the same time.
	Workers int
}

// DefaultOptions returns the stock configuration.
func DefaultOptions() Options {
	return Options{
		OutputChannel: "out",
		DebugChannel:  "dbg",
		SpawnCeiling:  10024,
		Workers:       runtime.GOMAXPROCS(0),
	}
}

// UniverseOutput is the declared output of one surviving universe.
type UniverseOutput struct {
	ID     string
	Values []string
}

// Report summarizes a finished run.
type Report struct {
	// Outputs holds every surviving universe's output in completion order.
	Outputs []UniverseOutput
	// Started counts every universe started, the root included.
	Started int
	// Failed counts universes that died on a violated prophecy or an
	// indeterminate output.
	Failed int
}

// Harness runs a program's root universe and every universe forked from it.
type Harness struct {
	opts   Options
	log    *cli.Logger
	tracer trace.Tracer
}

// NewHarness creates a harness. A nil logger discards diagnostics.
func NewHarness(opts Options, log *cli.Logger) *Harness {
	def := DefaultOptions()
	if opts.OutputChannel == "" {
		opts.OutputChannel = def.OutputChannel
	}
	if opts.DebugChannel == "" {
		opts.DebugChannel = def.DebugChannel
	}
	if opts.SpawnCeiling <= 0 {
		opts.SpawnCeiling = def.SpawnCeiling
	}
	if opts.Workers <= 0 {
		opts.Workers = def.Workers
	}
	if log == nil {
		log = cli.NewLoggerTo(nil, false, false)
	}
	return &Harness{
		opts:   opts,
		log:    log,
		tracer: otel.Tracer("github.com/tva-lang/tva/internal/engine"),
	}
}

// Options returns the effective configuration.
func (h *Harness) Options() Options { return h.opts }

// Run executes prog starting from a fresh root universe and waits for every
// universe spawned along the way. The only error outcomes are a contract
// violation in the statement stream and cancellation of ctx; universes that
// fail softly are reflected in the report.
func (h *Harness) Run(ctx context.Context, prog *Program) (*Report, error) {
	if prog == nil {
		return nil, errors.New("engine: nil program")
	}
	g, gctx := errgroup.WithContext(ctx)
	r := &run{
		Harness: h,
		program: prog,
		group:   g,
		ctx:     gctx,
		budget:  concurrency.NewSpawnBudget(int64(h.opts.SpawnCeiling), 1),
		results: concurrency.NewResultMap[[]string](64),
		slots:   make(chan struct{}, h.opts.Workers),
	}
	r.launch(RootUniverse, NewEnvironment(prog.DeclaredSlots), 0)

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	report := &Report{
		Started: int(r.budget.Started()),
		Failed:  int(r.failed.Load()),
	}
	for _, e := range r.results.Ordered() {
		report.Outputs = append(report.Outputs, UniverseOutput{ID: e.Key, Values: e.Value})
	}
	return report, nil
}

// run is the state shared by all universes of one Harness.Run call.
type run struct {
	*Harness
	program *Program
	group   *errgroup.Group
	ctx     context.Context
	budget  *concurrency.SpawnBudget
	results *concurrency.ResultMap[[]string]
	slots   chan struct{}
	failed  atomic.Int64
}

// launch submits a universe to the group. It never blocks the caller: the
// new goroutine waits for a worker slot itself, so a parent holding a slot
// can keep spawning.
func (r *run) launch(id string, env *Environment, start int) {
	r.group.Go(func() (err error) {
		select {
		case r.slots <- struct{}{}:
		case <-r.ctx.Done():
			return nil
		}
		defer func() { <-r.slots }()

		ctx, span := r.tracer.Start(r.ctx, "universe", trace.WithAttributes(
			attribute.String("tva.universe.id", id),
			attribute.Int("tva.universe.start", start),
		))
		defer span.End()

		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			cv, ok := rec.(*ContractViolation)
			if !ok {
				panic(rec)
			}
			if cv.Universe == "" {
				cv.Universe = id
			}
			span.SetStatus(codes.Error, cv.Msg)
			err = cv
		}()

		r.log.Debug("universe %s started at statement %d", id, start)
		u := &universe{run: r, ctx: ctx, id: id, env: env}
		out := u.execute(start)
		r.log.Debug("universe %s finished: %s", id, out)
		if out == outcomeProphecyViolated || out == outcomeIndeterminateOutput {
			r.failed.Add(1)
		}
		span.SetAttributes(attribute.String("tva.universe.outcome", out.String()))
		return nil
	})
}
