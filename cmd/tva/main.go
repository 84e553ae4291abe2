// Package main provides the tva command: it loads a program file and runs
// every universe the program forks, printing the surviving outputs.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/tva-lang/tva/internal/cli"
	"github.com/tva-lang/tva/internal/config"
	"github.com/tva-lang/tva/internal/engine"
	"github.com/tva-lang/tva/internal/program"
	"github.com/tva-lang/tva/internal/runtime/vfs"
	"github.com/tva-lang/tva/internal/telemetry"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 1 {
		usage(stderr)
		return 2
	}

	sub, rest := args[0], args[1:]
	switch sub {
	case "help", "-h", "--help":
		usage(stdout)
		return 0
	case "version", "-v", "--version":
		jsonOutput := false
		for _, arg := range rest {
			if arg == "--json" || arg == "-j" {
				jsonOutput = true
				break
			}
		}
		cli.PrintVersion(stdout, "tva", jsonOutput)
		return 0
	case "run":
		return runCmd(rest, stdout, stderr)
	case "check":
		return checkCmd(rest, stdout, stderr)
	default:
		fmt.Fprintf(stderr, "unknown subcommand: %s\n", sub)
		usage(stderr)
		return 2
	}
}

func usage(w io.Writer) {
	cli.PrintUsage(w, "tva", []cli.CommandInfo{
		{
			Name:        "run",
			Usage:       "tva run [-v] [-config file] [-out name] [-dbg name] [-ceiling n] [-workers n] [-watch] <program>",
			Description: "Run a program and print every surviving universe's output",
			Examples:    []string{"tva run -v examples/cross.yaml"},
		},
		{
			Name:        "check",
			Usage:       "tva check <program>",
			Description: "Validate a program file",
		},
		{
			Name:        "version",
			Description: "Show version information",
		},
	})
}

type runFlags struct {
	configFile string
	verbose    bool
	debug      bool
	out        string
	dbg        string
	ceiling    int
	workers    int
	watch      bool
}

func runCmd(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var f runFlags
	fs.StringVar(&f.configFile, "config", "tva.json", "configuration file path")
	fs.BoolVar(&f.verbose, "v", false, "trace forks, prophecies and outputs on stderr")
	fs.BoolVar(&f.debug, "debug", false, "enable debug logging")
	fs.StringVar(&f.out, "out", "", "output channel variable")
	fs.StringVar(&f.dbg, "dbg", "", "debug channel variable")
	fs.IntVar(&f.ceiling, "ceiling", 0, "maximum number of universes per run")
	fs.IntVar(&f.workers, "workers", 0, "universes executing at the same time")
	fs.BoolVar(&f.watch, "watch", false, "rerun whenever the program file changes")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(stderr, "usage: tva run [flags] <program>")
		return 2
	}
	path := fs.Arg(0)

	cfg, err := loadConfig(f)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	log := cli.NewLoggerTo(stderr, cfg.Verbose, cfg.Debug)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	shutdown, err := telemetry.Setup(ctx, "tva", cfg.OTelEndpoint)
	if err != nil {
		log.Warn("tracing disabled: %v", err)
	}
	defer func() { _ = shutdown(context.Background()) }()

	h := engine.NewHarness(cfg.EngineOptions(), log)
	fsys := vfs.NewOS()

	code := execute(ctx, h, fsys, path, stdout, log)
	if !f.watch {
		return code
	}
	return watch(ctx, h, fsys, path, stdout, log)
}

func loadConfig(f runFlags) (*config.Config, error) {
	cfg, err := config.Load(f.configFile)
	if err != nil {
		return nil, err
	}
	if f.verbose {
		cfg.Verbose = true
	}
	if f.debug {
		cfg.Debug = true
	}
	if f.out != "" {
		cfg.OutputChannel = f.out
	}
	if f.dbg != "" {
		cfg.DebugChannel = f.dbg
	}
	if f.ceiling > 0 {
		cfg.SpawnCeiling = f.ceiling
	}
	if f.workers > 0 {
		cfg.Workers = f.workers
	}
	return cfg, cfg.Validate()
}

// execute loads and runs the program once, returning the exit code.
func execute(ctx context.Context, h *engine.Harness, fsys vfs.FileSystem, path string, stdout io.Writer, log *cli.Logger) int {
	file, err := program.Load(fsys, path, cli.Version)
	if err != nil {
		log.Error("%v", err)
		return 1
	}
	log.Debug("loaded %s: %d statements, %d variables", path, len(file.Program.Statements), len(file.Program.DeclaredSlots))
	start := time.Now()
	report, err := h.Run(ctx, file.Program)
	if err != nil {
		var cv *engine.ContractViolation
		if errors.As(err, &cv) {
			log.Error("malformed statement stream: %v", cv)
		} else {
			log.Error("%v", err)
		}
		return 1
	}
	for _, out := range report.Outputs {
		if h.Options().Verbose {
			fmt.Fprintf(stdout, "# %s\n", out.ID)
		}
		for _, v := range out.Values {
			fmt.Fprintln(stdout, v)
		}
	}
	log.Info("%d universes started, %d with output, %d failed in %s",
		report.Started, len(report.Outputs), report.Failed, time.Since(start).Round(time.Millisecond))
	return 0
}

func watch(ctx context.Context, h *engine.Harness, fsys vfs.FileSystem, path string, stdout io.Writer, log *cli.Logger) int {
	w, err := vfs.Watch(ctx, fsys, path, 500*time.Millisecond)
	if err != nil {
		log.Error("watch %s: %v", path, err)
		return 1
	}
	defer w.Close()
	log.Info("watching %s", path)

	for {
		select {
		case <-ctx.Done():
			return 0
		case err := <-w.Errors():
			log.Warn("watch: %v", err)
		case ev, ok := <-w.Events():
			if !ok {
				return 0
			}
			if ev.Op&(vfs.OpWrite|vfs.OpCreate) == 0 {
				continue
			}
			log.Info("%s changed, rerunning", ev.Path)
			execute(ctx, h, fsys, path, stdout, log)
		}
	}
}

func checkCmd(args []string, stdout, stderr io.Writer) int {
	if err := cli.ValidateArgs(args, 1, "tva check <program>"); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	file, err := program.Load(vfs.NewOS(), args[0], cli.Version)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	fmt.Fprintf(stdout, "%s: ok\n", file.Path)
	fmt.Fprint(stdout, file.Summary())
	return 0
}
