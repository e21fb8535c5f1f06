// Package cli implements the aish command line.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/saisasanky/aish"
	"github.com/saisasanky/aish/backend"
	"github.com/saisasanky/aish/generate"
	"github.com/saisasanky/aish/shell"
)

// LogFileName is the log file written inside the log directory.
const LogFileName = "aish.log"

// Generator turns an instruction into a command.
type Generator interface {
	GenerateCommand(ctx context.Context, instruction, model string, temperature float64) (string, error)
	Resolve(model string) string
	Aliases() *generate.AliasTable
}

// Catalog reports which models are installed on the backend.
type Catalog interface {
	Models(ctx context.Context) ([]string, error)
	Has(ctx context.Context, id string) (bool, error)
}

// Runner executes a confirmed command and returns its exit status.
type Runner interface {
	Run(ctx context.Context, cmd string) (int, error)
}

// Backend bundles the components built from the configuration.
type Backend struct {
	Generator Generator
	Catalog   Catalog
	// Close releases background resources. May be nil.
	Close func()
}

// Connect builds the backend client, generator and model catalog for cfg.
func Connect(cfg *aish.Config) (*Backend, error) {
	client, err := backend.New(cfg)
	if err != nil {
		return nil, err
	}
	catalog := backend.NewCatalog(client, time.Duration(cfg.Catalog.TTLMinutes)*time.Minute)
	return &Backend{
		Generator: generate.NewGenerator(client, generate.NewAliasTable(cfg.Aliases)),
		Catalog:   catalog,
		Close:     catalog.Close,
	}, nil
}

// App holds the I/O streams and factories used by the commands. The zero
// value is not usable; call New.
type App struct {
	Version string

	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer

	// IsTerminal reports whether Stdin is interactive.
	IsTerminal func() bool
	// Connect builds the backend from the loaded configuration.
	Connect func(cfg *aish.Config) (*Backend, error)
	// NewRunner returns the executor for confirmed commands.
	NewRunner func(cfg *aish.Config) Runner

	cfg     *aish.Config
	styles  styles
	logFile io.Closer
}

// New returns an App wired to the process's standard streams.
func New(version string) *App {
	a := &App{
		Version:    version,
		Stdin:      os.Stdin,
		Stdout:     os.Stdout,
		Stderr:     os.Stderr,
		IsTerminal: func() bool { return term.IsTerminal(int(os.Stdin.Fd())) },
		Connect:    Connect,
	}
	a.NewRunner = a.shellRunner
	return a
}

// shellRunner executes commands on the App's streams.
func (a *App) shellRunner(cfg *aish.Config) Runner {
	r := shell.NewRunner(cfg.Execution.Shell)
	r.Stdin = a.Stdin
	r.Stdout = a.Stdout
	r.Stderr = a.Stderr
	return r
}

// exitError carries the exit status of an executed command.
type exitError struct {
	code int
}

func (e *exitError) Error() string {
	return fmt.Sprintf("exit status %d", e.code)
}

// Run executes the command line args and returns the process exit status.
// SIGINT and SIGTERM cancel the running command.
func (a *App) Run(args []string) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return a.RunContext(ctx, args)
}

// RunContext is Run with a caller-supplied context.
func (a *App) RunContext(ctx context.Context, args []string) int {
	a.styles = newStyles(a.Stdout, a.Stderr)
	defer a.closeLog()

	root := a.rootCommand()
	root.SetArgs(args)
	root.SetIn(a.Stdin)
	root.SetOut(a.Stdout)
	root.SetErr(a.Stderr)

	err := root.ExecuteContext(ctx)
	if err == nil {
		return 0
	}
	var exit *exitError
	if errors.As(err, &exit) {
		slog.Info("command exited", "status", exit.code)
		return exit.code
	}
	slog.Error("command failed", "error", err)
	a.printError(err)
	return 1
}

// setup loads the configuration and installs the logger. It runs before
// every command.
func (a *App) setup(verbose bool) error {
	cfg, err := aish.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	a.cfg = cfg
	a.setupLogging(verbose)
	for _, w := range aish.ValidateConfig(cfg) {
		slog.Warn("config", "warning", w)
	}
	return nil
}

func (a *App) setupLogging(verbose bool) {
	level := slog.LevelInfo
	if a.cfg.Logging.Level != "" {
		if err := level.UnmarshalText([]byte(a.cfg.Logging.Level)); err != nil {
			level = slog.LevelInfo
		}
	}

	var writers []io.Writer
	dir := aish.LogDir(a.cfg)
	if err := os.MkdirAll(dir, 0o755); err == nil {
		f, err := os.OpenFile(filepath.Join(dir, LogFileName), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err == nil {
			writers = append(writers, f)
			a.logFile = f
		}
	}
	if verbose {
		level = slog.LevelDebug
		writers = append(writers, a.Stderr)
	}

	var w io.Writer = io.Discard
	if len(writers) > 0 {
		w = io.MultiWriter(writers...)
	}
	logger := slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger.With("invocation", uuid.NewString()))
}

func (a *App) closeLog() {
	if a.logFile != nil {
		a.logFile.Close()
		a.logFile = nil
	}
}

func (a *App) connect() (*Backend, func(), error) {
	be, err := a.Connect(a.cfg)
	if err != nil {
		return nil, nil, err
	}
	done := func() {
		if be.Close != nil {
			be.Close()
		}
	}
	return be, done, nil
}

func (a *App) rootCommand() *cobra.Command {
	var verbose bool
	root := &cobra.Command{
		Use:   "aish [instruction...]",
		Short: "Convert natural language instructions into shell commands",
		Long: "aish asks a locally hosted language model for the shell command that\n" +
			"matches an instruction, shows it, and runs it once you confirm.\n\n" +
			"Without an instruction on a terminal, aish reads instructions line by line.",
		Version:       a.Version,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return a.setup(verbose)
		},
	}
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log debug output to stderr")

	a.addGenerateFlags(root)
	root.AddCommand(a.modelsCommand(), a.configCommand(), a.serveCommand())
	return root
}
