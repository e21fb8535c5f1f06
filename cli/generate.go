package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/saisasanky/aish"
	"github.com/saisasanky/aish/generate"
	"github.com/saisasanky/aish/shell"
)

var errEmptyCommand = errors.New("the model returned an empty command")

type generateOptions struct {
	instruction string
	model       string
	temperature float64
	yes         bool
	checkModel  bool
}

func (a *App) addGenerateFlags(root *cobra.Command) {
	var opts generateOptions
	flags := root.Flags()
	flags.StringVarP(&opts.instruction, "instruction", "i", "", "natural language instruction to convert")
	flags.StringVarP(&opts.model, "model", "m", "", `model alias or backend identifier (default from config, "llama")`)
	flags.Float64VarP(&opts.temperature, "temperature", "t", generate.DefaultTemperature, "sampling temperature, 0.0 to 1.0 (default from config)")
	flags.BoolVarP(&opts.yes, "yes", "y", false, "execute the generated command without asking")
	flags.BoolVar(&opts.checkModel, "check-model", false, "warn when the model is not installed on the backend")

	root.Args = cobra.ArbitraryArgs
	root.RunE = func(cmd *cobra.Command, args []string) error {
		return a.runGenerate(cmd, &opts, args)
	}
}

// session is one generate invocation, or a sequence of them in interactive
// mode, sharing a single buffered reader over stdin.
type session struct {
	app         *App
	in          *bufio.Reader
	gen         Generator
	runner      Runner
	model       string
	temperature float64
	autoExecute bool
}

func (a *App) runGenerate(cmd *cobra.Command, opts *generateOptions, args []string) error {
	instruction := opts.instruction
	if instruction == "" {
		instruction = strings.Join(args, " ")
	}

	temperature := a.cfg.Generation.Temperature
	if cmd.Flags().Changed("temperature") {
		temperature = opts.temperature
	}
	if err := aish.ValidateTemperature(temperature); err != nil {
		return fmt.Errorf("temperature: %w", err)
	}

	model := opts.model
	if model == "" {
		model = aish.ResolveModel(a.cfg)
	}

	be, done, err := a.connect()
	if err != nil {
		return err
	}
	defer done()

	ctx := cmd.Context()
	s := &session{
		app:         a,
		in:          bufio.NewReader(a.Stdin),
		gen:         be.Generator,
		runner:      a.NewRunner(a.cfg),
		model:       model,
		temperature: temperature,
		autoExecute: opts.yes || a.cfg.Execution.AutoExecute,
	}

	if opts.checkModel {
		a.checkModel(ctx, be, model)
	}

	if strings.TrimSpace(instruction) == "" && a.IsTerminal() {
		return s.interactive(ctx)
	}
	return s.once(ctx, instruction)
}

func (a *App) checkModel(ctx context.Context, be *Backend, model string) {
	id := be.Generator.Resolve(model)
	ok, err := be.Catalog.Has(ctx, id)
	switch {
	case err != nil:
		a.printWarning("could not list installed models: %v", err)
	case !ok:
		a.printWarning("model %q is not installed on the backend", id)
	default:
		slog.Debug("model installed", "model", id)
	}
}

// once generates a command for instruction, shows it and runs it after
// confirmation.
func (s *session) once(ctx context.Context, instruction string) error {
	cmd, err := s.gen.GenerateCommand(ctx, instruction, s.model, s.temperature)
	if err != nil {
		return err
	}
	if strings.TrimSpace(cmd) == "" {
		return errEmptyCommand
	}
	slog.Info("generated command", "model", s.gen.Resolve(s.model), "command", shell.Redact(cmd))

	s.app.printCommand(cmd)
	if err := shell.Check(cmd); err != nil {
		s.app.printWarning("%v", err)
	}

	if !s.autoExecute {
		ok, err := s.confirm()
		if err != nil {
			return err
		}
		if !ok {
			slog.Info("execution declined")
			return nil
		}
	}

	code, err := s.runner.Run(ctx, cmd)
	if err != nil {
		return fmt.Errorf("execute command: %w", err)
	}
	if code != 0 {
		return &exitError{code: code}
	}
	return nil
}

// confirm asks whether to execute. Anything but y or yes, including end of
// input, means no.
func (s *session) confirm() (bool, error) {
	fmt.Fprint(s.app.Stdout, s.app.styles.prompt.Render("Execute command? [y/n] (n):")+" ")
	line, err := s.in.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return false, err
	}
	if errors.Is(err, io.EOF) && line == "" {
		fmt.Fprintln(s.app.Stdout)
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true, nil
	}
	return false, nil
}

// interactive reads one instruction per line until :q, :quit or end of
// input. Failures are reported and the loop continues.
func (s *session) interactive(ctx context.Context) error {
	out := s.app.Stdout
	fmt.Fprintln(out, s.app.styles.muted.Render("Describe what you want to do. Enter :q to quit."))
	for {
		fmt.Fprint(out, s.app.styles.prompt.Render("aish>")+" ")
		line, readErr := s.in.ReadString('\n')
		line = strings.TrimSpace(line)

		switch line {
		case ":q", ":quit":
			return nil
		case "":
		default:
			if err := s.once(ctx, line); err != nil {
				var exit *exitError
				if errors.As(err, &exit) {
					fmt.Fprintln(out, s.app.styles.muted.Render(exit.Error()))
				} else {
					slog.Error("command failed", "error", err)
					s.app.printError(err)
				}
			}
		}

		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				fmt.Fprintln(out)
				return nil
			}
			return readErr
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}
