package cli

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/saisasanky/aish"
	defaults "github.com/saisasanky/aish/default"
	"github.com/saisasanky/aish/generate"
)

type fakeGenerator struct {
	command string
	err     error

	mu           sync.Mutex
	instructions []string
	models       []string
	temperatures []float64
}

func (g *fakeGenerator) GenerateCommand(_ context.Context, instruction, model string, temperature float64) (string, error) {
	if strings.TrimSpace(instruction) == "" {
		return "", aish.ErrEmptyInstruction
	}
	g.mu.Lock()
	g.instructions = append(g.instructions, instruction)
	g.models = append(g.models, model)
	g.temperatures = append(g.temperatures, temperature)
	g.mu.Unlock()
	if g.err != nil {
		return "", g.err
	}
	return g.command, nil
}

func (g *fakeGenerator) Resolve(model string) string {
	if model == "" {
		model = generate.DefaultModel
	}
	return generate.DefaultAliases().Resolve(model)
}

func (g *fakeGenerator) Aliases() *generate.AliasTable {
	return generate.DefaultAliases()
}

func (g *fakeGenerator) calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.instructions)
}

type fakeCatalog struct {
	models []string
	err    error
}

func (c *fakeCatalog) Models(context.Context) ([]string, error) {
	return c.models, c.err
}

func (c *fakeCatalog) Has(_ context.Context, id string) (bool, error) {
	if c.err != nil {
		return false, c.err
	}
	for _, m := range c.models {
		if m == id {
			return true, nil
		}
	}
	return false, nil
}

type fakeRunner struct {
	code     int
	err      error
	commands []string
}

func (r *fakeRunner) Run(_ context.Context, cmd string) (int, error) {
	r.commands = append(r.commands, cmd)
	return r.code, r.err
}

type testApp struct {
	*App
	stdout    *bytes.Buffer
	stderr    *bytes.Buffer
	gen       *fakeGenerator
	catalog   *fakeCatalog
	runner    *fakeRunner
	configDir string
	home      string
}

// newTestApp isolates config and log locations under temp dirs. A non-empty
// configTOML is written as the config file.
func newTestApp(t *testing.T, stdin, configTOML string) *testApp {
	t.Helper()
	home := t.TempDir()
	configDir := filepath.Join(home, "config")
	t.Setenv("HOME", home)
	t.Setenv("AISH_CONFIG_DIR", configDir)
	for _, key := range []string{"AISH_MODEL", "AISH_BACKEND", "AISH_HOST", "OLLAMA_HOST"} {
		t.Setenv(key, "")
	}
	if configTOML != "" {
		if err := os.MkdirAll(configDir, 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(filepath.Join(configDir, "config.toml"), []byte(configTOML), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	ta := &testApp{
		stdout:    &bytes.Buffer{},
		stderr:    &bytes.Buffer{},
		gen:       &fakeGenerator{command: "ls -la"},
		catalog:   &fakeCatalog{},
		runner:    &fakeRunner{},
		configDir: configDir,
		home:      home,
	}
	app := New("test")
	app.Stdin = strings.NewReader(stdin)
	app.Stdout = ta.stdout
	app.Stderr = ta.stderr
	app.IsTerminal = func() bool { return false }
	app.Connect = func(*aish.Config) (*Backend, error) {
		return &Backend{Generator: ta.gen, Catalog: ta.catalog}, nil
	}
	app.NewRunner = func(*aish.Config) Runner { return ta.runner }
	ta.App = app
	return ta
}

func (ta *testApp) run(args ...string) int {
	return ta.RunContext(context.Background(), args)
}

func TestGenerateDeclined(t *testing.T) {
	ta := newTestApp(t, "n\n", "")

	code := ta.run("--instruction", "list all files in current directory")
	if code != 0 {
		t.Fatalf("expected exit 0, got %d (stderr: %s)", code, ta.stderr)
	}
	out := ta.stdout.String()
	if !strings.Contains(out, "Generated Command:") || !strings.Contains(out, "ls -la") {
		t.Errorf("expected generated command in output, got %q", out)
	}
	if !strings.Contains(out, "Execute command? [y/n] (n):") {
		t.Errorf("expected confirmation prompt, got %q", out)
	}
	if len(ta.runner.commands) != 0 {
		t.Errorf("declined command must not run, ran %v", ta.runner.commands)
	}
	if ta.gen.calls() != 1 {
		t.Errorf("expected 1 generation, got %d", ta.gen.calls())
	}
}

func TestGenerateConfirmed(t *testing.T) {
	for _, answer := range []string{"y\n", "yes\n", "Y\n"} {
		ta := newTestApp(t, answer, "")

		if code := ta.run("-i", "list all files in current directory"); code != 0 {
			t.Fatalf("answer %q: expected exit 0, got %d", answer, code)
		}
		if len(ta.runner.commands) != 1 || ta.runner.commands[0] != "ls -la" {
			t.Errorf("answer %q: expected ls -la to run, got %v", answer, ta.runner.commands)
		}
	}
}

func TestGenerateDefaultsToNo(t *testing.T) {
	for _, input := range []string{"", "\n", "maybe\n"} {
		ta := newTestApp(t, input, "")

		if code := ta.run("-i", "list files"); code != 0 {
			t.Fatalf("input %q: expected exit 0, got %d", input, code)
		}
		if len(ta.runner.commands) != 0 {
			t.Errorf("input %q: command must not run", input)
		}
	}
}

func TestGenerateAutoExecute(t *testing.T) {
	ta := newTestApp(t, "", "")

	if code := ta.run("-y", "-i", "list files"); code != 0 {
		t.Fatalf("expected exit 0, got %d", code)
	}
	if strings.Contains(ta.stdout.String(), "Execute command?") {
		t.Error("auto-execute must not prompt")
	}
	if len(ta.runner.commands) != 1 {
		t.Errorf("expected command to run, got %v", ta.runner.commands)
	}
}

func TestGenerateAutoExecuteFromConfig(t *testing.T) {
	ta := newTestApp(t, "", "[execution]\nauto_execute = true\n")

	if code := ta.run("-i", "list files"); code != 0 {
		t.Fatalf("expected exit 0, got %d", code)
	}
	if len(ta.runner.commands) != 1 {
		t.Errorf("expected command to run, got %v", ta.runner.commands)
	}
}

func TestGeneratePropagatesExitStatus(t *testing.T) {
	ta := newTestApp(t, "y\n", "")
	ta.runner.code = 3

	if code := ta.run("-i", "fail"); code != 3 {
		t.Errorf("expected exit 3, got %d", code)
	}
	if strings.Contains(ta.stderr.String(), "Error:") {
		t.Errorf("a failing command is not an aish error, stderr: %s", ta.stderr)
	}
}

func TestGenerateRunnerError(t *testing.T) {
	ta := newTestApp(t, "", "")
	ta.runner.err = errors.New("exec: not found")

	if code := ta.run("-y", "-i", "list files"); code != 1 {
		t.Errorf("expected exit 1, got %d", code)
	}
	if !strings.Contains(ta.stderr.String(), "Error: execute command: exec: not found") {
		t.Errorf("unexpected stderr %q", ta.stderr)
	}
}

func TestGeneratePositionalInstruction(t *testing.T) {
	ta := newTestApp(t, "n\n", "")

	if code := ta.run("list", "all", "files"); code != 0 {
		t.Fatalf("expected exit 0, got %d", code)
	}
	if ta.gen.instructions[0] != "list all files" {
		t.Errorf("expected joined words, got %q", ta.gen.instructions[0])
	}
}

func TestGenerateModelAndTemperature(t *testing.T) {
	ta := newTestApp(t, "n\n", "")

	if code := ta.run("-i", "list files", "--model", "custom-model", "-t", "0.5"); code != 0 {
		t.Fatalf("expected exit 0, got %d", code)
	}
	if ta.gen.models[0] != "custom-model" {
		t.Errorf("expected custom-model, got %q", ta.gen.models[0])
	}
	if ta.gen.temperatures[0] != 0.5 {
		t.Errorf("expected temperature 0.5, got %v", ta.gen.temperatures[0])
	}
}

func TestGenerateDefaultsFromConfig(t *testing.T) {
	ta := newTestApp(t, "n\n", "[generation]\nmodel = \"qwen\"\ntemperature = 0.7\n")

	if code := ta.run("-i", "list files"); code != 0 {
		t.Fatalf("expected exit 0, got %d", code)
	}
	if ta.gen.models[0] != "qwen" {
		t.Errorf("expected configured model qwen, got %q", ta.gen.models[0])
	}
	if ta.gen.temperatures[0] != 0.7 {
		t.Errorf("expected configured temperature 0.7, got %v", ta.gen.temperatures[0])
	}

	ta = newTestApp(t, "n\n", "[generation]\ntemperature = 0.7\n")
	if code := ta.run("-i", "list files", "-t", "0"); code != 0 {
		t.Fatalf("expected exit 0, got %d", code)
	}
	if ta.gen.temperatures[0] != 0 {
		t.Errorf("explicit -t 0 must win over config, got %v", ta.gen.temperatures[0])
	}
}

func TestGenerateRejectsTemperature(t *testing.T) {
	for _, temp := range []string{"1.5", "-0.1"} {
		ta := newTestApp(t, "", "")

		if code := ta.run("-i", "list files", "-t", temp); code != 1 {
			t.Errorf("temperature %s: expected exit 1, got %d", temp, code)
		}
		if !strings.Contains(ta.stderr.String(), "Error: temperature: temperature must be between 0.0 and 1.0") {
			t.Errorf("temperature %s: unexpected stderr %q", temp, ta.stderr)
		}
		if ta.gen.calls() != 0 {
			t.Errorf("temperature %s: generator must not be called", temp)
		}
	}
}

func TestGenerateFailure(t *testing.T) {
	ta := newTestApp(t, "", "")
	ta.gen.err = &aish.GenerationError{Err: &aish.BackendError{Backend: "ollama", Err: errors.New("API Error")}}

	if code := ta.run("-i", "list files"); code != 1 {
		t.Errorf("expected exit 1, got %d", code)
	}
	if !strings.Contains(ta.stderr.String(), "Error: ") || !strings.Contains(ta.stderr.String(), "API Error") {
		t.Errorf("expected error with diagnostic, got %q", ta.stderr)
	}
	if strings.Contains(ta.stdout.String(), "Generated Command:") {
		t.Error("no command should be shown on failure")
	}
}

func TestGenerateEmptyCommand(t *testing.T) {
	ta := newTestApp(t, "y\n", "")
	ta.gen.command = "  "

	if code := ta.run("-i", "do nothing"); code != 1 {
		t.Errorf("expected exit 1, got %d", code)
	}
	if !strings.Contains(ta.stderr.String(), "empty command") {
		t.Errorf("unexpected stderr %q", ta.stderr)
	}
	if len(ta.runner.commands) != 0 {
		t.Error("empty command must not run")
	}
}

func TestGenerateNoInstruction(t *testing.T) {
	ta := newTestApp(t, "", "")

	if code := ta.run(); code != 1 {
		t.Errorf("expected exit 1, got %d", code)
	}
	if !strings.Contains(ta.stderr.String(), "Error: instruction cannot be empty") {
		t.Errorf("unexpected stderr %q", ta.stderr)
	}
}

func TestGenerateSyntaxWarning(t *testing.T) {
	ta := newTestApp(t, "n\n", "")
	ta.gen.command = "echo ("

	if code := ta.run("-i", "broken"); code != 0 {
		t.Fatalf("expected exit 0, got %d", code)
	}
	if !strings.Contains(ta.stderr.String(), "Warning: command does not parse as bash") {
		t.Errorf("expected syntax warning, got %q", ta.stderr)
	}
	if !strings.Contains(ta.stdout.String(), "Execute command?") {
		t.Error("execution must still be offered")
	}
}

func TestInteractive(t *testing.T) {
	ta := newTestApp(t, "list files\nn\n\nshow date\ny\n:q\nnever read\n", "")
	ta.IsTerminal = func() bool { return true }
	ta.gen.command = "date"

	if code := ta.run(); code != 0 {
		t.Fatalf("expected exit 0, got %d (stderr: %s)", code, ta.stderr)
	}
	if got := ta.gen.instructions; len(got) != 2 || got[0] != "list files" || got[1] != "show date" {
		t.Errorf("unexpected instructions %v", got)
	}
	if len(ta.runner.commands) != 1 {
		t.Errorf("expected one executed command, got %v", ta.runner.commands)
	}
	if !strings.Contains(ta.stdout.String(), "aish>") {
		t.Errorf("expected prompt in output, got %q", ta.stdout)
	}
}

func TestInteractiveContinuesAfterErrors(t *testing.T) {
	ta := newTestApp(t, "first\nsecond\n", "")
	ta.IsTerminal = func() bool { return true }
	ta.gen.err = &aish.GenerationError{Err: errors.New("model not found")}

	if code := ta.run(); code != 0 {
		t.Fatalf("expected exit 0 at end of input, got %d", code)
	}
	if ta.gen.calls() != 2 {
		t.Errorf("expected both instructions attempted, got %d", ta.gen.calls())
	}
	if n := strings.Count(ta.stderr.String(), "Error:"); n != 2 {
		t.Errorf("expected 2 reported errors, got %d: %q", n, ta.stderr)
	}
}

func TestCheckModel(t *testing.T) {
	ta := newTestApp(t, "n\n", "")
	ta.catalog.models = []string{"mistral:7b"}

	if code := ta.run("--check-model", "-m", "custom-model", "-i", "list files"); code != 0 {
		t.Fatalf("expected exit 0, got %d", code)
	}
	if !strings.Contains(ta.stderr.String(), `Warning: model "custom-model" is not installed`) {
		t.Errorf("expected not-installed warning, got %q", ta.stderr)
	}
	if ta.gen.calls() != 1 {
		t.Error("generation must proceed after the warning")
	}
}

func TestModelsCommand(t *testing.T) {
	ta := newTestApp(t, "", "")
	llama, _ := generate.DefaultAliases().Lookup("llama")
	ta.catalog.models = []string{llama, "mistral:7b"}

	if code := ta.run("models"); code != 0 {
		t.Fatalf("expected exit 0, got %d (stderr: %s)", code, ta.stderr)
	}
	out := ta.stdout.String()
	if !strings.Contains(out, llama+" (alias: llama)") {
		t.Errorf("expected alias annotation, got %q", out)
	}
	if !strings.Contains(out, "mistral:7b") {
		t.Errorf("expected installed model, got %q", out)
	}
	if !strings.Contains(out, "qwen -> qwen2.5-coder:7b (not installed)") {
		t.Errorf("expected missing alias target, got %q", out)
	}
	if strings.Contains(out, "llama -> "+llama+" (not installed)") {
		t.Errorf("installed alias reported missing: %q", out)
	}
}

func TestModelsCommandBackendDown(t *testing.T) {
	ta := newTestApp(t, "", "")
	ta.catalog.err = &aish.BackendError{Backend: "ollama", Err: errors.New("connection refused")}

	if code := ta.run("models"); code != 1 {
		t.Errorf("expected exit 1, got %d", code)
	}
	if !strings.Contains(ta.stderr.String(), "connection refused") {
		t.Errorf("unexpected stderr %q", ta.stderr)
	}
}

func TestConfigPathAndShow(t *testing.T) {
	ta := newTestApp(t, "", "[generation]\nmodel = \"qwen\"\n")

	if code := ta.run("config", "path"); code != 0 {
		t.Fatalf("expected exit 0, got %d", code)
	}
	if got := strings.TrimSpace(ta.stdout.String()); got != filepath.Join(ta.configDir, "config.toml") {
		t.Errorf("unexpected path %q", got)
	}

	ta.stdout.Reset()
	if code := ta.run("config", "show"); code != 0 {
		t.Fatalf("expected exit 0, got %d", code)
	}
	out := ta.stdout.String()
	if !strings.Contains(out, "[generation]") || !strings.Contains(out, `model = "qwen"`) {
		t.Errorf("unexpected config output %q", out)
	}
}

func TestConfigInit(t *testing.T) {
	ta := newTestApp(t, "", "")
	path := filepath.Join(ta.configDir, "config.toml")

	if code := ta.run("config", "init"); code != 0 {
		t.Fatalf("expected exit 0, got %d (stderr: %s)", code, ta.stderr)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != defaults.DefaultConfigTOML {
		t.Error("written config differs from embedded defaults")
	}

	if code := ta.run("config", "init"); code != 1 {
		t.Errorf("expected exit 1 for existing file, got %d", code)
	}
	if !strings.Contains(ta.stderr.String(), "--force") {
		t.Errorf("expected --force hint, got %q", ta.stderr)
	}

	if code := ta.run("config", "init", "--force"); code != 0 {
		t.Errorf("expected exit 0 with --force, got %d", code)
	}
}

func TestInvalidConfigFile(t *testing.T) {
	ta := newTestApp(t, "", "not = [valid")

	if code := ta.run("-i", "list files"); code != 1 {
		t.Errorf("expected exit 1, got %d", code)
	}
	if !strings.Contains(ta.stderr.String(), "Error: load config:") {
		t.Errorf("unexpected stderr %q", ta.stderr)
	}
}

func TestVersion(t *testing.T) {
	ta := newTestApp(t, "", "")

	if code := ta.run("--version"); code != 0 {
		t.Fatalf("expected exit 0, got %d", code)
	}
	if !strings.Contains(ta.stdout.String(), "aish version test") {
		t.Errorf("unexpected version output %q", ta.stdout)
	}
}

func TestLogFile(t *testing.T) {
	ta := newTestApp(t, "n\n", "")

	if code := ta.run("-i", "list files"); code != 0 {
		t.Fatalf("expected exit 0, got %d", code)
	}
	data, err := os.ReadFile(filepath.Join(ta.home, ".aish", "logs", LogFileName))
	if err != nil {
		t.Fatal(err)
	}
	log := string(data)
	if !strings.Contains(log, "invocation=") {
		t.Errorf("expected invocation attribute, got %q", log)
	}
	if !strings.Contains(log, `msg="generated command"`) {
		t.Errorf("expected generated command entry, got %q", log)
	}
}

func TestVerboseLogsToStderr(t *testing.T) {
	ta := newTestApp(t, "n\n", "")

	if code := ta.run("-v", "-i", "list files"); code != 0 {
		t.Fatalf("expected exit 0, got %d", code)
	}
	if !strings.Contains(ta.stderr.String(), "generated command") {
		t.Errorf("expected log output on stderr, got %q", ta.stderr)
	}
}

func TestServeCommand(t *testing.T) {
	ta := newTestApp(t, "", "")
	sock := fmt.Sprintf("/tmp/aish-cli-%d.sock", os.Getpid())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan int, 1)
	go func() { done <- ta.RunContext(ctx, []string{"serve", "--socket", sock}) }()

	var conn net.Conn
	deadline := time.Now().Add(2 * time.Second)
	for {
		var err error
		if conn, err = net.Dial("unix", sock); err == nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("server did not start: %v", err)
		}
		time.Sleep(10 * time.Millisecond)
	}
	defer conn.Close()

	data, _ := json.Marshal(&aish.Request{RequestID: 11, Instruction: "list files"})
	conn.Write(append(data, '\n'))
	scanner := bufio.NewScanner(conn)
	if !scanner.Scan() {
		t.Fatal("no response from server")
	}
	var resp aish.Response
	if err := json.Unmarshal(scanner.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.RequestID != 11 || resp.Command != "ls -la" {
		t.Errorf("unexpected response %+v", resp)
	}

	cancel()
	select {
	case code := <-done:
		if code != 0 {
			t.Errorf("expected exit 0 after shutdown, got %d", code)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("serve did not stop after cancellation")
	}
	if _, err := os.Stat(sock); !os.IsNotExist(err) {
		t.Errorf("expected socket removed, stat err = %v", err)
	}
}

func TestGenerateFailureLoggedOnce(t *testing.T) {
	ta := newTestApp(t, "", "")
	ta.gen.err = &aish.GenerationError{Err: errors.New("API Error")}

	if code := ta.run("-i", "list files"); code != 1 {
		t.Fatalf("expected exit 1, got %d", code)
	}
	data, err := os.ReadFile(filepath.Join(ta.home, ".aish", "logs", LogFileName))
	if err != nil {
		t.Fatal(err)
	}
	if n := strings.Count(string(data), "level=ERROR"); n != 1 {
		t.Errorf("expected the failure logged once, got %d entries: %q", n, data)
	}
}

func TestDefaultRunnerUsesAppStreams(t *testing.T) {
	ta := newTestApp(t, "", "")
	ta.NewRunner = ta.App.shellRunner
	ta.gen.command = "echo from-runner"

	if code := ta.run("-y", "-i", "say something"); code != 0 {
		t.Fatalf("expected exit 0, got %d (stderr: %s)", code, ta.stderr)
	}
	if !strings.Contains(ta.stdout.String(), "from-runner\n") {
		t.Errorf("expected command output on the app's stdout, got %q", ta.stdout)
	}
}
