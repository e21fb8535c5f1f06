// Package generate turns natural-language instructions into shell commands.
package generate

import (
	"context"
	"log/slog"
	"strings"

	"github.com/saisasanky/aish"
	"github.com/saisasanky/aish/backend"
)

const (
	// SystemPrompt is the fixed persona sent ahead of every instruction.
	SystemPrompt = "You are an assistant that provides exact bash command for given input"
	// MaxOutputTokens caps generation length.
	MaxOutputTokens = 150
	// DefaultModel is used when no model selector is given.
	DefaultModel = "llama"
	// DefaultTemperature is the presentation layer's default.
	DefaultTemperature = 0.2
)

// Generator builds the prompt, calls the backend and normalizes the reply.
// It holds no per-call state and may be shared between goroutines.
type Generator struct {
	client  backend.Client
	aliases *AliasTable
}

// NewGenerator creates a generator. A nil alias table means the built-ins.
func NewGenerator(client backend.Client, aliases *AliasTable) *Generator {
	if aliases == nil {
		aliases = DefaultAliases()
	}
	return &Generator{client: client, aliases: aliases}
}

// Aliases returns the generator's alias table.
func (g *Generator) Aliases() *AliasTable {
	return g.aliases
}

// Resolve returns the backend identifier for a model selector.
func (g *Generator) Resolve(model string) string {
	if model == "" {
		model = DefaultModel
	}
	return g.aliases.Resolve(model)
}

// BuildMessages returns the system message followed by the instruction as
// the user message.
func BuildMessages(instruction string) []aish.ChatMessage {
	return []aish.ChatMessage{
		{Role: aish.RoleSystem, Content: SystemPrompt},
		{Role: aish.RoleUser, Content: instruction},
	}
}

// GenerateCommand converts instruction into a single shell command.
//
// A blank instruction fails with aish.ErrEmptyInstruction before any backend
// call. A backend failure is returned as *aish.GenerationError; there is no
// retry. The command is not checked beyond fence stripping and may be empty.
func (g *Generator) GenerateCommand(ctx context.Context, instruction, model string, temperature float64) (string, error) {
	if strings.TrimSpace(instruction) == "" {
		return "", aish.ErrEmptyInstruction
	}

	id := g.Resolve(model)
	slog.Debug("generating command", "model", id, "temperature", temperature)

	raw, err := g.client.Invoke(ctx, id, BuildMessages(instruction), temperature, MaxOutputTokens)
	if err != nil {
		return "", &aish.GenerationError{Err: err}
	}

	slog.Debug("raw response", "content", raw)
	return StripFences(raw), nil
}
