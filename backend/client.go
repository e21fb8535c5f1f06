// Package backend talks to the locally hosted inference service.
package backend

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/saisasanky/aish"
)

// Client sends one chat request to the backend and returns the top
// completion text untouched.
type Client interface {
	Invoke(ctx context.Context, model string, messages []aish.ChatMessage, temperature float64, maxTokens int) (string, error)
}

// Lister lists the models installed on the backend.
type Lister interface {
	ListModels(ctx context.Context) ([]string, error)
}

// ClientLister is implemented by every backend in this package.
type ClientLister interface {
	Client
	Lister
}

// New creates the backend selected by cfg.
func New(cfg *aish.Config) (ClientLister, error) {
	host := aish.ResolveHost(cfg)
	var timeout time.Duration
	if cfg != nil && cfg.Generation.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.Generation.TimeoutSeconds) * time.Second
	}
	httpClient := &http.Client{Timeout: timeout}

	switch kind := aish.ResolveBackend(cfg); kind {
	case aish.BackendOllama:
		return NewOllamaClient(host, httpClient), nil
	case aish.BackendOpenAI:
		return NewOpenAIClient(host, aish.ResolveAPIKey(), httpClient), nil
	default:
		return nil, fmt.Errorf("unknown backend %q (supported: %s, %s)", kind, aish.BackendOllama, aish.BackendOpenAI)
	}
}

var (
	errNoModel    = errors.New("model identifier required")
	errNoMessages = errors.New("at least one message required")
)

// checkInvoke validates the adapter preconditions.
func checkInvoke(model string, messages []aish.ChatMessage) error {
	if model == "" {
		return errNoModel
	}
	if len(messages) == 0 {
		return errNoMessages
	}
	return nil
}
