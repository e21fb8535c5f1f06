package backend

import (
	"context"
	"errors"
	"math"
	"net/http"
	"net/url"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/saisasanky/aish"
)

// OpenAIClient calls an OpenAI-compatible chat completions endpoint, such as
// llama.cpp's server, LM Studio or Ollama's /v1 API.
type OpenAIClient struct {
	baseURL string
	inner   *openai.Client
}

// NewOpenAIClient creates a client for baseURL. A base URL without a path
// gets "/v1" appended.
func NewOpenAIClient(baseURL, apiKey string, httpClient *http.Client) *OpenAIClient {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if u, err := url.Parse(baseURL); err == nil && (u.Path == "" || u.Path == "/") {
		baseURL += "/v1"
	}

	config := openai.DefaultConfig(apiKey)
	config.BaseURL = baseURL
	if httpClient != nil {
		config.HTTPClient = httpClient
	}
	return &OpenAIClient{baseURL: baseURL, inner: openai.NewClientWithConfig(config)}
}

// BaseURL returns the address requests are sent to.
func (c *OpenAIClient) BaseURL() string { return c.baseURL }

// Invoke sends a chat completion request.
func (c *OpenAIClient) Invoke(ctx context.Context, model string, messages []aish.ChatMessage, temperature float64, maxTokens int) (string, error) {
	if err := checkInvoke(model, messages); err != nil {
		return "", c.fail(model, err)
	}

	msgs := make([]openai.ChatCompletionMessage, len(messages))
	for i, m := range messages {
		msgs[i] = openai.ChatCompletionMessage{Role: string(m.Role), Content: m.Content}
	}

	resp, err := c.inner.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       model,
		Messages:    msgs,
		Temperature: wireTemperature(temperature),
		MaxTokens:   maxTokens,
	})
	if err != nil {
		return "", c.fail(model, err)
	}
	if len(resp.Choices) == 0 {
		return "", c.fail(model, errors.New("no choices in response"))
	}
	return resp.Choices[0].Message.Content, nil
}

// wireTemperature converts t for the request. The request field is
// omitempty, so 0 is sent as the smallest float32 to keep it on the wire.
func wireTemperature(t float64) float32 {
	if t == 0 {
		return math.SmallestNonzeroFloat32
	}
	return float32(t)
}

// ListModels returns the model IDs the server advertises.
func (c *OpenAIClient) ListModels(ctx context.Context) ([]string, error) {
	list, err := c.inner.ListModels(ctx)
	if err != nil {
		return nil, c.fail("", err)
	}
	names := make([]string, 0, len(list.Models))
	for _, m := range list.Models {
		names = append(names, m.ID)
	}
	return names, nil
}

func (c *OpenAIClient) fail(model string, err error) error {
	return &aish.BackendError{Backend: aish.BackendOpenAI, Model: model, Err: err}
}
