package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/saisasanky/aish"
)

// DefaultOllamaHost is the address Ollama listens on out of the box.
const DefaultOllamaHost = "http://127.0.0.1:11434"

// OllamaClient calls the native Ollama HTTP API.
type OllamaClient struct {
	baseURL string
	client  *http.Client
}

// NewOllamaClient creates a client for baseURL. A nil httpClient means
// http.DefaultClient (no timeout).
func NewOllamaClient(baseURL string, httpClient *http.Client) *OllamaClient {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = DefaultOllamaHost
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &OllamaClient{baseURL: baseURL, client: httpClient}
}

// BaseURL returns the address requests are sent to.
func (c *OllamaClient) BaseURL() string { return c.baseURL }

type ollamaChatRequest struct {
	Model    string             `json:"model"`
	Messages []aish.ChatMessage `json:"messages"`
	Stream   bool               `json:"stream"`
	Options  ollamaOptions      `json:"options"`
}

// Temperature is never omitted: 0.0 is a meaningful setting.
type ollamaOptions struct {
	Temperature float64 `json:"temperature"`
	NumPredict  int     `json:"num_predict"`
}

type ollamaChatResponse struct {
	Message aish.ChatMessage `json:"message"`
	Error   string           `json:"error,omitempty"`
}

type ollamaTagsResponse struct {
	Models []ollamaModel `json:"models"`
}

type ollamaModel struct {
	Name  string `json:"name"`
	Model string `json:"model"`
}

type ollamaErrorResponse struct {
	Error string `json:"error"`
}

// Invoke sends a non-streaming /api/chat request.
func (c *OllamaClient) Invoke(ctx context.Context, model string, messages []aish.ChatMessage, temperature float64, maxTokens int) (string, error) {
	if err := checkInvoke(model, messages); err != nil {
		return "", c.fail(model, err)
	}

	reqBody := ollamaChatRequest{
		Model:    model,
		Messages: messages,
		Stream:   false,
		Options: ollamaOptions{
			Temperature: temperature,
			NumPredict:  maxTokens,
		},
	}

	body, err := c.doJSON(ctx, http.MethodPost, "/api/chat", reqBody)
	if err != nil {
		return "", c.fail(model, err)
	}

	var result ollamaChatResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return "", c.fail(model, fmt.Errorf("failed to parse response: %w (body: %s)", err, string(body)))
	}
	if result.Error != "" {
		return "", c.fail(model, errors.New(result.Error))
	}
	return result.Message.Content, nil
}

// ListModels returns the names of the locally installed models.
func (c *OllamaClient) ListModels(ctx context.Context) ([]string, error) {
	body, err := c.doJSON(ctx, http.MethodGet, "/api/tags", nil)
	if err != nil {
		return nil, c.fail("", err)
	}

	var result ollamaTagsResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, c.fail("", fmt.Errorf("failed to parse tags response: %w", err))
	}

	names := make([]string, 0, len(result.Models))
	for _, m := range result.Models {
		name := m.Name
		if name == "" {
			name = m.Model
		}
		if name != "" {
			names = append(names, name)
		}
	}
	return names, nil
}

// doJSON performs a request and returns the body of a 2xx response.
func (c *OllamaClient) doJSON(ctx context.Context, method, path string, payload any) ([]byte, error) {
	var reader io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var errResp ollamaErrorResponse
		if json.Unmarshal(body, &errResp) == nil && errResp.Error != "" {
			return nil, fmt.Errorf("status %d: %s", resp.StatusCode, errResp.Error)
		}
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return body, nil
}

func (c *OllamaClient) fail(model string, err error) error {
	return &aish.BackendError{Backend: aish.BackendOllama, Model: model, Err: err}
}
