// Package aish defines the shared types of the aish command generator: chat
// messages, error kinds, and the request/response messages exchanged with
// shell integrations over the Unix domain socket (JSON, one per line).
package aish

import (
	"errors"
	"fmt"
)

// Role is the author of a chat message.
type Role string

const (
	RoleSystem Role = "system"
	RoleUser   Role = "user"
)

// ChatMessage is one entry of the conversation sent to the backend.
type ChatMessage struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

var (
	// ErrEmptyInstruction is returned when the instruction has no
	// non-whitespace characters. No backend call is made.
	ErrEmptyInstruction = errors.New("instruction cannot be empty")
	// ErrBackendUnavailable matches every adapter-level failure.
	ErrBackendUnavailable = errors.New("backend unavailable")
	// ErrGenerationFailed matches every generator-level failure wrapping a
	// backend error.
	ErrGenerationFailed = errors.New("generation failed")
	// ErrTemperatureRange is returned by ValidateTemperature.
	ErrTemperatureRange = errors.New("temperature must be between 0.0 and 1.0")
)

// BackendError reports a failed call to the inference backend. Network,
// status and decoding failures are not distinguished.
type BackendError struct {
	// Backend names the adapter ("ollama", "openai").
	Backend string
	// Model is the identifier the call was made with.
	Model string
	Err   error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("%s api error: %v", e.Backend, e.Err)
}

func (e *BackendError) Unwrap() []error {
	return []error{ErrBackendUnavailable, e.Err}
}

// GenerationError wraps a backend failure seen by the command generator.
type GenerationError struct {
	Err error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generation failed: %v", e.Err)
}

func (e *GenerationError) Unwrap() []error {
	return []error{ErrGenerationFailed, e.Err}
}

// ValidateTemperature checks t against the closed unit interval.
func ValidateTemperature(t float64) error {
	if t < 0 || t > 1 || t != t {
		return fmt.Errorf("%w (got %v)", ErrTemperatureRange, t)
	}
	return nil
}

// Error codes returned to socket clients.
const (
	CodeEmptyInstruction   = "empty_instruction"
	CodeGenerationFailed   = "generation_failed"
	CodeBackendUnavailable = "backend_unavailable"
	CodeInvalidRequest     = "invalid_request"
	CodeConfigError        = "config_error"
	CodeUnknownAction      = "unknown_action"
)

// ErrorCode maps an error to its wire code.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrEmptyInstruction):
		return CodeEmptyInstruction
	case errors.Is(err, ErrTemperatureRange):
		return CodeInvalidRequest
	case errors.Is(err, ErrGenerationFailed):
		return CodeGenerationFailed
	case errors.Is(err, ErrBackendUnavailable):
		return CodeBackendUnavailable
	default:
		return CodeGenerationFailed
	}
}

// Request is sent from a shell integration to the server.
type Request struct {
	// RequestID is assigned by the client and echoed back in the response.
	RequestID int `json:"request_id"`
	// Instruction is the natural-language request.
	Instruction string `json:"instruction"`
	// Model is an alias or fully-qualified identifier. Empty means the
	// configured default.
	Model string `json:"model,omitempty"`
	// Temperature overrides the configured default when set.
	Temperature *float64 `json:"temperature,omitempty"`
	// SessionID identifies the shell session. A newer request in the same
	// session cancels the one in flight.
	SessionID string `json:"session_id,omitempty"`
}

// Response is sent from the server back to the shell integration.
type Response struct {
	RequestID int `json:"request_id"`
	// Command is the generated shell command.
	Command string `json:"command"`
	// Model is the resolved backend identifier used for generation.
	Model string `json:"model,omitempty"`
	// Error is set when generation failed; Command is empty then.
	Error *Error `json:"error,omitempty"`
}

// Error describes a server-side error returned to the client.
type Error struct {
	// Code is a machine-readable identifier (e.g. "empty_instruction").
	Code string `json:"code"`
	// Message is a human-readable description.
	Message string `json:"message"`
}

// NewError builds a wire error from err.
func NewError(err error) *Error {
	return &Error{Code: ErrorCode(err), Message: err.Error()}
}

// ModelsRequest asks the server for the installed backend models.
type ModelsRequest struct {
	// Type is always "models".
	Type string `json:"type"`
}

// ModelsResponse lists installed models and the alias table.
type ModelsResponse struct {
	Models  []string          `json:"models"`
	Aliases map[string]string `json:"aliases,omitempty"`
	Error   *Error            `json:"error,omitempty"`
}

// ConfigRequest is sent for configuration operations.
type ConfigRequest struct {
	// Action is one of "get", "defaults", "validate" or "aliases".
	Action string `json:"action"`
}

// ConfigResponse answers a ConfigRequest.
type ConfigResponse struct {
	Config   *Config           `json:"config,omitempty"`
	Aliases  map[string]string `json:"aliases,omitempty"`
	Warnings []string          `json:"warnings,omitempty"`
	Error    *Error            `json:"error,omitempty"`
}
