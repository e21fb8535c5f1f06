// Package server answers command-generation requests from shell
// integrations over a Unix domain socket.
//
// Each connection carries one JSON request line and receives one JSON
// response line.
package server

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"sync"

	"github.com/saisasanky/aish"
	"github.com/saisasanky/aish/generate"
	"github.com/saisasanky/aish/shell"
)

// Generator turns an instruction into a command.
type Generator interface {
	GenerateCommand(ctx context.Context, instruction, model string, temperature float64) (string, error)
	Resolve(model string) string
	Aliases() *generate.AliasTable
}

// Catalog lists the models installed on the backend.
type Catalog interface {
	Models(ctx context.Context) ([]string, error)
}

// maxRequestBytes bounds a single request line.
const maxRequestBytes = 1 << 20

// sessionEntry tracks a cancellable in-flight request for a session. Entries
// are compared by pointer; request IDs are optional and may repeat.
type sessionEntry struct {
	requestID int
	cancel    context.CancelFunc
}

// Server listens on a Unix domain socket for generation requests.
type Server struct {
	listener net.Listener
	sockPath string
	gen      Generator
	catalog  Catalog
	cfg      *aish.Config

	closeOnce sync.Once

	mu       sync.Mutex
	sessions map[string]*sessionEntry
}

// ResolveSocketPath returns the socket location.
// Resolution order: $AISH_SOCKET > $XDG_RUNTIME_DIR/aish.sock > /tmp/aish-<uid>.sock
func ResolveSocketPath() string {
	if path := os.Getenv("AISH_SOCKET"); path != "" {
		return path
	}
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return filepath.Join(dir, "aish.sock")
	}
	return fmt.Sprintf("/tmp/aish-%d.sock", os.Getuid())
}

// New creates a server bound to sockPath. cfg supplies the default model and
// temperature for requests that omit them; catalog may be nil, in which case
// models requests fail with backend_unavailable.
func New(sockPath string, gen Generator, catalog Catalog, cfg *aish.Config) (*Server, error) {
	if cfg == nil {
		cfg = aish.DefaultConfig()
	}
	// A stale socket from a crashed server would make Listen fail.
	if err := os.Remove(sockPath); err != nil && !os.IsNotExist(err) {
		return nil, err
	}

	listener, err := net.Listen("unix", sockPath)
	if err != nil {
		return nil, err
	}

	return &Server{
		listener: listener,
		sockPath: sockPath,
		gen:      gen,
		catalog:  catalog,
		cfg:      cfg,
		sessions: make(map[string]*sessionEntry),
	}, nil
}

// SocketPath returns the path the server listens on.
func (s *Server) SocketPath() string { return s.sockPath }

// Serve accepts connections until the server is closed.
func (s *Server) Serve() error {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		go s.handleConn(conn)
	}
}

// Close stops accepting connections, cancels in-flight requests and removes
// the socket file.
func (s *Server) Close() {
	s.closeOnce.Do(func() {
		s.listener.Close()
		os.Remove(s.sockPath)

		s.mu.Lock()
		for sid, entry := range s.sessions {
			entry.cancel()
			delete(s.sessions, sid)
		}
		s.mu.Unlock()
	})
}

// envelope holds the fields used to route a request line.
type envelope struct {
	Type   string `json:"type"`
	Action string `json:"action"`
}

func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 64*1024), maxRequestBytes)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			slog.Warn("unreadable request", "error", err)
			writeJSON(conn, &aish.Response{Error: &aish.Error{Code: aish.CodeInvalidRequest, Message: "unreadable request: " + err.Error()}})
		}
		return
	}

	raw := scanner.Bytes()
	slog.Debug("request", "bytes", len(raw))

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		slog.Warn("invalid request", "error", err)
		writeJSON(conn, &aish.Response{Error: &aish.Error{Code: aish.CodeInvalidRequest, Message: "malformed request: " + err.Error()}})
		return
	}

	switch {
	case env.Type == "models":
		writeJSON(conn, s.handleModels())
	case env.Type != "":
		writeJSON(conn, &aish.Response{Error: &aish.Error{Code: aish.CodeInvalidRequest, Message: "unknown request type: " + env.Type}})
	case env.Action != "":
		writeJSON(conn, s.handleConfig(env.Action))
	default:
		var req aish.Request
		if err := json.Unmarshal(raw, &req); err != nil {
			writeJSON(conn, &aish.Response{Error: &aish.Error{Code: aish.CodeInvalidRequest, Message: err.Error()}})
			return
		}
		s.handleGenerate(conn, &req)
	}
}

func (s *Server) handleGenerate(conn net.Conn, req *aish.Request) {
	// Cancel any in-flight request for this session and create a new context.
	ctx, cancel := context.WithCancel(context.Background())
	sid := req.SessionID
	reqID := req.RequestID
	entry := &sessionEntry{requestID: reqID, cancel: cancel}
	if sid != "" {
		s.mu.Lock()
		if prev, ok := s.sessions[sid]; ok {
			prev.cancel()
		}
		s.sessions[sid] = entry
		s.mu.Unlock()
	}
	defer func() {
		cancel()
		if sid != "" {
			s.mu.Lock()
			if cur, ok := s.sessions[sid]; ok && cur == entry {
				delete(s.sessions, sid)
			}
			s.mu.Unlock()
		}
	}()

	resp := s.generate(ctx, req)

	// Superseded: the client has already moved on.
	if ctx.Err() != nil {
		slog.Debug("request superseded", "request_id", reqID, "session", sid)
		return
	}
	writeJSON(conn, resp)
}

func (s *Server) generate(ctx context.Context, req *aish.Request) *aish.Response {
	resp := &aish.Response{RequestID: req.RequestID}

	temperature := s.cfg.Generation.Temperature
	if req.Temperature != nil {
		temperature = *req.Temperature
	}
	if err := aish.ValidateTemperature(temperature); err != nil {
		resp.Error = aish.NewError(err)
		return resp
	}

	model := req.Model
	if model == "" {
		model = aish.ResolveModel(s.cfg)
	}
	resp.Model = s.gen.Resolve(model)

	cmd, err := s.gen.GenerateCommand(ctx, req.Instruction, model, temperature)
	if err != nil {
		if ctx.Err() != nil {
			// Superseded; handleGenerate drops the response.
			return resp
		}
		slog.Warn("generation failed", "request_id", req.RequestID, "error", err)
		resp.Error = aish.NewError(err)
		return resp
	}
	slog.Info("generated command", "request_id", req.RequestID, "model", resp.Model, "command", shell.Redact(cmd))
	resp.Command = cmd
	return resp
}

func (s *Server) handleModels() *aish.ModelsResponse {
	resp := &aish.ModelsResponse{Models: []string{}, Aliases: s.gen.Aliases().Map()}
	if s.catalog == nil {
		resp.Error = &aish.Error{Code: aish.CodeBackendUnavailable, Message: "no model catalog configured"}
		return resp
	}
	models, err := s.catalog.Models(context.Background())
	if err != nil {
		resp.Error = aish.NewError(err)
		return resp
	}
	resp.Models = models
	return resp
}

func (s *Server) handleConfig(action string) *aish.ConfigResponse {
	var resp aish.ConfigResponse

	switch action {
	case "get":
		cfg, err := aish.LoadConfig()
		if err != nil {
			resp.Error = &aish.Error{Code: aish.CodeConfigError, Message: err.Error()}
		} else {
			resp.Config = cfg
		}

	case "defaults":
		resp.Config = aish.DefaultConfig()

	case "validate":
		cfg, err := aish.LoadConfig()
		if err != nil {
			resp.Error = &aish.Error{Code: aish.CodeConfigError, Message: err.Error()}
		} else {
			resp.Warnings = aish.ValidateConfig(cfg)
		}

	case "aliases":
		resp.Aliases = s.gen.Aliases().Map()

	default:
		resp.Error = &aish.Error{
			Code:    aish.CodeUnknownAction,
			Message: "unknown config action: " + action,
		}
	}
	return &resp
}

func writeJSON(conn net.Conn, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		slog.Error("failed to marshal response", "error", err)
		return
	}
	slog.Debug("response", "bytes", len(data))
	if _, err := conn.Write(append(data, '\n')); err != nil {
		slog.Debug("failed to write response", "error", err)
	}
}
