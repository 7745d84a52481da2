package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/kennyjwilli/claude-clojure-tools/observability"
	"github.com/kennyjwilli/claude-clojure-tools/tools"
)

// maxLineBytes bounds one request line. Evaluation code travels inline, so
// the bound is generous.
const maxLineBytes = 4 * 1024 * 1024

// ToolExecutor abstracts tool listing and execution for testability.
// The default implementation delegates to the global tools package.
type ToolExecutor interface {
	List() []tools.Tool
	Execute(ctx context.Context, name string, args json.RawMessage) (tools.Result, error)
}

type globalToolExecutor struct{}

func (globalToolExecutor) List() []tools.Tool {
	return tools.List()
}

func (globalToolExecutor) Execute(ctx context.Context, name string, args json.RawMessage) (tools.Result, error) {
	return tools.Execute(ctx, name, args)
}

// Server reads newline-delimited JSON-RPC requests from one input stream and
// writes responses to one output stream. The read loop is single-threaded:
// one request is processed at a time, and a malformed line or failing
// handler answers that line without terminating the loop.
type Server struct {
	name     string
	version  string
	tools    ToolExecutor
	observer observability.Observer
}

// Option configures a Server.
type Option func(*Server)

// WithToolExecutor overrides the default global tool executor.
func WithToolExecutor(e ToolExecutor) Option {
	return func(s *Server) { s.tools = e }
}

// WithObserver overrides the default no-op observer.
func WithObserver(o observability.Observer) Option {
	return func(s *Server) { s.observer = o }
}

// NewServer creates a Server identified as name/version in the initialize
// handshake.
func NewServer(name, version string, opts ...Option) *Server {
	s := &Server{
		name:     name,
		version:  version,
		tools:    globalToolExecutor{},
		observer: observability.NoOpObserver{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Serve processes request lines from in until EOF or context cancellation.
// Every failure is answered per-line; only stream-level conditions end the
// loop.
func (s *Server) Serve(ctx context.Context, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}

		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		resp := s.handleLine(ctx, line)
		if resp == nil {
			continue
		}
		if err := writeResponse(out, resp); err != nil {
			return fmt.Errorf("failed to write response: %w", err)
		}
	}
	return scanner.Err()
}

// handleLine parses and dispatches one request line. A nil return means no
// response is owed (notifications).
func (s *Server) handleLine(ctx context.Context, line []byte) (resp *Response) {
	var req Request
	if err := json.Unmarshal(line, &req); err != nil {
		s.emit(ctx, EventParseError, observability.LevelWarning, map[string]any{"error": err.Error()})
		return errorResponse(nil, CodeParseError, "parse error: "+err.Error())
	}

	// A panicking handler answers its own line; the loop survives.
	defer func() {
		if r := recover(); r != nil {
			s.emit(ctx, EventDispatchError, observability.LevelError, map[string]any{
				"method": req.Method,
				"panic":  fmt.Sprint(r),
			})
			if req.IsNotification() {
				resp = nil
				return
			}
			resp = errorResponse(req.ID, CodeInternalError, fmt.Sprintf("internal error: %v", r))
		}
	}()

	s.emit(ctx, EventRequest, observability.LevelVerbose, map[string]any{"method": req.Method})

	if req.IsNotification() {
		// notifications/initialized and friends require no reply.
		return nil
	}

	switch req.Method {
	case "initialize":
		return resultResponse(req.ID, InitializeResult{
			ProtocolVersion: ProtocolVersion,
			Capabilities:    Capabilities{Tools: map[string]any{}},
			ServerInfo:      ServerInfo{Name: s.name, Version: s.version},
		})
	case "ping":
		return resultResponse(req.ID, map[string]any{})
	case "tools/list":
		return resultResponse(req.ID, map[string]any{"tools": s.tools.List()})
	case "tools/call":
		return s.handleCall(ctx, &req)
	default:
		return errorResponse(req.ID, CodeMethodNotFound, "unknown method: "+req.Method)
	}
}

func (s *Server) handleCall(ctx context.Context, req *Request) *Response {
	var params CallToolParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errorResponse(req.ID, CodeInvalidParams, "invalid tools/call params: "+err.Error())
	}
	if params.Name == "" {
		return errorResponse(req.ID, CodeInvalidParams, "tool name is required")
	}

	result, err := s.tools.Execute(ctx, params.Name, params.Arguments)
	if err != nil {
		s.emit(ctx, EventDispatchError, observability.LevelWarning, map[string]any{
			"tool":  params.Name,
			"error": err.Error(),
		})
		return errorResponse(req.ID, CodeInvalidParams, err.Error())
	}

	return resultResponse(req.ID, CallToolResult{
		Content:           []ContentBlock{{Type: "text", Text: result.Content}},
		StructuredContent: result.Structured,
		IsError:           result.IsError,
	})
}

func resultResponse(id json.RawMessage, result any) *Response {
	return &Response{JSONRPC: "2.0", ID: normalizeID(id), Result: result}
}

func errorResponse(id json.RawMessage, code int, message string) *Response {
	return &Response{JSONRPC: "2.0", ID: normalizeID(id), Error: &ErrorObject{Code: code, Message: message}}
}

// normalizeID substitutes the JSON null id when a request's id was absent or
// unparseable, keeping every response well-formed.
func normalizeID(id json.RawMessage) json.RawMessage {
	if len(id) == 0 {
		return json.RawMessage("null")
	}
	return id
}

func writeResponse(out io.Writer, resp *Response) error {
	data, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	data = append(data, '\n')
	_, err = out.Write(data)
	return err
}

func (s *Server) emit(ctx context.Context, typ observability.EventType, level observability.Level, data map[string]any) {
	s.observer.OnEvent(ctx, observability.Event{
		Type:      typ,
		Level:     level,
		Timestamp: time.Now(),
		Source:    "mcp.Server",
		Data:      data,
	})
}
