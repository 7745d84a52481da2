// Package bridge composes the launcher, the nREPL client, and the RPC
// dispatcher into the tool-serving runtime: RPC requests arrive over stdio,
// await server readiness, and map onto evaluation round-trips.
//
//	cfg := bridge.DefaultConfig()
//	b, err := bridge.New(&cfg)
//	err = b.Serve(ctx, os.Stdin, os.Stdout)
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/kennyjwilli/claude-clojure-tools/launcher"
	"github.com/kennyjwilli/claude-clojure-tools/mcp"
	"github.com/kennyjwilli/claude-clojure-tools/nrepl"
	"github.com/kennyjwilli/claude-clojure-tools/observability"
	"github.com/kennyjwilli/claude-clojure-tools/tools"
)

// ServerName identifies this server in the initialize handshake.
const ServerName = "claude-clojure-tools"

// ToolName is the one evaluation-capable tool the bridge exposes.
const ToolName = "repl_eval"

const defaultEvalTimeout = 30 * time.Second

// Starter abstracts launcher startup for testability. The default
// implementation is a *launcher.Launcher.
type Starter interface {
	Start(ctx context.Context) *launcher.Gate
}

// Option configures a Bridge. Options run before the config-driven
// subsystems are created, so an injected client or starter wins.
type Option func(*Bridge)

// WithObserver overrides the default SlogObserver.
func WithObserver(o observability.Observer) Option {
	return func(b *Bridge) { b.observer = o }
}

// WithClient overrides the config-created protocol client.
func WithClient(c *nrepl.Client) Option {
	return func(b *Bridge) { b.client = c }
}

// WithStarter overrides the config-created launcher.
func WithStarter(s Starter) Option {
	return func(b *Bridge) { b.starter = s }
}

// WithVersion sets the server version reported to RPC clients.
func WithVersion(v string) Option {
	return func(b *Bridge) { b.version = v }
}

// Bridge is the tool-serving runtime.
type Bridge struct {
	cfg      *Config
	observer observability.Observer
	client   *nrepl.Client
	starter  Starter
	gate     *launcher.Gate
	version  string
}

// New creates a Bridge from configuration. The protocol client and launcher
// are initialized from the config; functional options applied after
// initialization can override any subsystem for testing.
func New(cfg *Config, opts ...Option) (*Bridge, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	b := &Bridge{
		cfg:      cfg,
		observer: observability.NewSlogObserver(slog.Default()),
		version:  "dev",
	}
	for _, opt := range opts {
		opt(b)
	}

	if b.client == nil {
		b.client = nrepl.NewClient(nrepl.WithObserver(b.observer))
	}
	if b.starter == nil {
		l, err := launcher.New(&cfg.Config, b.client, launcher.WithObserver(b.observer))
		if err != nil {
			return nil, err
		}
		b.starter = l
	}

	return b, nil
}

// Serve arms the readiness gate, registers the evaluation tool, and runs the
// RPC dispatcher over the given streams until in is exhausted or ctx ends.
// Startup runs in the background: the first tools/call blocks on readiness,
// while initialize and tools/list answer immediately.
func (b *Bridge) Serve(ctx context.Context, in io.Reader, out io.Writer) error {
	b.gate = b.starter.Start(ctx)

	if err := b.registerEvalTool(); err != nil {
		return err
	}

	srv := mcp.NewServer(ServerName, b.version, mcp.WithObserver(b.observer))
	return srv.Serve(ctx, in, out)
}

func (b *Bridge) registerEvalTool() error {
	tool := EvalTool()
	err := tools.Register(tool, b.handleEval)
	if errors.Is(err, tools.ErrAlreadyExists) {
		return tools.Replace(tool, b.handleEval)
	}
	return err
}

// EvalTool returns the repl_eval tool descriptor.
func EvalTool() tools.Tool {
	return tools.Tool{
		Name:        ToolName,
		Description: "Evaluates Clojure code in a persistent REPL session. Defined vars and namespace changes survive across calls.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"code": map[string]any{
					"type":        "string",
					"description": "Clojure code to evaluate.",
				},
				"timeout": map[string]any{
					"type":        "number",
					"description": "Evaluation timeout in seconds.",
					"default":     30,
				},
			},
			"required": []string{"code"},
		},
		OutputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"values": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
				"stdout": map[string]any{"type": "string"},
				"stderr": map[string]any{"type": "string"},
			},
		},
	}
}

func (b *Bridge) handleEval(ctx context.Context, raw json.RawMessage) (tools.Result, error) {
	var args struct {
		Code    string  `json:"code"`
		Timeout float64 `json:"timeout"`
	}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &args); err != nil {
			return tools.Result{Content: "invalid arguments: " + err.Error(), IsError: true}, nil
		}
	}
	if args.Code == "" {
		return tools.Result{Content: "code is required", IsError: true}, nil
	}

	timeout := defaultEvalTimeout
	if args.Timeout > 0 {
		timeout = time.Duration(args.Timeout * float64(time.Second))
	}

	ready, err := b.gate.Await(ctx)
	if err != nil {
		return tools.Result{Content: "REPL server unavailable: " + err.Error(), IsError: true}, nil
	}

	msgs, err := b.client.EvalWithStacktrace(ctx, ready.Addr, args.Code, ready.Session, timeout)
	if err != nil {
		return tools.Result{Content: err.Error(), IsError: true}, nil
	}

	failed := false
	for _, msg := range msgs {
		if msg.HasStatus("eval-error") {
			failed = true
			break
		}
	}

	result := nrepl.Project(msgs)
	text, err := json.Marshal(result)
	if err != nil {
		return tools.Result{Content: "failed to encode result: " + err.Error(), IsError: true}, nil
	}

	return tools.Result{Content: string(text), Structured: result, IsError: failed}, nil
}
