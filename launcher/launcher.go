// Package launcher orchestrates nREPL server acquisition: locating an
// already-running server through its discovery file or launching one as a
// subprocess, cloning a session, and publishing a single readiness outcome
// that all evaluation callers await.
package launcher

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"os"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/kennyjwilli/claude-clojure-tools/nrepl"
	"github.com/kennyjwilli/claude-clojure-tools/observability"
)

// portFileName is the discovery file an already-running server writes into
// the working directory: its listening port as plain decimal text.
const portFileName = ".nrepl-port"

// portPattern extracts the announced port from the launched server's
// startup output.
var portPattern = regexp.MustCompile(`port (\d+)`)

// bootstrapSnippet installs convenience helpers into the cloned session.
// These are optional: evaluation works without them.
const bootstrapSnippet = "(require 'clojure.repl 'clojure.pprint)"

const bootstrapTimeout = 10 * time.Second

// Launcher acquires one nREPL server per process and publishes the outcome
// through its Gate exactly once.
type Launcher struct {
	cfg      Config
	client   *nrepl.Client
	observer observability.Observer
	portFile string
	host     string
	gate     *Gate
	start    sync.Once
}

// Option configures a Launcher.
type Option func(*Launcher)

// WithObserver overrides the default no-op observer.
func WithObserver(o observability.Observer) Option {
	return func(l *Launcher) { l.observer = o }
}

// WithPortFile overrides the discovery file path.
func WithPortFile(path string) Option {
	return func(l *Launcher) { l.portFile = path }
}

// New creates a Launcher for the given configuration and protocol client.
func New(cfg *Config, client *nrepl.Client, opts ...Option) (*Launcher, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	l := &Launcher{
		cfg:      *cfg,
		client:   client,
		observer: observability.NoOpObserver{},
		portFile: portFileName,
		host:     "127.0.0.1",
		gate:     NewGate(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Start begins acquisition on a background goroutine and returns the Gate
// callers await. Subsequent calls return the same Gate without re-running
// acquisition.
func (l *Launcher) Start(ctx context.Context) *Gate {
	l.start.Do(func() {
		go l.run(ctx)
	})
	return l.gate
}

func (l *Launcher) run(ctx context.Context) {
	l.emit(ctx, EventStarting, observability.LevelInfo, map[string]any{"mode": string(l.cfg.Mode)})

	port, err := l.obtainPort(ctx)
	if err != nil {
		l.fail(ctx, err)
		return
	}

	addr := net.JoinHostPort(l.host, strconv.Itoa(port))
	session, err := l.client.Clone(ctx, addr)
	if err != nil {
		l.fail(ctx, err)
		return
	}

	// Bootstrap helpers are conveniences; only transport-level failures are
	// fatal to readiness.
	if msgs, err := l.client.Eval(ctx, addr, bootstrapSnippet, session, bootstrapTimeout); err != nil {
		l.emit(ctx, EventBootstrapFailed, observability.LevelWarning, map[string]any{"error": err.Error()})
	} else {
		for _, msg := range msgs {
			if msg.HasStatus("eval-error") {
				l.emit(ctx, EventBootstrapFailed, observability.LevelWarning, map[string]any{"error": "bootstrap snippet evaluation failed"})
				break
			}
		}
	}

	l.emit(ctx, EventReady, observability.LevelInfo, map[string]any{"port": port, "session": session})
	l.gate.Publish(Ready{Addr: addr, Port: port, Session: session}, nil)
}

func (l *Launcher) fail(ctx context.Context, err error) {
	l.emit(ctx, EventFailed, observability.LevelError, map[string]any{"error": err.Error()})
	l.gate.Publish(Ready{}, err)
}

func (l *Launcher) obtainPort(ctx context.Context) (int, error) {
	switch l.cfg.Mode {
	case ModeRequireExisting:
		port, err := l.readPortFile()
		if err != nil {
			return 0, fmt.Errorf("%w: %w", ErrNoExistingServer, err)
		}
		return port, nil
	case ModePreferExisting:
		if port, err := l.readPortFile(); err == nil {
			l.emit(ctx, EventPortDiscovered, observability.LevelVerbose, map[string]any{"port": port})
			return port, nil
		}
		return l.launch(ctx)
	default:
		return l.launch(ctx)
	}
}

func (l *Launcher) readPortFile() (int, error) {
	data, err := os.ReadFile(l.portFile)
	if err != nil {
		return 0, err
	}
	port, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("discovery file %s holds %q, want a port number", l.portFile, strings.TrimSpace(string(data)))
	}
	return port, nil
}

// launch starts the server subprocess and scrapes its announced port from
// startup output. The subprocess outlives the call: it is the REPL server
// for the remainder of the process lifetime.
func (l *Launcher) launch(ctx context.Context) (int, error) {
	args := l.buildArgs()
	cmd := exec.CommandContext(ctx, l.cfg.Command, args...)
	cmd.Stderr = os.Stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrStartup, err)
	}
	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("%w: %w", ErrStartup, err)
	}

	l.emit(ctx, EventLaunched, observability.LevelVerbose, map[string]any{
		"command": l.cfg.Command,
		"args":    strings.Join(args, " "),
	})

	scanner := bufio.NewScanner(stdout)
	for scanner.Scan() {
		line := scanner.Text()
		if m := portPattern.FindStringSubmatch(line); m != nil {
			port, _ := strconv.Atoi(m[1])
			// Keep draining so the subprocess never blocks on a full pipe,
			// and reap it when it eventually exits.
			go func() {
				for scanner.Scan() {
				}
				_ = cmd.Wait()
			}()
			return port, nil
		}
	}

	_ = cmd.Wait()
	return 0, fmt.Errorf("%w: process ended before announcing a port", ErrStartup)
}

func (l *Launcher) buildArgs() []string {
	deps := fmt.Sprintf("{:deps {nrepl/nrepl {:mvn/version %q}}}", l.cfg.ServerVersion)
	args := []string{"-Sdeps", deps, "-M", "-m", "nrepl.cmdline"}
	return append(args, l.cfg.ExtraFlags...)
}

func (l *Launcher) emit(ctx context.Context, typ observability.EventType, level observability.Level, data map[string]any) {
	l.observer.OnEvent(ctx, observability.Event{
		Type:      typ,
		Level:     level,
		Timestamp: time.Now(),
		Source:    "launcher.Launcher",
		Data:      data,
	})
}
