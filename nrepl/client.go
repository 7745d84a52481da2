package nrepl

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/kennyjwilli/claude-clojure-tools/observability"
)

// Client drives evaluation round-trips against one nREPL server. Each
// operation dials its own connection; there is no pool and no cross-call
// socket reuse, so a stuck call can never block a later one.
//
// Message ids combine a per-instance UUID with an atomic counter, so ids are
// unique under concurrent callers and across client instances in the same
// process.
type Client struct {
	id       string
	counter  atomic.Int64
	observer observability.Observer
}

// Option configures a Client.
type Option func(*Client)

// WithObserver overrides the default no-op observer.
func WithObserver(o observability.Observer) Option {
	return func(c *Client) { c.observer = o }
}

// NewClient creates a Client with a fresh UUIDv7 instance identity.
func NewClient(opts ...Option) *Client {
	c := &Client{
		id:       uuid.Must(uuid.NewV7()).String(),
		observer: observability.NoOpObserver{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// nextID returns a message id no other caller of this client, nor any other
// client in the process, will ever observe.
func (c *Client) nextID() string {
	return fmt.Sprintf("%s-%d", c.id, c.counter.Add(1))
}

// Clone establishes a new server-side session and returns its identifier.
// The session owns evaluation state (namespace, defined vars) for the
// lifetime of the process; it is never explicitly destroyed.
func (c *Client) Clone(ctx context.Context, addr string) (string, error) {
	conn, err := Dial(addr, cloneTimeout)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrSession, err)
	}
	defer conn.Close()

	if err := conn.Send(Message{"op": "clone", "id": c.nextID()}); err != nil {
		return "", fmt.Errorf("%w: %w", ErrSession, err)
	}

	for {
		msg, err := conn.Receive()
		if err != nil {
			return "", fmt.Errorf("%w: no new-session before receive failed: %w", ErrSession, err)
		}
		if session, ok := msg.getString("new-session"); ok && session != "" {
			c.emit(ctx, EventSessionCloned, observability.LevelVerbose, "nrepl.Client.Clone", map[string]any{
				"session": session,
			})
			return session, nil
		}
	}
}

const cloneTimeout = 15 * time.Second

// Eval sends code for evaluation in the given session and returns every
// correlated response frame through the terminal "done" status, in arrival
// order.
//
// The receive loop runs on its own goroutine and is raced against the
// timeout clock. Frames whose id or session do not match are discarded: the
// wire is multiplexed and a session may still deliver stale frames from a
// prior timed-out call. On timeout, whether the clock fires or the socket
// read deadline trips first, a best-effort interrupt is sent on a fresh
// connection and the call fails with *EvalTimeoutError.
func (c *Client) Eval(ctx context.Context, addr, code, session string, timeout time.Duration) ([]Message, error) {
	conn, err := Dial(addr, timeout)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	id := c.nextID()
	c.emit(ctx, EventEvalStart, observability.LevelVerbose, "nrepl.Client.Eval", map[string]any{
		"id":      id,
		"session": session,
		"timeout": timeout.String(),
	})

	if err := conn.Send(Message{
		"op":      "eval",
		"code":    code,
		"session": session,
		"id":      id,
	}); err != nil {
		return nil, err
	}

	type outcome struct {
		msgs []Message
		err  error
	}
	done := make(chan outcome, 1)

	go func() {
		var msgs []Message
		for {
			msg, err := conn.Receive()
			if err != nil {
				done <- outcome{msgs: msgs, err: err}
				return
			}
			if msg.ID() != id || msg.Session() != session {
				continue
			}
			msgs = append(msgs, msg)
			if msg.HasStatus("done") {
				done <- outcome{msgs: msgs}
				return
			}
		}
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case out := <-done:
		if out.err != nil {
			if errors.Is(out.err, ErrTimeout) {
				return nil, c.failTimeout(ctx, addr, session, timeout)
			}
			return nil, out.err
		}
		c.emit(ctx, EventEvalDone, observability.LevelVerbose, "nrepl.Client.Eval", map[string]any{
			"id":     id,
			"frames": len(out.msgs),
		})
		return out.msgs, nil
	case <-timer.C:
		// The receive goroutine is abandoned; the deferred close tears the
		// socket down and any late frame would fail the id+session filter on
		// a future call anyway.
		return nil, c.failTimeout(ctx, addr, session, timeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// failTimeout sends a best-effort interrupt for the session and returns the
// timeout error. Interrupt is cleanup, not a precondition: its own failure
// never masks the timeout.
func (c *Client) failTimeout(ctx context.Context, addr, session string, timeout time.Duration) error {
	c.emit(ctx, EventEvalTimeout, observability.LevelWarning, "nrepl.Client.Eval", map[string]any{
		"session": session,
		"timeout": timeout.String(),
	})
	c.interrupt(ctx, addr, session)
	return &EvalTimeoutError{Timeout: timeout}
}

func (c *Client) interrupt(ctx context.Context, addr, session string) {
	conn, err := Dial(addr, 0)
	if err != nil {
		c.emit(ctx, EventInterruptFailed, observability.LevelWarning, "nrepl.Client.interrupt", map[string]any{
			"session": session,
			"error":   err.Error(),
		})
		return
	}
	defer conn.Close()

	if err := conn.Send(Message{"op": "interrupt", "session": session}); err != nil {
		c.emit(ctx, EventInterruptFailed, observability.LevelWarning, "nrepl.Client.interrupt", map[string]any{
			"session": session,
			"error":   err.Error(),
		})
	}
}

func (c *Client) emit(ctx context.Context, typ observability.EventType, level observability.Level, source string, data map[string]any) {
	c.observer.OnEvent(ctx, observability.Event{
		Type:      typ,
		Level:     level,
		Timestamp: time.Now(),
		Source:    source,
		Data:      data,
	})
}
