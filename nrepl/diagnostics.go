package nrepl

import (
	"context"
	"strings"
	"time"

	"github.com/kennyjwilli/claude-clojure-tools/observability"
)

// stacktraceSnippet asks the server to print its most recent exception's
// stack trace to its error stream.
const stacktraceSnippet = "(clojure.repl/pst *e 48)"

var stacktraceTimeout = 10 * time.Second

// EvalWithStacktrace behaves like Eval, then enriches evaluation failures.
// When any response frame carries an "eval-error" status, a secondary
// evaluation fetches the server's last stack trace; if that fetch produced
// error-stream text, the error-carrying frames are replaced with a single
// synthetic frame holding the trace. The secondary call is best-effort: its
// own failure leaves the primary result untouched and never surfaces.
func (c *Client) EvalWithStacktrace(ctx context.Context, addr, code, session string, timeout time.Duration) ([]Message, error) {
	msgs, err := c.Eval(ctx, addr, code, session, timeout)
	if err != nil {
		return nil, err
	}

	var rest []Message
	failed := false
	for _, msg := range msgs {
		if msg.HasStatus("eval-error") {
			failed = true
			continue
		}
		if _, hasErr := msg.Err(); hasErr {
			// Error-stream frames belong to the failure being replaced.
			continue
		}
		rest = append(rest, msg)
	}
	if !failed {
		return msgs, nil
	}

	diag, err := c.Eval(ctx, addr, stacktraceSnippet, session, stacktraceTimeout)
	if err != nil {
		c.emit(ctx, EventDiagnosticSkip, observability.LevelVerbose, "nrepl.Client.EvalWithStacktrace", map[string]any{
			"session": session,
			"error":   err.Error(),
		})
		return msgs, nil
	}

	var trace strings.Builder
	for _, msg := range diag {
		if text, ok := msg.Err(); ok {
			trace.WriteString(text)
		}
	}
	if trace.Len() == 0 {
		return msgs, nil
	}

	synthetic := Message{
		"id":      msgs[len(msgs)-1].ID(),
		"session": session,
		"err":     trace.String(),
		"status":  []any{"eval-error"},
	}
	return append(rest, synthetic), nil
}
