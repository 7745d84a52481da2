package nrepl

import "github.com/kennyjwilli/claude-clojure-tools/observability"

// Client event types emitted during protocol operations.
const (
	EventSessionCloned   observability.EventType = "nrepl.session.cloned"
	EventEvalStart       observability.EventType = "nrepl.eval.start"
	EventEvalDone        observability.EventType = "nrepl.eval.done"
	EventEvalTimeout     observability.EventType = "nrepl.eval.timeout"
	EventInterruptFailed observability.EventType = "nrepl.interrupt.failed"
	EventDiagnosticSkip  observability.EventType = "nrepl.diagnostic.skipped"
)
