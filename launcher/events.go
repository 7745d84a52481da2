package launcher

import "github.com/kennyjwilli/claude-clojure-tools/observability"

// Launcher event types emitted during server acquisition.
const (
	EventStarting        observability.EventType = "launcher.starting"
	EventPortDiscovered  observability.EventType = "launcher.port.discovered"
	EventLaunched        observability.EventType = "launcher.process.launched"
	EventBootstrapFailed observability.EventType = "launcher.bootstrap.failed"
	EventReady           observability.EventType = "launcher.ready"
	EventFailed          observability.EventType = "launcher.failed"
)
