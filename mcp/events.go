package mcp

import "github.com/kennyjwilli/claude-clojure-tools/observability"

// Dispatcher event types emitted while serving the RPC stream.
const (
	EventRequest       observability.EventType = "mcp.request"
	EventParseError    observability.EventType = "mcp.parse.error"
	EventDispatchError observability.EventType = "mcp.dispatch.error"
)
