package launcher

import "errors"

// Sentinel errors for server acquisition.
var (
	// ErrStartup marks a launched server process that ended or misbehaved
	// before announcing its port.
	ErrStartup = errors.New("nREPL server startup failed")
	// ErrNoExistingServer marks require-existing mode finding no usable
	// discovery file.
	ErrNoExistingServer = errors.New("no existing nREPL server found")
)
