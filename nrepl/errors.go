package nrepl

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for protocol operations.
var (
	// ErrTimeout marks a receive that saw no data within its read deadline.
	ErrTimeout = errors.New("receive timed out")
	// ErrSession marks a clone handshake that ended without a new session.
	ErrSession = errors.New("session clone failed")
)

// EvalTimeoutError is returned when an evaluation reaches no terminal status
// within its time bound. A best-effort interrupt has already been sent to the
// server by the time the caller sees this error.
type EvalTimeoutError struct {
	Timeout time.Duration
}

func (e *EvalTimeoutError) Error() string {
	return fmt.Sprintf("evaluation timed out after %v", e.Timeout)
}
