package nrepl

import "time"

// SetStacktraceTimeout overrides the diagnostic fetch timeout for tests and
// returns a restore function.
func SetStacktraceTimeout(d time.Duration) (restore func()) {
	saved := stacktraceTimeout
	stacktraceTimeout = d
	return func() { stacktraceTimeout = saved }
}
