package readiness

import (
	"fmt"
	"time"
)

// TimeoutError means the readiness line never appeared: either the timeout
// elapsed or the container stopped producing logs first.
type TimeoutError struct {
	Pattern  string
	Timeout  time.Duration
	Exited   bool
	ExitCode int
	Err      error
	// Recent holds the last unmatched log lines.
	Recent []string
}

func (e *TimeoutError) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("log stream ended before %q appeared: %v", e.Pattern, e.Err)
	case e.Exited:
		return fmt.Sprintf("container exited (code %d) before %q appeared in its logs", e.ExitCode, e.Pattern)
	default:
		return fmt.Sprintf("%q did not appear in container logs within %s", e.Pattern, e.Timeout)
	}
}

func (e *TimeoutError) Unwrap() error {
	return e.Err
}
