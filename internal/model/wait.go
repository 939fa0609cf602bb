package model

import (
	"errors"
	"fmt"
	"regexp"
	"time"
)

// WaitCondition is what the readiness waiter looks for in a container's
// log stream.
type WaitCondition struct {
	Pattern string
	// Regexp treats Pattern as a regular expression instead of a substring.
	Regexp       bool
	Timeout      time.Duration
	PollInterval time.Duration
}

// Validate checks that the condition can be waited on.
func (w WaitCondition) Validate() error {
	if w.Pattern == "" {
		return errors.New("wait condition: empty pattern")
	}
	if w.Timeout <= 0 {
		return fmt.Errorf("wait condition: timeout must be positive, got %s", w.Timeout)
	}
	if w.Regexp {
		if _, err := regexp.Compile(w.Pattern); err != nil {
			return fmt.Errorf("wait condition: %w", err)
		}
	}
	return nil
}

func (w WaitCondition) String() string {
	if w.Regexp {
		return fmt.Sprintf("/%s/ within %s", w.Pattern, w.Timeout)
	}
	return fmt.Sprintf("%q within %s", w.Pattern, w.Timeout)
}
