// Package readiness blocks until a container reports, through its log
// stream, that it can accept traffic.
package readiness

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/rusenback/dockersmoke/internal/model"
)

const (
	DefaultPollInterval = 500 * time.Millisecond

	minPollInterval = 100 * time.Millisecond
	maxPollInterval = time.Second

	// recentLines is how many unmatched lines a TimeoutError carries.
	recentLines = 20
)

// Waiter waits for a log line matching a WaitCondition.
type Waiter struct {
	// Alive, when set, is polled every PollInterval so a container that
	// stopped without closing its log stream fails the wait immediately.
	Alive func(ctx context.Context) (running bool, exitCode int, err error)
}

// Wait waits with a Waiter that only watches the log stream.
func Wait(ctx context.Context, logs <-chan model.LogEntry, errs <-chan error, cond model.WaitCondition) (model.LogEntry, error) {
	var w Waiter
	return w.Wait(ctx, logs, errs, cond)
}

// Wait reads logs until an entry matches cond and returns that entry. It
// fails with a *TimeoutError when cond.Timeout elapses first, and with a
// *TimeoutError marked Exited as soon as the stream ends or the container
// stops.
func (w *Waiter) Wait(ctx context.Context, logs <-chan model.LogEntry, errs <-chan error, cond model.WaitCondition) (model.LogEntry, error) {
	if err := cond.Validate(); err != nil {
		return model.LogEntry{}, err
	}
	match := newMatcher(cond)

	timer := time.NewTimer(cond.Timeout)
	defer timer.Stop()

	var tick <-chan time.Time
	if w.Alive != nil {
		ticker := time.NewTicker(pollInterval(cond.PollInterval))
		defer ticker.Stop()
		tick = ticker.C
	}

	var recent []string
	fail := func(exited bool, code int, err error) error {
		return &TimeoutError{
			Pattern:  cond.Pattern,
			Timeout:  cond.Timeout,
			Exited:   exited,
			ExitCode: code,
			Err:      err,
			Recent:   recent,
		}
	}

	for {
		select {
		case <-ctx.Done():
			return model.LogEntry{}, fmt.Errorf("waiting for %s: %w", cond, ctx.Err())

		case <-timer.C:
			return model.LogEntry{}, fail(false, 0, nil)

		case entry, ok := <-logs:
			if !ok {
				if ctx.Err() != nil {
					return model.LogEntry{}, fmt.Errorf("waiting for %s: %w", cond, ctx.Err())
				}
				var streamErr error
				select {
				case streamErr = <-errs:
				default:
				}
				return model.LogEntry{}, fail(true, w.exitCode(ctx), streamErr)
			}
			if match(entry.Message) {
				return entry, nil
			}
			recent = append(recent, entry.Message)
			if len(recent) > recentLines {
				recent = recent[1:]
			}

		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			if err != nil {
				if ctx.Err() != nil {
					return model.LogEntry{}, fmt.Errorf("waiting for %s: %w", cond, ctx.Err())
				}
				return model.LogEntry{}, fail(true, w.exitCode(ctx), err)
			}

		case <-tick:
			running, code, err := w.Alive(ctx)
			if err == nil && !running {
				return model.LogEntry{}, fail(true, code, nil)
			}
		}
	}
}

func (w *Waiter) exitCode(ctx context.Context) int {
	if w.Alive == nil {
		return 0
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	if _, code, err := w.Alive(ctx); err == nil {
		return code
	}
	return 0
}

func pollInterval(d time.Duration) time.Duration {
	switch {
	case d <= 0:
		return DefaultPollInterval
	case d < minPollInterval:
		return minPollInterval
	case d > maxPollInterval:
		return maxPollInterval
	}
	return d
}

func newMatcher(cond model.WaitCondition) func(string) bool {
	if cond.Regexp {
		re := regexp.MustCompile(cond.Pattern) // checked by Validate
		return re.MatchString
	}
	return func(line string) bool {
		return strings.Contains(line, cond.Pattern)
	}
}
