package readiness

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rusenback/dockersmoke/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func line(msg string) model.LogEntry {
	return model.LogEntry{Timestamp: time.Now(), Message: msg, Stream: "stdout"}
}

// feed sends lines after the given delays and leaves the stream open.
func feed(delays []time.Duration, msgs []string) (<-chan model.LogEntry, <-chan error) {
	logs := make(chan model.LogEntry)
	errs := make(chan error, 1)
	go func() {
		for i, msg := range msgs {
			time.Sleep(delays[i])
			logs <- line(msg)
		}
	}()
	return logs, errs
}

func cond(pattern string, timeout time.Duration) model.WaitCondition {
	return model.WaitCondition{Pattern: pattern, Timeout: timeout}
}

func TestWaitMatchesSubstring(t *testing.T) {
	logs, errs := feed(
		[]time.Duration{0, 0},
		[]string{"Starting...", "2024-01-15 INFO Started."},
	)

	entry, err := Wait(context.Background(), logs, errs, cond("Started.", time.Second))
	require.NoError(t, err)
	assert.Equal(t, "2024-01-15 INFO Started.", entry.Message)
}

func TestWaitFirstMatchWins(t *testing.T) {
	logs := make(chan model.LogEntry, 3)
	logs <- line("Started. one")
	logs <- line("Started. two")
	errs := make(chan error)

	entry, err := Wait(context.Background(), logs, errs, cond("Started.", time.Second))
	require.NoError(t, err)
	assert.Equal(t, "Started. one", entry.Message)
}

func TestWaitRegexp(t *testing.T) {
	logs, errs := feed(
		[]time.Duration{0, 0},
		[]string{"Bolt enabled on 0.0.0.0:7687", "Remote interface available at http://localhost:7474/"},
	)

	c := model.WaitCondition{Pattern: `available at http://\S+:7474`, Regexp: true, Timeout: time.Second}
	entry, err := Wait(context.Background(), logs, errs, c)
	require.NoError(t, err)
	assert.Contains(t, entry.Message, "7474")
}

func TestWaitReturnsWhenLineAppearsNotAtTimeout(t *testing.T) {
	logs, errs := feed([]time.Duration{200 * time.Millisecond}, []string{"Started."})

	start := time.Now()
	_, err := Wait(context.Background(), logs, errs, cond("Started.", 5*time.Second))
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.GreaterOrEqual(t, elapsed, 200*time.Millisecond)
	assert.Less(t, elapsed, 2*time.Second)
}

func TestWaitTimesOut(t *testing.T) {
	logs, errs := feed([]time.Duration{0}, []string{"still booting"})

	timeout := 300 * time.Millisecond
	start := time.Now()
	_, err := Wait(context.Background(), logs, errs, cond("Started.", timeout))
	elapsed := time.Since(start)

	var timeoutErr *TimeoutError
	require.ErrorAs(t, err, &timeoutErr)
	assert.False(t, timeoutErr.Exited)
	assert.Equal(t, []string{"still booting"}, timeoutErr.Recent)
	assert.GreaterOrEqual(t, elapsed, timeout)
	assert.Less(t, elapsed, timeout+time.Second)
	assert.Contains(t, err.Error(), "did not appear")
}

func TestWaitStreamClosedFailsImmediately(t *testing.T) {
	logs := make(chan model.LogEntry)
	errs := make(chan error)
	go func() {
		logs <- line("fatal: config missing")
		close(logs)
		close(errs)
	}()

	start := time.Now()
	_, err := Wait(context.Background(), logs, errs, cond("Started.", 10*time.Second))

	var timeoutErr *TimeoutError
	require.ErrorAs(t, err, &timeoutErr)
	assert.True(t, timeoutErr.Exited)
	assert.Less(t, time.Since(start), time.Second)
}

func TestWaitStreamErrorFailsImmediately(t *testing.T) {
	logs := make(chan model.LogEntry)
	errs := make(chan error, 1)
	boom := errors.New("connection reset")
	errs <- boom

	_, err := Wait(context.Background(), logs, errs, cond("Started.", 10*time.Second))

	var timeoutErr *TimeoutError
	require.ErrorAs(t, err, &timeoutErr)
	assert.True(t, timeoutErr.Exited)
	assert.ErrorIs(t, err, boom)
}

func TestWaitAliveCheckDetectsExit(t *testing.T) {
	logs := make(chan model.LogEntry)
	errs := make(chan error)

	var polls atomic.Int32
	w := Waiter{Alive: func(context.Context) (bool, int, error) {
		polls.Add(1)
		return false, 137, nil
	}}

	c := cond("Started.", 10*time.Second)
	c.PollInterval = 100 * time.Millisecond

	start := time.Now()
	_, err := w.Wait(context.Background(), logs, errs, c)

	var timeoutErr *TimeoutError
	require.ErrorAs(t, err, &timeoutErr)
	assert.True(t, timeoutErr.Exited)
	assert.Equal(t, 137, timeoutErr.ExitCode)
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.GreaterOrEqual(t, polls.Load(), int32(1))
}

func TestWaitAliveErrorsAreIgnored(t *testing.T) {
	logs, errs := feed([]time.Duration{300 * time.Millisecond}, []string{"Started."})

	w := Waiter{Alive: func(context.Context) (bool, int, error) {
		return false, 0, errors.New("daemon busy")
	}}
	c := cond("Started.", 5*time.Second)
	c.PollInterval = 100 * time.Millisecond

	_, err := w.Wait(context.Background(), logs, errs, c)
	require.NoError(t, err)
}

func TestWaitParentCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Wait(ctx, make(chan model.LogEntry), make(chan error), cond("Started.", time.Minute))
	assert.ErrorIs(t, err, context.Canceled)

	var timeoutErr *TimeoutError
	assert.False(t, errors.As(err, &timeoutErr))
}

func TestWaitRejectsInvalidCondition(t *testing.T) {
	tests := []struct {
		name string
		cond model.WaitCondition
	}{
		{"zero timeout", model.WaitCondition{Pattern: "Started."}},
		{"negative timeout", model.WaitCondition{Pattern: "Started.", Timeout: -time.Second}},
		{"empty pattern", model.WaitCondition{Timeout: time.Second}},
		{"bad regexp", model.WaitCondition{Pattern: "(", Regexp: true, Timeout: time.Second}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Wait(context.Background(), nil, nil, tt.cond)
			assert.Error(t, err)
		})
	}
}

func TestPollInterval(t *testing.T) {
	assert.Equal(t, DefaultPollInterval, pollInterval(0))
	assert.Equal(t, 100*time.Millisecond, pollInterval(time.Millisecond))
	assert.Equal(t, time.Second, pollInterval(time.Minute))
	assert.Equal(t, 250*time.Millisecond, pollInterval(250*time.Millisecond))
}
