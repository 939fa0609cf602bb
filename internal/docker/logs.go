// internal/docker/logs.go
package docker

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/rusenback/dockersmoke/internal/model"
)

var errStreamStopped = errors.New("log stream stopped")

// StreamContainerLogs follows a container's stdout and stderr from the
// moment it started. The entry channel is closed when the container exits or
// the stream is cancelled; errors other than EOF and cancellation are sent on
// the error channel first.
func (c *Client) StreamContainerLogs(ctx context.Context, id string) (<-chan model.LogEntry, <-chan error, func()) {
	logsChan := make(chan model.LogEntry)
	errChan := make(chan error, 1)

	ctx, cancel := context.WithCancel(ctx)

	go func() {
		defer close(logsChan)
		defer close(errChan)

		info, err := c.cli.ContainerInspect(ctx, id)
		if err != nil {
			errChan <- err
			return
		}
		tty := info.Config != nil && info.Config.Tty

		reader, err := c.cli.ContainerLogs(ctx, id, container.LogsOptions{
			ShowStdout: true,
			ShowStderr: true,
			Timestamps: true,
			Follow:     true,
		})
		if err != nil {
			errChan <- err
			return
		}
		defer reader.Close()

		emit := func(entry model.LogEntry) bool {
			select {
			case logsChan <- entry:
				return true
			case <-ctx.Done():
				return false
			}
		}

		if err := copyLogLines(reader, tty, emit); err != nil && ctx.Err() == nil {
			errChan <- err
		}
	}()

	return logsChan, errChan, cancel
}

// copyLogLines splits a log stream into entries. Non-TTY containers use the
// multiplexed stdout/stderr framing; TTY containers send a raw stream.
func copyLogLines(r io.Reader, tty bool, emit func(model.LogEntry) bool) error {
	if tty {
		scanner := bufio.NewScanner(r)
		// Increase buffer size for long log lines
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			entry, valid := parseLogLine(scanner.Text(), model.StreamStdout)
			if !valid {
				continue
			}
			if !emit(entry) {
				return nil
			}
		}
		return ignoreEOF(scanner.Err())
	}

	stdout := &lineWriter{stream: model.StreamStdout, emit: emit}
	stderr := &lineWriter{stream: model.StreamStderr, emit: emit}
	_, err := stdcopy.StdCopy(stdout, stderr, r)
	if errors.Is(err, errStreamStopped) {
		return nil
	}
	if err := ignoreEOF(err); err != nil {
		return err
	}
	stdout.flush()
	stderr.flush()
	return nil
}

func ignoreEOF(err error) error {
	if err == nil || errors.Is(err, io.EOF) || errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// lineWriter turns demultiplexed frames into one entry per line. Frames do
// not align with lines, so partial lines are buffered.
type lineWriter struct {
	stream string
	emit   func(model.LogEntry) bool
	buf    []byte
}

func (w *lineWriter) Write(p []byte) (int, error) {
	w.buf = append(w.buf, p...)
	for {
		i := bytes.IndexByte(w.buf, '\n')
		if i < 0 {
			break
		}
		line := string(w.buf[:i])
		w.buf = w.buf[i+1:]
		if !w.send(line) {
			return len(p), errStreamStopped
		}
	}
	return len(p), nil
}

func (w *lineWriter) flush() {
	if len(w.buf) > 0 {
		w.send(string(w.buf))
		w.buf = nil
	}
}

func (w *lineWriter) send(line string) bool {
	entry, valid := parseLogLine(line, w.stream)
	if !valid {
		return true
	}
	return w.emit(entry)
}

// parseLogLine parses a single log line
// Returns an entry and a boolean indicating if the entry is valid
func parseLogLine(line, stream string) (model.LogEntry, bool) {
	line = strings.TrimRight(line, "\r\n")
	if strings.TrimSpace(line) == "" {
		return model.LogEntry{}, false
	}

	entry := model.LogEntry{
		Timestamp: time.Now(),
		Message:   line,
		Stream:    stream,
	}

	// Format: 2024-01-15T10:30:45.123456789Z message
	parts := strings.SplitN(line, " ", 2)
	if len(parts) == 2 {
		if timestamp, err := time.Parse(time.RFC3339Nano, parts[0]); err == nil {
			entry.Timestamp = timestamp
			entry.Message = parts[1]

			if strings.TrimSpace(entry.Message) == "" {
				return model.LogEntry{}, false
			}
		}
	}

	return entry, true
}
