package docker

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/docker/docker/pkg/stdcopy"
	"github.com/rusenback/dockersmoke/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collect(t *testing.T, input *bytes.Buffer, tty bool) []model.LogEntry {
	t.Helper()
	var entries []model.LogEntry
	err := copyLogLines(input, tty, func(e model.LogEntry) bool {
		entries = append(entries, e)
		return true
	})
	require.NoError(t, err)
	return entries
}

func TestCopyLogLinesDemultiplexes(t *testing.T) {
	var buf bytes.Buffer
	stdout := stdcopy.NewStdWriter(&buf, stdcopy.Stdout)
	stderr := stdcopy.NewStdWriter(&buf, stdcopy.Stderr)

	_, _ = stdout.Write([]byte("2024-01-15T10:30:45.123456789Z Starting...\n2024-01-15T10:30:46Z Rem"))
	_, _ = stderr.Write([]byte("2024-01-15T10:30:46.5Z warning: low memory\n"))
	_, _ = stdout.Write([]byte("ote interface available\n2024-01-15T10:30:47Z Started.\n"))

	entries := collect(t, &buf, false)
	require.Len(t, entries, 4)

	assert.Equal(t, "Starting...", entries[0].Message)
	assert.Equal(t, "stdout", entries[0].Stream)
	assert.Equal(t, time.Date(2024, 1, 15, 10, 30, 45, 123456789, time.UTC), entries[0].Timestamp)

	assert.Equal(t, "warning: low memory", entries[1].Message)
	assert.Equal(t, "stderr", entries[1].Stream)

	assert.Equal(t, "Remote interface available", entries[2].Message)
	assert.Equal(t, "Started.", entries[3].Message)
}

func TestCopyLogLinesFlushesTrailingPartialLine(t *testing.T) {
	var buf bytes.Buffer
	stdout := stdcopy.NewStdWriter(&buf, stdcopy.Stdout)
	_, _ = stdout.Write([]byte("no newline at end"))

	entries := collect(t, &buf, false)
	require.Len(t, entries, 1)
	assert.Equal(t, "no newline at end", entries[0].Message)
}

func TestCopyLogLinesTTY(t *testing.T) {
	buf := bytes.NewBufferString("2024-01-15T10:30:45Z hello\r\n\r\n2024-01-15T10:30:46Z Started.\r\n")

	entries := collect(t, buf, true)
	require.Len(t, entries, 2)
	assert.Equal(t, "hello", entries[0].Message)
	assert.Equal(t, "Started.", entries[1].Message)
	assert.Equal(t, "stdout", entries[1].Stream)
}

func TestCopyLogLinesStopsWhenConsumerGone(t *testing.T) {
	var buf bytes.Buffer
	stdout := stdcopy.NewStdWriter(&buf, stdcopy.Stdout)
	_, _ = stdout.Write([]byte(strings.Repeat("line\n", 10)))

	calls := 0
	err := copyLogLines(&buf, false, func(model.LogEntry) bool {
		calls++
		return false
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestParseLogLine(t *testing.T) {
	tests := []struct {
		name    string
		line    string
		message string
		valid   bool
	}{
		{"with timestamp", "2024-01-15T10:30:45Z Started.", "Started.", true},
		{"without timestamp", "plain output", "plain output", true},
		{"blank", "   ", "", false},
		{"timestamp only", "2024-01-15T10:30:45Z  ", "", false},
		{"message keeps inner spaces", "2024-01-15T10:30:45Z a  b", "a  b", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entry, valid := parseLogLine(tt.line, "stdout")
			assert.Equal(t, tt.valid, valid)
			if tt.valid {
				assert.Equal(t, tt.message, entry.Message)
			}
		})
	}
}
