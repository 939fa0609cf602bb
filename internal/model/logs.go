package model

import "time"

// Log stream names
const (
	StreamStdout = "stdout"
	StreamStderr = "stderr"
)

// LogEntry is one line of container output
type LogEntry struct {
	Timestamp time.Time
	Message   string
	Stream    string // StreamStdout or StreamStderr
}

