package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	// Log is the global logger instance
	Log = zerolog.Nop()

	// fileWriter is the rotating file output, nil when file logging is off
	fileWriter *lumberjack.Logger

	// fileOnlyLog writes to the file only; used while the TUI owns the terminal.
	fileOnlyLog zerolog.Logger

	interactiveMode bool
	interactiveMu   sync.RWMutex
)

// FileConfig configures the rotating log file.
type FileConfig struct {
	Path       string
	MaxSizeMB  int
	MaxAgeDays int
	MaxBackups int
}

func (c FileConfig) maxSizeMB() int {
	if c.MaxSizeMB <= 0 {
		return 20
	}
	return c.MaxSizeMB
}

func (c FileConfig) maxAgeDays() int {
	if c.MaxAgeDays <= 0 {
		return 7
	}
	return c.MaxAgeDays
}

func (c FileConfig) maxBackups() int {
	if c.MaxBackups <= 0 {
		return 3
	}
	return c.MaxBackups
}

// SetInteractiveMode suppresses console output (Info, Warn, Error) while a
// full-screen view is active. File logging is not affected.
func SetInteractiveMode(enabled bool) {
	interactiveMu.Lock()
	defer interactiveMu.Unlock()
	interactiveMode = enabled
}

// Init initializes console-only logging on stderr.
func Init(debug bool) {
	Log = zerolog.New(consoleWriter(os.Stderr)).
		Level(level(debug)).
		With().
		Timestamp().
		Logger()
}

// InitWithFile initializes logging to the console and, when cfg.Path is set,
// to a rotating JSON log file.
func InitWithFile(debug bool, cfg FileConfig) error {
	if cfg.Path == "" {
		Init(debug)
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}

	fileWriter = &lumberjack.Logger{
		Filename:   cfg.Path,
		MaxSize:    cfg.maxSizeMB(),
		MaxAge:     cfg.maxAgeDays(),
		MaxBackups: cfg.maxBackups(),
		LocalTime:  true,
	}

	fileOnlyLog = zerolog.New(fileWriter).
		Level(level(debug)).
		With().
		Timestamp().
		Logger()

	Log = zerolog.New(io.MultiWriter(consoleWriter(os.Stderr), fileWriter)).
		Level(level(debug)).
		With().
		Timestamp().
		Logger()

	return nil
}

// CloseFileWriter closes the log file if one is open.
func CloseFileWriter() error {
	if fileWriter != nil {
		err := fileWriter.Close()
		fileWriter = nil
		return err
	}
	return nil
}

func consoleWriter(out io.Writer) zerolog.ConsoleWriter {
	return zerolog.ConsoleWriter{
		Out:        out,
		TimeFormat: time.RFC3339,
	}
}

func level(debug bool) zerolog.Level {
	if debug {
		return zerolog.DebugLevel
	}
	return zerolog.InfoLevel
}

func shouldSuppress() bool {
	interactiveMu.RLock()
	interactive := interactiveMode
	interactiveMu.RUnlock()
	return interactive && Log.GetLevel() != zerolog.DebugLevel
}

func suppressed(event func(*zerolog.Logger) *zerolog.Event) *zerolog.Event {
	if fileWriter != nil {
		return event(&fileOnlyLog)
	}
	nop := zerolog.Nop()
	return event(&nop)
}

// Debug logs a debug message
func Debug() *zerolog.Event {
	return Log.Debug()
}

// Info logs an info message
func Info() *zerolog.Event {
	if shouldSuppress() {
		return suppressed((*zerolog.Logger).Info)
	}
	return Log.Info()
}

// Warn logs a warning message
func Warn() *zerolog.Event {
	if shouldSuppress() {
		return suppressed((*zerolog.Logger).Warn)
	}
	return Log.Warn()
}

// Error logs an error message
func Error() *zerolog.Event {
	if shouldSuppress() {
		return suppressed((*zerolog.Logger).Error)
	}
	return Log.Error()
}

// WithField returns a logger with an additional field
func WithField(key string, value interface{}) zerolog.Logger {
	return Log.With().Interface(key, value).Logger()
}
