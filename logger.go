package jobsched

import (
	"log/slog"
	"os"
)

// Logger is the structured logging surface the scheduler writes to. Its
// method shape matches log/slog so a *slog.Logger satisfies it directly;
// tests substitute the discarding Logger from NewNoopLogger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// defaultLogger returns the package default, a text-handler slog.Logger
// writing to stderr, used when a Scheduler is built without WithLogger.
func defaultLogger() Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{}))
}

// noopLogger discards everything; handy for tests that assert on
// scheduler behavior rather than log output.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// NewNoopLogger returns a Logger that discards all messages.
func NewNoopLogger() Logger { return noopLogger{} }
