package logger

import (
	"log/slog"
	"os"
)

// New returns the process-wide structured logger. Batch jobs log single-line
// key/value records so summaries stay grep-able from the scheduler's capture.
func New() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}
