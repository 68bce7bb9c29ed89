package logger

import (
	"log/slog"
	"os"
)

// New returns the service-wide structured logger. JSON on stdout so log
// shippers can parse without extra configuration.
func New() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}
