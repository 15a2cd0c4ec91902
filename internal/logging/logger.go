package logging

import (
	"io"
	"log/slog"
	"os"
)

// New builds a JSON slog logger. Debug lowers the level and adds source
// locations.
func New(w io.Writer, debug bool) *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}

	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level:     level,
		AddSource: debug,
	})
	return slog.New(handler).With("service", "better404")
}

// Init installs the JSON logger as the process default and returns it.
func Init(debug bool) *slog.Logger {
	logger := New(os.Stdout, debug)
	slog.SetDefault(logger)
	logger.Debug("structured logging initialized", "debug", debug)
	return logger
}
