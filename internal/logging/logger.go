package logging

import (
	"io"
	"log/slog"
	"os"
)

// New creates the application logger. Output goes to stderr so it never
// mixes with data written to stdout by the CLI. The "error" attribute key
// is shortened to "err" for consistency across packages.
func New(level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: shortenErrKey,
	}))
}

// NewJSON is New with JSON output, for deployments that ship logs.
func NewJSON(level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: shortenErrKey,
	}))
}

// NewNop returns a logger that discards everything. Library types default
// to it so logging stays opt-in.
func NewNop() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func shortenErrKey(groups []string, a slog.Attr) slog.Attr {
	if a.Key == "error" {
		a.Key = "err"
	}
	return a
}
