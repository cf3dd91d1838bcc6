// Package logging builds the structured loggers used across harmonycore and
// the attribute helpers that keep log keys consistent.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Standard attribute keys.
const (
	KeyBatch  = "batch_id"
	KeySource = "source_file_id"
	KeyField  = "field_key"
	KeyEntity = "entity"
	KeyTable  = "table"
)

// Config holds logger configuration.
type Config struct {
	Level  string // debug|info|warn|error
	Format string // text|json
	Output io.Writer
}

// ParseLevel maps a level name to a slog level.
func ParseLevel(name string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", name)
	}
}

// New builds a logger. Output defaults to stderr and format to text.
func New(cfg Config) (*slog.Logger, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	w := cfg.Output
	if w == nil {
		w = os.Stderr
	}
	opts := &slog.HandlerOptions{Level: level}
	switch strings.ToLower(cfg.Format) {
	case "", "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("unknown log format %q", cfg.Format)
	}
}

// Discard returns a logger that drops every record.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// OrDiscard returns l, or a discard logger when l is nil.
func OrDiscard(l *slog.Logger) *slog.Logger {
	if l == nil {
		return Discard()
	}
	return l
}

// WithBatch tags a logger with the batch id.
func WithBatch(l *slog.Logger, batchID string) *slog.Logger {
	return l.With(slog.String(KeyBatch, batchID))
}

// WithField tags a logger with the raw field's origin.
func WithField(l *slog.Logger, sourceFileID, fieldKey string) *slog.Logger {
	return l.With(slog.String(KeySource, sourceFileID), slog.String(KeyField, fieldKey))
}

// WithEntity tags a logger with the classified entity and its target table.
func WithEntity(l *slog.Logger, entity, table string) *slog.Logger {
	return l.With(slog.String(KeyEntity, entity), slog.String(KeyTable, table))
}
