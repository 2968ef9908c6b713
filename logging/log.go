// Package logging builds slog handlers from the string settings used by the
// command line.
package logging

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// Supported formats.
const (
	JSONFormat = "json"
	TextFormat = "text"
)

var (
	// ErrUnknownLevel is returned for a level name that is not recognized.
	ErrUnknownLevel = errors.New("unknown log level")

	// ErrUnknownFormat is returned for a format name that is not recognized.
	ErrUnknownFormat = errors.New("unknown log format")
)

// CreateHandler creates a [slog.Handler] writing to w by strings. An empty
// level means info and an empty format means text.
func CreateHandler(w io.Writer, logLevel, logFormat string) (slog.Handler, error) {
	level, err := ParseLevel(logLevel)
	if err != nil {
		return nil, err
	}

	opts := &slog.HandlerOptions{Level: level}

	switch strings.ToLower(logFormat) {
	case JSONFormat:
		return slog.NewJSONHandler(w, opts), nil
	case TextFormat, "":
		return slog.NewTextHandler(w, opts), nil
	default:
		return nil, fmt.Errorf("%w %q", ErrUnknownFormat, logFormat)
	}
}

// ParseLevel maps a level name to a [slog.Level].
func ParseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "error":
		return slog.LevelError, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "debug", "trace":
		return slog.LevelDebug, nil
	default:
		return slog.LevelInfo, fmt.Errorf("%w %q", ErrUnknownLevel, level)
	}
}

// Setup installs a logger built from the settings as the slog default.
func Setup(w io.Writer, logLevel, logFormat string) (*slog.Logger, error) {
	h, err := CreateHandler(w, logLevel, logFormat)
	if err != nil {
		return nil, err
	}

	logger := slog.New(h)
	slog.SetDefault(logger)

	return logger, nil
}
