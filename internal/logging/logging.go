// Package logging initializes the process-wide slog logger, grounded
// directly on livesim2's pkg/logging/init.go: the same four formats
// (text/json/pretty/discard) and dusted-go/logging/prettylog for the
// interactive one.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/dusted-go/logging/prettylog"
)

const (
	FormatText    = "text"
	FormatJSON    = "json"
	FormatPretty  = "pretty"
	FormatDiscard = "discard"
)

var Formats = []string{FormatText, FormatJSON, FormatPretty, FormatDiscard}

var level *slog.LevelVar

// Init sets the global slog default logger for the given level and format.
func Init(logLevel, format string) error {
	level = new(slog.LevelVar)
	var logger *slog.Logger
	switch format {
	case FormatText:
		logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	case FormatJSON:
		logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	case FormatPretty:
		logger = slog.New(prettylog.NewHandler(&slog.HandlerOptions{Level: level}))
	case FormatDiscard:
		logger = slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: level}))
	default:
		return fmt.Errorf("logging: format %q not known", format)
	}
	slog.SetDefault(logger)
	return SetLevel(logLevel)
}

// SetLevel changes the active log level at runtime.
func SetLevel(l string) error {
	switch strings.ToUpper(l) {
	case "DEBUG":
		level.Set(slog.LevelDebug)
	case "INFO", "":
		level.Set(slog.LevelInfo)
	case "WARN":
		level.Set(slog.LevelWarn)
	case "ERROR":
		level.Set(slog.LevelError)
	default:
		return fmt.Errorf("logging: level %q not known", l)
	}
	return nil
}
