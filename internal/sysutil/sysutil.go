// Package sysutil holds process-level helpers used by cmd/server.
package sysutil

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// ParseLogLevel maps a level name (case-insensitive, "warning" accepted) to a
// zerolog level. Unknown or empty names mean info.
func ParseLogLevel(lvl string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(lvl)) {
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "fatal":
		return zerolog.FatalLevel
	case "panic":
		return zerolog.PanicLevel
	default:
		return zerolog.InfoLevel
	}
}

// SetLogLevel sets the global zerolog level.
func SetLogLevel(lvl string) {
	zerolog.SetGlobalLevel(ParseLogLevel(lvl))
}

// ConfigureLogger installs the global logger. With pretty set, output goes
// through a human-readable console writer; otherwise one JSON object per
// line. A nil w means stderr.
func ConfigureLogger(level string, pretty bool, service string, w io.Writer) zerolog.Logger {
	if w == nil {
		w = os.Stderr
	}
	SetLogLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339Nano
	if pretty {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}
	}
	l := zerolog.New(w).With().Timestamp().Str("service", service).Logger()
	log.Logger = l
	zerolog.DefaultContextLogger = &l
	return l
}

// FirstNonEmpty returns the first value that is not blank, or "".
func FirstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
