// Package telemetry builds the zerolog logger shared by the CLI and the
// engine. The engine reads it back with zerolog.Ctx, so a context without a
// logger keeps the engine silent.
package telemetry

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

type LogConfig struct {
	Level  string `yaml:"level" validate:"omitempty,oneof=trace debug info warn error disabled"`
	Format string `yaml:"format" validate:"omitempty,oneof=console json"`
}

func DefaultLogConfig() LogConfig {
	return LogConfig{Level: "info", Format: "console"}
}

// NewLogger creates a logger writing to w.
func NewLogger(cfg LogConfig, w io.Writer) (zerolog.Logger, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return zerolog.Nop(), err
	}

	switch cfg.Format {
	case "", "console":
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}
	case "json":
	default:
		return zerolog.Nop(), fmt.Errorf("unknown log format %q", cfg.Format)
	}

	return zerolog.New(w).Level(level).With().Timestamp().Logger(), nil
}

func ParseLevel(s string) (zerolog.Level, error) {
	switch strings.ToLower(s) {
	case "trace":
		return zerolog.TraceLevel, nil
	case "debug":
		return zerolog.DebugLevel, nil
	case "", "info":
		return zerolog.InfoLevel, nil
	case "warn", "warning":
		return zerolog.WarnLevel, nil
	case "error":
		return zerolog.ErrorLevel, nil
	case "disabled", "off":
		return zerolog.Disabled, nil
	}
	return zerolog.NoLevel, fmt.Errorf("unknown log level %q", s)
}

// WithRun attaches a child logger tagged with the run and model to ctx.
func WithRun(ctx context.Context, log zerolog.Logger, runID, model string) context.Context {
	l := log.With().Str("run_id", runID).Str("model", model).Logger()
	return l.WithContext(ctx)
}
