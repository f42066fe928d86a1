// Package logging provides structured logging for the storage engine,
// adapted from the tree-store reference's internal/logger package onto this
// engine's components (buffer pool, catalog, checkpoint scheduler, engine)
// instead of a gRPC document store.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger wraps zerolog with engine-specific component loggers.
type Logger struct {
	zlog zerolog.Logger
}

// Config holds logger configuration, loaded from internal/config.
type Config struct {
	Level      string // debug, info, warn, error
	Pretty     bool   // pretty-print for local development
	Output     io.Writer
	WithCaller bool
}

// New creates a structured logger for the "storageengine" service.
func New(cfg Config) *Logger {
	level := zerolog.InfoLevel
	switch cfg.Level {
	case "debug":
		level = zerolog.DebugLevel
	case "info":
		level = zerolog.InfoLevel
	case "warn":
		level = zerolog.WarnLevel
	case "error":
		level = zerolog.ErrorLevel
	}
	zerolog.SetGlobalLevel(level)

	output := cfg.Output
	if output == nil {
		output = os.Stdout
	}
	if cfg.Pretty {
		output = zerolog.ConsoleWriter{Out: output, TimeFormat: time.RFC3339}
	}

	zlog := zerolog.New(output).With().
		Timestamp().
		Str("service", "storageengine").
		Logger()

	if cfg.WithCaller {
		zlog = zlog.With().Caller().Logger()
	}
	return &Logger{zlog: zlog}
}

// Component returns a child logger tagged with a component name, e.g.
// "disk", "bufferpool", "scheduler", "admin".
func (l *Logger) Component(name string) *Logger {
	return &Logger{zlog: l.zlog.With().Str("component", name).Logger()}
}

// Debug starts a debug-level event.
func (l *Logger) Debug(msg string) *zerolog.Event { return l.zlog.Debug().Str("msg", msg) }

// Info starts an info-level event.
func (l *Logger) Info(msg string) *zerolog.Event { return l.zlog.Info().Str("msg", msg) }

// Warn starts a warn-level event.
func (l *Logger) Warn(msg string) *zerolog.Event { return l.zlog.Warn().Str("msg", msg) }

// Error starts an error-level event.
func (l *Logger) Error(msg string) *zerolog.Event { return l.zlog.Error().Str("msg", msg) }

// Fatal starts a fatal-level event (exits on Send/Msg).
func (l *Logger) Fatal(msg string) *zerolog.Event { return l.zlog.Fatal().Str("msg", msg) }

// LogCheckpoint records a completed checkpoint sweep.
func (l *Logger) LogCheckpoint(duration time.Duration, pagesFlushed int, err error) {
	ev := l.zlog.Info().
		Str("event", "checkpoint").
		Dur("duration_ms", duration).
		Int("pages_flushed", pagesFlushed)
	if err != nil {
		ev = l.zlog.Error().
			Str("event", "checkpoint").
			Dur("duration_ms", duration).
			Err(err)
	}
	ev.Msg("checkpoint completed")
}

// LogPageFault records a buffer pool miss that required an eviction.
func (l *Logger) LogPageFault(pageID int32, evictedID int32) {
	l.zlog.Debug().
		Str("event", "page_fault").
		Int32("page_id", pageID).
		Int32("evicted_page_id", evictedID).
		Msg("buffer pool miss")
}

// Default returns a logger with sane defaults (info level, pretty output),
// used by components that are not wired to internal/config.
func Default() *Logger {
	return New(Config{Level: "info", Pretty: true})
}
