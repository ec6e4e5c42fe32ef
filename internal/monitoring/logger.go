package monitoring

import (
	"io"
	"os"
	"runtime/debug"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LoggerConfig holds logger configuration. Level and Format mirror the
// corresponding fields of config.Config: "debug"|"info"|"warn"|"error"
// and "json"|"text"|"pretty".
type LoggerConfig struct {
	Level  string
	Format string
}

// NewLogger creates a structured logger: JSON by default, a
// console-friendly writer when Format is "pretty".
func NewLogger(cfg LoggerConfig) zerolog.Logger {
	var output io.Writer = os.Stdout

	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Format == "pretty" {
		output = zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		}
	}

	return zerolog.New(output).
		With().
		Timestamp().
		Caller().
		Str("service", "ingestd").
		Logger()
}

// LogError logs an error with additional context fields.
func LogError(logger zerolog.Logger, err error, msg string, fields map[string]any) {
	event := logger.Error().Err(err)
	for k, v := range fields {
		event = event.Interface(k, v)
	}
	event.Msg(msg)
}

// RecoverPanic is deferred in cmd/ingestd's C5 writer goroutine and its
// connection-limiter cleanup goroutine, so a panic there is logged and ends
// only that goroutine rather than the whole process. C7 workers recover
// task panics on their own (workerpool's runTask).
func RecoverPanic(logger zerolog.Logger, goroutineName string, fields map[string]any) {
	if r := recover(); r != nil {
		event := logger.Error().
			Str("goroutine", goroutineName).
			Interface("panic_value", r).
			Str("stack_trace", string(debug.Stack()))
		for k, v := range fields {
			event = event.Interface(k, v)
		}
		event.Msg("recovered goroutine panic")
	}
}

// InitGlobalLogger installs logger as the package-level zerolog default,
// for third-party libraries (franz-go, nats.go) that log through it.
func InitGlobalLogger(cfg LoggerConfig) {
	log.Logger = NewLogger(cfg)
}
