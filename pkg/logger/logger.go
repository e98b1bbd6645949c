// Package logger builds the zerolog logger shared by the server and
// its background jobs.
package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Config holds logger configuration.
type Config struct {
	Level  string // trace, debug, info, warn, error
	Pretty bool   // Human-readable console output for dev mode
}

// New creates the root logger. Unknown level strings fall back to info
// rather than failing startup. Production output is JSON on stdout;
// dev mode swaps in zerolog's console writer.
func New(cfg Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339

	var output io.Writer = os.Stdout
	if cfg.Pretty {
		output = zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: "15:04:05",
		}
	}

	return zerolog.New(output).
		With().
		Timestamp().
		Caller().
		Logger()
}

// SetGlobalLogger points zerolog's package-level logger at l so code
// using log.Logger directly shares the same sink.
func SetGlobalLogger(l zerolog.Logger) {
	log.Logger = l
}
