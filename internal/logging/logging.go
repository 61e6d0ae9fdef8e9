// internal/logging/logging.go
package logging

import (
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// New builds the process logger. Level names follow zerolog; unknown
// names fall back to info. Set LOG_PRETTY=1 for human-readable console
// output during development.
func New(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}

	var out = os.Stdout
	logger := zerolog.New(out)
	if os.Getenv("LOG_PRETTY") != "" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: out, TimeFormat: time.Kitchen})
	}

	return logger.Level(lvl).With().Timestamp().Logger()
}
