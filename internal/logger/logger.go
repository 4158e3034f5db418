package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// New builds the process logger. prod writes JSON, everything else a
// human readable console format.
func New(w io.Writer, env, level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}

	var out io.Writer = w
	if env != "prod" {
		out = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}

	l := zerolog.New(out).Level(lvl).With().Timestamp().Logger()
	if err != nil {
		l.Warn().Str("value", level).Msg("invalid log level, using info")
	}
	return l
}

// Setup installs the logger as the global zerolog logger.
func Setup(env, level string) zerolog.Logger {
	l := New(os.Stdout, env, level)
	log.Logger = l
	zerolog.DefaultContextLogger = &l
	return l
}
