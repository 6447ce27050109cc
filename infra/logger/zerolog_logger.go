package logger

import (
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// ZerologLogger adapts rs/zerolog to the core Logger interface.
type ZerologLogger struct {
	log zerolog.Logger
}

// NewZerologLogger builds a logger tagged with the given component.
// APP_ENV=dev selects the human-readable console writer; LOG_LEVEL overrides
// the info default.
func NewZerologLogger(component string) Logger {
	var z zerolog.Logger
	if strings.EqualFold(os.Getenv("APP_ENV"), "dev") {
		z = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly})
	} else {
		z = zerolog.New(os.Stderr)
	}
	level := zerolog.InfoLevel
	if lv, err := zerolog.ParseLevel(strings.ToLower(os.Getenv("LOG_LEVEL"))); err == nil && lv != zerolog.NoLevel {
		level = lv
	}
	z = z.Level(level).With().Timestamp().Str("component", component).Logger()
	return &ZerologLogger{log: z}
}

func (l *ZerologLogger) Debugf(format string, args ...any) {
	l.log.Debug().Msgf(format, args...)
}

func (l *ZerologLogger) Debugw(msg string, fields map[string]any) {
	l.log.Debug().Fields(fields).Msg(msg)
}

func (l *ZerologLogger) Infof(format string, args ...any) {
	l.log.Info().Msgf(format, args...)
}

func (l *ZerologLogger) Warnf(format string, args ...any) {
	l.log.Warn().Msgf(format, args...)
}

func (l *ZerologLogger) Errorf(format string, args ...any) {
	l.log.Error().Msgf(format, args...)
}
