package logger

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

type ZerologAdapter struct {
	logger zerolog.Logger
}

func NewZerolog(writer io.Writer, level zerolog.Level) *ZerologAdapter {
	logger := zerolog.New(writer).
		Level(level).
		With().
		Timestamp().
		Logger()

	return &ZerologAdapter{logger: logger}
}

func NewConsoleLogger(level zerolog.Level) *ZerologAdapter {
	consoleWriter := zerolog.ConsoleWriter{Out: os.Stdout}
	return NewZerolog(consoleWriter, level)
}

// New builds the service logger from its textual level and format ("json"
// or "console"). Unknown levels fall back to info.
func New(level, format string) *ZerologAdapter {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}

	if strings.EqualFold(format, "json") {
		return NewZerolog(os.Stdout, lvl)
	}
	return NewConsoleLogger(lvl)
}

func (z *ZerologAdapter) Info(component, message string, fields map[string]interface{}) {
	z.logger.Info().Str("component", component).Fields(fields).Msg(message)
}

func (z *ZerologAdapter) Error(component string, err error, fields map[string]interface{}) {
	z.logger.Error().Str("component", component).Err(err).Fields(fields).Msg("operation failed")
}

func (z *ZerologAdapter) Warning(component, message string, fields map[string]interface{}) {
	z.logger.Warn().Str("component", component).Fields(fields).Msg(message)
}

func (z *ZerologAdapter) Debug(component, message string, fields map[string]interface{}) {
	z.logger.Debug().Str("component", component).Fields(fields).Msg(message)
}
