package observability

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// NewLogger returns a zerolog Logger.
// APP_ENV=dev (or development) uses a human-friendly console writer.
// When file is set, JSON lines are also written to a rotating log file.
func NewLogger(env, file string) zerolog.Logger {
	var out io.Writer = os.Stdout
	if env == "dev" || env == "development" {
		out = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	}
	if file != "" {
		out = zerolog.MultiLevelWriter(out, &lumberjack.Logger{
			Filename:   file,
			MaxSize:    64, // MB
			MaxBackups: 3,
			MaxAge:     14,
			Compress:   true,
		})
	}
	return zerolog.New(out).With().Timestamp().Logger()
}
