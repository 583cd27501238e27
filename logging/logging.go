// Package logging configures the process-wide zerolog logger.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/warp/gamify-engine/config"
)

var writer io.Writer = os.Stdout

// Writer returns the destination chosen by the last Init, for components
// that log through another library.
func Writer() io.Writer {
	return writer
}

// Init sets the global level and installs log.Logger. It returns the
// logger so callers can hand it to components explicitly.
func Init(cfg config.LogConfig) zerolog.Logger {
	return InitTo(os.Stdout, cfg)
}

func InitTo(w io.Writer, cfg config.LogConfig) zerolog.Logger {
	level := zerolog.InfoLevel
	if v := strings.TrimSpace(cfg.Level); v != "" {
		if parsed, err := zerolog.ParseLevel(strings.ToLower(v)); err == nil {
			level = parsed
		}
	}

	output := w
	if cfg.Pretty {
		output = zerolog.ConsoleWriter{Out: w}
	}

	writer = w
	zerolog.SetGlobalLevel(level)
	logger := zerolog.New(output).With().Timestamp().Logger()
	log.Logger = logger
	return logger
}
