// Package logx builds the process logger.
package logx

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// NewLogger returns a console logger at the named level. Unknown levels fall
// back to info.
func NewLogger(level string) zerolog.Logger {
	return New(os.Stdout, level, false)
}

// New builds a logger writing to w. With jsonOutput the records are written
// as JSON lines instead of the console format.
func New(w io.Writer, level string, jsonOutput bool) zerolog.Logger {
	out := w
	if !jsonOutput {
		out = zerolog.ConsoleWriter{
			Out:        w,
			TimeFormat: time.RFC3339,
		}
	}
	zerolog.CallerMarshalFunc = func(pc uintptr, file string, line int) string {
		short := file
		if i := strings.LastIndexByte(file, '/'); i >= 0 {
			short = file[i+1:]
		}
		return fmt.Sprintf("%-24s", fmt.Sprintf("%s:%d", short, line))
	}
	return zerolog.New(out).Level(ParseLevel(level)).With().Timestamp().Caller().Logger()
}

// ParseLevel maps a level name to a zerolog level, defaulting to info.
func ParseLevel(level string) zerolog.Level {
	level = strings.ToLower(strings.TrimSpace(level))
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		return zerolog.InfoLevel
	}
	return lvl
}
