// Package log holds the process-wide zerolog loggers, one per component.
package log

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

const consoleTimeFormat = "15:04:05"

// Logger is the root logger. Component loggers derive from it.
var Logger zerolog.Logger

var (
	Chain        zerolog.Logger
	Staking      zerolog.Logger
	Finalization zerolog.Logger
	Keystore     zerolog.Logger
	Storage      zerolog.Logger
	Mempool      zerolog.Logger
)

func init() {
	setRoot(NewConsoleLogger(os.Stdout, "info"))
}

// Init configures the root logger. Console output is colored unless
// jsonOutput is set; a non-empty file additionally receives JSON lines.
func Init(level string, jsonOutput bool, file string) error {
	var out io.Writer = os.Stdout
	if !jsonOutput {
		out = console(os.Stdout)
	}
	if file != "" {
		f, err := os.OpenFile(file, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		out = zerolog.MultiLevelWriter(out, f)
	}
	setRoot(newLogger(out, level))
	return nil
}

// NewConsoleLogger returns a colored, human-readable logger.
func NewConsoleLogger(w io.Writer, level string) zerolog.Logger {
	return newLogger(console(w), level)
}

// NewJSONLogger returns a logger writing one JSON object per line.
func NewJSONLogger(w io.Writer, level string) zerolog.Logger {
	return newLogger(w, level)
}

// SetOutput routes all logging to w as JSON. Tests use it to capture
// output.
func SetOutput(w io.Writer, level string) {
	setRoot(NewJSONLogger(w, level))
}

func console(w io.Writer) zerolog.ConsoleWriter {
	return zerolog.ConsoleWriter{Out: w, TimeFormat: consoleTimeFormat}
}

func newLogger(w io.Writer, level string) zerolog.Logger {
	return zerolog.New(w).Level(parseLevel(level)).With().Timestamp().Logger()
}

// parseLevel maps a config string to a level. Anything unrecognised is
// info.
func parseLevel(level string) zerolog.Level {
	level = strings.ToLower(level)
	if level == "warning" {
		level = "warn"
	}
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}

func setRoot(l zerolog.Logger) {
	Logger = l
	for _, c := range []struct {
		dst  *zerolog.Logger
		name string
	}{
		{&Chain, "chain"},
		{&Staking, "staking"},
		{&Finalization, "finalization"},
		{&Keystore, "keystore"},
		{&Storage, "storage"},
		{&Mempool, "mempool"},
	} {
		*c.dst = Logger.With().Str("component", c.name).Logger()
	}
}
