// Package logging writes structured installer logs.
package logging

import "fmt"

// Formats accepted by NewLogger.
const (
	FormatPretty = "pretty"
	FormatJSONL  = "jsonl"
	FormatNone   = "none"
)

type Config struct {
	Format string
	Level  string
	Output string
}

func DefaultConfig() Config {
	return Config{
		Format: FormatPretty,
		Level:  LevelInfo,
		Output: "stderr",
	}
}

// Validate rejects unknown formats and levels.
func (c Config) Validate() error {
	switch c.Format {
	case "", FormatPretty, FormatJSONL, FormatNone:
	default:
		return fmt.Errorf("unknown log format %q (want pretty, jsonl or none)", c.Format)
	}
	switch c.Level {
	case "", LevelDebug, LevelInfo, LevelWarn, LevelError:
	default:
		return fmt.Errorf("unknown log level %q", c.Level)
	}
	return nil
}

const (
	LevelDebug = "debug"
	LevelInfo  = "info"
	LevelWarn  = "warn"
	LevelError = "error"
)

func levelPriority(level string) int {
	switch level {
	case LevelDebug:
		return 0
	case LevelInfo:
		return 1
	case LevelWarn:
		return 2
	case LevelError:
		return 3
	default:
		return 1 // default to info
	}
}
