package logging

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"
)

// prettyLogger writes one human-readable line per entry:
//
//	15:04:05 INFO  libraries: downloaded name=com.example:lib:2.0
type prettyLogger struct {
	writer   io.Writer
	closer   io.Closer
	minLevel int
	mu       sync.Mutex
}

func (p *prettyLogger) log(level, component, msg string, fields map[string]any) {
	if levelPriority(level) < p.minLevel {
		return
	}

	var b strings.Builder
	b.WriteString(time.Now().Format("15:04:05"))
	fmt.Fprintf(&b, " %-5s ", strings.ToUpper(level))
	if component != "" {
		b.WriteString(component)
		b.WriteString(": ")
	}
	b.WriteString(msg)

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%v", k, fields[k])
	}
	b.WriteByte('\n')

	p.mu.Lock()
	defer p.mu.Unlock()
	_, _ = io.WriteString(p.writer, b.String())
}

func (p *prettyLogger) Debug(component, msg string, fields ...any) {
	p.log(LevelDebug, component, msg, pairs(fields))
}

func (p *prettyLogger) Info(component, msg string, fields ...any) {
	p.log(LevelInfo, component, msg, pairs(fields))
}

func (p *prettyLogger) Warn(component, msg string, fields ...any) {
	p.log(LevelWarn, component, msg, pairs(fields))
}

func (p *prettyLogger) Error(component, msg string, fields ...any) {
	p.log(LevelError, component, msg, pairs(fields))
}

// Event lines are debug-level in pretty output; the progress sink already
// tells a human what is happening.
func (p *prettyLogger) Event(ctx context.Context, event string, fields map[string]any) {
	p.log(LevelDebug, "cli", event, fields)
}

func (p *prettyLogger) Close() error {
	if p.closer != nil {
		return p.closer.Close()
	}
	return nil
}
