// Package progress reports installer activity to a human or to the logger.
package progress

import (
	"fmt"
	"io"
	"sync"

	"github.com/cloudloader/cloudinstaller/internal/observability/logging"
)

type Priority int

const (
	Low Priority = iota
	Normal
	High
)

func (p Priority) String() string {
	switch p {
	case Low:
		return "low"
	case High:
		return "high"
	default:
		return "normal"
	}
}

// Callback receives progress from the acquirer, pipeline and orchestrator.
type Callback interface {
	// Start announces a new top-level task.
	Start(label string)
	// Stage announces an indeterminate phase.
	Stage(msg string)
	Message(msg string, p Priority)
	// Progress reports completion of the current phase in [0,1].
	Progress(fraction float64)
}

// Discard drops everything.
var Discard Callback = discard{}

type discard struct{}

func (discard) Start(string)            {}
func (discard) Stage(string)            {}
func (discard) Message(string, Priority) {}
func (discard) Progress(float64)        {}

// Writer prints one line per message to every w. Messages below min are dropped;
// Progress is ignored since a console cannot redraw a bar between lines.
func Writer(min Priority, ws ...io.Writer) Callback {
	return &writer{min: min, ws: ws}
}

type writer struct {
	mu  sync.Mutex
	min Priority
	ws  []io.Writer
}

func (w *writer) Start(label string) { w.Message(label, Normal) }
func (w *writer) Stage(msg string)   { w.Message(msg, Normal) }
func (w *writer) Progress(float64)   {}

func (w *writer) Message(msg string, p Priority) {
	if p < w.min {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, out := range w.ws {
		fmt.Fprintln(out, msg)
	}
}

// Logged forwards progress to a structured logger under component.
func Logged(l logging.Logger, component string) Callback {
	return &logged{l: l, component: component}
}

type logged struct {
	l         logging.Logger
	component string
}

func (g *logged) Start(label string) { g.l.Info(g.component, label, "kind", "start") }
func (g *logged) Stage(msg string)   { g.l.Info(g.component, msg, "kind", "stage") }

func (g *logged) Message(msg string, p Priority) {
	switch p {
	case Low:
		g.l.Debug(g.component, msg)
	case High:
		g.l.Warn(g.component, msg)
	default:
		g.l.Info(g.component, msg)
	}
}

func (g *logged) Progress(fraction float64) {
	g.l.Debug(g.component, "progress", "fraction", fraction)
}

// Multi fans out to every callback.
func Multi(cbs ...Callback) Callback {
	return multi(cbs)
}

type multi []Callback

func (m multi) Start(label string) {
	for _, c := range m {
		c.Start(label)
	}
}

func (m multi) Stage(msg string) {
	for _, c := range m {
		c.Stage(msg)
	}
}

func (m multi) Message(msg string, p Priority) {
	for _, c := range m {
		c.Message(msg, p)
	}
}

func (m multi) Progress(fraction float64) {
	for _, c := range m {
		c.Progress(fraction)
	}
}
