package otel

import (
	"context"

	"go.opentelemetry.io/otel/trace"
)

type handleKey struct{}

// Handle is what setup leaves in the command context once tracing is on.
// StartSpan draws install spans from Tracer.
type Handle struct {
	Tracer trace.Tracer
	flush  func(context.Context) error
}

// Shutdown exports buffered install spans and stops the exporter. It is a no-op
// for a Handle without an exporter.
func (h *Handle) Shutdown(ctx context.Context) error {
	if h == nil || h.flush == nil {
		return nil
	}
	return h.flush(ctx)
}

func WithHandle(ctx context.Context, h *Handle) context.Context {
	return context.WithValue(ctx, handleKey{}, h)
}

// From returns the Handle stored by WithHandle, or nil when tracing is off.
func From(ctx context.Context) *Handle {
	h, _ := ctx.Value(handleKey{}).(*Handle)
	return h
}
