package otel

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Attribute keys attached to install spans.
const (
	AttrCommand   = "cloudinstaller.command"
	AttrOpID      = "cloudinstaller.op_id"
	AttrLibrary   = "cloudinstaller.library"
	AttrSource    = "cloudinstaller.source"
	AttrProcessor = "cloudinstaller.processor"
	AttrSkipped   = "cloudinstaller.skipped"
	AttrTarget    = "cloudinstaller.target"
)

var noopTracer = noop.NewTracerProvider().Tracer("")

// StartSpan opens a child span on the tracer stored in ctx. Without a handle the
// span is a no-op, so callers never need to check whether tracing is on.
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	tracer := noopTracer
	if h := From(ctx); h != nil && h.Tracer != nil {
		tracer = h.Tracer
	}
	return tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// EndSpan records err (if any), sets the status and ends the span.
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
