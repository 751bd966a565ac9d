package otelx

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "linnemanlabs/siteadmin"

// Recorder receives the outcome of every tracked operation.
type Recorder interface {
	ObserveOperation(op string, err error, seconds float64)
}

type nopRecorder struct{}

func (nopRecorder) ObserveOperation(string, error, float64) {}

// NopRecorder discards observations.
func NopRecorder() Recorder { return nopRecorder{} }

// Track starts span "siteadmin.<op>". The returned func ends the span,
// marks it failed when err is non-nil and reports the duration to rec.
//
//	ctx, done := otelx.Track(ctx, rec, "page.create")
//	defer func() { done(err) }()
func Track(ctx context.Context, rec Recorder, op string, attrs ...attribute.KeyValue) (context.Context, func(err error)) {
	if rec == nil {
		rec = nopRecorder{}
	}
	start := time.Now()
	ctx, span := otel.Tracer(tracerName).Start(ctx, "siteadmin."+op, trace.WithAttributes(attrs...))
	return ctx, func(err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
		rec.ObserveOperation(op, err, time.Since(start).Seconds())
	}
}
