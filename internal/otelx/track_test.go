package otelx

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

type recorded struct {
	op  string
	err error
}

type sliceRecorder struct{ got []recorded }

func (s *sliceRecorder) ObserveOperation(op string, err error, seconds float64) {
	s.got = append(s.got, recorded{op: op, err: err})
}

func withSpanRecorder(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	sr := tracetest.NewSpanRecorder()
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr)))
	t.Cleanup(func() { otel.SetTracerProvider(prev) })
	return sr
}

func TestTrack_RecordsSpanAndOutcome(t *testing.T) {
	sr := withSpanRecorder(t)
	rec := &sliceRecorder{}

	_, done := Track(context.Background(), rec, "page.create")
	done(nil)

	_, done = Track(context.Background(), rec, "publish")
	done(errors.New("boom"))

	spans := sr.Ended()
	if len(spans) != 2 {
		t.Fatalf("ended spans = %d, want 2", len(spans))
	}
	if spans[0].Name() != "siteadmin.page.create" {
		t.Fatalf("span name = %q", spans[0].Name())
	}
	if spans[1].Status().Code != codes.Error {
		t.Fatalf("failed op status = %v, want Error", spans[1].Status().Code)
	}
	if len(rec.got) != 2 || rec.got[0].err != nil || rec.got[1].err == nil {
		t.Fatalf("recorded = %+v", rec.got)
	}
}

func TestTrack_NilRecorder(t *testing.T) {
	_, done := Track(context.Background(), nil, "noop")
	done(nil)
}
