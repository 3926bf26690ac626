// ABOUTME: Tests for the core telemetry interface and the no-op implementation
// ABOUTME: Exercises recording, span creation and shutdown without any exporter

package telemetry

import (
	"context"
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"
)

func TestNoopTelemetry(t *testing.T) {
	tel := NewNoop()

	ctx := context.Background()

	tel.RecordHistogram(ctx, "test.histogram", 1.5, attribute.String("key", "value"))
	tel.RecordCounter(ctx, "test.counter", 10, attribute.String("key", "value"))

	spanCtx, span := tel.StartSpan(ctx, "test.span", attribute.String("test", "value"))
	if spanCtx == nil {
		t.Error("StartSpan returned nil context")
	}
	if span == nil {
		t.Error("StartSpan returned nil span")
	}
	span.End()

	if err := tel.Shutdown(ctx); err != nil {
		t.Errorf("Shutdown returned error: %v", err)
	}
}

func TestRecordDuration(t *testing.T) {
	tel := NewNoop()
	ctx := context.Background()
	start := time.Now()

	time.Sleep(time.Millisecond)

	RecordDuration(ctx, tel, "test.duration", start, attribute.String(AttrOperationType, OpTypeFind))
}

func TestRecordBytes(t *testing.T) {
	tel := NewNoop()
	RecordBytes(context.Background(), tel, "test.bytes", 1024, attribute.String(AttrComponent, ComponentSSTable))
}
