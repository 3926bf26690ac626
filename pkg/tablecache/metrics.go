// ABOUTME: Table cache telemetry metrics interface and implementation
// ABOUTME: Tracks lookups, table opens, evictions, point reads and iterators through the table cache

package tablecache

import (
	"context"
	"strconv"
	"time"

	"github.com/KevoDB/tablestore/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
)

// Metrics defines the interface for table cache telemetry operations.
// All metrics are optional - implementations can safely be no-op.
type Metrics interface {
	telemetry.ComponentMetrics

	// RecordLookup records whether Find was served from the cache.
	RecordLookup(ctx context.Context, hit bool)

	// RecordOpen records a table open on a cache miss.
	RecordOpen(ctx context.Context, duration time.Duration, fileNum uint64, err error)

	// RecordEviction records an explicit eviction.
	RecordEviction(ctx context.Context, fileNum uint64)

	// RecordGet records a point lookup through the cache.
	RecordGet(ctx context.Context, duration time.Duration, found bool, err error)

	// RecordIterator records an iterator handed out over a cached table.
	RecordIterator(ctx context.Context, fileNum uint64)
}

// tableCacheMetrics implements Metrics using the telemetry interface.
type tableCacheMetrics struct {
	tel telemetry.Telemetry
}

// NewMetrics creates a new table cache metrics implementation.
// If tel is nil, returns a no-op implementation.
func NewMetrics(tel telemetry.Telemetry) Metrics {
	if tel == nil {
		return &noopMetrics{}
	}
	return &tableCacheMetrics{tel: tel}
}

// NewNoopMetrics creates a no-op metrics implementation for testing.
func NewNoopMetrics() Metrics {
	return &noopMetrics{}
}

func (m *tableCacheMetrics) RecordLookup(ctx context.Context, hit bool) {
	m.tel.RecordCounter(ctx, "tablestore.tablecache.lookups", 1,
		attribute.String(telemetry.AttrComponent, telemetry.ComponentTableCache),
		attribute.String(telemetry.AttrOperationType, telemetry.OpTypeFind),
		attribute.Bool("hit", hit),
	)
}

func (m *tableCacheMetrics) RecordOpen(ctx context.Context, duration time.Duration, fileNum uint64, err error) {
	m.tel.RecordHistogram(ctx, "tablestore.tablecache.open.duration", duration.Seconds(),
		attribute.String(telemetry.AttrComponent, telemetry.ComponentTableCache),
		attribute.String(telemetry.AttrStatus, statusOf(err)),
	)

	attrs := []attribute.KeyValue{
		attribute.String(telemetry.AttrComponent, telemetry.ComponentTableCache),
		attribute.String(telemetry.AttrStatus, statusOf(err)),
	}
	if err != nil {
		attrs = append(attrs,
			attribute.String(telemetry.AttrErrorType, errorType(err)),
			attribute.String(telemetry.AttrFileID, strconv.FormatUint(fileNum, 10)),
		)
	}
	m.tel.RecordCounter(ctx, "tablestore.tablecache.opens", 1, attrs...)
}

func (m *tableCacheMetrics) RecordEviction(ctx context.Context, fileNum uint64) {
	m.tel.RecordCounter(ctx, "tablestore.tablecache.evictions", 1,
		attribute.String(telemetry.AttrComponent, telemetry.ComponentTableCache),
		attribute.String(telemetry.AttrOperationType, telemetry.OpTypeEvict),
		attribute.String(telemetry.AttrReason, "explicit"),
	)
}

func (m *tableCacheMetrics) RecordGet(ctx context.Context, duration time.Duration, found bool, err error) {
	m.tel.RecordHistogram(ctx, "tablestore.tablecache.get.duration", duration.Seconds(),
		attribute.String(telemetry.AttrComponent, telemetry.ComponentTableCache),
		attribute.String(telemetry.AttrOperationType, telemetry.OpTypeGet),
		attribute.String(telemetry.AttrStatus, statusOf(err)),
		attribute.Bool("found", found),
	)
}

func (m *tableCacheMetrics) RecordIterator(ctx context.Context, fileNum uint64) {
	m.tel.RecordCounter(ctx, "tablestore.tablecache.iterators", 1,
		attribute.String(telemetry.AttrComponent, telemetry.ComponentTableCache),
		attribute.String(telemetry.AttrOperationType, telemetry.OpTypeIterator),
	)
}

// Close releases any resources held by the metrics implementation.
func (m *tableCacheMetrics) Close() error {
	return nil
}

// noopMetrics provides a no-operation implementation for testing or disabled telemetry.
type noopMetrics struct{}

func (n *noopMetrics) RecordLookup(context.Context, bool)                       {}
func (n *noopMetrics) RecordOpen(context.Context, time.Duration, uint64, error) {}
func (n *noopMetrics) RecordEviction(context.Context, uint64)                   {}
func (n *noopMetrics) RecordGet(context.Context, time.Duration, bool, error)    {}
func (n *noopMetrics) RecordIterator(context.Context, uint64)                   {}
func (n *noopMetrics) Close() error                                             { return nil }

func statusOf(err error) string {
	if err != nil {
		return telemetry.StatusError
	}
	return telemetry.StatusSuccess
}
