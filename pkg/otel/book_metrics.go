package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/tradekit/bookfeed/pkg/otel"

var (
	// bookMetrics holds the singleton instance
	bookMetrics *BookMetrics
	// meter is the global meter for book metrics
	meter = otel.GetMeterProvider().Meter(instrumentationName)
)

// BookMetrics holds metrics for order book reconciliation
type BookMetrics struct {
	snapshotsApplied metric.Int64Counter
	deltasApplied    metric.Int64Counter
	duplicatesTotal  metric.Int64Counter
	gapsTotal        metric.Int64Counter
	resyncsTotal     metric.Int64Counter
	bufferOverflows  metric.Int64Counter
}

// GetBookMetrics returns the BookMetrics singleton
func GetBookMetrics() *BookMetrics {
	if bookMetrics == nil {
		snapshotsApplied, err := meter.Int64Counter(
			"bookfeed.snapshots.total",
			metric.WithDescription("Total number of snapshots applied"),
			metric.WithUnit("{snapshot}"),
		)
		if err != nil {
			return &BookMetrics{}
		}
		deltasApplied, err := meter.Int64Counter(
			"bookfeed.deltas.total",
			metric.WithDescription("Total number of level updates applied"),
			metric.WithUnit("{message}"),
		)
		if err != nil {
			return &BookMetrics{}
		}
		duplicatesTotal, err := meter.Int64Counter(
			"bookfeed.duplicates.total",
			metric.WithDescription("Total number of stale messages discarded"),
			metric.WithUnit("{message}"),
		)
		if err != nil {
			return &BookMetrics{}
		}
		gapsTotal, err := meter.Int64Counter(
			"bookfeed.gaps.total",
			metric.WithDescription("Total number of sequence gaps detected"),
			metric.WithUnit("{gap}"),
		)
		if err != nil {
			return &BookMetrics{}
		}
		resyncsTotal, err := meter.Int64Counter(
			"bookfeed.resyncs.total",
			metric.WithDescription("Total number of snapshot resyncs requested"),
			metric.WithUnit("{resync}"),
		)
		if err != nil {
			return &BookMetrics{}
		}
		bufferOverflows, err := meter.Int64Counter(
			"bookfeed.buffer_overflows.total",
			metric.WithDescription("Total number of pre-snapshot buffer overflows"),
			metric.WithUnit("{overflow}"),
		)
		if err != nil {
			return &BookMetrics{}
		}

		bookMetrics = &BookMetrics{
			snapshotsApplied: snapshotsApplied,
			deltasApplied:    deltasApplied,
			duplicatesTotal:  duplicatesTotal,
			gapsTotal:        gapsTotal,
			resyncsTotal:     resyncsTotal,
			bufferOverflows:  bufferOverflows,
		}
	}

	return bookMetrics
}

func (m *BookMetrics) product(productID string) metric.MeasurementOption {
	return metric.WithAttributes(attribute.String("product.id", productID))
}

// RecordSnapshot increments the snapshots applied counter
func (m *BookMetrics) RecordSnapshot(ctx context.Context, productID string) {
	if m.snapshotsApplied == nil {
		return
	}
	m.snapshotsApplied.Add(ctx, 1, m.product(productID))
}

// RecordDeltas increments the applied level update counter
func (m *BookMetrics) RecordDeltas(ctx context.Context, productID string, count int64) {
	if m.deltasApplied == nil {
		return
	}
	m.deltasApplied.Add(ctx, count, m.product(productID))
}

// RecordDuplicate increments the stale message counter
func (m *BookMetrics) RecordDuplicate(ctx context.Context, productID string) {
	if m.duplicatesTotal == nil {
		return
	}
	m.duplicatesTotal.Add(ctx, 1, m.product(productID))
}

// RecordGap increments the sequence gap counter
func (m *BookMetrics) RecordGap(ctx context.Context, productID string) {
	if m.gapsTotal == nil {
		return
	}
	m.gapsTotal.Add(ctx, 1, m.product(productID))
}

// RecordResync increments the resync counter
func (m *BookMetrics) RecordResync(ctx context.Context, productID string) {
	if m.resyncsTotal == nil {
		return
	}
	m.resyncsTotal.Add(ctx, 1, m.product(productID))
}

// RecordBufferOverflow increments the buffer overflow counter
func (m *BookMetrics) RecordBufferOverflow(ctx context.Context, productID string) {
	if m.bufferOverflows == nil {
		return
	}
	m.bufferOverflows.Add(ctx, 1, m.product(productID))
}
