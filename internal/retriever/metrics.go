package retriever

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

const instrumentationName = "github.com/fyrsmithlabs/guidanced/internal/retriever"

// Metrics holds retrieval instrumentation.
type Metrics struct {
	meter          metric.Meter
	logger         *zap.Logger
	duration       metric.Float64Histogram
	shardsReturned metric.Int64Histogram
	contradictions metric.Int64Counter
}

// NewMetrics creates retrieval metrics on the global meter provider.
func NewMetrics(logger *zap.Logger) *Metrics {
	m := &Metrics{
		meter:  otel.Meter(instrumentationName),
		logger: logger,
	}
	m.init()
	return m
}

func (m *Metrics) init() {
	var err error

	m.duration, err = m.meter.Float64Histogram(
		"guidanced.retrieval.duration_seconds",
		metric.WithDescription("Wall-clock duration of shard retrieval, labeled by detected intent"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0),
	)
	if err != nil {
		m.logger.Warn("failed to create duration histogram", zap.Error(err))
	}

	m.shardsReturned, err = m.meter.Int64Histogram(
		"guidanced.retrieval.shards_returned",
		metric.WithDescription("Number of shards returned per retrieval after filtering and budgeting"),
		metric.WithUnit("{shard}"),
		metric.WithExplicitBucketBoundaries(0, 1, 2, 4, 8, 16, 32),
	)
	if err != nil {
		m.logger.Warn("failed to create shards histogram", zap.Error(err))
	}

	m.contradictions, err = m.meter.Int64Counter(
		"guidanced.retrieval.contradictions_resolved_total",
		metric.WithDescription("Total contradictory shard pairs resolved during retrieval"),
		metric.WithUnit("{contradiction}"),
	)
	if err != nil {
		m.logger.Warn("failed to create contradictions counter", zap.Error(err))
	}
}

// RecordRetrieval records one retrieval's instrumentation.
func (m *Metrics) RecordRetrieval(ctx context.Context, intent string, duration time.Duration, shards, contradictions int) {
	attrs := metric.WithAttributes(attribute.String("intent", intent))

	if m.duration != nil {
		m.duration.Record(ctx, duration.Seconds(), attrs)
	}
	if m.shardsReturned != nil {
		m.shardsReturned.Record(ctx, int64(shards), attrs)
	}
	if contradictions > 0 && m.contradictions != nil {
		m.contradictions.Add(ctx, int64(contradictions), attrs)
	}
}
