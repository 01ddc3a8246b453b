package optimizer

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

const instrumentationName = "github.com/fyrsmithlabs/guidanced/internal/optimizer"

// Metrics counts optimizer outcomes.
type Metrics struct {
	meter      metric.Meter
	logger     *zap.Logger
	promotions metric.Int64Counter
}

// NewMetrics creates optimizer metrics on the global meter provider.
func NewMetrics(logger *zap.Logger) *Metrics {
	m := &Metrics{
		meter:  otel.Meter(instrumentationName),
		logger: logger,
	}

	var err error
	m.promotions, err = m.meter.Int64Counter(
		"guidanced.optimizer.promotions_total",
		metric.WithDescription("Total rules promoted into the constitution"),
		metric.WithUnit("{rule}"),
	)
	if err != nil {
		m.logger.Warn("failed to create promotions counter", zap.Error(err))
	}
	return m
}

// RecordPromotion counts one promotion.
func (m *Metrics) RecordPromotion(ruleID string) {
	if m.promotions == nil {
		return
	}
	m.promotions.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("rule_id", ruleID),
	))
}
