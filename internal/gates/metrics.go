package gates

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

const instrumentationName = "github.com/fyrsmithlabs/guidanced/internal/gates"

// Metrics counts gate decisions by gate and outcome.
type Metrics struct {
	meter     metric.Meter
	logger    *zap.Logger
	decisions metric.Int64Counter
}

// NewMetrics creates gate metrics on the global meter provider.
func NewMetrics(logger *zap.Logger) *Metrics {
	m := &Metrics{
		meter:  otel.Meter(instrumentationName),
		logger: logger,
	}

	var err error
	m.decisions, err = m.meter.Int64Counter(
		"guidanced.gate.decisions_total",
		metric.WithDescription("Total non-allow gate decisions by gate name and decision"),
		metric.WithUnit("{decision}"),
	)
	if err != nil {
		m.logger.Warn("failed to create decisions counter", zap.Error(err))
	}
	return m
}

// RecordDecision counts one gate firing.
func (m *Metrics) RecordDecision(gate string, decision Decision) {
	if m.decisions == nil {
		return
	}
	m.decisions.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("gate", gate),
		attribute.String("decision", string(decision)),
	))
}
