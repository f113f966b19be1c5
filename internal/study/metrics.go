package study

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

type engineMetrics struct {
	asks          metric.Int64Counter
	tells         metric.Int64Counter
	storeDuration metric.Float64Histogram
}

func newEngineMetrics() *engineMetrics {
	meter := otel.GetMeterProvider().Meter("studyd/study")
	asks, _ := meter.Int64Counter("studyd.ask.count",
		metric.WithDescription("Trials handed out by ask"),
	)
	tells, _ := meter.Int64Counter("studyd.tell.count",
		metric.WithDescription("Trial updates by outcome"),
	)
	storeDur, _ := meter.Float64Histogram("studyd.store.duration",
		metric.WithDescription("Time spent in store calls (ms)"),
		metric.WithUnit("ms"),
	)
	return &engineMetrics{asks: asks, tells: tells, storeDuration: storeDur}
}

func (m *engineMetrics) ask(ctx context.Context, study string) {
	if m.asks != nil {
		m.asks.Add(ctx, 1, metric.WithAttributes(attribute.String("study", study)))
	}
}

func (m *engineMetrics) tell(ctx context.Context, study, outcome string) {
	if m.tells != nil {
		m.tells.Add(ctx, 1, metric.WithAttributes(
			attribute.String("study", study),
			attribute.String("outcome", outcome),
		))
	}
}

func (m *engineMetrics) store(ctx context.Context, op string, start time.Time) {
	if m.storeDuration != nil {
		m.storeDuration.Record(ctx, float64(time.Since(start).Microseconds())/1000,
			metric.WithAttributes(attribute.String("op", op)))
	}
}
