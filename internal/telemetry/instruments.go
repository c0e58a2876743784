package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/ashureev/vetcheck"

// Outcome labels for provider calls.
const (
	OutcomeOK       = "ok"
	OutcomeFailed   = "failed"
	OutcomeSkipped  = "skipped"
	OutcomeFallback = "fallback"
)

// Instruments groups the counters and histograms the engine records.
// A nil *Instruments is valid and records nothing.
type Instruments struct {
	providerCalls   metric.Int64Counter
	providerLatency metric.Float64Histogram
	turns           metric.Int64Counter
	emergencies     metric.Int64Counter
}

// NewInstruments registers the engine's instruments on mp.
func NewInstruments(mp metric.MeterProvider) (*Instruments, error) {
	m := mp.Meter(instrumentationName)

	providerCalls, err := m.Int64Counter("vetcheck.provider.calls",
		metric.WithDescription("External provider attempts by kind, provider and outcome"))
	if err != nil {
		return nil, err
	}
	providerLatency, err := m.Float64Histogram("vetcheck.provider.duration",
		metric.WithDescription("External provider call latency"), metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}
	turns, err := m.Int64Counter("vetcheck.turns",
		metric.WithDescription("Processed conversation turns by verdict"))
	if err != nil {
		return nil, err
	}
	emergencies, err := m.Int64Counter("vetcheck.emergencies",
		metric.WithDescription("Turns that triggered the emergency lookup"))
	if err != nil {
		return nil, err
	}

	return &Instruments{
		providerCalls:   providerCalls,
		providerLatency: providerLatency,
		turns:           turns,
		emergencies:     emergencies,
	}, nil
}

// RecordProvider counts one provider attempt and its latency.
func (i *Instruments) RecordProvider(ctx context.Context, kind, provider, outcome string, elapsed time.Duration) {
	if i == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("kind", kind),
		attribute.String("provider", provider),
		attribute.String("outcome", outcome),
	)
	i.providerCalls.Add(ctx, 1, attrs)
	if outcome != OutcomeSkipped {
		i.providerLatency.Record(ctx, elapsed.Seconds(), attrs)
	}
}

// RecordTurn counts a processed turn.
func (i *Instruments) RecordTurn(ctx context.Context, urgency string, emergency bool) {
	if i == nil {
		return
	}
	i.turns.Add(ctx, 1, metric.WithAttributes(attribute.String("urgency", urgency)))
	if emergency {
		i.emergencies.Add(ctx, 1)
	}
}

// Tracer returns the service tracer from the global provider.
func Tracer() trace.Tracer {
	return otel.Tracer(instrumentationName)
}
