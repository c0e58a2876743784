package vision

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ashureev/vetcheck/internal/domain"
	"github.com/ashureev/vetcheck/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"
)

// DefaultMaxWorkers bounds concurrent image analyses within one call.
const DefaultMaxWorkers = 5

// Orchestrator runs the provider chain. Analyze always returns a result.
type Orchestrator struct {
	providers  []Provider
	fallback   Heuristic
	maxWorkers int
	logger     *slog.Logger
	metrics    *telemetry.Instruments
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithMaxWorkers caps parallel analyses in AnalyzeAll.
func WithMaxWorkers(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.maxWorkers = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithInstruments records provider attempts.
func WithInstruments(m *telemetry.Instruments) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// NewOrchestrator tries providers in the given order before the local heuristic.
func NewOrchestrator(providers []Provider, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		providers:  providers,
		maxWorkers: DefaultMaxWorkers,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Analyze runs the chain for one image.
func (o *Orchestrator) Analyze(ctx context.Context, image []byte) domain.AnalysisResult {
	ctx, span := telemetry.Tracer().Start(ctx, "vision.Analyze")
	defer span.End()

	for _, p := range o.providers {
		if ctx.Err() != nil {
			break
		}
		res, err := o.attempt(ctx, p, image)
		if err != nil {
			o.logger.Warn("Image provider failed, trying next", "provider", p.Name(), "error", err)
			continue
		}
		span.SetAttributes(attribute.String("vision.source", res.Source))
		return sanitize(res, p.Name())
	}

	start := time.Now()
	res := o.fallback.Assess(image)
	o.metrics.RecordProvider(ctx, "vision", o.fallback.Name(), telemetry.OutcomeFallback, time.Since(start))
	span.SetAttributes(attribute.String("vision.source", res.Source))
	return res
}

// AnalyzeAll analyses images with bounded parallelism. Result i belongs to images[i].
func (o *Orchestrator) AnalyzeAll(ctx context.Context, images [][]byte) []domain.AnalysisResult {
	results := make([]domain.AnalysisResult, len(images))
	if len(images) == 0 {
		return results
	}

	var g errgroup.Group
	g.SetLimit(min(len(images), o.maxWorkers))
	for i, img := range images {
		g.Go(func() error {
			results[i] = o.Analyze(ctx, img)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// Readiness probes every provider that supports it.
func (o *Orchestrator) Readiness(ctx context.Context) map[string]error {
	out := make(map[string]error, len(o.providers))
	for _, p := range o.providers {
		if prober, ok := p.(Prober); ok {
			out[p.Name()] = prober.Probe(ctx)
		}
	}
	return out
}

// Provider returns the configured provider with the given name.
func (o *Orchestrator) Provider(name string) (Provider, bool) {
	for _, p := range o.providers {
		if p.Name() == name {
			return p, true
		}
	}
	return nil, false
}

func (o *Orchestrator) attempt(ctx context.Context, p Provider, image []byte) (res domain.AnalysisResult, err error) {
	ctx, span := telemetry.Tracer().Start(ctx, "vision."+p.Name())
	defer span.End()

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = domain.Internal(p.Name()+" panicked", fmt.Errorf("%v", r))
		}
		switch {
		case err == nil:
			o.metrics.RecordProvider(ctx, "vision", p.Name(), telemetry.OutcomeOK, time.Since(start))
		default:
			span.SetStatus(codes.Error, err.Error())
			o.metrics.RecordProvider(ctx, "vision", p.Name(), telemetry.OutcomeFailed, time.Since(start))
		}
	}()

	if prober, ok := p.(Prober); ok {
		if err := prober.Probe(ctx); err != nil {
			return domain.AnalysisResult{}, domain.Unavailable(p.Name()+" probe", err)
		}
	}
	res, err = p.Analyze(ctx, image)
	if err != nil {
		return domain.AnalysisResult{}, domain.Unavailable(p.Name(), err)
	}
	return res, nil
}

func sanitize(r domain.AnalysisResult, source string) domain.AnalysisResult {
	if !r.Urgency.Valid() {
		r.Urgency = domain.UrgencyLow
	}
	r.Confidence = clamp01(r.Confidence)
	if r.Symptoms == nil {
		r.Symptoms = domain.SymptomSet{}
	}
	if r.Source == "" {
		r.Source = source
	}
	if r.Condition == "" {
		r.Condition = "Assessment completed"
	}
	return r
}
