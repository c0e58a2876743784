package chat

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ashureev/vetcheck/internal/domain"
	"github.com/ashureev/vetcheck/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// Reply sources.
const (
	SourceProvider = "provider"
	SourceFallback = "fallback"
)

// Reply is a generated assistant message.
type Reply struct {
	Text   string   `json:"text"`
	Parts  []string `json:"parts"`
	Source string   `json:"source"`
}

// Generator produces replies. A nil provider always uses the fallback rules.
type Generator struct {
	provider Conversational
	timeout  time.Duration
	logger   *slog.Logger
	metrics  *telemetry.Instruments
}

// GeneratorOption configures a Generator.
type GeneratorOption func(*Generator)

// WithTimeout bounds each provider call.
func WithTimeout(d time.Duration) GeneratorOption {
	return func(g *Generator) {
		if d > 0 {
			g.timeout = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) GeneratorOption {
	return func(g *Generator) {
		if l != nil {
			g.logger = l
		}
	}
}

// WithInstruments records provider calls.
func WithInstruments(m *telemetry.Instruments) GeneratorOption {
	return func(g *Generator) { g.metrics = m }
}

// NewGenerator creates a generator around provider, which may be nil.
func NewGenerator(provider Conversational, opts ...GeneratorOption) *Generator {
	g := &Generator{
		provider: provider,
		timeout:  30 * time.Second,
		logger:   slog.Default(),
	}
	for _, o := range opts {
		o(g)
	}
	return g
}

// Generate never fails: provider errors and panics fall back to the rule engine.
func (g *Generator) Generate(ctx context.Context, message string, c Context) Reply {
	ctx, span := telemetry.Tracer().Start(ctx, "chat.Generate")
	defer span.End()

	if g.provider != nil {
		raw, err := g.complete(ctx, FullPrompt(message, c))
		if err == nil {
			text := Clean(raw)
			span.SetAttributes(attribute.String("chat.source", SourceProvider))
			return Reply{Text: text, Parts: Split(text), Source: SourceProvider}
		}
		span.SetStatus(codes.Error, err.Error())
		g.logger.Warn("Conversational provider failed, using fallback rules",
			"provider", g.provider.Name(), "error", err)
	}

	text := Fallback(message, c)
	span.SetAttributes(attribute.String("chat.source", SourceFallback))
	return Reply{Text: text, Parts: []string{text}, Source: SourceFallback}
}

func (g *Generator) complete(ctx context.Context, prompt string) (raw string, err error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = domain.Internal(g.provider.Name()+" panicked", fmt.Errorf("%v", r))
		}
		outcome := telemetry.OutcomeOK
		if err != nil {
			outcome = telemetry.OutcomeFailed
		}
		g.metrics.RecordProvider(ctx, "chat", g.provider.Name(), outcome, time.Since(start))
	}()

	raw, err = g.provider.Complete(ctx, prompt)
	if err != nil {
		return "", domain.Unavailable(g.provider.Name(), err)
	}
	return raw, nil
}
