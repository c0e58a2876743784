// Package vision analyses pet images through a prioritised chain of providers
// that always ends in a local heuristic.
package vision

import (
	"context"

	"github.com/ashureev/vetcheck/internal/domain"
)

// Provider turns image bytes into an AnalysisResult.
type Provider interface {
	Name() string
	Analyze(ctx context.Context, image []byte) (domain.AnalysisResult, error)
}

// Prober is implemented by providers with a readiness endpoint. The
// orchestrator skips a provider whose probe fails.
type Prober interface {
	Probe(ctx context.Context) error
}
