// Package chat generates assistant replies through an external conversational
// provider and falls back to deterministic templates when it fails.
package chat

import "context"

// Conversational is a single-prompt completion provider.
type Conversational interface {
	Name() string
	Complete(ctx context.Context, prompt string) (string, error)
}
