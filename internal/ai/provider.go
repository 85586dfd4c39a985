package ai

import "context"

// Provider is one language-model backend. The pipeline only needs
// single-prompt completion; no chat history is threaded through stages.
type Provider interface {
	Complete(ctx context.Context, prompt string) (string, error)
}
