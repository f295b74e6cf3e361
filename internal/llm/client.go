// Package llm is the boundary to the remote text-generation service.
package llm

import "context"

// Client executes a single chat completion against a remote model endpoint.
// Implementations may return a *RateLimitError (or any error whose text
// signals throttling) when the service is shedding load.
type Client interface {
	Complete(ctx context.Context, systemPrompt, userPrompt, model string) (string, error)
}
