package llm

import (
	"errors"
	"strings"
)

// RateLimitError signals that the remote service is throttling requests.
// Callers treat it as transient and retry with backoff.
type RateLimitError struct {
	Message string
}

func (e *RateLimitError) Error() string {
	if e.Message == "" {
		return "rate limited"
	}
	return e.Message
}

// IsRateLimit reports whether err is rate-limit-class: either a typed
// *RateLimitError anywhere in the chain, or an error whose text carries the
// usual throttling signals (HTTP 429 and its spellings). Providers differ in
// how they surface throttling, so the substring check stays alongside the
// typed check.
func IsRateLimit(err error) bool {
	if err == nil {
		return false
	}
	var rle *RateLimitError
	if errors.As(err, &rle) {
		return true
	}

	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "429") ||
		strings.Contains(msg, "rate limit") ||
		strings.Contains(msg, "too many requests")
}
