package models

import (
	"errors"
	"fmt"
	"time"
)

// ErrProviderNotConfigured is returned when the model resolves to a provider
// which failed Setup, typically due to a missing API key.
var ErrProviderNotConfigured = errors.New("provider not configured")

// UnknownModelError is returned when a model id is not in the catalog.
type UnknownModelError struct {
	ModelID string
}

func (e *UnknownModelError) Error() string {
	return fmt.Sprintf("unknown model: '%v'", e.ModelID)
}

// UpstreamProviderError is a vendor rejection or failure. Message holds the
// vendor's own explanation when it could be parsed.
type UpstreamProviderError struct {
	Provider   string
	StatusCode int
	Message    string
	// ResetAt is set for 429 responses when the vendor sent a reset hint.
	ResetAt time.Time
}

func (e *UpstreamProviderError) Error() string {
	msg := fmt.Sprintf("%v: ", e.Provider)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf("status %v: ", e.StatusCode)
	}
	msg += e.Message
	if !e.ResetAt.IsZero() {
		msg += fmt.Sprintf(" (rate limit resets at: %v)", e.ResetAt.Format(time.RFC3339))
	}
	return msg
}

// IsRateLimit reports if the vendor responded with 429.
func (e *UpstreamProviderError) IsRateLimit() bool {
	return e.StatusCode == 429
}

// RateLimitExceededError is returned when the local usage limiter denies a
// request before any provider is contacted.
type RateLimitExceededError struct {
	Reason  string
	ResetIn time.Duration
}

func (e *RateLimitExceededError) Error() string {
	if e.ResetIn > 0 {
		return fmt.Sprintf("rate limit exceeded: %v, try again in %v", e.Reason, e.ResetIn.Round(time.Second))
	}
	return fmt.Sprintf("rate limit exceeded: %v", e.Reason)
}
