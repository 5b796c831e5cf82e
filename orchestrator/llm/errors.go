// Copyright 2025 Mainsail
// SPDX-License-Identifier: Apache-2.0

package llm

import (
	"errors"
	"fmt"
)

// ConfigurationError indicates a client cannot operate because required
// configuration (typically the API credential) is missing. It is fatal
// and never retried or failed over.
type ConfigurationError struct {
	Provider string
	Message  string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("%s configuration error: %s", e.Provider, e.Message)
}

// RateLimitedError indicates the provider answered HTTP 429. The router
// treats it as a provider-side fault eligible for fallback.
type RateLimitedError struct {
	Provider string
	Message  string
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("%s rate limited (status 429): %s", e.Provider, e.Message)
}

// UpstreamError indicates any other non-2xx provider response. Like
// RateLimitedError it is eligible for fallback.
type UpstreamError struct {
	Provider   string
	StatusCode int
	Message    string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s upstream error (status %d): %s", e.Provider, e.StatusCode, e.Message)
}

// IsProviderFault reports whether err is a provider-side failure
// (rate limiting or any upstream error) as opposed to a configuration
// or programming error. Only provider faults trigger router fallback.
func IsProviderFault(err error) bool {
	var rateLimited *RateLimitedError
	var upstream *UpstreamError
	return errors.As(err, &rateLimited) || errors.As(err, &upstream)
}
