// Copyright 2025 Mainsail
// SPDX-License-Identifier: Apache-2.0

// Package llm provides the chat-completion clients, the task classifier,
// and the primary/fallback router used by the swarm orchestrator.
package llm

import (
	"context"
	"encoding/json"
	"time"
)

// Message is one role-tagged entry in a chat-completion conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CompletionRequest encapsulates the parameters of one completion call.
type CompletionRequest struct {
	// Messages is the ordered conversation sent to the model.
	Messages []Message `json:"messages"`

	// Model overrides the client's default model when non-empty.
	Model string `json:"model,omitempty"`

	// Temperature controls randomness. Nil uses the client default;
	// a pointer makes 0.0 (deterministic) expressible.
	Temperature *float64 `json:"temperature,omitempty"`

	// MaxTokens limits the response length. 0 uses the client default.
	MaxTokens int `json:"max_tokens,omitempty"`

	// JSONResponse asks the provider for a structured JSON object
	// response where supported (response_format hint).
	JSONResponse bool `json:"json_response,omitempty"`
}

// CompletionResponse is the normalized result of one completion call.
type CompletionResponse struct {
	// Text is the generated completion text.
	Text string `json:"text"`

	// TokensUsed is the provider-reported total token count.
	TokensUsed int `json:"tokens_used"`

	// Latency is the wall-clock duration of the HTTP call.
	Latency time.Duration `json:"latency"`

	// Model is the model that actually served the request.
	Model string `json:"model"`

	// Raw is the unparsed provider response body, kept for diagnosis.
	Raw json.RawMessage `json:"-"`
}

// Completer is the minimal interface the router and classifier need from
// a chat-completion backend. *Client implements it; tests substitute
// doubles.
type Completer interface {
	// Complete sends one completion request and returns the normalized
	// response.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

	// Name identifies the backend instance ("primary", "fallback").
	Name() string

	// Model returns the backend's default model identifier.
	Model() string
}
