// Copyright 2025 Mainsail
// SPDX-License-Identifier: Apache-2.0

package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	// DefaultTimeout is the explicit per-call HTTP timeout applied to
	// every completion request.
	DefaultTimeout = 120 * time.Second

	// DefaultMaxTokens is the default completion length cap.
	DefaultMaxTokens = 4096

	// DefaultTemperature is used when the request does not set one.
	DefaultTemperature = 0.7

	completionsPath = "/v1/chat/completions"
)

// HTTPClient is an interface for HTTP client operations (enables testing)
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client is a stateless adapter over one OpenAI-format chat-completion
// endpoint. Two instances exist in a deployment (primary and fallback)
// with different base URLs, credentials, and default models; the
// contract is otherwise identical so the router can treat them
// interchangeably.
type Client struct {
	name        string
	baseURL     string
	apiKey      string
	model       string
	temperature float64
	maxTokens   int
	client      HTTPClient
}

// Config contains configuration for a completion client.
type Config struct {
	Name        string        // Required: instance name ("primary", "fallback")
	BaseURL     string        // Required: API base URL
	APIKey      string        // Required: bearer credential
	Model       string        // Required: default model identifier
	Temperature float64       // Optional: default temperature (default: 0.7)
	MaxTokens   int           // Optional: default completion cap (default: 4096)
	Timeout     time.Duration // Optional: HTTP timeout (default: 120s)
}

// NewClient creates a completion client. A missing API key is a
// ConfigurationError: the process is misconfigured and the client would
// fail on every call.
func NewClient(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, &ConfigurationError{Provider: cfg.Name, Message: "API key is required"}
	}
	if cfg.BaseURL == "" {
		return nil, &ConfigurationError{Provider: cfg.Name, Message: "base URL is required"}
	}
	if cfg.Model == "" {
		return nil, &ConfigurationError{Provider: cfg.Name, Message: "default model is required"}
	}

	if cfg.Temperature <= 0 {
		cfg.Temperature = DefaultTemperature
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}

	return &Client{
		name:        cfg.Name,
		baseURL:     cfg.BaseURL,
		apiKey:      cfg.APIKey,
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		client:      &http.Client{Timeout: cfg.Timeout},
	}, nil
}

// Name returns the instance name ("primary" or "fallback").
func (c *Client) Name() string { return c.name }

// Model returns the client's default model identifier.
func (c *Client) Model() string { return c.model }

// Complete sends a single synchronous completion request and returns
// the normalized response with wall-clock latency measured around the
// HTTP call.
func (c *Client) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	model := req.Model
	if model == "" {
		model = c.model
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = c.maxTokens
	}

	temperature := c.temperature
	if req.Temperature != nil {
		temperature = *req.Temperature
	}

	apiReq := chatRequest{
		Model:       model,
		Messages:    req.Messages,
		Temperature: &temperature,
		MaxTokens:   maxTokens,
	}
	if req.JSONResponse {
		apiReq.ResponseFormat = &responseFormat{Type: "json_object"}
	}

	reqBody, err := json.Marshal(apiReq)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+completionsPath, bytes.NewBuffer(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	start := time.Now()
	resp, err := c.client.Do(httpReq)
	latency := time.Since(start)
	if err != nil {
		return nil, &UpstreamError{Provider: c.name, StatusCode: 0, Message: err.Error()}
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, c.parseAPIError(resp.StatusCode, body)
	}

	var apiResp chatResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if len(apiResp.Choices) == 0 {
		return nil, &UpstreamError{Provider: c.name, StatusCode: resp.StatusCode, Message: "response contained no choices"}
	}

	respModel := apiResp.Model
	if respModel == "" {
		respModel = model
	}

	return &CompletionResponse{
		Text:       apiResp.Choices[0].Message.Content,
		TokensUsed: apiResp.Usage.TotalTokens,
		Latency:    latency,
		Model:      respModel,
		Raw:        json.RawMessage(body),
	}, nil
}

// parseAPIError maps a non-2xx provider response onto the error
// taxonomy: 429 is RateLimitedError, everything else UpstreamError.
func (c *Client) parseAPIError(statusCode int, body []byte) error {
	message := string(body)

	var errResp struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error.Message != "" {
		message = errResp.Error.Message
	}

	if statusCode == http.StatusTooManyRequests {
		return &RateLimitedError{Provider: c.name, Message: message}
	}
	return &UpstreamError{Provider: c.name, StatusCode: statusCode, Message: message}
}

// Wire types for the OpenAI-format chat completions API.

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []Message       `json:"messages"`
	Temperature    *float64        `json:"temperature,omitempty"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}
