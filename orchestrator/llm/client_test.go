// Copyright 2025 Mainsail
// SPDX-License-Identifier: Apache-2.0

package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockHTTPClient is a mock implementation of HTTPClient
type MockHTTPClient struct {
	mock.Mock
}

func (m *MockHTTPClient) Do(req *http.Request) (*http.Response, error) {
	args := m.Called(req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*http.Response), args.Error(1)
}

func httpResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(bytes.NewBufferString(body)),
	}
}

func validConfig() Config {
	return Config{
		Name:    "primary",
		BaseURL: "https://llm.example.com",
		APIKey:  "test-api-key",
		Model:   "test-model",
	}
}

const successBody = `{
	"model": "test-model-20250101",
	"choices": [{"message": {"role": "assistant", "content": "hello there"}, "finish_reason": "stop"}],
	"usage": {"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15}
}`

// =============================================================================
// Client Creation Tests
// =============================================================================

func TestNewClient_Success(t *testing.T) {
	client, err := NewClient(validConfig())

	require.NoError(t, err)
	assert.Equal(t, "primary", client.Name())
	assert.Equal(t, "test-model", client.Model())
	assert.Equal(t, DefaultTemperature, client.temperature)
	assert.Equal(t, DefaultMaxTokens, client.maxTokens)
}

func TestNewClient_MissingAPIKey(t *testing.T) {
	cfg := validConfig()
	cfg.APIKey = ""

	_, err := NewClient(cfg)

	require.Error(t, err)
	var confErr *ConfigurationError
	require.ErrorAs(t, err, &confErr)
	assert.Equal(t, "primary", confErr.Provider)
	assert.Contains(t, confErr.Message, "API key")
}

func TestNewClient_MissingBaseURL(t *testing.T) {
	cfg := validConfig()
	cfg.BaseURL = ""

	_, err := NewClient(cfg)

	var confErr *ConfigurationError
	require.ErrorAs(t, err, &confErr)
}

func TestNewClient_MissingModel(t *testing.T) {
	cfg := validConfig()
	cfg.Model = ""

	_, err := NewClient(cfg)

	var confErr *ConfigurationError
	require.ErrorAs(t, err, &confErr)
}

// =============================================================================
// Complete Tests
// =============================================================================

func TestClient_Complete_Success(t *testing.T) {
	mockClient := new(MockHTTPClient)
	mockClient.On("Do", mock.Anything).Return(httpResponse(http.StatusOK, successBody), nil)

	client, err := NewClient(validConfig())
	require.NoError(t, err)
	client.client = mockClient

	resp, err := client.Complete(context.Background(), CompletionRequest{
		Messages: []Message{{Role: "user", Content: "hi"}},
	})

	require.NoError(t, err)
	assert.Equal(t, "hello there", resp.Text)
	assert.Equal(t, 15, resp.TokensUsed)
	assert.Equal(t, "test-model-20250101", resp.Model)
	assert.GreaterOrEqual(t, resp.Latency, time.Duration(0))
	assert.NotEmpty(t, resp.Raw)
	mockClient.AssertExpectations(t)
}

func TestClient_Complete_RequestShape(t *testing.T) {
	var captured chatRequest
	mockClient := new(MockHTTPClient)
	mockClient.On("Do", mock.MatchedBy(func(req *http.Request) bool {
		body, _ := io.ReadAll(req.Body)
		req.Body = io.NopCloser(bytes.NewBuffer(body))
		_ = json.Unmarshal(body, &captured)
		return true
	})).Return(httpResponse(http.StatusOK, successBody), nil)

	client, err := NewClient(validConfig())
	require.NoError(t, err)
	client.client = mockClient

	temp := 0.2
	_, err = client.Complete(context.Background(), CompletionRequest{
		Messages:     []Message{{Role: "system", Content: "be brief"}, {Role: "user", Content: "hi"}},
		Temperature:  &temp,
		MaxTokens:    256,
		JSONResponse: true,
	})
	require.NoError(t, err)

	assert.Equal(t, "test-model", captured.Model)
	require.Len(t, captured.Messages, 2)
	assert.Equal(t, "system", captured.Messages[0].Role)
	require.NotNil(t, captured.Temperature)
	assert.Equal(t, 0.2, *captured.Temperature)
	assert.Equal(t, 256, captured.MaxTokens)
	require.NotNil(t, captured.ResponseFormat)
	assert.Equal(t, "json_object", captured.ResponseFormat.Type)
}

func TestClient_Complete_BearerAuth(t *testing.T) {
	mockClient := new(MockHTTPClient)
	mockClient.On("Do", mock.MatchedBy(func(req *http.Request) bool {
		return req.Header.Get("Authorization") == "Bearer test-api-key" &&
			req.Header.Get("Content-Type") == "application/json" &&
			req.URL.Path == "/v1/chat/completions"
	})).Return(httpResponse(http.StatusOK, successBody), nil)

	client, err := NewClient(validConfig())
	require.NoError(t, err)
	client.client = mockClient

	_, err = client.Complete(context.Background(), CompletionRequest{
		Messages: []Message{{Role: "user", Content: "hi"}},
	})
	require.NoError(t, err)
	mockClient.AssertExpectations(t)
}

func TestClient_Complete_RateLimited(t *testing.T) {
	mockClient := new(MockHTTPClient)
	mockClient.On("Do", mock.Anything).Return(
		httpResponse(http.StatusTooManyRequests, `{"error": {"message": "quota exhausted"}}`), nil)

	client, err := NewClient(validConfig())
	require.NoError(t, err)
	client.client = mockClient

	_, err = client.Complete(context.Background(), CompletionRequest{
		Messages: []Message{{Role: "user", Content: "hi"}},
	})

	var rateErr *RateLimitedError
	require.ErrorAs(t, err, &rateErr)
	assert.Equal(t, "primary", rateErr.Provider)
	assert.Contains(t, rateErr.Message, "quota exhausted")
	assert.True(t, IsProviderFault(err))
}

func TestClient_Complete_UpstreamError(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"server error", http.StatusInternalServerError, `{"error": {"message": "internal"}}`},
		{"bad gateway", http.StatusBadGateway, "gateway error"},
		{"bad request", http.StatusBadRequest, `{"error": {"message": "invalid model"}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockClient := new(MockHTTPClient)
			mockClient.On("Do", mock.Anything).Return(httpResponse(tt.status, tt.body), nil)

			client, err := NewClient(validConfig())
			require.NoError(t, err)
			client.client = mockClient

			_, err = client.Complete(context.Background(), CompletionRequest{
				Messages: []Message{{Role: "user", Content: "hi"}},
			})

			var upErr *UpstreamError
			require.ErrorAs(t, err, &upErr)
			assert.Equal(t, tt.status, upErr.StatusCode)
			assert.True(t, IsProviderFault(err))
		})
	}
}

func TestClient_Complete_TransportError(t *testing.T) {
	mockClient := new(MockHTTPClient)
	mockClient.On("Do", mock.Anything).Return(nil, errors.New("connection refused"))

	client, err := NewClient(validConfig())
	require.NoError(t, err)
	client.client = mockClient

	_, err = client.Complete(context.Background(), CompletionRequest{
		Messages: []Message{{Role: "user", Content: "hi"}},
	})

	var upErr *UpstreamError
	require.ErrorAs(t, err, &upErr)
	assert.Contains(t, upErr.Message, "connection refused")
}

func TestClient_Complete_NoChoices(t *testing.T) {
	mockClient := new(MockHTTPClient)
	mockClient.On("Do", mock.Anything).Return(
		httpResponse(http.StatusOK, `{"model": "m", "choices": [], "usage": {"total_tokens": 0}}`), nil)

	client, err := NewClient(validConfig())
	require.NoError(t, err)
	client.client = mockClient

	_, err = client.Complete(context.Background(), CompletionRequest{
		Messages: []Message{{Role: "user", Content: "hi"}},
	})

	var upErr *UpstreamError
	require.ErrorAs(t, err, &upErr)
	assert.Contains(t, upErr.Message, "no choices")
}

func TestClient_Complete_ModelOverride(t *testing.T) {
	var captured chatRequest
	mockClient := new(MockHTTPClient)
	mockClient.On("Do", mock.MatchedBy(func(req *http.Request) bool {
		body, _ := io.ReadAll(req.Body)
		req.Body = io.NopCloser(bytes.NewBuffer(body))
		_ = json.Unmarshal(body, &captured)
		return true
	})).Return(httpResponse(http.StatusOK, successBody), nil)

	client, err := NewClient(validConfig())
	require.NoError(t, err)
	client.client = mockClient

	_, err = client.Complete(context.Background(), CompletionRequest{
		Messages: []Message{{Role: "user", Content: "hi"}},
		Model:    "other-model",
	})
	require.NoError(t, err)
	assert.Equal(t, "other-model", captured.Model)
}

// =============================================================================
// Error Taxonomy Tests
// =============================================================================

func TestIsProviderFault(t *testing.T) {
	assert.True(t, IsProviderFault(&RateLimitedError{Provider: "p"}))
	assert.True(t, IsProviderFault(&UpstreamError{Provider: "p", StatusCode: 500}))
	assert.False(t, IsProviderFault(&ConfigurationError{Provider: "p"}))
	assert.False(t, IsProviderFault(errors.New("plain error")))
	assert.False(t, IsProviderFault(nil))
}
