// Copyright 2025 Mainsail
// SPDX-License-Identifier: Apache-2.0

package qdrant

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
	embeddingsPath   = "/api/embeddings"
	embeddingTimeout = 30 * time.Second
)

// TextEmbedder turns text into a vector. Implemented by Embedder in
// production and by stubs in tests.
type TextEmbedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
}

// Embedder calls a local embedding service with an Ollama-compatible
// API.
type Embedder struct {
	baseURL string
	model   string
	client  *http.Client
}

// NewEmbedder creates an embedding client for the given service URL and
// model name.
func NewEmbedder(baseURL, model string) *Embedder {
	return &Embedder{
		baseURL: baseURL,
		model:   model,
		client:  &http.Client{Timeout: embeddingTimeout},
	}
}

type embedRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type embedResponse struct {
	Embedding []float64 `json:"embedding"`
}

// Embed returns the vector for text. An unreachable service yields a
// DependencyUnavailableError.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float64, error) {
	body, err := json.Marshal(embedRequest{Model: e.model, Prompt: text})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal embedding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+embeddingsPath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, &DependencyUnavailableError{
			Service: "embedding service",
			Message: err.Error(),
			Err:     err,
		}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read embedding response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &DependencyUnavailableError{
			Service: "embedding service",
			Message: fmt.Sprintf("status %d: %s", resp.StatusCode, string(raw)),
		}
	}

	var parsed embedResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse embedding response: %w", err)
	}
	if len(parsed.Embedding) == 0 {
		return nil, fmt.Errorf("embedding response contained no vector")
	}
	return parsed.Embedding, nil
}
