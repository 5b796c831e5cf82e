// Copyright 2025 Mainsail
// SPDX-License-Identifier: Apache-2.0

// Package qdrant adapts the vector database REST API for agent memory.
// Every collection name is namespaced with a configurable prefix so
// multiple deployments can share one cluster.
package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"mainsail/platform/shared/logger"
)

const storeTimeout = 30 * time.Second

// SearchHit is one scored result, most similar first.
type SearchHit struct {
	ID      string
	Score   float64
	Payload map[string]interface{}
}

// StoreConfig configures a vector store adapter.
type StoreConfig struct {
	BaseURL          string
	CollectionPrefix string
	Embedder         TextEmbedder
}

// Store is the vector database adapter.
type Store struct {
	baseURL  string
	prefix   string
	embedder TextEmbedder
	client   *http.Client
	log      *logger.Logger
}

// NewStore creates a vector store adapter over the REST API at BaseURL.
func NewStore(cfg StoreConfig) *Store {
	return &Store{
		baseURL:  cfg.BaseURL,
		prefix:   cfg.CollectionPrefix,
		embedder: cfg.Embedder,
		client:   &http.Client{Timeout: storeTimeout},
		log:      logger.New("qdrant"),
	}
}

// CollectionName returns the fully namespaced collection name.
func (s *Store) CollectionName(name string) string {
	return s.prefix + name
}

type vectorParams struct {
	Size     int    `json:"size"`
	Distance string `json:"distance"`
}

type collectionInfo struct {
	Result struct {
		Config struct {
			Params struct {
				Vectors vectorParams `json:"vectors"`
			} `json:"params"`
		} `json:"config"`
	} `json:"result"`
}

// EnsureCollection idempotently provisions a cosine-similarity
// collection of the given dimensionality. An existing collection with a
// mismatched dimensionality is destroyed and recreated; there is no
// migration path for the stored vectors.
func (s *Store) EnsureCollection(ctx context.Context, name string, dim int) error {
	collection := s.CollectionName(name)

	status, raw, err := s.do(ctx, http.MethodGet, "/collections/"+collection, nil)
	if err != nil {
		return err
	}

	switch status {
	case http.StatusOK:
		var info collectionInfo
		if err := json.Unmarshal(raw, &info); err != nil {
			return fmt.Errorf("failed to parse collection info for %s: %w", collection, err)
		}
		if info.Result.Config.Params.Vectors.Size == dim {
			return nil
		}
		s.log.Warn("", "collection dimensionality mismatch, recreating", map[string]interface{}{
			"collection": collection,
			"have":       info.Result.Config.Params.Vectors.Size,
			"want":       dim,
		})
		if status, _, err = s.do(ctx, http.MethodDelete, "/collections/"+collection, nil); err != nil {
			return err
		}
		if status != http.StatusOK {
			return fmt.Errorf("failed to delete collection %s: status %d", collection, status)
		}
	case http.StatusNotFound:
		// fall through to create
	default:
		return fmt.Errorf("failed to inspect collection %s: status %d", collection, status)
	}

	body := map[string]interface{}{
		"vectors": vectorParams{Size: dim, Distance: "Cosine"},
	}
	status, raw, err = s.do(ctx, http.MethodPut, "/collections/"+collection, body)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return fmt.Errorf("failed to create collection %s: status %d: %s", collection, status, string(raw))
	}

	s.log.Info("", "collection ready", map[string]interface{}{
		"collection": collection,
		"dim":        dim,
	})
	return nil
}

type searchResponse struct {
	Result []struct {
		ID      interface{}            `json:"id"`
		Score   float64                `json:"score"`
		Payload map[string]interface{} `json:"payload"`
	} `json:"result"`
}

// Search embeds queryText and returns the topK most similar points.
// A missing collection yields an empty slice, not an error.
func (s *Store) Search(ctx context.Context, name, queryText string, topK int) ([]SearchHit, error) {
	vector, err := s.embedder.Embed(ctx, queryText)
	if err != nil {
		return nil, err
	}

	collection := s.CollectionName(name)
	body := map[string]interface{}{
		"vector":       vector,
		"limit":        topK,
		"with_payload": true,
	}
	status, raw, err := s.do(ctx, http.MethodPost, "/collections/"+collection+"/points/search", body)
	if err != nil {
		return nil, err
	}
	if status == http.StatusNotFound {
		return nil, nil
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("search on %s failed: status %d: %s", collection, status, string(raw))
	}

	var parsed searchResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse search response: %w", err)
	}

	hits := make([]SearchHit, 0, len(parsed.Result))
	for _, r := range parsed.Result {
		hits = append(hits, SearchHit{
			ID:      fmt.Sprintf("%v", r.ID),
			Score:   r.Score,
			Payload: r.Payload,
		})
	}
	return hits, nil
}

// UpsertPoint embeds text and stores the vector with payload. The
// payload is always extended with the original text and an insertion
// timestamp; an existing point with the same id is overwritten.
func (s *Store) UpsertPoint(ctx context.Context, name, id, text string, payload map[string]interface{}) error {
	vector, err := s.embedder.Embed(ctx, text)
	if err != nil {
		return err
	}

	full := make(map[string]interface{}, len(payload)+2)
	for k, v := range payload {
		full[k] = v
	}
	full["text"] = text
	full["inserted_at"] = time.Now().UTC().Format(time.RFC3339)

	collection := s.CollectionName(name)
	body := map[string]interface{}{
		"points": []map[string]interface{}{
			{"id": id, "vector": vector, "payload": full},
		},
	}
	status, raw, err := s.do(ctx, http.MethodPut, "/collections/"+collection+"/points?wait=true", body)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return fmt.Errorf("upsert into %s failed: status %d: %s", collection, status, string(raw))
	}
	return nil
}

// do performs one REST call and returns the status plus raw body.
// Transport failures map to DependencyUnavailableError.
func (s *Store) do(ctx context.Context, method, path string, body interface{}) (int, []byte, error) {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return 0, nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, reader)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, nil, &DependencyUnavailableError{
			Service: "vector store",
			Message: err.Error(),
			Err:     err,
		}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to read response: %w", err)
	}
	return resp.StatusCode, raw, nil
}
