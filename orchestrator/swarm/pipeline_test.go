// Copyright 2025 Mainsail
// SPDX-License-Identifier: Apache-2.0

package swarm

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mainsail/platform/orchestrator/llm"
)

// fakeCompleter is a sequenced llm.Completer for full-pipeline tests.
type fakeCompleter struct {
	name     string
	model    string
	texts    []string
	err      error
	calls    int
	requests []llm.CompletionRequest
}

func (f *fakeCompleter) Complete(_ context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	f.requests = append(f.requests, req)
	idx := f.calls
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if idx >= len(f.texts) {
		idx = len(f.texts) - 1
	}
	return &llm.CompletionResponse{Text: f.texts[idx], Model: f.model, TokensUsed: 10}, nil
}

func (f *fakeCompleter) Name() string  { return f.name }
func (f *fakeCompleter) Model() string { return f.model }

// openGuard admits every call.
type openGuard struct{}

func (openGuard) Acquire(_ context.Context, _ string) error { return nil }

func userContent(req llm.CompletionRequest) string {
	for _, m := range req.Messages {
		if m.Role == "user" {
			return m.Content
		}
	}
	return ""
}

// Full pipeline: architect passes, data and ui run in order, each
// stage's prompt carries the prior outputs, and the swarm lands on
// SUCCESS with all three outputs populated.
func TestPipeline_SuccessfulRun(t *testing.T) {
	primary := &fakeCompleter{
		name:  "primary",
		model: "primary-model",
		texts: []string{
			`{"vote": "PASS", "components": ["auth-service"]}`,
			`{"vote": "PASS", "entities": ["user", "session"]}`,
			`{"vote": "PASS", "screens": ["login"]}`,
		},
	}
	fallback := &fakeCompleter{name: "fallback", model: "fallback-model", texts: []string{"{}"}}
	labeler := &fakeCompleter{name: "labeler", model: "labeler-model", texts: []string{"ARCHITECTURE"}}

	router := llm.NewRouter(llm.NewClassifier(labeler), openGuard{}, primary, fallback)
	executor := NewExecutor(router, &stubMemory{}, &recordingCheckpoints{})
	executor.sleep = func(_ context.Context, _ time.Duration) error { return nil }

	store := &coordinatorStoreStub{}
	coordinator := NewCoordinator(executor, llm.NewClassifier(labeler), store)

	result, err := coordinator.Run(context.Background(), "design a login API", RunOptions{})

	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, result.Status)
	require.Len(t, result.Outputs, 3)
	assert.Equal(t, []interface{}{"auth-service"}, result.Outputs[RoleArchitect]["components"])
	assert.Equal(t, "primary-model", result.Outputs[RoleData]["model_used"])
	assert.Equal(t, llm.EnginePrimary, result.Outputs[RoleUI]["engine"])
	assert.Equal(t, 0, fallback.calls)

	// Stage prompts thread prior outputs forward.
	require.Len(t, primary.requests, 3)
	assert.Contains(t, userContent(primary.requests[1]), `"components":["auth-service"]`)
	assert.Contains(t, userContent(primary.requests[2]), `"components":["auth-service"]`)
	assert.Contains(t, userContent(primary.requests[2]), `"entities":["user","session"]`)

	require.Len(t, store.completions, 1)
	assert.Equal(t, StatusSuccess, store.completions[0].status)
}

// Sustained quota exhaustion: the primary rate-limits every attempt and
// the fallback keeps failing too. Retries exhaust, and the resulting
// error names the role and wraps the fallback's last error.
func TestPipeline_RateLimitStormExhaustsRetries(t *testing.T) {
	primary := &fakeCompleter{
		name:  "primary",
		model: "primary-model",
		err:   &llm.RateLimitedError{Provider: "primary", Message: "quota exhausted"},
	}
	fallback := &fakeCompleter{
		name:  "fallback",
		model: "fallback-model",
		err:   &llm.UpstreamError{Provider: "fallback", StatusCode: 503, Message: "overloaded"},
	}
	labeler := &fakeCompleter{name: "labeler", model: "labeler-model", texts: []string{"DATA"}}

	router := llm.NewRouter(llm.NewClassifier(labeler), openGuard{}, primary, fallback)
	checkpoints := &recordingCheckpoints{}
	executor := NewExecutor(router, &stubMemory{}, checkpoints)
	executor.sleep = func(_ context.Context, _ time.Duration) error { return nil }

	_, err := executor.RunWithRetry(context.Background(), RoleArchitect, "design a login API", "swarm-1")

	var exhausted *RetriesExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, RoleArchitect, exhausted.Role)

	var upstream *llm.UpstreamError
	require.ErrorAs(t, err, &upstream, "the fallback's error is the wrapped cause")
	assert.Equal(t, "fallback", upstream.Provider)

	// Each attempt tried primary then exactly one fallback call.
	assert.Equal(t, maxRetries, primary.calls)
	assert.Equal(t, maxRetries, fallback.calls)

	require.Len(t, checkpoints.saved, maxRetries)
	for _, cp := range checkpoints.saved {
		assert.Equal(t, CheckpointFailed, cp.Status)
	}
}
