// Copyright 2025 Mainsail
// SPDX-License-Identifier: Apache-2.0

package swarm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"mainsail/platform/connectors/qdrant"
	"mainsail/platform/orchestrator/llm"
	"mainsail/platform/shared/logger"
)

const (
	maxRetries  = 3
	backoffUnit = 5 * time.Second

	historyCollection = "swarm_history"
	errorsCollection  = "error_solutions"
	memorySuffix      = "_memory"
	historyHits       = 3
	errorHits         = 2
	memoryHits        = 2
)

// Memory is the vector store surface the executor uses for RAG.
type Memory interface {
	Search(ctx context.Context, collection, queryText string, topK int) ([]qdrant.SearchHit, error)
	UpsertPoint(ctx context.Context, collection, id, text string, payload map[string]interface{}) error
}

// PromptRouter routes one prompt through the model tier.
type PromptRouter interface {
	Execute(ctx context.Context, prompt string, opts llm.RouteOptions) (*llm.RouteResult, error)
}

// CheckpointStore persists one row per execution attempt.
type CheckpointStore interface {
	SaveCheckpoint(ctx context.Context, cp TaskCheckpoint) error
}

// Executor runs one expert role: instructions + retrieved context +
// task go through the router, and the response must contain a JSON
// object.
type Executor struct {
	router PromptRouter
	memory Memory
	store  CheckpointStore
	log    *logger.Logger

	// test hook
	sleep func(ctx context.Context, d time.Duration) error
}

// NewExecutor creates an executor over the given collaborators.
func NewExecutor(router PromptRouter, memory Memory, store CheckpointStore) *Executor {
	return &Executor{
		router: router,
		memory: memory,
		store:  store,
		log:    logger.New("executor"),
		sleep:  sleepContext,
	}
}

// Run executes one attempt of one expert role and returns the parsed
// structured output, merged with the routing metadata.
func (e *Executor) Run(ctx context.Context, role, task, swarmID string) (map[string]interface{}, error) {
	instructions, err := instructionsFor(role)
	if err != nil {
		return nil, err
	}

	historical := e.retrieveContext(ctx, role, task, swarmID)
	prompt := composePrompt(task, historical)

	result, err := e.router.Execute(ctx, prompt, llm.RouteOptions{
		SystemPrompt: instructions,
		JSONResponse: true,
	})
	if err != nil {
		return nil, err
	}

	parsed, err := ExtractJSON(result.Text)
	if err != nil {
		return nil, err
	}

	parsed["model_used"] = result.Model
	parsed["engine"] = result.Engine
	return parsed, nil
}

// RunWithRetry wraps Run with exponential backoff (attempt² × 5s before
// each retry) and checkpoints every attempt. Exhausting all attempts
// yields a RetriesExhaustedError naming the role.
func (e *Executor) RunWithRetry(ctx context.Context, role, task, swarmID string) (map[string]interface{}, error) {
	var lastErr error
	for attempt := 1; attempt <= maxRetries; attempt++ {
		if attempt > 1 {
			wait := time.Duration(attempt*attempt) * backoffUnit
			e.log.Warn(swarmID, "retrying expert after backoff", map[string]interface{}{
				"role":    role,
				"attempt": attempt,
				"wait":    wait.String(),
			})
			if err := e.sleep(ctx, wait); err != nil {
				return nil, err
			}
		}

		output, err := e.Run(ctx, role, task, swarmID)
		if err == nil {
			e.checkpoint(ctx, swarmID, role, CheckpointSuccess, output, attempt)
			e.remember(swarmID, role, output)
			return output, nil
		}

		lastErr = err
		e.log.ErrorErr(swarmID, "expert attempt failed", err, map[string]interface{}{
			"role":    role,
			"attempt": attempt,
		})
		e.checkpoint(ctx, swarmID, role, CheckpointFailed, map[string]interface{}{
			"error": err.Error(),
		}, attempt)
	}

	return nil, &RetriesExhaustedError{Role: role, Attempts: maxRetries, Err: lastErr}
}

// retrieveContext gathers best-effort historical context from the
// shared history, prior error solutions, and the role's own memory.
// Every retrieval failure is swallowed with a warning: RAG context is
// never required for correctness.
func (e *Executor) retrieveContext(ctx context.Context, role, task, swarmID string) string {
	sections := []struct {
		collection string
		topK       int
	}{
		{historyCollection, historyHits},
		{errorsCollection, errorHits},
		{role + memorySuffix, memoryHits},
	}

	var blocks []string
	for _, section := range sections {
		hits, err := e.memory.Search(ctx, section.collection, task, section.topK)
		if err != nil {
			e.log.WarnErr(swarmID, "context retrieval failed, continuing without it", err, map[string]interface{}{
				"collection": section.collection,
			})
			continue
		}
		for _, hit := range hits {
			if text, ok := hit.Payload["text"].(string); ok && text != "" {
				blocks = append(blocks, text)
			}
		}
	}
	return strings.Join(blocks, "\n---\n")
}

func composePrompt(task, historical string) string {
	var b strings.Builder
	b.WriteString("Task: ")
	b.WriteString(task)
	if historical != "" {
		b.WriteString("\n\nHistorical context from previous work:\n")
		b.WriteString(historical)
	}
	b.WriteString("\n\nRespond with a single JSON object in your role's required format.")
	return b.String()
}

// checkpoint appends one attempt row; persistence failures are logged
// but never fail the attempt itself.
func (e *Executor) checkpoint(ctx context.Context, swarmID, role string, status CheckpointStatus, payload map[string]interface{}, attempt int) {
	response, err := json.Marshal(payload)
	if err != nil {
		response = []byte(fmt.Sprintf(`{"error": "unmarshalable payload: %s"}`, err))
	}
	cp := TaskCheckpoint{
		SwarmID:    swarmID,
		Role:       role,
		Status:     status,
		Response:   response,
		RetryCount: attempt,
	}
	if err := e.store.SaveCheckpoint(ctx, cp); err != nil {
		e.log.ErrorErr(swarmID, "failed to save checkpoint", err, map[string]interface{}{
			"role":   role,
			"status": string(status),
		})
	}
}

// remember upserts a successful output into the role's memory
// collection so later swarms can retrieve it. Best-effort and
// fire-and-forget: the write must never hold up the next stage.
func (e *Executor) remember(swarmID, role string, output map[string]interface{}) {
	text, err := json.Marshal(output)
	if err != nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		err := e.memory.UpsertPoint(ctx, role+memorySuffix, uuid.NewString(), string(text), map[string]interface{}{
			"swarm_id": swarmID,
			"role":     role,
		})
		if err != nil {
			e.log.WarnErr(swarmID, "failed to store output in role memory", err, map[string]interface{}{
				"role": role,
			})
		}
	}()
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
