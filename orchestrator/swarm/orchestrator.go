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
	"github.com/prometheus/client_golang/prometheus"

	"mainsail/platform/orchestrator/llm"
	"mainsail/platform/shared/logger"
)

// CriticalFailureEvent marks the history row written when a swarm
// blocks.
const CriticalFailureEvent = "CRITICAL_FAILURE"

var swarmsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "mainsail_swarms_total",
		Help: "Completed swarm runs by terminal status.",
	},
	[]string{"status"},
)

func init() {
	prometheus.MustRegister(swarmsTotal)
}

// StageRunner executes one expert role with retries.
type StageRunner interface {
	RunWithRetry(ctx context.Context, role, task, swarmID string) (map[string]interface{}, error)
}

// TaskClassifier labels a task for run metadata.
type TaskClassifier interface {
	Classify(ctx context.Context, taskDescription string) llm.TaskCategory
}

// CoordinatorStore is the persistence surface the coordinator needs.
type CoordinatorStore interface {
	CreateSwarm(ctx context.Context, sw *Swarm) error
	CompleteSwarm(ctx context.Context, id string, status SwarmStatus, event, detail string) error
}

// RunOptions tune one swarm run.
type RunOptions struct {
	// Name labels the run; defaults to a derived name when empty.
	Name string
}

// RunResult is the outcome of a completed swarm.
type RunResult struct {
	SwarmID string
	Status  SwarmStatus
	Outputs map[string]map[string]interface{}
}

// Coordinator drives the architect → data → ui pipeline for one task.
type Coordinator struct {
	executor   StageRunner
	classifier TaskClassifier
	store      CoordinatorStore
	log        *logger.Logger
}

// NewCoordinator creates a coordinator over the given collaborators.
func NewCoordinator(executor StageRunner, classifier TaskClassifier, store CoordinatorStore) *Coordinator {
	return &Coordinator{
		executor:   executor,
		classifier: classifier,
		store:      store,
		log:        logger.New("coordinator"),
	}
}

// Run executes the full pipeline for one task description. Stages run
// strictly sequentially; each stage's prompt embeds every prior stage's
// output as JSON. Any stage failure or design rejection blocks the
// swarm exactly once and re-raises to the caller.
func (c *Coordinator) Run(ctx context.Context, task string, opts RunOptions) (*RunResult, error) {
	id := uuid.NewString()
	name := opts.Name
	if name == "" {
		name = deriveName(task)
	}

	// Classification is metadata only; the classifier never errors.
	category := c.classifier.Classify(ctx, task)

	sw := &Swarm{
		ID:     id,
		Name:   name,
		Status: StatusRunning,
		Task:   task,
		Metadata: map[string]interface{}{
			"category": string(category),
		},
	}
	if err := c.store.CreateSwarm(ctx, sw); err != nil {
		return nil, fmt.Errorf("failed to start swarm: %w", err)
	}
	c.log.Info(id, "swarm started", map[string]interface{}{
		"name":     name,
		"category": string(category),
	})

	outputs := make(map[string]map[string]interface{}, len(Stages))
	start := time.Now()

	for _, role := range Stages {
		prompt := stagePrompt(task, outputs)

		output, err := c.executor.RunWithRetry(ctx, role, prompt, id)
		if err != nil {
			c.block(ctx, id, role, err)
			return nil, err
		}

		// Architect and data rejections gate the pipeline; the ui
		// stage's vote is informational only.
		if role != RoleUI && voteFailed(output) {
			rejection := &DesignRejectionError{Role: role, Reason: rejectionReason(output)}
			c.block(ctx, id, role, rejection)
			return nil, rejection
		}

		outputs[role] = output
		c.log.Info(id, "stage completed", map[string]interface{}{
			"role": role,
		})
	}

	if err := c.store.CompleteSwarm(ctx, id, StatusSuccess, "", ""); err != nil {
		return nil, fmt.Errorf("pipeline succeeded but completion failed: %w", err)
	}
	swarmsTotal.WithLabelValues(string(StatusSuccess)).Inc()
	c.log.InfoWithDuration(id, "swarm succeeded", float64(time.Since(start).Milliseconds()), nil)

	return &RunResult{
		SwarmID: id,
		Status:  StatusSuccess,
		Outputs: outputs,
	}, nil
}

// ResumeSwarm is a declared capability: checkpoint-based resumption
// from the task log is future work.
func (c *Coordinator) ResumeSwarm(_ context.Context, _ string) (*RunResult, error) {
	return nil, fmt.Errorf("resume swarm: %w", ErrNotImplemented)
}

// block transitions the swarm to BLOCKED with a CRITICAL_FAILURE
// history event. A persistence failure here is logged but never masks
// the stage error the caller is about to receive.
func (c *Coordinator) block(ctx context.Context, id, role string, cause error) {
	detail := fmt.Sprintf("stage %s: %v", role, cause)
	if err := c.store.CompleteSwarm(ctx, id, StatusBlocked, CriticalFailureEvent, detail); err != nil {
		c.log.ErrorErr(id, "failed to persist BLOCKED status", err, map[string]interface{}{
			"role": role,
		})
		return
	}
	swarmsTotal.WithLabelValues(string(StatusBlocked)).Inc()
	c.log.ErrorErr(id, "swarm blocked", cause, map[string]interface{}{
		"role": role,
	})
}

// stagePrompt embeds every prior stage's output as JSON context, in
// pipeline order.
func stagePrompt(task string, outputs map[string]map[string]interface{}) string {
	var b strings.Builder
	b.WriteString(task)
	for _, role := range Stages {
		output, ok := outputs[role]
		if !ok {
			continue
		}
		encoded, err := json.Marshal(output)
		if err != nil {
			continue
		}
		b.WriteString(fmt.Sprintf("\n\nOutput from the %s expert:\n%s", role, encoded))
	}
	return b.String()
}

func voteFailed(output map[string]interface{}) bool {
	vote, _ := output["vote"].(string)
	return strings.ToUpper(strings.TrimSpace(vote)) == "FAIL"
}

func rejectionReason(output map[string]interface{}) string {
	if reason, ok := output["reason"].(string); ok && reason != "" {
		return reason
	}
	return "no reason given"
}

// deriveName builds a short display name from the task text,
// truncating on a rune boundary so multi-byte text stays valid UTF-8.
func deriveName(task string) string {
	task = strings.TrimSpace(task)
	if runes := []rune(task); len(runes) > 40 {
		task = string(runes[:40])
	}
	if task == "" {
		task = "unnamed"
	}
	return "swarm: " + task
}
