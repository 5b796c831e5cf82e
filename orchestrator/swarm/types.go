// Copyright 2025 Mainsail
// SPDX-License-Identifier: Apache-2.0

// Package swarm implements the three-stage expert pipeline: a
// coordinator runs architect, data, and ui experts in sequence for one
// task, threading each stage's structured output into the next stage's
// prompt and persisting every state transition.
package swarm

import (
	"encoding/json"
	"time"
)

// SwarmStatus is the lifecycle state of one orchestration run.
// A swarm transitions RUNNING → SUCCESS or RUNNING → BLOCKED exactly
// once and is never mutated afterwards.
type SwarmStatus string

const (
	StatusRunning SwarmStatus = "RUNNING"
	StatusSuccess SwarmStatus = "SUCCESS"
	StatusBlocked SwarmStatus = "BLOCKED"
)

// Expert roles, in pipeline order.
const (
	RoleArchitect = "architect"
	RoleData      = "data"
	RoleUI        = "ui"
)

// Stages lists the pipeline roles in execution order.
var Stages = []string{RoleArchitect, RoleData, RoleUI}

// Swarm is one orchestration run. Retained for audit; never deleted.
type Swarm struct {
	ID          string
	Name        string
	Status      SwarmStatus
	Task        string
	Metadata    map[string]interface{}
	CreatedAt   time.Time
	UpdatedAt   time.Time
	CompletedAt *time.Time
}

// CheckpointStatus marks one execution attempt of one role.
type CheckpointStatus string

const (
	CheckpointSuccess CheckpointStatus = "SUCCESS"
	CheckpointFailed  CheckpointStatus = "FAILED"
)

// TaskCheckpoint is one attempt of one expert role within a swarm.
// Checkpoints form an append-only log: one row per attempt, retry
// counts strictly increasing per (swarm, role).
type TaskCheckpoint struct {
	ID          int64
	SwarmID     string
	Role        string
	Status      CheckpointStatus
	Response    json.RawMessage
	RetryCount  int
	CompletedAt time.Time
}

// RateLimitLogEntry is one quota audit event, append-only.
type RateLimitLogEntry struct {
	ID        int64
	Model     string
	Action    string
	ResetAt   *time.Time
	CreatedAt time.Time
}
