// Copyright 2025 Mainsail
// SPDX-License-Identifier: Apache-2.0

package swarm

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"mainsail/platform/shared/logger"
)

// Store is the relational persistence layer for swarms, checkpoints,
// and the rate-limit audit log.
type Store struct {
	db  *sql.DB
	log *logger.Logger
}

// NewStore wraps an existing connection pool. The pool's lifecycle is
// owned by the caller.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db, log: logger.New("swarm-store")}
}

// CreateTables provisions the schema if it does not exist.
func (s *Store) CreateTables(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS swarms (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			status TEXT NOT NULL,
			task TEXT NOT NULL,
			metadata JSONB NOT NULL DEFAULT '{}',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			completed_at TIMESTAMPTZ
		)`,
		`CREATE TABLE IF NOT EXISTS swarm_tasks (
			id BIGSERIAL PRIMARY KEY,
			swarm_id TEXT NOT NULL,
			role TEXT NOT NULL,
			status TEXT NOT NULL,
			response JSONB,
			retry_count INT NOT NULL DEFAULT 0,
			completed_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_swarm_tasks_swarm_id ON swarm_tasks (swarm_id)`,
		`CREATE TABLE IF NOT EXISTS swarm_history (
			id BIGSERIAL PRIMARY KEY,
			swarm_id TEXT NOT NULL,
			event TEXT NOT NULL,
			detail TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS rate_limit_log (
			id BIGSERIAL PRIMARY KEY,
			model TEXT NOT NULL,
			action TEXT NOT NULL,
			reset_at TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}
	return nil
}

// CreateSwarm persists a new run in the RUNNING state.
func (s *Store) CreateSwarm(ctx context.Context, sw *Swarm) error {
	metadata, err := json.Marshal(sw.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO swarms (id, name, status, task, metadata) VALUES ($1, $2, $3, $4, $5)`,
		sw.ID, sw.Name, sw.Status, sw.Task, metadata)
	if err != nil {
		return fmt.Errorf("failed to insert swarm %s: %w", sw.ID, err)
	}
	return nil
}

// CompleteSwarm transitions a swarm out of RUNNING exactly once. The
// status guard in the WHERE clause makes a second completion attempt
// return ErrSwarmNotRunning instead of overwriting the terminal state.
// A non-empty event is appended to the swarm's history.
func (s *Store) CompleteSwarm(ctx context.Context, id string, status SwarmStatus, event, detail string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE swarms SET status = $2, updated_at = NOW(), completed_at = NOW()
		 WHERE id = $1 AND status = 'RUNNING'`,
		id, status)
	if err != nil {
		return fmt.Errorf("failed to complete swarm %s: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		return ErrSwarmNotRunning
	}

	if event != "" {
		if _, err := s.db.ExecContext(ctx,
			`INSERT INTO swarm_history (swarm_id, event, detail) VALUES ($1, $2, $3)`,
			id, event, detail); err != nil {
			return fmt.Errorf("failed to append history event for swarm %s: %w", id, err)
		}
	}
	return nil
}

// SaveCheckpoint appends one attempt record to the task log.
func (s *Store) SaveCheckpoint(ctx context.Context, cp TaskCheckpoint) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO swarm_tasks (swarm_id, role, status, response, retry_count)
		 VALUES ($1, $2, $3, $4, $5)`,
		cp.SwarmID, cp.Role, cp.Status, []byte(cp.Response), cp.RetryCount)
	if err != nil {
		return fmt.Errorf("failed to save checkpoint for swarm %s role %s: %w", cp.SwarmID, cp.Role, err)
	}
	return nil
}

// LogRateEvent appends one quota audit row. A zero resetAt is stored as
// NULL. Satisfies the rateguard Auditor interface.
func (s *Store) LogRateEvent(ctx context.Context, model, action string, resetAt time.Time) error {
	var reset interface{}
	if !resetAt.IsZero() {
		reset = resetAt.UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO rate_limit_log (model, action, reset_at) VALUES ($1, $2, $3)`,
		model, action, reset)
	if err != nil {
		return fmt.Errorf("failed to log rate event for %s: %w", model, err)
	}
	return nil
}

// GetSwarm loads one swarm by id.
func (s *Store) GetSwarm(ctx context.Context, id string) (*Swarm, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, status, task, metadata, created_at, updated_at, completed_at
		 FROM swarms WHERE id = $1`, id)

	var sw Swarm
	var metadata []byte
	var completedAt sql.NullTime
	if err := row.Scan(&sw.ID, &sw.Name, &sw.Status, &sw.Task, &metadata,
		&sw.CreatedAt, &sw.UpdatedAt, &completedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("swarm %s not found", id)
		}
		return nil, fmt.Errorf("failed to load swarm %s: %w", id, err)
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &sw.Metadata); err != nil {
			return nil, fmt.Errorf("failed to parse metadata for swarm %s: %w", id, err)
		}
	}
	if completedAt.Valid {
		sw.CompletedAt = &completedAt.Time
	}
	return &sw, nil
}

// ListCheckpoints returns a swarm's attempt log in write order.
func (s *Store) ListCheckpoints(ctx context.Context, swarmID string) ([]TaskCheckpoint, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, swarm_id, role, status, response, retry_count, completed_at
		 FROM swarm_tasks WHERE swarm_id = $1 ORDER BY id`, swarmID)
	if err != nil {
		return nil, fmt.Errorf("failed to list checkpoints for swarm %s: %w", swarmID, err)
	}
	defer rows.Close()

	var checkpoints []TaskCheckpoint
	for rows.Next() {
		var cp TaskCheckpoint
		var response []byte
		if err := rows.Scan(&cp.ID, &cp.SwarmID, &cp.Role, &cp.Status, &response,
			&cp.RetryCount, &cp.CompletedAt); err != nil {
			return nil, fmt.Errorf("failed to scan checkpoint: %w", err)
		}
		cp.Response = json.RawMessage(response)
		checkpoints = append(checkpoints, cp)
	}
	return checkpoints, rows.Err()
}
