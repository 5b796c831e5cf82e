// Copyright 2025 Mainsail
// SPDX-License-Identifier: Apache-2.0

// Package postgres owns the database connection pool shared by the
// persistence layer.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver

	"mainsail/platform/shared/logger"
)

const (
	maxOpenConns    = 25
	maxIdleConns    = 5
	connMaxLifetime = 5 * time.Minute
)

// Open connects to PostgreSQL, tunes the pool, and verifies the
// connection with a ping. The returned pool is owned by the caller.
func Open(ctx context.Context, databaseURL string) (*sql.DB, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)
	db.SetConnMaxLifetime(connMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.New("postgres").Info("", "connected to postgres", map[string]interface{}{
		"max_open_conns": maxOpenConns,
	})
	return db, nil
}

// HealthCheck pings the database and reports round-trip latency.
func HealthCheck(ctx context.Context, db *sql.DB) (time.Duration, error) {
	start := time.Now()
	if err := db.PingContext(ctx); err != nil {
		return 0, err
	}
	return time.Since(start), nil
}
