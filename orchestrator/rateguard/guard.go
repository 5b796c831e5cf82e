// Copyright 2025 Mainsail
// SPDX-License-Identifier: Apache-2.0

// Package rateguard enforces per-model hourly call quotas shared across
// all process instances through a Redis counter store. Callers are held
// (active wait) rather than rejected when a quota is exhausted, and the
// guard fails open when the counter store is unreachable.
package rateguard

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"mainsail/platform/shared/logger"
)

const (
	// ActionUse marks an audit row for a permitted call.
	ActionUse = "USE"
	// ActionBlock marks an audit row for a call held at the quota.
	ActionBlock = "BLOCK"

	window = time.Hour

	// safetyMargin is added to the bucket TTL before re-checking, so the
	// counter has actually expired when the guard wakes up.
	safetyMargin = 2 * time.Second

	// fallbackDelay is used when the bucket TTL cannot be read.
	fallbackDelay = 5 * time.Second
)

var usageGauge = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "mainsail_rateguard_usage",
		Help: "Current-hour completion calls per model.",
	},
	[]string{"model"},
)

func init() {
	prometheus.MustRegister(usageGauge)
}

// Counters is the shared counter store, implemented by the Redis
// connector.
type Counters interface {
	IncrWithExpiry(ctx context.Context, key string, ttl time.Duration) (int64, error)
	Get(ctx context.Context, key string) (int64, error)
	TTL(ctx context.Context, key string) (time.Duration, error)
}

// Auditor persists quota events. Implemented by the swarm store.
type Auditor interface {
	LogRateEvent(ctx context.Context, model, action string, resetAt time.Time) error
}

// ModelUsage is one model's current-hour consumption.
type ModelUsage struct {
	Used  int64 `json:"used"`
	Limit int   `json:"limit"`
}

// Config holds the per-model limits and the default applied to models
// without an explicit entry.
type Config struct {
	Limits       map[string]int
	DefaultLimit int
}

// Guard is the quota enforcer.
type Guard struct {
	counters     Counters
	audit        Auditor
	limits       map[string]int
	defaultLimit int
	log          *logger.Logger

	// test hooks
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates a guard over the given counter store and audit sink.
func New(counters Counters, audit Auditor, cfg Config) *Guard {
	limits := cfg.Limits
	if limits == nil {
		limits = map[string]int{}
	}
	return &Guard{
		counters:     counters,
		audit:        audit,
		limits:       limits,
		defaultLimit: cfg.DefaultLimit,
		log:          logger.New("rateguard"),
		now:          time.Now,
		sleep:        sleepContext,
	}
}

// Acquire blocks until a quota slot for model is available, then
// consumes it. The wait is bounded only by the hour bucket expiring or
// the context being cancelled; context cancellation is the only error.
// Counter-store failures are logged and the call is permitted.
func (g *Guard) Acquire(ctx context.Context, model string) error {
	limit := g.limitFor(model)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		key := g.quotaKey(model)
		count, err := g.counters.Get(ctx, key)
		if err != nil {
			g.log.WarnErr("", "quota check failed, failing open", err, map[string]interface{}{
				"model": model,
			})
			return nil
		}

		if count < int64(limit) {
			newCount, err := g.counters.IncrWithExpiry(ctx, key, window)
			if err != nil {
				g.log.WarnErr("", "quota increment failed, failing open", err, map[string]interface{}{
					"model": model,
				})
				return nil
			}
			if newCount <= int64(limit) {
				usageGauge.WithLabelValues(model).Set(float64(newCount))
				g.auditAsync(model, ActionUse, time.Time{})
				return nil
			}
			// Another caller incremented between the read and our
			// increment. The slot is oversubscribed: the atomic
			// post-increment count is authoritative, so this caller must
			// not dispatch. Fall through to the blocked path and re-check
			// once the bucket expires.
			count = newCount
		}

		wait := fallbackDelay
		ttl, err := g.counters.TTL(ctx, key)
		if err == nil && ttl > 0 {
			wait = ttl
		}
		wait += safetyMargin
		resetAt := g.now().Add(wait)

		g.log.Warn("", "quota exhausted, holding request", map[string]interface{}{
			"model":    model,
			"used":     count,
			"limit":    limit,
			"reset_at": resetAt.UTC().Format(time.RFC3339),
		})
		if g.audit != nil {
			if err := g.audit.LogRateEvent(ctx, model, ActionBlock, resetAt); err != nil {
				g.log.WarnErr("", "failed to persist BLOCK event", err, map[string]interface{}{
					"model": model,
				})
			}
		}

		if err := g.sleep(ctx, wait); err != nil {
			return err
		}
	}
}

// Metrics reports current-hour usage against the configured limit for
// every model with an explicit limit entry.
func (g *Guard) Metrics(ctx context.Context) (map[string]ModelUsage, error) {
	out := make(map[string]ModelUsage, len(g.limits))
	for model, limit := range g.limits {
		used, err := g.counters.Get(ctx, g.quotaKey(model))
		if err != nil {
			return nil, fmt.Errorf("failed to read usage for %s: %w", model, err)
		}
		usageGauge.WithLabelValues(model).Set(float64(used))
		out[model] = ModelUsage{Used: used, Limit: limit}
	}
	return out, nil
}

func (g *Guard) limitFor(model string) int {
	if limit, ok := g.limits[model]; ok {
		return limit
	}
	return g.defaultLimit
}

// quotaKey buckets counters by model and UTC hour.
func (g *Guard) quotaKey(model string) string {
	return fmt.Sprintf("quota:%s:%s", model, g.now().UTC().Format("2006-01-02-15"))
}

// auditAsync persists a quota event without holding up the caller.
func (g *Guard) auditAsync(model, action string, resetAt time.Time) {
	if g.audit == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := g.audit.LogRateEvent(ctx, model, action, resetAt); err != nil {
			g.log.WarnErr("", "failed to persist quota event", err, map[string]interface{}{
				"model":  model,
				"action": action,
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
