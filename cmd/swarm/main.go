// Copyright 2025 Mainsail
// SPDX-License-Identifier: Apache-2.0

// Package main is the entry point for the Mainsail swarm runner.
//
// The runner executes one three-stage expert pipeline (architect →
// data → ui) for the task description given on the command line,
// wiring together the model tier, quota guard, vector memory, and
// relational persistence. An admin listener exposes /health and
// /metrics while the run is in flight.
//
// Usage:
//
//	./swarm "design a login API"
//
// Environment Variables:
//
//	PRIMARY_LLM_URL / PRIMARY_LLM_API_KEY / PRIMARY_LLM_MODEL
//	FALLBACK_LLM_URL / FALLBACK_LLM_API_KEY / FALLBACK_LLM_MODEL
//	DATABASE_URL - PostgreSQL connection string
//	REDIS_URL - Redis connection string (quota counters)
//	QDRANT_URL - vector database URL
//	EMBEDDING_ENDPOINT - local embedding service URL
//	ADMIN_ADDR - admin listener address (default :8086)
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"mainsail/platform/connectors/postgres"
	"mainsail/platform/connectors/qdrant"
	"mainsail/platform/connectors/redis"
	"mainsail/platform/orchestrator/llm"
	"mainsail/platform/orchestrator/rateguard"
	"mainsail/platform/orchestrator/swarm"
	"mainsail/platform/shared/config"
	"mainsail/platform/shared/logger"
)

// memoryCollections are provisioned at startup: the shared history,
// the error/solution pairs, and one memory collection per expert role.
var memoryCollections = []string{
	"swarm_history",
	"error_solutions",
	swarm.RoleArchitect + "_memory",
	swarm.RoleData + "_memory",
	swarm.RoleUI + "_memory",
}

func main() {
	if len(os.Args) < 2 || os.Args[1] == "" {
		fmt.Fprintln(os.Stderr, "usage: swarm \"<task description>\"")
		os.Exit(2)
	}
	task := os.Args[1]

	log := logger.New("swarm-runner")
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, task, log); err != nil {
		log.ErrorErr("", "swarm run failed", err, nil)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, task string, log *logger.Logger) error {
	// Persistence.
	db, err := postgres.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	defer db.Close()

	store := swarm.NewStore(db)
	if err := store.CreateTables(ctx); err != nil {
		return fmt.Errorf("schema: %w", err)
	}

	// Quota counters.
	counters, err := redis.Open(ctx, cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("redis: %w", err)
	}
	defer counters.Close()

	// Vector memory.
	embedder := qdrant.NewEmbedder(cfg.EmbeddingURL, cfg.EmbeddingModel)
	memory := qdrant.NewStore(qdrant.StoreConfig{
		BaseURL:          cfg.QdrantURL,
		CollectionPrefix: cfg.CollectionPrefix,
		Embedder:         embedder,
	})
	for _, collection := range memoryCollections {
		if err := memory.EnsureCollection(ctx, collection, cfg.EmbeddingDim); err != nil {
			// Memory is best-effort downstream; startup only warns.
			log.WarnErr("", "failed to provision memory collection", err, map[string]interface{}{
				"collection": collection,
			})
		}
	}

	// Model tier.
	primary, err := llm.NewClient(clientConfig(cfg.Primary))
	if err != nil {
		return fmt.Errorf("primary client: %w", err)
	}
	fallback, err := llm.NewClient(clientConfig(cfg.Fallback))
	if err != nil {
		return fmt.Errorf("fallback client: %w", err)
	}

	classifier := llm.NewClassifier(primary)
	guard := rateguard.New(counters, store, rateguard.Config{
		Limits:       cfg.RateLimits,
		DefaultLimit: cfg.DefaultLimit,
	})
	router := llm.NewRouter(classifier, guard, primary, fallback)

	executor := swarm.NewExecutor(router, memory, store)
	coordinator := swarm.NewCoordinator(executor, classifier, store)

	// Admin surface.
	admin := startAdmin(cfg.AdminAddr, db, counters, guard, log)
	defer shutdownAdmin(admin, log)

	result, err := coordinator.Run(ctx, task, swarm.RunOptions{})
	if err != nil {
		return err
	}

	output, err := json.MarshalIndent(map[string]interface{}{
		"swarm_id": result.SwarmID,
		"status":   result.Status,
		"outputs":  result.Outputs,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to render result: %w", err)
	}
	fmt.Println(string(output))
	return nil
}

func clientConfig(ep config.Endpoint) llm.Config {
	return llm.Config{
		Name:        ep.Name,
		BaseURL:     ep.BaseURL,
		APIKey:      ep.APIKey,
		Model:       ep.Model,
		Temperature: ep.Temperature,
		MaxTokens:   ep.MaxTokens,
		Timeout:     ep.Timeout,
	}
}

// startAdmin serves /health and /metrics for the duration of the run.
func startAdmin(addr string, db interface {
	PingContext(ctx context.Context) error
}, counters *redis.Client, guard *rateguard.Guard, log *logger.Logger) *http.Server {
	r := mux.NewRouter()
	r.Handle("/metrics", promhttp.Handler())
	r.HandleFunc("/health", func(w http.ResponseWriter, req *http.Request) {
		ctx, cancel := context.WithTimeout(req.Context(), 5*time.Second)
		defer cancel()

		health := map[string]interface{}{"status": "healthy"}
		if err := db.PingContext(ctx); err != nil {
			health["status"] = "degraded"
			health["postgres"] = err.Error()
		}
		if _, err := counters.HealthCheck(ctx); err != nil {
			health["status"] = "degraded"
			health["redis"] = err.Error()
		}
		if usage, err := guard.Metrics(ctx); err == nil {
			health["rate_limits"] = usage
		}

		w.Header().Set("Content-Type", "application/json")
		if health["status"] != "healthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(health)
	}).Methods(http.MethodGet)

	server := &http.Server{Addr: addr, Handler: r}
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WarnErr("", "admin listener stopped", err, nil)
		}
	}()
	log.Info("", "admin listener started", map[string]interface{}{"addr": addr})
	return server
}

func shutdownAdmin(server *http.Server, log *logger.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.WarnErr("", "admin shutdown failed", err, nil)
	}
}
