// Copyright 2025 Mainsail
// SPDX-License-Identifier: Apache-2.0

// Package config loads the orchestration service configuration from the
// environment. Configuration is read once at startup; no component
// re-reads it mid-run.
package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults applied when the corresponding environment variable is unset.
const (
	DefaultPrimaryURL    = "https://openrouter.ai/api"
	DefaultFallbackURL   = "https://api.groq.com/openai"
	DefaultPrimaryModel  = "anthropic/claude-3.5-sonnet"
	DefaultFallbackModel = "llama-3.3-70b-versatile"
	DefaultTemperature   = 0.7
	DefaultMaxTokens     = 4096
	DefaultLLMTimeout    = 120 * time.Second

	DefaultEmbeddingURL   = "http://localhost:11434"
	DefaultEmbeddingModel = "nomic-embed-text"
	DefaultEmbeddingDim   = 768

	DefaultQdrantURL        = "http://localhost:6333"
	DefaultCollectionPrefix = "mainsail_"

	DefaultRedisURL = "redis://localhost:6379"

	DefaultHourlyLimit = 50

	DefaultAdminAddr = ":8086"
)

// Endpoint describes one chat-completion backend. Primary and fallback
// backends share the same contract and differ only in these values.
type Endpoint struct {
	Name        string
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
}

// Config is the full environment-driven configuration for the service.
type Config struct {
	Primary  Endpoint
	Fallback Endpoint

	EmbeddingURL   string
	EmbeddingModel string
	EmbeddingDim   int

	QdrantURL        string
	CollectionPrefix string

	RedisURL    string
	DatabaseURL string

	// RateLimits maps a model identifier to its hourly call quota.
	// Models absent from the map take DefaultLimit.
	RateLimits   map[string]int
	DefaultLimit int

	AdminAddr string
}

// Load reads configuration from environment variables, applying defaults
// and logging warnings for values it cannot parse.
//
// Environment variables:
//
//	PRIMARY_LLM_URL, PRIMARY_LLM_API_KEY, PRIMARY_LLM_MODEL, PRIMARY_LLM_TEMPERATURE
//	FALLBACK_LLM_URL, FALLBACK_LLM_API_KEY, FALLBACK_LLM_MODEL, FALLBACK_LLM_TEMPERATURE
//	LLM_MAX_TOKENS, LLM_TIMEOUT_SECONDS
//	EMBEDDING_ENDPOINT, EMBEDDING_MODEL, EMBEDDING_DIM
//	QDRANT_URL, COLLECTION_PREFIX
//	REDIS_URL, DATABASE_URL
//	MODEL_RATE_LIMITS ("model:limit,model:limit"), DEFAULT_RATE_LIMIT, RATE_LIMITS_FILE
//	ADMIN_ADDR
func Load() Config {
	maxTokens := intFromEnv("LLM_MAX_TOKENS", DefaultMaxTokens)
	timeout := time.Duration(intFromEnv("LLM_TIMEOUT_SECONDS", int(DefaultLLMTimeout/time.Second))) * time.Second

	cfg := Config{
		Primary: Endpoint{
			Name:        "primary",
			BaseURL:     envOrDefault("PRIMARY_LLM_URL", DefaultPrimaryURL),
			APIKey:      os.Getenv("PRIMARY_LLM_API_KEY"),
			Model:       envOrDefault("PRIMARY_LLM_MODEL", DefaultPrimaryModel),
			Temperature: floatFromEnv("PRIMARY_LLM_TEMPERATURE", DefaultTemperature),
			MaxTokens:   maxTokens,
			Timeout:     timeout,
		},
		Fallback: Endpoint{
			Name:        "fallback",
			BaseURL:     envOrDefault("FALLBACK_LLM_URL", DefaultFallbackURL),
			APIKey:      os.Getenv("FALLBACK_LLM_API_KEY"),
			Model:       envOrDefault("FALLBACK_LLM_MODEL", DefaultFallbackModel),
			Temperature: floatFromEnv("FALLBACK_LLM_TEMPERATURE", DefaultTemperature),
			MaxTokens:   maxTokens,
			Timeout:     timeout,
		},
		EmbeddingURL:     envOrDefault("EMBEDDING_ENDPOINT", DefaultEmbeddingURL),
		EmbeddingModel:   envOrDefault("EMBEDDING_MODEL", DefaultEmbeddingModel),
		EmbeddingDim:     intFromEnv("EMBEDDING_DIM", DefaultEmbeddingDim),
		QdrantURL:        envOrDefault("QDRANT_URL", DefaultQdrantURL),
		CollectionPrefix: envOrDefault("COLLECTION_PREFIX", DefaultCollectionPrefix),
		RedisURL:         envOrDefault("REDIS_URL", DefaultRedisURL),
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		RateLimits:       make(map[string]int),
		DefaultLimit:     intFromEnv("DEFAULT_RATE_LIMIT", DefaultHourlyLimit),
		AdminAddr:        envOrDefault("ADMIN_ADDR", DefaultAdminAddr),
	}

	// File-based limits load first so the env variable can override
	// individual models.
	if path := os.Getenv("RATE_LIMITS_FILE"); path != "" {
		limits, err := LoadRateLimitsFile(path)
		if err != nil {
			log.Printf("[Config] WARNING: Failed to load RATE_LIMITS_FILE %q: %v", path, err)
		} else {
			for model, limit := range limits {
				cfg.RateLimits[model] = limit
			}
		}
	}

	if limitsStr := os.Getenv("MODEL_RATE_LIMITS"); limitsStr != "" {
		limits, err := ParseModelRateLimits(limitsStr)
		if err != nil {
			log.Printf("[Config] WARNING: Failed to parse MODEL_RATE_LIMITS %q: %v", limitsStr, err)
		} else {
			for model, limit := range limits {
				cfg.RateLimits[model] = limit
			}
		}
	}

	return cfg
}

// ParseModelRateLimits parses a limits string into a map.
// Format: "model1:limit1,model2:limit2" (e.g. "gpt-4o:100,claude-3-5-sonnet:40").
func ParseModelRateLimits(limitsStr string) (map[string]int, error) {
	limits := make(map[string]int)

	for _, part := range strings.Split(limitsStr, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		idx := strings.LastIndex(part, ":")
		if idx <= 0 || idx == len(part)-1 {
			return nil, fmt.Errorf("invalid limit format %q, expected 'model:limit'", part)
		}

		model := strings.TrimSpace(part[:idx])
		limitStr := strings.TrimSpace(part[idx+1:])

		limit, err := strconv.Atoi(limitStr)
		if err != nil {
			return nil, fmt.Errorf("invalid limit value %q for model %q: %w", limitStr, model, err)
		}
		if limit < 0 {
			return nil, fmt.Errorf("negative limit %d for model %q", limit, model)
		}

		limits[model] = limit
	}

	return limits, nil
}

// rateLimitsFile is the YAML shape of RATE_LIMITS_FILE:
//
//	limits:
//	  gpt-4o-mini: 120
//	  claude-3-5-sonnet: 40
type rateLimitsFile struct {
	Limits map[string]int `yaml:"limits"`
}

// LoadRateLimitsFile reads per-model hourly limits from a YAML file.
func LoadRateLimitsFile(path string) (map[string]int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read limits file: %w", err)
	}

	var file rateLimitsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse limits file: %w", err)
	}

	for model, limit := range file.Limits {
		if limit < 0 {
			return nil, fmt.Errorf("negative limit %d for model %q", limit, model)
		}
	}

	return file.Limits, nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func intFromEnv(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("[Config] WARNING: Invalid %s %q, using default %d", key, v, fallback)
		return fallback
	}
	return parsed
}

func floatFromEnv(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(v, 64)
	if err != nil {
		log.Printf("[Config] WARNING: Invalid %s %q, using default %g", key, v, fallback)
		return fallback
	}
	return parsed
}
