// Copyright 2025 Mainsail
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	// Make sure no stray environment leaks into defaults.
	vars := []string{
		"PRIMARY_LLM_URL", "PRIMARY_LLM_API_KEY", "PRIMARY_LLM_MODEL", "PRIMARY_LLM_TEMPERATURE",
		"FALLBACK_LLM_URL", "FALLBACK_LLM_API_KEY", "FALLBACK_LLM_MODEL", "FALLBACK_LLM_TEMPERATURE",
		"LLM_MAX_TOKENS", "LLM_TIMEOUT_SECONDS",
		"EMBEDDING_ENDPOINT", "EMBEDDING_MODEL", "EMBEDDING_DIM",
		"QDRANT_URL", "COLLECTION_PREFIX", "REDIS_URL", "DATABASE_URL",
		"MODEL_RATE_LIMITS", "DEFAULT_RATE_LIMIT", "RATE_LIMITS_FILE", "ADMIN_ADDR",
	}
	for _, v := range vars {
		t.Setenv(v, "")
		os.Unsetenv(v)
	}

	cfg := Load()

	if cfg.Primary.BaseURL != DefaultPrimaryURL {
		t.Errorf("Primary.BaseURL = %q, want %q", cfg.Primary.BaseURL, DefaultPrimaryURL)
	}
	if cfg.Primary.Name != "primary" {
		t.Errorf("Primary.Name = %q", cfg.Primary.Name)
	}
	if cfg.Fallback.Name != "fallback" {
		t.Errorf("Fallback.Name = %q", cfg.Fallback.Name)
	}
	if cfg.Primary.Temperature != DefaultTemperature {
		t.Errorf("Primary.Temperature = %g, want %g", cfg.Primary.Temperature, DefaultTemperature)
	}
	if cfg.Primary.Timeout != 120*time.Second {
		t.Errorf("Primary.Timeout = %v, want 120s", cfg.Primary.Timeout)
	}
	if cfg.EmbeddingDim != DefaultEmbeddingDim {
		t.Errorf("EmbeddingDim = %d, want %d", cfg.EmbeddingDim, DefaultEmbeddingDim)
	}
	if cfg.CollectionPrefix != DefaultCollectionPrefix {
		t.Errorf("CollectionPrefix = %q", cfg.CollectionPrefix)
	}
	if cfg.DefaultLimit != DefaultHourlyLimit {
		t.Errorf("DefaultLimit = %d, want %d", cfg.DefaultLimit, DefaultHourlyLimit)
	}
	if len(cfg.RateLimits) != 0 {
		t.Errorf("expected empty RateLimits, got %v", cfg.RateLimits)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("PRIMARY_LLM_URL", "https://llm.internal")
	t.Setenv("PRIMARY_LLM_API_KEY", "sk-test")
	t.Setenv("PRIMARY_LLM_TEMPERATURE", "0.2")
	t.Setenv("LLM_TIMEOUT_SECONDS", "30")
	t.Setenv("MODEL_RATE_LIMITS", "gpt-4o:100,claude-3-5-sonnet:40")
	t.Setenv("DEFAULT_RATE_LIMIT", "25")

	cfg := Load()

	if cfg.Primary.BaseURL != "https://llm.internal" {
		t.Errorf("Primary.BaseURL = %q", cfg.Primary.BaseURL)
	}
	if cfg.Primary.APIKey != "sk-test" {
		t.Errorf("Primary.APIKey = %q", cfg.Primary.APIKey)
	}
	if cfg.Primary.Temperature != 0.2 {
		t.Errorf("Primary.Temperature = %g, want 0.2", cfg.Primary.Temperature)
	}
	if cfg.Primary.Timeout != 30*time.Second {
		t.Errorf("Primary.Timeout = %v, want 30s", cfg.Primary.Timeout)
	}
	if cfg.RateLimits["gpt-4o"] != 100 {
		t.Errorf("RateLimits[gpt-4o] = %d, want 100", cfg.RateLimits["gpt-4o"])
	}
	if cfg.RateLimits["claude-3-5-sonnet"] != 40 {
		t.Errorf("RateLimits[claude-3-5-sonnet] = %d, want 40", cfg.RateLimits["claude-3-5-sonnet"])
	}
	if cfg.DefaultLimit != 25 {
		t.Errorf("DefaultLimit = %d, want 25", cfg.DefaultLimit)
	}
}

func TestLoad_InvalidValuesFallBack(t *testing.T) {
	t.Setenv("PRIMARY_LLM_TEMPERATURE", "hot")
	t.Setenv("DEFAULT_RATE_LIMIT", "many")
	t.Setenv("MODEL_RATE_LIMITS", "not-a-limit")

	cfg := Load()

	if cfg.Primary.Temperature != DefaultTemperature {
		t.Errorf("Temperature = %g, want default %g", cfg.Primary.Temperature, DefaultTemperature)
	}
	if cfg.DefaultLimit != DefaultHourlyLimit {
		t.Errorf("DefaultLimit = %d, want default %d", cfg.DefaultLimit, DefaultHourlyLimit)
	}
	if len(cfg.RateLimits) != 0 {
		t.Errorf("expected empty RateLimits on parse failure, got %v", cfg.RateLimits)
	}
}

func TestParseModelRateLimits(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    map[string]int
		wantErr bool
	}{
		{
			name:  "single model",
			input: "gpt-4o:100",
			want:  map[string]int{"gpt-4o": 100},
		},
		{
			name:  "multiple models with spaces",
			input: " gpt-4o:100 , llama-3.3-70b-versatile:200 ",
			want:  map[string]int{"gpt-4o": 100, "llama-3.3-70b-versatile": 200},
		},
		{
			name:  "model name containing colon",
			input: "openrouter:anthropic/claude-3.5-sonnet:40",
			want:  map[string]int{"openrouter:anthropic/claude-3.5-sonnet": 40},
		},
		{
			name:  "empty string",
			input: "",
			want:  map[string]int{},
		},
		{
			name:  "trailing comma",
			input: "gpt-4o:10,",
			want:  map[string]int{"gpt-4o": 10},
		},
		{
			name:    "missing limit",
			input:   "gpt-4o",
			wantErr: true,
		},
		{
			name:    "non-numeric limit",
			input:   "gpt-4o:lots",
			wantErr: true,
		},
		{
			name:    "negative limit",
			input:   "gpt-4o:-5",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseModelRateLimits(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %v", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
			for model, limit := range tt.want {
				if got[model] != limit {
					t.Errorf("got[%s] = %d, want %d", model, got[model], limit)
				}
			}
		})
	}
}

func TestLoadRateLimitsFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "limits.yaml")

	content := []byte("limits:\n  gpt-4o-mini: 120\n  claude-3-5-sonnet: 40\n")
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatal(err)
	}

	limits, err := LoadRateLimitsFile(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if limits["gpt-4o-mini"] != 120 {
		t.Errorf("limits[gpt-4o-mini] = %d, want 120", limits["gpt-4o-mini"])
	}
	if limits["claude-3-5-sonnet"] != 40 {
		t.Errorf("limits[claude-3-5-sonnet] = %d, want 40", limits["claude-3-5-sonnet"])
	}
}

func TestLoadRateLimitsFile_Errors(t *testing.T) {
	if _, err := LoadRateLimitsFile("/nonexistent/limits.yaml"); err == nil {
		t.Error("expected error for missing file")
	}

	dir := t.TempDir()
	bad := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(bad, []byte(": not yaml ["), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadRateLimitsFile(bad); err == nil {
		t.Error("expected error for malformed yaml")
	}

	negative := filepath.Join(dir, "negative.yaml")
	if err := os.WriteFile(negative, []byte("limits:\n  gpt-4o: -1\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadRateLimitsFile(negative); err == nil {
		t.Error("expected error for negative limit")
	}
}
