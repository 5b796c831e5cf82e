// Copyright 2025 Mainsail
// SPDX-License-Identifier: Apache-2.0

package llm

import (
	"context"
	"strings"

	"mainsail/platform/shared/logger"
)

// TaskCategory is the closed label set produced by the classifier.
type TaskCategory string

const (
	// CategoryArchitecture covers system design and structural work.
	// It is also the fail-safe default for unclassifiable tasks.
	CategoryArchitecture TaskCategory = "ARCHITECTURE"

	// CategoryData covers schema, storage, and data-flow work.
	CategoryData TaskCategory = "DATA"

	// CategoryInterface covers UI and user-facing surface work.
	CategoryInterface TaskCategory = "INTERFACE"
)

// Categories lists every valid label in definition order; the order is
// part of the prompt contract.
var Categories = []TaskCategory{CategoryArchitecture, CategoryData, CategoryInterface}

const classifierPrompt = `Classify the following task into exactly one category.

Categories:
- ARCHITECTURE: system design, component structure, API contracts, technical planning
- DATA: database schemas, storage layout, data pipelines, migrations
- INTERFACE: user interfaces, screens, components, user-facing flows

Respond with exactly one word: ARCHITECTURE, DATA, or INTERFACE.

Task: `

// Classifier performs single-shot categorization of a task description.
// Classification is best-effort: any failure degrades to
// CategoryArchitecture and is never surfaced as an error.
type Classifier struct {
	client Completer
	log    *logger.Logger
}

// NewClassifier creates a classifier backed by the given completion
// client.
func NewClassifier(client Completer) *Classifier {
	return &Classifier{
		client: client,
		log:    logger.New("classifier"),
	}
}

// Classify categorizes a task description into one of the three known
// labels. Empty input short-circuits to CategoryArchitecture without a
// model call.
func (c *Classifier) Classify(ctx context.Context, taskDescription string) TaskCategory {
	if strings.TrimSpace(taskDescription) == "" {
		return CategoryArchitecture
	}

	zero := 0.0
	resp, err := c.client.Complete(ctx, CompletionRequest{
		Messages: []Message{
			{Role: "user", Content: classifierPrompt + taskDescription},
		},
		Temperature: &zero,
		MaxTokens:   10,
	})
	if err != nil {
		c.log.WarnErr("", "classification failed, defaulting to ARCHITECTURE", err, nil)
		return CategoryArchitecture
	}

	label := normalizeLabel(resp.Text)
	for _, category := range Categories {
		if label == string(category) {
			return category
		}
	}

	c.log.Warn("", "classifier returned unknown label, defaulting to ARCHITECTURE", map[string]interface{}{
		"response": resp.Text,
	})
	return CategoryArchitecture
}

// normalizeLabel reduces a model response to a comparable label: trimmed,
// uppercased, stripped of everything but letters. Matching is exact
// equality against the closed label set, not substring search.
func normalizeLabel(s string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(strings.TrimSpace(s)) {
		if r >= 'A' && r <= 'Z' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
