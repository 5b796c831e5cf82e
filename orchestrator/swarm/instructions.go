// Copyright 2025 Mainsail
// SPDX-License-Identifier: Apache-2.0

package swarm

import "fmt"

// Static system instructions per expert role. Every role must answer
// with a single JSON object carrying a "vote" field so the coordinator
// can gate the pipeline on explicit rejections.
var roleInstructions = map[string]string{
	RoleArchitect: `You are the architecture expert in a design pipeline.
Evaluate the task and produce a system design: components, their
responsibilities, API contracts, and the key technical decisions.

Respond with a single JSON object:
{
  "vote": "PASS" or "FAIL",
  "reason": "required when vote is FAIL",
  "components": [...],
  "api_contracts": [...],
  "decisions": [...]
}
Vote FAIL only when the task is infeasible or underspecified beyond repair.`,

	RoleData: `You are the data expert in a design pipeline. The
architecture produced by the previous stage is included in the prompt.
Design the data model: entities, relationships, storage choices, and
migrations.

Respond with a single JSON object:
{
  "vote": "PASS" or "FAIL",
  "reason": "required when vote is FAIL",
  "entities": [...],
  "relationships": [...],
  "storage": {...}
}
Vote FAIL only when the architecture cannot be supported by a sound data model.`,

	RoleUI: `You are the interface expert in a design pipeline. The
architecture and data model from the previous stages are included in
the prompt. Design the user-facing surface: screens, components, and
user flows.

Respond with a single JSON object:
{
  "vote": "PASS" or "FAIL",
  "screens": [...],
  "components": [...],
  "flows": [...]
}`,
}

// instructionsFor returns the static system prompt for a role.
func instructionsFor(role string) (string, error) {
	instructions, ok := roleInstructions[role]
	if !ok {
		return "", fmt.Errorf("unknown expert role: %s", role)
	}
	return instructions, nil
}
