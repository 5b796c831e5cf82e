// Copyright 2025 Mainsail
// SPDX-License-Identifier: Apache-2.0

// Package logger provides structured JSON logging for the swarm
// orchestration services.
//
// Log entries are written to stdout as single-line JSON so that the
// container runtime can ship them without extra configuration. Every
// entry carries the component name, deployment instance id, and the
// swarm id of the run it belongs to (empty for process-level events).
//
// Usage:
//
//	log := logger.New("rateguard")
//	log.Info(swarmID, "quota acquired", map[string]interface{}{
//		"model": "gpt-4o-mini",
//		"used":  12,
//	})
package logger
