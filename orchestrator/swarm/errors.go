// Copyright 2025 Mainsail
// SPDX-License-Identifier: Apache-2.0

package swarm

import (
	"errors"
	"fmt"
)

// ErrNotImplemented is returned by declared-but-unbuilt capabilities.
var ErrNotImplemented = errors.New("not implemented")

// ErrSwarmNotRunning indicates a completion attempt on a swarm that
// already left the RUNNING state.
var ErrSwarmNotRunning = errors.New("swarm is not in RUNNING state")

// InvalidResponseFormatError indicates a model response without a
// parseable JSON object. The raw text is kept for diagnosis.
type InvalidResponseFormatError struct {
	Raw string
}

func (e *InvalidResponseFormatError) Error() string {
	return fmt.Sprintf("response contains no parseable JSON object: %.200s", e.Raw)
}

// DesignRejectionError indicates an expert explicitly voted FAIL. It is
// a considered rejection, not a transient fault, and is never retried.
type DesignRejectionError struct {
	Role   string
	Reason string
}

func (e *DesignRejectionError) Error() string {
	return fmt.Sprintf("%s expert rejected the design: %s", e.Role, e.Reason)
}

// RetriesExhaustedError indicates every attempt for a role failed. It
// wraps the last underlying error.
type RetriesExhaustedError struct {
	Role     string
	Attempts int
	Err      error
}

func (e *RetriesExhaustedError) Error() string {
	return fmt.Sprintf("%s expert failed after %d attempts: %v", e.Role, e.Attempts, e.Err)
}

func (e *RetriesExhaustedError) Unwrap() error {
	return e.Err
}
