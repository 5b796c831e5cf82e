// Copyright 2025 Mainsail
// SPDX-License-Identifier: Apache-2.0

package qdrant

import "fmt"

// DependencyUnavailableError indicates the vector database or the
// embedding service could not be reached. It is distinct from a missing
// collection, which searches report as an empty result.
type DependencyUnavailableError struct {
	Service string
	Message string
	Err     error
}

func (e *DependencyUnavailableError) Error() string {
	return fmt.Sprintf("%s unavailable: %s", e.Service, e.Message)
}

func (e *DependencyUnavailableError) Unwrap() error {
	return e.Err
}
