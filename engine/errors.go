/*
errors.go - Centralized error types for the calculation engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Storage and API layers wrap or map these errors, never invent their own.

ERROR CATEGORIES:
  1. Rule errors - Missing or inactive rule configuration
  2. Snapshot errors - Lifecycle violations (finalized rows are immutable)
  3. Lookup errors - Referenced rows that don't exist

USAGE:
  Callers should match with errors.Is, or use the helpers:

    if engine.IsConflict(err) {
        // map to HTTP 409
    }

SEE ALSO:
  - snapshot.go: Produces the lifecycle errors
  - store.go: Store implementations must return these sentinels
  - api/handlers.go: Maps these to HTTP status codes
*/
package engine

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrNoActiveRule is returned when snapshot generation is requested but no
	// rule is currently active. Generation never guesses a configuration.
	ErrNoActiveRule = errors.New("no active game rule")

	// ErrSnapshotFinalized is returned when an operation would mutate a
	// finalized snapshot. Finalization is one-way.
	ErrSnapshotFinalized = errors.New("snapshot is finalized")

	// ErrRuleNotFound is returned when a referenced rule doesn't exist.
	ErrRuleNotFound = errors.New("game rule not found")

	// ErrTrainerNotFound is returned when a referenced trainer doesn't exist.
	ErrTrainerNotFound = errors.New("trainer not found")

	// ErrStudentNotFound is returned when a referenced student doesn't exist.
	ErrStudentNotFound = errors.New("student not found")

	// ErrSnapshotNotFound is returned when a referenced snapshot doesn't exist.
	ErrSnapshotNotFound = errors.New("snapshot not found")

	// ErrInvalidRule is returned when a rule configuration fails authoring
	// validation (e.g. weighted strategy with weights not summing to 100).
	ErrInvalidRule = errors.New("invalid game rule configuration")

	// ErrMetricInUse is returned when a metric's unit would change while
	// recorded results still reference it.
	ErrMetricInUse = errors.New("metric has recorded results")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// FinalizedSnapshotError identifies which snapshot blocked a write.
type FinalizedSnapshotError struct {
	TrainerID TrainerID
	Month     Month
}

func (e *FinalizedSnapshotError) Error() string {
	return fmt.Sprintf("snapshot for trainer %s month %s is finalized", e.TrainerID, e.Month)
}

func (e *FinalizedSnapshotError) Unwrap() error {
	return ErrSnapshotFinalized
}

// RuleValidationError carries the specific authoring-time violation.
type RuleValidationError struct {
	Field   string
	Message string
}

func (e *RuleValidationError) Error() string {
	return fmt.Sprintf("invalid rule: %s: %s", e.Field, e.Message)
}

func (e *RuleValidationError) Unwrap() error {
	return ErrInvalidRule
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsConflict returns true if the error indicates a state conflict (HTTP 409).
func IsConflict(err error) bool {
	return errors.Is(err, ErrSnapshotFinalized) ||
		errors.Is(err, ErrMetricInUse)
}

// IsNotFound returns true if the error indicates a missing resource (HTTP 404).
func IsNotFound(err error) bool {
	return errors.Is(err, ErrRuleNotFound) ||
		errors.Is(err, ErrTrainerNotFound) ||
		errors.Is(err, ErrStudentNotFound) ||
		errors.Is(err, ErrSnapshotNotFound)
}

// IsClientError returns true if the error is due to invalid client input (HTTP 400).
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidRule) ||
		errors.Is(err, ErrNoActiveRule)
}
