/*
store.go - Persistence interfaces for the calculation engine

PURPOSE:
  Defines the interface between the engine and the database. Split per
  concern so callers depend only on what they read or write. Different
  implementations can use SQLite or in-memory storage.

KEY INTERFACES:
  RuleStore:     Versioned rule storage with the single-active invariant
  RosterStore:   Read-side roster rows (trainers, students, management)
  SnapshotStore: Snapshot lifecycle (upsert while open, finalize once)
  EventStore:    Append-only student audit log

SINGLE-ACTIVE INVARIANT:
  At most one rule is active. ActivateRule must deactivate the previous
  rule and activate the new one in ONE atomic step - an observer never
  sees zero or two active rules.

APPEND-ONLY CONTRACT:
  EventStore has Append and queries only. No Update, No Delete. Ever.

FINALIZATION CONTRACT:
  UpsertSnapshot must refuse to touch a finalized row and return a
  *FinalizedSnapshotError. FinalizeSnapshot is one-way; finalizing an
  already-finalized snapshot is an error, not a no-op.

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go: Production SQLite
  - engine/store/memory.go:  In-memory for testing

SEE ALSO:
  - snapshot.go: Generator drives these interfaces
  - errors.go: Sentinels the implementations must return
*/
package engine

import "context"

// =============================================================================
// RULE STORE
// =============================================================================

// RuleStore persists versioned game rules.
type RuleStore interface {
	// GetActiveRule returns the currently active rule, or (nil, nil) when
	// no rule is active. Absence is a state, not an error.
	GetActiveRule(ctx context.Context) (*GameRule, error)

	// GetRule returns the rule or ErrRuleNotFound.
	GetRule(ctx context.Context, id RuleID) (*GameRule, error)

	// ListRules returns all rule versions, newest first.
	ListRules(ctx context.Context) ([]GameRule, error)

	// CreateRule persists a new rule version. If rule.IsActive is set,
	// the previous active rule is deactivated in the same atomic step.
	CreateRule(ctx context.Context, rule GameRule) error

	// ActivateRule atomically deactivates the current rule and activates
	// the given one. Returns ErrRuleNotFound if the rule doesn't exist.
	ActivateRule(ctx context.Context, id RuleID) error
}

// =============================================================================
// ROSTER STORE - Read side for evaluation
// =============================================================================

// RosterStore supplies the raw rows evaluation folds over.
type RosterStore interface {
	// ListTrainers returns trainers, optionally only active ones.
	ListTrainers(ctx context.Context, activeOnly bool) ([]Trainer, error)

	// GetTrainer returns the trainer or ErrTrainerNotFound.
	GetTrainer(ctx context.Context, id TrainerID) (*Trainer, error)

	// StudentsByTrainer returns all students currently assigned to the
	// trainer, archived included (the fold filters).
	StudentsByTrainer(ctx context.Context, id TrainerID) ([]Student, error)

	// StudentsReferredBy returns all students whose referral is credited
	// to the trainer, regardless of current assignment.
	StudentsReferredBy(ctx context.Context, id TrainerID) ([]Student, error)

	// ManagementRecords returns the trainer's result-management rows for
	// the month.
	ManagementRecords(ctx context.Context, id TrainerID, month Month) ([]ManagementRecord, error)
}

// =============================================================================
// SNAPSHOT STORE
// =============================================================================

// SnapshotStore persists monthly performance snapshots.
type SnapshotStore interface {
	// GetSnapshot returns the snapshot for (trainer, month), or
	// (nil, nil) when absent.
	GetSnapshot(ctx context.Context, trainerID TrainerID, month Month) (*PerformanceSnapshot, error)

	// UpsertSnapshot inserts or overwrites the open snapshot for the
	// snapshot's (trainer, month). Returns *FinalizedSnapshotError if the
	// existing row is finalized.
	UpsertSnapshot(ctx context.Context, snap PerformanceSnapshot) error

	// FinalizeSnapshot marks the snapshot immutable. Returns
	// ErrSnapshotNotFound if absent, ErrSnapshotFinalized if already done.
	FinalizeSnapshot(ctx context.Context, trainerID TrainerID, month Month, by string) error

	// ListSnapshots returns all snapshots for the month.
	ListSnapshots(ctx context.Context, month Month) ([]PerformanceSnapshot, error)

	// ListTrainerSnapshots returns a trainer's snapshots, newest first.
	ListTrainerSnapshots(ctx context.Context, trainerID TrainerID) ([]PerformanceSnapshot, error)
}

// =============================================================================
// EVENT STORE - Append-only audit log
// =============================================================================

// EventStore records student lifecycle events. Append-only.
type EventStore interface {
	AppendEvent(ctx context.Context, ev StudentEvent) error
	EventsByStudent(ctx context.Context, id StudentID) ([]StudentEvent, error)
}

// =============================================================================
// COMBINED STORE
// =============================================================================

// Store is the full persistence surface the API layer wires together.
type Store interface {
	RuleStore
	RosterStore
	SnapshotStore
	EventStore
}
