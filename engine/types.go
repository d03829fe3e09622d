/*
Package engine provides the core performance and incentive calculation engine.

PURPOSE:
  This package contains the domain types and algorithms that turn raw
  trainer/student roster data into monthly KPI measurements, eligibility
  determinations, and computed monetary rewards under a versioned,
  time-effective rule configuration.

KEY CONCEPTS IN THIS FILE (types.go):
  - Trainer: A staff member owning a portfolio of students
  - Student: A roster member with status, origin and archival lifecycle
  - StudentEvent: An immutable audit log entry for status/ownership changes
  - ManagementRecord: Per-student monthly result-management completeness
  - Typed IDs: Strong typing prevents mixing trainer/student/rule IDs

DESIGN PRINCIPLES:
  1. Determinism: Evaluation depends only on supplied inputs; "now" is
     always passed in by the caller, never read internally
  2. Precision: Uses decimal.Decimal for rates and money, no floats
  3. Read-boundary filtering: Archival flags are lifecycle tags filtered
     when roster facts are assembled, never deleted
  4. Auditability: Ownership and status changes are append-only events

SEE ALSO:
  - rule.go: Versioned incentive policies and calculation strategies
  - kpi.go: Per-KPI evaluation
  - roster.go: Roster fact aggregation
  - snapshot.go: Snapshot generation and finalization
*/
package engine

import (
	"time"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type TrainerID string
type StudentID string
type RuleID string
type SnapshotID string

// =============================================================================
// TRAINER
// =============================================================================

// Trainer is a staff member subject to KPI evaluation.
// IsActive is an archival toggle: inactive trainers keep their history but
// are excluded from bulk snapshot generation.
type Trainer struct {
	ID        TrainerID
	Name      string
	Email     string
	StartDate time.Time
	IsActive  bool
	Notes     string
	CreatedAt time.Time
}

// =============================================================================
// STUDENT
// =============================================================================

type StudentStatus string

const (
	StatusActive    StudentStatus = "active"
	StatusPaused    StudentStatus = "paused"
	StatusCancelled StudentStatus = "cancelled"
)

type StudentOrigin string

const (
	OriginOrganic   StudentOrigin = "organic"
	OriginReferral  StudentOrigin = "referral"
	OriginMarketing StudentOrigin = "marketing"
)

// Student is a roster member. EndDate is set when, and only meaningfully
// interpreted when, the status is cancelled. IsArchived is an orthogonal
// hide flag: archived students are excluded from all KPI computation but
// retain full history.
type Student struct {
	ID           StudentID
	FullName     string
	Email        string
	Phone        string
	TrainerID    TrainerID
	Status       StudentStatus
	Origin       StudentOrigin
	ReferredBy   TrainerID // meaningful only when Origin == OriginReferral
	StartDate    time.Time
	EndDate      *time.Time
	Notes        string
	IsArchived   bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// =============================================================================
// STUDENT EVENT - Append-only audit log
// =============================================================================

type EventType string

const (
	EventStatusChange  EventType = "status_change"
	EventTrainerChange EventType = "trainer_change"
	EventOriginUpdate  EventType = "origin_update"
)

// StudentEvent records a status or ownership change. Events are append-only:
// never mutated, never deleted.
type StudentEvent struct {
	ID        string
	StudentID StudentID
	Type      EventType
	OldValue  map[string]string
	NewValue  map[string]string
	EventDate time.Time
	CreatedBy string
	CreatedAt time.Time
}

// =============================================================================
// MANAGEMENT RECORD - Monthly result-management completeness per student
// =============================================================================

// ManagementRecord tracks whether a student's results were properly managed
// for a reference month. A student counts as "managed" only when all three
// flags are true.
type ManagementRecord struct {
	ID                   string
	StudentID            StudentID
	TrainerID            TrainerID
	Month                Month
	HasInitialAssessment bool
	HasReassessment      bool
	HasDocumentedResult  bool
	UpdatedAt            time.Time
}

// Complete reports whether the record satisfies the management rule:
// all three completeness flags set.
func (r ManagementRecord) Complete() bool {
	return r.HasInitialAssessment && r.HasReassessment && r.HasDocumentedResult
}
