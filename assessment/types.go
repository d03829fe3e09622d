/*
Package assessment provides physical assessment protocols and the
evolution processor that turns raw assessment history into per-metric
progress views.

PURPOSE:
  Trainers record assessments (a protocol applied to a student on a
  date, with one measured value per metric). This package defines those
  entities and computes how each metric evolved between the latest and
  the previous assessment of the same protocol.

KEY CONCEPTS IN THIS FILE (types.go):
  - Pillar: The four training pillars protocols belong to
  - Protocol: A named measurement procedure with ordered metrics
  - Metric: One measured quantity within a protocol (name + unit)
  - Assessment: One application of a protocol to a student
  - Result: One metric value within an assessment

SEE ALSO:
  - evolution.go: Grouping, trend and delta computation
*/
package assessment

import (
	"context"
	"time"
)

// =============================================================================
// PILLARS
// =============================================================================

// Pillar classifies protocols into the four training pillars.
type Pillar string

const (
	PillarComposition   Pillar = "composition"
	PillarNeuromuscular Pillar = "neuromuscular"
	PillarSpecific      Pillar = "specific"
	PillarROM           Pillar = "rom"
)

// =============================================================================
// PROTOCOL - A measurement procedure
// =============================================================================

// Metric is one measured quantity within a protocol.
// Unit changes are blocked once results reference the metric, so that
// historical values keep their meaning.
type Metric struct {
	ID         string
	ProtocolID string
	Name       string
	Unit       string
	SortOrder  int
	IsArchived bool
}

// Protocol is a named measurement procedure. Archival hides a protocol
// from new assessments without touching recorded history.
type Protocol struct {
	ID          string
	Name        string
	Pillar      Pillar
	Description string
	Metrics     []Metric
	IsArchived  bool
	CreatedAt   time.Time
}

// =============================================================================
// ASSESSMENT - One application of a protocol
// =============================================================================

// Result is one measured metric value within an assessment.
type Result struct {
	ID           string
	AssessmentID string
	MetricID     string
	MetricName   string
	Unit         string
	Value        float64
}

// Assessment is one application of a protocol to a student on a date.
type Assessment struct {
	ID           string
	StudentID    string
	ProtocolID   string
	ProtocolName string
	Pillar       Pillar
	PerformedAt  time.Time
	Notes        string
	Results      []Result
	CreatedAt    time.Time
}

// Reader is the read surface the evolution endpoints need.
type Reader interface {
	// ListByStudent returns all of a student's assessments with results,
	// in any order; the processor sorts.
	ListByStudent(ctx context.Context, studentID string) ([]Assessment, error)
}
