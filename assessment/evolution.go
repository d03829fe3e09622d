/*
evolution.go - Assessment evolution processing

PURPOSE:
  Pure transformation of a student's raw assessment history into
  per-protocol evolution views: for each metric, the latest value, the
  previous value, the delta, and a trend direction. Also derives the
  student's management status from assessment recency.

PROCESSING:
  1. Group assessments by protocol (first-seen order preserved)
  2. Within each group, sort by performed_at descending (stable, so
     same-day assessments keep their insertion order)
  3. For each metric of the latest assessment, find the same metric in
     the previous assessment and compute delta + trend
  4. Metrics absent from the previous assessment are trend "new"

  Deltas are rounded to 2 decimal places. A zero delta is "stable".

MANAGEMENT STATUS:
  Derived from days since the most recent assessment:
    <= 30 days  -> on_track
    <= 60 days  -> warning
    >  60 days  -> late
    none at all -> pending

SEE ALSO:
  - types.go: The entities processed here
*/
package assessment

import (
	"math"
	"sort"
	"time"
)

// =============================================================================
// TRENDS
// =============================================================================

// Trend is the direction a metric moved between the previous and the
// latest assessment.
type Trend string

const (
	TrendUp     Trend = "up"
	TrendDown   Trend = "down"
	TrendStable Trend = "stable"
	TrendNew    Trend = "new" // no previous measurement to compare
)

// =============================================================================
// EVOLUTION VIEWS
// =============================================================================

// MetricEvolution compares one metric across the two most recent
// assessments of a protocol. PreviousValue and Diff are nil when the
// metric has no prior measurement.
type MetricEvolution struct {
	MetricID      string
	MetricName    string
	Unit          string
	LatestValue   float64
	PreviousValue *float64
	Diff          *float64
	Trend         Trend
}

// ProtocolGroup is one protocol's assessment history, newest first,
// with the evolution of each metric in the latest assessment.
type ProtocolGroup struct {
	ProtocolID   string
	ProtocolName string
	Pillar       Pillar
	Assessments  []Assessment // sorted by PerformedAt descending
	Evolution    []MetricEvolution
}

// =============================================================================
// PROCESSING
// =============================================================================

// ProcessHistory groups a student's assessments by protocol and computes
// per-metric evolution. Group order follows first appearance in the input.
func ProcessHistory(history []Assessment) []ProtocolGroup {
	var order []string
	byProtocol := make(map[string][]Assessment)
	for _, a := range history {
		if _, seen := byProtocol[a.ProtocolID]; !seen {
			order = append(order, a.ProtocolID)
		}
		byProtocol[a.ProtocolID] = append(byProtocol[a.ProtocolID], a)
	}

	groups := make([]ProtocolGroup, 0, len(order))
	for _, id := range order {
		assessments := byProtocol[id]
		sort.SliceStable(assessments, func(i, j int) bool {
			return assessments[i].PerformedAt.After(assessments[j].PerformedAt)
		})

		group := ProtocolGroup{
			ProtocolID:   id,
			ProtocolName: assessments[0].ProtocolName,
			Pillar:       assessments[0].Pillar,
			Assessments:  assessments,
		}

		var previous *Assessment
		if len(assessments) > 1 {
			previous = &assessments[1]
		}
		group.Evolution = evolve(assessments[0], previous)

		groups = append(groups, group)
	}
	return groups
}

// evolve compares the latest assessment against the previous one,
// metric by metric. Output is sorted by metric name for stable display.
func evolve(latest Assessment, previous *Assessment) []MetricEvolution {
	prior := make(map[string]float64)
	if previous != nil {
		for _, r := range previous.Results {
			prior[r.MetricID] = r.Value
		}
	}

	evolution := make([]MetricEvolution, 0, len(latest.Results))
	for _, r := range latest.Results {
		ev := MetricEvolution{
			MetricID:    r.MetricID,
			MetricName:  r.MetricName,
			Unit:        r.Unit,
			LatestValue: r.Value,
			Trend:       TrendNew,
		}

		if prev, ok := prior[r.MetricID]; ok {
			diff := round2(r.Value - prev)
			ev.PreviousValue = &prev
			ev.Diff = &diff
			switch {
			case diff > 0:
				ev.Trend = TrendUp
			case diff < 0:
				ev.Trend = TrendDown
			default:
				ev.Trend = TrendStable
			}
		}

		evolution = append(evolution, ev)
	}

	sort.Slice(evolution, func(i, j int) bool {
		return evolution[i].MetricName < evolution[j].MetricName
	})
	return evolution
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// =============================================================================
// MANAGEMENT STATUS - Assessment recency
// =============================================================================

// Status classifies how current a student's assessment coverage is.
type Status string

const (
	StatusOnTrack Status = "on_track" // assessed within 30 days
	StatusWarning Status = "warning"  // 31-60 days since last assessment
	StatusLate    Status = "late"     // more than 60 days
	StatusPending Status = "pending"  // never assessed
)

// ManagementStatus derives the recency status from the student's
// assessment history at the given time.
func ManagementStatus(history []Assessment, now time.Time) Status {
	if len(history) == 0 {
		return StatusPending
	}

	latest := history[0].PerformedAt
	for _, a := range history[1:] {
		if a.PerformedAt.After(latest) {
			latest = a.PerformedAt
		}
	}

	days := int(now.Sub(latest).Hours() / 24)
	switch {
	case days <= 30:
		return StatusOnTrack
	case days <= 60:
		return StatusWarning
	default:
		return StatusLate
	}
}
