/*
roster.go - Roster fact aggregation

PURPOSE:
  Folds raw roster rows (students, referrals, management records) into
  the RosterFacts a KPI evaluation needs for one trainer-month. Pure:
  the caller supplies the rows and the evaluation time.

COUNTING RULES:
  students_start: owned, not archived, started on/before the month's
    first day, and not cancelled before the month began
  cancellations:  owned students whose cancellation end date falls
    inside the month
  students_end:   same membership test as students_start, taken at the
    month's last day
  referrals:      students with referral origin credited to this
    trainer whose start date falls inside the month; validated once
    their tenure at asOf reaches the rule's validation window,
    pending until then
  portfolio:      currently active, not archived, owned students
  managed:        portfolio students whose result-management record
    for the month is fully complete

  Archived students are invisible to every count. Paused students stay
  in the start/end membership (they haven't left) but drop out of the
  active portfolio.

SEE ALSO:
  - kpi.go: Consumes RosterFacts
  - store.go: RosterStore supplies the raw rows
*/
package engine

import "time"

// =============================================================================
// ROSTER FACTS - Inputs to KPI evaluation
// =============================================================================

// RosterFacts is everything the evaluator needs to know about one
// trainer's roster for one month.
type RosterFacts struct {
	TrainerID TrainerID
	Month     Month

	StudentsStart int
	StudentsEnd   int
	Cancellations int

	ReferralsCount   int // validated
	ReferralsPending int // inside the validation window

	PortfolioSize int
	ManagedCount  int
}

// =============================================================================
// AGGREGATION
// =============================================================================

// BuildRosterFacts folds the trainer's rows into evaluation inputs.
// owned are the students currently assigned to the trainer; referred are
// students (any owner) whose referral is credited to the trainer. asOf is
// the evaluation time, used only for referral validation tenure.
func BuildRosterFacts(
	trainerID TrainerID,
	month Month,
	owned []Student,
	referred []Student,
	records []ManagementRecord,
	validationDays int,
	asOf time.Time,
) RosterFacts {
	facts := RosterFacts{TrainerID: trainerID, Month: month}

	monthStart := month.Start()
	monthEnd := month.End()

	managed := make(map[StudentID]bool, len(records))
	for _, rec := range records {
		if rec.Month.Equal(month) && rec.Complete() {
			managed[rec.StudentID] = true
		}
	}

	for _, s := range owned {
		if s.IsArchived {
			continue
		}

		if onRoster(s, monthStart) {
			facts.StudentsStart++
		}
		if onRoster(s, monthEnd) {
			facts.StudentsEnd++
		}
		if s.Status == StatusCancelled && s.EndDate != nil && month.Contains(*s.EndDate) {
			facts.Cancellations++
		}

		if s.Status == StatusActive {
			facts.PortfolioSize++
			if managed[s.ID] {
				facts.ManagedCount++
			}
		}
	}

	for _, s := range referred {
		if s.IsArchived || s.Origin != OriginReferral || s.ReferredBy != trainerID {
			continue
		}
		if !month.Contains(s.StartDate) {
			continue
		}
		// Cancelled referrals never validate.
		if s.Status == StatusCancelled {
			continue
		}
		if asOf.Sub(s.StartDate) >= time.Duration(validationDays)*24*time.Hour {
			facts.ReferralsCount++
		} else {
			facts.ReferralsPending++
		}
	}

	return facts
}

// onRoster reports whether the student was an enrolled roster member at t:
// started on or before t, and not yet cancelled out.
func onRoster(s Student, t time.Time) bool {
	if s.StartDate.After(t) {
		return false
	}
	if s.Status == StatusCancelled && s.EndDate != nil && s.EndDate.Before(t) {
		return false
	}
	return true
}
