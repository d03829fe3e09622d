package engine_test

import (
	"testing"
	"time"

	"github.com/playbook/studio-engine/engine"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

const coach = engine.TrainerID("trainer-1")

func activeStudent(id string, start time.Time) engine.Student {
	return engine.Student{
		ID:        engine.StudentID(id),
		TrainerID: coach,
		Status:    engine.StatusActive,
		Origin:    engine.OriginOrganic,
		StartDate: start,
	}
}

func cancelledStudent(id string, start, end time.Time) engine.Student {
	s := activeStudent(id, start)
	s.Status = engine.StatusCancelled
	s.EndDate = &end
	return s
}

func referralStudent(id string, start time.Time) engine.Student {
	s := activeStudent(id, start)
	s.Origin = engine.OriginReferral
	s.ReferredBy = coach
	return s
}

func completeRecord(studentID string, month engine.Month) engine.ManagementRecord {
	return engine.ManagementRecord{
		StudentID:            engine.StudentID(studentID),
		TrainerID:            coach,
		Month:                month,
		HasInitialAssessment: true,
		HasReassessment:      true,
		HasDocumentedResult:  true,
	}
}

func facts(owned, referred []engine.Student, records []engine.ManagementRecord, asOf time.Time) engine.RosterFacts {
	return engine.BuildRosterFacts(coach, march2026(), owned, referred, records, 30, asOf)
}

// =============================================================================
// START/END MEMBERSHIP
// =============================================================================

func TestBuildRosterFacts_MidMonthStartCountsAtEndOnly(t *testing.T) {
	// GIVEN: One long-standing student and one who joined March 15
	// WHEN: Building facts for March
	// THEN: Start counts 1, end counts 2

	owned := []engine.Student{
		activeStudent("s1", date(2025, 6, 1)),
		activeStudent("s2", date(2026, 3, 15)),
	}
	f := facts(owned, nil, nil, date(2026, 4, 1))

	if f.StudentsStart != 1 {
		t.Errorf("StudentsStart = %d, want 1", f.StudentsStart)
	}
	if f.StudentsEnd != 2 {
		t.Errorf("StudentsEnd = %d, want 2", f.StudentsEnd)
	}
}

func TestBuildRosterFacts_CancellationInsideMonth(t *testing.T) {
	// A student cancelled March 10 counts at month start, not at month
	// end, and registers exactly one cancellation.
	owned := []engine.Student{
		activeStudent("s1", date(2025, 6, 1)),
		cancelledStudent("s2", date(2025, 8, 1), date(2026, 3, 10)),
	}
	f := facts(owned, nil, nil, date(2026, 4, 1))

	if f.StudentsStart != 2 {
		t.Errorf("StudentsStart = %d, want 2", f.StudentsStart)
	}
	if f.StudentsEnd != 1 {
		t.Errorf("StudentsEnd = %d, want 1", f.StudentsEnd)
	}
	if f.Cancellations != 1 {
		t.Errorf("Cancellations = %d, want 1", f.Cancellations)
	}
}

func TestBuildRosterFacts_OldCancellationNotCounted(t *testing.T) {
	// Cancelled in January: gone before March, no March cancellation.
	owned := []engine.Student{
		cancelledStudent("s1", date(2025, 6, 1), date(2026, 1, 20)),
	}
	f := facts(owned, nil, nil, date(2026, 4, 1))

	if f.StudentsStart != 0 || f.StudentsEnd != 0 || f.Cancellations != 0 {
		t.Errorf("old cancellation leaked into March facts: %+v", f)
	}
}

func TestBuildRosterFacts_ArchivedStudentsInvisible(t *testing.T) {
	archived := activeStudent("s1", date(2025, 6, 1))
	archived.IsArchived = true

	f := facts([]engine.Student{archived}, nil, nil, date(2026, 4, 1))

	if f.StudentsStart != 0 || f.PortfolioSize != 0 {
		t.Errorf("archived student leaked into facts: %+v", f)
	}
}

func TestBuildRosterFacts_PausedStaysOnRosterButNotInPortfolio(t *testing.T) {
	paused := activeStudent("s1", date(2025, 6, 1))
	paused.Status = engine.StatusPaused

	f := facts([]engine.Student{paused}, nil, nil, date(2026, 4, 1))

	if f.StudentsStart != 1 || f.StudentsEnd != 1 {
		t.Errorf("paused student should remain on the roster: %+v", f)
	}
	if f.PortfolioSize != 0 {
		t.Errorf("paused student should not be in the active portfolio: %+v", f)
	}
}

// =============================================================================
// REFERRALS
// =============================================================================

func TestBuildRosterFacts_ReferralValidationWindow(t *testing.T) {
	// GIVEN: Two March referrals, one 40 days old and one 10 days old
	//        at evaluation time
	// WHEN: Building facts with a 30-day validation window
	// THEN: One validated, one pending

	referred := []engine.Student{
		referralStudent("r1", date(2026, 3, 2)),
		referralStudent("r2", date(2026, 3, 25)),
	}
	f := facts(nil, referred, nil, date(2026, 4, 11))

	if f.ReferralsCount != 1 {
		t.Errorf("ReferralsCount = %d, want 1", f.ReferralsCount)
	}
	if f.ReferralsPending != 1 {
		t.Errorf("ReferralsPending = %d, want 1", f.ReferralsPending)
	}
}

func TestBuildRosterFacts_CancelledReferralNeverValidates(t *testing.T) {
	r := referralStudent("r1", date(2026, 3, 2))
	r.Status = engine.StatusCancelled

	f := facts(nil, []engine.Student{r}, nil, date(2026, 6, 1))

	if f.ReferralsCount != 0 || f.ReferralsPending != 0 {
		t.Errorf("cancelled referral should not count at all: %+v", f)
	}
}

func TestBuildRosterFacts_ReferralAttributedToStartMonth(t *testing.T) {
	// A February referral does not appear in March facts, no matter how
	// validated it is by now.
	r := referralStudent("r1", date(2026, 2, 10))

	f := facts(nil, []engine.Student{r}, nil, date(2026, 6, 1))

	if f.ReferralsCount != 0 {
		t.Errorf("referral from another month leaked in: %+v", f)
	}
}

// =============================================================================
// MANAGEMENT
// =============================================================================

func TestBuildRosterFacts_OnlyCompleteRecordsCountAsManaged(t *testing.T) {
	owned := []engine.Student{
		activeStudent("s1", date(2025, 6, 1)),
		activeStudent("s2", date(2025, 6, 1)),
	}
	incomplete := completeRecord("s2", march2026())
	incomplete.HasDocumentedResult = false
	records := []engine.ManagementRecord{
		completeRecord("s1", march2026()),
		incomplete,
	}

	f := facts(owned, nil, records, date(2026, 4, 1))

	if f.PortfolioSize != 2 {
		t.Errorf("PortfolioSize = %d, want 2", f.PortfolioSize)
	}
	if f.ManagedCount != 1 {
		t.Errorf("ManagedCount = %d, want 1", f.ManagedCount)
	}
}

func TestBuildRosterFacts_RecordsFromOtherMonthsIgnored(t *testing.T) {
	owned := []engine.Student{activeStudent("s1", date(2025, 6, 1))}
	records := []engine.ManagementRecord{
		completeRecord("s1", engine.NewMonth(2026, time.February)),
	}

	f := facts(owned, nil, records, date(2026, 4, 1))

	if f.ManagedCount != 0 {
		t.Errorf("February record counted for March: %+v", f)
	}
}

func date(y int, m time.Month, day int) time.Time {
	return time.Date(y, m, day, 0, 0, 0, 0, time.UTC)
}
