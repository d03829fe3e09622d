package engine_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/playbook/studio-engine/engine"
	"github.com/playbook/studio-engine/engine/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

// newStudio seeds a memory store with an active weighted rule, one
// trainer, and a roster that achieves all three KPIs for March 2026:
// 7 students (no cancellations), one validated referral, 6 of 7 managed.
func newStudio(t *testing.T) (*store.Memory, *engine.Generator) {
	t.Helper()
	mem := store.NewMemory()
	ctx := context.Background()

	rule := weightedRule(500)
	rule.ID = "rule-1"
	rule.IsActive = true
	if err := mem.CreateRule(ctx, rule); err != nil {
		t.Fatal(err)
	}

	mem.PutTrainer(engine.Trainer{ID: coach, Name: "Coach", IsActive: true, StartDate: date(2024, 1, 1)})

	ids := []string{"s1", "s2", "s3", "s4", "s5", "s6"}
	for _, id := range ids {
		mem.PutStudent(activeStudent(id, date(2025, 6, 1)))
	}
	// Validated referral: started March 1, evaluated April 5 (35 days).
	// The referred student joins this trainer's own roster.
	referral := referralStudent("r1", date(2026, 3, 1))
	mem.PutStudent(referral)
	// 6 of 7 managed: 85.71 >= 75.
	for _, id := range []string{"s1", "s2", "s3", "s4", "s5", "r1"} {
		mem.PutManagementRecord(completeRecord(id, march2026()))
	}

	gen := &engine.Generator{
		Rules:     mem,
		Roster:    mem,
		Snapshots: mem,
		Now:       func() time.Time { return date(2026, 4, 5) },
	}
	return mem, gen
}

// =============================================================================
// GENERATION
// =============================================================================

func TestGenerator_Generate_FullAchievement(t *testing.T) {
	// GIVEN: A roster that passes every KPI
	// WHEN: Generating the March snapshot
	// THEN: All KPIs achieved, reward is the full base

	_, gen := newStudio(t)
	snap, err := gen.Generate(context.Background(), coach, march2026())
	if err != nil {
		t.Fatal(err)
	}

	if !snap.RetentionAchieved || !snap.ReferralsAchieved || !snap.ManagementAchieved {
		t.Errorf("expected full achievement, got %+v", snap)
	}
	if !snap.RewardAmount.Equal(d(500)) {
		t.Errorf("reward = %s, want 500", snap.RewardAmount)
	}
	if snap.GameRuleID != "rule-1" {
		t.Errorf("snapshot should record the rule version, got %q", snap.GameRuleID)
	}
	if snap.IsFinalized {
		t.Error("fresh snapshot must be open")
	}
}

func TestGenerator_Generate_NoActiveRule(t *testing.T) {
	mem := store.NewMemory()
	mem.PutTrainer(engine.Trainer{ID: coach, Name: "Coach", IsActive: true})
	gen := &engine.Generator{Rules: mem, Roster: mem, Snapshots: mem}

	_, err := gen.Generate(context.Background(), coach, march2026())
	if !errors.Is(err, engine.ErrNoActiveRule) {
		t.Errorf("err = %v, want ErrNoActiveRule", err)
	}
}

func TestGenerator_Generate_UnknownTrainer(t *testing.T) {
	_, gen := newStudio(t)

	_, err := gen.Generate(context.Background(), "nobody", march2026())
	if !engine.IsNotFound(err) {
		t.Errorf("err = %v, want a not-found error", err)
	}
}

func TestGenerator_Regenerate_OverwritesOpenSnapshot(t *testing.T) {
	// GIVEN: An open March snapshot
	// WHEN: A cancellation arrives and the month is regenerated
	// THEN: Same snapshot identity, fresh numbers

	mem, gen := newStudio(t)
	ctx := context.Background()

	first, err := gen.Generate(ctx, coach, march2026())
	if err != nil {
		t.Fatal(err)
	}

	mem.PutStudent(cancelledStudent("s6", date(2025, 6, 1), date(2026, 3, 20)))

	second, err := gen.Generate(ctx, coach, march2026())
	if err != nil {
		t.Fatal(err)
	}

	if second.ID != first.ID {
		t.Errorf("regeneration changed snapshot ID: %s -> %s", first.ID, second.ID)
	}
	if second.Cancellations != 1 {
		t.Errorf("Cancellations = %d, want 1", second.Cancellations)
	}
	if second.RewardAmount.Equal(first.RewardAmount) {
		t.Error("expected the reward to change after the cancellation")
	}
}

// =============================================================================
// FINALIZATION
// =============================================================================

func TestGenerator_Generate_RejectsFinalizedMonth(t *testing.T) {
	_, gen := newStudio(t)
	ctx := context.Background()

	if _, err := gen.Generate(ctx, coach, march2026()); err != nil {
		t.Fatal(err)
	}
	if err := gen.Finalize(ctx, coach, march2026(), "manager"); err != nil {
		t.Fatal(err)
	}

	_, err := gen.Generate(ctx, coach, march2026())
	var finalized *engine.FinalizedSnapshotError
	if !errors.As(err, &finalized) {
		t.Fatalf("err = %v, want FinalizedSnapshotError", err)
	}
	if !engine.IsConflict(err) {
		t.Error("finalized rejection should classify as a conflict")
	}
}

func TestGenerator_Finalize_TwiceIsAnError(t *testing.T) {
	_, gen := newStudio(t)
	ctx := context.Background()

	if _, err := gen.Generate(ctx, coach, march2026()); err != nil {
		t.Fatal(err)
	}
	if err := gen.Finalize(ctx, coach, march2026(), "manager"); err != nil {
		t.Fatal(err)
	}

	err := gen.Finalize(ctx, coach, march2026(), "manager")
	if !errors.Is(err, engine.ErrSnapshotFinalized) {
		t.Errorf("err = %v, want ErrSnapshotFinalized", err)
	}
}

func TestGenerator_Finalize_MissingSnapshot(t *testing.T) {
	_, gen := newStudio(t)

	err := gen.Finalize(context.Background(), coach, march2026(), "manager")
	if !errors.Is(err, engine.ErrSnapshotNotFound) {
		t.Errorf("err = %v, want ErrSnapshotNotFound", err)
	}
}

// =============================================================================
// BULK GENERATION
// =============================================================================

// flakyRoster fails roster loads for one specific trainer.
type flakyRoster struct {
	*store.Memory
	failFor engine.TrainerID
}

func (f flakyRoster) StudentsByTrainer(ctx context.Context, id engine.TrainerID) ([]engine.Student, error) {
	if id == f.failFor {
		return nil, errors.New("roster unavailable")
	}
	return f.Memory.StudentsByTrainer(ctx, id)
}

func TestGenerator_GenerateAll_IsolatesFailures(t *testing.T) {
	// GIVEN: Two active trainers, one with a broken roster
	// WHEN: Generating the whole month
	// THEN: The healthy trainer succeeds; the failure is reported, not fatal

	mem, gen := newStudio(t)
	mem.PutTrainer(engine.Trainer{ID: "trainer-2", Name: "Broken", IsActive: true, StartDate: date(2024, 1, 1)})
	gen.Roster = flakyRoster{Memory: mem, failFor: "trainer-2"}

	result, err := gen.GenerateAll(context.Background(), march2026())
	if err != nil {
		t.Fatal(err)
	}

	if result.Generated != 1 {
		t.Errorf("Generated = %d, want 1", result.Generated)
	}
	if result.Failed != 1 {
		t.Errorf("Failed = %d, want 1", result.Failed)
	}
	if len(result.Failures) != 1 || result.Failures[0].TrainerID != "trainer-2" {
		t.Errorf("unexpected failures: %+v", result.Failures)
	}

	snap, _ := mem.GetSnapshot(context.Background(), coach, march2026())
	if snap == nil {
		t.Error("healthy trainer's snapshot should exist")
	}
}

func TestGenerator_GenerateAll_SkipsInactiveTrainers(t *testing.T) {
	mem, gen := newStudio(t)
	mem.PutTrainer(engine.Trainer{ID: "trainer-retired", Name: "Retired", IsActive: false})

	result, err := gen.GenerateAll(context.Background(), march2026())
	if err != nil {
		t.Fatal(err)
	}
	if result.Generated != 1 || result.Failed != 0 {
		t.Errorf("inactive trainer was processed: %+v", result)
	}
}
