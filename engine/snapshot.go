/*
snapshot.go - Snapshot generation and finalization

PURPOSE:
  Orchestrates the monthly evaluation: load the active rule, fold the
  roster into facts, evaluate KPIs, compute the reward, and persist the
  result as a PerformanceSnapshot. Owns the snapshot lifecycle.

LIFECYCLE:
  absent ──generate──> open ──finalize──> finalized
              │          │
              └──────────┘  (regeneration while open is idempotent:
                             each run overwrites with fresh numbers)

  Finalized snapshots are immutable. Generation against a finalized
  (trainer, month) fails before any computation happens; finalizing
  twice is an error, not a no-op.

BULK GENERATION:
  GenerateAll fans out over every active trainer. Failures are isolated
  per trainer: one bad roster never aborts the batch, and the result
  reports exactly who succeeded and who failed with what.

DETERMINISM:
  The Generator never reads the wall clock directly; Now is injected so
  referral validation tenure is reproducible in tests.

SEE ALSO:
  - kpi.go, reward.go: The pure computation this file orchestrates
  - store.go: The persistence interfaces it drives
*/
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// PERFORMANCE SNAPSHOT - The persisted monthly record
// =============================================================================

// PerformanceSnapshot is the persisted outcome of one trainer-month
// evaluation. Fields are flattened for storage and reporting.
type PerformanceSnapshot struct {
	ID         SnapshotID
	TrainerID  TrainerID
	Month      Month
	GameRuleID RuleID // the rule version that produced these numbers

	StudentsStart int
	StudentsEnd   int
	Cancellations int

	RetentionRate     decimal.Decimal
	RetentionEligible bool
	RetentionAchieved bool

	ReferralsCount    int
	ReferralsPending  int
	ReferralsAchieved bool

	ManagementRate     decimal.Decimal
	ManagementManaged  int
	ManagementAchieved bool

	RewardAmount decimal.Decimal

	IsFinalized bool
	FinalizedAt *time.Time
	FinalizedBy string

	GeneratedAt time.Time
}

func snapshotFrom(trainerID TrainerID, month Month, rule GameRule, ev Evaluation, generatedAt time.Time) PerformanceSnapshot {
	return PerformanceSnapshot{
		TrainerID:  trainerID,
		Month:      month,
		GameRuleID: rule.ID,

		StudentsStart: ev.Retention.StudentsStart,
		StudentsEnd:   ev.Retention.StudentsEnd,
		Cancellations: ev.Retention.Cancellations,

		RetentionRate:     ev.Retention.Rate.Round(2),
		RetentionEligible: ev.Retention.Eligible,
		RetentionAchieved: ev.Retention.Achieved,

		ReferralsCount:    ev.Referrals.Count,
		ReferralsPending:  ev.Referrals.Pending,
		ReferralsAchieved: ev.Referrals.Achieved,

		ManagementRate:     ev.Management.Rate.Round(2),
		ManagementManaged:  ev.Management.ManagedCount,
		ManagementAchieved: ev.Management.Achieved,

		RewardAmount: RoundCurrency(ComputeReward(rule, ev)),

		GeneratedAt: generatedAt,
	}
}

// =============================================================================
// GENERATOR
// =============================================================================

// Generator drives snapshot generation and finalization.
type Generator struct {
	Rules     RuleStore
	Roster    RosterStore
	Snapshots SnapshotStore

	// Now is injected for deterministic referral validation. Defaults to
	// time.Now (UTC) when nil.
	Now func() time.Time
}

func (g *Generator) now() time.Time {
	if g.Now != nil {
		return g.Now()
	}
	return time.Now().UTC()
}

// Evaluate runs the full evaluation for (trainer, month) against the
// active rule without persisting anything. Used by the live dashboard.
func (g *Generator) Evaluate(ctx context.Context, trainerID TrainerID, month Month) (*GameRule, Evaluation, error) {
	rule, err := g.Rules.GetActiveRule(ctx)
	if err != nil {
		return nil, Evaluation{}, fmt.Errorf("load active rule: %w", err)
	}
	if rule == nil {
		return nil, Evaluation{}, ErrNoActiveRule
	}

	if _, err := g.Roster.GetTrainer(ctx, trainerID); err != nil {
		return nil, Evaluation{}, err
	}

	owned, err := g.Roster.StudentsByTrainer(ctx, trainerID)
	if err != nil {
		return nil, Evaluation{}, fmt.Errorf("load students: %w", err)
	}
	referred, err := g.Roster.StudentsReferredBy(ctx, trainerID)
	if err != nil {
		return nil, Evaluation{}, fmt.Errorf("load referrals: %w", err)
	}
	records, err := g.Roster.ManagementRecords(ctx, trainerID, month)
	if err != nil {
		return nil, Evaluation{}, fmt.Errorf("load management records: %w", err)
	}

	facts := BuildRosterFacts(trainerID, month, owned, referred, records,
		rule.KPIConfig.ReferralValidationDays, g.now())
	return rule, Evaluate(facts, rule.KPIConfig), nil
}

// Generate evaluates and persists the snapshot for (trainer, month).
// Regenerating an open snapshot overwrites it; a finalized snapshot is
// rejected before any computation runs.
func (g *Generator) Generate(ctx context.Context, trainerID TrainerID, month Month) (*PerformanceSnapshot, error) {
	existing, err := g.Snapshots.GetSnapshot(ctx, trainerID, month)
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}
	if existing != nil && existing.IsFinalized {
		return nil, &FinalizedSnapshotError{TrainerID: trainerID, Month: month}
	}

	rule, ev, err := g.Evaluate(ctx, trainerID, month)
	if err != nil {
		return nil, err
	}

	snap := snapshotFrom(trainerID, month, *rule, ev, g.now())
	if existing != nil {
		snap.ID = existing.ID
	}
	if err := g.Snapshots.UpsertSnapshot(ctx, snap); err != nil {
		return nil, fmt.Errorf("persist snapshot: %w", err)
	}
	return &snap, nil
}

// Finalize marks the snapshot immutable.
func (g *Generator) Finalize(ctx context.Context, trainerID TrainerID, month Month, by string) error {
	return g.Snapshots.FinalizeSnapshot(ctx, trainerID, month, by)
}

// =============================================================================
// BULK GENERATION - Per-trainer failure isolation
// =============================================================================

// TrainerFailure records one trainer whose generation failed.
type TrainerFailure struct {
	TrainerID TrainerID
	Err       error
}

// BulkResult summarizes a GenerateAll run.
type BulkResult struct {
	Month     Month
	Generated int
	Failed    int
	Failures  []TrainerFailure
}

// GenerateAll generates snapshots for every active trainer. Each trainer
// is independent: failures are collected, never propagated to siblings.
func (g *Generator) GenerateAll(ctx context.Context, month Month) (*BulkResult, error) {
	trainers, err := g.Roster.ListTrainers(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("list trainers: %w", err)
	}

	result := &BulkResult{Month: month}

	var wg sync.WaitGroup
	var mu sync.Mutex
	for _, t := range trainers {
		wg.Add(1)
		go func(id TrainerID) {
			defer wg.Done()
			_, genErr := g.Generate(ctx, id, month)
			mu.Lock()
			defer mu.Unlock()
			if genErr != nil {
				result.Failed++
				result.Failures = append(result.Failures, TrainerFailure{TrainerID: id, Err: genErr})
				return
			}
			result.Generated++
		}(t.ID)
	}
	wg.Wait()

	return result, nil
}
