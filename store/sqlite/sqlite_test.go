package sqlite_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/playbook/studio-engine/assessment"
	"github.com/playbook/studio-engine/engine"
	"github.com/playbook/studio-engine/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestStore(t *testing.T) *sqlite.Store {
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func testRule(name string, active bool) engine.GameRule {
	return engine.GameRule{
		Name:            name,
		CalculationType: engine.CalculationWeighted,
		BaseReward:      decimal.NewFromInt(500),
		IsActive:        active,
		EffectiveFrom:   time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC),
		KPIConfig: engine.KPIConfig{
			MinPortfolioSize:       5,
			ReferralValidationDays: 30,
			Retention:              engine.KPIBlock{Enabled: true, Target: decimal.NewFromInt(90), Weight: 40, FixedValue: decimal.NewFromInt(200)},
			Referrals:              engine.KPIBlock{Enabled: true, Target: decimal.NewFromInt(1), Weight: 30, FixedValue: decimal.NewFromInt(150)},
			Management:             engine.KPIBlock{Enabled: true, Target: decimal.NewFromInt(75), Weight: 30, FixedValue: decimal.NewFromInt(150)},
		},
	}
}

func testSnapshot(trainerID engine.TrainerID, month engine.Month) engine.PerformanceSnapshot {
	return engine.PerformanceSnapshot{
		TrainerID:      trainerID,
		Month:          month,
		GameRuleID:     "rule-1",
		StudentsStart:  10,
		StudentsEnd:    9,
		Cancellations:  1,
		RetentionRate:  decimal.NewFromInt(90),
		RetentionAchieved: true,
		RetentionEligible: true,
		ManagementRate: decimal.NewFromInt(80),
		RewardAmount:   decimal.RequireFromString("350.00"),
	}
}

func march() engine.Month { return engine.NewMonth(2026, time.March) }

// =============================================================================
// RULE STORE
// =============================================================================

func TestStore_RuleRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	rule := testRule("Season 2026", true)
	rule.ID = "rule-1"
	require.NoError(t, store.CreateRule(ctx, rule))

	got, err := store.GetRule(ctx, "rule-1")
	require.NoError(t, err)

	assert.Equal(t, "Season 2026", got.Name)
	assert.Equal(t, engine.CalculationWeighted, got.CalculationType)
	assert.True(t, got.BaseReward.Equal(decimal.NewFromInt(500)), "base reward should survive the round trip")
	assert.True(t, got.KPIConfig.Retention.Target.Equal(decimal.NewFromInt(90)))
	assert.Equal(t, 40, got.KPIConfig.Retention.Weight)
	assert.Equal(t, 5, got.KPIConfig.MinPortfolioSize)
	assert.True(t, got.IsActive)
	assert.Nil(t, got.EffectiveUntil, "a current rule has no end to its effective window")
}

func TestStore_Rule_EffectiveUntilRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	until := time.Date(2026, time.June, 30, 0, 0, 0, 0, time.UTC)
	rule := testRule("Closed Season", false)
	rule.ID = "rule-closed"
	rule.EffectiveUntil = &until
	require.NoError(t, store.CreateRule(ctx, rule))

	got, err := store.GetRule(ctx, "rule-closed")
	require.NoError(t, err)
	require.NotNil(t, got.EffectiveUntil)
	assert.Equal(t, "2026-06-30", got.EffectiveUntil.Format("2006-01-02"))
}

func TestStore_GetActiveRule_NoneIsNilNil(t *testing.T) {
	store := newTestStore(t)

	rule, err := store.GetActiveRule(context.Background())
	assert.NoError(t, err)
	assert.Nil(t, rule, "absent active rule is not an error")
}

func TestStore_SingleActiveRuleInvariant(t *testing.T) {
	// GIVEN: An active rule
	// WHEN: Creating a second active rule, then switching back
	// THEN: Exactly one rule is active at every point

	store := newTestStore(t)
	ctx := context.Background()

	r1 := testRule("v1", true)
	r1.ID = "rule-1"
	require.NoError(t, store.CreateRule(ctx, r1))

	r2 := testRule("v2", true)
	r2.ID = "rule-2"
	require.NoError(t, store.CreateRule(ctx, r2))

	active, err := store.GetActiveRule(ctx)
	require.NoError(t, err)
	assert.Equal(t, engine.RuleID("rule-2"), active.ID)

	old, err := store.GetRule(ctx, "rule-1")
	require.NoError(t, err)
	assert.False(t, old.IsActive, "creating an active rule must deactivate the previous one")
	assert.NotNil(t, old.EffectiveUntil, "supersession must close the old rule's effective window")

	require.NoError(t, store.ActivateRule(ctx, "rule-1"))
	active, err = store.GetActiveRule(ctx)
	require.NoError(t, err)
	assert.Equal(t, engine.RuleID("rule-1"), active.ID)
	assert.Nil(t, active.EffectiveUntil, "re-activation reopens the effective window")

	superseded, err := store.GetRule(ctx, "rule-2")
	require.NoError(t, err)
	assert.NotNil(t, superseded.EffectiveUntil)

	rules, err := store.ListRules(ctx)
	require.NoError(t, err)
	activeCount := 0
	for _, r := range rules {
		if r.IsActive {
			activeCount++
		}
	}
	assert.Equal(t, 1, activeCount)
}

func TestStore_ActivateRule_Unknown(t *testing.T) {
	store := newTestStore(t)

	err := store.ActivateRule(context.Background(), "nope")
	assert.ErrorIs(t, err, engine.ErrRuleNotFound)
}

func TestStore_ListRules_NewestFirst(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	first := testRule("v1", false)
	first.ID = "rule-1"
	first.CreatedAt = time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, store.CreateRule(ctx, first))

	second := testRule("v2", true)
	second.ID = "rule-2"
	second.CreatedAt = time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, store.CreateRule(ctx, second))

	rules, err := store.ListRules(ctx)
	require.NoError(t, err)
	require.Len(t, rules, 2)
	assert.Equal(t, engine.RuleID("rule-2"), rules[0].ID)
}

// =============================================================================
// TRAINERS AND STUDENTS
// =============================================================================

func TestStore_TrainerRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	id, err := store.SaveTrainer(ctx, engine.Trainer{
		Name:      "Ana",
		Email:     "ana@studio.example",
		StartDate: time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC),
		IsActive:  true,
	})
	require.NoError(t, err)
	require.NotEmpty(t, id, "store should assign an ID")

	got, err := store.GetTrainer(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Ana", got.Name)
	assert.Equal(t, "2025-01-15", got.StartDate.Format("2006-01-02"))

	_, err = store.GetTrainer(ctx, "missing")
	assert.ErrorIs(t, err, engine.ErrTrainerNotFound)
}

func TestStore_ListTrainers_ActiveOnly(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.SaveTrainer(ctx, engine.Trainer{ID: "t1", Name: "Active", IsActive: true})
	require.NoError(t, err)
	_, err = store.SaveTrainer(ctx, engine.Trainer{ID: "t2", Name: "Retired", IsActive: false})
	require.NoError(t, err)

	active, err := store.ListTrainers(ctx, true)
	require.NoError(t, err)
	assert.Len(t, active, 1)

	all, err := store.ListTrainers(ctx, false)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestStore_StudentQueries(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	_, err := store.SaveStudent(ctx, engine.Student{
		ID: "s1", FullName: "Owned", TrainerID: "t1",
		Status: engine.StatusActive, Origin: engine.OriginOrganic, StartDate: start,
	})
	require.NoError(t, err)
	_, err = store.SaveStudent(ctx, engine.Student{
		ID: "s2", FullName: "Referred", TrainerID: "t2",
		Status: engine.StatusActive, Origin: engine.OriginReferral,
		ReferredBy: "t1", StartDate: start,
	})
	require.NoError(t, err)
	// Marketing student that happens to carry a referred_by value:
	// must not count as a referral.
	_, err = store.SaveStudent(ctx, engine.Student{
		ID: "s3", FullName: "Marketing", TrainerID: "t2",
		Status: engine.StatusActive, Origin: engine.OriginMarketing,
		ReferredBy: "t1", StartDate: start,
	})
	require.NoError(t, err)

	owned, err := store.StudentsByTrainer(ctx, "t1")
	require.NoError(t, err)
	require.Len(t, owned, 1)
	assert.Equal(t, engine.StudentID("s1"), owned[0].ID)

	referred, err := store.StudentsReferredBy(ctx, "t1")
	require.NoError(t, err)
	require.Len(t, referred, 1)
	assert.Equal(t, engine.StudentID("s2"), referred[0].ID)
}

func TestStore_ListStudents_ExcludesArchivedByDefault(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.SaveStudent(ctx, engine.Student{
		ID: "s1", FullName: "Visible", TrainerID: "t1",
		Status: engine.StatusActive, Origin: engine.OriginOrganic,
		StartDate: time.Now().UTC(),
	})
	require.NoError(t, err)
	_, err = store.SaveStudent(ctx, engine.Student{
		ID: "s2", FullName: "Hidden", TrainerID: "t1",
		Status: engine.StatusActive, Origin: engine.OriginOrganic,
		StartDate: time.Now().UTC(), IsArchived: true,
	})
	require.NoError(t, err)

	visible, err := store.ListStudents(ctx, false)
	require.NoError(t, err)
	assert.Len(t, visible, 1)

	all, err := store.ListStudents(ctx, true)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestStore_StudentEvents_AppendAndRead(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	ev := engine.StudentEvent{
		StudentID: "s1",
		Type:      engine.EventStatusChange,
		OldValue:  map[string]string{"status": "active"},
		NewValue:  map[string]string{"status": "cancelled", "end_date": "2026-03-10"},
		EventDate: time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC),
		CreatedBy: "manager",
	}
	require.NoError(t, store.AppendEvent(ctx, ev))

	events, err := store.EventsByStudent(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, engine.EventStatusChange, events[0].Type)
	assert.Equal(t, "cancelled", events[0].NewValue["status"])
	assert.Equal(t, "2026-03-10", events[0].NewValue["end_date"])
}

// =============================================================================
// MANAGEMENT RECORDS
// =============================================================================

func TestStore_ManagementRecord_UpsertPerMonth(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	record := engine.ManagementRecord{
		StudentID:            "s1",
		TrainerID:            "t1",
		Month:                march(),
		HasInitialAssessment: true,
	}
	require.NoError(t, store.UpsertManagementRecord(ctx, record))

	// Same student-month again with more flags: update, not duplicate.
	record.HasReassessment = true
	record.HasDocumentedResult = true
	require.NoError(t, store.UpsertManagementRecord(ctx, record))

	records, err := store.ManagementRecords(ctx, "t1", march())
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.True(t, records[0].Complete())
}

// =============================================================================
// SNAPSHOTS - The finalization guard lives in the storage layer
// =============================================================================

func TestStore_Snapshot_UpsertOverwritesOpenRow(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.UpsertSnapshot(ctx, testSnapshot("t1", march())))

	updated := testSnapshot("t1", march())
	updated.RewardAmount = decimal.RequireFromString("500.00")
	require.NoError(t, store.UpsertSnapshot(ctx, updated))

	snaps, err := store.ListSnapshots(ctx, march())
	require.NoError(t, err)
	require.Len(t, snaps, 1, "upsert must not duplicate the trainer-month row")
	assert.True(t, snaps[0].RewardAmount.Equal(decimal.RequireFromString("500.00")))
}

func TestStore_Snapshot_FinalizedRowRejectsUpsert(t *testing.T) {
	// GIVEN: A finalized snapshot
	// WHEN: Any caller tries to overwrite it
	// THEN: The conditional update refuses at the SQL level

	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.UpsertSnapshot(ctx, testSnapshot("t1", march())))
	require.NoError(t, store.FinalizeSnapshot(ctx, "t1", march(), "manager"))

	// Different values, so a silent overwrite would be visible below.
	intruder := testSnapshot("t1", march())
	intruder.RewardAmount = decimal.RequireFromString("999.00")
	intruder.StudentsEnd = 2
	err := store.UpsertSnapshot(ctx, intruder)
	var finalized *engine.FinalizedSnapshotError
	require.ErrorAs(t, err, &finalized)
	assert.Equal(t, engine.TrainerID("t1"), finalized.TrainerID)
	assert.True(t, engine.IsConflict(err))

	got, err := store.GetSnapshot(ctx, "t1", march())
	require.NoError(t, err)
	assert.True(t, got.IsFinalized)
	assert.Equal(t, "manager", got.FinalizedBy)
	assert.NotNil(t, got.FinalizedAt)
	assert.True(t, got.RewardAmount.Equal(decimal.RequireFromString("350.00")),
		"finalized values must stay exactly as finalized")
	assert.Equal(t, 9, got.StudentsEnd)
}

func TestStore_FinalizeSnapshot_Errors(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	err := store.FinalizeSnapshot(ctx, "t1", march(), "manager")
	assert.ErrorIs(t, err, engine.ErrSnapshotNotFound)

	require.NoError(t, store.UpsertSnapshot(ctx, testSnapshot("t1", march())))
	require.NoError(t, store.FinalizeSnapshot(ctx, "t1", march(), "manager"))

	err = store.FinalizeSnapshot(ctx, "t1", march(), "manager")
	assert.ErrorIs(t, err, engine.ErrSnapshotFinalized)
}

func TestStore_ListTrainerSnapshots_NewestMonthFirst(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.UpsertSnapshot(ctx, testSnapshot("t1", engine.NewMonth(2026, time.January))))
	require.NoError(t, store.UpsertSnapshot(ctx, testSnapshot("t1", march())))
	require.NoError(t, store.UpsertSnapshot(ctx, testSnapshot("t2", march())))

	snaps, err := store.ListTrainerSnapshots(ctx, "t1")
	require.NoError(t, err)
	require.Len(t, snaps, 2)
	assert.Equal(t, "2026-03", snaps[0].Month.String())
	assert.Equal(t, "2026-01", snaps[1].Month.String())
}

// =============================================================================
// PROTOCOLS AND ASSESSMENTS
// =============================================================================

func seedProtocol(t *testing.T, store *sqlite.Store) assessment.Protocol {
	t.Helper()
	protocol := assessment.Protocol{
		ID:     "p1",
		Name:   "Body Composition",
		Pillar: assessment.PillarComposition,
		Metrics: []assessment.Metric{
			{ID: "m1", Name: "Weight", Unit: "kg", SortOrder: 0},
			{ID: "m2", Name: "Body Fat", Unit: "%", SortOrder: 1},
		},
	}
	_, err := store.SaveProtocol(context.Background(), protocol)
	require.NoError(t, err)
	return protocol
}

func TestStore_Protocol_RoundTrip(t *testing.T) {
	store := newTestStore(t)
	seedProtocol(t, store)

	protocols, err := store.ListProtocols(context.Background(), false)
	require.NoError(t, err)
	require.Len(t, protocols, 1)
	require.Len(t, protocols[0].Metrics, 2)
	assert.Equal(t, "Weight", protocols[0].Metrics[0].Name)
	assert.Equal(t, assessment.PillarComposition, protocols[0].Pillar)
}

func TestStore_Protocol_UnitChangeBlockedOnceUsed(t *testing.T) {
	// GIVEN: A metric with recorded results
	// WHEN: An update tries to change its unit
	// THEN: Rejected with ErrMetricInUse; renaming stays allowed

	store := newTestStore(t)
	ctx := context.Background()
	protocol := seedProtocol(t, store)

	_, err := store.SaveAssessment(ctx, assessment.Assessment{
		StudentID:   "s1",
		ProtocolID:  protocol.ID,
		PerformedAt: time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC),
		Results:     []assessment.Result{{MetricID: "m1", Value: 80.5}},
	})
	require.NoError(t, err)

	protocol.Metrics[0].Unit = "lb"
	_, err = store.SaveProtocol(ctx, protocol)
	assert.ErrorIs(t, err, engine.ErrMetricInUse)
	assert.True(t, engine.IsConflict(err))

	protocol.Metrics[0].Unit = "kg"
	protocol.Metrics[0].Name = "Body Weight"
	_, err = store.SaveProtocol(ctx, protocol)
	assert.NoError(t, err, "renaming a used metric is fine")

	// The unused metric's unit can still change.
	protocol.Metrics[1].Unit = "pct"
	_, err = store.SaveProtocol(ctx, protocol)
	assert.NoError(t, err)
}

func TestStore_Assessments_DenormalizedHistory(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	protocol := seedProtocol(t, store)

	for i, day := range []int{5, 20} {
		_, err := store.SaveAssessment(ctx, assessment.Assessment{
			StudentID:   "s1",
			ProtocolID:  protocol.ID,
			PerformedAt: time.Date(2026, 3, day, 0, 0, 0, 0, time.UTC),
			Results: []assessment.Result{
				{MetricID: "m1", Value: 82.0 - float64(i)},
				{MetricID: "m2", Value: 24.0 - float64(i)},
			},
		})
		require.NoError(t, err)
	}

	history, err := store.ListByStudent(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, history, 2)

	// Newest first, with protocol and metric names joined in.
	latest := history[0]
	assert.Equal(t, "2026-03-20", latest.PerformedAt.Format("2006-01-02"))
	assert.Equal(t, "Body Composition", latest.ProtocolName)
	assert.Equal(t, assessment.PillarComposition, latest.Pillar)
	require.Len(t, latest.Results, 2)
	assert.Equal(t, "Weight", latest.Results[0].MetricName)
	assert.Equal(t, "kg", latest.Results[0].Unit)
}

// =============================================================================
// RESET
// =============================================================================

func TestStore_Reset_WipesEverything(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	rule := testRule("v1", true)
	rule.ID = "rule-1"
	require.NoError(t, store.CreateRule(ctx, rule))
	_, err := store.SaveTrainer(ctx, engine.Trainer{ID: "t1", Name: "Ana", IsActive: true})
	require.NoError(t, err)
	require.NoError(t, store.UpsertSnapshot(ctx, testSnapshot("t1", march())))

	require.NoError(t, store.Reset(ctx))

	active, err := store.GetActiveRule(ctx)
	require.NoError(t, err)
	assert.Nil(t, active)
	trainers, err := store.ListTrainers(ctx, false)
	require.NoError(t, err)
	assert.Empty(t, trainers)
	snap, err := store.GetSnapshot(ctx, "t1", march())
	require.NoError(t, err)
	assert.Nil(t, snap)
}
