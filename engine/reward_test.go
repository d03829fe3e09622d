package engine_test

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/playbook/studio-engine/engine"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

// achieved builds an evaluation where the given KPIs are enabled and achieved.
func achieved(retention, referrals, management bool) engine.Evaluation {
	return engine.Evaluation{
		Retention:  engine.RetentionResult{Enabled: true, Eligible: true, Achieved: retention},
		Referrals:  engine.ReferralsResult{Enabled: true, Achieved: referrals},
		Management: engine.ManagementResult{Enabled: true, Achieved: management},
	}
}

func weightedRule(base int64) engine.GameRule {
	return engine.GameRule{
		Name:            "test weighted",
		CalculationType: engine.CalculationWeighted,
		BaseReward:      d(base),
		KPIConfig:       testConfig(),
	}
}

func fixedRule() engine.GameRule {
	return engine.GameRule{
		Name:            "test fixed",
		CalculationType: engine.CalculationFixed,
		KPIConfig:       testConfig(),
	}
}

// =============================================================================
// FIXED STRATEGY
// =============================================================================

func TestComputeReward_Fixed_SumsAchievedValues(t *testing.T) {
	// GIVEN: Fixed values 200/150/150, all three KPIs achieved
	// WHEN: Computing the reward
	// THEN: The payouts simply add up

	got := engine.ComputeReward(fixedRule(), achieved(true, true, true))
	if !got.Equal(d(500)) {
		t.Errorf("reward = %s, want 500", got)
	}
}

func TestComputeReward_Fixed_OnlyAchievedKPIsPay(t *testing.T) {
	got := engine.ComputeReward(fixedRule(), achieved(true, false, false))
	if !got.Equal(d(200)) {
		t.Errorf("reward = %s, want 200", got)
	}
}

func TestComputeReward_Fixed_NothingAchieved(t *testing.T) {
	got := engine.ComputeReward(fixedRule(), achieved(false, false, false))
	if !got.Equal(decimal.Zero) {
		t.Errorf("reward = %s, want 0", got)
	}
}

// =============================================================================
// WEIGHTED STRATEGY
// =============================================================================

func TestComputeReward_Weighted_FullAchievement(t *testing.T) {
	// Weights 40/30/30, base 500, everything achieved: full base.
	got := engine.ComputeReward(weightedRule(500), achieved(true, true, true))
	if !got.Equal(d(500)) {
		t.Errorf("reward = %s, want 500", got)
	}
}

func TestComputeReward_Weighted_PartialAchievement(t *testing.T) {
	// Retention (40) + management (30) achieved: 70% of 500.
	got := engine.ComputeReward(weightedRule(500), achieved(true, false, true))
	if !got.Equal(d(350)) {
		t.Errorf("reward = %s, want 350", got)
	}
}

func TestComputeReward_Weighted_NothingAchieved(t *testing.T) {
	got := engine.ComputeReward(weightedRule(500), achieved(false, false, false))
	if !got.Equal(decimal.Zero) {
		t.Errorf("reward = %s, want 0", got)
	}
}

func TestComputeReward_Weighted_ComputesMalformedWeightsAsIs(t *testing.T) {
	// GIVEN: Weights summing to 110 (weight-sum validation is the
	//        factory's job, not the engine's)
	// WHEN: Everything is achieved
	// THEN: The engine pays 110% of base rather than guessing

	rule := weightedRule(500)
	rule.KPIConfig.Retention.Weight = 50

	got := engine.ComputeReward(rule, achieved(true, true, true))
	if !got.Equal(d(550)) {
		t.Errorf("reward = %s, want 550", got)
	}
}

// =============================================================================
// ROUNDING
// =============================================================================

func TestRoundCurrency_TwoDecimalPlaces(t *testing.T) {
	// Rounding happens only at the persistence boundary; strategies
	// return full precision.
	rule := weightedRule(1000)
	rule.KPIConfig.Retention.Weight = 33
	rule.KPIConfig.Referrals.Weight = 33
	rule.KPIConfig.Management.Weight = 33

	raw := engine.ComputeReward(rule, achieved(true, false, false))
	if !raw.Equal(d(330)) {
		t.Fatalf("raw reward = %s, want 330", raw)
	}

	got := engine.RoundCurrency(decimal.RequireFromString("123.456"))
	if !got.Equal(decimal.RequireFromString("123.46")) {
		t.Errorf("RoundCurrency(123.456) = %s, want 123.46", got)
	}
}
