/*
rule.go - Versioned incentive rules and calculation strategies

PURPOSE:
  Defines the GameRule: the complete, versioned configuration governing
  how trainers are evaluated and rewarded for a month. Exactly one rule
  is active at any time; activating a new rule never rewrites history,
  because every snapshot records the rule version that produced it.

KEY CONCEPTS:
  - GameRule: Named, effective-dated configuration version
  - KPIConfig: Per-KPI targets, weights, fixed values, and global gates
  - CalculationStrategy: Tagged union - fixed payouts vs weighted share
  - Single-active invariant: Enforced by the store, not by this file

CALCULATION STRATEGIES:
  Fixed:
    - Each achieved KPI pays its own configured amount
    - Reward = sum of fixed_value over enabled, achieved KPIs

  Weighted:
    - Each KPI carries a weight; achieved weights earn their share of
      a base amount
    - Reward = base * (sum of achieved weights) / 100
    - The engine computes whatever weights it is given; weight-sum
      validation is an authoring concern (factory package)

EXAMPLE:
  rule := GameRule{
      Name:            "Season 2026",
      CalculationType: CalculationWeighted,
      BaseReward:      decimal.NewFromInt(500),
      KPIConfig: KPIConfig{
          MinPortfolioSize:       5,
          ReferralValidationDays: 30,
          Retention:  KPIBlock{Enabled: true, Target: decimal.NewFromInt(90), Weight: 40},
          Referrals:  KPIBlock{Enabled: true, Target: decimal.NewFromInt(1), Weight: 30},
          Management: KPIBlock{Enabled: true, Target: decimal.NewFromInt(75), Weight: 30},
      },
  }

SEE ALSO:
  - kpi.go: Consumes KPIConfig to evaluate achievement
  - reward.go: Applies the CalculationStrategy to an Evaluation
  - factory/rule.go: Authoring defaults and validation
*/
package engine

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// KPI IDENTIFIERS
// =============================================================================

// KPI identifies one of the three evaluated performance indicators.
type KPI string

const (
	KPIRetention  KPI = "retention"
	KPIReferrals  KPI = "referrals"
	KPIManagement KPI = "management"
)

// AllKPIs is the canonical evaluation order.
var AllKPIs = []KPI{KPIRetention, KPIReferrals, KPIManagement}

// =============================================================================
// KPI CONFIGURATION
// =============================================================================

// KPIBlock configures a single KPI within a rule.
// Weight is used by the weighted strategy, FixedValue by the fixed strategy;
// both are stored so a rule can be switched between strategies without loss.
type KPIBlock struct {
	Enabled    bool
	Target     decimal.Decimal
	Weight     int
	FixedValue decimal.Decimal
}

// KPIConfig bundles the per-KPI blocks with the global evaluation gates.
type KPIConfig struct {
	// MinPortfolioSize gates retention: trainers with fewer students at the
	// start of the month are ineligible (not failed - ineligible).
	MinPortfolioSize int

	// ReferralValidationDays is how long a referred student must remain
	// enrolled before the referral counts as validated.
	ReferralValidationDays int

	Retention  KPIBlock
	Referrals  KPIBlock
	Management KPIBlock
}

// Block returns the configuration for the given KPI.
func (c KPIConfig) Block(k KPI) KPIBlock {
	switch k {
	case KPIRetention:
		return c.Retention
	case KPIReferrals:
		return c.Referrals
	case KPIManagement:
		return c.Management
	}
	return KPIBlock{}
}

// =============================================================================
// GAME RULE - Versioned configuration
// =============================================================================

// CalculationType selects the reward strategy.
type CalculationType string

const (
	CalculationFixed    CalculationType = "fixed"
	CalculationWeighted CalculationType = "weighted"
)

// GameRule is one version of the incentive configuration. Rules are never
// edited in place: a change is a new rule, activated atomically.
// EffectiveUntil is nil while the rule is current; the store stamps it
// when the rule is superseded by another activation.
type GameRule struct {
	ID              RuleID
	Name            string
	Description     string
	CalculationType CalculationType
	BaseReward      decimal.Decimal // weighted strategy only
	KPIConfig       KPIConfig
	IsActive        bool
	EffectiveFrom   time.Time
	EffectiveUntil  *time.Time
	CreatedAt       time.Time
	CreatedBy       string
}

// ShouldActivate reports whether the rule's effective date has arrived.
func (r GameRule) ShouldActivate(today time.Time) bool {
	return !r.EffectiveFrom.After(today)
}

// =============================================================================
// CALCULATION STRATEGY - Tagged union over the two reward schemes
// =============================================================================

// CalculationStrategy turns an evaluation into a monetary reward.
// Implementations are pure; rounding happens at persistence, not here.
type CalculationStrategy interface {
	// Reward computes the payout for the evaluation.
	Reward(ev Evaluation) decimal.Decimal
}

// FixedStrategy pays a configured amount per achieved KPI.
type FixedStrategy struct {
	Values map[KPI]decimal.Decimal
}

func (s FixedStrategy) Reward(ev Evaluation) decimal.Decimal {
	total := decimal.Zero
	for _, k := range AllKPIs {
		if ev.Rewardable(k) {
			total = total.Add(s.Values[k])
		}
	}
	return total
}

// WeightedStrategy pays the achieved share of a base amount.
type WeightedStrategy struct {
	Weights map[KPI]int
	Base    decimal.Decimal
}

func (s WeightedStrategy) Reward(ev Evaluation) decimal.Decimal {
	achieved := 0
	for _, k := range AllKPIs {
		if ev.Rewardable(k) {
			achieved += s.Weights[k]
		}
	}
	return s.Base.Mul(decimal.NewFromInt(int64(achieved))).Div(decimal.NewFromInt(100))
}

// Strategy materializes the rule's calculation strategy.
func (r GameRule) Strategy() CalculationStrategy {
	cfg := r.KPIConfig
	switch r.CalculationType {
	case CalculationFixed:
		return FixedStrategy{Values: map[KPI]decimal.Decimal{
			KPIRetention:  cfg.Retention.FixedValue,
			KPIReferrals:  cfg.Referrals.FixedValue,
			KPIManagement: cfg.Management.FixedValue,
		}}
	default:
		return WeightedStrategy{
			Weights: map[KPI]int{
				KPIRetention:  cfg.Retention.Weight,
				KPIReferrals:  cfg.Referrals.Weight,
				KPIManagement: cfg.Management.Weight,
			},
			Base: r.BaseReward,
		}
	}
}
