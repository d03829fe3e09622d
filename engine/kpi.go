/*
kpi.go - Per-KPI evaluation

PURPOSE:
  Turns roster facts and a KPI configuration into per-KPI results:
  the measured value, the target, and whether the KPI was achieved.
  Pure computation - no storage, no clock, no side effects.

THE THREE KPIS:
  Retention:
    - rate = (students_start - cancellations) / students_start * 100
    - Gated by MinPortfolioSize: below the gate the trainer is
      INELIGIBLE, which is distinct from failing the target
    - achieved = eligible AND rate >= target

  Referrals:
    - count of validated referrals attributed to the month
    - A referral validates once the referred student has remained
      enrolled for ReferralValidationDays; until then it is pending
    - achieved = count >= target

  Management:
    - rate = managed / portfolio * 100, where "managed" means the
      month's result-management record is fully complete
    - achieved = rate >= target

EDGE CASES:
  - Zero students at month start: retention rate is 0, not an error
  - Empty portfolio: management rate is 0
  - A disabled KPI still carries its measured values for display, but
    can never be achieved or rewarded

SEE ALSO:
  - roster.go: Produces the RosterFacts consumed here
  - reward.go: Consumes the Evaluation produced here
*/
package engine

import "github.com/shopspring/decimal"

// =============================================================================
// PER-KPI RESULTS
// =============================================================================

// RetentionResult holds the retention measurement for one trainer-month.
type RetentionResult struct {
	StudentsStart int
	StudentsEnd   int
	Cancellations int
	Rate          decimal.Decimal
	Target        decimal.Decimal
	Eligible      bool
	Achieved      bool
	Enabled       bool
}

// ReferralsResult holds the referral count for one trainer-month.
// Pending referrals have not yet passed the validation window.
type ReferralsResult struct {
	Count    int
	Pending  int
	Target   decimal.Decimal
	Achieved bool
	Enabled  bool
}

// ManagementResult holds the result-management rate for one trainer-month.
type ManagementResult struct {
	PortfolioSize int
	ManagedCount  int
	Rate          decimal.Decimal
	Target        decimal.Decimal
	Achieved      bool
	Enabled       bool
}

// Evaluation is the complete KPI picture for one trainer-month.
type Evaluation struct {
	Retention  RetentionResult
	Referrals  ReferralsResult
	Management ManagementResult
}

// Rewardable reports whether the KPI contributes to the reward:
// it must be enabled and achieved. Retention ineligibility is already
// folded into Achieved, so no separate check is needed here.
func (ev Evaluation) Rewardable(k KPI) bool {
	switch k {
	case KPIRetention:
		return ev.Retention.Enabled && ev.Retention.Achieved
	case KPIReferrals:
		return ev.Referrals.Enabled && ev.Referrals.Achieved
	case KPIManagement:
		return ev.Management.Enabled && ev.Management.Achieved
	}
	return false
}

// =============================================================================
// EVALUATION
// =============================================================================

var hundred = decimal.NewFromInt(100)

// Evaluate computes all three KPI results from roster facts under cfg.
func Evaluate(facts RosterFacts, cfg KPIConfig) Evaluation {
	return Evaluation{
		Retention:  evaluateRetention(facts, cfg),
		Referrals:  evaluateReferrals(facts, cfg.Referrals),
		Management: evaluateManagement(facts, cfg.Management),
	}
}

func evaluateRetention(facts RosterFacts, cfg KPIConfig) RetentionResult {
	block := cfg.Retention
	r := RetentionResult{
		StudentsStart: facts.StudentsStart,
		StudentsEnd:   facts.StudentsEnd,
		Cancellations: facts.Cancellations,
		Target:        block.Target,
		Enabled:       block.Enabled,
	}

	r.Eligible = facts.StudentsStart >= cfg.MinPortfolioSize

	if facts.StudentsStart > 0 {
		retained := decimal.NewFromInt(int64(facts.StudentsStart - facts.Cancellations))
		r.Rate = retained.Div(decimal.NewFromInt(int64(facts.StudentsStart))).Mul(hundred)
	} else {
		r.Rate = decimal.Zero
	}

	r.Achieved = block.Enabled && r.Eligible && r.Rate.GreaterThanOrEqual(block.Target)
	return r
}

func evaluateReferrals(facts RosterFacts, block KPIBlock) ReferralsResult {
	r := ReferralsResult{
		Count:   facts.ReferralsCount,
		Pending: facts.ReferralsPending,
		Target:  block.Target,
		Enabled: block.Enabled,
	}
	r.Achieved = block.Enabled &&
		decimal.NewFromInt(int64(facts.ReferralsCount)).GreaterThanOrEqual(block.Target)
	return r
}

func evaluateManagement(facts RosterFacts, block KPIBlock) ManagementResult {
	r := ManagementResult{
		PortfolioSize: facts.PortfolioSize,
		ManagedCount:  facts.ManagedCount,
		Target:        block.Target,
		Enabled:       block.Enabled,
	}

	if facts.PortfolioSize > 0 {
		r.Rate = decimal.NewFromInt(int64(facts.ManagedCount)).
			Div(decimal.NewFromInt(int64(facts.PortfolioSize))).Mul(hundred)
	} else {
		r.Rate = decimal.Zero
	}

	r.Achieved = block.Enabled && r.Rate.GreaterThanOrEqual(block.Target)
	return r
}
