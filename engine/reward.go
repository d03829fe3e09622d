/*
reward.go - Reward computation

PURPOSE:
  Applies a rule's calculation strategy to an evaluation and produces
  the monetary reward. The only file that touches money math beyond
  the strategies themselves.

ROUNDING POLICY:
  Strategies return exact decimals. RoundCurrency (2 dp, half-up) is
  applied once, at the persistence/display boundary, never mid-chain.

SEE ALSO:
  - rule.go: The CalculationStrategy implementations
  - snapshot.go: Persists the rounded reward on the snapshot
*/
package engine

import "github.com/shopspring/decimal"

// ComputeReward applies the rule's strategy to the evaluation.
// The result is exact; round with RoundCurrency before persisting.
func ComputeReward(rule GameRule, ev Evaluation) decimal.Decimal {
	return rule.Strategy().Reward(ev)
}

// RoundCurrency rounds a monetary amount to 2 decimal places.
func RoundCurrency(amount decimal.Decimal) decimal.Decimal {
	return amount.Round(2)
}
