/*
Package factory provides JSON to Go rule conversion.

PURPOSE:
  Converts JSON rule definitions into engine.GameRule values. This
  enables rule configuration without code changes - studio managers can
  author rules in JSON through the admin surface, and the factory
  applies defaults, validates, and creates the proper Go structs.

WHY JSON?
  - Non-developers can author rule versions
  - Easy integration with admin UI
  - Database storage of kpi_config

JSON SCHEMA:
  {
    "name": "Season 2026",
    "calculation_type": "weighted",
    "base_reward": 500,
    "effective_from": "2026-01-01",
    "kpi_config": {
      "min_portfolio_size": 5,
      "referral_validation_days": 30,
      "retention":  {"enabled": true, "target": 90, "weight": 40, "fixed_value": 200},
      "referrals":  {"enabled": true, "target": 1,  "weight": 30, "fixed_value": 150},
      "management": {"enabled": true, "target": 75, "weight": 30, "fixed_value": 150}
    }
  }

VALIDATION:
  Weighted rules must have enabled weights summing to exactly 100.
  This is enforced HERE, at authoring time - the engine itself computes
  whatever configuration it is handed.

DEFAULTS:
  Omitted fields fall back to the standard configuration: base 500,
  min portfolio 5, validation window 30 days, targets 90/1/75,
  weights 40/30/30, fixed values 200/150/150.

SEE ALSO:
  - engine/rule.go: GameRule type definition
  - api/handlers.go: Rule creation endpoint using this factory
*/
package factory

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/playbook/studio-engine/engine"
)

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

// RuleJSON is the JSON representation of a game rule.
type RuleJSON struct {
	ID              string         `json:"id,omitempty"`
	Name            string         `json:"name"`
	Description     string         `json:"description,omitempty"`
	CalculationType string         `json:"calculation_type,omitempty"` // fixed | weighted
	BaseReward      *float64       `json:"base_reward,omitempty"`
	EffectiveFrom   string         `json:"effective_from,omitempty"`  // 2006-01-02
	EffectiveUntil  string         `json:"effective_until,omitempty"` // set when superseded
	CreatedBy       string         `json:"created_by,omitempty"`
	KPIConfig       *KPIConfigJSON `json:"kpi_config,omitempty"`
}

// KPIConfigJSON mirrors the stored kpi_config document.
type KPIConfigJSON struct {
	MinPortfolioSize       *int          `json:"min_portfolio_size,omitempty"`
	ReferralValidationDays *int          `json:"referral_validation_days,omitempty"`
	Retention              *KPIBlockJSON `json:"retention,omitempty"`
	Referrals              *KPIBlockJSON `json:"referrals,omitempty"`
	Management             *KPIBlockJSON `json:"management,omitempty"`
}

// KPIBlockJSON configures one KPI.
type KPIBlockJSON struct {
	Enabled    *bool    `json:"enabled,omitempty"`
	Target     *float64 `json:"target,omitempty"`
	Weight     *int     `json:"weight,omitempty"`
	FixedValue *float64 `json:"fixed_value,omitempty"`
}

// =============================================================================
// DEFAULTS - The standard studio configuration
// =============================================================================

const (
	DefaultBaseReward             = 500
	DefaultMinPortfolioSize       = 5
	DefaultReferralValidationDays = 30
)

type blockDefaults struct {
	target     int64
	weight     int
	fixedValue int64
}

var kpiDefaults = map[engine.KPI]blockDefaults{
	engine.KPIRetention:  {target: 90, weight: 40, fixedValue: 200},
	engine.KPIReferrals:  {target: 1, weight: 30, fixedValue: 150},
	engine.KPIManagement: {target: 75, weight: 30, fixedValue: 150},
}

// =============================================================================
// RULE FACTORY
// =============================================================================

// RuleFactory converts JSON rules to engine.GameRule.
type RuleFactory struct{}

func NewRuleFactory() *RuleFactory {
	return &RuleFactory{}
}

// ParseRule parses a JSON string into a validated GameRule.
func (f *RuleFactory) ParseRule(jsonStr string) (*engine.GameRule, error) {
	var rj RuleJSON
	if err := json.Unmarshal([]byte(jsonStr), &rj); err != nil {
		return nil, fmt.Errorf("failed to parse rule JSON: %w", err)
	}
	return f.FromJSON(rj)
}

// FromJSON converts RuleJSON to a validated GameRule with defaults applied.
func (f *RuleFactory) FromJSON(rj RuleJSON) (*engine.GameRule, error) {
	if rj.Name == "" {
		return nil, &engine.RuleValidationError{Field: "name", Message: "required"}
	}

	calcType := engine.CalculationWeighted
	switch rj.CalculationType {
	case "", "weighted":
		// default
	case "fixed":
		calcType = engine.CalculationFixed
	default:
		return nil, &engine.RuleValidationError{
			Field:   "calculation_type",
			Message: fmt.Sprintf("unknown type %q", rj.CalculationType),
		}
	}

	base := decimal.NewFromInt(DefaultBaseReward)
	if rj.BaseReward != nil {
		base = decimal.NewFromFloat(*rj.BaseReward)
	}

	effectiveFrom := time.Now().UTC().Truncate(24 * time.Hour)
	if rj.EffectiveFrom != "" {
		t, err := time.Parse("2006-01-02", rj.EffectiveFrom)
		if err != nil {
			return nil, &engine.RuleValidationError{Field: "effective_from", Message: "use YYYY-MM-DD"}
		}
		effectiveFrom = t
	}

	var effectiveUntil *time.Time
	if rj.EffectiveUntil != "" {
		t, err := time.Parse("2006-01-02", rj.EffectiveUntil)
		if err != nil {
			return nil, &engine.RuleValidationError{Field: "effective_until", Message: "use YYYY-MM-DD"}
		}
		effectiveUntil = &t
	}

	cfg := engine.KPIConfig{
		MinPortfolioSize:       DefaultMinPortfolioSize,
		ReferralValidationDays: DefaultReferralValidationDays,
	}
	var cj KPIConfigJSON
	if rj.KPIConfig != nil {
		cj = *rj.KPIConfig
	}
	if cj.MinPortfolioSize != nil {
		cfg.MinPortfolioSize = *cj.MinPortfolioSize
	}
	if cj.ReferralValidationDays != nil {
		cfg.ReferralValidationDays = *cj.ReferralValidationDays
	}
	cfg.Retention = parseBlock(cj.Retention, kpiDefaults[engine.KPIRetention])
	cfg.Referrals = parseBlock(cj.Referrals, kpiDefaults[engine.KPIReferrals])
	cfg.Management = parseBlock(cj.Management, kpiDefaults[engine.KPIManagement])

	rule := &engine.GameRule{
		ID:              engine.RuleID(rj.ID),
		Name:            rj.Name,
		Description:     rj.Description,
		CalculationType: calcType,
		BaseReward:      base,
		KPIConfig:       cfg,
		EffectiveFrom:   effectiveFrom,
		EffectiveUntil:  effectiveUntil,
		CreatedBy:       rj.CreatedBy,
	}

	if err := Validate(rule); err != nil {
		return nil, err
	}
	return rule, nil
}

func parseBlock(bj *KPIBlockJSON, d blockDefaults) engine.KPIBlock {
	block := engine.KPIBlock{
		Enabled:    true,
		Target:     decimal.NewFromInt(d.target),
		Weight:     d.weight,
		FixedValue: decimal.NewFromInt(d.fixedValue),
	}
	if bj == nil {
		return block
	}
	if bj.Enabled != nil {
		block.Enabled = *bj.Enabled
	}
	if bj.Target != nil {
		block.Target = decimal.NewFromFloat(*bj.Target)
	}
	if bj.Weight != nil {
		block.Weight = *bj.Weight
	}
	if bj.FixedValue != nil {
		block.FixedValue = decimal.NewFromFloat(*bj.FixedValue)
	}
	return block
}

// =============================================================================
// VALIDATION - Authoring-time only
// =============================================================================

// Validate checks authoring invariants: weighted rules need enabled
// weights summing to exactly 100; targets and amounts must be non-negative.
func Validate(rule *engine.GameRule) error {
	cfg := rule.KPIConfig

	for _, k := range engine.AllKPIs {
		block := cfg.Block(k)
		if block.Target.IsNegative() {
			return &engine.RuleValidationError{
				Field:   string(k) + ".target",
				Message: "must not be negative",
			}
		}
		if block.FixedValue.IsNegative() {
			return &engine.RuleValidationError{
				Field:   string(k) + ".fixed_value",
				Message: "must not be negative",
			}
		}
	}

	if rule.CalculationType == engine.CalculationWeighted {
		if rule.BaseReward.IsNegative() {
			return &engine.RuleValidationError{Field: "base_reward", Message: "must not be negative"}
		}
		sum := 0
		for _, k := range engine.AllKPIs {
			if block := cfg.Block(k); block.Enabled {
				sum += block.Weight
			}
		}
		if sum != 100 {
			return &engine.RuleValidationError{
				Field:   "kpi_config",
				Message: fmt.Sprintf("enabled weights sum to %d, want 100", sum),
			}
		}
	}

	return nil
}

// ToJSON converts a GameRule back to its JSON representation.
func (f *RuleFactory) ToJSON(rule *engine.GameRule) RuleJSON {
	base, _ := rule.BaseReward.Float64()
	var effectiveUntil string
	if rule.EffectiveUntil != nil {
		effectiveUntil = rule.EffectiveUntil.Format("2006-01-02")
	}
	return RuleJSON{
		ID:              string(rule.ID),
		Name:            rule.Name,
		Description:     rule.Description,
		CalculationType: string(rule.CalculationType),
		BaseReward:      &base,
		EffectiveFrom:   rule.EffectiveFrom.Format("2006-01-02"),
		EffectiveUntil:  effectiveUntil,
		CreatedBy:       rule.CreatedBy,
		KPIConfig: &KPIConfigJSON{
			MinPortfolioSize:       intPtr(rule.KPIConfig.MinPortfolioSize),
			ReferralValidationDays: intPtr(rule.KPIConfig.ReferralValidationDays),
			Retention:              blockJSON(rule.KPIConfig.Retention),
			Referrals:              blockJSON(rule.KPIConfig.Referrals),
			Management:             blockJSON(rule.KPIConfig.Management),
		},
	}
}

func blockJSON(b engine.KPIBlock) *KPIBlockJSON {
	enabled := b.Enabled
	target, _ := b.Target.Float64()
	weight := b.Weight
	fixed, _ := b.FixedValue.Float64()
	return &KPIBlockJSON{
		Enabled:    &enabled,
		Target:     &target,
		Weight:     &weight,
		FixedValue: &fixed,
	}
}

func intPtr(v int) *int { return &v }
