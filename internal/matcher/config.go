// Package matcher scores how well a bank statement credit fits an expected
// tuition installment.
//
// A score is the weighted sum of three independent pieces of evidence:
//   - amount: linear decay inside the amount tolerance
//   - date: linear decay inside the day tolerance, over calendar days
//   - name: share of the student's name tokens found in the description
//
// Absence of evidence contributes zero; nothing is ever subtracted. A pair
// is a match only when its score is strictly above the threshold.
//
// Example usage:
//
//	config := matcher.DefaultMatchingConfig()
//	config.ToleranceDays = 5
//
//	m, err := matcher.NewMatcher(config)
//	if err != nil {
//		return err
//	}
//	candidate := m.Evaluate(tx, payment)
//	if m.IsMatch(candidate.Score) {
//		...
//	}
package matcher

import (
	"fmt"

	"golang-tuition-reconciliation/pkg/errors"

	"github.com/shopspring/decimal"
)

// MatchingConfig holds the tolerances, threshold and weights used to score
// transaction/payment pairs.
type MatchingConfig struct {
	// ToleranceAmount is the largest amount difference that still earns an
	// amount score
	ToleranceAmount decimal.Decimal `json:"tolerance_amount" mapstructure:"tolerance_amount"`

	// ToleranceDays is the largest calendar-day distance that still earns a
	// date score
	ToleranceDays int `json:"tolerance_days" mapstructure:"tolerance_days"`

	// Threshold is the score a pair must strictly exceed to be a match
	Threshold float64 `json:"match_threshold" mapstructure:"match_threshold"`

	Weights MatchingWeights `json:"weights" mapstructure:"weights"`
}

// MatchingWeights defines the relative importance of each piece of evidence
type MatchingWeights struct {
	AmountWeight float64 `json:"amount_weight" mapstructure:"amount_weight"`
	DateWeight   float64 `json:"date_weight" mapstructure:"date_weight"`
	NameWeight   float64 `json:"name_weight" mapstructure:"name_weight"`
}

// DefaultMatchingConfig returns R$5.00 / 3 days / 0.6 with 0.4-0.3-0.3 weights
func DefaultMatchingConfig() *MatchingConfig {
	return &MatchingConfig{
		ToleranceAmount: decimal.NewFromInt(5),
		ToleranceDays:   3,
		Threshold:       0.6,
		Weights:         DefaultWeights(),
	}
}

// DefaultWeights returns the weights of the amount, date and name evidence
func DefaultWeights() MatchingWeights {
	return MatchingWeights{
		AmountWeight: 0.4,
		DateWeight:   0.3,
		NameWeight:   0.3,
	}
}

// Validate rejects out-of-range settings. Values are never clamped.
func (mc *MatchingConfig) Validate() error {
	if mc.ToleranceAmount.IsNegative() {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "tolerance_amount", mc.ToleranceAmount.String(),
			fmt.Errorf("amount tolerance cannot be negative: %s", mc.ToleranceAmount))
	}

	if mc.ToleranceDays < 0 {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "tolerance_days", fmt.Sprintf("%d", mc.ToleranceDays),
			fmt.Errorf("date tolerance days cannot be negative: %d", mc.ToleranceDays))
	}

	if mc.Threshold < 0.0 || mc.Threshold > 1.0 {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "match_threshold", fmt.Sprintf("%g", mc.Threshold),
			fmt.Errorf("match threshold must be between 0.0 and 1.0: %g", mc.Threshold))
	}

	if err := mc.Weights.Validate(); err != nil {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "weights", mc.Weights.String(),
			fmt.Errorf("invalid weights: %w", err))
	}

	return nil
}

// Validate checks if the matching weights are valid
func (mw *MatchingWeights) Validate() error {
	if mw.AmountWeight < 0.0 || mw.AmountWeight > 1.0 {
		return fmt.Errorf("amount weight must be between 0.0 and 1.0: %f", mw.AmountWeight)
	}

	if mw.DateWeight < 0.0 || mw.DateWeight > 1.0 {
		return fmt.Errorf("date weight must be between 0.0 and 1.0: %f", mw.DateWeight)
	}

	if mw.NameWeight < 0.0 || mw.NameWeight > 1.0 {
		return fmt.Errorf("name weight must be between 0.0 and 1.0: %f", mw.NameWeight)
	}

	total := mw.AmountWeight + mw.DateWeight + mw.NameWeight
	if total > 1.0+1e-9 {
		return fmt.Errorf("weights cannot sum to more than 1.0, got %f", total)
	}

	return nil
}

// String returns the weights as a compact triple
func (mw MatchingWeights) String() string {
	return fmt.Sprintf("%.2f/%.2f/%.2f", mw.AmountWeight, mw.DateWeight, mw.NameWeight)
}

// Clone creates a copy of the matching configuration
func (mc *MatchingConfig) Clone() *MatchingConfig {
	if mc == nil {
		return nil
	}
	c := *mc
	return &c
}

// String returns a human-readable description of the configuration
func (mc *MatchingConfig) String() string {
	return fmt.Sprintf("MatchingConfig{ToleranceAmount: %s, ToleranceDays: %d, Threshold: %.2f, Weights: %s}",
		mc.ToleranceAmount.StringFixed(2), mc.ToleranceDays, mc.Threshold, mc.Weights)
}
