package matcher

import (
	"fmt"
	"math"
	"strings"

	"golang-tuition-reconciliation/internal/models"

	"github.com/shopspring/decimal"
)

// scorePrecision is the rounding applied to final scores so that decimal
// boundaries such as 0.6 compare as written
const scorePrecision = 1e6

// Matcher scores transaction/payment pairs under a fixed configuration
type Matcher struct {
	config *MatchingConfig
}

// MatchCandidate is one proposed pairing with its score breakdown
type MatchCandidate struct {
	Transaction      *models.BankTransaction `json:"transaction"`
	Payment          *models.StudentPayment  `json:"payment"`
	Score            float64                 `json:"score"`
	AmountScore      float64                 `json:"amount_score"`
	DateScore        float64                 `json:"date_score"`
	NameScore        float64                 `json:"name_score"`
	AmountDifference decimal.Decimal         `json:"amount_difference"`
	DaysDifference   int                     `json:"days_difference"`
	Reasons          []string                `json:"reasons"`
}

// NewMatcher validates config and returns a matcher using it. A nil config
// selects DefaultMatchingConfig.
func NewMatcher(config *MatchingConfig) (*Matcher, error) {
	if config == nil {
		config = DefaultMatchingConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &Matcher{config: config.Clone()}, nil
}

// Config returns a copy of the matcher configuration
func (m *Matcher) Config() *MatchingConfig {
	return m.config.Clone()
}

// Score returns the weighted similarity of tx and p in [0,1]
func (m *Matcher) Score(tx *models.BankTransaction, p *models.StudentPayment) float64 {
	return m.Evaluate(tx, p).Score
}

// IsMatch reports whether score is strictly above the threshold
func (m *Matcher) IsMatch(score float64) bool {
	return score > m.config.Threshold
}

// Evaluate scores tx against p and explains the result
func (m *Matcher) Evaluate(tx *models.BankTransaction, p *models.StudentPayment) *MatchCandidate {
	amountDiff := tx.Amount.Sub(p.Amount).Abs()
	daysDiff := models.AbsDaysBetween(tx.Date, p.DueDate)

	amountScore := m.amountScore(amountDiff)
	dateScore := m.dateScore(daysDiff)
	matched, total := nameTokenMatches(p.StudentName, tx.Description)
	nameScore := 0.0
	if total > 0 {
		nameScore = m.config.Weights.NameWeight * float64(matched) / float64(total)
	}

	score := amountScore + dateScore + nameScore
	score = math.Max(0.0, math.Min(1.0, score))
	score = math.Round(score*scorePrecision) / scorePrecision

	return &MatchCandidate{
		Transaction:      tx,
		Payment:          p,
		Score:            score,
		AmountScore:      amountScore,
		DateScore:        dateScore,
		NameScore:        nameScore,
		AmountDifference: amountDiff,
		DaysDifference:   daysDiff,
		Reasons:          m.reasons(amountDiff, daysDiff, matched, total),
	}
}

// amountScore decays linearly from the full weight at an exact amount to
// zero at the tolerance edge
func (m *Matcher) amountScore(diff decimal.Decimal) float64 {
	weight := m.config.Weights.AmountWeight
	tolerance := m.config.ToleranceAmount

	if tolerance.IsZero() {
		if diff.IsZero() {
			return weight
		}
		return 0.0
	}

	if diff.GreaterThan(tolerance) {
		return 0.0
	}

	ratio := diff.Div(tolerance).InexactFloat64()
	return weight * math.Max(0.0, 1.0-ratio)
}

// dateScore decays linearly over whole calendar days
func (m *Matcher) dateScore(days int) float64 {
	weight := m.config.Weights.DateWeight
	tolerance := m.config.ToleranceDays

	if tolerance == 0 {
		if days == 0 {
			return weight
		}
		return 0.0
	}

	if days > tolerance {
		return 0.0
	}

	return weight * (1.0 - float64(days)/float64(tolerance))
}

// nameTokenMatches counts the whitespace tokens of name that appear as
// substrings of description. Both sides are uppercased and accent-folded.
func nameTokenMatches(name, description string) (matched, total int) {
	tokens := strings.Fields(models.Fold(name))
	haystack := models.Fold(description)

	for _, token := range tokens {
		if strings.Contains(haystack, token) {
			matched++
		}
	}
	return matched, len(tokens)
}

// reasons generates human-readable notes for the score
func (m *Matcher) reasons(amountDiff decimal.Decimal, days, matchedTokens, totalTokens int) []string {
	var reasons []string

	switch {
	case amountDiff.IsZero():
		reasons = append(reasons, "Exact amount match")
	case amountDiff.LessThanOrEqual(m.config.ToleranceAmount):
		reasons = append(reasons, fmt.Sprintf("Amount within tolerance (diff %s)", amountDiff.StringFixed(2)))
	default:
		reasons = append(reasons, fmt.Sprintf("Amount outside tolerance (diff %s)", amountDiff.StringFixed(2)))
	}

	switch {
	case days == 0:
		reasons = append(reasons, "Paid on due date")
	case days <= m.config.ToleranceDays:
		reasons = append(reasons, fmt.Sprintf("Date within tolerance (%d days)", days))
	default:
		reasons = append(reasons, fmt.Sprintf("Date outside tolerance (%d days)", days))
	}

	if totalTokens > 0 {
		reasons = append(reasons, fmt.Sprintf("Name tokens found: %d of %d", matchedTokens, totalTokens))
	}

	return reasons
}
