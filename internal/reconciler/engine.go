package reconciler

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"golang-tuition-reconciliation/internal/matcher"
	"golang-tuition-reconciliation/internal/models"
	"golang-tuition-reconciliation/pkg/errors"
	"golang-tuition-reconciliation/pkg/logger"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Engine runs one greedy reconciliation pass of credit transactions against
// expected installments. It holds no state between runs.
type Engine struct {
	matcher *matcher.Matcher
	logger  logger.Logger
	now     func() time.Time
}

// ReconciliationResult is the output of one run. Payments holds copies of
// the input installments with their final statuses; the caller's records
// are never modified.
type ReconciliationResult struct {
	RunID       string    `json:"run_id"`
	AsOf        time.Time `json:"as_of"`
	ProcessedAt time.Time `json:"processed_at"`

	Matches               []*matcher.MatchCandidate `json:"matches"`
	UnmatchedTransactions []*models.BankTransaction `json:"unmatched_transactions"`
	UnpaidInstallments    []*models.StudentPayment  `json:"unpaid_installments"`
	Payments              []*models.StudentPayment  `json:"payments"`

	Warnings []string       `json:"warnings,omitempty"`
	Summary  *ResultSummary `json:"summary"`
	Inputs   *InputStats    `json:"inputs,omitempty"`
}

// ResultSummary counts what a run did
type ResultSummary struct {
	// Transactions
	TotalTransactions     int `json:"total_transactions"`
	CreditTransactions    int `json:"credit_transactions"`
	DebitTransactions     int `json:"debit_transactions"`
	SkippedTransactions   int `json:"skipped_transactions"`
	MatchedTransactions   int `json:"matched_transactions"`
	UnmatchedTransactions int `json:"unmatched_transactions"`

	// Installments
	TotalPayments   int `json:"total_payments"`
	PaidThisRun     int `json:"paid_this_run"`
	PreviouslyPaid  int `json:"previously_paid"`
	PendingPayments int `json:"pending_payments"`
	OverduePayments int `json:"overdue_payments"`

	// Amounts
	TotalReceived  decimal.Decimal `json:"total_received"`
	MatchedAmount  decimal.Decimal `json:"matched_amount"`
	TotalExpected  decimal.Decimal `json:"total_expected"`
	OverdueAmount  decimal.Decimal `json:"overdue_amount"`
	UnmatchedValue decimal.Decimal `json:"unmatched_value"`

	ProcessingDuration time.Duration `json:"processing_duration"`
}

// NewEngine creates an engine scoring with config; nil selects
// matcher.DefaultMatchingConfig
func NewEngine(config *matcher.MatchingConfig) (*Engine, error) {
	m, err := matcher.NewMatcher(config)
	if err != nil {
		return nil, err
	}
	return &Engine{
		matcher: m,
		logger:  logger.WithComponent("engine"),
		now:     time.Now,
	}, nil
}

// Matcher returns the scoring function used by the engine
func (e *Engine) Matcher() *matcher.Matcher {
	return e.matcher
}

// Reconcile matches transactions against payments as of asOf.
//
// Each credit, in input order, is scored against every installment not yet
// paid; the best score strictly above the threshold wins and that
// installment becomes paid for the rest of the run. The pass is greedy: an
// earlier transaction can claim an installment a later one fits better.
// Installments left unpaid are overdue when due before asOf, else pending.
//
// Invalid transactions are skipped with a warning. Only nil or invalid
// installments and nil transactions abort the run.
func (e *Engine) Reconcile(transactions []*models.BankTransaction, payments []*models.StudentPayment, asOf time.Time) (*ReconciliationResult, error) {
	start := e.now()

	working, err := copyPayments(payments)
	if err != nil {
		return nil, err
	}
	for i, tx := range transactions {
		if tx == nil {
			return nil, errors.ReconciliationError(errors.CodeInvalidInput, "reconcile",
				fmt.Errorf("transaction %d is nil", i))
		}
	}

	result := &ReconciliationResult{
		RunID:                 uuid.New().String(),
		AsOf:                  models.DateOnly(asOf),
		ProcessedAt:           start,
		Matches:               make([]*matcher.MatchCandidate, 0),
		UnmatchedTransactions: make([]*models.BankTransaction, 0),
		UnpaidInstallments:    make([]*models.StudentPayment, 0),
		Payments:              working,
		Summary:               newResultSummary(),
	}
	summary := result.Summary
	summary.TotalTransactions = len(transactions)
	summary.TotalPayments = len(working)

	for _, p := range working {
		if p.Status == models.StatusPaid {
			summary.PreviouslyPaid++
		}
		summary.TotalExpected = summary.TotalExpected.Add(p.Amount)
	}

	credits := e.credits(transactions, result)

	progress := logger.NewProgressTracker(logger.ProgressConfig{
		Operation: "matching",
		Total:     int64(len(credits)),
		Logger:    e.logger,
	})

	for _, tx := range credits {
		best := e.bestCandidate(tx, working)
		if best != nil {
			best.Payment.Status = models.StatusPaid
			result.Matches = append(result.Matches, best)
			summary.MatchedAmount = summary.MatchedAmount.Add(tx.Amount)
		} else {
			result.UnmatchedTransactions = append(result.UnmatchedTransactions, tx)
			summary.UnmatchedValue = summary.UnmatchedValue.Add(tx.Amount)
		}
		progress.Increment()
	}
	progress.Complete()

	day := models.DateOnly(asOf)
	for _, p := range working {
		if p.Status == models.StatusPaid {
			continue
		}
		if models.DateOnly(p.DueDate).Before(day) {
			p.Status = models.StatusOverdue
			summary.OverduePayments++
			summary.OverdueAmount = summary.OverdueAmount.Add(p.Amount)
		} else {
			p.Status = models.StatusPending
			summary.PendingPayments++
		}
		result.UnpaidInstallments = append(result.UnpaidInstallments, p)
	}

	summary.MatchedTransactions = len(result.Matches)
	summary.UnmatchedTransactions = len(result.UnmatchedTransactions)
	summary.PaidThisRun = len(result.Matches)
	summary.ProcessingDuration = e.now().Sub(start)

	e.logger.WithFields(logger.Fields{
		"run_id":    result.RunID,
		"credits":   summary.CreditTransactions,
		"matched":   summary.MatchedTransactions,
		"unmatched": summary.UnmatchedTransactions,
		"pending":   summary.PendingPayments,
		"overdue":   summary.OverduePayments,
	}).Info("Reconciliation completed")

	return result, nil
}

// credits filters transactions to valid credits, recording skipped records
// as warnings and counting debits
func (e *Engine) credits(transactions []*models.BankTransaction, result *ReconciliationResult) []*models.BankTransaction {
	credits := make([]*models.BankTransaction, 0, len(transactions))
	summary := result.Summary

	for i, tx := range transactions {
		if err := tx.Validate(); err != nil {
			warning := fmt.Sprintf("transaction %d skipped: %v", i+1, err)
			e.logger.Warn(warning)
			result.Warnings = append(result.Warnings, warning)
			summary.SkippedTransactions++
			continue
		}
		if !tx.IsCredit() {
			summary.DebitTransactions++
			continue
		}
		credits = append(credits, tx)
		summary.CreditTransactions++
		summary.TotalReceived = summary.TotalReceived.Add(tx.Amount)
	}

	return credits
}

// bestCandidate returns the highest-scoring unpaid installment for tx that
// clears the threshold, or nil
func (e *Engine) bestCandidate(tx *models.BankTransaction, payments []*models.StudentPayment) *matcher.MatchCandidate {
	var best *matcher.MatchCandidate

	for _, p := range payments {
		if p.Status == models.StatusPaid {
			continue
		}
		candidate := e.matcher.Evaluate(tx, p)
		if !e.matcher.IsMatch(candidate.Score) {
			continue
		}
		if best == nil || preferred(candidate, best) {
			best = candidate
		}
	}

	return best
}

// preferred reports whether a beats b: higher score, then earlier due date,
// then lower student id, then lower installment number. Full ties keep b,
// the candidate seen first.
func preferred(a, b *matcher.MatchCandidate) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}

	da, db := models.DateOnly(a.Payment.DueDate), models.DateOnly(b.Payment.DueDate)
	if !da.Equal(db) {
		return da.Before(db)
	}

	if c := compareStudentIDs(a.Payment.StudentID, b.Payment.StudentID); c != 0 {
		return c < 0
	}

	return a.Payment.InstallmentNumber < b.Payment.InstallmentNumber
}

// compareStudentIDs orders numeric ids numerically and anything else
// lexically
func compareStudentIDs(a, b string) int {
	na, errA := strconv.Atoi(a)
	nb, errB := strconv.Atoi(b)
	if errA == nil && errB == nil {
		switch {
		case na < nb:
			return -1
		case na > nb:
			return 1
		default:
			return 0
		}
	}
	return strings.Compare(a, b)
}

// copyPayments validates payments and returns independent copies
func copyPayments(payments []*models.StudentPayment) ([]*models.StudentPayment, error) {
	working := make([]*models.StudentPayment, 0, len(payments))

	for i, p := range payments {
		if p == nil {
			return nil, errors.ReconciliationError(errors.CodeInvalidInput, "reconcile",
				fmt.Errorf("payment %d is nil", i))
		}
		if err := p.Validate(); err != nil {
			return nil, errors.ReconciliationError(errors.CodeInvalidInput, "reconcile",
				fmt.Errorf("payment %s: %w", p.ID(), err))
		}
		working = append(working, p.Clone())
	}

	return working, nil
}

func newResultSummary() *ResultSummary {
	return &ResultSummary{
		TotalReceived:  decimal.Zero,
		MatchedAmount:  decimal.Zero,
		TotalExpected:  decimal.Zero,
		OverdueAmount:  decimal.Zero,
		UnmatchedValue: decimal.Zero,
	}
}
