package reporter

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"golang-tuition-reconciliation/internal/matcher"
	"golang-tuition-reconciliation/internal/models"
	"golang-tuition-reconciliation/internal/reconciler"

	"github.com/shopspring/decimal"
)

// RowKind tags a report row
type RowKind string

const (
	RowMatched              RowKind = "matched"
	RowOverdue              RowKind = "overdue"
	RowUnmatchedTransaction RowKind = "unmatched_transaction"
)

// Label returns the heading finance staff use for the row kind
func (k RowKind) Label() string {
	switch k {
	case RowMatched:
		return "Pagamento Identificado"
	case RowOverdue:
		return "Parcela em Atraso"
	case RowUnmatchedTransaction:
		return "Transação Não Identificada"
	default:
		return string(k)
	}
}

// maxDescriptionLength bounds the statement description carried by
// unmatched transaction rows
const maxDescriptionLength = 50

// ReportRow is one flat line of the reconciliation report.
// Difference is always Received minus Expected.
type ReportRow struct {
	Kind        RowKind         `json:"kind"`
	StudentID   string          `json:"student_id,omitempty"`
	StudentName string          `json:"student_name,omitempty"`
	Installment string          `json:"installment,omitempty"`
	DueDate     time.Time       `json:"due_date,omitempty"`
	PaymentDate time.Time       `json:"payment_date,omitempty"`
	Expected    decimal.Decimal `json:"expected"`
	Received    decimal.Decimal `json:"received"`
	Difference  decimal.Decimal `json:"difference"`
	Score       float64         `json:"score,omitempty"`
	DaysOverdue int             `json:"days_overdue,omitempty"`
	Description string          `json:"description,omitempty"`

	// Channel and Reference are guessed from the description of an
	// unmatched credit to help staff trace it
	Channel   models.PaymentMethod `json:"channel,omitempty"`
	Reference string               `json:"reference,omitempty"`
}

// MarshalJSON writes dates as YYYY-MM-DD and leaves absent dates out
func (r ReportRow) MarshalJSON() ([]byte, error) {
	type row ReportRow
	return json.Marshal(struct {
		row
		DueDate     string `json:"due_date,omitempty"`
		PaymentDate string `json:"payment_date,omitempty"`
	}{row(r), formatDate(r.DueDate), formatDate(r.PaymentDate)})
}

// BuildReport flattens result into rows: matched payments, then overdue
// installments, then credits nobody claimed. Each group is sorted by its
// relevant date; input order breaks ties. Pending installments are not
// reported.
func BuildReport(result *reconciler.ReconciliationResult) []ReportRow {
	rows := make([]ReportRow, 0, len(result.Matches)+len(result.UnpaidInstallments)+len(result.UnmatchedTransactions))

	matched := make([]ReportRow, 0, len(result.Matches))
	for _, m := range result.Matches {
		matched = append(matched, ReportRow{
			Kind:        RowMatched,
			StudentID:   m.Payment.StudentID,
			StudentName: m.Payment.StudentName,
			Installment: installmentLabel(m.Payment),
			DueDate:     m.Payment.DueDate,
			PaymentDate: m.Transaction.Date,
			Expected:    m.Payment.Amount,
			Received:    m.Transaction.Amount,
			Difference:  m.Transaction.Amount.Sub(m.Payment.Amount),
			Score:       m.Score,
			Description: m.Transaction.Description,
		})
	}
	sortRows(matched, func(r ReportRow) time.Time { return r.PaymentDate })

	overdue := make([]ReportRow, 0, len(result.UnpaidInstallments))
	for _, p := range result.UnpaidInstallments {
		if p.Status != models.StatusOverdue {
			continue
		}
		overdue = append(overdue, ReportRow{
			Kind:        RowOverdue,
			StudentID:   p.StudentID,
			StudentName: p.StudentName,
			Installment: installmentLabel(p),
			DueDate:     p.DueDate,
			Expected:    p.Amount,
			Received:    decimal.Zero,
			Difference:  p.Amount.Neg(),
			DaysOverdue: p.DaysOverdue(result.AsOf),
		})
	}
	sortRows(overdue, func(r ReportRow) time.Time { return r.DueDate })

	unmatched := make([]ReportRow, 0, len(result.UnmatchedTransactions))
	for _, tx := range result.UnmatchedTransactions {
		row := ReportRow{
			Kind:        RowUnmatchedTransaction,
			PaymentDate: tx.Date,
			Expected:    decimal.Zero,
			Received:    tx.Amount,
			Difference:  tx.Amount,
			Description: truncate(tx.Description, maxDescriptionLength),
		}
		if tag, ok := matcher.TagPaymentMethod(tx.Description); ok {
			row.Channel = tag.Method
			row.Reference = tag.Reference
		}
		unmatched = append(unmatched, row)
	}
	sortRows(unmatched, func(r ReportRow) time.Time { return r.PaymentDate })

	rows = append(rows, matched...)
	rows = append(rows, overdue...)
	rows = append(rows, unmatched...)
	return rows
}

func sortRows(rows []ReportRow, date func(ReportRow) time.Time) {
	sort.SliceStable(rows, func(i, j int) bool {
		return date(rows[i]).Before(date(rows[j]))
	})
}

func installmentLabel(p *models.StudentPayment) string {
	return fmt.Sprintf("%d/%d", p.InstallmentNumber, p.TotalInstallments)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
