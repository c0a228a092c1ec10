package reporter

import (
	"sort"

	"golang-tuition-reconciliation/internal/models"
	"golang-tuition-reconciliation/internal/reconciler"

	"github.com/shopspring/decimal"
	"gonum.org/v1/gonum/stat"
)

// Metrics is the compliance summary of one reconciliation run, grouped the
// way the finance dashboard shows it. Rates are percentages in [0,100].
type Metrics struct {
	RunID        string             `json:"run_id" msgpack:"run_id"`
	Adimplencia  ComplianceMetric   `json:"adimplencia" msgpack:"adimplencia"`
	Inadimplente ComplianceMetric   `json:"inadimplencia" msgpack:"inadimplencia"`
	Conciliacao  IdentificationStat `json:"conciliacao" msgpack:"conciliacao"`
	Financeiro   FinancialStat      `json:"financeiro" msgpack:"financeiro"`
	Atraso       OverdueStat        `json:"atraso" msgpack:"atraso"`
}

// ComplianceMetric is a rate over expected installments with its count and
// amount
type ComplianceMetric struct {
	Rate   float64         `json:"rate" msgpack:"rate"`
	Count  int             `json:"count" msgpack:"count"`
	Amount decimal.Decimal `json:"amount" msgpack:"amount"`
}

// IdentificationStat describes how many credits were attributed to a student
type IdentificationStat struct {
	TotalTransactions        int     `json:"total_transacoes" msgpack:"total_transacoes"`
	IdentifiedTransactions   int     `json:"transacoes_identificadas" msgpack:"transacoes_identificadas"`
	UnidentifiedTransactions int     `json:"transacoes_nao_identificadas" msgpack:"transacoes_nao_identificadas"`
	TaxaIdentificacao        float64 `json:"taxa_identificacao" msgpack:"taxa_identificacao"`
}

// FinancialStat compares money received with money expected
type FinancialStat struct {
	TotalReceived      decimal.Decimal `json:"total_recebido" msgpack:"total_recebido"`
	TotalExpected      decimal.Decimal `json:"total_esperado" msgpack:"total_esperado"`
	TotalOverdue       decimal.Decimal `json:"total_em_atraso" msgpack:"total_em_atraso"`
	EficienciaCobranca float64         `json:"eficiencia_cobranca" msgpack:"eficiencia_cobranca"`
}

// OverdueStat summarizes how late the overdue installments are
type OverdueStat struct {
	Installments   int     `json:"parcelas" msgpack:"parcelas"`
	AverageDays    float64 `json:"media_dias" msgpack:"media_dias"`
	MedianDays     float64 `json:"mediana_dias" msgpack:"mediana_dias"`
	MaxDaysOverdue int     `json:"max_dias" msgpack:"max_dias"`
}

// ComputeMetrics derives the compliance metrics of result. Every rate is 0
// when its denominator is 0.
func ComputeMetrics(result *reconciler.ReconciliationResult) *Metrics {
	s := result.Summary
	matched := len(result.Matches)
	unmatched := len(result.UnmatchedTransactions)
	total := s.TotalPayments

	return &Metrics{
		RunID: result.RunID,
		Adimplencia: ComplianceMetric{
			Rate:   percentage(float64(matched), float64(total)),
			Count:  matched,
			Amount: s.MatchedAmount,
		},
		Inadimplente: ComplianceMetric{
			Rate:   percentage(float64(s.OverduePayments), float64(total)),
			Count:  s.OverduePayments,
			Amount: s.OverdueAmount,
		},
		Conciliacao: IdentificationStat{
			TotalTransactions:        matched + unmatched,
			IdentifiedTransactions:   matched,
			UnidentifiedTransactions: unmatched,
			TaxaIdentificacao:        percentage(float64(matched), float64(matched+unmatched)),
		},
		Financeiro: FinancialStat{
			TotalReceived:      s.TotalReceived,
			TotalExpected:      s.TotalExpected,
			TotalOverdue:       s.OverdueAmount,
			EficienciaCobranca: percentage(s.TotalReceived.InexactFloat64(), s.TotalExpected.InexactFloat64()),
		},
		Atraso: overdueStats(result),
	}
}

func overdueStats(result *reconciler.ReconciliationResult) OverdueStat {
	var days []float64
	maxDays := 0

	for _, p := range result.UnpaidInstallments {
		if p.Status != models.StatusOverdue {
			continue
		}
		d := p.DaysOverdue(result.AsOf)
		days = append(days, float64(d))
		if d > maxDays {
			maxDays = d
		}
	}

	if len(days) == 0 {
		return OverdueStat{}
	}

	sort.Float64s(days)
	return OverdueStat{
		Installments:   len(days),
		AverageDays:    stat.Mean(days, nil),
		MedianDays:     stat.Quantile(0.5, stat.Empirical, days, nil),
		MaxDaysOverdue: maxDays,
	}
}

func percentage(part, total float64) float64 {
	if total == 0 {
		return 0.0
	}
	return part / total * 100.0
}
