package fixtures

import (
	"bytes"
	"context"
	"reflect"
	"strings"
	"testing"
	"time"

	"golang-tuition-reconciliation/internal/models"
	"golang-tuition-reconciliation/internal/parsers"
	"golang-tuition-reconciliation/internal/reconciler"
	"golang-tuition-reconciliation/pkg/errors"
)

func generate(t *testing.T, config *Config) *Dataset {
	t.Helper()
	generator, err := NewGenerator(config)
	if err != nil {
		t.Fatalf("NewGenerator failed: %v", err)
	}
	dataset, err := generator.Generate()
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	return dataset
}

func TestGenerate_Deterministic(t *testing.T) {
	first := generate(t, nil)
	second := generate(t, nil)

	if !reflect.DeepEqual(first.Students, second.Students) {
		t.Error("the same seed should generate the same students")
	}
	if !reflect.DeepEqual(first.Transactions, second.Transactions) {
		t.Error("the same seed should generate the same statement")
	}

	other := DefaultConfig()
	other.Seed = 7
	third := generate(t, other)
	if first.Students[0].FullName+first.Students[1].FullName == third.Students[0].FullName+third.Students[1].FullName {
		t.Error("a different seed should generate different students")
	}
}

func TestGenerate_Shape(t *testing.T) {
	config := DefaultConfig()
	dataset := generate(t, config)

	if len(dataset.Students) != config.Students {
		t.Fatalf("expected %d students, got %d", config.Students, len(dataset.Students))
	}

	names := make(map[string]bool)
	for _, s := range dataset.Students {
		if err := s.Validate(); err != nil {
			t.Fatalf("generated an invalid student: %v", err)
		}
		if names[s.FullName] {
			t.Errorf("duplicate name %s", s.FullName)
		}
		names[s.FullName] = true
	}

	debits := 0
	for i, tx := range dataset.Transactions {
		if err := tx.Validate(); err != nil {
			t.Fatalf("generated an invalid transaction: %v", err)
		}
		if !tx.IsCredit() {
			debits++
		}
		if i > 0 && tx.Date.Before(dataset.Transactions[i-1].Date) {
			t.Errorf("transaction %d is out of date order", i+1)
		}
		if tx.Date.After(config.AsOf) {
			t.Errorf("transaction %d is dated after the reference date", i+1)
		}
	}
	if debits != config.Expenses {
		t.Errorf("expected %d debits, got %d", config.Expenses, debits)
	}
	if len(dataset.Settled) == 0 {
		t.Error("expected some settled installments")
	}
}

func TestGenerate_ReconcilesToSettledPayments(t *testing.T) {
	config := DefaultConfig()
	config.Students = 40
	config.DayJitter = 0
	dataset := generate(t, config)

	engine, err := reconciler.NewEngine(nil)
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}
	result, err := engine.Reconcile(dataset.Transactions, dataset.Payments, config.AsOf)
	if err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}

	if len(result.Matches) != len(dataset.Settled) {
		t.Fatalf("expected %d matches, got %d", len(dataset.Settled), len(result.Matches))
	}
	for _, m := range result.Matches {
		if dataset.Settled[m.Payment.ID()] != m.Transaction {
			t.Errorf("payment %s matched a transaction that did not settle it", m.Payment.ID())
		}
	}

	noise := int(float64(len(dataset.Settled)) * config.NoiseRatio)
	if len(result.UnmatchedTransactions) != noise {
		t.Errorf("expected %d unmatched credits, got %d", noise, len(result.UnmatchedTransactions))
	}
	if result.Summary.DebitTransactions != config.Expenses {
		t.Errorf("expected %d debits, got %d", config.Expenses, result.Summary.DebitTransactions)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"no students", func(c *Config) { c.Students = 0 }},
		{"too many students", func(c *Config) { c.Students = MaxStudents + 1 }},
		{"as-of before start", func(c *Config) { c.AsOf = c.StartDate.Add(-24 * time.Hour) }},
		{"payment ratio above one", func(c *Config) { c.PaymentRatio = 1.5 }},
		{"negative jitter", func(c *Config) { c.DayJitter = -1 }},
		{"negative noise", func(c *Config) { c.NoiseRatio = -0.1 }},
		{"negative expenses", func(c *Config) { c.Expenses = -1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultConfig()
			tt.modify(config)

			_, err := NewGenerator(config)
			if !errors.IsCategory(err, errors.CategoryConfiguration) {
				t.Errorf("expected a configuration error, got %v", err)
			}
		})
	}
}

func TestWriteRosterCSV_RoundTrip(t *testing.T) {
	dataset := generate(t, nil)

	var buf bytes.Buffer
	if err := WriteRosterCSV(&buf, dataset.Students); err != nil {
		t.Fatalf("WriteRosterCSV failed: %v", err)
	}

	parser, err := parsers.NewRosterParser(nil)
	if err != nil {
		t.Fatalf("NewRosterParser failed: %v", err)
	}
	students, stats, err := parser.Parse(context.Background(), &buf, "roster.csv")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if stats.ErrorCount != 0 {
		t.Errorf("expected no rejected rows, got %d", stats.ErrorCount)
	}

	if len(students) != len(dataset.Students) {
		t.Fatalf("expected %d students, got %d", len(dataset.Students), len(students))
	}
	for i, s := range students {
		want := dataset.Students[i]
		if s.ID != want.ID || s.FullName != want.FullName {
			t.Errorf("student %d: expected %s %q, got %s %q", i+1, want.ID, want.FullName, s.ID, s.FullName)
		}
		if !s.CourseFee.Equal(want.CourseFee) || !s.EnrollmentDate.Equal(want.EnrollmentDate) {
			t.Errorf("student %d: fee or enrollment date changed", i+1)
		}
		if s.TotalInstallments != want.TotalInstallments || s.PaymentMethod != want.PaymentMethod || s.DueDay != want.DueDay {
			t.Errorf("student %d: expected plan %+v, got %+v", i+1, want, s)
		}
	}
}

func TestWriteStatementCSV_RoundTrip(t *testing.T) {
	dataset := generate(t, nil)

	var buf bytes.Buffer
	if err := WriteStatementCSV(&buf, dataset.Transactions); err != nil {
		t.Fatalf("WriteStatementCSV failed: %v", err)
	}
	if !strings.Contains(buf.String(), "data;valor;descricao;documento") {
		t.Errorf("expected a semicolon statement header, got %q", strings.SplitN(buf.String(), "\n", 2)[0])
	}

	parser, err := parsers.NewStatementParser(nil)
	if err != nil {
		t.Fatalf("NewStatementParser failed: %v", err)
	}
	transactions, stats, err := parser.Parse(context.Background(), &buf, "extrato.csv")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if stats.ErrorCount != 0 {
		t.Errorf("expected no rejected rows, got %d", stats.ErrorCount)
	}

	if len(transactions) != len(dataset.Transactions) {
		t.Fatalf("expected %d transactions, got %d", len(dataset.Transactions), len(transactions))
	}
	for i, tx := range transactions {
		want := dataset.Transactions[i]
		if !tx.Date.Equal(want.Date) || !tx.Amount.Equal(want.Amount) {
			t.Errorf("transaction %d: expected %s %s, got %s %s", i+1, want.Date, want.Amount, tx.Date, tx.Amount)
		}
		if tx.Direction != want.Direction || tx.Description != want.Description {
			t.Errorf("transaction %d: expected %s %q, got %s %q", i+1, want.Direction, want.Description, tx.Direction, tx.Description)
		}
	}
}

func TestPaymentDescription(t *testing.T) {
	p := &models.StudentPayment{StudentName: "Patrícia Souza Lima", PaymentMethod: models.PaymentPix}
	if got := paymentDescription(p); got != "PIX RECEBIDO - PATRICIA SOUZA LIMA" {
		t.Errorf("unexpected pix description %q", got)
	}

	p.PaymentMethod = models.PaymentBoleto
	if got := paymentDescription(p); got != "BOLETO PAGO - PATRICIA SOUZA LIMA" {
		t.Errorf("unexpected boleto description %q", got)
	}
}
