package schedule

import (
	"strings"
	"testing"
	"time"

	"golang-tuition-reconciliation/internal/models"

	"github.com/shopspring/decimal"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func testStudent(fee string, n, dueDay int, enrollment time.Time) *models.Student {
	return &models.Student{
		ID:                "17",
		FullName:          "Fernanda Passos Silva dos Santos",
		CourseFee:         decimal.RequireFromString(fee),
		TotalInstallments: n,
		PaymentMethod:     models.PaymentBoleto,
		DueDay:            dueDay,
		EnrollmentDate:    enrollment,
	}
}

func newTestGenerator(t *testing.T) *Generator {
	t.Helper()
	g, err := NewGenerator(nil)
	if err != nil {
		t.Fatalf("NewGenerator failed: %v", err)
	}
	return g
}

func TestConfig_Validate(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Errorf("default config should be valid: %v", err)
	}
	if _, err := NewGenerator(&Config{GraceDays: -1}); err == nil {
		t.Error("expected error for negative grace days")
	}
}

func TestGenerate_ResidueGoesToLastInstallment(t *testing.T) {
	g := newTestGenerator(t)
	payments, err := g.Generate(testStudent("1000.00", 3, 10, day(2024, 1, 15)), day(2024, 1, 1))
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	expected := []string{"333.33", "333.33", "333.34"}
	total := decimal.Zero
	for i, p := range payments {
		if !p.Amount.Equal(decimal.RequireFromString(expected[i])) {
			t.Errorf("installment %d amount = %s, want %s", i+1, p.Amount, expected[i])
		}
		if p.InstallmentNumber != i+1 || p.TotalInstallments != 3 {
			t.Errorf("unexpected numbering %d/%d", p.InstallmentNumber, p.TotalInstallments)
		}
		if p.StudentID != "17" || p.PaymentMethod != models.PaymentBoleto {
			t.Errorf("student terms not copied: %s", p)
		}
		total = total.Add(p.Amount)
	}
	if !total.Equal(decimal.NewFromInt(1000)) {
		t.Errorf("installments sum to %s, want 1000", total)
	}
}

func TestGenerate_EvenSplit(t *testing.T) {
	g := newTestGenerator(t)
	payments, err := g.Generate(testStudent("4000", 10, 10, day(2024, 1, 15)), day(2024, 1, 1))
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if len(payments) != 10 {
		t.Fatalf("expected 10 installments, got %d", len(payments))
	}
	for _, p := range payments {
		if !p.Amount.Equal(decimal.NewFromInt(400)) {
			t.Errorf("%s: expected 400", p.ID())
		}
	}
}

func TestDueDate(t *testing.T) {
	tests := []struct {
		name       string
		enrollment time.Time
		dueDay     int
		want       []time.Time
	}{
		{
			name:       "due day before enrollment day rolls forward",
			enrollment: day(2024, 1, 15),
			dueDay:     10,
			want:       []time.Time{day(2024, 2, 10), day(2024, 3, 10), day(2024, 4, 10)},
		},
		{
			name:       "due day after enrollment day stays in month",
			enrollment: day(2024, 1, 5),
			dueDay:     20,
			want:       []time.Time{day(2024, 1, 20), day(2024, 2, 20), day(2024, 3, 20)},
		},
		{
			name:       "day 31 clamps to month length",
			enrollment: day(2023, 1, 20),
			dueDay:     31,
			want:       []time.Time{day(2023, 1, 31), day(2023, 2, 28), day(2023, 3, 31)},
		},
		{
			name:       "year rollover",
			enrollment: day(2024, 12, 20),
			dueDay:     5,
			want:       []time.Time{day(2025, 1, 5), day(2025, 2, 5)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for i, want := range tt.want {
				if got := DueDate(tt.enrollment, i, tt.dueDay); !got.Equal(want) {
					t.Errorf("DueDate(i=%d) = %s, want %s", i, got.Format(models.DateLayout), want.Format(models.DateLayout))
				}
			}
		})
	}
}

func TestGenerate_DueDatesStrictlyIncrease(t *testing.T) {
	g := newTestGenerator(t)
	payments, err := g.Generate(testStudent("400", 4, 31, day(2024, 1, 1)), day(2024, 1, 1))
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	want := []time.Time{day(2024, 1, 31), day(2024, 2, 29), day(2024, 3, 31), day(2024, 4, 30)}
	for i, p := range payments {
		if !p.DueDate.Equal(want[i]) {
			t.Errorf("installment %d due %s, want %s", i+1, p.DueDate.Format(models.DateLayout), want[i].Format(models.DateLayout))
		}
		if i > 0 && !p.DueDate.After(payments[i-1].DueDate) {
			t.Errorf("installment %d does not fall after installment %d", i+1, i)
		}
	}
}

func TestInitialStatus(t *testing.T) {
	g := newTestGenerator(t)
	asOf := day(2024, 3, 20)

	tests := []struct {
		due  time.Time
		want models.PaymentStatus
	}{
		{day(2024, 4, 10), models.StatusPending},
		{day(2024, 3, 20), models.StatusPending},
		{day(2024, 3, 16), models.StatusPending},
		{day(2024, 3, 15), models.StatusPending},
		{day(2024, 3, 14), models.StatusOverdue},
		{day(2024, 3, 10), models.StatusOverdue},
	}

	for _, tt := range tests {
		t.Run(tt.due.Format(models.DateLayout), func(t *testing.T) {
			if got := g.InitialStatus(tt.due, asOf); got != tt.want {
				t.Errorf("InitialStatus = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestGenerate_IsDeterministic(t *testing.T) {
	g := newTestGenerator(t)
	student := testStudent("3500", 10, 10, day(2024, 1, 15))
	asOf := day(2024, 6, 1)

	first, _ := g.Generate(student, asOf)
	second, _ := g.Generate(student, asOf)
	for i := range first {
		if first[i].String() != second[i].String() {
			t.Errorf("run differs at %d: %s vs %s", i, first[i], second[i])
		}
	}
}

func TestGenerate_Errors(t *testing.T) {
	g := newTestGenerator(t)

	if _, err := g.Generate(nil, day(2024, 1, 1)); err == nil {
		t.Error("expected error for nil student")
	}

	invalid := testStudent("1000", 0, 10, day(2024, 1, 1))
	if _, err := g.Generate(invalid, day(2024, 1, 1)); err == nil {
		t.Error("expected error for zero installments")
	}

	tiny := testStudent("0.05", 10, 10, day(2024, 1, 1))
	_, err := g.Generate(tiny, day(2024, 1, 1))
	if err == nil || !strings.Contains(err.Error(), "too small") {
		t.Errorf("expected too-small error, got %v", err)
	}
}

func TestGenerateAll_SkipsInvalidStudents(t *testing.T) {
	g := newTestGenerator(t)
	bad := testStudent("1000", 3, 40, day(2024, 1, 1))
	bad.ID = "99"

	students := []*models.Student{
		testStudent("1000", 3, 10, day(2024, 1, 15)),
		bad,
		nil,
	}

	payments, warnings := g.GenerateAll(students, day(2024, 1, 1))
	if len(payments) != 3 {
		t.Errorf("expected 3 installments, got %d", len(payments))
	}
	if len(warnings) != 2 {
		t.Fatalf("expected 2 warnings, got %v", warnings)
	}
	if !strings.Contains(warnings[0], "student 99 skipped") {
		t.Errorf("unexpected warning %q", warnings[0])
	}
	if !strings.Contains(warnings[1], "#3") {
		t.Errorf("expected positional id for nil student, got %q", warnings[1])
	}
}
