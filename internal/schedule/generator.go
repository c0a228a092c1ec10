// Package schedule derives the expected installment plan of each enrolled
// student from the enrollment terms on the roster.
package schedule

import (
	"fmt"
	"time"

	"golang-tuition-reconciliation/internal/models"
	"golang-tuition-reconciliation/pkg/errors"
	"golang-tuition-reconciliation/pkg/logger"

	"github.com/shopspring/decimal"
)

// DefaultGraceDays is how long after its due date an installment stays
// pending before the generator reports it overdue
const DefaultGraceDays = 5

// daysPerInstallment spaces the anchor of consecutive installments
const daysPerInstallment = 30

// Config controls schedule generation
type Config struct {
	GraceDays int `json:"grace_days" mapstructure:"grace_days"`
}

// DefaultConfig returns the default generator configuration
func DefaultConfig() *Config {
	return &Config{GraceDays: DefaultGraceDays}
}

// Validate checks if the generator configuration is valid
func (c *Config) Validate() error {
	if c.GraceDays < 0 {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "grace_days", c.GraceDays,
			fmt.Errorf("grace days cannot be negative: %d", c.GraceDays))
	}
	return nil
}

// Generator builds installment schedules. It keeps no state between calls.
type Generator struct {
	config *Config
	logger logger.Logger
}

// NewGenerator creates a generator; a nil config selects DefaultConfig
func NewGenerator(config *Config) (*Generator, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	c := *config
	return &Generator{
		config: &c,
		logger: logger.WithComponent("schedule"),
	}, nil
}

// Generate returns the TotalInstallments installments of student in order.
// Each installment gets fee/n truncated to cents; the last one also carries
// the residue, so the amounts always sum to the course fee.
func (g *Generator) Generate(student *models.Student, asOf time.Time) ([]*models.StudentPayment, error) {
	if student == nil {
		return nil, errors.ValidationError(errors.CodeMissingField, "student", nil,
			fmt.Errorf("student cannot be nil"))
	}
	if err := student.Validate(); err != nil {
		return nil, errors.ValidationError(errors.CodeInvalidData, "student", student.ID, err)
	}

	n := student.TotalInstallments
	amounts, err := splitFee(student.CourseFee, n)
	if err != nil {
		return nil, errors.ValidationError(errors.CodeInvalidAmount, "course_fee", student.CourseFee.String(), err)
	}

	payments := make([]*models.StudentPayment, 0, n)
	var previous time.Time
	for i := 0; i < n; i++ {
		due := DueDate(student.EnrollmentDate, i, student.DueDay)
		if !previous.IsZero() && !due.After(previous) {
			due = onDay(previous.Year(), previous.Month()+1, student.DueDay)
		}
		previous = due

		payments = append(payments, &models.StudentPayment{
			StudentID:         student.ID,
			StudentName:       student.FullName,
			InstallmentNumber: i + 1,
			TotalInstallments: n,
			DueDate:           due,
			Amount:            amounts[i],
			PaymentMethod:     student.PaymentMethod,
			Status:            g.InitialStatus(due, asOf),
		})
	}

	return payments, nil
}

// GenerateAll generates the schedules of a whole roster. Students that
// cannot produce a schedule are skipped and reported as warnings.
func (g *Generator) GenerateAll(students []*models.Student, asOf time.Time) ([]*models.StudentPayment, []string) {
	var payments []*models.StudentPayment
	var warnings []string

	for i, student := range students {
		generated, err := g.Generate(student, asOf)
		if err != nil {
			id := fmt.Sprintf("#%d", i+1)
			if student != nil {
				id = student.ID
			}
			warning := fmt.Sprintf("student %s skipped: %v", id, err)
			g.logger.WithField("student_id", id).Warn(warning)
			warnings = append(warnings, warning)
			continue
		}
		payments = append(payments, generated...)
	}

	g.logger.WithFields(logger.Fields{
		"students":     len(students),
		"installments": len(payments),
		"skipped":      len(warnings),
	}).Debug("Schedules generated")

	return payments, warnings
}

// InitialStatus derives the status of a freshly generated installment from
// its due date alone: pending until due, overdue once more than GraceDays
// late, pending inside the grace window.
func (g *Generator) InitialStatus(due, asOf time.Time) models.PaymentStatus {
	late := models.DaysBetween(asOf, due)
	if late > g.config.GraceDays {
		return models.StatusOverdue
	}
	return models.StatusPending
}

// DueDate returns the due date of the 0-based installment i. The anchor is
// enrollment + 30*i days; its day of month is forced to dueDay, clamped to
// the month length, rolling into the next month when dueDay precedes the
// anchor's day.
func DueDate(enrollment time.Time, i, dueDay int) time.Time {
	anchor := models.DateOnly(enrollment).AddDate(0, 0, daysPerInstallment*i)
	month := anchor.Month()
	if dueDay < anchor.Day() {
		month++
	}
	return onDay(anchor.Year(), month, dueDay)
}

// onDay builds the date at day of the given month, clamping day to the
// month length. month may overflow; time.Date normalizes it.
func onDay(year int, month time.Month, day int) time.Time {
	first := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	last := first.AddDate(0, 1, -1).Day()
	if day > last {
		day = last
	}
	return time.Date(first.Year(), first.Month(), day, 0, 0, 0, 0, time.UTC)
}

// splitFee divides fee into n installments truncated to cents, adding the
// residue to the last one
func splitFee(fee decimal.Decimal, n int) ([]decimal.Decimal, error) {
	count := decimal.NewFromInt(int64(n))
	each := fee.Div(count).Truncate(2)
	if !each.IsPositive() {
		return nil, fmt.Errorf("course fee %s is too small for %d installments", fee.StringFixed(2), n)
	}

	amounts := make([]decimal.Decimal, n)
	for i := 0; i < n-1; i++ {
		amounts[i] = each
	}
	amounts[n-1] = fee.Sub(each.Mul(decimal.NewFromInt(int64(n - 1))))
	return amounts, nil
}
