// Package models holds the records exchanged between the statement/roster
// importers, the schedule generator, the matcher and the reconciliation
// engine.
package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Direction tells whether a statement line brought money in or out
type Direction string

const (
	DirectionCredit Direction = "credit"
	DirectionDebit  Direction = "debit"
)

// IsValid checks if the direction is known
func (d Direction) IsValid() bool {
	return d == DirectionCredit || d == DirectionDebit
}

// PaymentMethod is how a student pays an installment
type PaymentMethod string

const (
	PaymentBoleto     PaymentMethod = "boleto"
	PaymentPix        PaymentMethod = "pix"
	PaymentCreditCard PaymentMethod = "credit_card"
	PaymentDebitCard  PaymentMethod = "debit_card"
	PaymentTransfer   PaymentMethod = "transfer"
)

// IsValid checks if the payment method is known
func (m PaymentMethod) IsValid() bool {
	switch m {
	case PaymentBoleto, PaymentPix, PaymentCreditCard, PaymentDebitCard, PaymentTransfer:
		return true
	default:
		return false
	}
}

// PaymentStatus is the lifecycle state of an installment
type PaymentStatus string

const (
	StatusPending PaymentStatus = "pending"
	StatusPaid    PaymentStatus = "paid"
	StatusOverdue PaymentStatus = "overdue"
)

// IsValid checks if the status is known
func (s PaymentStatus) IsValid() bool {
	return s == StatusPending || s == StatusPaid || s == StatusOverdue
}

// BankTransaction is one normalized bank statement line. Amount is always
// the magnitude; the sign lives in Direction.
type BankTransaction struct {
	Date        time.Time       `json:"date"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
	Document    string          `json:"document"`
	Account     string          `json:"account"`
	Direction   Direction       `json:"direction"`
}

// NewBankTransaction builds a transaction from a signed amount, the way
// statement exports carry it: positive is a credit, negative a debit.
func NewBankTransaction(date time.Time, signedAmount decimal.Decimal, description, document, account string) *BankTransaction {
	direction := DirectionCredit
	if signedAmount.IsNegative() {
		direction = DirectionDebit
	}
	return &BankTransaction{
		Date:        date,
		Amount:      signedAmount.Abs(),
		Description: strings.TrimSpace(description),
		Document:    strings.TrimSpace(document),
		Account:     strings.TrimSpace(account),
		Direction:   direction,
	}
}

// Validate performs basic validation on the BankTransaction
func (t *BankTransaction) Validate() error {
	if t.Date.IsZero() {
		return fmt.Errorf("transaction date cannot be zero")
	}
	if t.Amount.IsNegative() {
		return fmt.Errorf("transaction amount cannot be negative: %s", t.Amount)
	}
	if !t.Direction.IsValid() {
		return fmt.Errorf("invalid transaction direction: %q", t.Direction)
	}
	return nil
}

// IsCredit returns true if the transaction is money received
func (t *BankTransaction) IsCredit() bool {
	return t.Direction == DirectionCredit
}

// String returns a string representation of the BankTransaction
func (t *BankTransaction) String() string {
	return fmt.Sprintf("BankTransaction{Date: %s, Amount: %s, Direction: %s, Description: %q}",
		t.Date.Format(DateLayout), t.Amount.StringFixed(2), t.Direction, t.Description)
}

// StudentPayment is one expected installment. Status is the only field the
// reconciliation engine writes, and it writes it on its own copy.
type StudentPayment struct {
	StudentID         string          `json:"student_id"`
	StudentName       string          `json:"student_name"`
	InstallmentNumber int             `json:"installment_number"`
	TotalInstallments int             `json:"total_installments"`
	DueDate           time.Time       `json:"due_date"`
	Amount            decimal.Decimal `json:"amount"`
	PaymentMethod     PaymentMethod   `json:"payment_method"`
	Status            PaymentStatus   `json:"status"`
}

// ID returns the installment identifier, e.g. PAY_17_03
func (p *StudentPayment) ID() string {
	return fmt.Sprintf("PAY_%s_%02d", p.StudentID, p.InstallmentNumber)
}

// Validate performs basic validation on the StudentPayment
func (p *StudentPayment) Validate() error {
	if strings.TrimSpace(p.StudentID) == "" {
		return fmt.Errorf("student ID cannot be empty")
	}
	if p.TotalInstallments < 1 {
		return fmt.Errorf("total installments must be positive: %d", p.TotalInstallments)
	}
	if p.InstallmentNumber < 1 || p.InstallmentNumber > p.TotalInstallments {
		return fmt.Errorf("installment number %d outside [1, %d]", p.InstallmentNumber, p.TotalInstallments)
	}
	if !p.Amount.IsPositive() {
		return fmt.Errorf("installment amount must be positive: %s", p.Amount)
	}
	if p.DueDate.IsZero() {
		return fmt.Errorf("due date cannot be zero")
	}
	if !p.Status.IsValid() {
		return fmt.Errorf("invalid payment status: %q", p.Status)
	}
	return nil
}

// Clone returns an independent copy of the payment
func (p *StudentPayment) Clone() *StudentPayment {
	c := *p
	return &c
}

// DaysOverdue returns how many whole days past the due date asOf is; 0 when
// the installment is not yet due.
func (p *StudentPayment) DaysOverdue(asOf time.Time) int {
	days := DaysBetween(asOf, p.DueDate)
	if days < 0 {
		return 0
	}
	return days
}

// String returns a string representation of the StudentPayment
func (p *StudentPayment) String() string {
	return fmt.Sprintf("StudentPayment{ID: %s, Student: %q, Installment: %d/%d, Due: %s, Amount: %s, Status: %s}",
		p.ID(), p.StudentName, p.InstallmentNumber, p.TotalInstallments,
		p.DueDate.Format(DateLayout), p.Amount.StringFixed(2), p.Status)
}

// Student is one roster row: the enrollment terms a schedule is derived from
type Student struct {
	ID                string          `json:"id"`
	FullName          string          `json:"full_name"`
	CourseFee         decimal.Decimal `json:"course_fee"`
	TotalInstallments int             `json:"total_installments"`
	PaymentMethod     PaymentMethod   `json:"payment_method"`
	DueDay            int             `json:"due_day"`
	EnrollmentDate    time.Time       `json:"enrollment_date"`
}

// Validate performs basic validation on the Student
func (s *Student) Validate() error {
	if strings.TrimSpace(s.ID) == "" {
		return fmt.Errorf("student ID cannot be empty")
	}
	if strings.TrimSpace(s.FullName) == "" {
		return fmt.Errorf("student %s has no name", s.ID)
	}
	if !s.CourseFee.IsPositive() {
		return fmt.Errorf("student %s course fee must be positive: %s", s.ID, s.CourseFee)
	}
	if s.TotalInstallments < 1 {
		return fmt.Errorf("student %s total installments must be positive: %d", s.ID, s.TotalInstallments)
	}
	if s.DueDay < 1 || s.DueDay > 31 {
		return fmt.Errorf("student %s due day must be between 1 and 31: %d", s.ID, s.DueDay)
	}
	if s.EnrollmentDate.IsZero() {
		return fmt.Errorf("student %s enrollment date cannot be zero", s.ID)
	}
	if !s.PaymentMethod.IsValid() {
		return fmt.Errorf("student %s has invalid payment method: %q", s.ID, s.PaymentMethod)
	}
	return nil
}
