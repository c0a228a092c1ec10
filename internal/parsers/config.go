package parsers

import (
	"fmt"
	"strings"

	"golang-tuition-reconciliation/internal/models"
)

// Column names a logical field and the header spellings it accepts.
// Headers are compared after accent folding and lowercasing, so
// "Descrição" matches the alias "descricao".
type Column struct {
	Name     string   `json:"name"`
	Aliases  []string `json:"aliases"`
	Required bool     `json:"required"`
}

// Candidates returns the canonical name followed by its aliases
func (c Column) Candidates() []string {
	return append([]string{c.Name}, c.Aliases...)
}

// StatementConfig describes the layout of a bank statement export
type StatementConfig struct {
	Name              string `json:"name"`
	DateColumn        Column `json:"date_column"`
	AmountColumn      Column `json:"amount_column"`
	DescriptionColumn Column `json:"description_column"`
	DocumentColumn    Column `json:"document_column"`
	AccountColumn     Column `json:"account_column"`
	HasHeader         bool   `json:"has_header"`
	// Delimiter is sniffed from the header line when zero
	Delimiter rune   `json:"delimiter"`
	Encoding  string `json:"encoding"`
}

// Validate checks if the statement configuration is valid
func (sc *StatementConfig) Validate() error {
	if strings.TrimSpace(sc.Name) == "" {
		return fmt.Errorf("statement layout name cannot be empty")
	}
	for _, col := range sc.Columns() {
		if strings.TrimSpace(col.Name) == "" {
			return fmt.Errorf("statement layout %s has an unnamed column", sc.Name)
		}
	}
	if !sc.DateColumn.Required || !sc.AmountColumn.Required {
		return fmt.Errorf("date and amount columns must be required")
	}
	return validateEncoding(sc.Encoding)
}

// Columns returns every column of the layout in file order
func (sc *StatementConfig) Columns() []Column {
	return []Column{sc.DateColumn, sc.AmountColumn, sc.DescriptionColumn, sc.DocumentColumn, sc.AccountColumn}
}

// RosterConfig describes the layout of a student roster export
type RosterConfig struct {
	IDColumn             Column               `json:"id_column"`
	NameColumn           Column               `json:"name_column"`
	CourseFeeColumn      Column               `json:"course_fee_column"`
	InstallmentsColumn   Column               `json:"installments_column"`
	PaymentMethodColumn  Column               `json:"payment_method_column"`
	DueDayColumn         Column               `json:"due_day_column"`
	EnrollmentDateColumn Column               `json:"enrollment_date_column"`
	DefaultPaymentMethod models.PaymentMethod `json:"default_payment_method"`
	DefaultDueDay        int                  `json:"default_due_day"`
	HasHeader            bool                 `json:"has_header"`
	Delimiter            rune                 `json:"delimiter"`
	Encoding             string               `json:"encoding"`
}

// Validate checks if the roster configuration is valid
func (rc *RosterConfig) Validate() error {
	for _, col := range rc.Columns() {
		if strings.TrimSpace(col.Name) == "" {
			return fmt.Errorf("roster layout has an unnamed column")
		}
	}
	if !rc.DefaultPaymentMethod.IsValid() {
		return fmt.Errorf("invalid default payment method: %q", rc.DefaultPaymentMethod)
	}
	if rc.DefaultDueDay < 1 || rc.DefaultDueDay > 31 {
		return fmt.Errorf("default due day must be between 1 and 31: %d", rc.DefaultDueDay)
	}
	return validateEncoding(rc.Encoding)
}

// Columns returns every column of the roster layout
func (rc *RosterConfig) Columns() []Column {
	return []Column{
		rc.IDColumn, rc.NameColumn, rc.CourseFeeColumn, rc.InstallmentsColumn,
		rc.PaymentMethodColumn, rc.DueDayColumn, rc.EnrollmentDateColumn,
	}
}

// Supported encodings
const (
	EncodingAuto   = "auto"
	EncodingUTF8   = "utf-8"
	EncodingLatin1 = "latin1"
)

func validateEncoding(encoding string) error {
	switch encoding {
	case "", EncodingAuto, EncodingUTF8, EncodingLatin1:
		return nil
	default:
		return fmt.Errorf("unsupported encoding %q (use auto, utf-8 or latin1)", encoding)
	}
}

// DefaultStatementConfig accepts the pt-BR and English headers seen in
// Brazilian bank exports
func DefaultStatementConfig() *StatementConfig {
	return &StatementConfig{
		Name:              "Standard",
		DateColumn:        Column{Name: "data", Aliases: []string{"date", "data_lancamento", "dt"}, Required: true},
		AmountColumn:      Column{Name: "valor", Aliases: []string{"amount", "valor_rs"}, Required: true},
		DescriptionColumn: Column{Name: "descricao", Aliases: []string{"description", "historico", "memo"}},
		DocumentColumn:    Column{Name: "documento", Aliases: []string{"document", "doc", "reference"}},
		AccountColumn:     Column{Name: "conta", Aliases: []string{"account"}},
		HasHeader:         true,
		Encoding:          EncodingAuto,
	}
}

// DefaultRosterConfig accepts the enrollment-form and pt-BR roster headers
func DefaultRosterConfig() *RosterConfig {
	return &RosterConfig{
		IDColumn:             Column{Name: "id", Aliases: []string{"student_id", "matricula"}, Required: true},
		NameColumn:           Column{Name: "fullName", Aliases: []string{"name", "nome", "nome_completo"}, Required: true},
		CourseFeeColumn:      Column{Name: "courseFee", Aliases: []string{"valor_curso", "course_fee"}, Required: true},
		InstallmentsColumn:   Column{Name: "totalInstallments", Aliases: []string{"parcelas", "total_installments"}, Required: true},
		PaymentMethodColumn:  Column{Name: "paymentMethod", Aliases: []string{"forma_pagamento", "payment_method"}},
		DueDayColumn:         Column{Name: "boletoDueDate", Aliases: []string{"dueDay", "dia_vencimento", "due_day"}},
		EnrollmentDateColumn: Column{Name: "enrollmentDate", Aliases: []string{"data_matricula", "enrollment_date"}, Required: true},
		DefaultPaymentMethod: models.PaymentBoleto,
		DefaultDueDay:        10,
		HasHeader:            true,
		Encoding:             EncodingAuto,
	}
}
