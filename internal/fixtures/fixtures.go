// Package fixtures builds synthetic rosters and bank statements for tests,
// demos and load checks. Output is fully determined by the seed; nothing in
// the reconciliation path depends on this package.
package fixtures

import (
	"encoding/csv"
	"fmt"
	"io"
	"math/rand"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang-tuition-reconciliation/internal/models"
	"golang-tuition-reconciliation/internal/schedule"
	"golang-tuition-reconciliation/pkg/errors"

	"github.com/shopspring/decimal"
)

var (
	firstNames = []string{
		"Fernanda", "João", "Maria", "Pedro", "Lucas", "Beatriz", "Rafael", "Camila",
		"Gustavo", "Larissa", "Thiago", "Patrícia", "Bruno", "Helena", "Diego", "Renata",
	}
	surnames = []string{
		"Souza", "Lima", "Costa", "Pereira", "Almeida", "Ribeiro",
		"Carvalho", "Gomes", "Martins", "Rocha", "Dias", "Barbosa",
	}

	installmentAmounts = []int64{350, 400, 500, 600}
	installmentCounts  = []int{3, 6, 10, 12}
	dueDays            = []int{5, 10, 15, 20}
	paymentMethods     = []models.PaymentMethod{
		models.PaymentBoleto, models.PaymentPix, models.PaymentPix,
		models.PaymentTransfer, models.PaymentCreditCard,
	}

	noiseDescriptions = []string{
		"TED RECEBIDA - EMPRESA PARCEIRA LTDA",
		"DEPOSITO EM DINHEIRO",
		"RENDIMENTO APLICACAO",
		"ESTORNO TARIFA",
	}
	expenseDescriptions = []string{"FORNECEDOR", "MARKETING", "INFRAESTRUTURA", "SALARIOS"}
	expenseAmounts      = []int64{150, 200, 300, 500}
)

// MaxStudents is the number of distinct names the generator can produce
var MaxStudents = len(firstNames) * len(surnames) * (len(surnames) - 1) / 2

// Config controls dataset generation
type Config struct {
	Seed         int64     `json:"seed"`
	Students     int       `json:"students"`
	StartDate    time.Time `json:"start_date"`
	AsOf         time.Time `json:"as_of"`
	PaymentRatio float64   `json:"payment_ratio"`
	DayJitter    int       `json:"day_jitter"`
	NoiseRatio   float64   `json:"noise_ratio"`
	Expenses     int       `json:"expenses"`
}

// DefaultConfig returns a small dataset spanning the first half of 2024
func DefaultConfig() *Config {
	return &Config{
		Seed:         42,
		Students:     20,
		StartDate:    time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC),
		AsOf:         time.Date(2024, time.June, 30, 0, 0, 0, 0, time.UTC),
		PaymentRatio: 0.8,
		DayJitter:    2,
		NoiseRatio:   0.1,
		Expenses:     10,
	}
}

// Validate checks if the generation configuration is valid
func (c *Config) Validate() error {
	switch {
	case c.Students < 1 || c.Students > MaxStudents:
		return errors.ConfigurationError(errors.CodeInvalidConfig, "students", c.Students,
			fmt.Errorf("students must be between 1 and %d", MaxStudents))
	case c.StartDate.IsZero() || !c.AsOf.After(c.StartDate):
		return errors.ConfigurationError(errors.CodeInvalidConfig, "as_of", c.AsOf,
			fmt.Errorf("as-of date must be after the start date"))
	case c.PaymentRatio < 0 || c.PaymentRatio > 1:
		return errors.ConfigurationError(errors.CodeInvalidConfig, "payment_ratio", c.PaymentRatio,
			fmt.Errorf("payment ratio must be between 0 and 1"))
	case c.DayJitter < 0:
		return errors.ConfigurationError(errors.CodeInvalidConfig, "day_jitter", c.DayJitter,
			fmt.Errorf("day jitter cannot be negative"))
	case c.NoiseRatio < 0:
		return errors.ConfigurationError(errors.CodeInvalidConfig, "noise_ratio", c.NoiseRatio,
			fmt.Errorf("noise ratio cannot be negative"))
	case c.Expenses < 0:
		return errors.ConfigurationError(errors.CodeInvalidConfig, "expenses", c.Expenses,
			fmt.Errorf("expenses cannot be negative"))
	}
	return nil
}

// Dataset is one generated roster with its schedule and statement.
// Settled maps a payment ID to the credit generated for it.
type Dataset struct {
	Students     []*models.Student
	Payments     []*models.StudentPayment
	Transactions []*models.BankTransaction
	Settled      map[string]*models.BankTransaction
}

// Generator produces datasets from a Config
type Generator struct {
	config   *Config
	schedule *schedule.Generator
}

// NewGenerator creates a generator; a nil config selects DefaultConfig
func NewGenerator(config *Config) (*Generator, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	sched, err := schedule.NewGenerator(nil)
	if err != nil {
		return nil, err
	}

	c := *config
	return &Generator{config: &c, schedule: sched}, nil
}

// Generate builds a dataset. Every call with the same config returns the
// same data.
func (g *Generator) Generate() (*Dataset, error) {
	rng := rand.New(rand.NewSource(g.config.Seed))
	asOf := models.DateOnly(g.config.AsOf)

	students := g.students(rng)
	payments, warnings := g.schedule.GenerateAll(students, asOf)
	if len(warnings) > 0 {
		return nil, errors.InternalError(errors.CodeUnexpectedError, "fixture_generation",
			fmt.Errorf("generated roster is invalid: %s", strings.Join(warnings, "; ")))
	}

	dataset := &Dataset{
		Students: students,
		Payments: payments,
		Settled:  make(map[string]*models.BankTransaction),
	}

	for _, p := range payments {
		paidOn := p.DueDate.AddDate(0, 0, rng.Intn(g.config.DayJitter+1))
		if paidOn.After(asOf) || rng.Float64() >= g.config.PaymentRatio {
			continue
		}
		tx := models.NewBankTransaction(paidOn, p.Amount, paymentDescription(p), document(rng, p.PaymentMethod), "")
		dataset.Transactions = append(dataset.Transactions, tx)
		dataset.Settled[p.ID()] = tx
	}

	noise := int(float64(len(dataset.Settled)) * g.config.NoiseRatio)
	for i := 0; i < noise; i++ {
		cents := 100000 + rng.Int63n(400000)
		dataset.Transactions = append(dataset.Transactions, models.NewBankTransaction(
			g.randomDate(rng), decimal.New(cents, -2),
			noiseDescriptions[rng.Intn(len(noiseDescriptions))], document(rng, ""), ""))
	}

	for i := 0; i < g.config.Expenses; i++ {
		amount := decimal.NewFromInt(expenseAmounts[rng.Intn(len(expenseAmounts))]).Neg()
		dataset.Transactions = append(dataset.Transactions, models.NewBankTransaction(
			g.randomDate(rng), amount,
			expenseDescriptions[rng.Intn(len(expenseDescriptions))], fmt.Sprintf("DEB%04d", 1000+rng.Intn(9000)), ""))
	}

	sort.SliceStable(dataset.Transactions, func(i, j int) bool {
		return dataset.Transactions[i].Date.Before(dataset.Transactions[j].Date)
	})

	return dataset, nil
}

// students draws distinct names: a first name and two surnames in a fixed
// order, so no student's name tokens are all contained in another's
func (g *Generator) students(rng *rand.Rand) []*models.Student {
	names := make([]string, 0, MaxStudents)
	for _, first := range firstNames {
		for a := 0; a < len(surnames); a++ {
			for b := a + 1; b < len(surnames); b++ {
				names = append(names, first+" "+surnames[a]+" "+surnames[b])
			}
		}
	}
	rng.Shuffle(len(names), func(i, j int) { names[i], names[j] = names[j], names[i] })

	window := int(g.config.AsOf.Sub(g.config.StartDate).Hours()/24) / 2
	if window < 1 {
		window = 1
	}

	students := make([]*models.Student, g.config.Students)
	for i := range students {
		n := installmentCounts[rng.Intn(len(installmentCounts))]
		each := installmentAmounts[rng.Intn(len(installmentAmounts))]
		students[i] = &models.Student{
			ID:                strconv.Itoa(i + 1),
			FullName:          names[i],
			CourseFee:         decimal.NewFromInt(each * int64(n)),
			TotalInstallments: n,
			PaymentMethod:     paymentMethods[rng.Intn(len(paymentMethods))],
			DueDay:            dueDays[rng.Intn(len(dueDays))],
			EnrollmentDate:    models.DateOnly(g.config.StartDate).AddDate(0, 0, rng.Intn(window)),
		}
	}
	return students
}

func (g *Generator) randomDate(rng *rand.Rand) time.Time {
	days := int(g.config.AsOf.Sub(g.config.StartDate).Hours() / 24)
	return models.DateOnly(g.config.StartDate).AddDate(0, 0, rng.Intn(days+1))
}

func paymentDescription(p *models.StudentPayment) string {
	name := models.Fold(p.StudentName)
	switch p.PaymentMethod {
	case models.PaymentBoleto:
		return "BOLETO PAGO - " + name
	case models.PaymentTransfer:
		return "TED RECEBIDA - " + name
	case models.PaymentCreditCard, models.PaymentDebitCard:
		return "CARTAO - " + name
	default:
		return "PIX RECEBIDO - " + name
	}
}

func document(rng *rand.Rand, method models.PaymentMethod) string {
	if method == models.PaymentBoleto {
		return fmt.Sprintf("BOL%05d", 10000+rng.Intn(90000))
	}
	return strconv.Itoa(100000 + rng.Intn(900000))
}

// rosterHeader matches the column names of the enrollment export
var rosterHeader = []string{
	"id", "fullName", "courseFee", "totalInstallments", "paymentMethod", "boletoDueDate", "enrollmentDate",
}

// WriteRosterCSV writes students in the enrollment export layout
func WriteRosterCSV(w io.Writer, students []*models.Student) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(rosterHeader); err != nil {
		return fmt.Errorf("failed to write roster header: %w", err)
	}

	for _, s := range students {
		record := []string{
			s.ID,
			s.FullName,
			s.CourseFee.StringFixed(2),
			strconv.Itoa(s.TotalInstallments),
			string(s.PaymentMethod),
			strconv.Itoa(s.DueDay),
			s.EnrollmentDate.Format(models.DateLayout),
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("failed to write student %s: %w", s.ID, err)
		}
	}

	writer.Flush()
	return writer.Error()
}

// WriteStatementCSV writes transactions the way Brazilian bank exports do:
// semicolon separated, dd/mm/yyyy dates, comma decimals, signed amounts
func WriteStatementCSV(w io.Writer, transactions []*models.BankTransaction) error {
	writer := csv.NewWriter(w)
	writer.Comma = ';'
	if err := writer.Write([]string{"data", "valor", "descricao", "documento"}); err != nil {
		return fmt.Errorf("failed to write statement header: %w", err)
	}

	for i, tx := range transactions {
		amount := tx.Amount
		if !tx.IsCredit() {
			amount = amount.Neg()
		}
		record := []string{
			tx.Date.Format(models.DisplayDateLayout),
			strings.Replace(amount.StringFixed(2), ".", ",", 1),
			tx.Description,
			tx.Document,
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("failed to write transaction %d: %w", i+1, err)
		}
	}

	writer.Flush()
	return writer.Error()
}
