// Package reporter turns reconciliation results into compliance metrics and
// reports for the finance team.
//
// Supported output formats:
//   - Console: human-readable summary for terminal display
//   - JSON: metrics, summary and report rows for programmatic consumption
//   - CSV: one line per report row for spreadsheet applications
//   - Msgpack: the metrics summary as a compact binary document
//
// Example usage:
//
//	generator, err := reporter.NewReportGenerator(&reporter.ReportConfig{Format: reporter.FormatJSON})
//	err = generator.GenerateReport(result, os.Stdout)
package reporter

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"golang-tuition-reconciliation/internal/models"
	"golang-tuition-reconciliation/internal/reconciler"

	"github.com/shopspring/decimal"
	"github.com/vmihailenco/msgpack/v5"
)

// OutputFormat represents the supported report output formats
type OutputFormat string

const (
	FormatConsole OutputFormat = "console"
	FormatJSON    OutputFormat = "json"
	FormatCSV     OutputFormat = "csv"
	FormatMsgpack OutputFormat = "msgpack"
)

// IsValid checks if the output format is supported
func (f OutputFormat) IsValid() bool {
	switch f {
	case FormatConsole, FormatJSON, FormatCSV, FormatMsgpack:
		return true
	default:
		return false
	}
}

// ReportConfig holds configuration options for report generation
type ReportConfig struct {
	// Output format
	Format OutputFormat `json:"format"`

	// Detail level options
	IncludeMatched   bool `json:"include_matched"`
	IncludeOverdue   bool `json:"include_overdue"`
	IncludeUnmatched bool `json:"include_unmatched"`
	IncludeWarnings  bool `json:"include_warnings"`
	IncludeInputs    bool `json:"include_inputs"`

	// Console formatting options
	TableMaxWidth  int `json:"table_max_width"`
	MaxConsoleRows int `json:"max_console_rows"`

	// CSV options
	CSVDelimiter rune `json:"csv_delimiter"`
	CSVHeaders   bool `json:"csv_headers"`
}

// DefaultReportConfig returns a default report configuration
func DefaultReportConfig() *ReportConfig {
	return &ReportConfig{
		Format:           FormatConsole,
		IncludeMatched:   true,
		IncludeOverdue:   true,
		IncludeUnmatched: true,
		IncludeWarnings:  true,
		IncludeInputs:    true,
		TableMaxWidth:    120,
		MaxConsoleRows:   10,
		CSVDelimiter:     ',',
		CSVHeaders:       true,
	}
}

// Validate validates the report configuration
func (c *ReportConfig) Validate() error {
	if !c.Format.IsValid() {
		return fmt.Errorf("invalid output format: %s", c.Format)
	}

	if c.TableMaxWidth < 50 {
		return fmt.Errorf("table max width must be at least 50 characters, got %d", c.TableMaxWidth)
	}

	if c.MaxConsoleRows < 0 {
		return fmt.Errorf("max console rows cannot be negative, got %d", c.MaxConsoleRows)
	}

	if c.CSVDelimiter == 0 || c.CSVDelimiter == '"' || c.CSVDelimiter == '\n' || c.CSVDelimiter == '\r' {
		return fmt.Errorf("invalid CSV delimiter: %q", c.CSVDelimiter)
	}

	return nil
}

// ReportGenerator generates reconciliation reports in various formats
type ReportGenerator struct {
	config *ReportConfig
}

// NewReportGenerator creates a new report generator with the specified configuration
func NewReportGenerator(config *ReportConfig) (*ReportGenerator, error) {
	if config == nil {
		config = DefaultReportConfig()
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid report configuration: %w", err)
	}

	return &ReportGenerator{
		config: config,
	}, nil
}

// GenerateReport generates a report from reconciliation results and writes it to the provided writer
func (rg *ReportGenerator) GenerateReport(result *reconciler.ReconciliationResult, writer io.Writer) error {
	if result == nil {
		return fmt.Errorf("reconciliation result cannot be nil")
	}
	if result.Summary == nil {
		return fmt.Errorf("reconciliation result has no summary")
	}

	switch rg.config.Format {
	case FormatConsole:
		return rg.generateConsoleReport(result, writer)
	case FormatJSON:
		return rg.generateJSONReport(result, writer)
	case FormatCSV:
		return rg.generateCSVReport(result, writer)
	case FormatMsgpack:
		return rg.generateMsgpackReport(result, writer)
	default:
		return fmt.Errorf("unsupported output format: %s", rg.config.Format)
	}
}

// generateConsoleReport generates a human-readable console report
func (rg *ReportGenerator) generateConsoleReport(result *reconciler.ReconciliationResult, writer io.Writer) error {
	metrics := ComputeMetrics(result)
	rows := BuildReport(result)

	ew := &errWriter{w: writer}
	writer = ew

	fmt.Fprintf(writer, "TUITION RECONCILIATION REPORT\n")
	fmt.Fprintf(writer, "Run: %s\n", result.RunID)
	fmt.Fprintf(writer, "Reference date: %s\n", result.AsOf.Format(models.DisplayDateLayout))
	fmt.Fprintf(writer, "Generated: %s\n", result.ProcessedAt.Format(time.RFC3339))
	fmt.Fprintf(writer, "Processing Duration: %v\n\n", result.Summary.ProcessingDuration)

	fmt.Fprintf(writer, "=== SUMMARY ===\n")
	rg.printSummaryTable(result.Summary, writer)
	fmt.Fprintf(writer, "\n")

	fmt.Fprintf(writer, "=== COMPLIANCE METRICS ===\n")
	rg.printComplianceMetrics(metrics, writer)
	fmt.Fprintf(writer, "\n")

	fmt.Fprintf(writer, "=== FINANCIAL SUMMARY ===\n")
	rg.printFinancialSummary(metrics, writer)
	fmt.Fprintf(writer, "\n")

	sections := []struct {
		kind    RowKind
		include bool
		title   string
	}{
		{RowMatched, rg.config.IncludeMatched, "MATCHED PAYMENTS"},
		{RowOverdue, rg.config.IncludeOverdue, "OVERDUE INSTALLMENTS"},
		{RowUnmatchedTransaction, rg.config.IncludeUnmatched, "UNMATCHED TRANSACTIONS"},
	}
	for _, section := range sections {
		group := rowsOfKind(rows, section.kind)
		if !section.include || len(group) == 0 {
			continue
		}
		fmt.Fprintf(writer, "=== %s ===\n", section.title)
		rg.printRows(group, writer)
		fmt.Fprintf(writer, "\n")
	}

	if rg.config.IncludeWarnings && len(result.Warnings) > 0 {
		fmt.Fprintf(writer, "=== WARNINGS ===\n")
		for _, w := range result.Warnings {
			fmt.Fprintf(writer, "  - %s\n", rg.fit(w, 4))
		}
		fmt.Fprintf(writer, "\n")
	}

	if rg.config.IncludeInputs && result.Inputs != nil {
		fmt.Fprintf(writer, "=== PROCESSING STATISTICS ===\n")
		rg.printInputStats(result.Inputs, writer)
	}

	return ew.err
}

// errWriter keeps the first write error so a long run of Fprintf calls can
// be checked once
type errWriter struct {
	w   io.Writer
	err error
}

func (ew *errWriter) Write(p []byte) (int, error) {
	if ew.err != nil {
		return 0, ew.err
	}
	n, err := ew.w.Write(p)
	ew.err = err
	return n, err
}

// jsonReport is the document written by the JSON format
type jsonReport struct {
	RunID       string                    `json:"run_id"`
	AsOf        string                    `json:"as_of"`
	ProcessedAt time.Time                 `json:"processed_at"`
	Summary     *reconciler.ResultSummary `json:"summary"`
	Metrics     *Metrics                  `json:"metrics"`
	Rows        []ReportRow               `json:"rows"`
	Warnings    []string                  `json:"warnings,omitempty"`
	Inputs      *reconciler.InputStats    `json:"inputs,omitempty"`
}

// generateJSONReport generates a structured JSON report
func (rg *ReportGenerator) generateJSONReport(result *reconciler.ReconciliationResult, writer io.Writer) error {
	report := jsonReport{
		RunID:       result.RunID,
		AsOf:        result.AsOf.Format(models.DateLayout),
		ProcessedAt: result.ProcessedAt,
		Summary:     result.Summary,
		Metrics:     ComputeMetrics(result),
		Rows:        rg.filterRows(BuildReport(result)),
	}
	if rg.config.IncludeWarnings {
		report.Warnings = result.Warnings
	}
	if rg.config.IncludeInputs {
		report.Inputs = result.Inputs
	}

	encoder := json.NewEncoder(writer)
	encoder.SetIndent("", "  ")

	return encoder.Encode(report)
}

// csvHeaders are the column names of the CSV report
var csvHeaders = []string{
	"Kind",
	"Student_ID",
	"Student_Name",
	"Installment",
	"Due_Date",
	"Payment_Date",
	"Expected",
	"Received",
	"Difference",
	"Score",
	"Days_Overdue",
	"Description",
	"Channel",
	"Reference",
}

// generateCSVReport generates a CSV report with one line per report row
func (rg *ReportGenerator) generateCSVReport(result *reconciler.ReconciliationResult, writer io.Writer) error {
	csvWriter := csv.NewWriter(writer)
	csvWriter.Comma = rg.config.CSVDelimiter

	if rg.config.CSVHeaders {
		if err := csvWriter.Write(csvHeaders); err != nil {
			return fmt.Errorf("failed to write CSV headers: %w", err)
		}
	}

	for _, row := range rg.filterRows(BuildReport(result)) {
		if err := csvWriter.Write(csvRecord(row)); err != nil {
			return fmt.Errorf("failed to write %s record: %w", row.Kind, err)
		}
	}

	csvWriter.Flush()
	return csvWriter.Error()
}

// generateMsgpackReport writes the metrics summary as msgpack
func (rg *ReportGenerator) generateMsgpackReport(result *reconciler.ReconciliationResult, writer io.Writer) error {
	if err := msgpack.NewEncoder(writer).Encode(ComputeMetrics(result)); err != nil {
		return fmt.Errorf("failed to encode metrics: %w", err)
	}
	return nil
}

// DecodeMetrics reads a metrics summary written by the msgpack format
func DecodeMetrics(reader io.Reader) (*Metrics, error) {
	var metrics Metrics
	if err := msgpack.NewDecoder(reader).Decode(&metrics); err != nil {
		return nil, fmt.Errorf("failed to decode metrics: %w", err)
	}
	return &metrics, nil
}

// Helper methods for console output formatting

func (rg *ReportGenerator) printSummaryTable(summary *reconciler.ResultSummary, writer io.Writer) {
	fmt.Fprintf(writer, "Transactions:\n")
	fmt.Fprintf(writer, "  Total:     %d\n", summary.TotalTransactions)
	fmt.Fprintf(writer, "  Credits:   %d\n", summary.CreditTransactions)
	fmt.Fprintf(writer, "  Debits:    %d\n", summary.DebitTransactions)
	if summary.SkippedTransactions > 0 {
		fmt.Fprintf(writer, "  Skipped:   %d\n", summary.SkippedTransactions)
	}
	fmt.Fprintf(writer, "  Matched:   %d (%.1f%%)\n",
		summary.MatchedTransactions,
		rg.calculatePercentage(summary.MatchedTransactions, summary.CreditTransactions))
	fmt.Fprintf(writer, "  Unmatched: %d (%.1f%%)\n",
		summary.UnmatchedTransactions,
		rg.calculatePercentage(summary.UnmatchedTransactions, summary.CreditTransactions))

	fmt.Fprintf(writer, "\nInstallments:\n")
	fmt.Fprintf(writer, "  Total:           %d\n", summary.TotalPayments)
	fmt.Fprintf(writer, "  Paid this run:   %d\n", summary.PaidThisRun)
	if summary.PreviouslyPaid > 0 {
		fmt.Fprintf(writer, "  Previously paid: %d\n", summary.PreviouslyPaid)
	}
	fmt.Fprintf(writer, "  Pending:         %d\n", summary.PendingPayments)
	fmt.Fprintf(writer, "  Overdue:         %d\n", summary.OverduePayments)
}

func (rg *ReportGenerator) printComplianceMetrics(metrics *Metrics, writer io.Writer) {
	fmt.Fprintf(writer, "Adimplência:         %6.2f%% (%d installments, %s)\n",
		metrics.Adimplencia.Rate, metrics.Adimplencia.Count, formatBRL(metrics.Adimplencia.Amount))
	fmt.Fprintf(writer, "Inadimplência:       %6.2f%% (%d installments, %s)\n",
		metrics.Inadimplente.Rate, metrics.Inadimplente.Count, formatBRL(metrics.Inadimplente.Amount))
	fmt.Fprintf(writer, "Taxa identificação:  %6.2f%% (%d of %d credits)\n",
		metrics.Conciliacao.TaxaIdentificacao,
		metrics.Conciliacao.IdentifiedTransactions,
		metrics.Conciliacao.TotalTransactions)
	fmt.Fprintf(writer, "Eficiência cobrança: %6.2f%%\n", metrics.Financeiro.EficienciaCobranca)

	if metrics.Atraso.Installments > 0 {
		fmt.Fprintf(writer, "Days overdue:        avg %.1f, median %.0f, max %d\n",
			metrics.Atraso.AverageDays, metrics.Atraso.MedianDays, metrics.Atraso.MaxDaysOverdue)
	}
}

func (rg *ReportGenerator) printFinancialSummary(metrics *Metrics, writer io.Writer) {
	fmt.Fprintf(writer, "Total Received: %s\n", formatBRL(metrics.Financeiro.TotalReceived))
	fmt.Fprintf(writer, "Total Expected: %s\n", formatBRL(metrics.Financeiro.TotalExpected))
	fmt.Fprintf(writer, "Total Overdue:  %s\n", formatBRL(metrics.Financeiro.TotalOverdue))
}

func (rg *ReportGenerator) printRows(rows []ReportRow, writer io.Writer) {
	fmt.Fprintf(writer, "Total: %d\n", len(rows))

	for i, row := range rows {
		var line string
		switch row.Kind {
		case RowMatched:
			line = fmt.Sprintf("%d. %s (%s) parcela %s, paid %s, expected %s, received %s, score %.2f",
				i+1, row.StudentName, row.StudentID, row.Installment,
				row.PaymentDate.Format(models.DisplayDateLayout),
				formatBRL(row.Expected), formatBRL(row.Received), row.Score)
		case RowOverdue:
			line = fmt.Sprintf("%d. %s (%s) parcela %s, due %s, %s, %d days overdue",
				i+1, row.StudentName, row.StudentID, row.Installment,
				row.DueDate.Format(models.DisplayDateLayout), formatBRL(row.Expected), row.DaysOverdue)
		default:
			line = fmt.Sprintf("%d. %s %s %q",
				i+1, row.PaymentDate.Format(models.DisplayDateLayout), formatBRL(row.Received), row.Description)
			if row.Channel != "" {
				line += fmt.Sprintf(" [%s %s]", row.Channel, row.Reference)
			}
		}
		fmt.Fprintf(writer, "  %s\n", rg.fit(line, 2))

		if rg.config.MaxConsoleRows > 0 && i+1 >= rg.config.MaxConsoleRows && len(rows) > rg.config.MaxConsoleRows {
			fmt.Fprintf(writer, "  ... and %d more\n", len(rows)-rg.config.MaxConsoleRows)
			break
		}
	}
}

func (rg *ReportGenerator) printInputStats(inputs *reconciler.InputStats, writer io.Writer) {
	fmt.Fprintf(writer, "Statement Files:      %d\n", inputs.StatementFiles)
	fmt.Fprintf(writer, "Statement Rows:       %d\n", inputs.StatementRows)
	fmt.Fprintf(writer, "Skipped Rows:         %d\n", inputs.SkippedRows)
	fmt.Fprintf(writer, "Students:             %d\n", inputs.Students)
	fmt.Fprintf(writer, "Skipped Students:     %d\n", inputs.SkippedStudents)
	fmt.Fprintf(writer, "Installments:         %d\n", inputs.Installments)
	fmt.Fprintf(writer, "Parsing Time:         %v\n", inputs.ParsingTime)
	fmt.Fprintf(writer, "Generation Time:      %v\n", inputs.GenerationTime)
	fmt.Fprintf(writer, "Reconcile Time:       %v\n", inputs.ReconcileTime)
	fmt.Fprintf(writer, "Total Processing:     %v\n", inputs.TotalProcessTime)
}

// Helper methods

func (rg *ReportGenerator) calculatePercentage(part, total int) float64 {
	return percentage(float64(part), float64(total))
}

// fit shortens line so that it fits the table width after indent columns
func (rg *ReportGenerator) fit(line string, indent int) string {
	width := rg.config.TableMaxWidth - indent
	if len([]rune(line)) <= width {
		return line
	}
	return truncate(line, width-3) + "..."
}

func (rg *ReportGenerator) filterRows(rows []ReportRow) []ReportRow {
	filtered := make([]ReportRow, 0, len(rows))
	for _, row := range rows {
		switch {
		case row.Kind == RowMatched && !rg.config.IncludeMatched:
		case row.Kind == RowOverdue && !rg.config.IncludeOverdue:
		case row.Kind == RowUnmatchedTransaction && !rg.config.IncludeUnmatched:
		default:
			filtered = append(filtered, row)
		}
	}
	return filtered
}

// UpdateConfiguration updates the report generator configuration
func (rg *ReportGenerator) UpdateConfiguration(config *ReportConfig) error {
	if err := config.Validate(); err != nil {
		return fmt.Errorf("invalid report configuration: %w", err)
	}

	rg.config = config
	return nil
}

// GetConfiguration returns the current configuration
func (rg *ReportGenerator) GetConfiguration() *ReportConfig {
	return rg.config
}

func rowsOfKind(rows []ReportRow, kind RowKind) []ReportRow {
	var group []ReportRow
	for _, row := range rows {
		if row.Kind == kind {
			group = append(group, row)
		}
	}
	return group
}

func csvRecord(row ReportRow) []string {
	score := ""
	if row.Kind == RowMatched {
		score = strconv.FormatFloat(row.Score, 'f', -1, 64)
	}
	daysOverdue := ""
	if row.Kind == RowOverdue {
		daysOverdue = strconv.Itoa(row.DaysOverdue)
	}

	return []string{
		string(row.Kind),
		row.StudentID,
		row.StudentName,
		row.Installment,
		formatDate(row.DueDate),
		formatDate(row.PaymentDate),
		row.Expected.StringFixed(2),
		row.Received.StringFixed(2),
		row.Difference.StringFixed(2),
		score,
		daysOverdue,
		row.Description,
		string(row.Channel),
		row.Reference,
	}
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(models.DateLayout)
}

// formatBRL renders an amount the way Brazilian statements do: R$ 1.234,56
func formatBRL(d decimal.Decimal) string {
	fixed := d.Abs().StringFixed(2)
	intPart, fracPart, _ := strings.Cut(fixed, ".")

	var grouped strings.Builder
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			grouped.WriteByte('.')
		}
		grouped.WriteRune(r)
	}

	sign := ""
	if d.IsNegative() {
		sign = "-"
	}
	return fmt.Sprintf("%sR$ %s,%s", sign, grouped.String(), fracPart)
}
