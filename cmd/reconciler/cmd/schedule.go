package cmd

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"golang-tuition-reconciliation/cmd/reconciler/config"
	"golang-tuition-reconciliation/internal/models"
	"golang-tuition-reconciliation/internal/reconciler"
	"golang-tuition-reconciliation/pkg/errors"
	"golang-tuition-reconciliation/pkg/logger"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// scheduleCmd prints the installments expected from a roster
var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Print the installment schedule of a student roster",
	Long: `Schedule generates every student's installments from the roster and prints
them with their status on the reference date. No statement is read, so an
installment is pending until its grace period ends and overdue afterwards.

Examples:
  reconciler schedule --roster alunos.csv
  reconciler schedule --roster-db escola.db --as-of 2024-06-30 --output-format csv`,

	PreRunE: validateScheduleFlags,
	RunE:    runSchedule,
}

func init() {
	rootCmd.AddCommand(scheduleCmd)

	scheduleCmd.Flags().StringP("roster", "r", "", "student roster CSV file")
	scheduleCmd.Flags().String("roster-db", "", "SQLite database holding the student roster")
	scheduleCmd.Flags().String("as-of", "", "reference date YYYY-MM-DD (default: today)")
	scheduleCmd.Flags().Int("grace-days", 5, "days after the due date before an installment is overdue")
	scheduleCmd.Flags().String("encoding", "auto", "roster encoding: auto, utf-8, latin1")
	scheduleCmd.Flags().StringP("output-format", "f", "console", "output format: console, json, csv")
	scheduleCmd.Flags().StringP("output-file", "o", "", "output file path (default: stdout)")
}

func validateScheduleFlags(cmd *cobra.Command, args []string) error {
	if err := bindFlags(cmd); err != nil {
		return err
	}

	var problems []*errors.ReconcilerError
	if problem := validateRosterSource(viper.GetString("roster"), viper.GetString("roster-db")); problem != nil {
		problems = append(problems, problem)
	}
	if _, err := config.ParseAsOf(viper.GetString("as-of"), time.Now()); err != nil {
		problems = append(problems, asProblem(err))
	}
	if viper.GetInt("grace-days") < 0 {
		problems = append(problems, flagProblem(errors.CodeOutOfRange, "grace-days", "grace days cannot be negative"))
	}
	if err := config.ValidateEncoding(viper.GetString("encoding")); err != nil {
		problems = append(problems, asProblem(err))
	}
	switch format := viper.GetString("output-format"); strings.ToLower(format) {
	case "console", "json", "csv":
	default:
		problems = append(problems, errors.ConfigurationError(errors.CodeInvalidConfig, "output-format", format,
			fmt.Errorf("invalid output format '%s'. Valid formats: console, json, csv", format)))
	}
	if problem := validateOutputDir(viper.GetString("output-file")); problem != nil {
		problems = append(problems, problem)
	}

	if len(problems) > 0 {
		return errors.NewErrorSummary(problems)
	}
	return nil
}

func runSchedule(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	log := logger.WithComponent("cli")

	asOf, err := config.ParseAsOf(viper.GetString("as-of"), time.Now())
	if err != nil {
		return err
	}

	serviceConfig, err := config.CreateServiceConfig(nil, viper.GetInt("grace-days"), viper.GetString("encoding"))
	if err != nil {
		return err
	}
	service, err := reconciler.NewReconciliationService(serviceConfig)
	if err != nil {
		return fmt.Errorf("failed to create reconciliation service: %w", err)
	}

	payments, warnings, err := service.GenerateSchedule(ctx, &reconciler.ReconciliationRequest{
		RosterFile: viper.GetString("roster"),
		RosterDB:   viper.GetString("roster-db"),
		AsOf:       asOf,
	})
	if err != nil {
		return err
	}
	for _, w := range warnings {
		log.Warn(w)
	}

	output, closeOutput, err := openOutput(viper.GetString("output-file"), cmd.OutOrStdout())
	if err != nil {
		return err
	}
	defer closeOutput()

	return writeSchedule(output, payments, strings.ToLower(viper.GetString("output-format")), asOf)
}

// scheduleEntry is the exported shape of one installment
type scheduleEntry struct {
	ID            string `json:"id"`
	StudentID     string `json:"student_id"`
	StudentName   string `json:"student_name"`
	Installment   string `json:"installment"`
	DueDate       string `json:"due_date"`
	Amount        string `json:"amount"`
	PaymentMethod string `json:"payment_method"`
	Status        string `json:"status"`
	DaysOverdue   int    `json:"days_overdue,omitempty"`
}

func newScheduleEntry(p *models.StudentPayment, asOf time.Time) scheduleEntry {
	entry := scheduleEntry{
		ID:            p.ID(),
		StudentID:     p.StudentID,
		StudentName:   p.StudentName,
		Installment:   fmt.Sprintf("%d/%d", p.InstallmentNumber, p.TotalInstallments),
		DueDate:       p.DueDate.Format(models.DateLayout),
		Amount:        p.Amount.StringFixed(2),
		PaymentMethod: string(p.PaymentMethod),
		Status:        string(p.Status),
	}
	if p.Status == models.StatusOverdue {
		entry.DaysOverdue = p.DaysOverdue(asOf)
	}
	return entry
}

// writeSchedule renders payments as console text, JSON or CSV
func writeSchedule(w io.Writer, payments []*models.StudentPayment, format string, asOf time.Time) error {
	entries := make([]scheduleEntry, len(payments))
	for i, p := range payments {
		entries[i] = newScheduleEntry(p, asOf)
	}

	switch format {
	case "json":
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		return encoder.Encode(entries)

	case "csv":
		writer := csv.NewWriter(w)
		header := []string{"ID", "Student_ID", "Student_Name", "Installment", "Due_Date", "Amount", "Payment_Method", "Status", "Days_Overdue"}
		if err := writer.Write(header); err != nil {
			return fmt.Errorf("failed to write CSV header: %w", err)
		}
		for _, e := range entries {
			days := ""
			if e.DaysOverdue > 0 {
				days = strconv.Itoa(e.DaysOverdue)
			}
			record := []string{e.ID, e.StudentID, e.StudentName, e.Installment, e.DueDate, e.Amount, e.PaymentMethod, e.Status, days}
			if err := writer.Write(record); err != nil {
				return fmt.Errorf("failed to write installment %s: %w", e.ID, err)
			}
		}
		writer.Flush()
		return writer.Error()

	default:
		if _, err := fmt.Fprintf(w, "INSTALLMENT SCHEDULE (reference date %s)\n\n", asOf.Format(models.DisplayDateLayout)); err != nil {
			return err
		}
		for _, e := range entries {
			line := fmt.Sprintf("%-12s %-30s %6s  %s  R$ %10s  %-13s %s",
				e.ID, e.StudentName, e.Installment, e.DueDate, e.Amount, e.PaymentMethod, e.Status)
			if e.DaysOverdue > 0 {
				line += fmt.Sprintf(" (%d days)", e.DaysOverdue)
			}
			if _, err := fmt.Fprintln(w, line); err != nil {
				return err
			}
		}
		_, err := fmt.Fprintf(w, "\nTotal installments: %d\n", len(entries))
		return err
	}
}
