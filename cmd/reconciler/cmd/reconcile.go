package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang-tuition-reconciliation/cmd/reconciler/config"
	"golang-tuition-reconciliation/internal/reconciler"
	"golang-tuition-reconciliation/internal/reporter"
	"golang-tuition-reconciliation/pkg/errors"
	"golang-tuition-reconciliation/pkg/logger"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Flags for the reconcile command
var (
	statementFiles  []string
	rosterFile      string
	rosterDB        string
	asOfDate        string
	toleranceAmount float64
	toleranceDays   int
	matchThreshold  float64
	graceDays       int
	encoding        string
	outputFormat    string
	outputFile      string
)

// reconcileCmd represents the reconcile command
var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Reconcile bank statements with the expected tuition installments",
	Long: `Reconcile generates every student's installment schedule from the roster
and matches the credits of the bank statements against it. Each credit is
scored on amount, date and name evidence and assigned to the best open
installment.

This command requires:
- One or more bank statement files (CSV, pt-BR or English headers)
- A roster, either a CSV file (--roster) or a SQLite database (--roster-db)

Examples:
  # Basic reconciliation
  reconciler reconcile --statement extrato.csv --roster alunos.csv

  # Several statements, reference date and JSON output
  reconciler reconcile --statement jan.csv --statement fev.csv --roster alunos.csv \
    --as-of 2024-03-15 --output-format json --output-file relatorio.json

  # Roster stored in SQLite, looser matching
  reconciler reconcile --statement extrato.csv --roster-db escola.db \
    --tolerance-amount 10 --tolerance-days 5 --match-threshold 0.5

  # Latin-1 exports from older internet banking
  reconciler reconcile --statement extrato.csv --roster alunos.csv --encoding latin1`,

	PreRunE: validateReconcileFlags,
	RunE:    runReconcile,
}

func init() {
	rootCmd.AddCommand(reconcileCmd)

	// Input flags
	reconcileCmd.Flags().StringSliceVarP(&statementFiles, "statement", "s", []string{}, "bank statement CSV file; repeat or comma-separate for several (required)")
	reconcileCmd.Flags().StringVarP(&rosterFile, "roster", "r", "", "student roster CSV file")
	reconcileCmd.Flags().StringVar(&rosterDB, "roster-db", "", "SQLite database holding the student roster")
	reconcileCmd.Flags().StringVar(&asOfDate, "as-of", "", "reference date YYYY-MM-DD (default: today)")
	reconcileCmd.Flags().StringVar(&encoding, "encoding", "auto", "input encoding: auto, utf-8, latin1")

	// Matching configuration flags
	reconcileCmd.Flags().Float64Var(&toleranceAmount, "tolerance-amount", 5.0, "largest amount difference in reais that still scores")
	reconcileCmd.Flags().IntVar(&toleranceDays, "tolerance-days", 3, "largest date difference in days that still scores")
	reconcileCmd.Flags().Float64Var(&matchThreshold, "match-threshold", 0.6, "score a pair must exceed to match (0.0-1.0)")
	reconcileCmd.Flags().IntVar(&graceDays, "grace-days", 5, "days after the due date before an installment is overdue")

	// Output flags
	reconcileCmd.Flags().StringVarP(&outputFormat, "output-format", "f", "console", "output format: console, json, csv, msgpack")
	reconcileCmd.Flags().StringVarP(&outputFile, "output-file", "o", "", "output file path (default: stdout)")
}

func validateReconcileFlags(cmd *cobra.Command, args []string) error {
	if err := bindFlags(cmd); err != nil {
		return err
	}

	// Get values from viper (allows override from config file and environment)
	statementFiles = viper.GetStringSlice("statement")
	rosterFile = viper.GetString("roster")
	rosterDB = viper.GetString("roster-db")
	asOfDate = viper.GetString("as-of")
	toleranceAmount = viper.GetFloat64("tolerance-amount")
	toleranceDays = viper.GetInt("tolerance-days")
	matchThreshold = viper.GetFloat64("match-threshold")
	graceDays = viper.GetInt("grace-days")
	encoding = viper.GetString("encoding")
	outputFormat = viper.GetString("output-format")
	outputFile = viper.GetString("output-file")

	var problems []*errors.ReconcilerError

	if len(statementFiles) == 0 {
		problems = append(problems, flagProblem(errors.CodeMissingField, "statement",
			"at least one statement file is required"))
	}
	for i, file := range statementFiles {
		if problem := validateFileExists(file, fmt.Sprintf("statement file %d", i+1)); problem != nil {
			problems = append(problems, problem)
		}
	}

	if problem := validateRosterSource(rosterFile, rosterDB); problem != nil {
		problems = append(problems, problem)
	}

	if _, err := config.ParseAsOf(asOfDate, time.Now()); err != nil {
		problems = append(problems, asProblem(err))
	}

	if !reporter.OutputFormat(strings.ToLower(outputFormat)).IsValid() {
		problems = append(problems, errors.ConfigurationError(errors.CodeInvalidConfig, "output-format", outputFormat,
			fmt.Errorf("invalid output format '%s'. Valid formats: console, json, csv, msgpack", outputFormat)))
	}

	if err := config.ValidateEncoding(encoding); err != nil {
		problems = append(problems, asProblem(err))
	}

	if toleranceAmount < 0 {
		problems = append(problems, flagProblem(errors.CodeOutOfRange, "tolerance-amount",
			"amount tolerance cannot be negative"))
	}
	if toleranceDays < 0 {
		problems = append(problems, flagProblem(errors.CodeOutOfRange, "tolerance-days",
			"date tolerance cannot be negative"))
	}
	if matchThreshold < 0.0 || matchThreshold > 1.0 {
		problems = append(problems, flagProblem(errors.CodeOutOfRange, "match-threshold",
			"match threshold must be between 0.0 and 1.0"))
	}
	if graceDays < 0 {
		problems = append(problems, flagProblem(errors.CodeOutOfRange, "grace-days",
			"grace days cannot be negative"))
	}

	if problem := validateOutputDir(outputFile); problem != nil {
		problems = append(problems, problem)
	}

	if len(problems) > 0 {
		return errors.NewErrorSummary(problems)
	}
	return nil
}

// flagProblem reports an invalid flag value
func flagProblem(code errors.ErrorCode, flag, message string) *errors.ReconcilerError {
	return errors.New(errors.CategoryValidation, code, message).WithContext("flag", flag)
}

// asProblem keeps the category of a ReconcilerError and treats any other
// error as invalid input
func asProblem(err error) *errors.ReconcilerError {
	if reconcilerErr, ok := errors.AsReconcilerError(err); ok {
		return reconcilerErr
	}
	return errors.New(errors.CategoryValidation, errors.CodeInvalidInput, err.Error())
}

// validateRosterSource requires exactly one of the roster file and the
// roster database
func validateRosterSource(file, db string) *errors.ReconcilerError {
	switch {
	case file == "" && db == "":
		return flagProblem(errors.CodeMissingField, "roster", "a roster is required: use --roster or --roster-db")
	case file != "" && db != "":
		return flagProblem(errors.CodeInvalidInput, "roster", "--roster and --roster-db cannot be used together")
	case file != "":
		return validateFileExists(file, "roster file")
	default:
		return validateFileExists(db, "roster database")
	}
}

func validateFileExists(filePath, description string) *errors.ReconcilerError {
	if filePath == "" {
		return errors.New(errors.CategoryValidation, errors.CodeMissingField,
			fmt.Sprintf("%s path cannot be empty", description))
	}

	info, err := os.Stat(filePath)
	if os.IsNotExist(err) {
		return errors.New(errors.CategoryFile, errors.CodeFileNotFound,
			fmt.Sprintf("%s does not exist: %s", description, filePath)).
			WithContext("file_path", filePath)
	}
	if err != nil {
		return errors.Wrap(err, errors.CategoryFile, errors.CodeFilePermission,
			fmt.Sprintf("error accessing %s", description)).
			WithContext("file_path", filePath)
	}

	if info.IsDir() {
		return errors.New(errors.CategoryFile, errors.CodeNotAFile,
			fmt.Sprintf("%s is a directory, expected a file: %s", description, filePath)).
			WithContext("file_path", filePath)
	}

	// Check if file is readable
	file, err := os.Open(filePath)
	if err != nil {
		return errors.Wrap(err, errors.CategoryFile, errors.CodeFilePermission,
			fmt.Sprintf("%s is not readable", description)).
			WithContext("file_path", filePath)
	}
	file.Close()

	return nil
}

// validateOutputDir checks that the directory of an output file exists
func validateOutputDir(outputFile string) *errors.ReconcilerError {
	if outputFile == "" {
		return nil
	}
	dir := filepath.Dir(outputFile)
	if dir == "." {
		return nil
	}
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return errors.New(errors.CategoryFile, errors.CodeFileNotFound,
			fmt.Sprintf("output directory does not exist: %s", dir)).
			WithContext("file_path", outputFile)
	}
	return nil
}

func runReconcile(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	log := logger.WithComponent("cli")

	asOf, err := config.ParseAsOf(asOfDate, time.Now())
	if err != nil {
		return err
	}

	log.WithFields(logger.Fields{
		"statements":    strings.Join(statementFiles, ", "),
		"roster":        rosterFile,
		"roster_db":     rosterDB,
		"as_of":         asOf.Format("2006-01-02"),
		"output_format": outputFormat,
	}).Info("Starting reconciliation")

	// Create configurations
	matchingConfig, err := config.CreateMatchingConfig(toleranceAmount, toleranceDays, matchThreshold)
	if err != nil {
		return err
	}

	serviceConfig, err := config.CreateServiceConfig(matchingConfig, graceDays, encoding)
	if err != nil {
		return err
	}

	reportConfig, err := config.CreateReportConfig(outputFormat)
	if err != nil {
		return err
	}

	service, err := reconciler.NewReconciliationService(serviceConfig)
	if err != nil {
		return fmt.Errorf("failed to create reconciliation service: %w", err)
	}

	if err := service.ValidateStatements(statementFiles); err != nil {
		return err
	}

	result, err := service.ProcessReconciliation(ctx, &reconciler.ReconciliationRequest{
		StatementFiles: statementFiles,
		RosterFile:     rosterFile,
		RosterDB:       rosterDB,
		AsOf:           asOf,
	})
	if err != nil {
		return fmt.Errorf("reconciliation failed: %w", err)
	}

	reportGenerator, err := reporter.NewSafeReportGenerator(reportConfig, log)
	if err != nil {
		return err
	}

	output, closeOutput, err := openOutput(outputFile, cmd.OutOrStdout())
	if err != nil {
		return err
	}
	defer closeOutput()

	if err := reportGenerator.GenerateReportSafely(result, output); err != nil {
		return err
	}

	log.WithFields(logger.Fields{
		"run_id":      result.RunID,
		"matched":     result.Summary.MatchedTransactions,
		"unmatched":   result.Summary.UnmatchedTransactions,
		"overdue":     result.Summary.OverduePayments,
		"warnings":    len(result.Warnings),
		"output_file": outputFile,
	}).Info("Reconciliation completed successfully")

	return nil
}

// openOutput returns the file at path, or fallback when path is empty
func openOutput(path string, fallback io.Writer) (io.Writer, func(), error) {
	if path == "" {
		return fallback, func() {}, nil
	}
	file, err := os.Create(path)
	if err != nil {
		return nil, nil, errors.FileError(errors.CodeFilePermission, path, err).
			WithSuggestion("Check that the output directory is writable")
	}
	return file, func() { file.Close() }, nil
}
