// Package reconciler matches bank statement credits against the expected
// tuition installments of a student roster.
//
// Engine is the pure core: one greedy pass over in-memory records that
// returns fresh collections and never touches the caller's data.
// ReconciliationService wraps it with the file and database loading a run
// needs.
//
// Example usage:
//
//	service, err := reconciler.NewReconciliationService(nil)
//	result, err := service.ProcessReconciliation(ctx, &reconciler.ReconciliationRequest{
//		StatementFiles: []string{"extrato_maio.csv"},
//		RosterFile:     "alunos.csv",
//		AsOf:           time.Now(),
//	})
package reconciler

import (
	"context"
	"fmt"
	"time"

	"golang-tuition-reconciliation/internal/matcher"
	"golang-tuition-reconciliation/internal/models"
	"golang-tuition-reconciliation/internal/parsers"
	"golang-tuition-reconciliation/internal/schedule"
	"golang-tuition-reconciliation/internal/storage"
	"golang-tuition-reconciliation/pkg/errors"
	"golang-tuition-reconciliation/pkg/logger"
)

// ReconciliationService runs the full pipeline: load the roster and the
// statements, generate the expected installments and reconcile them.
type ReconciliationService struct {
	statementParser *parsers.StatementParser
	rosterParser    *parsers.RosterParser
	generator       *schedule.Generator
	engine          *Engine
	config          *Config
	logger          logger.Logger
}

// Config holds the component configurations of the service
type Config struct {
	Matching  *matcher.MatchingConfig
	Schedule  *schedule.Config
	Statement *parsers.StatementConfig
	Roster    *parsers.RosterConfig
}

// DefaultConfig returns a default configuration for the reconciliation service
func DefaultConfig() *Config {
	return &Config{
		Matching:  matcher.DefaultMatchingConfig(),
		Schedule:  schedule.DefaultConfig(),
		Statement: parsers.DefaultStatementConfig(),
		Roster:    parsers.DefaultRosterConfig(),
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Matching == nil || c.Schedule == nil || c.Statement == nil || c.Roster == nil {
		return errors.ConfigurationError(errors.CodeMissingConfig, "service", nil,
			fmt.Errorf("matching, schedule, statement and roster configurations are required"))
	}
	if err := c.Matching.Validate(); err != nil {
		return err
	}
	if err := c.Schedule.Validate(); err != nil {
		return err
	}
	if err := c.Statement.Validate(); err != nil {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "statement", c.Statement.Name, err)
	}
	if err := c.Roster.Validate(); err != nil {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "roster", nil, err)
	}
	return nil
}

// ReconciliationRequest names the inputs of one run. Exactly one of
// RosterFile and RosterDB must be set.
type ReconciliationRequest struct {
	StatementFiles []string
	RosterFile     string
	RosterDB       string
	AsOf           time.Time
}

// Validate validates the reconciliation request
func (r *ReconciliationRequest) Validate() error {
	if len(r.StatementFiles) == 0 {
		return errors.ValidationError(errors.CodeMissingField, "statement", nil,
			fmt.Errorf("at least one statement file is required"))
	}
	return r.validateRoster()
}

func (r *ReconciliationRequest) validateRoster() error {
	switch {
	case r.RosterFile == "" && r.RosterDB == "":
		return errors.ValidationError(errors.CodeMissingField, "roster", nil,
			fmt.Errorf("a roster file or roster database is required"))
	case r.RosterFile != "" && r.RosterDB != "":
		return errors.ValidationError(errors.CodeInvalidInput, "roster", r.RosterFile,
			fmt.Errorf("roster file and roster database are mutually exclusive"))
	case r.AsOf.IsZero():
		return errors.ValidationError(errors.CodeMissingField, "as_of", nil,
			fmt.Errorf("as-of date is required"))
	}
	return nil
}

// InputStats describes what was loaded before reconciliation
type InputStats struct {
	StatementFiles   int           `json:"statement_files"`
	StatementRows    int           `json:"statement_rows"`
	SkippedRows      int           `json:"skipped_rows"`
	Students         int           `json:"students"`
	SkippedStudents  int           `json:"skipped_students"`
	Installments     int           `json:"installments"`
	ParsingTime      time.Duration `json:"parsing_time"`
	GenerationTime   time.Duration `json:"generation_time"`
	ReconcileTime    time.Duration `json:"reconcile_time"`
	TotalProcessTime time.Duration `json:"total_processing_time"`
}

// NewReconciliationService creates a new reconciliation service
func NewReconciliationService(config *Config) (*ReconciliationService, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	statementParser, err := parsers.NewStatementParser(config.Statement)
	if err != nil {
		return nil, fmt.Errorf("failed to create statement parser: %w", err)
	}

	rosterParser, err := parsers.NewRosterParser(config.Roster)
	if err != nil {
		return nil, fmt.Errorf("failed to create roster parser: %w", err)
	}

	generator, err := schedule.NewGenerator(config.Schedule)
	if err != nil {
		return nil, fmt.Errorf("failed to create schedule generator: %w", err)
	}

	engine, err := NewEngine(config.Matching)
	if err != nil {
		return nil, fmt.Errorf("failed to create reconciliation engine: %w", err)
	}

	return &ReconciliationService{
		statementParser: statementParser,
		rosterParser:    rosterParser,
		generator:       generator,
		engine:          engine,
		config:          config,
		logger:          logger.WithComponent("reconciliation_service"),
	}, nil
}

// GetConfiguration returns the current configuration
func (rs *ReconciliationService) GetConfiguration() *Config {
	return rs.config
}

// ProcessReconciliation performs the complete reconciliation process
func (rs *ReconciliationService) ProcessReconciliation(
	ctx context.Context,
	request *ReconciliationRequest,
) (*ReconciliationResult, error) {

	if err := request.Validate(); err != nil {
		return nil, fmt.Errorf("invalid request: %w", err)
	}

	op := logger.NewOperationLogger("reconciliation", rs.logger).
		WithField("as_of", request.AsOf.Format(models.DateLayout))
	startTime := time.Now()
	inputs := &InputStats{StatementFiles: len(request.StatementFiles)}
	var warnings []string

	// Step 1: Load the roster and generate the expected installments
	op.Step("generate_schedule")
	payments, scheduleWarnings, err := rs.loadSchedule(ctx, request, inputs)
	if err != nil {
		op.Error(err, "Failed to build installment schedule")
		return nil, err
	}
	warnings = append(warnings, scheduleWarnings...)

	// Step 2: Parse bank statements
	op.Step("parse_statements")
	parseStart := time.Now()
	transactions, stats, err := rs.statementParser.ParseFiles(ctx, request.StatementFiles)
	if err != nil {
		op.Error(err, "Failed to parse statements")
		return nil, fmt.Errorf("failed to parse bank statements: %w", err)
	}
	inputs.ParsingTime += time.Since(parseStart)
	for _, s := range stats {
		inputs.StatementRows += s.RecordsParsed
		inputs.SkippedRows += s.ErrorCount
		if s.HasErrors() {
			warning := fmt.Sprintf("%s: %s", s.Source, s.SkippedSummary())
			op.Warning(warning)
			warnings = append(warnings, warning)
		}
	}

	// Step 3: Reconcile
	op.Step("reconcile")
	reconcileStart := time.Now()
	result, err := rs.engine.Reconcile(transactions, payments, request.AsOf)
	if err != nil {
		op.Error(err, "Reconciliation failed")
		return nil, err
	}
	inputs.ReconcileTime = time.Since(reconcileStart)
	inputs.TotalProcessTime = time.Since(startTime)

	result.Warnings = append(warnings, result.Warnings...)
	result.Inputs = inputs

	op.WithField("run_id", result.RunID).
		WithField("matched", result.Summary.MatchedTransactions).
		WithField("warnings", len(result.Warnings)).
		Success("Reconciliation completed")

	return result, nil
}

// ValidateStatements checks every statement file before a run. Problems
// from all files are reported together in an ErrorSummary.
func (rs *ReconciliationService) ValidateStatements(filePaths []string) error {
	var problems []*errors.ReconcilerError
	for _, path := range filePaths {
		err := rs.statementParser.ValidateFile(path)
		if err == nil {
			continue
		}
		reconcilerErr, ok := errors.AsReconcilerError(err)
		if !ok {
			reconcilerErr = errors.ParseError(errors.CodeInvalidFormat, path, 0, "", "", err)
		}
		rs.logger.WithError(err).WithField("file_path", path).Warn("Statement failed validation")
		problems = append(problems, reconcilerErr)
	}

	if len(problems) > 0 {
		return errors.NewErrorSummary(problems)
	}
	return nil
}

// GenerateSchedule loads the roster named by request and returns the
// expected installments with their initial statuses
func (rs *ReconciliationService) GenerateSchedule(
	ctx context.Context,
	request *ReconciliationRequest,
) ([]*models.StudentPayment, []string, error) {

	if err := request.validateRoster(); err != nil {
		return nil, nil, fmt.Errorf("invalid request: %w", err)
	}
	return rs.loadSchedule(ctx, request, &InputStats{})
}

// Reconcile runs the engine on records already in memory
func (rs *ReconciliationService) Reconcile(transactions []*models.BankTransaction, payments []*models.StudentPayment, asOf time.Time) (*ReconciliationResult, error) {
	return rs.engine.Reconcile(transactions, payments, asOf)
}

// loadSchedule reads the roster and generates every student's installments.
// Skipped roster rows and students become warnings.
func (rs *ReconciliationService) loadSchedule(
	ctx context.Context,
	request *ReconciliationRequest,
	inputs *InputStats,
) ([]*models.StudentPayment, []string, error) {

	parseStart := time.Now()
	students, stats, err := rs.loadStudents(ctx, request)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load roster: %w", err)
	}
	inputs.ParsingTime += time.Since(parseStart)

	var warnings []string
	if stats != nil && stats.HasErrors() {
		warnings = append(warnings, fmt.Sprintf("%s: %s", stats.Source, stats.SkippedSummary()))
	}

	generationStart := time.Now()
	payments, generationWarnings := rs.generator.GenerateAll(students, request.AsOf)
	inputs.GenerationTime = time.Since(generationStart)
	warnings = append(warnings, generationWarnings...)

	inputs.Students = len(students)
	inputs.SkippedStudents = len(generationWarnings)
	if stats != nil {
		inputs.SkippedStudents += stats.ErrorCount
	}
	inputs.Installments = len(payments)

	return payments, warnings, nil
}

func (rs *ReconciliationService) loadStudents(ctx context.Context, request *ReconciliationRequest) ([]*models.Student, *parsers.ParseStats, error) {
	if request.RosterDB != "" {
		store, err := storage.OpenRosterStore(request.RosterDB)
		if err != nil {
			return nil, nil, err
		}
		defer store.Close()
		return store.LoadStudents(ctx, rs.rosterParser)
	}
	return rs.rosterParser.ParseFile(ctx, request.RosterFile)
}
