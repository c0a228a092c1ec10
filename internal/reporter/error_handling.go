package reporter

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"golang-tuition-reconciliation/internal/reconciler"
	"golang-tuition-reconciliation/pkg/errors"
	"golang-tuition-reconciliation/pkg/logger"
)

// SafeReportGenerator writes the report of a finished reconciliation run
// without losing it to a late failure. When the requested format cannot
// render the result the console layout is written instead; when the report
// file cannot be written the report goes to a backup file beside it.
type SafeReportGenerator struct {
	*ReportGenerator
	logger  logger.Logger
	notices io.Writer
}

// NewSafeReportGenerator creates a SafeReportGenerator for config; a nil
// config selects DefaultReportConfig
func NewSafeReportGenerator(config *ReportConfig, log logger.Logger) (*SafeReportGenerator, error) {
	if log == nil {
		log = logger.GetGlobalLogger()
	}

	generator, err := NewReportGenerator(config)
	if err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "output-format", config, err).
			WithSuggestion("Use one of the report formats: console, json, csv, msgpack")
	}

	return &SafeReportGenerator{
		ReportGenerator: generator,
		logger:          log.WithComponent("reporter"),
		notices:         os.Stderr,
	}, nil
}

// GenerateReportSafely writes the report of result to writer
func (srg *SafeReportGenerator) GenerateReportSafely(result *reconciler.ReconciliationResult, writer io.Writer) error {
	log := srg.logger.WithFields(logger.Fields{
		"format":      srg.config.Format,
		"destination": describeDestination(writer),
	})

	if err := checkReportable(result, writer); err != nil {
		log.WithError(err).Error("Cannot write tuition report")
		return err
	}
	log = log.WithField("run_id", result.RunID)
	log.Debug("Writing tuition report")

	err := srg.GenerateReport(result, &destination{w: writer, name: describeDestination(writer)})
	if err == nil {
		log.Info("Tuition report written")
		return nil
	}

	// A destination that refuses writes will not take a console report either
	if errors.IsCategory(err, errors.CategoryFile) {
		if file, ok := writer.(*os.File); ok && file.Name() != "" {
			log.WithError(err).Warn("Report file not writable, saving a backup copy")
			return srg.writeBackup(result, file.Name(), err)
		}
		log.WithError(err).Error("Report destination failed")
		return err
	}

	if srg.config.Format != FormatConsole {
		log.WithError(err).Warn("Report format failed, falling back to console layout")
		return srg.writeConsole(result, writer, err)
	}

	log.WithError(err).Error("Tuition report failed")
	return reportFailure(err)
}

// checkReportable rejects a run that never produced a summary
func checkReportable(result *reconciler.ReconciliationResult, writer io.Writer) error {
	if result == nil {
		return errors.ValidationError(errors.CodeMissingField, "reconciliation result", nil, nil).
			WithSuggestion("Run the reconciliation before writing its report")
	}
	if result.Summary == nil {
		return errors.ReconciliationError(errors.CodeInvalidInput, "report generation",
			fmt.Errorf("run %q has no summary", result.RunID))
	}
	if writer == nil {
		return errors.ValidationError(errors.CodeMissingField, "report output", nil, nil).
			WithSuggestion("Pass --output-file or write the report to stdout")
	}
	return nil
}

// writeConsole renders result in the console layout after the requested
// format failed with renderErr
func (srg *SafeReportGenerator) writeConsole(result *reconciler.ReconciliationResult, writer io.Writer, renderErr error) error {
	console := *srg.config
	console.Format = FormatConsole
	generator, err := NewReportGenerator(&console)
	if err != nil {
		return reportFailure(renderErr)
	}

	fmt.Fprintf(writer, "NOTE: the %s report could not be rendered (%v); console layout follows\n\n",
		srg.config.Format, renderErr)

	if err := generator.GenerateReport(result, writer); err != nil {
		return errors.InternalError(errors.CodeUnexpectedError, "tuition report",
			fmt.Errorf("%s report failed: %v; console layout failed: %w", srg.config.Format, renderErr, err))
	}
	return nil
}

// writeBackup saves the report beside path after writing to path failed
// with writeErr
func (srg *SafeReportGenerator) writeBackup(result *reconciler.ReconciliationResult, path string, writeErr error) error {
	backupPath := srg.generateBackupPath(path)

	backup, err := os.Create(backupPath)
	if err != nil {
		return errors.FileError(errors.CodeWriteFailed, path, writeErr).
			WithContext("backup_file", backupPath)
	}
	defer backup.Close()

	if err := srg.GenerateReport(result, &destination{w: backup, name: backupPath}); err != nil {
		return errors.FileError(errors.CodeWriteFailed, backupPath, err).
			WithContext("report_file", path)
	}

	srg.logger.WithFields(logger.Fields{
		"report_file": path,
		"backup_file": backupPath,
		"run_id":      result.RunID,
	}).Warn("Tuition report saved to backup file")
	fmt.Fprintf(srg.notices, "Warning: could not write %s, report for run %s saved to %s\n", path, result.RunID, backupPath)

	return nil
}

// generateBackupPath returns path with a _backup suffix before its extension
func (srg *SafeReportGenerator) generateBackupPath(path string) string {
	ext := filepath.Ext(path)
	return path[:len(path)-len(ext)] + "_backup" + ext
}

// reportFailure keeps a categorized error and marks anything else internal
func reportFailure(err error) error {
	if reconcilerErr, ok := errors.AsReconcilerError(err); ok {
		return reconcilerErr
	}
	return errors.InternalError(errors.CodeProcessingError, "tuition report", err).
		WithSuggestion("Try --output-format console")
}

// destination tags write failures as file errors so they can be told apart
// from a format that cannot render the result
type destination struct {
	w    io.Writer
	name string
}

func (d *destination) Write(p []byte) (int, error) {
	n, err := d.w.Write(p)
	if err != nil {
		if _, ok := errors.AsReconcilerError(err); !ok {
			err = errors.FileError(errors.CodeWriteFailed, d.name, err)
		}
	}
	return n, err
}

func describeDestination(writer io.Writer) string {
	switch w := writer.(type) {
	case *os.File:
		if w.Name() != "" {
			return w.Name()
		}
		return "unnamed file"
	case nil:
		return "none"
	default:
		return fmt.Sprintf("%T", writer)
	}
}
