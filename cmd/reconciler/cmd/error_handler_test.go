package cmd

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"testing"

	"golang-tuition-reconciliation/pkg/errors"
	"golang-tuition-reconciliation/pkg/logger"
)

func newTestHandler(verbose bool) (*CLIErrorHandler, *bytes.Buffer) {
	var out bytes.Buffer
	return &CLIErrorHandler{
		logger:  logger.GetGlobalLogger(),
		out:     &out,
		verbose: verbose,
	}, &out
}

func TestHandleError_ExitCodes(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		exitCode int
		contains []string
	}{
		{
			name:     "nil error",
			err:      nil,
			exitCode: 0,
		},
		{
			name: "validation error",
			err: errors.New(errors.CategoryValidation, errors.CodeInvalidInput, "a roster is required").
				WithSuggestion("Use --roster or --roster-db"),
			exitCode: 3,
			contains: []string{"Error: a roster is required", "Suggestion: Use --roster or --roster-db", "Validation error help"},
		},
		{
			name:     "wrapped configuration error",
			err:      fmt.Errorf("startup: %w", errors.ConfigurationError(errors.CodeInvalidConfig, "encoding", "utf-16", nil)),
			exitCode: 4,
			contains: []string{"invalid configuration for 'encoding'", "setting: encoding", "Configuration error help"},
		},
		{
			name:     "storage error",
			err:      errors.StorageError(errors.CodeTableNotFound, "escola.db", fmt.Errorf("no roster table")),
			exitCode: 6,
			contains: []string{"Storage error help"},
		},
		{
			name:     "missing file",
			err:      fmt.Errorf("open alunos.csv: %w", os.ErrNotExist),
			exitCode: 2,
			contains: []string{"Error: File not found"},
		},
		{
			name:     "permission denied",
			err:      fmt.Errorf("open report.json: %w", os.ErrPermission),
			exitCode: 2,
			contains: []string{"Error: Permission denied"},
		},
		{
			name:     "generic error",
			err:      fmt.Errorf("something broke"),
			exitCode: 1,
			contains: []string{"Error: something broke", "--verbose"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler, out := newTestHandler(false)

			if code := handler.HandleError(tt.err); code != tt.exitCode {
				t.Errorf("expected exit code %d, got %d", tt.exitCode, code)
			}
			for _, s := range tt.contains {
				if !strings.Contains(out.String(), s) {
					t.Errorf("expected output to contain %q, got:\n%s", s, out.String())
				}
			}
		})
	}
}

func TestHandleError_Summary(t *testing.T) {
	summary := errors.NewErrorSummary([]*errors.ReconcilerError{
		errors.New(errors.CategoryFile, errors.CodeFileNotFound, "statement file 1 does not exist: extrato.csv"),
		errors.New(errors.CategoryValidation, errors.CodeOutOfRange, "grace days cannot be negative"),
		errors.ConfigurationError(errors.CodeInvalidConfig, "encoding", "utf-16", nil),
	})

	handler, out := newTestHandler(false)
	if code := handler.HandleError(summary); code != 4 {
		t.Errorf("expected the highest exit code 4, got %d", code)
	}

	for _, s := range []string{
		"found 3 problems:",
		"1. statement file 1 does not exist: extrato.csv",
		"3. invalid configuration for 'encoding'",
		"--roster-db",
		"File error help",
		"Validation error help",
		"Configuration error help",
	} {
		if !strings.Contains(out.String(), s) {
			t.Errorf("expected output to contain %q, got:\n%s", s, out.String())
		}
	}
	if strings.Contains(out.String(), "Storage error help") {
		t.Error("help should only be printed for categories present in the summary")
	}
}

func TestHandleError_SingleProblemSummary(t *testing.T) {
	summary := errors.NewErrorSummary([]*errors.ReconcilerError{
		errors.New(errors.CategoryValidation, errors.CodeMissingField, "a roster is required: use --roster or --roster-db"),
	})

	handler, out := newTestHandler(false)
	if code := handler.HandleError(summary); code != 3 {
		t.Errorf("expected exit code 3, got %d", code)
	}
	if !strings.Contains(out.String(), "Error: a roster is required") {
		t.Errorf("expected the single problem to be printed directly, got:\n%s", out.String())
	}
	if strings.Contains(out.String(), "problems:") {
		t.Error("a single problem should not be listed")
	}
}

func TestHandleError_VerboseShowsCause(t *testing.T) {
	err := errors.FileError(errors.CodeFileNotFound, "extrato.csv", os.ErrNotExist)

	handler, out := newTestHandler(true)
	handler.HandleError(err)
	if !strings.Contains(out.String(), "Underlying error") {
		t.Errorf("verbose output should show the underlying error, got:\n%s", out.String())
	}

	quiet, quietOut := newTestHandler(false)
	quiet.HandleError(err)
	if strings.Contains(quietOut.String(), "Underlying error") {
		t.Errorf("non-verbose output should hide the underlying error")
	}
}

func TestFormatValidationErrors(t *testing.T) {
	if got := FormatValidationErrors(nil); got != "" {
		t.Errorf("expected empty string, got %q", got)
	}

	single := FormatValidationErrors([]error{fmt.Errorf("grace days cannot be negative")})
	if single != "grace days cannot be negative" {
		t.Errorf("unexpected single error format: %q", single)
	}

	var many []error
	for i := 0; i < 12; i++ {
		many = append(many, fmt.Errorf("problem %d", i+1))
	}
	formatted := FormatValidationErrors(many)
	if !strings.HasPrefix(formatted, "found 12 problems:") {
		t.Errorf("unexpected header: %q", formatted)
	}
	if !strings.Contains(formatted, "10. problem 10") {
		t.Errorf("expected the tenth problem to be listed")
	}
	if strings.Contains(formatted, "problem 11") {
		t.Errorf("expected problems past the tenth to be summarized")
	}
	if !strings.Contains(formatted, "... and 2 more errors") {
		t.Errorf("expected a summary of the remaining problems, got %q", formatted)
	}
}
