package errors

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestReconcilerError(t *testing.T) {
	tests := []struct {
		name       string
		category   ErrorCategory
		code       ErrorCode
		message    string
		cause      error
		expectCode int
	}{
		{
			name:       "file error",
			category:   CategoryFile,
			code:       CodeFileNotFound,
			message:    "file not found",
			cause:      errors.New("no such file"),
			expectCode: 2,
		},
		{
			name:       "parse error",
			category:   CategoryParse,
			code:       CodeInvalidFormat,
			message:    "invalid format",
			expectCode: 3,
		},
		{
			name:       "configuration error",
			category:   CategoryConfiguration,
			code:       CodeInvalidConfig,
			message:    "invalid config",
			cause:      errors.New("negative tolerance"),
			expectCode: 4,
		},
		{
			name:       "storage error",
			category:   CategoryStorage,
			code:       CodeTableNotFound,
			message:    "no table",
			expectCode: 6,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var err *ReconcilerError
			if tt.cause != nil {
				err = Wrap(tt.cause, tt.category, tt.code, tt.message)
			} else {
				err = New(tt.category, tt.code, tt.message)
			}

			if err.Category != tt.category {
				t.Errorf("expected category %s, got %s", tt.category, err.Category)
			}
			if err.Code != tt.code {
				t.Errorf("expected code %s, got %s", tt.code, err.Code)
			}
			if err.GetExitCode() != tt.expectCode {
				t.Errorf("expected exit code %d, got %d", tt.expectCode, err.GetExitCode())
			}
			if tt.cause != nil && !errors.Is(err, tt.cause) {
				t.Error("expected cause to be reachable through Unwrap")
			}
			if len(err.StackTrace) == 0 {
				t.Error("expected a stack trace to be captured")
			}
		})
	}
}

func TestWrapNil(t *testing.T) {
	if Wrap(nil, CategoryInternal, CodeUnexpectedError, "nothing") != nil {
		t.Error("expected Wrap(nil) to return nil")
	}
}

func TestSpecificErrorConstructors(t *testing.T) {
	t.Run("parse error carries location", func(t *testing.T) {
		err := ParseError(CodeInvalidData, "extrato.csv", 7, "valor", "abc", nil)
		if err.Category != CategoryParse {
			t.Errorf("expected parse category, got %s", err.Category)
		}
		if err.Context["line"] != 7 || err.Context["column"] != "valor" {
			t.Errorf("unexpected context: %v", err.Context)
		}
		if !strings.Contains(err.Error(), "extrato.csv") {
			t.Errorf("expected file name in message, got %q", err.Error())
		}
	})

	t.Run("configuration error carries setting", func(t *testing.T) {
		err := ConfigurationError(CodeInvalidConfig, "match_threshold", 1.5, nil)
		if err.Context["setting"] != "match_threshold" {
			t.Errorf("unexpected context: %v", err.Context)
		}
		if err.Suggestion == "" {
			t.Error("expected a suggestion")
		}
	})

	t.Run("storage error", func(t *testing.T) {
		err := StorageError(CodeStorageUnavailable, "roster.db", errors.New("boom"))
		if err.GetExitCode() != 6 {
			t.Errorf("expected exit code 6, got %d", err.GetExitCode())
		}
	})
}

func TestErrorSummary(t *testing.T) {
	errs := []*ReconcilerError{
		New(CategoryParse, CodeInvalidData, "bad amount"),
		New(CategoryParse, CodeInvalidDate, "bad date"),
		New(CategoryConfiguration, CodeInvalidConfig, "bad config"),
	}

	summary := NewErrorSummary(errs)
	if summary.Total != 3 {
		t.Errorf("expected 3 errors, got %d", summary.Total)
	}
	if !summary.HasCategory(CategoryParse) {
		t.Error("expected parse category")
	}
	if summary.HasCategory(CategoryFile) {
		t.Error("did not expect file category")
	}
	if !summary.HasCode(CodeInvalidDate) {
		t.Error("expected invalid date code")
	}
	if summary.GetExitCode() != 4 {
		t.Errorf("expected highest exit code 4, got %d", summary.GetExitCode())
	}
	if got := summary.Error(); got != "3 errors occurred (parse: 2, configuration: 1)" {
		t.Errorf("unexpected summary message %q", got)
	}
}

func TestEmptyErrorSummary(t *testing.T) {
	summary := NewErrorSummary(nil)
	if summary.Total != 0 || summary.GetExitCode() != 0 {
		t.Error("expected empty summary")
	}
	if summary.Error() != "no errors" {
		t.Errorf("unexpected message %q", summary.Error())
	}
}

func TestAsReconcilerError(t *testing.T) {
	base := New(CategoryValidation, CodeMissingField, "missing")
	wrapped := fmt.Errorf("loading roster: %w", base)

	got, ok := AsReconcilerError(wrapped)
	if !ok || got != base {
		t.Error("expected to extract the wrapped ReconcilerError")
	}
	if !IsCategory(wrapped, CategoryValidation) {
		t.Error("expected validation category")
	}

	if _, ok := AsReconcilerError(errors.New("plain")); ok {
		t.Error("did not expect a plain error to convert")
	}
}
