// Package config turns CLI flag values into validated component
// configurations.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"golang-tuition-reconciliation/internal/fixtures"
	"golang-tuition-reconciliation/internal/matcher"
	"golang-tuition-reconciliation/internal/models"
	"golang-tuition-reconciliation/internal/parsers"
	"golang-tuition-reconciliation/internal/reconciler"
	"golang-tuition-reconciliation/internal/reporter"
	"golang-tuition-reconciliation/internal/schedule"
	"golang-tuition-reconciliation/pkg/errors"
	"golang-tuition-reconciliation/pkg/logger"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// LoadEnv loads KEY=value pairs from the given .env files (".env" when
// none are given) into the process environment. Missing files are ignored
// and variables that are already set win.
func LoadEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, file := range files {
		if err := godotenv.Load(file); err != nil && !os.IsNotExist(err) {
			return errors.ConfigurationError(errors.CodeInvalidConfig, "env_file", file,
				fmt.Errorf("failed to load %s: %w", file, err))
		}
	}
	return nil
}

// ParseAsOf parses a YYYY-MM-DD reference date. An empty value means the
// current day of now.
func ParseAsOf(value string, now time.Time) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return models.DateOnly(now), nil
	}
	asOf, err := time.Parse(models.DateLayout, value)
	if err != nil {
		return time.Time{}, errors.ValidationError(errors.CodeInvalidInput, "as-of", value,
			fmt.Errorf("invalid as-of date, use YYYY-MM-DD: %w", err))
	}
	return asOf, nil
}

// CreateMatchingConfig creates a matching configuration with the specified
// tolerances and threshold
func CreateMatchingConfig(toleranceAmount float64, toleranceDays int, threshold float64) (*matcher.MatchingConfig, error) {
	config := matcher.DefaultMatchingConfig()
	config.ToleranceAmount = decimal.NewFromFloat(toleranceAmount)
	config.ToleranceDays = toleranceDays
	config.Threshold = threshold

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// CreateServiceConfig creates a reconciliation service configuration.
// encoding applies to both the roster and the statements.
func CreateServiceConfig(matching *matcher.MatchingConfig, graceDays int, encoding string) (*reconciler.Config, error) {
	config := reconciler.DefaultConfig()
	if matching != nil {
		config.Matching = matching
	}
	config.Schedule = &schedule.Config{GraceDays: graceDays}
	if encoding != "" {
		config.Statement.Encoding = strings.ToLower(encoding)
		config.Roster.Encoding = strings.ToLower(encoding)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// CreateReportConfig creates a report configuration for the specified
// output format
func CreateReportConfig(format string) (*reporter.ReportConfig, error) {
	config := reporter.DefaultReportConfig()
	config.Format = reporter.OutputFormat(strings.ToLower(format))

	switch config.Format {
	case reporter.FormatJSON:
		config.IncludeInputs = true
	case reporter.FormatCSV:
		// CSV carries rows only
		config.IncludeWarnings = false
		config.IncludeInputs = false
	}

	if err := config.Validate(); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "output-format", format, err).
			WithSuggestion("Valid formats: console, json, csv, msgpack")
	}
	return config, nil
}

// CreateLoggerConfig creates the CLI logger configuration
func CreateLoggerConfig(verbose bool, format string) (*logger.Config, error) {
	config := logger.DefaultConfig()
	if verbose {
		config = logger.VerboseConfig()
	}
	if format != "" {
		config.Format = logger.Format(strings.ToLower(format))
	}

	if err := config.Validate(); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "log-format", format, err)
	}
	return config, nil
}

// CreateFixtureConfig creates a synthetic dataset configuration. Empty
// dates keep the defaults.
func CreateFixtureConfig(seed int64, students int, paymentRatio float64, startDate, asOf string) (*fixtures.Config, error) {
	config := fixtures.DefaultConfig()
	config.Seed = seed
	config.Students = students
	config.PaymentRatio = paymentRatio

	if startDate != "" {
		start, err := time.Parse(models.DateLayout, startDate)
		if err != nil {
			return nil, errors.ValidationError(errors.CodeInvalidInput, "start-date", startDate,
				fmt.Errorf("invalid start date, use YYYY-MM-DD: %w", err))
		}
		config.StartDate = start
	}
	if asOf != "" {
		end, err := ParseAsOf(asOf, time.Now())
		if err != nil {
			return nil, err
		}
		config.AsOf = end
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// ValidateEncoding checks an --encoding value
func ValidateEncoding(encoding string) error {
	switch strings.ToLower(encoding) {
	case "", parsers.EncodingAuto, parsers.EncodingUTF8, parsers.EncodingLatin1:
		return nil
	default:
		return errors.ConfigurationError(errors.CodeInvalidConfig, "encoding", encoding,
			fmt.Errorf("unsupported encoding %q", encoding)).
			WithSuggestion("Use auto, utf-8 or latin1")
	}
}
