package parsers

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"golang-tuition-reconciliation/internal/models"
	"golang-tuition-reconciliation/pkg/logger"
)

// RosterParser reads student roster exports into Students
type RosterParser struct {
	*BaseParser
	config *RosterConfig
}

// NewRosterParser creates a roster parser; nil selects DefaultRosterConfig
func NewRosterParser(config *RosterConfig) (*RosterParser, error) {
	if config == nil {
		config = DefaultRosterConfig()
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid roster configuration: %w", err)
	}

	parseConfig := DefaultParseConfig()
	parseConfig.HasHeader = config.HasHeader
	parseConfig.Delimiter = config.Delimiter
	parseConfig.Encoding = config.Encoding

	return &RosterParser{
		BaseParser: NewBaseParser(parseConfig, "roster_parser"),
		config:     config,
	}, nil
}

// ParseFile parses a roster CSV file, skipping rows that do not describe a
// valid student
func (rp *RosterParser) ParseFile(ctx context.Context, filePath string) ([]*models.Student, *ParseStats, error) {
	reader, err := rp.OpenFile(filePath)
	if err != nil {
		return nil, nil, err
	}
	return rp.parse(ctx, reader, filePath)
}

// Parse parses roster CSV content from r
func (rp *RosterParser) Parse(ctx context.Context, r io.Reader, source string) ([]*models.Student, *ParseStats, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read %s: %w", source, err)
	}
	reader, err := rp.NewReader(data, source)
	if err != nil {
		return nil, nil, err
	}
	return rp.parse(ctx, reader, source)
}

// ParseTable parses roster rows already in memory. When the layout has a
// header, rows[0] is the header row.
func (rp *RosterParser) ParseTable(ctx context.Context, rows [][]string, source string) ([]*models.Student, *ParseStats, error) {
	return rp.parse(ctx, NewTableReader(rows), source)
}

func (rp *RosterParser) parse(ctx context.Context, reader RecordReader, source string) ([]*models.Student, *ParseStats, error) {
	parseCtx := NewParseContext(ctx, source)
	stats := NewParseStats(source)

	if err := rp.ReadHeaders(reader, parseCtx, rp.config.Columns()); err != nil {
		return nil, stats, fmt.Errorf("failed to read headers: %w", err)
	}

	var students []*models.Student
	seen := make(map[string]int)

	for {
		record, err := rp.ReadRecord(reader, parseCtx)
		if err != nil {
			if err == io.EOF {
				break
			}
			if parseErr, ok := err.(*ParseError); ok {
				stats.RecordsParsed++
				stats.AddError(parseErr)
				continue
			}
			if parseCtx.IsCancelled() {
				return students, stats, err
			}
			stats.AddError(&ParseError{
				Line:    parseCtx.LineNumber,
				Message: "failed to read record",
				Err:     err,
			})
			continue
		}

		stats.RecordsParsed++

		student, parseErr := rp.parseRecord(record, parseCtx)
		if parseErr != nil {
			stats.AddError(parseErr)
			continue
		}

		if line, dup := seen[student.ID]; dup {
			stats.AddError(&ParseError{
				Line:    parseCtx.LineNumber,
				Field:   rp.config.IDColumn.Name,
				Value:   student.ID,
				Message: fmt.Sprintf("duplicate student id, first seen at line %d", line),
			})
			continue
		}
		seen[student.ID] = parseCtx.LineNumber

		students = append(students, student)
		stats.RecordsValid++
	}

	stats.TotalLines = parseCtx.LineNumber

	if stats.HasErrors() {
		rp.logger.WithFields(logger.Fields{
			"source":  source,
			"skipped": stats.ErrorCount,
			"samples": stats.GetSampleErrors(3),
		}).Warn(stats.SkippedSummary())
	}

	return students, stats, nil
}

func (rp *RosterParser) parseRecord(record []string, parseCtx *ParseContext) (*models.Student, *ParseError) {
	field := func(col Column) (string, *ParseError) {
		return rp.GetFieldValue(record, parseCtx, col)
	}
	fail := func(col Column, value, message string, err error) *ParseError {
		return &ParseError{
			Line:    parseCtx.LineNumber,
			Field:   col.Name,
			Value:   value,
			Message: message,
			Err:     err,
		}
	}

	id, perr := field(rp.config.IDColumn)
	if perr != nil {
		return nil, perr
	}
	name, perr := field(rp.config.NameColumn)
	if perr != nil {
		return nil, perr
	}

	feeStr, perr := field(rp.config.CourseFeeColumn)
	if perr != nil {
		return nil, perr
	}
	fee, err := models.ParseAmount(feeStr)
	if err != nil {
		return nil, fail(rp.config.CourseFeeColumn, feeStr, "invalid course fee", err)
	}

	countStr, perr := field(rp.config.InstallmentsColumn)
	if perr != nil {
		return nil, perr
	}
	count, err := strconv.Atoi(countStr)
	if err != nil {
		return nil, fail(rp.config.InstallmentsColumn, countStr, "invalid installment count", err)
	}

	method := rp.config.DefaultPaymentMethod
	methodStr, perr := field(rp.config.PaymentMethodColumn)
	if perr != nil {
		return nil, perr
	}
	if methodStr != "" {
		method, err = models.ParsePaymentMethod(methodStr)
		if err != nil {
			return nil, fail(rp.config.PaymentMethodColumn, methodStr, "invalid payment method", err)
		}
	}

	dueDay := rp.config.DefaultDueDay
	dueDayStr, perr := field(rp.config.DueDayColumn)
	if perr != nil {
		return nil, perr
	}
	if dueDayStr != "" {
		dueDay, err = strconv.Atoi(dueDayStr)
		if err != nil {
			return nil, fail(rp.config.DueDayColumn, dueDayStr, "invalid due day", err)
		}
	}

	enrollmentStr, perr := field(rp.config.EnrollmentDateColumn)
	if perr != nil {
		return nil, perr
	}
	enrollment, err := models.ParseDate(enrollmentStr)
	if err != nil {
		return nil, fail(rp.config.EnrollmentDateColumn, enrollmentStr, "invalid enrollment date", err)
	}

	student := &models.Student{
		ID:                id,
		FullName:          name,
		CourseFee:         fee,
		TotalInstallments: count,
		PaymentMethod:     method,
		DueDay:            dueDay,
		EnrollmentDate:    enrollment,
	}

	if err := student.Validate(); err != nil {
		return nil, &ParseError{
			Line:    parseCtx.LineNumber,
			Message: "student validation failed",
			Err:     err,
		}
	}

	return student, nil
}
