package parsers

import (
	"context"
	"fmt"
	"io"

	"golang-tuition-reconciliation/internal/models"
	"golang-tuition-reconciliation/pkg/errors"
	"golang-tuition-reconciliation/pkg/logger"
)

// validationSampleSize is how many rows ValidateFile inspects
const validationSampleSize = 10

// StatementParser reads bank statement exports into BankTransactions
type StatementParser struct {
	*BaseParser
	config *StatementConfig
}

// NewStatementParser creates a parser for the given layout; nil selects
// DefaultStatementConfig
func NewStatementParser(config *StatementConfig) (*StatementParser, error) {
	if config == nil {
		config = DefaultStatementConfig()
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid statement configuration: %w", err)
	}

	parseConfig := DefaultParseConfig()
	parseConfig.HasHeader = config.HasHeader
	parseConfig.Delimiter = config.Delimiter
	parseConfig.Encoding = config.Encoding

	return &StatementParser{
		BaseParser: NewBaseParser(parseConfig, "statement_parser"),
		config:     config,
	}, nil
}

// ParseFile parses a statement CSV file. Unparsable rows are skipped and
// recorded in the returned stats.
func (sp *StatementParser) ParseFile(ctx context.Context, filePath string) ([]*models.BankTransaction, *ParseStats, error) {
	reader, err := sp.OpenFile(filePath)
	if err != nil {
		return nil, nil, err
	}
	return sp.parse(ctx, reader, filePath)
}

// Parse parses statement CSV content from r
func (sp *StatementParser) Parse(ctx context.Context, r io.Reader, source string) ([]*models.BankTransaction, *ParseStats, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read %s: %w", source, err)
	}
	reader, err := sp.NewReader(data, source)
	if err != nil {
		return nil, nil, err
	}
	return sp.parse(ctx, reader, source)
}

func (sp *StatementParser) parse(ctx context.Context, reader RecordReader, source string) ([]*models.BankTransaction, *ParseStats, error) {
	parseCtx := NewParseContext(ctx, source)
	stats := NewParseStats(source)

	if err := sp.ReadHeaders(reader, parseCtx, sp.config.Columns()); err != nil {
		return nil, stats, fmt.Errorf("failed to read headers: %w", err)
	}

	var transactions []*models.BankTransaction

	for {
		record, err := sp.ReadRecord(reader, parseCtx)
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
				return transactions, stats, err
			}
			stats.AddError(&ParseError{
				Line:    parseCtx.LineNumber,
				Message: "failed to read record",
				Err:     err,
			})
			continue
		}

		stats.RecordsParsed++

		tx, parseErr := sp.parseRecord(record, parseCtx)
		if parseErr != nil {
			stats.AddError(parseErr)
			continue
		}

		transactions = append(transactions, tx)
		stats.RecordsValid++
	}

	stats.TotalLines = parseCtx.LineNumber

	if stats.HasErrors() {
		sp.logger.WithFields(logger.Fields{
			"source":  source,
			"skipped": stats.ErrorCount,
			"samples": stats.GetSampleErrors(3),
		}).Warn(stats.SkippedSummary())
	}

	return transactions, stats, nil
}

// parseRecord builds a transaction from one row; the amount sign decides
// the direction
func (sp *StatementParser) parseRecord(record []string, parseCtx *ParseContext) (*models.BankTransaction, *ParseError) {
	values := make(map[string]string, 5)
	for _, col := range sp.config.Columns() {
		value, parseErr := sp.GetFieldValue(record, parseCtx, col)
		if parseErr != nil {
			return nil, parseErr
		}
		values[col.Name] = value
	}

	dateStr := values[sp.config.DateColumn.Name]
	date, err := models.ParseDate(dateStr)
	if err != nil {
		return nil, &ParseError{
			Line:    parseCtx.LineNumber,
			Field:   sp.config.DateColumn.Name,
			Value:   dateStr,
			Message: "invalid date",
			Err:     err,
		}
	}

	amountStr := values[sp.config.AmountColumn.Name]
	amount, err := models.ParseAmount(amountStr)
	if err != nil {
		return nil, &ParseError{
			Line:    parseCtx.LineNumber,
			Field:   sp.config.AmountColumn.Name,
			Value:   amountStr,
			Message: "invalid amount",
			Err:     err,
		}
	}

	tx := models.NewBankTransaction(date, amount,
		values[sp.config.DescriptionColumn.Name],
		values[sp.config.DocumentColumn.Name],
		values[sp.config.AccountColumn.Name])

	if err := tx.Validate(); err != nil {
		return nil, &ParseError{
			Line:    parseCtx.LineNumber,
			Message: "transaction validation failed",
			Err:     err,
		}
	}

	return tx, nil
}

// ParseFiles parses several statement files in order and concatenates
// their transactions
func (sp *StatementParser) ParseFiles(ctx context.Context, filePaths []string) ([]*models.BankTransaction, []*ParseStats, error) {
	var all []*models.BankTransaction
	var allStats []*ParseStats

	for _, path := range filePaths {
		transactions, stats, err := sp.ParseFile(ctx, path)
		if err != nil {
			return nil, allStats, err
		}
		all = append(all, transactions...)
		allStats = append(allStats, stats)
	}

	return all, allStats, nil
}

// ValidateFile checks that filePath has the statement columns and, when it
// holds data, that at least one of its first rows is a transaction. A file
// whose sampled rows all fail is most likely another layout.
func (sp *StatementParser) ValidateFile(filePath string) error {
	reader, err := sp.OpenFile(filePath)
	if err != nil {
		return err
	}

	parseCtx := NewParseContext(context.Background(), filePath)
	if err := sp.ReadHeaders(reader, parseCtx, sp.config.Columns()); err != nil {
		return err
	}

	var firstErr *ParseError
	for sampled := 0; sampled < validationSampleSize; sampled++ {
		record, err := sp.ReadRecord(reader, parseCtx)
		if err == io.EOF {
			break
		}
		if err != nil {
			if firstErr == nil {
				parseErr, ok := err.(*ParseError)
				if !ok {
					parseErr = &ParseError{Line: parseCtx.LineNumber, Message: "failed to read record", Err: err}
				}
				firstErr = parseErr
			}
			continue
		}

		_, parseErr := sp.parseRecord(record, parseCtx)
		if parseErr == nil {
			return nil
		}
		if firstErr == nil {
			firstErr = parseErr
		}
	}

	if firstErr == nil {
		return nil
	}
	return errors.ParseError(errors.CodeInvalidData, filePath, firstErr.Line, firstErr.Field, firstErr.Value, firstErr).
		WithSuggestion("none of the first rows is a transaction; check that this is a bank statement export")
}
