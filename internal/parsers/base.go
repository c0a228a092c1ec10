// Package parsers reads bank statement and student roster CSV exports into
// the reconciliation models.
//
// Real exports are messy, so the parsers are lenient where it is safe:
//   - headers are matched case- and accent-insensitively against aliases
//   - the delimiter (',' ';' or tab) is sniffed from the header line
//   - Latin-1 files are decoded when the bytes are not valid UTF-8
//   - amounts accept R$ prefixes, decimal commas and parenthesised negatives
//
// A row that cannot be parsed is skipped and recorded in ParseStats; it
// never aborts the file. Only an unreadable file or a missing required
// column is fatal.
//
// Example usage:
//
//	parser, err := parsers.NewStatementParser(nil)
//	transactions, stats, err := parser.ParseFile(ctx, "extrato.csv")
//	if stats.HasErrors() {
//		log.Warn(stats.SkippedSummary())
//	}
package parsers

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"golang-tuition-reconciliation/internal/models"
	"golang-tuition-reconciliation/pkg/errors"
	"golang-tuition-reconciliation/pkg/logger"

	"golang.org/x/text/encoding/charmap"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// ParseError represents an error that occurred during CSV parsing
type ParseError struct {
	Line    int
	Column  int
	Field   string
	Value   string
	Message string
	Err     error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("parse error at line %d (%s='%s'): %s: %v",
			e.Line, e.Field, e.Value, e.Message, e.Err)
	}
	return fmt.Sprintf("parse error at line %d (%s='%s'): %s",
		e.Line, e.Field, e.Value, e.Message)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// ParseConfig holds configuration for CSV parsing
type ParseConfig struct {
	HasHeader        bool
	Delimiter        rune
	Comment          rune
	TrimLeadingSpace bool
	SkipEmptyRows    bool
	MaxFieldSize     int
	Encoding         string
}

// DefaultParseConfig returns a configuration with sensible defaults
func DefaultParseConfig() *ParseConfig {
	return &ParseConfig{
		HasHeader:        true,
		Delimiter:        0,
		Comment:          0,
		TrimLeadingSpace: true,
		SkipEmptyRows:    true,
		MaxFieldSize:     64 * 1024,
		Encoding:         EncodingAuto,
	}
}

// BaseParser provides common CSV parsing functionality
type BaseParser struct {
	config *ParseConfig
	logger logger.Logger
}

// NewBaseParser creates a new BaseParser with the given configuration
func NewBaseParser(config *ParseConfig, component string) *BaseParser {
	if config == nil {
		config = DefaultParseConfig()
	}

	log := logger.WithComponent(component)
	log.WithFields(logger.Fields{
		"has_header": config.HasHeader,
		"delimiter":  string(config.Delimiter),
		"encoding":   config.Encoding,
	}).Debug("Created parser")

	return &BaseParser{
		config: config,
		logger: log,
	}
}

// ParseContext holds state during parsing operations
type ParseContext struct {
	Source     string
	LineNumber int
	Headers    []string
	HeaderMap  map[string]int
	ctx        context.Context
}

// NewParseContext creates a new parsing context
func NewParseContext(ctx context.Context, source string) *ParseContext {
	if ctx == nil {
		ctx = context.Background()
	}
	return &ParseContext{
		Source:    source,
		Headers:   make([]string, 0),
		HeaderMap: make(map[string]int),
		ctx:       ctx,
	}
}

// IsCancelled checks if the parsing context has been cancelled
func (pc *ParseContext) IsCancelled() bool {
	select {
	case <-pc.ctx.Done():
		return true
	default:
		return false
	}
}

// GetColumnIndex returns the index of the first header matching the column
// name or one of its aliases, or -1
func (pc *ParseContext) GetColumnIndex(col Column) int {
	for _, candidate := range col.Candidates() {
		if index, exists := pc.HeaderMap[normalizeHeader(candidate)]; exists {
			return index
		}
	}
	return -1
}

// normalizeHeader folds accents, lowercases and joins words with '_'
func normalizeHeader(header string) string {
	h := strings.ToLower(models.Fold(header))
	return strings.Join(strings.Fields(strings.ReplaceAll(h, "-", " ")), "_")
}

// OpenFile reads filePath and returns a csv.Reader over its decoded content
func (bp *BaseParser) OpenFile(filePath string) (*csv.Reader, error) {
	bp.logger.WithField("file_path", filePath).Debug("Opening CSV file")

	data, err := os.ReadFile(filePath)
	if err != nil {
		bp.logger.WithError(err).WithField("file_path", filePath).Error("Failed to open CSV file")

		if os.IsNotExist(err) {
			return nil, errors.FileError(errors.CodeFileNotFound, filePath, err)
		}
		if os.IsPermission(err) {
			return nil, errors.FileError(errors.CodeFilePermission, filePath, err)
		}
		return nil, errors.FileError(errors.CodeFileCorrupted, filePath, err)
	}

	return bp.NewReader(data, filePath)
}

// NewReader decodes data and returns a configured csv.Reader over it
func (bp *BaseParser) NewReader(data []byte, source string) (*csv.Reader, error) {
	decoded, err := decode(data, bp.config.Encoding)
	if err != nil {
		return nil, errors.ParseError(errors.CodeEncodingError, source, 0, "encoding", bp.config.Encoding, err).
			WithSuggestion("Save the file in UTF-8 or pass --encoding latin1")
	}

	reader := csv.NewReader(bytes.NewReader(decoded))
	reader.Comma = bp.config.Delimiter
	if reader.Comma == 0 {
		reader.Comma = sniffDelimiter(decoded)
	}
	reader.Comment = bp.config.Comment
	reader.TrimLeadingSpace = bp.config.TrimLeadingSpace
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	bp.logger.WithFields(logger.Fields{
		"source":    source,
		"delimiter": string(reader.Comma),
		"bytes":     len(decoded),
	}).Debug("CSV reader ready")

	return reader, nil
}

// decode returns data as UTF-8. In auto mode invalid UTF-8 is taken to be
// Windows-1252, the superset of Latin-1 that Brazilian banks export.
func decode(data []byte, encoding string) ([]byte, error) {
	data = bytes.TrimPrefix(data, utf8BOM)

	switch encoding {
	case EncodingUTF8:
		if !utf8.Valid(data) {
			return nil, fmt.Errorf("invalid UTF-8 encoding detected")
		}
		return data, nil
	case EncodingLatin1:
		return charmap.Windows1252.NewDecoder().Bytes(data)
	default:
		if utf8.Valid(data) {
			return data, nil
		}
		return charmap.Windows1252.NewDecoder().Bytes(data)
	}
}

// sniffDelimiter picks the most frequent of ';', ',' and tab on the first
// line, preferring ','
func sniffDelimiter(data []byte) rune {
	line := data
	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		line = data[:i]
	}

	best, bestCount := ',', bytes.Count(line, []byte{','})
	for _, r := range []rune{';', '\t'} {
		if n := bytes.Count(line, []byte(string(r))); n > bestCount {
			best, bestCount = r, n
		}
	}
	return best
}

// RecordReader yields one row per call and io.EOF at the end. *csv.Reader
// satisfies it.
type RecordReader interface {
	Read() ([]string, error)
}

// tableReader serves rows that are already in memory, such as a database
// table
type tableReader struct {
	rows [][]string
	next int
}

// NewTableReader returns a RecordReader over rows
func NewTableReader(rows [][]string) RecordReader {
	return &tableReader{rows: rows}
}

func (tr *tableReader) Read() ([]string, error) {
	if tr.next >= len(tr.rows) {
		return nil, io.EOF
	}
	row := tr.rows[tr.next]
	tr.next++
	return row, nil
}

// ReadHeaders reads the header row and checks that every required column
// is present
func (bp *BaseParser) ReadHeaders(reader RecordReader, parseCtx *ParseContext, columns []Column) error {
	if !bp.config.HasHeader {
		parseCtx.Headers = make([]string, len(columns))
		for i, col := range columns {
			parseCtx.Headers[i] = col.Name
		}
		bp.buildHeaderMap(parseCtx)
		bp.logger.WithField("default_headers", parseCtx.Headers).Debug("Using default headers")
		return nil
	}

	headers, err := reader.Read()
	if err != nil {
		if err == io.EOF {
			bp.logger.WithField("source", parseCtx.Source).Error("File is empty or contains no data")
			return errors.ValidationError(errors.CodeMissingField, "file_content", "empty", nil).
				WithSuggestion("Ensure the file contains header and data rows")
		}

		bp.logger.WithError(err).Error("Failed to read header row")
		return errors.ParseError(errors.CodeInvalidFormat, parseCtx.Source, 1, "headers", "", err).
			WithSuggestion("Check the file format and ensure it's a valid CSV")
	}

	parseCtx.LineNumber++
	parseCtx.Headers = cleanHeaders(headers)
	bp.buildHeaderMap(parseCtx)

	bp.logger.WithField("headers", parseCtx.Headers).Debug("Successfully read headers")

	var missing []string
	for _, col := range columns {
		if col.Required && parseCtx.GetColumnIndex(col) == -1 {
			missing = append(missing, strings.Join(col.Candidates(), "|"))
		}
	}
	if len(missing) > 0 {
		bp.logger.WithFields(logger.Fields{
			"missing_headers":   missing,
			"available_headers": parseCtx.Headers,
		}).Error("Required headers are missing")

		return errors.ParseError(errors.CodeMissingColumn, parseCtx.Source, parseCtx.LineNumber,
			strings.Join(missing, ", "), "", nil).
			WithSuggestion(fmt.Sprintf("Ensure the CSV file contains these headers: %s", strings.Join(missing, ", ")))
	}

	return nil
}

// cleanHeaders trims whitespace around header names
func cleanHeaders(headers []string) []string {
	cleaned := make([]string, len(headers))
	for i, header := range headers {
		cleaned[i] = strings.TrimSpace(header)
	}
	return cleaned
}

// buildHeaderMap maps normalized header names to column indices. The first
// occurrence of a duplicated header wins.
func (bp *BaseParser) buildHeaderMap(parseCtx *ParseContext) {
	parseCtx.HeaderMap = make(map[string]int)
	for i, header := range parseCtx.Headers {
		key := normalizeHeader(header)
		if _, exists := parseCtx.HeaderMap[key]; !exists {
			parseCtx.HeaderMap[key] = i
		}
	}
}

// ReadRecord reads the next non-empty record
func (bp *BaseParser) ReadRecord(reader RecordReader, parseCtx *ParseContext) ([]string, error) {
	for {
		if parseCtx.IsCancelled() {
			return nil, errors.InternalError(errors.CodeUnexpectedError, "csv_parsing",
				fmt.Errorf("parsing cancelled: %w", parseCtx.ctx.Err()))
		}

		record, err := reader.Read()
		if err != nil {
			if err == io.EOF {
				return nil, err
			}
			parseCtx.LineNumber++
			bp.logger.WithError(err).WithField("line_number", parseCtx.LineNumber).Warn("Failed to read CSV record")
			return nil, err
		}

		parseCtx.LineNumber++

		if bp.config.SkipEmptyRows && isEmptyRecord(record) {
			continue
		}

		if bp.config.MaxFieldSize > 0 {
			for i, field := range record {
				if len(field) > bp.config.MaxFieldSize {
					return nil, &ParseError{
						Line:    parseCtx.LineNumber,
						Column:  i,
						Field:   fmt.Sprintf("field_%d", i),
						Value:   preview(field, previewRunes),
						Message: fmt.Sprintf("field exceeds maximum size of %d bytes", bp.config.MaxFieldSize),
					}
				}
			}
		}

		return record, nil
	}
}

// previewRunes is how much of an oversized field a ParseError keeps
const previewRunes = 32

// preview shortens s to at most n runes
func preview(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "..."
}

// isEmptyRecord checks if all fields in a record are empty or whitespace
func isEmptyRecord(record []string) bool {
	for _, field := range record {
		if strings.TrimSpace(field) != "" {
			return false
		}
	}
	return true
}

// GetFieldValue returns the trimmed value of col in record. An absent
// optional column yields "".
func (bp *BaseParser) GetFieldValue(record []string, parseCtx *ParseContext, col Column) (string, *ParseError) {
	index := parseCtx.GetColumnIndex(col)
	if index == -1 || index >= len(record) {
		if !col.Required {
			return "", nil
		}
		return "", &ParseError{
			Line:    parseCtx.LineNumber,
			Column:  index,
			Field:   col.Name,
			Message: fmt.Sprintf("row has %d fields, missing required column", len(record)),
		}
	}

	return strings.TrimSpace(record[index]), nil
}

// ParseStats holds statistics about a parsing operation
type ParseStats struct {
	Source        string
	TotalLines    int
	RecordsParsed int
	RecordsValid  int
	ErrorCount    int
	Errors        []*ParseError
}

// NewParseStats creates a new ParseStats instance
func NewParseStats(source string) *ParseStats {
	return &ParseStats{
		Source: source,
		Errors: make([]*ParseError, 0),
	}
}

// AddError adds an error to the parsing statistics
func (ps *ParseStats) AddError(err *ParseError) {
	ps.Errors = append(ps.Errors, err)
	ps.ErrorCount++
}

// HasErrors returns true if there were any parsing errors
func (ps *ParseStats) HasErrors() bool {
	return ps.ErrorCount > 0
}

// SkippedSummary is the user-facing line for skipped rows
func (ps *ParseStats) SkippedSummary() string {
	return fmt.Sprintf("%d rows skipped due to parse errors", ps.ErrorCount)
}

// String returns a human-readable summary of parsing statistics
func (ps *ParseStats) String() string {
	return fmt.Sprintf("Parsed %d lines, %d records (%d valid), %d errors",
		ps.TotalLines, ps.RecordsParsed, ps.RecordsValid, ps.ErrorCount)
}

// GetSampleErrors returns a sample of the parsing errors for logging/debugging
func (ps *ParseStats) GetSampleErrors(maxSamples int) []string {
	if len(ps.Errors) == 0 {
		return nil
	}

	limit := len(ps.Errors)
	if maxSamples > 0 && maxSamples < limit {
		limit = maxSamples
	}

	samples := make([]string, 0, limit)
	for i := 0; i < limit; i++ {
		samples = append(samples, ps.Errors[i].Error())
	}
	return samples
}
