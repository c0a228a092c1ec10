package parsers

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"unicode/utf8"

	"golang-tuition-reconciliation/internal/models"
	"golang-tuition-reconciliation/pkg/errors"

	"github.com/shopspring/decimal"
)

// Helper function to create a temporary CSV file
func createTempCSVFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "input.csv")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write temp file: %v", err)
	}
	return path
}

func newStatementParser(t *testing.T) *StatementParser {
	t.Helper()
	parser, err := NewStatementParser(nil)
	if err != nil {
		t.Fatalf("NewStatementParser failed: %v", err)
	}
	return parser
}

func newRosterParser(t *testing.T) *RosterParser {
	t.Helper()
	parser, err := NewRosterParser(nil)
	if err != nil {
		t.Fatalf("NewRosterParser failed: %v", err)
	}
	return parser
}

func TestParseError(t *testing.T) {
	err := &ParseError{
		Line:    5,
		Field:   "valor",
		Value:   "abc",
		Message: "invalid amount",
	}

	expected := "parse error at line 5 (valor='abc'): invalid amount"
	if err.Error() != expected {
		t.Errorf("Expected error message %q, got %q", expected, err.Error())
	}
}

func TestNormalizeHeader(t *testing.T) {
	tests := map[string]string{
		"Descrição":      "descricao",
		" Data ":         "data",
		"fullName":       "fullname",
		"Data Matrícula": "data_matricula",
		"valor-rs":       "valor_rs",
	}
	for in, want := range tests {
		if got := normalizeHeader(in); got != want {
			t.Errorf("normalizeHeader(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestSniffDelimiter(t *testing.T) {
	tests := []struct {
		header string
		want   rune
	}{
		{"data,valor,descricao\n1,2,3", ','},
		{"data;valor;descricao\n10/05/2024;1,50;x", ';'},
		{"data\tvalor\tdescricao", '\t'},
		{"data", ','},
	}
	for _, tt := range tests {
		if got := sniffDelimiter([]byte(tt.header)); got != tt.want {
			t.Errorf("sniffDelimiter(%q) = %q, want %q", tt.header, got, tt.want)
		}
	}
}

func TestStatementConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *StatementConfig)
		wantErr bool
	}{
		{"default", func(c *StatementConfig) {}, false},
		{"empty name", func(c *StatementConfig) { c.Name = "" }, true},
		{"optional amount", func(c *StatementConfig) { c.AmountColumn.Required = false }, true},
		{"unnamed column", func(c *StatementConfig) { c.AccountColumn.Name = " " }, true},
		{"bad encoding", func(c *StatementConfig) { c.Encoding = "ebcdic" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultStatementConfig()
			tt.mutate(config)
			if err := config.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestStatementParser_BrazilianExport(t *testing.T) {
	content := "Data;Valor;Descrição;Documento;Conta\n" +
		"10/05/2024;R$ 400,00;PIX RECEBIDO FERNANDA SILVA;123;Conta Corrente\n" +
		"11/05/2024;-150,00;TARIFA BANCARIA;;Conta Corrente\n" +
		"xx/05/2024;100,00;DATA RUIM;;\n" +
		"\n" +
		"12/05/2024;abc;VALOR RUIM;;\n" +
		"13/05/2024;R$ 1.234,56;BOLETO PAGO 42;BOL1;Conta Corrente\n"

	parser := newStatementParser(t)
	transactions, stats, err := parser.Parse(context.Background(), strings.NewReader(content), "extrato.csv")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if len(transactions) != 3 {
		t.Fatalf("Expected 3 transactions, got %d", len(transactions))
	}
	if stats.ErrorCount != 2 || stats.RecordsParsed != 5 || stats.RecordsValid != 3 {
		t.Errorf("unexpected stats: %s", stats)
	}
	if stats.SkippedSummary() != "2 rows skipped due to parse errors" {
		t.Errorf("unexpected summary %q", stats.SkippedSummary())
	}

	first := transactions[0]
	if !first.IsCredit() || !first.Amount.Equal(decimal.NewFromInt(400)) {
		t.Errorf("expected credit of 400, got %s", first)
	}
	if first.Description != "PIX RECEBIDO FERNANDA SILVA" || first.Document != "123" || first.Account != "Conta Corrente" {
		t.Errorf("fields not mapped: %+v", first)
	}

	second := transactions[1]
	if second.Direction != models.DirectionDebit || !second.Amount.Equal(decimal.NewFromInt(150)) {
		t.Errorf("expected debit of 150, got %s", second)
	}

	if !transactions[2].Amount.Equal(decimal.RequireFromString("1234.56")) {
		t.Errorf("expected 1234.56, got %s", transactions[2].Amount)
	}

	if stats.Errors[0].Field != "data" || stats.Errors[1].Field != "valor" {
		t.Errorf("unexpected error fields: %v", stats.GetSampleErrors(0))
	}
}

func TestStatementParser_EnglishHeadersAndOptionalColumns(t *testing.T) {
	content := "date,amount,description\n2024-05-10,1234.56,PIX ANA\n2024-05-11,(20.00),FEE\n"
	path := createTempCSVFile(t, content)

	parser := newStatementParser(t)
	transactions, stats, err := parser.ParseFile(context.Background(), path)
	if err != nil {
		t.Fatalf("ParseFile failed: %v", err)
	}
	if stats.HasErrors() {
		t.Fatalf("unexpected errors: %v", stats.GetSampleErrors(0))
	}
	if len(transactions) != 2 {
		t.Fatalf("Expected 2 transactions, got %d", len(transactions))
	}
	if transactions[0].Document != "" || transactions[0].Account != "" {
		t.Errorf("absent optional columns should be empty: %+v", transactions[0])
	}
	if transactions[1].IsCredit() {
		t.Error("parenthesised amount should be a debit")
	}
}

func TestStatementParser_Latin1(t *testing.T) {
	// "data;valor;descrição" and "PIX JOÃO" in Windows-1252
	content := []byte("data;valor;descri\xe7\xe3o\n2024-05-10;400,00;PIX JO\xc3O\n")
	path := filepath.Join(t.TempDir(), "latin1.csv")
	if err := os.WriteFile(path, content, 0644); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	transactions, _, err := newStatementParser(t).ParseFile(context.Background(), path)
	if err != nil {
		t.Fatalf("ParseFile failed: %v", err)
	}
	if len(transactions) != 1 || transactions[0].Description != "PIX JOÃO" {
		t.Errorf("expected decoded description, got %+v", transactions)
	}
}

func TestStatementParser_StrictUTF8RejectsLatin1(t *testing.T) {
	config := DefaultStatementConfig()
	config.Encoding = EncodingUTF8
	parser, err := NewStatementParser(config)
	if err != nil {
		t.Fatalf("NewStatementParser failed: %v", err)
	}

	_, _, err = parser.Parse(context.Background(), strings.NewReader("data;valor\n2024-05-10;PIX JO\xc3O\n"), "x.csv")
	if !errors.IsCategory(err, errors.CategoryParse) {
		t.Errorf("expected parse error for invalid UTF-8, got %v", err)
	}
}

func TestStatementParser_FatalErrors(t *testing.T) {
	parser := newStatementParser(t)

	tests := []struct {
		name     string
		content  string
		category errors.ErrorCategory
	}{
		{"missing amount column", "data,descricao\n2024-05-10,PIX\n", errors.CategoryParse},
		{"empty file", "", errors.CategoryValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := parser.Parse(context.Background(), strings.NewReader(tt.content), "x.csv")
			if err == nil {
				t.Fatal("expected error")
			}
			if !errors.IsCategory(err, tt.category) {
				t.Errorf("expected %s error, got %v", tt.category, err)
			}
		})
	}

	_, _, err := parser.ParseFile(context.Background(), filepath.Join(t.TempDir(), "missing.csv"))
	if !errors.IsCategory(err, errors.CategoryFile) {
		t.Errorf("expected file error, got %v", err)
	}
}

func TestStatementParser_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := newStatementParser(t).Parse(ctx, strings.NewReader("data,valor\n2024-05-10,1\n"), "x.csv")
	if err == nil {
		t.Error("expected error for cancelled context")
	}
}

func TestStatementParser_ParseFiles(t *testing.T) {
	first := createTempCSVFile(t, "data,valor,descricao\n2024-05-10,400,A\n")
	second := createTempCSVFile(t, "data,valor,descricao\n2024-05-11,350,B\nbad,1,C\n")

	transactions, stats, err := newStatementParser(t).ParseFiles(context.Background(), []string{first, second})
	if err != nil {
		t.Fatalf("ParseFiles failed: %v", err)
	}
	if len(transactions) != 2 || transactions[0].Description != "A" || transactions[1].Description != "B" {
		t.Errorf("expected transactions in file order, got %v", transactions)
	}
	if len(stats) != 2 || stats[1].ErrorCount != 1 {
		t.Errorf("unexpected per-file stats")
	}
}

func TestStatementParser_ValidateFile(t *testing.T) {
	parser := newStatementParser(t)

	tests := []struct {
		name        string
		content     string
		expectError bool
		code        errors.ErrorCode
	}{
		{"valid statement", "data,valor\n2024-05-10,400\n", false, ""},
		{"header only", "data,valor\n", false, ""},
		{"bad row before a good one", "data,valor\nontem,400\n2024-05-10,400\n", false, ""},
		{"every sampled row fails", "data,valor\nontem,400\nhoje,abc\n", true, errors.CodeInvalidData},
		{"missing amount column", "data,descricao\n2024-05-10,PIX\n", true, errors.CodeMissingColumn},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := parser.ValidateFile(createTempCSVFile(t, tt.content))
			if !tt.expectError {
				if err != nil {
					t.Errorf("expected valid file, got %v", err)
				}
				return
			}
			reconcilerErr, ok := errors.AsReconcilerError(err)
			if !ok {
				t.Fatalf("expected a ReconcilerError, got %v", err)
			}
			if reconcilerErr.Category != errors.CategoryParse || reconcilerErr.Code != tt.code {
				t.Errorf("expected parse error %s, got %s/%s", tt.code, reconcilerErr.Category, reconcilerErr.Code)
			}
		})
	}

	if err := parser.ValidateFile(filepath.Join(t.TempDir(), "missing.csv")); !errors.IsCategory(err, errors.CategoryFile) {
		t.Errorf("expected a file error for a missing statement, got %v", err)
	}
}

func TestRosterParser(t *testing.T) {
	content := "id,fullName,courseFee,totalInstallments,paymentMethod,boletoDueDate,enrollmentDate\n" +
		"1,Ana Souza,4000,10,BOLETO,10,2024-01-15\n" +
		"2,João Pedro,\"3.500,00\",10,Cartão de Crédito,,15/01/2024\n" +
		"3,Valor Ruim,abc,10,PIX,10,2024-01-15\n" +
		"1,Duplicada,1000,2,PIX,5,2024-01-15\n" +
		"4,Metodo Ruim,1000,2,cheque,5,2024-01-15\n" +
		"5,Dia Ruim,1000,2,PIX,40,2024-01-15\n"

	students, stats, err := newRosterParser(t).Parse(context.Background(), strings.NewReader(content), "alunos.csv")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if len(students) != 2 {
		t.Fatalf("Expected 2 students, got %d", len(students))
	}
	if stats.ErrorCount != 4 {
		t.Errorf("Expected 4 skipped rows, got %d: %v", stats.ErrorCount, stats.GetSampleErrors(0))
	}

	ana := students[0]
	if ana.ID != "1" || ana.TotalInstallments != 10 || ana.DueDay != 10 || ana.PaymentMethod != models.PaymentBoleto {
		t.Errorf("unexpected student %+v", ana)
	}

	joao := students[1]
	if !joao.CourseFee.Equal(decimal.NewFromInt(3500)) {
		t.Errorf("expected fee 3500, got %s", joao.CourseFee)
	}
	if joao.DueDay != 10 {
		t.Errorf("expected default due day 10, got %d", joao.DueDay)
	}
	if joao.PaymentMethod != models.PaymentCreditCard {
		t.Errorf("expected credit card, got %s", joao.PaymentMethod)
	}
	if joao.EnrollmentDate.Day() != 15 || joao.EnrollmentDate.Month() != 1 {
		t.Errorf("expected 15 Jan enrollment, got %s", joao.EnrollmentDate)
	}
}

func TestRosterParser_PortugueseHeaders(t *testing.T) {
	content := "Nome;Valor_Curso;Parcelas;Dia_Vencimento;Data_Matricula;ID\n" +
		"Fernanda Passos Silva dos Santos;R$ 4.000,00;8;5;01/02/2024;17\n"

	students, stats, err := newRosterParser(t).Parse(context.Background(), strings.NewReader(content), "alunos.csv")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if stats.HasErrors() || len(students) != 1 {
		t.Fatalf("expected one clean student, got %d (%v)", len(students), stats.GetSampleErrors(0))
	}

	s := students[0]
	if s.ID != "17" || s.FullName != "Fernanda Passos Silva dos Santos" || s.TotalInstallments != 8 || s.DueDay != 5 {
		t.Errorf("unexpected student %+v", s)
	}
	if s.PaymentMethod != models.PaymentBoleto {
		t.Errorf("expected default boleto, got %s", s.PaymentMethod)
	}
}

func TestRosterParser_MissingColumns(t *testing.T) {
	_, _, err := newRosterParser(t).Parse(context.Background(), strings.NewReader("id,nome\n1,Ana\n"), "alunos.csv")
	if err == nil {
		t.Fatal("expected missing column error")
	}
	if !strings.Contains(err.Error(), "courseFee") {
		t.Errorf("error should name the missing column: %v", err)
	}
}

func TestParseContext_GetColumnIndex(t *testing.T) {
	parser := NewBaseParser(nil, "test")
	parseCtx := NewParseContext(context.Background(), "x.csv")
	parseCtx.Headers = []string{"Data", "VALOR", "Descrição", "valor"}
	parser.buildHeaderMap(parseCtx)

	tests := []struct {
		col  Column
		want int
	}{
		{Column{Name: "data"}, 0},
		{Column{Name: "amount", Aliases: []string{"valor"}}, 1},
		{Column{Name: "descricao"}, 2},
		{Column{Name: "conta", Aliases: []string{"account"}}, -1},
	}

	for _, tt := range tests {
		if got := parseCtx.GetColumnIndex(tt.col); got != tt.want {
			t.Errorf("GetColumnIndex(%s) = %d, want %d", tt.col.Name, got, tt.want)
		}
	}
}

func TestRosterParser_ParseTable(t *testing.T) {
	rows := [][]string{
		{"id", "nome", "valor_curso", "parcelas", "data_matricula"},
		{"1", "Ana Souza", "4000", "10", "2024-01-15"},
		{"2", "", "4000", "10", "2024-01-15"},
	}

	students, stats, err := newRosterParser(t).ParseTable(context.Background(), rows, "alunos")
	if err != nil {
		t.Fatalf("ParseTable failed: %v", err)
	}
	if len(students) != 1 || students[0].FullName != "Ana Souza" {
		t.Errorf("unexpected students %v", students)
	}
	if stats.ErrorCount != 1 {
		t.Errorf("expected the nameless row to be skipped, got %d errors", stats.ErrorCount)
	}
}

func TestReadRecord_OversizedField(t *testing.T) {
	tests := []struct {
		name          string
		maxFieldSize  int
		field         string
		expectedValue string
	}{
		{"limit below the preview", 4, "PIX RECEBIDO", "PIX RECEBIDO"},
		{"accents kept whole", 10, strings.Repeat("ção", 12), strings.Repeat("ção", 10) + "ç" + "ã" + "..."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultParseConfig()
			config.MaxFieldSize = tt.maxFieldSize
			parser := NewBaseParser(config, "test")

			reader, err := parser.NewReader([]byte("1,"+tt.field+"\n"), "extrato.csv")
			if err != nil {
				t.Fatalf("NewReader failed: %v", err)
			}

			_, err = parser.ReadRecord(reader, NewParseContext(context.Background(), "extrato.csv"))
			parseErr, ok := err.(*ParseError)
			if !ok {
				t.Fatalf("expected a ParseError, got %v", err)
			}
			if parseErr.Column != 1 {
				t.Errorf("expected column 1, got %d", parseErr.Column)
			}
			if parseErr.Value != tt.expectedValue {
				t.Errorf("expected value %q, got %q", tt.expectedValue, parseErr.Value)
			}
			if !utf8.ValidString(parseErr.Value) {
				t.Errorf("value is not valid UTF-8: %q", parseErr.Value)
			}
		})
	}
}
