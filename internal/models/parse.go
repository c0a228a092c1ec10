package models

import (
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/shopspring/decimal"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// DateLayout is the canonical calendar-date layout used in reports
const DateLayout = "2006-01-02"

// DisplayDateLayout is the pt-BR layout used by console output
const DisplayDateLayout = "02/01/2006"

// DateOnly drops the clock part of t, keeping its calendar day
func DateOnly(t time.Time) time.Time {
	year, month, day := t.Date()
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// DaysBetween returns the signed number of calendar days from b to a
func DaysBetween(a, b time.Time) int {
	return int(DateOnly(a).Sub(DateOnly(b)).Hours() / 24)
}

// AbsDaysBetween returns the unsigned calendar-day distance of two dates
func AbsDaysBetween(a, b time.Time) int {
	d := DaysBetween(a, b)
	if d < 0 {
		return -d
	}
	return d
}

// Fold uppercases s and strips diacritics, so "Descrição" and "DESCRICAO"
// compare equal.
func Fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return strings.ToUpper(strings.TrimSpace(out))
}

// ParseAmount parses a statement amount such as "R$ 1.234,56", "-350,00",
// "(150.00)" or "1234.56" into a signed decimal.
func ParseAmount(s string) (decimal.Decimal, error) {
	raw := s
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, fmt.Errorf("amount string cannot be empty")
	}

	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = s[1 : len(s)-1]
	}

	s = strings.NewReplacer("R$", "", "r$", "", "$", "", " ", "", " ", "").Replace(s)
	if strings.HasPrefix(s, "-") {
		negative = !negative
		s = s[1:]
	} else if strings.HasPrefix(s, "+") {
		s = s[1:]
	}
	// "R$ -10,00" and "-R$ 10,00" both show up in exports
	if strings.HasPrefix(s, "-") {
		negative = !negative
		s = s[1:]
	}

	s = normalizeSeparators(s)

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount format '%s': %w", raw, err)
	}
	if negative {
		d = d.Neg()
	}
	return d, nil
}

// normalizeSeparators rewrites pt-BR and en-US digit grouping to a plain
// dot-decimal number. When both separators appear, the last one is the
// decimal separator.
func normalizeSeparators(s string) string {
	lastDot := strings.LastIndex(s, ".")
	lastComma := strings.LastIndex(s, ",")

	switch {
	case lastDot >= 0 && lastComma >= 0:
		if lastComma > lastDot {
			s = strings.ReplaceAll(s, ".", "")
			return strings.Replace(s, ",", ".", 1)
		}
		return strings.ReplaceAll(s, ",", "")
	case lastComma >= 0:
		if strings.Count(s, ",") > 1 {
			return strings.ReplaceAll(s, ",", "")
		}
		return strings.Replace(s, ",", ".", 1)
	case strings.Count(s, ".") > 1:
		return strings.ReplaceAll(s, ".", "")
	default:
		return s
	}
}

var dateFormats = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	DateLayout,
	"02/01/2006 15:04:05",
	"02/01/2006 15:04",
	DisplayDateLayout,
	"02-01-2006",
	"2006/01/02",
	"02/01/06",
}

// ParseDate parses statement and roster dates. Slash dates are read
// day-first, as Brazilian banks export them.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("date string cannot be empty")
	}

	var lastErr error
	for _, format := range dateFormats {
		t, err := time.Parse(format, s)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}

	return time.Time{}, fmt.Errorf("unable to parse date '%s': %w", s, lastErr)
}

// ParsePaymentMethod maps the labels used by the enrollment forms
// ("BOLETO", "Cartão de Crédito", "pix", ...) to a PaymentMethod.
func ParsePaymentMethod(s string) (PaymentMethod, error) {
	key := strings.NewReplacer(" ", "_", "-", "_").Replace(Fold(s))

	switch key {
	case "BOLETO", "BOLETO_BANCARIO":
		return PaymentBoleto, nil
	case "PIX":
		return PaymentPix, nil
	case "CREDIT_CARD", "CARTAO_DE_CREDITO", "CARTAO_CREDITO", "CREDITO":
		return PaymentCreditCard, nil
	case "DEBIT_CARD", "CARTAO_DE_DEBITO", "CARTAO_DEBITO", "DEBITO":
		return PaymentDebitCard, nil
	case "TRANSFER", "TRANSFERENCIA", "TED", "DOC":
		return PaymentTransfer, nil
	default:
		return "", fmt.Errorf("unknown payment method '%s'", s)
	}
}
