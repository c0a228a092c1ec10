package matcher

import (
	"regexp"

	"golang-tuition-reconciliation/internal/models"
)

// Tag is a diagnostic label derived from a statement description. Tags are
// shown in reports and never feed the score.
type Tag struct {
	Method    models.PaymentMethod `json:"method"`
	Reference string               `json:"reference"`
}

type tagPattern struct {
	method  models.PaymentMethod
	pattern *regexp.Regexp
}

// Patterns are tried in order against the folded description; the first
// capture group is the reference (CPF for PIX, a number otherwise).
var tagPatterns = []tagPattern{
	{models.PaymentPix, regexp.MustCompile(`PIX.*?(\d{3}\.\d{3}\.\d{3}-\d{2})`)},
	{models.PaymentTransfer, regexp.MustCompile(`TED.*?(\d+)`)},
	{models.PaymentBoleto, regexp.MustCompile(`BOLETO.*?(\d+)`)},
	{models.PaymentCreditCard, regexp.MustCompile(`CARTAO.*?(\d+)`)},
	{models.PaymentTransfer, regexp.MustCompile(`TRANSFERENCIA.*?(\d+)`)},
}

// TagPaymentMethod guesses how a credit was paid from its description. The
// second return value is false when no pattern applies.
func TagPaymentMethod(description string) (Tag, bool) {
	folded := models.Fold(description)
	for _, tp := range tagPatterns {
		if m := tp.pattern.FindStringSubmatch(folded); m != nil {
			return Tag{Method: tp.method, Reference: m[1]}, true
		}
	}
	return Tag{}, false
}
