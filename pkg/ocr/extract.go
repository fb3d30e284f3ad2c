package ocr

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

// Document types, from most to least specific. Classification feeds the
// keyword sets used for amount and description extraction.
const (
	DocSupermarket = "Supermarket Receipt"
	DocMedical     = "Medical Visit"
	DocVoucher     = "Voucher"
	DocInvoice     = "Invoice"
	DocReceipt     = "Receipt"
	DocGeneric     = "Generic Document"
)

// docKeywordGroups is checked in order; the first group with a hit wins, so
// specific groups (supermarket chains) must precede generic ones ("boleta").
var docKeywordGroups = []struct {
	docType  string
	keywords []string
}{
	{DocSupermarket, []string{"jumbo", "lider", "unimarc", "tottus", "santa isabel", "acuenta", "ekono", "supermercado"}},
	{DocMedical, []string{"consulta", "copago", "bono", "isapre", "fonasa", "clinica", "clínica", "hospital", "farmacia"}},
	{DocVoucher, []string{"voucher", "transbank", "redcompra", "transaccion", "transacción", "comprobante"}},
	{DocInvoice, []string{"factura", "iva", "neto"}},
	{DocReceipt, []string{"boleta", "ticket", "recibo", "folio", "venta"}},
}

// amountKeywords anchor the first (highest-priority) amount pattern.
// Longer phrases come first so the regexp alternation prefers them.
var amountKeywords = map[string][]string{
	DocSupermarket: {"total a pagar", "total", "monto"},
	DocMedical:     {"copago", "total", "monto", "valor"},
}

var defaultAmountKeywords = []string{"total", "monto", "precio", "valor", "importe"}

// descKeywords pick the most promising description line per document type.
var descKeywords = map[string][]string{
	DocMedical:     {"consulta", "copago", "bono", "atencion", "atención"},
	DocSupermarket: {"supermercado", "jumbo", "lider", "unimarc", "tottus"},
}

var defaultDescKeywords = []string{"folio", "boleta", "factura", "ticket", "compra", "venta"}

// amount candidate shapes: grouped thousands first so the alternation does
// not truncate "12.500" to "12".
const numPattern = `([0-9]{1,3}(?:[.,][0-9]{3})+(?:[.,][0-9]{2})?|[0-9]+(?:[.,][0-9]{2})?)`

var (
	currencyRE = regexp.MustCompile(`\$\s*` + numPattern)
	bareRE     = regexp.MustCompile(`([0-9]{1,3}(?:[.,][0-9]{3})+)`)
	latinRE    = regexp.MustCompile(`,[0-9]{2}$`)
	angloRE    = regexp.MustCompile(`\.[0-9]{2}$`)

	dateREs = []*regexp.Regexp{
		regexp.MustCompile(`[0-9]{4}[-/][0-9]{1,2}[-/][0-9]{1,2}`),
		regexp.MustCompile(`[0-9]{1,2}[-/][0-9]{1,2}[-/][0-9]{4}`),
		regexp.MustCompile(`[0-9]{1,2}[-/][0-9]{1,2}[-/][0-9]{2}`),
	}
)

// Extract derives structured fields from recognized text. Pure: the same
// text always yields the same fields, and finding nothing is not an error.
func Extract(rawText string) ExtractedFields {
	return ExtractWithType(rawText, ClassifyDocument(rawText))
}

// ExtractWithType is Extract with an explicit document type, used when the
// caller already classified the text (or received a type from upstream).
func ExtractWithType(rawText, docType string) ExtractedFields {
	fields := ExtractedFields{DocumentType: docType}
	if amt, ok := extractAmount(rawText, docType); ok {
		fields.Amount = &amt
	}
	if d, ok := extractDate(rawText); ok {
		fields.Date = &d
	}
	if desc, ok := extractDescription(rawText, docType); ok {
		fields.Description = &desc
	}
	return fields
}

// ClassifyDocument tests the text against ordered keyword groups; the first
// matching group wins, no match yields DocGeneric.
func ClassifyDocument(rawText string) string {
	low := strings.ToLower(rawText)
	for _, g := range docKeywordGroups {
		for _, kw := range g.keywords {
			if strings.Contains(low, kw) {
				return g.docType
			}
		}
	}
	return DocGeneric
}

// extractAmount runs the matcher cascade in priority order, stopping at the
// first pattern that yields at least one valid candidate, and returns the
// largest survivor. Totals are typically the largest number on a receipt; a
// line item exceeding the true total is a known, accepted false positive.
func extractAmount(rawText, docType string) (float64, bool) {
	matchers := []func(string) []string{
		func(t string) []string { return keywordAmounts(t, docType) },
		func(t string) []string { return submatches(currencyRE, t) },
		func(t string) []string { return submatches(bareRE, t) },
	}
	for _, m := range matchers {
		var best float64
		for _, raw := range m(rawText) {
			amt, err := normalizeAmount(raw)
			if err != nil || amt <= 0 || amt >= 10_000_000 {
				continue // OCR noise: zero/negative artifacts or absurdly large misreads
			}
			if amt > best {
				best = amt
			}
		}
		if best > 0 {
			return best, true
		}
	}
	return 0, false
}

func keywordAmounts(rawText, docType string) []string {
	kws := amountKeywords[docType]
	if kws == nil {
		kws = defaultAmountKeywords
	}
	re := regexp.MustCompile(`(?i)(?:` + strings.Join(kws, "|") + `)[\s:.]*\$?\s*` + numPattern)
	return submatches(re, rawText)
}

func submatches(re *regexp.Regexp, text string) []string {
	var out []string
	for _, m := range re.FindAllStringSubmatch(text, -1) {
		if len(m) >= 2 && m[1] != "" {
			out = append(out, m[1])
		}
	}
	return out
}

// normalizeAmount converts a matched substring to a numeric value. Trailing
// ",dd" marks a Latin-American decimal (dots are thousands), trailing ".dd"
// an Anglophone decimal (commas are thousands); anything else is read as an
// integer with all separators stripped.
func normalizeAmount(raw string) (float64, error) {
	s := strings.TrimSpace(raw)
	s = strings.ReplaceAll(s, "$", "")
	s = strings.ReplaceAll(s, " ", "")
	switch {
	case latinRE.MatchString(s):
		s = strings.ReplaceAll(s, ".", "")
		s = strings.ReplaceAll(s, ",", ".")
	case angloRE.MatchString(s):
		s = strings.ReplaceAll(s, ",", "")
	default:
		s = strings.ReplaceAll(s, ".", "")
		s = strings.ReplaceAll(s, ",", "")
	}
	return strconv.ParseFloat(s, 64)
}

// extractDate returns the first date-like substring verbatim. No calendar
// validation: the value is a hint the user confirms in the form.
func extractDate(rawText string) (string, bool) {
	for _, re := range dateREs {
		if m := re.FindString(rawText); m != "" {
			return m, true
		}
	}
	return "", false
}

// extractDescription picks the most promising line: first a line holding a
// document-type keyword, else the first line with at least four letters.
// Truncated to 100 characters. Purely numeric noise never qualifies.
func extractDescription(rawText, docType string) (string, bool) {
	var lines []string
	for _, l := range strings.Split(rawText, "\n") {
		l = strings.TrimSpace(l)
		if len(l) > 2 {
			lines = append(lines, l)
		}
	}
	kws := descKeywords[docType]
	if kws == nil {
		kws = defaultDescKeywords
	}
	for _, line := range lines {
		low := strings.ToLower(line)
		for _, kw := range kws {
			if strings.Contains(low, kw) {
				return truncate(line, 100), true
			}
		}
	}
	for _, line := range lines {
		if letterCount(line) >= 4 {
			return truncate(line, 100), true
		}
	}
	return "", false
}

func letterCount(s string) int {
	n := 0
	for _, r := range s {
		if unicode.IsLetter(r) {
			n++
		}
	}
	return n
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max])
}
