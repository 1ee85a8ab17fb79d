package ticket

import (
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/facturaIA/cfdi-normalizer-service/internal/models"
)

// Extractor runs a family of independent field-extraction strategies over
// consolidated receipt lines. Every strategy is best-effort: it records a
// trace outcome and degrades to an unset field instead of failing the
// document.
type Extractor struct{}

// NewExtractor creates a ticket field extractor.
func NewExtractor() *Extractor { return &Extractor{} }

// Extract recovers transaction fields from raw recognized text. It never
// returns an error; partial data plus warnings is the contract.
func (e *Extractor) Extract(rawText string) (*models.ExtractedTicketData, *Trace) {
	lines := ConsolidateLines(rawText)
	trace := &Trace{}
	data := &models.ExtractedTicketData{}

	data.Establishment = extractEstablishment(lines, trace)
	data.TaxID = extractTaxID(lines, trace)
	data.Phone = extractPhone(lines, trace)
	data.IssueDate = extractDate(lines, trace)
	data.IssueTime = extractTime(lines, trace)
	data.Subtotal = extractLabeledAmount(lines, trace, "subtotal", subtotalLabels)
	data.Tax = extractTax(lines, trace)
	data.Total = ScoreTotal(lines, trace)
	data.PaymentMethod = extractPaymentMethod(lines, trace)
	data.Items = ExtractLineItems(lines, deref(data.Establishment), trace)
	data.Extra = extractExtraFields(lines, trace)

	if data.Establishment != nil {
		concept, category := suggestCategory(*data.Establishment)
		data.SuggestedConcept = &concept
		data.SuggestedCategory = &category
		trace.hit("categoria", "keyword-taxonomy", category, 0.5, concept)
	}

	if data.Total == nil {
		trace.warnf("no se pudo determinar el total del ticket")
	}
	if data.TaxID == nil {
		trace.warnf("no se encontró RFC de la contraparte")
	}
	if data.IssueDate == nil {
		trace.warnf("no se encontró fecha del ticket")
	}

	return data, trace
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// --- establishment ---------------------------------------------------------

// establishmentStoplist are field-label keywords that disqualify a header
// line from being the business name.
var establishmentStoplist = []string{
	"TOTAL", "SUBTOTAL", "FECHA", "FOLIO", "TICKET", "FACTURA", "IVA",
	"RFC", "CAJA", "CLIENTE", "DIRECCION", "SUCURSAL", "TELEFONO",
}

var alphabeticLineRe = regexp.MustCompile(`^[\p{L}][\p{L}\s.,&'\-]*$`)

// extractEstablishment picks the first of the first five lines that looks
// like a business name: alphabetic, 5-49 chars, not a field label.
func extractEstablishment(lines []string, trace *Trace) *string {
	limit := 5
	if len(lines) < limit {
		limit = len(lines)
	}
	for i := 0; i < limit; i++ {
		line := strings.TrimSpace(lines[i])
		n := len([]rune(line))
		if n < 5 || n > 49 {
			continue
		}
		if !alphabeticLineRe.MatchString(line) {
			continue
		}
		if lineHasKeyword(line, establishmentStoplist) {
			continue
		}
		trace.hit("establecimiento", "header-scan", line, 0.8, "")
		return &line
	}
	trace.miss("establecimiento", "header-scan", "sin línea alfabética válida en el encabezado")
	return nil
}

// --- tax id (RFC) ----------------------------------------------------------

var (
	reRFCLabeled   = regexp.MustCompile(`(?i)R\.?\s*F\.?\s*C\.?\s*[:.\-]?\s*([A-ZÑ&]{3,4}[\s\-.]?\d{6}[\s\-.]?[A-Z0-9]{2,3})`)
	reRFCUnlabeled = regexp.MustCompile(`\b([A-ZÑ&]{3,4}\d{6}[A-Z0-9]{3})\b`)
	reRFCShape     = regexp.MustCompile(`^[A-ZÑ&]{3,4}\d{6}[A-Z0-9]{3}$`)
)

// placeholderPrefixes are the generic "público en general" filings; a
// counterpart RFC starting with one of these identifies nobody.
var placeholderPrefixes = []string{"XAXX", "XEXX"}

const taxIDLineWindow = 10 // the counterpart's identity precedes the totals

// extractTaxID scans only the first ten lines with a labelled and an
// unlabelled pattern family, normalizes separators and rejects placeholder
// prefixes and malformed shapes.
func extractTaxID(lines []string, trace *Trace) *string {
	limit := taxIDLineWindow
	if len(lines) < limit {
		limit = len(lines)
	}
	for i := 0; i < limit; i++ {
		line := strings.ToUpper(lines[i])
		var raw string
		rule := "rfc-labeled"
		if m := reRFCLabeled.FindStringSubmatch(line); m != nil {
			raw = m[1]
		} else if m := reRFCUnlabeled.FindStringSubmatch(line); m != nil {
			raw = m[1]
			rule = "rfc-unlabeled"
		}
		if raw == "" {
			continue
		}
		rfc := normalizeRFC(raw)
		if rfc == "" {
			trace.miss("rfc", rule, "forma inválida: "+raw)
			continue
		}
		if hasPlaceholderPrefix(rfc) {
			trace.miss("rfc", rule, "RFC genérico de público en general: "+rfc)
			continue
		}
		trace.hit("rfc", rule, rfc, 0.9, "")
		return &rfc
	}
	trace.miss("rfc", "rfc-scan", "sin RFC en las primeras líneas")
	return nil
}

func normalizeRFC(raw string) string {
	rfc := strings.ToUpper(raw)
	for _, sep := range []string{" ", "-", ".", "/"} {
		rfc = strings.ReplaceAll(rfc, sep, "")
	}
	if len(rfc) < 12 || len(rfc) > 13 {
		return ""
	}
	if !reRFCShape.MatchString(rfc) {
		return ""
	}
	return rfc
}

func hasPlaceholderPrefix(rfc string) bool {
	for _, p := range placeholderPrefixes {
		if strings.HasPrefix(rfc, p) {
			return true
		}
	}
	return false
}

// --- phone -----------------------------------------------------------------

var rePhone = regexp.MustCompile(`(?i)tel(?:efono)?\.?\s*[:.]?\s*((?:\d[\s\-.]?){10})`)

func extractPhone(lines []string, trace *Trace) *string {
	for _, line := range lines {
		if m := rePhone.FindStringSubmatch(line); m != nil {
			digits := regexp.MustCompile(`\D`).ReplaceAllString(m[1], "")
			if len(digits) == 10 {
				trace.hit("telefono", "tel-labeled", digits, 0.8, "")
				return &digits
			}
		}
	}
	return nil
}

// --- date ------------------------------------------------------------------

var monthAbbrev = map[string]time.Month{
	"ENE": time.January, "FEB": time.February, "MAR": time.March,
	"ABR": time.April, "MAY": time.May, "JUN": time.June,
	"JUL": time.July, "AGO": time.August, "SEP": time.September,
	"OCT": time.October, "NOV": time.November, "DIC": time.December,
}

type datePattern struct {
	rule     string
	priority int
	re       *regexp.Regexp
	build    func(m []string) (time.Time, bool)
}

var datePatterns = []datePattern{
	{
		rule: "iso-timestamp", priority: 50,
		re: regexp.MustCompile(`\b(\d{4})-(\d{2})-(\d{2})T\d{2}:\d{2}`),
		build: func(m []string) (time.Time, bool) {
			return buildDate(m[1], m[2], m[3])
		},
	},
	{
		rule: "day-monthname-year", priority: 40,
		re: regexp.MustCompile(`(?i)\b(\d{1,2})[\s\-/]*(ENE|FEB|MAR|ABR|MAY|JUN|JUL|AGO|SEP|OCT|NOV|DIC)[A-ZÁÉÍÓÚ]*[\s\-/,.]*(\d{2,4})\b`),
		build: func(m []string) (time.Time, bool) {
			month, ok := monthAbbrev[strings.ToUpper(m[2])]
			if !ok {
				return time.Time{}, false
			}
			return buildDate(m[3], twoDigit(int(month)), m[1])
		},
	},
	{
		rule: "labeled-iso", priority: 35,
		re: regexp.MustCompile(`(?i)FECHA\s*[:.]?\s*(\d{4})-(\d{2})-(\d{2})`),
		build: func(m []string) (time.Time, bool) {
			return buildDate(m[1], m[2], m[3])
		},
	},
	{
		rule: "labeled-slash", priority: 30,
		re: regexp.MustCompile(`(?i)FECHA\s*[:.]?\s*(\d{1,2})/(\d{1,2})/(\d{2,4})`),
		build: func(m []string) (time.Time, bool) {
			return buildDate(m[3], m[2], m[1])
		},
	},
	{
		rule: "unlabeled-slash", priority: 20,
		re: regexp.MustCompile(`\b(\d{1,2})/(\d{1,2})/(\d{2,4})\b`),
		build: func(m []string) (time.Time, bool) {
			return buildDate(m[3], m[2], m[1])
		},
	},
	{
		rule: "unlabeled-dash", priority: 15,
		re: regexp.MustCompile(`\b(\d{1,2})-(\d{1,2})-(\d{4})\b`),
		build: func(m []string) (time.Time, bool) {
			return buildDate(m[3], m[2], m[1])
		},
	},
}

// extractDate collects matches from every competing pattern and keeps the
// highest-priority one. Day-first ordering is assumed for slash forms, as
// printed on national receipts.
func extractDate(lines []string, trace *Trace) *time.Time {
	var best *time.Time
	bestPriority := -1
	for _, line := range lines {
		for _, p := range datePatterns {
			m := p.re.FindStringSubmatch(line)
			if m == nil {
				continue
			}
			t, ok := p.build(m)
			if !ok {
				continue
			}
			trace.hit("fecha", p.rule, t.Format("2006-01-02"), float64(p.priority)/50.0, "")
			if p.priority > bestPriority {
				bestPriority = p.priority
				tt := t
				best = &tt
			}
		}
	}
	if best == nil {
		trace.miss("fecha", "date-scan", "sin patrón de fecha")
	}
	return best
}

func buildDate(year, month, day string) (time.Time, bool) {
	y := atoiSafe(year)
	mo := atoiSafe(month)
	d := atoiSafe(day)
	if y < 100 {
		y += 2000
	}
	if y < 2000 || y > 2100 || mo < 1 || mo > 12 || d < 1 || d > 31 {
		return time.Time{}, false
	}
	return time.Date(y, time.Month(mo), d, 0, 0, 0, 0, time.UTC), true
}

func atoiSafe(s string) int {
	n := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			return -1
		}
		n = n*10 + int(r-'0')
	}
	return n
}

func twoDigit(n int) string {
	if n < 10 {
		return "0" + string(rune('0'+n))
	}
	return string(rune('0'+n/10)) + string(rune('0'+n%10))
}

// --- time ------------------------------------------------------------------

var reTime = regexp.MustCompile(`\b(\d{1,2}):(\d{2})(?::(\d{2}))?\b`)

// extractTime returns the first HH:MM[:SS] found anywhere in the text.
func extractTime(lines []string, trace *Trace) *string {
	for _, line := range lines {
		if m := reTime.FindStringSubmatch(line); m != nil {
			if atoiSafe(m[1]) > 23 || atoiSafe(m[2]) > 59 {
				continue
			}
			v := m[0]
			trace.hit("hora", "first-clock", v, 0.7, "")
			return &v
		}
	}
	return nil
}

// --- subtotal / tax --------------------------------------------------------

var (
	subtotalLabels = []string{"SUBTOTAL", "SUB-TOTAL", "SUB TOTAL"}
	taxLabels      = []string{"IVA", "I.V.A", "IMPUESTO"}
	reBareAmount   = regexp.MustCompile(`^` + amountPattern + `$`)
	reInlineAmount = regexp.MustCompile(amountPattern + `\s*$`)
	reRateMarker   = regexp.MustCompile(`\d{1,2}(?:\.\d+)?\s*%`)
)

const amountLookahead = 3 // value may sit a few lines below its label

// extractLabeledAmount locates a line that is exactly (or starts with) one
// of the labels and takes the value from that line or the next up-to-three
// lines holding a bare currency-shaped number.
func extractLabeledAmount(lines []string, trace *Trace, field string, labels []string) *decimal.Decimal {
	for i, line := range lines {
		upper := strings.ToUpper(strings.TrimSpace(line))
		if !labelMatches(upper, labels) {
			continue
		}
		if m := reInlineAmount.FindStringSubmatch(line); m != nil {
			if v, ok := ParseAmount(m[1]); ok {
				trace.hit(field, "label-inline", v.String(), 0.8, "")
				return &v
			}
		}
		for j := i + 1; j <= i+amountLookahead && j < len(lines); j++ {
			if m := reBareAmount.FindStringSubmatch(strings.TrimSpace(lines[j])); m != nil {
				if v, ok := ParseAmount(m[1]); ok {
					trace.hit(field, "label-lookahead", v.String(), 0.7, "")
					return &v
				}
			}
		}
	}
	trace.miss(field, "label-scan", "etiqueta sin valor asociado")
	return nil
}

// extractTax behaves like extractLabeledAmount but additionally treats a
// consumption-tax label carrying a rate marker ("IVA 16%") as the tax line
// itself rather than a generic column label.
func extractTax(lines []string, trace *Trace) *decimal.Decimal {
	for i, line := range lines {
		upper := strings.ToUpper(strings.TrimSpace(line))
		if !labelMatches(upper, taxLabels) {
			continue
		}
		// SUBTOTAL would never match here, but "IVA INCLUIDO" notices do;
		// those carry no amount and fall through the lookahead harmlessly.
		hasRate := reRateMarker.MatchString(line)
		if m := reInlineAmount.FindStringSubmatch(line); m != nil {
			if v, ok := ParseAmount(m[1]); ok {
				rule := "label-inline"
				if hasRate {
					rule = "rate-marker-line"
				}
				trace.hit("iva", rule, v.String(), 0.8, "")
				return &v
			}
		}
		for j := i + 1; j <= i+amountLookahead && j < len(lines); j++ {
			if m := reBareAmount.FindStringSubmatch(strings.TrimSpace(lines[j])); m != nil {
				if v, ok := ParseAmount(m[1]); ok {
					trace.hit("iva", "label-lookahead", v.String(), 0.7, "")
					return &v
				}
			}
		}
	}
	trace.miss("iva", "label-scan", "etiqueta sin valor asociado")
	return nil
}

func labelMatches(upperLine string, labels []string) bool {
	for _, l := range labels {
		if upperLine == l || strings.HasPrefix(upperLine, l+" ") ||
			strings.HasPrefix(upperLine, l+":") || strings.HasPrefix(upperLine, l+".") ||
			strings.HasPrefix(upperLine, l+"$") || strings.HasPrefix(upperLine, l+" $") {
			return true
		}
	}
	return false
}

// --- payment method --------------------------------------------------------

var paymentGroups = []struct {
	label    string
	keywords []string
}{
	{"Tarjeta", []string{"TARJETA", "VISA", "MASTERCARD", "AMEX", "CREDITO", "DEBITO", "T.CRED", "T.DEB"}},
	{"Efectivo", []string{"EFECTIVO", "CAMBIO", "CASH"}},
	{"Transferencia", []string{"TRANSFERENCIA", "SPEI", "DEPOSITO"}},
}

func extractPaymentMethod(lines []string, trace *Trace) *string {
	for _, line := range lines {
		for _, g := range paymentGroups {
			if lineHasKeyword(line, g.keywords) {
				label := g.label
				trace.hit("formaPago", "keyword-group", label, 0.7, "")
				return &label
			}
		}
	}
	return nil
}

// --- extra fiscal fields ---------------------------------------------------

var (
	reTicketUUID = regexp.MustCompile(`(?i)\b([0-9A-F]{8}-[0-9A-F]{4}-[0-9A-F]{4}-[0-9A-F]{4}-[0-9A-F]{12})\b`)
	reFolio      = regexp.MustCompile(`(?i)FOLIO\s*[:.#]?\s*([A-Z0-9\-]{1,20})`)
	reSerie      = regexp.MustCompile(`(?i)SERIE\s*[:.]?\s*([A-Z0-9]{1,10})\b`)
	reRegimen    = regexp.MustCompile(`(?i)REGIMEN\s*(?:FISCAL)?\s*[:.]?\s*(\d{3})\b`)
	reLugarExp   = regexp.MustCompile(`(?i)LUGAR\s*(?:DE)?\s*EXP\w*\s*[:.]?\s*(\d{5})\b`)
)

// extractExtraFields picks up CFDI-grade metadata occasionally printed on
// factura-global stubs. Returns nil when nothing was found.
func extractExtraFields(lines []string, trace *Trace) *models.ExtraFiscalFields {
	extra := &models.ExtraFiscalFields{}
	found := false
	for _, line := range lines {
		if extra.DocumentUUID == "" {
			if m := reTicketUUID.FindStringSubmatch(line); m != nil {
				extra.DocumentUUID = strings.ToUpper(m[1])
				found = true
			}
		}
		if extra.Folio == "" {
			if m := reFolio.FindStringSubmatch(line); m != nil {
				extra.Folio = m[1]
				found = true
			}
		}
		if extra.Series == "" {
			if m := reSerie.FindStringSubmatch(line); m != nil {
				extra.Series = strings.ToUpper(m[1])
				found = true
			}
		}
		if extra.TaxRegime == "" {
			if m := reRegimen.FindStringSubmatch(line); m != nil {
				extra.TaxRegime = m[1]
				found = true
			}
		}
		if extra.PlaceOfIssue == "" {
			if m := reLugarExp.FindStringSubmatch(line); m != nil {
				extra.PlaceOfIssue = m[1]
				found = true
			}
		}
		if lineHasKeyword(line, []string{"MXN", "M.N."}) && extra.Currency == "" {
			extra.Currency = "MXN"
			found = true
		}
	}
	if !found {
		return nil
	}
	trace.hit("camposFiscales", "metadata-scan", "", 0.6, "campos fiscales adicionales presentes")
	return extra
}
