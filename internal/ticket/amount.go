package ticket

import (
	"regexp"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// Total-amount disambiguation. A wrong total silently corrupts accounting,
// so competing candidates are collected from every pattern family, scored
// with fixed priorities, cross-checked against the spelled-out amount when
// one is printed, and only then ranked.

const amountPattern = `\$?\s*(\d{1,3}(?:[.,]\d{3})*(?:[.,]\d{2})|\d+(?:[.,]\d{2})?)`

// Priority constants are calibration data tuned against sample receipts,
// not derived values. TotalScoreTable exposes them for corpus validation.
const (
	priorityTotalLine    = 100 // line consisting solely of a labelled total
	priorityTotalToPay   = 95  // "total a pagar" / "gran total"
	priorityTotalLabeled = 70  // "total" label followed by a value anywhere
	priorityImporte      = 30  // "importe" is often a column header
	priorityBareTrailing = 10  // bare number ending a physical line
)

// thresholds for the tax-line-mistaken-for-total guard
const (
	nearEqualPriorityDelta = 20
	anomalyValueRatio      = 1.7
)

var (
	reTotalLine    = regexp.MustCompile(`(?i)^\s*total\s*(?:mxn|m\.?n\.?|pesos)?\s*[:=]?\s*` + amountPattern + `\s*$`)
	reTotalToPay   = regexp.MustCompile(`(?i)(?:gran\s+total|total\s+a\s+pagar)\s*[:=]?\s*` + amountPattern)
	reTotalLabeled = regexp.MustCompile(`(?i)total\s*(?:mxn|m\.?n\.?|pesos)?\s*[:=]?\s*` + amountPattern)
	reImporte      = regexp.MustCompile(`(?i)importe\s*[:=]?\s*` + amountPattern)
	reTrailing     = regexp.MustCompile(amountPattern + `\s*$`)

	reSpelledOut = regexp.MustCompile(`(?i)\bSON\s*[:.]?\s*\(?([A-ZÁÉÍÓÚÑ\s]+?)\s+PESOS\b`)
)

// nonTotalLineKeywords disqualify a line from the bare-number fallback:
// folios, dates and times end lines with numbers that are never amounts.
var nonTotalLineKeywords = []string{
	"FOLIO", "FECHA", "HORA", "TICKET", "CAJA", "NO.", "NUM", "TEL", "RFC", "CP",
}

type amountCandidate struct {
	value    decimal.Decimal
	priority int
	rule     string
}

// TotalScoreTable returns the priority assigned to each pattern family.
// Treat these as tunable calibration values.
func TotalScoreTable() map[string]int {
	return map[string]int{
		"total-line":    priorityTotalLine,
		"total-to-pay":  priorityTotalToPay,
		"total-labeled": priorityTotalLabeled,
		"importe":       priorityImporte,
		"bare-trailing": priorityBareTrailing,
	}
}

// ScoreTotal selects the most plausible total amount from consolidated
// lines. Returns nil when no candidate survives.
func ScoreTotal(lines []string, trace *Trace) *decimal.Decimal {
	var candidates []amountCandidate

	add := func(rule string, priority int, raw string) {
		v, ok := ParseAmount(raw)
		if !ok || !v.IsPositive() {
			return
		}
		candidates = append(candidates, amountCandidate{value: v, priority: priority, rule: rule})
	}

	for _, line := range lines {
		upper := strings.ToUpper(line)
		// SUBTOTAL lines contain the word TOTAL; keep them out of every
		// total-pattern family.
		isSub := strings.Contains(upper, "SUB")

		if !isSub {
			if m := reTotalLine.FindStringSubmatch(line); m != nil {
				add("total-line", priorityTotalLine, m[1])
				continue
			}
			if m := reTotalToPay.FindStringSubmatch(line); m != nil {
				add("total-to-pay", priorityTotalToPay, m[1])
				continue
			}
			if m := reTotalLabeled.FindStringSubmatch(line); m != nil {
				add("total-labeled", priorityTotalLabeled, m[1])
				continue
			}
		}
		if m := reImporte.FindStringSubmatch(line); m != nil {
			add("importe", priorityImporte, m[1])
		}
	}

	// Fallback: bare numbers ending physical lines, excluding lines that
	// carry folio/date/time metadata.
	if len(candidates) == 0 {
		for _, line := range lines {
			if lineHasKeyword(line, nonTotalLineKeywords) {
				continue
			}
			if m := reTrailing.FindStringSubmatch(line); m != nil {
				add("bare-trailing", priorityBareTrailing, m[1])
			}
		}
	}

	if len(candidates) == 0 {
		trace.miss("total", "scorer", "ningún candidato de total")
		return nil
	}

	// Cross-validate against a spelled-out amount when the receipt prints
	// one ("SON: ... PESOS"). Recognition often invents or drops a leading
	// digit on the numeric figure.
	spelled, hasSpelled := spelledOutWords(lines)
	if hasSpelled {
		candidates = crossValidateSpelled(candidates, spelled, trace)
		if len(candidates) == 0 {
			trace.miss("total", "scorer", "candidatos rechazados por monto en letra")
			return nil
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].priority != candidates[j].priority {
			return candidates[i].priority > candidates[j].priority
		}
		// A true total is never smaller than a subtotal/tax candidate of
		// equal priority.
		return candidates[i].value.GreaterThan(candidates[j].value)
	})

	best := candidates[0]
	if len(candidates) > 1 {
		second := candidates[1]
		ratio := decimal.NewFromFloat(anomalyValueRatio)
		if best.priority-second.priority < nearEqualPriorityDelta &&
			second.value.GreaterThan(best.value.Mul(ratio)) {
			// Common failure mode: a tax-only line mistaken for the total.
			trace.hit("total", "anomaly-guard", second.value.String(), 0.6,
				"segundo candidato excede 1.7x al primero con prioridad similar")
			best = second
		}
	}

	trace.hit("total", best.rule, best.value.String(), confidenceFor(best.priority), "")
	v := best.value
	return &v
}

func confidenceFor(priority int) float64 {
	return float64(priority) / float64(priorityTotalLine)
}

func lineHasKeyword(line string, keywords []string) bool {
	upper := strings.ToUpper(line)
	for _, k := range keywords {
		if strings.Contains(upper, k) {
			return true
		}
	}
	return false
}

func spelledOutWords(lines []string) (string, bool) {
	for _, line := range lines {
		if m := reSpelledOut.FindStringSubmatch(line); m != nil {
			return strings.ToUpper(m[1]), true
		}
	}
	return "", false
}

// crossValidateSpelled reconciles numeric candidates with the written
// amount: a candidate >= 1000 whose written form lacks "MIL" loses its
// erroneous leading digit; a candidate < 1000 whose written form contains
// "MIL" is rejected outright.
func crossValidateSpelled(candidates []amountCandidate, spelled string, trace *Trace) []amountCandidate {
	hasMil := strings.Contains(spelled, "MIL")
	thousand := decimal.NewFromInt(1000)

	var out []amountCandidate
	for _, c := range candidates {
		switch {
		case c.value.GreaterThanOrEqual(thousand) && !hasMil:
			corrected, ok := stripLeadingDigit(c.value)
			if !ok {
				continue
			}
			trace.hit("total", "spelled-out-correction", corrected.String(), 0.7,
				"monto en letra sin MIL; se descarta dígito inicial")
			c.value = corrected
			out = append(out, c)
		case c.value.LessThan(thousand) && hasMil:
			trace.miss("total", "spelled-out-rejection",
				"monto en letra con MIL pero candidato menor a 1000: "+c.value.String())
		default:
			out = append(out, c)
		}
	}
	return out
}

// stripLeadingDigit drops the first digit of the integer part: a known
// recognition artifact glues a stray digit onto the figure (1895 -> 895).
func stripLeadingDigit(v decimal.Decimal) (decimal.Decimal, bool) {
	s := v.StringFixed(2)
	dot := strings.Index(s, ".")
	intPart, frac := s[:dot], s[dot:]
	if len(intPart) < 2 {
		return decimal.Zero, false
	}
	corrected, err := decimal.NewFromString(intPart[1:] + frac)
	if err != nil {
		return decimal.Zero, false
	}
	return corrected, true
}

// ParseAmount parses a currency-shaped token, disambiguating decimal vs.
// thousands separators: a comma followed by exactly two trailing digits is
// a decimal separator, otherwise a thousands separator.
func ParseAmount(raw string) (decimal.Decimal, bool) {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "$")
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, false
	}

	lastComma := strings.LastIndex(s, ",")
	lastDot := strings.LastIndex(s, ".")

	switch {
	case lastComma >= 0 && lastComma > lastDot && len(s)-lastComma-1 == 2:
		// 1.234,56 or 1234,56 -> comma is the decimal separator
		s = strings.ReplaceAll(s[:lastComma], ".", "") + "." + s[lastComma+1:]
		s = strings.ReplaceAll(s, ",", "")
	default:
		// 1,234.56 or 1234.56 -> commas are thousands separators
		s = strings.ReplaceAll(s, ",", "")
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}
