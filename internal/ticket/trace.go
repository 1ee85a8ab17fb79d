package ticket

import "fmt"

// RuleOutcome records one extraction rule's attempt: what it produced, how
// confident it is and why. Collecting every attempt makes the heuristics
// explainable and lets tests assert on the decision path instead of only
// the final value.
type RuleOutcome struct {
	Field      string  `json:"field"`
	Rule       string  `json:"rule"`
	Matched    bool    `json:"matched"`
	Value      string  `json:"value,omitempty"`
	Confidence float64 `json:"confidence"`
	Reason     string  `json:"reason,omitempty"`
}

// Trace accumulates every attempted rule plus non-fatal extraction warnings.
// Warnings are surfaced alongside partial data and never block processing.
type Trace struct {
	Outcomes []RuleOutcome `json:"outcomes"`
	Warnings []string      `json:"warnings,omitempty"`
}

func (t *Trace) hit(field, rule, value string, confidence float64, reason string) {
	t.Outcomes = append(t.Outcomes, RuleOutcome{
		Field: field, Rule: rule, Matched: true,
		Value: value, Confidence: confidence, Reason: reason,
	})
}

func (t *Trace) miss(field, rule, reason string) {
	t.Outcomes = append(t.Outcomes, RuleOutcome{
		Field: field, Rule: rule, Matched: false, Reason: reason,
	})
}

func (t *Trace) warnf(format string, args ...interface{}) {
	t.Warnings = append(t.Warnings, fmt.Sprintf(format, args...))
}

// FieldOutcomes returns the attempts recorded for one field, in order.
func (t *Trace) FieldOutcomes(field string) []RuleOutcome {
	var out []RuleOutcome
	for _, o := range t.Outcomes {
		if o.Field == field {
			out = append(out, o)
		}
	}
	return out
}
