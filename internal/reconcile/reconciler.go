// Package reconcile derives internally consistent subtotal/tax/total triples.
//
// Totals printed on fiscal documents already reflect line-level discounts and
// per-line rounding, so the total is treated as authoritative and the other
// two figures are recomputed from it instead of trusted verbatim.
package reconcile

import "github.com/shopspring/decimal"

// Amounts is a consistent (subtotal, tax, total) triple:
// subtotal + tax == total to the centavo.
type Amounts struct {
	Subtotal decimal.Decimal `json:"subtotal"`
	Tax      decimal.Decimal `json:"iva"`
	Total    decimal.Decimal `json:"total"`
	Rate     decimal.Decimal `json:"tasa"`
}

// FromTotal splits an authoritative total at the given tax rate:
// subtotal = total / (1 + rate), tax = total - subtotal.
func FromTotal(total, rate decimal.Decimal) Amounts {
	one := decimal.NewFromInt(1)
	subtotal := total.Div(one.Add(rate)).Round(2)
	return Amounts{
		Subtotal: subtotal,
		Tax:      total.Sub(subtotal).Round(2),
		Total:    total.Round(2),
		Rate:     rate,
	}
}

// FromParts keeps independently found subtotal and tax figures and derives
// whatever is missing. The total is only filled in when absent, never
// overwritten by subtotal+tax.
func FromParts(subtotal, tax, total decimal.Decimal) Amounts {
	switch {
	case total.IsZero() && !subtotal.IsZero():
		total = subtotal.Add(tax)
	case subtotal.IsZero() && !total.IsZero():
		subtotal = total.Sub(tax)
	}
	rate := decimal.Zero
	if subtotal.IsPositive() && tax.IsPositive() {
		rate = tax.Div(subtotal).Round(4)
	}
	return Amounts{
		Subtotal: subtotal.Round(2),
		Tax:      tax.Round(2),
		Total:    total.Round(2),
		Rate:     rate,
	}
}

// Consistent reports whether the triple satisfies the centavo invariant.
func Consistent(a Amounts) bool {
	diff := a.Subtotal.Add(a.Tax).Sub(a.Total).Abs()
	return diff.LessThanOrEqual(decimal.NewFromFloat(0.01))
}
