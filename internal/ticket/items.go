package ticket

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/facturaIA/cfdi-normalizer-service/internal/models"
)

// Line-item recovery. Four ordered strategies are attempted until one
// yields at least one item; receipts differ wildly in how they lay out the
// item table, but each layout family is stable within a chain.

var (
	// [qty] description price, on one physical line
	reItemSingleLine = regexp.MustCompile(`^(?:(\d{1,3}(?:\.\d{1,3})?)\s+)?(.{2,80}?)\s+\$?(\d{1,5}(?:[.,]\d{3})*[.,]\d{2})$`)
	reBareQty        = regexp.MustCompile(`^\d{1,2}(?:\.\d{1,3})?$`)
	// a trailing two-digit fraction reads as money, never as a quantity
	rePriceShaped = regexp.MustCompile(`[.,]\d{2}$`)
	reItemsHeader = regexp.MustCompile(`(?i)DESCRIPCION|ARTICULO|PRODUCTO`)
	reItemsFooter = regexp.MustCompile(`(?i)FORMA\s*(?:DE)?\s*PAGO`)
)

// itemStoplist marks lines that look like items but are fiscal metadata or
// totals; matching any keyword disqualifies the description.
var itemStoplist = []string{
	"TOTAL", "SUBTOTAL", "IVA", "RFC", "FOLIO", "FECHA", "TICKET", "CAJA",
	"EFECTIVO", "CAMBIO", "TARJETA", "GRACIAS", "CLIENTE", "PROPINA",
	"FACTURA", "DESCRIPCION", "CANT", "IMPORTE", "PRECIO", "ARTICULOS",
}

// plausible unit-price window; outside it the "price" is a folio, a weight
// or a barcode fragment
var (
	itemPriceMin = decimal.NewFromInt(5)
	itemPriceMax = decimal.NewFromInt(10000)
)

// ExtractLineItems tries each strategy in order until one yields at least
// one item. The establishment name is needed to filter its repetitions out
// of the item table.
func ExtractLineItems(lines []string, establishment string, trace *Trace) []models.TicketLineItem {
	strategies := []struct {
		name string
		fn   func([]string, string) []models.TicketLineItem
	}{
		{"header-bounded-block", itemsFromBoundedBlock},
		{"vertical-block", itemsFromVerticalBlock},
		{"single-line", itemsFromSingleLines},
		{"two-line", itemsFromTwoLines},
	}
	for _, s := range strategies {
		items := s.fn(lines, establishment)
		if len(items) > 0 {
			trace.hit("items", s.name, "", 0.7, "")
			return items
		}
		trace.miss("items", s.name, "sin renglones")
	}
	return nil
}

// itemsFromBoundedBlock handles the structured table bounded by a product
// description header and a payment-form footer, with quantity and price
// columns located via nearby sub-headers.
func itemsFromBoundedBlock(lines []string, establishment string) []models.TicketLineItem {
	start, end := -1, len(lines)
	for i, line := range lines {
		if start == -1 && reItemsHeader.MatchString(line) {
			start = i + 1
			continue
		}
		if start != -1 && reItemsFooter.MatchString(line) {
			end = i
			break
		}
	}
	if start == -1 || start >= end {
		return nil
	}

	var items []models.TicketLineItem
	block := lines[start:end]
	for i := 0; i < len(block); i++ {
		desc := strings.TrimSpace(block[i])
		if !plausibleDescription(desc, establishment) {
			continue
		}
		// quantity and price tokens sit on the following lines
		qty := decimal.NewFromInt(1)
		var prices []decimal.Decimal
		consumed := 0
		for j := i + 1; j < len(block) && j <= i+4; j++ {
			tok := strings.TrimSpace(block[j])
			if reBareQty.MatchString(tok) && !rePriceShaped.MatchString(tok) &&
				qty.Equal(decimal.NewFromInt(1)) && len(prices) == 0 {
				if q, err := decimal.NewFromString(tok); err == nil && q.IsPositive() {
					qty = q
					consumed = j - i
					continue
				}
			}
			if m := reBareAmount.FindStringSubmatch(tok); m != nil {
				if v, ok := ParseAmount(m[1]); ok {
					prices = append(prices, v)
					consumed = j - i
					if len(prices) == 2 {
						break
					}
					continue
				}
			}
			break
		}
		if len(prices) == 0 {
			continue
		}
		unit, total := prices[0], prices[0]
		if len(prices) == 2 {
			total = prices[1]
		} else {
			total = unit.Mul(qty)
		}
		if !plausiblePrice(total) {
			continue
		}
		items = append(items, models.TicketLineItem{
			Description: desc, Quantity: qty, UnitPrice: unit, LineTotal: total,
		})
		i += consumed
	}
	return items
}

// itemsFromVerticalBlock handles layouts where quantity, unit price and
// line total each take their own line after the description.
func itemsFromVerticalBlock(lines []string, establishment string) []models.TicketLineItem {
	var items []models.TicketLineItem
	for i := 0; i+3 < len(lines); i++ {
		desc := strings.TrimSpace(lines[i])
		if !plausibleDescription(desc, establishment) {
			continue
		}
		qtyTok := strings.TrimSpace(lines[i+1])
		if !reBareQty.MatchString(qtyTok) {
			continue
		}
		qty, err := decimal.NewFromString(qtyTok)
		if err != nil || !qty.IsPositive() {
			continue
		}
		unit, ok1 := bareAmountAt(lines, i+2)
		total, ok2 := bareAmountAt(lines, i+3)
		if !ok1 || !ok2 || !plausiblePrice(total) {
			continue
		}
		// qty * unit must reproduce the line total within a centavo's slack
		if qty.Mul(unit).Sub(total).Abs().GreaterThan(decimal.NewFromFloat(0.05)) {
			continue
		}
		items = append(items, models.TicketLineItem{
			Description: desc, Quantity: qty, UnitPrice: unit, LineTotal: total,
		})
		i += 3
	}
	return items
}

// itemsFromSingleLines handles the `[qty] description price` shape.
func itemsFromSingleLines(lines []string, establishment string) []models.TicketLineItem {
	var items []models.TicketLineItem
	for _, line := range lines {
		m := reItemSingleLine.FindStringSubmatch(strings.TrimSpace(line))
		if m == nil {
			continue
		}
		desc := strings.TrimSpace(m[2])
		if !plausibleDescription(desc, establishment) {
			continue
		}
		price, ok := ParseAmount(m[3])
		if !ok || !plausiblePrice(price) {
			continue
		}
		qty := decimal.NewFromInt(1)
		if m[1] != "" {
			if q, err := decimal.NewFromString(m[1]); err == nil && q.IsPositive() {
				qty = q
			}
		}
		unit := price
		if qty.GreaterThan(decimal.NewFromInt(1)) {
			unit = price.Div(qty).Round(2)
		}
		items = append(items, models.TicketLineItem{
			Description: desc, Quantity: qty, UnitPrice: unit, LineTotal: price,
		})
	}
	return items
}

// itemsFromTwoLines handles a description line with no trailing price
// followed by a line that is only a price.
func itemsFromTwoLines(lines []string, establishment string) []models.TicketLineItem {
	var items []models.TicketLineItem
	for i := 0; i+1 < len(lines); i++ {
		desc := strings.TrimSpace(lines[i])
		if !plausibleDescription(desc, establishment) {
			continue
		}
		if reInlineAmount.MatchString(desc) {
			continue // has a trailing price, belongs to the single-line shape
		}
		price, ok := bareAmountAt(lines, i+1)
		if !ok || !plausiblePrice(price) {
			continue
		}
		one := decimal.NewFromInt(1)
		items = append(items, models.TicketLineItem{
			Description: desc, Quantity: one, UnitPrice: price, LineTotal: price,
		})
		i++
	}
	return items
}

func bareAmountAt(lines []string, idx int) (decimal.Decimal, bool) {
	if idx >= len(lines) {
		return decimal.Zero, false
	}
	m := reBareAmount.FindStringSubmatch(strings.TrimSpace(lines[idx]))
	if m == nil {
		return decimal.Zero, false
	}
	return ParseAmount(m[1])
}

func plausibleDescription(desc, establishment string) bool {
	n := len([]rune(desc))
	if n < 2 || n > 80 {
		return false
	}
	if lineHasKeyword(desc, itemStoplist) {
		return false
	}
	if establishment != "" && strings.EqualFold(desc, establishment) {
		return false
	}
	// must carry some letters; bare codes are not descriptions
	hasLetter := false
	for _, r := range desc {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') {
			hasLetter = true
			break
		}
	}
	return hasLetter
}

func plausiblePrice(p decimal.Decimal) bool {
	return p.GreaterThanOrEqual(itemPriceMin) && p.LessThanOrEqual(itemPriceMax)
}
