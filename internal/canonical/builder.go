// Package canonical folds either pipeline's output into the unified
// transaction record. Amounts always pass through the reconciler so the
// centavo invariant holds regardless of what the source document claimed.
package canonical

import (
	"github.com/shopspring/decimal"

	"github.com/facturaIA/cfdi-normalizer-service/internal/cfdi"
	"github.com/facturaIA/cfdi-normalizer-service/internal/models"
	"github.com/facturaIA/cfdi-normalizer-service/internal/reconcile"
)

// FromInvoice builds the canonical record from a parsed CFDI. The stamped
// total is authoritative (it already reflects line-level discounts), so
// subtotal and tax are recomputed from it at the declared IVA rate.
func FromInvoice(inv *models.ParsedInvoice) models.CanonicalTransaction {
	rate := cfdi.IVARate(inv)
	amounts := reconcile.FromTotal(inv.RawTotal, rate)

	concept := "Factura " + inv.Issuer.LegalName
	if len(inv.Items) > 0 && inv.Items[0].Description != "" {
		concept = inv.Items[0].Description
	}

	tx := models.CanonicalTransaction{
		Concept:         concept,
		CounterpartName: inv.Issuer.LegalName,
		CounterpartRFC:  inv.Issuer.TaxID,
		Date:            inv.IssuedAt,
		Subtotal:        amounts.Subtotal,
		Tax:             amounts.Tax,
		Total:           amounts.Total,
		TaxRate:         rate,
		Currency:        inv.Currency,
		Source:          models.SourceStructured,
	}
	if inv.Stamp != nil {
		tx.FiscalStampID = inv.Stamp.UUID
	}
	return tx
}

// FromTicket builds the canonical record from extracted ticket fields.
// When subtotal and tax were both found independently they are kept and the
// total is only filled if missing; otherwise the scored total is split at
// the default IVA rate.
func FromTicket(data *models.ExtractedTicketData) models.CanonicalTransaction {
	var amounts reconcile.Amounts
	switch {
	case data.Subtotal != nil && data.Tax != nil:
		total := decimal.Zero
		if data.Total != nil {
			total = *data.Total
		}
		amounts = reconcile.FromParts(*data.Subtotal, *data.Tax, total)
	case data.Total != nil:
		amounts = reconcile.FromTotal(*data.Total, cfdi.DefaultIVARate)
	case data.Subtotal != nil:
		amounts = reconcile.FromParts(*data.Subtotal, decimal.Zero, decimal.Zero)
	}

	tx := models.CanonicalTransaction{
		Subtotal: amounts.Subtotal,
		Tax:      amounts.Tax,
		Total:    amounts.Total,
		TaxRate:  amounts.Rate,
		Currency: "MXN",
		Source:   models.SourceRecognizedText,
	}
	if data.SuggestedConcept != nil {
		tx.Concept = *data.SuggestedConcept
	}
	if data.Establishment != nil {
		tx.CounterpartName = *data.Establishment
		if tx.Concept == "" {
			tx.Concept = *data.Establishment
		}
	}
	if data.TaxID != nil {
		tx.CounterpartRFC = *data.TaxID
	}
	if data.IssueDate != nil {
		tx.Date = *data.IssueDate
	}
	if data.Extra != nil {
		if data.Extra.Currency != "" {
			tx.Currency = data.Extra.Currency
		}
		tx.FiscalStampID = data.Extra.DocumentUUID
	}
	return tx
}
