package cfdi

import (
	"encoding/xml"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/facturaIA/cfdi-normalizer-service/internal/models"
)

// IVA is the tax code for the consumption tax in the Impuesto catalog.
const taxCodeIVA = "002"

// DefaultIVARate applies when the document carries no explicit traslado entry.
var DefaultIVARate = decimal.NewFromFloat(0.16)

const cfdiTimeLayout = "2006-01-02T15:04:05"

// Parser turns raw CFDI 3.3/4.0 XML into a ParsedInvoice.
type Parser struct{}

// NewParser creates a structured-invoice parser.
func NewParser() *Parser { return &Parser{} }

// Parse consumes raw XML and returns the invoice or a fatal parse error:
// MalformedInputError (not well-formed XML), StructureError (no Comprobante
// root) or PartyMissingError (Emisor/Receptor absent).
func (p *Parser) Parse(raw []byte) (*models.ParsedInvoice, error) {
	var root node
	if err := xml.Unmarshal(raw, &root); err != nil {
		return nil, &MalformedInputError{Err: err}
	}

	if !isComprobante(&root) {
		return nil, &StructureError{Got: root.XMLName.Local}
	}

	r := readerFor(&root)
	inv := &models.ParsedInvoice{
		Version:       r.String("Version", "version"),
		Series:        r.String("Serie", "serie"),
		Folio:         r.String("Folio", "folio"),
		PaymentForm:   r.String("FormaPago", "formaDePago"),
		PaymentMethod: r.String("MetodoPago", "metodoDePago"),
		DocumentType:  r.String("TipoDeComprobante", "tipoDeComprobante"),
		PlaceOfIssue:  r.String("LugarExpedicion", "lugarExpedicion"),
		Currency:      r.String("Moneda", "moneda"),
		ExchangeRate:  r.Decimal("TipoCambio", "tipoCambio"),
		RawSubtotal:   r.Decimal("SubTotal", "subTotal", "subtotal"),
		RawDiscount:   r.Decimal("Descuento", "descuento"),
		RawTotal:      r.Decimal("Total", "total"),
	}
	if inv.Currency == "" {
		inv.Currency = "MXN"
	}
	if fecha := r.String("Fecha", "fecha"); fecha != "" {
		if t, err := time.Parse(cfdiTimeLayout, fecha); err == nil {
			inv.IssuedAt = t
		}
	}

	emisor := root.child("Emisor")
	if emisor == nil {
		return nil, &PartyMissingError{Party: "Emisor"}
	}
	er := readerFor(emisor)
	inv.Issuer = models.Party{
		TaxID:         strings.ToUpper(er.String("Rfc", "RFC")),
		LegalName:     er.String("Nombre", "nombre", "RazonSocial"),
		TaxRegimeCode: er.String("RegimenFiscal"),
	}

	receptor := root.child("Receptor")
	if receptor == nil {
		return nil, &PartyMissingError{Party: "Receptor"}
	}
	rr := readerFor(receptor)
	inv.Recipient = models.Party{
		TaxID:         strings.ToUpper(rr.String("Rfc", "RFC")),
		LegalName:     rr.String("Nombre", "nombre", "RazonSocial"),
		TaxRegimeCode: rr.String("RegimenFiscalReceptor"),
		FiscalAddress: rr.String("DomicilioFiscalReceptor"),
		CFDIUsageCode: rr.String("UsoCFDI", "UsoCfdi"),
	}

	inv.Items = parseConceptos(&root)
	inv.Taxes = parseImpuestos(&root)
	inv.Stamp = parseStamp(&root)

	return inv, nil
}

// isComprobante accepts the unprefixed root tag plus each known namespace.
func isComprobante(n *node) bool {
	if !strings.EqualFold(n.XMLName.Local, "Comprobante") {
		return false
	}
	switch n.XMLName.Space {
	case "", NamespaceCFDI4, NamespaceCFDI3:
		return true
	}
	return false
}

func parseConceptos(root *node) []models.LineItem {
	container := root.child("Conceptos")
	if container == nil {
		return nil
	}
	var items []models.LineItem
	for _, c := range container.children("Concepto") {
		cr := readerFor(c)
		items = append(items, models.LineItem{
			ProductCode: cr.String("ClaveProdServ"),
			Identifier:  cr.String("NoIdentificacion", "noIdentificacion"),
			Quantity:    cr.Decimal("Cantidad", "cantidad"),
			UnitCode:    cr.String("ClaveUnidad", "Unidad", "unidad"),
			Description: cr.String("Descripcion", "descripcion"),
			UnitValue:   cr.Decimal("ValorUnitario", "valorUnitario"),
			Amount:      cr.Decimal("Importe", "importe"),
			Discount:    cr.Decimal("Descuento", "descuento"),
		})
	}
	return items
}

func parseImpuestos(root *node) *models.TaxBreakdown {
	container := root.child("Impuestos")
	if container == nil {
		return nil
	}
	ir := readerFor(container)
	breakdown := &models.TaxBreakdown{
		TransferredTotal: ir.Decimal("TotalImpuestosTrasladados", "totalImpuestosTrasladados"),
		WithheldTotal:    ir.Decimal("TotalImpuestosRetenidos", "totalImpuestosRetenidos"),
	}
	if traslados := container.child("Traslados"); traslados != nil {
		for _, t := range traslados.children("Traslado") {
			tr := readerFor(t)
			breakdown.Transfers = append(breakdown.Transfers, models.TaxTransfer{
				TaxCode:    tr.String("Impuesto", "impuesto"),
				FactorType: tr.String("TipoFactor", "tipoFactor"),
				Rate:       tr.Decimal("TasaOCuota", "tasa"),
				Amount:     tr.Decimal("Importe", "importe"),
			})
		}
	}
	return breakdown
}

// parseStamp searches the Complemento subtree for the TimbreFiscalDigital
// node. The UUID must be the canonical 36-character dashed form; anything
// else is discarded rather than propagated.
func parseStamp(root *node) *models.FiscalStamp {
	complemento := root.child("Complemento")
	if complemento == nil {
		return nil
	}
	tfd := complemento.findDeep("TimbreFiscalDigital")
	if tfd == nil {
		return nil
	}
	tr := readerFor(tfd)
	raw := strings.ToUpper(tr.String("UUID", "uuid"))
	if len(raw) != 36 {
		return nil
	}
	if _, err := uuid.Parse(raw); err != nil {
		return nil
	}
	stamp := &models.FiscalStamp{
		UUID:          raw,
		CertifierID:   tr.String("RfcProvCertif"),
		SATCertNumber: tr.String("NoCertificadoSAT", "noCertificadoSAT"),
	}
	if ts := tr.String("FechaTimbrado", "fechaTimbrado"); ts != "" {
		if t, err := time.Parse(cfdiTimeLayout, ts); err == nil {
			stamp.StampedAt = t
		}
	}
	return stamp
}

// IVARate returns the consumption-tax rate declared by the invoice's
// traslado entries, defaulting to 16% when none names the IVA tax code.
func IVARate(inv *models.ParsedInvoice) decimal.Decimal {
	if inv.Taxes != nil {
		for _, t := range inv.Taxes.Transfers {
			if t.TaxCode == taxCodeIVA && t.Rate.IsPositive() {
				return t.Rate
			}
		}
	}
	return DefaultIVARate
}
