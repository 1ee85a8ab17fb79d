package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// SourceKind identifies which pipeline produced a canonical transaction.
type SourceKind string

const (
	SourceStructured     SourceKind = "structured"
	SourceRecognizedText SourceKind = "recognized-text"
)

// Party represents the issuer or recipient of a CFDI
type Party struct {
	TaxID         string `json:"rfc"`
	LegalName     string `json:"nombre"`
	TaxRegimeCode string `json:"regimenFiscal,omitempty"`

	// Recipient-only fields
	FiscalAddress string `json:"domicilioFiscal,omitempty"`
	CFDIUsageCode string `json:"usoCfdi,omitempty"`
}

// LineItem is a single Concepto of a CFDI
type LineItem struct {
	ProductCode string          `json:"claveProdServ,omitempty"`
	Identifier  string          `json:"noIdentificacion,omitempty"`
	Quantity    decimal.Decimal `json:"cantidad"`
	UnitCode    string          `json:"claveUnidad,omitempty"`
	Description string          `json:"descripcion"`
	UnitValue   decimal.Decimal `json:"valorUnitario"`
	Amount      decimal.Decimal `json:"importe"`
	Discount    decimal.Decimal `json:"descuento,omitempty"`
}

// TaxTransfer is one Traslado entry of the Impuestos node
type TaxTransfer struct {
	TaxCode    string          `json:"impuesto"`
	FactorType string          `json:"tipoFactor,omitempty"`
	Rate       decimal.Decimal `json:"tasaOCuota"`
	Amount     decimal.Decimal `json:"importe"`
}

// TaxBreakdown aggregates the Impuestos node of a CFDI
type TaxBreakdown struct {
	TransferredTotal decimal.Decimal `json:"totalImpuestosTrasladados,omitempty"`
	WithheldTotal    decimal.Decimal `json:"totalImpuestosRetenidos,omitempty"`
	Transfers        []TaxTransfer   `json:"traslados,omitempty"`
}

// FiscalStamp is the TimbreFiscalDigital complement
type FiscalStamp struct {
	UUID          string    `json:"uuid"`
	StampedAt     time.Time `json:"fechaTimbrado"`
	CertifierID   string    `json:"rfcProvCertif,omitempty"`
	SATCertNumber string    `json:"noCertificadoSat,omitempty"`
}

// ParsedInvoice is the result of parsing a CFDI 3.3/4.0 XML document
type ParsedInvoice struct {
	Version         string          `json:"version"`
	Series          string          `json:"serie,omitempty"`
	Folio           string          `json:"folio,omitempty"`
	IssuedAt        time.Time       `json:"fecha"`
	PaymentForm     string          `json:"formaPago,omitempty"`   // 01=Efectivo, 03=Transferencia, 04=Tarjeta...
	PaymentMethod   string          `json:"metodoPago,omitempty"`  // PUE / PPD
	DocumentType    string          `json:"tipoDeComprobante"`     // I=Ingreso, E=Egreso, P=Pago
	PlaceOfIssue    string          `json:"lugarExpedicion"`
	Currency        string          `json:"moneda"`
	ExchangeRate    decimal.Decimal `json:"tipoCambio,omitempty"`
	RawSubtotal     decimal.Decimal `json:"subTotal"`
	RawDiscount     decimal.Decimal `json:"descuento,omitempty"`
	RawTotal        decimal.Decimal `json:"total"`
	Issuer          Party           `json:"emisor"`
	Recipient       Party           `json:"receptor"`
	Items           []LineItem      `json:"conceptos"`
	Taxes           *TaxBreakdown   `json:"impuestos,omitempty"`
	Stamp           *FiscalStamp    `json:"timbreFiscalDigital,omitempty"`
}

// TicketLineItem is a line item recovered from recognized receipt text
type TicketLineItem struct {
	Description string          `json:"descripcion"`
	Quantity    decimal.Decimal `json:"cantidad"`
	UnitPrice   decimal.Decimal `json:"precioUnitario"`
	LineTotal   decimal.Decimal `json:"importe"`
}

// ExtraFiscalFields are optional CFDI-grade fields occasionally printed on
// tickets (factura-global stubs, gas station receipts).
type ExtraFiscalFields struct {
	DocumentUUID      string `json:"uuid,omitempty"`
	Series            string `json:"serie,omitempty"`
	Folio             string `json:"folio,omitempty"`
	PaymentMethodCode string `json:"metodoPago,omitempty"`
	Currency          string `json:"moneda,omitempty"`
	ExchangeRate      string `json:"tipoCambio,omitempty"`
	PlaceOfIssue      string `json:"lugarExpedicion,omitempty"`
	TaxRegime         string `json:"regimenFiscal,omitempty"`
}

// ExtractedTicketData holds the best-effort fields recovered from a receipt.
// Every field is independently optional; absence is not an error.
type ExtractedTicketData struct {
	Establishment     *string            `json:"establecimiento,omitempty"`
	TaxID             *string            `json:"rfc,omitempty"`
	Phone             *string            `json:"telefono,omitempty"`
	IssueDate         *time.Time         `json:"fecha,omitempty"`
	IssueTime         *string            `json:"hora,omitempty"`
	Total             *decimal.Decimal   `json:"total,omitempty"`
	Subtotal          *decimal.Decimal   `json:"subtotal,omitempty"`
	Tax               *decimal.Decimal   `json:"iva,omitempty"`
	PaymentMethod     *string            `json:"formaPago,omitempty"`
	SuggestedConcept  *string            `json:"conceptoSugerido,omitempty"`
	SuggestedCategory *string            `json:"categoriaSugerida,omitempty"`
	Items             []TicketLineItem   `json:"items,omitempty"`
	Extra             *ExtraFiscalFields `json:"camposFiscales,omitempty"`
}

// CanonicalTransaction is the unified output of both pipelines.
// Subtotal, tax and total are always re-derived by the reconciler so that
// abs(subtotal + tax - total) <= 0.01 holds in the document currency.
type CanonicalTransaction struct {
	Concept         string          `json:"concepto"`
	CounterpartName string          `json:"contraparte"`
	CounterpartRFC  string          `json:"contraparteRfc,omitempty"`
	Date            time.Time       `json:"fecha"`
	Subtotal        decimal.Decimal `json:"subtotal"`
	Tax             decimal.Decimal `json:"iva"`
	Total           decimal.Decimal `json:"total"`
	TaxRate         decimal.Decimal `json:"tasaIva"`
	Currency        string          `json:"moneda"`
	Source          SourceKind      `json:"origen"`
	FiscalStampID   string          `json:"uuid,omitempty"`
}
