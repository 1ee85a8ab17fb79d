package cfdi

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/facturaIA/cfdi-normalizer-service/internal/reconcile"
)

const sampleCFDI40 = `<?xml version="1.0" encoding="UTF-8"?>
<cfdi:Comprobante xmlns:cfdi="http://www.sat.gob.mx/cfd/4"
    Version="4.0" Serie="A" Folio="12345" Fecha="2024-03-15T10:30:00"
    FormaPago="03" MetodoPago="PUE" TipoDeComprobante="I"
    LugarExpedicion="64000" Moneda="MXN" SubTotal="1000.00" Total="1160.00">
  <cfdi:Emisor Rfc="AAA010101AAA" Nombre="COMERCIALIZADORA DEL NORTE SA DE CV" RegimenFiscal="601"/>
  <cfdi:Receptor Rfc="BAAL900101XX1" Nombre="LUIS BARRERA" UsoCFDI="G03"
      DomicilioFiscalReceptor="64720" RegimenFiscalReceptor="612"/>
  <cfdi:Conceptos>
    <cfdi:Concepto ClaveProdServ="43232408" Cantidad="2" ClaveUnidad="H87"
        Descripcion="LICENCIA DE SOFTWARE" ValorUnitario="500.00" Importe="1000.00"/>
  </cfdi:Conceptos>
  <cfdi:Impuestos TotalImpuestosTrasladados="160.00">
    <cfdi:Traslados>
      <cfdi:Traslado Impuesto="002" TipoFactor="Tasa" TasaOCuota="0.160000" Importe="160.00"/>
    </cfdi:Traslados>
  </cfdi:Impuestos>
  <cfdi:Complemento>
    <tfd:TimbreFiscalDigital xmlns:tfd="http://www.sat.gob.mx/TimbreFiscalDigital"
        UUID="ad662d33-6934-459c-a128-bdf0393e0f44" FechaTimbrado="2024-03-15T10:31:02"
        RfcProvCertif="SAT970701NN3"/>
  </cfdi:Complemento>
</cfdi:Comprobante>`

const sampleCFDI33 = `<?xml version="1.0" encoding="UTF-8"?>
<cfdi:Comprobante xmlns:cfdi="http://www.sat.gob.mx/cfd/3"
    Version="3.3" Fecha="2020-07-01T09:00:00" FormaPago="01" MetodoPago="PUE"
    TipoDeComprobante="I" LugarExpedicion="06600" Moneda="MXN"
    SubTotal="500.00" Total="580.00">
  <cfdi:Emisor Rfc="BBB020202BB2" Nombre="SERVICIOS GENERALES SA"/>
  <cfdi:Receptor Rfc="CCC030303CC3" Nombre="CLIENTE FINAL" UsoCFDI="P01"/>
  <cfdi:Conceptos>
    <cfdi:Concepto Cantidad="1" Descripcion="SERVICIO MENSUAL" ValorUnitario="500.00" Importe="500.00"/>
  </cfdi:Conceptos>
</cfdi:Comprobante>`

func TestParse_CFDI40(t *testing.T) {
	inv, err := NewParser().Parse([]byte(sampleCFDI40))
	require.NoError(t, err)

	assert.Equal(t, "4.0", inv.Version)
	assert.Equal(t, "A", inv.Series)
	assert.Equal(t, "12345", inv.Folio)
	assert.Equal(t, "2024-03-15", inv.IssuedAt.Format("2006-01-02"))
	assert.Equal(t, "03", inv.PaymentForm)
	assert.Equal(t, "PUE", inv.PaymentMethod)
	assert.Equal(t, "I", inv.DocumentType)
	assert.Equal(t, "64000", inv.PlaceOfIssue)
	assert.Equal(t, "MXN", inv.Currency)
	assert.True(t, inv.RawSubtotal.Equal(decimal.NewFromInt(1000)))
	assert.True(t, inv.RawTotal.Equal(decimal.RequireFromString("1160.00")))

	assert.Equal(t, "AAA010101AAA", inv.Issuer.TaxID)
	assert.Equal(t, "601", inv.Issuer.TaxRegimeCode)
	assert.Equal(t, "BAAL900101XX1", inv.Recipient.TaxID)
	assert.Equal(t, "G03", inv.Recipient.CFDIUsageCode)
	assert.Equal(t, "64720", inv.Recipient.FiscalAddress)

	require.Len(t, inv.Items, 1)
	assert.Equal(t, "LICENCIA DE SOFTWARE", inv.Items[0].Description)
	assert.True(t, inv.Items[0].Quantity.Equal(decimal.NewFromInt(2)))
	assert.True(t, inv.Items[0].UnitValue.Equal(decimal.NewFromInt(500)))

	require.NotNil(t, inv.Taxes)
	require.Len(t, inv.Taxes.Transfers, 1)
	assert.Equal(t, "002", inv.Taxes.Transfers[0].TaxCode)

	require.NotNil(t, inv.Stamp)
	assert.Equal(t, "AD662D33-6934-459C-A128-BDF0393E0F44", inv.Stamp.UUID)
	assert.Equal(t, "2024-03-15", inv.Stamp.StampedAt.Format("2006-01-02"))
}

func TestParse_CFDI33Namespace(t *testing.T) {
	inv, err := NewParser().Parse([]byte(sampleCFDI33))
	require.NoError(t, err)

	assert.Equal(t, "3.3", inv.Version)
	assert.Equal(t, "BBB020202BB2", inv.Issuer.TaxID)
	assert.Nil(t, inv.Stamp)
}

func TestParse_MalformedXML(t *testing.T) {
	_, err := NewParser().Parse([]byte("esto no es xml <<<"))

	var malformed *MalformedInputError
	require.ErrorAs(t, err, &malformed)
}

func TestParse_WrongRoot(t *testing.T) {
	_, err := NewParser().Parse([]byte(`<Factura Total="100.00"/>`))

	var structural *StructureError
	require.ErrorAs(t, err, &structural)
	assert.Contains(t, err.Error(), "Factura")
}

func TestParse_UnknownNamespaceRoot(t *testing.T) {
	_, err := NewParser().Parse([]byte(`<x:Comprobante xmlns:x="http://example.com/otro" Total="1.00"/>`))

	var structural *StructureError
	require.ErrorAs(t, err, &structural)
}

func TestParse_MissingParties(t *testing.T) {
	_, err := NewParser().Parse([]byte(`<Comprobante Version="4.0" Total="100.00"/>`))
	var missing *PartyMissingError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, "Emisor", missing.Party)

	_, err = NewParser().Parse([]byte(
		`<Comprobante Version="4.0" Total="100.00"><Emisor Rfc="AAA010101AAA" Nombre="X"/></Comprobante>`))
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, "Receptor", missing.Party)
}

func TestParse_InvalidStampUUIDDiscarded(t *testing.T) {
	xml := `<Comprobante Version="4.0" Total="100.00">
		<Emisor Rfc="AAA010101AAA" Nombre="X"/>
		<Receptor Rfc="BBB020202BB2" Nombre="Y"/>
		<Complemento>
			<TimbreFiscalDigital UUID="NO-ES-UUID" FechaTimbrado="2024-01-01T00:00:00"/>
		</Complemento>
	</Comprobante>`

	inv, err := NewParser().Parse([]byte(xml))
	require.NoError(t, err)
	assert.Nil(t, inv.Stamp)
}

func TestIVARate_DefaultsWithoutTraslado(t *testing.T) {
	inv, err := NewParser().Parse([]byte(sampleCFDI33))
	require.NoError(t, err)

	rate := IVARate(inv)
	assert.True(t, rate.Equal(decimal.RequireFromString("0.16")))
}

// Round-trip: a total of 1160.00 with no explicit traslado splits into
// 1000.00 + 160.00 at the default rate.
func TestParse_RoundTripReconciliation(t *testing.T) {
	xml := `<Comprobante Version="4.0" Moneda="MXN" SubTotal="999.37" Total="1160.00">
		<Emisor Rfc="AAA010101AAA" Nombre="PROVEEDOR SA"/>
		<Receptor Rfc="BBB020202BB2" Nombre="CLIENTE SA"/>
	</Comprobante>`

	inv, err := NewParser().Parse([]byte(xml))
	require.NoError(t, err)

	amounts := reconcile.FromTotal(inv.RawTotal, IVARate(inv))
	assert.True(t, amounts.Subtotal.Equal(decimal.RequireFromString("1000.00")), "got %s", amounts.Subtotal)
	assert.True(t, amounts.Tax.Equal(decimal.RequireFromString("160.00")), "got %s", amounts.Tax)
	assert.True(t, reconcile.Consistent(amounts))
}

func TestAttrReader_NameFallbacks(t *testing.T) {
	inv, err := NewParser().Parse([]byte(
		`<Comprobante version="3.2" subTotal="100.00" total="116.00">
			<Emisor RFC="AAA010101AAA" nombre="EMISOR VIEJO"/>
			<Receptor RFC="BBB020202BB2" nombre="RECEPTOR VIEJO"/>
		</Comprobante>`))
	require.NoError(t, err)

	assert.Equal(t, "3.2", inv.Version)
	assert.True(t, inv.RawSubtotal.Equal(decimal.NewFromInt(100)))
	assert.True(t, inv.RawTotal.Equal(decimal.RequireFromString("116.00")))
	assert.Equal(t, "AAA010101AAA", inv.Issuer.TaxID)
	assert.Equal(t, "EMISOR VIEJO", inv.Issuer.LegalName)
}

func TestAttrReader_NumericGarbageDefaultsToZero(t *testing.T) {
	inv, err := NewParser().Parse([]byte(
		`<Comprobante Version="4.0" SubTotal="no-numerico" Total="1,160.00">
			<Emisor Rfc="AAA010101AAA" Nombre="X"/>
			<Receptor Rfc="BBB020202BB2" Nombre="Y"/>
		</Comprobante>`))
	require.NoError(t, err)

	assert.True(t, inv.RawSubtotal.IsZero())
	// thousands separators from print-regenerated XML still parse
	assert.True(t, inv.RawTotal.Equal(decimal.RequireFromString("1160.00")))
}
