package ticket

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleTicket = `CADENA COMERCIAL OXXO
SUC MONTERREY CENTRO
RFC: OXX970814HS9
TEL: 81-1234-5678
FECHA: 15/03/2024 17:45
1 COCA COLA 600ML $18.50
1 SABRITAS ORIGINAL $17.00
SUBTOTAL $30.60
IVA 16% $4.90
TOTAL $35.50
PAGO EFECTIVO $50.00
CAMBIO $14.50
GRACIAS POR SU COMPRA`

func TestExtract_FullTicket(t *testing.T) {
	data, trace := NewExtractor().Extract(sampleTicket)
	require.NotNil(t, data)

	require.NotNil(t, data.Establishment)
	assert.Equal(t, "CADENA COMERCIAL OXXO", *data.Establishment)

	require.NotNil(t, data.TaxID)
	assert.Equal(t, "OXX970814HS9", *data.TaxID)

	require.NotNil(t, data.Phone)
	assert.Equal(t, "8112345678", *data.Phone)

	require.NotNil(t, data.IssueDate)
	assert.Equal(t, "2024-03-15", data.IssueDate.Format("2006-01-02"))

	require.NotNil(t, data.IssueTime)
	assert.Equal(t, "17:45", *data.IssueTime)

	require.NotNil(t, data.Subtotal)
	assert.True(t, data.Subtotal.Equal(decimal.RequireFromString("30.60")))

	require.NotNil(t, data.Tax)
	assert.True(t, data.Tax.Equal(decimal.RequireFromString("4.90")))

	require.NotNil(t, data.Total)
	assert.True(t, data.Total.Equal(decimal.RequireFromString("35.50")))

	require.NotNil(t, data.PaymentMethod)
	assert.Equal(t, "Efectivo", *data.PaymentMethod)

	require.Len(t, data.Items, 2)
	assert.Equal(t, "COCA COLA 600ML", data.Items[0].Description)
	assert.True(t, data.Items[0].LineTotal.Equal(decimal.RequireFromString("18.50")))
	assert.Equal(t, "SABRITAS ORIGINAL", data.Items[1].Description)

	assert.Empty(t, trace.Warnings)
}

func TestExtract_PlaceholderRFCNotExtracted(t *testing.T) {
	data, trace := NewExtractor().Extract(`MISCELANEA LUPITA
RFC: XAXX010101000
TOTAL 45.00`)

	assert.Nil(t, data.TaxID)
	assert.Contains(t, trace.Warnings, "no se encontró RFC de la contraparte")

	require.NotNil(t, data.Total)
	assert.True(t, data.Total.Equal(decimal.RequireFromString("45.00")))
}

func TestExtract_EstablishmentSkipsFieldLabels(t *testing.T) {
	data, _ := NewExtractor().Extract(`FACTURA ELECTRONICA
TAQUERIA EL GUERO
FECHA: 01/02/2024
TOTAL 120.00`)

	require.NotNil(t, data.Establishment)
	assert.Equal(t, "TAQUERIA EL GUERO", *data.Establishment)

	require.NotNil(t, data.SuggestedCategory)
	assert.Equal(t, CategoryFood, *data.SuggestedCategory)
	require.NotNil(t, data.SuggestedConcept)
	assert.Equal(t, "Consumo de alimentos", *data.SuggestedConcept)
}

func TestExtract_MonthNameDateOutranksSlashDate(t *testing.T) {
	data, _ := NewExtractor().Extract(`ESTACION DE SERVICIO PEMEX
15 MAR 2024
CAJA 02 01/01/2020
TOTAL 500.00`)

	require.NotNil(t, data.IssueDate)
	assert.Equal(t, "2024-03-15", data.IssueDate.Format("2006-01-02"))
}

func TestExtract_LabeledAmountLookahead(t *testing.T) {
	// column layouts print the label and the value on separate lines
	data, _ := NewExtractor().Extract(`SUPER AHORRO DEL CENTRO
SUBTOTAL
86.21
IVA
13.79
TOTAL
100.00`)

	require.NotNil(t, data.Subtotal)
	assert.True(t, data.Subtotal.Equal(decimal.RequireFromString("86.21")))
	require.NotNil(t, data.Tax)
	assert.True(t, data.Tax.Equal(decimal.RequireFromString("13.79")))
}

func TestExtract_MissingFieldsProduceWarnings(t *testing.T) {
	data, trace := NewExtractor().Extract("GRACIAS POR SU COMPRA")

	assert.Nil(t, data.Total)
	assert.Nil(t, data.TaxID)
	assert.Nil(t, data.IssueDate)
	assert.Len(t, trace.Warnings, 3)
}

func TestExtract_TraceRecordsDecisionPath(t *testing.T) {
	_, trace := NewExtractor().Extract(sampleTicket)

	totalOutcomes := trace.FieldOutcomes("total")
	require.NotEmpty(t, totalOutcomes)
	last := totalOutcomes[len(totalOutcomes)-1]
	assert.True(t, last.Matched)
	assert.Equal(t, "total-line", last.Rule)
	assert.Equal(t, "35.5", last.Value)
}

func TestNormalizeRFC(t *testing.T) {
	assert.Equal(t, "OXX970814HS9", normalizeRFC("OXX 970814 HS9"))
	assert.Equal(t, "ABCD850101AB1", normalizeRFC("abcd-850101-ab1"))
	assert.Empty(t, normalizeRFC("OXX9708"))        // too short
	assert.Empty(t, normalizeRFC("12X970814HS9"))   // digits in the letter block
	assert.Empty(t, normalizeRFC("OXXX970814HS9X")) // too long
}
