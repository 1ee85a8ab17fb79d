package ticket

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConsolidateLines_MergesShortFragments(t *testing.T) {
	raw := "OXXO\nTIEN\nDA\nMONTERREY CENTRO\nTOTAL $35.50"

	lines := ConsolidateLines(raw)

	assert.Equal(t, []string{
		"OXXO TIEN DA",
		"MONTERREY CENTRO",
		"TOTAL $35.50",
	}, lines)
}

func TestConsolidateLines_DropsNoise(t *testing.T) {
	raw := "---\nABARROTES LA LUZ\n***\n|\n===\nTOTAL 99.00\n...."

	lines := ConsolidateLines(raw)

	assert.Equal(t, []string{"ABARROTES LA LUZ", "TOTAL 99.00"}, lines)
}

func TestConsolidateLines_BareNumbersKeptAsOwnLines(t *testing.T) {
	// short bare numbers are amounts, never name fragments
	raw := "COCA\n35.50\nCOLA 600ML"

	lines := ConsolidateLines(raw)

	assert.Equal(t, []string{"COCA", "35.50", "COLA 600ML"}, lines)
}

func TestConsolidateLines_TrailingFragmentsFlushed(t *testing.T) {
	raw := "TOTAL 12.00\nGRA\nCIAS"

	lines := ConsolidateLines(raw)

	assert.Equal(t, []string{"TOTAL 12.00", "GRA CIAS"}, lines)
}

func TestConsolidateLines_EmptyInput(t *testing.T) {
	assert.Empty(t, ConsolidateLines(""))
	assert.Empty(t, ConsolidateLines("\n\n  \n"))
}
