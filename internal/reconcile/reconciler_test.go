package reconcile

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func TestFromTotal_SplitsAtRate(t *testing.T) {
	a := FromTotal(d("1160.00"), d("0.16"))

	assert.True(t, a.Subtotal.Equal(d("1000.00")), "subtotal = %s", a.Subtotal)
	assert.True(t, a.Tax.Equal(d("160.00")), "tax = %s", a.Tax)
	assert.True(t, a.Total.Equal(d("1160.00")))
	assert.True(t, Consistent(a))
}

func TestFromTotal_AbsorbsRounding(t *testing.T) {
	cases := []string{"35.50", "1160.00", "99.99", "0.01", "123456.78", "871.93"}
	rate := d("0.16")
	for _, total := range cases {
		a := FromTotal(d(total), rate)
		assert.True(t, Consistent(a), "total %s: %s + %s != %s", total, a.Subtotal, a.Tax, a.Total)
	}
}

func TestFromParts_KeepsIndependentFigures(t *testing.T) {
	a := FromParts(d("30.60"), d("4.90"), d("35.50"))

	assert.True(t, a.Subtotal.Equal(d("30.60")))
	assert.True(t, a.Tax.Equal(d("4.90")))
	assert.True(t, a.Total.Equal(d("35.50")), "total must not be overwritten")
}

func TestFromParts_FillsMissingTotal(t *testing.T) {
	a := FromParts(d("1000.00"), d("160.00"), decimal.Zero)

	require.True(t, a.Total.Equal(d("1160.00")))
	assert.True(t, a.Rate.Equal(d("0.16")))
	assert.True(t, Consistent(a))
}

func TestFromParts_DerivesSubtotalFromTotal(t *testing.T) {
	a := FromParts(decimal.Zero, d("160.00"), d("1160.00"))

	assert.True(t, a.Subtotal.Equal(d("1000.00")))
	assert.True(t, Consistent(a))
}

func TestConsistent_RejectsDriftBeyondCentavo(t *testing.T) {
	assert.False(t, Consistent(Amounts{
		Subtotal: d("1000.00"), Tax: d("160.00"), Total: d("1160.02"),
	}))
	assert.True(t, Consistent(Amounts{
		Subtotal: d("1000.00"), Tax: d("160.00"), Total: d("1160.01"),
	}))
}
