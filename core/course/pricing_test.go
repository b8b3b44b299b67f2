package course

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/volatiletech/null/v8"
)

func TestPricingFromStorage(t *testing.T) {
	tests := []struct {
		name       string
		priceCents null.Int64
		wantFree   bool
		wantAmount int64
	}{
		{name: "null price", priceCents: null.Int64{}, wantFree: true},
		{name: "zero price", priceCents: null.Int64From(0), wantFree: true},
		{name: "negative price", priceCents: null.Int64From(-500), wantFree: true},
		{name: "positive price", priceCents: null.Int64From(19900), wantAmount: 19900},
		{name: "one piaster", priceCents: null.Int64From(1), wantAmount: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := PricingFromStorage(tt.priceCents, "EGP")
			assert.Equal(t, tt.wantFree, p.IsFree())
			assert.Equal(t, !tt.wantFree, p.IsPaid())
			assert.Equal(t, tt.wantAmount, p.AmountCents())
		})
	}
}

func TestPricing_PriceCents(t *testing.T) {
	assert.False(t, Free().PriceCents().Valid)
	assert.False(t, Paid(0, "EGP").PriceCents().Valid)
	assert.Equal(t, null.Int64From(19900), Paid(19900, "EGP").PriceCents())
}

func TestPricing_String(t *testing.T) {
	assert.Equal(t, "free", Free().String())
	assert.Equal(t, "199.00 EGP", Paid(19900, "EGP").String())
	assert.Equal(t, "0.05 USD", Paid(5, "USD").String())
}

func TestPricing_MarshalJSON(t *testing.T) {
	data, err := json.Marshal(Paid(19900, "EGP"))
	assert.NoError(t, err)
	assert.JSONEq(t, `{"free": false, "amount_cents": 19900, "currency": "EGP"}`, string(data))

	data, err = json.Marshal(Free())
	assert.NoError(t, err)
	assert.JSONEq(t, `{"free": true}`, string(data))
}

func TestNewCourse_Pricing(t *testing.T) {
	i64 := func(i int64) *int64 { return &i }
	tests := []struct {
		name string
		nc   NewCourse
		want Pricing
	}{
		{name: "no price", nc: NewCourse{}, want: Free()},
		{name: "zero price", nc: NewCourse{PriceCents: i64(0), Currency: "USD"}, want: Free()},
		{name: "default currency", nc: NewCourse{PriceCents: i64(19900)}, want: Paid(19900, "EGP")},
		{name: "explicit currency", nc: NewCourse{PriceCents: i64(1500), Currency: "USD"}, want: Paid(1500, "USD")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.nc.Pricing("EGP"))
		})
	}
}
