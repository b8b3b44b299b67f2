package course

import (
	"encoding/json"
	"fmt"

	"github.com/volatiletech/null/v8"
)

// freeCeilingCents is the highest stored price still treated as free.
// Zero and negative stored prices are free; new writes never store them (see NewCourse).
const freeCeilingCents int64 = 0

// Pricing is either Free or Paid{amount, currency}; amounts are in minor units (piasters, cents).
type Pricing struct {
	paid        bool
	amountCents int64
	currency    string
}

func Free() Pricing { return Pricing{} }

func Paid(amountCents int64, currency string) Pricing {
	if amountCents <= freeCeilingCents {
		return Free()
	}
	return Pricing{paid: true, amountCents: amountCents, currency: currency}
}

// PricingFromStorage applies the canonical rule: a null or non-positive price is free.
func PricingFromStorage(priceCents null.Int64, currency string) Pricing {
	if !priceCents.Valid {
		return Free()
	}
	return Paid(priceCents.Int64, currency)
}

func (p Pricing) IsFree() bool       { return !p.paid }
func (p Pricing) IsPaid() bool       { return p.paid }
func (p Pricing) AmountCents() int64 { return p.amountCents }
func (p Pricing) Currency() string   { return p.currency }

// PriceCents is the storage form: null when free.
func (p Pricing) PriceCents() null.Int64 {
	return null.NewInt64(p.amountCents, p.paid)
}

func (p Pricing) String() string {
	if !p.paid {
		return "free"
	}
	return fmt.Sprintf("%d.%02d %s", p.amountCents/100, p.amountCents%100, p.currency)
}

type pricingJSON struct {
	Free        bool   `json:"free"`
	AmountCents int64  `json:"amount_cents,omitempty"`
	Currency    string `json:"currency,omitempty"`
}

func (p Pricing) MarshalJSON() ([]byte, error) {
	return json.Marshal(pricingJSON{Free: !p.paid, AmountCents: p.amountCents, Currency: p.currency})
}
