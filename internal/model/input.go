package model

import (
	"github.com/shopspring/decimal"
)

// Input is a product as entered on the add or edit form: every field is
// optional and nothing is derived yet. Field names match the stored
// record so a form can be posted straight from it.
type Input struct {
	Type Type   `json:"type"`
	Name string `json:"name"`

	Currency   string              `json:"currency,omitempty"`
	Amount     decimal.NullDecimal `json:"amount"`
	Rate       decimal.NullDecimal `json:"rate"`
	Period     *int                `json:"period,omitempty"`
	PeriodUnit PeriodUnit          `json:"periodUnit,omitempty"`

	SellCurrency string              `json:"sellCurrency,omitempty"`
	BuyCurrency  string              `json:"buyCurrency,omitempty"`
	SellAmount   decimal.NullDecimal `json:"sellAmount"`
	ExchangeRate decimal.NullDecimal `json:"exchangeRate"`

	NearSellCurrency string              `json:"nearSellCurrency,omitempty"`
	NearBuyCurrency  string              `json:"nearBuyCurrency,omitempty"`
	NearSellAmount   decimal.NullDecimal `json:"nearSellAmount"`
	NearRate         decimal.NullDecimal `json:"nearRate"`
	FarSellCurrency  string              `json:"farSellCurrency,omitempty"`
	FarBuyCurrency   string              `json:"farBuyCurrency,omitempty"`
	FarRate          decimal.NullDecimal `json:"farRate"`

	FeeCurrency string              `json:"feeCurrency,omitempty"`
	FeeAmount   decimal.NullDecimal `json:"feeAmount"`
}

// InputFromProduct turns a stored product back into form input, as the
// edit page does when it pre-fills its fields.
func InputFromProduct(p Product) Input {
	in := Input{Type: p.Type, Name: p.Name}
	if t := p.Term; t != nil {
		period := t.Period
		in.Currency = t.Currency
		in.Amount = Valid(t.Amount)
		in.Rate = Valid(t.Rate)
		in.Period = &period
		in.PeriodUnit = t.PeriodUnit
	}
	if e := p.Exchange; e != nil {
		in.SellCurrency = e.SellCurrency
		in.BuyCurrency = e.BuyCurrency
		in.SellAmount = Valid(e.SellAmount)
		in.ExchangeRate = Valid(e.ExchangeRate)
	}
	if s := p.Swap; s != nil {
		in.NearSellCurrency = s.NearSellCurrency
		in.NearBuyCurrency = s.NearBuyCurrency
		in.NearSellAmount = Valid(s.NearSellAmount)
		in.NearRate = Valid(s.NearRate)
		in.FarSellCurrency = s.FarSellCurrency
		in.FarBuyCurrency = s.FarBuyCurrency
		in.FarRate = Valid(s.FarRate)
	}
	if f := p.Fee; f != nil {
		in.FeeCurrency = f.FeeCurrency
		in.FeeAmount = Valid(f.FeeAmount)
	}
	return in
}

// Valid wraps d as a set NullDecimal.
func Valid(d decimal.Decimal) decimal.NullDecimal {
	return decimal.NullDecimal{Decimal: d, Valid: true}
}

// Unset is the NullDecimal for "no value yet".
var Unset = decimal.NullDecimal{}
