// Package calc derives the computed fields of calculator products from
// the values a user entered.
//
// Every function is pure and deterministic. Nothing here returns an error:
// when inputs are missing, zero or negative the outputs are unset
// (decimal.NullDecimal with Valid=false) so callers can tell "not
// calculated yet" apart from a real zero.
//
// Intermediate results keep full decimal precision; Round is applied only
// where a value is stored or displayed.
package calc

import (
	"github.com/shopspring/decimal"

	"github.com/atmx/product-calculator/internal/model"
)

// MoneyScale is the number of fractional digits of stored and displayed
// monetary values.
var MoneyScale int32 = 2

var (
	hundred     = decimal.NewFromInt(100)
	monthsInYr  = decimal.NewFromInt(12)
	daysInYr    = decimal.NewFromInt(365)
	unsetResult = decimal.NullDecimal{}
)

// Round rounds x half away from zero to MoneyScale places.
func Round(x decimal.Decimal) decimal.Decimal {
	return x.Round(MoneyScale)
}

// RoundNull rounds a set value and leaves an unset one unset.
func RoundNull(x decimal.NullDecimal) decimal.NullDecimal {
	if !x.Valid {
		return x
	}
	return model.Valid(Round(x.Decimal))
}

// periodDivisor is the number of units per year. An empty unit counts as
// years, which is what the form falls back to before a unit is picked.
func periodDivisor(unit model.PeriodUnit) decimal.Decimal {
	switch unit {
	case model.UnitMonth:
		return monthsInYr
	case model.UnitDay:
		return daysInYr
	}
	return decimal.NewFromInt(1)
}

// Years converts a period to years: months/12, days/365, years as-is.
func Years(period int, unit model.PeriodUnit) decimal.Decimal {
	return decimal.NewFromInt(int64(period)).Div(periodDivisor(unit))
}

// TermResult holds the derived fields of a deposit or loan.
type TermResult struct {
	Interest  decimal.NullDecimal `json:"interest"`
	Principal decimal.NullDecimal `json:"principal"`
}

// Term computes simple interest for a deposit or loan:
//
//	interest  = amount * rate * years / 100
//	principal = amount + interest
//
// Loans use the same formula; the sign flip for a loan happens when net
// income is computed, not here.
func Term(amount, rate decimal.Decimal, period int, unit model.PeriodUnit) TermResult {
	if !amount.IsPositive() || !rate.IsPositive() || period <= 0 {
		return TermResult{}
	}
	// Multiply before dividing so month and day periods stay exact
	// where they can.
	interest := amount.Mul(rate).Mul(decimal.NewFromInt(int64(period))).
		Div(hundred.Mul(periodDivisor(unit)))
	return TermResult{
		Interest:  model.Valid(interest),
		Principal: model.Valid(amount.Add(interest)),
	}
}

// Exchange computes the bought amount of a spot or forward deal:
//
//	buyAmount = sellAmount * exchangeRate
func Exchange(sellAmount, exchangeRate decimal.Decimal) decimal.NullDecimal {
	if !sellAmount.IsPositive() || !exchangeRate.IsPositive() {
		return unsetResult
	}
	return model.Valid(sellAmount.Mul(exchangeRate))
}

// SwapResult holds the derived fields of an FX swap.
type SwapResult struct {
	NearBuyAmount decimal.NullDecimal `json:"nearBuyAmount"`
	FarBuyAmount  decimal.NullDecimal `json:"farBuyAmount"`
	FarSellAmount decimal.NullDecimal `json:"farSellAmount"`
	FinalIncome   decimal.NullDecimal `json:"finalIncome"`
}

// Swap computes the legs of an FX swap. The far leg unwinds the notional:
//
//	nearBuyAmount = nearSellAmount * nearRate
//	farBuyAmount  = nearSellAmount
//	farSellAmount = farBuyAmount / farRate
//	finalIncome   = nearBuyAmount - nearSellAmount / farRate
//
// finalIncome is denominated in the near-buy currency and may be
// negative. If any input is not positive every output is unset.
func Swap(nearSellAmount, nearRate, farRate decimal.Decimal) SwapResult {
	if !nearSellAmount.IsPositive() || !nearRate.IsPositive() || !farRate.IsPositive() {
		return SwapResult{}
	}
	nearBuy := nearSellAmount.Mul(nearRate)
	farBuy := nearSellAmount
	farSell := farBuy.Div(farRate)
	return SwapResult{
		NearBuyAmount: model.Valid(nearBuy),
		FarBuyAmount:  model.Valid(farBuy),
		FarSellAmount: model.Valid(farSell),
		FinalIncome:   model.Valid(nearBuy.Sub(nearSellAmount.Div(farRate))),
	}
}
