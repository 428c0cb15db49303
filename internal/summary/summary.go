// Package summary aggregates the net income of every stored product per
// settlement currency and converts the totals into the reference currency
// with rates entered for the current view.
//
// Rates are transient: they live in a Rates map or a Session and are never
// written to the store. Aggregate is pure, so calling it twice with the
// same products and rates gives the same Summary.
package summary

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/atmx/product-calculator/internal/calc"
	"github.com/atmx/product-calculator/internal/currency"
	"github.com/atmx/product-calculator/internal/model"
	"github.com/atmx/product-calculator/internal/validation"
)

var (
	// ErrRateOutOfRange is returned when a conversion rate falls outside
	// 0.01..9999.99. The currency is left without a rate.
	ErrRateOutOfRange = errors.New("summary: rate out of range")

	// ErrReferenceRate is returned when a rate is entered for the
	// reference currency, which always converts at 1.
	ErrReferenceRate = errors.New("summary: reference currency has a fixed rate")

	// ErrMalformedRate is returned when a "CUR:rate" pair cannot be parsed.
	ErrMalformedRate = errors.New("summary: malformed rate")
)

// SettlementCurrency is the currency a product's net income is expressed
// in: the term currency, the bought currency, or the near-leg buy currency.
func SettlementCurrency(p model.Product) string {
	switch {
	case p.Type.IsTerm() && p.Term != nil:
		return p.Term.Currency
	case p.Type.IsExchange() && p.Exchange != nil:
		return p.Exchange.BuyCurrency
	case p.Type == model.TypeSwap && p.Swap != nil:
		return p.Swap.NearBuyCurrency
	}
	return ""
}

// NetIncome is the signed income of p in its settlement currency:
//
//	deposit        interest − fee
//	loan           −(interest + fee)
//	foreign_swap   finalIncome − fee
//	spot, forward  −fee
//
// The fee amount is subtracted as entered, whatever its currency.
func NetIncome(p model.Product) decimal.Decimal {
	fee := p.FeeValue()
	switch {
	case p.Type == model.TypeDeposit && p.Term != nil:
		return p.Term.Interest.Sub(fee)
	case p.Type == model.TypeLoan && p.Term != nil:
		return p.Term.Interest.Add(fee).Neg()
	case p.Type == model.TypeSwap && p.Swap != nil:
		return p.Swap.FinalIncome.Sub(fee)
	}
	return fee.Neg()
}

// Rates maps a currency code to the number of reference-currency units one
// unit of it is worth.
type Rates map[string]decimal.Decimal

// Set records rate for code. A zero or negative rate clears the entry. An
// out-of-range rate clears the entry and returns ErrRateOutOfRange.
func (r Rates) Set(code string, rate decimal.Decimal) error {
	code, err := currency.Parse(code)
	if err != nil {
		return err
	}
	if code == currency.Reference {
		return fmt.Errorf("%w: %s", ErrReferenceRate, code)
	}
	if !rate.IsPositive() {
		delete(r, code)
		return nil
	}
	if fe := validation.ValidateRate(rate); fe != nil {
		delete(r, code)
		return fmt.Errorf("%w: %s %s: %s", ErrRateOutOfRange, code, rate, fe.Message)
	}
	r[code] = rate
	return nil
}

// Clone returns an independent copy of r.
func (r Rates) Clone() Rates {
	out := make(Rates, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// ParseRates reads "USD:7.1" pairs, as passed in query strings. Later pairs
// override earlier ones for the same currency.
func ParseRates(pairs []string) (Rates, error) {
	rates := Rates{}
	for _, pair := range pairs {
		code, value, ok := strings.Cut(pair, ":")
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrMalformedRate, pair)
		}
		rate, err := decimal.NewFromString(strings.TrimSpace(value))
		if err != nil {
			return nil, fmt.Errorf("%w: %q", ErrMalformedRate, pair)
		}
		if err := rates.Set(code, rate); err != nil {
			return nil, err
		}
	}
	return rates, nil
}

// Line is the total of one settlement currency.
type Line struct {
	Currency string          `json:"currency"`
	Name     string          `json:"name"`
	Total    decimal.Decimal `json:"total"`
	Display  string          `json:"display"`

	// Rate and Converted are set for the reference currency (rate 1) and
	// for currencies with an entered rate.
	Rate      decimal.NullDecimal `json:"rate"`
	Converted decimal.NullDecimal `json:"converted"`
}

// Summary is the aggregated view over all products.
type Summary struct {
	Lines             []Line          `json:"lines"`
	ReferenceCurrency string          `json:"referenceCurrency"`
	ReferenceTotal    decimal.Decimal `json:"referenceTotal"`
	Display           string          `json:"display"`
	ProductCount      int             `json:"productCount"`
}

// Line returns the line for code, if present.
func (s Summary) Line(code string) (Line, bool) {
	for _, l := range s.Lines {
		if l.Currency == code {
			return l, true
		}
	}
	return Line{}, false
}

// Aggregate groups net income by settlement currency and converts each
// total with rates.
//
//  1. Sum NetIncome per SettlementCurrency, keeping first-seen order.
//  2. Drop currencies whose total is exactly zero.
//  3. Convert: the reference currency at 1, others only with a rate.
//  4. The reference total is the sum of converted amounts; currencies
//     without a rate are shown natively and left out of it.
func Aggregate(products []model.Product, rates Rates) Summary {
	totals := make(map[string]decimal.Decimal)
	var order []string
	for _, p := range products {
		code := SettlementCurrency(p)
		if code == "" {
			continue
		}
		if _, seen := totals[code]; !seen {
			order = append(order, code)
		}
		totals[code] = totals[code].Add(NetIncome(p))
	}

	sum := Summary{
		Lines:             []Line{},
		ReferenceCurrency: currency.Reference,
		ProductCount:      len(products),
	}
	refTotal := decimal.Zero
	for _, code := range order {
		if totals[code].IsZero() {
			continue
		}
		total := calc.Round(totals[code])
		line := Line{
			Currency: code,
			Name:     currency.Name(code),
			Total:    total,
			Display:  model.FormatSigned(total, code),
		}
		switch rate, ok := rates[code]; {
		case code == currency.Reference:
			line.Rate = model.Valid(decimal.NewFromInt(1))
			line.Converted = model.Valid(total)
		case ok:
			line.Rate = model.Valid(rate)
			line.Converted = model.Valid(calc.Round(total.Mul(rate)))
		}
		if line.Converted.Valid {
			refTotal = refTotal.Add(line.Converted.Decimal)
		}
		sum.Lines = append(sum.Lines, line)
	}

	sum.ReferenceTotal = calc.Round(refTotal)
	sum.Display = model.FormatSigned(sum.ReferenceTotal, currency.Reference)
	return sum
}
