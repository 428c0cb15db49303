// Package model defines the product records shared across the calculator.
// All monetary values use shopspring/decimal, never float64.
//
// A Product is a tagged union: Type selects which one of Term, Exchange or
// Swap is populated. The variant structs are embedded pointers so that the
// JSON form is the flat record the calculator has always stored.
package model

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Type is the product variant discriminant.
type Type string

const (
	TypeDeposit Type = "deposit"
	TypeLoan    Type = "loan"
	TypeSpot    Type = "foreign_spot"
	TypeForward Type = "foreign_forward"
	TypeSwap    Type = "foreign_swap"
)

var typeLabels = map[Type]string{
	TypeDeposit: "存款",
	TypeLoan:    "贷款",
	TypeSpot:    "外汇-即期",
	TypeForward: "外汇-远期",
	TypeSwap:    "外汇-掉期",
}

// Types lists every variant in display order.
func Types() []Type {
	return []Type{TypeDeposit, TypeLoan, TypeSpot, TypeForward, TypeSwap}
}

// Valid reports whether t is a known variant.
func (t Type) Valid() bool {
	_, ok := typeLabels[t]
	return ok
}

// IsTerm reports whether t carries Term fields (deposit, loan).
func (t Type) IsTerm() bool { return t == TypeDeposit || t == TypeLoan }

// IsExchange reports whether t carries Exchange fields (spot, forward).
func (t Type) IsExchange() bool { return t == TypeSpot || t == TypeForward }

// Label returns the display text of t.
func (t Type) Label() string {
	if l, ok := typeLabels[t]; ok {
		return l
	}
	return "未知"
}

// PeriodUnit is the unit a deposit or loan period is expressed in.
type PeriodUnit string

const (
	UnitYear  PeriodUnit = "year"
	UnitMonth PeriodUnit = "month"
	UnitDay   PeriodUnit = "day"
)

// Valid reports whether u is a known unit.
func (u PeriodUnit) Valid() bool {
	return u == UnitYear || u == UnitMonth || u == UnitDay
}

// MaxPeriod is the largest period accepted for u (five years in any unit).
func (u PeriodUnit) MaxPeriod() int {
	switch u {
	case UnitYear:
		return 5
	case UnitMonth:
		return 60
	default:
		return 1825
	}
}

// Label returns the display text of u.
func (u PeriodUnit) Label() string {
	switch u {
	case UnitYear:
		return "年"
	case UnitMonth:
		return "月"
	case UnitDay:
		return "日"
	}
	return string(u)
}

// Term holds deposit and loan fields.
type Term struct {
	Currency   string          `json:"currency"`
	Amount     decimal.Decimal `json:"amount"`
	Rate       decimal.Decimal `json:"rate"` // percent per year
	Period     int             `json:"period"`
	PeriodUnit PeriodUnit      `json:"periodUnit"`
	Interest   decimal.Decimal `json:"interest"`  // derived
	Principal  decimal.Decimal `json:"principal"` // derived: amount + interest
}

// Exchange holds FX spot and forward fields.
type Exchange struct {
	SellCurrency string          `json:"sellCurrency"`
	BuyCurrency  string          `json:"buyCurrency"`
	SellAmount   decimal.Decimal `json:"sellAmount"`
	ExchangeRate decimal.Decimal `json:"exchangeRate"`
	BuyAmount    decimal.Decimal `json:"buyAmount"` // derived
}

// Swap holds FX swap fields. The far leg reverses the near leg: its
// currencies are the near currencies swapped and its buy amount is the
// near sell amount.
type Swap struct {
	NearSellCurrency string          `json:"nearSellCurrency"`
	NearBuyCurrency  string          `json:"nearBuyCurrency"`
	NearSellAmount   decimal.Decimal `json:"nearSellAmount"`
	NearRate         decimal.Decimal `json:"nearRate"`
	NearBuyAmount    decimal.Decimal `json:"nearBuyAmount"` // derived
	FarSellCurrency  string          `json:"farSellCurrency"`
	FarBuyCurrency   string          `json:"farBuyCurrency"`
	FarRate          decimal.Decimal `json:"farRate"`
	FarBuyAmount     decimal.Decimal `json:"farBuyAmount"`  // derived
	FarSellAmount    decimal.Decimal `json:"farSellAmount"` // derived
	FinalIncome      decimal.Decimal `json:"finalIncome"`   // derived, in NearBuyCurrency, may be negative
}

// Fee is the optional handling fee any product may carry.
type Fee struct {
	FeeCurrency string          `json:"feeCurrency"`
	FeeAmount   decimal.Decimal `json:"feeAmount"`
}

// Product is one persisted calculator entry.
type Product struct {
	ID         int64  `json:"id"`
	Type       Type   `json:"type"`
	Name       string `json:"name"`
	CreateTime int64  `json:"createTime"` // epoch ms, set once
	UpdateTime int64  `json:"updateTime"` // epoch ms

	*Term
	*Exchange
	*Swap
	*Fee
}

// FeeValue returns the fee amount, zero when the product has no fee.
func (p *Product) FeeValue() decimal.Decimal {
	if p.Fee == nil {
		return decimal.Zero
	}
	return p.Fee.FeeAmount
}

// Shape reports whether exactly the variant matching p.Type is populated.
func (p *Product) Shape() bool {
	switch {
	case p.Type.IsTerm():
		return p.Term != nil && p.Exchange == nil && p.Swap == nil
	case p.Type.IsExchange():
		return p.Term == nil && p.Exchange != nil && p.Swap == nil
	case p.Type == TypeSwap:
		return p.Term == nil && p.Exchange == nil && p.Swap != nil
	}
	return false
}

// Normalize drops an empty fee left behind by decoding null fee fields.
func (p *Product) Normalize() {
	if p.Fee != nil && p.Fee.FeeCurrency == "" && p.Fee.FeeAmount.IsZero() {
		p.Fee = nil
	}
}

// Clone returns a deep copy of p.
func (p Product) Clone() Product {
	if p.Term != nil {
		t := *p.Term
		p.Term = &t
	}
	if p.Exchange != nil {
		e := *p.Exchange
		p.Exchange = &e
	}
	if p.Swap != nil {
		s := *p.Swap
		p.Swap = &s
	}
	if p.Fee != nil {
		f := *p.Fee
		p.Fee = &f
	}
	return p
}

// ErrVariantMismatch is returned by Merge when a patch carries variant
// fields that do not fit its own Type or, untyped, the stored product's.
var ErrVariantMismatch = errors.New("model: patch variant does not match product type")

// Merge applies patch over p and returns the result. A non-empty name
// replaces the name and a non-nil fee replaces the fee. A patch carrying a
// Type reshapes the record: type, variant and fee are all taken from the
// patch, which must then be well-shaped. Without a Type, a non-nil variant
// replaces the stored one of the same kind. ID and CreateTime are never
// changed by a merge.
func (p Product) Merge(patch Product) (Product, error) {
	out := p.Clone()
	patch = patch.Clone()
	if patch.Name != "" {
		out.Name = patch.Name
	}
	if patch.Type != "" {
		if !patch.Shape() {
			return p, fmt.Errorf("%w: %s patch is not well-shaped", ErrVariantMismatch, patch.Type)
		}
		out.Type = patch.Type
		out.Term = patch.Term
		out.Exchange = patch.Exchange
		out.Swap = patch.Swap
		out.Fee = patch.Fee
		return out, nil
	}

	switch {
	case patch.Term != nil && !p.Type.IsTerm(),
		patch.Exchange != nil && !p.Type.IsExchange(),
		patch.Swap != nil && p.Type != TypeSwap:
		return p, fmt.Errorf("%w: stored type %s", ErrVariantMismatch, p.Type)
	}
	if patch.Term != nil {
		out.Term = patch.Term
	}
	if patch.Exchange != nil {
		out.Exchange = patch.Exchange
	}
	if patch.Swap != nil {
		out.Swap = patch.Swap
	}
	if patch.Fee != nil {
		out.Fee = patch.Fee
	}
	return out, nil
}
