package calc

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/atmx/product-calculator/internal/model"
)

// Derived is the set of computed fields shown next to a form, rounded for
// display. Fields that do not apply to the input's type stay unset.
type Derived struct {
	Interest      decimal.NullDecimal `json:"interest"`
	Principal     decimal.NullDecimal `json:"principal"`
	BuyAmount     decimal.NullDecimal `json:"buyAmount"`
	NearBuyAmount decimal.NullDecimal `json:"nearBuyAmount"`
	FarBuyAmount  decimal.NullDecimal `json:"farBuyAmount"`
	FarSellAmount decimal.NullDecimal `json:"farSellAmount"`
	FinalIncome   decimal.NullDecimal `json:"finalIncome"`

	// FinalIncomeCurrency labels FinalIncome (the near-buy currency).
	FinalIncomeCurrency string `json:"finalIncomeCurrency,omitempty"`
}

func value(x decimal.NullDecimal) decimal.Decimal {
	if !x.Valid {
		return decimal.Zero
	}
	return x.Decimal
}

func period(p *int) int {
	if p == nil {
		return 0
	}
	return *p
}

// Preview recomputes the derived fields of a possibly incomplete input.
func Preview(in model.Input) Derived {
	var out Derived
	switch {
	case in.Type.IsTerm():
		r := Term(value(in.Amount), value(in.Rate), period(in.Period), in.PeriodUnit)
		out.Interest = RoundNull(r.Interest)
		out.Principal = RoundNull(r.Principal)
	case in.Type.IsExchange():
		out.BuyAmount = RoundNull(Exchange(value(in.SellAmount), value(in.ExchangeRate)))
	case in.Type == model.TypeSwap:
		r := Swap(value(in.NearSellAmount), value(in.NearRate), value(in.FarRate))
		out.NearBuyAmount = RoundNull(r.NearBuyAmount)
		out.FarBuyAmount = RoundNull(r.FarBuyAmount)
		out.FarSellAmount = RoundNull(r.FarSellAmount)
		out.FinalIncome = RoundNull(r.FinalIncome)
		out.FinalIncomeCurrency = in.NearBuyCurrency
	}
	return out
}

// Derive assembles the product described by a validated input, with every
// derived field recomputed and rounded to MoneyScale. It reports false if
// the input's type is unknown or its inputs cannot be computed. Identity
// and timestamps are left for the store to assign.
func Derive(in model.Input) (model.Product, bool) {
	p := model.Product{Type: in.Type, Name: strings.TrimSpace(in.Name)}

	switch {
	case in.Type.IsTerm():
		r := Term(value(in.Amount), value(in.Rate), period(in.Period), in.PeriodUnit)
		if !r.Interest.Valid {
			return model.Product{}, false
		}
		p.Term = &model.Term{
			Currency:   in.Currency,
			Amount:     in.Amount.Decimal,
			Rate:       in.Rate.Decimal,
			Period:     *in.Period,
			PeriodUnit: in.PeriodUnit,
			Interest:   Round(r.Interest.Decimal),
			Principal:  Round(r.Principal.Decimal),
		}

	case in.Type.IsExchange():
		buy := Exchange(value(in.SellAmount), value(in.ExchangeRate))
		if !buy.Valid {
			return model.Product{}, false
		}
		p.Exchange = &model.Exchange{
			SellCurrency: in.SellCurrency,
			BuyCurrency:  in.BuyCurrency,
			SellAmount:   in.SellAmount.Decimal,
			ExchangeRate: in.ExchangeRate.Decimal,
			BuyAmount:    Round(buy.Decimal),
		}

	case in.Type == model.TypeSwap:
		r := Swap(value(in.NearSellAmount), value(in.NearRate), value(in.FarRate))
		if !r.FinalIncome.Valid {
			return model.Product{}, false
		}
		p.Swap = &model.Swap{
			NearSellCurrency: in.NearSellCurrency,
			NearBuyCurrency:  in.NearBuyCurrency,
			NearSellAmount:   in.NearSellAmount.Decimal,
			NearRate:         in.NearRate.Decimal,
			NearBuyAmount:    Round(r.NearBuyAmount.Decimal),
			FarSellCurrency:  in.FarSellCurrency,
			FarBuyCurrency:   in.FarBuyCurrency,
			FarRate:          in.FarRate.Decimal,
			FarBuyAmount:     Round(r.FarBuyAmount.Decimal),
			FarSellAmount:    Round(r.FarSellAmount.Decimal),
			FinalIncome:      Round(r.FinalIncome.Decimal),
		}

	default:
		return model.Product{}, false
	}

	if in.FeeAmount.Valid && in.FeeAmount.Decimal.IsPositive() {
		p.Fee = &model.Fee{
			FeeCurrency: in.FeeCurrency,
			FeeAmount:   in.FeeAmount.Decimal,
		}
	}
	return p, true
}

// Consistent reports whether the derived fields stored on p equal a fresh
// recomputation of its inputs.
func Consistent(p model.Product) bool {
	if !p.Shape() {
		return false
	}
	fresh, ok := Derive(model.InputFromProduct(p))
	if !ok {
		return false
	}
	switch {
	case p.Term != nil:
		return p.Term.Interest.Equal(fresh.Term.Interest) &&
			p.Term.Principal.Equal(fresh.Term.Principal)
	case p.Exchange != nil:
		return p.Exchange.BuyAmount.Equal(fresh.Exchange.BuyAmount)
	case p.Swap != nil:
		return p.Swap.NearBuyAmount.Equal(fresh.Swap.NearBuyAmount) &&
			p.Swap.FarBuyAmount.Equal(fresh.Swap.FarBuyAmount) &&
			p.Swap.FarSellAmount.Equal(fresh.Swap.FarSellAmount) &&
			p.Swap.FinalIncome.Equal(fresh.Swap.FinalIncome)
	}
	return false
}
