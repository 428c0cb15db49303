package model

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// FormatMoney renders d with exactly two fractional digits.
func FormatMoney(d decimal.Decimal) string {
	return d.StringFixed(2)
}

// FormatSigned renders an income as "+365.00 CNY", "-2130.00 USD" or
// "0.00 EUR".
func FormatSigned(d decimal.Decimal, currency string) string {
	abs := d.Abs().StringFixed(2)
	switch d.Round(2).Sign() {
	case 1:
		return "+" + abs + " " + currency
	case -1:
		return "-" + abs + " " + currency
	}
	return abs + " " + currency
}

// FormatPeriod renders "12月" style period text.
func FormatPeriod(period int, unit PeriodUnit) string {
	return fmt.Sprintf("%d%s", period, unit.Label())
}

// Describe returns a one-line summary of p for logs and listings.
func (p *Product) Describe() string {
	var b strings.Builder
	b.WriteString(p.Type.Label())
	b.WriteString(" ")
	b.WriteString(p.Name)
	switch {
	case p.Term != nil:
		fmt.Fprintf(&b, " %s %s @%s%% %s",
			p.Term.Currency, FormatMoney(p.Term.Amount), p.Term.Rate.String(),
			FormatPeriod(p.Term.Period, p.Term.PeriodUnit))
	case p.Exchange != nil:
		fmt.Fprintf(&b, " %s %s→%s @%s",
			FormatMoney(p.Exchange.SellAmount), p.Exchange.SellCurrency,
			p.Exchange.BuyCurrency, p.Exchange.ExchangeRate.String())
	case p.Swap != nil:
		fmt.Fprintf(&b, " %s %s→%s near@%s far@%s",
			FormatMoney(p.Swap.NearSellAmount), p.Swap.NearSellCurrency,
			p.Swap.NearBuyCurrency, p.Swap.NearRate.String(), p.Swap.FarRate.String())
	}
	return b.String()
}
