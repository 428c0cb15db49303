// Package validation checks calculator form input field by field.
//
// Every rule runs independently so that a single call reports all
// violations at once. Validation never touches storage.
package validation

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/shopspring/decimal"

	"github.com/atmx/product-calculator/internal/currency"
	"github.com/atmx/product-calculator/internal/model"
)

// Error codes.
const (
	CodeRequired         = "required"
	CodeOutOfRange       = "out_of_range"
	CodePrecision        = "precision"
	CodeTooLong          = "too_long"
	CodeUnsupported      = "unsupported"
	CodeSameCurrency     = "same_currency"
	CodeCurrencyMismatch = "currency_mismatch"
)

// Limits.
const (
	MaxNameLength = 50
	MoneyScale    = 2
)

var (
	MaxAmount         = decimal.RequireFromString("999999999.99")
	MaxRate           = decimal.RequireFromString("99.99")
	MaxFXRate         = decimal.RequireFromString("9999.99")
	MinConversionRate = decimal.RequireFromString("0.01")
)

// FieldError is one violation tied to one input field. Field uses the
// JSON name of the field.
type FieldError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e FieldError) Error() string {
	return e.Field + ": " + e.Message
}

// Errors is the list of violations found in one input. A nil or empty
// list means the input is valid.
type Errors []FieldError

func (es Errors) Error() string {
	msgs := make([]string, len(es))
	for i, e := range es {
		msgs[i] = e.Error()
	}
	return "validation: " + strings.Join(msgs, "; ")
}

// Has reports whether any error is tagged to field.
func (es Errors) Has(field string) bool {
	for _, e := range es {
		if e.Field == field {
			return true
		}
	}
	return false
}

// Codes returns the codes reported for field.
func (es Errors) Codes(field string) []string {
	var out []string
	for _, e := range es {
		if e.Field == field {
			out = append(out, e.Code)
		}
	}
	return out
}

// Only keeps the errors whose field is in fields.
func (es Errors) Only(fields map[string]bool) Errors {
	var out Errors
	for _, e := range es {
		if fields[e.Field] {
			out = append(out, e)
		}
	}
	return out
}

type checker struct {
	errs Errors
}

func (c *checker) add(field, code, format string, args ...any) {
	c.errs = append(c.errs, FieldError{Field: field, Code: code, Message: fmt.Sprintf(format, args...)})
}

// currency requires a supported code.
func (c *checker) currency(field, code string) bool {
	if code == "" {
		c.add(field, CodeRequired, "currency is required")
		return false
	}
	if !currency.IsSupported(code) {
		c.add(field, CodeUnsupported, "unsupported currency %s", code)
		return false
	}
	return true
}

// positive requires a set value in (0, max] with at most scale
// fractional digits (scale < 0 skips the precision check).
func (c *checker) positive(field string, v decimal.NullDecimal, max decimal.Decimal, scale int32) {
	if !v.Valid || !v.Decimal.IsPositive() {
		c.add(field, CodeRequired, "must be a positive number")
		return
	}
	if v.Decimal.GreaterThan(max) {
		c.add(field, CodeOutOfRange, "must not exceed %s", max.String())
	}
	if scale >= 0 && !v.Decimal.Equal(v.Decimal.Truncate(scale)) {
		c.add(field, CodePrecision, "at most %d decimal places", scale)
	}
}

// Validate checks in and returns every violation found.
func Validate(in model.Input) Errors {
	c := &checker{}

	name := strings.TrimSpace(in.Name)
	if name == "" {
		c.add("name", CodeRequired, "name is required")
	} else if utf8.RuneCountInString(name) > MaxNameLength {
		c.add("name", CodeTooLong, "name must be at most %d characters", MaxNameLength)
	}

	switch {
	case in.Type == "":
		c.add("type", CodeRequired, "product type is required")
		return c.errs
	case !in.Type.Valid():
		c.add("type", CodeUnsupported, "unknown product type %s", in.Type)
		return c.errs
	case in.Type.IsTerm():
		c.term(in)
	case in.Type.IsExchange():
		c.exchange(in)
	case in.Type == model.TypeSwap:
		c.swap(in)
	}

	c.fee(in)
	return c.errs
}

func (c *checker) term(in model.Input) {
	c.currency("currency", in.Currency)
	c.positive("amount", in.Amount, MaxAmount, MoneyScale)
	c.positive("rate", in.Rate, MaxRate, MoneyScale)

	unitOK := false
	switch {
	case in.PeriodUnit == "":
		c.add("periodUnit", CodeRequired, "period unit is required")
	case !in.PeriodUnit.Valid():
		c.add("periodUnit", CodeUnsupported, "unknown period unit %s", in.PeriodUnit)
	default:
		unitOK = true
	}

	if in.Period == nil || *in.Period <= 0 {
		c.add("period", CodeRequired, "period must be a positive integer")
	} else if unitOK && *in.Period > in.PeriodUnit.MaxPeriod() {
		c.add("period", CodeOutOfRange, "period must not exceed %d %s",
			in.PeriodUnit.MaxPeriod(), in.PeriodUnit)
	}
}

func (c *checker) exchange(in model.Input) {
	sellOK := c.currency("sellCurrency", in.SellCurrency)
	buyOK := c.currency("buyCurrency", in.BuyCurrency)
	if sellOK && buyOK && in.SellCurrency == in.BuyCurrency {
		c.add("buyCurrency", CodeSameCurrency, "buy currency must differ from sell currency")
	}
	c.positive("sellAmount", in.SellAmount, MaxAmount, MoneyScale)
	c.positive("exchangeRate", in.ExchangeRate, MaxFXRate, -1)
}

func (c *checker) swap(in model.Input) {
	nearSellOK := c.currency("nearSellCurrency", in.NearSellCurrency)
	nearBuyOK := c.currency("nearBuyCurrency", in.NearBuyCurrency)
	if nearSellOK && nearBuyOK && in.NearSellCurrency == in.NearBuyCurrency {
		c.add("nearBuyCurrency", CodeSameCurrency, "near buy currency must differ from near sell currency")
	}
	c.positive("nearSellAmount", in.NearSellAmount, MaxAmount, MoneyScale)
	c.positive("nearRate", in.NearRate, MaxFXRate, -1)

	c.currency("farSellCurrency", in.FarSellCurrency)
	c.currency("farBuyCurrency", in.FarBuyCurrency)
	c.positive("farRate", in.FarRate, MaxFXRate, -1)

	if in.NearBuyCurrency != "" && in.FarSellCurrency != "" && in.NearBuyCurrency != in.FarSellCurrency {
		c.add("farSellCurrency", CodeCurrencyMismatch, "far sell currency must equal near buy currency")
	}
	if in.NearSellCurrency != "" && in.FarBuyCurrency != "" && in.NearSellCurrency != in.FarBuyCurrency {
		c.add("farBuyCurrency", CodeCurrencyMismatch, "far buy currency must equal near sell currency")
	}
}

func (c *checker) fee(in model.Input) {
	if in.FeeCurrency != "" && !currency.IsSupported(in.FeeCurrency) {
		c.add("feeCurrency", CodeUnsupported, "unsupported currency %s", in.FeeCurrency)
	}
	if !in.FeeAmount.Valid {
		return
	}
	amount := in.FeeAmount.Decimal
	if amount.IsNegative() {
		c.add("feeAmount", CodeOutOfRange, "fee must not be negative")
		return
	}
	if !amount.IsPositive() {
		return
	}
	if in.FeeCurrency == "" {
		c.add("feeCurrency", CodeRequired, "fee currency is required when a fee is entered")
	}
	if amount.GreaterThan(MaxAmount) {
		c.add("feeAmount", CodeOutOfRange, "must not exceed %s", MaxAmount.String())
	}
	if !amount.Equal(amount.Truncate(MoneyScale)) {
		c.add("feeAmount", CodePrecision, "at most %d decimal places", MoneyScale)
	}
}

// ValidateRate checks a reference-currency conversion rate entered on the
// summary view: 0.01 ≤ rate ≤ 9999.99.
func ValidateRate(rate decimal.Decimal) *FieldError {
	if rate.LessThan(MinConversionRate) || rate.GreaterThan(MaxFXRate) {
		return &FieldError{
			Field:   "rate",
			Code:    CodeOutOfRange,
			Message: fmt.Sprintf("rate must be between %s and %s", MinConversionRate, MaxFXRate),
		}
	}
	return nil
}
