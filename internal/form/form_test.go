package form

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atmx/product-calculator/internal/model"
	"github.com/atmx/product-calculator/internal/validation"
)

func change(t *testing.T, d *Draft, field, value string) Update {
	t.Helper()
	u, err := d.OnFieldChanged(field, value)
	require.NoError(t, err)
	return u
}

func TestOnFieldChanged_DepositDerivesAsYouType(t *testing.T) {
	d := NewDraft(model.TypeDeposit)

	u := change(t, d, "amount", "10000")
	assert.False(t, u.Derived.Interest.Valid, "incomplete input leaves derived values unset")

	change(t, d, "rate", "3.65")
	change(t, d, "period", "12")
	u = change(t, d, "periodUnit", "month")

	require.True(t, u.Derived.Interest.Valid)
	assert.True(t, u.Derived.Interest.Decimal.Equal(decimal.NewFromInt(365)))
	assert.True(t, u.Derived.Principal.Decimal.Equal(decimal.NewFromInt(10365)))
}

func TestOnFieldChanged_ErrorsOnlyForTouchedFields(t *testing.T) {
	d := NewDraft(model.TypeDeposit)

	u := change(t, d, "amount", "1000000000")
	assert.Equal(t, []string{validation.CodeOutOfRange}, u.Errors.Codes("amount"))
	assert.False(t, u.Errors.Has("name"), "untouched fields stay quiet")
	assert.False(t, u.Errors.Has("rate"))

	u = change(t, d, "amount", "500")
	assert.Empty(t, u.Errors)
	assert.NotNil(t, u.Errors, "errors serialize as an empty list")
}

func TestOnFieldChanged_UnparseableNumberIsUnset(t *testing.T) {
	d := NewDraft(model.TypeDeposit)
	u := change(t, d, "amount", "abc")
	assert.False(t, u.Input.Amount.Valid)
	assert.Equal(t, []string{validation.CodeRequired}, u.Errors.Codes("amount"))

	u = change(t, d, "period", "1.5")
	assert.Nil(t, u.Input.Period)
}

func TestOnFieldChanged_UnknownField(t *testing.T) {
	_, err := NewDraft(model.TypeLoan).OnFieldChanged("colour", "red")
	assert.ErrorIs(t, err, ErrUnknownField)
}

func TestOnFieldChanged_SwapLinksFarCurrencies(t *testing.T) {
	d := NewDraft(model.TypeSwap)

	u := change(t, d, "nearSellCurrency", "usd")
	assert.Equal(t, "USD", u.Input.FarBuyCurrency)
	assert.Contains(t, u.Linked, "farBuyCurrency")

	u = change(t, d, "nearBuyCurrency", "CNY")
	assert.Equal(t, "CNY", u.Input.FarSellCurrency)
	assert.Equal(t, "CNY", u.Input.FeeCurrency, "fee follows the near-buy currency")
	assert.Equal(t, "请输入USD兑CNY汇率", u.Hints["nearRate"])
	assert.Equal(t, "请输入CNY兑USD汇率", u.Hints["farRate"])

	change(t, d, "nearSellAmount", "1000000")
	change(t, d, "nearRate", "7.20")
	u = change(t, d, "farRate", "7.25")
	require.True(t, u.Derived.FinalIncome.Valid)
	assert.Equal(t, "CNY", u.Derived.FinalIncomeCurrency)
	assert.True(t, u.Derived.FarSellAmount.Decimal.Equal(decimal.RequireFromString("137931.03")))
}

func TestOnFieldChanged_FeeCurrencyFollowsUntilPinned(t *testing.T) {
	d := NewDraft(model.TypeSpot)

	u := change(t, d, "sellCurrency", "CNY")
	assert.Equal(t, "CNY", u.Input.FeeCurrency)
	assert.Equal(t, "请输入汇率", u.Hints["exchangeRate"])

	u = change(t, d, "buyCurrency", "USD")
	assert.Equal(t, "CNY", u.Input.FeeCurrency, "buy currency does not drive the fee")

	change(t, d, "feeCurrency", "HKD")
	u = change(t, d, "sellCurrency", "EUR")
	assert.Equal(t, "HKD", u.Input.FeeCurrency, "a chosen fee currency sticks")
	assert.NotContains(t, u.Linked, "feeCurrency")
}

func TestSubmit_ValidatesEverything(t *testing.T) {
	d := NewDraft(model.TypeLoan)
	change(t, d, "amount", "5000")

	_, errs := d.Submit()
	require.NotEmpty(t, errs)
	for _, field := range []string{"name", "currency", "rate", "period", "periodUnit"} {
		assert.True(t, errs.Has(field), "missing error for %s", field)
	}
	assert.Contains(t, d.Touched(), "feeAmount")
}

func TestSubmit_Clean(t *testing.T) {
	d := NewDraft(model.TypeForward)
	for _, kv := range [][2]string{
		{"name", "远期结汇"},
		{"sellCurrency", "USD"},
		{"buyCurrency", "CNY"},
		{"sellAmount", "1000"},
		{"exchangeRate", "7.1"},
	} {
		change(t, d, kv[0], kv[1])
	}
	in, errs := d.Submit()
	assert.Empty(t, errs)
	assert.Equal(t, "USD", in.FeeCurrency)
}

func TestEditDraft_PrefillsAndPinsFee(t *testing.T) {
	p := model.Product{
		ID:   3,
		Type: model.TypeDeposit,
		Name: "定存",
		Term: &model.Term{
			Currency:   "CNY",
			Amount:     decimal.NewFromInt(10000),
			Rate:       decimal.RequireFromString("3.65"),
			Period:     1,
			PeriodUnit: model.UnitYear,
		},
		Fee: &model.Fee{FeeCurrency: "USD", FeeAmount: decimal.NewFromInt(1)},
	}
	d := EditDraft(p)
	assert.Empty(t, d.Touched())

	u := change(t, d, "currency", "EUR")
	assert.Equal(t, "USD", u.Input.FeeCurrency)
	assert.True(t, u.Derived.Interest.Decimal.Equal(decimal.NewFromInt(365)))
}

func TestRestore_KeepsTouchedAndPin(t *testing.T) {
	in := model.Input{Type: model.TypeSpot, SellCurrency: "USD", FeeCurrency: "HKD"}
	d := Restore(in, []string{"sellCurrency", "feeCurrency"})

	state := d.State()
	assert.False(t, state.Errors.Has("name"))
	assert.False(t, state.Errors.Has("buyCurrency"))

	u := change(t, d, "sellCurrency", "EUR")
	assert.Equal(t, "HKD", u.Input.FeeCurrency)

	d = Restore(in, nil)
	u = change(t, d, "sellCurrency", "EUR")
	assert.Equal(t, "EUR", u.Input.FeeCurrency)
}
