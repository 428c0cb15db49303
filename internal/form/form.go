// Package form drives the add and edit forms as explicit commands.
//
// A Draft holds what the user has typed so far. Each OnFieldChanged call
// stores one field, applies the linkages between fields, recomputes the
// derived values and reports validation errors for the fields the user has
// already visited. Submit validates everything.
package form

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/atmx/product-calculator/internal/calc"
	"github.com/atmx/product-calculator/internal/model"
	"github.com/atmx/product-calculator/internal/validation"
)

// ErrUnknownField is returned for a field name the form does not have.
var ErrUnknownField = errors.New("form: unknown field")

// Update is the result of one field change.
type Update struct {
	Input   model.Input       `json:"input"`
	Derived calc.Derived      `json:"derived"`
	Errors  validation.Errors `json:"errors"`
	// Linked lists the fields the change filled in besides the edited one.
	Linked []string `json:"linked,omitempty"`
	// Hints holds placeholder text for rate fields, e.g. "请输入USD兑CNY汇率".
	Hints map[string]string `json:"hints,omitempty"`
}

// Draft is one form being filled in. It is not safe for concurrent use.
type Draft struct {
	input   model.Input
	touched map[string]bool
	// feePinned is set once the user picks a fee currency, which stops
	// the fee currency from following the variant currency.
	feePinned bool
}

// NewDraft starts an empty form for typ.
func NewDraft(typ model.Type) *Draft {
	return &Draft{
		input:   model.Input{Type: typ},
		touched: make(map[string]bool),
	}
}

// EditDraft starts a form pre-filled from a stored product.
func EditDraft(p model.Product) *Draft {
	return &Draft{
		input:     model.InputFromProduct(p),
		touched:   make(map[string]bool),
		feePinned: p.Fee != nil && p.Fee.FeeCurrency != "",
	}
}

// Input returns the current form values.
func (d *Draft) Input() model.Input { return d.input }

// Touched returns the visited fields, sorted.
func (d *Draft) Touched() []string {
	out := make([]string, 0, len(d.touched))
	for f := range d.touched {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

// OnFieldChanged stores value in field and returns the recomputed state.
// Numbers that do not parse are stored as unset, which validation then
// reports as missing.
func (d *Draft) OnFieldChanged(field, value string) (Update, error) {
	value = strings.TrimSpace(value)
	if err := d.set(field, value); err != nil {
		return Update{}, err
	}
	d.touched[field] = true
	if field == "feeCurrency" {
		d.feePinned = value != ""
	}
	linked := d.link(field)
	return d.update(linked), nil
}

// Submit validates every field and returns the input when it is clean.
func (d *Draft) Submit() (model.Input, validation.Errors) {
	for _, f := range fieldNames {
		d.touched[f] = true
	}
	if errs := validation.Validate(d.input); len(errs) > 0 {
		return d.input, errs
	}
	return d.input, nil
}

func (d *Draft) update(linked []string) Update {
	errs := validation.Validate(d.input).Only(d.touched)
	if errs == nil {
		errs = validation.Errors{}
	}
	return Update{
		Input:   d.input,
		Derived: calc.Preview(d.input),
		Errors:  errs,
		Linked:  linked,
		Hints:   rateHints(d.input),
	}
}

// link applies the dependent-field rules after field changed:
//   - a swap's far currencies mirror its near currencies;
//   - the fee currency follows the variant's primary currency
//     (term currency, spot/forward sell currency, swap near-buy currency)
//     until the user picks one.
func (d *Draft) link(field string) []string {
	in := &d.input
	var linked []string

	if in.Type == model.TypeSwap {
		switch field {
		case "nearSellCurrency":
			if in.NearSellCurrency != "" {
				in.FarBuyCurrency = in.NearSellCurrency
				linked = append(linked, "farBuyCurrency")
			}
		case "nearBuyCurrency":
			if in.NearBuyCurrency != "" {
				in.FarSellCurrency = in.NearBuyCurrency
				linked = append(linked, "farSellCurrency")
			}
		}
	}

	if !d.feePinned {
		var primary string
		switch {
		case in.Type.IsTerm() && field == "currency":
			primary = in.Currency
		case in.Type.IsExchange() && field == "sellCurrency":
			primary = in.SellCurrency
		case in.Type == model.TypeSwap && field == "nearBuyCurrency":
			primary = in.NearBuyCurrency
		}
		if primary != "" {
			in.FeeCurrency = primary
			linked = append(linked, "feeCurrency")
		}
	}
	return linked
}

func rateHints(in model.Input) map[string]string {
	hints := map[string]string{}
	switch {
	case in.Type.IsExchange():
		hints["exchangeRate"] = hint(in.SellCurrency, in.BuyCurrency, "请输入汇率")
	case in.Type == model.TypeSwap:
		hints["nearRate"] = hint(in.NearSellCurrency, in.NearBuyCurrency, "请输入近端汇率")
		hints["farRate"] = hint(in.NearBuyCurrency, in.NearSellCurrency, "请输入远端汇率")
	default:
		return nil
	}
	return hints
}

func hint(from, to, fallback string) string {
	if from == "" || to == "" {
		return fallback
	}
	return fmt.Sprintf("请输入%s兑%s汇率", from, to)
}

// fieldNames lists every form field in display order.
var fieldNames = []string{
	"type", "name",
	"currency", "amount", "rate", "period", "periodUnit",
	"sellCurrency", "buyCurrency", "sellAmount", "exchangeRate",
	"nearSellCurrency", "nearBuyCurrency", "nearSellAmount", "nearRate",
	"farSellCurrency", "farBuyCurrency", "farRate",
	"feeCurrency", "feeAmount",
}

func (d *Draft) set(field, value string) error {
	in := &d.input
	switch field {
	case "type":
		in.Type = model.Type(value)
	case "name":
		in.Name = value
	case "currency":
		in.Currency = strings.ToUpper(value)
	case "amount":
		in.Amount = parseDecimal(value)
	case "rate":
		in.Rate = parseDecimal(value)
	case "period":
		in.Period = parsePeriod(value)
	case "periodUnit":
		in.PeriodUnit = model.PeriodUnit(value)
	case "sellCurrency":
		in.SellCurrency = strings.ToUpper(value)
	case "buyCurrency":
		in.BuyCurrency = strings.ToUpper(value)
	case "sellAmount":
		in.SellAmount = parseDecimal(value)
	case "exchangeRate":
		in.ExchangeRate = parseDecimal(value)
	case "nearSellCurrency":
		in.NearSellCurrency = strings.ToUpper(value)
	case "nearBuyCurrency":
		in.NearBuyCurrency = strings.ToUpper(value)
	case "nearSellAmount":
		in.NearSellAmount = parseDecimal(value)
	case "nearRate":
		in.NearRate = parseDecimal(value)
	case "farSellCurrency":
		in.FarSellCurrency = strings.ToUpper(value)
	case "farBuyCurrency":
		in.FarBuyCurrency = strings.ToUpper(value)
	case "farRate":
		in.FarRate = parseDecimal(value)
	case "feeCurrency":
		in.FeeCurrency = strings.ToUpper(value)
	case "feeAmount":
		in.FeeAmount = parseDecimal(value)
	default:
		return fmt.Errorf("%w: %s", ErrUnknownField, field)
	}
	return nil
}

func parseDecimal(s string) decimal.NullDecimal {
	if s == "" {
		return model.Unset
	}
	v, err := decimal.NewFromString(s)
	if err != nil {
		return model.Unset
	}
	return model.Valid(v)
}

func parsePeriod(s string) *int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return nil
	}
	return &n
}

// Restore rebuilds a draft from posted form state, as a stateless client
// sends it back with every change. A visited feeCurrency counts as chosen.
func Restore(in model.Input, touched []string) *Draft {
	d := &Draft{input: in, touched: make(map[string]bool, len(touched))}
	for _, f := range touched {
		d.touched[f] = true
	}
	d.feePinned = d.touched["feeCurrency"] && in.FeeCurrency != ""
	return d
}

// State returns the current derived values and visited-field errors
// without changing anything.
func (d *Draft) State() Update {
	return d.update(nil)
}
