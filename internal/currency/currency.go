// Package currency handles the currency codes accepted by the product
// calculator and their display names.
package currency

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// Reference is the currency every other settlement currency is converted
// into for the grand total.
const Reference = "CNY"

// Supported currency codes, in picker order.
const (
	CNY = "CNY"
	USD = "USD"
	EUR = "EUR"
	GBP = "GBP"
	HKD = "HKD"
	JPY = "JPY"
	AUD = "AUD"
	CAD = "CAD"
	SGD = "SGD"
	CHF = "CHF"
)

// Currency is one selectable currency.
type Currency struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

var supported = []Currency{
	{CNY, "人民币"},
	{USD, "美元"},
	{EUR, "欧元"},
	{GBP, "英镑"},
	{HKD, "港币"},
	{JPY, "日元"},
	{AUD, "澳元"},
	{CAD, "加元"},
	{SGD, "新加坡元"},
	{CHF, "瑞士法郎"},
}

var names = func() map[string]string {
	m := make(map[string]string, len(supported))
	for _, c := range supported {
		m[c.Code] = c.Name
	}
	return m
}()

// codeRegex matches an ISO-4217 style alphabetic code.
var codeRegex = regexp.MustCompile(`^[A-Z]{3}$`)

var (
	ErrInvalidCode = errors.New("currency: invalid code format")
	ErrUnsupported = errors.New("currency: unsupported currency")
)

// Parse normalizes and validates a currency code.
func Parse(code string) (string, error) {
	c := strings.ToUpper(strings.TrimSpace(code))
	if !codeRegex.MatchString(c) {
		return "", fmt.Errorf("%w: %q", ErrInvalidCode, code)
	}
	if _, ok := names[c]; !ok {
		return "", fmt.Errorf("%w: %s", ErrUnsupported, c)
	}
	return c, nil
}

// IsSupported reports whether code is one of the supported currencies.
func IsSupported(code string) bool {
	_, ok := names[code]
	return ok
}

// Name returns the display name of code, or code itself when unknown.
func Name(code string) string {
	if n, ok := names[code]; ok {
		return n
	}
	return code
}

// Label returns "USD - 美元" style picker text.
func Label(code string) string {
	if n, ok := names[code]; ok {
		return code + " - " + n
	}
	return code
}

// All returns the supported currencies in picker order.
func All() []Currency {
	out := make([]Currency, len(supported))
	copy(out, supported)
	return out
}
