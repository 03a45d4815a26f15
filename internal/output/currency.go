package output

import (
	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

// Currency formats amounts for display. Engine math stays in decimals;
// formatting is the only place values degrade to float.
type Currency struct {
	Code    string
	symbol  string
	printer *message.Printer
}

// symbolOverrides covers currencies where the code itself reads poorly in a
// table. Anything else falls back to its ISO code as suffix.
var symbolOverrides = map[string]string{
	"USD": "$",
	"EUR": "€",
	"GBP": "£",
	"JPY": "¥",
	"SEK": "kr",
	"NOK": "kr",
	"DKK": "kr",
}

// NewCurrency builds a formatter for the given ISO code and BCP-47 locale.
// Unknown locales fall back to English rather than failing a listing.
func NewCurrency(code, locale string) Currency {
	tag, err := language.Parse(locale)
	if err != nil {
		tag = language.English
	}
	symbol, ok := symbolOverrides[code]
	if !ok {
		symbol = code
	}
	return Currency{
		Code:    code,
		symbol:  symbol,
		printer: message.NewPrinter(tag),
	}
}

// Format renders an amount with two decimal places and the currency symbol.
func (c Currency) Format(v decimal.Decimal) string {
	f, _ := v.Float64()
	return c.printer.Sprint(number.Decimal(f,
		number.MinFractionDigits(2), number.MaxFractionDigits(2))) + " " + c.symbol
}
