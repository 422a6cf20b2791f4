package pricing

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

var half = decimal.NewFromFloat(0.5)

// CurrencyFormatter renders money with two decimals using locale separators and a fixed symbol.
type CurrencyFormatter struct {
	printer *message.Printer
	symbol  string
}

// NewCurrencyFormatter parses the BCP 47 locale and returns a formatter. Unknown locales fall back
// to Brazilian Portuguese.
func NewCurrencyFormatter(locale, symbol string) *CurrencyFormatter {
	tag, err := language.Parse(strings.TrimSpace(locale))
	if err != nil {
		tag = language.BrazilianPortuguese
	}
	symbol = strings.TrimSpace(symbol)
	if symbol == "" {
		symbol = "R$"
	}
	return &CurrencyFormatter{
		printer: message.NewPrinter(tag),
		symbol:  symbol,
	}
}

// Format rounds half away from zero to two decimals before rendering.
func (f *CurrencyFormatter) Format(amount decimal.Decimal) string {
	value, _ := amount.Round(2).Float64()
	return f.symbol + " " + f.printer.Sprint(number.Decimal(value, number.Scale(2)))
}

// PercentageLabel renders the discount relative to the original price, such as "20% ↓".
// Non-positive original prices render as "0% ↓".
func PercentageLabel(original, promotional decimal.Decimal) string {
	if !original.IsPositive() {
		return "0% ↓"
	}
	pct := original.Sub(promotional).Div(original).Mul(hundred)
	return fmt.Sprintf("%s%% ↓", pct.Add(half).Floor().String())
}

// ComparisonLabel renders "From <original> to <promotional>".
func (f *CurrencyFormatter) ComparisonLabel(original, promotional decimal.Decimal) string {
	return fmt.Sprintf("From %s to %s", f.Format(original), f.Format(promotional))
}
