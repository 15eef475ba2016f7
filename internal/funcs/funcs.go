package funcs

import (
	"fmt"
	"strings"
	"text/template"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var printer = message.NewPrinter(language.English)

var TemplateFuncs = template.FuncMap{
	"formatAmount": FormatAmount,
	"formatTime":   formatTime,
	"upper":        strings.ToUpper,
	"lower":        strings.ToLower,
}

// FormatAmount renders a currency value with thousand separators and
// a fixed two-decimal scale, e.g. 12500.5 -> "12,500.50".
func FormatAmount(amount float64) string {
	return printer.Sprintf("%.2f", amount)
}

func formatTime(format string, t time.Time) string {
	return t.Format(format)
}

// MaskIBAN keeps the country prefix and the last four characters visible,
// e.g. "TR320010009999901234567890" -> "TR32**************7890".
func MaskIBAN(iban string) string {
	if len(iban) < 8 {
		return iban
	}
	return fmt.Sprintf("%s%s%s", iban[:4], strings.Repeat("*", len(iban)-8), iban[len(iban)-4:])
}
