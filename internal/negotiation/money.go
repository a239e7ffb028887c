package negotiation

import (
	"fmt"
	"strings"

	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// FormatAmount renders cents in the given currency for timeline titles and
// activity descriptions, e.g. "€ 6,500.00". Unknown codes fall back to
// "<CODE> 6500.00".
func FormatAmount(cents int64, code string) string {
	unit, err := currency.ParseISO(strings.ToUpper(code))
	if err != nil {
		return fmt.Sprintf("%s %.2f", code, float64(cents)/100)
	}
	p := message.NewPrinter(language.English)
	return p.Sprint(currency.Symbol(unit.Amount(float64(cents) / 100)))
}
