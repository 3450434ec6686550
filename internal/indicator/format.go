package indicator

import (
	"strconv"

	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

var moneyPrinter = message.NewPrinter(language.English)

// FormatMoney renders an amount with thousands separators and exactly two
// decimals, e.g. "-1,234.50". Cents are taken from the exact decimal.
func FormatMoney(d decimal.Decimal) string {
	r := d.Round(2)
	abs := r.Abs()
	fixed := abs.StringFixed(2)
	grouped := moneyPrinter.Sprint(number.Decimal(abs.Truncate(0).IntPart()))
	out := grouped + fixed[len(fixed)-3:]
	if r.IsNegative() {
		return "-" + out
	}
	return out
}

// FormatCount renders a count as a plain integer.
func FormatCount(n int64) string {
	return strconv.FormatInt(n, 10)
}

// decimalOf reads a numeric JSON value exactly. Anything else is zero.
func decimalOf(v gjson.Result) decimal.Decimal {
	if v.Type != gjson.Number {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(v.Raw)
	if err != nil {
		return decimal.NewFromFloat(v.Float())
	}
	return d
}

// positiveInt reads an integer that may be encoded as a number or a numeric
// string. False, null, zero and non-numeric values are rejected.
func positiveInt(v gjson.Result) (int, bool) {
	var n int
	switch v.Type {
	case gjson.Number:
		n = int(v.Int())
	case gjson.String:
		i, err := strconv.Atoi(v.Str)
		if err != nil {
			return 0, false
		}
		n = i
	default:
		return 0, false
	}
	return n, n > 0
}
