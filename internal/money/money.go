package money

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// MinorUnitExponent is the number of minor-unit digits (kobo per naira).
const MinorUnitExponent = 2

var (
	minorPerMajor = decimal.New(1, MinorUnitExponent)
	maxMinor      = decimal.NewFromInt(1 << 53)
)

// ParseMajor converts a major-unit amount such as "-50.25" into minor units.
// Amounts with more precision than one minor unit are rejected, not rounded.
func ParseMajor(s string) (int64, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("ParseMajor: %w", err)
	}

	minor := d.Mul(minorPerMajor)
	if !minor.Equal(minor.Truncate(0)) {
		return 0, fmt.Errorf("ParseMajor: %q has more than %d decimal places", s, MinorUnitExponent)
	}
	if minor.Abs().GreaterThan(maxMinor) {
		return 0, fmt.Errorf("ParseMajor: %q out of range", s)
	}
	return minor.IntPart(), nil
}

// FormatMinor renders minor units as a grouped major-unit string: 123456 -> "1,234.56".
func FormatMinor(amount int64) string {
	s := decimal.New(amount, -MinorUnitExponent).StringFixed(MinorUnitExponent)

	sign := ""
	if strings.HasPrefix(s, "-") {
		sign, s = "-", s[1:]
	}

	whole, frac, _ := strings.Cut(s, ".")
	var b strings.Builder
	for i, r := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	return sign + b.String() + "." + frac
}
