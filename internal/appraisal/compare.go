package appraisal

import (
	"fmt"
	"math"
	"strings"

	"github.com/opensource-finance/fuzzyprice/internal/domain"
)

// Compare relates an estimate to a reference price. A reference of zero or
// less means there is nothing to compare and yields nil.
func Compare(estimate, reference float64) *domain.PriceComparison {
	if reference <= 0 {
		return nil
	}

	diff := reference - estimate
	c := &domain.PriceComparison{
		ReferencePrice: reference,
		Difference:     diff,
		Percent:        diff / reference * 100,
		Direction:      domain.DirectionAbove,
	}
	if diff > 0 {
		c.Direction = domain.DirectionBelow
	}
	return c
}

// Describe renders a comparison as a sentence, e.g.
// "The recommended price is 12.50% less than the real price".
func Describe(c *domain.PriceComparison) string {
	if c == nil {
		return ""
	}
	word := "more"
	if c.Direction == domain.DirectionBelow {
		word = "less"
	}
	return fmt.Sprintf("The recommended price is %.2f%% %s than the real price", math.Abs(c.Percent), word)
}

// FormatBRL formats a price as Brazilian reais, e.g. "R$ 1.234.567,89".
func FormatBRL(v float64) string {
	sign := ""
	if v < 0 {
		sign = "-"
		v = -v
	}

	s := fmt.Sprintf("%.2f", v)
	whole, frac, _ := strings.Cut(s, ".")

	var b strings.Builder
	for i, r := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			b.WriteByte('.')
		}
		b.WriteRune(r)
	}
	return "R$ " + sign + b.String() + "," + frac
}
