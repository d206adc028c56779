package orders

import "github.com/shopspring/decimal"

var hundred = decimal.NewFromInt(100)

// MinorUnits converts a currency amount to integer cents, rounding half away from zero.
func MinorUnits(d decimal.Decimal) int64 {
	return d.Mul(hundred).Round(0).IntPart()
}

func LineTotal(unit decimal.Decimal, qty int64) decimal.Decimal {
	return unit.Mul(decimal.NewFromInt(qty))
}

func parseAmount(s string) (decimal.Decimal, error) {
	return decimal.NewFromString(s)
}
