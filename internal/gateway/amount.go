package gateway

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// MinorUnits converts an amount to the gateway's integer representation
// (amount x 100). Amounts with more than two decimals are rejected.
func MinorUnits(amount decimal.Decimal) (int64, error) {
	shifted := amount.Shift(2)
	if !shifted.Equal(shifted.Truncate(0)) {
		return 0, fmt.Errorf("amount %s has sub-minor precision", amount.String())
	}
	return shifted.IntPart(), nil
}

func FromMinorUnits(minor int64) decimal.Decimal {
	return decimal.New(minor, -2)
}
