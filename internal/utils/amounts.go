package utils

import (
	"math"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

// ParseBaseUnits parses an unsigned base-unit integer string.
func ParseBaseUnits(amount string) (*big.Int, bool) {
	amount = strings.TrimSpace(amount)
	if amount == "" {
		return nil, false
	}
	for _, c := range amount {
		if c < '0' || c > '9' {
			return nil, false
		}
	}
	v, ok := new(big.Int).SetString(amount, 10)
	if !ok {
		return nil, false
	}
	return v, true
}

// SameAmount compares two base-unit strings numerically, so "0100" equals "100".
func SameAmount(a, b string) bool {
	x, ok := ParseBaseUnits(a)
	if !ok {
		return false
	}
	y, ok := ParseBaseUnits(b)
	if !ok {
		return false
	}
	return x.Cmp(y) == 0
}

// AmountFloat converts an integer or decimal amount string to float64.
func AmountFloat(amount string) (float64, bool) {
	if strings.TrimSpace(amount) == "" {
		return 0, false
	}
	d, err := decimal.NewFromString(strings.TrimSpace(amount))
	if err != nil {
		return 0, false
	}
	f, _ := d.Float64()
	return f, true
}

// PercentToBps converts a percentage to basis points, rounded to the nearest integer.
func PercentToBps(percent float64) int {
	return int(math.Round(percent * 100))
}

// FormatUnits renders a base-unit amount in human units. Invalid input renders as "".
func FormatUnits(amount string, decimals int32) string {
	v, ok := ParseBaseUnits(amount)
	if !ok {
		return ""
	}
	return decimal.NewFromBigInt(v, -decimals).String()
}

// ToBaseUnits converts a human-unit decimal string to base units, truncating extra precision.
func ToBaseUnits(amount string, decimals int32) (*big.Int, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(amount))
	if err != nil {
		return nil, err
	}
	return d.Shift(decimals).Truncate(0).BigInt(), nil
}
