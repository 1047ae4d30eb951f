package pricing

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Price is a non-negative USD amount held as a fixed-point count of
// ten-thousandths of a dollar. All equality and ordering comparisons happen
// on this rounded representation, never on raw floats.
type Price int64

const (
	// Currency is the only supported currency code.
	Currency = "USD"
	// scale is the fixed-point resolution: 4 decimal places.
	scale = 10000
	// minAmount is the smallest chargeable amount in USD.
	minAmount = 0.001
)

var ErrInvalidPrice = errors.New("invalid price declaration")

// Parse reads a price declaration header of the form "<CUR> <amount>",
// e.g. "USD 0.01". The currency is matched case-insensitively. Amounts below
// the minimum are invalid. Valid amounts are rounded to 4 decimal places.
func Parse(header string) (Price, error) {
	parts := strings.Fields(header)
	if len(parts) != 2 {
		return 0, ErrInvalidPrice
	}
	if !strings.EqualFold(parts[0], Currency) {
		return 0, ErrInvalidPrice
	}
	amount, err := strconv.ParseFloat(parts[1], 64)
	if err != nil {
		return 0, ErrInvalidPrice
	}
	p, ok := FromFloat(amount)
	if !ok {
		return 0, ErrInvalidPrice
	}
	return p, nil
}

// FromFloat converts a raw decimal amount to a Price, rounding to 4 decimal
// places. Returns false for non-finite amounts and amounts below the minimum.
func FromFloat(amount float64) (Price, bool) {
	if math.IsNaN(amount) || math.IsInf(amount, 0) || amount < minAmount {
		return 0, false
	}
	return Price(math.Round(amount * scale)), true
}

// Format renders the price as "USD <amount>" with trailing zeros stripped,
// e.g. Price(100) -> "USD 0.01", Price(10000) -> "USD 1".
func Format(p Price) string {
	whole := int64(p) / scale
	frac := int64(p) % scale
	if frac == 0 {
		return Currency + " " + strconv.FormatInt(whole, 10)
	}
	amount := strings.TrimRight(fmt.Sprintf("%d.%04d", whole, frac), "0")
	return Currency + " " + amount
}

func (p Price) String() string {
	return Format(p)
}

// IsAcceptable reports whether an offered price covers the configured one.
// Used for maximum-offer declarations; exact offers compare with == instead.
func IsAcceptable(offered, configured Price) bool {
	return offered >= configured
}
