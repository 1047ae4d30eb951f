package pricing

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_Valid(t *testing.T) {
	tests := []struct {
		header string
		want   Price
	}{
		{"USD 0.01", 100},
		{"usd 0.01", 100},
		{"USD 0.0100", 100},
		{"Usd 1", 10000},
		{"USD 0.001", 10},
		{"USD 10000", 100000000},
		{"USD 0.12345", 1235}, // rounded to 4 decimal places
		{"  USD   0.05  ", 500},
	}
	for _, tt := range tests {
		p, err := Parse(tt.header)
		require.NoError(t, err, "header %q", tt.header)
		assert.Equal(t, tt.want, p, "header %q", tt.header)
	}
}

func TestParse_Invalid(t *testing.T) {
	headers := []string{
		"",
		"USD",
		"USD 1 2",
		"EUR 5",
		"USD abc",
		"USD 0.0001",
		"USD 0.0009",
		"USD -1",
		"USD NaN",
		"USD Inf",
		"USD +Inf",
		"5 USD",
	}
	for _, header := range headers {
		_, err := Parse(header)
		assert.ErrorIs(t, err, ErrInvalidPrice, "header %q", header)
	}
}

func TestParse_RoundingUnifiesOffers(t *testing.T) {
	a, err := Parse("usd 0.01")
	require.NoError(t, err)
	b, err := Parse("USD 0.0100")
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.True(t, IsAcceptable(a, b))
	assert.True(t, IsAcceptable(b, a))
}

func TestFormat(t *testing.T) {
	tests := []struct {
		price Price
		want  string
	}{
		{100, "USD 0.01"},
		{10000, "USD 1"},
		{1, "USD 0.0001"},
		{10, "USD 0.001"},
		{15000, "USD 1.5"},
		{12345, "USD 1.2345"},
		{100000000, "USD 10000"},
		{100500, "USD 10.05"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Format(tt.price), "price %d", tt.price)
	}
}

func TestParseFormat_RoundTrip(t *testing.T) {
	// Full sweep of the low range, sparse sweep up to USD 10000.
	for units := Price(10); units <= 10000; units++ {
		roundTrip(t, units)
	}
	for units := Price(10007); units <= 100000000; units += 99991 {
		roundTrip(t, units)
	}
}

func roundTrip(t *testing.T, p Price) {
	t.Helper()
	parsed, err := Parse(Format(p))
	require.NoError(t, err, "price %d", p)
	if parsed != p {
		t.Fatalf("round trip failed for %d: got %d (%s)", p, parsed, Format(p))
	}
}

func TestIsAcceptable(t *testing.T) {
	assert.True(t, IsAcceptable(100, 100))
	assert.True(t, IsAcceptable(200, 100))
	assert.False(t, IsAcceptable(99, 100))
}

func TestFromFloat(t *testing.T) {
	p, ok := FromFloat(0.01)
	require.True(t, ok)
	assert.Equal(t, Price(100), p)

	_, ok = FromFloat(0.0009)
	assert.False(t, ok)

	// rounded up to the exact fixed-point value
	p, ok = FromFloat(0.00995)
	require.True(t, ok)
	assert.Equal(t, Price(100), p)
}

func TestString(t *testing.T) {
	assert.Equal(t, "USD 0.01", fmt.Sprint(Price(100)))
}
