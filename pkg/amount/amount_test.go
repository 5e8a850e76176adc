package amount_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"ghostswap/pkg/amount"
)

func TestToBaseUnits(t *testing.T) {
	tests := []struct {
		name     string
		value    string
		decimals int
		expected string
	}{
		{"fraction padded", "12.5", 6, "12500000"},
		{"whole only", "3", 8, "300000000"},
		{"leading dot", ".25", 6, "250000"},
		{"trailing dot", "7.", 6, "7000000"},
		{"excess digits truncated", "1.1234567", 6, "1123456"},
		{"eighteen decimals", "0.000000000000000001", 18, "1"},
		{"zero decimals", "42", 0, "42"},
		{"leading zeros", "0001.5", 2, "150"},
		{"zero", "0", 6, "0"},
		{"huge", "123456789012345678901234567890.5", 18, "123456789012345678901234567890500000000000000000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := amount.ToBaseUnits(tt.value, tt.decimals)
			require.NoError(t, err)
			require.Equal(t, tt.expected, got)
		})
	}
}

func TestToBaseUnitsInvalid(t *testing.T) {
	for _, value := range []string{"", ".", "1.2.3", "-1", "1e6", "abc", "1,000", " . "} {
		t.Run(value, func(t *testing.T) {
			_, err := amount.ToBaseUnits(value, 6)
			require.ErrorIs(t, err, amount.ErrInvalidAmount)
		})
	}

	_, err := amount.ToBaseUnits("1", -1)
	require.ErrorIs(t, err, amount.ErrInvalidAmount)
}

func TestToDecimalString(t *testing.T) {
	tests := []struct {
		base     string
		decimals int
		expected string
	}{
		{"12500000", 6, "12.5000"},
		{"1", 6, "0.0000"},
		{"123456789", 8, "1.2345"},
		{"1000000000000000000", 18, "1.0000"},
		{"150", 2, "1.50"},
		{"42", 0, "42"},
		{"0", 6, "0.0000"},
	}

	for _, tt := range tests {
		got, err := amount.ToDecimalString(tt.base, tt.decimals)
		require.NoError(t, err)
		require.Equal(t, tt.expected, got, "%s/%d", tt.base, tt.decimals)
	}

	_, err := amount.ToDecimalString("12.5", 6)
	require.ErrorIs(t, err, amount.ErrInvalidAmount)
}

func TestAmountPrecisionRoundTrip(t *testing.T) {
	values := []string{"0", "1", "12.5", "0.000001", "999999.999999", "1.10", "250000.000100"}
	for _, decimals := range []int{6, 8, 18} {
		for _, value := range values {
			base, err := amount.ToBaseUnits(value, decimals)
			require.NoError(t, err)

			got, err := amount.FormatUnits(base, decimals)
			require.NoError(t, err)
			require.Equal(t, normalize(value), got, "%s with %d decimals", value, decimals)
		}
	}
}

func TestHumanize(t *testing.T) {
	got, err := amount.Humanize("1234567890000", 6)
	require.NoError(t, err)
	require.Equal(t, "1,234,567.8900", got)

	got, err = amount.Humanize("1234", 0)
	require.NoError(t, err)
	require.Equal(t, "1,234", got)
}

func TestIsPositive(t *testing.T) {
	require.True(t, amount.IsPositive("1"))
	require.True(t, amount.IsPositive("340282366920938463463374607431768211455"))
	require.False(t, amount.IsPositive("0"))
	require.False(t, amount.IsPositive("-5"))
	require.False(t, amount.IsPositive("1.5"))
	require.False(t, amount.IsPositive(""))
}

func normalize(value string) string {
	if strings.Contains(value, ".") {
		value = strings.TrimRight(value, "0")
		value = strings.TrimSuffix(value, ".")
	}
	value = strings.TrimLeft(value, "0")
	if value == "" || strings.HasPrefix(value, ".") {
		value = "0" + value
	}
	return value
}

func TestRate(t *testing.T) {
	tests := []struct {
		name          string
		maker         string
		makerDecimals int
		taker         string
		takerDecimals int
		want          string
	}{
		{"same decimals", "12500000", 6, "100000000", 6, "8"},
		{"mixed decimals", "100000000", 8, "15000000000000000000", 18, "15"},
		{"rounded", "3000000", 6, "1000000", 6, "0.33333333"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := amount.Rate(tt.maker, tt.makerDecimals, tt.taker, tt.takerDecimals)
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}

	_, err := amount.Rate("0", 6, "1", 6)
	require.ErrorIs(t, err, amount.ErrInvalidAmount)
	_, err = amount.Rate("1", 6, "x", 6)
	require.ErrorIs(t, err, amount.ErrInvalidAmount)
}
