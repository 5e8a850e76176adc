// Package amount converts between human decimal token amounts and integer
// base units. All arithmetic is arbitrary precision.
package amount

import (
	"errors"
	"fmt"
	"math/big"
	"regexp"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/shopspring/decimal"
)

// DisplayDigits is the number of fractional digits shown by ToDecimalString.
const DisplayDigits = 4

var (
	// ErrInvalidAmount is returned for malformed decimal or integer input.
	ErrInvalidAmount = errors.New("invalid amount")

	decimalPattern = regexp.MustCompile(`^[0-9]*\.?[0-9]*$`)
	integerPattern = regexp.MustCompile(`^[0-9]+$`)
)

// ToBaseUnits converts a decimal string such as "12.5" into an integer string
// of base units for a token with the given decimals. Fractional digits beyond
// decimals are truncated.
func ToBaseUnits(value string, decimals int) (string, error) {
	value = strings.TrimSpace(value)
	if decimals < 0 {
		return "", fmt.Errorf("%w: negative decimals %d", ErrInvalidAmount, decimals)
	}
	if !decimalPattern.MatchString(value) || strings.Trim(value, ".") == "" {
		return "", fmt.Errorf("%w: %q", ErrInvalidAmount, value)
	}

	whole, fraction, _ := strings.Cut(value, ".")
	if len(fraction) > decimals {
		fraction = fraction[:decimals]
	} else {
		fraction += strings.Repeat("0", decimals-len(fraction))
	}

	n, ok := new(big.Int).SetString("0"+whole+fraction, 10)
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrInvalidAmount, value)
	}
	return n.String(), nil
}

// Parse parses a base-unit integer string.
func Parse(base string) (*big.Int, error) {
	if !integerPattern.MatchString(base) {
		return nil, fmt.Errorf("%w: %q is not a base-unit integer", ErrInvalidAmount, base)
	}
	n, _ := new(big.Int).SetString(base, 10)
	return n, nil
}

// IsPositive reports whether base parses to an integer greater than zero.
func IsPositive(base string) bool {
	n, err := Parse(base)
	return err == nil && n.Sign() > 0
}

// ToDecimalString renders base units as a display decimal, truncated to
// DisplayDigits fractional digits: "12500000" with 6 decimals is "12.5000".
func ToDecimalString(base string, decimals int) (string, error) {
	d, err := toDecimal(base, decimals)
	if err != nil {
		return "", err
	}
	places := int32(decimals)
	if places > DisplayDigits {
		places = DisplayDigits
	}
	return d.Truncate(places).StringFixed(places), nil
}

// FormatUnits renders base units at full precision with trailing zeros
// removed. It is the exact inverse of ToBaseUnits.
func FormatUnits(base string, decimals int) (string, error) {
	d, err := toDecimal(base, decimals)
	if err != nil {
		return "", err
	}
	return d.String(), nil
}

// Humanize is ToDecimalString with thousands separators in the whole part.
func Humanize(base string, decimals int) (string, error) {
	display, err := ToDecimalString(base, decimals)
	if err != nil {
		return "", err
	}
	whole, fraction, hasFraction := strings.Cut(display, ".")
	n, _ := new(big.Int).SetString(whole, 10)
	out := humanize.BigComma(n)
	if hasFraction {
		out += "." + fraction
	}
	return out, nil
}

func toDecimal(base string, decimals int) (decimal.Decimal, error) {
	if decimals < 0 {
		return decimal.Decimal{}, fmt.Errorf("%w: negative decimals %d", ErrInvalidAmount, decimals)
	}
	n, err := Parse(base)
	if err != nil {
		return decimal.Decimal{}, err
	}
	return decimal.NewFromBigInt(n, -int32(decimals)), nil
}

// RatePrecision is the number of fractional digits of Rate.
const RatePrecision = 8

// Rate returns the price of one whole maker token in taker tokens, rounded to
// RatePrecision digits: 12.5 ALEO for 100 USDCx is a rate of "8".
func Rate(makerBase string, makerDecimals int, takerBase string, takerDecimals int) (string, error) {
	maker, err := toDecimal(makerBase, makerDecimals)
	if err != nil {
		return "", err
	}
	taker, err := toDecimal(takerBase, takerDecimals)
	if err != nil {
		return "", err
	}
	if maker.IsZero() {
		return "", fmt.Errorf("%w: zero maker amount", ErrInvalidAmount)
	}
	return taker.DivRound(maker, RatePrecision).String(), nil
}
