package wallet

import (
	"errors"
	"fmt"
	"strings"

	"github.com/thanhpk/randstr"
)

const (
	AddressPrefix = "aleo1"
	AddressLength = 63

	bech32Charset = "qpzry9x8gf2tvdw0s3jn54khce6mua7l"
)

var ErrInvalidAddress = errors.New("invalid Aleo address")

var literalSuffixes = []string{"u128", "u64", "u32", "u16", "u8", "field", "group", "scalar"}

// ValidateAddress checks the shape of an Aleo address: the aleo1 prefix, the
// length and the bech32 data charset.
func ValidateAddress(address string) error {
	if !strings.HasPrefix(address, AddressPrefix) || len(address) != AddressLength {
		return fmt.Errorf("%w: %q", ErrInvalidAddress, address)
	}
	for _, c := range address[len(AddressPrefix):] {
		if !strings.ContainsRune(bech32Charset, c) {
			return fmt.Errorf("%w: %q", ErrInvalidAddress, address)
		}
	}
	return nil
}

// GenerateAddress returns a random, well-formed address for sandbox accounts.
func GenerateAddress() string {
	return AddressPrefix + randstr.String(AddressLength-len(AddressPrefix), bech32Charset)
}

// GenerateTransactionID returns a random transaction id in the at1 format.
func GenerateTransactionID() string {
	return "at1" + randstr.String(58, bech32Charset)
}

// U128 renders a base-unit integer as a u128 literal.
func U128(value string) string {
	return TrimLiteral(value) + "u128"
}

// Field renders a value as a field literal. Values already carrying the
// suffix are returned as is.
func Field(value string) string {
	return TrimLiteral(value) + "field"
}

// StripVisibility removes a trailing .private or .public qualifier.
func StripVisibility(value string) string {
	value = strings.TrimSpace(value)
	value = strings.TrimSuffix(value, ".private")
	return strings.TrimSuffix(value, ".public")
}

// TrimLiteral strips the visibility qualifier and the type suffix of a
// literal, so "100u128.private" becomes "100".
func TrimLiteral(value string) string {
	value = StripVisibility(value)
	for _, suffix := range literalSuffixes {
		if strings.HasSuffix(value, suffix) {
			return strings.TrimSuffix(value, suffix)
		}
	}
	return value
}

// ShortenAddress renders the first six and last four characters of an address.
func ShortenAddress(address string) string {
	if len(address) < 12 {
		return address
	}
	return address[:6] + "..." + address[len(address)-4:]
}

// ExplorerURL links an address on the block explorer at base.
func ExplorerURL(base, address string) string {
	if base == "" || address == "" {
		return ""
	}
	return strings.TrimRight(base, "/") + "/address/" + address
}
