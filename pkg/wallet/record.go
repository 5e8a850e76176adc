package wallet

import (
	"fmt"
	"math/big"
	"strconv"
)

// Record is an on-chain record as returned by a wallet. Wallets disagree on
// layout: some put fields at the top level, others nest them under "data", and
// values may carry a .private or .public qualifier. Accessors accept both.
type Record map[string]interface{}

var (
	nameKeys      = []string{"recordName", "name", "type"}
	plaintextKeys = []string{"plaintext", "recordPlaintext"}
)

// Field returns a field value with its visibility qualifier removed.
func (r Record) Field(name string) (string, bool) {
	if value, ok := lookup(r, name); ok {
		return value, true
	}
	switch data := r["data"].(type) {
	case map[string]interface{}:
		return lookup(data, name)
	case Record:
		return lookup(data, name)
	}
	return "", false
}

// Literal returns a field value stripped of qualifier and type suffix.
func (r Record) Literal(name string) (string, bool) {
	value, ok := r.Field(name)
	if !ok {
		return "", false
	}
	return TrimLiteral(value), true
}

// Amount parses an integer field such as "100u128.private".
func (r Record) Amount(name string) (*big.Int, error) {
	value, ok := r.Literal(name)
	if !ok {
		return nil, fmt.Errorf("record has no field %q", name)
	}
	n, ok := new(big.Int).SetString(value, 10)
	if !ok {
		return nil, fmt.Errorf("record field %q is not an integer: %q", name, value)
	}
	return n, nil
}

// Name returns the record type tag.
func (r Record) Name() string {
	for _, key := range nameKeys {
		if value, ok := r[key].(string); ok && value != "" {
			return value
		}
	}
	return ""
}

// Plaintext returns the record plaintext when the wallet included it.
func (r Record) Plaintext() string {
	for _, key := range plaintextKeys {
		if value, ok := r[key].(string); ok && value != "" {
			return value
		}
	}
	return ""
}

func (r Record) Owner() string {
	owner, _ := r.Field("owner")
	return owner
}

func (r Record) IsSpent() bool {
	spent, _ := r["spent"].(bool)
	return spent
}

func lookup(m map[string]interface{}, name string) (string, bool) {
	value, ok := m[name]
	if !ok || value == nil {
		return "", false
	}

	switch v := value.(type) {
	case string:
		return StripVisibility(v), true
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), true
	case bool:
		return strconv.FormatBool(v), true
	default:
		return StripVisibility(fmt.Sprint(v)), true
	}
}
