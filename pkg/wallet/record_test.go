package wallet

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRecordFieldConventions(t *testing.T) {
	flat := Record{
		"recordName": "GhostToken",
		"owner":      "aleo1owner.private",
		"token_id":   "1field.private",
		"amount":     "2500000u128.private",
		"plaintext":  "{ owner: aleo1owner.private }",
		"spent":      true,
	}

	var nested Record
	require.NoError(t, json.Unmarshal([]byte(`{
		"name": "GhostToken",
		"owner": "aleo1owner",
		"data": {"token_id": "1field.public", "amount": "2500000u128"},
		"recordPlaintext": "{ owner: aleo1owner.private }"
	}`), &nested))

	for name, rec := range map[string]Record{"flat": flat, "nested": nested} {
		rec := rec
		t.Run(name, func(t *testing.T) {
			require.Equal(t, "GhostToken", rec.Name())
			require.Equal(t, "aleo1owner", rec.Owner())
			require.Equal(t, "{ owner: aleo1owner.private }", rec.Plaintext())

			tokenID, ok := rec.Field("token_id")
			require.True(t, ok)
			require.Equal(t, "1field", tokenID)

			literal, ok := rec.Literal("token_id")
			require.True(t, ok)
			require.Equal(t, "1", literal)

			amount, err := rec.Amount("amount")
			require.NoError(t, err)
			require.Equal(t, "2500000", amount.String())

			_, ok = rec.Field("order_id")
			require.False(t, ok)
		})
	}

	require.True(t, flat.IsSpent())
	require.False(t, nested.IsSpent())
}

func TestRecordTypeTag(t *testing.T) {
	require.Equal(t, "SwapTicket", Record{"type": "SwapTicket"}.Name())
	require.Equal(t, "TradeOffer", Record{"recordName": "TradeOffer", "name": "x"}.Name())
	require.Empty(t, Record{}.Name())
}

func TestRecordAmountErrors(t *testing.T) {
	rec := Record{"amount": "abcu128"}

	_, err := rec.Amount("amount")
	require.Error(t, err)

	_, err = rec.Amount("missing")
	require.Error(t, err)
}

func TestRecordNumericField(t *testing.T) {
	var rec Record
	require.NoError(t, json.Unmarshal([]byte(`{"data": {"amount": 42}}`), &rec))

	amount, err := rec.Amount("amount")
	require.NoError(t, err)
	require.Equal(t, "42", amount.String())
}
