package store

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"ghostswap/pkg/kv"
	"ghostswap/pkg/types"
)

func newOffer(id string, expiresAt int64) types.TradeOffer {
	credits, _ := types.TokenByID(types.Tokens, "credits")
	usdcx, _ := types.TokenByID(types.Tokens, "usdcx")
	return types.TradeOffer{
		OfferID:      id,
		MakerAddress: "aleo1maker",
		MakerToken:   credits,
		MakerAmount:  "12500000",
		TakerToken:   usdcx,
		TakerAmount:  "100000000",
		Nonce:        "nonce-" + id,
		CreatedAt:    1000,
		ExpiresAt:    expiresAt,
		Status:       types.OfferPending,
	}
}

func TestAddOfferPrependsAndPersists(t *testing.T) {
	backend := kv.NewMemoryStore()
	s, err := New(backend)
	require.NoError(t, err)

	require.NoError(t, s.AddOffer(newOffer("a", 5000)))
	require.NoError(t, s.AddOffer(newOffer("b", 5000)))

	offers := s.Offers()
	require.Len(t, offers, 2)
	require.Equal(t, "b", offers[0].OfferID)
	require.Equal(t, "a", offers[1].OfferID)

	err = s.AddOffer(newOffer("a", 5000))
	require.ErrorIs(t, err, ErrDuplicateOffer)

	reloaded, err := New(backend)
	require.NoError(t, err)
	require.Equal(t, offers, reloaded.Offers())
}

func TestUpdateStatus(t *testing.T) {
	s, err := New(kv.NewMemoryStore())
	require.NoError(t, err)
	require.NoError(t, s.AddOffer(newOffer("a", 5000)))

	require.NoError(t, s.UpdateStatus("a", types.OfferCancelled))
	offer, err := s.Offer("a")
	require.NoError(t, err)
	require.Equal(t, types.OfferCancelled, offer.Status)
	require.Equal(t, "12500000", offer.MakerAmount)

	// Unknown ids are a no-op.
	require.NoError(t, s.UpdateStatus("missing", types.OfferFulfilled))
	require.Len(t, s.Offers(), 1)
}

func TestAttachRecordPlaintext(t *testing.T) {
	s, err := New(kv.NewMemoryStore())
	require.NoError(t, err)
	require.NoError(t, s.AddOffer(newOffer("a", 5000)))

	require.NoError(t, s.AttachRecordPlaintext("a", "{ owner: aleo1maker.private }"))
	offer, err := s.Offer("a")
	require.NoError(t, err)
	require.Equal(t, "{ owner: aleo1maker.private }", offer.RecordPlaintext)

	err = s.AttachRecordPlaintext("missing", "x")
	require.ErrorIs(t, err, ErrOfferNotFound)
}

func TestAppendTransactionCapsLog(t *testing.T) {
	s, err := New(kv.NewMemoryStore())
	require.NoError(t, err)

	for i := 0; i < MaxTransactions+10; i++ {
		require.NoError(t, s.AppendTransaction(types.TransactionRecord{
			ID:        fmt.Sprintf("at1%d", i),
			Kind:      types.TxMint,
			Status:    types.TxPending,
			Timestamp: int64(i),
		}))
	}

	txs := s.Transactions()
	require.Len(t, txs, MaxTransactions)
	require.Equal(t, fmt.Sprintf("at1%d", MaxTransactions+9), txs[0].ID)
	require.Equal(t, "at110", txs[MaxTransactions-1].ID)
}

func TestUpdateTransactionStatus(t *testing.T) {
	s, err := New(kv.NewMemoryStore())
	require.NoError(t, err)
	require.NoError(t, s.AppendTransaction(types.TransactionRecord{ID: "at1x", Kind: types.TxCreate, Status: types.TxPending}))

	require.NoError(t, s.UpdateTransactionStatus("at1x", types.TxConfirmed))
	require.Equal(t, types.TxConfirmed, s.Transactions()[0].Status)

	require.Error(t, s.UpdateTransactionStatus("at1y", types.TxFailed))
}

func TestOffersByStatus(t *testing.T) {
	s, err := New(kv.NewMemoryStore())
	require.NoError(t, err)

	now := time.UnixMilli(10_000)
	require.NoError(t, s.AddOffer(newOffer("open", 20_000)))
	require.NoError(t, s.AddOffer(newOffer("stale", 5_000)))
	require.NoError(t, s.AddOffer(newOffer("done", 20_000)))
	require.NoError(t, s.UpdateStatus("done", types.OfferFulfilled))

	pending := s.OffersByStatus(types.OfferPending, now)
	require.Len(t, pending, 1)
	require.Equal(t, "open", pending[0].OfferID)

	expired := s.OffersByStatus(types.OfferExpired, now)
	require.Len(t, expired, 1)
	require.Equal(t, "stale", expired[0].OfferID)

	// Expiry is computed, never stored.
	stale, err := s.Offer("stale")
	require.NoError(t, err)
	require.Equal(t, types.OfferPending, stale.Status)
}

func TestReset(t *testing.T) {
	backend := kv.NewMemoryStore()
	s, err := New(backend)
	require.NoError(t, err)
	require.NoError(t, s.AddOffer(newOffer("a", 5000)))

	require.NoError(t, s.Reset())
	require.Empty(t, s.Offers())

	_, ok, err := backend.Get(StorageKey)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestLoadRejectsCorruptDocument(t *testing.T) {
	backend := kv.NewMemoryStore()
	require.NoError(t, backend.Set(StorageKey, "not json"))

	_, err := New(backend)
	require.Error(t, err)
}
