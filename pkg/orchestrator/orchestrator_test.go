package orchestrator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"ghostswap/pkg/amount"
	"ghostswap/pkg/kv"
	"ghostswap/pkg/link"
	"ghostswap/pkg/store"
	"ghostswap/pkg/types"
	"ghostswap/pkg/wallet"
)

func token(id string) types.Token {
	t, _ := types.TokenByID(types.Tokens, id)
	return t
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Origin = "https://ghostswap.test"
	cfg.RefreshDelay = 5 * time.Millisecond
	return cfg
}

type party struct {
	wallet *wallet.Sandbox
	store  *store.Store
	orch   *Orchestrator
}

func newParty(t *testing.T, ledger *wallet.Ledger, connect bool) *party {
	t.Helper()
	sb, err := wallet.NewSandbox(ledger, wallet.GenerateAddress())
	require.NoError(t, err)
	if connect {
		_, err = sb.Connect(context.Background())
		require.NoError(t, err)
	}
	st, err := store.New(kv.NewMemoryStore())
	require.NoError(t, err)

	o := New(sb, st, testConfig())
	t.Cleanup(o.Close)
	return &party{wallet: sb, store: st, orch: o}
}

func newLedger(t *testing.T) *wallet.Ledger {
	t.Helper()
	ledger, err := wallet.NewLedger(nil)
	require.NoError(t, err)
	return ledger
}

func TestSwapEndToEnd(t *testing.T) {
	ctx := context.Background()
	ledger := newLedger(t)
	maker := newParty(t, ledger, true)
	taker := newParty(t, ledger, true)

	_, err := maker.orch.Mint(ctx, "credits", "20000000")
	require.NoError(t, err)
	_, err = taker.orch.Mint(ctx, "usdcx", "150000000")
	require.NoError(t, err)

	offer, shareURL, err := maker.orch.CreateOffer(ctx, token("credits"), "12500000", token("usdcx"), "100000000", 24)
	require.NoError(t, err)
	require.NotContains(t, offer.OfferID, "offer_")

	stored, err := maker.store.Offer(offer.OfferID)
	require.NoError(t, err)
	require.Equal(t, types.OfferPending, stored.Status)

	txs := maker.store.Transactions()
	require.Len(t, txs, 2)
	require.Equal(t, types.TxCreate, txs[0].Kind)
	require.Equal(t, offer.OfferID, txs[0].ID)

	raw, ok := link.ExtractToken(shareURL)
	require.True(t, ok)
	decoded, err := link.Decode(raw, types.Tokens)
	require.NoError(t, err)
	require.Equal(t, offer.OfferID, decoded.OfferID)
	require.Empty(t, decoded.RecordPlaintext)

	_, err = maker.orch.IssueTicket(ctx, stored, taker.wallet.Account())
	require.NoError(t, err)
	maker.orch.Wait()

	stored, err = maker.store.Offer(offer.OfferID)
	require.NoError(t, err)
	require.NotEmpty(t, stored.RecordPlaintext)

	regenerated, err := link.ShareableURL(testConfig().Origin, &stored)
	require.NoError(t, err)
	raw, _ = link.ExtractToken(regenerated)
	claimed, err := link.Decode(raw, types.Tokens)
	require.NoError(t, err)
	require.Equal(t, stored.RecordPlaintext, claimed.RecordPlaintext)

	_, err = taker.orch.ExecuteSwap(ctx, *claimed, token("usdcx"), claimed.TakerAmount)
	require.NoError(t, err)

	fulfilled, err := taker.store.Offer(offer.OfferID)
	require.NoError(t, err)
	require.Equal(t, types.OfferFulfilled, fulfilled.Status)

	makerBalances, err := maker.orch.Balances(ctx)
	require.NoError(t, err)
	require.Equal(t, "7500000", makerBalances["credits"].String())
	require.Equal(t, "100000000", makerBalances["usdcx"].String())

	takerBalances, err := taker.orch.Balances(ctx)
	require.NoError(t, err)
	require.Equal(t, "12500000", takerBalances["credits"].String())
	require.Equal(t, "50000000", takerBalances["usdcx"].String())
	require.Equal(t, "0", takerBalances["weth"].String())

	updated, err := maker.orch.SyncTransactions(ctx)
	require.NoError(t, err)
	require.Equal(t, 3, updated)
	for _, tx := range maker.store.Transactions() {
		require.Equal(t, types.TxConfirmed, tx.Status)
	}
}

func TestCancelOfferRefunds(t *testing.T) {
	ctx := context.Background()
	maker := newParty(t, newLedger(t), true)

	_, err := maker.orch.Mint(ctx, "wbtc", "100000000")
	require.NoError(t, err)
	offer, _, err := maker.orch.CreateOffer(ctx, token("wbtc"), "100000000", token("weth"), "15000000000000000000", 1)
	require.NoError(t, err)

	balances, err := maker.orch.Balances(ctx)
	require.NoError(t, err)
	require.Equal(t, "0", balances["wbtc"].String())

	_, err = maker.orch.CancelOffer(ctx, *offer)
	require.NoError(t, err)

	stored, err := maker.store.Offer(offer.OfferID)
	require.NoError(t, err)
	require.Equal(t, types.OfferCancelled, stored.Status)

	balances, err = maker.orch.Balances(ctx)
	require.NoError(t, err)
	require.Equal(t, "100000000", balances["wbtc"].String())

	_, err = maker.orch.CancelOffer(ctx, stored)
	require.ErrorIs(t, err, ErrOfferNotOpen)
}

func TestWalletNotConnected(t *testing.T) {
	ctx := context.Background()
	p := newParty(t, newLedger(t), false)
	offer := link.NewOffer(wallet.GenerateAddress(), token("credits"), "1", token("usdcx"), "1", time.Hour, time.Now())

	_, err := p.orch.Mint(ctx, "credits", "1")
	require.ErrorIs(t, err, ErrWalletNotConnected)
	_, _, err = p.orch.CreateOffer(ctx, token("credits"), "1", token("usdcx"), "1", 1)
	require.ErrorIs(t, err, ErrWalletNotConnected)
	_, err = p.orch.IssueTicket(ctx, *offer, wallet.GenerateAddress())
	require.ErrorIs(t, err, ErrWalletNotConnected)
	_, err = p.orch.ExecuteSwap(ctx, *offer, token("usdcx"), "1")
	require.ErrorIs(t, err, ErrWalletNotConnected)
	_, err = p.orch.CancelOffer(ctx, *offer)
	require.ErrorIs(t, err, ErrWalletNotConnected)
	_, err = p.orch.Balances(ctx)
	require.ErrorIs(t, err, ErrWalletNotConnected)
}

func TestRecordNotFound(t *testing.T) {
	ctx := context.Background()
	ledger := newLedger(t)
	maker := newParty(t, ledger, true)
	taker := newParty(t, ledger, true)

	_, _, err := maker.orch.CreateOffer(ctx, token("credits"), "12500000", token("usdcx"), "100000000", 24)
	require.ErrorIs(t, err, ErrRecordNotFound)
	require.Contains(t, err.Error(), "ALEO token record with at least 12.5 ALEO")
	require.Contains(t, err.Error(), "mint ALEO")

	_, err = maker.orch.Mint(ctx, "credits", "10000000")
	require.NoError(t, err)
	_, _, err = maker.orch.CreateOffer(ctx, token("credits"), "12500000", token("usdcx"), "100000000", 24)
	require.ErrorIs(t, err, ErrRecordNotFound)
	require.Contains(t, err.Error(), "largest record holds 10 ALEO")
	require.Empty(t, maker.store.Offers())

	offer, _, err := maker.orch.CreateOffer(ctx, token("credits"), "5000000", token("usdcx"), "100000000", 24)
	require.NoError(t, err)

	// No ticket yet.
	_, err = taker.orch.ExecuteSwap(ctx, *offer, token("usdcx"), offer.TakerAmount)
	var notFound *RecordNotFoundError
	require.ErrorAs(t, err, &notFound)
	require.Contains(t, notFound.Record, "swap ticket")
	require.Contains(t, notFound.Hint, taker.wallet.Account())

	_, err = maker.orch.IssueTicket(ctx, *offer, taker.wallet.Account())
	require.NoError(t, err)
	maker.orch.Wait()

	// Ticket held but no payment tokens.
	_, err = taker.orch.ExecuteSwap(ctx, *offer, token("usdcx"), offer.TakerAmount)
	require.ErrorAs(t, err, &notFound)
	require.Contains(t, notFound.Record, "USDCx token record")

	// Payment held but the link carries no offer record.
	_, err = taker.orch.Mint(ctx, "usdcx", offer.TakerAmount)
	require.NoError(t, err)
	_, err = taker.orch.ExecuteSwap(ctx, *offer, token("usdcx"), offer.TakerAmount)
	require.ErrorAs(t, err, &notFound)
	require.Contains(t, notFound.Record, "offer record plaintext")
}

func TestPreconditions(t *testing.T) {
	ctx := context.Background()
	ledger := newLedger(t)
	maker := newParty(t, ledger, true)
	other := newParty(t, ledger, true)

	_, err := maker.orch.Mint(ctx, "doge", "1")
	require.ErrorIs(t, err, ErrUnknownToken)
	_, err = maker.orch.Mint(ctx, "credits", "0")
	require.ErrorIs(t, err, amount.ErrInvalidAmount)

	_, _, err = maker.orch.CreateOffer(ctx, token("credits"), "1", token("credits"), "1", 1)
	require.ErrorIs(t, err, link.ErrInvalidOffer)
	_, _, err = maker.orch.CreateOffer(ctx, token("credits"), "1", token("usdcx"), "1", 0)
	require.ErrorIs(t, err, link.ErrInvalidOffer)

	offer := link.NewOffer(maker.wallet.Account(), token("credits"), "10", token("usdcx"), "20", time.Hour, time.Now())
	offer.OfferID = "at1offer"

	_, err = other.orch.IssueTicket(ctx, *offer, other.wallet.Account())
	require.ErrorIs(t, err, ErrNotMaker)
	_, err = other.orch.CancelOffer(ctx, *offer)
	require.ErrorIs(t, err, ErrNotMaker)
	_, err = maker.orch.IssueTicket(ctx, *offer, "aleo1bad")
	require.ErrorIs(t, err, wallet.ErrInvalidAddress)

	_, err = other.orch.ExecuteSwap(ctx, *offer, token("weth"), "20")
	require.ErrorIs(t, err, link.ErrInvalidOffer)
	_, err = other.orch.ExecuteSwap(ctx, *offer, token("usdcx"), "19")
	require.ErrorIs(t, err, link.ErrInvalidOffer)

	expired := *offer
	expired.CreatedAt -= 3 * time.Hour.Milliseconds()
	expired.ExpiresAt = types.NowMillis(time.Now().Add(-time.Hour))
	_, err = other.orch.ExecuteSwap(ctx, expired, token("usdcx"), "20")
	require.ErrorIs(t, err, link.ErrExpiredOffer)
	_, err = maker.orch.IssueTicket(ctx, expired, other.wallet.Account())
	require.ErrorIs(t, err, ErrOfferNotOpen)
}

type mockWallet struct {
	mock.Mock
}

func (m *mockWallet) Connected() bool  { return m.Called().Bool(0) }
func (m *mockWallet) Connecting() bool { return m.Called().Bool(0) }
func (m *mockWallet) Address() string  { return m.Called().String(0) }

func (m *mockWallet) Disconnect(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *mockWallet) RequestRecords(ctx context.Context, programID string, includePlaintext bool) ([]wallet.Record, error) {
	args := m.Called(ctx, programID, includePlaintext)
	records, _ := args.Get(0).([]wallet.Record)
	return records, args.Error(1)
}

func (m *mockWallet) ExecuteTransaction(ctx context.Context, tx wallet.Transaction) (string, error) {
	args := m.Called(ctx, tx)
	return args.String(0), args.Error(1)
}

func newMockSetup(t *testing.T) (*mockWallet, *store.Store, *Orchestrator, *types.TradeOffer) {
	t.Helper()
	maker := wallet.GenerateAddress()
	offer := link.NewOffer(maker, token("credits"), "1000000", token("usdcx"), "2000000", time.Hour, time.Now())
	offer.OfferID = "at1offer"

	record := wallet.Record{
		"recordName": wallet.RecordOffer,
		"plaintext":  "{ offer record }",
		"data":       map[string]interface{}{"order_id": link.NonceField(offer.Nonce) + ".private"},
	}

	w := &mockWallet{}
	w.On("Connected").Return(true)
	w.On("Address").Return(maker)
	w.On("RequestRecords", mock.Anything, wallet.ProgramID, true).Return([]wallet.Record{record}, nil)

	st, err := store.New(kv.NewMemoryStore())
	require.NoError(t, err)
	require.NoError(t, st.AddOffer(*offer))

	o := New(w, st, testConfig())
	t.Cleanup(o.Close)
	return w, st, o, offer
}

func TestTransactionRejectedLeavesStoreUntouched(t *testing.T) {
	ctx := context.Background()
	w, st, o, offer := newMockSetup(t)

	w.On("ExecuteTransaction", mock.Anything, mock.MatchedBy(func(tx wallet.Transaction) bool {
		return tx.Function == wallet.FnCancel && tx.Fee == 300000 && tx.Inputs[0] == "{ offer record }"
	})).Return("", errors.New("user declined")).Once()

	_, err := o.CancelOffer(ctx, *offer)
	require.ErrorIs(t, err, ErrTransactionRejected)
	var rejected *TransactionRejectedError
	require.ErrorAs(t, err, &rejected)
	require.Equal(t, wallet.FnCancel, rejected.Function)
	require.Contains(t, err.Error(), "user declined")

	stored, err := st.Offer(offer.OfferID)
	require.NoError(t, err)
	require.Equal(t, types.OfferPending, stored.Status)
	require.Empty(t, st.Transactions())

	state := o.Action(types.TxCancel, offer.OfferID)
	require.Equal(t, ActionError, state.Status)
	require.ErrorIs(t, state.Err, ErrTransactionRejected)
	w.AssertExpectations(t)
}

func TestDuplicateSubmissionRejected(t *testing.T) {
	ctx := context.Background()
	w, st, o, offer := newMockSetup(t)

	started := make(chan struct{})
	release := make(chan struct{})
	w.On("ExecuteTransaction", mock.Anything, mock.Anything).
		Run(func(mock.Arguments) {
			close(started)
			<-release
		}).
		Return("at1cancel", nil).Once()

	done := make(chan error, 1)
	go func() {
		_, err := o.CancelOffer(ctx, *offer)
		done <- err
	}()

	<-started
	require.Equal(t, ActionInFlight, o.Action(types.TxCancel, offer.OfferID).Status)

	_, err := o.CancelOffer(ctx, *offer)
	require.ErrorIs(t, err, ErrOperationInFlight)

	// Other operations on the same offer wait for the lock.
	short, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	_, err = o.IssueTicket(short, *offer, wallet.GenerateAddress())
	require.ErrorIs(t, err, context.DeadlineExceeded)

	close(release)
	require.NoError(t, <-done)
	require.Equal(t, ActionIdle, o.Action(types.TxCancel, offer.OfferID).Status)

	stored, err := st.Offer(offer.OfferID)
	require.NoError(t, err)
	require.Equal(t, types.OfferCancelled, stored.Status)
	require.Len(t, st.Transactions(), 1)
}

func TestFeesFromConfig(t *testing.T) {
	ctx := context.Background()
	w := &mockWallet{}
	w.On("Connected").Return(true)
	w.On("Address").Return(wallet.GenerateAddress())
	w.On("ExecuteTransaction", mock.Anything, wallet.Transaction{
		Program:  wallet.ProgramID,
		Function: wallet.FnMint,
		Inputs:   []string{"2field", "5000000u128"},
		Fee:      123,
	}).Return("at1mint", nil).Once()

	st, err := store.New(kv.NewMemoryStore())
	require.NoError(t, err)
	cfg := testConfig()
	cfg.Fees = map[string]uint64{wallet.FnMint: 123}
	o := New(w, st, cfg)
	defer o.Close()

	txID, err := o.Mint(ctx, "usdcx", "5000000")
	require.NoError(t, err)
	require.Equal(t, "at1mint", txID)
	require.Equal(t, uint64(750000), o.fee(wallet.FnSwap))
	w.AssertExpectations(t)
}

func TestSyncWithoutStatusSupport(t *testing.T) {
	_, _, o, _ := newMockSetup(t)
	updated, err := o.SyncTransactions(context.Background())
	require.NoError(t, err)
	require.Zero(t, updated)
}
