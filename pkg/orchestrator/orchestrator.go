// Package orchestrator turns user intents into program calls: it finds the
// wallet records each call needs, assembles positional inputs, submits them
// and records the outcome in the offer store.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/andres-erbsen/clock"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"

	"ghostswap/pkg/amount"
	"ghostswap/pkg/link"
	"ghostswap/pkg/store"
	"ghostswap/pkg/types"
	"ghostswap/pkg/wallet"
)

const (
	DefaultRefreshDelay = 3 * time.Second
	DefaultOrigin       = "https://ghostswap.app"
)

// DefaultFees are the program call fees in microcredits.
var DefaultFees = map[string]uint64{
	wallet.FnCreate:      500000,
	wallet.FnIssueTicket: 300000,
	wallet.FnSwap:        750000,
	wallet.FnCancel:      300000,
	wallet.FnMint:        300000,
}

// Config holds orchestrator settings.
type Config struct {
	// Origin is the base of shareable claim URLs.
	Origin string
	// Fees per program function, in microcredits. Missing entries fall back
	// to DefaultFees.
	Fees map[string]uint64
	// RefreshDelay is the wait before each record refresh attempt after a
	// ticket is issued.
	RefreshDelay time.Duration
	Tokens       []types.Token
}

func DefaultConfig() Config {
	return Config{
		Origin:       DefaultOrigin,
		Fees:         DefaultFees,
		RefreshDelay: DefaultRefreshDelay,
		Tokens:       types.Tokens,
	}
}

// Orchestrator runs program calls against a wallet. Calls on different
// subjects run in parallel; calls on the same offer are serialized.
type Orchestrator struct {
	wallet wallet.Capability
	store  *store.Store
	cfg    Config
	clock  clock.Clock
	log    *log.Entry

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	closed   bool
	locks    map[string]*semaphore.Weighted
	inflight map[actionKey]struct{}
	failures map[actionKey]error
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

func WithClock(c clock.Clock) Option {
	return func(o *Orchestrator) { o.clock = c }
}

// New creates an orchestrator over w and st.
func New(w wallet.Capability, st *store.Store, cfg Config, opts ...Option) *Orchestrator {
	if cfg.Origin == "" {
		cfg.Origin = DefaultOrigin
	}
	if cfg.RefreshDelay <= 0 {
		cfg.RefreshDelay = DefaultRefreshDelay
	}
	if len(cfg.Tokens) == 0 {
		cfg.Tokens = types.Tokens
	}

	ctx, cancel := context.WithCancel(context.Background())
	o := &Orchestrator{
		wallet:   w,
		store:    st,
		cfg:      cfg,
		clock:    clock.New(),
		log:      log.WithField("component", "orchestrator"),
		ctx:      ctx,
		cancel:   cancel,
		locks:    make(map[string]*semaphore.Weighted),
		inflight: make(map[actionKey]struct{}),
		failures: make(map[actionKey]error),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func (o *Orchestrator) fee(function string) uint64 {
	if fee, ok := o.cfg.Fees[function]; ok && fee > 0 {
		return fee
	}
	return DefaultFees[function]
}

func (o *Orchestrator) requireConnected() (string, error) {
	if !o.wallet.Connected() || o.wallet.Address() == "" {
		return "", ErrWalletNotConnected
	}
	return o.wallet.Address(), nil
}

func (o *Orchestrator) records(ctx context.Context) ([]wallet.Record, error) {
	records, err := o.wallet.RequestRecords(ctx, wallet.ProgramID, true)
	if err != nil {
		return nil, fmt.Errorf("failed to request records: %w", err)
	}
	return records, nil
}

func (o *Orchestrator) submit(ctx context.Context, function string, inputs []string) (string, error) {
	tx := wallet.Transaction{
		Program:  wallet.ProgramID,
		Function: function,
		Inputs:   inputs,
		Fee:      o.fee(function),
	}

	o.log.WithFields(log.Fields{
		"function": function,
		"inputs":   len(inputs),
		"fee":      tx.Fee,
	}).Debug("submitting transaction")

	txID, err := o.wallet.ExecuteTransaction(ctx, tx)
	if err != nil {
		return "", &TransactionRejectedError{Function: function, Err: err}
	}
	return txID, nil
}

// logTransaction appends a pending record to the transaction log. The call
// already went through, so failures are only logged.
func (o *Orchestrator) logTransaction(txID string, kind types.TxKind, offerID string) {
	err := o.store.AppendTransaction(types.TransactionRecord{
		ID:        txID,
		Kind:      kind,
		Status:    types.TxPending,
		Timestamp: types.NowMillis(o.clock.Now()),
		OfferID:   offerID,
	})
	if err != nil {
		o.log.WithError(err).WithField("tx", txID).Warn("failed to log transaction")
	}
}

func (o *Orchestrator) missingToken(records []wallet.Record, token types.Token, need *big.Int) error {
	_, largest, _ := selectToken(records, token.ChainTokenID, need)

	needText, _ := amount.FormatUnits(need.String(), token.Decimals)
	hint := fmt.Sprintf("mint %s or wait for pending transactions to confirm", token.Symbol)
	if largest.Sign() > 0 {
		haveText, _ := amount.FormatUnits(largest.String(), token.Decimals)
		hint = fmt.Sprintf("largest record holds %s %s; %s", haveText, token.Symbol, hint)
	}
	return &RecordNotFoundError{
		Record: fmt.Sprintf("%s token record with at least %s %s", token.Symbol, needText, token.Symbol),
		Hint:   hint,
	}
}

// CreateOffer locks makerAmount of makerToken in a new on-chain offer and
// returns the stored offer with its shareable URL.
func (o *Orchestrator) CreateOffer(
	ctx context.Context,
	makerToken types.Token, makerAmount string,
	takerToken types.Token, takerAmount string,
	expiryHours int,
) (offer *types.TradeOffer, shareURL string, err error) {
	address, err := o.requireConnected()
	if err != nil {
		return nil, "", err
	}
	if expiryHours <= 0 {
		return nil, "", fmt.Errorf("%w: expiry must be at least one hour", link.ErrInvalidOffer)
	}

	offer = link.NewOffer(address, makerToken, makerAmount, takerToken, takerAmount,
		time.Duration(expiryHours)*time.Hour, o.clock.Now())
	if err := link.Validate(offer, o.clock.Now()); err != nil {
		return nil, "", err
	}
	need, err := amount.Parse(makerAmount)
	if err != nil {
		return nil, "", err
	}

	finish, err := o.begin(ctx, types.TxCreate, tokenSubject(makerToken.ID))
	if err != nil {
		return nil, "", err
	}
	defer func() { finish(err) }()

	records, err := o.records(ctx)
	if err != nil {
		return nil, "", err
	}
	token, _, ok := selectToken(records, makerToken.ChainTokenID, need)
	if !ok {
		return nil, "", o.missingToken(records, makerToken, need)
	}
	if token.Plaintext() == "" {
		return nil, "", fmt.Errorf("wallet returned %s record without plaintext", makerToken.Symbol)
	}

	txID, err := o.submit(ctx, wallet.FnCreate, []string{
		token.Plaintext(),
		wallet.U128(makerAmount),
		takerToken.ChainTokenID,
		wallet.U128(takerAmount),
		link.NonceField(offer.Nonce),
	})
	if err != nil {
		return nil, "", err
	}

	offer.OfferID = txID
	o.logTransaction(txID, types.TxCreate, offer.OfferID)
	if err := o.store.AddOffer(*offer); err != nil {
		return nil, "", fmt.Errorf("offer %s submitted but not stored: %w", txID, err)
	}

	shareURL, err = link.ShareableURL(o.cfg.Origin, offer)
	if err != nil {
		return nil, "", err
	}

	o.log.WithFields(log.Fields{
		"offer": offer.OfferID,
		"maker": makerToken.Symbol,
		"taker": takerToken.Symbol,
	}).Info("offer created")
	return offer, shareURL, nil
}

// IssueTicket lets taker execute offer. Afterwards the offer's new record
// plaintext is fetched in the background so the link can be regenerated.
func (o *Orchestrator) IssueTicket(ctx context.Context, offer types.TradeOffer, taker string) (txID string, err error) {
	address, err := o.requireConnected()
	if err != nil {
		return "", err
	}
	if err := wallet.ValidateAddress(taker); err != nil {
		return "", err
	}
	if offer.MakerAddress != address {
		return "", ErrNotMaker
	}
	if !offer.IsOpen(types.NowMillis(o.clock.Now())) {
		return "", fmt.Errorf("%w: %s", ErrOfferNotOpen, offer.EffectiveStatus(types.NowMillis(o.clock.Now())))
	}

	finish, err := o.begin(ctx, types.TxIssueTicket, offer.OfferID)
	if err != nil {
		return "", err
	}
	defer func() { finish(err) }()

	records, err := o.records(ctx)
	if err != nil {
		return "", err
	}
	orderID := link.NonceField(offer.Nonce)
	record, ok := findByOrder(records, wallet.RecordOffer, orderID)
	if !ok || record.Plaintext() == "" {
		return "", &RecordNotFoundError{
			Record: fmt.Sprintf("offer record for %s", offer.OfferID),
			Hint:   "wait for the create transaction to confirm",
		}
	}

	txID, err = o.submit(ctx, wallet.FnIssueTicket, []string{record.Plaintext(), taker})
	if err != nil {
		return "", err
	}

	o.logTransaction(txID, types.TxIssueTicket, offer.OfferID)
	o.refreshRecord(offer.OfferID, orderID, record.Plaintext())
	return txID, nil
}

// ExecuteSwap pays takerAmount of takerToken for offer using the ticket the
// maker issued to this wallet.
func (o *Orchestrator) ExecuteSwap(ctx context.Context, offer types.TradeOffer, takerToken types.Token, takerAmount string) (txID string, err error) {
	if _, err := o.requireConnected(); err != nil {
		return "", err
	}
	if err := link.Validate(&offer, o.clock.Now()); err != nil {
		return "", err
	}
	if takerToken.ID != offer.TakerToken.ID {
		return "", fmt.Errorf("%w: offer asks for %s, not %s", link.ErrInvalidOffer, offer.TakerToken.Symbol, takerToken.Symbol)
	}
	pay, err := amount.Parse(takerAmount)
	if err != nil {
		return "", err
	}
	price, err := amount.Parse(offer.TakerAmount)
	if err != nil {
		return "", err
	}
	if pay.Cmp(price) < 0 {
		return "", fmt.Errorf("%w: payment below the offer's %s", link.ErrInvalidOffer, offer.TakerAmount)
	}
	if local, err := o.store.Offer(offer.OfferID); err == nil && !local.IsOpen(types.NowMillis(o.clock.Now())) {
		return "", fmt.Errorf("%w: %s", ErrOfferNotOpen, local.Status)
	}

	finish, err := o.begin(ctx, types.TxExecute, offer.OfferID)
	if err != nil {
		return "", err
	}
	defer func() { finish(err) }()

	records, err := o.records(ctx)
	if err != nil {
		return "", err
	}

	orderID := link.NonceField(offer.Nonce)
	ticket, ok := findByOrder(records, wallet.RecordTicket, orderID)
	if !ok || ticket.Plaintext() == "" {
		return "", &RecordNotFoundError{
			Record: fmt.Sprintf("swap ticket for %s", offer.OfferID),
			Hint:   fmt.Sprintf("ask the maker to issue a ticket to %s", o.wallet.Address()),
		}
	}
	payment, _, ok := selectToken(records, takerToken.ChainTokenID, pay)
	if !ok {
		return "", o.missingToken(records, takerToken, pay)
	}

	offerPlaintext := offer.RecordPlaintext
	if offerPlaintext == "" {
		if local, err := o.store.Offer(offer.OfferID); err == nil {
			offerPlaintext = local.RecordPlaintext
		}
	}
	if offerPlaintext == "" {
		return "", &RecordNotFoundError{
			Record: fmt.Sprintf("offer record plaintext for %s", offer.OfferID),
			Hint:   "ask the maker for the link regenerated after issuing your ticket",
		}
	}

	txID, err = o.submit(ctx, wallet.FnSwap, []string{ticket.Plaintext(), payment.Plaintext(), offerPlaintext})
	if err != nil {
		return "", err
	}

	o.logTransaction(txID, types.TxExecute, offer.OfferID)
	if _, err := o.store.Offer(offer.OfferID); errors.Is(err, store.ErrOfferNotFound) {
		offer.Status = types.OfferFulfilled
		if err := o.store.AddOffer(offer); err != nil {
			o.log.WithError(err).Warn("failed to store fulfilled offer")
		}
	} else if err := o.store.UpdateStatus(offer.OfferID, types.OfferFulfilled); err != nil {
		o.log.WithError(err).Warn("failed to mark offer fulfilled")
	}

	o.log.WithField("offer", offer.OfferID).Info("swap executed")
	return txID, nil
}

// CancelOffer returns the locked tokens of offer to the maker.
func (o *Orchestrator) CancelOffer(ctx context.Context, offer types.TradeOffer) (txID string, err error) {
	address, err := o.requireConnected()
	if err != nil {
		return "", err
	}
	if offer.MakerAddress != address {
		return "", ErrNotMaker
	}
	if offer.Status != types.OfferPending {
		return "", fmt.Errorf("%w: %s", ErrOfferNotOpen, offer.Status)
	}

	finish, err := o.begin(ctx, types.TxCancel, offer.OfferID)
	if err != nil {
		return "", err
	}
	defer func() { finish(err) }()

	records, err := o.records(ctx)
	if err != nil {
		return "", err
	}
	record, ok := findByOrder(records, wallet.RecordOffer, link.NonceField(offer.Nonce))
	if !ok || record.Plaintext() == "" {
		return "", &RecordNotFoundError{
			Record: fmt.Sprintf("offer record for %s", offer.OfferID),
			Hint:   "wait for pending transactions on this offer to confirm",
		}
	}

	txID, err = o.submit(ctx, wallet.FnCancel, []string{record.Plaintext()})
	if err != nil {
		return "", err
	}

	o.logTransaction(txID, types.TxCancel, offer.OfferID)
	if err := o.store.UpdateStatus(offer.OfferID, types.OfferCancelled); err != nil {
		o.log.WithError(err).Warn("failed to mark offer cancelled")
	}
	return txID, nil
}

// Mint creates test tokens. It has no record precondition.
func (o *Orchestrator) Mint(ctx context.Context, tokenID, amountBase string) (txID string, err error) {
	if _, err := o.requireConnected(); err != nil {
		return "", err
	}
	token, ok := types.TokenByID(o.cfg.Tokens, tokenID)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownToken, tokenID)
	}
	if !amount.IsPositive(amountBase) {
		return "", fmt.Errorf("%w: %q", amount.ErrInvalidAmount, amountBase)
	}

	finish, err := o.begin(ctx, types.TxMint, tokenSubject(token.ID))
	if err != nil {
		return "", err
	}
	defer func() { finish(err) }()

	txID, err = o.submit(ctx, wallet.FnMint, []string{token.ChainTokenID, wallet.U128(amountBase)})
	if err != nil {
		return "", err
	}

	o.logTransaction(txID, types.TxMint, "")
	return txID, nil
}

// Balances sums unspent token records per token id, in base units.
func (o *Orchestrator) Balances(ctx context.Context) (map[string]*big.Int, error) {
	if _, err := o.requireConnected(); err != nil {
		return nil, err
	}
	records, err := o.wallet.RequestRecords(ctx, wallet.ProgramID, false)
	if err != nil {
		return nil, fmt.Errorf("failed to request records: %w", err)
	}

	byChainID := tokenBalance(records)
	balances := make(map[string]*big.Int, len(o.cfg.Tokens))
	for _, token := range o.cfg.Tokens {
		if b, ok := byChainID[token.ChainTokenID]; ok {
			balances[token.ID] = b
		} else {
			balances[token.ID] = new(big.Int)
		}
	}
	return balances, nil
}

// Wait blocks until background record refreshes finish.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

// Close cancels background work and waits for it.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	o.closed = true
	o.mu.Unlock()

	o.cancel()
	o.wg.Wait()
}
