package wallet

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"github.com/thanhpk/randstr"

	"ghostswap/pkg/kv"
	"ghostswap/pkg/types"
)

// LedgerKey is the durable key of the sandbox ledger.
const LedgerKey = "ghostswap-sandbox-ledger"

var (
	ErrRejected        = errors.New("transaction rejected")
	ErrUnknownFunction = errors.New("unknown program function")
)

var recordLayouts = map[string][]string{
	RecordToken:  {"token_id", "amount"},
	RecordOffer:  {"maker", "maker_token_id", "maker_amount", "taker_token_id", "taker_amount", "order_id"},
	RecordTicket: {"maker", "taker", "maker_token_id", "maker_amount", "taker_token_id", "taker_amount", "order_id"},
}

type ledgerRecord struct {
	ID    string            `json:"id"`
	Name  string            `json:"name"`
	Owner string            `json:"owner"`
	Data  map[string]string `json:"data"`
	Nonce string            `json:"nonce"`
	Spent bool              `json:"spent"`
}

// plaintext renders the record the way wallets hand it to programs.
func (r *ledgerRecord) plaintext() string {
	var b strings.Builder
	b.WriteString("{\n")
	fmt.Fprintf(&b, "  owner: %s.private,\n", r.Owner)
	for _, field := range recordLayouts[r.Name] {
		fmt.Fprintf(&b, "  %s: %s.private,\n", field, r.Data[field])
	}
	fmt.Fprintf(&b, "  _nonce: %sgroup.public\n", r.Nonce)
	b.WriteString("}")
	return b.String()
}

func (r *ledgerRecord) record(includePlaintext bool) Record {
	data := make(map[string]interface{}, len(r.Data))
	for k, v := range r.Data {
		data[k] = v + ".private"
	}

	rec := Record{
		"id":         r.ID,
		"recordName": r.Name,
		"owner":      r.Owner + ".private",
		"spent":      r.Spent,
		"data":       data,
	}
	if includePlaintext {
		rec["plaintext"] = r.plaintext()
	}
	return rec
}

func (r *ledgerRecord) amount(field string) *big.Int {
	n, ok := new(big.Int).SetString(TrimLiteral(r.Data[field]), 10)
	if !ok {
		return new(big.Int)
	}
	return n
}

type ledgerState struct {
	Records      []*ledgerRecord           `json:"records"`
	Transactions map[string]types.TxStatus `json:"transactions"`
}

// Ledger simulates the OTC program locally. It is shared by every sandbox
// account and, when given a backend, persisted under LedgerKey.
type Ledger struct {
	mu      sync.Mutex
	backend kv.Store
	state   ledgerState
}

// NewLedger loads the ledger from backend. A nil backend keeps it in memory.
func NewLedger(backend kv.Store) (*Ledger, error) {
	l := &Ledger{
		backend: backend,
		state:   ledgerState{Transactions: make(map[string]types.TxStatus)},
	}
	if backend == nil {
		return l, nil
	}

	raw, ok, err := backend.Get(LedgerKey)
	if err != nil {
		return nil, fmt.Errorf("failed to read sandbox ledger: %w", err)
	}
	if !ok {
		return l, nil
	}
	if err := json.Unmarshal([]byte(raw), &l.state); err != nil {
		return nil, fmt.Errorf("failed to unmarshal sandbox ledger: %w", err)
	}
	if l.state.Transactions == nil {
		l.state.Transactions = make(map[string]types.TxStatus)
	}
	return l, nil
}

// Records returns every record owned by owner, spent ones included.
func (l *Ledger) Records(owner string, includePlaintext bool) []Record {
	l.mu.Lock()
	defer l.mu.Unlock()

	var records []Record
	for _, r := range l.state.Records {
		if r.Owner == owner {
			records = append(records, r.record(includePlaintext))
		}
	}
	return records
}

// Status reports a transaction executed by this ledger.
func (l *Ledger) Status(txID string) (types.TxStatus, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	status, ok := l.state.Transactions[txID]
	return status, ok
}

// Execute runs tx on behalf of caller. Failures wrap ErrRejected and leave
// the ledger untouched.
func (l *Ledger) Execute(caller string, tx Transaction) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if tx.Program != ProgramID {
		return "", fmt.Errorf("%w: %w %s", ErrRejected, ErrUnknownProgram, tx.Program)
	}
	if tx.Fee == 0 {
		return "", fmt.Errorf("%w: insufficient fee", ErrRejected)
	}

	spent, outputs, err := l.transition(caller, tx)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %w", ErrRejected, tx.Function, err)
	}

	txID := GenerateTransactionID()
	for _, r := range spent {
		r.Spent = true
	}
	l.state.Records = append(l.state.Records, outputs...)
	l.state.Transactions[txID] = types.TxConfirmed

	if err := l.save(); err != nil {
		for _, r := range spent {
			r.Spent = false
		}
		l.state.Records = l.state.Records[:len(l.state.Records)-len(outputs)]
		delete(l.state.Transactions, txID)
		return "", fmt.Errorf("%w: %w", ErrRejected, err)
	}

	log.WithFields(log.Fields{
		"function": tx.Function,
		"tx":       txID,
		"caller":   ShortenAddress(caller),
	}).Debug("sandbox transaction executed")
	return txID, nil
}

func (l *Ledger) transition(caller string, tx Transaction) (spent, outputs []*ledgerRecord, err error) {
	in := tx.Inputs

	switch tx.Function {
	case FnMint:
		if len(in) != 2 {
			return nil, nil, arity(2, len(in))
		}
		tokenID, err := fieldInput(in[0])
		if err != nil {
			return nil, nil, err
		}
		amount, err := u128Input(in[1])
		if err != nil {
			return nil, nil, err
		}
		return nil, []*ledgerRecord{newToken(caller, tokenID, amount)}, nil

	case FnCreate:
		if len(in) != 5 {
			return nil, nil, arity(5, len(in))
		}
		token, err := l.find(in[0], caller, RecordToken)
		if err != nil {
			return nil, nil, err
		}
		makerAmount, err := u128Input(in[1])
		if err != nil {
			return nil, nil, err
		}
		takerToken, err := fieldInput(in[2])
		if err != nil {
			return nil, nil, err
		}
		takerAmount, err := u128Input(in[3])
		if err != nil {
			return nil, nil, err
		}
		orderID, err := fieldInput(in[4])
		if err != nil {
			return nil, nil, err
		}

		makerToken := token.Data["token_id"]
		if makerToken == takerToken {
			return nil, nil, errors.New("cannot swap same token")
		}
		balance := token.amount("amount")
		if balance.Cmp(makerAmount) < 0 {
			return nil, nil, fmt.Errorf("insufficient balance: have %s, need %s", balance, makerAmount)
		}
		if l.orderExists(orderID) {
			return nil, nil, fmt.Errorf("order id %s already used", orderID)
		}

		offer := newRecord(RecordOffer, caller, map[string]string{
			"maker":          caller,
			"maker_token_id": makerToken,
			"maker_amount":   U128(makerAmount.String()),
			"taker_token_id": takerToken,
			"taker_amount":   U128(takerAmount.String()),
			"order_id":       orderID,
		})
		outputs = []*ledgerRecord{offer}
		if change := new(big.Int).Sub(balance, makerAmount); change.Sign() > 0 {
			outputs = append(outputs, newToken(caller, makerToken, change))
		}
		return []*ledgerRecord{token}, outputs, nil

	case FnIssueTicket:
		if len(in) != 2 {
			return nil, nil, arity(2, len(in))
		}
		offer, err := l.find(in[0], caller, RecordOffer)
		if err != nil {
			return nil, nil, err
		}
		taker := strings.TrimSpace(in[1])
		if err := ValidateAddress(taker); err != nil {
			return nil, nil, err
		}

		reissued := newRecord(RecordOffer, caller, copyData(offer.Data))
		ticketData := copyData(offer.Data)
		ticketData["taker"] = taker
		ticket := newRecord(RecordTicket, taker, ticketData)
		return []*ledgerRecord{offer}, []*ledgerRecord{reissued, ticket}, nil

	case FnSwap:
		if len(in) != 3 {
			return nil, nil, arity(3, len(in))
		}
		ticket, err := l.find(in[0], caller, RecordTicket)
		if err != nil {
			return nil, nil, err
		}
		payment, err := l.find(in[1], caller, RecordToken)
		if err != nil {
			return nil, nil, err
		}
		offer, err := l.find(in[2], "", RecordOffer)
		if err != nil {
			return nil, nil, err
		}

		if ticket.Data["order_id"] != offer.Data["order_id"] {
			return nil, nil, errors.New("ticket does not match offer")
		}
		if ticket.Data["taker"] != caller {
			return nil, nil, errors.New("ticket was issued to another taker")
		}
		if payment.Data["token_id"] != offer.Data["taker_token_id"] {
			return nil, nil, errors.New("payment token does not match offer")
		}
		price := offer.amount("taker_amount")
		balance := payment.amount("amount")
		if balance.Cmp(price) < 0 {
			return nil, nil, fmt.Errorf("insufficient balance: have %s, need %s", balance, price)
		}

		maker := offer.Data["maker"]
		outputs = []*ledgerRecord{
			newToken(caller, offer.Data["maker_token_id"], offer.amount("maker_amount")),
			newToken(maker, offer.Data["taker_token_id"], price),
		}
		if change := new(big.Int).Sub(balance, price); change.Sign() > 0 {
			outputs = append(outputs, newToken(caller, payment.Data["token_id"], change))
		}
		return []*ledgerRecord{ticket, payment, offer}, outputs, nil

	case FnCancel:
		if len(in) != 1 {
			return nil, nil, arity(1, len(in))
		}
		offer, err := l.find(in[0], caller, RecordOffer)
		if err != nil {
			return nil, nil, err
		}
		refund := newToken(caller, offer.Data["maker_token_id"], offer.amount("maker_amount"))
		return []*ledgerRecord{offer}, []*ledgerRecord{refund}, nil

	default:
		return nil, nil, fmt.Errorf("%w: %s", ErrUnknownFunction, tx.Function)
	}
}

// find resolves a record plaintext input to an unspent record. An empty owner
// accepts any owner.
func (l *Ledger) find(plaintext, owner, name string) (*ledgerRecord, error) {
	plaintext = strings.TrimSpace(plaintext)
	for _, r := range l.state.Records {
		if r.Spent || r.Name != name {
			continue
		}
		if r.plaintext() != plaintext {
			continue
		}
		if owner != "" && r.Owner != owner {
			return nil, fmt.Errorf("%s record is not owned by caller", name)
		}
		return r, nil
	}
	return nil, fmt.Errorf("input is not an unspent %s record", name)
}

func (l *Ledger) orderExists(orderID string) bool {
	for _, r := range l.state.Records {
		if r.Name == RecordOffer && r.Data["order_id"] == orderID {
			return true
		}
	}
	return false
}

// save persists the ledger. Must be called with the lock held.
func (l *Ledger) save() error {
	if l.backend == nil {
		return nil
	}
	data, err := json.Marshal(l.state)
	if err != nil {
		return fmt.Errorf("failed to marshal sandbox ledger: %w", err)
	}
	return l.backend.Set(LedgerKey, string(data))
}

func newRecord(name, owner string, data map[string]string) *ledgerRecord {
	return &ledgerRecord{
		ID:    uuid.New().String(),
		Name:  name,
		Owner: owner,
		Data:  data,
		Nonce: randstr.Dec(24),
	}
}

func newToken(owner, tokenID string, amount *big.Int) *ledgerRecord {
	return newRecord(RecordToken, owner, map[string]string{
		"token_id": tokenID,
		"amount":   U128(amount.String()),
	})
}

func copyData(data map[string]string) map[string]string {
	out := make(map[string]string, len(data))
	for k, v := range data {
		out[k] = v
	}
	return out
}

func arity(want, got int) error {
	return fmt.Errorf("expected %d inputs, got %d", want, got)
}

func fieldInput(input string) (string, error) {
	input = StripVisibility(input)
	if !strings.HasSuffix(input, "field") {
		return "", fmt.Errorf("expected field literal, got %q", input)
	}
	if _, ok := new(big.Int).SetString(strings.TrimSuffix(input, "field"), 10); !ok {
		return "", fmt.Errorf("malformed field literal %q", input)
	}
	return input, nil
}

func u128Input(input string) (*big.Int, error) {
	input = StripVisibility(input)
	if !strings.HasSuffix(input, "u128") {
		return nil, fmt.Errorf("expected u128 literal, got %q", input)
	}
	n, ok := new(big.Int).SetString(strings.TrimSuffix(input, "u128"), 10)
	if !ok || n.Sign() <= 0 {
		return nil, fmt.Errorf("amount must be a positive u128, got %q", input)
	}
	return n, nil
}
