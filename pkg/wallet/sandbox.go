package wallet

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/event"
	log "github.com/sirupsen/logrus"

	"ghostswap/pkg/kv"
	"ghostswap/pkg/types"
)

const (
	// SandboxName is the wallet name the sandbox reports.
	SandboxName = "Sandbox Wallet"
	// SessionKey is the durable key a wallet extension keeps its session
	// under. It holds the wallet name as a JSON string.
	SessionKey = "ghostswap-wallet"
)

// Sandbox is a wallet account on a local Ledger. It implements Capability,
// Connector, EventSource and StatusChecker.
type Sandbox struct {
	ledger   *Ledger
	account  string
	sessions kv.Store

	mu         sync.RWMutex
	connected  bool
	connecting bool

	feed event.Feed
}

// SandboxOption configures a Sandbox.
type SandboxOption func(*Sandbox)

// WithSessionStore makes the sandbox keep its session under SessionKey, the
// way a browser extension does, so Resume works across restarts.
func WithSessionStore(store kv.Store) SandboxOption {
	return func(s *Sandbox) { s.sessions = store }
}

// NewSandbox creates a disconnected account on ledger.
func NewSandbox(ledger *Ledger, account string, opts ...SandboxOption) (*Sandbox, error) {
	if err := ValidateAddress(account); err != nil {
		return nil, err
	}
	s := &Sandbox{ledger: ledger, account: account}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Sandbox) Name() string { return SandboxName }

// Account returns the account address regardless of connection state.
func (s *Sandbox) Account() string { return s.account }

func (s *Sandbox) Connected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connected
}

func (s *Sandbox) Connecting() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connecting
}

func (s *Sandbox) Address() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.connected {
		return ""
	}
	return s.account
}

// Connect approves the connection immediately.
func (s *Sandbox) Connect(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	s.setState(false, true)
	s.feed.Send(Event{Kind: EventConnecting})

	if s.sessions != nil {
		raw, _ := json.Marshal(SandboxName)
		if err := s.sessions.Set(SessionKey, string(raw)); err != nil {
			s.setState(false, false)
			s.feed.Send(Event{Kind: EventDisconnected})
			return "", fmt.Errorf("failed to store wallet session: %w", err)
		}
	}

	s.setState(true, false)
	s.feed.Send(Event{Kind: EventConnected, Address: s.account})
	return s.account, nil
}

// Resume reconnects a previously authorised session without prompting, the
// way a wallet extension restores its own session. With a session store it
// only succeeds while SessionKey is present.
func (s *Sandbox) Resume() bool {
	if s.sessions != nil {
		_, ok, err := s.sessions.Get(SessionKey)
		if err != nil {
			log.WithError(err).Warn("failed to read wallet session")
			return false
		}
		if !ok {
			return false
		}
	}

	s.setState(true, false)
	s.feed.Send(Event{Kind: EventConnected, Address: s.account})
	return true
}

func (s *Sandbox) Disconnect(ctx context.Context) error {
	s.setState(false, false)
	if s.sessions != nil {
		if err := s.sessions.Delete(SessionKey); err != nil {
			log.WithError(err).Warn("failed to remove wallet session")
		}
	}
	s.feed.Send(Event{Kind: EventDisconnected})
	return nil
}

// EmitSpuriousDisconnect publishes a disconnect event without changing the
// connection, as extensions do on client-side navigation.
func (s *Sandbox) EmitSpuriousDisconnect() {
	s.feed.Send(Event{Kind: EventDisconnected})
}

// Navigate reports a navigation of the host followed by the disconnect
// extensions emit for it. The session itself is kept.
func (s *Sandbox) Navigate() {
	s.feed.Send(Event{Kind: EventNavigated})
	s.EmitSpuriousDisconnect()
}

func (s *Sandbox) RequestRecords(ctx context.Context, programID string, includePlaintext bool) ([]Record, error) {
	if !s.Connected() {
		return nil, ErrNotConnected
	}
	if programID != ProgramID {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProgram, programID)
	}
	return s.ledger.Records(s.account, includePlaintext), nil
}

func (s *Sandbox) ExecuteTransaction(ctx context.Context, tx Transaction) (string, error) {
	if !s.Connected() {
		return "", ErrNotConnected
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return s.ledger.Execute(s.account, tx)
}

func (s *Sandbox) TransactionStatus(ctx context.Context, txID string) (types.TxStatus, error) {
	status, ok := s.ledger.Status(txID)
	if !ok {
		return "", fmt.Errorf("transaction %s not found", txID)
	}
	return status, nil
}

func (s *Sandbox) SubscribeEvents(ch chan<- Event) event.Subscription {
	return s.feed.Subscribe(ch)
}

func (s *Sandbox) setState(connected, connecting bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connected = connected
	s.connecting = connecting
}
