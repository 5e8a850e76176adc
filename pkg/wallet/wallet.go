// Package wallet defines the wallet capability consumed by the session
// controller and the transaction orchestrator, together with two
// implementations: a local sandbox ledger and an HTTP bridge to a companion
// signer.
package wallet

import (
	"context"
	"errors"
	"time"

	"github.com/ethereum/go-ethereum/event"

	"ghostswap/pkg/types"
)

// ProgramID is the on-chain OTC program.
const ProgramID = "ghostswap_otc_v2.aleo"

// Program function names.
const (
	FnMint        = "mint"
	FnCreate      = "create"
	FnIssueTicket = "issue_ticket"
	FnSwap        = "swap"
	FnCancel      = "cancel"
)

// Record names produced by the program.
const (
	RecordToken  = "GhostToken"
	RecordOffer  = "TradeOffer"
	RecordTicket = "SwapTicket"
)

var (
	ErrNotConnected   = errors.New("wallet not connected")
	ErrUnknownProgram = errors.New("unknown program")
)

// Transaction is a program call submitted to the wallet.
type Transaction struct {
	Program  string   `json:"program"`
	Function string   `json:"function"`
	Inputs   []string `json:"inputs"`
	Fee      uint64   `json:"fee"` // microcredits
}

// Capability is the wallet surface the core depends on.
type Capability interface {
	Connected() bool
	Connecting() bool
	Address() string
	Disconnect(ctx context.Context) error
	RequestRecords(ctx context.Context, programID string, includePlaintext bool) ([]Record, error)
	ExecuteTransaction(ctx context.Context, tx Transaction) (string, error)
}

// Connector is implemented by wallets that support a user-initiated connect.
// Connect may show the wallet's own consent UI.
type Connector interface {
	Name() string
	Connect(ctx context.Context) (string, error)
}

// StatusChecker is implemented by wallets that can report transaction status.
type StatusChecker interface {
	TransactionStatus(ctx context.Context, txID string) (types.TxStatus, error)
}

// EventKind is the type of a wallet connection event.
type EventKind int

const (
	EventConnecting EventKind = iota
	EventConnected
	EventDisconnected
	// EventNavigated reports a client-side navigation of the host page. It is
	// published before any disconnect the navigation triggers.
	EventNavigated
)

func (k EventKind) String() string {
	switch k {
	case EventConnecting:
		return "connecting"
	case EventConnected:
		return "connected"
	case EventDisconnected:
		return "disconnected"
	case EventNavigated:
		return "navigated"
	default:
		return "unknown"
	}
}

// Event is a connection change reported by the wallet. At may be zero, in
// which case the receiver stamps it.
type Event struct {
	Kind    EventKind
	Address string
	At      time.Time
}

// EventSource is implemented by wallets that publish connection events.
type EventSource interface {
	SubscribeEvents(ch chan<- Event) event.Subscription
}
