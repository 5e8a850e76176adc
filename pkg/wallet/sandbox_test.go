package wallet

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"ghostswap/pkg/kv"
	"ghostswap/pkg/types"
)

func newSandbox(t *testing.T, ledger *Ledger) *Sandbox {
	t.Helper()
	sb, err := NewSandbox(ledger, GenerateAddress())
	require.NoError(t, err)
	_, err = sb.Connect(context.Background())
	require.NoError(t, err)
	return sb
}

func execute(t *testing.T, sb *Sandbox, function string, inputs ...string) string {
	t.Helper()
	txID, err := sb.ExecuteTransaction(context.Background(), Transaction{
		Program:  ProgramID,
		Function: function,
		Inputs:   inputs,
		Fee:      300000,
	})
	require.NoError(t, err)
	return txID
}

func unspent(t *testing.T, sb *Sandbox, name string) []Record {
	t.Helper()
	records, err := sb.RequestRecords(context.Background(), ProgramID, true)
	require.NoError(t, err)

	var out []Record
	for _, r := range records {
		if r.Name() == name && !r.IsSpent() {
			out = append(out, r)
		}
	}
	return out
}

func TestSandboxSwapFlow(t *testing.T) {
	ctx := context.Background()
	ledger, err := NewLedger(nil)
	require.NoError(t, err)

	maker := newSandbox(t, ledger)
	taker := newSandbox(t, ledger)

	execute(t, maker, FnMint, "1field", "20000000u128")
	execute(t, taker, FnMint, "2field", "150000000u128")

	tokens := unspent(t, maker, RecordToken)
	require.Len(t, tokens, 1)

	createTx := execute(t, maker, FnCreate,
		tokens[0].Plaintext(), "12500000u128", "2field", "100000000u128", "777field")
	status, err := maker.TransactionStatus(ctx, createTx)
	require.NoError(t, err)
	require.Equal(t, types.TxConfirmed, status)

	offers := unspent(t, maker, RecordOffer)
	require.Len(t, offers, 1)
	orderID, _ := offers[0].Field("order_id")
	require.Equal(t, "777field", orderID)

	change := unspent(t, maker, RecordToken)
	require.Len(t, change, 1)
	amount, err := change[0].Amount("amount")
	require.NoError(t, err)
	require.Equal(t, "7500000", amount.String())

	execute(t, maker, FnIssueTicket, offers[0].Plaintext(), taker.Account())

	reissued := unspent(t, maker, RecordOffer)
	require.Len(t, reissued, 1)
	require.NotEqual(t, offers[0].Plaintext(), reissued[0].Plaintext())

	tickets := unspent(t, taker, RecordTicket)
	require.Len(t, tickets, 1)
	payments := unspent(t, taker, RecordToken)
	require.Len(t, payments, 1)

	// The offer record consumed by the ticket can no longer be used.
	_, err = taker.ExecuteTransaction(ctx, Transaction{
		Program:  ProgramID,
		Function: FnSwap,
		Inputs:   []string{tickets[0].Plaintext(), payments[0].Plaintext(), offers[0].Plaintext()},
		Fee:      750000,
	})
	require.ErrorIs(t, err, ErrRejected)

	execute(t, taker, FnSwap, tickets[0].Plaintext(), payments[0].Plaintext(), reissued[0].Plaintext())

	require.Empty(t, unspent(t, maker, RecordOffer))
	require.Empty(t, unspent(t, taker, RecordTicket))

	balances := func(sb *Sandbox) map[string]string {
		out := map[string]string{}
		for _, r := range unspent(t, sb, RecordToken) {
			id, _ := r.Field("token_id")
			amt, err := r.Amount("amount")
			require.NoError(t, err)
			out[id] = amt.String()
		}
		return out
	}
	require.Equal(t, map[string]string{"1field": "7500000", "2field": "100000000"}, balances(maker))
	require.Equal(t, map[string]string{"1field": "12500000", "2field": "50000000"}, balances(taker))
}

func TestSandboxCancelRefunds(t *testing.T) {
	ledger, err := NewLedger(nil)
	require.NoError(t, err)
	maker := newSandbox(t, ledger)

	execute(t, maker, FnMint, "3field", "5000000u128")
	token := unspent(t, maker, RecordToken)[0]
	execute(t, maker, FnCreate, token.Plaintext(), "5000000u128", "1field", "1u128", "9field")

	require.Empty(t, unspent(t, maker, RecordToken))
	offer := unspent(t, maker, RecordOffer)[0]
	execute(t, maker, FnCancel, offer.Plaintext())

	refund := unspent(t, maker, RecordToken)
	require.Len(t, refund, 1)
	amount, err := refund[0].Amount("amount")
	require.NoError(t, err)
	require.Equal(t, "5000000", amount.String())
}

func TestSandboxRejections(t *testing.T) {
	ctx := context.Background()
	ledger, err := NewLedger(nil)
	require.NoError(t, err)
	maker := newSandbox(t, ledger)
	other := newSandbox(t, ledger)

	execute(t, maker, FnMint, "1field", "1000u128")
	token := unspent(t, maker, RecordToken)[0]
	execute(t, maker, FnCreate, token.Plaintext(), "500u128", "2field", "10u128", "1field")
	change := unspent(t, maker, RecordToken)[0]
	offer := unspent(t, maker, RecordOffer)[0]

	tests := []struct {
		name string
		sb   *Sandbox
		tx   Transaction
	}{
		{"zero fee", maker, Transaction{Program: ProgramID, Function: FnMint, Inputs: []string{"1field", "1u128"}}},
		{"wrong program", maker, Transaction{Program: "credits.aleo", Function: FnMint, Inputs: []string{"1field", "1u128"}, Fee: 1}},
		{"unknown function", maker, Transaction{Program: ProgramID, Function: "burn", Fee: 1}},
		{"bad arity", maker, Transaction{Program: ProgramID, Function: FnMint, Inputs: []string{"1field"}, Fee: 1}},
		{"zero amount", maker, Transaction{Program: ProgramID, Function: FnMint, Inputs: []string{"1field", "0u128"}, Fee: 1}},
		{"insufficient balance", maker, Transaction{Program: ProgramID, Function: FnCreate,
			Inputs: []string{change.Plaintext(), "501u128", "2field", "1u128", "2field"}, Fee: 1}},
		{"same token", maker, Transaction{Program: ProgramID, Function: FnCreate,
			Inputs: []string{change.Plaintext(), "1u128", "1field", "1u128", "3field"}, Fee: 1}},
		{"replayed order id", maker, Transaction{Program: ProgramID, Function: FnCreate,
			Inputs: []string{change.Plaintext(), "1u128", "2field", "1u128", "1field"}, Fee: 1}},
		{"spent record", maker, Transaction{Program: ProgramID, Function: FnCreate,
			Inputs: []string{token.Plaintext(), "1u128", "2field", "1u128", "4field"}, Fee: 1}},
		{"foreign record", other, Transaction{Program: ProgramID, Function: FnCancel,
			Inputs: []string{offer.Plaintext()}, Fee: 1}},
		{"bad taker address", maker, Transaction{Program: ProgramID, Function: FnIssueTicket,
			Inputs: []string{offer.Plaintext(), "aleo1nope"}, Fee: 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.sb.ExecuteTransaction(ctx, tt.tx)
			require.ErrorIs(t, err, ErrRejected)
		})
	}

	// Rejections leave the ledger untouched.
	require.Len(t, unspent(t, maker, RecordToken), 1)
	require.Len(t, unspent(t, maker, RecordOffer), 1)
}

func TestSandboxRequiresConnection(t *testing.T) {
	ctx := context.Background()
	ledger, err := NewLedger(nil)
	require.NoError(t, err)
	sb, err := NewSandbox(ledger, GenerateAddress())
	require.NoError(t, err)

	require.False(t, sb.Connected())
	require.Empty(t, sb.Address())

	_, err = sb.RequestRecords(ctx, ProgramID, false)
	require.ErrorIs(t, err, ErrNotConnected)
	_, err = sb.ExecuteTransaction(ctx, Transaction{Program: ProgramID, Function: FnMint, Fee: 1})
	require.ErrorIs(t, err, ErrNotConnected)

	_, err = NewSandbox(ledger, "not-an-address")
	require.ErrorIs(t, err, ErrInvalidAddress)
}

func TestSandboxEvents(t *testing.T) {
	ctx := context.Background()
	ledger, err := NewLedger(nil)
	require.NoError(t, err)
	sb, err := NewSandbox(ledger, GenerateAddress())
	require.NoError(t, err)

	events := make(chan Event, 8)
	sub := sb.SubscribeEvents(events)
	defer sub.Unsubscribe()

	_, err = sb.Connect(ctx)
	require.NoError(t, err)
	sb.EmitSpuriousDisconnect()
	require.True(t, sb.Connected())
	require.NoError(t, sb.Disconnect(ctx))
	sb.Resume()

	var kinds []EventKind
	timeout := time.After(time.Second)
	for len(kinds) < 5 {
		select {
		case ev := <-events:
			kinds = append(kinds, ev.Kind)
		case <-timeout:
			t.Fatalf("missing events, got %v", kinds)
		}
	}
	require.Equal(t, []EventKind{
		EventConnecting, EventConnected, EventDisconnected, EventDisconnected, EventConnected,
	}, kinds)
	require.Equal(t, sb.Account(), sb.Address())
}

func TestSandboxNavigate(t *testing.T) {
	ctx := context.Background()
	ledger, err := NewLedger(nil)
	require.NoError(t, err)
	sb, err := NewSandbox(ledger, GenerateAddress())
	require.NoError(t, err)
	_, err = sb.Connect(ctx)
	require.NoError(t, err)

	events := make(chan Event, 8)
	sub := sb.SubscribeEvents(events)
	defer sub.Unsubscribe()

	sb.Navigate()
	require.Equal(t, EventNavigated, (<-events).Kind)
	require.Equal(t, EventDisconnected, (<-events).Kind)
	require.True(t, sb.Connected())
}

func TestLedgerPersists(t *testing.T) {
	backend := kv.NewMemoryStore()
	ledger, err := NewLedger(backend)
	require.NoError(t, err)
	sb := newSandbox(t, ledger)
	txID := execute(t, sb, FnMint, "5field", "100000000u128")

	reloaded, err := NewLedger(backend)
	require.NoError(t, err)
	records := reloaded.Records(sb.Account(), false)
	require.Len(t, records, 1)
	require.Empty(t, records[0].Plaintext())

	status, ok := reloaded.Status(txID)
	require.True(t, ok)
	require.Equal(t, types.TxConfirmed, status)
}

func TestSandboxSessionStore(t *testing.T) {
	ctx := context.Background()
	ledger, err := NewLedger(nil)
	require.NoError(t, err)
	sessions := kv.NewMemoryStore()

	sb, err := NewSandbox(ledger, GenerateAddress(), WithSessionStore(sessions))
	require.NoError(t, err)
	require.False(t, sb.Resume())

	_, err = sb.Connect(ctx)
	require.NoError(t, err)
	raw, ok, err := sessions.Get(SessionKey)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, `"Sandbox Wallet"`, raw)

	// A new process resumes silently.
	restarted, err := NewSandbox(ledger, sb.Account(), WithSessionStore(sessions))
	require.NoError(t, err)
	require.True(t, restarted.Resume())
	require.True(t, restarted.Connected())

	require.NoError(t, restarted.Disconnect(ctx))
	_, ok, err = sessions.Get(SessionKey)
	require.NoError(t, err)
	require.False(t, ok)
	require.False(t, sb.Resume())
}
