package types

import (
	"fmt"
	"time"
)

// OfferStatus is the lifecycle state of a trade offer.
type OfferStatus string

const (
	OfferPending   OfferStatus = "pending"   // Open, waiting for a taker
	OfferFulfilled OfferStatus = "fulfilled" // Swap executed on chain
	OfferCancelled OfferStatus = "cancelled" // Cancelled by the maker
	OfferExpired   OfferStatus = "expired"   // Computed from ExpiresAt, never stored
)

// TradeOffer is a proposed token-for-token exchange shared through a
// capability link. Amounts are integer strings in base units.
type TradeOffer struct {
	OfferID         string      `json:"offer_id"`
	MakerAddress    string      `json:"maker_address"`
	MakerToken      Token       `json:"maker_token"`
	MakerAmount     string      `json:"maker_amount"`
	TakerToken      Token       `json:"taker_token"`
	TakerAmount     string      `json:"taker_amount"`
	Nonce           string      `json:"nonce"`
	CreatedAt       int64       `json:"created_at"` // ms since epoch
	ExpiresAt       int64       `json:"expires_at"` // ms since epoch
	Status          OfferStatus `json:"status"`
	RecordPlaintext string      `json:"record_plaintext,omitempty"`
}

// EffectiveStatus returns the status as seen at now (ms since epoch). A pending
// offer past its expiry reports OfferExpired.
func (o *TradeOffer) EffectiveStatus(now int64) OfferStatus {
	if o.Status == OfferPending && now > o.ExpiresAt {
		return OfferExpired
	}
	return o.Status
}

// IsOpen returns true if the offer can still be ticketed, executed or cancelled.
func (o *TradeOffer) IsOpen(now int64) bool {
	return o.EffectiveStatus(now) == OfferPending
}

// TxKind identifies the program call a transaction record belongs to.
type TxKind string

const (
	TxCreate      TxKind = "create"
	TxIssueTicket TxKind = "issue-ticket"
	TxExecute     TxKind = "execute"
	TxCancel      TxKind = "cancel"
	TxMint        TxKind = "mint"
)

// TxStatus is the confirmation state of a submitted transaction.
type TxStatus string

const (
	TxPending   TxStatus = "pending"
	TxConfirmed TxStatus = "confirmed"
	TxFailed    TxStatus = "failed"
)

// TransactionRecord is an entry of the local transaction log.
type TransactionRecord struct {
	ID        string   `json:"id"`
	Kind      TxKind   `json:"kind"`
	Status    TxStatus `json:"status"`
	Timestamp int64    `json:"timestamp"`
	OfferID   string   `json:"offer_id,omitempty"`
}

// NowMillis returns t as milliseconds since epoch.
func NowMillis(t time.Time) int64 {
	return t.UnixNano() / int64(time.Millisecond)
}

// TimeRemaining renders the time left until expiry as "2d 3h", "5h 12m" or
// "Expired".
func (o *TradeOffer) TimeRemaining(now time.Time) string {
	diff := o.ExpiresAt - NowMillis(now)
	if diff <= 0 {
		return "Expired"
	}

	hours := diff / int64(time.Hour/time.Millisecond)
	minutes := (diff % int64(time.Hour/time.Millisecond)) / int64(time.Minute/time.Millisecond)
	if hours > 24 {
		return fmt.Sprintf("%dd %dh", hours/24, hours%24)
	}
	return fmt.Sprintf("%dh %dm", hours, minutes)
}

// OfferRequest is an offer typed by the user before token resolution.
// Amounts are human decimals, tokens are symbols as typed.
type OfferRequest struct {
	MakerAmount string
	MakerToken  string
	TakerAmount string
	TakerToken  string
}
