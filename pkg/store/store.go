// Package store keeps the user's offer list and transaction log in the
// durable key-value store.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"ghostswap/pkg/kv"
	"ghostswap/pkg/types"
)

const (
	// StorageKey is the durable key holding the whole store document.
	StorageKey = "ghostswap-storage"
	// MaxTransactions caps the transaction log.
	MaxTransactions = 50
)

var (
	ErrOfferNotFound  = errors.New("offer not found")
	ErrDuplicateOffer = errors.New("offer already exists")
)

// document is the JSON layout persisted under StorageKey.
type document struct {
	Offers       []types.TradeOffer        `json:"offers"`
	Transactions []types.TransactionRecord `json:"transactions"`
}

// Store provides offer and transaction operations over a kv.Store.
type Store struct {
	kv  kv.Store
	mu  sync.RWMutex
	doc document
}

// New loads the store document from backend. A missing key yields an empty store.
func New(backend kv.Store) (*Store, error) {
	s := &Store{kv: backend}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) load() error {
	raw, ok, err := s.kv.Get(StorageKey)
	if err != nil {
		return fmt.Errorf("failed to read offer store: %w", err)
	}
	if !ok || raw == "" {
		return nil
	}

	var doc document
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return fmt.Errorf("failed to unmarshal offer store: %w", err)
	}
	s.doc = doc
	return nil
}

// save persists the document. Must be called with the lock held.
func (s *Store) save() error {
	data, err := json.Marshal(s.doc)
	if err != nil {
		return fmt.Errorf("failed to marshal offer store: %w", err)
	}
	if err := s.kv.Set(StorageKey, string(data)); err != nil {
		return fmt.Errorf("failed to write offer store: %w", err)
	}
	return nil
}

// mutate applies fn to a copy of the document and commits it only if saving
// succeeds.
func (s *Store) mutate(fn func(doc *document) (bool, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := document{
		Offers:       append([]types.TradeOffer(nil), s.doc.Offers...),
		Transactions: append([]types.TransactionRecord(nil), s.doc.Transactions...),
	}
	changed, err := fn(&next)
	if err != nil || !changed {
		return err
	}

	previous := s.doc
	s.doc = next
	if err := s.save(); err != nil {
		s.doc = previous
		return err
	}
	return nil
}

// AddOffer prepends offer to the offer list.
func (s *Store) AddOffer(offer types.TradeOffer) error {
	if offer.OfferID == "" {
		return fmt.Errorf("offer id cannot be empty")
	}

	return s.mutate(func(doc *document) (bool, error) {
		if indexOf(doc.Offers, offer.OfferID) >= 0 {
			return false, fmt.Errorf("%w: %s", ErrDuplicateOffer, offer.OfferID)
		}
		doc.Offers = append([]types.TradeOffer{offer}, doc.Offers...)
		return true, nil
	})
}

// UpdateStatus replaces the status of an offer. Unknown ids are ignored.
func (s *Store) UpdateStatus(offerID string, status types.OfferStatus) error {
	return s.mutate(func(doc *document) (bool, error) {
		i := indexOf(doc.Offers, offerID)
		if i < 0 {
			log.WithField("offer", offerID).Debug("status update for unknown offer ignored")
			return false, nil
		}
		if doc.Offers[i].Status == status {
			return false, nil
		}
		doc.Offers[i].Status = status
		return true, nil
	})
}

// AttachRecordPlaintext stores the latest on-chain record plaintext of an offer.
func (s *Store) AttachRecordPlaintext(offerID, plaintext string) error {
	return s.mutate(func(doc *document) (bool, error) {
		i := indexOf(doc.Offers, offerID)
		if i < 0 {
			return false, fmt.Errorf("%w: %s", ErrOfferNotFound, offerID)
		}
		doc.Offers[i].RecordPlaintext = plaintext
		return true, nil
	})
}

// AppendTransaction prepends record and keeps the most recent MaxTransactions.
func (s *Store) AppendTransaction(record types.TransactionRecord) error {
	return s.mutate(func(doc *document) (bool, error) {
		doc.Transactions = append([]types.TransactionRecord{record}, doc.Transactions...)
		if len(doc.Transactions) > MaxTransactions {
			doc.Transactions = doc.Transactions[:MaxTransactions]
		}
		return true, nil
	})
}

// UpdateTransactionStatus sets the status of a logged transaction.
func (s *Store) UpdateTransactionStatus(id string, status types.TxStatus) error {
	return s.mutate(func(doc *document) (bool, error) {
		for i := range doc.Transactions {
			if doc.Transactions[i].ID == id {
				if doc.Transactions[i].Status == status {
					return false, nil
				}
				doc.Transactions[i].Status = status
				return true, nil
			}
		}
		return false, fmt.Errorf("transaction '%s' not found", id)
	})
}

// Offer returns the offer with the given id.
func (s *Store) Offer(offerID string) (types.TradeOffer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i := indexOf(s.doc.Offers, offerID)
	if i < 0 {
		return types.TradeOffer{}, fmt.Errorf("%w: %s", ErrOfferNotFound, offerID)
	}
	return s.doc.Offers[i], nil
}

// Offers returns all offers, newest first.
func (s *Store) Offers() []types.TradeOffer {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return append([]types.TradeOffer(nil), s.doc.Offers...)
}

// OffersByStatus returns offers whose effective status at now matches status.
func (s *Store) OffersByStatus(status types.OfferStatus, now time.Time) []types.TradeOffer {
	s.mu.RLock()
	defer s.mu.RUnlock()

	nowMs := types.NowMillis(now)
	var result []types.TradeOffer
	for _, offer := range s.doc.Offers {
		if offer.EffectiveStatus(nowMs) == status {
			result = append(result, offer)
		}
	}
	return result
}

// Transactions returns the transaction log, newest first.
func (s *Store) Transactions() []types.TransactionRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return append([]types.TransactionRecord(nil), s.doc.Transactions...)
}

// Reset clears offers and transactions.
func (s *Store) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	previous := s.doc
	s.doc = document{}
	if err := s.kv.Delete(StorageKey); err != nil {
		s.doc = previous
		return fmt.Errorf("failed to reset offer store: %w", err)
	}
	return nil
}

func indexOf(offers []types.TradeOffer, offerID string) int {
	for i := range offers {
		if offers[i].OfferID == offerID {
			return i
		}
	}
	return -1
}
