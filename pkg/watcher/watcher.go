// Package watcher keeps the local view of offers and transactions current
// while a long-running command is open.
package watcher

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/andres-erbsen/clock"
	"github.com/ethereum/go-ethereum/event"
	log "github.com/sirupsen/logrus"

	"ghostswap/pkg/store"
	"ghostswap/pkg/types"
)

const (
	DefaultInterval = 10 * time.Second
	MinInterval     = time.Second // avoid hammering the wallet
)

var ErrAlreadyRunning = errors.New("watcher is already running")

// Syncer refreshes pending transaction statuses. It is implemented by the
// orchestrator.
type Syncer interface {
	SyncTransactions(ctx context.Context) (int, error)
}

// Update is published after every check.
type Update struct {
	At time.Time
	// Synced is the number of transactions whose status changed.
	Synced int
	// Expired lists pending offers that passed their expiry since the
	// previous check.
	Expired []types.TradeOffer
	Err     error
}

// Watcher periodically syncs transactions and reports offers as they expire.
type Watcher struct {
	syncer   Syncer
	store    *store.Store
	clock    clock.Clock
	interval time.Duration
	log      *log.Entry

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
	expired map[string]struct{}

	feed event.Feed
}

// Option configures a Watcher.
type Option func(*Watcher)

func WithClock(c clock.Clock) Option {
	return func(w *Watcher) { w.clock = c }
}

// New creates a stopped watcher.
func New(syncer Syncer, st *store.Store, opts ...Option) *Watcher {
	w := &Watcher{
		syncer:   syncer,
		store:    st,
		clock:    clock.New(),
		interval: DefaultInterval,
		log:      log.WithField("component", "watcher"),
		expired:  make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// SetInterval sets the check interval. It takes effect on the next Start.
func (w *Watcher) SetInterval(interval time.Duration) {
	if interval < MinInterval {
		interval = MinInterval
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	w.interval = interval
}

// Subscribe delivers every Update to ch. Sends block, so ch should be
// buffered and drained.
func (w *Watcher) Subscribe(ch chan<- Update) event.Subscription {
	return w.feed.Subscribe(ch)
}

// Start runs a check immediately and then every interval until Stop or ctx
// is done.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return ErrAlreadyRunning
	}

	// Offers already expired at start are not news.
	for _, offer := range w.store.OffersByStatus(types.OfferExpired, w.clock.Now()) {
		w.expired[offer.OfferID] = struct{}{}
	}

	ctx, cancel := context.WithCancel(ctx)
	ticker := w.clock.Ticker(w.interval)
	w.running = true
	w.cancel = cancel
	w.done = make(chan struct{})

	go w.loop(ctx, ticker, w.done)
	return nil
}

// Stop halts the watcher and waits for the running check to finish.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.cancel()
	done := w.done
	w.mu.Unlock()

	<-done
}

func (w *Watcher) loop(ctx context.Context, ticker *clock.Ticker, done chan struct{}) {
	defer close(done)
	defer ticker.Stop()

	w.check(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.check(ctx)
		}
	}
}

func (w *Watcher) check(ctx context.Context) {
	update := Update{At: w.clock.Now()}

	synced, err := w.syncer.SyncTransactions(ctx)
	if err != nil && ctx.Err() == nil {
		w.log.WithError(err).Warn("failed to sync transactions")
		update.Err = err
	}
	update.Synced = synced

	for _, offer := range w.store.OffersByStatus(types.OfferExpired, update.At) {
		if _, seen := w.expired[offer.OfferID]; seen {
			continue
		}
		w.expired[offer.OfferID] = struct{}{}
		update.Expired = append(update.Expired, offer)
	}

	if update.Synced > 0 || len(update.Expired) > 0 {
		w.log.WithFields(log.Fields{
			"synced":  update.Synced,
			"expired": len(update.Expired),
		}).Info("offers updated")
	}
	if ctx.Err() == nil {
		w.feed.Send(update)
	}
}
