package session

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/andres-erbsen/clock"
	"github.com/ethereum/go-ethereum/event"
	log "github.com/sirupsen/logrus"

	"ghostswap/pkg/kv"
	"ghostswap/pkg/wallet"
)

// Durable keys. ExtensionKey belongs to the wallet extension; the controller
// only restores it from BackupNameKey.
const (
	ExtensionKey     = wallet.SessionKey
	BackupNameKey    = "ghostswap-wallet-name"
	BackupAddressKey = "ghostswap-wallet-address"
)

// DefaultExplorer is the block explorer linked from the session view.
const DefaultExplorer = "https://testnet.explorer.provable.com"

// Controller owns the session state, its timers and its durable keys. Event
// handling never fails; storage errors are logged and the session degrades
// to cold.
type Controller struct {
	store    kv.Store
	clock    clock.Clock
	timing   Timing
	explorer string
	log      *log.Entry

	mu         sync.Mutex
	state      State
	view       View
	timer      *clock.Timer
	timerAt    time.Time
	sources    []event.Subscription
	capability wallet.Capability
	closed     bool
	quit       chan struct{}
	wg         sync.WaitGroup

	// views waiting for the publisher, in dispatch order
	pending  []View
	wake     chan struct{}
	viewFeed event.Feed
}

// Option configures a Controller.
type Option func(*Controller)

func WithClock(c clock.Clock) Option {
	return func(ctl *Controller) { ctl.clock = c }
}

func WithTiming(t Timing) Option {
	return func(ctl *Controller) { ctl.timing = t }
}

func WithExplorer(base string) Option {
	return func(ctl *Controller) { ctl.explorer = base }
}

// New creates a controller and boots it from the durable keys in store.
func New(store kv.Store, opts ...Option) *Controller {
	c := &Controller{
		store:    store,
		clock:    clock.New(),
		timing:   DefaultTiming(),
		explorer: DefaultExplorer,
		log:      log.WithField("component", "session"),
		quit:     make(chan struct{}),
		wake:     make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(c)
	}

	address, name := c.readCache()
	c.dispatch(Event{Kind: EvBoot, At: c.clock.Now(), Address: address, Wallet: name})

	// nobody can have subscribed to the boot view
	c.mu.Lock()
	c.pending = nil
	c.mu.Unlock()
	go c.publish()
	return c
}

// readCache loads the cached address and wallet name.
func (c *Controller) readCache() (address, name string) {
	address, err := c.get(BackupAddressKey)
	if err != nil {
		c.log.WithError(err).Warn("failed to read cached address, starting cold")
		return "", ""
	}

	name, err = c.get(BackupNameKey)
	if err != nil {
		c.log.WithError(err).Warn("failed to read cached wallet name")
	}
	if name == "" {
		raw, err := c.get(ExtensionKey)
		if err != nil {
			c.log.WithError(err).Warn("failed to read extension session key")
		}
		name = ParseWalletKey(raw)
	}
	return address, name
}

func (c *Controller) get(key string) (string, error) {
	value, _, err := c.store.Get(key)
	return value, err
}

// Navigate opens or extends the suppression window. It must be called in the
// same call chain that observes the navigation, before extension events for
// it are handled.
func (c *Controller) Navigate() {
	c.dispatch(Event{Kind: EvNavigated, At: c.clock.Now()})
}

// HandleExtension feeds a wallet event to the session. Navigation events open
// the suppression window; a wallet that reports them ahead of the disconnect
// they cause gets that disconnect dropped.
func (c *Controller) HandleExtension(ev wallet.Event) {
	at := ev.At
	if at.IsZero() {
		at = c.clock.Now()
	}

	switch ev.Kind {
	case wallet.EventNavigated:
		c.dispatch(Event{Kind: EvNavigated, At: at})
	case wallet.EventConnecting:
		c.dispatch(Event{Kind: EvExtConnecting, At: at})
	case wallet.EventConnected:
		c.dispatch(Event{Kind: EvExtConnected, At: at, Address: ev.Address})
	case wallet.EventDisconnected:
		c.dispatch(Event{Kind: EvExtDisconnected, At: at})
	default:
		c.log.Debugf("ignoring wallet event %s", ev.Kind)
	}
}

// Attach subscribes to the wallet's connection events. When the source is
// also a Capability its current state is taken as the first event, and it is
// asked again whenever a dropped disconnect outlives its window.
func (c *Controller) Attach(source wallet.EventSource) {
	ch := make(chan wallet.Event, 16)
	sub := source.SubscribeEvents(ch)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		sub.Unsubscribe()
		return
	}
	c.sources = append(c.sources, sub)
	capability, ok := source.(wallet.Capability)
	if ok {
		c.capability = capability
	}
	c.wg.Add(1)
	c.mu.Unlock()

	if ok {
		switch {
		case capability.Connected():
			c.HandleExtension(wallet.Event{Kind: wallet.EventConnected, Address: capability.Address()})
		case capability.Connecting():
			c.HandleExtension(wallet.Event{Kind: wallet.EventConnecting})
		}
	}

	go func() {
		defer c.wg.Done()
		for {
			select {
			case ev := <-ch:
				c.HandleExtension(ev)
			case err := <-sub.Err():
				if err != nil {
					c.log.WithError(err).Warn("wallet event subscription failed")
				}
				return
			case <-c.quit:
				return
			}
		}
	}()
}

// Connect runs a user-initiated connect. The wallet may show its consent UI.
func (c *Controller) Connect(ctx context.Context, connector wallet.Connector) error {
	c.dispatch(Event{Kind: EvUserConnect, At: c.clock.Now()})

	address, err := connector.Connect(ctx)
	if err != nil {
		c.dispatch(Event{Kind: EvConnectFailed, At: c.clock.Now()})
		return fmt.Errorf("failed to connect wallet: %w", err)
	}

	c.dispatch(Event{Kind: EvExtConnected, At: c.clock.Now(), Address: address, Wallet: connector.Name()})
	return nil
}

// Disconnect runs a user-initiated disconnect: the cached session is
// forgotten before the wallet is told to disconnect. w may be nil.
func (c *Controller) Disconnect(ctx context.Context, w wallet.Capability) error {
	c.dispatch(Event{Kind: EvUserDisconnect, At: c.clock.Now()})

	if w == nil {
		return nil
	}
	if err := w.Disconnect(ctx); err != nil {
		c.log.WithError(err).Warn("wallet disconnect failed")
		return fmt.Errorf("failed to disconnect wallet: %w", err)
	}
	return nil
}

// State returns a snapshot of the session.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// View returns the current render model.
func (c *Controller) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.view
}

// Subscribe delivers every view change to ch, in order, from a publisher
// goroutine. A slow ch delays later views but never the session itself.
func (c *Controller) Subscribe(ch chan<- View) event.Subscription {
	return c.viewFeed.Subscribe(ch)
}

// Close stops timers and event subscriptions.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	sources := c.sources
	c.sources = nil
	c.capability = nil
	c.pending = nil
	close(c.quit)
	c.mu.Unlock()

	for _, sub := range sources {
		sub.Unsubscribe()
	}
	c.wg.Wait()
}

// dispatch runs the reducer and its effects under the lock and queues the
// view for the publisher. A wallet recheck runs after the lock is released.
func (c *Controller) dispatch(ev Event) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}

	prev := c.state
	next, effects := Reduce(prev, ev, c.timing)
	next, recheck := c.apply(next, effects)
	c.state = next
	c.arm(next)

	if next.Dropped > prev.Dropped {
		c.log.WithField("phase", next.Phase).Debug("disconnect signal dropped during navigation")
	}
	if next.Ignored > prev.Ignored {
		c.log.WithField("event", ev.Kind).Debug("ambient wallet signal ignored after disconnect")
	}
	if next.Phase != prev.Phase {
		c.log.WithFields(log.Fields{
			"event": ev.Kind,
			"from":  prev.Phase,
			"to":    next.Phase,
		}).Debug("session phase changed")
	}

	view := Render(next, c.explorer)
	if view != c.view {
		c.view = view
		c.pending = append(c.pending, view)
		select {
		case c.wake <- struct{}{}:
		default:
		}
	}
	c.mu.Unlock()

	if recheck {
		c.recheck()
	}
}

// publish sends queued views in order. A subscriber that stops draining
// stalls only this goroutine.
func (c *Controller) publish() {
	for {
		select {
		case <-c.quit:
			return
		case <-c.wake:
		}

		for {
			c.mu.Lock()
			views := c.pending
			c.pending = nil
			c.mu.Unlock()
			if len(views) == 0 {
				break
			}
			for _, view := range views {
				c.viewFeed.Send(view)
			}
		}
	}
}

// recheck takes the attached wallet's live state after a dropped disconnect
// outlived its window. A wallet that kept its session reconnects the view;
// otherwise the reconnect deadline stays armed.
func (c *Controller) recheck() {
	c.mu.Lock()
	capability := c.capability
	c.mu.Unlock()
	if capability == nil {
		return
	}

	if capability.Connected() {
		if address := capability.Address(); address != "" {
			c.log.Debug("wallet kept its session through the navigation")
			c.HandleExtension(wallet.Event{Kind: wallet.EventConnected, Address: address})
			return
		}
	}
	c.log.Debug("disconnect outlived the suppression window")
}

// apply performs effects. Must be called with the lock held.
func (c *Controller) apply(s State, effects []Effect) (State, bool) {
	var recheck bool
	for _, effect := range effects {
		switch effect {
		case EffectPersist:
			if err := c.persist(s); err != nil {
				c.log.WithError(err).Warn("failed to cache wallet session")
			}
		case EffectRestoreExtension:
			if err := c.restoreExtension(s); err != nil {
				c.log.WithError(err).Warn("failed to restore extension session, falling back to cold")
				s = toCold(s)
			}
		case EffectClear:
			for _, key := range []string{BackupNameKey, BackupAddressKey} {
				if err := c.store.Delete(key); err != nil {
					c.log.WithError(err).WithField("key", key).Warn("failed to clear wallet session key")
				}
			}
		case EffectRecheck:
			recheck = true
		}
	}
	return s, recheck
}

func (c *Controller) persist(s State) error {
	if err := c.store.Set(BackupAddressKey, s.Address); err != nil {
		return err
	}
	if s.Wallet == "" {
		return nil
	}
	return c.store.Set(BackupNameKey, s.Wallet)
}

// restoreExtension rewrites the extension key from the backup name when the
// extension removed it.
func (c *Controller) restoreExtension(s State) error {
	_, ok, err := c.store.Get(ExtensionKey)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}

	name := s.Wallet
	if name == "" {
		if name, err = c.get(BackupNameKey); err != nil {
			return err
		}
	}
	if name == "" {
		return nil
	}

	raw, err := json.Marshal(name)
	if err != nil {
		return err
	}
	c.log.WithField("wallet", name).Debug("restoring extension session key")
	return c.store.Set(ExtensionKey, string(raw))
}

// arm keeps a single timer on the state's next deadline. Must be called with
// the lock held.
func (c *Controller) arm(s State) {
	deadline, ok := s.NextDeadline()
	if ok && c.timer != nil && deadline.Equal(c.timerAt) {
		return
	}

	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
		c.timerAt = time.Time{}
	}
	if !ok {
		return
	}

	d := deadline.Sub(c.clock.Now())
	if d < 0 {
		d = 0
	}
	c.timerAt = deadline
	c.timer = c.clock.AfterFunc(d, func() {
		at := c.clock.Now()
		if at.Before(deadline) {
			at = deadline
		}
		c.dispatch(Event{Kind: EvTick, At: at})
	})
}

// ParseWalletKey extracts the wallet name from the extension's session key,
// which is either a JSON string or an object with walletName or name.
func ParseWalletKey(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}

	var name string
	if err := json.Unmarshal([]byte(raw), &name); err == nil {
		return name
	}

	var obj struct {
		WalletName string `json:"walletName"`
		Name       string `json:"name"`
	}
	if err := json.Unmarshal([]byte(raw), &obj); err == nil {
		if obj.WalletName != "" {
			return obj.WalletName
		}
		return obj.Name
	}
	return raw
}
