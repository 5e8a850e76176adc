package wallet

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/andres-erbsen/clock"
	"github.com/ethereum/go-ethereum/event"
	log "github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"ghostswap/pkg/types"
)

const (
	DefaultBridgeTimeout      = 30 * time.Second
	DefaultBridgePollInterval = 2 * time.Second
)

var (
	// MaxNumOfFailingRequests is the request count after which the bridge
	// circuit may open.
	MaxNumOfFailingRequests = 10
	// FailingRatio is the share of failed requests that opens the circuit.
	FailingRatio = 0.6
)

// BridgeStatus is the connection state reported by the companion signer.
type BridgeStatus struct {
	Connected  bool   `json:"connected"`
	Connecting bool   `json:"connecting"`
	Address    string `json:"address,omitempty"`
	Wallet     string `json:"wallet,omitempty"`
	// Navigations counts client-side navigations of the signer's host page.
	// A change is published as EventNavigated ahead of the connection change
	// reported in the same status.
	Navigations uint64 `json:"navigations,omitempty"`
}

// Bridge talks to a companion signer process over JSON/HTTP. It implements
// Capability, Connector, EventSource and StatusChecker.
type Bridge struct {
	baseURL    string
	httpClient *http.Client
	cb         *gobreaker.CircuitBreaker
	clock      clock.Clock

	mu     sync.RWMutex
	status BridgeStatus

	feed event.Feed
}

// BridgeOption configures a Bridge.
type BridgeOption func(*Bridge)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c *http.Client) BridgeOption {
	return func(b *Bridge) { b.httpClient = c }
}

// WithBridgeClock replaces the clock used by Watch and for event timestamps.
func WithBridgeClock(c clock.Clock) BridgeOption {
	return func(b *Bridge) { b.clock = c }
}

// NewBridge creates a client for the signer at baseURL.
func NewBridge(baseURL string, opts ...BridgeOption) *Bridge {
	b := &Bridge{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: DefaultBridgeTimeout},
		cb:         newCircuitBreaker("wallet-bridge"),
		clock:      clock.New(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// newCircuitBreaker trips once more than MaxNumOfFailingRequests requests
// were made and the failing ratio reached FailingRatio.
func newCircuitBreaker(name string) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name: name,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			ratio := float64(counts.TotalFailures) / float64(counts.Requests)
			return int(counts.Requests) > MaxNumOfFailingRequests && ratio >= FailingRatio
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.WithField("breaker", name).Warnf("circuit state changed from %s to %s", from, to)
		},
	})
}

func (b *Bridge) Name() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.status.Wallet != "" {
		return b.status.Wallet
	}
	return "Wallet Bridge"
}

func (b *Bridge) Connected() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.status.Connected
}

func (b *Bridge) Connecting() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.status.Connecting
}

func (b *Bridge) Address() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if !b.status.Connected {
		return ""
	}
	return b.status.Address
}

// Refresh fetches the signer status and publishes an event when it changed.
func (b *Bridge) Refresh(ctx context.Context) (BridgeStatus, error) {
	var status BridgeStatus
	if err := b.do(ctx, http.MethodGet, "/status", nil, &status); err != nil {
		return BridgeStatus{}, fmt.Errorf("failed to get wallet status: %w", err)
	}
	b.apply(status)
	return status, nil
}

// Connect asks the signer to connect. The signer may prompt its user.
func (b *Bridge) Connect(ctx context.Context) (string, error) {
	var status BridgeStatus
	if err := b.do(ctx, http.MethodPost, "/connect", nil, &status); err != nil {
		return "", fmt.Errorf("failed to connect wallet: %w", err)
	}
	b.apply(status)
	if !status.Connected || status.Address == "" {
		return "", fmt.Errorf("wallet did not connect")
	}
	return status.Address, nil
}

func (b *Bridge) Disconnect(ctx context.Context) error {
	if err := b.do(ctx, http.MethodPost, "/disconnect", nil, nil); err != nil {
		return fmt.Errorf("failed to disconnect wallet: %w", err)
	}
	b.apply(BridgeStatus{})
	return nil
}

type recordsRequest struct {
	Program          string `json:"program"`
	IncludePlaintext bool   `json:"include_plaintext"`
}

type recordsResponse struct {
	Records []Record `json:"records"`
}

func (b *Bridge) RequestRecords(ctx context.Context, programID string, includePlaintext bool) ([]Record, error) {
	if !b.Connected() {
		return nil, ErrNotConnected
	}

	var resp recordsResponse
	req := recordsRequest{Program: programID, IncludePlaintext: includePlaintext}
	if err := b.do(ctx, http.MethodPost, "/records", req, &resp); err != nil {
		return nil, fmt.Errorf("failed to request records: %w", err)
	}
	return resp.Records, nil
}

type executeResponse struct {
	TransactionID string `json:"transaction_id"`
}

func (b *Bridge) ExecuteTransaction(ctx context.Context, tx Transaction) (string, error) {
	if !b.Connected() {
		return "", ErrNotConnected
	}

	var resp executeResponse
	if err := b.do(ctx, http.MethodPost, "/execute", tx, &resp); err != nil {
		return "", err
	}
	if resp.TransactionID == "" {
		return "", fmt.Errorf("empty transaction id in response")
	}
	return resp.TransactionID, nil
}

type statusResponse struct {
	Status types.TxStatus `json:"status"`
}

func (b *Bridge) TransactionStatus(ctx context.Context, txID string) (types.TxStatus, error) {
	var resp statusResponse
	if err := b.do(ctx, http.MethodGet, "/transactions/"+url.PathEscape(txID), nil, &resp); err != nil {
		return "", fmt.Errorf("failed to get transaction status: %w", err)
	}
	return resp.Status, nil
}

func (b *Bridge) SubscribeEvents(ch chan<- Event) event.Subscription {
	return b.feed.Subscribe(ch)
}

// Watch polls the signer status every interval until ctx is done.
func (b *Bridge) Watch(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultBridgePollInterval
	}
	ticker := b.clock.Ticker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := b.Refresh(ctx); err != nil {
				log.WithError(err).Debug("wallet bridge poll failed")
			}
		}
	}
}

// apply stores status and publishes the transition, if any.
func (b *Bridge) apply(status BridgeStatus) {
	b.mu.Lock()
	previous := b.status
	if status.Navigations == 0 {
		status.Navigations = previous.Navigations
	}
	b.status = status
	b.mu.Unlock()

	now := b.clock.Now()
	if status.Navigations != previous.Navigations {
		b.feed.Send(Event{Kind: EventNavigated, At: now})
	}

	switch {
	case status.Connected && (!previous.Connected || previous.Address != status.Address):
		b.feed.Send(Event{Kind: EventConnected, Address: status.Address, At: now})
	case status.Connecting && !previous.Connecting && !status.Connected:
		b.feed.Send(Event{Kind: EventConnecting, At: now})
	case !status.Connected && previous.Connected:
		b.feed.Send(Event{Kind: EventDisconnected, At: now})
	case !status.Connected && !status.Connecting && previous.Connecting:
		// the signer gave up on a connect
		b.feed.Send(Event{Kind: EventDisconnected, At: now})
	}
}

// do performs a JSON request through the circuit breaker. A 4xx answer is
// returned as an error carrying the signer's message and does not count as a
// breaker failure.
func (b *Bridge) do(ctx context.Context, method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	var clientErr error
	_, err := b.cb.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, method, b.baseURL+path, body)
		if err != nil {
			return nil, err
		}
		if in != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := b.httpClient.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, err
		}

		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			clientErr = apiError(resp.StatusCode, data)
			return nil, nil
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, apiError(resp.StatusCode, data)
		}

		if out != nil && len(data) > 0 {
			if err := json.Unmarshal(data, out); err != nil {
				return nil, fmt.Errorf("failed to unmarshal response: %w", err)
			}
		}
		return nil, nil
	})
	if err != nil {
		return err
	}
	return clientErr
}

// apiError extracts the signer's message from an error body.
func apiError(status int, body []byte) error {
	var errorResp map[string]interface{}
	if err := json.Unmarshal(body, &errorResp); err == nil {
		if message, ok := errorResp["message"].(string); ok {
			return fmt.Errorf("API error (status %d): %s", status, message)
		}
		if message, ok := errorResp["error"].(string); ok {
			return fmt.Errorf("API error (status %d): %s", status, message)
		}
	}
	if len(body) > 0 {
		return fmt.Errorf("API error (status %d): %s", status, strings.TrimSpace(string(body)))
	}
	return fmt.Errorf("API returned status code %d", status)
}
