package cmd

import (
	"context"
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"ghostswap/config"
	"ghostswap/pkg/kv"
	"ghostswap/pkg/orchestrator"
	"ghostswap/pkg/session"
	"ghostswap/pkg/store"
	"ghostswap/pkg/wallet"
)

// sandboxAccountKey keeps the generated sandbox account stable across runs.
const sandboxAccountKey = "ghostswap-sandbox-account"

// wiredWallet is what both wallet modes provide.
type wiredWallet interface {
	wallet.Capability
	wallet.Connector
	wallet.EventSource
}

// app wires storage, wallet, session and orchestrator for one invocation.
type app struct {
	cfg     *config.Config
	kv      kv.Store
	store   *store.Store
	wallet  wiredWallet
	sandbox *wallet.Sandbox // nil in bridge mode
	bridge  *wallet.Bridge  // nil in sandbox mode
	session *session.Controller
	orch    *orchestrator.Orchestrator
}

// newApp builds the app. Like a page load, it boots the session from storage
// and lets the wallet restore a remembered connection.
func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, err
	}

	backend, err := kv.Open(cfg.StorageBackend, cfg.StoragePath)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, kv: backend}
	if err := a.init(ctx); err != nil {
		_ = backend.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) init(ctx context.Context) error {
	st, err := store.New(a.kv)
	if err != nil {
		return err
	}
	a.store = st

	switch a.cfg.WalletMode {
	case config.WalletBridge:
		a.bridge = wallet.NewBridge(a.cfg.BridgeURL)
		if _, err := a.bridge.Refresh(ctx); err != nil {
			log.WithError(err).Warn("wallet bridge unavailable")
		}
		a.wallet = a.bridge
	default:
		account, err := a.sandboxAccount()
		if err != nil {
			return err
		}
		ledger, err := wallet.NewLedger(a.kv)
		if err != nil {
			return err
		}
		a.sandbox, err = wallet.NewSandbox(ledger, account, wallet.WithSessionStore(a.kv))
		if err != nil {
			return err
		}
		a.wallet = a.sandbox
	}

	a.session = session.New(a.kv,
		session.WithTiming(a.cfg.Timing()),
		session.WithExplorer(a.cfg.Explorer),
	)
	if a.sandbox != nil && a.session.State().Phase == session.Reconnecting {
		if !a.sandbox.Resume() {
			log.Debug("sandbox wallet session not remembered")
		}
	}
	a.session.Attach(a.wallet)

	a.orch = orchestrator.New(a.wallet, a.store, a.cfg.Orchestrator())
	return nil
}

func (a *app) sandboxAccount() (string, error) {
	if a.cfg.WalletAddress != "" {
		return a.cfg.WalletAddress, nil
	}

	account, ok, err := a.kv.Get(sandboxAccountKey)
	if err != nil {
		return "", fmt.Errorf("failed to read sandbox account: %w", err)
	}
	if ok {
		return account, nil
	}

	account = wallet.GenerateAddress()
	if err := a.kv.Set(sandboxAccountKey, account); err != nil {
		return "", fmt.Errorf("failed to store sandbox account: %w", err)
	}
	return account, nil
}

func (a *app) Close() {
	a.orch.Close()
	a.session.Close()
	if err := a.kv.Close(); err != nil {
		log.WithError(err).Warn("failed to close storage")
	}
}

// mustApp builds the app or exits, the way every command handles setup
// failures.
func mustApp(cmd *cobra.Command) *app {
	a, err := newApp(cmd.Context())
	if err != nil {
		printError(err)
		os.Exit(1)
	}
	return a
}

// fail prints err, releases the app and exits.
func (a *app) fail(err error) {
	printError(err)
	a.Close()
	os.Exit(1)
}
