package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"ghostswap/pkg/kv"
	"ghostswap/pkg/orchestrator"
	"ghostswap/pkg/session"
	"ghostswap/pkg/wallet"
)

// Wallet modes.
const (
	WalletSandbox = "sandbox"
	WalletBridge  = "bridge"
)

// Config holds the application configuration
type Config struct {
	StorageBackend string
	StoragePath    string // empty selects the backend's default under $HOME

	WalletMode    string
	WalletAddress string // sandbox account; generated on first use when empty
	BridgeURL     string
	PollInterval  time.Duration

	Origin       string
	Explorer     string
	Fees         map[string]uint64
	RefreshDelay time.Duration

	SuppressWindow time.Duration
	ReconnectGrace time.Duration
}

var globalConfig *Config

var feeFunctions = []string{
	wallet.FnMint,
	wallet.FnCreate,
	wallet.FnIssueTicket,
	wallet.FnSwap,
	wallet.FnCancel,
}

func setDefaults(v *viper.Viper) {
	timing := session.DefaultTiming()

	v.SetDefault("storage.backend", kv.BackendFile)
	v.SetDefault("storage.path", "")
	v.SetDefault("wallet.mode", WalletSandbox)
	v.SetDefault("wallet.address", "")
	v.SetDefault("wallet.bridge_url", "")
	v.SetDefault("wallet.poll_interval", 2*time.Second)
	v.SetDefault("origin", orchestrator.DefaultOrigin)
	v.SetDefault("explorer", session.DefaultExplorer)
	v.SetDefault("refresh_delay", orchestrator.DefaultRefreshDelay)
	v.SetDefault("session.suppress_window", timing.SuppressWindow)
	v.SetDefault("session.reconnect_grace", timing.ReconnectGrace)
	for _, fn := range feeFunctions {
		v.SetDefault("fees."+fn, orchestrator.DefaultFees[fn])
	}
}

// Load reads configuration from environment variables and config file. An
// empty configFile searches for .ghostswap.yaml in $HOME and the working
// directory; a missing file there is not an error.
func Load(configFile string) (*Config, error) {
	v := viper.New()
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName(".ghostswap")
		v.SetConfigType("yaml")
		v.AddConfigPath("$HOME")
		v.AddConfigPath(".")
	}

	setDefaults(v)

	// GHOSTSWAP_WALLET_MODE overrides wallet.mode
	v.SetEnvPrefix("GHOSTSWAP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &Config{
		StorageBackend: strings.ToLower(v.GetString("storage.backend")),
		StoragePath:    v.GetString("storage.path"),
		WalletMode:     strings.ToLower(v.GetString("wallet.mode")),
		WalletAddress:  v.GetString("wallet.address"),
		BridgeURL:      v.GetString("wallet.bridge_url"),
		PollInterval:   v.GetDuration("wallet.poll_interval"),
		Origin:         v.GetString("origin"),
		Explorer:       v.GetString("explorer"),
		Fees:           make(map[string]uint64, len(feeFunctions)),
		RefreshDelay:   v.GetDuration("refresh_delay"),
		SuppressWindow: v.GetDuration("session.suppress_window"),
		ReconnectGrace: v.GetDuration("session.reconnect_grace"),
	}
	for _, fn := range feeFunctions {
		cfg.Fees[fn] = v.GetUint64("fees." + fn)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	globalConfig = cfg
	return cfg, nil
}

// Validate checks that the configuration is usable
func (c *Config) Validate() error {
	switch c.StorageBackend {
	case kv.BackendFile, kv.BackendLevelDB:
	default:
		return fmt.Errorf("unknown storage backend %q (expected %s or %s)", c.StorageBackend, kv.BackendFile, kv.BackendLevelDB)
	}
	switch c.WalletMode {
	case WalletSandbox:
		if c.WalletAddress != "" {
			if err := wallet.ValidateAddress(c.WalletAddress); err != nil {
				return fmt.Errorf("wallet address: %w", err)
			}
		}
	case WalletBridge:
		if c.BridgeURL == "" {
			return fmt.Errorf("bridge URL not found. Please set GHOSTSWAP_WALLET_BRIDGE_URL or wallet.bridge_url in .ghostswap.yaml")
		}
	default:
		return fmt.Errorf("unknown wallet mode %q (expected %s or %s)", c.WalletMode, WalletSandbox, WalletBridge)
	}

	for fn, fee := range c.Fees {
		if fee == 0 {
			return fmt.Errorf("fee for %s must be greater than zero", fn)
		}
	}
	if c.SuppressWindow < 0 || c.ReconnectGrace <= 0 {
		return fmt.Errorf("session timings must be positive")
	}
	return nil
}

// Timing returns the session timing configured in c
func (c *Config) Timing() session.Timing {
	return session.Timing{
		SuppressWindow: c.SuppressWindow,
		ReconnectGrace: c.ReconnectGrace,
	}
}

// Orchestrator returns the orchestrator settings configured in c
func (c *Config) Orchestrator() orchestrator.Config {
	cfg := orchestrator.DefaultConfig()
	cfg.Origin = c.Origin
	cfg.Fees = c.Fees
	cfg.RefreshDelay = c.RefreshDelay
	return cfg
}

// Get returns the global configuration
func Get() *Config {
	if globalConfig == nil {
		cfg, err := Load("")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
			os.Exit(1)
		}
		return cfg
	}
	return globalConfig
}

// Set updates the global configuration
func Set(cfg *Config) {
	globalConfig = cfg
}
