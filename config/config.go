package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/walletpilot/walletpilot/chains"
)

type Config struct {
	// Telegram bot token from @BotFather
	TelegramToken string `json:"telegram_token"`

	// BIP39 mnemonic for the signing wallet. Empty enables demo mode:
	// swaps are simulated and nothing touches a chain.
	Mnemonic string `json:"mnemonic"`

	// Order backend base URL and bearer token
	BackendURL   string `json:"backend_url"`
	BackendToken string `json:"backend_token"`

	// Quote/router service base URL and API key
	OneinchURL    string `json:"oneinch_url"`
	OneinchAPIKey string `json:"oneinch_api_key"`

	// RPC endpoints keyed by decimal chain id, e.g. {"1": "https://..."}
	RPCEndpoints map[string]string `json:"rpc_endpoints"`

	// Chain the wallet starts on (default 1, Ethereum)
	DefaultChainID int64 `json:"default_chain_id"`

	// Path to the SQLite database
	DatabasePath string `json:"database_path"`

	// HTTP server port (default 8080)
	Port int `json:"port"`
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	if c.TelegramToken == "" {
		return fmt.Errorf("telegram_token is required")
	}
	if c.BackendURL == "" {
		return fmt.Errorf("backend_url is required")
	}
	if c.DatabasePath == "" {
		return fmt.Errorf("database_path is required")
	}
	if c.OneinchURL == "" {
		c.OneinchURL = "https://api.1inch.dev"
	}
	if c.DefaultChainID == 0 {
		c.DefaultChainID = int64(chains.Ethereum)
	}
	if c.Port == 0 {
		c.Port = 8080
	}
	if c.Mnemonic != "" && len(c.RPCEndpoints) == 0 {
		return fmt.Errorf("rpc_endpoints are required when a mnemonic is configured")
	}
	return nil
}

// DemoMode reports whether the bot runs without a signing wallet.
func (c *Config) DemoMode() bool {
	return c.Mnemonic == ""
}

// RPCByChain returns the configured endpoints keyed by chain ID. Keys that
// aren't decimal chain ids are rejected at startup rather than silently
// skipped.
func (c *Config) RPCByChain() (map[chains.ID]string, error) {
	out := make(map[chains.ID]string, len(c.RPCEndpoints))
	for key, url := range c.RPCEndpoints {
		id, err := strconv.ParseInt(key, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("rpc_endpoints: bad chain id %q", key)
		}
		out[chains.ID(id)] = url
	}
	return out, nil
}
