package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"patronledger/core/types"
	"patronledger/native/rewards"
)

// SplitEntry assigns a basis-point share of each settled treasury amount to a
// pool. The table across one epoch group must sum to at most 10000 bps.
type SplitEntry struct {
	Pool string `toml:"Pool"`
	Bps  uint32 `toml:"Bps"`
}

// EpochConfig describes the platform epoch group settled lazily by the engine.
type EpochConfig struct {
	GroupID         string       `toml:"GroupID"`
	DurationSeconds int64        `toml:"DurationSeconds"`
	Splits          []SplitEntry `toml:"Splits"`
}

// Allocation seeds an account balance at first boot.
type Allocation struct {
	Address string `toml:"Address"`
	Balance string `toml:"Balance"`
}

// Config carries the daemon settings.
type Config struct {
	ListenAddress string       `toml:"ListenAddress"`
	DataDir       string       `toml:"DataDir"`
	Env           string       `toml:"Env"`
	PayoutVault   string       `toml:"PayoutVault"`
	Epoch         EpochConfig  `toml:"Epoch"`
	Genesis       []Allocation `toml:"Genesis"`
}

// Default returns the baseline configuration: a daily platform epoch split
// 70/30 between the platform holder and creator pools.
func Default() *Config {
	return &Config{
		ListenAddress: "127.0.0.1:8645",
		DataDir:       "./patrond-data",
		Env:           "local",
		PayoutVault:   "0x00000000000000000000000000000000000000fe",
		Epoch: EpochConfig{
			GroupID:         "platform",
			DurationSeconds: 86_400,
			Splits: []SplitEntry{
				{Pool: "platform/holders", Bps: 7000},
				{Pool: "platform/creators", Bps: 3000},
			},
		},
	}
}

// Load reads the configuration from the given path, writing a default file
// when none exists yet.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}
	cfg := &Config{}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func createDefault(path string) (*Config, error) {
	cfg := Default()
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for internal consistency.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.ListenAddress) == "" {
		return fmt.Errorf("config: listen address required")
	}
	if strings.TrimSpace(c.DataDir) == "" {
		return fmt.Errorf("config: data dir required")
	}
	vault, err := types.ParseAddress(c.PayoutVault)
	if err != nil {
		return fmt.Errorf("config: payout vault: %w", err)
	}
	if vault.IsZero() {
		return fmt.Errorf("config: payout vault must not be the zero address")
	}
	if strings.TrimSpace(c.Epoch.GroupID) == "" {
		return fmt.Errorf("config: epoch group id required")
	}
	if c.Epoch.DurationSeconds <= 0 {
		return fmt.Errorf("config: epoch duration must be positive")
	}
	group := rewards.EpochGroup{
		ID:            c.Epoch.GroupID,
		EpochDuration: c.Epoch.DurationSeconds,
		Splits:        c.SplitTable(),
	}
	if err := group.Validate(); err != nil {
		return err
	}
	for _, alloc := range c.Genesis {
		if _, err := types.ParseAddress(alloc.Address); err != nil {
			return fmt.Errorf("config: genesis allocation: %w", err)
		}
	}
	return nil
}

// SplitTable converts the configured entries into the engine's split type.
func (c *Config) SplitTable() []rewards.Split {
	splits := make([]rewards.Split, len(c.Epoch.Splits))
	for i, entry := range c.Epoch.Splits {
		splits[i] = rewards.Split{PoolID: entry.Pool, Bps: entry.Bps}
	}
	return splits
}

// Vault returns the parsed payout vault address. Validate must have passed.
func (c *Config) Vault() types.Address {
	vault, _ := types.ParseAddress(c.PayoutVault)
	return vault
}
