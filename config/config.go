// Package config loads the fvestd service configuration from TOML.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/ethereum/go-ethereum/common"
)

// Config is the on-disk service configuration.
type Config struct {
	RPCAddress string `toml:"RPCAddress"`
	NodeURL    string `toml:"NodeURL"`
	DataDir    string `toml:"DataDir"`
	Env        string `toml:"Env"`

	RewardToken    string `toml:"RewardToken"`
	PairedToken    string `toml:"PairedToken"`
	LiquidityToken string `toml:"LiquidityToken"`
	VaultAddress   string `toml:"VaultAddress"`
	Issuer         string `toml:"Issuer"`
	Owner          string `toml:"Owner"`
	ModuleAddress  string `toml:"ModuleAddress"`
	PoolID         string `toml:"PoolID"`
}

// Load reads and validates the configuration at path, filling defaults for
// optional service fields.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("config: load %s: %w", path, err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if strings.TrimSpace(c.RPCAddress) == "" {
		c.RPCAddress = "127.0.0.1:8651"
	}
	if strings.TrimSpace(c.DataDir) == "" {
		c.DataDir = "./fvest-data"
	}
	if strings.TrimSpace(c.Env) == "" {
		c.Env = "dev"
	}
}

// Validate checks that every contract address parses and the pool identifier
// is a 32-byte hex string.
func (c *Config) Validate() error {
	addresses := map[string]string{
		"RewardToken":    c.RewardToken,
		"PairedToken":    c.PairedToken,
		"LiquidityToken": c.LiquidityToken,
		"VaultAddress":   c.VaultAddress,
		"Issuer":         c.Issuer,
		"Owner":          c.Owner,
		"ModuleAddress":  c.ModuleAddress,
	}
	for field, value := range addresses {
		if !common.IsHexAddress(strings.TrimSpace(value)) {
			return fmt.Errorf("config: %s is not a valid address: %q", field, value)
		}
	}
	if _, err := c.ParsedPoolID(); err != nil {
		return err
	}
	if strings.TrimSpace(c.NodeURL) == "" {
		return fmt.Errorf("config: NodeURL is required")
	}
	return nil
}

// Address returns the named field parsed into a common.Address. Validate
// must have accepted the configuration first.
func (c *Config) Address(value string) common.Address {
	return common.HexToAddress(strings.TrimSpace(value))
}

// ParsedPoolID decodes the hex pool identifier.
func (c *Config) ParsedPoolID() ([32]byte, error) {
	var id [32]byte
	trimmed := strings.TrimPrefix(strings.TrimSpace(c.PoolID), "0x")
	raw := common.FromHex(trimmed)
	if len(raw) != 32 {
		return id, fmt.Errorf("config: PoolID must be 32 bytes of hex, got %q", c.PoolID)
	}
	copy(id[:], raw)
	return id, nil
}

// WriteDefault writes a commented template configuration to path, refusing
// to overwrite an existing file.
func WriteDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config: %s already exists", path)
	}
	template := `RPCAddress = "127.0.0.1:8651"
NodeURL = "http://127.0.0.1:8545"
DataDir = "./fvest-data"
Env = "dev"

RewardToken = "0x0000000000000000000000000000000000000000"
PairedToken = "0x0000000000000000000000000000000000000000"
LiquidityToken = "0x0000000000000000000000000000000000000000"
VaultAddress = "0x0000000000000000000000000000000000000000"
Issuer = "0x0000000000000000000000000000000000000000"
Owner = "0x0000000000000000000000000000000000000000"
ModuleAddress = "0x0000000000000000000000000000000000000000"
PoolID = "0x0000000000000000000000000000000000000000000000000000000000000000"
`
	return os.WriteFile(path, []byte(template), 0o600)
}
