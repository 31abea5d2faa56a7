package config

import (
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"yieldnet/crypto"
)

// RemoteConfig describes a counterpart ledger the bridge may talk to.
type RemoteConfig struct {
	Domain        uint32 `toml:"Domain"`
	Allowed       bool   `toml:"Allowed"`
	PoolAddress   string `toml:"PoolAddress"`
	TokenIdentity string `toml:"TokenIdentity"`
	RPCEndpoint   string `toml:"RPCEndpoint"`
}

// LimitConfig shapes one direction of the bridge token bucket.
type LimitConfig struct {
	TokensPerSecond float64 `toml:"TokensPerSecond"`
	Burst           int     `toml:"Burst"`
}

// Config is the on-disk node configuration.
type Config struct {
	ListenAddress     string         `toml:"ListenAddress"`
	DataDir           string         `toml:"DataDir"`
	NetworkName       string         `toml:"NetworkName"`
	TokenSymbol       string         `toml:"TokenSymbol"`
	Domain            uint32         `toml:"Domain"`
	Owner             string         `toml:"Owner"`
	InitialGlobalRate string         `toml:"InitialGlobalRate"`
	Remotes           []RemoteConfig `toml:"Remotes"`
	OutboundLimit     LimitConfig    `toml:"OutboundLimit"`
	InboundLimit      LimitConfig    `toml:"InboundLimit"`
}

// Load loads the configuration from the given path, writing defaults when the
// file does not exist yet.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if strings.TrimSpace(c.ListenAddress) == "" {
		c.ListenAddress = ":8645"
	}
	if strings.TrimSpace(c.DataDir) == "" {
		c.DataDir = "./data"
	}
	if strings.TrimSpace(c.NetworkName) == "" {
		c.NetworkName = "yieldnet-local"
	}
	if strings.TrimSpace(c.TokenSymbol) == "" {
		c.TokenSymbol = "YLD"
	}
	if c.Domain == 0 {
		c.Domain = 1
	}
	if strings.TrimSpace(c.InitialGlobalRate) == "" {
		c.InitialGlobalRate = "0"
	}
}

func createDefault(path string) (*Config, error) {
	cfg := &Config{}
	cfg.applyDefaults()
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()
	return toml.NewEncoder(file).Encode(cfg)
}

// Parameters is the runtime-ready interpretation of the configuration.
type Parameters struct {
	ListenAddress     string
	DataDir           string
	NetworkName       string
	TokenSymbol       string
	Domain            uint32
	Owner             [20]byte
	OwnerSet          bool
	InitialGlobalRate *big.Int
	Remotes           []RemoteParameters
	OutboundLimit     LimitConfig
	InboundLimit      LimitConfig
}

// RemoteParameters is the decoded form of a RemoteConfig entry.
type RemoteParameters struct {
	Domain        uint32
	Allowed       bool
	PoolAddress   [20]byte
	TokenIdentity string
	RPCEndpoint   string
}

// Parameters converts textual fields into runtime values, validating
// addresses and the rate.
func (c *Config) Parameters() (Parameters, error) {
	params := Parameters{
		ListenAddress: strings.TrimSpace(c.ListenAddress),
		DataDir:       strings.TrimSpace(c.DataDir),
		NetworkName:   strings.TrimSpace(c.NetworkName),
		TokenSymbol:   strings.ToUpper(strings.TrimSpace(c.TokenSymbol)),
		Domain:        c.Domain,
		OutboundLimit: c.OutboundLimit,
		InboundLimit:  c.InboundLimit,
	}
	rateText := strings.TrimSpace(c.InitialGlobalRate)
	if rateText == "" {
		rateText = "0"
	}
	rate, ok := new(big.Int).SetString(rateText, 10)
	if !ok || rate.Sign() < 0 {
		return params, fmt.Errorf("config: invalid InitialGlobalRate %q", c.InitialGlobalRate)
	}
	params.InitialGlobalRate = rate
	if owner := strings.TrimSpace(c.Owner); owner != "" {
		addr, err := crypto.DecodeAddress(owner)
		if err != nil {
			return params, fmt.Errorf("config: invalid Owner: %w", err)
		}
		copy(params.Owner[:], addr.Bytes())
		params.OwnerSet = true
	}
	for _, remote := range c.Remotes {
		decoded := RemoteParameters{
			Domain:        remote.Domain,
			Allowed:       remote.Allowed,
			TokenIdentity: strings.ToUpper(strings.TrimSpace(remote.TokenIdentity)),
			RPCEndpoint:   strings.TrimRight(strings.TrimSpace(remote.RPCEndpoint), "/"),
		}
		if remote.Domain == 0 {
			return params, fmt.Errorf("config: remote Domain required")
		}
		// An allowed remote without a reachable endpoint would let locks burn
		// value with no way to deliver it.
		if remote.Allowed && decoded.RPCEndpoint == "" {
			return params, fmt.Errorf("config: remote domain %d requires RPCEndpoint", remote.Domain)
		}
		if pool := strings.TrimSpace(remote.PoolAddress); pool != "" {
			addr, err := crypto.DecodeAddress(pool)
			if err != nil {
				return params, fmt.Errorf("config: invalid PoolAddress for domain %d: %w", remote.Domain, err)
			}
			copy(decoded.PoolAddress[:], addr.Bytes())
		}
		params.Remotes = append(params.Remotes, decoded)
	}
	return params, nil
}
