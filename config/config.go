package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// Config holds the escrow service configuration.
type Config struct {
	RPCAddress     string `toml:"RPCAddress"`
	MetricsAddress string `toml:"MetricsAddress"`
	DataDir        string `toml:"DataDir"`
	Env            string `toml:"Env"`

	Mints   []MintConfig   `toml:"Mints"`
	Genesis []GenesisEntry `toml:"Genesis"`
}

// MintConfig registers a fungible asset type at startup.
type MintConfig struct {
	Symbol   string `toml:"Symbol"`
	Name     string `toml:"Name"`
	Decimals uint8  `toml:"Decimals"`
}

// GenesisEntry seeds an address with storage credit and optionally a token
// balance on first start.
type GenesisEntry struct {
	Address       string `toml:"Address"`
	StorageCredit string `toml:"StorageCredit"`
	Mint          string `toml:"Mint,omitempty"`
	Amount        string `toml:"Amount,omitempty"`
}

// Load loads the configuration from the given path, creating a default file
// when none exists.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, err
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("config file %s contains unknown key %s", path, undecoded[0])
	}

	applyDefaults(cfg)
	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.RPCAddress) == "" {
		cfg.RPCAddress = ":8080"
	}
	if strings.TrimSpace(cfg.MetricsAddress) == "" {
		cfg.MetricsAddress = ":9090"
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		cfg.DataDir = "./escrow-data"
	}
	if cfg.Mints == nil {
		cfg.Mints = []MintConfig{}
	}
	if cfg.Genesis == nil {
		cfg.Genesis = []GenesisEntry{}
	}
}

func validate(cfg *Config) error {
	seen := make(map[string]struct{}, len(cfg.Mints))
	for _, mint := range cfg.Mints {
		symbol := strings.ToUpper(strings.TrimSpace(mint.Symbol))
		if symbol == "" {
			return fmt.Errorf("config: mint symbol must not be empty")
		}
		if _, dup := seen[symbol]; dup {
			return fmt.Errorf("config: mint %s declared twice", symbol)
		}
		seen[symbol] = struct{}{}
		if strings.TrimSpace(mint.Name) == "" {
			return fmt.Errorf("config: mint %s: name must not be empty", symbol)
		}
	}
	return nil
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	cfg := &Config{
		RPCAddress:     ":8080",
		MetricsAddress: ":9090",
		DataDir:        "./escrow-data",
		Mints:          []MintConfig{},
		Genesis:        []GenesisEntry{},
	}
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}
