package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// MemoryDataDir selects the in-memory backend instead of LevelDB; state is
// lost on shutdown.
const MemoryDataDir = ":memory:"

type Config struct {
	RPCAddress      string `toml:"RPCAddress"`
	DataDir         string `toml:"DataDir"`
	Network         string `toml:"Network"`
	LogFile         string `toml:"LogFile"`
	MaxCounterDepth uint32 `toml:"MaxCounterDepth"`
	// AllowClientTimestamps lets RPC callers supply their own "now" on
	// mutating methods. Development aid; leave off in any shared deployment.
	AllowClientTimestamps bool `toml:"AllowClientTimestamps"`
}

// EphemeralStorage reports whether the data directory selects the in-memory
// backend.
func (c *Config) EphemeralStorage() bool {
	return c.DataDir == MemoryDataDir
}

// Load loads the configuration from the given path, creating a default file
// when none exists yet.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	applyDefaults(cfg)
	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func createDefault(path string) (*Config, error) {
	cfg := &Config{}
	applyDefaults(cfg)
	if dir := filepath.Dir(path); dir != "." && dir != "" {
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

func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.RPCAddress) == "" {
		cfg.RPCAddress = ":8645"
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		cfg.DataDir = "./otcswap-data"
	}
	if strings.TrimSpace(cfg.Network) == "" {
		cfg.Network = "otc-local"
	}
	if cfg.MaxCounterDepth == 0 {
		cfg.MaxCounterDepth = 16
	}
}

func validate(cfg *Config) error {
	if cfg.MaxCounterDepth > 1024 {
		return fmt.Errorf("config: MaxCounterDepth %d out of range", cfg.MaxCounterDepth)
	}
	return nil
}
