package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadCreatesDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.RPCAddress != ":8645" {
		t.Fatalf("default RPCAddress: %q", cfg.RPCAddress)
	}
	if cfg.MaxCounterDepth != 16 {
		t.Fatalf("default MaxCounterDepth: %d", cfg.MaxCounterDepth)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("default file not written: %v", err)
	}

	// Loading the freshly written file round-trips.
	again, err := Load(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if *again != *cfg {
		t.Fatalf("round trip mismatch: %+v vs %+v", again, cfg)
	}
}

func TestLoadAppliesDefaultsToPartialFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("RPCAddress = \":9000\"\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.RPCAddress != ":9000" {
		t.Fatalf("explicit value lost: %q", cfg.RPCAddress)
	}
	if cfg.DataDir != "./otcswap-data" || cfg.Network != "otc-local" || cfg.MaxCounterDepth != 16 {
		t.Fatalf("defaults not applied: %+v", cfg)
	}
}

func TestEphemeralStorageSentinel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("DataDir = \":memory:\"\nAllowClientTimestamps = true\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.DataDir != MemoryDataDir || !cfg.EphemeralStorage() {
		t.Fatalf("sentinel not preserved: %q", cfg.DataDir)
	}
	if !cfg.AllowClientTimestamps {
		t.Fatalf("AllowClientTimestamps not decoded")
	}

	defaults := &Config{}
	applyDefaults(defaults)
	if defaults.EphemeralStorage() {
		t.Fatalf("default config must use persistent storage")
	}
	if defaults.AllowClientTimestamps {
		t.Fatalf("client timestamps must default off")
	}
}

func TestLoadRejectsOutOfRangeDepth(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("MaxCounterDepth = 4096\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestLoadRejectsMalformedTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("RPCAddress = [oops"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatalf("expected decode error")
	}
}
