package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestResolveAppliesNetworkParams(t *testing.T) {
	cfg := defaultConfig()
	cfg.DataDir = t.TempDir()
	cfg.LogDir = filepath.Join(cfg.DataDir, "logs")
	cfg.Network = "regtest"

	if err := cfg.resolve(); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if cfg.Params == nil {
		t.Fatal("expected Params to be resolved")
	}
	if cfg.Params.NetworkID != "regtest" {
		t.Fatalf("expected regtest params, got %s", cfg.Params.NetworkID)
	}
}

func TestResolveRejectsUnknownNetwork(t *testing.T) {
	cfg := defaultConfig()
	cfg.DataDir = t.TempDir()
	cfg.LogDir = filepath.Join(cfg.DataDir, "logs")
	cfg.Network = "not-a-real-network"

	if err := cfg.resolve(); err == nil {
		t.Fatal("expected resolve to reject an unknown network id")
	}
}

func TestResolveRejectsNegativeMinerWorkers(t *testing.T) {
	cfg := defaultConfig()
	cfg.DataDir = t.TempDir()
	cfg.LogDir = filepath.Join(cfg.DataDir, "logs")
	cfg.Network = "regtest"
	cfg.MinerWorkers = -1

	if err := cfg.resolve(); err == nil {
		t.Fatal("expected resolve to reject a negative miner worker count")
	}
}

func TestResolveCreatesDataAndLogDirs(t *testing.T) {
	cfg := defaultConfig()
	cfg.DataDir = filepath.Join(t.TempDir(), "data")
	cfg.LogDir = filepath.Join(cfg.DataDir, "logs")
	cfg.Network = "regtest"

	if err := cfg.resolve(); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	for _, dir := range []string{cfg.DataDir, cfg.LogDir} {
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			t.Fatalf("expected %s to exist as a directory, err=%v", dir, err)
		}
	}
}

func TestParseAppliesFlagOverrides(t *testing.T) {
	dataDir := t.TempDir()
	oldArgs := os.Args
	defer func() { os.Args = oldArgs }()
	os.Args = []string{"xaid", "--datadir", dataDir, "--network", "regtest", "--mineraddress", "xair1test"}

	cfg, err := Parse()
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.DataDir != dataDir {
		t.Fatalf("expected datadir %s, got %s", dataDir, cfg.DataDir)
	}
	if cfg.MinerAddress != "xair1test" {
		t.Fatalf("expected mineraddress to be applied, got %q", cfg.MinerAddress)
	}
	if cfg.Params.NetworkID != "regtest" {
		t.Fatalf("expected regtest params, got %s", cfg.Params.NetworkID)
	}
}
