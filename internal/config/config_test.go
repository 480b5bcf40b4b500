package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/klingon-exchange/walletstore/internal/chain"
	"github.com/klingon-exchange/walletstore/internal/cosmos"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Storage.DataDir != "~/.walletstore" || cfg.Storage.CacheRetention != 7*24*time.Hour {
		t.Errorf("Storage = %+v", cfg.Storage)
	}
	if cfg.Logging.Format != "text" {
		t.Errorf("Logging.Format = %s", cfg.Logging.Format)
	}
	if !cfg.RPC.Enabled || cfg.RPC.Addr == "" {
		t.Errorf("RPC = %+v", cfg.RPC)
	}
	if cfg.Query.CacheMaxAge != 30*time.Second || cfg.Query.GCTimeout != 60*time.Second {
		t.Errorf("Query = %+v", cfg.Query)
	}
	if cfg.Chains.RegistrySource != chain.KeplrRegistrySource {
		t.Errorf("RegistrySource = %s", cfg.Chains.RegistrySource)
	}
	if cfg.Account.BroadcastMode != cosmos.BroadcastSync {
		t.Errorf("BroadcastMode = %s", cfg.Account.BroadcastMode)
	}
}

func TestLoadConfigCreatesDefault(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "walletstore-config-test")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tmpDir)

	cfg, err := LoadConfig(tmpDir)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Storage.DataDir != tmpDir {
		t.Errorf("DataDir = %s, want %s", cfg.Storage.DataDir, tmpDir)
	}
	if _, err := os.Stat(filepath.Join(tmpDir, ConfigFileName)); err != nil {
		t.Errorf("config file not created: %v", err)
	}
}

func TestLoadConfigReadsExisting(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "walletstore-config-test")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tmpDir)

	content := `logging:
  level: debug
query:
  cache_max_age: 5s
  refresh_interval: 1m
third_party:
  url: https://api.example.com
  chains: [cosmoshub-4, osmosis-1]
`
	if err := os.WriteFile(filepath.Join(tmpDir, ConfigFileName), []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(tmpDir)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %s", cfg.Logging.Level)
	}

	opts := cfg.QueriesOptions()
	if opts.Query.CacheMaxAge != 5*time.Second || opts.Query.RefreshInterval != time.Minute {
		t.Errorf("query options = %+v", opts.Query)
	}
	// Unset fields keep their defaults.
	if opts.Query.GCTimeout != 60*time.Second {
		t.Errorf("GCTimeout = %s", opts.Query.GCTimeout)
	}
	if opts.ThirdPartyURL != "https://api.example.com" || len(opts.ThirdPartyChains) != 2 {
		t.Errorf("third party = %s %v", opts.ThirdPartyURL, opts.ThirdPartyChains)
	}
}

func TestLoadConfigInvalid(t *testing.T) {
	tmpDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(tmpDir, ConfigFileName), []byte("query: [unclosed"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadConfig(tmpDir); err == nil {
		t.Error("expected parse error")
	}
}

func TestConfigSave(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "nested", ConfigFileName)

	if err := DefaultConfig().Save(path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(string(data), "# Wallet Store Configuration") {
		t.Error("config file missing header")
	}
	if !strings.Contains(string(data), "registry_source:") {
		t.Error("config file missing chains section")
	}
}

func TestTrackRetry(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Account.TrackRetries = 3
	cfg.Account.TrackInterval = time.Second

	retry := cfg.TrackRetry()
	if retry.MaxRetries != 3 || retry.WaitAfterError != time.Second {
		t.Errorf("retry = %+v", retry)
	}
	if retry.MaxWaitAfterError != 4*time.Second {
		t.Errorf("MaxWaitAfterError = %s", retry.MaxWaitAfterError)
	}
}

func TestRegistryPath(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Storage.DataDir = "/var/lib/walletstore"

	if got := cfg.RegistryPath(); got != "/var/lib/walletstore/registry" {
		t.Errorf("RegistryPath = %s", got)
	}
	if got := cfg.ChainsPath(); got != "" {
		t.Errorf("ChainsPath = %s", got)
	}
	cfg.Chains.Dir = "/etc/chains"
	if got := cfg.ChainsPath(); got != "/etc/chains" {
		t.Errorf("ChainsPath = %s", got)
	}
}

func TestExpandPath(t *testing.T) {
	home, _ := os.UserHomeDir()

	tests := []struct {
		input    string
		expected string
	}{
		{"~/test", filepath.Join(home, "test")},
		{"/absolute/path", "/absolute/path"},
		{"relative/path", "relative/path"},
	}

	for _, tt := range tests {
		if got := expandPath(tt.input); got != tt.expected {
			t.Errorf("expandPath(%s) = %s, want %s", tt.input, got, tt.expected)
		}
	}
}

func TestConfigPath(t *testing.T) {
	if got := ConfigPath("/data"); got != "/data/config.yaml" {
		t.Errorf("ConfigPath = %s", got)
	}
}
