// Package config loads the wallet store daemon configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/klingon-exchange/walletstore/internal/chain"
	"github.com/klingon-exchange/walletstore/internal/cosmos"
	"github.com/klingon-exchange/walletstore/internal/queries"
	"github.com/klingon-exchange/walletstore/internal/query"
	"github.com/klingon-exchange/walletstore/pkg/helpers"
)

// Config holds all daemon configuration.
type Config struct {
	// Storage settings
	Storage StorageConfig `yaml:"storage"`

	// Logging settings
	Logging LoggingConfig `yaml:"logging"`

	// RPC server settings
	RPC RPCConfig `yaml:"rpc"`

	// Query cache settings
	Query QueryConfig `yaml:"query"`

	// Batched third-party balance API
	ThirdParty ThirdPartyConfig `yaml:"third_party"`

	// Chain registry settings
	Chains ChainsConfig `yaml:"chains"`

	// Account settings
	Account AccountConfig `yaml:"account"`
}

// StorageConfig configures the SQLite store.
type StorageConfig struct {
	DataDir string `yaml:"data_dir"`
	// CacheRetention is how long an unrefreshed persisted query response
	// is kept. Zero keeps them forever.
	CacheRetention time.Duration `yaml:"cache_retention"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level string `yaml:"level"`
	// Format is text, json or logfmt.
	Format string `yaml:"format"`
	// File is an optional log file. Empty logs to stderr.
	File string `yaml:"file,omitempty"`
}

// RPCConfig configures the JSON-RPC and WebSocket server.
type RPCConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
	// Metrics exposes Prometheus metrics on /metrics.
	Metrics bool `yaml:"metrics"`
}

// QueryConfig tunes every observable query.
type QueryConfig struct {
	HTTPTimeout     time.Duration `yaml:"http_timeout"`
	CacheMaxAge     time.Duration `yaml:"cache_max_age"`
	RefreshInterval time.Duration `yaml:"refresh_interval"`
	GCTimeout       time.Duration `yaml:"gc_timeout"`
}

// ThirdPartyConfig configures the batched balance API.
type ThirdPartyConfig struct {
	URL    string   `yaml:"url"`
	Chains []string `yaml:"chains"`
}

// ChainsConfig configures where chain infos come from besides the built-in
// defaults.
type ChainsConfig struct {
	// RegistrySource is a go-getter source synced on startup. Empty skips it.
	RegistrySource string `yaml:"registry_source"`
	// RegistryDir is where the registry is downloaded to, relative to the
	// data directory unless absolute.
	RegistryDir string `yaml:"registry_dir"`
	// Dir holds additional chain info JSON files loaded as-is.
	Dir string `yaml:"dir,omitempty"`
}

// AccountConfig configures transaction sending and tracking.
type AccountConfig struct {
	BroadcastMode    string        `yaml:"broadcast_mode"`
	TrackRetries     int           `yaml:"track_retries"`
	TrackInterval    time.Duration `yaml:"track_interval"`
	TrackMaxInterval time.Duration `yaml:"track_max_interval"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	retry := helpers.DefaultRetryOptions()
	opts := query.DefaultOptions()
	return &Config{
		Storage: StorageConfig{
			DataDir:        "~/.walletstore",
			CacheRetention: 7 * 24 * time.Hour,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		RPC: RPCConfig{
			Enabled: true,
			Addr:    "127.0.0.1:8780",
			Metrics: true,
		},
		Query: QueryConfig{
			HTTPTimeout: query.DefaultHTTPTimeout,
			CacheMaxAge: opts.CacheMaxAge,
			GCTimeout:   opts.GCTimeout,
		},
		ThirdParty: ThirdPartyConfig{
			Chains: []string{},
		},
		Chains: ChainsConfig{
			RegistrySource: chain.KeplrRegistrySource,
			RegistryDir:    "registry",
		},
		Account: AccountConfig{
			BroadcastMode:    cosmos.BroadcastSync,
			TrackRetries:     retry.MaxRetries,
			TrackInterval:    retry.WaitAfterError,
			TrackMaxInterval: retry.MaxWaitAfterError,
		},
	}
}

// ConfigFileName is the name of the config file.
const ConfigFileName = "config.yaml"

// LoadConfig loads configuration from the data directory. A default config
// file is written on first run.
func LoadConfig(dataDir string) (*Config, error) {
	dataDir = expandPath(dataDir)
	configPath := filepath.Join(dataDir, ConfigFileName)

	cfg := DefaultConfig()
	cfg.Storage.DataDir = dataDir

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		if err := cfg.Save(configPath); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.Storage.DataDir = expandPath(cfg.Storage.DataDir)
	return cfg, nil
}

// Save writes the configuration to path.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := "# Wallet Store Configuration\n# Generated automatically on first run\n\n"
	data = append([]byte(header), data...)

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// QueryOptions returns the per-query options.
func (c *Config) QueryOptions() query.Options {
	return query.Options{
		CacheMaxAge:     c.Query.CacheMaxAge,
		RefreshInterval: c.Query.RefreshInterval,
		GCTimeout:       c.Query.GCTimeout,
	}
}

// QueriesOptions returns the options of the chain query store.
func (c *Config) QueriesOptions() queries.Options {
	return queries.Options{
		Query:            c.QueryOptions(),
		ThirdPartyURL:    c.ThirdParty.URL,
		ThirdPartyChains: c.ThirdParty.Chains,
	}
}

// TrackRetry returns the retry policy used while waiting for inclusion.
func (c *Config) TrackRetry() helpers.RetryOptions {
	retry := helpers.DefaultRetryOptions()
	if c.Account.TrackRetries > 0 {
		retry.MaxRetries = c.Account.TrackRetries
	}
	if c.Account.TrackInterval > 0 {
		retry.WaitAfterError = c.Account.TrackInterval
	}
	if c.Account.TrackMaxInterval > 0 {
		retry.MaxWaitAfterError = c.Account.TrackMaxInterval
	}
	return retry
}

// RegistryPath returns the absolute registry download directory.
func (c *Config) RegistryPath() string {
	return c.resolve(c.Chains.RegistryDir)
}

// ChainsPath returns the absolute extra chains directory, or "".
func (c *Config) ChainsPath() string {
	if c.Chains.Dir == "" {
		return ""
	}
	return c.resolve(c.Chains.Dir)
}

func (c *Config) resolve(path string) string {
	path = expandPath(path)
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(expandPath(c.Storage.DataDir), path)
}

// ConfigPath returns the config file path for a data directory.
func ConfigPath(dataDir string) string {
	return filepath.Join(expandPath(dataDir), ConfigFileName)
}

func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
