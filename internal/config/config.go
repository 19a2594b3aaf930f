// Package config loads the YAML configuration shared by the CLI and the RPC
// server.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/klingon-exchange/depositaddr/internal/chain"
	"github.com/klingon-exchange/depositaddr/internal/deposit"
	"github.com/klingon-exchange/depositaddr/internal/lombard"
	"github.com/klingon-exchange/depositaddr/internal/solana"
	"github.com/klingon-exchange/depositaddr/internal/verify"
	"github.com/klingon-exchange/depositaddr/pkg/helpers"
	"github.com/klingon-exchange/depositaddr/pkg/logging"
)

// Config holds all configuration for depositaddr.
type Config struct {
	// Network is the Bitcoin network (mainnet or signet).
	Network string `yaml:"network"`

	API     APIConfig     `yaml:"api"`
	Keys    KeysConfig    `yaml:"keys"`
	Solana  SolanaConfig  `yaml:"solana"`
	Verify  VerifyConfig  `yaml:"verify"`
	Storage StorageConfig `yaml:"storage"`
	RPC     RPCConfig     `yaml:"rpc"`
	Logging LoggingConfig `yaml:"logging"`
}

// APIConfig holds Lombard API settings.
type APIConfig struct {
	MainnetURL string        `yaml:"mainnet_url"`
	SignetURL  string        `yaml:"signet_url"`
	Timeout    time.Duration `yaml:"timeout"`
}

// KeysConfig overrides the built-in root public keys. Empty uses the
// built-in key of the network.
type KeysConfig struct {
	MainnetRootKey string `yaml:"mainnet_root_key,omitempty"`
	SignetRootKey  string `yaml:"signet_root_key,omitempty"`
}

// SolanaConfig holds Solana token account settings.
type SolanaConfig struct {
	// TokenProgram is the program owning the deposit token account.
	TokenProgram string `yaml:"token_program"`
}

// VerifyConfig holds verification settings.
type VerifyConfig struct {
	// Workers bounds concurrent derivations (0 = number of CPUs).
	Workers int `yaml:"workers"`
}

// StorageConfig holds storage settings.
type StorageConfig struct {
	// DataDir is the directory for the config file and history database.
	DataDir string `yaml:"data_dir"`

	// Record stores every verification run in the history database.
	Record bool `yaml:"record"`
}

// RPCConfig holds JSON-RPC server settings.
type RPCConfig struct {
	Listen string `yaml:"listen"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the log level (debug, info, warn, error).
	Level string `yaml:"level"`

	// JSON switches to JSON log lines.
	JSON bool `yaml:"json"`
}

// DefaultDataDir is where config and history live unless overridden.
const DefaultDataDir = "~/.depositaddr"

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Network: string(chain.Mainnet),
		API: APIConfig{
			MainnetURL: lombard.DefaultMainnetURL,
			SignetURL:  lombard.DefaultSignetURL,
			Timeout:    30 * time.Second,
		},
		Solana: SolanaConfig{
			TokenProgram: solana.TokenProgramID,
		},
		Storage: StorageConfig{
			DataDir: DefaultDataDir,
			Record:  true,
		},
		RPC: RPCConfig{
			Listen: "127.0.0.1:8645",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// ConfigFileName is the default config file name.
const ConfigFileName = "config.yaml"

// LoadConfig loads configuration from a YAML file in dataDir.
// If the file doesn't exist, it creates one with default values.
func LoadConfig(dataDir string) (*Config, error) {
	configPath := ConfigPath(dataDir)

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		cfg := DefaultConfig()
		cfg.Storage.DataDir = dataDir

		if err := cfg.Save(configPath); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", configPath, err)
	}
	return cfg, nil
}

// Save writes the configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte("# depositaddr configuration\n# Generated automatically on first run\n\n")
	data = append(header, data...)

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Validate checks values that would otherwise fail later at startup.
func (c *Config) Validate() error {
	network, err := c.NetworkType()
	if err != nil {
		return err
	}
	if _, err := c.RootPublicKey(network); err != nil {
		return err
	}
	if c.Verify.Workers < 0 {
		return fmt.Errorf("verify.workers must not be negative")
	}
	if c.API.Timeout < 0 {
		return fmt.Errorf("api.timeout must not be negative")
	}
	return nil
}

// NetworkType parses the configured network.
func (c *Config) NetworkType() (chain.Network, error) {
	return chain.ParseNetwork(c.Network)
}

// RootPublicKey returns the configured root key override for a network, or
// nil to use the built-in key.
func (c *Config) RootPublicKey(network chain.Network) ([]byte, error) {
	var s string
	switch network {
	case chain.Mainnet:
		s = c.Keys.MainnetRootKey
	case chain.Signet:
		s = c.Keys.SignetRootKey
	}
	if s == "" {
		return nil, nil
	}
	key, err := helpers.HexToBytes(s)
	if err != nil {
		return nil, fmt.Errorf("root key for %s: %w", network, err)
	}
	if len(key) != 33 {
		return nil, fmt.Errorf("root key for %s: got %d bytes, want 33", network, len(key))
	}
	return key, nil
}

// DepositConfig returns the deposit service configuration.
func (c *Config) DepositConfig() (*deposit.Config, error) {
	network, err := c.NetworkType()
	if err != nil {
		return nil, err
	}
	key, err := c.RootPublicKey(network)
	if err != nil {
		return nil, err
	}
	return &deposit.Config{Network: network, RootPublicKey: key}, nil
}

// LombardConfig returns the API client configuration.
func (c *Config) LombardConfig() *lombard.Config {
	return &lombard.Config{
		MainnetURL: c.API.MainnetURL,
		SignetURL:  c.API.SignetURL,
		Timeout:    c.API.Timeout,
	}
}

// VerifierConfig returns the verifier configuration.
func (c *Config) VerifierConfig() *verify.Config {
	return &verify.Config{
		Workers:      c.Verify.Workers,
		TokenProgram: c.Solana.TokenProgram,
	}
}

// LoggerConfig returns the logger configuration.
func (c *Config) LoggerConfig() *logging.Config {
	cfg := logging.DefaultConfig()
	cfg.Level = c.Logging.Level
	cfg.JSON = c.Logging.JSON
	return cfg
}

// ConfigPath returns the full path to the config file for the given data directory.
func ConfigPath(dataDir string) string {
	return filepath.Join(ExpandPath(dataDir), ConfigFileName)
}

// ExpandPath expands ~ to home directory.
func ExpandPath(path string) string {
	if len(path) > 0 && path[0] == '~' {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[1:])
	}
	return path
}
