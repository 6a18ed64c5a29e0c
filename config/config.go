// Package config resolves catena's runtime configuration: the five
// environment variables spec.md §6 names, an optional TOML overlay file for
// everything else, and an optional YAML contacts seed file.
//
// Grounded on postalsys-Muti-Metroo/internal/config/config.go for the
// shape (a Default/Load/Validate trio, env var expansion, redacted
// stringification) adapted to catena's much smaller surface.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Config is catena's resolved runtime configuration.
type Config struct {
	// Network selects the ledger endpoint: "mainnet", "testnet", or an
	// explicit URL that the RPC client POSTs JSON requests to.
	Network string `toml:"network"`

	// KeyRegistryAccount and RepositoryAccount name the two external
	// contracts spec.md §6 requires.
	KeyRegistryAccount string `toml:"key_registry_account"`
	RepositoryAccount  string `toml:"repository_account"`

	// SecretKeyBase64 carries messenger_secret_key, the X25519 DH scalar
	// Channel math runs on. Required independently of KeyFilePath: the two
	// name different keys for different purposes (spec.md §6).
	SecretKeyBase64 string `toml:"-"`

	// KeyFilePath points to an OpenPGP-armored key file holding the ledger
	// transaction signing key. Required independently of SecretKeyBase64.
	KeyFilePath string `toml:"key_file_path"`

	// LocalRepositoryPath, if set, backs the Repository with an embedded
	// bbolt database instead of the network client (SPEC_FULL.md §9,
	// "Local repository fallback").
	LocalRepositoryPath string `toml:"local_repository_path"`

	// DirectoryDSN, if set, layers a durable nickname cache atop the
	// session-local directory via Postgres.
	DirectoryDSN string `toml:"directory_dsn"`

	// MetricsEnabled turns on the Prometheus instrumentation decorator.
	MetricsEnabled bool `toml:"metrics_enabled"`

	// Contacts is populated from the optional YAML seed file, account id
	// to display nickname.
	Contacts map[string]string `toml:"-"`
}

const (
	envNetwork            = "CATENA_NETWORK"
	envKeyRegistryAccount = "CATENA_KEY_REGISTRY_ACCOUNT"
	envRepositoryAccount  = "CATENA_REPOSITORY_ACCOUNT"
	envSecretKey          = "CATENA_SECRET_KEY"
	envKeyFilePath        = "CATENA_KEY_FILE"
	envConfigOverlay      = "CATENA_CONFIG"
	envContactsSeed       = "CATENA_CONTACTS"
	envDirectoryDSN       = "CATENA_DIRECTORY_DSN"
)

// Load resolves configuration from the environment, an optional TOML
// overlay named by CATENA_CONFIG, and an optional YAML contacts seed named
// by CATENA_CONTACTS.
func Load() (*Config, error) {
	cfg := &Config{Contacts: make(map[string]string)}

	if overlay := os.Getenv(envConfigOverlay); overlay != "" {
		if _, err := toml.DecodeFile(overlay, cfg); err != nil {
			return nil, fmt.Errorf("config: decode overlay %s: %w", overlay, err)
		}
	}

	// The overlay only supplies defaults: a set environment variable wins.
	for env, field := range map[string]*string{
		envNetwork:            &cfg.Network,
		envKeyRegistryAccount: &cfg.KeyRegistryAccount,
		envRepositoryAccount:  &cfg.RepositoryAccount,
		envSecretKey:          &cfg.SecretKeyBase64,
		envKeyFilePath:        &cfg.KeyFilePath,
		envDirectoryDSN:       &cfg.DirectoryDSN,
	} {
		if v := os.Getenv(env); v != "" {
			*field = v
		}
	}

	if seed := os.Getenv(envContactsSeed); seed != "" {
		if err := cfg.loadContacts(seed); err != nil {
			return nil, err
		}
	}

	return cfg, cfg.Validate()
}

func (c *Config) loadContacts(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read contacts seed %s: %w", path, err)
	}
	var contacts map[string]string
	if err := yaml.Unmarshal(data, &contacts); err != nil {
		return fmt.Errorf("config: parse contacts seed %s: %w", path, err)
	}
	for account, nickname := range contacts {
		c.Contacts[account] = nickname
	}
	return nil
}

// Validate checks that the mandatory spec.md §6 variables are all present.
// SecretKeyBase64 and KeyFilePath name two independent keys that are both
// always required together, never alternatives to each other.
func (c *Config) Validate() error {
	var missing []string
	if c.Network == "" {
		missing = append(missing, envNetwork)
	}
	if c.KeyRegistryAccount == "" {
		missing = append(missing, envKeyRegistryAccount)
	}
	if c.RepositoryAccount == "" {
		missing = append(missing, envRepositoryAccount)
	}
	if c.SecretKeyBase64 == "" {
		missing = append(missing, envSecretKey)
	}
	if c.KeyFilePath == "" {
		missing = append(missing, envKeyFilePath)
	}
	if len(missing) > 0 {
		return fmt.Errorf("config: missing required settings: %s", strings.Join(missing, ", "))
	}
	return nil
}

// Endpoint resolves Network to a concrete RPC endpoint URL, expanding the
// two well-known network aliases spec.md §6 names.
func (c *Config) Endpoint() string {
	switch c.Network {
	case "mainnet":
		return "https://rpc.mainnet.catena.example/"
	case "testnet":
		return "https://rpc.testnet.catena.example/"
	default:
		return c.Network
	}
}
