package configs

import (
	"fmt"
	"os"
	"strings"
	"time"

	kerrors "github.com/PolarWolf314/cryptdrive/internal/errors"
	"github.com/PolarWolf314/cryptdrive/internal/retry"
	"github.com/PolarWolf314/cryptdrive/internal/secrets"
	"github.com/PolarWolf314/cryptdrive/internal/transfer"
)

// Environment variables that override the config file.
const (
	EnvServerURL       = "CRYPTDRIVE_SERVER_URL"
	EnvToken           = "CRYPTDRIVE_TOKEN"
	EnvVaultPassphrase = "CRYPTDRIVE_VAULT_PASSPHRASE"

	// EnvPassword supplies the account password to the keys commands
	// instead of a prompt. It is never read into Config.
	EnvPassword = "CRYPTDRIVE_PASSWORD"
)

type Config struct {
	Server   ServerConfig   `toml:"server"`
	Transfer TransferConfig `toml:"transfer"`
	Keys     KeysConfig     `toml:"keys"`
	Vault    VaultConfig    `toml:"vault"`
}

type ServerConfig struct {
	BaseURL string   `toml:"base_url"`
	Token   string   `toml:"token,omitempty"`
	Timeout Duration `toml:"timeout"`
}

type TransferConfig struct {
	ChunkSize       int      `toml:"chunk_size"`
	Concurrency     int      `toml:"concurrency"`
	Simultaneous    int      `toml:"simultaneous"`
	MaxRetries      int      `toml:"max_retries"`
	BaseDelay       Duration `toml:"base_delay"`
	MaxJitter       Duration `toml:"max_jitter"`
	StatsInterval   Duration `toml:"stats_interval"`
	StreamThreshold int64    `toml:"stream_threshold"`
}

type KeysConfig struct {
	Bits int    `toml:"bits"`
	KDF  string `toml:"kdf"`
	// TTL is how long an unlocked private key stays in the vault.
	TTL Duration `toml:"ttl"`
}

type VaultConfig struct {
	// Backend is a keyring backend name; "file" keeps records under Dir.
	Backend string `toml:"backend"`
	Dir     string `toml:"dir,omitempty"`
	// Passphrase is only ever read from the environment.
	Passphrase string `toml:"-"`
}

// Duration is a time.Duration written as a string such as "1.5s".
type Duration time.Duration

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) Std() time.Duration { return time.Duration(d) }

// DefaultConfig returns the settings used when no config file exists.
func DefaultConfig() *Config {
	policy := retry.DefaultPolicy()
	return &Config{
		Server: ServerConfig{
			Timeout: Duration(60 * time.Second),
		},
		Transfer: TransferConfig{
			ChunkSize:       transfer.DefaultChunkSize,
			Concurrency:     transfer.DefaultConcurrency,
			Simultaneous:    transfer.DefaultSimultaneous,
			MaxRetries:      policy.MaxRetries,
			BaseDelay:       Duration(policy.BaseDelay),
			MaxJitter:       Duration(policy.MaxJitter),
			StatsInterval:   Duration(transfer.DefaultStatsInterval),
			StreamThreshold: transfer.DefaultStreamThreshold,
		},
		Keys: KeysConfig{
			Bits: secrets.DefaultKeyBits,
			KDF:  string(secrets.KDFPBKDF2),
			TTL:  Duration(10 * 24 * time.Hour),
		},
		Vault: VaultConfig{
			Backend: "file",
		},
	}
}

// LoadConfig reads config.toml over the defaults and applies environment
// overrides. A missing file is not an error.
func LoadConfig() (*Config, error) {
	return LoadConfigFrom(UserCryptdriveSettings.ConfigPath())
}

// LoadConfigFrom is LoadConfig for an explicit path.
func LoadConfigFrom(path string) (*Config, error) {
	config := DefaultConfig()

	if _, err := os.Stat(path); err == nil {
		if err := LoadTOML(path, config); err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to stat config: %w", err)
	}

	config.applyEnv()

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// SaveConfig writes the config to config.toml.
func SaveConfig(config *Config) error {
	if err := SaveTOML(UserCryptdriveSettings.ConfigPath(), config); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}
	return nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv(EnvServerURL); v != "" {
		c.Server.BaseURL = v
	}
	if v := os.Getenv(EnvToken); v != "" {
		c.Server.Token = v
	}
	c.Vault.Passphrase = os.Getenv(EnvVaultPassphrase)
}

// Validate reports the first out-of-range value as ErrInvalidConfig.
func (c *Config) Validate() error {
	t := c.Transfer
	switch {
	case t.ChunkSize <= 0 || t.ChunkSize > transfer.DefaultChunkSize:
		return fmt.Errorf("%w: transfer.chunk_size must be between 1 and %d", kerrors.ErrInvalidConfig, transfer.DefaultChunkSize)
	case t.Concurrency <= 0:
		return fmt.Errorf("%w: transfer.concurrency must be positive", kerrors.ErrInvalidConfig)
	case t.Simultaneous <= 0:
		return fmt.Errorf("%w: transfer.simultaneous must be positive", kerrors.ErrInvalidConfig)
	case t.MaxRetries < 0:
		return fmt.Errorf("%w: transfer.max_retries must not be negative", kerrors.ErrInvalidConfig)
	case t.BaseDelay < 0 || t.MaxJitter < 0:
		return fmt.Errorf("%w: retry delays must not be negative", kerrors.ErrInvalidConfig)
	case c.Keys.Bits < secrets.MinKeyBits:
		return fmt.Errorf("%w: keys.bits must be at least %d", kerrors.ErrInvalidConfig, secrets.MinKeyBits)
	}

	if _, err := c.KDFParams(); err != nil {
		return err
	}
	return nil
}

// KDFParams returns the password KDF selected by keys.kdf.
func (c *Config) KDFParams() (secrets.KDFParams, error) {
	switch secrets.KDF(c.Keys.KDF) {
	case secrets.KDFPBKDF2, "":
		return secrets.DefaultKDFParams(), nil
	case secrets.KDFArgon2id:
		return secrets.Argon2idParams(), nil
	default:
		return secrets.KDFParams{}, fmt.Errorf("%w: unknown keys.kdf %q", kerrors.ErrInvalidConfig, c.Keys.KDF)
	}
}

// RetryPolicy converts the [transfer] retry settings.
func (c *Config) RetryPolicy() retry.Policy {
	return retry.Policy{
		MaxRetries: c.Transfer.MaxRetries,
		BaseDelay:  c.Transfer.BaseDelay.Std(),
		MaxJitter:  c.Transfer.MaxJitter.Std(),
	}
}

// TransferConfig converts the [transfer] section for a transfer.Manager.
func (c *Config) TransferConfig() transfer.Config {
	return transfer.Config{
		ChunkSize:       c.Transfer.ChunkSize,
		Concurrency:     c.Transfer.Concurrency,
		Simultaneous:    c.Transfer.Simultaneous,
		StreamThreshold: c.Transfer.StreamThreshold,
		StatsInterval:   c.Transfer.StatsInterval.Std(),
		Retry:           c.RetryPolicy(),
	}
}

// VaultDir returns vault.dir or the default under the data directory.
func (c *Config) VaultDir() string {
	if c.Vault.Dir != "" {
		return c.Vault.Dir
	}
	return UserCryptdriveSettings.VaultDir()
}

// RequireServer returns ErrNotConfigured unless a base URL and token are set.
func (c *Config) RequireServer() error {
	if c.Server.BaseURL == "" {
		return fmt.Errorf("%w: set server.base_url or %s", kerrors.ErrNotConfigured, EnvServerURL)
	}
	if c.Server.Token == "" {
		return fmt.Errorf("%w: set server.token or %s", kerrors.ErrNotConfigured, EnvToken)
	}
	return nil
}
