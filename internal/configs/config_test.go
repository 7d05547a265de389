package configs

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	kerrors "github.com/PolarWolf314/cryptdrive/internal/errors"
	"github.com/PolarWolf314/cryptdrive/internal/secrets"
)

// useTempSettings points the user settings at a temporary directory.
func useTempSettings(t *testing.T) string {
	t.Helper()
	tempDir := t.TempDir()
	old := *UserCryptdriveSettings
	UserCryptdriveSettings.ConfigDir = filepath.Join(tempDir, "config")
	UserCryptdriveSettings.DataDir = filepath.Join(tempDir, "data")
	t.Cleanup(func() {
		*UserCryptdriveSettings = old
	})

	t.Setenv(EnvServerURL, "")
	t.Setenv(EnvToken, "")
	t.Setenv(EnvVaultPassphrase, "")
	return tempDir
}

func TestLoadConfigNonExistent(t *testing.T) {
	useTempSettings(t)

	config, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	want := DefaultConfig()
	if config.Transfer != want.Transfer {
		t.Errorf("Expected default transfer settings %+v, got %+v", want.Transfer, config.Transfer)
	}
	if config.Keys.Bits != secrets.DefaultKeyBits {
		t.Errorf("Expected %d key bits, got %d", secrets.DefaultKeyBits, config.Keys.Bits)
	}
	if config.VaultDir() != UserCryptdriveSettings.VaultDir() {
		t.Errorf("Expected default vault dir, got %s", config.VaultDir())
	}
}

func TestSaveAndLoadConfig(t *testing.T) {
	useTempSettings(t)

	config := DefaultConfig()
	config.Server.BaseURL = "https://drive.example.com/api"
	config.Server.Token = "secret-token"
	config.Transfer.Concurrency = 5
	config.Transfer.BaseDelay = Duration(250 * time.Millisecond)
	config.Keys.KDF = string(secrets.KDFArgon2id)

	if err := SaveConfig(config); err != nil {
		t.Fatalf("SaveConfig failed: %v", err)
	}

	data, err := os.ReadFile(UserCryptdriveSettings.ConfigPath())
	if err != nil {
		t.Fatalf("failed to read config: %v", err)
	}
	if !strings.Contains(string(data), `base_delay = "250ms"`) {
		t.Errorf("Expected durations to be written as strings, got:\n%s", data)
	}

	loaded, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if loaded.Server != config.Server {
		t.Errorf("Expected server %+v, got %+v", config.Server, loaded.Server)
	}
	if loaded.Transfer != config.Transfer {
		t.Errorf("Expected transfer %+v, got %+v", config.Transfer, loaded.Transfer)
	}

	params, err := loaded.KDFParams()
	if err != nil {
		t.Fatalf("KDFParams failed: %v", err)
	}
	if params.Algorithm != secrets.KDFArgon2id {
		t.Errorf("Expected argon2id, got %s", params.Algorithm)
	}
}

func TestLoadConfigPartialFile(t *testing.T) {
	useTempSettings(t)

	content := "[transfer]\nconcurrency = 2\nmax_jitter = \"0s\"\n"
	if err := os.MkdirAll(UserCryptdriveSettings.ConfigDir, 0700); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(UserCryptdriveSettings.ConfigPath(), []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	config, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if config.Transfer.Concurrency != 2 {
		t.Errorf("Expected concurrency 2, got %d", config.Transfer.Concurrency)
	}
	if config.Transfer.MaxJitter != 0 {
		t.Errorf("Expected zero jitter, got %s", config.Transfer.MaxJitter.Std())
	}
	if config.Transfer.ChunkSize != DefaultConfig().Transfer.ChunkSize {
		t.Errorf("Expected default chunk size to survive, got %d", config.Transfer.ChunkSize)
	}
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	useTempSettings(t)

	config := DefaultConfig()
	config.Server.BaseURL = "https://file.example.com"
	config.Server.Token = "from-file"
	if err := SaveConfig(config); err != nil {
		t.Fatalf("SaveConfig failed: %v", err)
	}

	t.Setenv(EnvToken, "from-env")
	t.Setenv(EnvVaultPassphrase, "hunter2")

	loaded, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if loaded.Server.Token != "from-env" {
		t.Errorf("Expected env token to win, got %q", loaded.Server.Token)
	}
	if loaded.Server.BaseURL != "https://file.example.com" {
		t.Errorf("Expected base URL from file, got %q", loaded.Server.BaseURL)
	}
	if loaded.Vault.Passphrase != "hunter2" {
		t.Errorf("Expected passphrase from env, got %q", loaded.Vault.Passphrase)
	}

	if err := SaveConfig(loaded); err != nil {
		t.Fatalf("SaveConfig failed: %v", err)
	}
	data, _ := os.ReadFile(UserCryptdriveSettings.ConfigPath())
	if strings.Contains(string(data), "hunter2") {
		t.Error("vault passphrase must never be written to config.toml")
	}
}

func TestLoadConfigMalformed(t *testing.T) {
	useTempSettings(t)

	if err := os.MkdirAll(UserCryptdriveSettings.ConfigDir, 0700); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(UserCryptdriveSettings.ConfigPath(), []byte("[transfer\n"), 0600); err != nil {
		t.Fatal(err)
	}

	if _, err := LoadConfig(); err == nil {
		t.Fatal("Expected error for malformed config")
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(c *Config)
	}{
		{"ZeroChunkSize", func(c *Config) { c.Transfer.ChunkSize = 0 }},
		{"OversizedChunk", func(c *Config) { c.Transfer.ChunkSize = 2 << 20 }},
		{"ZeroConcurrency", func(c *Config) { c.Transfer.Concurrency = 0 }},
		{"ZeroSimultaneous", func(c *Config) { c.Transfer.Simultaneous = 0 }},
		{"NegativeRetries", func(c *Config) { c.Transfer.MaxRetries = -1 }},
		{"NegativeDelay", func(c *Config) { c.Transfer.BaseDelay = Duration(-time.Second) }},
		{"SmallKey", func(c *Config) { c.Keys.Bits = 1024 }},
		{"UnknownKDF", func(c *Config) { c.Keys.KDF = "md5" }},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			config := DefaultConfig()
			tc.modify(config)
			if err := config.Validate(); !errors.Is(err, kerrors.ErrInvalidConfig) {
				t.Errorf("Expected ErrInvalidConfig, got %v", err)
			}
		})
	}

	t.Run("Defaults", func(t *testing.T) {
		if err := DefaultConfig().Validate(); err != nil {
			t.Errorf("Expected defaults to be valid, got %v", err)
		}
	})
}

func TestConfigRequireServer(t *testing.T) {
	config := DefaultConfig()
	if err := config.RequireServer(); !errors.Is(err, kerrors.ErrNotConfigured) {
		t.Errorf("Expected ErrNotConfigured, got %v", err)
	}

	config.Server.BaseURL = "http://localhost"
	if err := config.RequireServer(); !errors.Is(err, kerrors.ErrNotConfigured) {
		t.Errorf("Expected ErrNotConfigured without a token, got %v", err)
	}

	config.Server.Token = "t"
	if err := config.RequireServer(); err != nil {
		t.Errorf("Expected no error, got %v", err)
	}
}

func TestConfigTransferConfig(t *testing.T) {
	config := DefaultConfig()
	config.Transfer.MaxRetries = 0
	config.Transfer.BaseDelay = Duration(2 * time.Second)

	tc := config.TransferConfig()
	if tc.Retry.MaxRetries != 0 || tc.Retry.BaseDelay != 2*time.Second {
		t.Errorf("Unexpected retry policy %+v", tc.Retry)
	}
	if tc.ChunkSize != config.Transfer.ChunkSize || tc.Concurrency != config.Transfer.Concurrency {
		t.Errorf("Unexpected transfer config %+v", tc)
	}
}

func TestDurationText(t *testing.T) {
	var d Duration
	if err := d.UnmarshalText([]byte(" 1m30s ")); err != nil {
		t.Fatalf("UnmarshalText failed: %v", err)
	}
	if d.Std() != 90*time.Second {
		t.Errorf("Expected 90s, got %s", d.Std())
	}

	text, err := d.MarshalText()
	if err != nil {
		t.Fatalf("MarshalText failed: %v", err)
	}
	if string(text) != "1m30s" {
		t.Errorf("Expected 1m30s, got %s", text)
	}

	if err := d.UnmarshalText([]byte("soon")); err == nil {
		t.Error("Expected error for invalid duration")
	}
}

func TestAccount(t *testing.T) {
	useTempSettings(t)

	if AccountExists() {
		t.Fatal("Expected no account in a fresh directory")
	}
	if _, err := LoadAccount(); !errors.Is(err, kerrors.ErrAccountNotInitialized) {
		t.Fatalf("Expected ErrAccountNotInitialized, got %v", err)
	}

	account := &Account{
		User:      AccountUser{Email: "alice@example.com", Username: "alice"},
		PublicKey: "-----BEGIN PUBLIC KEY-----\nAAAA\n-----END PUBLIC KEY-----\n",
		PrivateKey: secrets.WrappedPrivateKey{
			EncryptedPrivateKey: "Y2lwaGVy",
			Salt:                "c2FsdA==",
			KDF:                 secrets.DefaultKDFParams(),
		},
		Recovery:  &secrets.RecoveryBundle{EncryptedPrivateKey: "cmVjb3Zlcnk="},
		CreatedAt: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}

	if err := SaveAccount(account); err != nil {
		t.Fatalf("SaveAccount failed: %v", err)
	}
	if !AccountExists() {
		t.Fatal("Expected account to exist after saving")
	}

	loaded, err := LoadAccount()
	if err != nil {
		t.Fatalf("LoadAccount failed: %v", err)
	}
	if loaded.User != account.User {
		t.Errorf("Expected user %+v, got %+v", account.User, loaded.User)
	}
	if loaded.PrivateKey != account.PrivateKey {
		t.Errorf("Expected private key %+v, got %+v", account.PrivateKey, loaded.PrivateKey)
	}
	if loaded.Recovery == nil || *loaded.Recovery != *account.Recovery {
		t.Errorf("Expected recovery bundle %+v, got %+v", account.Recovery, loaded.Recovery)
	}
	if !loaded.CreatedAt.Equal(account.CreatedAt) {
		t.Errorf("Expected created_at %s, got %s", account.CreatedAt, loaded.CreatedAt)
	}
}
