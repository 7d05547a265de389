package configs

import (
	"log"
	"os"
	"path/filepath"

	"github.com/PolarWolf314/cryptdrive/internal/utils"
)

// UserSettings holds the per-user directories cryptdrive reads and writes.
type UserSettings struct {
	// ConfigDir holds config.toml and account.toml.
	ConfigDir string
	// DataDir holds the file vault and the activity log.
	DataDir  string
	Username string
}

var UserCryptdriveSettings *UserSettings

func init() {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		log.Fatalf("error getting home directory: %s", err)
	}

	configDir, err := os.UserConfigDir()
	if err != nil {
		log.Fatalf("error getting config directory: %s", err)
	}

	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		dataDir = filepath.Join(homeDir, ".local", "share")
	}

	UserCryptdriveSettings = &UserSettings{
		ConfigDir: filepath.Join(configDir, "cryptdrive"),
		DataDir:   filepath.Join(dataDir, "cryptdrive"),
		Username:  utils.CurrentUsername(),
	}
}

func (s *UserSettings) ConfigPath() string {
	return filepath.Join(s.ConfigDir, "config.toml")
}

func (s *UserSettings) AccountPath() string {
	return filepath.Join(s.ConfigDir, "account.toml")
}

// VaultDir is where the file keyring backend keeps its records.
func (s *UserSettings) VaultDir() string {
	return filepath.Join(s.DataDir, "vault")
}

func (s *UserSettings) ActivityLogPath() string {
	return filepath.Join(s.DataDir, "activity.jsonl")
}
