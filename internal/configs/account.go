package configs

import (
	"fmt"
	"os"
	"time"

	kerrors "github.com/PolarWolf314/cryptdrive/internal/errors"
	"github.com/PolarWolf314/cryptdrive/internal/secrets"
)

// Account is the local registration bundle written by "keys init". It holds
// nothing usable without the password or the recovery key.
type Account struct {
	User       AccountUser               `toml:"user"`
	PublicKey  string                    `toml:"public_key"`
	PrivateKey secrets.WrappedPrivateKey `toml:"private_key"`
	Recovery   *secrets.RecoveryBundle   `toml:"recovery,omitempty"`
	CreatedAt  time.Time                 `toml:"created_at"`
}

type AccountUser struct {
	Email    string `toml:"email"`
	Username string `toml:"username"`
}

// AccountExists reports whether account.toml is present.
func AccountExists() bool {
	_, err := os.Stat(UserCryptdriveSettings.AccountPath())
	return err == nil
}

// LoadAccount reads account.toml. It returns ErrAccountNotInitialized when
// the file does not exist.
func LoadAccount() (*Account, error) {
	path := UserCryptdriveSettings.AccountPath()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, kerrors.ErrAccountNotInitialized
	}

	account := &Account{}
	if err := LoadTOML(path, account); err != nil {
		return nil, fmt.Errorf("failed to load account: %w", err)
	}
	return account, nil
}

// SaveAccount writes account.toml.
func SaveAccount(account *Account) error {
	if err := SaveTOML(UserCryptdriveSettings.AccountPath(), account); err != nil {
		return fmt.Errorf("failed to save account: %w", err)
	}
	return nil
}
