package workflows

import (
	"context"
	"fmt"
	"time"

	"github.com/PolarWolf314/cryptdrive/internal/audit"
	"github.com/PolarWolf314/cryptdrive/internal/configs"
	"github.com/PolarWolf314/cryptdrive/internal/secrets"
	"github.com/PolarWolf314/cryptdrive/internal/vault"
)

// UnlockOptions configures the keys unlock workflow.
type UnlockOptions struct {
	Password []byte
	Vault    VaultOptions
}

// UnlockResult contains the outcome of an unlock or recover operation.
type UnlockResult struct {
	Fingerprint string
	ExpiresAt   time.Time
}

// Unlock decrypts the private key in account.toml with the password and
// stores it in the vault until its TTL passes.
//
// Returns ErrAccountNotInitialized if no account exists.
// Returns ErrInvalidPassword for a wrong password or a corrupted bundle.
func Unlock(ctx context.Context, opts UnlockOptions) (*UnlockResult, error) {
	account, err := configs.LoadAccount()
	if err != nil {
		return nil, err
	}

	privatePEM, err := secrets.UnwrapPrivateKey(&account.PrivateKey, opts.Password)
	if err != nil {
		return nil, err
	}
	defer secrets.Zero(privatePEM)

	result, err := storeUnlocked(privatePEM, opts.Vault)
	if err != nil {
		return nil, err
	}

	audit.Log(audit.LogWithUser("unlock"))
	return result, nil
}

// RecoverOptions configures the keys recover workflow.
type RecoverOptions struct {
	RecoveryKey string

	// NewPassword replaces the password protecting the private key.
	NewPassword []byte

	Vault VaultOptions
}

// Recover opens the recovery bundle, protects the private key with a new
// password and unlocks it. The recovery key stays valid.
//
// Returns ErrInvalidPassword if the recovery key does not open the bundle.
func Recover(ctx context.Context, opts RecoverOptions) (*UnlockResult, error) {
	if len(opts.NewPassword) == 0 {
		return nil, fmt.Errorf("new password must not be empty")
	}

	account, err := configs.LoadAccount()
	if err != nil {
		return nil, err
	}

	privatePEM, err := secrets.OpenRecoveryBundle(account.Recovery, opts.RecoveryKey)
	if err != nil {
		return nil, err
	}
	defer secrets.Zero(privatePEM)

	config, err := configs.LoadConfig()
	if err != nil {
		return nil, err
	}
	params, err := config.KDFParams()
	if err != nil {
		return nil, err
	}

	wrapped, err := secrets.WrapPrivateKey(privatePEM, opts.NewPassword, params)
	if err != nil {
		return nil, fmt.Errorf("wrapping private key: %w", err)
	}
	account.PrivateKey = *wrapped
	if err := configs.SaveAccount(account); err != nil {
		return nil, err
	}

	result, err := storeUnlocked(privatePEM, opts.Vault)
	if err != nil {
		return nil, err
	}

	audit.Log(audit.LogWithUser("recover"))
	return result, nil
}

func storeUnlocked(privatePEM []byte, opts VaultOptions) (*UnlockResult, error) {
	config, err := configs.LoadConfig()
	if err != nil {
		return nil, err
	}
	keys, err := openKeyManager(config, opts)
	if err != nil {
		return nil, err
	}

	ttl := config.Keys.TTL.Std()
	if ttl <= 0 {
		ttl = vault.DefaultTTL
	}
	kp, err := keys.StorePEM(privatePEM, ttl)
	if err != nil {
		return nil, fmt.Errorf("storing keys in vault: %w", err)
	}

	fingerprint, err := secrets.Fingerprint(kp.Public)
	if err != nil {
		return nil, err
	}
	return &UnlockResult{Fingerprint: fingerprint, ExpiresAt: time.Now().Add(ttl)}, nil
}
