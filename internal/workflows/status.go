package workflows

import (
	"context"
	"errors"

	"github.com/PolarWolf314/cryptdrive/internal/configs"
	kerrors "github.com/PolarWolf314/cryptdrive/internal/errors"
	"github.com/PolarWolf314/cryptdrive/internal/secrets"
	"github.com/PolarWolf314/cryptdrive/internal/vault"
)

// StatusOptions configures the keys status workflow.
type StatusOptions struct {
	Vault VaultOptions
}

// StatusResult describes the local account and vault.
type StatusResult struct {
	// HasAccount is false until keys init has run.
	HasAccount bool
	Email      string
	Username   string

	// Fingerprint identifies the account public key.
	Fingerprint string

	// HasRecovery reports whether a recovery bundle exists.
	HasRecovery bool

	// KeyStatus is none, expired or ready.
	KeyStatus vault.KeyStatus

	// VaultMismatch is true when the vault holds a key pair that is not the
	// account's.
	VaultMismatch bool

	ServerConfigured bool
}

// Status reports whether an account exists and whether its private key is
// unlocked in the vault.
func Status(ctx context.Context, opts StatusOptions) (*StatusResult, error) {
	config, err := configs.LoadConfig()
	if err != nil {
		return nil, err
	}

	result := &StatusResult{
		KeyStatus:        vault.KeyStatusNone,
		ServerConfigured: config.RequireServer() == nil,
	}

	account, err := configs.LoadAccount()
	switch {
	case errors.Is(err, kerrors.ErrAccountNotInitialized):
		return result, nil
	case err != nil:
		return nil, err
	}

	result.HasAccount = true
	result.Email = account.User.Email
	result.Username = account.User.Username
	result.HasRecovery = account.Recovery != nil

	pub, err := secrets.ParsePublicKey([]byte(account.PublicKey))
	if err != nil {
		return nil, err
	}
	if result.Fingerprint, err = secrets.Fingerprint(pub); err != nil {
		return nil, err
	}

	keys, err := openKeyManager(config, opts.Vault)
	if errors.Is(err, kerrors.ErrPassphraseRequired) {
		return result, nil
	}
	if err != nil {
		return nil, err
	}

	if result.KeyStatus, err = keys.KeyStatus(); err != nil {
		return nil, err
	}
	if result.KeyStatus != vault.KeyStatusNone {
		stored, err := keys.PublicKey()
		if err == nil && !stored.Equal(pub) {
			result.VaultMismatch = true
		}
	}

	return result, nil
}
