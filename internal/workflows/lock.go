package workflows

import (
	"context"

	"github.com/PolarWolf314/cryptdrive/internal/audit"
	"github.com/PolarWolf314/cryptdrive/internal/configs"
)

// LockOptions configures the keys lock workflow.
type LockOptions struct {
	Vault VaultOptions
}

// Lock removes the key pair from the vault. account.toml is kept, so the
// keys can be unlocked again with the password.
func Lock(ctx context.Context, opts LockOptions) error {
	config, err := configs.LoadConfig()
	if err != nil {
		return err
	}
	keys, err := openKeyManager(config, opts.Vault)
	if err != nil {
		return err
	}
	if err := keys.Forget(); err != nil {
		return err
	}

	audit.Log(audit.LogWithUser("lock"))
	return nil
}
