package workflows

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/PolarWolf314/cryptdrive/internal/audit"
	"github.com/PolarWolf314/cryptdrive/internal/configs"
	kerrors "github.com/PolarWolf314/cryptdrive/internal/errors"
	"github.com/PolarWolf314/cryptdrive/internal/secrets"
	"github.com/PolarWolf314/cryptdrive/internal/utils"
)

// InitOptions configures the keys init workflow.
type InitOptions struct {
	Email string

	// Username defaults to the system username.
	Username string

	// Password protects the private key in account.toml.
	Password []byte

	Vault VaultOptions

	// Force replaces an existing account.
	Force bool
}

// InitResult contains the outcome of a keys init operation.
type InitResult struct {
	Account *configs.Account

	// RecoveryKey opens the recovery bundle. It is not stored anywhere and
	// must be shown to the user exactly once.
	RecoveryKey string

	// Fingerprint is the SHA-256 fingerprint of the new public key.
	Fingerprint string
}

// Init creates the user's key pair and account bundle.
//
// The private key is wrapped under a key derived from the password, sealed a
// second time under a fresh recovery key, and stored unlocked in the vault so
// the account is usable immediately.
//
// Returns ErrAccountExists if an account already exists and Force is unset.
func Init(ctx context.Context, opts InitOptions) (*InitResult, error) {
	if configs.AccountExists() && !opts.Force {
		return nil, kerrors.ErrAccountExists
	}

	email := strings.TrimSpace(opts.Email)
	if !utils.IsValidEmail(email) {
		return nil, fmt.Errorf("invalid email address %q", opts.Email)
	}
	if len(opts.Password) == 0 {
		return nil, fmt.Errorf("password must not be empty")
	}

	username := opts.Username
	if username == "" {
		username = configs.UserCryptdriveSettings.Username
	}

	config, err := configs.LoadConfig()
	if err != nil {
		return nil, err
	}
	params, err := config.KDFParams()
	if err != nil {
		return nil, err
	}

	keys, err := openKeyManager(config, opts.Vault)
	if err != nil {
		return nil, err
	}

	kp, err := keys.GenerateKeyPair()
	if err != nil {
		return nil, fmt.Errorf("generating key pair: %w", err)
	}

	privatePEM, err := secrets.MarshalPrivateKey(kp.Private)
	if err != nil {
		return nil, err
	}
	defer secrets.Zero(privatePEM)

	publicPEM, err := secrets.MarshalPublicKey(kp.Public)
	if err != nil {
		return nil, err
	}

	wrapped, err := secrets.WrapPrivateKey(privatePEM, opts.Password, params)
	if err != nil {
		return nil, fmt.Errorf("wrapping private key: %w", err)
	}

	recovery, recoveryKey, err := secrets.NewRecoveryKey(privatePEM)
	if err != nil {
		return nil, fmt.Errorf("creating recovery key: %w", err)
	}

	fingerprint, err := secrets.Fingerprint(kp.Public)
	if err != nil {
		return nil, err
	}

	account := &configs.Account{
		User:       configs.AccountUser{Email: email, Username: username},
		PublicKey:  string(publicPEM),
		PrivateKey: *wrapped,
		Recovery:   recovery,
		CreatedAt:  time.Now().UTC(),
	}
	if err := configs.SaveAccount(account); err != nil {
		return nil, err
	}

	if err := keys.Store(kp, config.Keys.TTL.Std()); err != nil {
		return nil, fmt.Errorf("storing keys in vault: %w", err)
	}

	entry := audit.LogWithUser("keys_init")
	audit.Log(entry)

	return &InitResult{
		Account:     account,
		RecoveryKey: recoveryKey,
		Fingerprint: fingerprint,
	}, nil
}
