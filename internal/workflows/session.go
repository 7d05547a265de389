package workflows

import (
	"context"
	"fmt"
	"net/http"

	"github.com/PolarWolf314/cryptdrive/internal/api"
	"github.com/PolarWolf314/cryptdrive/internal/configs"
	kerrors "github.com/PolarWolf314/cryptdrive/internal/errors"
	logger "github.com/PolarWolf314/cryptdrive/internal/logging"
	"github.com/PolarWolf314/cryptdrive/internal/secrets"
	"github.com/PolarWolf314/cryptdrive/internal/sharing"
	"github.com/PolarWolf314/cryptdrive/internal/transfer"
	"github.com/PolarWolf314/cryptdrive/internal/vault"

	"github.com/99designs/keyring"
)

// VaultOptions selects and unlocks the local key vault.
type VaultOptions struct {
	// Passphrase unlocks the vault. Empty falls back to
	// CRYPTDRIVE_VAULT_PASSPHRASE.
	Passphrase []byte

	// Ring replaces the configured keyring backend. Used by tests.
	Ring keyring.Keyring

	// KDF derives the vault key when the vault is created. Zero uses Argon2id.
	KDF secrets.KDFParams
}

// SessionOptions configures OpenSession.
type SessionOptions struct {
	Vault VaultOptions

	// HTTPClient replaces the pooled client used for backend calls.
	HTTPClient *http.Client

	// OnProgress receives transfer snapshots. It must not block.
	OnProgress func(transfer.Status)

	Log logger.Logger
}

// Session bundles what a command talking to the backend needs: the
// configuration, the unlocked key vault, the API client, the share
// propagator and one transfer manager.
type Session struct {
	Config     *configs.Config
	Keys       *vault.KeyManager
	Client     *api.Client
	Propagator *sharing.Propagator
	Transfers  *transfer.Manager
	Log        logger.Logger
}

// OpenSession loads the configuration, unlocks the vault and checks that a
// usable private key is stored.
//
// Returns ErrNotConfigured if the server URL or token is missing.
// Returns ErrKeyNotFound or ErrKeyExpired if the keys must be unlocked first.
func OpenSession(ctx context.Context, opts SessionOptions) (*Session, error) {
	config, err := configs.LoadConfig()
	if err != nil {
		return nil, err
	}
	if err := config.RequireServer(); err != nil {
		return nil, err
	}

	keys, err := openKeyManager(config, opts.Vault)
	if err != nil {
		return nil, err
	}
	status, err := keys.KeyStatus()
	if err != nil {
		return nil, fmt.Errorf("failed to read vault: %w", err)
	}
	switch status {
	case vault.KeyStatusNone:
		return nil, kerrors.ErrKeyNotFound
	case vault.KeyStatusExpired:
		return nil, kerrors.ErrKeyExpired
	}

	clientOpts := []api.Option{api.WithTimeout(config.Server.Timeout.Std())}
	if opts.HTTPClient != nil {
		clientOpts = append([]api.Option{api.WithHTTPClient(opts.HTTPClient)}, clientOpts...)
	}
	client, err := api.New(config.Server.BaseURL, config.Server.Token, clientOpts...)
	if err != nil {
		return nil, err
	}

	propagator := sharing.NewPropagator(client, keys, config.RetryPolicy(), opts.Log)

	tc := config.TransferConfig()
	tc.OnProgress = opts.OnProgress

	opts.Log.Debugf("Opened session against %s", config.Server.BaseURL)
	return &Session{
		Config:     config,
		Keys:       keys,
		Client:     client,
		Propagator: propagator,
		Transfers:  transfer.NewManager(client, keys, propagator, opts.Log, tc),
		Log:        opts.Log,
	}, nil
}

// Close waits for background work started during the session, then wipes
// the vault key.
func (s *Session) Close() {
	s.Transfers.Close()
	s.Keys.Close()
}

// openVault opens the vault described by config and opts.
func openVault(config *configs.Config, opts VaultOptions) (*vault.Vault, error) {
	passphrase := opts.Passphrase
	if len(passphrase) == 0 {
		passphrase = []byte(config.Vault.Passphrase)
	}
	if len(passphrase) == 0 {
		return nil, kerrors.ErrPassphraseRequired
	}

	params := opts.KDF
	if params.Algorithm == "" {
		params = secrets.Argon2idParams()
	}

	if opts.Ring != nil {
		return vault.New(opts.Ring, passphrase, params)
	}
	return vault.Open(vault.Config{
		Backend:    config.Vault.Backend,
		Dir:        config.VaultDir(),
		Passphrase: passphrase,
		KDF:        params,
	})
}

func openKeyManager(config *configs.Config, opts VaultOptions) (*vault.KeyManager, error) {
	v, err := openVault(config, opts)
	if err != nil {
		return nil, err
	}
	return vault.NewKeyManager(v, config.Keys.Bits), nil
}
