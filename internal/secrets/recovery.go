package secrets

import (
	"github.com/PolarWolf314/cryptdrive/internal/codec"
	kerrors "github.com/PolarWolf314/cryptdrive/internal/errors"
)

// RecoveryBundle is the private key sealed under a random recovery key.
// Losing the recovery key (and the password) makes the private key, and with
// it every DataKey wrapped for the account, permanently unrecoverable.
type RecoveryBundle struct {
	EncryptedPrivateKey string `toml:"encrypted_private_key_reco" json:"encrypted_private_key_reco"`
}

// NewRecoveryKey seals privatePEM under a fresh 256-bit key. The returned
// recovery key (base64) must be shown to the user once and never stored.
func NewRecoveryKey(privatePEM []byte) (*RecoveryBundle, string, error) {
	recoveryKey, err := randomBytes(DataKeySize)
	if err != nil {
		return nil, "", err
	}
	defer Zero(recoveryKey)

	blob, err := seal(recoveryKey, privatePEM)
	if err != nil {
		return nil, "", err
	}

	return &RecoveryBundle{EncryptedPrivateKey: codec.EncodeBase64(blob)}, codec.EncodeBase64(recoveryKey), nil
}

// OpenRecoveryBundle recovers the private key PEM with the recovery key.
func OpenRecoveryBundle(bundle *RecoveryBundle, recoveryKey string) ([]byte, error) {
	if bundle == nil {
		return nil, kerrors.ErrInvalidPassword
	}

	key, err := codec.DecodeBase64(recoveryKey)
	if err != nil || len(key) != DataKeySize {
		return nil, kerrors.ErrInvalidPassword
	}
	defer Zero(key)

	blob, err := codec.DecodeBase64(bundle.EncryptedPrivateKey)
	if err != nil {
		return nil, kerrors.ErrInvalidPassword
	}

	privatePEM, err := open(key, blob)
	if err != nil {
		return nil, kerrors.ErrInvalidPassword
	}
	return privatePEM, nil
}
