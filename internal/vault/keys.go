package vault

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"time"

	kerrors "github.com/PolarWolf314/cryptdrive/internal/errors"
	"github.com/PolarWolf314/cryptdrive/internal/secrets"
)

const (
	// PrivateKeyID holds the unwrapped private key PEM for the session.
	PrivateKeyID = "user_private_key"

	// PublicKeyID holds the user's public key PEM.
	PublicKeyID = "user_public_key"

	// DefaultTTL is how long an unlocked private key stays usable.
	DefaultTTL = 10 * 24 * time.Hour
)

// KeyStatus describes whether the vault holds a usable private key.
type KeyStatus string

const (
	KeyStatusNone    KeyStatus = "none"
	KeyStatusExpired KeyStatus = "expired"
	KeyStatusReady   KeyStatus = "ready"
)

// KeyManager owns the user's key pair for the duration of a session and
// wraps or unwraps DataKeys with it.
type KeyManager struct {
	vault *Vault
	bits  int
}

// NewKeyManager returns a KeyManager that stores keys in v and generates
// key pairs of the given modulus size.
func NewKeyManager(v *Vault, bits int) *KeyManager {
	if bits == 0 {
		bits = secrets.DefaultKeyBits
	}
	return &KeyManager{vault: v, bits: bits}
}

// GenerateKeyPair creates a new key pair. It is not stored.
func (m *KeyManager) GenerateKeyPair() (*secrets.KeyPair, error) {
	return secrets.GenerateKeyPair(m.bits)
}

// Store persists kp. The private key expires after ttl; zero uses DefaultTTL.
func (m *KeyManager) Store(kp *secrets.KeyPair, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	privPEM, err := secrets.MarshalPrivateKey(kp.Private)
	if err != nil {
		return err
	}
	defer secrets.Zero(privPEM)

	pubPEM, err := secrets.MarshalPublicKey(kp.Public)
	if err != nil {
		return err
	}

	if err := m.vault.Put(PublicKeyID, pubPEM, 0); err != nil {
		return err
	}
	return m.vault.Put(PrivateKeyID, privPEM, ttl)
}

// StorePEM parses and persists a private key PEM, deriving the public key.
func (m *KeyManager) StorePEM(privPEM []byte, ttl time.Duration) (*secrets.KeyPair, error) {
	priv, err := secrets.ParsePrivateKey(privPEM)
	if err != nil {
		return nil, err
	}
	kp := &secrets.KeyPair{Public: &priv.PublicKey, Private: priv}
	if err := m.Store(kp, ttl); err != nil {
		return nil, err
	}
	return kp, nil
}

// PublicKey returns the stored public key.
func (m *KeyManager) PublicKey() (*rsa.PublicKey, error) {
	data, err := m.vault.Get(PublicKeyID)
	if err != nil {
		return nil, err
	}
	return secrets.ParsePublicKey(data)
}

// PrivateKey returns the stored private key, or ErrKeyExpired once its
// lifetime has passed.
func (m *KeyManager) PrivateKey() (*rsa.PrivateKey, error) {
	data, err := m.vault.Get(PrivateKeyID)
	if err != nil {
		return nil, err
	}
	defer secrets.Zero(data)
	return secrets.ParsePrivateKey(data)
}

// Wrap encrypts raw for the holder of pub.
func (m *KeyManager) Wrap(pub *rsa.PublicKey, raw []byte) ([]byte, error) {
	return secrets.WrapKey(pub, raw)
}

// WrapForSelf encrypts raw for the stored public key.
func (m *KeyManager) WrapForSelf(raw []byte) ([]byte, error) {
	pub, err := m.PublicKey()
	if err != nil {
		return nil, fmt.Errorf("failed to load own public key: %w", err)
	}
	return secrets.WrapKey(pub, raw)
}

// Unwrap decrypts a key wrapped for the stored private key.
func (m *KeyManager) Unwrap(ciphertext []byte) ([]byte, error) {
	priv, err := m.PrivateKey()
	if err != nil {
		return nil, err
	}
	return secrets.UnwrapKey(priv, ciphertext)
}

// UnwrapDataKey decrypts a wrapped DataKey and validates its length.
func (m *KeyManager) UnwrapDataKey(ciphertext []byte) (secrets.DataKey, error) {
	raw, err := m.Unwrap(ciphertext)
	if err != nil {
		return nil, err
	}
	return secrets.NewDataKey(raw)
}

// KeyStatus reports whether a private key is stored and still valid.
func (m *KeyManager) KeyStatus() (KeyStatus, error) {
	found, expired, err := m.vault.Exists(PrivateKeyID)
	if err != nil {
		return KeyStatusNone, err
	}
	switch {
	case !found:
		return KeyStatusNone, nil
	case expired:
		return KeyStatusExpired, nil
	default:
		return KeyStatusReady, nil
	}
}

// Forget removes both keys from the vault.
func (m *KeyManager) Forget() error {
	return errors.Join(m.vault.Delete(PrivateKeyID), m.vault.Delete(PublicKeyID))
}

// Close wipes the vault's sealing key from memory.
func (m *KeyManager) Close() {
	m.vault.Lock()
}

// IsLocked reports whether err means the user must unlock their key again.
func IsLocked(err error) bool {
	return errors.Is(err, kerrors.ErrKeyNotFound) || errors.Is(err, kerrors.ErrKeyExpired)
}
