package secrets

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"fmt"
	"io"

	kerrors "github.com/PolarWolf314/cryptdrive/internal/errors"
)

// randReader is the entropy source for every key and nonce in this package.
var randReader io.Reader = rand.Reader

// randomBytes returns n bytes from randReader.
func randomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := io.ReadFull(randReader, b); err != nil {
		return nil, fmt.Errorf("%w: reading random bytes: %v", kerrors.ErrCryptoUnavailable, err)
	}
	return b, nil
}

// MaxWrapSize returns the largest payload WrapKey accepts for pub.
func MaxWrapSize(pub *rsa.PublicKey) int {
	return pub.Size() - 2*sha256.Size - 2
}

// WrapKey encrypts a short key with a recipient's public key using RSA-OAEP (SHA-256).
func WrapKey(pub *rsa.PublicKey, raw []byte) ([]byte, error) {
	if pub == nil {
		return nil, kerrors.ErrInvalidPublicKey
	}
	if len(raw) > MaxWrapSize(pub) {
		return nil, fmt.Errorf("%w: %d bytes, limit %d", kerrors.ErrKeyTooLarge, len(raw), MaxWrapSize(pub))
	}

	ciphertext, err := rsa.EncryptOAEP(sha256.New(), randReader, pub, raw, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", kerrors.ErrCryptoUnavailable, err)
	}
	return ciphertext, nil
}

// UnwrapKey decrypts a key wrapped by WrapKey. Any failure is reported as
// ErrDecryptionFailed and no bytes are returned.
func UnwrapKey(priv *rsa.PrivateKey, ciphertext []byte) ([]byte, error) {
	if priv == nil {
		return nil, kerrors.ErrKeyNotFound
	}

	raw, err := rsa.DecryptOAEP(sha256.New(), nil, priv, ciphertext, nil)
	if err != nil {
		return nil, kerrors.ErrDecryptionFailed
	}
	return raw, nil
}

// Zero overwrites b with zeros.
func Zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
