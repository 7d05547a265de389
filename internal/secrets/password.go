package secrets

import (
	"crypto/sha256"
	"fmt"

	"github.com/PolarWolf314/cryptdrive/internal/codec"
	kerrors "github.com/PolarWolf314/cryptdrive/internal/errors"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/pbkdf2"
)

// SaltSize is the length of the random salt used for password derivation.
const SaltSize = 16

// KDF names a password-based key derivation function.
type KDF string

const (
	KDFPBKDF2   KDF = "pbkdf2-sha256"
	KDFArgon2id KDF = "argon2id"
)

// KDFParams selects and tunes the password KDF. Memory is in KiB.
type KDFParams struct {
	Algorithm  KDF    `toml:"algorithm" json:"algorithm"`
	Iterations uint32 `toml:"iterations" json:"iterations"`
	Memory     uint32 `toml:"memory,omitempty" json:"memory,omitempty"`
	Threads    uint8  `toml:"threads,omitempty" json:"threads,omitempty"`
}

// DefaultKDFParams returns PBKDF2-HMAC-SHA256 with 100000 iterations.
func DefaultKDFParams() KDFParams {
	return KDFParams{Algorithm: KDFPBKDF2, Iterations: 100000}
}

// Argon2idParams returns the Argon2id profile (3 passes, 64 MiB, 4 lanes).
func Argon2idParams() KDFParams {
	return KDFParams{Algorithm: KDFArgon2id, Iterations: 3, Memory: 64 * 1024, Threads: 4}
}

// DeriveMasterKey stretches password and salt into a 32-byte wrapping key.
// The result only ever wraps the private key; it never touches user content.
func DeriveMasterKey(password, salt []byte, params KDFParams) ([]byte, error) {
	if len(salt) == 0 {
		return nil, fmt.Errorf("salt must not be empty")
	}

	switch params.Algorithm {
	case KDFPBKDF2, "":
		iterations := params.Iterations
		if iterations == 0 {
			iterations = DefaultKDFParams().Iterations
		}
		return pbkdf2.Key(password, salt, int(iterations), DataKeySize, sha256.New), nil
	case KDFArgon2id:
		if params.Iterations == 0 || params.Memory == 0 || params.Threads == 0 {
			return nil, fmt.Errorf("argon2id parameters must be non-zero")
		}
		return argon2.IDKey(password, salt, params.Iterations, params.Memory, params.Threads, DataKeySize), nil
	default:
		return nil, fmt.Errorf("unsupported KDF %q", params.Algorithm)
	}
}

// WrappedPrivateKey is the password-protected private key as stored by the
// backend and in the local account bundle.
type WrappedPrivateKey struct {
	// EncryptedPrivateKey is base64(nonce || AES-GCM ciphertext of the PKCS#8 PEM).
	EncryptedPrivateKey string    `toml:"encrypted_private_key" json:"encrypted_private_key"`
	Salt                string    `toml:"private_key_salt" json:"private_key_salt"`
	KDF                 KDFParams `toml:"kdf" json:"kdf"`
}

// WrapPrivateKey encrypts a private key PEM with a key derived from password.
func WrapPrivateKey(privatePEM, password []byte, params KDFParams) (*WrappedPrivateKey, error) {
	salt, err := randomBytes(SaltSize)
	if err != nil {
		return nil, err
	}

	masterKey, err := DeriveMasterKey(password, salt, params)
	if err != nil {
		return nil, err
	}
	defer Zero(masterKey)

	blob, err := seal(masterKey, privatePEM)
	if err != nil {
		return nil, err
	}

	return &WrappedPrivateKey{
		EncryptedPrivateKey: codec.EncodeBase64(blob),
		Salt:                codec.EncodeBase64(salt),
		KDF:                 params,
	}, nil
}

// UnwrapPrivateKey recovers the private key PEM. Every failure, including
// malformed fields, is reported as ErrInvalidPassword.
func UnwrapPrivateKey(w *WrappedPrivateKey, password []byte) ([]byte, error) {
	if w == nil {
		return nil, kerrors.ErrInvalidPassword
	}

	salt, err := codec.DecodeBase64(w.Salt)
	if err != nil {
		return nil, kerrors.ErrInvalidPassword
	}
	blob, err := codec.DecodeBase64(w.EncryptedPrivateKey)
	if err != nil {
		return nil, kerrors.ErrInvalidPassword
	}

	masterKey, err := DeriveMasterKey(password, salt, w.KDF)
	if err != nil {
		return nil, kerrors.ErrInvalidPassword
	}
	defer Zero(masterKey)

	privatePEM, err := open(masterKey, blob)
	if err != nil {
		return nil, kerrors.ErrInvalidPassword
	}
	return privatePEM, nil
}
