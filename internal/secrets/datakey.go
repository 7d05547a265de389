package secrets

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/json"
	"fmt"

	"github.com/PolarWolf314/cryptdrive/internal/codec"
	kerrors "github.com/PolarWolf314/cryptdrive/internal/errors"
)

const (
	// DataKeySize is the length of a DataKey in bytes (AES-256).
	DataKeySize = 32

	// NonceSize is the AES-GCM nonce length.
	NonceSize = 12

	// TagSize is the AES-GCM authentication tag length.
	TagSize = 16
)

// DataKey is the symmetric key protecting one file or folder.
type DataKey []byte

// GenerateDataKey returns a fresh random DataKey.
func GenerateDataKey() (DataKey, error) {
	key, err := randomBytes(DataKeySize)
	if err != nil {
		return nil, err
	}
	return DataKey(key), nil
}

// ParseDataKey decodes the base64 wire form of a DataKey.
func ParseDataKey(s string) (DataKey, error) {
	raw, err := codec.DecodeBase64(s)
	if err != nil {
		return nil, err
	}
	return NewDataKey(raw)
}

// NewDataKey validates raw key bytes.
func NewDataKey(raw []byte) (DataKey, error) {
	if len(raw) != DataKeySize {
		return nil, fmt.Errorf("%w: expected %d bytes, got %d bytes", kerrors.ErrInvalidKeyLength, DataKeySize, len(raw))
	}
	return DataKey(raw), nil
}

// Encode returns the base64 wire form of the key.
func (k DataKey) Encode() string {
	return codec.EncodeBase64(k)
}

// Zero overwrites the key material.
func (k DataKey) Zero() {
	Zero(k)
}

// SealedChunk is one encrypted chunk together with its nonce.
type SealedChunk struct {
	CipherText []byte
	IV         []byte
}

func newGCM(key []byte) (cipher.AEAD, error) {
	if len(key) != DataKeySize {
		return nil, fmt.Errorf("%w: expected %d bytes, got %d bytes", kerrors.ErrInvalidKeyLength, DataKeySize, len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", kerrors.ErrCryptoUnavailable, err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", kerrors.ErrCryptoUnavailable, err)
	}
	return gcm, nil
}

// seal encrypts plaintext under key and returns nonce || ciphertext.
func seal(key, plaintext []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	nonce, err := randomBytes(NonceSize)
	if err != nil {
		return nil, err
	}
	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

// open reverses seal.
func open(key, blob []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	if len(blob) < NonceSize+TagSize {
		return nil, fmt.Errorf("%w: blob too short", kerrors.ErrAuthenticationFailed)
	}
	plaintext, err := gcm.Open(nil, blob[:NonceSize], blob[NonceSize:], nil)
	if err != nil {
		return nil, kerrors.ErrAuthenticationFailed
	}
	return plaintext, nil
}

// EncryptMetadata seals serialized metadata. The result is nonce || ciphertext.
func EncryptMetadata(plaintext []byte, key DataKey) ([]byte, error) {
	return seal(key, plaintext)
}

// DecryptMetadata opens a blob produced by EncryptMetadata.
func DecryptMetadata(blob []byte, key DataKey) ([]byte, error) {
	return open(key, blob)
}

// EncryptJSON marshals v and seals it with EncryptMetadata.
func EncryptJSON(v any, key DataKey) ([]byte, error) {
	plaintext, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal metadata: %w", err)
	}
	return EncryptMetadata(plaintext, key)
}

// DecryptJSON opens blob and unmarshals the plaintext into v.
func DecryptJSON(blob []byte, key DataKey, v any) error {
	plaintext, err := DecryptMetadata(blob, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(plaintext, v); err != nil {
		return fmt.Errorf("failed to parse decrypted metadata: %w", err)
	}
	return nil
}

// EncryptChunk seals one chunk under a fresh random nonce.
func EncryptChunk(plaintext []byte, key DataKey) (*SealedChunk, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	nonce, err := randomBytes(NonceSize)
	if err != nil {
		return nil, err
	}
	return &SealedChunk{
		CipherText: gcm.Seal(nil, nonce, plaintext, nil),
		IV:         nonce,
	}, nil
}

// DecryptChunk opens a chunk sealed by EncryptChunk.
func DecryptChunk(ciphertext, iv []byte, key DataKey) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	if len(iv) != NonceSize {
		return nil, fmt.Errorf("%w: nonce must be %d bytes", kerrors.ErrAuthenticationFailed, NonceSize)
	}
	plaintext, err := gcm.Open(nil, iv, ciphertext, nil)
	if err != nil {
		return nil, kerrors.ErrAuthenticationFailed
	}
	return plaintext, nil
}
