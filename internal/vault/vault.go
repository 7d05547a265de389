package vault

import (
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/PolarWolf314/cryptdrive/internal/codec"
	kerrors "github.com/PolarWolf314/cryptdrive/internal/errors"
	"github.com/PolarWolf314/cryptdrive/internal/secrets"

	"github.com/99designs/keyring"
	"golang.org/x/crypto/nacl/secretbox"
)

const (
	// ServiceName is the keyring service every record is stored under.
	ServiceName = "cryptdrive"

	saltRecordID = "vault_salt"
	nonceSize    = 24
)

// Config selects where the vault keeps its records.
type Config struct {
	// Backend is a keyring backend name ("file", "keychain", "secret-service",
	// "wincred", "pass", ...). Empty means "file".
	Backend string

	// Dir is the directory used by the file backend.
	Dir string

	// Passphrase unlocks the vault. It seals every record and, for the file
	// backend, also protects the backend's own storage.
	Passphrase []byte

	// KDF derives the sealing key when a new vault is created. Existing vaults
	// keep the parameters they were created with.
	KDF secrets.KDFParams
}

// Vault is a local store of small secret records. Records are sealed with
// NaCl secretbox before they reach the keyring backend, so the backend only
// ever holds ciphertext.
type Vault struct {
	mu     sync.RWMutex
	ring   keyring.Keyring
	key    [32]byte
	locked bool
	now    func() time.Time
}

type saltRecord struct {
	Salt string            `json:"salt"`
	KDF  secrets.KDFParams `json:"kdf"`
}

type record struct {
	Data      []byte    `json:"data"`
	ExpiresAt time.Time `json:"expires_at,omitempty"`
}

// Open opens the configured keyring backend and unlocks the vault.
func Open(cfg Config) (*Vault, error) {
	backend := cfg.Backend
	if backend == "" {
		backend = string(keyring.FileBackend)
	}

	ring, err := keyring.Open(keyring.Config{
		ServiceName:             ServiceName,
		AllowedBackends:         []keyring.BackendType{keyring.BackendType(backend)},
		FileDir:                 cfg.Dir,
		FilePasswordFunc:        keyring.FixedStringPrompt(string(cfg.Passphrase)),
		KeychainName:            ServiceName,
		LibSecretCollectionName: ServiceName,
		KWalletAppID:            ServiceName,
		KWalletFolder:           ServiceName,
		WinCredPrefix:           ServiceName,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open %s keyring: %w", backend, err)
	}

	return New(ring, cfg.Passphrase, cfg.KDF)
}

// New unlocks a vault stored in ring. The first call against an empty ring
// creates the salt record using params; a wrong passphrase on an existing
// vault is detected on the first read and reported as ErrInvalidPassword.
func New(ring keyring.Keyring, passphrase []byte, params secrets.KDFParams) (*Vault, error) {
	if len(passphrase) == 0 {
		return nil, fmt.Errorf("vault passphrase must not be empty")
	}

	salt, params, err := loadOrCreateSalt(ring, params)
	if err != nil {
		return nil, err
	}

	derived, err := secrets.DeriveMasterKey(passphrase, salt, params)
	if err != nil {
		return nil, fmt.Errorf("failed to derive vault key: %w", err)
	}
	defer secrets.Zero(derived)

	v := &Vault{ring: ring, now: time.Now}
	copy(v.key[:], derived)
	return v, nil
}

func loadOrCreateSalt(ring keyring.Keyring, params secrets.KDFParams) ([]byte, secrets.KDFParams, error) {
	item, err := ring.Get(saltRecordID)
	if err == nil {
		var sr saltRecord
		if err := json.Unmarshal(item.Data, &sr); err != nil {
			return nil, params, fmt.Errorf("vault salt record is corrupted: %w", err)
		}
		salt, err := codec.DecodeBase64(sr.Salt)
		if err != nil {
			return nil, params, fmt.Errorf("vault salt record is corrupted: %w", err)
		}
		return salt, sr.KDF, nil
	}
	if !errors.Is(err, keyring.ErrKeyNotFound) {
		return nil, params, fmt.Errorf("failed to read vault salt: %w", err)
	}

	salt := make([]byte, secrets.SaltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, params, fmt.Errorf("%w: %v", kerrors.ErrCryptoUnavailable, err)
	}
	data, err := json.Marshal(saltRecord{Salt: codec.EncodeBase64(salt), KDF: params})
	if err != nil {
		return nil, params, err
	}
	if err := ring.Set(keyring.Item{Key: saltRecordID, Data: data, Label: "cryptdrive vault salt"}); err != nil {
		return nil, params, fmt.Errorf("failed to write vault salt: %w", err)
	}
	return salt, params, nil
}

// Put seals data and stores it under id. A ttl of zero never expires.
func (v *Vault) Put(id string, data []byte, ttl time.Duration) error {
	rec := record{Data: data}
	if ttl > 0 {
		rec.ExpiresAt = v.now().Add(ttl).UTC()
	}

	plain, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	defer secrets.Zero(plain)

	var nonce [nonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return fmt.Errorf("%w: %v", kerrors.ErrCryptoUnavailable, err)
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	if v.locked {
		return kerrors.ErrVaultLocked
	}
	sealed := secretbox.Seal(nonce[:], plain, &nonce, &v.key)
	if err := v.ring.Set(keyring.Item{Key: id, Data: sealed, Label: "cryptdrive " + id}); err != nil {
		return fmt.Errorf("failed to store %s: %w", id, err)
	}
	return nil
}

// Get returns the record stored under id. Missing records yield
// ErrKeyNotFound and expired ones ErrKeyExpired; neither returns data.
func (v *Vault) Get(id string) ([]byte, error) {
	rec, err := v.read(id)
	if err != nil {
		return nil, err
	}
	if v.expired(rec) {
		secrets.Zero(rec.Data)
		return nil, kerrors.ErrKeyExpired
	}
	return rec.Data, nil
}

// Exists reports whether id is stored and whether it has expired.
func (v *Vault) Exists(id string) (found, expired bool, err error) {
	rec, err := v.read(id)
	if errors.Is(err, kerrors.ErrKeyNotFound) {
		return false, false, nil
	}
	if err != nil {
		return false, false, err
	}
	defer secrets.Zero(rec.Data)
	return true, v.expired(rec), nil
}

// Delete removes id. Deleting a missing record is not an error.
func (v *Vault) Delete(id string) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if err := v.ring.Remove(id); err != nil && !errors.Is(err, keyring.ErrKeyNotFound) {
		return fmt.Errorf("failed to delete %s: %w", id, err)
	}
	return nil
}

func (v *Vault) read(id string) (*record, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if v.locked {
		return nil, kerrors.ErrVaultLocked
	}

	item, err := v.ring.Get(id)
	if errors.Is(err, keyring.ErrKeyNotFound) {
		return nil, kerrors.ErrKeyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", id, err)
	}

	if len(item.Data) < nonceSize+secretbox.Overhead {
		return nil, kerrors.ErrInvalidPassword
	}
	var nonce [nonceSize]byte
	copy(nonce[:], item.Data[:nonceSize])
	plain, ok := secretbox.Open(nil, item.Data[nonceSize:], &nonce, &v.key)
	if !ok {
		return nil, kerrors.ErrInvalidPassword
	}
	defer secrets.Zero(plain)

	var rec record
	if err := json.Unmarshal(plain, &rec); err != nil {
		return nil, fmt.Errorf("record %s is corrupted: %w", id, err)
	}
	return &rec, nil
}

func (v *Vault) expired(rec *record) bool {
	return !rec.ExpiresAt.IsZero() && !v.now().Before(rec.ExpiresAt)
}

// Lock zeroes the in-memory sealing key. Later reads and writes fail with
// ErrVaultLocked.
func (v *Vault) Lock() {
	v.mu.Lock()
	defer v.mu.Unlock()
	secrets.Zero(v.key[:])
	v.locked = true
}
