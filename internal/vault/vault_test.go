package vault

import (
	"bytes"
	"crypto/rand"
	"crypto/rsa"
	"errors"
	"sync"
	"testing"
	"time"

	kerrors "github.com/PolarWolf314/cryptdrive/internal/errors"
	"github.com/PolarWolf314/cryptdrive/internal/secrets"

	"github.com/99designs/keyring"
)

var testKDF = secrets.KDFParams{Algorithm: secrets.KDFPBKDF2, Iterations: 1000}

func newTestVault(t *testing.T, ring keyring.Keyring, passphrase string) *Vault {
	t.Helper()
	v, err := New(ring, []byte(passphrase), testKDF)
	if err != nil {
		t.Fatalf("failed to open vault: %v", err)
	}
	return v
}

func TestVault_PutGet(t *testing.T) {
	v := newTestVault(t, keyring.NewArrayKeyring(nil), "pass")

	if err := v.Put("record", []byte("secret"), 0); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	got, err := v.Get("record")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(got) != "secret" {
		t.Errorf("expected %q, got %q", "secret", got)
	}
}

func TestVault_BackendHoldsCiphertextOnly(t *testing.T) {
	ring := keyring.NewArrayKeyring(nil)
	v := newTestVault(t, ring, "pass")

	if err := v.Put("record", []byte("plaintext-marker"), 0); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	item, err := ring.Get("record")
	if err != nil {
		t.Fatalf("failed to read raw item: %v", err)
	}
	if bytes.Contains(item.Data, []byte("plaintext-marker")) {
		t.Error("backend record contains plaintext")
	}
}

func TestVault_Missing(t *testing.T) {
	v := newTestVault(t, keyring.NewArrayKeyring(nil), "pass")

	if _, err := v.Get("nope"); !errors.Is(err, kerrors.ErrKeyNotFound) {
		t.Errorf("expected ErrKeyNotFound, got %v", err)
	}
	if err := v.Delete("nope"); err != nil {
		t.Errorf("deleting a missing record should succeed, got %v", err)
	}
}

func TestVault_Expiry(t *testing.T) {
	v := newTestVault(t, keyring.NewArrayKeyring(nil), "pass")
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	v.now = func() time.Time { return now }

	if err := v.Put("record", []byte("data"), time.Hour); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	now = now.Add(59 * time.Minute)
	if _, err := v.Get("record"); err != nil {
		t.Errorf("expected record to be valid, got %v", err)
	}

	now = now.Add(time.Minute)
	got, err := v.Get("record")
	if !errors.Is(err, kerrors.ErrKeyExpired) {
		t.Errorf("expected ErrKeyExpired, got %v", err)
	}
	if got != nil {
		t.Error("expected no data for an expired record")
	}

	found, expired, err := v.Exists("record")
	if err != nil || !found || !expired {
		t.Errorf("expected found and expired, got found=%v expired=%v err=%v", found, expired, err)
	}
}

func TestVault_Reopen(t *testing.T) {
	ring := keyring.NewArrayKeyring(nil)
	v := newTestVault(t, ring, "pass")
	if err := v.Put("record", []byte("data"), 0); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	t.Run("same passphrase", func(t *testing.T) {
		reopened := newTestVault(t, ring, "pass")
		got, err := reopened.Get("record")
		if err != nil || string(got) != "data" {
			t.Errorf("expected data, got %q err=%v", got, err)
		}
	})

	t.Run("wrong passphrase", func(t *testing.T) {
		reopened := newTestVault(t, ring, "other")
		if _, err := reopened.Get("record"); !errors.Is(err, kerrors.ErrInvalidPassword) {
			t.Errorf("expected ErrInvalidPassword, got %v", err)
		}
	})
}

func TestVault_EmptyPassphrase(t *testing.T) {
	if _, err := New(keyring.NewArrayKeyring(nil), nil, testKDF); err == nil {
		t.Error("expected error for empty passphrase")
	}
}

func TestVault_ConcurrentAccess(t *testing.T) {
	v := newTestVault(t, keyring.NewArrayKeyring(nil), "pass")
	if err := v.Put("record", []byte("v0"), 0); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			if err := v.Put("record", []byte("v1"), 0); err != nil {
				t.Errorf("Put failed: %v", err)
			}
		}()
		go func() {
			defer wg.Done()
			got, err := v.Get("record")
			if err != nil {
				t.Errorf("Get failed: %v", err)
				return
			}
			if s := string(got); s != "v0" && s != "v1" {
				t.Errorf("observed torn record %q", s)
			}
		}()
	}
	wg.Wait()
}

func TestVault_LockDuringAccess(t *testing.T) {
	v := newTestVault(t, keyring.NewArrayKeyring(nil), "pass")
	if err := v.Put("record", []byte("secret"), 0); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			got, err := v.Get("record")
			if err == nil && string(got) != "secret" {
				t.Errorf("observed corrupted record %q", got)
			}
			if err != nil && !errors.Is(err, kerrors.ErrVaultLocked) {
				t.Errorf("expected ErrVaultLocked, got %v", err)
			}
		}()
		go func() {
			defer wg.Done()
			if err := v.Put("other", []byte("data"), 0); err != nil && !errors.Is(err, kerrors.ErrVaultLocked) {
				t.Errorf("expected ErrVaultLocked, got %v", err)
			}
		}()
	}
	v.Lock()
	wg.Wait()

	if _, err := v.Get("record"); !errors.Is(err, kerrors.ErrVaultLocked) {
		t.Errorf("expected ErrVaultLocked after Lock, got %v", err)
	}
	if err := v.Put("record", []byte("x"), 0); !errors.Is(err, kerrors.ErrVaultLocked) {
		t.Errorf("expected ErrVaultLocked after Lock, got %v", err)
	}
}

func TestKeyManager(t *testing.T) {
	v := newTestVault(t, keyring.NewArrayKeyring(nil), "pass")
	km := NewKeyManager(v, secrets.MinKeyBits)

	status, err := km.KeyStatus()
	if err != nil || status != KeyStatusNone {
		t.Fatalf("expected status none, got %s err=%v", status, err)
	}
	if _, err := km.WrapForSelf([]byte("k")); !errors.Is(err, kerrors.ErrKeyNotFound) {
		t.Errorf("expected ErrKeyNotFound before store, got %v", err)
	}

	kp, err := km.GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair failed: %v", err)
	}
	if err := km.Store(kp, 0); err != nil {
		t.Fatalf("Store failed: %v", err)
	}

	status, err = km.KeyStatus()
	if err != nil || status != KeyStatusReady {
		t.Fatalf("expected status ready, got %s err=%v", status, err)
	}

	dataKey, err := secrets.GenerateDataKey()
	if err != nil {
		t.Fatalf("GenerateDataKey failed: %v", err)
	}
	wrapped, err := km.WrapForSelf(dataKey)
	if err != nil {
		t.Fatalf("WrapForSelf failed: %v", err)
	}
	unwrapped, err := km.UnwrapDataKey(wrapped)
	if err != nil {
		t.Fatalf("UnwrapDataKey failed: %v", err)
	}
	if !bytes.Equal(unwrapped, dataKey) {
		t.Error("unwrapped DataKey does not match")
	}

	t.Run("foreign ciphertext", func(t *testing.T) {
		other, err := rsa.GenerateKey(rand.Reader, secrets.MinKeyBits)
		if err != nil {
			t.Fatalf("failed to generate key: %v", err)
		}
		foreign, err := km.Wrap(&other.PublicKey, dataKey)
		if err != nil {
			t.Fatalf("Wrap failed: %v", err)
		}
		if _, err := km.Unwrap(foreign); !errors.Is(err, kerrors.ErrDecryptionFailed) {
			t.Errorf("expected ErrDecryptionFailed, got %v", err)
		}
	})

	t.Run("expired", func(t *testing.T) {
		v.now = func() time.Time { return time.Now().Add(DefaultTTL + time.Minute) }
		defer func() { v.now = time.Now }()

		status, err := km.KeyStatus()
		if err != nil || status != KeyStatusExpired {
			t.Errorf("expected status expired, got %s err=%v", status, err)
		}
		_, err = km.Unwrap(wrapped)
		if !errors.Is(err, kerrors.ErrKeyExpired) || !IsLocked(err) {
			t.Errorf("expected ErrKeyExpired, got %v", err)
		}
	})

	if err := km.Forget(); err != nil {
		t.Fatalf("Forget failed: %v", err)
	}
	status, err = km.KeyStatus()
	if err != nil || status != KeyStatusNone {
		t.Errorf("expected status none after forget, got %s err=%v", status, err)
	}
}

func TestKeyManager_StorePEM(t *testing.T) {
	v := newTestVault(t, keyring.NewArrayKeyring(nil), "pass")
	km := NewKeyManager(v, secrets.MinKeyBits)

	kp, err := km.GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair failed: %v", err)
	}
	privPEM, err := secrets.MarshalPrivateKey(kp.Private)
	if err != nil {
		t.Fatalf("MarshalPrivateKey failed: %v", err)
	}

	if _, err := km.StorePEM(privPEM, time.Hour); err != nil {
		t.Fatalf("StorePEM failed: %v", err)
	}
	pub, err := km.PublicKey()
	if err != nil {
		t.Fatalf("PublicKey failed: %v", err)
	}
	if pub.N.Cmp(kp.Public.N) != 0 {
		t.Error("stored public key does not match")
	}
}
