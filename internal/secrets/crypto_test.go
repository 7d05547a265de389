package secrets

import (
	"bytes"
	"crypto/rand"
	"crypto/rsa"
	"encoding/pem"
	"errors"
	"io"
	"sync"
	"testing"

	kerrors "github.com/PolarWolf314/cryptdrive/internal/errors"

	"golang.org/x/crypto/ssh"
)

var (
	testKeyOnce sync.Once
	testKey     *KeyPair
)

// testKeyPair returns a 2048-bit key pair shared by every test in the package.
func testKeyPair(t *testing.T) *KeyPair {
	t.Helper()
	testKeyOnce.Do(func() {
		kp, err := GenerateKeyPair(MinKeyBits)
		if err != nil {
			t.Fatalf("failed to generate key pair: %v", err)
		}
		testKey = kp
	})
	if testKey == nil {
		t.Fatal("test key pair unavailable")
	}
	return testKey
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, io.ErrUnexpectedEOF }

// withFailingRand swaps the entropy source for one that always fails.
func withFailingRand(t *testing.T) {
	t.Helper()
	original := randReader
	randReader = failingReader{}
	t.Cleanup(func() { randReader = original })
}

func TestGenerateKeyPair_RejectsSmallModulus(t *testing.T) {
	if _, err := GenerateKeyPair(1024); err == nil {
		t.Error("expected error for 1024-bit key")
	}
}

func TestKeyPair_PEMRoundTrip(t *testing.T) {
	kp := testKeyPair(t)

	pubPEM, err := MarshalPublicKey(kp.Public)
	if err != nil {
		t.Fatalf("MarshalPublicKey failed: %v", err)
	}
	pub, err := ParsePublicKey(pubPEM)
	if err != nil {
		t.Fatalf("ParsePublicKey failed: %v", err)
	}
	if pub.N.Cmp(kp.Public.N) != 0 || pub.E != kp.Public.E {
		t.Error("parsed public key does not match original")
	}

	privPEM, err := MarshalPrivateKey(kp.Private)
	if err != nil {
		t.Fatalf("MarshalPrivateKey failed: %v", err)
	}
	priv, err := ParsePrivateKey(privPEM)
	if err != nil {
		t.Fatalf("ParsePrivateKey failed: %v", err)
	}
	if priv.D.Cmp(kp.Private.D) != 0 {
		t.Error("parsed private key does not match original")
	}
}

func TestParsePrivateKey_OpenSSH(t *testing.T) {
	kp := testKeyPair(t)

	block, err := ssh.MarshalPrivateKey(kp.Private, "")
	if err != nil {
		t.Fatalf("failed to marshal OpenSSH key: %v", err)
	}

	parsed, err := ParsePrivateKey(pem.EncodeToMemory(block))
	if err != nil {
		t.Fatalf("ParsePrivateKey failed: %v", err)
	}
	if parsed.N.Cmp(kp.Private.N) != 0 {
		t.Error("parsed key modulus does not match original")
	}
}

func TestParseKeys_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		input []byte
	}{
		{"empty", nil},
		{"garbage", []byte("not a pem")},
		{"wrong block type", []byte("-----BEGIN CERTIFICATE-----\nAAAA\n-----END CERTIFICATE-----\n")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParsePublicKey(tt.input); !errors.Is(err, kerrors.ErrInvalidPublicKey) {
				t.Errorf("ParsePublicKey: expected ErrInvalidPublicKey, got %v", err)
			}
			if _, err := ParsePrivateKey(tt.input); !errors.Is(err, kerrors.ErrInvalidPrivateKey) {
				t.Errorf("ParsePrivateKey: expected ErrInvalidPrivateKey, got %v", err)
			}
		})
	}
}

func TestFingerprint(t *testing.T) {
	kp := testKeyPair(t)

	fp, err := Fingerprint(kp.Public)
	if err != nil {
		t.Fatalf("Fingerprint failed: %v", err)
	}
	if len(fp) < 10 || fp[:7] != "SHA256:" {
		t.Errorf("unexpected fingerprint format: %q", fp)
	}
}

func TestWrapKey_RoundTrip(t *testing.T) {
	kp := testKeyPair(t)
	dataKey, err := GenerateDataKey()
	if err != nil {
		t.Fatalf("GenerateDataKey failed: %v", err)
	}

	wrapped, err := WrapKey(kp.Public, dataKey)
	if err != nil {
		t.Fatalf("WrapKey failed: %v", err)
	}
	if len(wrapped) != kp.Public.Size() {
		t.Errorf("expected %d byte ciphertext, got %d", kp.Public.Size(), len(wrapped))
	}

	unwrapped, err := UnwrapKey(kp.Private, wrapped)
	if err != nil {
		t.Fatalf("UnwrapKey failed: %v", err)
	}
	if !bytes.Equal(unwrapped, dataKey) {
		t.Error("unwrapped key does not match original")
	}
}

func TestWrapKey_NonDeterministic(t *testing.T) {
	kp := testKeyPair(t)
	raw := []byte("0123456789abcdef0123456789abcdef")

	a, err := WrapKey(kp.Public, raw)
	if err != nil {
		t.Fatalf("WrapKey failed: %v", err)
	}
	b, err := WrapKey(kp.Public, raw)
	if err != nil {
		t.Fatalf("WrapKey failed: %v", err)
	}
	if bytes.Equal(a, b) {
		t.Error("wrapping the same key twice produced identical ciphertext")
	}
}

func TestWrapKey_TooLarge(t *testing.T) {
	kp := testKeyPair(t)
	raw := make([]byte, MaxWrapSize(kp.Public)+1)

	if _, err := WrapKey(kp.Public, raw); !errors.Is(err, kerrors.ErrKeyTooLarge) {
		t.Errorf("expected ErrKeyTooLarge, got %v", err)
	}

	raw = raw[:MaxWrapSize(kp.Public)]
	if _, err := WrapKey(kp.Public, raw); err != nil {
		t.Errorf("expected max-size payload to wrap, got %v", err)
	}
}

func TestUnwrapKey_WrongKey(t *testing.T) {
	kp := testKeyPair(t)
	other, err := rsa.GenerateKey(rand.Reader, MinKeyBits)
	if err != nil {
		t.Fatalf("failed to generate second key: %v", err)
	}

	wrapped, err := WrapKey(kp.Public, []byte("secret"))
	if err != nil {
		t.Fatalf("WrapKey failed: %v", err)
	}

	out, err := UnwrapKey(other, wrapped)
	if !errors.Is(err, kerrors.ErrDecryptionFailed) {
		t.Errorf("expected ErrDecryptionFailed, got %v", err)
	}
	if out != nil {
		t.Error("expected no bytes on failure")
	}
}

func TestCryptoUnavailable(t *testing.T) {
	kp := testKeyPair(t)
	withFailingRand(t)

	if _, err := GenerateDataKey(); !errors.Is(err, kerrors.ErrCryptoUnavailable) {
		t.Errorf("GenerateDataKey: expected ErrCryptoUnavailable, got %v", err)
	}
	if _, err := WrapKey(kp.Public, []byte("k")); !errors.Is(err, kerrors.ErrCryptoUnavailable) {
		t.Errorf("WrapKey: expected ErrCryptoUnavailable, got %v", err)
	}
	key := make(DataKey, DataKeySize)
	if _, err := EncryptChunk([]byte("x"), key); !errors.Is(err, kerrors.ErrCryptoUnavailable) {
		t.Errorf("EncryptChunk: expected ErrCryptoUnavailable, got %v", err)
	}
}

func TestZero(t *testing.T) {
	b := []byte{1, 2, 3}
	Zero(b)
	if !bytes.Equal(b, []byte{0, 0, 0}) {
		t.Errorf("expected zeroed slice, got %v", b)
	}
}
