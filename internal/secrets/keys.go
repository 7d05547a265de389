package secrets

import (
	"crypto/rsa"
	"crypto/x509"
	"fmt"
	"os"

	"github.com/PolarWolf314/cryptdrive/internal/codec"
	kerrors "github.com/PolarWolf314/cryptdrive/internal/errors"

	"golang.org/x/crypto/ssh"
)

const (
	// MinKeyBits is the smallest RSA modulus accepted for new key pairs.
	MinKeyBits = 2048

	// DefaultKeyBits is the modulus used for account key pairs.
	DefaultKeyBits = 4096
)

// KeyPair is a user's RSA-OAEP key pair.
type KeyPair struct {
	Public  *rsa.PublicKey
	Private *rsa.PrivateKey
}

// GenerateKeyPair creates a new RSA key pair with the given modulus size.
func GenerateKeyPair(bits int) (*KeyPair, error) {
	if bits < MinKeyBits {
		return nil, fmt.Errorf("RSA key size %d is below the minimum of %d bits", bits, MinKeyBits)
	}

	privateKey, err := rsa.GenerateKey(randReader, bits)
	if err != nil {
		return nil, fmt.Errorf("%w: generating RSA key pair: %v", kerrors.ErrCryptoUnavailable, err)
	}

	return &KeyPair{Public: &privateKey.PublicKey, Private: privateKey}, nil
}

// MarshalPublicKey encodes a public key as a PKIX "PUBLIC KEY" PEM block.
func MarshalPublicKey(pub *rsa.PublicKey) ([]byte, error) {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal public key: %w", err)
	}
	return codec.EncodePEM(codec.PublicKeyType, der), nil
}

// ParsePublicKey decodes a PKIX "PUBLIC KEY" PEM block into an RSA public key.
func ParsePublicKey(pemBytes []byte) (*rsa.PublicKey, error) {
	blockType, der, err := codec.DecodePEM(pemBytes)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", kerrors.ErrInvalidPublicKey, err)
	}
	if blockType != codec.PublicKeyType {
		return nil, fmt.Errorf("%w: unexpected PEM type %q", kerrors.ErrInvalidPublicKey, blockType)
	}

	pub, err := x509.ParsePKIXPublicKey(der)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", kerrors.ErrInvalidPublicKey, err)
	}
	rsaPub, ok := pub.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("%w: not an RSA public key", kerrors.ErrInvalidPublicKey)
	}
	return rsaPub, nil
}

// MarshalPrivateKey encodes a private key as a PKCS#8 "PRIVATE KEY" PEM block.
func MarshalPrivateKey(priv *rsa.PrivateKey) ([]byte, error) {
	der, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal private key: %w", err)
	}
	return codec.EncodePEM(codec.PrivateKeyType, der), nil
}

// ParsePrivateKey decodes a PKCS#8, PKCS#1 or unencrypted OpenSSH PEM block
// into an RSA private key.
func ParsePrivateKey(pemBytes []byte) (*rsa.PrivateKey, error) {
	blockType, der, err := codec.DecodePEM(pemBytes)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", kerrors.ErrInvalidPrivateKey, err)
	}

	switch blockType {
	case codec.PrivateKeyType:
		key, err := x509.ParsePKCS8PrivateKey(der)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", kerrors.ErrInvalidPrivateKey, err)
		}
		rsaKey, ok := key.(*rsa.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("%w: not an RSA private key", kerrors.ErrInvalidPrivateKey)
		}
		return rsaKey, nil
	case codec.RSAPrivateKeyType:
		key, err := x509.ParsePKCS1PrivateKey(der)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", kerrors.ErrInvalidPrivateKey, err)
		}
		return key, nil
	case codec.OpenSSHPrivateKeyType:
		key, err := ssh.ParseRawPrivateKey(pemBytes)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", kerrors.ErrInvalidPrivateKey, err)
		}
		rsaKey, ok := key.(*rsa.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("%w: not an RSA private key", kerrors.ErrInvalidPrivateKey)
		}
		return rsaKey, nil
	default:
		return nil, fmt.Errorf("%w: unexpected PEM type %q", kerrors.ErrInvalidPrivateKey, blockType)
	}
}

// LoadPublicKey reads a PEM encoded public key from disk.
func LoadPublicKey(path string) (*rsa.PublicKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParsePublicKey(data)
}

// Fingerprint returns the SHA256 fingerprint of pub in OpenSSH notation, used
// to identify a key pair to the user without revealing it.
func Fingerprint(pub *rsa.PublicKey) (string, error) {
	sshPub, err := ssh.NewPublicKey(pub)
	if err != nil {
		return "", fmt.Errorf("%w: %v", kerrors.ErrInvalidPublicKey, err)
	}
	return ssh.FingerprintSHA256(sshPub), nil
}
