// Package codec converts between raw bytes and the text encodings used on the
// wire and on disk: standard base64 and PEM.
package codec

import (
	"bytes"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"strings"
)

// PEM block types.
const (
	PublicKeyType         = "PUBLIC KEY"
	PrivateKeyType        = "PRIVATE KEY"
	RSAPrivateKeyType     = "RSA PRIVATE KEY"
	OpenSSHPrivateKeyType = "OPENSSH PRIVATE KEY"
)

// ErrInvalidEncoding is returned for malformed base64 or PEM input.
var ErrInvalidEncoding = errors.New("invalid encoding")

// EncodeBase64 encodes b with the standard padded alphabet.
func EncodeBase64(b []byte) string {
	return base64.StdEncoding.EncodeToString(b)
}

// DecodeBase64 decodes a standard padded base64 string. Empty input is rejected.
func DecodeBase64(s string) ([]byte, error) {
	if s == "" {
		return nil, fmt.Errorf("%w: empty base64 string", ErrInvalidEncoding)
	}
	b, err := base64.StdEncoding.Strict().DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidEncoding, preview(s), err)
	}
	return b, nil
}

// EncodePEM wraps der in a PEM block of the given type.
func EncodePEM(blockType string, der []byte) []byte {
	return pem.EncodeToMemory(&pem.Block{Type: blockType, Bytes: der})
}

// DecodePEM returns the type and DER bytes of the first PEM block in data.
// Leading and trailing whitespace is tolerated.
func DecodePEM(data []byte) (string, []byte, error) {
	block, _ := pem.Decode(bytes.TrimSpace(data))
	if block == nil {
		return "", nil, fmt.Errorf("%w: no PEM block found", ErrInvalidEncoding)
	}
	return block.Type, block.Bytes, nil
}

func preview(s string) string {
	if len(s) > 50 {
		return fmt.Sprintf("%q...", s[:50])
	}
	return fmt.Sprintf("%q", strings.TrimSpace(s))
}
