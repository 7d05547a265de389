package codec

import (
	"bytes"
	"errors"
	"testing"
)

func TestBase64RoundTrip(t *testing.T) {
	inputs := [][]byte{
		{0x00},
		[]byte("hello world"),
		bytes.Repeat([]byte{0xff, 0x10}, 1000),
	}

	for _, in := range inputs {
		out, err := DecodeBase64(EncodeBase64(in))
		if err != nil {
			t.Fatalf("DecodeBase64 failed: %v", err)
		}
		if !bytes.Equal(in, out) {
			t.Errorf("Round trip mismatch for %d bytes", len(in))
		}
	}
}

func TestDecodeBase64Rejects(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"invalid characters", "not base64!"},
		{"bad length", "abcde"},
		{"url alphabet", "-_-_"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeBase64(tt.input)
			if !errors.Is(err, ErrInvalidEncoding) {
				t.Errorf("Expected ErrInvalidEncoding, got %v", err)
			}
		})
	}
}

func TestPEMRoundTrip(t *testing.T) {
	der := []byte{1, 2, 3, 4, 5}
	encoded := EncodePEM(PublicKeyType, der)

	blockType, got, err := DecodePEM(append([]byte("\n  "), encoded...))
	if err != nil {
		t.Fatalf("DecodePEM failed: %v", err)
	}
	if blockType != PublicKeyType {
		t.Errorf("Expected type %q, got %q", PublicKeyType, blockType)
	}
	if !bytes.Equal(der, got) {
		t.Errorf("Expected %v, got %v", der, got)
	}
}

func TestDecodePEMNoBlock(t *testing.T) {
	if _, _, err := DecodePEM([]byte("garbage")); !errors.Is(err, ErrInvalidEncoding) {
		t.Errorf("Expected ErrInvalidEncoding, got %v", err)
	}
}
