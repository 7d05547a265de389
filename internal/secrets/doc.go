// Package secrets provides the client-side cryptography for cryptdrive.
//
// Nothing in this package talks to the network or the disk beyond loading a
// PEM file; it turns keys and plaintext into ciphertext and back.
//
// # Encryption Architecture
//
// cryptdrive uses a hybrid scheme:
//
//  1. Every file and folder gets its own random 256-bit DataKey
//  2. The DataKey encrypts the object's metadata and content with AES-256-GCM
//  3. The DataKey is wrapped with RSA-OAEP (SHA-256) once per user with access
//  4. The user's private key is itself wrapped under a password-derived key
//
// The server only ever sees wrapped keys and ciphertext.
//
// # Wire Formats
//
// Metadata blobs are nonce || ciphertext+tag. Chunks keep the nonce apart
// (see SealedChunk) because the upload protocol sends it as its own field.
// Nonces are 12 random bytes, drawn fresh for every encryption.
//
// # Password Derivation
//
// The master key is derived with PBKDF2-HMAC-SHA256 (100000 iterations) or
// Argon2id, selected by KDFParams. It only wraps the private key. All unwrap
// failures are reported as ErrInvalidPassword so callers cannot distinguish
// a wrong password from a damaged record.
//
// # Recovery
//
// NewRecoveryKey seals the private key under a random key that is shown to
// the user exactly once. Losing both password and recovery key loses the
// account's data permanently.
//
// # Security Considerations
//
// Key material should be released with Zero or DataKey.Zero once a caller
// is done with it. RSA keys are 4096 bits by default; 2048 is the minimum.
package secrets
