// Package vault keeps the user's key pair on the local machine between
// commands.
//
// Records live in a 99designs/keyring backend (an encrypted file by default,
// or the OS keychain) under the service name "cryptdrive". Each payload is
// additionally sealed with NaCl secretbox under a key derived from the vault
// passphrase, so no backend ever sees key material in the clear.
//
// The private key is stored with an expiry (10 days by default). Once it
// lapses, reads fail with ErrKeyExpired and the user has to unlock again
// with their account password.
//
// KeyManager is the session-facing API: it generates, stores, wraps and
// unwraps with the stored key pair.
package vault
