package errors

import "errors"

// Cryptographic errors indicate failures during key handling, encryption or decryption.
var (
	// ErrCryptoUnavailable indicates the platform lacks a required primitive or entropy source.
	ErrCryptoUnavailable = errors.New("required cryptographic primitive is unavailable")

	// ErrKeyTooLarge indicates the payload does not fit the recipient key's wrapping capacity.
	ErrKeyTooLarge = errors.New("key material too large for recipient public key")

	// ErrAuthenticationFailed indicates an AEAD open failed (tampered data or wrong key).
	ErrAuthenticationFailed = errors.New("authenticated decryption failed")

	// ErrDecryptionFailed indicates a wrapped key could not be unwrapped.
	ErrDecryptionFailed = errors.New("failed to unwrap key")

	// ErrInvalidPassword indicates the private key could not be unwrapped with the given secret.
	// It is returned for wrong passwords and corrupted blobs alike.
	ErrInvalidPassword = errors.New("invalid password or corrupted key")

	// ErrInvalidKeyLength indicates a symmetric key has an unexpected length.
	ErrInvalidKeyLength = errors.New("invalid symmetric key length")

	// ErrInvalidPrivateKey indicates the private key is malformed or unsupported.
	ErrInvalidPrivateKey = errors.New("invalid or unsupported private key format")

	// ErrInvalidPublicKey indicates the public key is malformed or unsupported.
	ErrInvalidPublicKey = errors.New("invalid or unsupported public key format")

	// ErrCorruptedChunk indicates a downloaded chunk failed authentication.
	ErrCorruptedChunk = errors.New("corrupted chunk")
)

// Key vault errors indicate the local key material is missing or stale.
var (
	// ErrKeyNotFound indicates no key is stored in the local vault.
	ErrKeyNotFound = errors.New("key not found in vault")

	// ErrKeyExpired indicates the stored private key passed its expiry and must be unlocked again.
	ErrKeyExpired = errors.New("stored key has expired")

	// ErrVaultLocked indicates the vault's sealing key was wiped by Lock.
	ErrVaultLocked = errors.New("vault is locked")
)

// Transport errors are produced at the HTTP boundary.
var (
	// ErrNetworkFailure indicates the request never produced a response.
	ErrNetworkFailure = errors.New("network failure")

	// ErrServerError indicates the backend answered with a 5xx status.
	ErrServerError = errors.New("server error")

	// ErrClientRequest indicates the backend rejected the request with a 4xx status.
	ErrClientRequest = errors.New("request rejected by server")

	// ErrCancelled indicates the caller cancelled the operation.
	ErrCancelled = errors.New("cancelled")
)

// Transfer errors indicate problems with an upload or download as a whole.
var (
	// ErrTransferNotFound indicates no transfer with the given id is tracked.
	ErrTransferNotFound = errors.New("transfer not found")

	// ErrIncompleteFile indicates the remote chunk list does not cover every index.
	ErrIncompleteFile = errors.New("remote file is missing chunks")

	// ErrNoFilesFound indicates no files matched the provided patterns.
	ErrNoFilesFound = errors.New("no matching files found")

	// ErrFileNotFound indicates a specific file could not be located.
	ErrFileNotFound = errors.New("file not found")

	// ErrFileExists indicates a download target already exists.
	ErrFileExists = errors.New("file already exists")
)

// Account errors indicate issues with the local account bundle or configuration.
var (
	// ErrAccountNotInitialized indicates no account bundle exists yet.
	ErrAccountNotInitialized = errors.New("account has not been initialized")

	// ErrAccountExists indicates an account bundle already exists.
	ErrAccountExists = errors.New("account already initialized")

	// ErrNotConfigured indicates the backend URL or token is missing.
	ErrNotConfigured = errors.New("server is not configured")

	// ErrPassphraseRequired indicates no vault passphrase was provided.
	ErrPassphraseRequired = errors.New("vault passphrase is required")

	// ErrInvalidConfig indicates a configuration value is out of range.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrInvalidDateFormat indicates a date filter could not be parsed.
	ErrInvalidDateFormat = errors.New("invalid date format")
)
