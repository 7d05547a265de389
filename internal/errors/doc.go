// Package errors provides typed error values for cryptdrive.
//
// Using sentinel errors allows callers to handle specific error conditions
// programmatically with errors.Is() rather than string matching. This makes
// error handling more robust and refactoring-safe.
//
// # Error Categories
//
// Errors are grouped by category:
//
//   - Crypto errors: ErrAuthenticationFailed, ErrDecryptionFailed, ErrInvalidPassword
//   - Vault errors: ErrKeyNotFound, ErrKeyExpired
//   - Transport errors: ErrNetworkFailure, ErrServerError, ErrClientRequest, ErrCancelled
//   - Transfer errors: ErrCorruptedChunk, ErrIncompleteFile, ErrTransferNotFound
//
// Cryptographic failures are always fatal for the unit they concern (a chunk,
// a metadata blob, a wrapped key). They never come with partial plaintext.
//
// # Usage
//
// Wrap errors with additional context:
//
//	return fmt.Errorf("chunk %d: %w", index, errors.ErrCorruptedChunk)
//
// Handle errors in the CLI layer:
//
//	if errors.Is(err, kerrors.ErrKeyExpired) {
//	    // Ask the user to unlock their keys again
//	}
package errors
