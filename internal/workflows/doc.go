// Package workflows implements the cryptdrive commands independent of the
// CLI.
//
// The cmd package parses flags, opens a Session, calls one workflow and
// formats its result. Workflows do everything else: loading configuration,
// unlocking the key vault, talking to the backend through the transfer
// manager and the share propagator, and appending to the activity log.
//
// # Local key workflows
//
// These need no backend:
//
//   - Init: generates the key pair, the password-wrapped account bundle
//     and the recovery key
//   - Unlock: decrypts the private key with the password into the vault
//   - Recover: replaces the password using the recovery key
//   - Status: reports the account and vault state
//   - Lock: removes the key pair from the vault
//   - Log: filters the activity log
//
// # Drive workflows
//
// These take a *Session from OpenSession:
//
//   - Upload: encrypts and uploads files concurrently
//   - Download: downloads and decrypts one file atomically
//   - DownloadFolder: packs a folder tree into a zip archive
//   - ShareFolder, ShareFile: re-wrap keys for other users
//   - CreateFolder: creates an encrypted folder
//
// A Session must be closed: uploads into shared folders grant access to
// the folder's users in the background and Close waits for that.
//
// # Errors
//
// Workflows return sentinel errors from internal/errors so the CLI can pick
// a message without matching strings:
//
//	sess, err := workflows.OpenSession(ctx, opts)
//	if errors.Is(err, kerrors.ErrKeyExpired) {
//	    // ask the user to run keys unlock
//	}
package workflows
