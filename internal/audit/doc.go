// Package audit keeps a local activity log of cryptdrive operations.
//
// Uploads, downloads, shares, folder creation and key changes are recorded
// as JSON Lines at:
//
//	<XDG_DATA_HOME>/cryptdrive/activity.jsonl
//
// Each entry holds a UTC timestamp with microseconds, the account email, the
// operation name and operation-specific details such as local paths, remote
// ids and recipients. Plaintext content and key material are never logged.
//
// # Usage
//
//	entry := audit.LogWithUser("upload")
//	entry.Files = paths
//	audit.Log(entry)
//
// Logging is best-effort. If the log cannot be written the operation
// continues without error.
package audit
