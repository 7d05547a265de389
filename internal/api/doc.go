// Package api is the HTTP boundary to the drive backend.
//
// Client methods map one-to-one onto backend endpoints. Every error they
// return is a *retry.Outcome: transport failures and 5xx responses are
// Retryable, other non-2xx responses are NonRetryable, and a cancelled
// context is Cancelled. Callers wrap calls in retry.Policy.Do and never look
// at status codes themselves.
//
// Folder listings are decoded into the Item variant (*FileItem or
// *FolderItem) here, so nothing downstream inspects the "type" field.
package api
