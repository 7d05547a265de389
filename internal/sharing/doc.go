// Package sharing grants other users access to files and folders.
//
// Sharing never touches content. An object's DataKey is unwrapped with the
// caller's private key and wrapped again with each recipient's public key;
// the backend stores one wrapped copy per user.
//
// Propagate runs when an object is created inside a shared folder and hands
// the new DataKey to everyone who can already see the parent.
// ShareFolderRecursive and ShareFile are explicit shares that report a
// result per recipient.
package sharing
