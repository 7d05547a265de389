package sharing

import (
	"context"
	"fmt"

	"github.com/PolarWolf314/cryptdrive/internal/api"
	"github.com/PolarWolf314/cryptdrive/internal/codec"
	logger "github.com/PolarWolf314/cryptdrive/internal/logging"
	"github.com/PolarWolf314/cryptdrive/internal/retry"
	"github.com/PolarWolf314/cryptdrive/internal/secrets"
)

// DefaultConcurrency bounds how many recipients are processed at once by
// the explicit share operations.
const DefaultConcurrency = 4

// Kind distinguishes files from folders.
type Kind string

const (
	KindFile   Kind = "file"
	KindFolder Kind = "folder"
)

// ObjectRef names a newly created file or folder.
type ObjectRef struct {
	Kind Kind
	ID   string
}

// PropagateResult reports what Propagate did.
type PropagateResult struct {
	// Propagated is true when a grant call was made.
	Propagated bool
	// UserCount is the number of users granted access.
	UserCount int
	// Skipped is the number of users whose key could not be wrapped.
	Skipped int
}

// Client is the subset of the backend API used for sharing.
type Client interface {
	FolderSharedUsers(ctx context.Context, folderID string) ([]api.SharedUser, error)
	PropagateFileAccess(ctx context.Context, fileID string, keys []api.UserKey) error
	PropagateFolderAccess(ctx context.Context, folderID string, keys []api.UserKey) error
	GetFile(ctx context.Context, fileID string) (*api.FileInfo, error)
	GetFolder(ctx context.Context, folderID string) (*api.FolderItem, error)
	FolderContents(ctx context.Context, folderID string) (*api.FolderContents, error)
	ShareFolderBatch(ctx context.Context, req api.ShareFolderBatchRequest) error
	ShareFile(ctx context.Context, fileID string, req api.ShareFileRequest) error
	PublicKeyByEmail(ctx context.Context, email string) (*api.PublicKeyInfo, error)
}

// Keys unwraps DataKeys with the caller's private key.
type Keys interface {
	Unwrap(ciphertext []byte) ([]byte, error)
}

// Propagator re-wraps DataKeys so that other users can open objects. It
// never re-encrypts content.
type Propagator struct {
	client      Client
	keys        Keys
	retry       retry.Policy
	log         logger.Logger
	concurrency int
}

// NewPropagator returns a Propagator using policy for every backend call.
func NewPropagator(client Client, keys Keys, policy retry.Policy, log logger.Logger) *Propagator {
	return &Propagator{
		client:      client,
		keys:        keys,
		retry:       policy,
		log:         log,
		concurrency: DefaultConcurrency,
	}
}

// IsShareableParent reports whether objects created in folderID can inherit
// grants. The drive root is never shared.
func IsShareableParent(folderID string) bool {
	return folderID != "" && folderID != api.RootFolderID
}

// Propagate grants every user who can see parentFolderID access to obj by
// wrapping key for each of them. A parent with no shared users results in
// no grant call. Users whose public key cannot be used are skipped.
func (p *Propagator) Propagate(ctx context.Context, obj ObjectRef, parentFolderID string, key secrets.DataKey) (PropagateResult, error) {
	var result PropagateResult
	if !IsShareableParent(parentFolderID) {
		return result, nil
	}

	var users []api.SharedUser
	err := p.retry.Do(ctx, func(ctx context.Context) error {
		var err error
		users, err = p.client.FolderSharedUsers(ctx, parentFolderID)
		return err
	})
	if err != nil {
		return result, fmt.Errorf("failed to list users of folder %s: %w", parentFolderID, err)
	}
	if len(users) == 0 {
		p.log.Debugf("Folder %s is not shared, nothing to propagate", parentFolderID)
		return result, nil
	}

	entries := make([]api.UserKey, 0, len(users))
	for _, u := range users {
		wrapped, err := wrapFor(u.PublicKey, key)
		if err != nil {
			p.log.Warnf("Skipping user %s: %v", u.UserID, err)
			result.Skipped++
			continue
		}
		entries = append(entries, api.UserKey{
			UserID:       u.UserID,
			EncryptedKey: wrapped,
			AccessLevel:  u.AccessLevel,
		})
	}
	if len(entries) == 0 {
		return result, fmt.Errorf("could not wrap %s %s for any of %d users", obj.Kind, obj.ID, len(users))
	}

	err = p.retry.Do(ctx, func(ctx context.Context) error {
		if obj.Kind == KindFolder {
			return p.client.PropagateFolderAccess(ctx, obj.ID, entries)
		}
		return p.client.PropagateFileAccess(ctx, obj.ID, entries)
	})
	if err != nil {
		return result, fmt.Errorf("failed to propagate access to %s %s: %w", obj.Kind, obj.ID, err)
	}

	result.Propagated = true
	result.UserCount = len(entries)
	p.log.Infof("Granted %d user(s) access to %s %s", len(entries), obj.Kind, obj.ID)
	return result, nil
}

// wrapFor wraps key for the holder of a PEM public key and returns the
// base64 wire form.
func wrapFor(publicKeyPEM string, key []byte) (string, error) {
	pub, err := secrets.ParsePublicKey([]byte(publicKeyPEM))
	if err != nil {
		return "", err
	}
	wrapped, err := secrets.WrapKey(pub, key)
	if err != nil {
		return "", err
	}
	return codec.EncodeBase64(wrapped), nil
}

// unwrap decodes and unwraps a base64 wrapped DataKey.
func (p *Propagator) unwrap(wrapped string) (secrets.DataKey, error) {
	ct, err := codec.DecodeBase64(wrapped)
	if err != nil {
		return nil, err
	}
	raw, err := p.keys.Unwrap(ct)
	if err != nil {
		return nil, err
	}
	return secrets.NewDataKey(raw)
}
