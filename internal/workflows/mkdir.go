package workflows

import (
	"context"
	"fmt"
	"strings"

	"github.com/PolarWolf314/cryptdrive/internal/api"
	"github.com/PolarWolf314/cryptdrive/internal/audit"
	"github.com/PolarWolf314/cryptdrive/internal/codec"
	"github.com/PolarWolf314/cryptdrive/internal/secrets"
	"github.com/PolarWolf314/cryptdrive/internal/sharing"
)

// MkdirOptions configures the mkdir workflow.
type MkdirOptions struct {
	Name string

	// ParentID is the parent folder. Empty creates the folder in the root.
	ParentID string
}

// MkdirResult contains the outcome of a mkdir operation.
type MkdirResult struct {
	FolderID string

	// Propagation reports the grants made to the parent's collaborators.
	Propagation sharing.PropagateResult

	// PropagationErr is set when the folder was created but could not be
	// shared with the parent's collaborators.
	PropagationErr error
}

// CreateFolder creates an encrypted folder. Its name is sealed under a new
// DataKey wrapped for the caller. When the parent is shared, the new folder
// is granted to the same users before CreateFolder returns; a failure there
// does not undo the folder.
func CreateFolder(ctx context.Context, s *Session, opts MkdirOptions) (*MkdirResult, error) {
	name := strings.TrimSpace(opts.Name)
	if name == "" {
		return nil, fmt.Errorf("folder name must not be empty")
	}
	parentID := opts.ParentID
	if parentID == "" {
		parentID = api.RootFolderID
	}

	key, err := secrets.GenerateDataKey()
	if err != nil {
		return nil, err
	}
	defer key.Zero()

	metadata, err := secrets.EncryptJSON(secrets.FolderMetadata{FolderName: name}, key)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt folder metadata: %w", err)
	}
	wrapped, err := s.Keys.WrapForSelf(key)
	if err != nil {
		return nil, fmt.Errorf("failed to wrap folder key: %w", err)
	}

	req := api.CreateFolderRequest{
		EncryptedMetadata:  codec.EncodeBase64(metadata),
		EncryptedFolderKey: codec.EncodeBase64(wrapped),
		ParentFolderID:     parentID,
	}
	var folderID string
	err = s.Config.RetryPolicy().Do(ctx, func(ctx context.Context) error {
		var err error
		folderID, err = s.Client.CreateFolder(ctx, req)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create folder: %w", err)
	}

	result := &MkdirResult{FolderID: folderID}
	if sharing.IsShareableParent(parentID) {
		obj := sharing.ObjectRef{Kind: sharing.KindFolder, ID: folderID}
		result.Propagation, result.PropagationErr = s.Propagator.Propagate(ctx, obj, parentID, key)
		if result.PropagationErr != nil {
			s.Log.Warnf("Folder %s was created but not shared with the users of %s: %v", folderID, parentID, result.PropagationErr)
		}
	}

	entry := audit.LogWithUser("mkdir")
	entry.FolderID = folderID
	audit.Log(entry)
	return result, nil
}
