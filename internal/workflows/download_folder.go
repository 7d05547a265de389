package workflows

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/PolarWolf314/cryptdrive/internal/api"
	"github.com/PolarWolf314/cryptdrive/internal/audit"
	"github.com/PolarWolf314/cryptdrive/internal/codec"
	"github.com/PolarWolf314/cryptdrive/internal/retry"
	"github.com/PolarWolf314/cryptdrive/internal/secrets"
	"github.com/PolarWolf314/cryptdrive/internal/transfer"
)

// DownloadFolderOptions configures the download-folder workflow.
type DownloadFolderOptions struct {
	FolderID string

	// Output is the archive path or an existing directory. Empty writes
	// <folder name>.zip into the working directory.
	Output string

	Force bool
}

// DownloadFolderResult contains the outcome of a folder download.
type DownloadFolderResult struct {
	Path     string
	Files    []string
	Failures []transfer.FileError
}

// DownloadFolder packs every file under a folder into a zip archive. Files
// that fail are reported in Failures and left out of the archive.
func DownloadFolder(ctx context.Context, s *Session, opts DownloadFolderOptions) (*DownloadFolderResult, error) {
	if opts.FolderID == "" {
		return nil, fmt.Errorf("folder id must not be empty")
	}

	dir, name := splitOutput(opts.Output)
	if name == "" {
		name = s.folderName(ctx, opts.FolderID) + ".zip"
	}
	target := filepath.Join(dir, name)

	tmp, err := os.CreateTemp(dir, ".cryptdrive-folder-*.zip")
	if err != nil {
		return nil, fmt.Errorf("failed to create temporary file in %s: %w", dir, err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	folder, err := s.Transfers.DownloadFolder(ctx, opts.FolderID, tmp)
	if closeErr := tmp.Close(); err == nil && closeErr != nil {
		err = fmt.Errorf("failed to write %s: %w", tmpPath, closeErr)
	}
	if err != nil {
		return nil, err
	}

	if err := placeFile(tmpPath, target, opts.Force); err != nil {
		return nil, err
	}

	entry := audit.LogWithUser("download_folder")
	entry.FolderID = opts.FolderID
	entry.OutputPath = target
	entry.FilesCount = len(folder.Files)
	entry.FailedCount = len(folder.Failures)
	audit.Log(entry)

	return &DownloadFolderResult{
		Path:     target,
		Files:    folder.Files,
		Failures: folder.Failures,
	}, nil
}

// folderName returns the decrypted, sanitized name of a folder, falling back
// to its id.
func (s *Session) folderName(ctx context.Context, folderID string) string {
	if folderID == api.RootFolderID {
		return "drive"
	}

	var folder *api.FolderItem
	err := s.Config.RetryPolicy().Do(ctx, func(ctx context.Context) error {
		var err error
		folder, err = s.Client.GetFolder(ctx, folderID)
		return err
	})
	if err != nil {
		if retry.Classify(err) != retry.Cancelled {
			s.Log.Debugf("Could not look up folder %s: %v", folderID, err)
		}
		return folderID
	}

	name, err := decryptFolderName(s, folder)
	if err != nil {
		s.Log.Debugf("Could not decrypt name of folder %s: %v", folderID, err)
	}
	return transfer.SanitizeName(name, folderID)
}

func decryptFolderName(s *Session, folder *api.FolderItem) (string, error) {
	if folder.EncryptedMetadata == "" {
		return "", nil
	}
	wrapped, err := codec.DecodeBase64(folder.EncryptedFolderKey)
	if err != nil {
		return "", err
	}
	key, err := s.Keys.UnwrapDataKey(wrapped)
	if err != nil {
		return "", err
	}
	defer key.Zero()

	blob, err := codec.DecodeBase64(folder.EncryptedMetadata)
	if err != nil {
		return "", err
	}
	var meta secrets.FolderMetadata
	if err := secrets.DecryptJSON(blob, key, &meta); err != nil {
		return "", err
	}
	return meta.FolderName, nil
}
