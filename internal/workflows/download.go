package workflows

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/PolarWolf314/cryptdrive/internal/audit"
	kerrors "github.com/PolarWolf314/cryptdrive/internal/errors"
	"github.com/PolarWolf314/cryptdrive/internal/transfer"
)

// DownloadOptions configures the download workflow.
type DownloadOptions struct {
	FileID string

	// Output is a file path or an existing directory. Empty writes into the
	// working directory under the decrypted file name.
	Output string

	// Force overwrites an existing file.
	Force bool
}

// DownloadResult contains the outcome of a download operation.
type DownloadResult struct {
	Path     string
	Filename string
	Size     int64
	MimeType string
}

// Download fetches, verifies and decrypts a file. Plaintext is written to a
// temporary file next to the target and renamed into place only after every
// chunk decrypted, so a failed download never leaves a partial file behind.
//
// Returns ErrFileExists if the target exists and Force is unset.
func Download(ctx context.Context, s *Session, opts DownloadOptions) (*DownloadResult, error) {
	if opts.FileID == "" {
		return nil, fmt.Errorf("file id must not be empty")
	}

	dir, name := splitOutput(opts.Output)
	tmp, err := os.CreateTemp(dir, ".cryptdrive-download-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temporary file in %s: %w", dir, err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	_, meta, err := s.Transfers.Download(ctx, opts.FileID, tmp)
	if closeErr := tmp.Close(); err == nil && closeErr != nil {
		err = fmt.Errorf("failed to write %s: %w", tmpPath, closeErr)
	}
	if err != nil {
		return nil, err
	}

	if name == "" {
		name = transfer.SanitizeName(meta.Filename, opts.FileID)
	}
	target := filepath.Join(dir, name)

	if err := placeFile(tmpPath, target, opts.Force); err != nil {
		return nil, err
	}
	if meta.LastModified > 0 {
		mtime := time.UnixMilli(meta.LastModified)
		if err := os.Chtimes(target, mtime, mtime); err != nil {
			s.Log.Debugf("Could not set modification time of %s: %v", target, err)
		}
	}

	entry := audit.LogWithUser("download")
	entry.FileIDs = []string{opts.FileID}
	entry.OutputPath = target
	entry.Bytes = meta.Size
	audit.Log(entry)

	return &DownloadResult{
		Path:     target,
		Filename: meta.Filename,
		Size:     meta.Size,
		MimeType: meta.MimeType,
	}, nil
}

// splitOutput returns the directory to write into and, when output names a
// file, its base name.
func splitOutput(output string) (dir, name string) {
	if output == "" {
		return ".", ""
	}
	if info, err := os.Stat(output); err == nil && info.IsDir() {
		return output, ""
	}
	return filepath.Dir(output), filepath.Base(output)
}

// placeFile moves tmp to target. Without force an existing target is never
// replaced.
func placeFile(tmp, target string, force bool) error {
	if !force {
		if _, err := os.Lstat(target); err == nil {
			return fmt.Errorf("%w: %s", kerrors.ErrFileExists, target)
		} else if !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to check %s: %w", target, err)
		}
	}
	if err := os.Chmod(tmp, 0600); err != nil {
		return fmt.Errorf("failed to set permissions on %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, target); err != nil {
		return fmt.Errorf("failed to move download to %s: %w", target, err)
	}
	return nil
}
