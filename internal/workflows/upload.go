package workflows

import (
	"context"
	"errors"

	"github.com/PolarWolf314/cryptdrive/internal/api"
	"github.com/PolarWolf314/cryptdrive/internal/audit"
	kerrors "github.com/PolarWolf314/cryptdrive/internal/errors"
	"github.com/PolarWolf314/cryptdrive/internal/transfer"
	"github.com/PolarWolf314/cryptdrive/internal/utils"
)

// UploadOptions configures the upload workflow.
type UploadOptions struct {
	// Patterns are file paths, directories or doublestar globs.
	Patterns []string

	// BaseDir resolves relative patterns. Empty uses the working directory.
	BaseDir string

	// FolderID is the destination folder. Empty uploads to the drive root.
	FolderID string

	IncludeHidden bool
}

// UploadedFile is the outcome of uploading one local file.
type UploadedFile struct {
	Path   string
	FileID string
	Size   int64
	State  transfer.State
	Err    error
}

// UploadResult contains the outcome of an upload operation.
type UploadResult struct {
	Files    []UploadedFile
	Bytes    int64
	Failures int
}

// Upload encrypts and uploads every file matched by the patterns. Files are
// uploaded independently: one failure does not stop the others.
//
// Returns ErrNoFilesFound if no pattern matched a file. When some uploads
// failed, the result is returned together with the joined errors.
func Upload(ctx context.Context, s *Session, opts UploadOptions) (*UploadResult, error) {
	paths, err := utils.ResolveUploadPaths(opts.Patterns, opts.BaseDir, opts.IncludeHidden)
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		return nil, kerrors.ErrNoFilesFound
	}

	folderID := opts.FolderID
	if folderID == "" {
		folderID = api.RootFolderID
	}

	// A file that cannot be stat'ed fails on its own. The others are opened
	// when their transfer starts.
	result := &UploadResult{Files: make([]UploadedFile, len(paths))}
	sources := make([]*transfer.Source, 0, len(paths))
	slots := make([]int, 0, len(paths))
	var errs []error
	for i, p := range paths {
		result.Files[i].Path = p
		src, err := transfer.FileSource(p)
		if err != nil {
			result.Files[i].State = transfer.StateFailed
			result.Files[i].Err = err
			result.Failures++
			errs = append(errs, err)
			continue
		}
		sources = append(sources, src)
		slots = append(slots, i)
	}

	s.Log.Debugf("Uploading %d file(s) to folder %s", len(sources), folderID)
	var statuses []transfer.Status
	if len(sources) > 0 {
		var uploadErr error
		statuses, uploadErr = s.Transfers.UploadAll(ctx, sources, folderID)
		if uploadErr != nil {
			errs = append(errs, uploadErr)
		}
	}

	entry := audit.LogWithUser("upload")
	entry.FolderID = folderID
	for j, st := range statuses {
		i := slots[j]
		result.Files[i] = UploadedFile{
			Path:   paths[i],
			FileID: st.FileID,
			Size:   st.Size,
			State:  st.State,
			Err:    st.Err,
		}
		if st.Err != nil {
			result.Failures++
			continue
		}
		result.Bytes += st.Size
		entry.Files = append(entry.Files, paths[i])
		entry.FileIDs = append(entry.FileIDs, st.FileID)
	}

	entry.Bytes = result.Bytes
	entry.FilesCount = len(entry.Files)
	entry.FailedCount = result.Failures
	audit.Log(entry)

	if len(errs) > 0 && result.Failures == len(paths) && allCancelled(result.Files) {
		return result, kerrors.ErrCancelled
	}
	return result, errors.Join(errs...)
}

func allCancelled(files []UploadedFile) bool {
	for _, f := range files {
		if !errors.Is(f.Err, kerrors.ErrCancelled) {
			return false
		}
	}
	return len(files) > 0
}
