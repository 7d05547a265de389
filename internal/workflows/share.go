package workflows

import (
	"context"
	"fmt"

	"github.com/PolarWolf314/cryptdrive/internal/audit"
	"github.com/PolarWolf314/cryptdrive/internal/sharing"
	"github.com/PolarWolf314/cryptdrive/internal/utils"
)

// ShareOptions configures the share workflows.
type ShareOptions struct {
	// ID is the folder or file to share.
	ID string

	// Recipients are email addresses. Entries may hold comma separated lists.
	Recipients []string

	// AccessLevel defaults to read.
	AccessLevel sharing.AccessLevel
}

// ShareFolder grants each recipient access to a folder and everything
// below it.
//
// The result lists per-recipient failures; the error is a
// *sharing.RecipientErrors when any recipient failed.
func ShareFolder(ctx context.Context, s *Session, opts ShareOptions) (*sharing.ShareResult, error) {
	recipients, level, err := prepareShare(opts)
	if err != nil {
		return nil, err
	}

	result, err := s.Propagator.ShareFolderRecursive(ctx, opts.ID, recipients, level)
	if err != nil {
		return nil, err
	}

	entry := audit.LogWithUser("share_folder")
	entry.FolderID = opts.ID
	auditShare(entry, result, level)
	return result, result.Err()
}

// ShareFile grants each recipient access to one file.
func ShareFile(ctx context.Context, s *Session, opts ShareOptions) (*sharing.ShareResult, error) {
	recipients, level, err := prepareShare(opts)
	if err != nil {
		return nil, err
	}

	result, err := s.Propagator.ShareFile(ctx, opts.ID, recipients, level)
	if err != nil {
		return nil, err
	}

	entry := audit.LogWithUser("share_file")
	entry.FileIDs = []string{opts.ID}
	auditShare(entry, result, level)
	return result, result.Err()
}

func prepareShare(opts ShareOptions) ([]string, sharing.AccessLevel, error) {
	if opts.ID == "" {
		return nil, "", fmt.Errorf("id must not be empty")
	}

	recipients := utils.SplitEmails(opts.Recipients)
	if len(recipients) == 0 {
		return nil, "", fmt.Errorf("at least one recipient is required")
	}
	for _, r := range recipients {
		if !utils.IsValidEmail(r) {
			return nil, "", fmt.Errorf("invalid email address %q", r)
		}
	}

	if opts.AccessLevel == "" {
		return recipients, sharing.AccessRead, nil
	}
	level, err := sharing.ParseAccessLevel(string(opts.AccessLevel))
	if err != nil {
		return nil, "", err
	}
	return recipients, level, nil
}

func auditShare(entry audit.Entry, result *sharing.ShareResult, level sharing.AccessLevel) {
	entry.Recipients = result.Shared
	entry.AccessLevel = string(level)
	entry.FilesCount = result.FileCount
	entry.FailedCount = len(result.Failures)
	audit.Log(entry)
}
