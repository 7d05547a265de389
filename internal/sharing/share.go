package sharing

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/PolarWolf314/cryptdrive/internal/api"
	"github.com/PolarWolf314/cryptdrive/internal/secrets"

	"golang.org/x/sync/errgroup"
)

// RecipientError is a failure to share with one recipient.
type RecipientError struct {
	Recipient string
	Err       error
}

func (e RecipientError) Error() string {
	return fmt.Sprintf("%s: %v", e.Recipient, e.Err)
}

func (e RecipientError) Unwrap() error { return e.Err }

// RecipientErrors collects every per-recipient failure of a share.
type RecipientErrors struct {
	Failures []RecipientError
}

func (e *RecipientErrors) Error() string {
	msgs := make([]string, len(e.Failures))
	for i, f := range e.Failures {
		msgs[i] = f.Error()
	}
	return fmt.Sprintf("sharing failed for %d recipient(s): %s", len(e.Failures), strings.Join(msgs, "; "))
}

func (e *RecipientErrors) Unwrap() []error {
	errs := make([]error, len(e.Failures))
	for i, f := range e.Failures {
		errs[i] = f
	}
	return errs
}

// ShareResult summarises an explicit share.
type ShareResult struct {
	// Shared lists recipients that were granted access.
	Shared []string
	// Failures lists recipients that could not be granted access.
	Failures []RecipientError
	// FolderCount and FileCount are the objects re-wrapped per recipient.
	FolderCount int
	FileCount   int
	// SkippedItems counts objects whose key could not be unwrapped.
	SkippedItems int
}

// Err returns a *RecipientErrors when any recipient failed.
func (r *ShareResult) Err() error {
	if len(r.Failures) == 0 {
		return nil
	}
	return &RecipientErrors{Failures: r.Failures}
}

type keyedItem struct {
	id  string
	key secrets.DataKey
}

// ShareFolderRecursive grants each recipient access to folderID and
// everything below it. Every DataKey is unwrapped once; each recipient then
// receives one batch of re-wrapped keys. Failures for one recipient never
// prevent the others from being attempted.
func (p *Propagator) ShareFolderRecursive(ctx context.Context, folderID string, recipients []string, level AccessLevel) (*ShareResult, error) {
	var root *api.FolderItem
	var contents *api.FolderContents
	err := p.retry.Do(ctx, func(ctx context.Context) error {
		var err error
		root, err = p.client.GetFolder(ctx, folderID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load folder %s: %w", folderID, err)
	}
	err = p.retry.Do(ctx, func(ctx context.Context) error {
		var err error
		contents, err = p.client.FolderContents(ctx, folderID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list folder %s: %w", folderID, err)
	}

	rootKey, err := p.unwrap(root.EncryptedFolderKey)
	if err != nil {
		return nil, fmt.Errorf("failed to unwrap key of folder %s: %w", folderID, err)
	}

	result := &ShareResult{}
	folders := []keyedItem{{id: folderID, key: rootKey}}
	var files []keyedItem
	defer func() {
		for _, it := range folders {
			it.key.Zero()
		}
		for _, it := range files {
			it.key.Zero()
		}
	}()

	for _, item := range contents.Contents {
		key, err := p.unwrap(item.WrappedKey())
		if err != nil {
			p.log.Warnf("Skipping %s: %v", item.ID(), err)
			result.SkippedItems++
			continue
		}
		switch item.(type) {
		case *api.FolderItem:
			folders = append(folders, keyedItem{id: item.ID(), key: key})
		case *api.FileItem:
			files = append(files, keyedItem{id: item.ID(), key: key})
		}
	}
	result.FolderCount = len(folders)
	result.FileCount = len(files)

	p.forEachRecipient(ctx, recipients, result, func(ctx context.Context, recipient string) error {
		return p.shareFolderWith(ctx, recipient, folderID, level, folders, files)
	})
	return result, nil
}

func (p *Propagator) shareFolderWith(ctx context.Context, recipient, folderID string, level AccessLevel, folders, files []keyedItem) error {
	contact, err := p.lookupRecipient(ctx, recipient)
	if err != nil {
		return err
	}

	req := api.ShareFolderBatchRequest{
		FolderID:    folderID,
		ContactID:   contact.UserID,
		AccessLevel: string(level),
		FolderKeys:  make([]api.FolderKey, 0, len(folders)),
		FileKeys:    make([]api.FileKey, 0, len(files)),
	}
	for _, f := range folders {
		wrapped, err := wrapFor(contact.PublicKey, f.key)
		if err != nil {
			return fmt.Errorf("failed to wrap key of folder %s: %w", f.id, err)
		}
		req.FolderKeys = append(req.FolderKeys, api.FolderKey{FolderID: f.id, EncryptedFolderKey: wrapped})
	}
	for _, f := range files {
		wrapped, err := wrapFor(contact.PublicKey, f.key)
		if err != nil {
			return fmt.Errorf("failed to wrap key of file %s: %w", f.id, err)
		}
		req.FileKeys = append(req.FileKeys, api.FileKey{FileID: f.id, EncryptedFileKey: wrapped})
	}

	return p.retry.Do(ctx, func(ctx context.Context) error {
		return p.client.ShareFolderBatch(ctx, req)
	})
}

// ShareFile grants each recipient access to a single file.
func (p *Propagator) ShareFile(ctx context.Context, fileID string, recipients []string, level AccessLevel) (*ShareResult, error) {
	var info *api.FileInfo
	err := p.retry.Do(ctx, func(ctx context.Context) error {
		var err error
		info, err = p.client.GetFile(ctx, fileID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load file %s: %w", fileID, err)
	}

	key, err := p.unwrap(info.EncryptedFileKey)
	if err != nil {
		return nil, fmt.Errorf("failed to unwrap key of file %s: %w", fileID, err)
	}
	defer key.Zero()

	result := &ShareResult{FileCount: 1}
	p.forEachRecipient(ctx, recipients, result, func(ctx context.Context, recipient string) error {
		contact, err := p.lookupRecipient(ctx, recipient)
		if err != nil {
			return err
		}
		wrapped, err := wrapFor(contact.PublicKey, key)
		if err != nil {
			return err
		}
		req := api.ShareFileRequest{
			RecipientUserID:  contact.UserID,
			EncryptedFileKey: wrapped,
			AccessLevel:      string(level),
		}
		return p.retry.Do(ctx, func(ctx context.Context) error {
			return p.client.ShareFile(ctx, fileID, req)
		})
	})
	return result, nil
}

func (p *Propagator) lookupRecipient(ctx context.Context, email string) (*api.PublicKeyInfo, error) {
	var contact *api.PublicKeyInfo
	err := p.retry.Do(ctx, func(ctx context.Context) error {
		var err error
		contact, err = p.client.PublicKeyByEmail(ctx, email)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to look up public key: %w", err)
	}
	return contact, nil
}

// forEachRecipient runs fn for every recipient with bounded concurrency and
// records the outcome of each in result.
func (p *Propagator) forEachRecipient(ctx context.Context, recipients []string, result *ShareResult, fn func(ctx context.Context, recipient string) error) {
	var mu sync.Mutex
	var g errgroup.Group
	g.SetLimit(p.concurrency)

	for _, recipient := range recipients {
		g.Go(func() error {
			err := fn(ctx, recipient)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				p.log.Warnf("Could not share with %s: %v", recipient, err)
				result.Failures = append(result.Failures, RecipientError{Recipient: recipient, Err: err})
			} else {
				result.Shared = append(result.Shared, recipient)
			}
			return nil
		})
	}
	_ = g.Wait()

	sort.Strings(result.Shared)
	sort.Slice(result.Failures, func(i, j int) bool {
		return result.Failures[i].Recipient < result.Failures[j].Recipient
	})
}
