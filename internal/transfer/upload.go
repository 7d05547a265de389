package transfer

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/PolarWolf314/cryptdrive/internal/api"
	"github.com/PolarWolf314/cryptdrive/internal/codec"
	kerrors "github.com/PolarWolf314/cryptdrive/internal/errors"
	"github.com/PolarWolf314/cryptdrive/internal/retry"
	"github.com/PolarWolf314/cryptdrive/internal/secrets"
	"github.com/PolarWolf314/cryptdrive/internal/sharing"

	"golang.org/x/sync/errgroup"
)

// Initialize registers src with the backend under folderID. It returns the
// new file id and the file's DataKey, which the caller must Zero. When the
// folder is shared the key is propagated in the background.
func (m *Manager) Initialize(ctx context.Context, src *Source, folderID string) (string, secrets.DataKey, error) {
	return m.initialize(ctx, src, folderID, m.cfg.Retry)
}

func (m *Manager) initialize(ctx context.Context, src *Source, folderID string, policy retry.Policy) (string, secrets.DataKey, error) {
	if folderID == "" {
		folderID = api.RootFolderID
	}

	key, err := secrets.GenerateDataKey()
	if err != nil {
		return "", nil, err
	}

	wrapped, err := m.keys.WrapForSelf(key)
	if err != nil {
		key.Zero()
		return "", nil, fmt.Errorf("failed to wrap file key: %w", err)
	}

	meta := secrets.FileMetadata{
		Filename: src.Name,
		Size:     src.Size,
		MimeType: src.MimeType,
	}
	if !src.ModTime.IsZero() {
		meta.LastModified = src.ModTime.UnixMilli()
	}
	sealed, err := secrets.EncryptJSON(meta, key)
	if err != nil {
		key.Zero()
		return "", nil, fmt.Errorf("failed to encrypt metadata: %w", err)
	}

	req := api.InitializeFileRequest{
		EncryptedMetadata: codec.EncodeBase64(sealed),
		EncryptedFileKey:  codec.EncodeBase64(wrapped),
		Size:              src.Size,
		MimeType:          src.MimeType,
		FolderID:          folderID,
	}

	var fileID string
	err = policy.Do(ctx, func(ctx context.Context) error {
		var err error
		fileID, err = m.client.InitializeFile(ctx, req)
		return err
	})
	if err != nil {
		key.Zero()
		return "", nil, fmt.Errorf("failed to initialize upload of %s: %w", src.Name, err)
	}

	m.propagateAsync(sharing.ObjectRef{Kind: sharing.KindFile, ID: fileID}, folderID, key)
	return fileID, key, nil
}

// StartUpload registers an upload of src into folderID and runs it in the
// background.
func (m *Manager) StartUpload(ctx context.Context, src *Source, folderID string) *Transfer {
	t := m.register(DirectionUpload, src.Name, src.Size)
	go m.runUpload(ctx, t, src, folderID)
	return t
}

// Upload uploads src into folderID and waits for it to finish.
func (m *Manager) Upload(ctx context.Context, src *Source, folderID string) (Status, error) {
	t := m.register(DirectionUpload, src.Name, src.Size)
	m.runUpload(ctx, t, src, folderID)
	s := t.Status()
	return s, s.Err
}

// UploadAll uploads every source into folderID with at most Simultaneous
// files in flight. Every transfer is registered as queued before the first
// one starts. Statuses are returned in input order; the error joins the
// failures.
func (m *Manager) UploadAll(ctx context.Context, sources []*Source, folderID string) ([]Status, error) {
	transfers := make([]*Transfer, len(sources))
	for i, src := range sources {
		transfers[i] = m.register(DirectionUpload, src.Name, src.Size)
	}

	var g errgroup.Group
	g.SetLimit(m.cfg.Simultaneous)
	for i, src := range sources {
		g.Go(func() error {
			m.runUpload(ctx, transfers[i], src, folderID)
			return nil
		})
	}
	_ = g.Wait()

	statuses := make([]Status, len(transfers))
	var errs []error
	for i, t := range transfers {
		statuses[i] = t.Status()
		if statuses[i].Err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", statuses[i].Name, statuses[i].Err))
		}
	}
	return statuses, errors.Join(errs...)
}

func (m *Manager) runUpload(parent context.Context, t *Transfer, src *Source, folderID string) {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()
	if !t.bind(cancel) {
		m.end(t, StateAborted, kerrors.ErrCancelled)
		return
	}

	if err := src.open(); err != nil {
		m.endUpload(t, "", err)
		return
	}
	defer src.Close()

	policy := m.policyFor(t, "upload")

	t.setState(StateInitializing)
	fileID, key, err := m.initialize(ctx, src, folderID, policy)
	if err != nil {
		m.endUpload(t, "", err)
		return
	}
	defer key.Zero()
	t.setFileID(fileID)

	t.setState(StateUploading)
	err = m.uploadChunks(ctx, t, src, fileID, key, policy)
	if err == nil {
		err = policy.Do(ctx, func(ctx context.Context) error {
			return m.client.FinalizeUpload(ctx, fileID, api.FinalizeCompleted)
		})
		if err != nil {
			err = fmt.Errorf("failed to finalize upload: %w", err)
		}
	}
	m.endUpload(t, fileID, err)
}

// endUpload records the outcome of an upload and tells the backend about
// uploads that did not complete.
func (m *Manager) endUpload(t *Transfer, fileID string, err error) {
	switch {
	case err == nil:
		m.log.Infof("Uploaded %s (%s)", t.Status().Name, fileID)
		m.end(t, StateCompleted, nil)

	case t.cancelRequested() || retry.Classify(err) == retry.Cancelled:
		if fileID != "" {
			m.cleanup("abort upload "+fileID, func(ctx context.Context) error {
				return m.client.AbortUpload(ctx, fileID)
			})
		}
		m.log.Infof("Upload of %s cancelled", t.Status().Name)
		m.end(t, StateAborted, fmt.Errorf("%w: %w", kerrors.ErrCancelled, err))

	default:
		if fileID != "" {
			m.cleanup("mark upload "+fileID+" aborted", func(ctx context.Context) error {
				return m.client.FinalizeUpload(ctx, fileID, api.FinalizeAborted)
			})
		}
		m.log.Errorf("Upload of %s failed: %v", t.Status().Name, err)
		m.end(t, StateFailed, err)
	}
}

// uploadChunks encrypts and sends every chunk of src. Workers claim indices
// from a shared counter, so each index is dispatched exactly once.
func (m *Manager) uploadChunks(ctx context.Context, t *Transfer, src *Source, fileID string, key secrets.DataKey, policy retry.Policy) error {
	count := chunkCount(src.Size, m.cfg.ChunkSize)
	if count == 0 {
		return nil
	}
	workers := min(m.cfg.Concurrency, count)

	send := func(ctx context.Context, buf []byte, index int) error {
		plain, err := readChunk(src, buf, index)
		if err != nil {
			return err
		}

		sealed, err := secrets.EncryptChunk(plain, key)
		if err != nil {
			return fmt.Errorf("failed to encrypt chunk %d: %w", index, err)
		}

		req := api.UploadChunkRequest{
			FileID:    fileID,
			Index:     index,
			ChunkData: codec.EncodeBase64(sealed.CipherText),
			IV:        codec.EncodeBase64(sealed.IV),
		}
		err = policy.Do(ctx, func(ctx context.Context) error {
			return m.client.UploadChunk(ctx, req)
		})
		if err != nil {
			return fmt.Errorf("failed to upload chunk %d: %w", index, err)
		}
		t.advance(int64(len(plain)))
		return nil
	}

	var next atomic.Int64
	g, ctx := errgroup.WithContext(ctx)
	for range workers {
		g.Go(func() error {
			buf := make([]byte, m.cfg.ChunkSize)
			for {
				if err := t.gate.wait(ctx); err != nil {
					return err
				}
				index := int(next.Add(1) - 1)
				if index >= count {
					return nil
				}
				if err := send(ctx, buf, index); err != nil {
					return err
				}
			}
		})
	}
	return g.Wait()
}
