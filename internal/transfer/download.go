package transfer

import (
	"context"
	"fmt"
	"io"
	"sort"
	"sync/atomic"

	"github.com/PolarWolf314/cryptdrive/internal/api"
	"github.com/PolarWolf314/cryptdrive/internal/codec"
	kerrors "github.com/PolarWolf314/cryptdrive/internal/errors"
	"github.com/PolarWolf314/cryptdrive/internal/retry"
	"github.com/PolarWolf314/cryptdrive/internal/secrets"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// StartDownload registers a download of fileID into w and runs it in the
// background. w must not be used until the transfer is done.
func (m *Manager) StartDownload(ctx context.Context, fileID string, w io.Writer) *Transfer {
	t := m.register(DirectionDownload, fileID, 0)
	t.setFileID(fileID)
	go m.runDownload(ctx, t, fileID, w)
	return t
}

// Download writes the plaintext of fileID to w and waits for it to finish.
// Plaintext reaches w strictly in chunk order; nothing is written after a
// chunk fails to decrypt.
func (m *Manager) Download(ctx context.Context, fileID string, w io.Writer) (Status, *secrets.FileMetadata, error) {
	t := m.register(DirectionDownload, fileID, 0)
	t.setFileID(fileID)
	m.runDownload(ctx, t, fileID, w)
	s := t.Status()
	return s, t.Metadata(), s.Err
}

func (m *Manager) runDownload(parent context.Context, t *Transfer, fileID string, w io.Writer) {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()
	if !t.bind(cancel) {
		m.end(t, StateAborted, kerrors.ErrCancelled)
		return
	}

	err := m.download(ctx, t, fileID, w)
	switch {
	case err == nil:
		m.log.Infof("Downloaded %s (%s)", t.Status().Name, fileID)
		m.end(t, StateCompleted, nil)
	case t.cancelRequested() || retry.Classify(err) == retry.Cancelled:
		m.log.Infof("Download of %s cancelled", t.Status().Name)
		m.end(t, StateAborted, fmt.Errorf("%w: %w", kerrors.ErrCancelled, err))
	default:
		m.log.Errorf("Download of %s failed: %v", t.Status().Name, err)
		m.end(t, StateFailed, err)
	}
}

func (m *Manager) download(ctx context.Context, t *Transfer, fileID string, w io.Writer) error {
	policy := m.policyFor(t, "download")
	t.setState(StateInitializing)

	var info *api.FileInfo
	err := policy.Do(ctx, func(ctx context.Context) error {
		var err error
		info, err = m.client.GetFile(ctx, fileID)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to load file %s: %w", fileID, err)
	}

	key, err := m.unwrapKey(info.EncryptedFileKey)
	if err != nil {
		return fmt.Errorf("failed to unwrap file key: %w", err)
	}
	defer key.Zero()

	meta := &secrets.FileMetadata{}
	if info.EncryptedMetadata != "" {
		blob, err := codec.DecodeBase64(info.EncryptedMetadata)
		if err != nil {
			return fmt.Errorf("%w: metadata: %v", kerrors.ErrDecryptionFailed, err)
		}
		if err := secrets.DecryptJSON(blob, key, meta); err != nil {
			return fmt.Errorf("failed to decrypt metadata: %w", err)
		}
	}
	refs, err := orderChunks(info.Chunks)
	if err != nil {
		return err
	}
	t.setMetadata(meta)
	size := meta.Size
	if size == 0 && len(refs) > 0 {
		size = -1
	}

	t.setState(StateDownloading)
	if len(refs) == 0 {
		return nil
	}
	if m.streaming(size) {
		m.log.Debugf("Streaming %s (%d chunks)", fileID, len(refs))
		return m.streamChunks(ctx, t, refs, key, policy, w)
	}
	m.log.Debugf("Buffering %s (%d chunks)", fileID, len(refs))
	return m.bufferChunks(ctx, t, refs, key, policy, w)
}

func (m *Manager) unwrapKey(wrapped string) (secrets.DataKey, error) {
	ct, err := codec.DecodeBase64(wrapped)
	if err != nil {
		return nil, err
	}
	return m.keys.UnwrapDataKey(ct)
}

// orderChunks sorts refs by index and requires exactly 0..N-1.
func orderChunks(refs []api.ChunkRef) ([]api.ChunkRef, error) {
	sorted := append([]api.ChunkRef(nil), refs...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Index < sorted[j].Index })
	for i, ref := range sorted {
		if ref.Index != i {
			return nil, fmt.Errorf("%w: expected chunk %d, found %d", kerrors.ErrIncompleteFile, i, ref.Index)
		}
	}
	return sorted, nil
}

// streaming reports whether a download of size bytes should stream instead
// of being assembled in memory. Unknown sizes always stream.
func (m *Manager) streaming(size int64) bool {
	if size < 0 || size >= m.cfg.StreamThreshold {
		return true
	}
	free, err := m.freeMemory()
	if err != nil {
		m.log.Debugf("Could not read free memory: %v", err)
		return false
	}
	return uint64(float64(size)*1.2)+memoryHeadroom > free
}

// fetchChunk downloads and decrypts one chunk. Decryption failures are not
// retried.
func (m *Manager) fetchChunk(ctx context.Context, ref api.ChunkRef, key secrets.DataKey, policy retry.Policy) ([]byte, error) {
	var chunk *api.ChunkData
	err := policy.Do(ctx, func(ctx context.Context) error {
		var err error
		chunk, err = m.client.DownloadChunk(ctx, ref.Key)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to download chunk %d: %w", ref.Index, err)
	}

	ct, err := codec.DecodeBase64(chunk.Data)
	if err != nil {
		return nil, fmt.Errorf("%w: chunk %d: %v", kerrors.ErrCorruptedChunk, ref.Index, err)
	}
	iv, err := codec.DecodeBase64(chunk.IV)
	if err != nil {
		return nil, fmt.Errorf("%w: chunk %d: %v", kerrors.ErrCorruptedChunk, ref.Index, err)
	}
	plain, err := secrets.DecryptChunk(ct, iv, key)
	if err != nil {
		return nil, fmt.Errorf("%w: chunk %d: %v", kerrors.ErrCorruptedChunk, ref.Index, err)
	}
	return plain, nil
}

// bufferChunks fetches every chunk into its slot and writes them in order
// once all succeeded.
func (m *Manager) bufferChunks(ctx context.Context, t *Transfer, refs []api.ChunkRef, key secrets.DataKey, policy retry.Policy, w io.Writer) error {
	slots := make([][]byte, len(refs))

	var next atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	for range min(m.cfg.Concurrency, len(refs)) {
		g.Go(func() error {
			for {
				if err := t.gate.wait(gctx); err != nil {
					return err
				}
				i := int(next.Add(1) - 1)
				if i >= len(refs) {
					return nil
				}
				plain, err := m.fetchChunk(gctx, refs[i], key, policy)
				if err != nil {
					return err
				}
				slots[i] = plain
				t.advance(int64(len(plain)))
			}
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for i, plain := range slots {
		if _, err := w.Write(plain); err != nil {
			return fmt.Errorf("failed to write chunk %d: %w", i, err)
		}
		slots[i] = nil
	}
	return nil
}

// streamChunks keeps at most Concurrency chunks between fetch and write.
// A token is taken before an index is claimed and given back once that
// chunk is written, so the lowest unwritten index can always make progress.
func (m *Manager) streamChunks(ctx context.Context, t *Transfer, refs []api.ChunkRef, key secrets.DataKey, policy retry.Policy, w io.Writer) error {
	window := min(m.cfg.Concurrency, len(refs))
	tokens := semaphore.NewWeighted(int64(window))
	ready := make([]chan []byte, len(refs))
	for i := range ready {
		ready[i] = make(chan []byte, 1)
	}

	var next atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	for range window {
		g.Go(func() error {
			for {
				if err := t.gate.wait(gctx); err != nil {
					return err
				}
				if err := tokens.Acquire(gctx, 1); err != nil {
					return err
				}
				i := int(next.Add(1) - 1)
				if i >= len(refs) {
					tokens.Release(1)
					return nil
				}
				plain, err := m.fetchChunk(gctx, refs[i], key, policy)
				if err != nil {
					return err
				}
				ready[i] <- plain
			}
		})
	}

	g.Go(func() error {
		for i := range ready {
			select {
			case plain := <-ready[i]:
				if _, err := w.Write(plain); err != nil {
					return fmt.Errorf("failed to write chunk %d: %w", i, err)
				}
				t.advance(int64(len(plain)))
				tokens.Release(1)
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})

	return g.Wait()
}
