package transfer

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/PolarWolf314/cryptdrive/internal/api"
	kerrors "github.com/PolarWolf314/cryptdrive/internal/errors"
	logger "github.com/PolarWolf314/cryptdrive/internal/logging"
	"github.com/PolarWolf314/cryptdrive/internal/retry"
	"github.com/PolarWolf314/cryptdrive/internal/secrets"
	"github.com/PolarWolf314/cryptdrive/internal/sharing"

	"github.com/google/uuid"
	"github.com/mackerelio/go-osstat/memory"
)

const (
	DefaultChunkSize       = 1 << 20
	DefaultConcurrency     = 3
	DefaultSimultaneous    = 3
	DefaultStreamThreshold = 64 << 20
	DefaultStatsInterval   = 500 * time.Millisecond
	DefaultCleanupTimeout  = 10 * time.Second
)

// memoryHeadroom is kept free on top of a buffered download.
const memoryHeadroom = 200 << 20

// Config tunes a Manager. Zero fields take their defaults.
type Config struct {
	ChunkSize int
	// Concurrency is the number of chunk workers per transfer.
	Concurrency int
	// Simultaneous is the number of files UploadAll moves at once.
	Simultaneous int
	// StreamThreshold is the file size from which downloads stream.
	StreamThreshold int64
	StatsInterval   time.Duration
	// CleanupTimeout bounds best-effort abort and finalize calls made after
	// a transfer's own context is gone.
	CleanupTimeout time.Duration
	Retry          retry.Policy

	// OnProgress receives a snapshot on every state change and progress
	// sample. It must not block.
	OnProgress func(Status)
}

// DefaultConfig returns the default transfer settings.
func DefaultConfig() Config {
	return Config{
		ChunkSize:       DefaultChunkSize,
		Concurrency:     DefaultConcurrency,
		Simultaneous:    DefaultSimultaneous,
		StreamThreshold: DefaultStreamThreshold,
		StatsInterval:   DefaultStatsInterval,
		CleanupTimeout:  DefaultCleanupTimeout,
		Retry:           retry.DefaultPolicy(),
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.ChunkSize <= 0 {
		c.ChunkSize = d.ChunkSize
	}
	if c.Concurrency <= 0 {
		c.Concurrency = d.Concurrency
	}
	if c.Simultaneous <= 0 {
		c.Simultaneous = d.Simultaneous
	}
	if c.StreamThreshold <= 0 {
		c.StreamThreshold = d.StreamThreshold
	}
	if c.StatsInterval <= 0 {
		c.StatsInterval = d.StatsInterval
	}
	if c.CleanupTimeout <= 0 {
		c.CleanupTimeout = d.CleanupTimeout
	}
	if c.Retry.MaxRetries == 0 && c.Retry.BaseDelay == 0 && c.Retry.MaxJitter == 0 {
		onRetry := c.Retry.OnRetry
		c.Retry = d.Retry
		c.Retry.OnRetry = onRetry
	}
	return c
}

// Client is the subset of the backend API used for transfers.
type Client interface {
	InitializeFile(ctx context.Context, req api.InitializeFileRequest) (string, error)
	UploadChunk(ctx context.Context, req api.UploadChunkRequest) error
	FinalizeUpload(ctx context.Context, fileID string, state api.FinalizeState) error
	AbortUpload(ctx context.Context, fileID string) error
	GetFile(ctx context.Context, fileID string) (*api.FileInfo, error)
	DownloadChunk(ctx context.Context, key string) (*api.ChunkData, error)
	FolderContents(ctx context.Context, folderID string) (*api.FolderContents, error)
}

// Keys wraps new DataKeys for the owner and unwraps received ones.
type Keys interface {
	WrapForSelf(raw []byte) ([]byte, error)
	UnwrapDataKey(ciphertext []byte) (secrets.DataKey, error)
}

// Propagator hands a new object's DataKey to the collaborators of its
// parent folder.
type Propagator interface {
	Propagate(ctx context.Context, obj sharing.ObjectRef, parentFolderID string, key secrets.DataKey) (sharing.PropagateResult, error)
}

// Manager runs and tracks transfers for one session. Each transfer has its
// own worker pool, cancel func and pause gate, so a failure never reaches
// sibling transfers.
type Manager struct {
	client     Client
	keys       Keys
	propagator Propagator
	log        logger.Logger
	cfg        Config

	freeMemory func() (uint64, error)

	mu        sync.Mutex
	transfers map[string]*Transfer
	order     []string

	background sync.WaitGroup
}

// NewManager returns a Manager. propagator may be nil, in which case new
// files are never shared automatically.
func NewManager(client Client, keys Keys, propagator Propagator, log logger.Logger, cfg Config) *Manager {
	return &Manager{
		client:     client,
		keys:       keys,
		propagator: propagator,
		log:        log,
		cfg:        cfg.withDefaults(),
		freeMemory: systemFreeMemory,
		transfers:  make(map[string]*Transfer),
	}
}

func systemFreeMemory() (uint64, error) {
	stats, err := memory.Get()
	if err != nil {
		return 0, err
	}
	return stats.Free, nil
}

// Config returns the effective configuration.
func (m *Manager) Config() Config { return m.cfg }

func (m *Manager) register(dir Direction, name string, size int64) *Transfer {
	t := newTransfer(uuid.NewString(), dir, name, size, m.cfg.StatsInterval, m.cfg.OnProgress)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.transfers[t.id] = t
	m.order = append(m.order, t.id)
	return t
}

func (m *Manager) lookup(id string) (*Transfer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.transfers[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", kerrors.ErrTransferNotFound, id)
	}
	return t, nil
}

func (m *Manager) all() []*Transfer {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Transfer, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.transfers[id])
	}
	return out
}

// Get returns the status of a queued or running transfer.
func (m *Manager) Get(id string) (Status, error) {
	t, err := m.lookup(id)
	if err != nil {
		return Status{}, err
	}
	return t.Status(), nil
}

// List returns the queued and running transfers in registration order.
// Finished transfers are no longer tracked.
func (m *Manager) List() []Status {
	transfers := m.all()
	out := make([]Status, len(transfers))
	for i, t := range transfers {
		out[i] = t.Status()
	}
	return out
}

// end stops tracking t and moves it to its terminal state. The handle
// returned by Start* keeps working for Wait and Status.
func (m *Manager) end(t *Transfer, s State, err error) {
	m.mu.Lock()
	if _, ok := m.transfers[t.id]; ok {
		delete(m.transfers, t.id)
		if i := slices.Index(m.order, t.id); i >= 0 {
			m.order = slices.Delete(m.order, i, i+1)
		}
	}
	m.mu.Unlock()

	t.finish(s, err)
}

// Pause stops dispatching new chunks for a transfer. Chunks already in
// flight complete. A finished transfer is no longer tracked, so pausing it
// reports ErrTransferNotFound.
func (m *Manager) Pause(id string) error {
	t, err := m.lookup(id)
	if err != nil {
		return err
	}
	if !t.Status().State.Terminal() {
		t.gate.pause()
		t.emit()
	}
	return nil
}

// Resume lets a paused transfer continue from where it stopped.
func (m *Manager) Resume(id string) error {
	t, err := m.lookup(id)
	if err != nil {
		return err
	}
	t.gate.resume()
	t.emit()
	return nil
}

// Cancel stops a transfer. It reports whether a cancellation was issued;
// cancelling an unknown, finished or already cancelled transfer is a no-op.
func (m *Manager) Cancel(id string) bool {
	t, err := m.lookup(id)
	if err != nil {
		return false
	}
	return t.requestCancel()
}

func (m *Manager) PauseAll() {
	for _, t := range m.all() {
		_ = m.Pause(t.id)
	}
}

func (m *Manager) ResumeAll() {
	for _, t := range m.all() {
		_ = m.Resume(t.id)
	}
}

// CancelAll cancels every running or queued transfer and returns how many
// were cancelled.
func (m *Manager) CancelAll() int {
	n := 0
	for _, t := range m.all() {
		if t.requestCancel() {
			n++
		}
	}
	return n
}

// Close waits for background propagation started by uploads.
func (m *Manager) Close() {
	m.background.Wait()
}

// policyFor returns the retry policy of a transfer, counting its retries.
func (m *Manager) policyFor(t *Transfer, what string) retry.Policy {
	p := m.cfg.Retry
	next := p.OnRetry
	p.OnRetry = func(attempt int, delay time.Duration, err error) {
		t.retries.Add(1)
		m.log.Warnf("Retrying %s of %s (attempt %d) in %s: %v", what, t.id, attempt+1, delay.Round(time.Millisecond), err)
		if next != nil {
			next(attempt, delay, err)
		}
	}
	return p
}

// cleanup runs a best-effort backend call on a fresh context.
func (m *Manager) cleanup(what string, fn func(ctx context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.CleanupTimeout)
	defer cancel()
	if err := fn(ctx); err != nil {
		m.log.Warnf("Could not %s: %v", what, err)
	}
}

// propagateAsync shares a new object with the collaborators of its parent
// in the background. Failures are only logged.
func (m *Manager) propagateAsync(obj sharing.ObjectRef, parentID string, key secrets.DataKey) {
	if m.propagator == nil || !sharing.IsShareableParent(parentID) {
		return
	}
	own := append(secrets.DataKey(nil), key...)

	m.background.Add(1)
	go func() {
		defer m.background.Done()
		defer own.Zero()

		ctx, cancel := context.WithTimeout(context.Background(), 4*m.cfg.CleanupTimeout)
		defer cancel()
		if _, err := m.propagator.Propagate(ctx, obj, parentID, own); err != nil {
			m.log.Warnf("Could not share %s %s with the collaborators of folder %s: %v", obj.Kind, obj.ID, parentID, err)
		}
	}()
}
