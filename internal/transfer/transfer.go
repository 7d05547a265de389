package transfer

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/PolarWolf314/cryptdrive/internal/secrets"
)

// Direction is whether a transfer moves data to or from the backend.
type Direction string

const (
	DirectionUpload   Direction = "upload"
	DirectionDownload Direction = "download"
)

// State is the lifecycle position of a transfer.
type State string

const (
	StateQueued       State = "queued"
	StateInitializing State = "initializing"
	StateUploading    State = "uploading"
	StateDownloading  State = "downloading"
	StateCompleted    State = "completed"
	StateAborted      State = "aborted"
	StateFailed       State = "failed"
)

// Terminal reports whether no further transitions can happen.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateAborted || s == StateFailed
}

// Status is a point-in-time snapshot of a transfer.
type Status struct {
	ID        string
	Direction Direction
	Name      string
	FileID    string
	State     State

	Size int64
	Done int64
	// Progress is the completed percentage, 0 to 100.
	Progress       float64
	BytesPerSecond float64
	ETA            time.Duration

	Paused     bool
	RetryCount int
	Err        error
}

// Transfer is one upload or download tracked by a Manager.
type Transfer struct {
	id        string
	direction Direction
	gate      *gate
	meter     *meter
	finished  chan struct{}
	notify    func(Status)

	done    atomic.Int64
	retries atomic.Int64

	mu        sync.Mutex
	name      string
	size      int64
	fileID    string
	state     State
	err       error
	cancel    context.CancelFunc
	cancelled bool
	metadata  *secrets.FileMetadata
}

func newTransfer(id string, dir Direction, name string, size int64, interval time.Duration, notify func(Status)) *Transfer {
	return &Transfer{
		id:        id,
		direction: dir,
		name:      name,
		size:      size,
		state:     StateQueued,
		gate:      newGate(),
		meter:     newMeter(interval),
		finished:  make(chan struct{}),
		notify:    notify,
	}
}

// ID returns the transfer id.
func (t *Transfer) ID() string { return t.id }

// Done is closed once the transfer reaches a terminal state.
func (t *Transfer) Done() <-chan struct{} { return t.finished }

// Wait blocks until the transfer finishes or ctx is done and returns the
// final status together with the transfer's error.
func (t *Transfer) Wait(ctx context.Context) (Status, error) {
	select {
	case <-t.finished:
		s := t.Status()
		return s, s.Err
	case <-ctx.Done():
		return t.Status(), ctx.Err()
	}
}

// Metadata returns the decrypted metadata of a download, once known.
func (t *Transfer) Metadata() *secrets.FileMetadata {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.metadata
}

// Status returns a snapshot of the transfer.
func (t *Transfer) Status() Status {
	t.mu.Lock()
	s := Status{
		ID:        t.id,
		Direction: t.direction,
		Name:      t.name,
		FileID:    t.fileID,
		State:     t.state,
		Size:      t.size,
		Err:       t.err,
	}
	t.mu.Unlock()

	s.Done = t.done.Load()
	s.RetryCount = int(t.retries.Load())
	s.Paused = t.gate.isPaused() && !s.State.Terminal()
	switch {
	case s.Size > 0:
		s.Progress = float64(s.Done) * 100 / float64(s.Size)
	case s.State == StateCompleted:
		s.Progress = 100
	}
	if !s.State.Terminal() {
		s.BytesPerSecond = t.meter.rate()
		if s.BytesPerSecond > 0 && s.Size > s.Done {
			s.ETA = time.Duration(float64(s.Size-s.Done) / s.BytesPerSecond * float64(time.Second))
		}
	}
	return s
}

// bind attaches the cancel func of a started transfer. It returns false when
// the transfer was cancelled before it started.
func (t *Transfer) bind(cancel context.CancelFunc) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cancelled {
		return false
	}
	t.cancel = cancel
	return true
}

// requestCancel cancels the transfer unless it already finished or was
// already cancelled.
func (t *Transfer) requestCancel() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cancelled || t.state.Terminal() {
		return false
	}
	t.cancelled = true
	if t.cancel != nil {
		t.cancel()
	}
	return true
}

func (t *Transfer) cancelRequested() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cancelled
}

func (t *Transfer) setState(s State) {
	t.mu.Lock()
	t.state = s
	t.mu.Unlock()
	if s == StateUploading || s == StateDownloading {
		t.meter.reset(t.done.Load())
	}
	t.emit()
}

func (t *Transfer) setFileID(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.fileID = id
}

func (t *Transfer) setMetadata(meta *secrets.FileMetadata) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.metadata = meta
	if meta.Filename != "" {
		t.name = meta.Filename
	}
	t.size = meta.Size
}

// advance records n more bytes transferred.
func (t *Transfer) advance(n int64) {
	done := t.done.Add(n)
	if t.meter.observe(done) {
		t.emit()
	}
}

// finish moves the transfer to a terminal state and releases its
// cancel func and pause gate.
func (t *Transfer) finish(s State, err error) {
	t.mu.Lock()
	if t.state.Terminal() {
		t.mu.Unlock()
		return
	}
	t.state = s
	t.err = err
	cancel := t.cancel
	t.cancel = nil
	t.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	t.gate.resume()
	close(t.finished)
	t.emit()
}

func (t *Transfer) emit() {
	if t.notify != nil {
		t.notify(t.Status())
	}
}

// gate blocks chunk dispatch while a transfer is paused. The channel is
// closed while the gate is open.
type gate struct {
	mu     sync.Mutex
	paused bool
	open   chan struct{}
}

func newGate() *gate {
	ch := make(chan struct{})
	close(ch)
	return &gate{open: ch}
}

func (g *gate) pause() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.paused {
		g.paused = true
		g.open = make(chan struct{})
	}
}

func (g *gate) resume() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.paused {
		g.paused = false
		close(g.open)
	}
}

func (g *gate) isPaused() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.paused
}

// wait returns once the gate is open or ctx is done.
func (g *gate) wait(ctx context.Context) error {
	g.mu.Lock()
	ch := g.open
	g.mu.Unlock()

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// meter samples throughput at most once per interval.
type meter struct {
	interval time.Duration
	now      func() time.Time

	mu        sync.Mutex
	last      time.Time
	lastBytes int64
	bps       float64
}

func newMeter(interval time.Duration) *meter {
	return &meter{interval: interval, now: time.Now}
}

func (m *meter) reset(done int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.last = m.now()
	m.lastBytes = done
	m.bps = 0
}

// observe records the running byte count and reports whether a new sample
// was taken.
func (m *meter) observe(done int64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if m.last.IsZero() {
		m.last = now
		m.lastBytes = done
		return false
	}
	elapsed := now.Sub(m.last)
	if elapsed < m.interval || elapsed <= 0 {
		return false
	}
	m.bps = float64(done-m.lastBytes) / elapsed.Seconds()
	m.last = now
	m.lastBytes = done
	return true
}

func (m *meter) rate() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.bps
}
