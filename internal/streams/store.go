package streams

import (
	"log/slog"
	"sync"
	"time"
)

// Store is the persistence collaborator of the supervisor and health monitor.
type Store interface {
	// Load (re)reads camera configuration from its backing file.
	Load() error

	// GetCamera retrieves a camera by ID.
	GetCamera(id string) (CameraSpec, bool)

	// GetAllCameras returns all cameras keyed by ID.
	GetAllCameras() map[string]CameraSpec

	// SaveSessionStatus writes back runtime state, metrics and timestamps.
	SaveSessionStatus(status SessionStatus) error

	// AppendRecord appends a structured log or alert record.
	AppendRecord(rec Record) error
}

// Record is a structured log/alert entry handed to the Store.
type Record struct {
	Time      time.Time         `toml:"time" json:"time"`
	Level     string            `toml:"level" json:"level"`
	Source    string            `toml:"source" json:"source"`
	SessionID string            `toml:"session_id,omitempty" json:"session_id,omitempty"`
	Message   string            `toml:"message" json:"message"`
	Fields    map[string]string `toml:"fields,omitempty" json:"fields,omitempty"`
}

// WriteBack runs Store calls on a single goroutine so callers never block
// on I/O and writes land in the order they were queued. Failures are logged.
type WriteBack struct {
	store  Store
	queue  chan func(Store) error
	logger *slog.Logger
	once   sync.Once
	done   chan struct{}

	mu     sync.Mutex
	closed bool
}

// NewWriteBack starts a write-back worker. A nil store yields a worker that
// drops everything.
func NewWriteBack(store Store, logger *slog.Logger, size int) *WriteBack {
	if size <= 0 {
		size = 256
	}
	w := &WriteBack{
		store:  store,
		queue:  make(chan func(Store) error, size),
		logger: logger,
		done:   make(chan struct{}),
	}
	go w.run()
	return w
}

// Enqueue schedules fn. It never blocks; when the queue is full or the
// worker has been closed the write is dropped with a warning.
func (w *WriteBack) Enqueue(fn func(Store) error) {
	if w == nil || w.store == nil {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		w.logger.Warn("Persistence closed, dropping write")
		return
	}
	select {
	case w.queue <- fn:
	default:
		w.logger.Warn("Persistence queue full, dropping write")
	}
}

// SaveStatus queues a session status write.
func (w *WriteBack) SaveStatus(status SessionStatus) {
	w.Enqueue(func(s Store) error { return s.SaveSessionStatus(status) })
}

// Append queues a record write.
func (w *WriteBack) Append(rec Record) {
	if rec.Time.IsZero() {
		rec.Time = time.Now()
	}
	w.Enqueue(func(s Store) error { return s.AppendRecord(rec) })
}

// Close drains pending writes and stops the worker.
func (w *WriteBack) Close() {
	if w == nil {
		return
	}
	w.once.Do(func() {
		w.mu.Lock()
		w.closed = true
		close(w.queue)
		w.mu.Unlock()
		<-w.done
	})
}

func (w *WriteBack) run() {
	defer close(w.done)
	for fn := range w.queue {
		if w.store == nil {
			continue
		}
		if err := fn(w.store); err != nil {
			w.logger.Warn("Persistence write failed", "error", err)
		}
	}
}
