package errorexplorer

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
)

// StorageKey is the well-known key the offline queue persists under.
const StorageKey = "error_explorer_offline_queue"

// Store is the persistence collaborator for the offline queue: a bounded
// ordered collection of serialized events under a single key. Values must
// round-trip through Save/Load without loss.
type Store interface {
	Load(key string) ([]json.RawMessage, error)
	Save(key string, items []json.RawMessage) error
}

// FileStore persists the queue as a JSON file, written atomically via a
// temp file and rename.
type FileStore struct {
	mu   sync.Mutex
	path string
}

// NewFileStore creates a file-backed store at the given path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Load reads the persisted collection for the key. A missing file is an
// empty queue, not an error.
func (fs *FileStore) Load(key string) ([]json.RawMessage, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	data, err := os.ReadFile(fs.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read offline store: %w", err)
	}

	var contents map[string][]json.RawMessage
	if err := json.Unmarshal(data, &contents); err != nil {
		return nil, fmt.Errorf("corrupt offline store: %w", err)
	}
	return contents[key], nil
}

// Save replaces the persisted collection for the key.
func (fs *FileStore) Save(key string, items []json.RawMessage) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if items == nil {
		items = []json.RawMessage{}
	}
	data, err := json.Marshal(map[string][]json.RawMessage{key: items})
	if err != nil {
		return fmt.Errorf("failed to serialize offline store: %w", err)
	}

	tmp := fs.path + ".tmp"
	if err := os.MkdirAll(filepath.Dir(fs.path), 0o755); err != nil {
		return fmt.Errorf("failed to create offline store dir: %w", err)
	}
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("failed to write offline store: %w", err)
	}
	if err := os.Rename(tmp, fs.path); err != nil {
		return fmt.Errorf("failed to replace offline store: %w", err)
	}
	return nil
}

// SendFunc delivers one serialized event, reporting success.
type SendFunc func(ctx context.Context, body json.RawMessage) bool

// OfflineQueue is the durable, size-bounded FIFO overflow buffer used when
// the network is known-down. It flushes into the transport when
// connectivity returns.
type OfflineQueue struct {
	mu      sync.Mutex
	items   []json.RawMessage
	maxSize int
	store   Store
	send    SendFunc
	monitor *ConnectivityMonitor
	logger  *zap.Logger
	detach  func()

	flushMu sync.Mutex
}

// NewOfflineQueue creates the queue, loading any events persisted by a
// previous run, and hooks the connectivity-restored signal to an automatic
// flush.
func NewOfflineQueue(maxSize int, store Store, monitor *ConnectivityMonitor, logger *zap.Logger) *OfflineQueue {
	if maxSize <= 0 {
		maxSize = defaultOfflineMaxSize
	}

	q := &OfflineQueue{
		maxSize: maxSize,
		store:   store,
		monitor: monitor,
		logger:  logger,
	}

	if items, err := store.Load(StorageKey); err != nil {
		logger.Debug("failed to load offline queue", zap.Error(err))
	} else {
		q.items = items
	}

	if monitor != nil {
		q.detach = monitor.OnRestore(func() {
			go q.Flush(context.Background())
		})
	}

	return q
}

// SetSender registers the delivery function used by Flush.
func (q *OfflineQueue) SetSender(send SendFunc) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.send = send
}

// Enqueue persists the event, evicting the oldest entry when over capacity.
func (q *OfflineQueue) Enqueue(event *ErrorEvent) {
	body, err := json.Marshal(event)
	if err != nil {
		q.logger.Debug("failed to serialize event for offline queue",
			zap.String("event_id", event.ID),
			zap.Error(err))
		return
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	q.items = append(q.items, body)
	if len(q.items) > q.maxSize {
		q.items = q.items[len(q.items)-q.maxSize:]
	}
	q.persistLocked()
}

// Len reports the number of queued events.
func (q *OfflineQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Flush sends every queued event through the registered send function. It
// is a no-op unless connectivity is confirmed and a sender is registered.
// The persisted queue is cleared before sending so a crash mid-flush never
// re-delivers; failed sends are re-persisted, prepended ahead of any events
// that arrived during the flush window.
func (q *OfflineQueue) Flush(ctx context.Context) {
	q.flushMu.Lock()
	defer q.flushMu.Unlock()

	if q.monitor != nil && !q.monitor.Online() {
		return
	}

	q.mu.Lock()
	send := q.send
	if send == nil || len(q.items) == 0 {
		q.mu.Unlock()
		return
	}
	batch := q.items
	q.items = nil
	q.persistLocked()
	q.mu.Unlock()

	q.logger.Debug("flushing offline queue", zap.Int("count", len(batch)))

	failed := make([]json.RawMessage, 0)
	for _, body := range batch {
		if !send(ctx, body) {
			failed = append(failed, body)
		}
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if len(failed) > 0 {
		q.items = append(failed, q.items...)
		if len(q.items) > q.maxSize {
			q.items = q.items[len(q.items)-q.maxSize:]
		}
	}
	q.persistLocked()
}

// persistLocked writes the current queue through the store. Callers hold
// q.mu.
func (q *OfflineQueue) persistLocked() {
	if err := q.store.Save(StorageKey, q.items); err != nil {
		q.logger.Debug("failed to persist offline queue", zap.Error(err))
	}
}

// Close detaches the connectivity listener.
func (q *OfflineQueue) Close() {
	if q.detach != nil {
		q.detach()
		q.detach = nil
	}
}
