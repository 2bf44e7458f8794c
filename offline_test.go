package errorexplorer

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// memStore is an in-memory Store for tests.
type memStore struct {
	mu   sync.Mutex
	data map[string][]json.RawMessage
}

func newMemStore() *memStore {
	return &memStore{data: make(map[string][]json.RawMessage)}
}

func (m *memStore) Load(key string) ([]json.RawMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	items := make([]json.RawMessage, len(m.data[key]))
	copy(items, m.data[key])
	return items, nil
}

func (m *memStore) Save(key string, items []json.RawMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	saved := make([]json.RawMessage, len(items))
	copy(saved, items)
	m.data[key] = saved
	return nil
}

func (m *memStore) count(key string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.data[key])
}

func offlineTestMonitor(t *testing.T) *ConnectivityMonitor {
	t.Helper()
	monitor := NewConnectivityMonitor("http://127.0.0.1:1", zap.NewNop())
	monitor.SetProbe(func(ctx context.Context) error { return errors.New("unreachable") })
	t.Cleanup(monitor.Close)
	return monitor
}

func eventWithID(id string) *ErrorEvent {
	e := testEvent()
	e.ID = id
	return e
}

func TestFileStore_Roundtrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "queue.json")
	fs := NewFileStore(path)

	items := []json.RawMessage{
		json.RawMessage(`{"event_id":"a"}`),
		json.RawMessage(`{"event_id":"b"}`),
	}
	require.NoError(t, fs.Save(StorageKey, items))

	got, err := fs.Load(StorageKey)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.JSONEq(t, `{"event_id":"a"}`, string(got[0]))
	assert.JSONEq(t, `{"event_id":"b"}`, string(got[1]))
}

func TestFileStore_MissingFileIsEmpty(t *testing.T) {
	fs := NewFileStore(filepath.Join(t.TempDir(), "missing.json"))

	got, err := fs.Load(StorageKey)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestOfflineQueue_EnqueueEvictsOldest(t *testing.T) {
	store := newMemStore()
	q := NewOfflineQueue(2, store, nil, zap.NewNop())

	q.Enqueue(eventWithID("a"))
	q.Enqueue(eventWithID("b"))
	q.Enqueue(eventWithID("c"))

	assert.Equal(t, 2, q.Len())
	assert.Equal(t, 2, store.count(StorageKey))

	items, _ := store.Load(StorageKey)
	var first ErrorEvent
	require.NoError(t, json.Unmarshal(items[0], &first))
	assert.Equal(t, "b", first.ID)
}

func TestOfflineQueue_LoadsPersistedEvents(t *testing.T) {
	store := newMemStore()
	require.NoError(t, store.Save(StorageKey, []json.RawMessage{
		json.RawMessage(`{"event_id":"survivor"}`),
	}))

	q := NewOfflineQueue(10, store, nil, zap.NewNop())
	assert.Equal(t, 1, q.Len())
}

func TestOfflineQueue_FlushSendsAllAndClearsStore(t *testing.T) {
	store := newMemStore()
	q := NewOfflineQueue(10, store, nil, zap.NewNop())

	var sent []string
	q.SetSender(func(ctx context.Context, body json.RawMessage) bool {
		var e ErrorEvent
		_ = json.Unmarshal(body, &e)
		sent = append(sent, e.ID)
		return true
	})

	q.Enqueue(eventWithID("a"))
	q.Enqueue(eventWithID("b"))
	q.Flush(context.Background())

	assert.Equal(t, []string{"a", "b"}, sent)
	assert.Zero(t, q.Len())
	assert.Zero(t, store.count(StorageKey))
}

func TestOfflineQueue_FlushWithoutSenderIsNoop(t *testing.T) {
	store := newMemStore()
	q := NewOfflineQueue(10, store, nil, zap.NewNop())

	q.Enqueue(eventWithID("a"))
	q.Flush(context.Background())

	assert.Equal(t, 1, q.Len())
	assert.Equal(t, 1, store.count(StorageKey))
}

func TestOfflineQueue_FlushWhileOfflineIsNoop(t *testing.T) {
	monitor := offlineTestMonitor(t)
	monitor.MarkDown()

	q := NewOfflineQueue(10, newMemStore(), monitor, zap.NewNop())
	defer q.Close()
	q.SetSender(func(context.Context, json.RawMessage) bool {
		t.Fatal("sender must not run while offline")
		return false
	})

	q.Enqueue(eventWithID("a"))
	q.Flush(context.Background())

	assert.Equal(t, 1, q.Len())
}

func TestOfflineQueue_FailedSendsRepersistedInOrder(t *testing.T) {
	store := newMemStore()
	q := NewOfflineQueue(10, store, nil, zap.NewNop())
	q.SetSender(func(context.Context, json.RawMessage) bool { return false })

	q.Enqueue(eventWithID("a"))
	q.Enqueue(eventWithID("b"))
	q.Flush(context.Background())

	assert.Equal(t, 2, q.Len())
	items, _ := store.Load(StorageKey)
	require.Len(t, items, 2)
	var first ErrorEvent
	require.NoError(t, json.Unmarshal(items[0], &first))
	assert.Equal(t, "a", first.ID)
}

func TestOfflineQueue_FailedSendsPrependedAheadOfNewArrivals(t *testing.T) {
	store := newMemStore()
	q := NewOfflineQueue(10, store, nil, zap.NewNop())

	// The sender fails and simulates an event arriving mid-flush.
	q.SetSender(func(ctx context.Context, body json.RawMessage) bool {
		q.Enqueue(eventWithID("during-flush"))
		return false
	})

	q.Enqueue(eventWithID("old"))
	q.Flush(context.Background())

	items, _ := store.Load(StorageKey)
	require.Len(t, items, 2)
	var first, second ErrorEvent
	require.NoError(t, json.Unmarshal(items[0], &first))
	require.NoError(t, json.Unmarshal(items[1], &second))
	assert.Equal(t, "old", first.ID)
	assert.Equal(t, "during-flush", second.ID)
}

func TestOfflineQueue_ConnectivityRestoreTriggersFlush(t *testing.T) {
	monitor := offlineTestMonitor(t)
	monitor.MarkDown()

	store := newMemStore()
	q := NewOfflineQueue(10, store, monitor, zap.NewNop())
	defer q.Close()

	var mu sync.Mutex
	var sent []string
	q.SetSender(func(ctx context.Context, body json.RawMessage) bool {
		var e ErrorEvent
		_ = json.Unmarshal(body, &e)
		mu.Lock()
		sent = append(sent, e.ID)
		mu.Unlock()
		return true
	})

	q.Enqueue(eventWithID("a"))
	q.Enqueue(eventWithID("b"))
	require.Equal(t, 2, q.Len())

	monitor.MarkUp()

	deadline := time.Now().Add(2 * time.Second)
	for q.Len() > 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"a", "b"}, sent)
	assert.Zero(t, store.count(StorageKey))
}

func TestOfflineQueue_CloseDetachesConnectivityListener(t *testing.T) {
	monitor := offlineTestMonitor(t)
	monitor.MarkDown()

	q := NewOfflineQueue(10, newMemStore(), monitor, zap.NewNop())
	q.SetSender(func(context.Context, json.RawMessage) bool {
		t.Error("sender must not run after Close")
		return true
	})

	q.Enqueue(eventWithID("a"))
	q.Close()
	monitor.MarkUp()

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, q.Len())
}
