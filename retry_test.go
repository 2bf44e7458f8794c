package errorexplorer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func fastRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:  3,
		BaseBackoff: time.Millisecond,
		MaxBackoff:  10 * time.Millisecond,
		MaxJitter:   time.Millisecond,
	}
}

func newTestRetryManager(t *testing.T, endpoint string, cfg RetryConfig) (*RetryManager, *ConnectivityMonitor) {
	t.Helper()

	tr, err := NewHTTPTransport(testConfig(endpoint), zap.NewNop())
	require.NoError(t, err)

	monitor := NewConnectivityMonitor(endpoint, zap.NewNop())
	tr.SetMonitor(monitor)
	rm := NewRetryManager(cfg, tr, monitor, zap.NewNop(), newMetricsCollector())

	t.Cleanup(func() {
		rm.Close()
		monitor.Close()
	})
	return rm, monitor
}

func waitForDrain(t *testing.T, rm *RetryManager) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for rm.QueueLen() > 0 {
		if time.Now().After(deadline) {
			t.Fatal("retry queue did not drain")
		}
		time.Sleep(5 * time.Millisecond)
	}
	// Let the final in-flight attempt resolve.
	time.Sleep(20 * time.Millisecond)
}

func TestRetryManager_AlwaysFailingIsAttemptedMaxRetriesTimes(t *testing.T) {
	var attempts atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	rm, _ := newTestRetryManager(t, server.URL, fastRetryConfig())

	rm.Enqueue(testEvent())
	waitForDrain(t, rm)

	assert.Equal(t, int64(3), attempts.Load())
}

func TestRetryManager_SuccessStopsRetrying(t *testing.T) {
	var attempts atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	rm, _ := newTestRetryManager(t, server.URL, fastRetryConfig())

	rm.Enqueue(testEvent())
	waitForDrain(t, rm)

	assert.Equal(t, int64(3), attempts.Load())
}

func TestRetryManager_PermanentFailureDroppedImmediately(t *testing.T) {
	var attempts atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	rm, _ := newTestRetryManager(t, server.URL, fastRetryConfig())

	rm.Enqueue(testEvent())
	waitForDrain(t, rm)

	assert.Equal(t, int64(1), attempts.Load())
}

func TestRetryManager_DeliversInEnqueueOrder(t *testing.T) {
	var mu sync.Mutex
	var order []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var event ErrorEvent
		require.NoError(t, json.Unmarshal(decodeBody(t, r), &event))
		mu.Lock()
		order = append(order, event.ID)
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	rm, _ := newTestRetryManager(t, server.URL, fastRetryConfig())

	for i := 0; i < 5; i++ {
		e := testEvent()
		e.ID = fmt.Sprintf("evt-%d", i)
		rm.Enqueue(e)
	}
	waitForDrain(t, rm)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, order, 5)
	for i, id := range order {
		assert.Equal(t, fmt.Sprintf("evt-%d", i), id)
	}
}

func TestRetryManager_BackoffGrowsPerRetry(t *testing.T) {
	rm := &RetryManager{config: RetryConfig{
		BaseBackoff: 100 * time.Millisecond,
		MaxBackoff:  time.Minute,
	}}

	d0 := rm.backoffFor(0)
	d1 := rm.backoffFor(1)
	d2 := rm.backoffFor(2)

	assert.Equal(t, 100*time.Millisecond, d0)
	assert.Equal(t, 200*time.Millisecond, d1)
	assert.Equal(t, 400*time.Millisecond, d2)
	assert.Less(t, d0, d1)
	assert.Less(t, d1, d2)
}

func TestRetryManager_BackoffIsCapped(t *testing.T) {
	rm := &RetryManager{config: RetryConfig{
		BaseBackoff: time.Second,
		MaxBackoff:  5 * time.Second,
	}}

	assert.Equal(t, 5*time.Second, rm.backoffFor(10))
}

func TestRetryManager_BackoffJitterStaysBounded(t *testing.T) {
	rm := &RetryManager{config: RetryConfig{
		BaseBackoff: 100 * time.Millisecond,
		MaxBackoff:  time.Minute,
		MaxJitter:   50 * time.Millisecond,
	}}

	for i := 0; i < 100; i++ {
		d := rm.backoffFor(1)
		assert.GreaterOrEqual(t, d, 200*time.Millisecond)
		assert.Less(t, d, 250*time.Millisecond)
	}
}

func TestRetryManager_ProxiesToOfflineQueueWhenDown(t *testing.T) {
	serverHit := false
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		serverHit = true
	}))
	defer server.Close()

	rm, monitor := newTestRetryManager(t, server.URL, fastRetryConfig())
	monitor.SetProbe(func(ctx context.Context) error { return errors.New("still down") })

	offline := NewOfflineQueue(10, newMemStore(), monitor, zap.NewNop())
	defer offline.Close()
	rm.SetOfflineQueue(offline)

	monitor.MarkDown()
	rm.Enqueue(testEvent())

	assert.Equal(t, 1, offline.Len())
	assert.Zero(t, rm.QueueLen())
	assert.False(t, serverHit)
}

func TestRetryManager_ConnectionFailureDivertsToOfflineQueue(t *testing.T) {
	// Nothing listens here; every send fails at the connection level.
	rm, monitor := newTestRetryManager(t, "http://127.0.0.1:1", fastRetryConfig())
	monitor.SetProbe(func(ctx context.Context) error { return errors.New("still down") })

	offline := NewOfflineQueue(10, newMemStore(), monitor, zap.NewNop())
	defer offline.Close()
	rm.SetOfflineQueue(offline)

	// The monitor still believes the network is up; the first failed send
	// must flip it and land the event in the durable queue.
	require.True(t, monitor.Online())
	rm.Enqueue(testEvent())

	require.Eventually(t, func() bool { return offline.Len() == 1 }, 3*time.Second, 5*time.Millisecond)
	assert.False(t, monitor.Online())
	assert.Zero(t, rm.QueueLen())
}
