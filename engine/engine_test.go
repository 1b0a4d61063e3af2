package engine

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

var upgrader = websocket.Upgrader{}

// recordingAdapter captures every lifecycle call the engine makes so tests
// can assert on sequencing without a real stream adapter.
type recordingAdapter struct {
	mu        sync.Mutex
	connected int
	disconns  []error
	frames    []Frame
	path      string
}

func (a *recordingAdapter) Init(ctx context.Context) error { return nil }
func (a *recordingAdapter) BuildPath() string               { return a.path }
func (a *recordingAdapter) OnConnected(ctx context.Context, send func(FrameKind, []byte) error) {
	a.mu.Lock()
	a.connected++
	a.mu.Unlock()
}
func (a *recordingAdapter) OnDisconnected(reason error) {
	a.mu.Lock()
	a.disconns = append(a.disconns, reason)
	a.mu.Unlock()
}
func (a *recordingAdapter) HandleFrame(ctx context.Context, frame Frame) error {
	a.mu.Lock()
	a.frames = append(a.frames, frame)
	a.mu.Unlock()
	return nil
}

func wsURL(server *httptest.Server) string {
	return "ws://" + strings.TrimPrefix(server.URL, "http://")
}

func TestEngineConnectsAndReceivesFrames(t *testing.T) {
	t.Parallel()

	var wg sync.WaitGroup
	wg.Add(1)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		conn.WriteMessage(websocket.BinaryMessage, []byte("hello"))
		wg.Done()
		time.Sleep(50 * time.Millisecond)
	}))
	defer server.Close()

	adapter := &recordingAdapter{path: "/stream"}
	e := New(Config{Host: wsURL(server), PingInterval: time.Hour}, adapter)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go e.Run(ctx)

	wg.Wait()
	require.Eventually(t, func() bool {
		adapter.mu.Lock()
		defer adapter.mu.Unlock()
		return len(adapter.frames) == 1
	}, time.Second, 5*time.Millisecond)

	adapter.mu.Lock()
	require.Equal(t, FrameBinary, adapter.frames[0].Kind)
	require.Equal(t, []byte("hello"), adapter.frames[0].Payload)
	require.Equal(t, 1, adapter.connected)
	adapter.mu.Unlock()
}

func TestEngineReconnectsAfterTransportDrop(t *testing.T) {
	t.Parallel()

	var hits int
	var mu sync.Mutex
	var wg sync.WaitGroup
	wg.Add(2)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		mu.Lock()
		hits++
		n := hits
		mu.Unlock()
		wg.Done()
		if n == 1 {
			conn.Close() // simulate a transport drop
			return
		}
		time.Sleep(100 * time.Millisecond)
		conn.Close()
	}))
	defer server.Close()

	adapter := &recordingAdapter{path: "/stream"}
	e := New(Config{
		Host:         wsURL(server),
		PingInterval: time.Hour,
		Reconnect:    func(attempt int) time.Duration { return 5 * time.Millisecond },
	}, adapter)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go e.Run(ctx)

	wg.Wait()
	require.Eventually(t, func() bool {
		adapter.mu.Lock()
		defer adapter.mu.Unlock()
		return len(adapter.disconns) >= 1
	}, time.Second, 5*time.Millisecond)
}

func TestExponentialBackoffWithinJitterBounds(t *testing.T) {
	t.Parallel()

	strategy := Exponential(60 * time.Second)
	cases := []struct {
		attempt  int
		min, max time.Duration
	}{
		{0, time.Second, 1100 * time.Millisecond},
		{1, 2 * time.Second, 2200 * time.Millisecond},
		{2, 4 * time.Second, 4400 * time.Millisecond},
		{3, 8 * time.Second, 8800 * time.Millisecond},
	}
	for _, c := range cases {
		d := strategy(c.attempt)
		require.GreaterOrEqual(t, d, c.min)
		require.LessOrEqual(t, d, c.max)
	}
}

func TestExponentialBackoffCapsAtMaxBackoff(t *testing.T) {
	t.Parallel()

	strategy := Exponential(60 * time.Second)
	d := strategy(10)
	require.GreaterOrEqual(t, d, 60*time.Second)
	require.LessOrEqual(t, d, 66*time.Second)
}
