package transport

import (
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

// testServer is a minimal in-process peer speaking the text-frame protocol.
type testServer struct {
	*httptest.Server

	mu    sync.Mutex
	conns []*websocket.Conn
	paths []string
	// accepted receives one signal per established connection.
	accepted chan *websocket.Conn
	// inbound receives every frame sent by the client.
	inbound chan string
	// dropOnAccept closes each new connection immediately.
	dropOnAccept bool
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ts := &testServer{
		accepted: make(chan *websocket.Conn, 16),
		inbound:  make(chan string, 64),
	}
	ts.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		ts.mu.Lock()
		ts.conns = append(ts.conns, conn)
		ts.paths = append(ts.paths, r.URL.Path)
		drop := ts.dropOnAccept
		ts.mu.Unlock()
		ts.accepted <- conn
		if drop {
			_ = conn.Close()
			return
		}
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			ts.inbound <- string(data)
		}
	}))
	t.Cleanup(ts.Close)
	return ts
}

func (ts *testServer) connCount() int {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return len(ts.conns)
}

func (ts *testServer) lastPath() string {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	if len(ts.paths) == 0 {
		return ""
	}
	return ts.paths[len(ts.paths)-1]
}

func waitConn(t *testing.T, ts *testServer) *websocket.Conn {
	t.Helper()
	select {
	case conn := <-ts.accepted:
		return conn
	case <-time.After(5 * time.Second):
		t.Fatal("server saw no connection")
		return nil
	}
}

func newTestSession(t *testing.T, ts *testServer, cb Callbacks) *Session {
	t.Helper()
	s, err := NewSession(Config{
		ServerURL:      ts.URL,
		Identity:       "client-1",
		ReconnectDelay: 50 * time.Millisecond,
	}, cb)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestConnectionURL(t *testing.T) {
	tests := []struct {
		name     string
		server   string
		identity string
		want     string
		wantErr  bool
	}{
		{name: "http maps to ws", server: "http://example.test:8000", identity: "c1", want: "ws://example.test:8000/ws/c1"},
		{name: "https maps to wss", server: "https://example.test", identity: "c1", want: "wss://example.test/ws/c1"},
		{name: "ws kept", server: "ws://example.test", identity: "c1", want: "ws://example.test/ws/c1"},
		{name: "wss kept", server: "wss://example.test/", identity: "c1", want: "wss://example.test/ws/c1"},
		{name: "empty identity", server: "http://example.test", identity: "", wantErr: true},
		{name: "unsupported scheme", server: "ftp://example.test", identity: "c1", wantErr: true},
		{name: "missing host", server: "http://", identity: "c1", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := connectionURL(tt.server, tt.identity)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestOpenConnectsAndSignals(t *testing.T) {
	ts := newTestServer(t)
	connected := make(chan struct{}, 1)
	s := newTestSession(t, ts, Callbacks{
		OnConnected: func() { connected <- struct{}{} },
	})

	require.NoError(t, s.Open())
	waitConn(t, ts)

	select {
	case <-connected:
	case <-time.After(2 * time.Second):
		t.Fatal("OnConnected not fired")
	}
	require.Equal(t, StateOpen, s.State())
	require.True(t, strings.HasSuffix(ts.lastPath(), "/ws/client-1"))
}

func TestFramesDeliveredInOrder(t *testing.T) {
	ts := newTestServer(t)
	frames := make(chan string, 16)
	s := newTestSession(t, ts, Callbacks{
		OnFrame: func(data []byte) { frames <- string(data) },
	})

	require.NoError(t, s.Open())
	conn := waitConn(t, ts)

	sent := []string{
		`{"type":"status","content":"one"}`,
		`{"type":"thought","content":"two"}`,
		`{"type":"execution_complete"}`,
	}
	for _, f := range sent {
		require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(f)))
	}

	for _, want := range sent {
		select {
		case got := <-frames:
			require.Equal(t, want, got)
		case <-time.After(2 * time.Second):
			t.Fatalf("frame %q not delivered", want)
		}
	}
}

func TestSendDeliversFrame(t *testing.T) {
	ts := newTestServer(t)
	s := newTestSession(t, ts, Callbacks{})

	require.NoError(t, s.Open())
	waitConn(t, ts)

	require.NoError(t, s.Send([]byte(`{"command":"terminate"}`)))
	select {
	case got := <-ts.inbound:
		require.JSONEq(t, `{"command":"terminate"}`, got)
	case <-time.After(2 * time.Second):
		t.Fatal("server did not receive frame")
	}
}

func TestSendWhileClosedFails(t *testing.T) {
	ts := newTestServer(t)
	s := newTestSession(t, ts, Callbacks{})

	require.ErrorIs(t, s.Send([]byte("x")), ErrNotConnected)

	require.NoError(t, s.Open())
	waitConn(t, ts)
	require.NoError(t, s.Close())
	require.ErrorIs(t, s.Send([]byte("x")), ErrNotConnected)
}

func TestReconnectAfterDrop(t *testing.T) {
	ts := newTestServer(t)
	var mu sync.Mutex
	var disconnects int
	connected := make(chan struct{}, 4)
	s := newTestSession(t, ts, Callbacks{
		OnConnected: func() { connected <- struct{}{} },
		OnDisconnected: func(string) {
			mu.Lock()
			disconnects++
			mu.Unlock()
		},
	})

	require.NoError(t, s.Open())
	first := waitConn(t, ts)
	<-connected

	// Drop the connection server-side; the session must come back on its
	// own after the configured delay.
	_ = first.Close()
	waitConn(t, ts)

	select {
	case <-connected:
	case <-time.After(5 * time.Second):
		t.Fatal("session did not reconnect")
	}
	require.Equal(t, StateOpen, s.State())
	require.Equal(t, 2, ts.connCount())

	mu.Lock()
	require.Equal(t, 1, disconnects)
	mu.Unlock()
}

func TestReconnectRetriesUntilServerReturns(t *testing.T) {
	ts := newTestServer(t)
	ts.dropOnAccept = true

	connected := make(chan struct{}, 16)
	s := newTestSession(t, ts, Callbacks{
		OnConnected: func() { connected <- struct{}{} },
	})

	require.NoError(t, s.Open())

	// Let the session churn through a few dropped connections, then let one
	// stick. Retries must keep coming one at a time, indefinitely.
	deadline := time.After(5 * time.Second)
	for i := 0; i < 3; i++ {
		select {
		case <-ts.accepted:
		case <-deadline:
			t.Fatal("expected repeated reconnect attempts")
		}
	}

	ts.mu.Lock()
	ts.dropOnAccept = false
	ts.mu.Unlock()

	for {
		select {
		case <-ts.accepted:
		case <-connected:
			if s.State() == StateOpen {
				return
			}
		case <-deadline:
			t.Fatal("session never settled into an open connection")
		}
	}
}

func TestSingleReconnectAttemptPerDrop(t *testing.T) {
	ts := newTestServer(t)
	s := newTestSession(t, ts, Callbacks{})

	require.NoError(t, s.Open())
	first := waitConn(t, ts)
	_ = first.Close()

	waitConn(t, ts)
	// After the one scheduled attempt succeeds there must be no burst of
	// extra dials.
	time.Sleep(200 * time.Millisecond)
	require.Equal(t, 2, ts.connCount())
}

func TestCloseSuppressesReconnect(t *testing.T) {
	ts := newTestServer(t)
	s := newTestSession(t, ts, Callbacks{})

	require.NoError(t, s.Open())
	waitConn(t, ts)

	require.NoError(t, s.Close())
	require.NoError(t, s.Close()) // idempotent

	time.Sleep(200 * time.Millisecond)
	require.Equal(t, 1, ts.connCount())
	require.Equal(t, StateClosed, s.State())
}
