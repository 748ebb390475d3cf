package transport_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatbridge/nexus/internal/transport"
)

// echoServer accepts a single WebSocket connection and hands the test the
// server-side *websocket.Conn once the handshake completes.
func echoServer(t *testing.T) (*httptest.Server, chan *websocket.Conn) {
	t.Helper()
	accepted := make(chan *websocket.Conn, 1)
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		accepted <- conn
	}))
	t.Cleanup(srv.Close)
	return srv, accepted
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

type frames struct {
	mu   sync.Mutex
	seen []string
}

func (f *frames) record(raw json.RawMessage) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seen = append(f.seen, string(raw))
}

func (f *frames) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.seen)
}

func TestDialDispatchesInboundFrames(t *testing.T) {
	t.Parallel()
	srv, accepted := echoServer(t)

	got := &frames{}
	c, err := transport.Dial(wsURL(srv), nil, got.record, nil)
	require.NoError(t, err)
	defer c.Close()

	server := <-accepted
	defer server.Close()

	require.NoError(t, server.WriteMessage(websocket.TextMessage, []byte(`{"type":"hello"}`)))

	require.Eventually(t, func() bool { return got.count() == 1 }, time.Second, 10*time.Millisecond)
	assert.JSONEq(t, `{"type":"hello"}`, string(got.seen[0]))
}

func TestSendWritesAJSONTextFrame(t *testing.T) {
	t.Parallel()
	srv, accepted := echoServer(t)

	c, err := transport.Dial(wsURL(srv), nil, func(json.RawMessage) {}, nil)
	require.NoError(t, err)
	defer c.Close()

	server := <-accepted
	defer server.Close()

	require.NoError(t, c.Send(map[string]string{"type": "nick", "name": "alice"}))

	_, data, err := server.ReadMessage()
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"nick","name":"alice"}`, string(data))
}

func TestCloseFiresOnCloseTrue(t *testing.T) {
	t.Parallel()
	srv, accepted := echoServer(t)

	closedCh := make(chan bool, 1)
	c, err := transport.Dial(wsURL(srv), nil, func(json.RawMessage) {}, func(ok bool) { closedCh <- ok })
	require.NoError(t, err)

	server := <-accepted
	defer server.Close()

	require.NoError(t, c.Close())

	select {
	case ok := <-closedCh:
		assert.True(t, ok, "a locally-initiated Close should report ok=true")
	case <-time.After(time.Second):
		t.Fatal("onClose never fired after Close")
	}
}

func TestRemoteCloseFiresOnCloseFalse(t *testing.T) {
	t.Parallel()
	srv, accepted := echoServer(t)

	closedCh := make(chan bool, 1)
	c, err := transport.Dial(wsURL(srv), nil, func(json.RawMessage) {}, func(ok bool) { closedCh <- ok })
	require.NoError(t, err)
	defer c.Close()

	server := <-accepted
	require.NoError(t, server.Close())

	select {
	case ok := <-closedCh:
		assert.False(t, ok, "an unexpected remote close should report ok=false")
	case <-time.After(time.Second):
		t.Fatal("onClose never fired after the remote end closed")
	}
}

func TestIDIsStableAndNonEmpty(t *testing.T) {
	t.Parallel()
	srv, accepted := echoServer(t)

	c, err := transport.Dial(wsURL(srv), nil, func(json.RawMessage) {}, nil)
	require.NoError(t, err)
	defer c.Close()
	server := <-accepted
	defer server.Close()

	require.NotEmpty(t, c.ID())
	assert.Equal(t, c.ID(), c.ID())
}
