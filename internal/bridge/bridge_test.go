package bridge

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatbridge/nexus/internal/nexus"
	"github.com/chatbridge/nexus/internal/platform"
	"github.com/chatbridge/nexus/internal/scheduler"
	"github.com/chatbridge/nexus/internal/store"
	"github.com/chatbridge/nexus/internal/surrogate"
)

// stubBot is a minimal surrogate.Bot handed out by the tracking factory
// below; it does nothing and is always ready.
type stubBot struct{}

func (stubBot) Nickname() string                                            { return "" }
func (stubBot) SetNickname(string)                                          {}
func (stubBot) SubmitPost(parent, text, sequence string, cb func(id string)) {}
func (stubBot) Close() error                                                { return nil }
func (stubBot) Ready() bool                                                 { return true }

// spawnTracker counts how many distinct identities the surrogate pool's
// factory was asked to create, so tests can assert an ignored session
// never causes one.
type spawnTracker struct {
	mu    sync.Mutex
	built map[string]bool
}

func (s *spawnTracker) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.built)
}

func newTestNexus(t *testing.T) (*nexus.Nexus, *spawnTracker) {
	t.Helper()
	st, err := store.Open("", "", nil)
	require.NoError(t, err)
	sch := scheduler.New(nil)
	tracker := &spawnTracker{built: map[string]bool{}}
	pool := surrogate.New(func(identity string, side platform.Platform, nick string, onReady func()) surrogate.Bot {
		tracker.mu.Lock()
		tracker.built[identity] = true
		tracker.mu.Unlock()
		if onReady != nil {
			onReady()
		}
		return stubBot{}
	}, nil)
	nx := nexus.New(st, sch, pool, "euphoria-room", "instant-room", nil)
	nx.Start()
	t.Cleanup(func() {
		nx.Shutdown()
		nx.Join()
		_ = nx.Close()
	})
	return nx, tracker
}

func TestEuphoriaBridgeBotHelloEventIgnoresOwnSession(t *testing.T) {
	t.Parallel()
	nx, tracker := newTestNexus(t)
	b := &EuphoriaBridgeBot{nx: nx, logCallbacks: map[string]func([]nexus.EuphoriaLogMessage){}}
	b.euphoriaBase = newEuphoriaBase(nil, "bridge", nil, nil)

	raw, err := json.Marshal(map[string]interface{}{
		"type": "hello-event",
		"data": map[string]interface{}{"session": map[string]interface{}{"session_id": "bridgesess"}},
	})
	require.NoError(t, err)
	b.handle(raw)

	// A send-event from the now-ignored session must never spawn a surrogate.
	raw, err = json.Marshal(map[string]interface{}{
		"type": "send-event",
		"data": map[string]interface{}{
			"id":      "m1",
			"sender":  map[string]interface{}{"session_id": "bridgesess", "name": "bridge"},
			"content": "hi",
		},
	})
	require.NoError(t, err)
	b.handle(raw)

	require.Never(t, func() bool { return tracker.count() > 0 }, 200*time.Millisecond, 10*time.Millisecond,
		"an ignored session's send-event must never spawn a surrogate")
}

func TestEuphoriaBridgeBotSendEventRelaysMessage(t *testing.T) {
	t.Parallel()
	nx, tracker := newTestNexus(t)
	b := &EuphoriaBridgeBot{nx: nx, logCallbacks: map[string]func([]nexus.EuphoriaLogMessage){}}
	b.euphoriaBase = newEuphoriaBase(nil, "bridge", nil, nil)

	raw, err := json.Marshal(map[string]interface{}{
		"type": "send-event",
		"data": map[string]interface{}{
			"id":      "m1",
			"sender":  map[string]interface{}{"session_id": "alice-sess", "name": "alice"},
			"content": "hello there",
		},
	})
	require.NoError(t, err)
	b.handle(raw)

	require.Eventually(t, func() bool { return tracker.count() == 1 }, time.Second, 10*time.Millisecond,
		"an unignored sender's message should eventually spawn exactly one surrogate")
}

func TestInstantBridgeBotClientMessagePostRelaysMessage(t *testing.T) {
	t.Parallel()
	nx, tracker := newTestNexus(t)
	b := &InstantBridgeBot{nx: nx}
	b.instantBase = newInstantBase(nil, "bridge", nil, nil)

	raw, err := json.Marshal(map[string]interface{}{
		"type": "client-message",
		"from": "bob-sess",
		"data": map[string]interface{}{"type": "post", "nick": "bob", "text": "hi from instant"},
	})
	require.NoError(t, err)
	b.handle(raw)

	require.Eventually(t, func() bool { return tracker.count() == 1 }, time.Second, 10*time.Millisecond,
		"a client-message post should eventually spawn exactly one surrogate")
}

func TestInstantBridgeBotIdentityIgnoresOwnSessionAndMarksReady(t *testing.T) {
	t.Parallel()
	nx, tracker := newTestNexus(t)
	b := &InstantBridgeBot{nx: nx}
	b.instantBase = newInstantBase(nil, "bridge", nil, nil)

	raw, err := json.Marshal(map[string]interface{}{
		"type": "identity",
		"data": map[string]interface{}{"id": "bridgebid"},
	})
	require.NoError(t, err)
	b.handle(raw)
	assert.True(t, b.Ready())

	raw, err = json.Marshal(map[string]interface{}{
		"type": "client-message",
		"from": "bridgebid",
		"data": map[string]interface{}{"type": "post", "nick": "bridge", "text": "echo of my own post"},
	})
	require.NoError(t, err)
	b.handle(raw)

	require.Never(t, func() bool { return tracker.count() > 0 }, 200*time.Millisecond, 10*time.Millisecond,
		"the bridge's own identity must never spawn a surrogate for itself")
}
