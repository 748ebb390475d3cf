package surrogate_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatbridge/nexus/internal/platform"
	"github.com/chatbridge/nexus/internal/surrogate"
)

type fakeBot struct {
	nick  string
	ready bool
}

func (f *fakeBot) Nickname() string                                             { return f.nick }
func (f *fakeBot) SetNickname(nick string)                                      { f.nick = nick }
func (f *fakeBot) SubmitPost(parent, text, sequence string, cb func(id string)) {}
func (f *fakeBot) Close() error                                                 { return nil }
func (f *fakeBot) Ready() bool                                                  { return f.ready }

func TestIdentityNaming(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "e/sess1", surrogate.Identity(platform.Euphoria, "sess1"))
	assert.Equal(t, "i/sess2", surrogate.Identity(platform.Instant, "sess2"))
}

func TestPoolCreatesLazilyAndCachesByIdentity(t *testing.T) {
	t.Parallel()

	calls := 0
	factory := func(identity string, side platform.Platform, nick string, onReady func()) surrogate.Bot {
		calls++
		return &fakeBot{nick: nick, ready: true}
	}
	pool := surrogate.New(factory, nil)

	b1 := pool.Get("e/sess1", platform.Euphoria, "alice", nil)
	require.NotNil(t, b1)
	b2 := pool.Get("e/sess1", platform.Euphoria, "alice", nil)

	assert.Same(t, b1, b2)
	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, pool.Len())
}

func TestPoolRemoveAllowsRecreation(t *testing.T) {
	t.Parallel()

	calls := 0
	factory := func(identity string, side platform.Platform, nick string, onReady func()) surrogate.Bot {
		calls++
		return &fakeBot{nick: nick, ready: true}
	}
	pool := surrogate.New(factory, nil)

	pool.Get("e/sess1", platform.Euphoria, "alice", nil)
	pool.Remove("e/sess1")
	assert.Equal(t, 0, pool.Len())

	pool.Get("e/sess1", platform.Euphoria, "alice", nil)
	assert.Equal(t, 2, calls)
}
