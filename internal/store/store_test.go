package store_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatbridge/nexus/internal/store"
)

func openTestStore(t *testing.T) *store.MessageStore {
	t.Helper()
	s, err := store.Open("", "", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestTranslateIDIsIdempotent(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)

	first, err := s.TranslateID(store.Euphoria, "10000000000", true)
	require.NoError(t, err)
	require.NotEmpty(t, first)

	second, err := s.TranslateID(store.Euphoria, "10000000000", true)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestTranslateIDRoundTrips(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)

	instantID, err := s.TranslateID(store.Euphoria, "10000000000", true)
	require.NoError(t, err)

	back, err := s.TranslateID(store.Instant, instantID, false)
	require.NoError(t, err)
	assert.Equal(t, "10000000000", back)
}

func TestTranslateIDWithoutCreateReturnsEmptyWhenUnknown(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)

	got, err := s.TranslateID(store.Euphoria, "999999", false)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestTranslateIDsRejectsSynthesizingFromInstantSide(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)

	_, err := s.TranslateIDs(store.Instant, []string{"ABCDEF0011223344"}, true)
	require.Error(t, err)
}

func TestWatchIDFiresOnceCounterpartKnown(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)

	fired := make(chan string, 1)
	s.WatchID(store.Euphoria, "abc", func(counterpart string) { fired <- counterpart })

	select {
	case <-fired:
		t.Fatal("watcher fired before the counterpart was known")
	default:
	}

	require.NoError(t, s.UpdateIDs(store.Euphoria, map[string]string{"abc": "DEADBEEF00000001"}))

	select {
	case got := <-fired:
		assert.Equal(t, "DEADBEEF00000001", got)
	default:
		t.Fatal("watcher never fired after UpdateIDs completed the row")
	}
}

func TestWatchIDFiresImmediatelyWhenAlreadyKnown(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)

	require.NoError(t, s.UpdateIDs(store.Euphoria, map[string]string{"abc": "DEADBEEF00000001"}))

	var got string
	s.WatchID(store.Euphoria, "abc", func(c string) { got = c })
	assert.Equal(t, "DEADBEEF00000001", got)
}

func TestWatchIDWithEmptyIDFiresImmediatelyWithEmptyString(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)

	called := false
	s.WatchID(store.Euphoria, "", func(c string) {
		called = true
		assert.Empty(t, c)
	})
	assert.True(t, called)
}

func TestWatchIDsFiresOnceAllResolved(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)

	require.NoError(t, s.UpdateIDs(store.Euphoria, map[string]string{"a1": "DEADBEEF00000001"}))

	var mu sync.Mutex
	var result map[string]string
	done := make(chan struct{})
	s.WatchIDs(store.Euphoria, []string{"a1", "a2"}, false, func(m map[string]string) {
		mu.Lock()
		result = m
		mu.Unlock()
		close(done)
	})

	select {
	case <-done:
		t.Fatal("watch_ids fired before a2's counterpart was known")
	default:
	}

	require.NoError(t, s.UpdateIDs(store.Euphoria, map[string]string{"a2": "DEADBEEF00000002"}))

	<-done
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "DEADBEEF00000001", result["a1"])
	assert.Equal(t, "DEADBEEF00000002", result["a2"])
}

func TestGetBoundsReportsMinMaxCount(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)

	require.NoError(t, s.UpdateIDs(store.Euphoria, map[string]string{"a1": "DEADBEEF00000001"}))
	require.NoError(t, s.UpdateIDs(store.Euphoria, map[string]string{"a2": "DEADBEEF00000002"}))

	bounds, err := s.GetBounds()
	require.NoError(t, err)
	assert.Equal(t, 2, bounds.Instant.Count)
	assert.Equal(t, "DEADBEEF00000001", bounds.Instant.Min)
	assert.Equal(t, "DEADBEEF00000002", bounds.Instant.Max)
}
