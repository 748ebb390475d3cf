package bridgeerr_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/chatbridge/nexus/internal/bridgeerr"
)

func TestIsMatchesOwnKind(t *testing.T) {
	t.Parallel()

	err := bridgeerr.New(bridgeerr.ParentUnavailable, "parent not yet known")
	assert.True(t, bridgeerr.Is(err, bridgeerr.ParentUnavailable))
	assert.False(t, bridgeerr.Is(err, bridgeerr.Disconnect))
}

func TestWrapPreservesUnwrap(t *testing.T) {
	t.Parallel()

	cause := errors.New("disk full")
	err := bridgeerr.Wrap(bridgeerr.StoreConflict, cause, "could not upsert row")
	assert.True(t, bridgeerr.Is(err, bridgeerr.StoreConflict))
	assert.Contains(t, err.Error(), "disk full")
}

func TestWrapNilReturnsNil(t *testing.T) {
	t.Parallel()
	assert.NoError(t, bridgeerr.Wrap(bridgeerr.Disconnect, nil, "unused"))
}

func TestIsFalseForPlainError(t *testing.T) {
	t.Parallel()
	assert.False(t, bridgeerr.Is(errors.New("plain"), bridgeerr.TranslateExhausted))
}
