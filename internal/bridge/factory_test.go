package bridge

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormatRoomURLSubstitutesPlaceholder(t *testing.T) {
	t.Parallel()
	got := FormatRoomURL("wss://instant.leet.nu/room/{}/ws", "test")
	assert.Equal(t, "wss://instant.leet.nu/room/test/ws", got)
}

func TestFormatRoomURLWithoutPlaceholderReturnsTemplateVerbatim(t *testing.T) {
	t.Parallel()
	got := FormatRoomURL("wss://instant.leet.nu/room/fixed/ws", "test")
	assert.Equal(t, "wss://instant.leet.nu/room/fixed/ws", got)
}
