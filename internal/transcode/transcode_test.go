package transcode_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/chatbridge/nexus/internal/transcode"
)

func TestPlainTextRoundTripsIdentity(t *testing.T) {
	t.Parallel()

	inputs := []string{
		"",
		"hello world",
		"no links or sigils in this one",
		"just punctuation! and, more.",
	}
	for _, in := range inputs {
		assert.Equal(t, in, transcode.EuphoriaToInstant(in))
		assert.Equal(t, in, transcode.InstantToEuphoria(in))
	}
}

func TestEuphoriaToInstantWrapsBareLink(t *testing.T) {
	t.Parallel()

	out := transcode.EuphoriaToInstant("see http://example.com/page for details")
	assert.Contains(t, out, "<http://example.com/page>")
}

func TestEuphoriaToInstantUsesEmbedSigilForImageHosts(t *testing.T) {
	t.Parallel()

	out := transcode.EuphoriaToInstant("http://i.imgur.com/abc123.png")
	assert.Contains(t, out, "<!http://i.imgur.com/abc123.png>")
}

func TestEuphoriaToInstantLeavesAuthorWrappedLinkAlone(t *testing.T) {
	t.Parallel()

	in := "already <http://example.com> wrapped"
	out := transcode.EuphoriaToInstant(in)
	assert.Equal(t, in, out)
}

func TestInstantToEuphoriaStripsSigilAroundValidLink(t *testing.T) {
	t.Parallel()

	out := transcode.InstantToEuphoria("go to <http://example.com/page> now")
	assert.Equal(t, "go to http://example.com/page now", out)
}

func TestInstantToEuphoriaLeavesInvalidSigilContentsAlone(t *testing.T) {
	t.Parallel()

	in := "a sigil around <not a url> text"
	out := transcode.InstantToEuphoria(in)
	assert.Equal(t, in, out)
}

func TestEuphoriaToInstantThenBackUnwrapsCleanly(t *testing.T) {
	t.Parallel()

	wrapped := transcode.EuphoriaToInstant("visit http://example.com/x today")
	back := transcode.InstantToEuphoria(wrapped)
	assert.Equal(t, "visit http://example.com/x today", back)
}
