package autolink_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatbridge/nexus/internal/autolink"
)

func reassemble(spans []autolink.Span) string {
	var b strings.Builder
	for _, s := range spans {
		b.WriteString(s.Text)
	}
	return b.String()
}

func TestAutolinkSpanCoverage(t *testing.T) {
	t.Parallel()

	inputs := []string{
		"",
		"hello world",
		"check out http://example.com/path?x=1 it's neat",
		"email me at foo@example.com please",
		"(see http://example.com)",
		"no links here at all",
		"http://a.com http://b.com",
	}
	for _, in := range inputs {
		spans := autolink.Autolink(in)
		assert.Equal(t, in, reassemble(spans), "spans must reassemble to the exact input: %q", in)
	}
}

func TestAutolinkDetectsLinkAndEmail(t *testing.T) {
	t.Parallel()

	spans := autolink.Autolink("visit http://example.com/page today")
	var kinds []autolink.Kind
	for _, s := range spans {
		kinds = append(kinds, s.Kind)
	}
	require.Contains(t, kinds, autolink.Link)

	spans = autolink.Autolink("contact foo@example.com now")
	var found bool
	for _, s := range spans {
		if s.Kind == autolink.Email {
			found = true
			assert.Equal(t, "foo@example.com", s.Text)
		}
	}
	assert.True(t, found, "expected an email span")
}

func TestAutolinkRejectsJavascriptScheme(t *testing.T) {
	t.Parallel()

	spans := autolink.Autolink("javascript:alert(1)")
	for _, s := range spans {
		assert.NotEqual(t, autolink.Link, s.Kind)
	}
}

func TestAutolinkTrailingParen(t *testing.T) {
	t.Parallel()

	spans := autolink.Autolink("(http://example.com/foo)")
	require.NotEmpty(t, spans)
	last := spans[len(spans)-1]
	assert.Equal(t, autolink.Text, last.Kind)
	assert.Equal(t, ")", last.Text)
}

func TestIsLink(t *testing.T) {
	t.Parallel()

	assert.True(t, autolink.IsLink("http://example.com"))
	assert.True(t, autolink.IsLink("example.com/page"))
	assert.False(t, autolink.IsLink(""))
	assert.False(t, autolink.IsLink("javascript:alert(1)"))
	assert.False(t, autolink.IsLink("foo@example.com"), "an email is not a link")
	assert.False(t, autolink.IsLink("not a url at all"))
}
