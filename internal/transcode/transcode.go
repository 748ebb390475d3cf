// Package transcode implements the two-directional text transform between
// Euphoria's plain-text links and Instant's sigil-wrapped link syntax.
package transcode

import (
	"regexp"
	"strings"

	"github.com/chatbridge/nexus/internal/autolink"
)

// instantURLRe matches Instant's own (looser) notion of a URL, used both to
// decide A→B sigil-wrapping eligibility and, extended with the sigil
// delimiters, to find B→A sigil occurrences.
//
// The upstream pattern relies on negative lookahead/lookbehind that Go's
// RE2 engine cannot express; instead of "(?!javascript:)" before the scheme
// and "(?<!\w)//" before a bare host, this port drops the unsupported
// assertions from the regex itself and relies on the scheme rejection
// already performed by autolink.IsLink/autolink.Autolink.
var instantURLRe = regexp.MustCompile(
	`^([a-zA-Z]+:(//)?)?([a-zA-Z0-9._~-]+@)?([a-zA-Z0-9.-]+)(:[0-9]+)?(/[^>]*)?$`)

// instantURLSearch finds <URL> or <!URL> sigil-wrapped occurrences.
var instantURLSearch = regexp.MustCompile(`<(!?)(` +
	`([a-zA-Z]+:(?://)?)?([a-zA-Z0-9._~-]+@)?([a-zA-Z0-9.-]+)(?::[0-9]+)?(?:/[^>]*)?` + `)>`)

// imageURLRe approximates the URLs Euphoria auto-embeds as images.
var imageURLRe = regexp.MustCompile(
	`^(https?://)?((i\.)?imgur\.com|i\.ytimg\.com|imgs\.xkcd\.com)\b`)

var sigilBefore = regexp.MustCompile(`<!?$`)
var sigilAfter = regexp.MustCompile(`^>`)

// EuphoriaToInstant runs the autolinker over text and wraps every detected
// link that (a) is not already sigil-wrapped by the author and (b) matches
// Instant's URL syntax end-to-end, in Instant's <...> or <!...> sigils
// (the latter for auto-embeddable image hosts). Non-link spans, and links
// that don't qualify, pass through verbatim.
func EuphoriaToInstant(text string) string {
	spans := autolink.Autolink(text)
	var b strings.Builder
	for i, span := range spans {
		if span.Kind != autolink.Link {
			b.WriteString(span.Text)
			continue
		}
		before := ""
		if i > 0 {
			before = spans[i-1].Text
		}
		after := ""
		if i < len(spans)-1 {
			after = spans[i+1].Text
		}
		if sigilBefore.MatchString(before) && sigilAfter.MatchString(after) {
			// Author already wrapped it themselves; leave as-is.
			b.WriteString(span.Text)
			continue
		}
		if !instantURLRe.MatchString(span.Text) {
			b.WriteString(span.Text)
			continue
		}
		if imageURLRe.MatchString(span.Text) {
			b.WriteString("<!")
		} else {
			b.WriteString("<")
		}
		b.WriteString(span.Text)
		b.WriteString(">")
	}
	return b.String()
}

// InstantToEuphoria finds every <URL> or <!URL> sigil occurrence and, if
// the enclosed URL is recognized as a link by autolink.IsLink, replaces the
// whole wrap with the bare URL; otherwise the original substring (sigils
// included) is left intact.
func InstantToEuphoria(text string) string {
	var b strings.Builder
	idx := 0
	for idx < len(text) {
		loc := instantURLSearch.FindStringSubmatchIndex(text[idx:])
		if loc == nil {
			break
		}
		matchStart := idx + loc[0]
		matchEnd := idx + loc[1]
		inner := text[idx+loc[4] : idx+loc[5]]
		b.WriteString(text[idx:matchStart])
		if autolink.IsLink(inner) {
			b.WriteString(inner)
		} else {
			b.WriteString(text[matchStart:matchEnd])
		}
		idx = matchEnd
	}
	b.WriteString(text[idx:])
	return b.String()
}
