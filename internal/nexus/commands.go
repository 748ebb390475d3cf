package nexus

import (
	"fmt"
	"strings"
)

// handleCommand dispatches a "!"-prefixed message. Only "!help" (bare,
// or pinging the bridge's own nickname) is recognized; anything else is
// silently ignored, same as the original.
func (n *Nexus) handleCommand(text string, reply func(string)) {
	tokens := strings.Fields(text)
	if len(tokens) == 0 {
		return
	}
	switch tokens[0] {
	case "!help":
		if len(tokens) == 1 || pingMatches(tokens[1], Nickname) {
			reply(fmt.Sprintf(HelpMessage, n.euphoriaRoom, n.instantRoom))
		}
	}
}

// pingMatches reports whether an "@nick"-style token refers to nick,
// after normalization.
func pingMatches(ping, nick string) bool {
	if !strings.HasPrefix(ping, "@") {
		return false
	}
	return normalizeNick(ping[1:]) == normalizeNick(nick)
}

// normalizeNick folds whitespace and case the way both platforms do
// when comparing mentions, so "@Bridge", "@ bridge" and "@bridge" all
// match the nickname "bridge".
func normalizeNick(nick string) string {
	return strings.ToLower(strings.Join(strings.Fields(nick), ""))
}
