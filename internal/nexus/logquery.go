package nexus

import "github.com/chatbridge/nexus/internal/bridgeerr"

// MaxLogRequest caps how many historical messages a single log-request
// can return, regardless of what the client asked for.
const MaxLogRequest = 100

// RequestMessages serves Instant's log-request: resolve before (an
// Instant-side id) to its Euphoria counterpart, query Euphoria's log
// ending there, then translate every returned message back to Instant
// ids, filtering out anything before after. Euphoria has no
// server-side notion of a lower bound, so after is applied as a
// client-side filter on the translated ids once the query returns —
// this under-serves a request spanning more than maxlen missed
// messages, which is the same limitation the original adapter accepts.
func (n *Nexus) RequestMessages(side Platform, before, after string, maxlen int, callback func([]LogEntry)) error {
	if side != Instant {
		return bridgeerr.New(bridgeerr.ProtocolViolation, "cannot query messages from instant for euphoria")
	}
	if maxlen <= 0 || maxlen > MaxLogRequest {
		maxlen = MaxLogRequest
	}
	n.store.WatchID(side, before, func(translated string) {
		n.scheduler.AddNow(func() { n.runLogQuery(translated, after, maxlen, callback) })
	})
	return nil
}

func (n *Nexus) runLogQuery(euphoriaBefore, after string, maxlen int, callback func([]LogEntry)) {
	euphoriaBot := n.euphoria()
	if euphoriaBot == nil {
		callback(nil)
		return
	}
	euphoriaBot.QueryLogs(euphoriaBefore, maxlen, func(logs []EuphoriaLogMessage) {
		n.processLogs(logs, after, callback)
	})
}

// processLogs gathers every id and parent id appearing in logs and
// resolves (synthesizing as needed) their Instant counterparts before
// handing the batch to processResult.
func (n *Nexus) processLogs(logs []EuphoriaLogMessage, after string, callback func([]LogEntry)) {
	seen := make(map[string]bool, len(logs)*2)
	ids := make([]string, 0, len(logs)*2)
	add := func(id string) {
		if id != "" && !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	for _, m := range logs {
		add(m.ID)
		add(m.Parent)
	}
	n.store.WatchIDs(Euphoria, ids, true, func(mapping map[string]string) {
		n.processResult(logs, after, mapping, callback)
	})
}

// processResult translates each message to its Instant id, applies the
// client-side "after" cutoff, and hands the final batch to callback.
func (n *Nexus) processResult(logs []EuphoriaLogMessage, after string, mapping map[string]string, callback func([]LogEntry)) {
	result := make([]LogEntry, 0, len(logs))
	for _, m := range logs {
		instantID := mapping[m.ID]
		if after != "" && instantID < after {
			continue
		}
		result = append(result, LogEntry{
			ID:          instantID,
			Parent:      mapping[m.Parent],
			Nick:        m.Nick,
			Text:        n.translateMessageText(Euphoria, m.Text),
			TimestampMS: m.TimeUnix * 1000,
		})
	}
	callback(result)
}
