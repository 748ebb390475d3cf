package nexus

import (
	"time"

	"github.com/chatbridge/nexus/internal/metrics"
)

// performActions ports _perform_actions: for each entry with pending,
// due, unignored actions, it lazily gets (or waits on) that entry's
// surrogate and drains as much of its action queue as it can without
// blocking on an unresolved parent id.
func (n *Nexus) performActions(entries []*user) {
	now := n.scheduler.Time()
	for _, e := range entries {
		n.performOne(e, now)
	}
}

func (n *Nexus) performOne(e *user, now time.Time) {
	n.mu.Lock()
	switch {
	case e.ignore:
		e.actions = nil
		n.mu.Unlock()
		return
	case len(e.actions) == 0:
		n.mu.Unlock()
		return
	case !e.delay.IsZero() && e.delay.After(now):
		n.mu.Unlock()
		return
	}
	side, nick := e.platform, e.nick
	n.mu.Unlock()

	identity := e.identity()
	runner := func() { n.scheduler.AddNow(func() { n.performActions([]*user{e}) }) }
	bot := n.pool.Get(identity, side, nick, runner)
	if bot == nil || !bot.Ready() {
		return
	}

	for {
		n.mu.Lock()
		if len(e.actions) == 0 {
			n.mu.Unlock()
			return
		}
		act := e.actions[0]
		e.actions = e.actions[1:]
		n.mu.Unlock()

		if act.hasNick && act.nick != bot.Nickname() {
			bot.SetNickname(act.nick)
		}
		if act.hasText {
			// Only a Euphoria-origin reply can synthesize a missing
			// counterpart id on demand (store.TranslateIDs refuses to
			// synthesize from the Instant side); an Instant-origin reply
			// to an untranslated parent must wait for that parent to be
			// relayed instead.
			create := side == Euphoria
			trParent, err := n.store.TranslateID(side, act.parent, create)
			if err != nil {
				n.log.WithError(err).Warnf("could not translate message id %s:%s", side, act.parent)
				metricsDropped("translate_error")
				continue
			}
			if err := n.store.UpdateIDs(side, map[string]string{act.msgID: ""}); err != nil {
				n.log.WithError(err).Warn("could not reserve message id")
			}
			if act.parent != "" && trParent == "" {
				// The parent hasn't been relayed yet. Register a watcher
				// that re-enters this same drain once the parent id is
				// known, ignoring the resolved value itself (the drain
				// re-reads act.parent from the store instead of trusting
				// the watcher's argument). The action goes back to the
				// front of the queue so the resumed drain posts it.
				n.mu.Lock()
				e.actions = append([]action{act}, e.actions...)
				n.mu.Unlock()
				metrics.PendingWatchers.Inc()
				n.store.WatchID(side, act.parent, func(string) {
					metrics.PendingWatchers.Dec()
					runner()
				})
				return
			}
			bot.SubmitPost(trParent, act.text, side.String()+":"+act.msgID, nil)
			metrics.MessagesRelayed.WithLabelValues(side.String()).Inc()
		}
		if act.remove {
			bot.Close()
			n.pool.Remove(identity)
		}
	}
}
