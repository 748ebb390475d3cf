// Package nexus is the bridge's coordinator: it owns the dual-indexed
// user tables, the MessageStore, the surrogate pool and the cooperative
// scheduler, and drains per-user action queues onto the opposite
// platform's surrogate bots.
package nexus

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/chatbridge/nexus/internal/metrics"
	"github.com/chatbridge/nexus/internal/platform"
	"github.com/chatbridge/nexus/internal/scheduler"
	"github.com/chatbridge/nexus/internal/store"
	"github.com/chatbridge/nexus/internal/surrogate"
	"github.com/chatbridge/nexus/internal/transcode"
)

// SurrogateDelay is how long a freshly-joined user's first drain (and so
// its surrogate) is held back after a join event.
const SurrogateDelay = 2 * time.Second

// Nickname is the bridge's own nickname on both platforms.
const Nickname = "bridge"

// HelpMessage is the bridge's static "!help" reply.
const HelpMessage = "I relay messages between a Euphoria room (&%s) and an Instant room (&%s)."

// Poster is what the nexus needs from its own (non-surrogate) bots to
// relay a bridge-originated message: the same contract a surrogate
// satisfies.
type Poster = surrogate.Bot

// EuphoriaLogMessage is one historical message as returned by a
// EuphoriaLogQuerier, already in the adapter's wire shape.
type EuphoriaLogMessage struct {
	ID       string
	Parent   string
	Nick     string
	Text     string
	TimeUnix int64 // seconds, as returned by the platform
}

// EuphoriaLogQuerier is implemented by the bridge's own Euphoria bot: it
// is the only side capable of serving historical log queries.
type EuphoriaLogQuerier interface {
	Poster
	QueryLogs(before string, maxlen int, callback func([]EuphoriaLogMessage))
}

// Nexus coordinates translation and relaying between the two platforms.
// All of its public methods are safe for concurrent use; the heavy
// lifting of actually draining a user's queued actions happens on the
// single cooperative scheduler goroutine so that surrogate bot state
// never needs its own lock.
type Nexus struct {
	log       *logrus.Entry
	store     *store.MessageStore
	scheduler *scheduler.Scheduler
	pool      *surrogate.Pool

	euphoriaRoom string
	instantRoom  string

	mu     sync.Mutex
	aUsers map[string]*user
	bUsers map[string]*user

	seqMu   sync.Mutex
	lastSeq int64

	botMu       sync.Mutex
	euphoriaBot EuphoriaLogQuerier
	instantBot  Poster
}

// New creates a Nexus around an already-open store, scheduler and
// surrogate pool. The bridge's own send bots are attached afterwards
// via SetEuphoriaBot/SetInstantBot, since constructing them typically
// requires a running Nexus to call back into.
func New(st *store.MessageStore, sch *scheduler.Scheduler, pool *surrogate.Pool, euphoriaRoom, instantRoom string, log *logrus.Entry) *Nexus {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Nexus{
		log:          log.WithField("component", "nexus"),
		store:        st,
		scheduler:    sch,
		pool:         pool,
		euphoriaRoom: euphoriaRoom,
		instantRoom:  instantRoom,
		aUsers:       map[string]*user{},
		bUsers:       map[string]*user{},
	}
}

// SetPool attaches the surrogate pool once it has been constructed
// (the pool's factory needs a reference to this Nexus, so pool
// construction unavoidably happens after New returns).
func (n *Nexus) SetPool(pool *surrogate.Pool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.pool = pool
}

// SetEuphoriaBot attaches the bridge's own Euphoria-side sending/log
// bot. Must be called before the first "!help" or log query arrives.
func (n *Nexus) SetEuphoriaBot(b EuphoriaLogQuerier) {
	n.botMu.Lock()
	defer n.botMu.Unlock()
	n.euphoriaBot = b
}

// SetInstantBot attaches the bridge's own Instant-side sending bot.
func (n *Nexus) SetInstantBot(b Poster) {
	n.botMu.Lock()
	defer n.botMu.Unlock()
	n.instantBot = b
}

func (n *Nexus) euphoria() EuphoriaLogQuerier {
	n.botMu.Lock()
	defer n.botMu.Unlock()
	return n.euphoriaBot
}

func (n *Nexus) instant() Poster {
	n.botMu.Lock()
	defer n.botMu.Unlock()
	return n.instantBot
}

// Close releases the underlying store. The caller should Shutdown/Join
// the scheduler first.
func (n *Nexus) Close() error {
	return n.store.Close()
}

// Start performs start-of-day maintenance (discarding id_map rows with
// neither side set; rows with one side set are kept) and launches the
// scheduler's run loop on its own goroutine.
func (n *Nexus) Start() {
	n.log.Info("starting")
	if discarded, err := n.store.GC(); err != nil {
		n.log.WithError(err).Warn("could not garbage-collect incomplete mappings")
	} else if discarded == 1 {
		n.log.Warn("discarded 1 incomplete mapping")
	} else if discarded > 1 {
		n.log.Warnf("discarded %d incomplete mappings", discarded)
	}
	go n.scheduler.Main()
}

// Shutdown requests the scheduler stop accepting new deferred work.
func (n *Nexus) Shutdown() { n.scheduler.Shutdown() }

// Join blocks until the scheduler's run loop has exited.
func (n *Nexus) Join() { n.scheduler.Join() }

func (n *Nexus) sequence() string {
	n.seqMu.Lock()
	defer n.seqMu.Unlock()
	n.lastSeq++
	return fmt.Sprintf("nexus:%d", n.lastSeq)
}

// getUserLocked ports _get_user. n.mu must be held.
func (n *Nexus) getUserLocked(aID, bID string, create bool) *user {
	var ret *user
	if aID != "" {
		if u, ok := n.aUsers[aID]; ok {
			ret = u
		} else if create {
			ret = &user{aID: aID}
			n.aUsers[aID] = ret
		}
	}
	if bID != "" {
		if u, ok := n.bUsers[bID]; ok {
			ret = u
		} else if create {
			if ret == nil {
				ret = &user{}
			}
			ret.bID = bID
			n.bUsers[bID] = ret
		}
	}
	return ret
}

// addUsersLocked ports add_users's bookkeeping (everything except
// scheduling the resulting drain, which the caller does once unlocked).
// n.mu must be held.
func (n *Nexus) addUsersLocked(updates []UserUpdate, isNew bool) ([]*user, time.Time) {
	var delay time.Time
	if isNew {
		delay = n.scheduler.Time().Add(SurrogateDelay)
	}
	pending := make([]*user, 0, len(updates))
	for _, u := range updates {
		entry := n.getUserLocked(u.AID, u.BID, true)
		if u.Platform != "" {
			entry.platform = u.Platform
		}
		if u.Group != "" {
			entry.group = u.Group
		}
		if u.Nick != "" {
			entry.nick = u.Nick
			entry.actions = append(entry.actions, action{hasNick: true, nick: u.Nick})
		}
		if isNew && (entry.delay.IsZero() || entry.delay.Before(delay)) {
			entry.delay = delay
		}
		pending = append(pending, entry)
	}
	return pending, delay
}

// AddUsers registers or updates a batch of users observed together (a
// who-reply, a room snapshot listing, a single join-event). isNew marks
// a genuinely new arrival (a join), which delays its first drain by
// SurrogateDelay; who-reply and snapshot listings pass false and drain
// at once.
func (n *Nexus) AddUsers(updates []UserUpdate, isNew bool) {
	n.mu.Lock()
	pending, delay := n.addUsersLocked(updates, isNew)
	n.mu.Unlock()

	if isNew {
		n.scheduler.AddAbs(delay, func() { n.performActions(pending) })
	} else {
		n.scheduler.AddNow(func() { n.performActions(pending) })
	}
}

// IgnoreUsers marks a batch of users (typically the bridge's own
// surrogate/send-bot sessions) so their traffic is never relayed and no
// surrogate is ever created for them.
func (n *Nexus) IgnoreUsers(updates []UserUpdate) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.addUsersLocked(updates, false)
	for _, u := range updates {
		if entry := n.getUserLocked(u.AID, u.BID, false); entry != nil {
			entry.ignore = true
		}
	}
}

// RemoveUsers drops a batch of users (a part-event, an Instant "left"
// message) and schedules their surrogates' close.
func (n *Nexus) RemoveUsers(refs []UserRef) {
	n.mu.Lock()
	var pending []*user
	for _, r := range refs {
		if r.AID != "" {
			if u, ok := n.aUsers[r.AID]; ok {
				delete(n.aUsers, r.AID)
				u.actions = append(u.actions, action{remove: true})
				pending = append(pending, u)
			}
		}
		if r.BID != "" {
			if u, ok := n.bUsers[r.BID]; ok {
				delete(n.bUsers, r.BID)
				u.actions = append(u.actions, action{remove: true})
				pending = append(pending, u)
			}
		}
	}
	n.mu.Unlock()
	n.scheduler.AddNow(func() { n.performActions(pending) })
}

// RemoveGroup drops every user sharing the given opaque group key, used
// when a Euphoria network partition invalidates a whole server era's
// worth of sessions at once.
func (n *Nexus) RemoveGroup(group string) {
	n.mu.Lock()
	var refs []UserRef
	for id, u := range n.aUsers {
		if u.group == group {
			refs = append(refs, UserRef{AID: id})
		}
	}
	for id, u := range n.bUsers {
		if u.group == group {
			refs = append(refs, UserRef{BID: id})
		}
	}
	n.mu.Unlock()
	n.RemoveUsers(refs)
}

// HandleMessage records an incoming chat message: it updates the
// sender's user record, translates the message text for the opposite
// platform, enqueues the relay action, and — if unignored and the text
// looks like a command — dispatches it.
func (n *Nexus) HandleMessage(msg IncomingMessage) {
	text := n.translateMessageText(msg.Platform, msg.Text)

	n.mu.Lock()
	n.addUsersLocked([]UserUpdate{{AID: msg.AID, BID: msg.BID, Platform: msg.Platform, Nick: msg.Nick}}, false)
	entry := n.getUserLocked(msg.AID, msg.BID, true)
	entry.actions = append(entry.actions, action{
		hasNick: msg.Nick != "", nick: msg.Nick,
		hasText: true, text: text, msgID: msg.MsgID, parent: msg.Parent,
	})
	ignore := entry.ignore
	n.mu.Unlock()

	n.scheduler.AddNow(func() { n.performActions([]*user{entry}) })

	if !ignore && strings.HasPrefix(text, "!") {
		reply := func(t string) { n.SendBridgeMessage(msg.Platform, msg.MsgID, t) }
		n.handleCommand(text, reply)
	}
}

// translateMessageText runs the autolinker/sigil transcoder appropriate
// for the message's platform of origin.
func (n *Nexus) translateMessageText(origin Platform, text string) string {
	if origin == Euphoria {
		return transcode.EuphoriaToInstant(text)
	}
	return transcode.InstantToEuphoria(text)
}

// AddMapping records a freshly-learned (Euphoria id, Instant id) pair,
// e.g. once both halves of a relayed post have been acknowledged.
func (n *Nexus) AddMapping(euphoriaID, instantID string) error {
	return n.store.UpdateIDs(Euphoria, map[string]string{euphoriaID: instantID})
}

// GatherIDs opportunistically records any already-known Instant-side ids
// for a batch of Euphoria message ids (e.g. from a room snapshot's
// backlog). It is read-only warm-up: unlike a normal translate, it never
// synthesizes a missing counterpart.
func (n *Nexus) GatherIDs(side Platform, ids []string) {
	if _, err := n.store.TranslateIDs(side, ids, false); err != nil {
		n.log.WithError(err).Warn("could not gather up message ids")
		metricsDropped("gather_error")
	}
}

// MessageBounds reports the known id range on side.
func (n *Nexus) MessageBounds(side Platform) (store.Bounds, error) {
	bounds, err := n.store.GetBounds()
	if err != nil {
		return store.Bounds{}, err
	}
	if side == Euphoria {
		return bounds.Euphoria, nil
	}
	return bounds.Instant, nil
}

// metricsDropped records a message dropped for the given reason.
func metricsDropped(kind string) {
	metrics.MessagesDropped.WithLabelValues(kind).Inc()
}
