// Package surrogate manages the pool of impersonator bot connections: one
// per non-ignored remote user, nicked with that user's display name, living
// on the platform opposite the one the remote user was observed on.
package surrogate

import (
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/chatbridge/nexus/internal/metrics"
	"github.com/chatbridge/nexus/internal/platform"
)

// Platform identifies which side a user (and therefore its surrogate) was
// observed on.
type Platform = platform.Platform

const (
	Euphoria = platform.Euphoria
	Instant  = platform.Instant
)

// Identity is the pool key: "e/"+aID for a Euphoria-origin user (so its
// surrogate lives on Instant) or "i/"+bID for an Instant-origin user (so
// its surrogate lives on Euphoria).
func Identity(p Platform, sessionID string) string {
	if p == Euphoria {
		return "e/" + sessionID
	}
	return "i/" + sessionID
}

// Bot is the interface a concrete platform connection must satisfy to act
// as a surrogate. Implementations live in package bridge, built on the
// transport black box.
type Bot interface {
	// Nickname returns the surrogate's currently-set nickname.
	Nickname() string
	// SetNickname changes the surrogate's nickname.
	SetNickname(nick string)
	// SubmitPost sends text as a new message, parented under parent (which
	// may be empty), stamped with the application-level sequence token.
	// callback, if non-nil, fires once the platform acknowledges the post.
	SubmitPost(parent, text, sequence string, callback func(id string))
	// Close tears down the underlying connection.
	Close() error
	// Ready reports whether the bot has completed its initial login.
	Ready() bool
}

// Factory creates a new Bot for the given identity, invoking onReady once
// the bot completes login. Supplied by the bridge wiring layer (cmd/bridge),
// since constructing a bot means dialing the opposite platform.
type Factory func(identity string, side Platform, nick string, onReady func()) Bot

// Pool is the surrogate bot pool, keyed by Identity.
type Pool struct {
	log     *logrus.Entry
	factory Factory

	mu   sync.Mutex
	bots map[string]Bot
}

// New creates an empty Pool. factory is used to lazily create bots on
// first drainable action.
func New(factory Factory, log *logrus.Entry) *Pool {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Pool{
		log:     log.WithField("component", "surrogate_pool"),
		factory: factory,
		bots:    map[string]Bot{},
	}
}

// Get returns the existing surrogate for identity, or lazily creates one
// via the factory, registering onReady as its ready callback.
func (p *Pool) Get(identity string, side Platform, nick string, onReady func()) Bot {
	p.mu.Lock()
	defer p.mu.Unlock()
	if b, ok := p.bots[identity]; ok {
		return b
	}
	b := p.factory(identity, side, nick, onReady)
	p.bots[identity] = b
	metrics.LiveSurrogates.Set(float64(len(p.bots)))
	return b
}

// Remove unregisters identity from the pool after a {remove:true} action
// closes the bot, so the next action re-creates it. Nothing calls it when
// a surrogate's connection drops unexpectedly; such an entry stays in the
// pool.
func (p *Pool) Remove(identity string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.bots, identity)
	metrics.LiveSurrogates.Set(float64(len(p.bots)))
}

// Len reports the current pool size, for tests and diagnostics.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.bots)
}
