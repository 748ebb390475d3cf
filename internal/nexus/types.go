package nexus

import (
	"time"

	"github.com/chatbridge/nexus/internal/platform"
)

// Platform re-exports the shared platform type for callers of this package.
type Platform = platform.Platform

const (
	Euphoria = platform.Euphoria
	Instant  = platform.Instant
)

// UserRef identifies a user record by one or both of its session ids.
type UserRef struct {
	AID string // Euphoria session id, if known
	BID string // Instant session id, if known
}

// UserUpdate is the upsert payload for AddUsers/IgnoreUsers: each field is
// applied only if non-zero, matching the Python original's use of dict.get.
type UserUpdate struct {
	AID      string
	BID      string
	Platform Platform // origin of this observation, if known
	Nick     string
	Group    string // opaque partition key, meaningful on Euphoria only
}

// IncomingMessage is the payload handed to HandleMessage.
type IncomingMessage struct {
	Platform Platform
	AID      string
	BID      string
	MsgID    string
	Parent   string
	Nick     string
	Text     string
}

// action is one queued update for a user's surrogate: any subset of a
// nickname change, a message to post, and a close-and-remove, mirroring
// the original's practice of enqueuing the whole event dict verbatim
// (a single handle_message event carries both a nick and text at once).
type action struct {
	hasNick bool
	nick    string

	hasText bool
	text    string
	msgID   string
	parent  string

	remove bool
}

// user is one observed remote session, indexed by aID and/or bID.
type user struct {
	aID      string
	bID      string
	nick     string
	ignore   bool
	delay    time.Time // zero value means "no delay"
	group    string
	platform Platform
	actions  []action
}

// identity reproduces _bot_ident: sessions observed on Euphoria get an
// Instant-side surrogate keyed by their Euphoria id, and vice versa. An
// unset platform falls through to the Instant branch, same as the
// original's plain if/else on the string.
func (u *user) identity() string {
	if u.platform == Euphoria {
		return "e/" + u.aID
	}
	return "i/" + u.bID
}

// LogEntry is one translated message as delivered to Instant's log-request
// response, per the log-query adapter's translation step.
type LogEntry struct {
	ID          string
	Parent      string
	Nick        string
	Text        string
	TimestampMS int64
}
