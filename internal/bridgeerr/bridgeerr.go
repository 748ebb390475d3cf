// Package bridgeerr defines the error kinds the bridge core must
// distinguish, per the error handling design.
package bridgeerr

import "github.com/pkg/errors"

// Kind classifies a bridge-internal failure for logging and disposition
// purposes. See the error handling design for the meaning of each kind.
type Kind int

const (
	// TranslateExhausted means ID synthesis ran out of sequence slots.
	TranslateExhausted Kind = iota
	// TranslateBToASynth means a caller asked to synthesize an A-side ID.
	TranslateBToASynth
	// StoreConflict means a unique-constraint violation occurred on upsert.
	StoreConflict
	// ParentUnavailable means a parent ID has no counterpart yet.
	ParentUnavailable
	// ProtocolViolation means an unexpected event shape was observed.
	ProtocolViolation
	// Disconnect means the underlying platform connection closed.
	Disconnect
)

func (k Kind) String() string {
	switch k {
	case TranslateExhausted:
		return "translate_exhausted"
	case TranslateBToASynth:
		return "translate_b_to_a_synth"
	case StoreConflict:
		return "store_conflict"
	case ParentUnavailable:
		return "parent_unavailable"
	case ProtocolViolation:
		return "protocol_violation"
	case Disconnect:
		return "disconnect"
	default:
		return "unknown"
	}
}

// Error is a bridge-internal error tagged with a Kind.
type Error struct {
	Kind Kind
	msg  string
	err  error
}

func (e *Error) Error() string {
	if e.err != nil {
		return e.Kind.String() + ": " + e.msg + ": " + e.err.Error()
	}
	return e.Kind.String() + ": " + e.msg
}

func (e *Error) Unwrap() error { return e.err }

// New creates a Kind-tagged error with a message.
func New(kind Kind, msg string) error {
	return &Error{Kind: kind, msg: msg}
}

// Wrap attaches a Kind to an existing error, preserving it via Unwrap.
func Wrap(kind Kind, err error, msg string) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, msg: msg, err: errors.WithStack(err)}
}

// Is reports whether err (or something it wraps) is a bridgeerr.Error of kind.
func Is(err error, kind Kind) bool {
	var be *Error
	for err != nil {
		if e, ok := err.(*Error); ok {
			be = e
			break
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = u.Unwrap()
	}
	return be != nil && be.Kind == kind
}
