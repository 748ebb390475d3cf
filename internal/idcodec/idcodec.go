// Package idcodec converts between Euphoria (A-side) message IDs and
// Instant (B-side) message IDs.
//
// A-side IDs are base-36 integers whose upper bits encode a millisecond
// timestamp. B-side IDs are synthesized as 16 hex-digit uppercase strings
// encoding (timestamp_ms << 10) | sequence, with sequence in [0, 1024).
package idcodec

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/chatbridge/nexus/internal/bridgeerr"
)

// EpochMS is the UNIX epoch, in milliseconds, that Euphoria message ID
// timestamps are measured from: 2014-11-30 00:00:00 UTC. Note that the
// upstream definition carries a documented off-by-one error that this
// port preserves for bit-for-bit compatibility with real A-side IDs.
const EpochMS int64 = 1417305600 * 1000

// MaxSequence is the number of distinct values of the collision-avoidance
// sequence suffix of a synthesized B-side ID (the low-order 10 bits).
const MaxSequence = 1024

// EuphoriaIDToTimestamp extracts the millisecond timestamp encoded in a
// base-36 Euphoria message ID.
func EuphoriaIDToTimestamp(aID string) (int64, error) {
	n, ok := new(big.Int).SetString(aID, 36)
	if !ok {
		return 0, fmt.Errorf("idcodec: %q is not a valid base-36 id", aID)
	}
	shifted := new(big.Int).Rsh(n, 22)
	return shifted.Int64() + EpochMS, nil
}

// TimestampToInstantID formats a synthesized B-side ID for the given
// millisecond timestamp and sequence number (0 <= sequence < MaxSequence).
func TimestampToInstantID(timestampMS int64, sequence int) string {
	composed := new(big.Int).Lsh(big.NewInt(timestampMS), 10)
	composed.Or(composed, big.NewInt(int64(sequence)))
	return fmt.Sprintf("%016X", composed)
}

// DecrementBase36 subtracts one from a base-36-encoded id and re-encodes
// it zero-padded to width digits. Euphoria's log query treats "before"
// as exclusive while the bridge's callers (and Instant) treat it as
// inclusive, so the log-query adapter decrements the bound once before
// issuing the request.
func DecrementBase36(id string, width int) (string, error) {
	n, ok := new(big.Int).SetString(id, 36)
	if !ok {
		return "", fmt.Errorf("idcodec: %q is not a valid base-36 id", id)
	}
	n.Sub(n, big.NewInt(1))
	digits := n.Text(36)
	if len(digits) < width {
		digits = strings.Repeat("0", width-len(digits)) + digits
	}
	return digits, nil
}

// Claimer checks whether a candidate B-side ID is already in use, and
// claims it transactionally if not. It abstracts the store's uniqueness
// check so this package stays free of persistence concerns.
type Claimer func(candidate string) (claimed bool, err error)

// Synthesize generates a B-side ID for the given A-side id by scanning the
// sequence space from 1023 down to 0 and returning the first candidate
// that claim accepts. It fails with bridgeerr.TranslateExhausted if all
// 1024 candidates are already claimed.
func Synthesize(aID string, claim Claimer) (string, error) {
	ts, err := EuphoriaIDToTimestamp(aID)
	if err != nil {
		return "", err
	}
	for seq := MaxSequence - 1; seq >= 0; seq-- {
		candidate := TimestampToInstantID(ts, seq)
		ok, err := claim(candidate)
		if err != nil {
			return "", err
		}
		if ok {
			return candidate, nil
		}
	}
	return "", bridgeerr.New(bridgeerr.TranslateExhausted,
		fmt.Sprintf("no free sequence slot to synthesize an id for %q", aID))
}
