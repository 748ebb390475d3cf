// Package store implements the MessageStore: a durable, bijective map
// between Euphoria (A-side) and Instant (B-side) message identifiers,
// with partial rows, generation of missing B-side ids, and watchers that
// fire once a counterpart becomes known.
package store

import (
	"database/sql"
	"strings"
	"sync"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"github.com/chatbridge/nexus/internal/bridgeerr"
	"github.com/chatbridge/nexus/internal/idcodec"
	"github.com/chatbridge/nexus/internal/metrics"
	"github.com/chatbridge/nexus/internal/platform"
)

// Side identifies which column of id_map an identifier belongs to.
type Side = platform.Platform

const (
	// Euphoria is the A-side, the side with synthesizable ids.
	Euphoria = platform.Euphoria
	// Instant is the B-side.
	Instant = platform.Instant
)

// Bounds reports the minimum, maximum and count of non-null ids on one
// side of the map.
type Bounds struct {
	Min   string
	Max   string
	Count int
}

// AllBounds is the result of GetBounds: bounds for both sides at once.
type AllBounds struct {
	Euphoria Bounds
	Instant  Bounds
}

// Callback receives a counterpart id once it becomes known. A nil
// argument (for watch_ids-style aggregate callbacks the value is a map)
// signals "no counterpart exists and none will be created" only in the
// single-id WatchID flavor, mirroring watch_id(None) semantics for a nil
// input identifier.
type Callback func(counterpart string)

// MapCallback receives the full id mapping once watch_ids considers every
// requested id resolved.
type MapCallback func(mapping map[string]string)

// MessageStore is the persistent bijective id map described in the
// MessageStore component design. All mutation is serialized by mu; watcher
// callbacks are collected under the lock and invoked after it is released,
// so callbacks may safely call back into the store without deadlocking.
type MessageStore struct {
	db  *sqlx.DB
	log *logrus.Entry

	mu       sync.Mutex
	watchers map[string][]Callback // key: side.String()+":"+id
}

// Open creates (or opens) the database at path, creating the id_map table
// if necessary. path == "" opens an in-memory database, matching the
// spec's --db default. pragmaSync, if non-empty, is applied verbatim as
// `PRAGMA synchronous = <value>` (the caller is responsible for validating
// it against BRIDGE_DB_SYNC's ^[A-Za-z0-9]+$ pattern).
func Open(path string, pragmaSync string, log *logrus.Entry) (*MessageStore, error) {
	dsn := path
	if dsn == "" {
		dsn = ":memory:"
	}
	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "store: open")
	}
	// modernc.org/sqlite serializes internally; a single *sql.DB handle is
	// safe to share across goroutines the way the Python original shares
	// one sqlite3 connection with check_same_thread disabled.
	db.SetMaxOpenConns(1)

	if pragmaSync != "" {
		if _, err := db.Exec("PRAGMA synchronous = " + pragmaSync); err != nil {
			return nil, errors.Wrap(err, "store: apply synchronous pragma")
		}
	}

	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS id_map (
		a TEXT UNIQUE,
		b TEXT UNIQUE
	)`); err != nil {
		return nil, errors.Wrap(err, "store: create id_map")
	}

	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &MessageStore{db: db, log: log.WithField("component", "store"), watchers: map[string][]Callback{}}, nil
}

// Close releases the underlying database handle.
func (s *MessageStore) Close() error {
	return s.db.Close()
}

// GC deletes rows where both sides are null (defensive; such rows should
// never be created in normal operation) and returns the number removed.
func (s *MessageStore) GC() (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.Exec(`DELETE FROM id_map WHERE a IS NULL AND b IS NULL`)
	if err != nil {
		return 0, errors.Wrap(err, "store: gc")
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// GetBounds reports the min/max/count of non-null ids on each side.
func (s *MessageStore) GetBounds() (AllBounds, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var row struct {
		AMin   sql.NullString `db:"amin"`
		AMax   sql.NullString `db:"amax"`
		ACount int            `db:"acount"`
		BMin   sql.NullString `db:"bmin"`
		BMax   sql.NullString `db:"bmax"`
		BCount int            `db:"bcount"`
	}
	err := s.db.Get(&row, `SELECT MIN(a) amin, MAX(a) amax, COUNT(a) acount,
		MIN(b) bmin, MAX(b) bmax, COUNT(b) bcount FROM id_map`)
	if err != nil {
		return AllBounds{}, errors.Wrap(err, "store: get bounds")
	}
	return AllBounds{
		Euphoria: Bounds{Min: row.AMin.String, Max: row.AMax.String, Count: row.ACount},
		Instant:  Bounds{Min: row.BMin.String, Max: row.BMax.String, Count: row.BCount},
	}, nil
}

// column returns the column name for side.
func column(side Side) string {
	if side == Euphoria {
		return "a"
	}
	return "b"
}

func other(side Side) Side {
	if side == Euphoria {
		return Instant
	}
	return Euphoria
}

// lookup returns the counterpart for id on side, or ("", false) if no row
// exists yet. Must be called with s.mu held.
func (s *MessageStore) lookup(side Side, id string) (string, bool, error) {
	col, otherCol := column(side), column(other(side))
	var counterpart sql.NullString
	err := s.db.Get(&counterpart,
		"SELECT "+otherCol+" FROM id_map WHERE "+col+" = ?", id)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.Wrap(err, "store: lookup")
	}
	return counterpart.String, true, nil
}

// claim attempts to insert (a, b) as a fresh row, reporting whether it
// succeeded (false on a unique-constraint violation on either column).
// Must be called with s.mu held.
func (s *MessageStore) claim(a, b string) (bool, error) {
	_, err := s.db.Exec(`INSERT INTO id_map(a, b) VALUES (?, ?)`, a, b)
	if err == nil {
		return true, nil
	}
	if isUniqueViolation(err) {
		return false, nil
	}
	return false, errors.Wrap(err, "store: claim")
}

func isUniqueViolation(err error) bool {
	return strings.Contains(strings.ToLower(err.Error()), "unique")
}

// TranslateIDs looks up the counterpart of every id in ids on side. If an
// id has no counterpart and create is true, a new B-side id is synthesized
// (only side == Euphoria is synthesizable). The commit (and watcher
// notifications for newly created rows) happens once, after every id has
// been processed.
func (s *MessageStore) TranslateIDs(side Side, ids []string, create bool) (map[string]string, error) {
	if side == Instant && create {
		return nil, bridgeerr.New(bridgeerr.TranslateBToASynth,
			"cannot synthesize euphoria ids from the instant side")
	}

	s.mu.Lock()
	var fired []func()
	defer func() {
		s.mu.Unlock()
		for _, f := range fired {
			f()
		}
	}()

	ret := make(map[string]string, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		counterpart, known, err := s.lookup(side, id)
		if err != nil {
			return nil, err
		}
		if known {
			ret[id] = counterpart
			continue
		}
		if !create {
			ret[id] = ""
			continue
		}
		candidate, err := idcodec.Synthesize(id, func(c string) (bool, error) {
			return s.claim(id, c)
		})
		if err != nil {
			return nil, err
		}
		ret[id] = candidate
		fired = append(fired, s.collectWatchers(id, candidate))
		metrics.IDsSynthesized.Inc()
	}
	return ret, nil
}

// TranslateID is the single-id convenience form of TranslateIDs.
func (s *MessageStore) TranslateID(side Side, id string, create bool) (string, error) {
	if id == "" {
		return "", nil
	}
	res, err := s.TranslateIDs(side, []string{id}, create)
	if err != nil {
		return "", err
	}
	return res[id], nil
}

// UpdateIDs upserts rows for the given mapping (keys are on keysSide),
// replacing any existing row sharing either column, and fires watchers for
// every row this call completes.
func (s *MessageStore) UpdateIDs(keysSide Side, mapping map[string]string) error {
	s.mu.Lock()
	var fired []func()
	defer func() {
		s.mu.Unlock()
		for _, f := range fired {
			f()
		}
	}()

	for key, val := range mapping {
		if key == "" {
			continue
		}
		a, b := key, val
		if keysSide == Instant {
			a, b = val, key
		}
		var aArg, bArg interface{}
		if a != "" {
			aArg = a
		}
		if b != "" {
			bArg = b
		}
		if _, err := s.db.Exec(`INSERT OR REPLACE INTO id_map(a, b) VALUES (?, ?)`, aArg, bArg); err != nil {
			return errors.Wrap(err, "store: update ids")
		}
		if a != "" && b != "" {
			fired = append(fired, s.collectWatchers(a, b))
		}
	}
	return nil
}

// collectWatchers pops and returns (as a single deferred closure) the
// watchers registered for aID/bID on either side, given that the pair is
// now fully known. Must be called with s.mu held; the returned closure
// must be invoked only after s.mu is released.
func (s *MessageStore) collectWatchers(aID, bID string) func() {
	aKey := Euphoria.String() + ":" + aID
	bKey := Instant.String() + ":" + bID
	aWatchers := s.watchers[aKey]
	bWatchers := s.watchers[bKey]
	delete(s.watchers, aKey)
	delete(s.watchers, bKey)
	return func() {
		for _, w := range aWatchers {
			w(bID)
		}
		for _, w := range bWatchers {
			w(aID)
		}
	}
}

// WatchID invokes cb with the counterpart of id on side as soon as it is
// known: synchronously, if already known, or later, when a subsequent
// UpdateIDs/TranslateIDs(create=true) completes the row. A nil id invokes
// cb("") immediately, matching the null-parent shortcut of the drain loop.
func (s *MessageStore) WatchID(side Side, id string, cb Callback) {
	if id == "" {
		cb("")
		return
	}
	s.mu.Lock()
	counterpart, known, err := s.lookup(side, id)
	if err != nil {
		s.mu.Unlock()
		s.log.WithError(err).Warn("watch_id: lookup failed")
		return
	}
	if known && counterpart != "" {
		s.mu.Unlock()
		cb(counterpart)
		return
	}
	key := side.String() + ":" + id
	s.watchers[key] = append(s.watchers[key], cb)
	s.mu.Unlock()
}

// WatchIDs is the aggregate form of WatchID: cb fires exactly once, with
// the full mapping, after every id in ids has a counterpart (synthesizing
// on demand when create is true).
func (s *MessageStore) WatchIDs(side Side, ids []string, create bool, cb MapCallback) {
	translated, err := s.TranslateIDs(side, ids, create)
	if err != nil {
		s.log.WithError(err).Warn("watch_ids: translate failed")
		return
	}

	ret := make(map[string]string, len(ids))
	var pending []string
	for id, counterpart := range translated {
		ret[id] = counterpart
		if counterpart == "" {
			pending = append(pending, id)
		}
	}
	if len(pending) == 0 {
		cb(ret)
		return
	}

	var mu sync.Mutex
	remaining := len(pending)
	for _, id := range pending {
		id := id
		s.WatchID(side, id, func(counterpart string) {
			mu.Lock()
			ret[id] = counterpart
			remaining--
			done := remaining == 0
			mu.Unlock()
			if done {
				cb(ret)
			}
		})
	}
}
