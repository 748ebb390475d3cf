package bridge

import (
	"encoding/json"
	"strconv"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/chatbridge/nexus/internal/idcodec"
	"github.com/chatbridge/nexus/internal/nexus"
	"github.com/chatbridge/nexus/internal/platform"
	"github.com/chatbridge/nexus/internal/transport"
)

// euphoriaBase is the shared submit/callback/nickname bookkeeping both
// Euphoria roles need; it satisfies surrogate.Bot on its own.
type euphoriaBase struct {
	conn *transport.Conn
	log  *logrus.Entry

	mu        sync.Mutex
	nickname  string
	ready     bool
	onReady   func()
	callbacks map[string]func(msgID string)
}

func newEuphoriaBase(conn *transport.Conn, nick string, onReady func(), log *logrus.Entry) *euphoriaBase {
	return &euphoriaBase{
		conn:      conn,
		log:       log,
		nickname:  nick,
		onReady:   onReady,
		callbacks: map[string]func(string){},
	}
}

func (b *euphoriaBase) Nickname() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.nickname
}

func (b *euphoriaBase) SetNickname(nick string) {
	b.mu.Lock()
	b.nickname = nick
	b.mu.Unlock()
	b.conn.Send(euphoriaNickCmd{Type: "nick", Name: nick})
}

func (b *euphoriaBase) SubmitPost(parent, text, sequence string, callback func(id string)) {
	cmd := euphoriaSendCmd{Type: "send", ID: sequence, Data: euphoriaSendCmdData{Parent: parent, Content: text}}
	if callback != nil {
		b.mu.Lock()
		b.callbacks[sequence] = callback
		b.mu.Unlock()
	}
	if err := b.conn.Send(cmd); err != nil {
		b.log.WithError(err).Warn("euphoria: send failed")
	}
}

func (b *euphoriaBase) Close() error { return b.conn.Close() }

func (b *euphoriaBase) Ready() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.ready
}

func (b *euphoriaBase) markReady() {
	b.mu.Lock()
	already := b.ready
	b.ready = true
	cb := b.onReady
	b.mu.Unlock()
	if !already && cb != nil {
		cb()
	}
}

// fireCallback pops and invokes the callback registered for a send-reply's
// echoed sequence token, if any.
func (b *euphoriaBase) fireCallback(seq, msgID string) {
	if seq == "" {
		return
	}
	b.mu.Lock()
	cb, ok := b.callbacks[seq]
	delete(b.callbacks, seq)
	b.mu.Unlock()
	if ok {
		cb(msgID)
	}
}

// EuphoriaBridgeBot is the bridge's single long-lived Euphoria observer:
// it tracks room membership, relays messages into Nexus, and is the
// only EuphoriaLogQuerier.
type EuphoriaBridgeBot struct {
	*euphoriaBase
	nx       *nexus.Nexus
	roomname string

	mu           sync.Mutex
	logCallbacks map[string]func([]nexus.EuphoriaLogMessage)
	logSeq       int64
}

// NewEuphoriaBridgeBot dials url and wires the connection as the
// bridge's own Euphoria-side observer/sender/log-querier.
func NewEuphoriaBridgeBot(url, roomname, nick string, nx *nexus.Nexus, onReady func(), log *logrus.Entry) (*EuphoriaBridgeBot, error) {
	b := &EuphoriaBridgeBot{nx: nx, roomname: roomname, logCallbacks: map[string]func([]nexus.EuphoriaLogMessage){}}
	conn, err := transport.Dial(url, log, b.handle, func(ok bool) {
		log.WithField("ok", ok).Info("euphoria bridge bot connection closed")
	})
	if err != nil {
		return nil, err
	}
	b.euphoriaBase = newEuphoriaBase(conn, nick, onReady, log)
	return b, nil
}

func (b *EuphoriaBridgeBot) handle(raw json.RawMessage) {
	var pkt euphoriaPacket
	if err := json.Unmarshal(raw, &pkt); err != nil {
		b.log.WithError(err).Warn("euphoria: malformed packet")
		return
	}
	switch pkt.Type {
	case "who-reply":
		var entries []euphoriaPerson
		json.Unmarshal(pkt.Data, &entries)
		b.addUsers(entries, false)
	case "hello-event":
		var data euphoriaHelloData
		json.Unmarshal(pkt.Data, &data)
		b.nx.IgnoreUsers([]nexus.UserUpdate{{AID: data.Session.SessionID, Platform: platform.Euphoria}})
	case "snapshot-event":
		var data euphoriaSnapshotData
		json.Unmarshal(pkt.Data, &data)
		ids := make([]string, 0, len(data.Log))
		for _, m := range data.Log {
			ids = append(ids, m.ID)
		}
		b.nx.GatherIDs(platform.Euphoria, ids)
		b.addUsers(data.Listing, false)
		b.markReady()
	case "network-event":
		var data euphoriaNetworkData
		json.Unmarshal(pkt.Data, &data)
		if data.Type == "partition" {
			b.nx.RemoveGroup(data.ServerID + "/" + data.ServerEra)
		}
	case "nick-event":
		var data euphoriaNickData
		json.Unmarshal(pkt.Data, &data)
		b.nx.AddUsers([]nexus.UserUpdate{{AID: data.SessionID, Platform: platform.Euphoria, Nick: data.To}}, false)
	case "join-event":
		var entry euphoriaPerson
		json.Unmarshal(pkt.Data, &entry)
		b.addUsers([]euphoriaPerson{entry}, true)
	case "part-event":
		var entry euphoriaPerson
		json.Unmarshal(pkt.Data, &entry)
		b.nx.RemoveUsers([]nexus.UserRef{{AID: entry.SessionID}})
	case "send-event":
		var m euphoriaMessage
		json.Unmarshal(pkt.Data, &m)
		b.nx.HandleMessage(nexus.IncomingMessage{
			Platform: platform.Euphoria,
			AID:      m.Sender.SessionID,
			MsgID:    m.ID,
			Parent:   m.Parent,
			Nick:     m.Sender.Name,
			Text:     m.Content,
		})
	case "send-reply":
		var data euphoriaSendReplyData
		json.Unmarshal(pkt.Data, &data)
		b.fireCallback(pkt.ID, data.ID)
		if strings.HasPrefix(pkt.ID, "instant:") {
			b.nx.AddMapping(data.ID, strings.TrimPrefix(pkt.ID, "instant:"))
		}
	case "log":
		var data euphoriaLogData
		json.Unmarshal(pkt.Data, &data)
		b.mu.Lock()
		cb, ok := b.logCallbacks[pkt.ID]
		delete(b.logCallbacks, pkt.ID)
		b.mu.Unlock()
		if ok {
			out := make([]nexus.EuphoriaLogMessage, 0, len(data.Log))
			for _, m := range data.Log {
				out = append(out, nexus.EuphoriaLogMessage{ID: m.ID, Parent: m.Parent, Nick: m.Sender.Name, Text: m.Content, TimeUnix: m.Time})
			}
			cb(out)
		}
	}
}

func (b *EuphoriaBridgeBot) addUsers(entries []euphoriaPerson, isNew bool) {
	updates := make([]nexus.UserUpdate, 0, len(entries))
	for _, e := range entries {
		updates = append(updates, nexus.UserUpdate{
			AID: e.SessionID, Platform: platform.Euphoria, Nick: e.Name,
			Group: e.ServerID + "/" + e.ServerEra,
		})
	}
	if len(updates) > 0 {
		b.nx.AddUsers(updates, isNew)
	}
}

// QueryLogs implements nexus.EuphoriaLogQuerier. Euphoria returns results
// strictly before the given id while Instant's own log semantics are
// inclusive, so the id is decremented by one before the request goes out.
func (b *EuphoriaBridgeBot) QueryLogs(before string, maxlen int, callback func([]nexus.EuphoriaLogMessage)) {
	adjusted := before
	if before != "" {
		dec, err := idcodec.DecrementBase36(before, 13)
		if err != nil {
			b.log.WithError(err).Warn("euphoria: could not adjust log cursor")
		} else {
			adjusted = dec
		}
	}
	b.mu.Lock()
	b.logSeq++
	seq := "log:" + strconv.FormatInt(b.logSeq, 10)
	b.logCallbacks[seq] = callback
	b.mu.Unlock()
	if err := b.conn.Send(euphoriaLogCmd{Type: "log", ID: seq, N: maxlen, Before: adjusted}); err != nil {
		b.log.WithError(err).Warn("euphoria: log query failed")
	}
}

// EuphoriaSendBot is a per-user surrogate living on Euphoria, used for
// sessions observed on Instant. It only needs to post and to complete
// id mappings for its own relayed posts.
type EuphoriaSendBot struct {
	*euphoriaBase
	nx *nexus.Nexus
}

// NewEuphoriaSendBot dials url and wires the connection as a surrogate
// posting on behalf of an Instant-origin user.
func NewEuphoriaSendBot(url, nick string, nx *nexus.Nexus, onReady func(), log *logrus.Entry) (*EuphoriaSendBot, error) {
	b := &EuphoriaSendBot{nx: nx}
	conn, err := transport.Dial(url, log, b.handle, func(ok bool) {
		log.WithField("ok", ok).Info("euphoria surrogate connection closed")
	})
	if err != nil {
		return nil, err
	}
	b.euphoriaBase = newEuphoriaBase(conn, nick, onReady, log)
	return b, nil
}

func (b *EuphoriaSendBot) handle(raw json.RawMessage) {
	var pkt euphoriaPacket
	if err := json.Unmarshal(raw, &pkt); err != nil {
		return
	}
	switch pkt.Type {
	case "hello-event":
		var data euphoriaHelloData
		json.Unmarshal(pkt.Data, &data)
		b.nx.IgnoreUsers([]nexus.UserUpdate{{AID: data.Session.SessionID, Platform: platform.Euphoria}})
	case "snapshot-event":
		b.markReady()
	case "send-reply":
		var data euphoriaSendReplyData
		json.Unmarshal(pkt.Data, &data)
		b.fireCallback(pkt.ID, data.ID)
		if strings.HasPrefix(pkt.ID, "instant:") {
			b.nx.AddMapping(data.ID, strings.TrimPrefix(pkt.ID, "instant:"))
		}
	}
}
