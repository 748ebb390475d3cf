package bridge

import (
	"encoding/json"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/chatbridge/nexus/internal/nexus"
	"github.com/chatbridge/nexus/internal/platform"
	"github.com/chatbridge/nexus/internal/transport"
)

// instantBase is the submit/callback/nickname bookkeeping both Instant
// roles need; it satisfies surrogate.Bot on its own.
type instantBase struct {
	conn *transport.Conn
	log  *logrus.Entry

	mu        sync.Mutex
	nickname  string
	ready     bool
	onReady   func()
	callbacks map[string]func(msgID string)
}

func newInstantBase(conn *transport.Conn, nick string, onReady func(), log *logrus.Entry) *instantBase {
	return &instantBase{
		conn:      conn,
		log:       log,
		nickname:  nick,
		onReady:   onReady,
		callbacks: map[string]func(string){},
	}
}

func (b *instantBase) Nickname() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.nickname
}

func (b *instantBase) SetNickname(nick string) {
	b.mu.Lock()
	changed := nick != b.nickname
	b.nickname = nick
	b.mu.Unlock()
	if changed {
		b.conn.Send(instantBroadcastNick{Type: "nick", Nick: nick})
	}
}

func (b *instantBase) SubmitPost(parent, text, sequence string, callback func(id string)) {
	if callback != nil {
		b.mu.Lock()
		b.callbacks[sequence] = callback
		b.mu.Unlock()
	}
	env := instantEnvelope{Type: "broadcast", Seq: sequence}
	payload, err := json.Marshal(instantBroadcastPost{Type: "post", Parent: parent, Nick: b.Nickname(), Text: text})
	if err != nil {
		b.log.WithError(err).Warn("instant: encode post failed")
		return
	}
	env.Data = payload
	if err := b.conn.Send(env); err != nil {
		b.log.WithError(err).Warn("instant: send failed")
	}
}

func (b *instantBase) Close() error { return b.conn.Close() }

func (b *instantBase) Ready() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.ready
}

func (b *instantBase) markReady() {
	b.mu.Lock()
	already := b.ready
	b.ready = true
	cb := b.onReady
	b.mu.Unlock()
	if !already && cb != nil {
		cb()
	}
}

func (b *instantBase) fireCallback(seq, msgID string) {
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

// InstantBridgeBot is the bridge's single long-lived Instant observer:
// it tracks room membership, relays messages into Nexus, and serves
// Instant clients' log-query/log-request frames.
type InstantBridgeBot struct {
	*instantBase
	nx       *nexus.Nexus
	roomname string
}

// NewInstantBridgeBot dials url and wires the connection as the
// bridge's own Instant-side observer/sender.
func NewInstantBridgeBot(url, roomname, nick string, nx *nexus.Nexus, onReady func(), log *logrus.Entry) (*InstantBridgeBot, error) {
	b := &InstantBridgeBot{nx: nx, roomname: roomname}
	conn, err := transport.Dial(url, log, b.handle, func(ok bool) {
		log.WithField("ok", ok).Info("instant bridge bot connection closed")
	})
	if err != nil {
		return nil, err
	}
	b.instantBase = newInstantBase(conn, nick, onReady, log)
	conn.Send(instantEnvelope{Type: "broadcast", Data: json.RawMessage(`{"type":"who"}`)})
	return b, nil
}

func (b *InstantBridgeBot) handle(raw json.RawMessage) {
	var env instantEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		b.log.WithError(err).Warn("instant: malformed frame")
		return
	}
	switch env.Type {
	case "identity":
		var data instantIdentityData
		json.Unmarshal(env.Data, &data)
		b.nx.IgnoreUsers([]nexus.UserUpdate{{BID: data.ID, Platform: platform.Instant}})
		b.markReady()
	case "joined":
		var data instantIdentityData
		json.Unmarshal(env.Data, &data)
		b.nx.AddUsers([]nexus.UserUpdate{{BID: data.ID, Platform: platform.Instant}}, true)
	case "left":
		var data instantIdentityData
		json.Unmarshal(env.Data, &data)
		b.nx.RemoveUsers([]nexus.UserRef{{BID: data.ID}})
	case "client-message":
		b.handleClientMessage(env)
	case "response":
		var data instantResponseData
		json.Unmarshal(env.Data, &data)
		b.fireCallback(env.Seq, data.ID)
	}
}

func (b *InstantBridgeBot) handleClientMessage(env instantEnvelope) {
	var msg instantClientMessage
	if err := json.Unmarshal(env.Data, &msg); err != nil {
		return
	}
	switch msg.Type {
	case "nick":
		b.nx.AddUsers([]nexus.UserUpdate{{BID: env.From, Platform: platform.Instant, Nick: msg.Nick}}, false)
	case "post":
		b.nx.HandleMessage(nexus.IncomingMessage{
			Platform: platform.Instant,
			BID:      env.From,
			MsgID:    env.ID,
			Parent:   msg.Parent,
			Nick:     msg.Nick,
			Text:     msg.Text,
		})
	case "log-query":
		bounds, err := b.nx.MessageBounds(platform.Instant)
		if err != nil {
			b.log.WithError(err).Warn("instant: could not read bounds")
			return
		}
		if bounds.Count == 0 {
			return
		}
		b.sendUnicast(env.From, instantEnvelope{Type: "log-info"},
			map[string]interface{}{"from": bounds.Min, "to": bounds.Max, "length": bounds.Count})
	case "log-request":
		b.nx.RequestMessages(platform.Instant, msg.To, msg.From, msg.Length, func(entries []nexus.LogEntry) {
			out := make([]instantLogMessage, 0, len(entries))
			for _, e := range entries {
				out = append(out, instantLogMessage{ID: e.ID, Parent: e.Parent, Nick: e.Nick, Text: e.Text, Timestamp: e.TimestampMS})
			}
			b.sendLog(env.From, msg.Key, out)
		})
	}
}

func (b *InstantBridgeBot) sendUnicast(to string, env instantEnvelope, data interface{}) {
	payload, err := json.Marshal(data)
	if err != nil {
		return
	}
	env.To = to
	env.Data = payload
	if err := b.conn.Send(env); err != nil {
		b.log.WithError(err).Warn("instant: unicast failed")
	}
}

func (b *InstantBridgeBot) sendLog(to, key string, logs []instantLogMessage) {
	payload, err := json.Marshal(instantLogResponse{Type: "log", Key: key, Data: logs})
	if err != nil {
		return
	}
	b.conn.Send(instantEnvelope{Type: "unicast", To: to, Data: payload})
}

// InstantSendBot is a per-user surrogate living on Instant, used for
// sessions observed on Euphoria.
type InstantSendBot struct {
	*instantBase
	nx *nexus.Nexus
}

// NewInstantSendBot dials url and wires the connection as a surrogate
// posting on behalf of a Euphoria-origin user.
func NewInstantSendBot(url, nick string, nx *nexus.Nexus, onReady func(), log *logrus.Entry) (*InstantSendBot, error) {
	b := &InstantSendBot{nx: nx}
	conn, err := transport.Dial(url, log, b.handle, func(ok bool) {
		log.WithField("ok", ok).Info("instant surrogate connection closed")
	})
	if err != nil {
		return nil, err
	}
	b.instantBase = newInstantBase(conn, nick, onReady, log)
	return b, nil
}

func (b *InstantSendBot) handle(raw json.RawMessage) {
	var env instantEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return
	}
	switch env.Type {
	case "identity":
		var data instantIdentityData
		json.Unmarshal(env.Data, &data)
		b.nx.IgnoreUsers([]nexus.UserUpdate{{BID: data.ID, Platform: platform.Instant}})
		b.markReady()
	case "response":
		var data instantResponseData
		json.Unmarshal(env.Data, &data)
		b.fireCallback(env.Seq, data.ID)
		if strings.HasPrefix(env.Seq, "euphoria:") {
			b.nx.AddMapping(strings.TrimPrefix(env.Seq, "euphoria:"), data.ID)
		}
	}
}
