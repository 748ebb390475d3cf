// Package transport is the thin, intentionally minimal black-box platform
// client collaborator described by the bridge's scope: JSON-over-WebSocket
// framing lives here. It sends no heartbeat of its own and never
// reconnects.
package transport

import (
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// Handler processes one inbound JSON frame, already decoded into a raw
// message.
type Handler func(raw json.RawMessage)

// Conn is a single JSON-framed WebSocket connection to a remote platform.
// It is the minimal contract the bridge's endpoints rely on; it does not
// reconnect or back off, and nothing in this package recreates a Conn
// after its onClose callback fires.
type Conn struct {
	id  string
	url string
	log *logrus.Entry

	mu      sync.Mutex
	ws      *websocket.Conn
	onClose func(ok bool)
	closed  bool
}

// Dial opens a WebSocket connection to url and starts its read loop,
// dispatching every decoded frame to handle. onClose fires (once) with
// ok=false whenever the connection drops unexpectedly, or ok=true when
// Close was called locally.
func Dial(url string, log *logrus.Entry, handle Handler, onClose func(ok bool)) (*Conn, error) {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return nil, err
	}
	id := uuid.NewString()
	c := &Conn{
		id:      id,
		url:     url,
		log:     log.WithField("conn_id", id),
		ws:      ws,
		onClose: onClose,
	}
	go c.readLoop(handle)
	return c, nil
}

func (c *Conn) readLoop(handle Handler) {
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			c.log.WithError(err).Debug("transport: read loop ended")
			c.fireClose(false)
			return
		}
		var raw json.RawMessage = data
		handle(raw)
	}
}

func (c *Conn) fireClose(ok bool) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	cb := c.onClose
	c.mu.Unlock()
	if cb != nil {
		cb(ok)
	}
}

// Send marshals v as JSON and writes it as a single text frame.
func (c *Conn) Send(v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return websocket.ErrCloseSent
	}
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

// Close closes the underlying connection and fires onClose(true) exactly
// once.
func (c *Conn) Close() error {
	c.mu.Lock()
	ws := c.ws
	c.mu.Unlock()
	c.fireClose(true)
	return ws.Close()
}

// ID returns this connection's debug identifier.
func (c *Conn) ID() string { return c.id }
