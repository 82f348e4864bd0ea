package web

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"iphone-alarms-sync/internal/domain"
	"iphone-alarms-sync/internal/logging"
)

// Websocket message types.
const (
	MsgStateInit    = "state_init"
	MsgStateChanged = "state_changed"
	MsgAlarmEvent   = "alarm_event"
)

const (
	writeWait  = 5 * time.Second
	pongWait   = 30 * time.Second
	pingPeriod = 20 * time.Second
	sendBuffer = 32
)

// Envelope is the wire format of every websocket message.
type Envelope struct {
	Type string     `json:"type"`
	Ts   *time.Time `json:"ts,omitempty"`
	Data any        `json:"data,omitempty"`
}

// Hub tracks websocket clients and fans messages out to them. Clients that
// cannot keep up are disconnected. It also serves as an event publisher.
type Hub struct {
	mu      sync.Mutex
	clients map[*client]struct{}
	closed  bool
}

type client struct {
	conn       *websocket.Conn
	send       chan []byte
	remoteAddr string
	once       sync.Once
}

func NewHub() *Hub {
	return &Hub{clients: make(map[*client]struct{})}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Broadcast encodes data under msgType and queues it for every client.
// It never blocks.
func (h *Hub) Broadcast(msgType string, data any) {
	frame, err := encodeEnvelope(msgType, data)
	if err != nil {
		logging.Errorf("encode %s message: %v", msgType, err)
		return
	}

	var slow []*client
	h.mu.Lock()
	for c := range h.clients {
		select {
		case c.send <- frame:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.Unlock()

	for _, c := range slow {
		h.remove(c, "slow client")
	}
}

// PublishEvent pushes a fired event to every client.
func (h *Hub) PublishEvent(_ context.Context, ev domain.FiredEvent) error {
	h.Broadcast(MsgAlarmEvent, ev)
	return nil
}

// Close disconnects every client and refuses new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.closed = true
	h.mu.Unlock()

	for _, c := range clients {
		h.remove(c, "shutdown")
	}
}

// serve registers conn, queues the initial frame and pumps until the peer goes away.
func (h *Hub) serve(conn *websocket.Conn, remoteAddr string, initial []byte) {
	c := &client{conn: conn, send: make(chan []byte, sendBuffer), remoteAddr: remoteAddr}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		_ = conn.Close()
		return
	}
	c.send <- initial
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	logging.Infof("ws client %s connected (%d clients)", remoteAddr, n)

	go c.writePump()
	c.readPump()
	h.remove(c, "read closed")
}

func (h *Hub) remove(c *client, reason string) {
	h.mu.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	n := len(h.clients)
	h.mu.Unlock()
	if !ok {
		return
	}
	c.once.Do(func() { close(c.send) })
	logging.Infof("ws client %s disconnected: %s (%d clients)", c.remoteAddr, reason, n)
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				logWSExit(c.remoteAddr, "write", err)
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				logWSExit(c.remoteAddr, "ping", err)
				return
			}
		}
	}
}

// readPump discards inbound frames; it exists to notice disconnects and answer pongs.
func (c *client) readPump() {
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			logWSExit(c.remoteAddr, "read", err)
			return
		}
	}
}

func logWSExit(remoteAddr, op string, err error) {
	if errors.Is(err, websocket.ErrCloseSent) {
		return
	}
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		logging.Debugf("ws %s %s closed: %d %s", remoteAddr, op, ce.Code, ce.Text)
		return
	}
	logging.Debugf("ws %s %s error: %v", remoteAddr, op, err)
}

func encodeEnvelope(msgType string, data any) ([]byte, error) {
	now := time.Now().UTC()
	return json.Marshal(Envelope{Type: msgType, Ts: &now, Data: data})
}
