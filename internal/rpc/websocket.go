package rpc

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/klingon-exchange/walletstore/pkg/logging"
)

const (
	wsSendBuffer   = 64
	wsReadLimit    = 4096
	wsPongWait     = 60 * time.Second
	wsPingInterval = 30 * time.Second
	wsWriteWait    = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// EventType names a pushed event.
type EventType string

const (
	// EventKeyringStatus is sent on every lock, unlock or create.
	EventKeyringStatus EventType = "keyring_status"
	// EventAccountStatus is sent when an account's wallet status changes.
	EventAccountStatus EventType = "account_status"
	// EventNotification carries transaction lifecycle notifications.
	EventNotification EventType = "notification"
)

// WSEvent is one pushed message. ChainID is empty for events that are not
// bound to a chain, such as keyring changes.
type WSEvent struct {
	Type      EventType   `json:"type"`
	ChainID   string      `json:"chain_id,omitempty"`
	Data      interface{} `json:"data"`
	Timestamp int64       `json:"timestamp"`
}

// WSSubscription is a filter update sent by a client. Action is
// "subscribe" or "unsubscribe"; Events and Chains are added to or removed
// from the client's filter.
type WSSubscription struct {
	Action string   `json:"action"`
	Events []string `json:"events,omitempty"`
	Chains []string `json:"chains,omitempty"`
}

// wsFilter selects the events a client receives. An empty set matches
// everything.
type wsFilter struct {
	mu     sync.RWMutex
	events map[EventType]struct{}
	chains map[string]struct{}
}

func (f *wsFilter) match(ev *WSEvent) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if len(f.events) > 0 {
		if _, ok := f.events[ev.Type]; !ok {
			return false
		}
	}
	if ev.ChainID == "" || len(f.chains) == 0 {
		return true
	}
	_, ok := f.chains[ev.ChainID]
	return ok
}

func (f *wsFilter) apply(sub *WSSubscription) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.events == nil {
		f.events = make(map[EventType]struct{})
		f.chains = make(map[string]struct{})
	}
	for _, e := range sub.Events {
		switch sub.Action {
		case "subscribe":
			f.events[EventType(e)] = struct{}{}
		case "unsubscribe":
			delete(f.events, EventType(e))
		}
	}
	for _, id := range sub.Chains {
		switch sub.Action {
		case "subscribe":
			f.chains[id] = struct{}{}
		case "unsubscribe":
			delete(f.chains, id)
		}
	}
}

// WSClient is one connected socket.
type WSClient struct {
	conn   *websocket.Conn
	send   chan []byte
	filter wsFilter
	hub    *WSHub
}

// WSHub fans events out to connected clients. A client whose buffer is
// full when an event arrives is dropped.
type WSHub struct {
	log *logging.Logger

	events chan *WSEvent
	join   chan *WSClient
	leave  chan *WSClient

	mu      sync.RWMutex
	clients map[*WSClient]struct{}
}

// NewWSHub creates a hub. Run must be started before clients connect.
func NewWSHub() *WSHub {
	return &WSHub{
		log:     logging.GetDefault().Component("ws"),
		events:  make(chan *WSEvent, 256),
		join:    make(chan *WSClient),
		leave:   make(chan *WSClient),
		clients: make(map[*WSClient]struct{}),
	}
}

// Run is the hub loop.
func (h *WSHub) Run() {
	for {
		select {
		case c := <-h.join:
			h.mu.Lock()
			h.clients[c] = struct{}{}
			n := len(h.clients)
			h.mu.Unlock()
			h.log.Debug("client connected", "clients", n)
		case c := <-h.leave:
			h.mu.Lock()
			h.drop(c)
			n := len(h.clients)
			h.mu.Unlock()
			h.log.Debug("client disconnected", "clients", n)
		case ev := <-h.events:
			h.deliver(ev)
		}
	}
}

func (h *WSHub) deliver(ev *WSEvent) {
	payload, err := json.Marshal(ev)
	if err != nil {
		h.log.Error("failed to encode event", "type", ev.Type, "error", err)
		return
	}

	var stalled []*WSClient
	h.mu.RLock()
	for c := range h.clients {
		if !c.filter.match(ev) {
			continue
		}
		select {
		case c.send <- payload:
		default:
			stalled = append(stalled, c)
		}
	}
	h.mu.RUnlock()

	if len(stalled) == 0 {
		return
	}
	h.mu.Lock()
	for _, c := range stalled {
		h.drop(c)
	}
	h.mu.Unlock()
	h.log.Warn("dropped stalled clients", "count", len(stalled))
}

// drop must be called with h.mu held.
func (h *WSHub) drop(c *WSClient) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.send)
}

// Broadcast queues an event that is not bound to a chain.
func (h *WSHub) Broadcast(t EventType, data interface{}) {
	h.BroadcastChain(t, "", data)
}

// BroadcastChain queues an event about chainID. Clients filtering on
// chains only see it when chainID is among them.
func (h *WSHub) BroadcastChain(t EventType, chainID string, data interface{}) {
	ev := &WSEvent{Type: t, ChainID: chainID, Data: data, Timestamp: time.Now().Unix()}
	select {
	case h.events <- ev:
	default:
		h.log.Warn("event queue full, dropping", "type", t, "chain", chainID)
	}
}

// ClientCount returns the number of connected clients.
func (h *WSHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", "error", err)
		return
	}
	c := &WSClient{conn: conn, send: make(chan []byte, wsSendBuffer), hub: s.wsHub}
	s.wsHub.join <- c

	go c.writeLoop()
	go c.readLoop()
}

// readLoop applies filter updates until the connection fails.
func (c *WSClient) readLoop() {
	defer func() {
		c.hub.leave <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(wsReadLimit)
	c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.log.Debug("websocket read failed", "error", err)
			}
			return
		}
		var sub WSSubscription
		if err := json.Unmarshal(msg, &sub); err != nil {
			continue
		}
		c.filter.apply(&sub)
	}
}

func (c *WSClient) writeLoop() {
	ping := time.NewTicker(wsPingInterval)
	defer func() {
		ping.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ping.C:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
