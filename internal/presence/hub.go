package presence

import (
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// rosterMessage is broadcast to every connection whenever the set of
// present users changes.
type rosterMessage struct {
	Type string   `json:"type"`
	UIDs []string `json:"uids"`
	TS   int64    `json:"ts"`
}

type client struct {
	id   string
	uid  string
	conn *websocket.Conn
	send chan rosterMessage
}

// Hub tracks the live presence connections of one room. A user counts as
// present while at least one of their connections is open; multiple tabs
// share one uid.
type Hub struct {
	roomID string

	mu      sync.RWMutex
	clients map[*client]struct{}
	counts  map[string]int
	last    time.Time
}

func newHub(roomID string) *Hub {
	return &Hub{
		roomID:  roomID,
		clients: map[*client]struct{}{},
		counts:  map[string]int{},
		last:    time.Now(),
	}
}

// Present returns the uids with at least one open connection, in no
// particular order.
func (h *Hub) Present() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.presentLocked()
}

func (h *Hub) presentLocked() []string {
	out := make([]string, 0, len(h.counts))
	for uid := range h.counts {
		out = append(out, uid)
	}
	return out
}

func (h *Hub) add(c *client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.counts[c.uid]++
	h.last = time.Now()
	h.broadcastLocked()
	h.mu.Unlock()
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	if !h.removeLocked(c) {
		h.mu.Unlock()
		return
	}
	h.last = time.Now()
	h.broadcastLocked()
	h.mu.Unlock()
}

// removeLocked detaches the client and releases its share of the uid's
// connection count. Every drop path goes through here so a dropped
// connection can never leave its uid counted as present.
func (h *Hub) removeLocked(c *client) bool {
	if _, ok := h.clients[c]; !ok {
		return false
	}
	delete(h.clients, c)
	close(c.send)
	h.counts[c.uid]--
	if h.counts[c.uid] <= 0 {
		delete(h.counts, c.uid)
	}
	return true
}

func (h *Hub) broadcastLocked() {
	msg := rosterMessage{Type: "presence", UIDs: h.presentLocked(), TS: time.Now().UnixMilli()}
	for c := range h.clients {
		select {
		case c.send <- msg:
		default:
			// Stalled connection. Drop it rather than block the room.
			h.removeLocked(c)
		}
	}
}

func (h *Hub) empty() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients) == 0
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		close(c.send)
		_ = c.conn.Close()
		delete(h.clients, c)
	}
	h.counts = map[string]int{}
}

// Manager holds one hub per room and reaps hubs that have sat empty past
// the idle timeout.
type Manager struct {
	mu          sync.Mutex
	hubs        map[string]*Hub
	idleTimeout time.Duration
}

func NewManager(idleTimeout time.Duration) *Manager {
	m := &Manager{hubs: map[string]*Hub{}, idleTimeout: idleTimeout}
	if idleTimeout > 0 {
		go m.reaperLoop()
	}
	return m
}

func (m *Manager) hub(roomID string) *Hub {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.hubs[roomID]
	if !ok {
		h = newHub(roomID)
		m.hubs[roomID] = h
	}
	return h
}

// Present returns who is connected to the room right now. A room with no
// hub yet has nobody present.
func (m *Manager) Present(roomID string) []string {
	m.mu.Lock()
	h := m.hubs[roomID]
	m.mu.Unlock()
	if h == nil {
		return nil
	}
	return h.Present()
}

func (m *Manager) reaperLoop() {
	ticker := time.NewTicker(m.idleTimeout / 2)
	for range ticker.C {
		cutoff := time.Now().Add(-m.idleTimeout)
		m.mu.Lock()
		for id, h := range m.hubs {
			h.mu.RLock()
			idle := len(h.clients) == 0 && h.last.Before(cutoff)
			h.mu.RUnlock()
			if idle {
				delete(m.hubs, id)
				go h.closeAll()
			}
		}
		m.mu.Unlock()
	}
}

// Serve upgrades the request to a websocket presence connection for uid
// in roomID and blocks until the connection closes.
func (m *Manager) Serve(w http.ResponseWriter, r *http.Request, roomID, uid string) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Str("room_id", roomID).Msg("presence upgrade failed")
		return
	}
	h := m.hub(roomID)
	c := &client{
		id:   uuid.NewString(),
		uid:  uid,
		conn: conn,
		send: make(chan rosterMessage, 8),
	}
	h.add(c)
	go c.writePump()
	c.readPump(h)
}

func (c *client) readPump(h *Hub) {
	defer func() {
		h.remove(c)
		_ = c.conn.Close()
	}()
	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
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
			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
