package realtime

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	sendBuffer   = 16
	writeTimeout = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// IdentifyFunc returns the authenticated user behind a request. When a hub
// has one, joins for any other user are rejected.
type IdentifyFunc func(r *http.Request) (userID string, ok bool)

// Hub tracks connected clients by user room.
type Hub struct {
	identify IdentifyFunc

	mu    sync.Mutex
	rooms map[string]map[*client]struct{}
}

type client struct {
	conn  *websocket.Conn
	send  chan Event
	done  chan struct{}
	once  sync.Once
	rooms map[string]struct{} // guarded by Hub.mu
}

// NewHub creates a hub. identify may be nil to accept any join.
func NewHub(identify IdentifyFunc) *Hub {
	return &Hub{identify: identify, rooms: make(map[string]map[*client]struct{})}
}

// RoomName is the room for a user's events.
func RoomName(userID string) string { return "user_" + userID }

// ServeWS upgrades the request and serves one client until it disconnects.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("realtime: websocket upgrade: %v", err)
		return
	}

	c := &client{
		conn:  conn,
		send:  make(chan Event, sendBuffer),
		done:  make(chan struct{}),
		rooms: make(map[string]struct{}),
	}
	go c.writeLoop()
	defer c.close()
	defer h.leaveAll(c)

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("realtime: websocket read: %v", err)
			}
			return
		}

		var req joinRequest
		if err := json.Unmarshal(msg, &req); err != nil || req.Type != "join" {
			c.push(Event{Type: EventJoinRejected, Message: "invalid message format"})
			continue
		}
		if req.UserID == "" {
			c.push(Event{Type: EventJoinRejected, Message: "user_id is required"})
			continue
		}
		if h.identify != nil {
			if id, ok := h.identify(r); !ok || id != req.UserID {
				log.Printf("realtime: join rejected for user %q", req.UserID)
				c.push(Event{Type: EventJoinRejected, UserID: req.UserID, Message: "not allowed to join this room"})
				continue
			}
		}

		h.join(c, req.UserID)
		c.push(Event{Type: EventJoined, UserID: req.UserID})
	}
}

// Emit sends ev to every client in the user's room and returns how many
// accepted it. Clients whose buffers are full are disconnected.
func (h *Hub) Emit(userID string, ev Event) int {
	room := RoomName(userID)

	h.mu.Lock()
	defer h.mu.Unlock()

	sent := 0
	for c := range h.rooms[room] {
		select {
		case c.send <- ev:
			sent++
		default:
			log.Printf("realtime: dropping slow client in %s", room)
			h.removeLocked(c)
			c.close()
		}
	}
	return sent
}

// RoomSize returns the number of clients joined to a user's room.
func (h *Hub) RoomSize(userID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.rooms[RoomName(userID)])
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, members := range h.rooms {
		for c := range members {
			h.removeLocked(c)
			c.close()
		}
	}
}

func (h *Hub) join(c *client, userID string) {
	room := RoomName(userID)
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.rooms[room] == nil {
		h.rooms[room] = make(map[*client]struct{})
	}
	h.rooms[room][c] = struct{}{}
	c.rooms[room] = struct{}{}
}

func (h *Hub) leaveAll(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(c)
}

func (h *Hub) removeLocked(c *client) {
	for room := range c.rooms {
		delete(h.rooms[room], c)
		if len(h.rooms[room]) == 0 {
			delete(h.rooms, room)
		}
		delete(c.rooms, room)
	}
}

// push queues a direct reply without blocking the read loop.
func (c *client) push(ev Event) {
	select {
	case c.send <- ev:
	case <-c.done:
	default:
		log.Printf("realtime: reply dropped, client buffer full")
	}
}

func (c *client) writeLoop() {
	for {
		select {
		case ev := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteJSON(ev); err != nil {
				log.Printf("realtime: websocket write: %v", err)
				c.close()
				return
			}
		case <-c.done:
			return
		}
	}
}

func (c *client) close() {
	c.once.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}
