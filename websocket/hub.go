package websocket

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// subscribers is a named dynamic subscriber set. The room channel map and the
// per-user connection registry are the same primitive keyed differently.
type subscribers struct {
	mu   sync.RWMutex
	sets map[uint]map[*Client]bool
}

func newSubscribers() *subscribers {
	return &subscribers{sets: make(map[uint]map[*Client]bool)}
}

func (s *subscribers) add(key uint, c *Client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sets[key]; !ok {
		s.sets[key] = make(map[*Client]bool)
	}
	s.sets[key][c] = true
}

func (s *subscribers) remove(key uint, c *Client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if set, ok := s.sets[key]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(s.sets, key)
		}
	}
}

func (s *subscribers) removeEverywhere(c *Client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, set := range s.sets {
		delete(set, c)
		if len(set) == 0 {
			delete(s.sets, key)
		}
	}
}

// each calls fn for every subscriber of key. fn must not block.
func (s *subscribers) each(key uint, fn func(*Client)) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for c := range s.sets[key] {
		fn(c)
	}
}

// Hub maintains the set of active clients, the room channels, and the
// per-user connection registry
type Hub struct {
	clientsMu sync.RWMutex
	clients   map[*Client]bool

	// Room channel subscriptions (roomID -> clients)
	rooms *subscribers

	// Connection registry (userID -> that user's live connections)
	users *subscribers

	// Register requests from the clients
	register chan *Client

	// Unregister requests from clients
	unregister chan *Client

	// Engines hook disconnect for compensating state changes
	disconnectMu sync.RWMutex
	onDisconnect []func(*Client)
}

// NewHub creates a new hub instance
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		rooms:      newSubscribers(),
		users:      newSubscribers(),
		register:   make(chan *Client),
		unregister: make(chan *Client),
	}
}

// OnDisconnect registers a cleanup hook run when a client's socket closes.
func (h *Hub) OnDisconnect(fn func(*Client)) {
	h.disconnectMu.Lock()
	defer h.disconnectMu.Unlock()
	h.onDisconnect = append(h.onDisconnect, fn)
}

// Run starts the hub
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.clientsMu.Lock()
			h.clients[client] = true
			h.clientsMu.Unlock()
			h.users.add(client.userID, client)
			logrus.WithFields(logrus.Fields{
				"user_id": client.userID,
				"conn_id": client.connID,
			}).Debug("client connected")

		case client := <-h.unregister:
			h.clientsMu.Lock()
			_, ok := h.clients[client]
			if ok {
				delete(h.clients, client)
			}
			h.clientsMu.Unlock()
			if !ok {
				continue
			}

			// Compensating state changes happen before the connection
			// disappears from the registry so hooks can still target
			// the user's other connections.
			h.disconnectMu.RLock()
			hooks := h.onDisconnect
			h.disconnectMu.RUnlock()
			for _, fn := range hooks {
				fn(client)
			}

			h.rooms.removeEverywhere(client)
			h.users.remove(client.userID, client)
			close(client.send)
			logrus.WithFields(logrus.Fields{
				"user_id": client.userID,
				"conn_id": client.connID,
			}).Debug("client disconnected")
		}
	}
}

// Subscribe adds a client to a room channel.
func (h *Hub) Subscribe(c *Client, roomID uint) {
	h.rooms.add(roomID, c)
}

// Unsubscribe removes a client from a room channel.
func (h *Hub) Unsubscribe(c *Client, roomID uint) {
	h.rooms.remove(roomID, c)
}

// BroadcastToRoom sends an event to every client subscribed to the room.
func (h *Hub) BroadcastToRoom(roomID uint, msgType string, payload interface{}) {
	h.rooms.each(roomID, func(c *Client) {
		sendToClient(c, msgType, payload)
	})
}

// BroadcastToUser sends an event to every live connection of one user.
func (h *Hub) BroadcastToUser(userID uint, msgType string, payload interface{}) {
	h.users.each(userID, func(c *Client) {
		sendToClient(c, msgType, payload)
	})
}

// SendToDevice sends an event only to the user's connections bound to the
// given device identifier.
func (h *Hub) SendToDevice(userID uint, deviceID string, msgType string, payload interface{}) {
	h.users.each(userID, func(c *Client) {
		if c.DeviceID() == deviceID {
			sendToClient(c, msgType, payload)
		}
	})
}
