package hub

import (
	"errors"
	"log/slog"
	"sync"
)

const defaultConnBuffer = 64

// ErrUnknownConnection is returned for join/leave on a connection id that was
// never connected or has already disconnected.
var ErrUnknownConnection = errors.New("unknown connection")

// Conn is one live client connection. Events are received on Events() in the
// order they were published; the channel is closed on disconnect.
type Conn struct {
	id string
	ch chan Envelope

	mu     sync.Mutex
	closed bool
}

// ID returns the connection identifier supplied at Connect time.
func (c *Conn) ID() string { return c.id }

// Events returns the connection's delivery channel.
func (c *Conn) Events() <-chan Envelope { return c.ch }

// send enqueues without blocking. A full buffer means this subscriber is
// stalled; the event is dropped for it only.
func (c *Conn) send(env Envelope) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.ch <- env:
		return true
	default:
		return false
	}
}

func (c *Conn) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.ch)
}

// Options configures a Hub.
type Options struct {
	Logger *slog.Logger
	// Buffer is the per-connection outbound queue size; defaults to 64.
	Buffer int
}

// Hub is a room-scoped publish/subscribe fan-out. Publish is fire-and-forget:
// it delivers to every connection joined to the room at call time, never
// blocks on slow subscribers, and keeps no history.
type Hub struct {
	logger *slog.Logger
	buffer int

	mu      sync.RWMutex
	conns   map[string]*Conn
	rooms   map[Room]map[string]*Conn
	joined  map[string]map[Room]struct{}
	dropped uint64
}

// New constructs a Hub.
func New(opts Options) *Hub {
	buffer := opts.Buffer
	if buffer <= 0 {
		buffer = defaultConnBuffer
	}
	return &Hub{
		logger: opts.Logger,
		buffer: buffer,
		conns:  make(map[string]*Conn),
		rooms:  make(map[Room]map[string]*Conn),
		joined: make(map[string]map[Room]struct{}),
	}
}

// Connect registers a connection and returns its handle. Reconnecting with an
// id that is still registered replaces the old connection, which is closed
// and purged from all rooms first.
func (h *Hub) Connect(connID string) *Conn {
	conn := &Conn{id: connID, ch: make(chan Envelope, h.buffer)}

	h.mu.Lock()
	old := h.conns[connID]
	if old != nil {
		h.purgeLocked(connID)
	}
	h.conns[connID] = conn
	h.mu.Unlock()

	if old != nil {
		old.close()
	}
	return conn
}

// Disconnect closes the connection and removes it from every room it joined.
// A connection that drops without an explicit leave goes through here too.
func (h *Hub) Disconnect(connID string) {
	h.mu.Lock()
	conn := h.conns[connID]
	h.purgeLocked(connID)
	h.mu.Unlock()

	if conn != nil {
		conn.close()
	}
}

func (h *Hub) purgeLocked(connID string) {
	for room := range h.joined[connID] {
		members := h.rooms[room]
		delete(members, connID)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
	delete(h.joined, connID)
	delete(h.conns, connID)
}

// Join adds the connection to a room. A connection may belong to any number
// of rooms simultaneously.
func (h *Hub) Join(connID string, room Room) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	conn, ok := h.conns[connID]
	if !ok {
		return ErrUnknownConnection
	}
	if h.rooms[room] == nil {
		h.rooms[room] = make(map[string]*Conn)
	}
	h.rooms[room][connID] = conn
	if h.joined[connID] == nil {
		h.joined[connID] = make(map[Room]struct{})
	}
	h.joined[connID][room] = struct{}{}
	return nil
}

// Leave removes the connection from a room. Leaving a room it never joined is
// a no-op.
func (h *Hub) Leave(connID string, room Room) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.conns[connID]; !ok {
		return ErrUnknownConnection
	}
	members := h.rooms[room]
	delete(members, connID)
	if len(members) == 0 {
		delete(h.rooms, room)
	}
	delete(h.joined[connID], room)
	return nil
}

// Publish delivers the event to every current member of room. Members that
// join afterwards never see it. Delivery to a stalled subscriber is dropped
// for that subscriber only; the publisher never blocks.
func (h *Hub) Publish(room Room, event string, payload any) {
	env := Envelope{Event: event, Room: room.String(), Payload: payload}

	// Holding the lock across the non-blocking sends keeps publish order
	// consistent per connection across concurrent producers.
	h.mu.Lock()
	var droppedFor []string
	for id, conn := range h.rooms[room] {
		if !conn.send(env) {
			h.dropped++
			droppedFor = append(droppedFor, id)
		}
	}
	h.mu.Unlock()

	if h.logger != nil && len(droppedFor) > 0 {
		h.logger.Warn("dropped event for stalled subscribers",
			"event", event,
			"room", room.String(),
			"connections", droppedFor,
		)
	}
}

// RoomSize returns the current member count for a room.
func (h *Hub) RoomSize(room Room) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

// Dropped returns the total number of per-subscriber deliveries dropped due
// to full buffers.
func (h *Hub) Dropped() uint64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.dropped
}
