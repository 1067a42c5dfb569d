package ws

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/cwrk-planet/music-room/internal/metrics"
	"github.com/cwrk-planet/music-room/pkg/protocol"
)

var connSeq atomic.Uint64

// Conn is one live socket. Writes go through its send buffer so the hub never
// blocks on a slow peer.
type Conn struct {
	id     uint64
	userID string
	send   chan []byte

	closeOnce sync.Once
	closed    chan struct{}
}

func newConn(userID string, buffer int) *Conn {
	return &Conn{
		id:     connSeq.Add(1),
		userID: userID,
		send:   make(chan []byte, buffer),
		closed: make(chan struct{}),
	}
}

func (c *Conn) UserID() string { return c.userID }

// Done is closed once the connection has been dropped.
func (c *Conn) Done() <-chan struct{} { return c.closed }

func (c *Conn) enqueue(frame []byte) bool {
	select {
	case <-c.closed:
		return false
	default:
	}
	select {
	case c.send <- frame:
		return true
	default:
		// peer is not draining; drop it rather than stall the room
		c.close()
		return false
	}
}

func (c *Conn) close() {
	c.closeOnce.Do(func() { close(c.closed) })
}

// Send encodes ev and queues it for this connection only.
func (c *Conn) Send(ev protocol.Event) error {
	frame, err := encodeFrame(ev)
	if err != nil {
		return err
	}
	if !c.enqueue(frame) {
		return errConnClosed
	}
	return nil
}

// Hub routes events to users and room channels. A user is bound to at most
// one room; all of the user's sockets receive that room's events.
type Hub struct {
	mu       sync.RWMutex
	conns    map[string]map[*Conn]struct{} // userID -> sockets
	members  map[string]map[string]struct{} // roomID -> userIDs
	userRoom map[string]string

	buffer  int
	metrics *metrics.Metrics
}

func NewHub(buffer int, m *metrics.Metrics) *Hub {
	if buffer <= 0 {
		buffer = 256
	}
	return &Hub{
		conns:    make(map[string]map[*Conn]struct{}),
		members:  make(map[string]map[string]struct{}),
		userRoom: make(map[string]string),
		buffer:   buffer,
		metrics:  m,
	}
}

// Register creates a connection for userID.
func (h *Hub) Register(userID string) *Conn {
	c := newConn(userID, h.buffer)

	h.mu.Lock()
	cs, ok := h.conns[userID]
	if !ok {
		cs = make(map[*Conn]struct{})
		h.conns[userID] = cs
	}
	cs[c] = struct{}{}
	h.mu.Unlock()

	h.metrics.ConnOpened()
	return c
}

// Unregister drops c and returns how many sockets the user still has.
func (h *Hub) Unregister(c *Conn) int {
	c.close()

	h.mu.Lock()
	defer h.mu.Unlock()

	cs, ok := h.conns[c.userID]
	if !ok {
		return 0
	}
	if _, ok := cs[c]; ok {
		delete(cs, c)
		h.metrics.ConnClosed()
	}
	if len(cs) == 0 {
		delete(h.conns, c.userID)
		return 0
	}
	return len(cs)
}

func (h *Hub) Connections(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns[userID])
}

// Attach moves userID onto the room channel.
func (h *Hub) Attach(userID, roomID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if prev, ok := h.userRoom[userID]; ok && prev != roomID {
		h.detachLocked(userID, prev)
	}
	ms, ok := h.members[roomID]
	if !ok {
		ms = make(map[string]struct{})
		h.members[roomID] = ms
	}
	ms[userID] = struct{}{}
	h.userRoom[userID] = roomID
}

func (h *Hub) Detach(userID, roomID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.detachLocked(userID, roomID)
}

func (h *Hub) detachLocked(userID, roomID string) {
	if ms, ok := h.members[roomID]; ok {
		delete(ms, userID)
		if len(ms) == 0 {
			delete(h.members, roomID)
		}
	}
	if h.userRoom[userID] == roomID {
		delete(h.userRoom, userID)
	}
}

// RoomOf returns the room channel userID is bound to.
func (h *Hub) RoomOf(userID string) string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.userRoom[userID]
}

// ToRoom fans ev out to every socket of every user on the room channel.
func (h *Hub) ToRoom(roomID string, ev protocol.Event) {
	frame, err := encodeFrame(ev)
	if err != nil {
		slog.Error("ws: encode", slog.String("type", string(ev.Type())), slog.Any("err", err))
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for userID := range h.members[roomID] {
		for c := range h.conns[userID] {
			c.enqueue(frame)
		}
	}
}

func (h *Hub) ToUser(userID string, ev protocol.Event) {
	frame, err := encodeFrame(ev)
	if err != nil {
		slog.Error("ws: encode", slog.String("type", string(ev.Type())), slog.Any("err", err))
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.conns[userID] {
		c.enqueue(frame)
	}
}
