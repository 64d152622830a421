package server

import (
	"sync"

	"github.com/MattCruikshank/mindcare/internal/models"
	"github.com/MattCruikshank/mindcare/internal/protocol"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Client represents a connected WebSocket client.
type Client struct {
	hub    *Hub
	id     string
	conn   *websocket.Conn
	user   *models.User
	send   chan []byte
	room   string // joined room, empty while viewing the thread list
	roomMu sync.RWMutex
}

// Hub manages WebSocket connections, room membership and broadcasting.
type Hub struct {
	clients    map[*Client]bool
	clientsMu  sync.RWMutex
	rooms      map[string]map[*Client]bool // room -> clients
	roomsMu    sync.RWMutex
	register   chan *Client
	unregister chan *Client
	broadcast  chan *roomMessage
	done       chan struct{}
	log        *zap.Logger
	metrics    *Metrics
}

type broadcastScope int

const (
	// scopeAll reaches every connected client.
	scopeAll broadcastScope = iota
	// scopeRoomAndLobby reaches the members of one room plus every client in no room.
	scopeRoomAndLobby
)

type roomMessage struct {
	scope   broadcastScope
	room    string
	msgType protocol.MessageType
	data    []byte
}

// NewHub creates a new Hub.
func NewHub(log *zap.Logger, metrics *Metrics) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		rooms:      make(map[string]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *roomMessage, 256),
		done:       make(chan struct{}),
		log:        log,
		metrics:    metrics,
	}
}

// Run starts the hub's main loop.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.clientsMu.Lock()
			h.clients[client] = true
			total := len(h.clients)
			h.clientsMu.Unlock()
			h.metrics.Connections.Set(float64(total))
			h.log.Info("client connected", zap.String("client", client.id), zap.String("user", client.user.Name()), zap.Int("total", total))

		case client := <-h.unregister:
			h.removeClient(client)

		case msg := <-h.broadcast:
			for _, client := range h.targets(msg) {
				select {
				case client.send <- msg.data:
				default:
					// Client buffer full, disconnect
					h.log.Warn("client send buffer full, disconnecting", zap.String("client", client.id))
					h.removeClient(client)
				}
			}
			h.metrics.Broadcasts.WithLabelValues(string(msg.msgType)).Inc()

		case <-h.done:
			return
		}
	}
}

// Shutdown stops the hub loop.
func (h *Hub) Shutdown() {
	close(h.done)
}

func (h *Hub) removeClient(client *Client) {
	h.clientsMu.Lock()
	_, ok := h.clients[client]
	if ok {
		delete(h.clients, client)
		close(client.send)
	}
	total := len(h.clients)
	h.clientsMu.Unlock()
	if !ok {
		return
	}

	client.roomMu.Lock()
	if client.room != "" {
		h.removeFromRoom(client, client.room)
		client.room = ""
	}
	client.roomMu.Unlock()

	h.metrics.Connections.Set(float64(total))
	h.log.Info("client disconnected", zap.String("client", client.id), zap.Int("total", total))
}

// targets resolves the recipients of a broadcast. Each client appears at most once.
func (h *Hub) targets(msg *roomMessage) []*Client {
	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()

	out := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		if msg.scope == scopeAll {
			out = append(out, client)
			continue
		}
		room := client.Room()
		if room == "" || room == msg.room {
			out = append(out, client)
		}
	}
	return out
}

// Join moves a client into room, leaving any room it was in.
func (h *Hub) Join(client *Client, room string) {
	client.roomMu.Lock()
	defer client.roomMu.Unlock()

	if client.room == room {
		return
	}
	if client.room != "" {
		h.removeFromRoom(client, client.room)
	}

	h.roomsMu.Lock()
	if h.rooms[room] == nil {
		h.rooms[room] = make(map[*Client]bool)
	}
	h.rooms[room][client] = true
	h.roomsMu.Unlock()

	client.room = room
}

// Leave removes a client from room. Leaving a room the client is not in is a no-op.
func (h *Hub) Leave(client *Client, room string) {
	client.roomMu.Lock()
	defer client.roomMu.Unlock()

	if client.room != room {
		return
	}
	h.removeFromRoom(client, room)
	client.room = ""
}

func (h *Hub) removeFromRoom(client *Client, room string) {
	h.roomsMu.Lock()
	if clients, ok := h.rooms[room]; ok {
		delete(clients, client)
		if len(clients) == 0 {
			delete(h.rooms, room)
		}
	}
	h.roomsMu.Unlock()
}

// RoomSize returns the number of clients in a room.
func (h *Hub) RoomSize(room string) int {
	h.roomsMu.RLock()
	defer h.roomsMu.RUnlock()
	return len(h.rooms[room])
}

// BroadcastThread announces a new thread to every connected client.
func (h *Hub) BroadcastThread(thread *models.Thread) {
	h.enqueue(scopeAll, "", protocol.TypeThreadCreated, thread)
}

// BroadcastReply announces a new reply to the thread's room and to list viewers.
func (h *Hub) BroadcastReply(reply *models.Reply) {
	h.enqueue(scopeRoomAndLobby, protocol.RoomForThread(reply.ThreadID), protocol.TypeReplyCreated, reply)
}

func (h *Hub) enqueue(scope broadcastScope, room string, msgType protocol.MessageType, payload interface{}) {
	data, err := protocol.Marshal(msgType, payload)
	if err != nil {
		h.log.Error("failed to marshal broadcast", zap.String("type", string(msgType)), zap.Error(err))
		return
	}
	h.broadcast <- &roomMessage{scope: scope, room: room, msgType: msgType, data: data}
}

// NewClient creates a new client for the hub.
func (h *Hub) NewClient(conn *websocket.Conn, user *models.User) *Client {
	return &Client{
		hub:  h,
		id:   uuid.NewString(),
		conn: conn,
		user: user,
		send: make(chan []byte, 256),
	}
}

// Register registers a client with the hub.
func (h *Hub) Register(client *Client) {
	h.register <- client
}

// Unregister unregisters a client from the hub.
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()
	return len(h.clients)
}

// Send sends data to the client.
func (c *Client) Send(data []byte) {
	defer func() {
		// The hub may close send concurrently when the client disconnects.
		recover()
	}()
	select {
	case c.send <- data:
	default:
		// Buffer full
	}
}

// SendEnvelope sends a protocol envelope to the client.
func (c *Client) SendEnvelope(msgType protocol.MessageType, data interface{}) error {
	raw, err := protocol.Marshal(msgType, data)
	if err != nil {
		return err
	}
	c.Send(raw)
	return nil
}

// SendError sends an error message to the client.
func (c *Client) SendError(code, message string) {
	c.SendEnvelope(protocol.TypeError, protocol.ErrorMessage{
		Code:    code,
		Message: message,
	})
}

// Room returns the room the client is in, or "".
func (c *Client) Room() string {
	c.roomMu.RLock()
	defer c.roomMu.RUnlock()
	return c.room
}

// User returns the client's user.
func (c *Client) User() *models.User {
	return c.user
}

// Conn returns the client's WebSocket connection.
func (c *Client) Conn() *websocket.Conn {
	return c.conn
}

// SendChan returns the client's send channel.
func (c *Client) SendChan() <-chan []byte {
	return c.send
}
