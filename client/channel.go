package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/MattCruikshank/mindcare/internal/protocol"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var (
	// ErrNotConnected is returned by Emit while the connection is down.
	// The event is dropped; there is no redelivery.
	ErrNotConnected = errors.New("realtime channel not connected")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("realtime channel closed")
	// ErrBufferFull is returned by Emit when the connection is up but its
	// outgoing queue is full. The event is dropped.
	ErrBufferFull = errors.New("realtime send buffer full")
)

// Handler receives the payload of one realtime event.
type Handler func(data json.RawMessage)

// RealtimeChannel is the client's long-lived event connection to the server.
type RealtimeChannel interface {
	// Connect establishes the connection. Calling it again is a no-op.
	Connect(ctx context.Context) error
	// Emit sends an event without waiting for any acknowledgement.
	Emit(event protocol.MessageType, payload interface{}) error
	// On registers a handler. Handlers run on the client's execution context
	// in the order events arrive.
	On(event protocol.MessageType, h Handler)
	// JoinRoom and LeaveRoom ask the server to scope broadcasts. They are
	// not acknowledged.
	JoinRoom(room string) error
	LeaveRoom(room string) error
	Close() error
}

const (
	readTimeout  = 60 * time.Second
	pingInterval = 30 * time.Second
	writeTimeout = 10 * time.Second
)

// WebSocketURL derives the realtime endpoint from a server base URL such as
// "http://localhost:8080" or "https://mindcare.tailnet.ts.net".
func WebSocketURL(base string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(base))
	if err != nil {
		return "", fmt.Errorf("invalid server url: %w", err)
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("invalid server url %q", base)
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/ws"
	return u.String(), nil
}

// WSChannel is a RealtimeChannel over a WebSocket. A dropped connection is
// redialed with capped exponential backoff and the current room is joined
// again.
type WSChannel struct {
	url    string
	header http.Header
	dialer *websocket.Dialer
	sched  Scheduler
	log    *zap.Logger

	minBackoff time.Duration
	maxBackoff time.Duration

	mu       sync.Mutex
	started  bool
	closed   bool
	cancel   context.CancelFunc
	conn     *websocket.Conn
	send     chan []byte // nil while disconnected
	room     string
	handlers map[protocol.MessageType][]Handler
}

// NewWSChannel creates a channel to wsURL. Handlers are posted to sched.
func NewWSChannel(wsURL string, header http.Header, sched Scheduler, log *zap.Logger) *WSChannel {
	return &WSChannel{
		url:        wsURL,
		header:     header,
		dialer:     websocket.DefaultDialer,
		sched:      sched,
		log:        log,
		minBackoff: 500 * time.Millisecond,
		maxBackoff: 10 * time.Second,
		handlers:   make(map[protocol.MessageType][]Handler),
	}
}

// SetDialer replaces the WebSocket dialer, e.g. with one dialing through tsnet.
func (c *WSChannel) SetDialer(d *websocket.Dialer) {
	c.mu.Lock()
	c.dialer = d
	c.mu.Unlock()
}

// Connect implements RealtimeChannel.
func (c *WSChannel) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.started {
		c.mu.Unlock()
		return nil
	}
	c.started = true
	runCtx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.mu.Unlock()

	conn, err := c.dial(ctx)
	if err != nil {
		cancel()
		c.mu.Lock()
		c.started = false
		c.mu.Unlock()
		return err
	}

	go c.run(runCtx, conn)
	return nil
}

func (c *WSChannel) dial(ctx context.Context) (*websocket.Conn, error) {
	c.mu.Lock()
	dialer := c.dialer
	c.mu.Unlock()

	conn, _, err := dialer.DialContext(ctx, c.url, c.header)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", c.url, err)
	}
	return conn, nil
}

// run serves connections until the channel is closed.
func (c *WSChannel) run(ctx context.Context, conn *websocket.Conn) {
	for {
		c.serve(conn)
		if ctx.Err() != nil {
			return
		}
		c.log.Warn("realtime connection lost, reconnecting", zap.String("url", c.url))

		conn = c.redial(ctx)
		if conn == nil {
			return
		}
		c.log.Info("realtime connection restored", zap.String("url", c.url))
	}
}

func (c *WSChannel) redial(ctx context.Context) *websocket.Conn {
	delay := c.minBackoff
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}

		conn, err := c.dial(ctx)
		if err == nil {
			return conn
		}
		c.log.Debug("reconnect failed", zap.Duration("backoff", delay), zap.Error(err))

		delay *= 2
		if delay > c.maxBackoff {
			delay = c.maxBackoff
		}
	}
}

// serve runs the pumps of one connection and returns when it drops.
func (c *WSChannel) serve(conn *websocket.Conn) {
	send := make(chan []byte, 64)
	done := make(chan struct{})

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		conn.Close()
		return
	}
	c.conn = conn
	c.send = send
	room := c.room
	c.mu.Unlock()

	// A fresh connection is in no room on the server.
	if room != "" {
		if data, err := protocol.Marshal(protocol.TypeJoinRoom, protocol.RoomMessage{Room: room}); err == nil {
			send <- data
		}
	}

	go c.writePump(conn, send, done)
	c.readPump(conn)
	close(done)

	c.mu.Lock()
	if c.conn == conn {
		c.conn = nil
		c.send = nil
	}
	c.mu.Unlock()
	conn.Close()
}

func (c *WSChannel) readPump(conn *websocket.Conn) {
	conn.SetReadLimit(65536)
	conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(readTimeout))
		return nil
	})

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Debug("websocket read error", zap.Error(err))
			}
			return
		}
		c.dispatch(message)
	}
}

func (c *WSChannel) writePump(conn *websocket.Conn, send <-chan []byte, done <-chan struct{}) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case message := <-send:
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-done:
			return
		}
	}
}

// dispatch posts the handlers of one event to the scheduler.
func (c *WSChannel) dispatch(data []byte) {
	env, err := protocol.ParseEnvelope(data)
	if err != nil {
		c.log.Warn("failed to parse realtime message", zap.Error(err))
		return
	}

	c.mu.Lock()
	handlers := append([]Handler(nil), c.handlers[env.Type]...)
	c.mu.Unlock()

	if len(handlers) == 0 {
		c.log.Debug("unhandled realtime event", zap.String("type", string(env.Type)))
		return
	}
	payload := env.Data
	c.sched.Post(func() {
		for _, h := range handlers {
			h(payload)
		}
	})
}

// Emit implements RealtimeChannel.
func (c *WSChannel) Emit(event protocol.MessageType, payload interface{}) error {
	data, err := protocol.Marshal(event, payload)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if c.send == nil {
		return ErrNotConnected
	}
	select {
	case c.send <- data:
		return nil
	default:
		return ErrBufferFull
	}
}

// On implements RealtimeChannel.
func (c *WSChannel) On(event protocol.MessageType, h Handler) {
	c.mu.Lock()
	c.handlers[event] = append(c.handlers[event], h)
	c.mu.Unlock()
}

// JoinRoom implements RealtimeChannel. While disconnected the room is only
// remembered; it is joined when the connection comes back. A join dropped on a
// live connection returns ErrBufferFull and is not retried.
func (c *WSChannel) JoinRoom(room string) error {
	c.mu.Lock()
	c.room = room
	c.mu.Unlock()

	err := c.Emit(protocol.TypeJoinRoom, protocol.RoomMessage{Room: room})
	if errors.Is(err, ErrNotConnected) {
		return nil
	}
	return err
}

// LeaveRoom implements RealtimeChannel.
func (c *WSChannel) LeaveRoom(room string) error {
	c.mu.Lock()
	if c.room == room {
		c.room = ""
	}
	c.mu.Unlock()

	err := c.Emit(protocol.TypeLeaveRoom, protocol.RoomMessage{Room: room})
	if errors.Is(err, ErrNotConnected) {
		// A new connection starts outside every room.
		return nil
	}
	return err
}

// Room returns the room the channel will rejoin after a reconnect.
func (c *WSChannel) Room() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.room
}

// Connected reports whether a connection is currently up.
func (c *WSChannel) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.send != nil
}

// Close implements RealtimeChannel.
func (c *WSChannel) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	cancel := c.cancel
	conn := c.conn
	c.send = nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeTimeout))
		return conn.Close()
	}
	return nil
}
