package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MattCruikshank/mindcare/internal/models"
	"github.com/MattCruikshank/mindcare/internal/protocol"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// wsServer accepts realtime connections and records what clients send.
type wsServer struct {
	srv      *httptest.Server
	accepted int32
	conns    chan *websocket.Conn
	received chan *protocol.Envelope
}

func newWSServer(t *testing.T) *wsServer {
	t.Helper()
	s := &wsServer{
		conns:    make(chan *websocket.Conn, 8),
		received: make(chan *protocol.Envelope, 64),
	}
	up := websocket.Upgrader{}
	s.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		atomic.AddInt32(&s.accepted, 1)
		s.conns <- conn
		for {
			_, raw, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if env, err := protocol.ParseEnvelope(raw); err == nil {
				s.received <- env
			}
		}
	}))
	t.Cleanup(s.srv.Close)
	return s
}

func (s *wsServer) url(t *testing.T) string {
	u, err := WebSocketURL(s.srv.URL)
	require.NoError(t, err)
	return u
}

func (s *wsServer) nextConn(t *testing.T) *websocket.Conn {
	t.Helper()
	select {
	case c := <-s.conns:
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("no connection")
		return nil
	}
}

func (s *wsServer) nextEvent(t *testing.T) *protocol.Envelope {
	t.Helper()
	select {
	case env := <-s.received:
		return env
	case <-time.After(2 * time.Second):
		t.Fatal("no event")
		return nil
	}
}

func newTestChannel(t *testing.T, url string, sched Scheduler) *WSChannel {
	t.Helper()
	ch := NewWSChannel(url, nil, sched, zap.NewNop())
	ch.minBackoff = 10 * time.Millisecond
	ch.maxBackoff = 50 * time.Millisecond
	t.Cleanup(func() { ch.Close() })
	return ch
}

func runLoop(t *testing.T) *Loop {
	t.Helper()
	loop := NewLoop(16)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go loop.Run(ctx)
	return loop
}

func TestWebSocketURL(t *testing.T) {
	u, err := WebSocketURL("http://localhost:8080")
	require.NoError(t, err)
	assert.Equal(t, "ws://localhost:8080/ws", u)

	u, err = WebSocketURL("https://mindcare.example.ts.net/")
	require.NoError(t, err)
	assert.Equal(t, "wss://mindcare.example.ts.net/ws", u)

	_, err = WebSocketURL("ftp://example.com")
	assert.Error(t, err)
}

func TestConnectIsIdempotent(t *testing.T) {
	srv := newWSServer(t)
	ch := newTestChannel(t, srv.url(t), runLoop(t))

	require.NoError(t, ch.Connect(context.Background()))
	require.NoError(t, ch.Connect(context.Background()))
	srv.nextConn(t)

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int32(1), atomic.LoadInt32(&srv.accepted))
}

func TestEmitBeforeConnect(t *testing.T) {
	ch := NewWSChannel("ws://127.0.0.1:1/ws", nil, NewLoop(1), zap.NewNop())
	assert.ErrorIs(t, ch.Emit(protocol.TypeNewThread, protocol.NewThreadMessage{}), ErrNotConnected)

	// Joining while down is remembered, not an error.
	assert.NoError(t, ch.JoinRoom("thread_1"))
	assert.Equal(t, "thread_1", ch.Room())
}

func TestJoinWithFullSendBufferReportsError(t *testing.T) {
	ch := NewWSChannel("ws://127.0.0.1:1/ws", nil, NewLoop(1), zap.NewNop())
	// A live connection whose writer is stuck.
	ch.send = make(chan []byte)

	err := ch.JoinRoom("thread_1")
	assert.ErrorIs(t, err, ErrBufferFull)
	assert.NotErrorIs(t, err, ErrNotConnected)
	assert.Equal(t, "thread_1", ch.Room())

	assert.ErrorIs(t, ch.Emit(protocol.TypeNewReply, protocol.NewReplyMessage{ThreadID: 1, Text: "hi"}), ErrBufferFull)
}

func TestHandlersRunInArrivalOrder(t *testing.T) {
	srv := newWSServer(t)
	ch := newTestChannel(t, srv.url(t), runLoop(t))

	got := make(chan int64, 8)
	ch.On(protocol.TypeThreadCreated, func(data json.RawMessage) {
		var th models.Thread
		if json.Unmarshal(data, &th) == nil {
			got <- th.ID
		}
	})
	require.NoError(t, ch.Connect(context.Background()))
	conn := srv.nextConn(t)

	for id := int64(1); id <= 3; id++ {
		raw, err := protocol.Marshal(protocol.TypeThreadCreated, models.Thread{ID: id})
		require.NoError(t, err)
		require.NoError(t, conn.WriteMessage(websocket.TextMessage, raw))
	}

	for want := int64(1); want <= 3; want++ {
		select {
		case id := <-got:
			assert.Equal(t, want, id)
		case <-time.After(2 * time.Second):
			t.Fatal("handler not called")
		}
	}
}

func TestEmitAndRooms(t *testing.T) {
	srv := newWSServer(t)
	ch := newTestChannel(t, srv.url(t), runLoop(t))
	require.NoError(t, ch.Connect(context.Background()))
	srv.nextConn(t)

	require.NoError(t, ch.JoinRoom("thread_4"))
	require.NoError(t, ch.Emit(protocol.TypeNewReply, protocol.NewReplyMessage{ThreadID: 4, Text: "hi"}))
	require.NoError(t, ch.LeaveRoom("thread_4"))

	assert.Equal(t, protocol.TypeJoinRoom, srv.nextEvent(t).Type)
	reply := srv.nextEvent(t)
	assert.Equal(t, protocol.TypeNewReply, reply.Type)
	assert.JSONEq(t, `{"thread_id":4,"text":"hi"}`, string(reply.Data))
	assert.Equal(t, protocol.TypeLeaveRoom, srv.nextEvent(t).Type)
	assert.Empty(t, ch.Room())
}

func TestReconnectRejoinsRoom(t *testing.T) {
	srv := newWSServer(t)
	ch := newTestChannel(t, srv.url(t), runLoop(t))
	require.NoError(t, ch.Connect(context.Background()))
	first := srv.nextConn(t)

	require.NoError(t, ch.JoinRoom("thread_9"))
	assert.Equal(t, protocol.TypeJoinRoom, srv.nextEvent(t).Type)

	first.Close()
	srv.nextConn(t)

	env := srv.nextEvent(t)
	require.Equal(t, protocol.TypeJoinRoom, env.Type)
	var msg protocol.RoomMessage
	require.NoError(t, json.Unmarshal(env.Data, &msg))
	assert.Equal(t, "thread_9", msg.Room)
	require.Eventually(t, ch.Connected, 2*time.Second, 10*time.Millisecond)
}

func TestCloseStopsChannel(t *testing.T) {
	srv := newWSServer(t)
	ch := newTestChannel(t, srv.url(t), runLoop(t))
	require.NoError(t, ch.Connect(context.Background()))
	srv.nextConn(t)

	require.NoError(t, ch.Close())
	assert.ErrorIs(t, ch.Emit(protocol.TypeJoinRoom, protocol.RoomMessage{Room: "thread_1"}), ErrClosed)
	assert.ErrorIs(t, ch.Connect(context.Background()), ErrClosed)

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int32(1), atomic.LoadInt32(&srv.accepted))
}

func TestLoopStopsAcceptingAfterRun(t *testing.T) {
	loop := NewLoop(0)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error)
	go func() { done <- loop.Run(ctx) }()

	ran := make(chan struct{})
	loop.Post(func() { close(ran) })
	<-ran

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
	// Must not block once the loop is gone.
	loop.Post(func() {})
}

