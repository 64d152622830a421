package server

import (
	"testing"
	"time"

	"github.com/MattCruikshank/mindcare/internal/models"
	"github.com/MattCruikshank/mindcare/internal/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newRunningHub(t *testing.T) *Hub {
	t.Helper()
	hub := NewHub(zap.NewNop(), NewMetrics())
	go hub.Run()
	t.Cleanup(hub.Shutdown)
	return hub
}

func drain(c *Client) []protocol.MessageType {
	var got []protocol.MessageType
	for {
		select {
		case raw := <-c.send:
			env, err := protocol.ParseEnvelope(raw)
			if err == nil {
				got = append(got, env.Type)
			}
		case <-time.After(100 * time.Millisecond):
			return got
		}
	}
}

func TestJoinReplacesPreviousRoom(t *testing.T) {
	hub := newRunningHub(t)
	c := hub.NewClient(nil, &models.User{DisplayName: "Asha"})
	hub.Register(c)

	hub.Join(c, "thread_1")
	hub.Join(c, "thread_2")
	assert.Equal(t, "thread_2", c.Room())
	assert.Zero(t, hub.RoomSize("thread_1"))
	assert.Equal(t, 1, hub.RoomSize("thread_2"))

	// Leaving a room the client is not in changes nothing.
	hub.Leave(c, "thread_1")
	assert.Equal(t, "thread_2", c.Room())

	hub.Leave(c, "thread_2")
	assert.Empty(t, c.Room())
	assert.Zero(t, hub.RoomSize("thread_2"))
}

func TestBroadcastScopes(t *testing.T) {
	hub := newRunningHub(t)
	lobby := hub.NewClient(nil, &models.User{})
	member := hub.NewClient(nil, &models.User{})
	outsider := hub.NewClient(nil, &models.User{})
	for _, c := range []*Client{lobby, member, outsider} {
		hub.Register(c)
	}
	hub.Join(member, "thread_1")
	hub.Join(outsider, "thread_2")

	hub.BroadcastReply(&models.Reply{ID: 1, ThreadID: 1, Author: "Ben", Text: "hi"})
	hub.BroadcastThread(&models.Thread{ID: 3, Title: "New"})

	reply, created := protocol.TypeReplyCreated, protocol.TypeThreadCreated
	assert.Equal(t, []protocol.MessageType{reply, created}, drain(lobby))
	assert.Equal(t, []protocol.MessageType{reply, created}, drain(member))
	assert.Equal(t, []protocol.MessageType{created}, drain(outsider))
}

func TestUnregisterRemovesMembership(t *testing.T) {
	hub := newRunningHub(t)
	c := hub.NewClient(nil, &models.User{})
	hub.Register(c)
	hub.Join(c, "thread_5")

	hub.Unregister(c)
	require.Eventually(t, func() bool { return hub.ClientCount() == 0 }, time.Second, 5*time.Millisecond)
	assert.Zero(t, hub.RoomSize("thread_5"))

	_, open := <-c.send
	assert.False(t, open)
}
