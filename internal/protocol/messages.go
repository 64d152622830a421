package protocol

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/MattCruikshank/mindcare/internal/models"
)

// MessageType identifies the type of WebSocket message.
type MessageType string

const (
	// Client -> Server
	TypeNewThread MessageType = "new_thread"
	TypeNewReply  MessageType = "new_reply"
	TypeJoinRoom  MessageType = "join_room"
	TypeLeaveRoom MessageType = "leave_room"

	// Server -> Client
	TypeThreadCreated MessageType = "thread_created"
	TypeReplyCreated  MessageType = "reply_created"
	TypeError         MessageType = "error"
)

// Envelope wraps all WebSocket messages with a type field.
type Envelope struct {
	Type MessageType     `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// NewThreadMessage is sent by the client to open a new thread.
type NewThreadMessage struct {
	Title    string `json:"title"`
	Category string `json:"category"`
	Message  string `json:"message"`
}

// NewReplyMessage is sent by the client to reply to a thread.
type NewReplyMessage struct {
	ThreadID int64  `json:"thread_id"`
	Text     string `json:"text"`
}

// RoomMessage is sent by the client to join or leave a room.
type RoomMessage struct {
	Room string `json:"room"`
}

// ThreadCreatedMessage is broadcast when a thread is created.
type ThreadCreatedMessage = models.Thread

// ReplyCreatedMessage is broadcast when a reply is created.
type ReplyCreatedMessage = models.Reply

// ErrorMessage is sent by the server when an error occurs.
type ErrorMessage struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error codes
const (
	ErrCodeNotFound    = "not_found"
	ErrCodeInvalidMsg  = "invalid_message"
	ErrCodeRateLimited = "rate_limited"
	ErrCodeInternal    = "internal_error"
)

const roomPrefix = "thread_"

// RoomForThread returns the broadcast room of a thread's detail view.
func RoomForThread(threadID int64) string {
	return roomPrefix + strconv.FormatInt(threadID, 10)
}

// ParseRoom extracts the thread id from a room name like "thread_42".
func ParseRoom(room string) (int64, error) {
	if !strings.HasPrefix(room, roomPrefix) {
		return 0, fmt.Errorf("invalid room %q", room)
	}
	id, err := strconv.ParseInt(strings.TrimPrefix(room, roomPrefix), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid room %q", room)
	}
	return id, nil
}

// NewEnvelope creates an envelope with the given type and data.
func NewEnvelope(msgType MessageType, data interface{}) (*Envelope, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return &Envelope{
		Type: msgType,
		Data: raw,
	}, nil
}

// Marshal encodes an envelope of the given type and data to wire bytes.
func Marshal(msgType MessageType, data interface{}) ([]byte, error) {
	env, err := NewEnvelope(msgType, data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(env)
}

// ParseEnvelope parses a JSON message into an envelope.
func ParseEnvelope(data []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, err
	}
	if env.Type == "" {
		return nil, fmt.Errorf("missing message type")
	}
	return &env, nil
}
