package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/MattCruikshank/mindcare/internal/auth"
	"github.com/MattCruikshank/mindcare/internal/booking"
	"github.com/MattCruikshank/mindcare/internal/catalog"
	"github.com/MattCruikshank/mindcare/internal/chat"
	"github.com/MattCruikshank/mindcare/internal/db"
	"github.com/MattCruikshank/mindcare/internal/models"
	"github.com/MattCruikshank/mindcare/internal/protocol"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Limits on user supplied forum content.
const (
	MaxTitleRunes    = 200
	MaxMessageRunes  = 10000
	MaxCategoryRunes = 64
)

const (
	readTimeout  = 60 * time.Second
	pingInterval = 30 * time.Second
	writeTimeout = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Deps are the components a Server is assembled from.
type Deps struct {
	DB       *db.ServerDB
	Hub      *Hub
	Resolver auth.Resolver
	Catalog  *catalog.Catalog
	Chat     *chat.Service
	Admin    *auth.AdminSessions
	Metrics  *Metrics
	Log      *zap.Logger
}

// Server holds the server's dependencies.
type Server struct {
	hub      *Hub
	db       *db.ServerDB
	resolver auth.Resolver
	catalog  *catalog.Catalog
	chat     *chat.Service
	bookings *booking.Service
	admin    *auth.AdminSessions
	metrics  *Metrics
	log      *zap.Logger
}

// NewServer creates a new server instance.
func NewServer(d Deps) *Server {
	return &Server{
		hub:      d.Hub,
		db:       d.DB,
		resolver: d.Resolver,
		catalog:  d.Catalog,
		chat:     d.Chat,
		bookings: booking.NewService(d.DB, d.Catalog),
		admin:    d.Admin,
		metrics:  d.Metrics,
		log:      d.Log,
	}
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// HandleWebSocket handles WebSocket connections.
func (s *Server) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	user, err := s.resolver.GetUser(r.Context(), r)
	if err != nil {
		s.log.Warn("auth failed", zap.Error(err))
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	client := s.hub.NewClient(conn, user)
	s.hub.Register(client)

	go s.writePump(client)
	s.readPump(client)
}

func (s *Server) readPump(client *Client) {
	defer func() {
		s.hub.Unregister(client)
		client.Conn().Close()
	}()

	client.Conn().SetReadLimit(65536)
	client.Conn().SetReadDeadline(time.Now().Add(readTimeout))
	client.Conn().SetPongHandler(func(string) error {
		client.Conn().SetReadDeadline(time.Now().Add(readTimeout))
		return nil
	})

	for {
		_, message, err := client.Conn().ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				s.log.Info("websocket error", zap.String("client", client.id), zap.Error(err))
			}
			break
		}

		s.handleMessage(client, message)
	}
}

func (s *Server) writePump(client *Client) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		client.Conn().Close()
	}()

	for {
		select {
		case message, ok := <-client.SendChan():
			client.Conn().SetWriteDeadline(time.Now().Add(writeTimeout))
			if !ok {
				client.Conn().WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := client.Conn().WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			client.Conn().SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := client.Conn().WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (s *Server) handleMessage(client *Client, data []byte) {
	env, err := protocol.ParseEnvelope(data)
	if err != nil {
		client.SendError(protocol.ErrCodeInvalidMsg, "Invalid message format")
		return
	}
	s.metrics.Events.WithLabelValues(string(env.Type)).Inc()

	switch env.Type {
	case protocol.TypeNewThread:
		var msg protocol.NewThreadMessage
		if err := json.Unmarshal(env.Data, &msg); err != nil {
			client.SendError(protocol.ErrCodeInvalidMsg, "Invalid new_thread")
			return
		}
		s.handleNewThread(client, &msg)

	case protocol.TypeNewReply:
		var msg protocol.NewReplyMessage
		if err := json.Unmarshal(env.Data, &msg); err != nil {
			client.SendError(protocol.ErrCodeInvalidMsg, "Invalid new_reply")
			return
		}
		s.handleNewReply(client, &msg)

	case protocol.TypeJoinRoom, protocol.TypeLeaveRoom:
		var msg protocol.RoomMessage
		if err := json.Unmarshal(env.Data, &msg); err != nil {
			client.SendError(protocol.ErrCodeInvalidMsg, "Invalid room message")
			return
		}
		if _, err := protocol.ParseRoom(msg.Room); err != nil {
			client.SendError(protocol.ErrCodeInvalidMsg, "Invalid room")
			return
		}
		if env.Type == protocol.TypeJoinRoom {
			s.hub.Join(client, msg.Room)
		} else {
			s.hub.Leave(client, msg.Room)
		}

	default:
		client.SendError(protocol.ErrCodeInvalidMsg, "Unknown message type")
	}
}

func (s *Server) handleNewThread(client *Client, msg *protocol.NewThreadMessage) {
	title := strings.TrimSpace(msg.Title)
	category := strings.TrimSpace(msg.Category)
	message := strings.TrimSpace(msg.Message)

	switch {
	case title == "" || category == "" || message == "":
		client.SendError(protocol.ErrCodeInvalidMsg, "Please fill in all fields.")
		return
	case utf8.RuneCountInString(title) > MaxTitleRunes:
		client.SendError(protocol.ErrCodeInvalidMsg, "Title is too long")
		return
	case utf8.RuneCountInString(category) > MaxCategoryRunes:
		client.SendError(protocol.ErrCodeInvalidMsg, "Category is too long")
		return
	case utf8.RuneCountInString(message) > MaxMessageRunes:
		client.SendError(protocol.ErrCodeInvalidMsg, "Message is too long")
		return
	}

	thread, err := s.db.CreateThread(client.User().Name(), title, category, message)
	if err != nil {
		s.log.Error("failed to create thread", zap.Error(err))
		client.SendError(protocol.ErrCodeInternal, "Failed to save thread")
		return
	}
	s.log.Info("thread created", zap.Int64("thread", thread.ID), zap.String("author", thread.Author))

	s.hub.BroadcastThread(thread)
}

func (s *Server) handleNewReply(client *Client, msg *protocol.NewReplyMessage) {
	text := strings.TrimSpace(msg.Text)
	if text == "" {
		client.SendError(protocol.ErrCodeInvalidMsg, "Reply text is required")
		return
	}
	if utf8.RuneCountInString(text) > MaxMessageRunes {
		client.SendError(protocol.ErrCodeInvalidMsg, "Reply is too long")
		return
	}

	reply, err := s.db.CreateReply(msg.ThreadID, client.User().Name(), text)
	if errors.Is(err, db.ErrNotFound) {
		client.SendError(protocol.ErrCodeNotFound, "Thread not found")
		return
	}
	if err != nil {
		s.log.Error("failed to create reply", zap.Int64("thread", msg.ThreadID), zap.Error(err))
		client.SendError(protocol.ErrCodeInternal, "Failed to save reply")
		return
	}

	s.hub.BroadcastReply(reply)
}

// HandleThreads lists thread summaries, newest first.
func (s *Server) HandleThreads(w http.ResponseWriter, r *http.Request) {
	threads, err := s.db.GetThreads()
	if err != nil {
		s.log.Error("failed to list threads", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to load threads")
		return
	}
	writeJSON(w, http.StatusOK, threads)
}

// HandleThread returns a thread with its replies, oldest first.
func (s *Server) HandleThread(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "Invalid thread ID")
		return
	}

	thread, err := s.db.GetThread(id)
	if errors.Is(err, db.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Thread not found")
		return
	}
	if err != nil {
		s.log.Error("failed to get thread", zap.Int64("thread", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to load thread")
		return
	}

	replies, err := s.db.GetReplies(id)
	if err != nil {
		s.log.Error("failed to get replies", zap.Int64("thread", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to load thread")
		return
	}

	writeJSON(w, http.StatusOK, models.ThreadDetail{Thread: *thread, Replies: replies})
}

// HandleHealth reports liveness.
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "ok",
		"clients": s.hub.ClientCount(),
	})
}
