package server

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/MattCruikshank/mindcare/internal/auth"
	"github.com/MattCruikshank/mindcare/internal/booking"
	"github.com/MattCruikshank/mindcare/internal/chat"
	"github.com/MattCruikshank/mindcare/internal/models"
	"github.com/MattCruikshank/mindcare/internal/screening"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// HandleChat answers a message to the chat assistant.
func (s *Server) HandleChat(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Message string `json:"message"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	resp, err := s.chat.Respond(r.Context(), callerID(r), req.Message)
	switch {
	case errors.Is(err, chat.ErrEmptyMessage):
		s.metrics.ChatRequests.WithLabelValues("empty").Inc()
		writeError(w, http.StatusBadRequest, "Empty message received.")
	case errors.Is(err, chat.ErrRateLimited):
		s.metrics.ChatRequests.WithLabelValues("rate_limited").Inc()
		writeError(w, http.StatusTooManyRequests, "Too many messages. Please slow down.")
	case errors.Is(err, chat.ErrUnavailable):
		s.metrics.ChatRequests.WithLabelValues("unavailable").Inc()
		writeError(w, http.StatusInternalServerError, "AI model is not available.")
	case err != nil:
		s.metrics.ChatRequests.WithLabelValues("error").Inc()
		s.log.Error("chat failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, chat.ErrorResponse)
	default:
		s.metrics.ChatRequests.WithLabelValues("ok").Inc()
		writeJSON(w, http.StatusOK, map[string]string{"response": resp})
	}
}

// callerID keys chat rate limits: the tailnet user when there is one, else the
// remote host, since asserted identities are per request.
func callerID(r *http.Request) string {
	if u := auth.UserFromContext(r.Context()); u != nil && u.ID != "" && !strings.HasPrefix(u.ID, auth.AnonymousIDPrefix) {
		return "user:" + u.ID
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// HandleCounselors lists the counselor catalog.
func (s *Server) HandleCounselors(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.catalog.Counselors)
}

// HandleCounselorSlots lists a counselor's slots on ?date=YYYY-MM-DD.
func (s *Server) HandleCounselorSlots(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid counselor ID")
		return
	}

	slots, err := s.bookings.Slots(id, r.URL.Query().Get("date"))
	if err != nil {
		s.writeBookingError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, slots)
}

// HandleBookings creates a counselor booking.
func (s *Server) HandleBookings(w http.ResponseWriter, r *http.Request) {
	var req booking.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		if u := auth.UserFromContext(r.Context()); u != nil && (u.DisplayName != "" || u.LoginName != "") {
			req.Name = u.Name()
		}
	}

	b, err := s.bookings.Book(req)
	if err != nil {
		s.writeBookingError(w, err)
		return
	}
	s.log.Info("booking created", zap.Int64("booking", b.ID), zap.Int("counselor", b.CounselorID),
		zap.String("date", b.Date), zap.String("time", b.Time))
	writeJSON(w, http.StatusCreated, b)
}

func (s *Server) writeBookingError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, booking.ErrUnknownCounselor):
		writeError(w, http.StatusNotFound, "Counselor not found")
	case errors.Is(err, booking.ErrSlotTaken):
		writeError(w, http.StatusConflict, "That time slot is already booked")
	case errors.Is(err, booking.ErrInvalidDate),
		errors.Is(err, booking.ErrPastDate),
		errors.Is(err, booking.ErrInvalidSlot),
		errors.Is(err, booking.ErrMissingName):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		s.log.Error("booking failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to book session")
	}
}

// HandleResources filters the resource library by ?category, ?language and ?q.
func (s *Server) HandleResources(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	writeJSON(w, http.StatusOK, s.catalog.FilterResources(models.ResourceFilter{
		Category: q.Get("category"),
		Language: q.Get("language"),
		Search:   q.Get("q"),
	}))
}

// HandleCoping lists the coping strategies.
func (s *Server) HandleCoping(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.catalog.Coping)
}

// HandleQuestionBank returns the questions and answer options of a screening.
func (s *Server) HandleQuestionBank(w http.ResponseWriter, r *http.Request) {
	typ := models.ScreeningType(mux.Vars(r)["type"])
	bank, ok := s.catalog.QuestionBank(typ)
	if !ok {
		writeError(w, http.StatusNotFound, "Unknown screening")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"type":      typ,
		"title":     bank.Title,
		"questions": bank.Questions,
		"options":   s.catalog.AnswerOptions,
	})
}

// HandleScreenings scores and records a completed screening.
func (s *Server) HandleScreenings(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Type    models.ScreeningType `json:"type"`
		Answers []int                `json:"answers"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	bank, ok := s.catalog.QuestionBank(req.Type)
	if !ok {
		writeError(w, http.StatusNotFound, "Unknown screening")
		return
	}
	result, err := screening.Score(req.Type, len(bank.Questions), req.Answers)
	if errors.Is(err, screening.ErrUnknownType) {
		writeError(w, http.StatusNotFound, "Unknown screening")
		return
	}
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := s.db.SaveScreening(result); err != nil {
		s.log.Error("failed to save screening", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to save screening")
		return
	}
	if result.SuggestBooking {
		result.FollowUp += " " + screening.BookingPrompt
	}
	writeJSON(w, http.StatusOK, result)
}
