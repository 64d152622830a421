package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/MattCruikshank/mindcare/internal/auth"
	"github.com/MattCruikshank/mindcare/internal/db"
	"github.com/MattCruikshank/mindcare/internal/models"
	"go.uber.org/zap"
)

// HighRiskScore is the screening total at which the dashboard raises an alert.
const HighRiskScore = 15

const maxAlerts = 5

// AdminHandler handles admin API requests.
type AdminHandler struct {
	db       *db.ServerDB
	hub      *Hub
	sessions *auth.AdminSessions
	log      *zap.Logger
}

// NewAdminHandler creates a new admin handler.
func NewAdminHandler(database *db.ServerDB, hub *Hub, sessions *auth.AdminSessions, log *zap.Logger) *AdminHandler {
	return &AdminHandler{
		db:       database,
		hub:      hub,
		sessions: sessions,
		log:      log,
	}
}

// HandleLogin exchanges admin credentials for a bearer token.
func (a *AdminHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	token, err := a.sessions.Login(req.Username, req.Password)
	if errors.Is(err, auth.ErrInvalidCredentials) {
		a.log.Warn("admin login rejected", zap.String("user", req.Username))
		writeError(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

// HandleLogout ends the caller's admin session.
func (a *AdminHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	a.sessions.Logout(auth.BearerToken(r))
	w.WriteHeader(http.StatusNoContent)
}

// HandleAnalytics returns the dashboard snapshot.
func (a *AdminHandler) HandleAnalytics(w http.ResponseWriter, r *http.Request) {
	stats, err := a.Analytics()
	if err != nil {
		a.log.Error("failed to compute analytics", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to load analytics")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// Analytics aggregates the dashboard numbers and alerts.
func (a *AdminHandler) Analytics() (*models.Analytics, error) {
	counts, err := a.db.GetCounts()
	if err != nil {
		return nil, fmt.Errorf("failed to count: %w", err)
	}
	risky, err := a.db.RecentScreenings(HighRiskScore, maxAlerts)
	if err != nil {
		return nil, fmt.Errorf("failed to load screenings: %w", err)
	}

	alerts := make([]models.Alert, 0, len(risky)+1)
	for _, s := range risky {
		alerts = append(alerts, models.Alert{
			Level:   "high",
			Title:   "High Risk Student Detected",
			Details: fmt.Sprintf("%s score of %d requires immediate follow-up.", screeningLabel(s.Type), s.Total),
		})
	}
	if counts.CrisisFlags > 0 {
		alerts = append(alerts, models.Alert{
			Level:   "warning",
			Title:   "Crisis Conversations Recorded",
			Details: fmt.Sprintf("%d chat conversations triggered the crisis helpline response.", counts.CrisisFlags),
		})
	}

	return &models.Analytics{
		TotalUsers:          counts.Authors,
		ActiveSessions:      a.hub.ClientCount(),
		CompletedScreenings: counts.Screenings,
		CounselorBookings:   counts.Bookings,
		ForumPosts:          counts.Threads + counts.Replies,
		CrisisInterventions: counts.CrisisFlags,
		Alerts:              alerts,
	}, nil
}

func screeningLabel(t models.ScreeningType) string {
	switch t {
	case models.ScreeningPHQ9:
		return "PHQ-9"
	case models.ScreeningGAD7:
		return "GAD-7"
	}
	return string(t)
}
