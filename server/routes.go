package server

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/MattCruikshank/mindcare/internal/auth"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// Routes builds the HTTP handler for the API, the WebSocket endpoint and metrics.
func (s *Server) Routes() http.Handler {
	admin := NewAdminHandler(s.db, s.hub, s.admin, s.log.Named("admin"))

	r := mux.NewRouter()
	r.Use(s.logRequests)

	r.HandleFunc("/ws", s.HandleWebSocket)
	r.HandleFunc("/health", s.HandleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", s.metrics.Handler()).Methods(http.MethodGet)
	r.Handle("/chat", auth.Middleware(s.resolver, http.HandlerFunc(s.HandleChat))).Methods(http.MethodPost)

	api := r.PathPrefix("/api").Subrouter()
	api.Use(func(next http.Handler) http.Handler {
		return auth.Middleware(s.resolver, next)
	})
	api.HandleFunc("/threads", s.HandleThreads).Methods(http.MethodGet)
	api.HandleFunc("/thread/{id}", s.HandleThread).Methods(http.MethodGet)
	api.HandleFunc("/counselors", s.HandleCounselors).Methods(http.MethodGet)
	api.HandleFunc("/counselors/{id}/slots", s.HandleCounselorSlots).Methods(http.MethodGet)
	api.HandleFunc("/bookings", s.HandleBookings).Methods(http.MethodPost)
	api.HandleFunc("/resources", s.HandleResources).Methods(http.MethodGet)
	api.HandleFunc("/coping", s.HandleCoping).Methods(http.MethodGet)
	api.HandleFunc("/screenings", s.HandleScreenings).Methods(http.MethodPost)
	api.HandleFunc("/screenings/{type}", s.HandleQuestionBank).Methods(http.MethodGet)

	api.HandleFunc("/admin/login", admin.HandleLogin).Methods(http.MethodPost)
	api.HandleFunc("/admin/logout", admin.HandleLogout).Methods(http.MethodPost)
	api.Handle("/admin/analytics", s.admin.Require(http.HandlerFunc(admin.HandleAnalytics))).Methods(http.MethodGet)

	return r
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Hijack lets the WebSocket upgrader take over the connection.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	return h.Hijack()
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		elapsed := time.Since(start)

		route := r.URL.Path
		if cur := mux.CurrentRoute(r); cur != nil {
			if tpl, err := cur.GetPathTemplate(); err == nil {
				route = tpl
			}
		}
		s.metrics.HTTPRequests.WithLabelValues(route, r.Method, strconv.Itoa(rec.status)).Observe(elapsed.Seconds())

		if route == "/ws" {
			return
		}
		s.log.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("latency", elapsed))
	})
}
