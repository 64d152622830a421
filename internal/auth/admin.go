package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// DemoAdminPassword is accepted when no password hash is configured.
const DemoAdminPassword = "demo123"

// ErrInvalidCredentials is returned for a wrong admin username or password.
var ErrInvalidCredentials = errors.New("invalid credentials")

// AdminSessions checks admin credentials and tracks bearer sessions.
type AdminSessions struct {
	user string
	hash []byte
	ttl  time.Duration
	now  func() time.Time

	mu       sync.Mutex
	sessions map[string]time.Time // token -> expiry
}

// NewAdminSessions creates the admin session store. An empty hash hashes DemoAdminPassword.
func NewAdminSessions(user, passwordHash string, ttl time.Duration) (*AdminSessions, error) {
	hash := []byte(passwordHash)
	if passwordHash == "" {
		var err error
		hash, err = bcrypt.GenerateFromPassword([]byte(DemoAdminPassword), bcrypt.DefaultCost)
		if err != nil {
			return nil, fmt.Errorf("failed to hash demo password: %w", err)
		}
	} else if _, err := bcrypt.Cost(hash); err != nil {
		return nil, fmt.Errorf("invalid admin password hash: %w", err)
	}
	return &AdminSessions{
		user:     user,
		hash:     hash,
		ttl:      ttl,
		now:      time.Now,
		sessions: make(map[string]time.Time),
	}, nil
}

// Login returns a new session token for valid credentials.
func (a *AdminSessions) Login(user, password string) (string, error) {
	if user != a.user {
		return "", ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword(a.hash, []byte(password)); err != nil {
		return "", ErrInvalidCredentials
	}
	token := uuid.NewString()

	a.mu.Lock()
	defer a.mu.Unlock()
	now := a.now()
	for t, exp := range a.sessions {
		if now.After(exp) {
			delete(a.sessions, t)
		}
	}
	a.sessions[token] = now.Add(a.ttl)
	return token, nil
}

// Logout ends a session.
func (a *AdminSessions) Logout(token string) {
	a.mu.Lock()
	delete(a.sessions, token)
	a.mu.Unlock()
}

// Valid reports whether token is a live session.
func (a *AdminSessions) Valid(token string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	exp, ok := a.sessions[token]
	if !ok {
		return false
	}
	if a.now().After(exp) {
		delete(a.sessions, token)
		return false
	}
	return true
}

// BearerToken extracts the token of an "Authorization: Bearer" header.
func BearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if !strings.HasPrefix(h, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
}

// Require rejects requests without a live admin session.
func (a *AdminSessions) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.Valid(BearerToken(r)) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"error":"admin login required"}` + "\n"))
			return
		}
		next.ServeHTTP(w, r)
	})
}
