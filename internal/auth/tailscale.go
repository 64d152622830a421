package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/MattCruikshank/mindcare/internal/models"
	"github.com/google/uuid"
	"tailscale.com/client/tailscale"
)

// contextKey is a custom type for context keys.
type contextKey string

const userContextKey contextKey = "user"

// NameHeader carries the display name a client asserts outside a tailnet.
const NameHeader = "X-MindCare-Name"

// Resolver identifies the caller of an HTTP request.
type Resolver interface {
	GetUser(ctx context.Context, r *http.Request) (*models.User, error)
}

// Authenticator extracts Tailscale identity from requests.
type Authenticator struct {
	lc *tailscale.LocalClient
}

// NewAuthenticator creates a new authenticator.
func NewAuthenticator(lc *tailscale.LocalClient) *Authenticator {
	return &Authenticator{lc: lc}
}

// GetUser extracts the Tailscale user from an HTTP request.
func (a *Authenticator) GetUser(ctx context.Context, r *http.Request) (*models.User, error) {
	who, err := a.lc.WhoIs(ctx, r.RemoteAddr)
	if err != nil {
		return nil, fmt.Errorf("failed to get caller identity: %w", err)
	}

	if who.UserProfile == nil {
		return nil, fmt.Errorf("no user profile for caller")
	}

	return &models.User{
		ID:          fmt.Sprintf("%d", who.UserProfile.ID),
		LoginName:   who.UserProfile.LoginName,
		DisplayName: who.UserProfile.DisplayName,
		ProfilePic:  who.UserProfile.ProfilePicURL,
	}, nil
}

// AnonymousIDPrefix marks user ids minted by Asserted. Such ids are unique per
// request and identify nobody.
const AnonymousIDPrefix = "anon-"

// Asserted trusts the display name the client sends. It is the resolver used
// when the server is not on a tailnet; identities are per request.
type Asserted struct{}

// GetUser reads the display name from NameHeader or the "name" query parameter.
func (Asserted) GetUser(ctx context.Context, r *http.Request) (*models.User, error) {
	name := strings.TrimSpace(r.Header.Get(NameHeader))
	if name == "" {
		name = strings.TrimSpace(r.URL.Query().Get("name"))
	}
	if len([]rune(name)) > 64 {
		name = string([]rune(name)[:64])
	}
	return &models.User{
		ID:          AnonymousIDPrefix + uuid.NewString(),
		DisplayName: name,
	}, nil
}

// Middleware wraps an HTTP handler and adds the user to the context.
func Middleware(res Resolver, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, err := res.GetUser(r.Context(), r)
		if err != nil {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		ctx := context.WithValue(r.Context(), userContextKey, user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// UserFromContext retrieves the user from the request context.
func UserFromContext(ctx context.Context) *models.User {
	user, ok := ctx.Value(userContextKey).(*models.User)
	if !ok {
		return nil
	}
	return user
}
