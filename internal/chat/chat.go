// Package chat answers chat assistant messages.
package chat

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Fixed responses of the assistant.
const (
	WelcomeMessage = "Hello, and welcome to a safe space. I'm MindCare Assistant. I'm here to listen and support you. How are you feeling right now?"
	ErrorResponse  = "Sorry, I encountered an error. Please try again later."
	// UnavailableResponse is shown by clients when the chat endpoint cannot be reached.
	UnavailableResponse = "I'm having trouble connecting right now. Please try again in a moment."
)

var (
	ErrEmptyMessage = errors.New("empty message")
	ErrRateLimited  = errors.New("rate limited")
	ErrUnavailable  = errors.New("chat model unavailable")
)

// Reply is a completed assistant answer.
type Reply struct {
	Text   string
	Crisis bool // the message contained crisis language
}

// Completer produces the assistant's answer to a user message.
type Completer interface {
	Complete(ctx context.Context, message string) (Reply, error)
}

// FlagRecorder records crisis interventions for the admin dashboard.
type FlagRecorder interface {
	RecordChatFlag(kind, caller string) error
}

// Service rate limits callers and delegates to a Completer.
type Service struct {
	completer Completer
	flags     FlagRecorder
	log       *zap.Logger

	limit rate.Limit
	burst int

	mu       sync.Mutex
	limiters map[string]*limiterEntry
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewService creates a chat service. A nil completer makes every request fail with ErrUnavailable.
func NewService(completer Completer, flags FlagRecorder, perMinute, burst int, log *zap.Logger) *Service {
	return &Service{
		completer: completer,
		flags:     flags,
		log:       log,
		limit:     rate.Limit(float64(perMinute) / 60.0),
		burst:     burst,
		limiters:  make(map[string]*limiterEntry),
	}
}

// Respond answers message on behalf of caller.
func (s *Service) Respond(ctx context.Context, caller, message string) (string, error) {
	if s.completer == nil {
		return "", ErrUnavailable
	}
	message = strings.TrimSpace(message)
	if message == "" {
		return "", ErrEmptyMessage
	}
	if !s.allow(caller) {
		return "", ErrRateLimited
	}

	reply, err := s.completer.Complete(ctx, message)
	if err != nil {
		s.log.Warn("chat completion failed", zap.String("caller", caller), zap.Error(err))
		return ErrorResponse, nil
	}
	if reply.Crisis {
		s.log.Warn("crisis language detected", zap.String("caller", caller))
		if s.flags != nil {
			if err := s.flags.RecordChatFlag("crisis", caller); err != nil {
				s.log.Error("failed to record crisis flag", zap.Error(err))
			}
		}
	}
	return reply.Text, nil
}

func (s *Service) allow(caller string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	e, ok := s.limiters[caller]
	if !ok {
		e = &limiterEntry{limiter: rate.NewLimiter(s.limit, s.burst)}
		s.limiters[caller] = e
	}
	e.lastSeen = now

	// Drop limiters of callers idle for a while.
	if len(s.limiters) > 1024 {
		for k, v := range s.limiters {
			if now.Sub(v.lastSeen) > 10*time.Minute {
				delete(s.limiters, k)
			}
		}
	}
	return e.limiter.AllowN(now, 1)
}
