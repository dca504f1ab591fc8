package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/platinummonkey/gazette/pkg/contextkeys"
	"github.com/platinummonkey/gazette/pkg/httputil"
	"github.com/platinummonkey/gazette/pkg/observability"
	"github.com/platinummonkey/gazette/pkg/session"
)

// SessionCookieName is the cookie checked when no bearer token is sent
const SessionCookieName = "gazette_session"

// SessionReader resolves a token to an augmented session
type SessionReader interface {
	Get(ctx context.Context, token string) (*session.Payload, error)
}

// SessionMiddleware loads the caller's session from a bearer token or the
// session cookie.
//
// A session that cannot be loaded because a store failed is never a 500. In
// optional mode the request continues anonymously and is marked so that
// RequireSession and RequirePermission answer 503; otherwise the middleware
// answers 503 itself.
type SessionMiddleware struct {
	sessions SessionReader
	optional bool // If true, allow anonymous requests through
	metrics  *observability.Metrics
}

// NewSessionMiddleware creates a new session middleware
func NewSessionMiddleware(sessions SessionReader, optional bool, metrics *observability.Metrics) *SessionMiddleware {
	return &SessionMiddleware{
		sessions: sessions,
		optional: optional,
		metrics:  metrics,
	}
}

// TokenFromRequest extracts the session token. The Authorization header
// wins over the cookie.
func TokenFromRequest(r *http.Request) (string, bool) {
	if header := r.Header.Get("Authorization"); header != "" {
		scheme, token, ok := strings.Cut(header, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") || token == "" {
			return "", false
		}
		return strings.TrimSpace(token), true
	}
	if c, err := r.Cookie(SessionCookieName); err == nil && c.Value != "" {
		return c.Value, true
	}
	return "", false
}

// Handler wraps an HTTP handler with session loading
func (m *SessionMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := TokenFromRequest(r)
		if !ok {
			if m.optional {
				next.ServeHTTP(w, r)
				return
			}
			httputil.WriteUnauthorized(w, "missing session token")
			return
		}

		payload, err := m.sessions.Get(r.Context(), token)
		if err != nil {
			if !errors.Is(err, session.ErrSessionNotFound) {
				observability.FromContext(r.Context()).WithError(err).
					Warn("session unavailable, continuing without it")
				m.metrics.RecordSessionDegraded()
				if m.optional {
					next.ServeHTTP(w, r.WithContext(contextkeys.WithSessionUnavailable(r.Context())))
					return
				}
				writeSessionUnavailable(w)
				return
			}
			if m.optional {
				next.ServeHTTP(w, r)
				return
			}
			httputil.WriteUnauthorized(w, "invalid or expired session")
			return
		}

		ctx := contextkeys.WithSession(r.Context(), payload)
		ctx = contextkeys.WithSessionToken(ctx, token)
		ctx = observability.WithUserID(ctx, payload.User.ID)
		ctx = observability.WithSessionID(ctx, payload.Session.ID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func writeSessionUnavailable(w http.ResponseWriter) {
	w.Header().Set("Retry-After", "5")
	httputil.WriteErrorMessage(w, http.StatusServiceUnavailable, "session service temporarily unavailable")
}

// GetSession returns the session loaded by SessionMiddleware, or nil
func GetSession(r *http.Request) *session.Payload {
	payload, _ := r.Context().Value(contextkeys.SessionKey).(*session.Payload)
	return payload
}
