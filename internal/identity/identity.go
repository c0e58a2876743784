// Package identity resolves the conversation session id carried by a request.
package identity

import (
	"context"
	"net"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

const (
	SessionHeaderName = "X-Session-ID"
	SessionQueryParam = "session_id"
	SessionURLParam   = "id"
)

type contextKey int

const sessionIDKey contextKey = iota

// SessionIDFromContext returns the session id stored by Middleware, or "".
func SessionIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(sessionIDKey).(string); ok {
		return v
	}
	return ""
}

// WithSessionID stores id in ctx.
func WithSessionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, sessionIDKey, id)
}

// sanitizeSessionID returns the canonical form of a UUID session id, or "".
func sanitizeSessionID(id string) string {
	id = strings.TrimSpace(id)
	if id == "" {
		return ""
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return ""
	}
	return parsed.String()
}

// SessionIDFromRequest reads the id from the {id} route parameter, the
// X-Session-ID header or the session_id query parameter, in that order.
// It reports false when an id was supplied but is malformed.
func SessionIDFromRequest(r *http.Request) (string, bool) {
	raw := chi.URLParam(r, SessionURLParam)
	if raw == "" {
		raw = r.Header.Get(SessionHeaderName)
	}
	if raw == "" {
		raw = r.URL.Query().Get(SessionQueryParam)
	}
	if raw == "" {
		return "", true
	}
	id := sanitizeSessionID(raw)
	return id, id != ""
}

// Middleware stores the request's session id in the context and rejects
// malformed ids with 400. Requests without an id pass through.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := SessionIDFromRequest(r)
		if !ok {
			http.Error(w, `{"error":"invalid session id"}`, http.StatusBadRequest)
			return
		}
		if id != "" {
			r = r.WithContext(WithSessionID(r.Context(), id))
		}
		next.ServeHTTP(w, r)
	})
}

// IPFromRequest returns a normalized remote IP for rate limiting and logs.
func IPFromRequest(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
