package middleware

import (
	"context"
	"net/http"
)

type actorContextKey string

const (
	actorIDKey   actorContextKey = "actor_id"
	actorNameKey actorContextKey = "actor_name"
)

// Actor extracts the acting user's identity from the X-Actor-ID and
// X-Actor-Name headers (set by the gateway after authentication) and stores
// it in the request context for audit trails.
func Actor() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			if id := r.Header.Get("X-Actor-ID"); id != "" {
				ctx = context.WithValue(ctx, actorIDKey, id)
			}
			if name := r.Header.Get("X-Actor-Name"); name != "" {
				ctx = context.WithValue(ctx, actorNameKey, name)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ActorIDFromContext returns the acting user's id, or empty string.
func ActorIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(actorIDKey).(string); ok {
		return id
	}
	return ""
}

// ActorNameFromContext returns the acting user's display name, or empty string.
func ActorNameFromContext(ctx context.Context) string {
	if name, ok := ctx.Value(actorNameKey).(string); ok {
		return name
	}
	return ""
}
