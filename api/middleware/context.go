package middleware

import (
	"context"
	"net/http"
	"strings"
)

type contextKey string

const (
	ctxClientID contextKey = "client_id"

	clientIDHeader = "X-Client-Id"
	maxClientIDLen = 128
)

// ClientIDFromContext returns the caller-supplied client identifier, if any.
func ClientIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(ctxClientID).(string); ok {
		return v
	}
	return ""
}

// WithClientID injects the client identifier into the context.
func WithClientID(ctx context.Context, clientID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxClientID, clientID)
}

// ClientID copies the X-Client-Id header into the request context so
// idempotency keys from different callers never collide.
func ClientID() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			clientID := strings.TrimSpace(r.Header.Get(clientIDHeader))
			if clientID == "" {
				next.ServeHTTP(w, r)
				return
			}
			if len(clientID) > maxClientIDLen {
				clientID = clientID[:maxClientIDLen]
			}
			next.ServeHTTP(w, r.WithContext(WithClientID(r.Context(), clientID)))
		})
	}
}
