package middleware

import (
	"net/http"

	"github.com/go-chi/cors"
)

// CORS allows the barn tablets' web client to call the API. Without
// configured origins only the local dev servers are allowed.
func CORS(origins []string) func(http.Handler) http.Handler {
	if len(origins) == 0 {
		origins = []string{"http://localhost:3000", "http://localhost:5173"}
	}
	return cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodOptions},
		AllowedHeaders: []string{
			"Accept", "Content-Type",
			idempotencyHeader, clientIDHeader, requestIDHeader, correlationIDHeader,
		},
		ExposedHeaders: []string{requestIDHeader, "Retry-After", replayedHeader},
		MaxAge:         300,
	})
}
