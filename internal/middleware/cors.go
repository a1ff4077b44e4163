package middleware

import (
	"net/http"
	"strings"

	"github.com/go-chi/cors"
)

// CORS allows the web client to call the API with credentials (the session
// cookie).
//
// In production only origin is allowed. In development any origin is
// reflected, since the client dev server port changes between setups.
// Credentials forbid the "*" wildcard, so the origin is always echoed back.
func CORS(origin string, production bool) func(http.Handler) http.Handler {
	origin = strings.TrimRight(origin, "/")

	return cors.Handler(cors.Options{
		AllowOriginFunc: func(_ *http.Request, reqOrigin string) bool {
			if reqOrigin == "" {
				return false
			}
			return !production || reqOrigin == origin
		},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
		MaxAge:           600,
	})
}
