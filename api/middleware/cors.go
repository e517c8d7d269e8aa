package middleware

import (
	"net/http"

	"github.com/go-chi/cors"

	"github.com/angelmondragon/rfqmarket-backend/pkg/config"
)

// CORS admits browser clients from the configured origins. Credentials travel
// as bearer tokens, so cookies are never allowed.
func CORS(cfg config.CORSConfig) func(http.Handler) http.Handler {
	return cors.New(cors.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", IdempotencyKeyHeader, RequestIDHeader},
		ExposedHeaders: []string{RequestIDHeader, ReplayedHeader},
		MaxAge:         300,
	}).Handler
}
