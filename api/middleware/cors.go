package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/cors"
)

const corsPreflightCache = 5 * time.Minute

// CORS lets the dashboard origins call the API with credentials. Preflight
// answers are cached by the browser for five minutes.
func CORS(origins []string) func(http.Handler) http.Handler {
	return cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
		AllowedHeaders: []string{
			"Accept", "Authorization", "Content-Type",
			IdempotencyHeader, RequestIDHeader,
		},
		ExposedHeaders:   []string{RequestIDHeader},
		AllowCredentials: true,
		MaxAge:           int(corsPreflightCache / time.Second),
	})
}
