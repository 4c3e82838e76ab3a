package middleware

import (
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
)

// SecurityHeaders returns the hardening headers as a chi middleware chain.
func SecurityHeaders(csp string) chi.Middlewares {
	if csp == "" {
		csp = "default-src 'self'"
	}
	return chi.Chain(
		chimw.SetHeader("X-Content-Type-Options", "nosniff"),
		chimw.SetHeader("X-Frame-Options", "DENY"),
		chimw.SetHeader("X-XSS-Protection", "1; mode=block"),
		chimw.SetHeader("Content-Security-Policy", csp),
	)
}
