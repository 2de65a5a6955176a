// Package shield provides the HTTP middleware for the admin listener.
// It consolidates security headers, a request body limit, and request-ID
// stamping into a single importable package.
//
// Usage:
//
//	r := chi.NewRouter()
//	for _, mw := range shield.AdminStack(logger) {
//	    r.Use(mw)
//	}
//
// There is no rate limiting or maintenance mode here: the admin surface
// binds to loopback by default and serves operators, not the public.
package shield

import (
	"context"
	"log/slog"
	"net/http"
)

type contextKey string

// LoggerKey is the context key for the per-request structured logger.
const LoggerKey contextKey = "shield_logger"

// GetLogger retrieves the per-request logger from the context.
// Returns slog.Default() if no logger was set.
func GetLogger(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(LoggerKey).(*slog.Logger); ok {
		return l
	}
	return slog.Default()
}

// AdminStack returns the standard middleware stack for the admin listener.
// Middleware is ordered: SecurityHeaders → MaxBody → RequestID.
func AdminStack(logger *slog.Logger) []func(http.Handler) http.Handler {
	return []func(http.Handler) http.Handler{
		SecurityHeaders(DefaultHeaders()),
		MaxBody(64 * 1024),
		RequestID(logger),
	}
}
