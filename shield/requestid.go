package shield

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/hazyhaar/passerelle/idgen"
	"github.com/hazyhaar/passerelle/kit"
)

// RequestID stamps each request with a generated ID and injects it into
// the context, the X-Request-ID response header, and a per-request
// structured logger stored under LoggerKey.
func RequestID(logger *slog.Logger) func(http.Handler) http.Handler {
	gen := idgen.Prefixed("req_", idgen.NanoID(8))
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := gen()
			ctx := kit.WithRequestID(r.Context(), id)
			w.Header().Set("X-Request-ID", id)

			reqLogger := logger.With(
				"request_id", id,
				"method", r.Method,
				"path", r.URL.Path,
				"remote_addr", r.RemoteAddr,
			)
			ctx = context.WithValue(ctx, LoggerKey, reqLogger)
			reqLogger.Info("request")

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
