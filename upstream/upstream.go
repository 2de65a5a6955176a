// Package upstream wraps outbound HTTP to the enterprise backends
// (wiki/work-item tracker, records platform, broker management API,
// design-file API) with a composable RoundTripper middleware chain:
// logging, header injection, retry with backoff, and a circuit breaker.
//
// Clients build their transport once at construction time:
//
//	rt := upstream.Chain(
//	    upstream.Logging(logger),
//	    upstream.Headers(map[string]string{"User-Agent": ua}),
//	    upstream.Breaker(cb, "records"),
//	    upstream.Retry(2, 200*time.Millisecond, logger),
//	)(nil)
//	client := upstream.NewClient(30*time.Second, rt)
//
// The wiki content path deliberately omits Retry: its only retry is the
// conflict re-fetch performed one layer up, which keeps the worst case at
// exactly two reads and two writes.
package upstream

import (
	"log/slog"
	"net/http"
	"time"
)

// Middleware wraps a RoundTripper, adding cross-cutting behaviour without
// changing the signature.
type Middleware func(next http.RoundTripper) http.RoundTripper

// RoundTripperFunc adapts a function to http.RoundTripper.
type RoundTripperFunc func(*http.Request) (*http.Response, error)

func (f RoundTripperFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

// Chain composes middlewares left-to-right: the first middleware in the
// slice is the outermost wrapper (executed first on the request path).
// Passing a nil base uses a fresh clone of http.DefaultTransport.
func Chain(mws ...Middleware) func(base http.RoundTripper) http.RoundTripper {
	return func(base http.RoundTripper) http.RoundTripper {
		if base == nil {
			base = http.DefaultTransport.(*http.Transport).Clone()
		}
		for i := len(mws) - 1; i >= 0; i-- {
			base = mws[i](base)
		}
		return base
	}
}

// NewClient builds an http.Client with the given overall timeout and
// transport. A zero timeout disables the client deadline (the caller's
// context still applies).
func NewClient(timeout time.Duration, rt http.RoundTripper) *http.Client {
	return &http.Client{Timeout: timeout, Transport: rt}
}

// Logging returns a middleware that logs every round trip with its duration.
func Logging(logger *slog.Logger) Middleware {
	return func(next http.RoundTripper) http.RoundTripper {
		return RoundTripperFunc(func(req *http.Request) (*http.Response, error) {
			start := time.Now()
			resp, err := next.RoundTrip(req)
			dur := time.Since(start)

			if err != nil {
				logger.ErrorContext(req.Context(), "upstream call failed",
					"method", req.Method,
					"url", req.URL.Redacted(),
					"duration_ms", dur.Milliseconds(),
					"error", err)
			} else {
				logger.DebugContext(req.Context(), "upstream call",
					"method", req.Method,
					"url", req.URL.Redacted(),
					"status", resp.StatusCode,
					"duration_ms", dur.Milliseconds())
			}
			return resp, err
		})
	}
}

// Headers returns a middleware that sets fixed headers on every request.
// Existing headers with the same name are overwritten on a clone; the
// caller's request is never mutated.
func Headers(set map[string]string) Middleware {
	return func(next http.RoundTripper) http.RoundTripper {
		return RoundTripperFunc(func(req *http.Request) (*http.Response, error) {
			r := req.Clone(req.Context())
			for k, v := range set {
				r.Header.Set(k, v)
			}
			return next.RoundTrip(r)
		})
	}
}

// BasicAuth returns a middleware that attaches basic-auth credentials to
// every request. Personal access tokens use an empty user name.
func BasicAuth(user, pass string) Middleware {
	return func(next http.RoundTripper) http.RoundTripper {
		return RoundTripperFunc(func(req *http.Request) (*http.Response, error) {
			r := req.Clone(req.Context())
			r.SetBasicAuth(user, pass)
			return next.RoundTrip(r)
		})
	}
}
