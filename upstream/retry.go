package upstream

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// retryableStatus reports whether a response status is worth retrying:
// server-side failures and throttling. 4xx responses other than 429 are
// deterministic and retrying them only repeats the mistake.
func retryableStatus(code int) bool {
	return code >= 500 || code == http.StatusTooManyRequests
}

// retryableRequest reports whether the request can be replayed safely:
// idempotent methods, or any method whose body can be rewound.
func retryableRequest(req *http.Request) bool {
	switch req.Method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	}
	return req.Body == nil || req.GetBody != nil
}

// Retry returns a middleware that retries failed round trips up to
// maxRetries additional times with doubling backoff. Transport errors and
// retryable statuses trigger a retry; an open circuit does not, since the
// breaker has already decided the backend needs quiet. The caller's
// context cancels the backoff sleep.
func Retry(maxRetries int, backoff time.Duration, logger *slog.Logger) Middleware {
	return func(next http.RoundTripper) http.RoundTripper {
		return RoundTripperFunc(func(req *http.Request) (*http.Response, error) {
			if !retryableRequest(req) {
				return next.RoundTrip(req)
			}

			var lastErr error
			var lastResp *http.Response
			wait := backoff
			for attempt := 0; attempt <= maxRetries; attempt++ {
				if attempt > 0 {
					if lastResp != nil {
						drain(lastResp)
					}
					select {
					case <-req.Context().Done():
						return nil, req.Context().Err()
					case <-time.After(wait):
					}
					wait *= 2

					if req.Body != nil {
						body, err := req.GetBody()
						if err != nil {
							return lastResp, lastErr
						}
						req = req.Clone(req.Context())
						req.Body = body
					}
				}

				resp, err := next.RoundTrip(req)
				if err == nil && !retryableStatus(resp.StatusCode) {
					return resp, nil
				}

				var open *ErrCircuitOpen
				if errors.As(err, &open) {
					return nil, err
				}

				lastErr = err
				lastResp = resp
				if attempt < maxRetries {
					attrs := []any{
						"method", req.Method,
						"url", req.URL.Redacted(),
						"attempt", attempt + 1,
						"max_retries", maxRetries,
						"backoff", wait.String(),
					}
					if err != nil {
						attrs = append(attrs, "error", err)
					} else {
						attrs = append(attrs, "status", resp.StatusCode)
					}
					logger.WarnContext(req.Context(), "retrying upstream call", attrs...)
				}
			}
			return lastResp, lastErr
		})
	}
}

// drain discards and closes a response body so the underlying connection
// can be reused by the next attempt.
func drain(resp *http.Response) {
	if resp.Body != nil {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
	}
}
