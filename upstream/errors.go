package upstream

import "fmt"

// ErrCircuitOpen is returned when a backend's circuit breaker refuses a
// request. Retry middleware never retries it: a tripped breaker means the
// backend is known-bad and hammering it delays recovery.
type ErrCircuitOpen struct {
	Backend string
}

func (e *ErrCircuitOpen) Error() string {
	return fmt.Sprintf("upstream: circuit open for backend %q", e.Backend)
}

// StatusError reports a response status the calling client did not expect.
// Excerpt holds a bounded slice of the response body for diagnostics.
type StatusError struct {
	Backend string
	Op      string
	Status  int
	Excerpt string
}

func (e *StatusError) Error() string {
	if e.Excerpt == "" {
		return fmt.Sprintf("upstream: %s %s returned status %d", e.Backend, e.Op, e.Status)
	}
	return fmt.Sprintf("upstream: %s %s returned status %d: %s", e.Backend, e.Op, e.Status, e.Excerpt)
}
