// Package kit holds the transport-agnostic plumbing shared by every
// passerelle integration: the Endpoint abstraction, middleware chaining,
// typed context keys, and the MCP registration glue.
//
// An Endpoint is the unit every integration exposes. Transports (MCP over
// stdio or QUIC, the one-shot CLI) decode their own wire format and hand a
// typed request to an Endpoint; middleware composes around it.
package kit

import "context"

// Endpoint is a single remote operation: typed request in, typed response
// out. Implementations must be safe for concurrent use.
type Endpoint func(ctx context.Context, req any) (any, error)

// Middleware wraps an Endpoint with cross-cutting behaviour.
type Middleware func(next Endpoint) Endpoint

// Chain composes middleware so the first argument is the outermost wrapper.
// Chain(a, b, c)(ep) runs a → b → c → ep.
func Chain(mw ...Middleware) Middleware {
	return func(next Endpoint) Endpoint {
		for i := len(mw) - 1; i >= 0; i-- {
			next = mw[i](next)
		}
		return next
	}
}

// RequestID returns middleware that stamps a fresh request ID into the
// context when none is present. gen is called once per request.
func RequestID(gen func() string) Middleware {
	return func(next Endpoint) Endpoint {
		return func(ctx context.Context, req any) (any, error) {
			if GetRequestID(ctx) == "" {
				ctx = WithRequestID(ctx, gen())
			}
			return next(ctx, req)
		}
	}
}
