// Package middleware implements the onion composition contract shared
// by the client and server engines (spec §4.4): an ordered stack of
// higher-order wrappers around a base callable, M1(M2(...Mn(B))).
package middleware

// RequestFunc wraps a client engine send/receive round trip. next is the
// call the middleware wraps; a middleware may call next, transform its
// result, or short-circuit without calling it at all.
type RequestFunc[Req, Resp any] func(next func(Req) (Resp, error)) func(Req) (Resp, error)

// ComposeRequest builds M1(M2(...Mn(base))) from an ordered stack. The
// first element wraps outermost, i.e. runs first on the way in and last
// on the way out.
func ComposeRequest[Req, Resp any](stack []RequestFunc[Req, Resp], base func(Req) (Resp, error)) func(Req) (Resp, error) {
	call := base
	for i := len(stack) - 1; i >= 0; i-- {
		call = stack[i](call)
	}
	return call
}

// JobFunc wraps a server engine's whole-job processing step.
type JobFunc[Job, Resp any] func(next func(Job) (Resp, error)) func(Job) (Resp, error)

// ComposeJob builds the job-level onion around base.
func ComposeJob[Job, Resp any](stack []JobFunc[Job, Resp], base func(Job) (Resp, error)) func(Job) (Resp, error) {
	call := base
	for i := len(stack) - 1; i >= 0; i-- {
		call = stack[i](call)
	}
	return call
}

// ActionFunc wraps a single action invocation on the server.
type ActionFunc[Req, Resp any] func(next func(Req) (Resp, error)) func(Req) (Resp, error)

// ComposeAction builds the action-level onion around base.
func ComposeAction[Req, Resp any](stack []ActionFunc[Req, Resp], base func(Req) (Resp, error)) func(Req) (Resp, error) {
	call := base
	for i := len(stack) - 1; i >= 0; i-- {
		call = stack[i](call)
	}
	return call
}
