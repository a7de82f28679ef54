package server

import (
	"context"

	"github.com/dermesser/brokerpc"
	"github.com/dermesser/brokerpc/client"
)

// ActionRequest is the enriched request an action Handler receives: the
// action's own body plus the context, control, and a client bound to the
// server's outbound routing for making nested calls (spec §4.6).
type ActionRequest struct {
	Action  string
	Body    map[string]interface{}
	Context brokerpc.Context
	Control brokerpc.Control
	Client  *client.Scoped
}

// Handler is a callable registered under one action name. It returns the
// response body, or raises *ActionFailure to record structured errors.
type Handler func(ctx context.Context, req ActionRequest) (map[string]interface{}, error)

// ActionFailure carries one or more structured errors from a Handler,
// distinct from an unhandled panic/error which the worker records as
// SERVER_ERROR.
type ActionFailure struct {
	Errors []brokerpc.Error
}

func (e *ActionFailure) Error() string {
	if len(e.Errors) == 0 {
		return "action failure"
	}
	return e.Errors[0].Code + ": " + e.Errors[0].Message
}

// well-known error codes emitted by the server engine itself, rather
// than by a Handler.
const (
	ErrUnknownAction   = "UNKNOWN_ACTION"
	ErrResponseInvalid = "RESPONSE_NOT_VALID"
	ErrServerError     = "SERVER_ERROR"
	ErrJobInvalid      = "JOB_INVALID"
)
