package client

import (
	"fmt"
	"strings"

	"github.com/dermesser/brokerpc"
)

// JobError is raised when a JobResponse carries job-level errors and the
// client is configured to raise them (spec §4.5, raise_job_errors).
type JobError struct {
	Errors []brokerpc.Error
}

func (e *JobError) Error() string {
	parts := make([]string, len(e.Errors))
	for i, er := range e.Errors {
		parts[i] = er.Code + ": " + er.Message
	}
	return fmt.Sprintf("job error: %s", strings.Join(parts, "; "))
}

// CallActionError is raised when one or more ActionResponses in a job
// carry errors and the client is configured to raise them
// (raise_action_errors).
type CallActionError struct {
	Actions []brokerpc.ActionResponse
}

func (e *CallActionError) Error() string {
	parts := make([]string, 0, len(e.Actions))
	for _, a := range e.Actions {
		if len(a.Errors) == 0 {
			continue
		}
		codes := make([]string, len(a.Errors))
		for i, er := range a.Errors {
			codes[i] = er.Code
		}
		parts = append(parts, fmt.Sprintf("%s: %s", a.Action, strings.Join(codes, ",")))
	}
	return fmt.Sprintf("call action error: %s", strings.Join(parts, "; "))
}

// ExpansionError wraps a failure encountered while resolving an expansion
// route: a transport or decode error, or the *CallActionError of a route
// with RaiseActionErrors set. Action errors of other routes are suppressed
// and not reported.
type ExpansionError struct {
	Route string
	Cause error
}

func (e *ExpansionError) Error() string {
	return fmt.Sprintf("expansion route %q failed: %s", e.Route, e.Cause)
}

func (e *ExpansionError) Unwrap() error { return e.Cause }
