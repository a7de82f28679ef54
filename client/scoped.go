package client

import (
	"context"

	"github.com/dermesser/brokerpc"
)

// Scoped is a nested-client handle bound to one incoming request's context
// (spec §4.6). Every call it makes defaults correlation_id and switches to
// the ones the request arrived with, so a handler that calls req.Client
// automatically propagates them (spec §3, §4.5) without threading
// WithCorrelationID/WithSwitches through by hand; an explicit CallOption
// still overrides the default for that one call.
type Scoped struct {
	c    *Client
	base brokerpc.Context
}

// Scoped binds c to base, returning a handle whose calls default to base's
// correlation_id and switches. c itself is never mutated: all state
// (receivers, futures, background goroutines) stays owned by c, so Scoped
// handles for concurrent requests share it safely.
func (c *Client) Scoped(base brokerpc.Context) *Scoped {
	return &Scoped{c: c, base: base}
}

func (s *Scoped) withDefaults(opts []CallOption) []CallOption {
	defaults := make([]CallOption, 0, len(opts)+2)
	defaults = append(defaults, WithCorrelationID(s.base.CorrelationID))
	if len(s.base.Switches) > 0 {
		switches := make([]int, 0, len(s.base.Switches))
		for sw := range s.base.Switches {
			switches = append(switches, sw)
		}
		defaults = append(defaults, WithSwitches(switches...))
	}
	return append(defaults, opts...)
}

// InstanceID returns the underlying Client's instance id.
func (s *Scoped) InstanceID() string { return s.c.InstanceID() }

// Context returns the context this handle defaults nested calls to.
func (s *Scoped) Context() brokerpc.Context { return s.base }

func (s *Scoped) CallAction(ctx context.Context, service, action string, body map[string]interface{}, ctl brokerpc.Control, opts ...CallOption) (brokerpc.ActionResponse, error) {
	return s.c.CallAction(ctx, service, action, body, ctl, s.withDefaults(opts)...)
}

func (s *Scoped) CallActions(ctx context.Context, service string, actions []brokerpc.ActionRequest, ctl brokerpc.Control, opts ...CallOption) (brokerpc.JobResponse, error) {
	return s.c.CallActions(ctx, service, actions, ctl, s.withDefaults(opts)...)
}

func (s *Scoped) CallActionsParallel(ctx context.Context, service string, actions []brokerpc.ActionRequest, ctl brokerpc.Control, opts ...CallOption) ([]brokerpc.ActionResponse, error) {
	return s.c.CallActionsParallel(ctx, service, actions, ctl, s.withDefaults(opts)...)
}

func (s *Scoped) CallJobsParallel(ctx context.Context, jobs []Job, opts ...CallOption) ([]brokerpc.JobResponse, error) {
	return s.c.CallJobsParallel(ctx, jobs, s.withDefaults(opts)...)
}

func (s *Scoped) SendRequest(ctx context.Context, service string, actions []brokerpc.ActionRequest, ctl brokerpc.Control, opts ...CallOption) (int64, error) {
	return s.c.SendRequest(ctx, service, actions, ctl, s.withDefaults(opts)...)
}

func (s *Scoped) CallActionFuture(ctx context.Context, service, action string, body map[string]interface{}, ctl brokerpc.Control, opts ...CallOption) (*ActionFuture, error) {
	return s.c.CallActionFuture(ctx, service, action, body, ctl, s.withDefaults(opts)...)
}

func (s *Scoped) CallActionsFuture(ctx context.Context, service string, actions []brokerpc.ActionRequest, ctl brokerpc.Control, opts ...CallOption) (*JobFuture, error) {
	return s.c.CallActionsFuture(ctx, service, actions, ctl, s.withDefaults(opts)...)
}

func (s *Scoped) CallActionsParallelFuture(ctx context.Context, service string, actions []brokerpc.ActionRequest, ctl brokerpc.Control, opts ...CallOption) ([]*ActionFuture, error) {
	return s.c.CallActionsParallelFuture(ctx, service, actions, ctl, s.withDefaults(opts)...)
}

func (s *Scoped) CallJobsParallelFuture(ctx context.Context, jobs []Job, opts ...CallOption) ([]*JobFuture, error) {
	return s.c.CallJobsParallelFuture(ctx, jobs, s.withDefaults(opts)...)
}

func (s *Scoped) GetAllResponses(ctx context.Context, service string) (<-chan ReceivedResponse, error) {
	return s.c.GetAllResponses(ctx, service)
}
