package client

import (
	"context"
	"errors"
	"time"

	"github.com/dermesser/brokerpc"
)

// JobFuture is the Future contract (spec §4.5) applied at job
// granularity: Result applies the client's raise_job_errors and
// raise_action_errors settings the same way the synchronous calls do.
type JobFuture struct {
	inner  *Future
	client *Client
}

func (jf *JobFuture) Done() bool { return jf.inner.Done() }

func (jf *JobFuture) Result(timeout time.Duration) (brokerpc.JobResponse, error) {
	resp, err := jf.inner.Result(timeout)
	if err != nil {
		return resp, err
	}
	if err := jf.client.checkErrors(resp); err != nil {
		return resp, err
	}
	return resp, nil
}

// ActionFuture is the single-action projection of a JobFuture.
type ActionFuture struct {
	job *JobFuture
}

func (af *ActionFuture) Done() bool { return af.job.Done() }

func (af *ActionFuture) Result(timeout time.Duration) (brokerpc.ActionResponse, error) {
	resp, err := af.job.Result(timeout)
	if err != nil {
		return brokerpc.ActionResponse{}, err
	}
	if len(resp.Actions) == 0 {
		return brokerpc.ActionResponse{}, errors.New("client: job response contained no action responses")
	}
	return resp.Actions[0], nil
}

func (c *Client) newJobFuture(ctx context.Context, service string, jr brokerpc.JobRequest, timeout time.Duration) (*JobFuture, error) {
	f, err := c.sendJob(ctx, service, jr, timeout)
	if err != nil {
		return nil, err
	}
	return &JobFuture{inner: f, client: c}, nil
}

// CallActionFuture is CallAction's non-blocking counterpart.
func (c *Client) CallActionFuture(ctx context.Context, service, action string, body map[string]interface{}, ctl brokerpc.Control, opts ...CallOption) (*ActionFuture, error) {
	jr := c.buildJobRequest([]brokerpc.ActionRequest{{Action: action, Body: body}}, ctl, opts)
	jf, err := c.newJobFuture(ctx, service, jr, c.effectiveTimeout(ctl))
	if err != nil {
		return nil, err
	}
	return &ActionFuture{job: jf}, nil
}

// CallActionsFuture is CallActions' non-blocking counterpart.
func (c *Client) CallActionsFuture(ctx context.Context, service string, actions []brokerpc.ActionRequest, ctl brokerpc.Control, opts ...CallOption) (*JobFuture, error) {
	jr := c.buildJobRequest(actions, ctl, opts)
	return c.newJobFuture(ctx, service, jr, c.effectiveTimeout(ctl))
}

// CallActionsParallelFuture is CallActionsParallel's non-blocking
// counterpart: every action is sent immediately and its ActionFuture
// returned in the same order.
func (c *Client) CallActionsParallelFuture(ctx context.Context, service string, actions []brokerpc.ActionRequest, ctl brokerpc.Control, opts ...CallOption) ([]*ActionFuture, error) {
	out := make([]*ActionFuture, len(actions))
	for i, a := range actions {
		f, err := c.CallActionFuture(ctx, service, a.Action, a.Body, ctl, opts...)
		if err != nil {
			return out, err
		}
		out[i] = f
	}
	return out, nil
}

// CallJobsParallelFuture is CallJobsParallel's non-blocking counterpart.
func (c *Client) CallJobsParallelFuture(ctx context.Context, jobs []Job, opts ...CallOption) ([]*JobFuture, error) {
	out := make([]*JobFuture, len(jobs))
	for i, j := range jobs {
		jr := c.buildJobRequest(j.Actions, j.Control, opts)
		f, err := c.newJobFuture(ctx, j.Service, jr, c.effectiveTimeout(j.Control))
		if err != nil {
			return out, err
		}
		out[i] = f
	}
	return out, nil
}
