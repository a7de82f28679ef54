// Package client implements the RPC client engine (spec §4.5): request
// multiplexing over per-service reply-to queues, futures, parallel job
// dispatch, timeouts, and response expansions.
package client

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/xid"

	"github.com/dermesser/brokerpc"
	"github.com/dermesser/brokerpc/envelope"
	"github.com/dermesser/brokerpc/internal/rpclog"
	"github.com/dermesser/brokerpc/middleware"
	"github.com/dermesser/brokerpc/transport"
)

// RequestMiddleware wraps a whole call_action/call_actions round trip.
type RequestMiddleware = middleware.RequestFunc[brokerpc.JobRequest, brokerpc.JobResponse]

// Options configures a Client.
type Options struct {
	Factory transport.ClientFactory

	// DefaultTimeout is used when a Control leaves Timeout at zero.
	DefaultTimeout time.Duration
	// ExpiryBuffer is added to a call's timeout to compute the transport
	// message expiry (spec §4.5).
	ExpiryBuffer time.Duration

	RaiseJobErrors       bool
	RaiseActionErrors    bool
	CatchTransportErrors bool

	// BaseContext seeds correlation_id and switches for every call made
	// by this Client; per-call CallOptions may extend it.
	BaseContext brokerpc.Context

	Middleware []RequestMiddleware
	Logger     *rpclog.Logger
}

// Client is safe for concurrent use: request_id allocation is atomic and
// all per-request state is scoped to the calling goroutine's Future.
type Client struct {
	factory transport.ClientFactory

	// instanceID identifies this Client for logging and metrics; it has
	// no wire meaning (the transport factory owns its own client-uuid
	// used to compute the reply-to key).
	instanceID string

	defaultTimeout time.Duration
	expiryBuffer   time.Duration

	raiseJobErrors       bool
	raiseActionErrors    bool
	catchTransportErrors bool

	baseContext brokerpc.Context
	middleware  []RequestMiddleware
	logger      *rpclog.Logger

	requestID int64 // atomic

	mu        sync.Mutex
	receivers map[string]*receiver
	stop      chan struct{}
	stopOnce  sync.Once
}

// New builds a Client. request_id starts at a random base so that ids
// from concurrently running client processes are unlikely to collide in
// log search (spec §4.5).
func New(opts Options) *Client {
	timeout := opts.DefaultTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	buf := opts.ExpiryBuffer
	if buf <= 0 {
		buf = 2 * time.Second
	}
	base := opts.BaseContext
	if base.Switches == nil {
		base = brokerpc.NewContext(base.CorrelationID)
	}
	if base.CorrelationID == "" {
		base.CorrelationID = xid.New().String()
	}
	return &Client{
		factory:              opts.Factory,
		instanceID:           uuid.NewString(),
		defaultTimeout:       timeout,
		expiryBuffer:         buf,
		raiseJobErrors:       opts.RaiseJobErrors,
		raiseActionErrors:    opts.RaiseActionErrors,
		catchTransportErrors: opts.CatchTransportErrors,
		baseContext:          base,
		middleware:           opts.Middleware,
		logger:               opts.Logger,
		requestID:            rand.Int63n(1 << 40),
		receivers:            map[string]*receiver{},
		stop:                 make(chan struct{}),
	}
}

// Close stops all background receive loops. In-flight Futures that never
// observe a response remain permanently unresolved.
func (c *Client) Close() {
	c.stopOnce.Do(func() { close(c.stop) })
}

// InstanceID returns the identifier generated for this Client at
// construction time, useful for correlating log lines across services.
func (c *Client) InstanceID() string {
	return c.instanceID
}

// Job describes one (service, actions) unit for CallJobsParallel.
type Job struct {
	Service string
	Actions []brokerpc.ActionRequest
	Control brokerpc.Control
}

// CallOption customizes a single call's context without mutating the
// Client's BaseContext.
type CallOption func(*callOpts)

type callOpts struct {
	switches         map[int]struct{}
	correlationID    string
	hasCorrelationID bool
}

// WithSwitches unions the given switches into the call's context,
// per spec §4.5 ("switches from the client's base context are
// set-unioned with per-call switches").
func WithSwitches(switches ...int) CallOption {
	return func(o *callOpts) {
		for _, sw := range switches {
			o.switches[sw] = struct{}{}
		}
	}
}

// WithCorrelationID overrides the call's correlation id.
func WithCorrelationID(id string) CallOption {
	return func(o *callOpts) { o.correlationID, o.hasCorrelationID = id, true }
}

func (c *Client) buildJobRequest(actions []brokerpc.ActionRequest, ctl brokerpc.Control, opts []CallOption) brokerpc.JobRequest {
	o := callOpts{switches: map[int]struct{}{}}
	for _, opt := range opts {
		opt(&o)
	}
	ctx := c.baseContext
	if o.hasCorrelationID {
		ctx.CorrelationID = o.correlationID
	}
	ctx = ctx.UnionSwitches(o.switches)
	return brokerpc.JobRequest{Actions: actions, Context: ctx, Control: ctl}
}

func (c *Client) effectiveTimeout(ctl brokerpc.Control) time.Duration {
	if ctl.Timeout > 0 {
		return time.Duration(ctl.Timeout * float64(time.Second))
	}
	return c.defaultTimeout
}

func (c *Client) getReceiver(service string) (*receiver, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if r, ok := c.receivers[service]; ok {
		return r, nil
	}
	t, err := c.factory.NewClientTransport(service)
	if err != nil {
		return nil, err
	}
	r := newReceiver(t, c.logger)
	go r.run(c.stop)
	c.receivers[service] = r
	return r, nil
}

func (c *Client) nextRequestID() int64 {
	return atomic.AddInt64(&c.requestID, 1)
}

// sendJob allocates a request_id, sends jr to service, and returns a
// Future for its response (already completed with a zero response if
// jr.Control.SuppressResponse is set, since no response slot is
// allocated in that case).
func (c *Client) sendJob(ctx context.Context, service string, jr brokerpc.JobRequest, timeout time.Duration) (*Future, error) {
	r, err := c.getReceiver(service)
	if err != nil {
		return nil, err
	}

	requestID := c.nextRequestID()
	jr.Context.RequestID = requestID

	f := newFuture(requestID)
	if !jr.Control.SuppressResponse {
		r.register(requestID, f)
	}

	env := envelope.Envelope{
		RequestID: requestID,
		Meta:      map[string]interface{}{},
		Body:      brokerpc.EncodeJobRequest(jr),
	}
	env.Meta[envelope.ExpiryKey] = float64(time.Now().Add(timeout + c.expiryBuffer).Unix())
	if !jr.Control.SuppressResponse {
		env.Meta[envelope.ReplyToKey] = r.transport.ReplyTo()
	}

	if err := r.transport.Send(ctx, env); err != nil {
		if !jr.Control.SuppressResponse {
			r.unregister(requestID)
		}
		return nil, err
	}
	if c.logger != nil {
		c.logger.Debugf(ctx, "sent job request", "service", service, "request_id", requestID, "client_instance", c.instanceID)
	}

	if jr.Control.SuppressResponse {
		f.complete(brokerpc.JobResponse{}, nil)
	}
	return f, nil
}

// sendAndAwait runs the middleware onion around one blocking round trip.
func (c *Client) sendAndAwait(ctx context.Context, service string, jr brokerpc.JobRequest, timeout time.Duration) (brokerpc.JobResponse, error) {
	base := func(jr brokerpc.JobRequest) (brokerpc.JobResponse, error) {
		f, err := c.sendJob(ctx, service, jr, timeout)
		if err != nil {
			return brokerpc.JobResponse{}, err
		}
		return f.Result(timeout)
	}
	return middleware.ComposeRequest(c.middleware, base)(jr)
}

func (c *Client) checkErrors(resp brokerpc.JobResponse) error {
	if c.raiseJobErrors && resp.HasErrors() {
		return &JobError{Errors: resp.Errors}
	}
	if c.raiseActionErrors {
		for _, a := range resp.Actions {
			if len(a.Errors) > 0 {
				return &CallActionError{Actions: resp.Actions}
			}
		}
	}
	return nil
}

func (c *Client) callJobSync(ctx context.Context, service string, jr brokerpc.JobRequest, timeout time.Duration) (brokerpc.JobResponse, error) {
	resp, err := c.sendAndAwait(ctx, service, jr, timeout)
	if err != nil {
		return resp, err
	}
	if err := c.checkErrors(resp); err != nil {
		return resp, err
	}
	return resp, nil
}

// CallAction builds a single-action job, blocks for the response, and
// raises according to the client's raise_job_errors/raise_action_errors
// settings.
func (c *Client) CallAction(ctx context.Context, service, action string, body map[string]interface{}, ctl brokerpc.Control, opts ...CallOption) (brokerpc.ActionResponse, error) {
	jr := c.buildJobRequest([]brokerpc.ActionRequest{{Action: action, Body: body}}, ctl, opts)
	resp, err := c.callJobSync(ctx, service, jr, c.effectiveTimeout(ctl))
	if err != nil {
		return brokerpc.ActionResponse{}, err
	}
	if len(resp.Actions) == 0 {
		return brokerpc.ActionResponse{}, errors.New("client: job response contained no action responses")
	}
	return resp.Actions[0], nil
}

// CallActions sends a single job with multiple actions, in order, to one
// service and blocks for the response.
func (c *Client) CallActions(ctx context.Context, service string, actions []brokerpc.ActionRequest, ctl brokerpc.Control, opts ...CallOption) (brokerpc.JobResponse, error) {
	jr := c.buildJobRequest(actions, ctl, opts)
	return c.callJobSync(ctx, service, jr, c.effectiveTimeout(ctl))
}

// CallActionsParallel dispatches one job per action to the same service,
// in parallel, and returns responses in the same order as actions. If
// CatchTransportErrors is set, a transport error for one action is
// turned into a TRANSPORT_ERROR ActionResponse instead of aborting the
// others.
func (c *Client) CallActionsParallel(ctx context.Context, service string, actions []brokerpc.ActionRequest, ctl brokerpc.Control, opts ...CallOption) ([]brokerpc.ActionResponse, error) {
	type outcome struct {
		resp brokerpc.ActionResponse
		err  error
	}
	outcomes := make([]outcome, len(actions))

	var wg sync.WaitGroup
	for i, a := range actions {
		wg.Add(1)
		go func(i int, a brokerpc.ActionRequest) {
			defer wg.Done()
			resp, err := c.CallAction(ctx, service, a.Action, a.Body, ctl, opts...)
			outcomes[i] = outcome{resp, err}
		}(i, a)
	}
	wg.Wait()

	out := make([]brokerpc.ActionResponse, len(actions))
	for i, o := range outcomes {
		if o.err != nil {
			if c.catchTransportErrors && isTransportError(o.err) {
				out[i] = transportErrorResponse(actions[i].Action, o.err)
				continue
			}
			return out, o.err
		}
		out[i] = o.resp
	}
	return out, nil
}

// CallJobsParallel dispatches an arbitrary list of (service, actions)
// jobs, all in flight together, and returns responses in the same order
// as jobs.
func (c *Client) CallJobsParallel(ctx context.Context, jobs []Job, opts ...CallOption) ([]brokerpc.JobResponse, error) {
	type outcome struct {
		resp brokerpc.JobResponse
		err  error
	}
	outcomes := make([]outcome, len(jobs))

	var wg sync.WaitGroup
	for i, j := range jobs {
		wg.Add(1)
		go func(i int, j Job) {
			defer wg.Done()
			resp, err := c.CallActions(ctx, j.Service, j.Actions, j.Control, opts...)
			outcomes[i] = outcome{resp, err}
		}(i, j)
	}
	wg.Wait()

	out := make([]brokerpc.JobResponse, len(jobs))
	for i, o := range outcomes {
		if o.err != nil {
			if c.catchTransportErrors && isTransportError(o.err) {
				out[i] = brokerpc.JobResponse{Errors: []brokerpc.Error{{Code: "TRANSPORT_ERROR", Message: o.err.Error()}}}
				continue
			}
			return out, o.err
		}
		out[i] = o.resp
	}
	return out, nil
}

// SendRequest sends a job without waiting for its response, returning
// the allocated request_id. If ctl.SuppressResponse is set no response
// slot is allocated and the server will not enqueue one.
func (c *Client) SendRequest(ctx context.Context, service string, actions []brokerpc.ActionRequest, ctl brokerpc.Control, opts ...CallOption) (int64, error) {
	jr := c.buildJobRequest(actions, ctl, opts)
	f, err := c.sendJob(ctx, service, jr, c.effectiveTimeout(ctl))
	if err != nil {
		return 0, err
	}
	return f.requestID, nil
}

// GetAllResponses returns a channel of (request_id, job_response) pairs
// received on this client's reply-to queue for service, including
// responses that arrived before this call (buffered by the receiver)
// and any that arrive afterward. The channel is never closed by the
// client; callers should select against ctx.Done() alongside it.
func (c *Client) GetAllResponses(ctx context.Context, service string) (<-chan ReceivedResponse, error) {
	r, err := c.getReceiver(service)
	if err != nil {
		return nil, err
	}
	return r.subscribe(), nil
}

func isTransportError(err error) bool {
	var sendFailure *transport.MessageSendFailure
	var sendTimeout *transport.MessageSendTimeout
	var recvTimeout *transport.MessageReceiveTimeout
	var connFailure *transport.ConnectionFailure
	var tooLarge *transport.MessageTooLarge
	var respTooLarge *transport.ResponseTooLarge
	return errors.As(err, &sendFailure) || errors.As(err, &sendTimeout) || errors.As(err, &recvTimeout) ||
		errors.As(err, &connFailure) || errors.As(err, &tooLarge) || errors.As(err, &respTooLarge)
}

func transportErrorResponse(action string, err error) brokerpc.ActionResponse {
	return brokerpc.ActionResponse{
		Action: action,
		Errors: []brokerpc.Error{{Code: "TRANSPORT_ERROR", Message: fmt.Sprintf("%s", err)}},
	}
}
