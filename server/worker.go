package server

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync/atomic"
	"time"

	"github.com/dermesser/brokerpc"
	"github.com/dermesser/brokerpc/client"
	"github.com/dermesser/brokerpc/envelope"
	"github.com/dermesser/brokerpc/middleware"
	"github.com/dermesser/brokerpc/transport"
)

// Worker runs one instance of a Server's main loop (spec §4.6). Multiple
// Workers for the same Server may run concurrently as goroutines within
// one process, or a Supervisor (lifecycle.go) may run one Worker per forked
// process; either way each Worker is independently sequential.
type Worker struct {
	server    *Server
	forkIndex int

	transport    transport.ServerTransport
	nestedClient *client.Client
	hb           *heartbeat

	shuttingDown atomic.Bool
	lastIdle     time.Time
}

// NewWorker builds a Worker bound to server, dialing its own server
// transport and a nested client for handlers to make outbound calls
// through.
func NewWorker(server *Server, forkIndex int) (*Worker, error) {
	t, err := server.cfg.ServerFactory.NewServerTransport(server.cfg.ServiceName)
	if err != nil {
		return nil, err
	}
	nc := client.New(client.Options{
		Factory:              server.cfg.ClientFactory,
		RaiseJobErrors:       false,
		RaiseActionErrors:    false,
		CatchTransportErrors: false,
		Logger:               server.cfg.Logger,
	})
	return &Worker{
		server:       server,
		forkIndex:    forkIndex,
		transport:    t,
		nestedClient: nc,
		hb:           newHeartbeat(server.cfg.HeartbeatPath, forkIndex),
	}, nil
}

// Shutdown requests a graceful stop; the current iteration of Run's loop
// finishes before it returns.
func (w *Worker) Shutdown() {
	w.shuttingDown.Store(true)
}

// Run executes the main loop until Shutdown is called or ctx is
// cancelled. Once Setup has succeeded, Teardown runs before Run returns,
// even on error; if Setup fails, Run returns without calling Teardown.
func (w *Worker) Run(ctx context.Context) error {
	if w.server.cfg.Hooks.Setup != nil {
		if err := w.server.cfg.Hooks.Setup(); err != nil {
			return fmt.Errorf("server: setup hook failed: %w", err)
		}
	}
	defer func() {
		if w.server.cfg.Hooks.Teardown != nil {
			w.server.cfg.Hooks.Teardown()
		}
		w.hb.remove()
		w.nestedClient.Close()
		w.transport.Close()
	}()

	if err := w.hb.write(); err != nil && w.server.cfg.Logger != nil {
		w.server.cfg.Logger.Warnf(ctx, "failed to write heartbeat file", "error", err)
	}

	w.lastIdle = time.Now()

	for !w.shuttingDown.Load() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		env, ok, err := w.transport.ReceiveRequest(ctx, w.server.cfg.ReceiveTimeout)
		if err != nil {
			if w.server.cfg.Logger != nil {
				w.server.cfg.Logger.Warnf(ctx, "receive_request failed", "error", err)
			}
			continue
		}
		if !ok {
			w.tickHeartbeatAndIdle(ctx)
			continue
		}

		w.handleOne(ctx, env)
		if err := w.hb.write(); err != nil && w.server.cfg.Logger != nil {
			w.server.cfg.Logger.Warnf(ctx, "failed to write heartbeat file", "error", err)
		}
	}
	return nil
}

func (w *Worker) tickHeartbeatAndIdle(ctx context.Context) {
	if err := w.hb.write(); err != nil && w.server.cfg.Logger != nil {
		w.server.cfg.Logger.Warnf(ctx, "failed to write heartbeat file", "error", err)
	}
	if time.Since(w.lastIdle) >= w.server.cfg.IdleInterval {
		w.lastIdle = time.Now()
		if w.server.cfg.Hooks.PerformIdleActions != nil {
			w.server.cfg.Hooks.PerformIdleActions()
		}
	}
}

func (w *Worker) handleOne(ctx context.Context, env envelope.Envelope) {
	jr := brokerpc.DecodeJobRequest(env.Body)

	if w.server.cfg.Hooks.PerformPreRequestActions != nil {
		w.server.cfg.Hooks.PerformPreRequestActions(&jr)
	}

	stop := make(chan struct{})
	if w.server.cfg.HarakiriTimeout > 0 {
		go watchHarakiri(ctx, w.server.cfg.Logger, w.server.cfg.HarakiriTimeout, stop)
	}

	call := middleware.ComposeJob(w.server.cfg.JobMiddleware, w.processJob)
	resp, _ := call(jr)
	close(stop)

	resp.Context = jr.Context

	if !jr.Control.SuppressResponse {
		replyTo, _ := env.ReplyTo()
		respEnv := envelope.Envelope{
			RequestID: env.RequestID,
			Meta:      map[string]interface{}{},
			Body:      brokerpc.EncodeJobResponse(resp),
		}
		if v, ok := env.Meta[envelope.ProtocolVersionMetaKey]; ok {
			respEnv.Meta[envelope.ProtocolVersionMetaKey] = v
		}
		if v, ok := env.Meta[envelope.ExpiryKey]; ok {
			respEnv.Meta[envelope.ExpiryKey] = v
		}
		if err := w.transport.SendResponse(ctx, replyTo, respEnv); err != nil && w.server.cfg.Logger != nil {
			w.server.cfg.Logger.Warnf(ctx, "send_response failed", "error", err)
		}
	}

	if w.server.cfg.Hooks.PerformPostRequestActions != nil {
		w.server.cfg.Hooks.PerformPostRequestActions(&jr, &resp)
	}
}

// processJob is the base callable the job middleware onion wraps. It
// never returns a Go error itself: job-level failures are carried in the
// returned JobResponse's Errors field, per spec.
func (w *Worker) processJob(jr brokerpc.JobRequest) (brokerpc.JobResponse, error) {
	if len(jr.Actions) == 0 {
		return brokerpc.JobResponse{Context: jr.Context, Errors: []brokerpc.Error{
			{Code: ErrJobInvalid, Message: "job request must contain at least one action", IsCallerError: true},
		}}, nil
	}
	if w.server.cfg.JobValidator != nil {
		if errs := w.server.cfg.JobValidator.ValidateJob(jr); len(errs) > 0 {
			return brokerpc.JobResponse{Context: jr.Context, Errors: errs}, nil
		}
	}

	resp := brokerpc.JobResponse{Context: jr.Context}
	continueOnError := jr.Control.ContinueOnError || w.server.cfg.ContinueOnError

	for _, action := range jr.Actions {
		ar := w.dispatchAction(jr, action)
		resp.Actions = append(resp.Actions, ar)
		if len(ar.Errors) > 0 && !continueOnError {
			break
		}
	}
	return resp, nil
}

func (w *Worker) dispatchAction(jr brokerpc.JobRequest, action brokerpc.ActionRequest) (ar brokerpc.ActionResponse) {
	ar.Action = action.Action

	handler, ok := w.server.findHandler(action.Action)
	if !ok {
		ar.Errors = []brokerpc.Error{{Code: ErrUnknownAction, Message: "no handler registered for action " + action.Action, IsCallerError: true}}
		w.server.cfg.Metrics.IncrCounter("action_unknown", map[string]string{"action": action.Action})
		return ar
	}

	req := ActionRequest{
		Action:  action.Action,
		Body:    action.Body,
		Context: jr.Context,
		Control: jr.Control,
		// Scoped to jr.Context so nested calls the handler makes inherit
		// this request's correlation_id and switches automatically
		// (spec §3, §4.5, §4.6) rather than the worker's construction-time
		// defaults.
		Client: w.nestedClient.Scoped(jr.Context),
	}

	base := func(req ActionRequest) (body map[string]interface{}, err error) {
		defer func() {
			if r := recover(); r != nil {
				stack := debug.Stack()
				trace := string(stack)
				if max := w.server.cfg.MaxTracebackLength; len(trace) > max {
					trace = trace[:max]
				}
				err = &ActionFailure{Errors: []brokerpc.Error{{
					Code:          ErrServerError,
					Message:       fmt.Sprintf("panic: %v", r),
					Traceback:     trace,
					IsCallerError: false,
				}}}
			}
		}()
		return handler(context.Background(), req)
	}
	call := middleware.ComposeAction(w.server.cfg.ActionMiddleware, base)

	start := time.Now()
	body, err := call(req)
	w.server.cfg.Metrics.ObserveTiming("action_duration", map[string]string{"action": action.Action}, time.Since(start))

	if err != nil {
		var failure *ActionFailure
		if errors.As(err, &failure) {
			ar.Errors = failure.Errors
		} else {
			ar.Errors = []brokerpc.Error{{Code: ErrServerError, Message: err.Error(), IsCallerError: false}}
		}
		w.server.cfg.Metrics.IncrCounter("action_error", map[string]string{"action": action.Action})
		return ar
	}

	ar.Body = body
	if w.server.cfg.ResponseValidator != nil {
		if errs := w.server.cfg.ResponseValidator.ValidateResponse(action.Action, body); len(errs) > 0 {
			ar.Errors = append([]brokerpc.Error{{Code: ErrResponseInvalid, Message: "response failed schema validation"}}, errs...)
		}
	}
	return ar
}
