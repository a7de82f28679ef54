package client

import (
	"context"
	"sync"
	"time"

	"github.com/dermesser/brokerpc"
	"github.com/dermesser/brokerpc/internal/rpclog"
	"github.com/dermesser/brokerpc/transport"
)

// receiver drives one service's reply-to queue: a single goroutine calls
// transport.Receive in a loop and routes each JobResponse to whichever
// Future is waiting on its request_id, per spec §5's "correlate by
// request_id, never arrival order". Responses nobody is waiting on (the
// send_request / get_all_responses path) are buffered for GetAllResponses.
type receiver struct {
	transport transport.ClientTransport
	logger    *rpclog.Logger

	pollTimeout time.Duration

	mu        sync.Mutex
	pending   map[int64]*Future
	unclaimed []ReceivedResponse
	subs      []chan ReceivedResponse
}

// ReceivedResponse is one (request_id, job_response) pair surfaced via
// GetAllResponses.
type ReceivedResponse struct {
	RequestID int64
	Response  brokerpc.JobResponse
	Err       error
}

func newReceiver(t transport.ClientTransport, logger *rpclog.Logger) *receiver {
	return &receiver{
		transport:   t,
		logger:      logger,
		pollTimeout: 30 * time.Second,
		pending:     map[int64]*Future{},
	}
}

func (r *receiver) register(requestID int64, f *Future) {
	r.mu.Lock()
	r.pending[requestID] = f
	r.mu.Unlock()
}

func (r *receiver) unregister(requestID int64) {
	r.mu.Lock()
	delete(r.pending, requestID)
	r.mu.Unlock()
}

func (r *receiver) subscribe() chan ReceivedResponse {
	ch := make(chan ReceivedResponse, 64)
	r.mu.Lock()
	for _, rr := range r.unclaimed {
		select {
		case ch <- rr:
		default:
		}
	}
	r.unclaimed = nil
	r.subs = append(r.subs, ch)
	r.mu.Unlock()
	return ch
}

// run polls the transport until stop is closed. Transport-level receive
// timeouts are expected traffic (no message arrived within pollTimeout)
// and are not logged as errors.
func (r *receiver) run(stop <-chan struct{}) {
	ctx := context.Background()
	for {
		select {
		case <-stop:
			return
		default:
		}

		env, err := r.transport.Receive(ctx, r.pollTimeout)
		if err != nil {
			if _, ok := err.(*transport.MessageReceiveTimeout); ok {
				continue
			}
			if r.logger != nil {
				r.logger.Warnf(ctx, "client receive loop error", "error", err)
			}
			continue
		}

		jr := brokerpc.DecodeJobResponse(env.Body)
		r.dispatch(env.RequestID, jr, nil)
	}
}

func (r *receiver) dispatch(requestID int64, resp brokerpc.JobResponse, err error) {
	r.mu.Lock()
	f, ok := r.pending[requestID]
	if ok {
		delete(r.pending, requestID)
	}
	var subs []chan ReceivedResponse
	if !ok {
		subs = append(subs, r.subs...)
	}
	r.mu.Unlock()

	if ok {
		f.complete(resp, err)
		return
	}

	rr := ReceivedResponse{RequestID: requestID, Response: resp, Err: err}
	if len(subs) == 0 {
		r.mu.Lock()
		r.unclaimed = append(r.unclaimed, rr)
		r.mu.Unlock()
		return
	}
	for _, ch := range subs {
		select {
		case ch <- rr:
		default:
		}
	}
}
