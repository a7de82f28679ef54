package client

import (
	"sync"
	"time"

	"github.com/dermesser/brokerpc"
	"github.com/dermesser/brokerpc/transport"
)

// Future is grounded on the request/response future pattern (a channel
// closed once by the producer, result cached under a mutex) but adds the
// re-awaitable-after-timeout contract spec §4.5 requires: a Result call
// that times out leaves the future exactly as it was, so a caller may
// retry Result later, while a Result call that actually observes the
// completion permanently caches it.
type Future struct {
	requestID int64

	ch   chan struct{}
	once sync.Once

	mu        sync.Mutex
	resp      brokerpc.JobResponse
	err       error
	retrieved bool
}

func newFuture(requestID int64) *Future {
	return &Future{requestID: requestID, ch: make(chan struct{})}
}

// complete resolves the future, either from the engine's receive loop when
// a response for requestID arrives or directly by the engine (e.g. for a
// suppressed response). Only the first call takes effect; later calls are
// ignored. Close does not complete outstanding futures.
func (f *Future) complete(resp brokerpc.JobResponse, err error) {
	f.once.Do(func() {
		f.mu.Lock()
		f.resp, f.err = resp, err
		f.mu.Unlock()
		close(f.ch)
	})
}

// Done reports whether Result has ever returned successfully for this
// future. It is false both before completion and after a Result call
// that timed out without observing completion.
func (f *Future) Done() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.retrieved
}

// Result blocks up to timeout for the response. A timeout returns
// *transport.MessageReceiveTimeout and is not cached: a later Result
// call may still observe the eventual response. Any other outcome,
// including an error, is cached and re-returned by later calls without
// waiting again.
func (f *Future) Result(timeout time.Duration) (brokerpc.JobResponse, error) {
	f.mu.Lock()
	if f.retrieved {
		resp, err := f.resp, f.err
		f.mu.Unlock()
		return resp, err
	}
	f.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-f.ch:
		f.mu.Lock()
		f.retrieved = true
		resp, err := f.resp, f.err
		f.mu.Unlock()
		return resp, err
	case <-timer.C:
		return brokerpc.JobResponse{}, &transport.MessageReceiveTimeout{RequestID: f.requestID}
	}
}
