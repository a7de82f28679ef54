package client

import (
	"testing"
	"time"

	"github.com/dermesser/brokerpc"
	"github.com/dermesser/brokerpc/transport"
)

func TestFutureTimeoutIsNotCached(t *testing.T) {
	f := newFuture(1)

	_, err := f.Result(10 * time.Millisecond)
	if _, ok := err.(*transport.MessageReceiveTimeout); !ok {
		t.Fatalf("expected a receive timeout, got %v", err)
	}
	if f.Done() {
		t.Fatal("a timed-out Result must not mark the future done")
	}

	f.complete(brokerpc.JobResponse{Context: brokerpc.Context{CorrelationID: "abc"}}, nil)

	resp, err := f.Result(10 * time.Millisecond)
	if err != nil {
		t.Fatalf("expected the second Result to observe completion: %s", err)
	}
	if resp.Context.CorrelationID != "abc" {
		t.Fatalf("unexpected response: %#v", resp)
	}
	if !f.Done() {
		t.Fatal("expected the future to be done after observing completion")
	}
}

func TestFutureResultCachedAfterCompletion(t *testing.T) {
	f := newFuture(2)
	f.complete(brokerpc.JobResponse{}, nil)

	if _, err := f.Result(time.Second); err != nil {
		t.Fatalf("unexpected error: %s", err)
	}

	// A second Result call must return the cached outcome without
	// blocking on an already-closed channel.
	done := make(chan struct{})
	go func() {
		f.Result(time.Millisecond)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("cached Result call should not block")
	}
}

func TestFutureCompleteOnlyOnce(t *testing.T) {
	f := newFuture(3)
	f.complete(brokerpc.JobResponse{Context: brokerpc.Context{CorrelationID: "first"}}, nil)
	f.complete(brokerpc.JobResponse{Context: brokerpc.Context{CorrelationID: "second"}}, nil)

	resp, _ := f.Result(time.Second)
	if resp.Context.CorrelationID != "first" {
		t.Fatalf("expected the first completion to win, got %q", resp.Context.CorrelationID)
	}
}
