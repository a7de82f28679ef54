package client_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dermesser/brokerpc"
	"github.com/dermesser/brokerpc/client"
	"github.com/dermesser/brokerpc/server"
	"github.com/dermesser/brokerpc/server/metrics"
	"github.com/dermesser/brokerpc/transport/inmem"
)

func TestClientServerRoundTrip(t *testing.T) {
	broker := inmem.NewBroker()
	srv := server.New(server.Config{
		ServiceName:    "echo",
		ServerFactory:  inmem.ServerFactory{Broker: broker},
		ClientFactory:  inmem.ClientFactory{Broker: broker, ClientUUID: "nested"},
		ReceiveTimeout: 50 * time.Millisecond,
		Metrics:        metrics.NoOp{},
	})
	if err := srv.RegisterHandler("echo", func(ctx context.Context, req server.ActionRequest) (map[string]interface{}, error) {
		return req.Body, nil
	}); err != nil {
		t.Fatalf("register: %s", err)
	}

	w, err := server.NewWorker(srv, 0)
	if err != nil {
		t.Fatalf("new worker: %s", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	c := client.New(client.Options{
		Factory:        inmem.ClientFactory{Broker: broker, ClientUUID: "client-1"},
		DefaultTimeout: time.Second,
	})
	defer c.Close()

	resp, err := c.CallAction(context.Background(), "echo", "echo", map[string]interface{}{"hello": "world"}, brokerpc.Control{})
	if err != nil {
		t.Fatalf("call: %s", err)
	}
	if resp.Body["hello"] != "world" {
		t.Fatalf("unexpected response body: %#v", resp.Body)
	}
}

func TestClientRaisesActionErrors(t *testing.T) {
	broker := inmem.NewBroker()
	srv := server.New(server.Config{
		ServiceName:    "echo",
		ServerFactory:  inmem.ServerFactory{Broker: broker},
		ClientFactory:  inmem.ClientFactory{Broker: broker, ClientUUID: "nested"},
		ReceiveTimeout: 50 * time.Millisecond,
		Metrics:        metrics.NoOp{},
	})
	if err := srv.RegisterHandler("fail", func(ctx context.Context, req server.ActionRequest) (map[string]interface{}, error) {
		return nil, &server.ActionFailure{Errors: []brokerpc.Error{{Code: "BOOM", Message: "always fails"}}}
	}); err != nil {
		t.Fatalf("register: %s", err)
	}

	w, err := server.NewWorker(srv, 0)
	if err != nil {
		t.Fatalf("new worker: %s", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	c := client.New(client.Options{
		Factory:           inmem.ClientFactory{Broker: broker, ClientUUID: "client-2"},
		DefaultTimeout:    time.Second,
		RaiseActionErrors: true,
	})
	defer c.Close()

	_, err = c.CallAction(context.Background(), "echo", "fail", nil, brokerpc.Control{})
	if err == nil {
		t.Fatal("expected an error from a failing action")
	}
	var actionErr *client.CallActionError
	if !errors.As(err, &actionErr) {
		t.Fatalf("expected a *client.CallActionError, got %T: %v", err, err)
	}
	if actionErr.Actions[0].Errors[0].Code != "BOOM" {
		t.Fatalf("unexpected error code: %#v", actionErr.Actions[0].Errors)
	}
}

func TestClientParallelActionsPreserveOrder(t *testing.T) {
	broker := inmem.NewBroker()
	srv := server.New(server.Config{
		ServiceName:    "echo",
		ServerFactory:  inmem.ServerFactory{Broker: broker},
		ClientFactory:  inmem.ClientFactory{Broker: broker, ClientUUID: "nested"},
		ReceiveTimeout: 50 * time.Millisecond,
		Metrics:        metrics.NoOp{},
	})
	if err := srv.RegisterHandler("echo", func(ctx context.Context, req server.ActionRequest) (map[string]interface{}, error) {
		return req.Body, nil
	}); err != nil {
		t.Fatalf("register: %s", err)
	}

	w, err := server.NewWorker(srv, 0)
	if err != nil {
		t.Fatalf("new worker: %s", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	c := client.New(client.Options{
		Factory:        inmem.ClientFactory{Broker: broker, ClientUUID: "client-3"},
		DefaultTimeout: time.Second,
	})
	defer c.Close()

	actions := []brokerpc.ActionRequest{
		{Action: "echo", Body: map[string]interface{}{"n": int64(1)}},
		{Action: "echo", Body: map[string]interface{}{"n": int64(2)}},
		{Action: "echo", Body: map[string]interface{}{"n": int64(3)}},
	}
	resps, err := c.CallActionsParallel(context.Background(), "echo", actions, brokerpc.Control{})
	if err != nil {
		t.Fatalf("call: %s", err)
	}
	for i, resp := range resps {
		if resp.Body["n"] != int64(i+1) {
			t.Fatalf("response %d out of order: %#v", i, resp.Body)
		}
	}
}

// TestNestedClientPropagatesCorrelationID exercises spec §3's "correlation_id
// propagated unchanged through nested calls": a handler's req.Client calls a
// downstream service without ever setting WithCorrelationID/WithSwitches
// itself, and the downstream handler must still see the caller's values.
func TestNestedClientPropagatesCorrelationID(t *testing.T) {
	broker := inmem.NewBroker()

	downstream := server.New(server.Config{
		ServiceName:    "downstream",
		ServerFactory:  inmem.ServerFactory{Broker: broker},
		ClientFactory:  inmem.ClientFactory{Broker: broker, ClientUUID: "downstream-nested"},
		ReceiveTimeout: 50 * time.Millisecond,
		Metrics:        metrics.NoOp{},
	})
	downstream.RegisterHandler("whoami", func(ctx context.Context, req server.ActionRequest) (map[string]interface{}, error) {
		return map[string]interface{}{
			"correlation_id": req.Context.CorrelationID,
			"has_switch_7":   req.Context.HasSwitch(7),
		}, nil
	})
	downstreamWorker, err := server.NewWorker(downstream, 0)
	if err != nil {
		t.Fatalf("new downstream worker: %s", err)
	}

	gateway := server.New(server.Config{
		ServiceName:    "gateway",
		ServerFactory:  inmem.ServerFactory{Broker: broker},
		ClientFactory:  inmem.ClientFactory{Broker: broker, ClientUUID: "gateway-nested"},
		ReceiveTimeout: 50 * time.Millisecond,
		Metrics:        metrics.NoOp{},
	})
	gateway.RegisterHandler("fanout", func(ctx context.Context, req server.ActionRequest) (map[string]interface{}, error) {
		resp, err := req.Client.CallAction(ctx, "downstream", "whoami", nil, brokerpc.Control{})
		if err != nil {
			return nil, err
		}
		return resp.Body, nil
	})
	gatewayWorker, err := server.NewWorker(gateway, 0)
	if err != nil {
		t.Fatalf("new gateway worker: %s", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go downstreamWorker.Run(ctx)
	go gatewayWorker.Run(ctx)

	c := client.New(client.Options{
		Factory:        inmem.ClientFactory{Broker: broker, ClientUUID: "outer-client"},
		DefaultTimeout: time.Second,
	})
	defer c.Close()

	resp, err := c.CallAction(context.Background(), "gateway", "fanout", nil, brokerpc.Control{}, client.WithCorrelationID("outer-corr-id"), client.WithSwitches(7))
	if err != nil {
		t.Fatalf("call: %s", err)
	}
	if resp.Body["correlation_id"] != "outer-corr-id" {
		t.Fatalf("expected the downstream call to inherit the outer correlation_id, got %#v", resp.Body["correlation_id"])
	}
	if resp.Body["has_switch_7"] != true {
		t.Fatalf("expected the downstream call to inherit the outer switches, got %#v", resp.Body["has_switch_7"])
	}
}
