package server

import (
	"context"
	"testing"

	"github.com/dermesser/brokerpc/server/metrics"
)

func testServer() *Server {
	return New(Config{ServiceName: "test", Metrics: metrics.NoOp{}})
}

func TestRegisterHandler(t *testing.T) {
	s := testServer()
	f := func(ctx context.Context, req ActionRequest) (map[string]interface{}, error) { return nil, nil }

	if err := s.RegisterHandler("do_thing", f); err != nil {
		t.Fatalf("register: %s", err)
	}
}

func TestRegisterHandlerTwiceFails(t *testing.T) {
	s := testServer()
	f := func(ctx context.Context, req ActionRequest) (map[string]interface{}, error) { return nil, nil }

	if err := s.RegisterHandler("do_thing", f); err != nil {
		t.Fatalf("register: %s", err)
	}
	if err := s.RegisterHandler("do_thing", f); err == nil {
		t.Fatal("expected error registering the same action twice")
	}
}

func TestUnregisterUnknownFails(t *testing.T) {
	s := testServer()
	if err := s.UnregisterHandler("nope"); err == nil {
		t.Fatal("expected error unregistering an unknown action")
	}
}

func TestDefaultActionsRegistered(t *testing.T) {
	s := testServer()
	if _, ok := s.findHandler("introspect"); !ok {
		t.Fatal("expected default introspect action")
	}
	if _, ok := s.findHandler("status"); !ok {
		t.Fatal("expected default status action")
	}
}

func TestUserActionOverridesDefault(t *testing.T) {
	custom := func(ctx context.Context, req ActionRequest) (map[string]interface{}, error) {
		return map[string]interface{}{"custom": true}, nil
	}
	s := New(Config{ServiceName: "test", Metrics: metrics.NoOp{}})
	if err := s.UnregisterHandler("status"); err != nil {
		t.Fatalf("unregister: %s", err)
	}
	if err := s.RegisterHandler("status", custom); err != nil {
		t.Fatalf("register: %s", err)
	}
	h, ok := s.findHandler("status")
	if !ok {
		t.Fatal("expected status handler")
	}
	body, err := h(context.Background(), ActionRequest{})
	if err != nil {
		t.Fatalf("call: %s", err)
	}
	if body["custom"] != true {
		t.Fatalf("expected custom status handler to run, got %#v", body)
	}
}
