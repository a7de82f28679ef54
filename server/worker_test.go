package server

import (
	"context"
	"testing"
	"time"

	"github.com/dermesser/brokerpc"
	"github.com/dermesser/brokerpc/envelope"
)

// spyServerTransport records the envelope handed to SendResponse so tests
// can inspect what actually went out over the wire.
type spyServerTransport struct {
	sentReplyTo string
	sentEnv     envelope.Envelope
}

func (s *spyServerTransport) ReceiveRequest(ctx context.Context, timeout time.Duration) (envelope.Envelope, bool, error) {
	return envelope.Envelope{}, false, nil
}

func (s *spyServerTransport) SendResponse(ctx context.Context, replyTo string, env envelope.Envelope) error {
	s.sentReplyTo = replyTo
	s.sentEnv = env
	return nil
}

func (s *spyServerTransport) Close() error { return nil }

func newTestWorker(t *testing.T, cfg Config) (*Worker, *Server) {
	t.Helper()
	if cfg.MaxTracebackLength <= 0 {
		cfg.MaxTracebackLength = 4096
	}
	srv := New(cfg)
	return &Worker{server: srv}, srv
}

func TestDispatchActionUnknownAction(t *testing.T) {
	w, _ := newTestWorker(t, Config{})
	jr := brokerpc.JobRequest{Context: brokerpc.NewContext("c1")}
	ar := w.dispatchAction(jr, brokerpc.ActionRequest{Action: "nonexistent"})
	if len(ar.Errors) != 1 || ar.Errors[0].Code != ErrUnknownAction {
		t.Fatalf("expected UNKNOWN_ACTION, got %+v", ar.Errors)
	}
	if !ar.Errors[0].IsCallerError {
		t.Fatal("expected unknown action to be flagged as a caller error")
	}
}

func TestDispatchActionRecoversPanic(t *testing.T) {
	w, srv := newTestWorker(t, Config{})
	srv.RegisterHandler("boom", func(ctx context.Context, req ActionRequest) (map[string]interface{}, error) {
		panic("kaboom")
	})
	jr := brokerpc.JobRequest{Context: brokerpc.NewContext("c1")}
	ar := w.dispatchAction(jr, brokerpc.ActionRequest{Action: "boom"})
	if len(ar.Errors) != 1 || ar.Errors[0].Code != ErrServerError {
		t.Fatalf("expected SERVER_ERROR after panic recovery, got %+v", ar.Errors)
	}
	if ar.Errors[0].Traceback == "" {
		t.Fatal("expected a traceback to be attached")
	}
	if ar.Errors[0].IsCallerError {
		t.Fatal("a panic is never the caller's fault")
	}
}

func TestDispatchActionTruncatesTraceback(t *testing.T) {
	w, srv := newTestWorker(t, Config{MaxTracebackLength: 16})
	srv.RegisterHandler("boom", func(ctx context.Context, req ActionRequest) (map[string]interface{}, error) {
		panic("kaboom")
	})
	jr := brokerpc.JobRequest{Context: brokerpc.NewContext("c1")}
	ar := w.dispatchAction(jr, brokerpc.ActionRequest{Action: "boom"})
	if len(ar.Errors[0].Traceback) > 16 {
		t.Fatalf("expected traceback truncated to 16 bytes, got %d", len(ar.Errors[0].Traceback))
	}
}

func TestDispatchActionCarriesActionFailure(t *testing.T) {
	w, srv := newTestWorker(t, Config{})
	srv.RegisterHandler("fail", func(ctx context.Context, req ActionRequest) (map[string]interface{}, error) {
		return nil, &ActionFailure{Errors: []brokerpc.Error{{Code: "BOOM", Message: "nope", IsCallerError: true}}}
	})
	jr := brokerpc.JobRequest{Context: brokerpc.NewContext("c1")}
	ar := w.dispatchAction(jr, brokerpc.ActionRequest{Action: "fail"})
	if len(ar.Errors) != 1 || ar.Errors[0].Code != "BOOM" {
		t.Fatalf("expected the handler's own ActionFailure to pass through, got %+v", ar.Errors)
	}
}

func TestDispatchActionWrapsPlainError(t *testing.T) {
	w, srv := newTestWorker(t, Config{})
	srv.RegisterHandler("fail", func(ctx context.Context, req ActionRequest) (map[string]interface{}, error) {
		return nil, errPlain("db unavailable")
	})
	jr := brokerpc.JobRequest{Context: brokerpc.NewContext("c1")}
	ar := w.dispatchAction(jr, brokerpc.ActionRequest{Action: "fail"})
	if len(ar.Errors) != 1 || ar.Errors[0].Code != ErrServerError {
		t.Fatalf("expected a plain error to be wrapped as SERVER_ERROR, got %+v", ar.Errors)
	}
	if ar.Errors[0].Message != "db unavailable" {
		t.Fatalf("expected the original message to survive, got %q", ar.Errors[0].Message)
	}
}

type errPlain string

func (e errPlain) Error() string { return string(e) }

func TestDispatchActionRunsResponseValidator(t *testing.T) {
	w, srv := newTestWorker(t, Config{ResponseValidator: rejectingValidator{}})
	srv.RegisterHandler("ok", func(ctx context.Context, req ActionRequest) (map[string]interface{}, error) {
		return map[string]interface{}{"x": 1}, nil
	})
	jr := brokerpc.JobRequest{Context: brokerpc.NewContext("c1")}
	ar := w.dispatchAction(jr, brokerpc.ActionRequest{Action: "ok"})
	if len(ar.Errors) == 0 || ar.Errors[0].Code != ErrResponseInvalid {
		t.Fatalf("expected RESPONSE_NOT_VALID, got %+v", ar.Errors)
	}
	if ar.Body == nil {
		t.Fatal("expected the response body to survive a validation failure")
	}
}

type rejectingValidator struct{}

func (rejectingValidator) ValidateResponse(action string, body map[string]interface{}) []brokerpc.Error {
	return []brokerpc.Error{{Code: "BAD_FIELD", Field: "x"}}
}

func TestProcessJobStopsOnErrorByDefault(t *testing.T) {
	w, srv := newTestWorker(t, Config{})
	var calls []string
	srv.RegisterHandler("fail", func(ctx context.Context, req ActionRequest) (map[string]interface{}, error) {
		calls = append(calls, "fail")
		return nil, &ActionFailure{Errors: []brokerpc.Error{{Code: "BOOM"}}}
	})
	srv.RegisterHandler("after", func(ctx context.Context, req ActionRequest) (map[string]interface{}, error) {
		calls = append(calls, "after")
		return map[string]interface{}{}, nil
	})
	jr := brokerpc.JobRequest{
		Context: brokerpc.NewContext("c1"),
		Actions: []brokerpc.ActionRequest{{Action: "fail"}, {Action: "after"}},
	}
	resp, err := w.processJob(jr)
	if err != nil {
		t.Fatalf("processJob itself never returns an error, got %v", err)
	}
	if len(resp.Actions) != 1 {
		t.Fatalf("expected dispatch to stop after the first failing action, got %d actions run", len(resp.Actions))
	}
	if len(calls) != 1 || calls[0] != "fail" {
		t.Fatalf("expected only the failing action to run, got %v", calls)
	}
}

func TestProcessJobContinuesOnErrorWhenRequested(t *testing.T) {
	w, srv := newTestWorker(t, Config{})
	srv.RegisterHandler("fail", func(ctx context.Context, req ActionRequest) (map[string]interface{}, error) {
		return nil, &ActionFailure{Errors: []brokerpc.Error{{Code: "BOOM"}}}
	})
	srv.RegisterHandler("after", func(ctx context.Context, req ActionRequest) (map[string]interface{}, error) {
		return map[string]interface{}{"ran": true}, nil
	})
	jr := brokerpc.JobRequest{
		Context: brokerpc.NewContext("c1"),
		Control: brokerpc.Control{ContinueOnError: true},
		Actions: []brokerpc.ActionRequest{{Action: "fail"}, {Action: "after"}},
	}
	resp, _ := w.processJob(jr)
	if len(resp.Actions) != 2 {
		t.Fatalf("expected both actions to run, got %d", len(resp.Actions))
	}
	if resp.Actions[1].Body["ran"] != true {
		t.Fatal("expected the second action's body to come through")
	}
}

func TestProcessJobRunsJobValidator(t *testing.T) {
	w, _ := newTestWorker(t, Config{JobValidator: rejectingJobValidator{}})
	jr := brokerpc.JobRequest{Context: brokerpc.NewContext("c1"), Actions: []brokerpc.ActionRequest{{Action: "whatever"}}}
	resp, _ := w.processJob(jr)
	if len(resp.Actions) != 0 {
		t.Fatalf("expected no actions to run once job validation fails, got %d", len(resp.Actions))
	}
	if len(resp.Errors) != 1 || resp.Errors[0].Code != ErrJobInvalid {
		t.Fatalf("expected a JOB_INVALID job-level error, got %+v", resp.Errors)
	}
}

type rejectingJobValidator struct{}

func (rejectingJobValidator) ValidateJob(jr brokerpc.JobRequest) []brokerpc.Error {
	return []brokerpc.Error{{Code: ErrJobInvalid, Message: "missing required action"}}
}

func TestHandleOneCopiesExpiryAndProtocolVersionToResponse(t *testing.T) {
	spy := &spyServerTransport{}
	w, srv := newTestWorker(t, Config{})
	w.transport = spy
	srv.RegisterHandler("echo", func(ctx context.Context, req ActionRequest) (map[string]interface{}, error) {
		return req.Body, nil
	})

	jr := brokerpc.JobRequest{
		Context: brokerpc.NewContext("c1"),
		Actions: []brokerpc.ActionRequest{{Action: "echo"}},
	}
	env := envelope.Envelope{
		RequestID: 1,
		Meta: map[string]interface{}{
			envelope.ReplyToKey:            "service:test.client!",
			envelope.ExpiryKey:             float64(1234567890),
			envelope.ProtocolVersionMetaKey: 3,
		},
		Body: brokerpc.EncodeJobRequest(jr),
	}

	w.handleOne(context.Background(), env)

	if spy.sentEnv.Meta[envelope.ExpiryKey] != float64(1234567890) {
		t.Fatalf("expected the request's expiry to carry over to the response, got %#v", spy.sentEnv.Meta[envelope.ExpiryKey])
	}
	if spy.sentEnv.Meta[envelope.ProtocolVersionMetaKey] != 3 {
		t.Fatalf("expected the request's protocol version to carry over to the response, got %#v", spy.sentEnv.Meta[envelope.ProtocolVersionMetaKey])
	}
}

func TestDispatchActionScopesNestedClientToRequestContext(t *testing.T) {
	w, srv := newTestWorker(t, Config{})
	var seenCorrelationID string
	var sawSwitch7 bool
	srv.RegisterHandler("whoami", func(ctx context.Context, req ActionRequest) (map[string]interface{}, error) {
		seenCorrelationID = req.Client.Context().CorrelationID
		_, sawSwitch7 = req.Client.Context().Switches[7]
		return nil, nil
	})

	callerCtx := brokerpc.NewContext("caller-corr-id")
	callerCtx.Switches[7] = struct{}{}
	jr := brokerpc.JobRequest{Context: callerCtx}
	w.dispatchAction(jr, brokerpc.ActionRequest{Action: "whoami"})

	if seenCorrelationID != "caller-corr-id" {
		t.Fatalf("expected the nested client to default to the caller's correlation_id, got %q", seenCorrelationID)
	}
	if !sawSwitch7 {
		t.Fatal("expected the nested client to default to the caller's switches")
	}
}

func TestHandleOneSuppressesResponseWithoutSendingOne(t *testing.T) {
	spy := &spyServerTransport{}
	w, srv := newTestWorker(t, Config{})
	w.transport = spy
	srv.RegisterHandler("echo", func(ctx context.Context, req ActionRequest) (map[string]interface{}, error) {
		return req.Body, nil
	})

	jr := brokerpc.JobRequest{
		Context: brokerpc.NewContext("c1"),
		Control: brokerpc.Control{SuppressResponse: true},
		Actions: []brokerpc.ActionRequest{{Action: "echo"}},
	}
	env := envelope.Envelope{
		RequestID: 1,
		Body:      brokerpc.EncodeJobRequest(jr),
	}

	w.handleOne(context.Background(), env)

	if spy.sentEnv.RequestID != 0 {
		t.Fatalf("expected no response to be sent for a suppressed request, got %#v", spy.sentEnv)
	}
}
