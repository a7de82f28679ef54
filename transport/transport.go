// Package transport defines the pluggable send/receive contract shared by
// the client and server engines (spec §4.3, §5). Concrete
// implementations live in transport/redis (production) and
// transport/inmem (test utility, spec §9's "trivial local transport").
package transport

import (
	"context"
	"time"

	"github.com/dermesser/brokerpc/envelope"
)

// ClientTransport is the client-side half of a pluggable transport: send
// a job request envelope to a named service, then block for the matching
// response envelope on this client's reply-to queue.
type ClientTransport interface {
	Send(ctx context.Context, env envelope.Envelope) error
	Receive(ctx context.Context, timeout time.Duration) (envelope.Envelope, error)
	// ReplyTo returns this client's reply-to queue key, so a caller can
	// decide whether to attach it to a request (spec §6: omitted
	// entirely when control.suppress_response is set).
	ReplyTo() string
	Close() error
}

// ServerTransport is the server-side half: dequeue requests for one
// service, and enqueue responses back to the caller that sent them.
type ServerTransport interface {
	// ReceiveRequest blocks up to timeout for a request. ok is false on
	// a plain timeout (no message available); err is non-nil only for
	// transport failures.
	ReceiveRequest(ctx context.Context, timeout time.Duration) (env envelope.Envelope, ok bool, err error)
	SendResponse(ctx context.Context, replyTo string, env envelope.Envelope) error
	Close() error
}

// ClientFactory constructs a ClientTransport bound to one service. A
// client engine holds one factory and lazily builds one ClientTransport
// per service it calls.
type ClientFactory interface {
	NewClientTransport(service string) (ClientTransport, error)
}

// ServerFactory constructs the single ServerTransport a server process
// dequeues from.
type ServerFactory interface {
	NewServerTransport(service string) (ServerTransport, error)
}
