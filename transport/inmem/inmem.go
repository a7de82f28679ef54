// Package inmem is a trivial in-process transport used by unit tests for
// the client and server engines. It is the "local transport" spec §1
// calls a trivial variant of the same contracts, kept here strictly as a
// test utility rather than a product feature.
package inmem

import (
	"context"
	"sync"
	"time"

	"github.com/dermesser/brokerpc/envelope"
	"github.com/dermesser/brokerpc/transport"
)

// Broker is a shared in-memory rendezvous point: one buffered channel per
// service ingress queue, one per reply-to key. It plays the role the
// Redis instance plays for the production transport.
type Broker struct {
	mu       sync.Mutex
	ingress  map[string]chan envelope.Envelope
	replyTos map[string]chan envelope.Envelope
}

func NewBroker() *Broker {
	return &Broker{
		ingress:  make(map[string]chan envelope.Envelope),
		replyTos: make(map[string]chan envelope.Envelope),
	}
}

func (b *Broker) ingressChan(service string) chan envelope.Envelope {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch, ok := b.ingress[service]
	if !ok {
		ch = make(chan envelope.Envelope, 1024)
		b.ingress[service] = ch
	}
	return ch
}

func (b *Broker) replyChan(key string) chan envelope.Envelope {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch, ok := b.replyTos[key]
	if !ok {
		ch = make(chan envelope.Envelope, 1024)
		b.replyTos[key] = ch
	}
	return ch
}

// clientTransport is one client's binding to one service's ingress queue
// and this client's reply-to queue.
type clientTransport struct {
	broker  *Broker
	service string
	replyTo string
}

// ClientFactory adapts a Broker plus a per-client-instance identifier
// into a transport.ClientFactory, mirroring the reply-to key scheme
// "service:<name>.<client-uuid>!" the Redis gateway uses.
type ClientFactory struct {
	Broker       *Broker
	ClientUUID   string
}

func (f ClientFactory) NewClientTransport(service string) (transport.ClientTransport, error) {
	replyTo := "service:" + service + "." + f.ClientUUID + "!"
	return &clientTransport{broker: f.Broker, service: service, replyTo: replyTo}, nil
}

// ReplyTo returns the client's reply-to queue key.
func (c *clientTransport) ReplyTo() string { return c.replyTo }

func (c *clientTransport) Send(ctx context.Context, env envelope.Envelope) error {
	if env.Meta == nil {
		env.Meta = map[string]interface{}{}
	}
	select {
	case c.broker.ingressChan(c.service) <- env:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *clientTransport) Receive(ctx context.Context, timeout time.Duration) (envelope.Envelope, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case env := <-c.broker.replyChan(c.replyTo):
		return env, nil
	case <-timer.C:
		return envelope.Envelope{}, &transport.MessageReceiveTimeout{}
	case <-ctx.Done():
		return envelope.Envelope{}, ctx.Err()
	}
}

func (c *clientTransport) Close() error { return nil }

// serverTransport dequeues from one service's ingress queue and replies
// on whatever reply-to key the request named.
type serverTransport struct {
	broker  *Broker
	service string
}

// ServerFactory adapts a Broker into a transport.ServerFactory.
type ServerFactory struct {
	Broker *Broker
}

func (f ServerFactory) NewServerTransport(service string) (transport.ServerTransport, error) {
	return &serverTransport{broker: f.Broker, service: service}, nil
}

func (s *serverTransport) ReceiveRequest(ctx context.Context, timeout time.Duration) (envelope.Envelope, bool, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case env := <-s.broker.ingressChan(s.service):
		return env, true, nil
	case <-timer.C:
		return envelope.Envelope{}, false, nil
	case <-ctx.Done():
		return envelope.Envelope{}, false, ctx.Err()
	}
}

func (s *serverTransport) SendResponse(ctx context.Context, replyTo string, env envelope.Envelope) error {
	select {
	case s.broker.replyChan(replyTo) <- env:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *serverTransport) Close() error { return nil }
