// Package redis implements the production Redis-list transport (spec
// §4.3): RPUSH/BLPOP queueing, capacity back-pressure, expiry, and
// server->client response chunking for protocol version 3 clients.
package redis

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/dustin/go-humanize"
	goredis "github.com/redis/go-redis/v9"

	"github.com/dermesser/brokerpc/envelope"
	"github.com/dermesser/brokerpc/serializer"
	"github.com/dermesser/brokerpc/transport"
)

// ProtocolVersionMetaKey re-exports envelope.ProtocolVersionMetaKey for
// callers already importing this package; envelope is the single source
// of truth so the server package can copy the key without importing
// transport/redis.
const ProtocolVersionMetaKey = envelope.ProtocolVersionMetaKey

// logger is the subset of *rpclog.Logger the gateway needs.
type logger interface {
	Warnf(ctx context.Context, msg string, args ...any)
	Debugf(ctx context.Context, msg string, args ...any)
}

// Config controls queue discipline for both client and server gateways.
type Config struct {
	Backend *Backend

	Serializer      serializer.Serializer
	ProtocolVersion int // version this side advertises when framing sends

	QueueCapacity    int
	QueueFullRetries int

	MaxMessageBytes int
	ChunkThreshold  int
	WarnLargerThan  int

	ChunkGapWait time.Duration

	Logger logger
}

func (c Config) logWarn(ctx context.Context, msg string, args ...any) {
	if c.Logger != nil {
		c.Logger.Warnf(ctx, msg, args...)
	}
}

func withDefaultTimeout(d time.Duration) time.Duration {
	if d <= 0 {
		return 100 * time.Millisecond
	}
	return d
}

// ClientTransport implements transport.ClientTransport against one
// service's ingress queue and one client-scoped reply-to queue.
type ClientTransport struct {
	cfg     Config
	service string
	replyTo string
}

// NewClientTransport builds a ClientTransport for service, using
// clientUUID to compute this client's reply-to key.
func NewClientTransport(cfg Config, service, clientUUID string) *ClientTransport {
	return &ClientTransport{cfg: cfg, service: service, replyTo: ReplyToKey(service, clientUUID)}
}

// ReplyTo returns the client's reply-to queue key.
func (c *ClientTransport) ReplyTo() string { return c.replyTo }

func (c *ClientTransport) Send(ctx context.Context, env envelope.Envelope) error {
	if env.Meta == nil {
		env.Meta = map[string]interface{}{}
	}

	data, err := envelope.Encode(c.cfg.Serializer, env)
	if err != nil {
		return err
	}

	if c.cfg.MaxMessageBytes > 0 && len(data) > c.cfg.MaxMessageBytes {
		return &transport.MessageTooLarge{SizeBytes: len(data), LimitBytes: c.cfg.MaxMessageBytes}
	}
	if c.cfg.WarnLargerThan > 0 && len(data) > c.cfg.WarnLargerThan {
		c.cfg.logWarn(ctx, "large request envelope", "service", c.service, "size", humanize.Bytes(uint64(len(data))))
	}

	framed := envelope.EncodeFrame(c.cfg.ProtocolVersion, envelope.Headers{ContentType: c.cfg.Serializer.ContentType()}, data)

	ingress := IngressKey(c.service)
	if err := c.pushWithCapacityRetry(ctx, ingress, framed); err != nil {
		return err
	}

	expiry, _ := env.Expiry()
	return applyExpiry(ctx, c.cfg.Backend.Writer(), ingress, expiry)
}

func (c *ClientTransport) pushWithCapacityRetry(ctx context.Context, key string, framed []byte) error {
	retries := c.cfg.QueueFullRetries
	var bo *backoff.ExponentialBackOff
	if retries > 0 {
		bo = backoff.NewExponentialBackOff()
	}
	for attempt := 0; ; attempt++ {
		if c.cfg.QueueCapacity > 0 {
			n, err := c.cfg.Backend.Reader().LLen(ctx, key).Result()
			if err != nil {
				return &transport.ConnectionFailure{Cause: err}
			}
			if int(n) >= c.cfg.QueueCapacity {
				if attempt >= retries {
					return &transport.MessageSendFailure{Reason: transport.ReasonQueueFull}
				}
				select {
				case <-time.After(bo.NextBackOff()):
				case <-ctx.Done():
					return ctx.Err()
				}
				continue
			}
		}
		if err := c.cfg.Backend.Writer().RPush(ctx, key, framed).Err(); err != nil {
			return &transport.MessageSendFailure{Reason: transport.ReasonIO, Cause: err}
		}
		return nil
	}
}

// receivedFrame is one BLPOP result, decoded far enough to know whether
// it is a whole response or one chunk of a chunked one.
type receivedFrame struct {
	env     envelope.Envelope
	headers envelope.Headers
	raw     []byte // valid only when headers.ChunkCount > 1
}

func (c *ClientTransport) Receive(ctx context.Context, timeout time.Duration) (envelope.Envelope, error) {
	deadline := time.Now().Add(timeout)

	first, err := c.blpopFrame(ctx, c.replyTo, timeout)
	if err != nil {
		return envelope.Envelope{}, err
	}
	if first.headers.ChunkCount <= 1 {
		return first.env, nil
	}

	reasm := envelope.NewReassembler()
	contentType := first.headers.ContentType
	if err := reasm.Add(first.headers.ChunkCount, first.headers.ChunkID, first.raw); err != nil {
		return envelope.Envelope{}, err
	}
	for !reasm.Done() {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			remaining = c.cfg.ChunkGapWait
		}
		next, err := c.blpopFrame(ctx, c.replyTo, remaining)
		if err != nil {
			return envelope.Envelope{}, err
		}
		if err := reasm.Add(next.headers.ChunkCount, next.headers.ChunkID, next.raw); err != nil {
			return envelope.Envelope{}, err
		}
		if !reasm.Done() && reasm.Expired(c.cfg.ChunkGapWait) {
			return envelope.Envelope{}, &envelope.MessageReceiveFailure{Reason: envelope.ReasonChunkGap}
		}
	}

	s := c.serializerFor(contentType)
	return envelope.Decode(s, reasm.Bytes())
}

func (c *ClientTransport) Close() error { return nil }

func (c *ClientTransport) blpopFrame(ctx context.Context, key string, timeout time.Duration) (receivedFrame, error) {
	res, err := c.cfg.Backend.Writer().BLPop(ctx, withDefaultTimeout(timeout), key).Result()
	if err == goredis.Nil {
		return receivedFrame{}, &transport.MessageReceiveTimeout{}
	}
	if err != nil {
		return receivedFrame{}, &transport.ConnectionFailure{Cause: err}
	}
	raw := []byte(res[1])

	version, headers, payload, err := envelope.DecodeFrame(raw)
	if err != nil {
		return receivedFrame{}, err
	}
	if err := envelope.ValidateChunkHeaders(headers); err != nil {
		return receivedFrame{}, err
	}

	if headers.ChunkCount > 1 {
		return receivedFrame{headers: headers, raw: payload}, nil
	}

	s := c.serializerForVersion(version, headers.ContentType)
	env, err := envelope.Decode(s, payload)
	if err != nil {
		return receivedFrame{}, err
	}
	return receivedFrame{env: env, headers: headers}, nil
}

func (c *ClientTransport) serializerForVersion(version int, contentType string) serializer.Serializer {
	if version >= envelope.Version2 {
		return c.serializerFor(contentType)
	}
	return c.cfg.Serializer
}

func (c *ClientTransport) serializerFor(contentType string) serializer.Serializer {
	if contentType != "" {
		if s := serializer.Lookup(contentType); s != nil {
			return s
		}
	}
	return c.cfg.Serializer
}

// ServerTransport implements transport.ServerTransport for one service's
// ingress queue.
type ServerTransport struct {
	cfg     Config
	service string
}

func NewServerTransport(cfg Config, service string) *ServerTransport {
	return &ServerTransport{cfg: cfg, service: service}
}

func (st *ServerTransport) ReceiveRequest(ctx context.Context, timeout time.Duration) (envelope.Envelope, bool, error) {
	ingress := IngressKey(st.service)
	res, err := st.cfg.Backend.Writer().BLPop(ctx, withDefaultTimeout(timeout), ingress).Result()
	if err == goredis.Nil {
		return envelope.Envelope{}, false, nil
	}
	if err != nil {
		return envelope.Envelope{}, false, &transport.ConnectionFailure{Cause: err}
	}
	raw := []byte(res[1])

	version, headers, payload, err := envelope.DecodeFrame(raw)
	if err != nil {
		return envelope.Envelope{}, false, err
	}

	dec := st.cfg.Serializer
	if headers.ContentType != "" {
		if looked := serializer.Lookup(headers.ContentType); looked != nil {
			dec = looked
		}
	}

	env, err := envelope.Decode(dec, payload)
	if err != nil {
		return envelope.Envelope{}, false, err
	}
	if env.Meta == nil {
		env.Meta = map[string]interface{}{}
	}
	env.Meta[ProtocolVersionMetaKey] = version

	if expiry, ok := env.Expiry(); ok && expiry < float64(time.Now().Unix()) {
		return envelope.Envelope{}, false, nil
	}

	return env, true, nil
}

func (st *ServerTransport) SendResponse(ctx context.Context, replyTo string, env envelope.Envelope) error {
	version := protocolVersionOf(env)

	data, err := envelope.Encode(st.cfg.Serializer, env)
	if err != nil {
		return err
	}

	if st.cfg.MaxMessageBytes > 0 && len(data) > st.cfg.MaxMessageBytes && version < envelope.Version3 {
		return &transport.ResponseTooLarge{SizeBytes: len(data), LimitBytes: st.cfg.MaxMessageBytes}
	}
	if st.cfg.WarnLargerThan > 0 && len(data) > st.cfg.WarnLargerThan {
		st.cfg.logWarn(ctx, "large response envelope", "service", st.service, "size", humanize.Bytes(uint64(len(data))))
	}

	expiry, _ := env.Expiry()

	if st.cfg.ChunkThreshold > 0 && len(data) > st.cfg.ChunkThreshold && version >= envelope.Version3 {
		return st.sendChunked(ctx, replyTo, data, expiry)
	}
	return st.sendSingle(ctx, replyTo, data, version, expiry)
}

func (st *ServerTransport) sendSingle(ctx context.Context, replyTo string, data []byte, version int, expiry float64) error {
	framed := envelope.EncodeFrame(version, envelope.Headers{ContentType: st.cfg.Serializer.ContentType()}, data)
	if err := st.cfg.Backend.Writer().RPush(ctx, replyTo, framed).Err(); err != nil {
		return &transport.MessageSendFailure{Reason: transport.ReasonIO, Cause: err}
	}
	return applyExpiry(ctx, st.cfg.Backend.Writer(), replyTo, expiry)
}

func (st *ServerTransport) sendChunked(ctx context.Context, replyTo string, data []byte, expiry float64) error {
	chunkSize := st.cfg.ChunkThreshold
	count := (len(data) + chunkSize - 1) / chunkSize
	if count < 1 {
		count = 1
	}
	for i := 0; i < count; i++ {
		start := i * chunkSize
		end := start + chunkSize
		if end > len(data) {
			end = len(data)
		}
		headers := envelope.Headers{ContentType: st.cfg.Serializer.ContentType(), ChunkCount: count, ChunkID: i + 1}
		framed := envelope.EncodeFrame(envelope.Version3, headers, data[start:end])
		if err := st.cfg.Backend.Writer().RPush(ctx, replyTo, framed).Err(); err != nil {
			return &transport.MessageSendFailure{Reason: transport.ReasonIO, Cause: err}
		}
	}
	return applyExpiry(ctx, st.cfg.Backend.Writer(), replyTo, expiry)
}

func (st *ServerTransport) Close() error { return nil }

func protocolVersionOf(env envelope.Envelope) int {
	if v, ok := env.Meta[ProtocolVersionMetaKey]; ok {
		if n, ok := v.(int); ok {
			return n
		}
	}
	return envelope.Version1
}

func applyExpiry(ctx context.Context, w *goredis.Client, key string, expiryEpochSeconds float64) error {
	if expiryEpochSeconds <= 0 {
		return nil
	}
	ttl := time.Until(time.Unix(int64(expiryEpochSeconds), 0))
	if ttl < time.Second {
		ttl = time.Second
	}
	if err := w.Expire(ctx, key, ttl).Err(); err != nil {
		return &transport.ConnectionFailure{Cause: err}
	}
	return nil
}

// ClientFactory adapts a Config template plus a per-client-instance
// identifier into a transport.ClientFactory.
type ClientFactory struct {
	Config     Config
	ClientUUID string
}

func (f ClientFactory) NewClientTransport(service string) (transport.ClientTransport, error) {
	return NewClientTransport(f.Config, service, f.ClientUUID), nil
}

// ServerFactory adapts a Config template into a transport.ServerFactory.
type ServerFactory struct {
	Config Config
}

func (f ServerFactory) NewServerTransport(service string) (transport.ServerTransport, error) {
	return NewServerTransport(f.Config, service), nil
}
