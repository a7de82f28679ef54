package envelope

import (
	"github.com/dermesser/brokerpc/serializer"
)

// ReplyToKey is the meta key naming the client-unique queue a response
// must be enqueued to. Absent on response envelopes.
const ReplyToKey = "reply_to"

// ExpiryKey is the meta key holding the envelope's absolute expiry, in
// seconds since the Unix epoch.
const ExpiryKey = "__expiry__"

// ProtocolVersionMetaKey stashes the negotiated wire protocol version on
// an Envelope's Meta so a server can copy it from a request into its
// response without a transport-specific type leaking into the server
// package.
const ProtocolVersionMetaKey = "__protocol_version__"

// Envelope is the {body, meta, request_id} wrapper carried by every send
// and receive (spec §3, §6).
type Envelope struct {
	RequestID int64
	Meta      map[string]interface{}
	Body      map[string]interface{}
}

// ReplyTo returns the reply-to meta value, if present.
func (e Envelope) ReplyTo() (string, bool) {
	v, ok := e.Meta[ReplyToKey]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// Expiry returns the absolute expiry (seconds since epoch), if present.
func (e Envelope) Expiry() (float64, bool) {
	v, ok := e.Meta[ExpiryKey]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

func (e Envelope) toWireMap() map[string]interface{} {
	return map[string]interface{}{
		"request_id": e.RequestID,
		"meta":       e.Meta,
		"body":       e.Body,
	}
}

func fromWireMap(m map[string]interface{}) (Envelope, error) {
	env := Envelope{}
	if rid, ok := m["request_id"].(int64); ok {
		env.RequestID = rid
	}
	if meta, ok := m["meta"].(map[string]interface{}); ok {
		env.Meta = meta
	} else {
		env.Meta = map[string]interface{}{}
	}
	if body, ok := m["body"].(map[string]interface{}); ok {
		env.Body = body
	} else {
		env.Body = map[string]interface{}{}
	}
	return env, nil
}

// Encode serializes env with s and returns the bytes ready to be framed.
func Encode(s serializer.Serializer, env Envelope) ([]byte, error) {
	return s.Encode(env.toWireMap())
}

// Decode deserializes bytes produced by Encode.
func Decode(s serializer.Serializer, data []byte) (Envelope, error) {
	m, err := s.Decode(data)
	if err != nil {
		return Envelope{}, err
	}
	return fromWireMap(m)
}
