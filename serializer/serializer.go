// Package serializer encodes and decodes the nested body maps that flow
// through envelopes: strings, nested maps/lists, 64-bit integers, IEEE
// doubles, booleans, null, and the extension types in types.go.
package serializer

// Serializer is implemented by each wire codec (binary packed, textual).
type Serializer interface {
	// Encode serializes body to bytes, or returns *SerializationFailure.
	Encode(body map[string]interface{}) ([]byte, error)
	// Decode deserializes bytes back into a body map, or returns
	// *DeserializationFailure.
	Decode(data []byte) (map[string]interface{}, error)
	// ContentType is the MIME-style content type advertised in the
	// envelope frame preamble (§4.2).
	ContentType() string
}

// registry maps a content type to its Serializer, populated by the
// package-level Register calls in msgpack.go and json.go.
var registry = map[string]Serializer{}

// Register makes s available under its own ContentType() for envelope
// codec lookups keyed by the wire preamble's content-type header.
func Register(s Serializer) {
	registry[s.ContentType()] = s
}

// Lookup returns the Serializer registered for contentType, or nil.
func Lookup(contentType string) Serializer {
	return registry[contentType]
}
