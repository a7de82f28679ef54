package serializer

import "fmt"

// SerializationFailure wraps a cause encountered while encoding a body.
type SerializationFailure struct {
	Cause error
}

func (e *SerializationFailure) Error() string {
	return fmt.Sprintf("serialization failure: %s", e.Cause)
}

func (e *SerializationFailure) Unwrap() error { return e.Cause }

// DeserializationFailure wraps a cause encountered while decoding bytes.
type DeserializationFailure struct {
	Cause error
}

func (e *DeserializationFailure) Error() string {
	return fmt.Sprintf("deserialization failure: %s", e.Cause)
}

func (e *DeserializationFailure) Unwrap() error { return e.Cause }
