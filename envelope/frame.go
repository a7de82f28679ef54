// Package envelope implements the wire framing preamble and the
// {body, meta, request_id} payload wrapper described in spec §4.2.
package envelope

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Protocol versions understood by this implementation.
const (
	Version1 = 1 // bare serialized envelope, content type by prior agreement
	Version2 = 2 // preamble with content-type header
	Version3 = 3 // preamble additionally supports chunk-count/chunk-id
)

const preamblePrefix = "brokerpc-redis/"

var preambleRE = regexp.MustCompile(`^brokerpc-redis/([0-9]+)//((?:[a-z\-]+:[^;]*;)*)`)

// Headers holds the known preamble headers. Unknown header names
// encountered while decoding are ignored per spec §4.2.
type Headers struct {
	ContentType string
	ChunkCount  int // 0 means "not chunked"
	ChunkID     int // 1-indexed
}

// EncodeFrame renders a wire frame for the given protocol version. For
// version 1 the payload is returned unmodified; versions 2 and 3 gain the
// ASCII preamble.
func EncodeFrame(version int, h Headers, payload []byte) []byte {
	if version <= Version1 {
		return payload
	}

	var b strings.Builder
	b.WriteString(preamblePrefix)
	b.WriteString(strconv.Itoa(version))
	b.WriteString("//")
	if h.ContentType != "" {
		b.WriteString("content-type:")
		b.WriteString(h.ContentType)
		b.WriteString(";")
	}
	if version >= Version3 && h.ChunkCount > 0 {
		b.WriteString("chunk-count:")
		b.WriteString(strconv.Itoa(h.ChunkCount))
		b.WriteString(";")
		b.WriteString("chunk-id:")
		b.WriteString(strconv.Itoa(h.ChunkID))
		b.WriteString(";")
	}
	out := make([]byte, 0, b.Len()+len(payload))
	out = append(out, []byte(b.String())...)
	out = append(out, payload...)
	return out
}

// DecodeFrame parses a wire frame, returning the protocol version, its
// headers, and the remaining payload bytes. Absence of the preamble
// means version 1 and an empty Headers (content type is then assumed
// from prior agreement by the caller).
func DecodeFrame(data []byte) (version int, h Headers, payload []byte, err error) {
	if !strings.HasPrefix(string(data), preamblePrefix) {
		return Version1, Headers{}, data, nil
	}

	m := preambleRE.FindSubmatch(data)
	if m == nil {
		return 0, Headers{}, nil, &InvalidMessage{Reason: "malformed preamble"}
	}

	v, convErr := strconv.Atoi(string(m[1]))
	if convErr != nil {
		return 0, Headers{}, nil, &InvalidMessage{Reason: "non-numeric protocol version"}
	}

	headerBlob := string(m[2])
	headers := Headers{}
	for _, kv := range strings.Split(headerBlob, ";") {
		if kv == "" {
			continue
		}
		parts := strings.SplitN(kv, ":", 2)
		if len(parts) != 2 {
			continue
		}
		key, value := parts[0], parts[1]
		switch key {
		case "content-type":
			headers.ContentType = value
		case "chunk-count":
			if v >= Version3 {
				n, convErr := strconv.Atoi(value)
				if convErr != nil {
					return 0, Headers{}, nil, &InvalidMessage{Reason: "non-numeric chunk-count"}
				}
				headers.ChunkCount = n
			}
		case "chunk-id":
			if v >= Version3 {
				n, convErr := strconv.Atoi(value)
				if convErr != nil {
					return 0, Headers{}, nil, &InvalidMessage{Reason: "non-numeric chunk-id"}
				}
				headers.ChunkID = n
			}
		default:
			// unknown headers are ignored
		}
	}

	rest := data[len(m[0]):]
	return v, headers, rest, nil
}

// ValidateChunkHeaders checks the invariant chunk-id in [1, chunk-count].
func ValidateChunkHeaders(h Headers) error {
	if h.ChunkCount <= 0 {
		return nil
	}
	if h.ChunkID < 1 || h.ChunkID > h.ChunkCount {
		return &InvalidMessage{Reason: fmt.Sprintf("chunk-id %d out of range [1,%d]", h.ChunkID, h.ChunkCount)}
	}
	return nil
}
