package redis

import (
	"testing"
	"time"

	"github.com/dermesser/brokerpc/envelope"
)

func TestWithDefaultTimeoutAppliesFloor(t *testing.T) {
	if got := withDefaultTimeout(0); got != 100*time.Millisecond {
		t.Fatalf("expected the 100ms floor, got %s", got)
	}
	if got := withDefaultTimeout(5 * time.Second); got != 5*time.Second {
		t.Fatalf("expected the given duration to pass through, got %s", got)
	}
}

func TestProtocolVersionOfDefaultsToV1(t *testing.T) {
	env := envelope.Envelope{}
	if got := protocolVersionOf(env); got != envelope.Version1 {
		t.Fatalf("expected version 1 default, got %d", got)
	}
}

func TestProtocolVersionOfReadsMeta(t *testing.T) {
	env := envelope.Envelope{Meta: map[string]interface{}{ProtocolVersionMetaKey: envelope.Version3}}
	if got := protocolVersionOf(env); got != envelope.Version3 {
		t.Fatalf("expected version 3, got %d", got)
	}
}
