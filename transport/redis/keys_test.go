package redis

import "testing"

func TestIngressKey(t *testing.T) {
	if got := IngressKey("users"); got != "service:users" {
		t.Fatalf("unexpected ingress key: %q", got)
	}
}

func TestReplyToKey(t *testing.T) {
	if got := ReplyToKey("users", "abc-123"); got != "service:users.abc-123!" {
		t.Fatalf("unexpected reply-to key: %q", got)
	}
}

func TestReplyToKeyDistinctPerClient(t *testing.T) {
	a := ReplyToKey("users", "client-a")
	b := ReplyToKey("users", "client-b")
	if a == b {
		t.Fatal("expected distinct reply-to keys for distinct client uuids")
	}
}
