package rpclog

import "testing"

func TestRedactReplacesCensoredFields(t *testing.T) {
	l := New(LevelInfo, nil, []string{"password"})
	body := map[string]interface{}{"user": "alice", "password": "hunter2"}
	got := l.Redact(body)
	if got["password"] != "***REDACTED***" {
		t.Fatalf("expected password redacted, got %v", got["password"])
	}
	if got["user"] != "alice" {
		t.Fatalf("expected user field untouched, got %v", got["user"])
	}
}

func TestRedactRecursesIntoNestedMaps(t *testing.T) {
	l := New(LevelInfo, nil, []string{"token"})
	body := map[string]interface{}{"auth": map[string]interface{}{"token": "secret", "scope": "read"}}
	got := l.Redact(body)
	nested := got["auth"].(map[string]interface{})
	if nested["token"] != "***REDACTED***" {
		t.Fatalf("expected nested token redacted, got %v", nested["token"])
	}
	if nested["scope"] != "read" {
		t.Fatalf("expected nested scope untouched, got %v", nested["scope"])
	}
}

func TestRedactNoOpWithoutCensorList(t *testing.T) {
	l := New(LevelInfo, nil, nil)
	body := map[string]interface{}{"password": "hunter2"}
	if got := l.Redact(body); got["password"] != "hunter2" {
		t.Fatalf("expected no redaction without a censor list, got %v", got["password"])
	}
}

func TestSummarizeBodyReturnsBodyWhenSmall(t *testing.T) {
	l := New(LevelInfo, nil, nil)
	body := map[string]interface{}{"a": 1, "b": 2}
	got := l.SummarizeBody(body)
	m, ok := got.(map[string]interface{})
	if !ok || len(m) != 2 {
		t.Fatalf("expected the body itself for a small map, got %#v", got)
	}
}

func TestSummarizeBodyReturnsSummaryWhenLarge(t *testing.T) {
	l := New(LevelInfo, nil, nil)
	body := make(map[string]interface{}, 25)
	for i := 0; i < 25; i++ {
		body[string(rune('a'+i))] = i
	}
	got := l.SummarizeBody(body)
	if _, ok := got.(string); !ok {
		t.Fatalf("expected a string summary for a large body, got %#v (%T)", got, got)
	}
}

func TestEnabledRespectsLevel(t *testing.T) {
	l := New(LevelWarnings, nil, nil)
	if l.Enabled(LevelDebug) {
		t.Fatal("expected debug disabled at warnings level")
	}
	if !l.Enabled(LevelErrors) {
		t.Fatal("expected errors enabled at warnings level")
	}
}
