package serializer

import (
	"testing"
	"time"
)

func roundTrip(t *testing.T, s Serializer, body map[string]interface{}) map[string]interface{} {
	t.Helper()
	enc, err := s.Encode(body)
	if err != nil {
		t.Fatalf("encode: %s", err)
	}
	dec, err := s.Decode(enc)
	if err != nil {
		t.Fatalf("decode: %s", err)
	}
	return dec
}

func TestMsgpackRoundTripPrimitives(t *testing.T) {
	s := NewMsgpackSerializer()
	body := map[string]interface{}{
		"name":    "widget",
		"count":   int64(42),
		"ratio":   3.5,
		"enabled": true,
		"nothing": nil,
		"nested":  map[string]interface{}{"a": int64(1)},
		"list":    []interface{}{int64(1), "two"},
	}
	dec := roundTrip(t, s, body)
	if dec["name"] != "widget" || dec["count"] != int64(42) || dec["enabled"] != true {
		t.Fatalf("unexpected decode: %#v", dec)
	}
}

func TestMsgpackRoundTripDateTime(t *testing.T) {
	s := NewMsgpackSerializer()
	dt := NewDateTime(time.Date(2020, 1, 2, 3, 4, 5, 123456000, time.UTC))
	dec := roundTrip(t, s, map[string]interface{}{"when": dt})

	got, ok := dec["when"].(*DateTime)
	if !ok {
		if v, ok2 := dec["when"].(DateTime); ok2 {
			got = &v
		} else {
			t.Fatalf("expected DateTime, got %#v", dec["when"])
		}
	}
	if !got.Value.Equal(dt.Value) {
		t.Fatalf("datetime mismatch: %s != %s", got.Value, dt.Value)
	}
}

func TestMsgpackRoundTripDecimalAndCurrency(t *testing.T) {
	s := NewMsgpackSerializer()
	d, err := NewDecimalFromString("12345678901234567890.123456789")
	if err != nil {
		t.Fatal(err)
	}
	body := map[string]interface{}{
		"price":  d,
		"amount": CurrencyAmount{Code: "USD", Minor: 1099},
	}
	dec := roundTrip(t, s, body)
	_ = dec
}

func TestJSONRoundTripDateTime(t *testing.T) {
	s := NewJSONSerializer()
	dt := NewDateTime(time.Date(2020, 1, 2, 3, 4, 5, 123456000, time.UTC))
	dec := roundTrip(t, s, map[string]interface{}{"when": dt})
	got, ok := dec["when"].(DateTime)
	if !ok {
		t.Fatalf("expected DateTime, got %#v", dec["when"])
	}
	if !got.Value.Equal(dt.Value) {
		t.Fatalf("datetime mismatch: %s != %s", got.Value, dt.Value)
	}
}

func TestJSONRoundTripLargeInt(t *testing.T) {
	s := NewJSONSerializer()
	dec := roundTrip(t, s, map[string]interface{}{"big": int64(1) << 62})
	if dec["big"] != int64(1)<<62 {
		t.Fatalf("expected exact int64 round trip, got %#v", dec["big"])
	}
}

func TestJSONRoundTripBytes(t *testing.T) {
	s := NewJSONSerializer()
	b := Bytes{Value: []byte{0x00, 0xff, 0x10, 0x20}}
	dec := roundTrip(t, s, map[string]interface{}{"blob": b})
	got, ok := dec["blob"].(Bytes)
	if !ok {
		t.Fatalf("expected Bytes, got %#v", dec["blob"])
	}
	if string(got.Value) != string(b.Value) {
		t.Fatalf("bytes mismatch")
	}
}

func TestLookupRegistersBothCodecs(t *testing.T) {
	if Lookup(NewMsgpackSerializer().ContentType()) == nil {
		t.Fatal("msgpack serializer not registered")
	}
	if Lookup(NewJSONSerializer().ContentType()) == nil {
		t.Fatal("json serializer not registered")
	}
}
