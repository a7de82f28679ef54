package serializer

import (
	"bytes"
	"reflect"
	"time"

	"github.com/shopspring/decimal"
	"github.com/vmihailenco/msgpack/v5"
)

// registerExtValue registers the ext type for both the pointer receiver
// (decoding, which must mutate in place) and the value receiver (encoding,
// since extension values are commonly stored as non-addressable
// interface{} values inside map[string]interface{} bodies).
func registerExtValue(extID int8, ptr msgpack.MarshalerUnmarshaler) {
	msgpack.RegisterExt(extID, ptr)
	value := reflect.Zero(reflect.TypeOf(ptr).Elem()).Interface()
	msgpack.RegisterExtEncoder(extID, value, func(_ *msgpack.Encoder, v reflect.Value) ([]byte, error) {
		return v.Interface().(msgpack.Marshaler).MarshalMsgpack()
	})
}

func init() {
	registerExtValue(extIDDateTime, (*DateTime)(nil))
	registerExtValue(extIDDate, (*Date)(nil))
	registerExtValue(extIDTime, (*Time)(nil))
	registerExtValue(extIDDecimal, (*Decimal)(nil))
	registerExtValue(extIDCurrency, (*CurrencyAmount)(nil))
	registerExtValue(extIDBytes, (*Bytes)(nil))

	Register(NewMsgpackSerializer())
}

func (d DateTime) MarshalMsgpack() ([]byte, error) {
	var buf bytes.Buffer
	if err := d.EncodeMsgpack(msgpack.NewEncoder(&buf)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (d *DateTime) UnmarshalMsgpack(b []byte) error {
	return d.DecodeMsgpack(msgpack.NewDecoder(bytes.NewReader(b)))
}

func (d DateTime) EncodeMsgpack(enc *msgpack.Encoder) error {
	return enc.EncodeString(d.String())
}

func (d *DateTime) DecodeMsgpack(dec *msgpack.Decoder) error {
	s, err := dec.DecodeString()
	if err != nil {
		return err
	}
	t, err := time.Parse(dateTimeLayout, s)
	if err != nil {
		return err
	}
	d.Value = t.UTC().Round(time.Microsecond)
	return nil
}

func (d Date) MarshalMsgpack() ([]byte, error) {
	var buf bytes.Buffer
	if err := d.EncodeMsgpack(msgpack.NewEncoder(&buf)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (d *Date) UnmarshalMsgpack(b []byte) error {
	return d.DecodeMsgpack(msgpack.NewDecoder(bytes.NewReader(b)))
}

func (d Date) EncodeMsgpack(enc *msgpack.Encoder) error {
	return enc.EncodeString(d.String())
}

func (d *Date) DecodeMsgpack(dec *msgpack.Decoder) error {
	s, err := dec.DecodeString()
	if err != nil {
		return err
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return err
	}
	d.Value = t
	return nil
}

func (t Time) MarshalMsgpack() ([]byte, error) {
	var buf bytes.Buffer
	if err := t.EncodeMsgpack(msgpack.NewEncoder(&buf)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (t *Time) UnmarshalMsgpack(b []byte) error {
	return t.DecodeMsgpack(msgpack.NewDecoder(bytes.NewReader(b)))
}

func (t Time) EncodeMsgpack(enc *msgpack.Encoder) error {
	return enc.EncodeString(t.String())
}

func (t *Time) DecodeMsgpack(dec *msgpack.Decoder) error {
	s, err := dec.DecodeString()
	if err != nil {
		return err
	}
	parsed, err := parseTimeOfDay(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

func (d Decimal) MarshalMsgpack() ([]byte, error) {
	var buf bytes.Buffer
	if err := d.EncodeMsgpack(msgpack.NewEncoder(&buf)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (d *Decimal) UnmarshalMsgpack(b []byte) error {
	return d.DecodeMsgpack(msgpack.NewDecoder(bytes.NewReader(b)))
}

func (d Decimal) EncodeMsgpack(enc *msgpack.Encoder) error {
	return enc.EncodeString(d.Value.String())
}

func (d *Decimal) DecodeMsgpack(dec *msgpack.Decoder) error {
	s, err := dec.DecodeString()
	if err != nil {
		return err
	}
	v, err := decimal.NewFromString(s)
	if err != nil {
		return err
	}
	d.Value = v
	return nil
}

func (c CurrencyAmount) MarshalMsgpack() ([]byte, error) {
	var buf bytes.Buffer
	if err := c.EncodeMsgpack(msgpack.NewEncoder(&buf)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (c *CurrencyAmount) UnmarshalMsgpack(b []byte) error {
	return c.DecodeMsgpack(msgpack.NewDecoder(bytes.NewReader(b)))
}

func (c CurrencyAmount) EncodeMsgpack(enc *msgpack.Encoder) error {
	if err := enc.EncodeArrayLen(2); err != nil {
		return err
	}
	if err := enc.EncodeString(c.Code); err != nil {
		return err
	}
	return enc.EncodeInt64(c.Minor)
}

func (c *CurrencyAmount) DecodeMsgpack(dec *msgpack.Decoder) error {
	if _, err := dec.DecodeArrayLen(); err != nil {
		return err
	}
	code, err := dec.DecodeString()
	if err != nil {
		return err
	}
	minor, err := dec.DecodeInt64()
	if err != nil {
		return err
	}
	c.Code, c.Minor = code, minor
	return nil
}

func (b Bytes) MarshalMsgpack() ([]byte, error) {
	var buf bytes.Buffer
	if err := b.EncodeMsgpack(msgpack.NewEncoder(&buf)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (b *Bytes) UnmarshalMsgpack(data []byte) error {
	return b.DecodeMsgpack(msgpack.NewDecoder(bytes.NewReader(data)))
}

func (b Bytes) EncodeMsgpack(enc *msgpack.Encoder) error {
	return enc.EncodeBytes(b.Value)
}

func (b *Bytes) DecodeMsgpack(dec *msgpack.Decoder) error {
	v, err := dec.DecodeBytes()
	if err != nil {
		return err
	}
	b.Value = v
	return nil
}

// msgpackSerializer is the preferred binary packed codec (§4.1).
type msgpackSerializer struct{}

func NewMsgpackSerializer() Serializer { return msgpackSerializer{} }

func (msgpackSerializer) ContentType() string { return "application/vnd.brokerpc+msgpack" }

func (msgpackSerializer) Encode(body map[string]interface{}) ([]byte, error) {
	b, err := msgpack.Marshal(body)
	if err != nil {
		return nil, &SerializationFailure{Cause: err}
	}
	return b, nil
}

func (msgpackSerializer) Decode(data []byte) (map[string]interface{}, error) {
	var out map[string]interface{}
	if err := msgpack.Unmarshal(data, &out); err != nil {
		return nil, &DeserializationFailure{Cause: err}
	}
	return out, nil
}
