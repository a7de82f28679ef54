package serializer

import (
	"bytes"
	"encoding/base32"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

func init() {
	Register(NewJSONSerializer())
}

// jsonExtName values, used as the discriminator under jsonExtKey.
const (
	jsonExtDateTime = "datetime"
	jsonExtDate     = "date"
	jsonExtTime     = "time"
	jsonExtDecimal  = "decimal"
	jsonExtCurrency = "currency"
	jsonExtBytes    = "bytes"
)

func (d DateTime) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]string{jsonExtKey: jsonExtDateTime, "value": d.String()})
}

func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]string{jsonExtKey: jsonExtDate, "value": d.String()})
}

func (t Time) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]string{jsonExtKey: jsonExtTime, "value": t.String()})
}

func (d Decimal) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]string{jsonExtKey: jsonExtDecimal, "value": d.Value.String()})
}

func (c CurrencyAmount) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]interface{}{jsonExtKey: jsonExtCurrency, "code": c.Code, "minor": c.Minor})
}

func (b Bytes) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]string{jsonExtKey: jsonExtBytes, "value": b.base32()})
}

// jsonSerializer is the textual codec (§4.1), used when clients or
// servers negotiate a human-readable content type.
type jsonSerializer struct{}

func NewJSONSerializer() Serializer { return jsonSerializer{} }

func (jsonSerializer) ContentType() string { return "application/vnd.brokerpc+json" }

func (jsonSerializer) Encode(body map[string]interface{}) ([]byte, error) {
	b, err := json.Marshal(body)
	if err != nil {
		return nil, &SerializationFailure{Cause: err}
	}
	return b, nil
}

func (jsonSerializer) Decode(data []byte) (map[string]interface{}, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw map[string]interface{}
	if err := dec.Decode(&raw); err != nil {
		return nil, &DeserializationFailure{Cause: err}
	}
	out, err := convertJSONValue(raw)
	if err != nil {
		return nil, &DeserializationFailure{Cause: err}
	}
	return out.(map[string]interface{}), nil
}

// convertJSONValue walks a value produced by a json.Decoder in UseNumber
// mode, converting json.Number into int64/float64 and tagged extension
// objects back into their typed Go representations.
func convertJSONValue(v interface{}) (interface{}, error) {
	switch val := v.(type) {
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return i, nil
		}
		f, err := val.Float64()
		if err != nil {
			return nil, fmt.Errorf("decoding number %q: %w", val, err)
		}
		return f, nil
	case map[string]interface{}:
		if tag, ok := val[jsonExtKey]; ok {
			return convertJSONExt(tag, val)
		}
		out := make(map[string]interface{}, len(val))
		for k, elem := range val {
			converted, err := convertJSONValue(elem)
			if err != nil {
				return nil, err
			}
			out[k] = converted
		}
		return out, nil
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, elem := range val {
			converted, err := convertJSONValue(elem)
			if err != nil {
				return nil, err
			}
			out[i] = converted
		}
		return out, nil
	default:
		return v, nil
	}
}

func convertJSONExt(tag interface{}, val map[string]interface{}) (interface{}, error) {
	name, _ := tag.(string)
	switch name {
	case jsonExtDateTime:
		s, _ := val["value"].(string)
		t, err := time.Parse(dateTimeLayout, s)
		if err != nil {
			return nil, err
		}
		return DateTime{Value: t.UTC().Round(time.Microsecond)}, nil
	case jsonExtDate:
		s, _ := val["value"].(string)
		t, err := time.Parse(dateLayout, s)
		if err != nil {
			return nil, err
		}
		return Date{Value: t}, nil
	case jsonExtTime:
		s, _ := val["value"].(string)
		t, err := parseTimeOfDay(s)
		if err != nil {
			return nil, err
		}
		return t, nil
	case jsonExtDecimal:
		s, _ := val["value"].(string)
		v, err := decimal.NewFromString(s)
		if err != nil {
			return nil, err
		}
		return Decimal{Value: v}, nil
	case jsonExtCurrency:
		code, _ := val["code"].(string)
		minor, err := jsonNumberToInt64(val["minor"])
		if err != nil {
			return nil, err
		}
		return CurrencyAmount{Code: code, Minor: minor}, nil
	case jsonExtBytes:
		s, _ := val["value"].(string)
		b, err := base32.StdEncoding.DecodeString(s)
		if err != nil {
			return nil, err
		}
		return Bytes{Value: b}, nil
	default:
		return nil, fmt.Errorf("unknown extension type %q", name)
	}
}

func jsonNumberToInt64(v interface{}) (int64, error) {
	switch n := v.(type) {
	case json.Number:
		return n.Int64()
	case int64:
		return n, nil
	case float64:
		return int64(n), nil
	default:
		return 0, fmt.Errorf("expected numeric minor unit, got %T", v)
	}
}

