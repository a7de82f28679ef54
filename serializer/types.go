package serializer

import (
	"encoding/base32"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Extension type identifiers, used as msgpack ext type codes. The JSON
// codec tags extension values by string name instead (see json.go).
const (
	extIDDateTime int8 = 10
	extIDDate     int8 = 11
	extIDTime     int8 = 12
	extIDDecimal  int8 = 13
	extIDCurrency int8 = 14
	extIDBytes    int8 = 15
)

const jsonExtKey = "__brokerpc_ext__"

// dateLayout / timeLayout are civil (timezone-less) forms; DateTime is
// always UTC and carries microsecond precision.
const (
	dateTimeLayout = "2006-01-02T15:04:05.999999Z"
	dateLayout     = "2006-01-02"
	timeLayout     = "15:04:05.999999"
)

// DateTime is a UTC instant rounded to microsecond precision.
type DateTime struct{ Value time.Time }

// NewDateTime normalizes t to UTC and microsecond precision.
func NewDateTime(t time.Time) DateTime {
	return DateTime{Value: t.UTC().Round(time.Microsecond)}
}

func (d DateTime) String() string { return d.Value.Format(dateTimeLayout) }

// Date is a calendar date with no time-of-day or zone component.
type Date struct{ Value time.Time }

// NewDate truncates t to a date (year/month/day) in UTC.
func NewDate(t time.Time) Date {
	y, m, day := t.UTC().Date()
	return Date{Value: time.Date(y, m, day, 0, 0, 0, 0, time.UTC)}
}

func (d Date) String() string { return d.Value.Format(dateLayout) }

// Time is a time-of-day with no date or zone component, microsecond
// precision.
type Time struct{ Value time.Duration }

// NewTime builds a Time from hour/minute/second/microsecond components.
func NewTime(hour, min, sec, micro int) Time {
	return Time{Value: time.Duration(hour)*time.Hour + time.Duration(min)*time.Minute +
		time.Duration(sec)*time.Second + time.Duration(micro)*time.Microsecond}
}

func (t Time) String() string {
	d := t.Value
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second
	d -= s * time.Second
	micro := d / time.Microsecond
	return fmt.Sprintf("%02d:%02d:%02d.%06d", h, m, s, micro)
}

func parseTimeOfDay(s string) (Time, error) {
	var h, m, sec, micro int
	if _, err := fmt.Sscanf(s, "%02d:%02d:%02d.%06d", &h, &m, &sec, &micro); err != nil {
		if _, err2 := fmt.Sscanf(s, "%02d:%02d:%02d", &h, &m, &sec); err2 != nil {
			return Time{}, err
		}
	}
	return NewTime(h, m, sec, micro), nil
}

// Decimal is an arbitrary-precision, string-backed decimal amount.
type Decimal struct{ Value decimal.Decimal }

func NewDecimalFromString(s string) (Decimal, error) {
	v, err := decimal.NewFromString(s)
	return Decimal{Value: v}, err
}

// CurrencyAmount is a fixed-precision monetary amount: an ISO-4217-style
// currency code plus an integer count of minor units (e.g. cents).
type CurrencyAmount struct {
	Code  string
	Minor int64
}

// Bytes is an opaque byte string, round-tripped without text-encoding
// assumptions.
type Bytes struct{ Value []byte }

func (b Bytes) base32() string {
	return base32.StdEncoding.EncodeToString(b.Value)
}

func bytesFromBase32(s string) (Bytes, error) {
	v, err := base32.StdEncoding.DecodeString(s)
	return Bytes{Value: v}, err
}
