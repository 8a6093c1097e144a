package filters

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/GregMSThompson/dashboard-service/pkg/helpers"
)

// Well-known filter keys.
const (
	KeyRep       = "rep_id"
	KeyBranch    = "branch_id"
	KeyCustomer  = "customer_id"
	KeySource    = "source"
	KeyDateRange = "date_range"
	// KeyDate is the dashboard period selector; its value anchors the month window.
	KeyDate = "date"
)

type ValueKind int

const (
	KindString ValueKind = iota
	KindNumber
	KindRange
)

// Value is a single filter value: a string, a number, or a [start,end] date pair.
type Value struct {
	kind  ValueKind
	str   string
	num   float64
	start time.Time
	end   time.Time
}

func String(s string) Value { return Value{kind: KindString, str: s} }

func Number(n float64) Value { return Value{kind: KindNumber, num: n} }

// Range builds a date pair; both ends are truncated to whole days.
func Range(start, end time.Time) Value {
	return Value{kind: KindRange, start: helpers.Day(start), end: helpers.Day(end)}
}

func (v Value) Kind() ValueKind { return v.kind }

// Equal compares kind and content; String("7") and Number(7) differ.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindNumber:
		return v.num == o.num
	case KindRange:
		return v.start.Equal(o.start) && v.end.Equal(o.end)
	default:
		return v.str == o.str
	}
}

// IsEmpty reports values that carry no filter (the empty string).
func (v Value) IsEmpty() bool {
	return v.kind == KindString && strings.TrimSpace(v.str) == ""
}

// Flat renders the value the way it travels on the wire; date pairs become
// "YYYY-MM-DD,YYYY-MM-DD".
func (v Value) Flat() string {
	switch v.kind {
	case KindNumber:
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	case KindRange:
		return helpers.FormatDate(v.start) + "," + helpers.FormatDate(v.end)
	default:
		return v.str
	}
}

func (v Value) String() string { return v.Flat() }

// DateRange returns the pair carried by a range value or by a flat
// "start,end" string.
func (v Value) DateRange() (start, end time.Time, ok bool) {
	switch v.kind {
	case KindRange:
		return v.start, v.end, true
	case KindString:
		return ParseFlatRange(v.str)
	}
	return time.Time{}, time.Time{}, false
}

// Anchor returns the date a month window is derived from: the start of a
// pair, or a "YYYY-MM-DD" / "YYYY-MM" string.
func (v Value) Anchor() (time.Time, bool) {
	if start, _, ok := v.DateRange(); ok {
		return start, true
	}
	if v.kind != KindString {
		return time.Time{}, false
	}
	s := strings.TrimSpace(v.str)
	for _, layout := range []string{helpers.DateLayout, "2006-01", time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// ParseFlatRange splits "start,end" into a date pair.
func ParseFlatRange(s string) (start, end time.Time, ok bool) {
	a, b, found := strings.Cut(s, ",")
	if !found {
		return time.Time{}, time.Time{}, false
	}
	start, err := time.Parse(helpers.DateLayout, strings.TrimSpace(a))
	if err != nil {
		return time.Time{}, time.Time{}, false
	}
	end, err = time.Parse(helpers.DateLayout, strings.TrimSpace(b))
	if err != nil {
		return time.Time{}, time.Time{}, false
	}
	return start, end, true
}

// FromAny converts a decoded JSON value (string, number, or two-element date
// array) into a Value.
func FromAny(raw any) (Value, error) {
	switch x := raw.(type) {
	case Value:
		return x, nil
	case string:
		return String(x), nil
	case float64:
		return Number(x), nil
	case float32:
		return Number(float64(x)), nil
	case int:
		return Number(float64(x)), nil
	case int64:
		return Number(float64(x)), nil
	case json.Number:
		n, err := x.Float64()
		if err != nil {
			return Value{}, fmt.Errorf("invalid number %q", x.String())
		}
		return Number(n), nil
	case []any:
		if len(x) != 2 {
			return Value{}, fmt.Errorf("date range needs exactly two dates, got %d", len(x))
		}
		a, aok := x[0].(string)
		b, bok := x[1].(string)
		if !aok || !bok {
			return Value{}, fmt.Errorf("date range entries must be strings")
		}
		start, end, ok := ParseFlatRange(a + "," + b)
		if !ok {
			return Value{}, fmt.Errorf("invalid date range %q,%q", a, b)
		}
		return Range(start, end), nil
	}
	return Value{}, fmt.Errorf("unsupported filter value type %T", raw)
}

func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindNumber:
		return json.Marshal(v.num)
	case KindRange:
		return json.Marshal([]string{helpers.FormatDate(v.start), helpers.FormatDate(v.end)})
	default:
		return json.Marshal(v.str)
	}
}

func (v *Value) UnmarshalJSON(b []byte) error {
	var raw any
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	parsed, err := FromAny(raw)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}
