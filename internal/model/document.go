package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Document is the wire form exchanged with the remote document store.
//
// Canonical value types are string, bool, int64, float64, time.Time,
// decimal.Decimal, []string and nested Document. The accessors below also
// accept the looser forms produced by JSON decoding (RFC 3339 strings,
// float64 numbers, []any) so records decode the same from every adapter.
type Document map[string]any

// Has reports whether key is present with a non-nil value.
func (d Document) Has(key string) bool {
	v, ok := d[key]
	return ok && v != nil
}

// String returns the string at key, or "".
func (d Document) String(key string) string {
	s, _ := d[key].(string)
	return s
}

// Bool returns the bool at key and whether it was present.
func (d Document) Bool(key string) (bool, bool) {
	b, ok := d[key].(bool)
	return b, ok
}

// Int returns the integer at key, or 0.
func (d Document) Int(key string) int {
	switch v := d[key].(type) {
	case int:
		return v
	case int32:
		return int(v)
	case int64:
		return int(v)
	case float64:
		return int(v)
	case decimal.Decimal:
		return int(v.IntPart())
	}
	return 0
}

// Time returns the time at key and whether it could be decoded.
func (d Document) Time(key string) (time.Time, bool) {
	switch v := d[key].(type) {
	case time.Time:
		return v, true
	case *time.Time:
		if v == nil {
			return time.Time{}, false
		}
		return *v, true
	case string:
		t, err := time.Parse(time.RFC3339Nano, v)
		return t, err == nil
	case int64:
		return time.UnixMilli(v), true
	}
	return time.Time{}, false
}

// TimePtr is Time for optional fields.
func (d Document) TimePtr(key string) *time.Time {
	t, ok := d.Time(key)
	if !ok {
		return nil
	}
	return &t
}

// Decimal returns the number at key and whether it could be decoded.
func (d Document) Decimal(key string) (decimal.Decimal, bool) {
	switch v := d[key].(type) {
	case decimal.Decimal:
		return v, true
	case *decimal.Decimal:
		if v == nil {
			return decimal.Zero, false
		}
		return *v, true
	case float64:
		return decimal.NewFromFloat(v), true
	case int:
		return decimal.NewFromInt(int64(v)), true
	case int64:
		return decimal.NewFromInt(v), true
	case string:
		dec, err := decimal.NewFromString(v)
		return dec, err == nil
	}
	return decimal.Zero, false
}

// DecimalPtr is Decimal for optional fields.
func (d Document) DecimalPtr(key string) *decimal.Decimal {
	dec, ok := d.Decimal(key)
	if !ok {
		return nil
	}
	return &dec
}

// Strings returns the string list at key. Non-string members are skipped.
func (d Document) Strings(key string) []string {
	switch v := d[key].(type) {
	case []string:
		return append([]string(nil), v...)
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// Clone returns a copy of d. Slices and nested documents are copied so the
// clone can be handed out without aliasing stored state.
func (d Document) Clone() Document {
	if d == nil {
		return nil
	}
	out := make(Document, len(d))
	for k, v := range d {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case Document:
		return t.Clone()
	case map[string]any:
		return Document(t).Clone()
	case []string:
		return append([]string(nil), t...)
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = cloneValue(item)
		}
		return out
	default:
		return v
	}
}

func putTime(d Document, key string, t *time.Time) {
	if t != nil {
		d[key] = *t
	}
}

func putDecimal(d Document, key string, v *decimal.Decimal) {
	if v != nil {
		d[key] = *v
	}
}
