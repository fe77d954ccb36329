package repository

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"cardfolio-api/internal/model"
)

// SQL backends keep each document as a JSON body. Times and decimals are
// tagged so they decode back to their native types.
const (
	tagDate    = "$date"
	tagDecimal = "$decimal"
)

func encodeBody(doc model.Document) ([]byte, error) {
	data, err := json.Marshal(encodeValue(doc))
	if err != nil {
		return nil, fmt.Errorf("failed to encode document: %w", err)
	}
	return data, nil
}

func encodeValue(v any) any {
	switch t := v.(type) {
	case model.Document:
		out := make(map[string]any, len(t))
		for k, item := range t {
			out[k] = encodeValue(item)
		}
		return out
	case map[string]any:
		return encodeValue(model.Document(t))
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = encodeValue(item)
		}
		return out
	case time.Time:
		return map[string]any{tagDate: t.Format(time.RFC3339Nano)}
	case decimal.Decimal:
		return map[string]any{tagDecimal: t.String()}
	default:
		return v
	}
}

func decodeBody(data []byte) (model.Document, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("failed to decode document: %w", err)
	}
	doc, _ := decodeValue(raw).(model.Document)
	return doc, nil
}

func decodeValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		if len(t) == 1 {
			if s, ok := t[tagDate].(string); ok {
				if ts, err := time.Parse(time.RFC3339Nano, s); err == nil {
					return ts
				}
			}
			if s, ok := t[tagDecimal].(string); ok {
				if d, err := decimal.NewFromString(s); err == nil {
					return d
				}
			}
		}
		out := make(model.Document, len(t))
		for k, item := range t {
			out[k] = decodeValue(item)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = decodeValue(item)
		}
		return out
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i
		}
		f, _ := t.Float64()
		return f
	default:
		return v
	}
}
