package dto

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// AnalyticsResponse is the analytics service envelope.
type AnalyticsResponse struct {
	Data  json.RawMessage `json:"data"`
	Error string          `json:"error,omitempty"`
}

// Payload is the decoded result of one analytics query. Metric sources
// answer with a number or an object carrying "value"; everything else
// answers with a list of records.
type Payload struct {
	Metric *MetricData      `json:"metric,omitempty"`
	Items  []map[string]any `json:"items,omitempty"`
}

type MetricData struct {
	Value    float64        `json:"value"`
	Trend    *float64       `json:"trend,omitempty"`
	Previous *float64       `json:"previousValue,omitempty"`
	Subtext  string         `json:"subtext,omitempty"`
	Prefix   string         `json:"prefix,omitempty"`
	Suffix   string         `json:"suffix,omitempty"`
	History  []HistoryPoint `json:"history,omitempty"`
}

type HistoryPoint struct {
	Date  string  `json:"date"`
	Value float64 `json:"value"`
}

// IsEmpty reports a result with nothing to draw: null, or an empty list.
func (p Payload) IsEmpty() bool {
	return p.Metric == nil && len(p.Items) == 0
}

// DecodePayload interprets the "data" member of an analytics response.
func DecodePayload(raw json.RawMessage) (Payload, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return Payload{}, nil
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return Payload{}, fmt.Errorf("decode analytics payload: %w", err)
	}

	switch x := v.(type) {
	case json.Number:
		n, err := x.Float64()
		if err != nil {
			return Payload{}, fmt.Errorf("decode analytics payload: %w", err)
		}
		return Payload{Metric: &MetricData{Value: n}}, nil
	case map[string]any:
		if _, ok := x["value"]; ok {
			var m MetricData
			if err := json.Unmarshal(raw, &m); err != nil {
				return Payload{}, fmt.Errorf("decode metric payload: %w", err)
			}
			return Payload{Metric: &m}, nil
		}
		return Payload{Items: []map[string]any{normalise(x)}}, nil
	case []any:
		items := make([]map[string]any, 0, len(x))
		for _, el := range x {
			if obj, ok := el.(map[string]any); ok {
				items = append(items, normalise(obj))
				continue
			}
			items = append(items, map[string]any{"value": plain(el)})
		}
		return Payload{Items: items}, nil
	}
	return Payload{}, fmt.Errorf("unsupported analytics payload %s", truncate(raw))
}

// normalise replaces json.Number values with float64 so renderers can use
// plain type switches.
func normalise(obj map[string]any) map[string]any {
	for k, v := range obj {
		obj[k] = plain(v)
	}
	return obj
}

func plain(v any) any {
	switch x := v.(type) {
	case json.Number:
		if f, err := strconv.ParseFloat(x.String(), 64); err == nil {
			return f
		}
		return x.String()
	case map[string]any:
		return normalise(x)
	case []any:
		for i := range x {
			x[i] = plain(x[i])
		}
		return x
	}
	return v
}

func truncate(b []byte) string {
	if len(b) > 64 {
		return string(b[:64]) + "..."
	}
	return string(b)
}
