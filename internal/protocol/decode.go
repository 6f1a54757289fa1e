package protocol

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Payload is the event-specific body of an EventMessage. Values arrive with
// whatever JSON types the server chose, so all accessors are lenient:
// malformed or missing fields fall back to a default rather than failing.
type Payload map[string]any

// Has reports whether the key is present at all, regardless of its value.
func (p Payload) Has(key string) bool {
	_, ok := p[key]
	return ok
}

// Str returns the string value for key, or "" when absent or not a string.
func (p Payload) Str(key string) string {
	s, _ := p[key].(string)
	return s
}

// Int returns the numeric value for key, tolerating JSON numbers and numeric
// strings. Anything unparseable yields the fallback.
func (p Payload) Int(key string, fallback int) int {
	return int(AsInt64(p[key], int64(fallback)))
}

// Int64 is Int for epoch-millisecond timestamps and other wide values.
func (p Payload) Int64(key string, fallback int64) int64 {
	return AsInt64(p[key], fallback)
}

// Bool returns the truthiness of key: JSON true, the number 1, or the strings
// "1"/"true" all count as true.
func (p Payload) Bool(key string) bool {
	switch v := p[key].(type) {
	case bool:
		return v
	case float64:
		return v == 1
	case string:
		return v == "1" || v == "true"
	default:
		return false
	}
}

// List returns the array value for key, or nil.
func (p Payload) List(key string) []any {
	l, _ := p[key].([]any)
	return l
}

// AsInt64 coerces a decoded JSON value to an integer. Parse failures fall
// back instead of propagating, so a malformed numeric field can never poison
// the visual state.
func AsInt64(v any, fallback int64) int64 {
	switch n := v.(type) {
	case float64:
		return int64(n)
	case int:
		return int64(n)
	case int64:
		return n
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i
		}
	case string:
		if n == "" {
			return fallback
		}
		if i, err := strconv.ParseInt(strings.TrimSpace(n), 10, 64); err == nil {
			return i
		}
		if f, err := strconv.ParseFloat(strings.TrimSpace(n), 64); err == nil {
			return int64(f)
		}
	}
	return fallback
}

// ParseInt parses a string-hash field (snapshot meta, player records) as an
// integer with a fallback.
func ParseInt(s string, fallback int64) int64 {
	if s == "" {
		return fallback
	}
	return AsInt64(s, fallback)
}

// IsReadyFlag interprets the server's ready markers ("1", "true").
func IsReadyFlag(s string) bool {
	return s == "1" || s == "true"
}

// ParseStringList decodes a JSON-encoded string array stored inside a
// string-valued hash field. Entries that are not strings come back as "";
// a malformed document yields nil.
func ParseStringList(raw string) []string {
	if raw == "" {
		return nil
	}
	var items []any
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		return nil
	}
	out := make([]string, len(items))
	for i, item := range items {
		if s, ok := item.(string); ok {
			out[i] = s
		}
	}
	return out
}

// Decode classifies a raw server frame into one of the typed messages:
// *Snapshot, *WelcomeMessage, *ErrorMessage, or *EventMessage. Frames with an
// unknown type tag and no event_id are returned as (nil, nil) so callers can
// skip them without treating them as transport failures.
func Decode(data []byte) (any, error) {
	var probe struct {
		Type    string `json:"type"`
		EventID string `json:"event_id"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("decode server frame: %w", err)
	}

	switch probe.Type {
	case TypeSnapshot:
		var msg Snapshot
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, fmt.Errorf("decode snapshot: %w", err)
		}
		return &msg, nil
	case TypeWelcome:
		var msg WelcomeMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, fmt.Errorf("decode welcome: %w", err)
		}
		return &msg, nil
	case TypeError:
		var msg ErrorMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, fmt.Errorf("decode error message: %w", err)
		}
		return &msg, nil
	}

	// Everything else with an event id is an event envelope.
	if probe.EventID != "" {
		var msg EventMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, fmt.Errorf("decode event: %w", err)
		}
		return &msg, nil
	}

	return nil, nil
}
