package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Trade is a single trade record as delivered by the provider. Its shape is not
// fixed: it is an ordered set of field name to scalar value pairs, and Keys
// reports the names in the order the provider sent them.
//
// Values are one of:
//   - nil for JSON null
//   - string
//   - json.Number, keeping the literal text so no precision is lost
//   - bool
//   - json.RawMessage (compact) for nested objects or arrays
type Trade struct {
	keys   []string
	values map[string]interface{}
}

// NewTrade builds a Trade from alternating key/value arguments. Intended for
// tests and fixtures; it panics on an odd argument count or a non-string key.
func NewTrade(kv ...interface{}) Trade {
	if len(kv)%2 != 0 {
		panic("models.NewTrade: odd number of arguments")
	}
	t := Trade{values: make(map[string]interface{}, len(kv)/2)}
	for i := 0; i < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			panic(fmt.Sprintf("models.NewTrade: key %v is not a string", kv[i]))
		}
		t.Set(key, kv[i+1])
	}
	return t
}

// Set assigns value to key. A new key is appended to the key order; an
// existing key keeps its position.
func (t *Trade) Set(key string, value interface{}) {
	if t.values == nil {
		t.values = make(map[string]interface{})
	}
	if _, exists := t.values[key]; !exists {
		t.keys = append(t.keys, key)
	}
	t.values[key] = value
}

// Keys returns the field names in provider order.
func (t Trade) Keys() []string {
	out := make([]string, len(t.keys))
	copy(out, t.keys)
	return out
}

// Get returns the value stored under key.
func (t Trade) Get(key string) (interface{}, bool) {
	v, ok := t.values[key]
	return v, ok
}

// Len returns the number of fields.
func (t Trade) Len() int {
	return len(t.keys)
}

// String returns the value of key formatted as text, or "" when the key is
// absent or null.
func (t Trade) String(key string) string {
	v, ok := t.values[key]
	if !ok {
		return ""
	}
	return FormatValue(v)
}

// FormatValue renders a Trade value as a single cell of text.
func FormatValue(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case json.Number:
		return val.String()
	case bool:
		return strconv.FormatBool(val)
	case json.RawMessage:
		return string(val)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	default:
		return fmt.Sprint(val)
	}
}

// UnmarshalJSON decodes a JSON object while keeping its key order.
func (t *Trade) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("trade record: %w", err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("trade record: expected JSON object, got %s", describeToken(tok))
	}

	*t = Trade{values: make(map[string]interface{})}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return fmt.Errorf("trade record: %w", err)
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("trade record: expected field name, got %s", describeToken(tok))
		}

		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return fmt.Errorf("trade record field %q: %w", key, err)
		}
		value, err := decodeValue(raw)
		if err != nil {
			return fmt.Errorf("trade record field %q: %w", key, err)
		}
		t.Set(key, value)
	}

	if _, err := dec.Token(); err != nil {
		return fmt.Errorf("trade record: %w", err)
	}
	return nil
}

// MarshalJSON encodes the trade as a JSON object in key order.
func (t Trade) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, key := range t.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(key)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		v, err := json.Marshal(t.values[key])
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", key, err)
		}
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func decodeValue(raw json.RawMessage) (interface{}, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("empty value")
	}

	switch trimmed[0] {
	case 'n':
		return nil, nil
	case 't', 'f':
		var b bool
		if err := json.Unmarshal(trimmed, &b); err != nil {
			return nil, err
		}
		return b, nil
	case '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return nil, err
		}
		return s, nil
	case '{', '[':
		var buf bytes.Buffer
		if err := json.Compact(&buf, trimmed); err != nil {
			return nil, err
		}
		return json.RawMessage(buf.Bytes()), nil
	default:
		return json.Number(trimmed), nil
	}
}

func describeToken(tok json.Token) string {
	switch v := tok.(type) {
	case json.Delim:
		return fmt.Sprintf("%q", v.String())
	case nil:
		return "null"
	case string:
		return "string"
	case json.Number:
		return "number"
	case bool:
		return "boolean"
	default:
		return fmt.Sprintf("%T", v)
	}
}
