package attrs

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// Pair is one key/value entry of a Map.
type Pair struct {
	Key   string
	Value string
}

// Map is an insertion-ordered string map. Duplicate keys are kept as separate
// entries. A nil Map means "absent", which is distinct from an empty one: JSON
// null (or a missing field) decodes to nil, {} decodes to an empty Map.
type Map []Pair

// FromPairs builds a Map from alternating keys and values. A trailing key
// without a value is ignored.
func FromPairs(kv ...string) Map {
	m := make(Map, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		m = append(m, Pair{Key: kv[i], Value: kv[i+1]})
	}
	return m
}

// Add appends an entry.
func (m *Map) Add(key, value string) {
	*m = append(*m, Pair{Key: key, Value: value})
}

// Get returns the value of the first entry with key.
func (m Map) Get(key string) (string, bool) {
	for _, p := range m {
		if p.Key == key {
			return p.Value, true
		}
	}
	return "", false
}

// Wipe blanks every value in place so secrets taken from the map do not
// linger in the caller's copy.
func (m Map) Wipe() {
	for i := range m {
		m[i].Value = ""
	}
}

// MarshalJSON writes the map as a JSON object in entry order.
func (m Map) MarshalJSON() ([]byte, error) {
	if m == nil {
		return []byte("null"), nil
	}
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, p := range m {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(p.Key)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(p.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads a JSON object of string values, keeping document order.
func (m *Map) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*m = nil
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return errors.New("attrs: expected JSON object")
	}
	out := Map{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("attrs: unexpected key token %v", tok)
		}
		var value string
		if err := dec.Decode(&value); err != nil {
			return fmt.Errorf("attrs: value for %q must be a string: %w", key, err)
		}
		out = append(out, Pair{Key: key, Value: value})
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*m = out
	return nil
}
