package paystack

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// Metadata is the free-form metadata object echoed back by Paystack. The
// gateway returns it as an object, as a JSON-encoded string, or as an
// empty string; all three decode into a map.
type Metadata map[string]interface{}

// UnmarshalJSON implements json.Unmarshaler.
func (m *Metadata) UnmarshalJSON(data []byte) error {
	*m = Metadata{}
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}

	if trimmed[0] == '"' {
		var encoded string
		if err := json.Unmarshal(trimmed, &encoded); err != nil {
			return nil
		}
		trimmed = []byte(strings.TrimSpace(encoded))
		if len(trimmed) == 0 || trimmed[0] != '{' {
			return nil
		}
	}
	if trimmed[0] != '{' {
		return nil
	}

	decoder := json.NewDecoder(bytes.NewReader(trimmed))
	decoder.UseNumber()
	values := map[string]interface{}{}
	if err := decoder.Decode(&values); err != nil {
		return nil
	}
	*m = values
	return nil
}

// String returns the value under key as a string, accepting strings and
// numbers. Empty values report false.
func (m Metadata) String(key string) (string, bool) {
	value, ok := m[key]
	if !ok || value == nil {
		return "", false
	}

	var out string
	switch v := value.(type) {
	case string:
		out = v
	case json.Number:
		out = v.String()
	case float64:
		out = strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		out = strconv.Itoa(v)
	case int64:
		out = strconv.FormatInt(v, 10)
	default:
		return "", false
	}

	out = strings.TrimSpace(out)
	return out, out != ""
}
