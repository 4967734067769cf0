package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Measure is a reading the upstream service reports either as a JSON number
// or as a placeholder string such as "N/A".
type Measure struct {
	Value float64
	Valid bool
	Text  string // original text when the reading was not numeric
}

// NewMeasure returns a valid numeric reading.
func NewMeasure(v float64) Measure {
	return Measure{Value: v, Valid: true}
}

// UnmarshalJSON accepts numbers, numeric strings, other strings and null.
func (m *Measure) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*m = Measure{}
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if v, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
			*m = NewMeasure(v)
			return nil
		}
		*m = Measure{Text: s}
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("measure: %w", err)
	}
	*m = NewMeasure(v)
	return nil
}

// MarshalJSON writes the number when valid, the original text otherwise.
func (m Measure) MarshalJSON() ([]byte, error) {
	if m.Valid {
		return json.Marshal(m.Value)
	}
	if m.Text == "" {
		return []byte("null"), nil
	}
	return json.Marshal(m.Text)
}

// String formats the reading for display; absent readings print "N/A".
func (m Measure) String() string {
	if m.Valid {
		return strconv.FormatFloat(m.Value, 'f', -1, 64)
	}
	if m.Text == "" {
		return "N/A"
	}
	return m.Text
}

// Flag is a boolean the upstream service reports as 1/0 or true/false.
type Flag bool

func (f *Flag) UnmarshalJSON(data []byte) error {
	switch string(bytes.TrimSpace(data)) {
	case "1", "true", `"1"`, `"true"`:
		*f = true
	case "0", "false", `"0"`, `"false"`, "null":
		*f = false
	default:
		return fmt.Errorf("flag: unexpected value %s", data)
	}
	return nil
}
