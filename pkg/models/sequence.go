package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Sequence is an opaque change-feed position. Older servers use integers,
// newer ones opaque strings; both are kept as their raw JSON text so the
// value can be echoed back unchanged.
type Sequence struct {
	raw string
}

// NewSequence wraps a sequence as it should appear in a query string.
func NewSequence(s string) Sequence {
	if s == "" {
		return Sequence{}
	}
	if _, err := strconv.ParseInt(s, 10, 64); err == nil {
		return Sequence{raw: s}
	}
	b, _ := json.Marshal(s)
	return Sequence{raw: string(b)}
}

// IsZero reports whether the sequence was never set.
func (s Sequence) IsZero() bool {
	return s.raw == "" || s.raw == "null"
}

// Equal compares two sequences by their raw text.
func (s Sequence) Equal(o Sequence) bool {
	return s.raw == o.raw
}

// String returns the value to use for the since= query parameter.
func (s Sequence) String() string {
	if len(s.raw) > 0 && s.raw[0] == '"' {
		var str string
		if err := json.Unmarshal([]byte(s.raw), &str); err == nil {
			return str
		}
	}
	return s.raw
}

func (s Sequence) MarshalJSON() ([]byte, error) {
	if s.IsZero() {
		return []byte("null"), nil
	}
	return []byte(s.raw), nil
}

func (s *Sequence) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if !json.Valid(data) {
		return fmt.Errorf("invalid sequence %q", data)
	}
	s.raw = string(data)
	return nil
}
