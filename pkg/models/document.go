package models

import (
	"encoding/hex"
	"encoding/json"
	"slices"

	"github.com/gofrs/uuid"
)

// Reserved and session-managed document fields.
const (
	FieldID        = "_id"
	FieldRev       = "_rev"
	FieldDeleted   = "_deleted"
	FieldSessionID = "session_id"
)

// Document is a JSON object stored in the database.
type Document map[string]any

func (d Document) str(field string) string {
	s, _ := d[field].(string)
	return s
}

// ID returns the document's _id, or "" when unset.
func (d Document) ID() string { return d.str(FieldID) }

// Rev returns the document's _rev, or "" when unset.
func (d Document) Rev() string { return d.str(FieldRev) }

// SessionID returns the id of the session that last saved the document.
func (d Document) SessionID() string { return d.str(FieldSessionID) }

// Deleted reports whether the document is a deletion stub.
func (d Document) Deleted() bool {
	b, _ := d[FieldDeleted].(bool)
	return b
}

func (d Document) SetID(id string)        { d[FieldID] = id }
func (d Document) SetRev(rev string)      { d[FieldRev] = rev }
func (d Document) SetSessionID(id string) { d[FieldSessionID] = id }

// Clone returns a deep copy of d. Nested objects and arrays are copied too,
// so the clone shares no mutable value with d.
func (d Document) Clone() Document {
	if d == nil {
		return nil
	}
	return Document(cloneObject(d))
}

func cloneObject(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch v := v.(type) {
	case map[string]any:
		if v == nil {
			return v
		}
		return cloneObject(v)
	case Document:
		return v.Clone()
	case []any:
		if v == nil {
			return v
		}
		out := make([]any, len(v))
		for i, e := range v {
			out[i] = cloneValue(e)
		}
		return out
	case []string:
		return slices.Clone(v)
	case []float64:
		return slices.Clone(v)
	case []byte:
		return slices.Clone(v)
	case json.RawMessage:
		return slices.Clone(v)
	}
	return v
}

// NewID returns a random document id: 32 lowercase hex characters, the same
// shape the store's _uuids endpoint hands out.
func NewID() string {
	id := uuid.Must(uuid.NewV4())
	return hex.EncodeToString(id.Bytes())
}
