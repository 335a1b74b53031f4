package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDocumentAccessors(t *testing.T) {
	doc := Document{"_id": "a", "_rev": "1-x", "session_id": "s1", "v": 2.0}
	assert.Equal(t, "a", doc.ID())
	assert.Equal(t, "1-x", doc.Rev())
	assert.Equal(t, "s1", doc.SessionID())
	assert.False(t, doc.Deleted())

	doc.SetRev("2-y")
	doc.SetID("b")
	doc.SetSessionID("s2")
	assert.Equal(t, "2-y", doc.Rev())
	assert.Equal(t, "b", doc.ID())
	assert.Equal(t, "s2", doc.SessionID())

	empty := Document{"session_id": nil}
	assert.Equal(t, "", empty.ID())
	assert.Equal(t, "", empty.SessionID())

	assert.True(t, Document{"_deleted": true}.Deleted())
}

func TestDocumentClone(t *testing.T) {
	doc := Document{"_id": "a", "v": 1.0}
	clone := doc.Clone()
	clone.SetRev("1-z")
	clone["v"] = 2.0

	assert.Equal(t, "", doc.Rev())
	assert.Equal(t, 1.0, doc["v"])
	assert.Nil(t, Document(nil).Clone())
}

func TestDocumentCloneIsDeep(t *testing.T) {
	doc := Document{
		"_id":  "a",
		"meta": map[string]any{"n": 1.0, "tags": []any{"x", map[string]any{"k": "v"}}},
		"list": []any{1.0, []any{2.0}},
		"nil":  nil,
	}
	clone := doc.Clone()
	assert.Equal(t, doc, clone)

	meta := clone["meta"].(map[string]any)
	meta["n"] = 99.0
	meta["tags"].([]any)[0] = "y"
	meta["tags"].([]any)[1].(map[string]any)["k"] = "w"
	clone["list"].([]any)[1].([]any)[0] = 3.0

	want := Document{
		"_id":  "a",
		"meta": map[string]any{"n": 1.0, "tags": []any{"x", map[string]any{"k": "v"}}},
		"list": []any{1.0, []any{2.0}},
		"nil":  nil,
	}
	assert.Equal(t, want, doc)
}

func TestNewID(t *testing.T) {
	a, b := NewID(), NewID()
	assert.Len(t, a, 32)
	assert.Regexp(t, "^[0-9a-f]{32}$", a)
	assert.NotEqual(t, a, b)
}

func TestChangesResultDecode(t *testing.T) {
	body := `{"results":[{"seq":4,"id":"b","changes":[{"rev":"1-q"}],"doc":{"_id":"b","_rev":"1-q","session_id":"other"}},
	{"seq":5,"id":"c","changes":[{"rev":"2-r"}],"deleted":true}],"last_seq":5}`

	var res ChangesResult
	require.NoError(t, json.Unmarshal([]byte(body), &res))
	require.Len(t, res.Results, 2)
	assert.Equal(t, "5", res.LastSeq.String())
	assert.Equal(t, "other", res.Results[0].Doc.SessionID())
	assert.True(t, res.Results[1].Deleted)
	assert.Nil(t, res.Results[1].Doc)
}
