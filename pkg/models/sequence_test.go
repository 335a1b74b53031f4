package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSequenceNumeric(t *testing.T) {
	var s Sequence
	require.NoError(t, json.Unmarshal([]byte("42"), &s))
	assert.Equal(t, "42", s.String())
	assert.False(t, s.IsZero())
	assert.True(t, s.Equal(NewSequence("42")))

	out, err := json.Marshal(s)
	require.NoError(t, err)
	assert.Equal(t, "42", string(out))
}

func TestSequenceOpaque(t *testing.T) {
	var s Sequence
	require.NoError(t, json.Unmarshal([]byte(`"12-g1AAAAFTeJzLYWBg"`), &s))
	assert.Equal(t, "12-g1AAAAFTeJzLYWBg", s.String())
	assert.True(t, s.Equal(NewSequence("12-g1AAAAFTeJzLYWBg")))
	assert.False(t, s.Equal(NewSequence("13-g1AAAAFTeJzLYWBg")))

	out, err := json.Marshal(s)
	require.NoError(t, err)
	assert.Equal(t, `"12-g1AAAAFTeJzLYWBg"`, string(out))
}

func TestSequenceZero(t *testing.T) {
	var s Sequence
	assert.True(t, s.IsZero())
	assert.True(t, NewSequence("").IsZero())

	require.NoError(t, json.Unmarshal([]byte("null"), &s))
	assert.True(t, s.IsZero())

	out, err := json.Marshal(Sequence{})
	require.NoError(t, err)
	assert.Equal(t, "null", string(out))

	var info DatabaseInfo
	require.NoError(t, json.Unmarshal([]byte(`{"db_name":"x"}`), &info))
	assert.True(t, info.UpdateSeq.IsZero())
}

func TestSequenceNumberVsString(t *testing.T) {
	assert.False(t, NewSequence("5").Equal(Sequence{raw: `"5"`}))
}
