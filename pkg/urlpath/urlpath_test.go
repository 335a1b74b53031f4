package urlpath

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type seq string

func (s seq) String() string { return string(s) }

func TestBuild(t *testing.T) {
	tests := []struct {
		name    string
		base    string
		parts   []string
		options Options
		want    string
	}{
		{"base only", "/foo/", nil, nil, "/foo/"},
		{"single part", "/foo/", []string{"bar"}, nil, "/foo/bar"},
		{"nested parts", "/foo/", []string{"bar", "baz"}, nil, "/foo/bar/baz"},
		{"bool option", "/foo/", []string{"bar", "baz"}, Options{"attachments": true}, "/foo/bar/baz?attachments=true"},
		{"empty options", "/foo/", []string{"bar"}, Options{}, "/foo/bar"},
		{"sorted keys", "/db/", []string{"_changes"},
			Options{"since": 3, "feed": "longpoll", "include_docs": true},
			"/db/_changes?feed=longpoll&include_docs=true&since=3"},
		{"json keys", "/db/", []string{"_all_docs"},
			Options{"startkey": "a", "endkey": "b", "limit": 10},
			"/db/_all_docs?endkey=%22b%22&limit=10&startkey=%22a%22"},
		{"json array key", "/db/", nil, Options{"key": []any{"x", 1}},
			"/db/?key=%5B%22x%22%2C1%5D"},
		{"nil skipped", "/db/", nil, Options{"a": nil, "b": "c"}, "/db/?b=c"},
		{"all nil", "/db/", nil, Options{"a": nil}, "/db/"},
		{"stringer verbatim", "/db/", []string{"_changes"}, Options{"since": seq("12-g1AAAA")},
			"/db/_changes?since=12-g1AAAA"},
		{"space escaped", "/db/", nil, Options{"q": "a b"}, "/db/?q=a%20b"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Build(tt.base, tt.parts, tt.options))
		})
	}
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "/", Normalize(""))
	assert.Equal(t, "/", Normalize("/"))
	assert.Equal(t, "http://localhost:5984/", Normalize("http://localhost:5984"))
	assert.Equal(t, "http://localhost:5984/", Normalize("http://localhost:5984/"))
}
