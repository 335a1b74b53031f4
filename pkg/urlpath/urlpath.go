// Package urlpath builds request URLs for the document store: a base path,
// a list of path segments and a canonical query string.
package urlpath

import (
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// Options are query parameters. A nil value means "not set" and is skipped.
type Options map[string]any

// jsonKeys are the options whose values are JSON-encoded rather than used
// verbatim.
var jsonKeys = map[string]bool{
	"key":      true,
	"startkey": true,
	"endkey":   true,
}

// Normalize returns url with a trailing slash. An empty url becomes "/".
func Normalize(url string) string {
	if url == "" {
		return "/"
	}
	if !strings.HasSuffix(url, "/") {
		return url + "/"
	}
	return url
}

// Build joins base with parts and appends the query string for options.
//
//	Build("/foo/", nil, nil)                                    // "/foo/"
//	Build("/foo/", []string{"bar", "baz"}, nil)                 // "/foo/bar/baz"
//	Build("/foo/", []string{"bar"}, Options{"attachments": true}) // "/foo/bar?attachments=true"
func Build(base string, parts []string, options Options) string {
	u := base + strings.Join(parts, "/")
	if q := Query(options); q != "" {
		return u + "?" + q
	}
	return u
}

// Query serializes options with keys in lexicographic order.
func Query(options Options) string {
	if len(options) == 0 {
		return ""
	}
	keys := make([]string, 0, len(options))
	for k := range options {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	query := make([]string, 0, len(keys))
	for _, k := range keys {
		v := options[k]
		if v == nil {
			continue
		}
		query = append(query, escape(k)+"="+escape(value(k, v)))
	}
	return strings.Join(query, "&")
}

func value(key string, v any) string {
	if jsonKeys[key] {
		b, err := json.Marshal(v)
		if err == nil {
			return string(b)
		}
	}
	return fmt.Sprint(v)
}

// escape percent-encodes s the way encodeURIComponent does for the
// characters that matter in a query string.
func escape(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}
