package connection

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/json420/couch.go/pkg/constants"
)

// Callback receives a completed request.
type Callback func(*Response)

// Transport executes HTTP requests against the document store.
//
// Do blocks until the request completes. Go returns immediately and calls
// done from another goroutine once the request completes. Neither returns an
// error directly: failures are recorded on the Response and surface when it
// is read.
type Transport interface {
	Do(ctx context.Context, method, url string, body any) *Response
	Go(ctx context.Context, method, url string, body any, done Callback)
}

// Response is a completed request. Err is set when no response was received.
type Response struct {
	RequestID  string
	Method     string
	URL        string
	StatusCode int
	Header     http.Header
	Body       []byte
	Err        error
}

// Check classifies the response, returning nil for 1xx-3xx statuses.
func (r *Response) Check() error {
	switch {
	case r.Err != nil || r.StatusCode == 0:
		return newHTTPError(r, constants.ErrTransport, constants.ErrTransport)
	case r.StatusCode >= 500:
		return newHTTPError(r, constants.ErrServer, constants.ErrServer)
	case r.StatusCode >= 400:
		_, named := constants.StatusError(r.StatusCode)
		return newHTTPError(r, constants.ErrClient, named)
	}
	return nil
}

// IsJSON reports whether the body was declared as JSON.
func (r *Response) IsJSON() bool {
	if r.Header == nil {
		return false
	}
	contentType := strings.Split(r.Header.Get("Content-Type"), ";")[0]
	return strings.TrimSpace(contentType) == constants.ContentTypeJSON
}

// Read classifies the response and returns the decoded JSON body, or the
// body as a string when it is not JSON.
func (r *Response) Read() (any, error) {
	if err := r.Check(); err != nil {
		return nil, err
	}
	if !r.IsJSON() {
		return string(r.Body), nil
	}
	var v any
	if err := json.Unmarshal(r.Body, &v); err != nil {
		return nil, r.protocolError(err)
	}
	return v, nil
}

// Decode classifies the response and unmarshals the JSON body into v.
// A nil v only classifies.
func (r *Response) Decode(v any) error {
	if err := r.Check(); err != nil {
		return err
	}
	if v == nil {
		return nil
	}
	if err := json.Unmarshal(r.Body, v); err != nil {
		return r.protocolError(err)
	}
	return nil
}

func (r *Response) protocolError(err error) error {
	return fmt.Errorf("%w: %s %s: %w", constants.ErrProtocol, r.Method, redact(r.URL), err)
}
