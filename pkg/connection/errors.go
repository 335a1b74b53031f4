package connection

import (
	"fmt"
	"net/url"

	"github.com/buger/jsonparser"

	"github.com/json420/couch.go/pkg/constants"
)

// HTTPError describes a request that failed at the transport level or was
// answered with a 4xx/5xx status. It matches its failure class and its
// named sentinel with errors.Is:
//
//	errors.Is(err, constants.ErrClient)   // any 4xx
//	errors.Is(err, constants.ErrConflict) // 409 only
type HTTPError struct {
	Name       string
	StatusCode int
	Method     string
	URL        string
	// Couch and Reason are the "error" and "reason" members of the body.
	Couch  string
	Reason string
	Err    error

	class error
	named error
}

func newHTTPError(r *Response, class, named error) *HTTPError {
	if class == nil {
		class = constants.ErrTransport
	}
	if named == nil {
		named = class
	}
	e := &HTTPError{
		Name:       named.Error(),
		StatusCode: r.StatusCode,
		Method:     r.Method,
		URL:        redact(r.URL),
		Err:        r.Err,
		class:      class,
		named:      named,
	}
	if len(r.Body) > 0 {
		e.Couch, _ = jsonparser.GetString(r.Body, "error")
		e.Reason, _ = jsonparser.GetString(r.Body, "reason")
	}
	return e
}

func (e *HTTPError) Error() string {
	msg := fmt.Sprintf("%s: %s %s", e.Name, e.Method, e.URL)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (%d)", e.StatusCode)
	}
	if e.Couch != "" {
		msg += fmt.Sprintf(": %s: %s", e.Couch, e.Reason)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *HTTPError) Unwrap() []error {
	errs := []error{e.class}
	if e.named != nil && e.named != e.class {
		errs = append(errs, e.named)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// redact hides a password embedded in raw.
func redact(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.User == nil {
		return raw
	}
	return u.Redacted()
}
