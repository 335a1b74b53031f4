package constants

import "errors"

// Failure classes. Every error returned for a completed (or failed) request
// matches exactly one of these with errors.Is.
var (
	ErrTransport = errors.New("RequestError") // no response from the server
	ErrServer    = errors.New("ServerError")  // 5xx
	ErrClient    = errors.New("ClientError")  // 4xx
	ErrProtocol  = errors.New("malformed response")
)

// Named client errors, one per 4xx status the store is known to return.
var (
	ErrBadRequest         = errors.New("BadRequest")
	ErrUnauthorized       = errors.New("Unauthorized")
	ErrForbidden          = errors.New("Forbidden")
	ErrNotFound           = errors.New("NotFound")
	ErrMethodNotAllowed   = errors.New("MethodNotAllowed")
	ErrNotAcceptable      = errors.New("NotAcceptable")
	ErrConflict           = errors.New("Conflict")
	ErrPreconditionFailed = errors.New("PreconditionFailed")
	ErrBadContentType     = errors.New("BadContentType")
	ErrBadRangeRequest    = errors.New("BadRangeRequest")
	ErrExpectationFailed  = errors.New("ExpectationFailed")
)

var (
	ErrNoBaseURL         = errors.New("base url not set")
	ErrNoDocumentID      = errors.New("document has no _id")
	ErrSessionStarted    = errors.New("session already started")
	ErrMonitorStopped    = errors.New("changes monitor stopped")
	ErrInvalidTransition = errors.New("invalid state transition")
)

var clientErrors = map[int]error{
	400: ErrBadRequest,
	401: ErrUnauthorized,
	403: ErrForbidden,
	404: ErrNotFound,
	405: ErrMethodNotAllowed,
	406: ErrNotAcceptable,
	409: ErrConflict,
	412: ErrPreconditionFailed,
	415: ErrBadContentType,
	416: ErrBadRangeRequest,
	417: ErrExpectationFailed,
}

// StatusError returns the name and sentinel for a 4xx status code.
// Unmapped codes yield "ClientError" and ErrClient.
func StatusError(code int) (string, error) {
	if err, ok := clientErrors[code]; ok {
		return err.Error(), err
	}
	return ErrClient.Error(), ErrClient
}
