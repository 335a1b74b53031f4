package constants

import "time"

const (
	DefaultHTTPTimeout = 30 * time.Second
	// DefaultPollTimeout bounds a single long-poll request. The server answers
	// well before this unless the connection is wedged.
	DefaultPollTimeout = 5 * time.Minute
	RequestIDLength    = 16
)

const ContentTypeJSON = "application/json"
