package constants

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusError(t *testing.T) {
	cases := map[int]string{
		400: "BadRequest",
		401: "Unauthorized",
		403: "Forbidden",
		404: "NotFound",
		405: "MethodNotAllowed",
		406: "NotAcceptable",
		409: "Conflict",
		412: "PreconditionFailed",
		415: "BadContentType",
		416: "BadRangeRequest",
		417: "ExpectationFailed",
		418: "ClientError",
		499: "ClientError",
	}
	for code, want := range cases {
		name, err := StatusError(code)
		assert.Equal(t, want, name, "status %d", code)
		assert.Equal(t, want, err.Error(), "status %d", code)
	}

	_, err := StatusError(422)
	assert.ErrorIs(t, err, ErrClient)
}
