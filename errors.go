package couch

import (
	"fmt"
	"strings"

	"github.com/json420/couch.go/pkg/constants"
	"github.com/json420/couch.go/pkg/models"
)

// BulkError reports the rows of a bulk save that the server rejected.
// It matches constants.ErrClient and, for each row, the named error
// matching its "error" member.
type BulkError struct {
	Failed []models.Row
}

var rowErrors = map[string]error{
	"bad_request":        constants.ErrBadRequest,
	"unauthorized":       constants.ErrUnauthorized,
	"forbidden":          constants.ErrForbidden,
	"not_found":          constants.ErrNotFound,
	"conflict":           constants.ErrConflict,
	"expectation_failed": constants.ErrExpectationFailed,
}

func (e *BulkError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "bulk save: %d document(s) failed", len(e.Failed))
	for _, row := range e.Failed {
		fmt.Fprintf(&b, "; %s: %s", row.ID, row.Error)
		if row.Reason != "" {
			fmt.Fprintf(&b, ": %s", row.Reason)
		}
	}
	return b.String()
}

func (e *BulkError) Unwrap() []error {
	errs := []error{constants.ErrClient}
	seen := map[error]bool{}
	for _, row := range e.Failed {
		if err, ok := rowErrors[row.Error]; ok && !seen[err] {
			seen[err] = true
			errs = append(errs, err)
		}
	}
	return errs
}

// IDs returns the ids of the failed rows.
func (e *BulkError) IDs() []string {
	ids := make([]string, len(e.Failed))
	for i, row := range e.Failed {
		ids[i] = row.ID
	}
	return ids
}
