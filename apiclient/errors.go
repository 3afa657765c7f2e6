package apiclient

import (
	"fmt"
	"net/http"

	"github.com/jrsteele09/go-superset-kernel/internal/errors"
)

// StatusError is a non-2xx answer from the platform. It unwraps to the
// matching sentinel so callers can use errors.Is.
type StatusError struct {
	Method string
	Path   string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s %s: status %d", e.Method, e.Path, e.Status)
	}
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.Status, e.Body)
}

func (e *StatusError) Unwrap() error {
	switch {
	case e.Status == http.StatusUnauthorized:
		return errors.ErrTokenExpired
	case e.Status == http.StatusForbidden:
		return errors.ErrForbidden
	case e.Status == http.StatusNotFound || e.Status == http.StatusMethodNotAllowed:
		return errors.ErrEndpointNotFound
	case e.Status >= 500:
		return errors.ErrServerFault
	default:
		return nil
	}
}

// BadRequest reports a 400 or 422, which a probe treats as the wrong shape of
// endpoint rather than a terminal failure.
func (e *StatusError) BadRequest() bool {
	return e.Status == http.StatusBadRequest || e.Status == http.StatusUnprocessableEntity
}
