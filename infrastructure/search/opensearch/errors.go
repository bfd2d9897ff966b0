package opensearch

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	apperrors "tattoo-datasync/pkg/errors"
)

const maxErrorBodyBytes = 2048

// StatusError is a non-2xx response from the search cluster.
type StatusError struct {
	Operation  string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("opensearch %s failed (status=%d): %s", e.Operation, e.StatusCode, e.Body)
}

// IsNotFound reports whether err carries a 404 from the cluster.
func IsNotFound(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == http.StatusNotFound
}

// isBreakerSuccess treats client errors as healthy responses so that
// missing documents do not trip the circuit breaker.
func isBreakerSuccess(err error) bool {
	if err == nil {
		return true
	}
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode < 500
}

// toAppError maps transport and status failures onto the shared error
// taxonomy. 404s become not-found errors naming resource.
func toAppError(op, resource string, err error) error {
	if err == nil {
		return nil
	}
	var se *StatusError
	if errors.As(err, &se) {
		if se.StatusCode == http.StatusNotFound {
			return apperrors.NewNotFoundError(resource).WithCause(err)
		}
		return apperrors.NewExternalError("opensearch", err).
			WithDetails(map[string]interface{}{"operation": op, "status": se.StatusCode})
	}
	if apperrors.IsAppError(err) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return apperrors.NewTimeoutError("opensearch " + op).WithCause(err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return apperrors.NewTimeoutError("opensearch " + op).WithCause(err)
	}
	return apperrors.NewNetworkError("opensearch "+op+" request failed", err)
}

func truncateBody(raw []byte) string {
	if len(raw) <= maxErrorBodyBytes {
		return string(raw)
	}
	return string(raw[:maxErrorBodyBytes]) + "..."
}
