package generation

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrNotFound is returned when a session or file is missing on load.
var ErrNotFound = errors.New("not found")

// ServiceError is a job-level failure reported by a provider: a non-2xx
// HTTP status or an error envelope in a 2xx body. It is terminal for the
// stage run that hit it; previously saved session state is preserved.
type ServiceError struct {
	Service    string
	StatusCode int
	Message    string
}

func (e *ServiceError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: service error %d: %s", e.Service, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s: service error: %s", e.Service, e.Message)
}

// Auth reports whether the failure is an invalid-credentials error, which
// callers must not retry automatically.
func (e *ServiceError) Auth() bool {
	return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
}

// NetworkError is a transport-level failure. It is propagated to the
// caller, who decides whether to re-trigger the stage.
type NetworkError struct {
	Service string
	Err     error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s: network error: %v", e.Service, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }
