package errx

import (
	"fmt"
	"net/http"
)

// WrapBackend describes a non-2xx answer from the reservation backend.
// message is the backend's own explanation when its body could be parsed.
func WrapBackend(status int, message string) error {
	if message == "" {
		message = fmt.Sprintf("%s (status %d)", BackendErrorMessage, status)
	}
	return New(fmt.Errorf("backend responded %d", status), status, message)
}

// BackendUnavailable wraps a transport failure (refused connection, timeout, 503).
func BackendUnavailable(err error) error {
	if err == nil {
		return nil
	}
	return New(err, http.StatusServiceUnavailable, BackendUnavailableMessage)
}
