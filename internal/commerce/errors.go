package commerce

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNoIdentity indicates a call requiring identity was attempted with
	// neither a bearer token nor a cart id. This is a caller logic error and
	// is raised before any network dispatch.
	ErrNoIdentity = errors.New("commerce: no identity available for request")
	// ErrTransport indicates the request never produced a usable upstream
	// response (network failure, malformed body).
	ErrTransport = errors.New("commerce: request failed")
)

// APIError carries an upstream business rejection: the commerce API responded
// but declined the action. Message is surfaced verbatim where available.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	msg := strings.TrimSpace(e.Message)
	if msg == "" {
		return fmt.Sprintf("commerce: upstream rejected request (status %d)", e.Status)
	}
	return msg
}

// UpstreamMessage extracts the server's rejection reason from an error chain,
// returning the fallback when no verbatim message is available.
func UpstreamMessage(err error, fallback string) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		if msg := strings.TrimSpace(apiErr.Message); msg != "" {
			return msg
		}
	}
	return fallback
}
