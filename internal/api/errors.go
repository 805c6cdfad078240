package api

import (
	"errors"
	"fmt"
)

// Error taxonomy. Validation and authorization failures block the call
// before any network attempt; network failures surface as a generic
// connectivity error; structured server errors carry the server's message
// verbatim.
var (
	// ErrValidation marks local, pre-network input validation failures.
	ErrValidation = errors.New("validation failed")
	// ErrNetwork marks transport failures; the operation is abandoned.
	ErrNetwork = errors.New("network error")
	// ErrUnauthorized marks calls attempted without a usable token.
	ErrUnauthorized = errors.New("not authenticated")
)

// ServerError is a non-2xx response with a structured error body. Message
// is surfaced to the user verbatim.
type ServerError struct {
	Status  int
	Message string
}

func (e *ServerError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("server returned status %d", e.Status)
}

// IsServerError extracts a ServerError from an error chain.
func IsServerError(err error) (*ServerError, bool) {
	var se *ServerError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}
