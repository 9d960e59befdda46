package aws

import "errors"

// Error carries a classified failure from the provisioning backend.
type Error struct {
	Type    ErrorType
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

type ErrorType string

const (
	// ErrorTypeConfiguration marks failures constructing the client: a bad
	// region, an unreachable endpoint, unusable credentials. Fatal, never
	// retried.
	ErrorTypeConfiguration ErrorType = "CONFIGURATION"
	// ErrorTypeProvisioning marks a backend rejection of a read or write
	// call.
	ErrorTypeProvisioning ErrorType = "PROVISIONING"
	ErrorTypeRateLimit    ErrorType = "RATE_LIMIT"
	ErrorTypeNetwork      ErrorType = "NETWORK"
)

// provisioningError wraps a backend failure, preserving an already
// classified error from a lower layer instead of double-wrapping it.
func provisioningError(msg string, cause error) *Error {
	var typed *Error
	if errors.As(cause, &typed) {
		return typed
	}
	return &Error{Type: ErrorTypeProvisioning, Message: msg, Cause: cause}
}

func configurationError(msg string, cause error) *Error {
	return &Error{Type: ErrorTypeConfiguration, Message: msg, Cause: cause}
}
