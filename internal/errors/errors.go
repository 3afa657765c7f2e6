package errors

import (
	"errors"
	"fmt"
)

// Error taxonomy for the session kernel and API access layer
var (
	// Authentication errors
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUnreachable        = errors.New("analytics platform unreachable")
	ErrTokenExpired       = errors.New("token expired")
	ErrUnauthenticated    = errors.New("unauthenticated")

	// Permission errors
	ErrForbidden = errors.New("forbidden")

	// Discovery errors
	ErrEndpointNotFound   = errors.New("endpoint not found")
	ErrDiscoveryExhausted = errors.New("discovery exhausted")
	ErrEmptyResult        = errors.New("empty result")

	// Transport errors
	ErrNetwork     = errors.New("network failure")
	ErrServerFault = errors.New("server fault")

	// General errors
	ErrInvalidResponse = errors.New("invalid response")
	ErrNotFound        = errors.New("not found")
)

// Terminal reports whether err must be surfaced untouched and never retried.
func Terminal(err error) bool {
	return Is(err, ErrInvalidCredentials) || Is(err, ErrForbidden) || Is(err, ErrUnauthenticated)
}

// Transport reports whether err is a network or 5xx failure.
func Transport(err error) bool {
	return Is(err, ErrNetwork) || Is(err, ErrServerFault)
}

// Wrapf wraps an error with context using fmt.Errorf
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// Join wraps cause under a taxonomy sentinel so both match errors.Is.
func Join(sentinel, cause error) error {
	if cause == nil {
		return sentinel
	}
	return fmt.Errorf("%w: %w", sentinel, cause)
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
