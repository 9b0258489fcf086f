package auth

import (
	"errors"
	"fmt"
)

type (
	ValidationError struct {
		Field  string
		Reason string
	}

	// StoreUnavailable is returned when the credential store failed while
	// serving a request. The cause is kept for server side logs only.
	StoreUnavailable struct {
		Op    string
		cause error
	}
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUnauthenticated    = errors.New("unauthenticated")
	ErrRegistrationClosed = errors.New("registration is closed")
	ErrAlreadyExists      = errors.New("user already exists")
	ErrNotFound           = errors.New("user not found")
	ErrStoreUnavailable   = errors.New("credential store unavailable")
	ErrInvalidToken       = errors.New("invalid session token")
	ErrThrottled          = errors.New("too many failed attempts, try again later")
)

func (v ValidationError) Error() string {
	return fmt.Sprintf("invalid %v: %v", v.Field, v.Reason)
}

func (s StoreUnavailable) Error() string {
	return fmt.Sprintf("credential store unavailable during %v", s.Op)
}

func (s StoreUnavailable) Unwrap() error {
	return s.cause
}

func (s StoreUnavailable) Is(target error) bool {
	return target == ErrStoreUnavailable
}

func storeUnavailable(op string, err error) error {
	return StoreUnavailable{Op: op, cause: err}
}

type panicError struct {
	value interface{}
}

func (p panicError) Error() string {
	return fmt.Sprintf("panic: %v", p.value)
}
