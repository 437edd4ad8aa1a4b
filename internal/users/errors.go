package users

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation marks user-correctable input problems. Use errors.As with *ValidationError for the message.
	ErrValidation = errors.New("users: validation failed")
	// ErrInvalidCredentials is returned for both unknown usernames and wrong secrets.
	ErrInvalidCredentials = errors.New("users: invalid username or password")
	// ErrPrincipalNotFound indicates no principal exists for the requested identifier.
	ErrPrincipalNotFound = errors.New("users: principal not found")
	// ErrUnsupportedCredentials indicates a Credentials variant the resolver does not know.
	ErrUnsupportedCredentials = errors.New("users: unsupported credentials")
)

// ValidationError carries a message suitable for re-rendering a form.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%v: %s: %s", ErrValidation, e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

func newValidationError(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// ServiceError wraps persistence failures with a machine-readable code.
type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

func (e *ServiceError) Code() string {
	return e.code
}

const (
	opServiceNew      = "users.service.new"
	opRegister        = "users.register"
	opAuthenticate    = "users.authenticate_local"
	opResolveExternal = "users.resolve_external"
	opFindPrincipal   = "users.find_principal"
	opFindByIdentity  = "users.find_by_identity"
	opCreatePrincipal = "users.create_principal"
)

func newServiceError(operation, reason string, cause error) error {
	code := fmt.Sprintf("%s.%s", operation, reason)
	return &ServiceError{code: code, err: cause}
}
