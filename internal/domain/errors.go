package domain

import (
	"errors"
	"fmt"
)

// DomainError represents a domain-specific error
type DomainError struct {
	Code    string
	Message string
	Err     error
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError creates a new DomainError
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     nil,
	}
}

// NewDomainErrorWithCause creates a new DomainError with an underlying cause
func NewDomainErrorWithCause(code, message string, err error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// HasCode reports whether err wraps a DomainError with the given code
func HasCode(err error, code string) bool {
	var de *DomainError
	return errors.As(err, &de) && de.Code == code
}

// Common domain error codes
const (
	ErrCodeValidation    = "VALIDATION_ERROR"
	ErrCodeNotFound      = "NOT_FOUND"
	ErrCodeAlreadyExists = "ALREADY_EXISTS"
	ErrCodeUnauthorized  = "UNAUTHORIZED"
	ErrCodeForbidden     = "FORBIDDEN"
	ErrCodeInternalError = "INTERNAL_ERROR"
	ErrCodeRateLimited   = "RATE_LIMITED"
)

// Validation errors
var (
	ErrInvalidRequest  = NewDomainError(ErrCodeValidation, "invalid request")
	ErrInvalidSiteName = NewDomainError(ErrCodeValidation, "invalid site name")
	ErrInvalidShard    = NewDomainError(ErrCodeValidation, "invalid shard assignment")
)

// Not found errors
var (
	ErrSiteNotFound     = NewDomainError(ErrCodeNotFound, "site not found")
	ErrPageNotFound     = NewDomainError(ErrCodeNotFound, "page not found")
	ErrIndexJobNotFound = NewDomainError(ErrCodeNotFound, "index job not found")
)

// Already exists errors
var (
	ErrSiteAlreadyExists = NewDomainError(ErrCodeAlreadyExists, "site already exists")
)

// Authorization errors
var (
	ErrUnknownSiteKey = NewDomainError(ErrCodeUnauthorized, "site key does not match a verified site")
	ErrOriginMismatch = NewDomainError(ErrCodeForbidden, "origin does not match site")
	ErrURLMismatch    = NewDomainError(ErrCodeForbidden, "url does not belong to site")
	ErrSiteUnverified = NewDomainError(ErrCodeForbidden, "site is not verified")
)

// Operation errors
var (
	ErrRateLimited = NewDomainError(ErrCodeRateLimited, "rate limit exceeded")
)
