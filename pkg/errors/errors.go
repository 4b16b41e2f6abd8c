package errors

import (
	"errors"
	"fmt"
)

// Error kinds. Every client-facing BusinessError wraps exactly one of these.
var (
	ErrValidation    = errors.New("validation failed")
	ErrAuthorization = errors.New("not authorized")
	ErrNotFound      = errors.New("not found")
	ErrInvalidState  = errors.New("invalid state")
)

// BusinessError represents a business logic error
type BusinessError struct {
	Code    string
	Message string
	Err     error
}

func (e *BusinessError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *BusinessError) Unwrap() error {
	return e.Err
}

// NewBusinessError creates a new business error
func NewBusinessError(code, message string, err error) *BusinessError {
	return &BusinessError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Error codes
const (
	ErrCodeValidation         = "VALIDATION_ERROR"
	ErrCodeAuthorization      = "AUTHORIZATION_ERROR"
	ErrCodeNotFound           = "NOT_FOUND"
	ErrCodeInvalidState       = "INVALID_STATE"
	ErrCodeLoanNotFound       = "LOAN_NOT_FOUND"
	ErrCodeScheduleNotFound   = "SCHEDULE_NOT_FOUND"
	ErrCodeLoanNotPending     = "LOAN_NOT_PENDING"
	ErrCodeInstallmentPaid    = "INSTALLMENT_ALREADY_PAID"
	ErrCodeTermOutOfRange     = "TERM_OUT_OF_RANGE"
	ErrCodeConcurrentUpdate   = "CONCURRENT_UPDATE"
	ErrCodeInvalidCredentials = "INVALID_CREDENTIALS"
	ErrCodeDatabaseError      = "DATABASE_ERROR"
	ErrCodeCacheError         = "CACHE_ERROR"
)

func NewValidationError(message string) *BusinessError {
	return NewBusinessError(ErrCodeValidation, message, ErrValidation)
}

func NewAuthorizationError(message string) *BusinessError {
	return NewBusinessError(ErrCodeAuthorization, message, ErrAuthorization)
}

func NewNotFoundError(message string) *BusinessError {
	return NewBusinessError(ErrCodeNotFound, message, ErrNotFound)
}

func NewInvalidStateError(message string) *BusinessError {
	return NewBusinessError(ErrCodeInvalidState, message, ErrInvalidState)
}

// Wrap common errors with business context
func WrapLoanNotFound(loanID string) *BusinessError {
	return NewBusinessError(
		ErrCodeLoanNotFound,
		fmt.Sprintf("No loan associated with the loanId %s", loanID),
		ErrNotFound,
	)
}

func WrapScheduleNotFound(loanID string) *BusinessError {
	return NewBusinessError(
		ErrCodeScheduleNotFound,
		fmt.Sprintf("Repayments not found for loanId %s", loanID),
		ErrNotFound,
	)
}

func WrapLoanNotPending(loanID string) *BusinessError {
	return NewBusinessError(
		ErrCodeLoanNotPending,
		fmt.Sprintf("The loan associated with the loanId %s is not PENDING", loanID),
		ErrInvalidState,
	)
}

func WrapInstallmentAlreadyPaid(term int) *BusinessError {
	return NewBusinessError(
		ErrCodeInstallmentPaid,
		fmt.Sprintf("Repayment for term number %d has already been paid for the given loan", term),
		ErrInvalidState,
	)
}

func WrapTermOutOfRange(term, scheduleLength int) *BusinessError {
	return NewBusinessError(
		ErrCodeTermOutOfRange,
		fmt.Sprintf("Invalid repaymentTerm %d for the given loan (expected 1 to %d)", term, scheduleLength),
		ErrValidation,
	)
}

func WrapConcurrentUpdate(loanID string) *BusinessError {
	return NewBusinessError(
		ErrCodeConcurrentUpdate,
		fmt.Sprintf("Loan %s was modified by another request", loanID),
		ErrInvalidState,
	)
}

func WrapInvalidCredentials() *BusinessError {
	return NewBusinessError(
		ErrCodeInvalidCredentials,
		"Invalid email or password",
		ErrValidation,
	)
}

func WrapDatabaseError(err error) *BusinessError {
	return NewBusinessError(
		ErrCodeDatabaseError,
		"database operation failed",
		err,
	)
}

func WrapCacheError(err error) *BusinessError {
	return NewBusinessError(
		ErrCodeCacheError,
		"Cache operation failed",
		err,
	)
}

// IsClientError reports whether err belongs to the client-facing taxonomy.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrAuthorization) ||
		errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrInvalidState)
}

// PublicMessage returns the message safe to show to a client, or "" when
// err is not a client-facing BusinessError.
func PublicMessage(err error) string {
	var be *BusinessError
	if errors.As(err, &be) && IsClientError(be) {
		return be.Message
	}
	return ""
}
