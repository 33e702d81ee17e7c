package errors

import (
	pkgerrors "github.com/pkg/errors"

	"github.com/mezonai/devnode/jsonx"
)

// ErrorCode represents standardized error codes surfaced by the dev node
type ErrorCode string

const (
	// General errors
	ErrCodeInternal       ErrorCode = "internal_error"
	ErrCodeInvalidRequest ErrorCode = "invalid_request"
	ErrCodeRateLimited    ErrorCode = "rate_limited"

	// Checkpoint errors
	ErrCodeInvariantViolation ErrorCode = "invariant_violation"

	// Host collaborator errors
	ErrCodeHostFailure ErrorCode = "host_failure"

	// Construction errors
	ErrCodeInvalidConfig ErrorCode = "invalid_config"
)

// Error message constants
const (
	ErrMsgInvalidRequest     = "Request format is invalid"
	ErrMsgInternal           = "Server error, please try again"
	ErrMsgRateLimited        = "Too many requests, please slow down"
	ErrMsgBackendRevert      = "backend revert failed"
	ErrMsgChainHead          = "chain head query failed"
	ErrMsgNegativeDelta      = "chain head is below the recorded snapshot height"
	ErrMsgZeroFeeRatio       = "fee ratio numerator and denominator must be non-zero"
	ErrMsgZeroProofSize      = "block max proof size must be non-zero"
	ErrMsgZeroFeeCoefficient = "derived fee coefficient truncates to zero"
	ErrMsgTimestampTooLow    = "timestamp must not be lower than the head block timestamp"
	ErrMsgNegativeTime       = "time can only move forward"
	ErrMsgMineFailed         = "block production failed"
	ErrMsgTimeOverflow       = "clock offset out of range"
	ErrMsgBaseFeeTooLarge    = "base fee does not fit in 128 bits"
)

// DevError is the structured error returned by the checkpoint subsystem.
// The cause, when present, keeps the original host error and its stack.
type DevError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Detail  string    `json:"detail,omitempty"`
	cause   error
}

// Error implements the error interface
func (e *DevError) Error() string {
	out := DevError{Code: e.Code, Message: e.Message}
	if e.cause != nil {
		out.Detail = e.cause.Error()
	}
	b, _ := jsonx.Marshal(out)
	return string(b)
}

// Cause returns the wrapped host error, satisfying pkg/errors' causer.
func (e *DevError) Cause() error {
	return e.cause
}

func (e *DevError) Unwrap() error {
	return e.cause
}

// NewError creates a new DevError and returns it as error interface
func NewError(code ErrorCode, message string) error {
	return &DevError{
		Code:    code,
		Message: message,
	}
}

// Wrap attaches a code and message to err. A nil err yields nil.
func Wrap(err error, code ErrorCode, message string) error {
	if err == nil {
		return nil
	}
	return &DevError{
		Code:    code,
		Message: message,
		cause:   pkgerrors.WithStack(err),
	}
}

// CodeOf returns the code of the outermost DevError in err's chain,
// or ErrCodeInternal when there is none.
func CodeOf(err error) ErrorCode {
	var de *DevError
	if pkgerrors.As(err, &de) {
		return de.Code
	}
	return ErrCodeInternal
}

// HasCode reports whether err carries the given code.
func HasCode(err error, code ErrorCode) bool {
	return err != nil && CodeOf(err) == code
}

// RootCause unwraps err down to the original host error.
func RootCause(err error) error {
	return pkgerrors.Cause(err)
}

// As finds the first error in err's chain that matches target.
func As(err error, target interface{}) bool {
	return pkgerrors.As(err, target)
}
