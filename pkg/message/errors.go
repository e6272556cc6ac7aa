// Package message implements structural and semantic validation, canonical
// hashing, and message-id/hashlock utilities for the four cross-chain
// message variants the coordinator exchanges between chains.
package message

import "fmt"

// Code is one of the taxonomy codes from the error handling design: every
// validation failure in this package carries exactly one of these.
type Code string

const (
	// Validation
	CodeInvalidProof     Code = "INVALID_PROOF"
	CodeExpiredTimelock  Code = "EXPIRED_TIMELOCK"
	CodeInvalidSecret    Code = "INVALID_SECRET"
	CodeInvalidFormat    Code = "INVALID_FORMAT"
	CodeInvalidParameters Code = "INVALID_PARAMETERS"
	CodeInvalidSignature Code = "INVALID_SIGNATURE"
	CodeExpiredOrder     Code = "EXPIRED_ORDER"

	// Authorization
	CodeUnauthorizedRelayer     Code = "UNAUTHORIZED_RELAYER"
	CodeUnauthorizedCancellation Code = "UNAUTHORIZED_CANCELLATION"
	CodeUnauthorized            Code = "UNAUTHORIZED"

	// State
	CodeOrderNotFound            Code = "ORDER_NOT_FOUND"
	CodeOrderAlreadyFilled       Code = "ORDER_ALREADY_FILLED"
	CodeOrderAlreadyInExecution  Code = "ORDER_ALREADY_IN_EXECUTION"
	CodeDuplicateMessage         Code = "DUPLICATE_MESSAGE"

	// Capability
	CodeUnsupportedToken Code = "UNSUPPORTED_TOKEN"
	CodeBridgePaused     Code = "BRIDGE_PAUSED"

	// Transient / confirmation
	CodeInsufficientConfirmations Code = "INSUFFICIENT_CONFIRMATIONS"
)

// Error is the typed error every coordinator component returns instead of
// an ad-hoc error string, carrying a taxonomy code plus free-form detail.
type Error struct {
	Code    Code
	Message string
	Details map[string]interface{}
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// New builds a coordinator Error with the given code and message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf builds a coordinator Error with a formatted message.
func Newf(code Code, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithDetail attaches a free-form detail entry and returns the receiver,
// for chaining at the call site: message.New(...).WithDetail("field", f).
func (e *Error) WithDetail(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}
