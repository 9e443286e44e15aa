package charge

import (
	"errors"
	"fmt"
)

// FailureCode identifies why a charge request was rejected. These are
// the codes surfaced to the HTTP layer and the keypad controller.
type FailureCode string

const (
	CodeInvalidInput      FailureCode = "INVALID_INPUT"
	CodeMachineDisabled   FailureCode = "MACHINE_DISABLED"
	CodeMachineBusy       FailureCode = "MACHINE_BUSY"
	CodePriceNotDefined   FailureCode = "PRICE_NOT_DEFINED"
	CodeTenantNotFound    FailureCode = "TENANT_NOT_FOUND"
	CodeInsufficientFunds FailureCode = "INSUFFICIENT_FUNDS"
	CodeActivationFailed  FailureCode = "ACTIVATION_FAILED"
	CodeLockTimeout       FailureCode = "LOCK_TIMEOUT"
)

// Error is a charge failure with its outward-facing code.
type Error struct {
	Code FailureCode
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Code, e.Err)
	}
	return string(e.Code)
}

func (e *Error) Unwrap() error { return e.Err }

func failure(code FailureCode, err error) *Error {
	return &Error{Code: code, Err: err}
}

// CodeOf extracts the failure code from an error returned by Charge.
func CodeOf(err error) (FailureCode, bool) {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Code, true
	}
	return "", false
}
