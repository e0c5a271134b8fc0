package voucher

import "fmt"

// InvalidError rejects a code with a human-readable reason. Validation is a
// chain; the first failing check is terminal for the code.
type InvalidError struct {
	Code   string
	Reason string
}

func (e *InvalidError) Error() string {
	return fmt.Sprintf("voucher %s: %s", e.Code, e.Reason)
}

func newInvalid(code, reason string) error {
	return &InvalidError{Code: code, Reason: reason}
}
