package checkout

import (
	"errors"
	"fmt"
)

// ErrEmptyCart rejects a checkout against a cart with no items.
var ErrEmptyCart = errors.New("there is nothing in your cart to check out")

// ErrCheckoutBusy is returned when another checkout for the same cart holds
// the advisory lock.
var ErrCheckoutBusy = errors.New("another checkout for this cart is already in progress")

// ErrIntentSucceeded is returned by the gateway when an intent that already
// succeeded is asked to change. Settlement must come through the webhook.
var ErrIntentSucceeded = errors.New("payment intent has already succeeded")

// TotalMismatchError aborts a checkout whose client-side total no longer
// matches the server-side price. The client should refresh the cart.
type TotalMismatchError struct {
	Expected float64 // what the client displayed
	Actual   float64 // what the server computed
}

func (e *TotalMismatchError) Error() string {
	return fmt.Sprintf("cart total has changed from %.2f to %.2f, please review your cart", e.Expected, e.Actual)
}

// ReconciliationError marks a webhook settlement that failed verification.
// The payment is NOT applied; an operator alert is raised instead.
type ReconciliationError struct {
	InvoiceID string
	Reason    string
}

func (e *ReconciliationError) Error() string {
	return fmt.Sprintf("cannot reconcile payment for invoice %s: %s", e.InvoiceID, e.Reason)
}
