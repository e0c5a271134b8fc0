package models

import "time"

// CartItemKind tags the three purchasable record types that can sit in a
// cart. Dispatch happens through the CartItem interface, never by inspecting
// concrete types at call sites.
type CartItemKind string

const (
	CartItemBooking     CartItemKind = "booking"
	CartItemMembership  CartItemKind = "membership"
	CartItemGiftVoucher CartItemKind = "gift_voucher"
)

// CartItem is the common priced-item capability shared by bookings,
// memberships and gift-voucher purchases while they are unpaid.
type CartItem interface {
	CartItemID() string
	CartItemKind() CartItemKind

	// BaseCost is the undiscounted price; CurrentCost reflects any applied
	// item-voucher discount.
	BaseCost() float64
	CurrentCost() float64

	AppliedVoucher() string
	VoucherEligible(v *Voucher) bool
	SetDiscount(code string, cost float64)
	ClearDiscount()

	MarkPaid()
	SetCheckoutTime(t *time.Time)
	SetInvoiceID(id string)
}

// Cart is a priced snapshot of a user's (or guest's) unpaid items.
type Cart struct {
	OwnerEmail       string     `json:"owner_email,omitempty"`
	Items            []CartItem `json:"items"`
	Subtotal         float64    `json:"subtotal"`
	TotalVoucherCode string     `json:"total_voucher_code,omitempty"`
	Total            float64    `json:"total"`
}
