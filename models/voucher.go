package models

import (
	"errors"
	"time"
)

// VoucherKind distinguishes codes that discount individual cart items from
// codes that discount the whole checkout total.
type VoucherKind string

const (
	VoucherItem  VoucherKind = "item"
	VoucherTotal VoucherKind = "total"
)

// Voucher is a discount code. Exactly one of DiscountPercent and
// DiscountAmount must be set.
type Voucher struct {
	Code            string      `bson:"code" json:"code"`
	Kind            VoucherKind `bson:"kind" json:"kind"`
	DiscountPercent *float64    `bson:"discount_percent,omitempty" json:"discount_percent,omitempty"`
	DiscountAmount  *float64    `bson:"discount_amount,omitempty" json:"discount_amount,omitempty"`
	StartDate       time.Time   `bson:"start_date" json:"start_date"`
	ExpiryDate      *time.Time  `bson:"expiry_date,omitempty" json:"expiry_date,omitempty"`
	MaxTotalUses    *int        `bson:"max_total_uses,omitempty" json:"max_total_uses,omitempty"`
	MaxUsesPerUser  int         `bson:"max_uses_per_user" json:"max_uses_per_user"`
	Activated       bool        `bson:"activated" json:"activated"`

	// ItemVoucher scope; ignored for total vouchers.
	EventTypes      []string `bson:"event_types,omitempty" json:"event_types,omitempty"`
	MembershipTypes []string `bson:"membership_types,omitempty" json:"membership_types,omitempty"`

	CreatedAt time.Time `bson:"created_at" json:"created_at"`
}

// ErrVoucherDiscountShape is returned when a voucher does not carry exactly
// one of a percentage or a fixed discount.
var ErrVoucherDiscountShape = errors.New("voucher must set exactly one of discount_percent and discount_amount")

// CheckShape validates the percent-xor-amount invariant.
func (v *Voucher) CheckShape() error {
	if (v.DiscountPercent == nil) == (v.DiscountAmount == nil) {
		return ErrVoucherDiscountShape
	}
	return nil
}

// unscoped reports whether the voucher carries no item scope at all, in
// which case it covers every discountable item.
func (v *Voucher) unscoped() bool {
	return len(v.EventTypes) == 0 && len(v.MembershipTypes) == 0
}

// EligibleForEventType reports whether an item voucher covers bookings of the
// given session type.
func (v *Voucher) EligibleForEventType(eventType string) bool {
	if v.unscoped() {
		return true
	}
	for _, t := range v.EventTypes {
		if t == eventType {
			return true
		}
	}
	return false
}

// EligibleForMembershipType reports whether an item voucher covers the given
// membership type.
func (v *Voucher) EligibleForMembershipType(typeName string) bool {
	if v.unscoped() {
		return true
	}
	for _, t := range v.MembershipTypes {
		if t == typeName {
			return true
		}
	}
	return false
}
