package models

import "time"

// MembershipType describes a purchasable bundle of class credits.
type MembershipType struct {
	Name            string  `bson:"name" json:"name"`
	EventType       string  `bson:"event_type" json:"event_type"` // session type the credits apply to
	AllottedClasses int     `bson:"allotted_classes" json:"allotted_classes"`
	Price           float64 `bson:"price" json:"price"`
	Active          bool    `bson:"active" json:"active"`
}

// Membership is a user's pre-paid bundle of credits for a given month. A
// membership is usable while it is paid, not full and not expired; "full"
// means every allotted credit has been spent.
type Membership struct {
	ID              string `bson:"id" json:"id"`
	UserID          string `bson:"user_id" json:"user_id"`
	UserEmail       string `bson:"user_email" json:"user_email"`
	TypeName        string `bson:"type_name" json:"type_name"`
	EventType       string `bson:"event_type" json:"event_type"`
	AllottedClasses int    `bson:"allotted_classes" json:"allotted_classes"`
	TimesUsed       int    `bson:"times_used" json:"times_used"`
	Month           int    `bson:"month" json:"month"` // 1-12
	Year            int    `bson:"year" json:"year"`
	Paid            bool   `bson:"paid" json:"paid"`

	Cost           float64  `bson:"cost" json:"cost"`
	DiscountedCost *float64 `bson:"discounted_cost,omitempty" json:"discounted_cost,omitempty"`
	VoucherCode    string   `bson:"voucher_code,omitempty" json:"voucher_code,omitempty"`
	InvoiceID      string   `bson:"invoice_id,omitempty" json:"invoice_id,omitempty"`

	PurchasedAt  time.Time  `bson:"purchased_at" json:"purchased_at"`
	CheckoutTime *time.Time `bson:"checkout_time,omitempty" json:"checkout_time,omitempty"`
}

// Full reports whether every allotted credit has been spent.
func (m *Membership) Full() bool { return m.TimesUsed >= m.AllottedClasses }

// Expired reports whether the membership's month has passed relative to now.
func (m *Membership) Expired(now time.Time) bool {
	if m.Year != now.Year() {
		return m.Year < now.Year()
	}
	return m.Month < int(now.Month())
}

// Usable reports whether the membership can back a booking for the given
// event type in the given month/year.
func (m *Membership) Usable(eventType string, month time.Month, year int, now time.Time) bool {
	return m.Paid && !m.Full() && !m.Expired(now) &&
		m.EventType == eventType && m.Month == int(month) && m.Year == year
}

// CartItem implementation.

func (m *Membership) CartItemID() string         { return m.ID }
func (m *Membership) CartItemKind() CartItemKind { return CartItemMembership }
func (m *Membership) BaseCost() float64          { return m.Cost }

func (m *Membership) CurrentCost() float64 {
	if m.DiscountedCost != nil {
		return *m.DiscountedCost
	}
	return m.Cost
}

func (m *Membership) AppliedVoucher() string { return m.VoucherCode }

func (m *Membership) VoucherEligible(v *Voucher) bool {
	return v.EligibleForMembershipType(m.TypeName)
}

func (m *Membership) SetDiscount(code string, cost float64) {
	m.VoucherCode = code
	m.DiscountedCost = &cost
}

func (m *Membership) ClearDiscount() {
	m.VoucherCode = ""
	m.DiscountedCost = nil
}

func (m *Membership) MarkPaid() {
	m.Paid = true
	m.CheckoutTime = nil
}

func (m *Membership) SetCheckoutTime(t *time.Time) { m.CheckoutTime = t }
func (m *Membership) SetInvoiceID(id string)       { m.InvoiceID = id }
