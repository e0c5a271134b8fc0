package models

import "time"

// BookingStatus is the lifecycle state of a reservation.
type BookingStatus string

const (
	BookingOpen      BookingStatus = "OPEN"
	BookingCancelled BookingStatus = "CANCELLED"
)

// Booking is one user's reservation against a Session. Rows are mutated only
// through the booking state machine; the cart janitor may delete rows that
// were never paid.
type Booking struct {
	ID        string        `bson:"id" json:"id"`
	UserID    string        `bson:"user_id" json:"user_id"`
	UserEmail string        `bson:"user_email" json:"user_email"`
	SessionID string        `bson:"session_id" json:"session_id"`
	EventType string        `bson:"event_type" json:"event_type"` // denormalized from the session for voucher eligibility
	Status    BookingStatus `bson:"status" json:"status"`
	Attended  bool          `bson:"attended" json:"attended"`
	NoShow    bool          `bson:"no_show" json:"no_show"`
	Paid      bool          `bson:"paid" json:"paid"`

	Cost           float64  `bson:"cost" json:"cost"` // session price at booking time
	DiscountedCost *float64 `bson:"discounted_cost,omitempty" json:"discounted_cost,omitempty"`
	VoucherCode    string   `bson:"voucher_code,omitempty" json:"voucher_code,omitempty"`
	MembershipID   string   `bson:"membership_id,omitempty" json:"membership_id,omitempty"`
	InvoiceID      string   `bson:"invoice_id,omitempty" json:"invoice_id,omitempty"`

	DateBooked    time.Time  `bson:"date_booked" json:"date_booked"`
	DateRebooked  *time.Time `bson:"date_rebooked,omitempty" json:"date_rebooked,omitempty"`
	DateCancelled *time.Time `bson:"date_cancelled,omitempty" json:"date_cancelled,omitempty"`
	CheckoutTime  *time.Time `bson:"checkout_time,omitempty" json:"checkout_time,omitempty"` // set while a payment is in flight

	CancellationFeeIncurred bool `bson:"cancellation_fee_incurred" json:"cancellation_fee_incurred"`
	CancellationFeePaid     bool `bson:"cancellation_fee_paid" json:"cancellation_fee_paid"`
}

// CountsAgainstCapacity reports whether this row consumes a spot.
func (b *Booking) CountsAgainstCapacity() bool {
	return b.Status == BookingOpen && !b.NoShow
}

// CartItem implementation.

func (b *Booking) CartItemID() string         { return b.ID }
func (b *Booking) CartItemKind() CartItemKind { return CartItemBooking }
func (b *Booking) BaseCost() float64          { return b.Cost }

func (b *Booking) CurrentCost() float64 {
	if b.DiscountedCost != nil {
		return *b.DiscountedCost
	}
	return b.Cost
}

func (b *Booking) AppliedVoucher() string { return b.VoucherCode }

func (b *Booking) VoucherEligible(v *Voucher) bool {
	return v.EligibleForEventType(b.EventType)
}

func (b *Booking) SetDiscount(code string, cost float64) {
	b.VoucherCode = code
	b.DiscountedCost = &cost
}

func (b *Booking) ClearDiscount() {
	b.VoucherCode = ""
	b.DiscountedCost = nil
}

func (b *Booking) MarkPaid() {
	b.Paid = true
	b.CheckoutTime = nil
}

func (b *Booking) SetCheckoutTime(t *time.Time) { b.CheckoutTime = t }
func (b *Booking) SetInvoiceID(id string)       { b.InvoiceID = id }
