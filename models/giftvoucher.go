package models

import "time"

// GiftVoucherPurchase is a cart item that, once paid, activates the voucher
// identified by VoucherCode. Guests may buy these, so the purchaser is
// identified by email rather than a user account.
type GiftVoucherPurchase struct {
	ID             string  `bson:"id" json:"id"`
	PurchaserEmail string  `bson:"purchaser_email" json:"purchaser_email"`
	RecipientName  string  `bson:"recipient_name,omitempty" json:"recipient_name,omitempty"`
	VoucherCode    string  `bson:"voucher_code" json:"voucher_code"` // code activated on settlement
	Cost           float64 `bson:"cost" json:"cost"`
	Paid           bool    `bson:"paid" json:"paid"`
	InvoiceID      string  `bson:"invoice_id,omitempty" json:"invoice_id,omitempty"`

	CreatedAt    time.Time  `bson:"created_at" json:"created_at"`
	CheckoutTime *time.Time `bson:"checkout_time,omitempty" json:"checkout_time,omitempty"`
}

// CartItem implementation. Gift vouchers are never discountable by item
// vouchers, so the discount slot is a no-op.

func (g *GiftVoucherPurchase) CartItemID() string         { return g.ID }
func (g *GiftVoucherPurchase) CartItemKind() CartItemKind { return CartItemGiftVoucher }
func (g *GiftVoucherPurchase) BaseCost() float64          { return g.Cost }
func (g *GiftVoucherPurchase) CurrentCost() float64       { return g.Cost }
func (g *GiftVoucherPurchase) AppliedVoucher() string     { return "" }
func (g *GiftVoucherPurchase) VoucherEligible(*Voucher) bool { return false }

func (g *GiftVoucherPurchase) SetDiscount(string, float64) {}
func (g *GiftVoucherPurchase) ClearDiscount()              {}

func (g *GiftVoucherPurchase) MarkPaid() {
	g.Paid = true
	g.CheckoutTime = nil
}

func (g *GiftVoucherPurchase) SetCheckoutTime(t *time.Time) { g.CheckoutTime = t }
func (g *GiftVoucherPurchase) SetInvoiceID(id string)       { g.InvoiceID = id }
