package models

import "time"

// Invoice is the priced, payable record generated from a cart at checkout.
// Owner identity is kept as plain username/email so the record survives
// account deletion. ItemSetHash is the idempotency key: an unpaid invoice is
// reused while the owner's unpaid item set is unchanged.
type Invoice struct {
	ID               string  `bson:"id" json:"id"`
	Username         string  `bson:"username" json:"username"`
	Email            string  `bson:"email" json:"email"`
	OwnerKey         string  `bson:"owner_key" json:"-"` // cart-state key: user id, or guest token
	Amount           float64 `bson:"amount" json:"amount"`
	Paid             bool    `bson:"paid" json:"paid"`
	ItemSetHash      string  `bson:"item_set_hash" json:"item_set_hash"`
	PaymentIntentID  string  `bson:"payment_intent_id,omitempty" json:"payment_intent_id,omitempty"`
	TotalVoucherCode string  `bson:"total_voucher_code,omitempty" json:"total_voucher_code,omitempty"`

	CreatedAt time.Time  `bson:"created_at" json:"created_at"`
	PaidAt    *time.Time `bson:"paid_at,omitempty" json:"paid_at,omitempty"`
}

// PaymentIntentRecord mirrors the processor's payment-intent object for audit
// and reconciliation. The processor remains authoritative; this is a local
// cache only.
type PaymentIntentRecord struct {
	ID        string            `bson:"id" json:"id"` // processor intent id
	InvoiceID string            `bson:"invoice_id" json:"invoice_id"`
	Amount    int64             `bson:"amount" json:"amount"` // minor currency units
	Currency  string            `bson:"currency" json:"currency"`
	Status    string            `bson:"status" json:"status"`
	Metadata  map[string]string `bson:"metadata,omitempty" json:"metadata,omitempty"`
	UpdatedAt time.Time         `bson:"updated_at" json:"updated_at"`
}
