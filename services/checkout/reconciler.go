package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"studiobook/database/repository"
	bookingRepo "studiobook/database/repository/booking"
	giftvoucherRepo "studiobook/database/repository/giftvoucher"
	intentRepo "studiobook/database/repository/intent"
	invoiceRepo "studiobook/database/repository/invoice"
	membershipRepo "studiobook/database/repository/membership"
	voucherRepo "studiobook/database/repository/voucher"
	"studiobook/models"
	cartSvc "studiobook/services/cart"
	"studiobook/services/notification"
	"studiobook/utils"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Session is what a begun checkout hands back to the client. A zero-total
// cart settles immediately and carries no client secret.
type Session struct {
	Invoice      *models.Invoice `json:"invoice"`
	ClientSecret string          `json:"client_secret,omitempty"`
	Settled      bool            `json:"settled"`
}

// CartService is the slice of the cart service the reconciler uses: assemble
// and price the cart, then pin its items to the invoice.
type CartService interface {
	Assemble(ctx context.Context, id cartSvc.Identity) (*models.Cart, error)
	MarkCheckoutStarted(ctx context.Context, c *models.Cart, invoiceID string, at time.Time) error
}

// CartStateStore clears the owner's stored checkout-total code once the
// invoice it priced is settled.
type CartStateStore interface {
	ClearTotalVoucher(ctx context.Context, owner string) error
}

// Locker serializes checkouts per owner.
type Locker interface {
	Acquire(ctx context.Context, name string) (string, bool, error)
	Release(ctx context.Context, name, token string) error
}

// Reconciler owns checkout: it prices the cart server-side, finds or creates
// the invoice, drives the payment intent, and settles invoices from verified
// webhook events. All money decisions happen here, never in handlers.
type Reconciler struct {
	Cart         CartService
	Store        CartStateStore
	Invoices     invoiceRepo.Repository
	Intents      intentRepo.Repository
	Bookings     bookingRepo.Repository
	Memberships  membershipRepo.Repository
	GiftVouchers giftvoucherRepo.Repository
	Vouchers     voucherRepo.Repository
	Gateway      PaymentGateway
	Lock         Locker
	Signer       *Signer
	Notifier     notification.Service
	Logger       *zap.Logger

	Currency string
	Now      func() time.Time
}

func (r *Reconciler) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

// Begin starts (or resumes) a checkout for the identity's cart.
// expectedTotal is the amount the client displayed; if the server-side price
// differs the checkout aborts so the user reviews the cart before paying.
func (r *Reconciler) Begin(ctx context.Context, id cartSvc.Identity, expectedTotal float64) (*Session, error) {
	token, ok, err := r.Lock.Acquire(ctx, "checkout:"+id.Owner())
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrCheckoutBusy
	}
	defer func() {
		if rerr := r.Lock.Release(ctx, "checkout:"+id.Owner(), token); rerr != nil {
			r.Logger.Warn("failed to release checkout lock", zap.Error(rerr))
		}
	}()

	c, err := r.Cart.Assemble(ctx, id)
	if err != nil {
		return nil, err
	}
	if len(c.Items) == 0 {
		return nil, ErrEmptyCart
	}
	if c.Total != expectedTotal {
		return nil, &TotalMismatchError{Expected: expectedTotal, Actual: c.Total}
	}

	inv, err := r.lookupOrCreateInvoice(ctx, id, c)
	if err != nil {
		return nil, err
	}
	if err := r.Cart.MarkCheckoutStarted(ctx, c, inv.ID, r.now()); err != nil {
		return nil, err
	}

	if c.Total == 0 {
		if err := r.settle(ctx, inv, ""); err != nil {
			return nil, err
		}
		return &Session{Invoice: inv, Settled: true}, nil
	}

	secret, settled, err := r.ensureIntent(ctx, inv, c)
	if err != nil {
		return nil, err
	}
	if settled {
		// Paid out-of-band while we were re-pricing; hand back the settled
		// invoice instead of a payable form.
		inv, err = r.Invoices.GetByID(ctx, inv.ID)
		if err != nil {
			return nil, err
		}
		return &Session{Invoice: inv, Settled: true}, nil
	}
	return &Session{Invoice: inv, ClientSecret: secret}, nil
}

// lookupOrCreateInvoice reuses the owner's unpaid invoice when the item-set
// hash still matches; any cart change produces a fresh invoice.
func (r *Reconciler) lookupOrCreateInvoice(ctx context.Context, id cartSvc.Identity, c *models.Cart) (*models.Invoice, error) {
	hash := cartSvc.ItemSetHash(c)

	inv, err := r.Invoices.FindUnpaidByOwnerAndHash(ctx, id.Email, hash)
	if err == nil {
		// Reuse re-prices: the amount and checkout voucher follow the cart.
		if inv.Amount != c.Total || inv.TotalVoucherCode != c.TotalVoucherCode {
			inv.Amount = c.Total
			inv.TotalVoucherCode = c.TotalVoucherCode
			if _, uerr := r.Invoices.Update(ctx, inv); uerr != nil {
				return nil, uerr
			}
		}
		return inv, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}

	inv = &models.Invoice{
		ID:               uuid.New().String(),
		Username:         id.UserID,
		Email:            id.Email,
		OwnerKey:         id.Owner(),
		Amount:           c.Total,
		ItemSetHash:      hash,
		TotalVoucherCode: c.TotalVoucherCode,
		CreatedAt:        r.now(),
	}
	if cerr := r.Invoices.Create(ctx, inv); cerr != nil {
		// Lost a race with a concurrent checkout that created the same
		// invoice; the existing row is authoritative.
		if errors.Is(cerr, repository.ErrDuplicate) {
			return r.Invoices.FindUnpaidByOwnerAndHash(ctx, id.Email, hash)
		}
		return nil, cerr
	}
	return inv, nil
}

// ensureIntent creates the invoice's payment intent, or re-prices the
// existing one. The intent metadata carries the signed invoice id that the
// webhook later verifies, plus a compact item listing for operator forensics.
// It reports settled=true when the existing intent had already succeeded and
// the invoice was settled from it.
func (r *Reconciler) ensureIntent(ctx context.Context, inv *models.Invoice, c *models.Cart) (string, bool, error) {
	amount := utils.ToCents(c.Total)
	metadata := map[string]string{
		"invoice_id": inv.ID,
		"signature":  r.Signer.Sign(inv.ID),
		"items":      describeItems(c),
	}

	var (
		rec    *models.PaymentIntentRecord
		secret string
		err    error
	)
	if inv.PaymentIntentID == "" {
		rec, secret, err = r.Gateway.CreateIntent(ctx, amount, r.Currency, metadata)
	} else {
		rec, secret, err = r.Gateway.UpdateIntent(ctx, inv.PaymentIntentID, amount, metadata)
		if errors.Is(err, ErrIntentSucceeded) {
			// Paid out-of-band but the webhook has not landed yet. Settle
			// from the intent we already verified rather than failing.
			if serr := r.ConfirmFromIntent(ctx, rec); serr != nil {
				return "", false, serr
			}
			return "", true, nil
		}
	}
	if err != nil {
		return "", false, err
	}

	inv.PaymentIntentID = rec.ID
	if _, err := r.Invoices.Update(ctx, inv); err != nil {
		return "", false, err
	}
	if err := r.Intents.Upsert(ctx, rec); err != nil {
		r.Logger.Warn("failed to record payment intent",
			zap.String("intent_id", rec.ID), zap.Error(err))
	}
	return secret, false, nil
}

func describeItems(c *models.Cart) string {
	parts := make([]string, 0, len(c.Items))
	for _, item := range c.Items {
		parts = append(parts, string(item.CartItemKind())+":"+item.CartItemID())
	}
	return strings.Join(parts, ",")
}

// ConfirmFromIntent settles an invoice from a succeeded payment intent. The
// intent must carry a valid invoice signature and its amount must match the
// invoice to the penny; anything else raises an operator alert and settles
// nothing. Re-delivery of an already-settled intent is a no-op.
func (r *Reconciler) ConfirmFromIntent(ctx context.Context, rec *models.PaymentIntentRecord) error {
	invoiceID := rec.Metadata["invoice_id"]
	if invoiceID == "" || !r.Signer.Verify(invoiceID, rec.Metadata["signature"]) {
		r.alert(ctx, "unverifiable payment intent",
			fmt.Sprintf("intent %s carries a missing or invalid invoice signature", rec.ID))
		return &ReconciliationError{InvoiceID: invoiceID, Reason: "invalid intent signature"}
	}

	inv, err := r.Invoices.GetByID(ctx, invoiceID)
	if err != nil {
		r.alert(ctx, "payment for unknown invoice",
			fmt.Sprintf("intent %s references invoice %s which does not exist", rec.ID, invoiceID))
		return &ReconciliationError{InvoiceID: invoiceID, Reason: "invoice not found"}
	}
	if inv.Paid {
		return nil
	}

	if rec.Amount != utils.ToCents(inv.Amount) {
		r.alert(ctx, "payment amount mismatch",
			fmt.Sprintf("intent %s paid %d but invoice %s expects %d",
				rec.ID, rec.Amount, inv.ID, utils.ToCents(inv.Amount)))
		return &ReconciliationError{InvoiceID: inv.ID, Reason: "amount mismatch"}
	}

	if err := r.Intents.Upsert(ctx, rec); err != nil {
		r.Logger.Warn("failed to record payment intent",
			zap.String("intent_id", rec.ID), zap.Error(err))
	}
	return r.settle(ctx, inv, rec.ID)
}

// settle marks the invoice and every item on it as paid, activates any
// purchased gift-voucher codes, clears the owner's stored checkout voucher
// and sends the receipt.
func (r *Reconciler) settle(ctx context.Context, inv *models.Invoice, intentID string) error {
	bookings, err := r.Bookings.ListByInvoice(ctx, inv.ID)
	if err != nil {
		return err
	}
	for i := range bookings {
		bookings[i].MarkPaid()
		if _, err := r.Bookings.Update(ctx, &bookings[i]); err != nil {
			return err
		}
	}

	memberships, err := r.Memberships.ListByInvoice(ctx, inv.ID)
	if err != nil {
		return err
	}
	for i := range memberships {
		memberships[i].MarkPaid()
		if _, err := r.Memberships.Update(ctx, &memberships[i]); err != nil {
			return err
		}
	}

	gifts, err := r.GiftVouchers.ListByInvoice(ctx, inv.ID)
	if err != nil {
		return err
	}
	for i := range gifts {
		gifts[i].MarkPaid()
		if err := r.GiftVouchers.Update(ctx, &gifts[i]); err != nil {
			return err
		}
		r.activateGiftCode(ctx, gifts[i].VoucherCode)
	}

	now := r.now()
	inv.Paid = true
	inv.PaidAt = &now
	if intentID != "" {
		inv.PaymentIntentID = intentID
	}
	if _, err := r.Invoices.Update(ctx, inv); err != nil {
		return err
	}

	if inv.OwnerKey != "" {
		if err := r.Store.ClearTotalVoucher(ctx, inv.OwnerKey); err != nil {
			r.Logger.Warn("failed to clear checkout voucher",
				zap.String("invoice_id", inv.ID), zap.Error(err))
		}
	}

	if err := r.Notifier.SendPaymentReceipt(ctx, inv.Email, inv); err != nil {
		r.Logger.Warn("failed to send payment receipt",
			zap.String("invoice_id", inv.ID), zap.Error(err))
	}

	r.Logger.Info("invoice settled",
		zap.String("invoice_id", inv.ID),
		zap.Float64("amount", inv.Amount),
		zap.String("intent_id", intentID))
	return nil
}

// activateGiftCode flips the purchased voucher live. Failure is logged, not
// fatal; the purchase record keeps the code for manual activation.
func (r *Reconciler) activateGiftCode(ctx context.Context, code string) {
	v, err := r.Vouchers.GetByCode(ctx, code)
	if err != nil {
		r.Logger.Error("purchased gift voucher code not found",
			zap.String("code", code), zap.Error(err))
		return
	}
	if v.Activated {
		return
	}
	v.Activated = true
	if err := r.Vouchers.Update(ctx, v); err != nil {
		r.Logger.Error("failed to activate gift voucher",
			zap.String("code", code), zap.Error(err))
	}
}

// RequestRefund refunds a paid booking's effective price against the invoice
// it was settled on. Bookings settled by membership credit or never invoiced
// have nothing to refund at the processor.
func (r *Reconciler) RequestRefund(ctx context.Context, b *models.Booking) error {
	if b.InvoiceID == "" {
		return nil
	}
	inv, err := r.Invoices.GetByID(ctx, b.InvoiceID)
	if err != nil {
		return err
	}
	if !inv.Paid || inv.PaymentIntentID == "" {
		return nil
	}
	amount := utils.ToCents(b.CurrentCost())
	if amount <= 0 {
		return nil
	}
	return r.Gateway.Refund(ctx, inv.PaymentIntentID, amount)
}

func (r *Reconciler) alert(ctx context.Context, subject, detail string) {
	if err := r.Notifier.AlertOperator(ctx, subject, detail); err != nil {
		r.Logger.Error("failed to alert operator",
			zap.String("subject", subject), zap.Error(err))
	}
}
