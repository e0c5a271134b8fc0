package checkout

import (
	"context"
	"testing"
	"time"

	"studiobook/database/repository"
	"studiobook/models"
	cartSvc "studiobook/services/cart"
	"studiobook/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type mockInvoiceRepo struct{ mock.Mock }

func (m *mockInvoiceRepo) GetByID(ctx context.Context, id string) (*models.Invoice, error) {
	args := m.Called(ctx, id)
	if inv := args.Get(0); inv != nil {
		return inv.(*models.Invoice), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockInvoiceRepo) FindUnpaidByOwnerAndHash(ctx context.Context, email, itemSetHash string) (*models.Invoice, error) {
	args := m.Called(ctx, email, itemSetHash)
	if inv := args.Get(0); inv != nil {
		return inv.(*models.Invoice), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockInvoiceRepo) Create(ctx context.Context, inv *models.Invoice) error {
	return m.Called(ctx, inv).Error(0)
}

func (m *mockInvoiceRepo) Update(ctx context.Context, inv *models.Invoice) (repository.Outcome, error) {
	args := m.Called(ctx, inv)
	return args.Get(0).(repository.Outcome), args.Error(1)
}

func (m *mockInvoiceRepo) ListAll(ctx context.Context) ([]models.Invoice, error) {
	args := m.Called(ctx)
	return args.Get(0).([]models.Invoice), args.Error(1)
}

func (m *mockInvoiceRepo) CountPaidByTotalVoucher(ctx context.Context, code string) (int, error) {
	args := m.Called(ctx, code)
	return args.Int(0), args.Error(1)
}

func (m *mockInvoiceRepo) CountUserTotalVoucherUses(ctx context.Context, code, email string) (int, error) {
	args := m.Called(ctx, code, email)
	return args.Int(0), args.Error(1)
}

type mockIntentRepo struct{ mock.Mock }

func (m *mockIntentRepo) Upsert(ctx context.Context, rec *models.PaymentIntentRecord) error {
	return m.Called(ctx, rec).Error(0)
}

func (m *mockIntentRepo) GetByID(ctx context.Context, id string) (*models.PaymentIntentRecord, error) {
	args := m.Called(ctx, id)
	if rec := args.Get(0); rec != nil {
		return rec.(*models.PaymentIntentRecord), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockIntentRepo) GetByInvoice(ctx context.Context, invoiceID string) (*models.PaymentIntentRecord, error) {
	args := m.Called(ctx, invoiceID)
	if rec := args.Get(0); rec != nil {
		return rec.(*models.PaymentIntentRecord), args.Error(1)
	}
	return nil, args.Error(1)
}

type mockBookingRepo struct{ mock.Mock }

func (m *mockBookingRepo) GetByID(ctx context.Context, id string) (*models.Booking, error) {
	args := m.Called(ctx, id)
	if b := args.Get(0); b != nil {
		return b.(*models.Booking), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockBookingRepo) GetByUserAndSession(ctx context.Context, userID, sessionID string) (*models.Booking, error) {
	args := m.Called(ctx, userID, sessionID)
	if b := args.Get(0); b != nil {
		return b.(*models.Booking), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockBookingRepo) CreateIfSpace(ctx context.Context, b *models.Booking, capacity int) error {
	return m.Called(ctx, b, capacity).Error(0)
}

func (m *mockBookingRepo) CreateCancelled(ctx context.Context, b *models.Booking) error {
	return m.Called(ctx, b).Error(0)
}

func (m *mockBookingRepo) ReopenIfSpace(ctx context.Context, b *models.Booking, capacity int) error {
	return m.Called(ctx, b, capacity).Error(0)
}

func (m *mockBookingRepo) Update(ctx context.Context, b *models.Booking) (repository.Outcome, error) {
	args := m.Called(ctx, b)
	return args.Get(0).(repository.Outcome), args.Error(1)
}

func (m *mockBookingRepo) Delete(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

func (m *mockBookingRepo) CountOpenBySession(ctx context.Context, sessionID string) (int, error) {
	args := m.Called(ctx, sessionID)
	return args.Int(0), args.Error(1)
}

func (m *mockBookingRepo) ListBySession(ctx context.Context, sessionID string) ([]models.Booking, error) {
	args := m.Called(ctx, sessionID)
	return args.Get(0).([]models.Booking), args.Error(1)
}

func (m *mockBookingRepo) ListUnpaidByUser(ctx context.Context, userID string) ([]models.Booking, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).([]models.Booking), args.Error(1)
}

func (m *mockBookingRepo) ListByInvoice(ctx context.Context, invoiceID string) ([]models.Booking, error) {
	args := m.Called(ctx, invoiceID)
	return args.Get(0).([]models.Booking), args.Error(1)
}

func (m *mockBookingRepo) ListStaleUnpaid(ctx context.Context, bookedBefore, checkoutBefore time.Time) ([]models.Booking, error) {
	args := m.Called(ctx, bookedBefore, checkoutBefore)
	return args.Get(0).([]models.Booking), args.Error(1)
}

func (m *mockBookingRepo) CountPaidByVoucher(ctx context.Context, code string) (int, error) {
	args := m.Called(ctx, code)
	return args.Int(0), args.Error(1)
}

func (m *mockBookingRepo) CountUserVoucherUses(ctx context.Context, code, userID string) (int, error) {
	args := m.Called(ctx, code, userID)
	return args.Int(0), args.Error(1)
}

type mockMembershipRepo struct{ mock.Mock }

func (m *mockMembershipRepo) GetByID(ctx context.Context, id string) (*models.Membership, error) {
	args := m.Called(ctx, id)
	if mem := args.Get(0); mem != nil {
		return mem.(*models.Membership), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockMembershipRepo) GetUsable(ctx context.Context, userID, eventType string, month time.Month, year int) (*models.Membership, error) {
	args := m.Called(ctx, userID, eventType, month, year)
	if mem := args.Get(0); mem != nil {
		return mem.(*models.Membership), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockMembershipRepo) Create(ctx context.Context, mem *models.Membership) error {
	return m.Called(ctx, mem).Error(0)
}

func (m *mockMembershipRepo) Update(ctx context.Context, mem *models.Membership) (repository.Outcome, error) {
	args := m.Called(ctx, mem)
	return args.Get(0).(repository.Outcome), args.Error(1)
}

func (m *mockMembershipRepo) Delete(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

func (m *mockMembershipRepo) ListUnpaidByUser(ctx context.Context, userID string) ([]models.Membership, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).([]models.Membership), args.Error(1)
}

func (m *mockMembershipRepo) ListByInvoice(ctx context.Context, invoiceID string) ([]models.Membership, error) {
	args := m.Called(ctx, invoiceID)
	return args.Get(0).([]models.Membership), args.Error(1)
}

func (m *mockMembershipRepo) ListStaleUnpaid(ctx context.Context, createdBefore, checkoutBefore time.Time) ([]models.Membership, error) {
	args := m.Called(ctx, createdBefore, checkoutBefore)
	return args.Get(0).([]models.Membership), args.Error(1)
}

func (m *mockMembershipRepo) CountPaidByVoucher(ctx context.Context, code string) (int, error) {
	args := m.Called(ctx, code)
	return args.Int(0), args.Error(1)
}

func (m *mockMembershipRepo) CountUserVoucherUses(ctx context.Context, code, userID string) (int, error) {
	args := m.Called(ctx, code, userID)
	return args.Int(0), args.Error(1)
}

func (m *mockMembershipRepo) GetType(ctx context.Context, name string) (*models.MembershipType, error) {
	args := m.Called(ctx, name)
	if mt := args.Get(0); mt != nil {
		return mt.(*models.MembershipType), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockMembershipRepo) ListActiveTypes(ctx context.Context) ([]models.MembershipType, error) {
	args := m.Called(ctx)
	return args.Get(0).([]models.MembershipType), args.Error(1)
}

type mockGiftVoucherRepo struct{ mock.Mock }

func (m *mockGiftVoucherRepo) GetByID(ctx context.Context, id string) (*models.GiftVoucherPurchase, error) {
	args := m.Called(ctx, id)
	if g := args.Get(0); g != nil {
		return g.(*models.GiftVoucherPurchase), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockGiftVoucherRepo) Create(ctx context.Context, g *models.GiftVoucherPurchase) error {
	return m.Called(ctx, g).Error(0)
}

func (m *mockGiftVoucherRepo) Update(ctx context.Context, g *models.GiftVoucherPurchase) error {
	return m.Called(ctx, g).Error(0)
}

func (m *mockGiftVoucherRepo) Delete(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

func (m *mockGiftVoucherRepo) ListUnpaidByPurchaser(ctx context.Context, email string) ([]models.GiftVoucherPurchase, error) {
	args := m.Called(ctx, email)
	return args.Get(0).([]models.GiftVoucherPurchase), args.Error(1)
}

func (m *mockGiftVoucherRepo) ListByIDs(ctx context.Context, ids []string) ([]models.GiftVoucherPurchase, error) {
	args := m.Called(ctx, ids)
	return args.Get(0).([]models.GiftVoucherPurchase), args.Error(1)
}

func (m *mockGiftVoucherRepo) ListByInvoice(ctx context.Context, invoiceID string) ([]models.GiftVoucherPurchase, error) {
	args := m.Called(ctx, invoiceID)
	return args.Get(0).([]models.GiftVoucherPurchase), args.Error(1)
}

func (m *mockGiftVoucherRepo) ListStaleUnpaid(ctx context.Context, createdBefore, checkoutBefore time.Time) ([]models.GiftVoucherPurchase, error) {
	args := m.Called(ctx, createdBefore, checkoutBefore)
	return args.Get(0).([]models.GiftVoucherPurchase), args.Error(1)
}

type mockVoucherRepo struct{ mock.Mock }

func (m *mockVoucherRepo) GetByCode(ctx context.Context, code string) (*models.Voucher, error) {
	args := m.Called(ctx, code)
	if v := args.Get(0); v != nil {
		return v.(*models.Voucher), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockVoucherRepo) Create(ctx context.Context, v *models.Voucher) error {
	return m.Called(ctx, v).Error(0)
}

func (m *mockVoucherRepo) Update(ctx context.Context, v *models.Voucher) error {
	return m.Called(ctx, v).Error(0)
}

type mockGateway struct{ mock.Mock }

func (m *mockGateway) CreateIntent(ctx context.Context, amount int64, currency string, metadata map[string]string) (*models.PaymentIntentRecord, string, error) {
	args := m.Called(ctx, amount, currency, metadata)
	if rec := args.Get(0); rec != nil {
		return rec.(*models.PaymentIntentRecord), args.String(1), args.Error(2)
	}
	return nil, args.String(1), args.Error(2)
}

func (m *mockGateway) UpdateIntent(ctx context.Context, intentID string, amount int64, metadata map[string]string) (*models.PaymentIntentRecord, string, error) {
	args := m.Called(ctx, intentID, amount, metadata)
	if rec := args.Get(0); rec != nil {
		return rec.(*models.PaymentIntentRecord), args.String(1), args.Error(2)
	}
	return nil, args.String(1), args.Error(2)
}

func (m *mockGateway) GetIntent(ctx context.Context, intentID string) (*models.PaymentIntentRecord, error) {
	args := m.Called(ctx, intentID)
	if rec := args.Get(0); rec != nil {
		return rec.(*models.PaymentIntentRecord), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockGateway) Refund(ctx context.Context, intentID string, amount int64) error {
	return m.Called(ctx, intentID, amount).Error(0)
}

type mockNotifier struct{ mock.Mock }

func (m *mockNotifier) SendBookingConfirmation(ctx context.Context, email string, session *models.Session) error {
	return m.Called(ctx, email, session).Error(0)
}

func (m *mockNotifier) SendBookingCancellation(ctx context.Context, email string, session *models.Session) error {
	return m.Called(ctx, email, session).Error(0)
}

func (m *mockNotifier) NotifySpotAvailable(ctx context.Context, email string, session *models.Session) error {
	return m.Called(ctx, email, session).Error(0)
}

func (m *mockNotifier) NotifyWaitingList(ctx context.Context, emails []string, session *models.Session) error {
	return m.Called(ctx, emails, session).Error(0)
}

func (m *mockNotifier) SendPaymentReceipt(ctx context.Context, email string, invoice *models.Invoice) error {
	return m.Called(ctx, email, invoice).Error(0)
}

func (m *mockNotifier) AlertOperator(ctx context.Context, subject, detail string) error {
	return m.Called(ctx, subject, detail).Error(0)
}

type mockCartService struct{ mock.Mock }

func (m *mockCartService) Assemble(ctx context.Context, id cartSvc.Identity) (*models.Cart, error) {
	args := m.Called(ctx, id)
	if c := args.Get(0); c != nil {
		return c.(*models.Cart), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockCartService) MarkCheckoutStarted(ctx context.Context, c *models.Cart, invoiceID string, at time.Time) error {
	return m.Called(ctx, c, invoiceID, at).Error(0)
}

type mockCartStore struct{ mock.Mock }

func (m *mockCartStore) ClearTotalVoucher(ctx context.Context, owner string) error {
	return m.Called(ctx, owner).Error(0)
}

type mockLocker struct{ mock.Mock }

func (m *mockLocker) Acquire(ctx context.Context, name string) (string, bool, error) {
	args := m.Called(ctx, name)
	return args.String(0), args.Bool(1), args.Error(2)
}

func (m *mockLocker) Release(ctx context.Context, name, token string) error {
	return m.Called(ctx, name, token).Error(0)
}

type reconcilerFixture struct {
	cart         *mockCartService
	store        *mockCartStore
	lock         *mockLocker
	invoices     *mockInvoiceRepo
	intents      *mockIntentRepo
	bookings     *mockBookingRepo
	memberships  *mockMembershipRepo
	giftVouchers *mockGiftVoucherRepo
	vouchers     *mockVoucherRepo
	gateway      *mockGateway
	notifier     *mockNotifier
	signer       *Signer
}

func newReconciler() (*Reconciler, *reconcilerFixture) {
	f := &reconcilerFixture{
		cart:         new(mockCartService),
		store:        new(mockCartStore),
		lock:         new(mockLocker),
		invoices:     new(mockInvoiceRepo),
		intents:      new(mockIntentRepo),
		bookings:     new(mockBookingRepo),
		memberships:  new(mockMembershipRepo),
		giftVouchers: new(mockGiftVoucherRepo),
		vouchers:     new(mockVoucherRepo),
		gateway:      new(mockGateway),
		notifier:     new(mockNotifier),
		signer:       &Signer{Secret: []byte("test-signing-secret")},
	}
	r := &Reconciler{
		Cart:         f.cart,
		Store:        f.store,
		Invoices:     f.invoices,
		Intents:      f.intents,
		Bookings:     f.bookings,
		Memberships:  f.memberships,
		GiftVouchers: f.giftVouchers,
		Vouchers:     f.vouchers,
		Gateway:      f.gateway,
		Lock:         f.lock,
		Signer:       f.signer,
		Notifier:     f.notifier,
		Logger:       zap.NewNop(),
		Currency:     "gbp",
		Now:          func() time.Time { return time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC) },
	}
	return r, f
}

func (f *reconcilerFixture) holdCheckoutLock(owner string) {
	f.lock.On("Acquire", mock.Anything, "checkout:"+owner).Return("tok-1", true, nil)
	f.lock.On("Release", mock.Anything, "checkout:"+owner, "tok-1").Return(nil)
}

func (f *reconcilerFixture) succeededIntent(invoiceID string, amount int64) *models.PaymentIntentRecord {
	return &models.PaymentIntentRecord{
		ID:        "pi_123",
		InvoiceID: invoiceID,
		Amount:    amount,
		Currency:  "gbp",
		Status:    "succeeded",
		Metadata: map[string]string{
			"invoice_id": invoiceID,
			"signature":  f.signer.Sign(invoiceID),
		},
	}
}

func TestSignerVerifiesOwnSignatures(t *testing.T) {
	s := &Signer{Secret: []byte("secret")}

	sig := s.Sign("inv-1")
	assert.True(t, s.Verify("inv-1", sig))
	assert.False(t, s.Verify("inv-2", sig))
	assert.False(t, s.Verify("inv-1", "deadbeef"))
	assert.False(t, s.Verify("inv-1", ""))

	other := &Signer{Secret: []byte("different")}
	assert.False(t, other.Verify("inv-1", sig))
}

func TestConfirmRejectsTamperedSignature(t *testing.T) {
	r, f := newReconciler()

	rec := f.succeededIntent("inv-1", 1200)
	rec.Metadata["signature"] = f.signer.Sign("inv-other")
	f.notifier.On("AlertOperator", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	err := r.ConfirmFromIntent(context.Background(), rec)
	var rerr *ReconciliationError
	require.ErrorAs(t, err, &rerr)
	f.notifier.AssertCalled(t, "AlertOperator", mock.Anything, mock.Anything, mock.Anything)
	f.invoices.AssertNotCalled(t, "GetByID", mock.Anything, mock.Anything)
}

func TestConfirmRejectsMissingInvoiceID(t *testing.T) {
	r, f := newReconciler()

	rec := f.succeededIntent("inv-1", 1200)
	delete(rec.Metadata, "invoice_id")
	f.notifier.On("AlertOperator", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	var rerr *ReconciliationError
	require.ErrorAs(t, r.ConfirmFromIntent(context.Background(), rec), &rerr)
}

func TestConfirmAlertsOnUnknownInvoice(t *testing.T) {
	r, f := newReconciler()

	rec := f.succeededIntent("inv-gone", 1200)
	f.invoices.On("GetByID", mock.Anything, "inv-gone").Return(nil, repository.ErrNotFound)
	f.notifier.On("AlertOperator", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	var rerr *ReconciliationError
	require.ErrorAs(t, r.ConfirmFromIntent(context.Background(), rec), &rerr)
	f.notifier.AssertCalled(t, "AlertOperator", mock.Anything, "payment for unknown invoice", mock.Anything)
}

func TestConfirmIsNoOpForPaidInvoice(t *testing.T) {
	r, f := newReconciler()

	rec := f.succeededIntent("inv-1", 1200)
	f.invoices.On("GetByID", mock.Anything, "inv-1").
		Return(&models.Invoice{ID: "inv-1", Amount: 12, Paid: true}, nil)

	require.NoError(t, r.ConfirmFromIntent(context.Background(), rec))
	f.bookings.AssertNotCalled(t, "ListByInvoice", mock.Anything, mock.Anything)
	f.invoices.AssertNotCalled(t, "Update", mock.Anything, mock.Anything)
}

func TestConfirmRejectsAmountMismatch(t *testing.T) {
	r, f := newReconciler()

	// Intent paid 10.00 but the invoice expects 12.00.
	rec := f.succeededIntent("inv-1", 1000)
	f.invoices.On("GetByID", mock.Anything, "inv-1").
		Return(&models.Invoice{ID: "inv-1", Amount: 12}, nil)
	f.notifier.On("AlertOperator", mock.Anything, "payment amount mismatch", mock.Anything).Return(nil)

	var rerr *ReconciliationError
	require.ErrorAs(t, r.ConfirmFromIntent(context.Background(), rec), &rerr)
	assert.Equal(t, "inv-1", rerr.InvoiceID)
	f.bookings.AssertNotCalled(t, "ListByInvoice", mock.Anything, mock.Anything)
}

func TestConfirmSettlesInvoiceAndItems(t *testing.T) {
	r, f := newReconciler()

	inv := &models.Invoice{ID: "inv-1", Email: "u1@example.com", Amount: 27.50}
	booking := models.Booking{ID: "b1", InvoiceID: "inv-1", Cost: 12, Status: models.BookingOpen}
	gift := models.GiftVoucherPurchase{ID: "g1", InvoiceID: "inv-1", VoucherCode: "GIFT-AB12CD34", Cost: 15.50}
	giftVoucher := &models.Voucher{Code: "GIFT-AB12CD34", Kind: models.VoucherTotal}

	rec := f.succeededIntent("inv-1", utils.ToCents(inv.Amount))

	f.invoices.On("GetByID", mock.Anything, "inv-1").Return(inv, nil)
	f.intents.On("Upsert", mock.Anything, rec).Return(nil)
	f.bookings.On("ListByInvoice", mock.Anything, "inv-1").Return([]models.Booking{booking}, nil)
	f.bookings.On("Update", mock.Anything, mock.MatchedBy(func(b *models.Booking) bool {
		return b.ID == "b1" && b.Paid
	})).Return(repository.Saved, nil)
	f.memberships.On("ListByInvoice", mock.Anything, "inv-1").Return([]models.Membership{}, nil)
	f.giftVouchers.On("ListByInvoice", mock.Anything, "inv-1").Return([]models.GiftVoucherPurchase{gift}, nil)
	f.giftVouchers.On("Update", mock.Anything, mock.MatchedBy(func(g *models.GiftVoucherPurchase) bool {
		return g.ID == "g1" && g.Paid
	})).Return(nil)
	f.vouchers.On("GetByCode", mock.Anything, "GIFT-AB12CD34").Return(giftVoucher, nil)
	f.vouchers.On("Update", mock.Anything, giftVoucher).Return(nil)
	f.invoices.On("Update", mock.Anything, inv).Return(repository.Saved, nil)
	f.notifier.On("SendPaymentReceipt", mock.Anything, "u1@example.com", inv).Return(nil)

	require.NoError(t, r.ConfirmFromIntent(context.Background(), rec))

	assert.True(t, inv.Paid)
	require.NotNil(t, inv.PaidAt)
	assert.Equal(t, r.Now(), *inv.PaidAt)
	assert.Equal(t, "pi_123", inv.PaymentIntentID)
	assert.True(t, giftVoucher.Activated)
	f.notifier.AssertCalled(t, "SendPaymentReceipt", mock.Anything, "u1@example.com", inv)
}

func TestConfirmLeavesActivatedGiftCodeAlone(t *testing.T) {
	r, f := newReconciler()

	inv := &models.Invoice{ID: "inv-1", Email: "u1@example.com", Amount: 15.50}
	gift := models.GiftVoucherPurchase{ID: "g1", InvoiceID: "inv-1", VoucherCode: "GIFT-AB12CD34", Cost: 15.50}
	giftVoucher := &models.Voucher{Code: "GIFT-AB12CD34", Kind: models.VoucherTotal, Activated: true}

	rec := f.succeededIntent("inv-1", utils.ToCents(inv.Amount))

	f.invoices.On("GetByID", mock.Anything, "inv-1").Return(inv, nil)
	f.intents.On("Upsert", mock.Anything, rec).Return(nil)
	f.bookings.On("ListByInvoice", mock.Anything, "inv-1").Return([]models.Booking{}, nil)
	f.memberships.On("ListByInvoice", mock.Anything, "inv-1").Return([]models.Membership{}, nil)
	f.giftVouchers.On("ListByInvoice", mock.Anything, "inv-1").Return([]models.GiftVoucherPurchase{gift}, nil)
	f.giftVouchers.On("Update", mock.Anything, mock.Anything).Return(nil)
	f.vouchers.On("GetByCode", mock.Anything, "GIFT-AB12CD34").Return(giftVoucher, nil)
	f.invoices.On("Update", mock.Anything, inv).Return(repository.Saved, nil)
	f.notifier.On("SendPaymentReceipt", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	require.NoError(t, r.ConfirmFromIntent(context.Background(), rec))
	f.vouchers.AssertNotCalled(t, "Update", mock.Anything, mock.Anything)
}

func TestRefundSkipsUninvoicedBooking(t *testing.T) {
	r, f := newReconciler()

	require.NoError(t, r.RequestRefund(context.Background(), &models.Booking{ID: "b1", Paid: true}))
	f.gateway.AssertNotCalled(t, "Refund", mock.Anything, mock.Anything, mock.Anything)
}

func TestRefundSkipsUnpaidInvoice(t *testing.T) {
	r, f := newReconciler()

	f.invoices.On("GetByID", mock.Anything, "inv-1").
		Return(&models.Invoice{ID: "inv-1", PaymentIntentID: "pi_123"}, nil)

	b := &models.Booking{ID: "b1", InvoiceID: "inv-1", Cost: 12}
	require.NoError(t, r.RequestRefund(context.Background(), b))
	f.gateway.AssertNotCalled(t, "Refund", mock.Anything, mock.Anything, mock.Anything)
}

func TestRefundUsesDiscountedPrice(t *testing.T) {
	r, f := newReconciler()

	discounted := 9.60
	b := &models.Booking{ID: "b1", InvoiceID: "inv-1", Cost: 12, DiscountedCost: &discounted}
	f.invoices.On("GetByID", mock.Anything, "inv-1").
		Return(&models.Invoice{ID: "inv-1", Paid: true, PaymentIntentID: "pi_123"}, nil)
	f.gateway.On("Refund", mock.Anything, "pi_123", int64(960)).Return(nil)

	require.NoError(t, r.RequestRefund(context.Background(), b))
	f.gateway.AssertCalled(t, "Refund", mock.Anything, "pi_123", int64(960))
}

func TestRefundSkipsZeroAmount(t *testing.T) {
	r, f := newReconciler()

	free := 0.0
	b := &models.Booking{ID: "b1", InvoiceID: "inv-1", Cost: 12, DiscountedCost: &free}
	f.invoices.On("GetByID", mock.Anything, "inv-1").
		Return(&models.Invoice{ID: "inv-1", Paid: true, PaymentIntentID: "pi_123"}, nil)

	require.NoError(t, r.RequestRefund(context.Background(), b))
	f.gateway.AssertNotCalled(t, "Refund", mock.Anything, mock.Anything, mock.Anything)
}

func TestBeginRejectsWhenAnotherCheckoutHoldsTheLock(t *testing.T) {
	r, f := newReconciler()

	f.lock.On("Acquire", mock.Anything, "checkout:u1").Return("", false, nil)

	_, err := r.Begin(context.Background(), cartSvc.Identity{UserID: "u1", Email: "u1@example.com"}, 12)
	require.ErrorIs(t, err, ErrCheckoutBusy)
	f.cart.AssertNotCalled(t, "Assemble", mock.Anything, mock.Anything)
}

func TestBeginRejectsEmptyCart(t *testing.T) {
	r, f := newReconciler()
	id := cartSvc.Identity{UserID: "u1", Email: "u1@example.com"}

	f.holdCheckoutLock("u1")
	f.cart.On("Assemble", mock.Anything, id).Return(&models.Cart{}, nil)

	_, err := r.Begin(context.Background(), id, 0)
	require.ErrorIs(t, err, ErrEmptyCart)
}

func TestBeginAbortsOnClientServerTotalMismatch(t *testing.T) {
	r, f := newReconciler()
	id := cartSvc.Identity{UserID: "u1", Email: "u1@example.com"}

	b := &models.Booking{ID: "b1", Cost: 12}
	f.holdCheckoutLock("u1")
	f.cart.On("Assemble", mock.Anything, id).
		Return(&models.Cart{Items: []models.CartItem{b}, Subtotal: 12, Total: 12}, nil)

	// The client displayed a stale price; nothing may be invoiced.
	_, err := r.Begin(context.Background(), id, 10)
	var merr *TotalMismatchError
	require.ErrorAs(t, err, &merr)
	assert.Equal(t, 10.0, merr.Expected)
	assert.Equal(t, 12.0, merr.Actual)
	f.invoices.AssertNotCalled(t, "FindUnpaidByOwnerAndHash", mock.Anything, mock.Anything, mock.Anything)
	f.invoices.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestBeginCreatesInvoiceAndIntentForNewItemSet(t *testing.T) {
	r, f := newReconciler()
	id := cartSvc.Identity{UserID: "u1", Email: "u1@example.com"}

	b := &models.Booking{ID: "b1", Cost: 12}
	c := &models.Cart{Items: []models.CartItem{b}, Subtotal: 12, Total: 12}
	rec := &models.PaymentIntentRecord{ID: "pi_new", Amount: 1200, Status: "requires_payment_method"}

	f.holdCheckoutLock("u1")
	f.cart.On("Assemble", mock.Anything, id).Return(c, nil)
	f.invoices.On("FindUnpaidByOwnerAndHash", mock.Anything, "u1@example.com", cartSvc.ItemSetHash(c)).
		Return(nil, repository.ErrNotFound)
	f.invoices.On("Create", mock.Anything, mock.MatchedBy(func(inv *models.Invoice) bool {
		return inv.Amount == 12 && inv.OwnerKey == "u1" && inv.ItemSetHash == cartSvc.ItemSetHash(c)
	})).Return(nil)
	f.cart.On("MarkCheckoutStarted", mock.Anything, c, mock.Anything, r.Now()).Return(nil)
	f.gateway.On("CreateIntent", mock.Anything, int64(1200), "gbp", mock.Anything).Return(rec, "cs_secret", nil)
	f.invoices.On("Update", mock.Anything, mock.Anything).Return(repository.Saved, nil)
	f.intents.On("Upsert", mock.Anything, rec).Return(nil)

	sess, err := r.Begin(context.Background(), id, 12)
	require.NoError(t, err)
	assert.False(t, sess.Settled)
	assert.Equal(t, "cs_secret", sess.ClientSecret)
	assert.Equal(t, "pi_new", sess.Invoice.PaymentIntentID)
}

func TestBeginReusesInvoiceAndRepricesIntentAfterDiscount(t *testing.T) {
	r, f := newReconciler()
	id := cartSvc.Identity{UserID: "u1", Email: "u1@example.com"}

	// Same item set as the first attempt, but a voucher dropped the price.
	// The original invoice and its live intent must follow the new price
	// rather than being orphaned by a fresh invoice.
	discounted := 9.60
	b := &models.Booking{ID: "b1", Cost: 12, DiscountedCost: &discounted, VoucherCode: "SUMMER20"}
	c := &models.Cart{Items: []models.CartItem{b}, Subtotal: 9.60, Total: 9.60}
	inv := &models.Invoice{
		ID: "inv-1", Email: "u1@example.com", Amount: 12,
		ItemSetHash: cartSvc.ItemSetHash(c), PaymentIntentID: "pi_1",
	}
	rec := &models.PaymentIntentRecord{ID: "pi_1", Amount: 960, Status: "requires_payment_method"}

	f.holdCheckoutLock("u1")
	f.cart.On("Assemble", mock.Anything, id).Return(c, nil)
	f.invoices.On("FindUnpaidByOwnerAndHash", mock.Anything, "u1@example.com", cartSvc.ItemSetHash(c)).
		Return(inv, nil)
	f.invoices.On("Update", mock.Anything, inv).Return(repository.Saved, nil)
	f.cart.On("MarkCheckoutStarted", mock.Anything, c, "inv-1", r.Now()).Return(nil)
	f.gateway.On("UpdateIntent", mock.Anything, "pi_1", int64(960), mock.Anything).Return(rec, "cs_secret", nil)
	f.intents.On("Upsert", mock.Anything, rec).Return(nil)

	sess, err := r.Begin(context.Background(), id, 9.60)
	require.NoError(t, err)
	assert.Equal(t, "inv-1", sess.Invoice.ID)
	assert.Equal(t, 9.60, sess.Invoice.Amount)
	assert.Equal(t, "cs_secret", sess.ClientSecret)
	f.invoices.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	f.gateway.AssertNotCalled(t, "CreateIntent", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestBeginSettlesZeroTotalWithoutContactingProcessor(t *testing.T) {
	r, f := newReconciler()
	id := cartSvc.Identity{UserID: "u1", Email: "u1@example.com"}

	free := 0.0
	b := models.Booking{ID: "b1", Cost: 12, DiscountedCost: &free, VoucherCode: "COMP100", Status: models.BookingOpen}
	c := &models.Cart{Items: []models.CartItem{&b}, Subtotal: 0, Total: 0}

	f.holdCheckoutLock("u1")
	f.cart.On("Assemble", mock.Anything, id).Return(c, nil)
	f.invoices.On("FindUnpaidByOwnerAndHash", mock.Anything, "u1@example.com", cartSvc.ItemSetHash(c)).
		Return(nil, repository.ErrNotFound)
	f.invoices.On("Create", mock.Anything, mock.Anything).Return(nil)
	f.cart.On("MarkCheckoutStarted", mock.Anything, c, mock.Anything, r.Now()).Return(nil)
	f.bookings.On("ListByInvoice", mock.Anything, mock.Anything).Return([]models.Booking{b}, nil)
	f.bookings.On("Update", mock.Anything, mock.MatchedBy(func(got *models.Booking) bool {
		return got.ID == "b1" && got.Paid
	})).Return(repository.Saved, nil)
	f.memberships.On("ListByInvoice", mock.Anything, mock.Anything).Return([]models.Membership{}, nil)
	f.giftVouchers.On("ListByInvoice", mock.Anything, mock.Anything).Return([]models.GiftVoucherPurchase{}, nil)
	f.invoices.On("Update", mock.Anything, mock.Anything).Return(repository.Saved, nil)
	f.store.On("ClearTotalVoucher", mock.Anything, "u1").Return(nil)
	f.notifier.On("SendPaymentReceipt", mock.Anything, "u1@example.com", mock.Anything).Return(nil)

	sess, err := r.Begin(context.Background(), id, 0)
	require.NoError(t, err)
	assert.True(t, sess.Settled)
	assert.Empty(t, sess.ClientSecret)
	assert.True(t, sess.Invoice.Paid)
	f.gateway.AssertNotCalled(t, "CreateIntent", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	f.gateway.AssertNotCalled(t, "UpdateIntent", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestBeginReturnsSettledSessionWhenIntentAlreadySucceeded(t *testing.T) {
	r, f := newReconciler()
	id := cartSvc.Identity{UserID: "u1", Email: "u1@example.com"}

	// The user paid on another tab; the retry finds the intent succeeded and
	// must hand back the settled invoice, not a payable form.
	bk := models.Booking{ID: "b1", InvoiceID: "inv-1", Cost: 12, Status: models.BookingOpen}
	c := &models.Cart{Items: []models.CartItem{&bk}, Subtotal: 12, Total: 12}
	inv := &models.Invoice{
		ID: "inv-1", Email: "u1@example.com", Amount: 12,
		ItemSetHash: cartSvc.ItemSetHash(c), PaymentIntentID: "pi_1",
	}
	rec := f.succeededIntent("inv-1", 1200)
	rec.ID = "pi_1"

	f.holdCheckoutLock("u1")
	f.cart.On("Assemble", mock.Anything, id).Return(c, nil)
	f.invoices.On("FindUnpaidByOwnerAndHash", mock.Anything, "u1@example.com", cartSvc.ItemSetHash(c)).
		Return(inv, nil)
	f.cart.On("MarkCheckoutStarted", mock.Anything, c, "inv-1", r.Now()).Return(nil)
	f.gateway.On("UpdateIntent", mock.Anything, "pi_1", int64(1200), mock.Anything).
		Return(rec, "", ErrIntentSucceeded)
	f.invoices.On("GetByID", mock.Anything, "inv-1").Return(inv, nil)
	f.intents.On("Upsert", mock.Anything, rec).Return(nil)
	f.bookings.On("ListByInvoice", mock.Anything, "inv-1").Return([]models.Booking{bk}, nil)
	f.bookings.On("Update", mock.Anything, mock.Anything).Return(repository.Saved, nil)
	f.memberships.On("ListByInvoice", mock.Anything, "inv-1").Return([]models.Membership{}, nil)
	f.giftVouchers.On("ListByInvoice", mock.Anything, "inv-1").Return([]models.GiftVoucherPurchase{}, nil)
	f.invoices.On("Update", mock.Anything, inv).Return(repository.Saved, nil)
	f.notifier.On("SendPaymentReceipt", mock.Anything, "u1@example.com", inv).Return(nil)

	sess, err := r.Begin(context.Background(), id, 12)
	require.NoError(t, err)
	assert.True(t, sess.Settled)
	assert.Empty(t, sess.ClientSecret)
	assert.True(t, sess.Invoice.Paid)
}
