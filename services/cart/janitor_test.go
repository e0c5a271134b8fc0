package cart

import (
	"context"
	"testing"
	"time"

	"studiobook/database/repository"
	"studiobook/models"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type mockSessionRepo struct{ mock.Mock }

func (m *mockSessionRepo) GetByID(ctx context.Context, id string) (*models.Session, error) {
	args := m.Called(ctx, id)
	if s := args.Get(0); s != nil {
		return s.(*models.Session), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockSessionRepo) ListUpcoming(ctx context.Context, from time.Time) ([]models.Session, error) {
	args := m.Called(ctx, from)
	return args.Get(0).([]models.Session), args.Error(1)
}

func (m *mockSessionRepo) Create(ctx context.Context, s *models.Session) error {
	return m.Called(ctx, s).Error(0)
}

func (m *mockSessionRepo) Update(ctx context.Context, s *models.Session) error {
	return m.Called(ctx, s).Error(0)
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

type mockOfferer struct{ mock.Mock }

func (m *mockOfferer) OfferFreedSpot(ctx context.Context, session *models.Session) error {
	return m.Called(ctx, session).Error(0)
}

type janitorFixture struct {
	sessions     *mockSessionRepo
	bookings     *mockBookingRepo
	memberships  *mockMembershipRepo
	giftVouchers *mockGiftVoucherRepo
	offerer      *mockOfferer
}

var sweepNow = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

func newJanitor() (*Janitor, *janitorFixture) {
	f := &janitorFixture{
		sessions:     new(mockSessionRepo),
		bookings:     new(mockBookingRepo),
		memberships:  new(mockMembershipRepo),
		giftVouchers: new(mockGiftVoucherRepo),
		offerer:      new(mockOfferer),
	}
	j := &Janitor{
		Sessions:     f.sessions,
		Bookings:     f.bookings,
		Memberships:  f.memberships,
		GiftVouchers: f.giftVouchers,
		WaitingList:  f.offerer,
		Logger:       zap.NewNop(),
		Expiry:       30 * time.Minute,
		Grace:        10 * time.Minute,
		Now:          func() time.Time { return sweepNow },
	}
	return j, f
}

func (f *janitorFixture) expectNoStaleItems() {
	f.bookings.On("ListStaleUnpaid", mock.Anything, mock.Anything, mock.Anything).Return([]models.Booking{}, nil)
	f.memberships.On("ListStaleUnpaid", mock.Anything, mock.Anything, mock.Anything).Return([]models.Membership{}, nil)
	f.giftVouchers.On("ListStaleUnpaid", mock.Anything, mock.Anything, mock.Anything).Return([]models.GiftVoucherPurchase{}, nil)
}

func TestSweepUsesExpiryAndGraceCutoffs(t *testing.T) {
	j, f := newJanitor()
	f.expectNoStaleItems()

	require.NoError(t, j.Sweep(context.Background()))

	addedBefore := sweepNow.Add(-30 * time.Minute)
	checkoutBefore := sweepNow.Add(-10 * time.Minute)
	f.bookings.AssertCalled(t, "ListStaleUnpaid", mock.Anything, addedBefore, checkoutBefore)
	f.memberships.AssertCalled(t, "ListStaleUnpaid", mock.Anything, addedBefore, checkoutBefore)
	f.giftVouchers.AssertCalled(t, "ListStaleUnpaid", mock.Anything, addedBefore, checkoutBefore)
}

func TestSweepDeletesBookingAndOffersSpot(t *testing.T) {
	j, f := newJanitor()

	stale := models.Booking{ID: "b1", SessionID: "s1", Status: models.BookingOpen}
	session := &models.Session{ID: "s1", Name: "Morning Yoga", Capacity: 10}
	f.bookings.On("ListStaleUnpaid", mock.Anything, mock.Anything, mock.Anything).Return([]models.Booking{stale}, nil)
	f.bookings.On("Delete", mock.Anything, "b1").Return(nil)
	f.sessions.On("GetByID", mock.Anything, "s1").Return(session, nil)
	f.offerer.On("OfferFreedSpot", mock.Anything, session).Return(nil)
	f.memberships.On("ListStaleUnpaid", mock.Anything, mock.Anything, mock.Anything).Return([]models.Membership{}, nil)
	f.giftVouchers.On("ListStaleUnpaid", mock.Anything, mock.Anything, mock.Anything).Return([]models.GiftVoucherPurchase{}, nil)

	require.NoError(t, j.Sweep(context.Background()))
	f.offerer.AssertCalled(t, "OfferFreedSpot", mock.Anything, session)
}

func TestSweepSkipsOfferForNonCountingBooking(t *testing.T) {
	j, f := newJanitor()

	// A no-show row holds no spot, so deleting it frees nothing.
	stale := models.Booking{ID: "b1", SessionID: "s1", Status: models.BookingOpen, NoShow: true}
	f.bookings.On("ListStaleUnpaid", mock.Anything, mock.Anything, mock.Anything).Return([]models.Booking{stale}, nil)
	f.bookings.On("Delete", mock.Anything, "b1").Return(nil)
	f.memberships.On("ListStaleUnpaid", mock.Anything, mock.Anything, mock.Anything).Return([]models.Membership{}, nil)
	f.giftVouchers.On("ListStaleUnpaid", mock.Anything, mock.Anything, mock.Anything).Return([]models.GiftVoucherPurchase{}, nil)

	require.NoError(t, j.Sweep(context.Background()))
	f.sessions.AssertNotCalled(t, "GetByID", mock.Anything, mock.Anything)
	f.offerer.AssertNotCalled(t, "OfferFreedSpot", mock.Anything, mock.Anything)
}

func TestSweepSkipsOfferForCancelledSession(t *testing.T) {
	j, f := newJanitor()

	stale := models.Booking{ID: "b1", SessionID: "s1", Status: models.BookingOpen}
	session := &models.Session{ID: "s1", Cancelled: true}
	f.bookings.On("ListStaleUnpaid", mock.Anything, mock.Anything, mock.Anything).Return([]models.Booking{stale}, nil)
	f.bookings.On("Delete", mock.Anything, "b1").Return(nil)
	f.sessions.On("GetByID", mock.Anything, "s1").Return(session, nil)
	f.memberships.On("ListStaleUnpaid", mock.Anything, mock.Anything, mock.Anything).Return([]models.Membership{}, nil)
	f.giftVouchers.On("ListStaleUnpaid", mock.Anything, mock.Anything, mock.Anything).Return([]models.GiftVoucherPurchase{}, nil)

	require.NoError(t, j.Sweep(context.Background()))
	f.offerer.AssertNotCalled(t, "OfferFreedSpot", mock.Anything, mock.Anything)
}

func TestSweepDeletesMembershipsAndGiftVouchers(t *testing.T) {
	j, f := newJanitor()

	f.bookings.On("ListStaleUnpaid", mock.Anything, mock.Anything, mock.Anything).Return([]models.Booking{}, nil)
	f.memberships.On("ListStaleUnpaid", mock.Anything, mock.Anything, mock.Anything).
		Return([]models.Membership{{ID: "m1"}}, nil)
	f.memberships.On("Delete", mock.Anything, "m1").Return(nil)
	f.giftVouchers.On("ListStaleUnpaid", mock.Anything, mock.Anything, mock.Anything).
		Return([]models.GiftVoucherPurchase{{ID: "g1"}}, nil)
	f.giftVouchers.On("Delete", mock.Anything, "g1").Return(nil)

	require.NoError(t, j.Sweep(context.Background()))
	f.memberships.AssertCalled(t, "Delete", mock.Anything, "m1")
	f.giftVouchers.AssertCalled(t, "Delete", mock.Anything, "g1")
}
