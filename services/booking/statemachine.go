package booking

import (
	"context"
	"errors"
	"time"

	"studiobook/database/repository"
	bookingRepo "studiobook/database/repository/booking"
	membershipRepo "studiobook/database/repository/membership"
	sessionRepo "studiobook/database/repository/session"
	"studiobook/models"
	"studiobook/services/notification"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SpotOfferer is told about every freed spot so waiting-list promotion runs
// in the same logical step as the cancellation that freed it.
type SpotOfferer interface {
	OfferFreedSpot(ctx context.Context, session *models.Session) error
}

// RefundRequester asks the payment processor to refund a directly-paid
// booking. The cancellation proceeds regardless of the refund outcome.
type RefundRequester interface {
	RequestRefund(ctx context.Context, b *models.Booking) error
}

// StateMachine owns the lifecycle of a reservation. All booking mutation goes
// through here, never through direct field writes, so membership credits,
// cancellation fees and waiting-list side effects stay consistent.
type StateMachine struct {
	Sessions    sessionRepo.Repository
	Bookings    bookingRepo.Repository
	Memberships membershipRepo.Repository
	Capacity    *CapacityTracker
	WaitingList SpotOfferer
	Refunds     RefundRequester
	Notifier    notification.Service
	Logger      *zap.Logger

	Loc             *time.Location
	MembershipGrace time.Duration
	Now             func() time.Time
}

func (sm *StateMachine) now() time.Time {
	if sm.Now != nil {
		return sm.Now()
	}
	return time.Now()
}

// lastBookedAt is the reference instant for the membership grace window.
func lastBookedAt(b *models.Booking) time.Time {
	if b.DateRebooked != nil {
		return *b.DateRebooked
	}
	return b.DateBooked
}

// Create reserves a spot for the user. If the user holds a usable membership
// for the session's type and month, a credit is spent and the booking is
// created paid; otherwise it enters the cart unpaid. A CANCELLED row for the
// same (user, session) is reopened instead.
func (sm *StateMachine) Create(ctx context.Context, userID, email, sessionID string) (*models.Booking, error) {
	session, err := sm.Sessions.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Cancelled {
		return nil, NewValidationError("this session has been cancelled")
	}

	if existing, err := sm.Bookings.GetByUserAndSession(ctx, userID, sessionID); err == nil {
		if existing.CountsAgainstCapacity() {
			return nil, ErrAlreadyBooked
		}
		if existing.Status == models.BookingCancelled {
			return sm.Rebook(ctx, existing.ID)
		}
		return sm.Reactivate(ctx, existing.ID)
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}

	now := sm.now()
	b := &models.Booking{
		ID:         uuid.New().String(),
		UserID:     userID,
		UserEmail:  email,
		SessionID:  session.ID,
		EventType:  session.EventType,
		Status:     models.BookingOpen,
		Cost:       session.Price,
		DateBooked: now,
	}

	membership := sm.attachMembership(ctx, b, session)

	if err := sm.Bookings.CreateIfSpace(ctx, b, session.Capacity); err != nil {
		switch {
		case errors.Is(err, bookingRepo.ErrNoSpace):
			return nil, ErrSessionFull
		case errors.Is(err, repository.ErrDuplicate):
			return nil, ErrAlreadyBooked
		default:
			return nil, err
		}
	}

	if membership != nil {
		sm.spendCredit(ctx, membership)
	}

	if err := sm.Notifier.SendBookingConfirmation(ctx, email, session); err != nil {
		sm.Logger.Warn("failed to send booking confirmation", zap.Error(err))
	}
	return b, nil
}

// ImportCancelled records a historical booking directly in CANCELLED state;
// no capacity check applies.
func (sm *StateMachine) ImportCancelled(ctx context.Context, userID, email, sessionID string, bookedAt time.Time) (*models.Booking, error) {
	session, err := sm.Sessions.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	now := sm.now()
	b := &models.Booking{
		ID:            uuid.New().String(),
		UserID:        userID,
		UserEmail:     email,
		SessionID:     session.ID,
		EventType:     session.EventType,
		Cost:          session.Price,
		DateBooked:    bookedAt,
		DateCancelled: &now,
	}
	if err := sm.Bookings.CreateCancelled(ctx, b); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, ErrAlreadyBooked
		}
		return nil, err
	}
	return b, nil
}

// Cancel applies the cancellation policy. A full cancel moves the row to
// CANCELLED; outside the allowed window a paid booking is soft-cancelled
// instead: the spot is released via no_show but the payment is kept.
func (sm *StateMachine) Cancel(ctx context.Context, bookingID, requesterID string) (*models.Booking, error) {
	b, err := sm.Bookings.GetByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if requesterID != "" && b.UserID != requesterID {
		return nil, NewValidationError("booking belongs to another user")
	}
	if b.Status == models.BookingCancelled {
		return nil, NewValidationError("booking is already cancelled")
	}
	session, err := sm.Sessions.GetByID(ctx, b.SessionID)
	if err != nil {
		return nil, err
	}

	now := sm.now()
	wasCounting := b.CountsAgainstCapacity()
	withinWindow := session.AllowCancellation && now.Before(sm.CancellationDeadline(session))
	withinGrace := b.MembershipID != "" && now.Sub(lastBookedAt(b)) <= sm.MembershipGrace

	if !b.Paid || withinGrace || withinWindow {
		sm.fullCancel(ctx, b, now)
	} else {
		// Outside the window and paid: release the spot without a refund.
		if b.Attended {
			return nil, NewValidationError("an attended booking cannot be marked as a no-show")
		}
		b.NoShow = true
		// The fee applies only once the cancellation period has passed; the
		// period is judged on its own even when the session never allows
		// full cancellation.
		if session.CancellationFee > 0 && !now.Before(sm.CancellationDeadline(session)) {
			b.CancellationFeeIncurred = true
		}
	}

	if _, err := sm.Bookings.Update(ctx, b); err != nil {
		return nil, err
	}

	if wasCounting && !b.CountsAgainstCapacity() {
		if err := sm.WaitingList.OfferFreedSpot(ctx, session); err != nil {
			sm.Logger.Error("waiting list offer failed",
				zap.String("session_id", session.ID), zap.Error(err))
		}
	}

	if err := sm.Notifier.SendBookingCancellation(ctx, b.UserEmail, session); err != nil {
		sm.Logger.Warn("failed to send cancellation notice", zap.Error(err))
	}
	return b, nil
}

// fullCancel mutates b into CANCELLED state, returning the membership credit
// or requesting a money refund as appropriate.
func (sm *StateMachine) fullCancel(ctx context.Context, b *models.Booking, now time.Time) {
	wasPaid := b.Paid
	b.Status = models.BookingCancelled
	b.NoShow = false
	b.DateCancelled = &now
	b.CheckoutTime = nil

	if b.MembershipID != "" {
		sm.refundCredit(ctx, b.MembershipID)
		b.MembershipID = ""
		b.Paid = false
		return
	}
	if wasPaid {
		// Refund of money is best-effort; the cancellation stands either way.
		if err := sm.Refunds.RequestRefund(ctx, b); err != nil {
			sm.Logger.Error("refund request failed",
				zap.String("booking_id", b.ID), zap.Error(err))
		}
		b.Paid = false
	}
}

// Rebook reopens a CANCELLED booking, subject to the capacity guard. A
// previously-incurred, unpaid cancellation fee is rescinded.
func (sm *StateMachine) Rebook(ctx context.Context, bookingID string) (*models.Booking, error) {
	b, err := sm.Bookings.GetByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if b.Status != models.BookingCancelled {
		return nil, NewValidationError("only a cancelled booking can be rebooked")
	}
	session, err := sm.Sessions.GetByID(ctx, b.SessionID)
	if err != nil {
		return nil, err
	}
	if session.Cancelled {
		return nil, NewValidationError("this session has been cancelled")
	}

	now := sm.now()
	b.Status = models.BookingOpen
	b.NoShow = false
	b.DateRebooked = &now
	b.DateCancelled = nil
	if b.CancellationFeeIncurred && !b.CancellationFeePaid {
		b.CancellationFeeIncurred = false
	}

	var membership *models.Membership
	if !b.Paid {
		membership = sm.attachMembership(ctx, b, session)
	}

	if err := sm.Bookings.ReopenIfSpace(ctx, b, session.Capacity); err != nil {
		if errors.Is(err, bookingRepo.ErrNoSpace) {
			return nil, ErrSessionFull
		}
		return nil, err
	}

	if membership != nil {
		sm.spendCredit(ctx, membership)
	}

	if err := sm.Notifier.SendBookingConfirmation(ctx, b.UserEmail, session); err != nil {
		sm.Logger.Warn("failed to send rebooking confirmation", zap.Error(err))
	}
	return b, nil
}

// Reactivate clears the no-show flag on an open booking, subject to the
// capacity guard (the row starts consuming a spot again).
func (sm *StateMachine) Reactivate(ctx context.Context, bookingID string) (*models.Booking, error) {
	b, err := sm.Bookings.GetByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if b.Status != models.BookingOpen || !b.NoShow {
		return nil, NewValidationError("only a no-show booking can be reactivated")
	}
	session, err := sm.Sessions.GetByID(ctx, b.SessionID)
	if err != nil {
		return nil, err
	}
	if session.Cancelled {
		return nil, NewValidationError("this session has been cancelled")
	}

	b.NoShow = false
	if err := sm.Bookings.ReopenIfSpace(ctx, b, session.Capacity); err != nil {
		if errors.Is(err, bookingRepo.ErrNoSpace) {
			return nil, ErrSessionFull
		}
		return nil, err
	}
	return b, nil
}

// MarkAttendance records whether the user showed up. A booking can never be
// both attended and a no-show.
func (sm *StateMachine) MarkAttendance(ctx context.Context, bookingID string, attended bool) (*models.Booking, error) {
	b, err := sm.Bookings.GetByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if attended && b.NoShow {
		return nil, NewValidationError("a no-show booking cannot be marked attended")
	}
	b.Attended = attended
	if _, err := sm.Bookings.Update(ctx, b); err != nil {
		return nil, err
	}
	return b, nil
}

// CancellationDeadline returns the latest instant a full cancellation is
// allowed. In March and October the nominal hour window is corrected by the
// DST offset difference between now and the session start, so a clock change
// cannot shift the effective window by an hour.
func (sm *StateMachine) CancellationDeadline(session *models.Session) time.Time {
	period := time.Duration(session.CancellationPeriod) * time.Hour
	now := sm.now().In(sm.Loc)
	if m := now.Month(); m == time.March || m == time.October {
		_, nowOffset := now.Zone()
		_, startOffset := session.Start.In(sm.Loc).Zone()
		period += time.Duration(nowOffset-startOffset) * time.Second
	}
	return session.Start.Add(-period)
}

// attachMembership spends nothing yet; it links a usable membership to the
// booking and marks it paid. The credit is spent only after the guarded
// insert succeeds.
func (sm *StateMachine) attachMembership(ctx context.Context, b *models.Booking, session *models.Session) *models.Membership {
	start := session.Start.In(sm.Loc)
	m, err := sm.Memberships.GetUsable(ctx, b.UserID, session.EventType, start.Month(), start.Year())
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			sm.Logger.Warn("membership lookup failed", zap.Error(err))
		}
		return nil
	}
	b.MembershipID = m.ID
	b.Paid = true
	return m
}

func (sm *StateMachine) spendCredit(ctx context.Context, m *models.Membership) {
	m.TimesUsed++
	if _, err := sm.Memberships.Update(ctx, m); err != nil {
		sm.Logger.Error("failed to spend membership credit",
			zap.String("membership_id", m.ID), zap.Error(err))
	}
}

func (sm *StateMachine) refundCredit(ctx context.Context, membershipID string) {
	m, err := sm.Memberships.GetByID(ctx, membershipID)
	if err != nil {
		sm.Logger.Error("failed to load membership for credit refund",
			zap.String("membership_id", membershipID), zap.Error(err))
		return
	}
	if m.TimesUsed > 0 {
		m.TimesUsed--
	}
	if _, err := sm.Memberships.Update(ctx, m); err != nil {
		sm.Logger.Error("failed to refund membership credit",
			zap.String("membership_id", m.ID), zap.Error(err))
	}
}
