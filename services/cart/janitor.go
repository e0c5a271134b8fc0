package cart

import (
	"context"
	"time"

	bookingRepo "studiobook/database/repository/booking"
	giftvoucherRepo "studiobook/database/repository/giftvoucher"
	membershipRepo "studiobook/database/repository/membership"
	sessionRepo "studiobook/database/repository/session"
	bookingSvc "studiobook/services/booking"

	"go.uber.org/zap"
)

// Janitor deletes cart items that were added but never paid for, freeing the
// session spots they were holding. An item whose checkout_time is within the
// grace window is mid-payment and is left alone even when it is older than
// the expiry cutoff.
type Janitor struct {
	Sessions     sessionRepo.Repository
	Bookings     bookingRepo.Repository
	Memberships  membershipRepo.Repository
	GiftVouchers giftvoucherRepo.Repository
	WaitingList  bookingSvc.SpotOfferer
	Logger       *zap.Logger

	Expiry time.Duration // how long an unpaid item may sit in a cart
	Grace  time.Duration // how long a stamped checkout_time protects it
	Now    func() time.Time
}

func (j *Janitor) now() time.Time {
	if j.Now != nil {
		return j.Now()
	}
	return time.Now()
}

// Sweep removes every expired unpaid cart item. Freed booking spots are
// offered to the session's waiting list.
func (j *Janitor) Sweep(ctx context.Context) error {
	now := j.now()
	addedBefore := now.Add(-j.Expiry)
	checkoutBefore := now.Add(-j.Grace)

	if err := j.sweepBookings(ctx, addedBefore, checkoutBefore); err != nil {
		return err
	}
	if err := j.sweepMemberships(ctx, addedBefore, checkoutBefore); err != nil {
		return err
	}
	return j.sweepGiftVouchers(ctx, addedBefore, checkoutBefore)
}

func (j *Janitor) sweepBookings(ctx context.Context, addedBefore, checkoutBefore time.Time) error {
	stale, err := j.Bookings.ListStaleUnpaid(ctx, addedBefore, checkoutBefore)
	if err != nil {
		return err
	}
	for _, b := range stale {
		freesSpot := b.CountsAgainstCapacity()
		if err := j.Bookings.Delete(ctx, b.ID); err != nil {
			j.Logger.Error("failed to delete expired booking",
				zap.String("booking_id", b.ID), zap.Error(err))
			continue
		}
		j.Logger.Info("removed expired unpaid booking",
			zap.String("booking_id", b.ID),
			zap.String("session_id", b.SessionID))

		if !freesSpot {
			continue
		}
		session, err := j.Sessions.GetByID(ctx, b.SessionID)
		if err != nil {
			j.Logger.Warn("could not load session for freed spot",
				zap.String("session_id", b.SessionID), zap.Error(err))
			continue
		}
		if session.Cancelled {
			continue
		}
		if err := j.WaitingList.OfferFreedSpot(ctx, session); err != nil {
			j.Logger.Warn("failed to offer freed spot",
				zap.String("session_id", session.ID), zap.Error(err))
		}
	}
	return nil
}

func (j *Janitor) sweepMemberships(ctx context.Context, addedBefore, checkoutBefore time.Time) error {
	stale, err := j.Memberships.ListStaleUnpaid(ctx, addedBefore, checkoutBefore)
	if err != nil {
		return err
	}
	for _, m := range stale {
		if err := j.Memberships.Delete(ctx, m.ID); err != nil {
			j.Logger.Error("failed to delete expired membership",
				zap.String("membership_id", m.ID), zap.Error(err))
			continue
		}
		j.Logger.Info("removed expired unpaid membership",
			zap.String("membership_id", m.ID))
	}
	return nil
}

func (j *Janitor) sweepGiftVouchers(ctx context.Context, addedBefore, checkoutBefore time.Time) error {
	stale, err := j.GiftVouchers.ListStaleUnpaid(ctx, addedBefore, checkoutBefore)
	if err != nil {
		return err
	}
	for _, g := range stale {
		if err := j.GiftVouchers.Delete(ctx, g.ID); err != nil {
			j.Logger.Error("failed to delete expired gift voucher purchase",
				zap.String("purchase_id", g.ID), zap.Error(err))
			continue
		}
		j.Logger.Info("removed expired unpaid gift voucher purchase",
			zap.String("purchase_id", g.ID))
	}
	return nil
}
