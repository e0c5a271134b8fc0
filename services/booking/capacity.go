package booking

import (
	"context"

	bookingRepo "studiobook/database/repository/booking"
	"studiobook/models"
)

// CapacityTracker computes remaining spots for a session from authoritative
// booking counts. Counts are never materialized; every read recomputes from
// the rows so there is no counter to drift.
type CapacityTracker struct {
	Bookings bookingRepo.Repository
}

// SpacesLeft returns capacity minus the session's open, non-no-show bookings.
func (t *CapacityTracker) SpacesLeft(ctx context.Context, session *models.Session) (int, error) {
	n, err := t.Bookings.CountOpenBySession(ctx, session.ID)
	if err != nil {
		return 0, err
	}
	left := session.Capacity - n
	if left < 0 {
		left = 0
	}
	return left, nil
}

// CanReserve reports whether a reservation may be created or reopened. This
// is advisory only: the actual insert is guarded transactionally in the
// repository so a check-then-act race cannot oversell the session.
func (t *CapacityTracker) CanReserve(ctx context.Context, session *models.Session) (bool, error) {
	if session.Cancelled {
		return false, nil
	}
	left, err := t.SpacesLeft(ctx, session)
	if err != nil {
		return false, err
	}
	return left > 0, nil
}
