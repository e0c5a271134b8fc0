package waitinglist

import (
	"context"
	"errors"
	"time"

	"studiobook/database/repository"
	bookingRepo "studiobook/database/repository/booking"
	waitinglistRepo "studiobook/database/repository/waitinglist"
	"studiobook/models"
	"studiobook/services/booking"
	"studiobook/services/notification"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Booker creates (or reopens) a booking through the state machine. Defined
// here so the coordinator and the state machine can reference each other
// without an import cycle.
type Booker interface {
	Create(ctx context.Context, userID, email, sessionID string) (*models.Booking, error)
}

// Coordinator maintains the queue of users wanting a full session and
// decides who gets auto-promoted when a spot frees up. The priority list is
// operator-configured and applies across all sessions; this mirrors the
// studio's long-standing manual policy.
type Coordinator struct {
	Entries  waitinglistRepo.Repository
	Bookings bookingRepo.Repository
	Booker   Booker
	Notifier notification.Service
	Logger   *zap.Logger

	PriorityEmails []string
}

// Join adds the user to a session's waiting list. A user with an open,
// non-no-show booking has no business on the list.
func (c *Coordinator) Join(ctx context.Context, userID, email, sessionID string) error {
	if b, err := c.Bookings.GetByUserAndSession(ctx, userID, sessionID); err == nil {
		if b.CountsAgainstCapacity() {
			return booking.NewValidationError("you already have a booking for this session")
		}
	} else if !errors.Is(err, repository.ErrNotFound) {
		return err
	}

	return c.Entries.Add(ctx, &models.WaitingListEntry{
		ID:        uuid.New().String(),
		SessionID: sessionID,
		UserID:    userID,
		UserEmail: email,
		JoinedAt:  time.Now(),
	})
}

// Leave removes the user from a session's waiting list.
func (c *Coordinator) Leave(ctx context.Context, userID, sessionID string) error {
	err := c.Entries.Remove(ctx, sessionID, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil
	}
	return err
}

// OfferFreedSpot runs when a cancellation frees a spot. The first waiting
// priority identity is auto-booked and removed from the list; only that user
// hears about it. With no qualifying priority identity, every remaining
// entry is told a spot opened (first come, first served through the normal
// create path).
func (c *Coordinator) OfferFreedSpot(ctx context.Context, session *models.Session) error {
	entries, err := c.Entries.ListBySession(ctx, session.ID)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		return nil
	}

	byEmail := make(map[string]models.WaitingListEntry, len(entries))
	for _, e := range entries {
		byEmail[e.UserEmail] = e
	}

	dropped := make(map[string]bool)
	for _, email := range c.PriorityEmails {
		entry, waiting := byEmail[email]
		if !waiting {
			continue
		}
		promoted, stale, err := c.promote(ctx, entry, session)
		if err != nil {
			return err
		}
		if promoted {
			return nil
		}
		if stale {
			dropped[entry.UserID] = true
		}
		// Skipped (already booked or lost the spot); try the next identity.
	}

	// Entries dropped as stale above are no longer on the list and must not
	// be told a spot opened.
	emails := make([]string, 0, len(entries))
	for _, e := range entries {
		if dropped[e.UserID] {
			continue
		}
		emails = append(emails, e.UserEmail)
	}
	if len(emails) == 0 {
		return nil
	}
	return c.Notifier.NotifyWaitingList(ctx, emails, session)
}

// promote attempts to auto-book one waiting entry. It reports promoted=false
// when the entry should be skipped: the user already holds an open,
// non-no-show booking (the entry is stale and gets dropped) or the freed spot
// was taken meanwhile.
func (c *Coordinator) promote(ctx context.Context, entry models.WaitingListEntry, session *models.Session) (promoted, stale bool, err error) {
	if b, err := c.Bookings.GetByUserAndSession(ctx, entry.UserID, session.ID); err == nil {
		if b.CountsAgainstCapacity() {
			// Stale entry; drop it rather than double-book.
			if err := c.Entries.Remove(ctx, session.ID, entry.UserID); err != nil && !errors.Is(err, repository.ErrNotFound) {
				c.Logger.Warn("failed to drop stale waiting list entry", zap.Error(err))
			}
			return false, true, nil
		}
	} else if !errors.Is(err, repository.ErrNotFound) {
		return false, false, err
	}

	_, err = c.Booker.Create(ctx, entry.UserID, entry.UserEmail, session.ID)
	if err != nil {
		if errors.Is(err, booking.ErrSessionFull) {
			return false, false, nil
		}
		var verr *booking.ValidationError
		if errors.As(err, &verr) {
			return false, false, nil
		}
		return false, false, err
	}

	if err := c.Entries.Remove(ctx, session.ID, entry.UserID); err != nil && !errors.Is(err, repository.ErrNotFound) {
		c.Logger.Warn("failed to remove promoted waiting list entry",
			zap.String("user_id", entry.UserID), zap.Error(err))
	}
	if err := c.Notifier.NotifySpotAvailable(ctx, entry.UserEmail, session); err != nil {
		c.Logger.Warn("failed to notify promoted user", zap.Error(err))
	}
	return true, false, nil
}
