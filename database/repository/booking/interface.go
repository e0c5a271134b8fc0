package bookingRepo

import (
	"context"
	"errors"
	"time"

	"studiobook/database/repository"
	"studiobook/models"
)

// ErrNoSpace is returned when a guarded insert or reopen loses the race for
// the last spot in a session.
var ErrNoSpace = errors.New("session has no spaces left")

// Repository defines data access for bookings. CreateIfSpace and
// ReopenIfSpace are the only paths that add a capacity-consuming row; both
// run the capacity check and the write in one transaction.
type Repository interface {
	GetByID(ctx context.Context, id string) (*models.Booking, error)
	GetByUserAndSession(ctx context.Context, userID, sessionID string) (*models.Booking, error)

	// CreateIfSpace inserts b only while the session's open, non-no-show
	// booking count is below capacity. Returns ErrNoSpace on a lost race and
	// repository.ErrDuplicate when the user already has a row for the session.
	CreateIfSpace(ctx context.Context, b *models.Booking, capacity int) error

	// CreateCancelled inserts a row directly in CANCELLED state (historical
	// import); no capacity check applies.
	CreateCancelled(ctx context.Context, b *models.Booking) error

	// ReopenIfSpace persists b's transition back into a capacity-consuming
	// state, guarded by the same transactional capacity check.
	ReopenIfSpace(ctx context.Context, b *models.Booking, capacity int) error

	Update(ctx context.Context, b *models.Booking) (repository.Outcome, error)
	Delete(ctx context.Context, id string) error

	CountOpenBySession(ctx context.Context, sessionID string) (int, error)
	ListBySession(ctx context.Context, sessionID string) ([]models.Booking, error)
	ListUnpaidByUser(ctx context.Context, userID string) ([]models.Booking, error)
	ListByInvoice(ctx context.Context, invoiceID string) ([]models.Booking, error)

	// ListStaleUnpaid returns never-paid bookings booked (or rebooked) before
	// bookedBefore whose checkout_time is unset or older than checkoutBefore.
	ListStaleUnpaid(ctx context.Context, bookedBefore, checkoutBefore time.Time) ([]models.Booking, error)

	CountPaidByVoucher(ctx context.Context, code string) (int, error)
	CountUserVoucherUses(ctx context.Context, code, userID string) (int, error)
}
