package membershipRepo

import (
	"context"
	"time"

	"studiobook/database/repository"
	"studiobook/models"
)

// Repository defines data access for memberships and membership types.
type Repository interface {
	GetByID(ctx context.Context, id string) (*models.Membership, error)

	// GetUsable returns the user's paid, non-full, non-expired membership for
	// the given event type and month, or repository.ErrNotFound.
	GetUsable(ctx context.Context, userID, eventType string, month time.Month, year int) (*models.Membership, error)

	Create(ctx context.Context, m *models.Membership) error
	Update(ctx context.Context, m *models.Membership) (repository.Outcome, error)
	Delete(ctx context.Context, id string) error

	ListUnpaidByUser(ctx context.Context, userID string) ([]models.Membership, error)
	ListByInvoice(ctx context.Context, invoiceID string) ([]models.Membership, error)
	ListStaleUnpaid(ctx context.Context, createdBefore, checkoutBefore time.Time) ([]models.Membership, error)

	CountPaidByVoucher(ctx context.Context, code string) (int, error)
	CountUserVoucherUses(ctx context.Context, code, userID string) (int, error)

	GetType(ctx context.Context, name string) (*models.MembershipType, error)
	ListActiveTypes(ctx context.Context) ([]models.MembershipType, error)
}
