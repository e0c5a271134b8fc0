package sessionRepo

import (
	"context"
	"time"

	"studiobook/models"
)

// Repository defines data access for bookable sessions.
type Repository interface {
	GetByID(ctx context.Context, id string) (*models.Session, error)
	ListUpcoming(ctx context.Context, from time.Time) ([]models.Session, error)
	Create(ctx context.Context, s *models.Session) error
	Update(ctx context.Context, s *models.Session) error
}
