package bookingRepo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"studiobook/database"
	"studiobook/database/repository"
	"studiobook/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoBookingRepo implements Repository using MongoDB.
type MongoBookingRepo struct {
	client *mongo.Client
	coll   *mongo.Collection
}

// NewMongoBookingRepo creates a new booking repository.
func NewMongoBookingRepo() Repository {
	coll := database.DB().Collection("bookings")
	repo := &MongoBookingRepo{client: database.MongoClient, coll: coll}
	if err := repo.ensureIndexes(); err != nil {
		fmt.Printf("failed to create indexes: %v\n", err)
	}
	return repo
}

// openFilter matches rows that consume a spot.
func openFilter(sessionID string) bson.M {
	return bson.M{
		"session_id": sessionID,
		"status":     models.BookingOpen,
		"no_show":    false,
	}
}

func (r *MongoBookingRepo) GetByID(ctx context.Context, id string) (*models.Booking, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var b models.Booking
	err := r.coll.FindOne(ctx, bson.M{"id": id}).Decode(&b)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch booking %s: %w", id, err)
	}
	return &b, nil
}

func (r *MongoBookingRepo) GetByUserAndSession(ctx context.Context, userID, sessionID string) (*models.Booking, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var b models.Booking
	err := r.coll.FindOne(ctx, bson.M{"user_id": userID, "session_id": sessionID}).Decode(&b)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch booking for user %s session %s: %w", userID, sessionID, err)
	}
	return &b, nil
}

func (r *MongoBookingRepo) CreateCancelled(ctx context.Context, b *models.Booking) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	b.Status = models.BookingCancelled
	if _, err := r.coll.InsertOne(ctx, b); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return repository.ErrDuplicate
		}
		return fmt.Errorf("failed to create cancelled booking: %w", err)
	}
	return nil
}

// Update persists booking state. The user and session references are fixed at
// creation; writes that change them are rejected.
func (r *MongoBookingRepo) Update(ctx context.Context, b *models.Booking) (repository.Outcome, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	current, err := r.GetByID(ctx, b.ID)
	if err != nil {
		return repository.Unchanged, err
	}
	if current.UserID != b.UserID || current.SessionID != b.SessionID {
		return repository.Unchanged, repository.ErrImmutableField
	}

	res, err := r.coll.UpdateOne(ctx, bson.M{"id": b.ID}, bson.M{"$set": b})
	if err != nil {
		return repository.Unchanged, fmt.Errorf("failed to update booking %s: %w", b.ID, err)
	}
	if res.MatchedCount == 0 {
		return repository.Unchanged, repository.ErrNotFound
	}
	if res.ModifiedCount == 0 {
		return repository.Unchanged, nil
	}
	return repository.Saved, nil
}

func (r *MongoBookingRepo) Delete(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	res, err := r.coll.DeleteOne(ctx, bson.M{"id": id})
	if err != nil {
		return fmt.Errorf("failed to delete booking %s: %w", id, err)
	}
	if res.DeletedCount == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *MongoBookingRepo) CountOpenBySession(ctx context.Context, sessionID string) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	n, err := r.coll.CountDocuments(ctx, openFilter(sessionID))
	if err != nil {
		return 0, fmt.Errorf("failed to count bookings for session %s: %w", sessionID, err)
	}
	return int(n), nil
}

func (r *MongoBookingRepo) ListBySession(ctx context.Context, sessionID string) ([]models.Booking, error) {
	return r.list(ctx, bson.M{"session_id": sessionID})
}

func (r *MongoBookingRepo) ListUnpaidByUser(ctx context.Context, userID string) ([]models.Booking, error) {
	return r.list(ctx, bson.M{
		"user_id": userID,
		"paid":    false,
		"status":  models.BookingOpen,
	})
}

func (r *MongoBookingRepo) ListByInvoice(ctx context.Context, invoiceID string) ([]models.Booking, error) {
	return r.list(ctx, bson.M{"invoice_id": invoiceID})
}

func (r *MongoBookingRepo) ListStaleUnpaid(ctx context.Context, bookedBefore, checkoutBefore time.Time) ([]models.Booking, error) {
	return r.list(ctx, bson.M{
		"paid": false,
		"$and": bson.A{
			bson.M{"$or": bson.A{
				bson.M{"date_rebooked": bson.M{"$lt": bookedBefore}},
				bson.M{"date_rebooked": nil, "date_booked": bson.M{"$lt": bookedBefore}},
			}},
			bson.M{"$or": bson.A{
				bson.M{"checkout_time": nil},
				bson.M{"checkout_time": bson.M{"$lt": checkoutBefore}},
			}},
		},
	})
}

func (r *MongoBookingRepo) CountPaidByVoucher(ctx context.Context, code string) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	n, err := r.coll.CountDocuments(ctx, bson.M{"voucher_code": code, "paid": true})
	if err != nil {
		return 0, fmt.Errorf("failed to count voucher uses for %s: %w", code, err)
	}
	return int(n), nil
}

// CountUserVoucherUses counts the user's paid uses plus codes currently
// applied to unpaid open rows, so one user cannot stack a code across a cart.
func (r *MongoBookingRepo) CountUserVoucherUses(ctx context.Context, code, userID string) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	filter := bson.M{
		"voucher_code": code,
		"user_id":      userID,
		"$or": bson.A{
			bson.M{"paid": true},
			bson.M{"status": models.BookingOpen},
		},
	}
	n, err := r.coll.CountDocuments(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("failed to count user voucher uses for %s: %w", code, err)
	}
	return int(n), nil
}

func (r *MongoBookingRepo) list(ctx context.Context, filter bson.M) ([]models.Booking, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	cur, err := r.coll.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "date_booked", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("failed to list bookings: %w", err)
	}
	var bookings []models.Booking
	if err := cur.All(ctx, &bookings); err != nil {
		return nil, fmt.Errorf("failed to decode bookings: %w", err)
	}
	return bookings, nil
}
