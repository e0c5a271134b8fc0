package bookingRepo

import (
	"context"
	"fmt"
	"time"

	"studiobook/database/repository"
	"studiobook/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ensureIndexes creates the uniqueness guarantees the state machine relies
// on: one booking row per (user, session).
func (r *MongoBookingRepo) ensureIndexes() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	indexModels := []mongo.IndexModel{
		{Keys: bson.D{{Key: "id", Value: 1}}, Options: options.Index().SetUnique(true)},
		{
			Keys:    bson.D{{Key: "user_id", Value: 1}, {Key: "session_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{Keys: bson.D{{Key: "session_id", Value: 1}, {Key: "status", Value: 1}, {Key: "no_show", Value: 1}}},
		{Keys: bson.D{{Key: "voucher_code", Value: 1}}},
		{Keys: bson.D{{Key: "invoice_id", Value: 1}}},
	}
	_, err := r.coll.Indexes().CreateMany(ctx, indexModels)
	if err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}
	return nil
}

// CreateIfSpace counts the session's capacity-consuming rows and inserts the
// new booking inside one transaction, so two concurrent creators can never
// both take the last spot. A losing request gets ErrNoSpace, never a
// partially created row.
func (r *MongoBookingRepo) CreateIfSpace(ctx context.Context, b *models.Booking, capacity int) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	sess, err := r.client.StartSession()
	if err != nil {
		return fmt.Errorf("failed to start mongo session: %w", err)
	}
	defer sess.EndSession(ctx)

	_, err = sess.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		n, err := r.coll.CountDocuments(sc, openFilter(b.SessionID))
		if err != nil {
			return nil, fmt.Errorf("failed to count session bookings: %w", err)
		}
		if int(n) >= capacity {
			return nil, ErrNoSpace
		}
		if _, err := r.coll.InsertOne(sc, b); err != nil {
			if mongo.IsDuplicateKeyError(err) {
				return nil, repository.ErrDuplicate
			}
			return nil, fmt.Errorf("failed to insert booking: %w", err)
		}
		return nil, nil
	})
	return err
}

// ReopenIfSpace persists a CANCELLED->OPEN or no-show reset transition with
// the same transactional capacity guard. The row itself is not currently
// capacity-consuming, so it is excluded from the count by construction.
func (r *MongoBookingRepo) ReopenIfSpace(ctx context.Context, b *models.Booking, capacity int) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	sess, err := r.client.StartSession()
	if err != nil {
		return fmt.Errorf("failed to start mongo session: %w", err)
	}
	defer sess.EndSession(ctx)

	_, err = sess.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		filter := openFilter(b.SessionID)
		filter["id"] = bson.M{"$ne": b.ID}
		n, err := r.coll.CountDocuments(sc, filter)
		if err != nil {
			return nil, fmt.Errorf("failed to count session bookings: %w", err)
		}
		if int(n) >= capacity {
			return nil, ErrNoSpace
		}
		res, err := r.coll.UpdateOne(sc, bson.M{"id": b.ID}, bson.M{"$set": b})
		if err != nil {
			return nil, fmt.Errorf("failed to reopen booking %s: %w", b.ID, err)
		}
		if res.MatchedCount == 0 {
			return nil, repository.ErrNotFound
		}
		return nil, nil
	})
	return err
}
