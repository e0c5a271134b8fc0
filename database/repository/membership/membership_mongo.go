package membershipRepo

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

// MongoMembershipRepo implements Repository using MongoDB.
type MongoMembershipRepo struct {
	coll  *mongo.Collection
	types *mongo.Collection
}

// NewMongoMembershipRepo creates a new membership repository.
func NewMongoMembershipRepo() Repository {
	repo := &MongoMembershipRepo{
		coll:  database.DB().Collection("memberships"),
		types: database.DB().Collection("membership_types"),
	}
	if err := repo.ensureIndexes(); err != nil {
		fmt.Printf("failed to create indexes: %v\n", err)
	}
	return repo
}

func (r *MongoMembershipRepo) ensureIndexes() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	indexModels := []mongo.IndexModel{
		{Keys: bson.D{{Key: "id", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "event_type", Value: 1}, {Key: "month", Value: 1}, {Key: "year", Value: 1}}},
		{Keys: bson.D{{Key: "voucher_code", Value: 1}}},
	}
	if _, err := r.coll.Indexes().CreateMany(ctx, indexModels); err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}
	_, err := r.types.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "name", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	return err
}

func (r *MongoMembershipRepo) GetByID(ctx context.Context, id string) (*models.Membership, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var m models.Membership
	err := r.coll.FindOne(ctx, bson.M{"id": id}).Decode(&m)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch membership %s: %w", id, err)
	}
	return &m, nil
}

func (r *MongoMembershipRepo) GetUsable(ctx context.Context, userID, eventType string, month time.Month, year int) (*models.Membership, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	filter := bson.M{
		"user_id":    userID,
		"event_type": eventType,
		"month":      int(month),
		"year":       year,
		"paid":       true,
		// not full: credits remain
		"$expr": bson.M{"$lt": bson.A{"$times_used", "$allotted_classes"}},
	}
	var m models.Membership
	err := r.coll.FindOne(ctx, filter).Decode(&m)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch usable membership: %w", err)
	}
	return &m, nil
}

func (r *MongoMembershipRepo) Create(ctx context.Context, m *models.Membership) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	m.PurchasedAt = time.Now()
	if _, err := r.coll.InsertOne(ctx, m); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return repository.ErrDuplicate
		}
		return fmt.Errorf("failed to create membership: %w", err)
	}
	return nil
}

// Update persists membership state. The owning user is fixed at creation.
func (r *MongoMembershipRepo) Update(ctx context.Context, m *models.Membership) (repository.Outcome, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	current, err := r.GetByID(ctx, m.ID)
	if err != nil {
		return repository.Unchanged, err
	}
	if current.UserID != m.UserID {
		return repository.Unchanged, repository.ErrImmutableField
	}

	res, err := r.coll.UpdateOne(ctx, bson.M{"id": m.ID}, bson.M{"$set": m})
	if err != nil {
		return repository.Unchanged, fmt.Errorf("failed to update membership %s: %w", m.ID, err)
	}
	if res.MatchedCount == 0 {
		return repository.Unchanged, repository.ErrNotFound
	}
	if res.ModifiedCount == 0 {
		return repository.Unchanged, nil
	}
	return repository.Saved, nil
}

func (r *MongoMembershipRepo) Delete(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	res, err := r.coll.DeleteOne(ctx, bson.M{"id": id})
	if err != nil {
		return fmt.Errorf("failed to delete membership %s: %w", id, err)
	}
	if res.DeletedCount == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *MongoMembershipRepo) ListUnpaidByUser(ctx context.Context, userID string) ([]models.Membership, error) {
	return r.list(ctx, bson.M{"user_id": userID, "paid": false})
}

func (r *MongoMembershipRepo) ListByInvoice(ctx context.Context, invoiceID string) ([]models.Membership, error) {
	return r.list(ctx, bson.M{"invoice_id": invoiceID})
}

func (r *MongoMembershipRepo) ListStaleUnpaid(ctx context.Context, createdBefore, checkoutBefore time.Time) ([]models.Membership, error) {
	return r.list(ctx, bson.M{
		"paid":         false,
		"purchased_at": bson.M{"$lt": createdBefore},
		"$or": bson.A{
			bson.M{"checkout_time": nil},
			bson.M{"checkout_time": bson.M{"$lt": checkoutBefore}},
		},
	})
}

func (r *MongoMembershipRepo) CountPaidByVoucher(ctx context.Context, code string) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	n, err := r.coll.CountDocuments(ctx, bson.M{"voucher_code": code, "paid": true})
	if err != nil {
		return 0, fmt.Errorf("failed to count voucher uses for %s: %w", code, err)
	}
	return int(n), nil
}

func (r *MongoMembershipRepo) CountUserVoucherUses(ctx context.Context, code, userID string) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	n, err := r.coll.CountDocuments(ctx, bson.M{"voucher_code": code, "user_id": userID})
	if err != nil {
		return 0, fmt.Errorf("failed to count user voucher uses for %s: %w", code, err)
	}
	return int(n), nil
}

func (r *MongoMembershipRepo) GetType(ctx context.Context, name string) (*models.MembershipType, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var t models.MembershipType
	err := r.types.FindOne(ctx, bson.M{"name": name}).Decode(&t)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch membership type %s: %w", name, err)
	}
	return &t, nil
}

func (r *MongoMembershipRepo) ListActiveTypes(ctx context.Context) ([]models.MembershipType, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	cur, err := r.types.Find(ctx, bson.M{"active": true})
	if err != nil {
		return nil, fmt.Errorf("failed to list membership types: %w", err)
	}
	var types []models.MembershipType
	if err := cur.All(ctx, &types); err != nil {
		return nil, fmt.Errorf("failed to decode membership types: %w", err)
	}
	return types, nil
}

func (r *MongoMembershipRepo) list(ctx context.Context, filter bson.M) ([]models.Membership, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	cur, err := r.coll.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "purchased_at", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("failed to list memberships: %w", err)
	}
	var ms []models.Membership
	if err := cur.All(ctx, &ms); err != nil {
		return nil, fmt.Errorf("failed to decode memberships: %w", err)
	}
	return ms, nil
}
