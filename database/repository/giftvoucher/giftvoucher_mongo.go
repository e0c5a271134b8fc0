package giftvoucherRepo

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

// Repository defines data access for gift-voucher purchases.
type Repository interface {
	GetByID(ctx context.Context, id string) (*models.GiftVoucherPurchase, error)
	Create(ctx context.Context, g *models.GiftVoucherPurchase) error
	Update(ctx context.Context, g *models.GiftVoucherPurchase) error
	Delete(ctx context.Context, id string) error

	ListUnpaidByPurchaser(ctx context.Context, email string) ([]models.GiftVoucherPurchase, error)
	ListByIDs(ctx context.Context, ids []string) ([]models.GiftVoucherPurchase, error)
	ListByInvoice(ctx context.Context, invoiceID string) ([]models.GiftVoucherPurchase, error)
	ListStaleUnpaid(ctx context.Context, createdBefore, checkoutBefore time.Time) ([]models.GiftVoucherPurchase, error)
}

// MongoGiftVoucherRepo implements Repository using MongoDB.
type MongoGiftVoucherRepo struct {
	coll *mongo.Collection
}

// NewMongoGiftVoucherRepo creates a new gift-voucher purchase repository.
func NewMongoGiftVoucherRepo() Repository {
	coll := database.DB().Collection("gift_voucher_purchases")
	repo := &MongoGiftVoucherRepo{coll: coll}
	if err := repo.ensureIndexes(); err != nil {
		fmt.Printf("failed to create indexes: %v\n", err)
	}
	return repo
}

func (r *MongoGiftVoucherRepo) ensureIndexes() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	indexModels := []mongo.IndexModel{
		{Keys: bson.D{{Key: "id", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "purchaser_email", Value: 1}}},
		{Keys: bson.D{{Key: "invoice_id", Value: 1}}},
	}
	_, err := r.coll.Indexes().CreateMany(ctx, indexModels)
	return err
}

func (r *MongoGiftVoucherRepo) GetByID(ctx context.Context, id string) (*models.GiftVoucherPurchase, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var g models.GiftVoucherPurchase
	err := r.coll.FindOne(ctx, bson.M{"id": id}).Decode(&g)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch gift voucher purchase %s: %w", id, err)
	}
	return &g, nil
}

func (r *MongoGiftVoucherRepo) Create(ctx context.Context, g *models.GiftVoucherPurchase) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	g.CreatedAt = time.Now()
	if _, err := r.coll.InsertOne(ctx, g); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return repository.ErrDuplicate
		}
		return fmt.Errorf("failed to create gift voucher purchase: %w", err)
	}
	return nil
}

func (r *MongoGiftVoucherRepo) Update(ctx context.Context, g *models.GiftVoucherPurchase) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	res, err := r.coll.UpdateOne(ctx, bson.M{"id": g.ID}, bson.M{"$set": g})
	if err != nil {
		return fmt.Errorf("failed to update gift voucher purchase %s: %w", g.ID, err)
	}
	if res.MatchedCount == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *MongoGiftVoucherRepo) Delete(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	res, err := r.coll.DeleteOne(ctx, bson.M{"id": id})
	if err != nil {
		return fmt.Errorf("failed to delete gift voucher purchase %s: %w", id, err)
	}
	if res.DeletedCount == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *MongoGiftVoucherRepo) ListUnpaidByPurchaser(ctx context.Context, email string) ([]models.GiftVoucherPurchase, error) {
	return r.list(ctx, bson.M{"purchaser_email": email, "paid": false})
}

func (r *MongoGiftVoucherRepo) ListByIDs(ctx context.Context, ids []string) ([]models.GiftVoucherPurchase, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	return r.list(ctx, bson.M{"id": bson.M{"$in": ids}})
}

func (r *MongoGiftVoucherRepo) ListByInvoice(ctx context.Context, invoiceID string) ([]models.GiftVoucherPurchase, error) {
	return r.list(ctx, bson.M{"invoice_id": invoiceID})
}

func (r *MongoGiftVoucherRepo) ListStaleUnpaid(ctx context.Context, createdBefore, checkoutBefore time.Time) ([]models.GiftVoucherPurchase, error) {
	return r.list(ctx, bson.M{
		"paid":       false,
		"created_at": bson.M{"$lt": createdBefore},
		"$or": bson.A{
			bson.M{"checkout_time": nil},
			bson.M{"checkout_time": bson.M{"$lt": checkoutBefore}},
		},
	})
}

func (r *MongoGiftVoucherRepo) list(ctx context.Context, filter bson.M) ([]models.GiftVoucherPurchase, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	cur, err := r.coll.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("failed to list gift voucher purchases: %w", err)
	}
	var gs []models.GiftVoucherPurchase
	if err := cur.All(ctx, &gs); err != nil {
		return nil, fmt.Errorf("failed to decode gift voucher purchases: %w", err)
	}
	return gs, nil
}
