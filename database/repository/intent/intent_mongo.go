package intentRepo

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

// Repository stores local mirrors of processor payment intents for audit and
// reconciliation. The processor stays authoritative.
type Repository interface {
	Upsert(ctx context.Context, rec *models.PaymentIntentRecord) error
	GetByID(ctx context.Context, id string) (*models.PaymentIntentRecord, error)
	GetByInvoice(ctx context.Context, invoiceID string) (*models.PaymentIntentRecord, error)
}

// MongoIntentRepo implements Repository using MongoDB.
type MongoIntentRepo struct {
	coll *mongo.Collection
}

// NewMongoIntentRepo creates a new payment-intent record repository.
func NewMongoIntentRepo() Repository {
	coll := database.DB().Collection("payment_intents")
	repo := &MongoIntentRepo{coll: coll}
	if err := repo.ensureIndexes(); err != nil {
		fmt.Printf("failed to create indexes: %v\n", err)
	}
	return repo
}

func (r *MongoIntentRepo) ensureIndexes() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	indexModels := []mongo.IndexModel{
		{Keys: bson.D{{Key: "id", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "invoice_id", Value: 1}}},
	}
	_, err := r.coll.Indexes().CreateMany(ctx, indexModels)
	return err
}

func (r *MongoIntentRepo) Upsert(ctx context.Context, rec *models.PaymentIntentRecord) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	rec.UpdatedAt = time.Now()
	_, err := r.coll.UpdateOne(ctx,
		bson.M{"id": rec.ID},
		bson.M{"$set": rec},
		options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to upsert payment intent %s: %w", rec.ID, err)
	}
	return nil
}

func (r *MongoIntentRepo) GetByID(ctx context.Context, id string) (*models.PaymentIntentRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var rec models.PaymentIntentRecord
	err := r.coll.FindOne(ctx, bson.M{"id": id}).Decode(&rec)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch payment intent %s: %w", id, err)
	}
	return &rec, nil
}

func (r *MongoIntentRepo) GetByInvoice(ctx context.Context, invoiceID string) (*models.PaymentIntentRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var rec models.PaymentIntentRecord
	err := r.coll.FindOne(ctx, bson.M{"invoice_id": invoiceID}).Decode(&rec)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch payment intent for invoice %s: %w", invoiceID, err)
	}
	return &rec, nil
}
