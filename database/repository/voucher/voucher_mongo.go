package voucherRepo

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

// Repository defines data access for voucher codes.
type Repository interface {
	GetByCode(ctx context.Context, code string) (*models.Voucher, error)
	Create(ctx context.Context, v *models.Voucher) error
	Update(ctx context.Context, v *models.Voucher) error
}

// MongoVoucherRepo implements Repository using MongoDB.
type MongoVoucherRepo struct {
	coll *mongo.Collection
}

// NewMongoVoucherRepo creates a new voucher repository.
func NewMongoVoucherRepo() Repository {
	coll := database.DB().Collection("vouchers")
	repo := &MongoVoucherRepo{coll: coll}
	if err := repo.ensureIndexes(); err != nil {
		fmt.Printf("failed to create indexes: %v\n", err)
	}
	return repo
}

func (r *MongoVoucherRepo) ensureIndexes() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := r.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "code", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	return err
}

func (r *MongoVoucherRepo) GetByCode(ctx context.Context, code string) (*models.Voucher, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var v models.Voucher
	err := r.coll.FindOne(ctx, bson.M{"code": code}).Decode(&v)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch voucher %s: %w", code, err)
	}
	return &v, nil
}

func (r *MongoVoucherRepo) Create(ctx context.Context, v *models.Voucher) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := v.CheckShape(); err != nil {
		return err
	}
	v.CreatedAt = time.Now()
	if _, err := r.coll.InsertOne(ctx, v); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return repository.ErrDuplicate
		}
		return fmt.Errorf("failed to create voucher: %w", err)
	}
	return nil
}

func (r *MongoVoucherRepo) Update(ctx context.Context, v *models.Voucher) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := v.CheckShape(); err != nil {
		return err
	}
	res, err := r.coll.UpdateOne(ctx, bson.M{"code": v.Code}, bson.M{"$set": v})
	if err != nil {
		return fmt.Errorf("failed to update voucher %s: %w", v.Code, err)
	}
	if res.MatchedCount == 0 {
		return repository.ErrNotFound
	}
	return nil
}
