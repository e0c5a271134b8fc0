package invoiceRepo

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

// Repository defines data access for invoices.
type Repository interface {
	GetByID(ctx context.Context, id string) (*models.Invoice, error)

	// FindUnpaidByOwnerAndHash returns the unpaid invoice whose item-set hash
	// matches the owner's current cart, or repository.ErrNotFound. The hash
	// is the idempotency key that prevents duplicate invoices on checkout
	// retries.
	FindUnpaidByOwnerAndHash(ctx context.Context, email, itemSetHash string) (*models.Invoice, error)

	Create(ctx context.Context, inv *models.Invoice) error
	Update(ctx context.Context, inv *models.Invoice) (repository.Outcome, error)

	ListAll(ctx context.Context) ([]models.Invoice, error)
	CountPaidByTotalVoucher(ctx context.Context, code string) (int, error)
	CountUserTotalVoucherUses(ctx context.Context, code, email string) (int, error)
}

// MongoInvoiceRepo implements Repository using MongoDB.
type MongoInvoiceRepo struct {
	coll *mongo.Collection
}

// NewMongoInvoiceRepo creates a new invoice repository.
func NewMongoInvoiceRepo() Repository {
	coll := database.DB().Collection("invoices")
	repo := &MongoInvoiceRepo{coll: coll}
	if err := repo.ensureIndexes(); err != nil {
		fmt.Printf("failed to create indexes: %v\n", err)
	}
	return repo
}

func (r *MongoInvoiceRepo) ensureIndexes() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	indexModels := []mongo.IndexModel{
		{Keys: bson.D{{Key: "id", Value: 1}}, Options: options.Index().SetUnique(true)},
		// One unpaid invoice per (owner, item set): backs the race-safe
		// lookup-or-create at checkout.
		{
			Keys: bson.D{{Key: "email", Value: 1}, {Key: "item_set_hash", Value: 1}},
			Options: options.Index().SetUnique(true).
				SetPartialFilterExpression(bson.M{"paid": false}),
		},
		{Keys: bson.D{{Key: "total_voucher_code", Value: 1}}},
	}
	_, err := r.coll.Indexes().CreateMany(ctx, indexModels)
	if err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}
	return nil
}

func (r *MongoInvoiceRepo) GetByID(ctx context.Context, id string) (*models.Invoice, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var inv models.Invoice
	err := r.coll.FindOne(ctx, bson.M{"id": id}).Decode(&inv)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch invoice %s: %w", id, err)
	}
	return &inv, nil
}

func (r *MongoInvoiceRepo) FindUnpaidByOwnerAndHash(ctx context.Context, email, itemSetHash string) (*models.Invoice, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	filter := bson.M{"email": email, "item_set_hash": itemSetHash, "paid": false}
	var inv models.Invoice
	err := r.coll.FindOne(ctx, filter).Decode(&inv)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch invoice for %s: %w", email, err)
	}
	return &inv, nil
}

func (r *MongoInvoiceRepo) Create(ctx context.Context, inv *models.Invoice) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	inv.CreatedAt = time.Now()
	if _, err := r.coll.InsertOne(ctx, inv); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return repository.ErrDuplicate
		}
		return fmt.Errorf("failed to create invoice: %w", err)
	}
	return nil
}

// Update persists invoice state. Owner identity is fixed at creation so the
// record remains attributable after account deletion.
func (r *MongoInvoiceRepo) Update(ctx context.Context, inv *models.Invoice) (repository.Outcome, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	current, err := r.GetByID(ctx, inv.ID)
	if err != nil {
		return repository.Unchanged, err
	}
	if current.Email != inv.Email || current.Username != inv.Username {
		return repository.Unchanged, repository.ErrImmutableField
	}

	res, err := r.coll.UpdateOne(ctx, bson.M{"id": inv.ID}, bson.M{"$set": inv})
	if err != nil {
		return repository.Unchanged, fmt.Errorf("failed to update invoice %s: %w", inv.ID, err)
	}
	if res.MatchedCount == 0 {
		return repository.Unchanged, repository.ErrNotFound
	}
	if res.ModifiedCount == 0 {
		return repository.Unchanged, nil
	}
	return repository.Saved, nil
}

func (r *MongoInvoiceRepo) ListAll(ctx context.Context) ([]models.Invoice, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	cur, err := r.coll.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}))
	if err != nil {
		return nil, fmt.Errorf("failed to list invoices: %w", err)
	}
	var invs []models.Invoice
	if err := cur.All(ctx, &invs); err != nil {
		return nil, fmt.Errorf("failed to decode invoices: %w", err)
	}
	return invs, nil
}

func (r *MongoInvoiceRepo) CountPaidByTotalVoucher(ctx context.Context, code string) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	n, err := r.coll.CountDocuments(ctx, bson.M{"total_voucher_code": code, "paid": true})
	if err != nil {
		return 0, fmt.Errorf("failed to count total-voucher uses for %s: %w", code, err)
	}
	return int(n), nil
}

func (r *MongoInvoiceRepo) CountUserTotalVoucherUses(ctx context.Context, code, email string) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	n, err := r.coll.CountDocuments(ctx, bson.M{"total_voucher_code": code, "email": email})
	if err != nil {
		return 0, fmt.Errorf("failed to count user total-voucher uses for %s: %w", code, err)
	}
	return int(n), nil
}
