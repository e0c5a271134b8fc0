package waitinglistRepo

import (
	"context"
	"fmt"
	"time"

	"studiobook/database"
	"studiobook/database/repository"
	"studiobook/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Repository defines data access for waiting-list entries.
type Repository interface {
	// Add upserts the entry; joining twice is a no-op.
	Add(ctx context.Context, e *models.WaitingListEntry) error
	Remove(ctx context.Context, sessionID, userID string) error
	ListBySession(ctx context.Context, sessionID string) ([]models.WaitingListEntry, error)
	Exists(ctx context.Context, sessionID, userID string) (bool, error)
}

// MongoWaitingListRepo implements Repository using MongoDB.
type MongoWaitingListRepo struct {
	coll *mongo.Collection
}

// NewMongoWaitingListRepo creates a new waiting-list repository.
func NewMongoWaitingListRepo() Repository {
	coll := database.DB().Collection("waiting_list")
	repo := &MongoWaitingListRepo{coll: coll}
	if err := repo.ensureIndexes(); err != nil {
		fmt.Printf("failed to create indexes: %v\n", err)
	}
	return repo
}

func (r *MongoWaitingListRepo) ensureIndexes() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	indexModels := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "session_id", Value: 1}, {Key: "user_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{Keys: bson.D{{Key: "session_id", Value: 1}, {Key: "joined_at", Value: 1}}},
	}
	_, err := r.coll.Indexes().CreateMany(ctx, indexModels)
	return err
}

func (r *MongoWaitingListRepo) Add(ctx context.Context, e *models.WaitingListEntry) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	filter := bson.M{"session_id": e.SessionID, "user_id": e.UserID}
	update := bson.M{"$setOnInsert": e}
	_, err := r.coll.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to join waiting list: %w", err)
	}
	return nil
}

func (r *MongoWaitingListRepo) Remove(ctx context.Context, sessionID, userID string) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	res, err := r.coll.DeleteOne(ctx, bson.M{"session_id": sessionID, "user_id": userID})
	if err != nil {
		return fmt.Errorf("failed to leave waiting list: %w", err)
	}
	if res.DeletedCount == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *MongoWaitingListRepo) ListBySession(ctx context.Context, sessionID string) ([]models.WaitingListEntry, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	cur, err := r.coll.Find(ctx, bson.M{"session_id": sessionID},
		options.Find().SetSort(bson.D{{Key: "joined_at", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("failed to list waiting list for session %s: %w", sessionID, err)
	}
	var entries []models.WaitingListEntry
	if err := cur.All(ctx, &entries); err != nil {
		return nil, fmt.Errorf("failed to decode waiting list entries: %w", err)
	}
	return entries, nil
}

func (r *MongoWaitingListRepo) Exists(ctx context.Context, sessionID, userID string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	n, err := r.coll.CountDocuments(ctx, bson.M{"session_id": sessionID, "user_id": userID})
	if err != nil {
		return false, fmt.Errorf("failed to check waiting list membership: %w", err)
	}
	return n > 0, nil
}
