package settingsRepo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"studiobook/database"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Repository holds operator-managed boolean flags (active waiver agreement,
// booking pause switch). It backs the read-through flag cache.
type Repository interface {
	GetBool(ctx context.Context, name string) (bool, error)
	SetBool(ctx context.Context, name string, value bool) error
}

// MongoSettingsRepo implements Repository using MongoDB.
type MongoSettingsRepo struct {
	coll *mongo.Collection
}

// NewMongoSettingsRepo creates a new settings repository.
func NewMongoSettingsRepo() Repository {
	return &MongoSettingsRepo{coll: database.DB().Collection("settings")}
}

type flagDoc struct {
	Name  string `bson:"name"`
	Value bool   `bson:"value"`
}

// GetBool returns the flag value; unknown flags read as false.
func (r *MongoSettingsRepo) GetBool(ctx context.Context, name string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var doc flagDoc
	err := r.coll.FindOne(ctx, bson.M{"name": name}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to fetch setting %s: %w", name, err)
	}
	return doc.Value, nil
}

func (r *MongoSettingsRepo) SetBool(ctx context.Context, name string, value bool) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	_, err := r.coll.UpdateOne(ctx,
		bson.M{"name": name},
		bson.M{"$set": bson.M{"name": name, "value": value}},
		options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to set setting %s: %w", name, err)
	}
	return nil
}
