package db

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	WalletCollection   = "wallets"
	IntentCollection   = "purchase_intents"
	ProjectCollection  = "projects"
	PositionCollection = "positions"
)

type MongoRepo struct {
	Client       *mongo.Client
	DB           *mongo.Database
	WalletColl   *mongo.Collection
	IntentColl   *mongo.Collection
	ProjectColl  *mongo.Collection
	PositionColl *mongo.Collection
}

func NewMongoRepo(ctx context.Context, uri, dbName string) (*MongoRepo, error) {
	clientOpts := options.Client().ApplyURI(uri)
	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, err
	}
	// ping
	ctx2, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx2, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	db := client.Database(dbName)
	return &MongoRepo{
		Client:       client,
		DB:           db,
		WalletColl:   db.Collection(WalletCollection),
		IntentColl:   db.Collection(IntentCollection),
		ProjectColl:  db.Collection(ProjectCollection),
		PositionColl: db.Collection(PositionCollection),
	}, nil
}

func (m *MongoRepo) Close(ctx context.Context) error {
	return m.Client.Disconnect(ctx)
}

// createIndexSafe ignores "already exists" so the call is idempotent.
func createIndexSafe(ctx context.Context, col *mongo.Collection, index mongo.IndexModel) error {
	_, err := col.Indexes().CreateOne(ctx, index)
	if err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "already exists") {
			return nil
		}
		return err
	}
	return nil
}

// EnsureIndexes creates every index the repositories rely on.
// The last_synced_at indexes back the cache's stale scan.
func (m *MongoRepo) EnsureIndexes(ctx context.Context) error {
	plan := []struct {
		col     *mongo.Collection
		indexes []mongo.IndexModel
	}{
		{m.WalletColl, []mongo.IndexModel{
			{Keys: bson.M{"user_id": 1}, Options: options.Index().SetUnique(true)},
			{Keys: bson.M{"address": 1}, Options: options.Index().SetUnique(true)},
		}},
		{m.IntentColl, []mongo.IndexModel{
			{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: -1}}},
			{Keys: bson.M{"status": 1}},
			{Keys: bson.M{"submission_hash": 1}, Options: options.Index().SetSparse(true)},
		}},
		{m.ProjectColl, []mongo.IndexModel{
			{Keys: bson.M{"project_id": 1}, Options: options.Index().SetUnique(true)},
			{Keys: bson.M{"last_synced_at": 1}},
			{Keys: bson.D{{Key: "status", Value: 1}, {Key: "project_type", Value: 1}}},
		}},
		{m.PositionColl, []mongo.IndexModel{
			{Keys: bson.D{{Key: "wallet_address", Value: 1}, {Key: "project_id", Value: 1}}},
			{Keys: bson.M{"last_synced_at": 1}},
		}},
	}
	for _, p := range plan {
		for _, idx := range p.indexes {
			if err := createIndexSafe(ctx, p.col, idx); err != nil {
				return fmt.Errorf("%s index error: %w", p.col.Name(), err)
			}
		}
	}
	return nil
}
