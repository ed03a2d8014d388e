package repository

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/linlinbupt123-crypto/energy_share_service/entity"
)

// PositionRepo keys documents by entity.PositionKey.
type PositionRepo struct {
	col *mongo.Collection
}

func NewPositionRepo(col *mongo.Collection) *PositionRepo {
	return &PositionRepo{col: col}
}

func (r *PositionRepo) Get(ctx context.Context, address string, projectID int64) (*entity.Position, error) {
	var p entity.Position
	err := r.col.FindOne(ctx, bson.M{"_id": entity.PositionKey(address, projectID), "deleted_at": notDeleted}).Decode(&p)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *PositionRepo) MergeLedger(ctx context.Context, l *entity.PositionLedger, syncedAt time.Time) (*entity.Position, error) {
	set, err := ledgerSet(l, syncedAt)
	if err != nil {
		return nil, err
	}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	var p entity.Position
	key := entity.PositionKey(l.WalletAddress, l.ProjectID)
	if err := r.col.FindOneAndUpdate(ctx, bson.M{"_id": key}, bson.M{"$set": set}, opts).Decode(&p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *PositionRepo) SetPurchasedAt(ctx context.Context, address string, projectID int64, at time.Time) error {
	key := entity.PositionKey(address, projectID)

	// 已存在的文档: 只在 purchased_at 为空时写入
	res, err := r.col.UpdateOne(ctx,
		bson.M{"_id": key, "purchased_at": bson.M{"$exists": false}},
		bson.M{"$set": bson.M{"purchased_at": at}})
	if err != nil {
		return err
	}
	if res.MatchedCount > 0 {
		return nil
	}

	// not cached yet: create a stub the next refresh fills in
	_, err = r.col.UpdateOne(ctx,
		bson.M{"_id": key},
		bson.M{"$setOnInsert": bson.M{
			"wallet_address": address,
			"project_id":     projectID,
			"purchased_at":   at,
			"last_synced_at": time.Time{},
			"is_cache_valid": false,
		}},
		options.Update().SetUpsert(true))
	return err
}

func (r *PositionRepo) keys(ctx context.Context, filter bson.M) ([]string, error) {
	cur, err := r.col.Find(ctx, filter, options.Find().SetProjection(bson.M{"_id": 1}))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []string
	for cur.Next(ctx) {
		var row struct {
			ID string `bson:"_id"`
		}
		if err := cur.Decode(&row); err != nil {
			return nil, err
		}
		out = append(out, row.ID)
	}
	return out, cur.Err()
}

func (r *PositionRepo) ListKeys(ctx context.Context) ([]string, error) {
	return r.keys(ctx, bson.M{"deleted_at": notDeleted})
}

func (r *PositionRepo) ListStale(ctx context.Context, before time.Time) ([]string, error) {
	return r.keys(ctx, bson.M{"last_synced_at": bson.M{"$lt": before}, "deleted_at": notDeleted})
}
