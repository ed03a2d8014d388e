package repository

import (
	"context"
	"errors"
	"regexp"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/linlinbupt123-crypto/energy_share_service/entity"
	wrapErrors "github.com/linlinbupt123-crypto/energy_share_service/errors"
)

// ledgerSet turns the ledger half of a cached entity into a $set document
// stamped with the sync time. Only these keys are ever written by a refresh.
func ledgerSet(ledger interface{}, syncedAt time.Time) (bson.M, error) {
	raw, err := bson.Marshal(ledger)
	if err != nil {
		return nil, err
	}
	set := bson.M{}
	if err := bson.Unmarshal(raw, &set); err != nil {
		return nil, err
	}
	set["last_synced_at"] = syncedAt
	set["is_cache_valid"] = true
	return set, nil
}

type ProjectRepo struct {
	col *mongo.Collection
}

func NewProjectRepo(col *mongo.Collection) *ProjectRepo {
	return &ProjectRepo{col: col}
}

func (r *ProjectRepo) Get(ctx context.Context, projectID int64) (*entity.Project, error) {
	var p entity.Project
	err := r.col.FindOne(ctx, bson.M{"project_id": projectID, "deleted_at": notDeleted}).Decode(&p)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *ProjectRepo) MergeLedger(ctx context.Context, l *entity.ProjectLedger, syncedAt time.Time) (*entity.Project, error) {
	set, err := ledgerSet(l, syncedAt)
	if err != nil {
		return nil, err
	}
	update := bson.M{
		"$set": set,
		"$setOnInsert": bson.M{
			"description":             "",
			"images":                  []string{},
			"detailed_specifications": "",
			"created_at":              syncedAt,
		},
	}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	var p entity.Project
	if err := r.col.FindOneAndUpdate(ctx, bson.M{"project_id": l.ProjectID}, update, opts).Decode(&p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *ProjectRepo) UpdateMetadata(ctx context.Context, projectID int64, m entity.ProjectMetadata) (*entity.Project, error) {
	set := bson.M{}
	if m.Description != nil {
		set["description"] = *m.Description
	}
	if m.Images != nil {
		set["images"] = m.Images
	}
	if m.DetailedSpecifications != nil {
		set["detailed_specifications"] = *m.DetailedSpecifications
	}
	if len(set) == 0 {
		p, err := r.Get(ctx, projectID)
		if err == nil && p == nil {
			err = wrapErrors.Newf(wrapErrors.CodeNotFound, "ProjectRepo.UpdateMetadata", "project %d not found", projectID)
		}
		return p, err
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var p entity.Project
	err := r.col.FindOneAndUpdate(ctx, bson.M{"project_id": projectID, "deleted_at": notDeleted}, bson.M{"$set": set}, opts).Decode(&p)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, wrapErrors.Newf(wrapErrors.CodeNotFound, "ProjectRepo.UpdateMetadata", "project %d not found", projectID)
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *ProjectRepo) List(ctx context.Context, f entity.ProjectFilter) ([]*entity.Project, error) {
	filter := bson.M{"deleted_at": notDeleted}
	if f.Status != nil {
		filter["status"] = *f.Status
	}
	if f.ProjectType != "" {
		filter["project_type"] = f.ProjectType
	}
	if f.Location != "" {
		filter["location"] = bson.M{"$regex": regexp.QuoteMeta(f.Location), "$options": "i"}
	}

	cur, err := r.col.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "project_id", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []*entity.Project
	for cur.Next(ctx) {
		var p entity.Project
		if err := cur.Decode(&p); err != nil {
			return nil, err
		}
		out = append(out, &p)
	}
	return out, cur.Err()
}

func (r *ProjectRepo) ids(ctx context.Context, filter bson.M) ([]int64, error) {
	opts := options.Find().
		SetProjection(bson.M{"project_id": 1}).
		SetSort(bson.D{{Key: "project_id", Value: 1}})
	cur, err := r.col.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []int64
	for cur.Next(ctx) {
		var row struct {
			ProjectID int64 `bson:"project_id"`
		}
		if err := cur.Decode(&row); err != nil {
			return nil, err
		}
		out = append(out, row.ProjectID)
	}
	return out, cur.Err()
}

func (r *ProjectRepo) ListIDs(ctx context.Context) ([]int64, error) {
	return r.ids(ctx, bson.M{"deleted_at": notDeleted})
}

func (r *ProjectRepo) ListStale(ctx context.Context, before time.Time) ([]int64, error) {
	return r.ids(ctx, bson.M{"last_synced_at": bson.M{"$lt": before}, "deleted_at": notDeleted})
}
