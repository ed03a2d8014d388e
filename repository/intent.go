package repository

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/linlinbupt123-crypto/energy_share_service/entity"
	wrapErrors "github.com/linlinbupt123-crypto/energy_share_service/errors"
)

var notDeleted = bson.M{"$exists": false}

type IntentRepo struct {
	col *mongo.Collection
}

func NewIntentRepo(col *mongo.Collection) *IntentRepo {
	return &IntentRepo{col: col}
}

func (r *IntentRepo) Create(ctx context.Context, intent *entity.PurchaseIntent) error {
	_, err := r.col.InsertOne(ctx, intent)
	return err
}

func (r *IntentRepo) findOne(ctx context.Context, filter bson.M) (*entity.PurchaseIntent, error) {
	filter["deleted_at"] = notDeleted
	var out entity.PurchaseIntent
	err := r.col.FindOne(ctx, filter).Decode(&out)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *IntentRepo) GetByID(ctx context.Context, id string) (*entity.PurchaseIntent, error) {
	return r.findOne(ctx, bson.M{"_id": id})
}

func (r *IntentRepo) GetForUser(ctx context.Context, userID, id string) (*entity.PurchaseIntent, error) {
	return r.findOne(ctx, bson.M{"_id": id, "user_id": userID})
}

func updateDoc(u entity.IntentUpdate) bson.M {
	set := bson.M{
		"status":     u.Status,
		"updated_at": u.At,
	}
	if u.SubmissionHash != "" {
		set["submission_hash"] = u.SubmissionHash
		set["submitted_at"] = u.At
	}
	if u.BlockNumber != 0 {
		set["block_number"] = u.BlockNumber
	}
	if u.Confirmations != 0 {
		set["confirmations"] = u.Confirmations
	}
	if u.SettlementFee != nil {
		set["settlement_fee"] = *u.SettlementFee
	}
	if u.LedgerTime != nil {
		set["ledger_time"] = *u.LedgerTime
	}
	if u.ErrorMessage != "" {
		set["error_message"] = u.ErrorMessage
	}
	if u.Status.IsTerminal() {
		set["settled_at"] = u.At
	}
	return bson.M{"$set": set}
}

// Transition is a compare-and-set on status: the filter admits only the
// legal predecessors of u.Status, so terminal intents never change.
func (r *IntentRepo) Transition(ctx context.Context, id string, u entity.IntentUpdate) (*entity.PurchaseIntent, error) {
	from := entity.PredecessorsOf(u.Status)
	if len(from) == 0 {
		return nil, wrapErrors.Newf(wrapErrors.CodeIllegalTransition, "IntentRepo.Transition", "no transition into %s", u.Status)
	}
	filter := bson.M{
		"_id":        id,
		"status":     bson.M{"$in": from},
		"deleted_at": notDeleted,
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var out entity.PurchaseIntent
	err := r.col.FindOneAndUpdate(ctx, filter, updateDoc(u), opts).Decode(&out)
	if err == nil {
		return &out, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, err
	}

	cur, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if cur == nil {
		return nil, wrapErrors.Newf(wrapErrors.CodeNotFound, "IntentRepo.Transition", "intent %s not found", id)
	}
	return nil, wrapErrors.Newf(wrapErrors.CodeIllegalTransition, "IntentRepo.Transition", "%s -> %s", cur.Status, u.Status)
}

func (r *IntentRepo) RecordSubmission(ctx context.Context, id, hash string, at time.Time) error {
	res, err := r.col.UpdateOne(ctx,
		bson.M{"_id": id, "status": entity.StatusPending, "deleted_at": notDeleted},
		bson.M{"$set": bson.M{"submission_hash": hash, "submitted_at": at, "updated_at": at}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount > 0 {
		return nil
	}
	cur, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if cur == nil {
		return wrapErrors.Newf(wrapErrors.CodeNotFound, "IntentRepo.RecordSubmission", "intent %s not found", id)
	}
	return wrapErrors.Newf(wrapErrors.CodeIllegalTransition, "IntentRepo.RecordSubmission", "intent %s is %s", id, cur.Status)
}

func (r *IntentRepo) SoftDelete(ctx context.Context, id string, at time.Time) error {
	res, err := r.col.UpdateOne(ctx,
		bson.M{"_id": id, "deleted_at": notDeleted},
		bson.M{"$set": bson.M{"deleted_at": at}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return wrapErrors.Newf(wrapErrors.CodeNotFound, "IntentRepo.SoftDelete", "intent %s not found", id)
	}
	return nil
}

func (r *IntentRepo) find(ctx context.Context, filter bson.M, opts ...*options.FindOptions) ([]*entity.PurchaseIntent, error) {
	cur, err := r.col.Find(ctx, filter, opts...)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []*entity.PurchaseIntent
	for cur.Next(ctx) {
		var it entity.PurchaseIntent
		if err := cur.Decode(&it); err != nil {
			return nil, err
		}
		out = append(out, &it)
	}
	return out, cur.Err()
}

func (r *IntentRepo) ListByStatus(ctx context.Context, status entity.IntentStatus) ([]*entity.PurchaseIntent, error) {
	return r.find(ctx, bson.M{"status": status, "deleted_at": notDeleted},
		options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}}))
}

func (r *IntentRepo) ListByUser(ctx context.Context, userID string, limit, skip int64) ([]*entity.PurchaseIntent, int64, error) {
	filter := bson.M{"user_id": userID, "deleted_at": notDeleted}
	total, err := r.col.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, err
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetSkip(skip).
		SetLimit(limit)
	out, err := r.find(ctx, filter, opts)
	if err != nil {
		return nil, 0, err
	}
	return out, total, nil
}
