/*
user_id → 唯一索引
address → 唯一索引
Envelope is written once and never updated.
*/
package repository

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/linlinbupt123-crypto/energy_share_service/entity"
	wrapErrors "github.com/linlinbupt123-crypto/energy_share_service/errors"
)

type WalletRepo struct {
	col *mongo.Collection
}

func NewWalletRepo(col *mongo.Collection) *WalletRepo {
	return &WalletRepo{col: col}
}

// Create wallet
func (r *WalletRepo) Create(ctx context.Context, w *entity.Wallet) error {
	_, err := r.col.InsertOne(ctx, w)
	if mongo.IsDuplicateKeyError(err) {
		return wrapErrors.Newf(wrapErrors.CodeWalletExists, "WalletRepo.Create", "user %s already has a wallet", w.UserID)
	}
	return err
}

func (r *WalletRepo) GetByUserID(ctx context.Context, userID string) (*entity.Wallet, error) {
	var w entity.Wallet
	err := r.col.FindOne(ctx, bson.M{"user_id": userID, "deleted_at": bson.M{"$exists": false}}).Decode(&w)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &w, nil
}
