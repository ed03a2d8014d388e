// Package repository persists wallets, purchase intents and the ledger mirror.
//
// Lookups of absent records return (nil, nil). Soft-deleted records are
// invisible to every read.
package repository

import (
	"context"
	"time"

	"github.com/linlinbupt123-crypto/energy_share_service/entity"
)

type WalletRepository interface {
	// Create fails with WALLET_EXISTS when the user already has a wallet.
	Create(ctx context.Context, w *entity.Wallet) error
	GetByUserID(ctx context.Context, userID string) (*entity.Wallet, error)
}

type IntentRepository interface {
	Create(ctx context.Context, intent *entity.PurchaseIntent) error
	GetByID(ctx context.Context, id string) (*entity.PurchaseIntent, error)
	// GetForUser is GetByID restricted to intents owned by userID.
	GetForUser(ctx context.Context, userID, id string) (*entity.PurchaseIntent, error)
	// Transition applies u only if the stored status may move to u.Status.
	// It returns the updated intent, NOT_FOUND, or ILLEGAL_TRANSITION.
	Transition(ctx context.Context, id string, u entity.IntentUpdate) (*entity.PurchaseIntent, error)
	// RecordSubmission attaches the signed transaction hash to a PENDING
	// intent ahead of broadcast. The status is unchanged.
	RecordSubmission(ctx context.Context, id, hash string, at time.Time) error
	// SoftDelete hides an intent from every read. Intents are never removed.
	SoftDelete(ctx context.Context, id string, at time.Time) error
	ListByStatus(ctx context.Context, status entity.IntentStatus) ([]*entity.PurchaseIntent, error)
	// ListByUser returns one page, newest first, and the total count.
	ListByUser(ctx context.Context, userID string, limit, skip int64) ([]*entity.PurchaseIntent, int64, error)
}

type ProjectRepository interface {
	Get(ctx context.Context, projectID int64) (*entity.Project, error)
	// MergeLedger writes the ledger fields of l, creating the project if
	// needed. Off-chain fields are left alone.
	MergeLedger(ctx context.Context, l *entity.ProjectLedger, syncedAt time.Time) (*entity.Project, error)
	UpdateMetadata(ctx context.Context, projectID int64, m entity.ProjectMetadata) (*entity.Project, error)
	List(ctx context.Context, f entity.ProjectFilter) ([]*entity.Project, error)
	ListIDs(ctx context.Context) ([]int64, error)
	// ListStale returns ids synced before the given time.
	ListStale(ctx context.Context, before time.Time) ([]int64, error)
}

type PositionRepository interface {
	Get(ctx context.Context, address string, projectID int64) (*entity.Position, error)
	MergeLedger(ctx context.Context, l *entity.PositionLedger, syncedAt time.Time) (*entity.Position, error)
	// SetPurchasedAt records the first purchase time; later calls are no-ops.
	SetPurchasedAt(ctx context.Context, address string, projectID int64, at time.Time) error
	// ListKeys returns entity.PositionKey values of every cached position.
	ListKeys(ctx context.Context) ([]string, error)
	ListStale(ctx context.Context, before time.Time) ([]string, error)
}
