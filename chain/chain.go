package chain

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/core/types"

	"github.com/linlinbupt123-crypto/energy_share_service/entity"
)

//go:generate mockgen -destination=mocks/gateway.go -package=mocks . Gateway

// Gateway is the service's only view of the share ledger.
// Reads of absent projects fail with NOT_FOUND; every other error is
// transient from the caller's point of view.
type Gateway interface {
	ReadProject(ctx context.Context, projectID int64) (*entity.ProjectLedger, error)
	ReadPosition(ctx context.Context, address string, projectID int64) (*entity.PositionLedger, error)
	// ListProjectIDs returns every project id the ledger has issued.
	ListProjectIDs(ctx context.Context) ([]int64, error)
	ReadBalance(ctx context.Context, address string) (*big.Int, error)

	// PreparePurchase builds an unsigned purchase transaction and the signer
	// that must be used to sign it.
	PreparePurchase(ctx context.Context, req PurchaseRequest) (*types.Transaction, types.Signer, error)
	Submit(ctx context.Context, signed *types.Transaction) (string, error)
	// WaitForConfirmation blocks until the transaction is depth blocks deep
	// or ctx ends. It only observes; it never resubmits.
	WaitForConfirmation(ctx context.Context, hash string, depth uint64) (*Confirmation, error)
	// CheckConfirmation polls once. It returns nil, nil while the
	// transaction is unknown or not yet depth blocks deep.
	CheckConfirmation(ctx context.Context, hash string, depth uint64) (*Confirmation, error)
}

type PurchaseRequest struct {
	From      string
	ProjectID int64
	Shares    int64
	// Value is the payment attached to the call, in wei.
	Value    *big.Int
	GasLimit uint64
}

// Confirmation is the settled outcome of a submitted transaction.
type Confirmation struct {
	Success       bool
	BlockNumber   uint64
	Confirmations uint64
	// Fee is gas used times the effective gas price.
	Fee          *big.Int
	RevertReason string
	BlockTime    time.Time
}

// RevertedMessage is reported when the ledger gives no revert reason.
const RevertedMessage = "Transaction reverted on blockchain"
