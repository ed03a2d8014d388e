package entity

import (
	"strconv"
	"strings"
	"time"
)

// PositionLedger is an investor's holding in one project as the ledger reports it.
type PositionLedger struct {
	WalletAddress      string `bson:"wallet_address" json:"wallet_address"`
	ProjectID          int64  `bson:"project_id" json:"project_id"`
	Shares             int64  `bson:"shares" json:"shares"`
	TotalInvested      Amount `bson:"total_invested" json:"total_invested"`
	LifetimeKwh        int64  `bson:"lifetime_kwh" json:"lifetime_kwh"`
	ClaimableKwh       int64  `bson:"claimable_kwh" json:"claimable_kwh"`
	EstimatedAnnualKwh int64  `bson:"estimated_annual_kwh" json:"estimated_annual_kwh"`
}

type Position struct {
	ID             string `bson:"_id" json:"id"`
	PositionLedger `bson:",inline"`

	// PurchasedAt is the ledger time of the first confirmed purchase seen
	// by this service. Not part of the ledger read.
	PurchasedAt *time.Time `bson:"purchased_at,omitempty" json:"purchased_at,omitempty"`

	LastSyncedAt time.Time  `bson:"last_synced_at" json:"last_synced_at"`
	IsCacheValid bool       `bson:"is_cache_valid" json:"is_cache_valid"`
	DeletedAt    *time.Time `bson:"deleted_at,omitempty" json:"-"`
}

func (p *Position) SyncedAt() time.Time { return p.LastSyncedAt }

func PositionKey(address string, projectID int64) string {
	return strings.ToLower(address) + ":" + strconv.FormatInt(projectID, 10)
}

// ParsePositionKey is the inverse of PositionKey.
func ParsePositionKey(key string) (string, int64, bool) {
	i := strings.LastIndexByte(key, ':')
	if i <= 0 {
		return "", 0, false
	}
	id, err := strconv.ParseInt(key[i+1:], 10, 64)
	if err != nil {
		return "", 0, false
	}
	return key[:i], id, true
}

func containsFold(s, sub string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(sub))
}
