package entity

import (
	"time"
)

// Project status values as reported by the ledger.
const (
	ProjectPending   = 0
	ProjectActive    = 1
	ProjectCompleted = 2
	ProjectSuspended = 3
)

// ProjectLedger holds the fields owned by the ledger. A refresh replaces
// exactly these and nothing else.
type ProjectLedger struct {
	ProjectID             int64  `bson:"project_id" json:"project_id"`
	Name                  string `bson:"name" json:"name"`
	Location              string `bson:"location" json:"location"`
	InstallationSizeKw    int64  `bson:"installation_size_kw" json:"installation_size_kw"`
	EstimatedAnnualKwh    int64  `bson:"estimated_annual_kwh" json:"estimated_annual_kwh"`
	TotalShares           int64  `bson:"total_shares" json:"total_shares"`
	SharesSold            int64  `bson:"shares_sold" json:"shares_sold"`
	PricePerShare         Amount `bson:"price_per_share" json:"price_per_share"`
	ProjectStartDate      int64  `bson:"project_start_date" json:"project_start_date"`
	Status                int    `bson:"status" json:"status"`
	ProjectWallet         string `bson:"project_wallet" json:"project_wallet"`
	TransfersEnabled      bool   `bson:"transfers_enabled" json:"transfers_enabled"`
	ProjectType           string `bson:"project_type" json:"project_type"`
	ProjectSubtype        string `bson:"project_subtype" json:"project_subtype"`
	DocumentIPFS          string `bson:"document_ipfs" json:"document_ipfs"`
	ProjectDuration       int64  `bson:"project_duration" json:"project_duration"`
	TotalProduction       int64  `bson:"total_production" json:"total_production"`
	ProductionRecordCount int64  `bson:"production_record_count" json:"production_record_count"`
}

func (p ProjectLedger) AvailableShares() int64 {
	if p.SharesSold >= p.TotalShares {
		return 0
	}
	return p.TotalShares - p.SharesSold
}

// Project is the cached mirror of a ledger project plus off-chain content.
type Project struct {
	ProjectLedger `bson:",inline"`

	Description            string   `bson:"description" json:"description"`
	Images                 []string `bson:"images" json:"images"`
	DetailedSpecifications string   `bson:"detailed_specifications" json:"detailed_specifications"`

	LastSyncedAt time.Time  `bson:"last_synced_at" json:"last_synced_at"`
	IsCacheValid bool       `bson:"is_cache_valid" json:"is_cache_valid"`
	CreatedAt    time.Time  `bson:"created_at" json:"created_at"`
	DeletedAt    *time.Time `bson:"deleted_at,omitempty" json:"-"`
}

func (p *Project) SyncedAt() time.Time { return p.LastSyncedAt }

// ProjectMetadata is the off-chain content editable by operators.
type ProjectMetadata struct {
	Description            *string
	Images                 []string
	DetailedSpecifications *string
}

type ProjectFilter struct {
	Status      *int
	ProjectType string
	Location    string
}

// Match applies the filter in memory; the Mongo store translates it to a query.
func (f ProjectFilter) Match(p *Project) bool {
	if f.Status != nil && p.Status != *f.Status {
		return false
	}
	if f.ProjectType != "" && p.ProjectType != f.ProjectType {
		return false
	}
	if f.Location != "" && !containsFold(p.Location, f.Location) {
		return false
	}
	return true
}
