package entity

import (
	"time"
)

type IntentType string

const (
	IntentPurchase IntentType = "PURCHASE"
)

type IntentStatus string

const (
	StatusPending    IntentStatus = "PENDING"
	StatusConfirming IntentStatus = "CONFIRMING"
	StatusConfirmed  IntentStatus = "CONFIRMED"
	StatusFailed     IntentStatus = "FAILED"
)

func (s IntentStatus) IsTerminal() bool {
	return s == StatusConfirmed || s == StatusFailed
}

// CanTransitionTo enforces the forward-only lifecycle
// PENDING -> CONFIRMING -> {CONFIRMED, FAILED}, PENDING -> FAILED.
func (s IntentStatus) CanTransitionTo(next IntentStatus) bool {
	switch s {
	case StatusPending:
		return next == StatusConfirming || next == StatusFailed
	case StatusConfirming:
		return next == StatusConfirmed || next == StatusFailed
	}
	return false
}

// PredecessorsOf lists the statuses from which next may be entered.
func PredecessorsOf(next IntentStatus) []IntentStatus {
	var out []IntentStatus
	for _, s := range []IntentStatus{StatusPending, StatusConfirming, StatusConfirmed, StatusFailed} {
		if s.CanTransitionTo(next) {
			out = append(out, s)
		}
	}
	return out
}

// PurchaseIntent is the durable record of one purchase attempt.
type PurchaseIntent struct {
	ID            string       `bson:"_id" json:"id"`
	UserID        string       `bson:"user_id" json:"user_id"`
	WalletAddress string       `bson:"wallet_address" json:"wallet_address"`
	Type          IntentType   `bson:"type" json:"type"`
	Status        IntentStatus `bson:"status" json:"status"`

	ProjectID   int64  `bson:"project_id" json:"project_id"`
	ProjectName string `bson:"project_name" json:"project_name"`
	Shares      int64  `bson:"shares" json:"shares"`

	PricePerShare Amount `bson:"price_per_share" json:"price_per_share"`
	Amount        Amount `bson:"amount" json:"amount"`
	PlatformFee   Amount `bson:"platform_fee" json:"platform_fee"`
	FeeReserve    Amount `bson:"fee_reserve" json:"fee_reserve"`
	SettlementFee Amount `bson:"settlement_fee" json:"settlement_fee"`

	SubmissionHash string     `bson:"submission_hash,omitempty" json:"submission_hash,omitempty"`
	BlockNumber    uint64     `bson:"block_number" json:"block_number"`
	Confirmations  uint64     `bson:"confirmations" json:"confirmations"`
	LedgerTime     *time.Time `bson:"ledger_time,omitempty" json:"ledger_time,omitempty"`
	ErrorMessage   string     `bson:"error_message,omitempty" json:"error_message,omitempty"`

	IPAddress string            `bson:"ip_address" json:"-"`
	UserAgent string            `bson:"user_agent" json:"-"`
	Metadata  map[string]string `bson:"metadata" json:"metadata,omitempty"`

	CreatedAt   time.Time  `bson:"created_at" json:"created_at"`
	UpdatedAt   time.Time  `bson:"updated_at" json:"updated_at"`
	SubmittedAt *time.Time `bson:"submitted_at,omitempty" json:"submitted_at,omitempty"`
	SettledAt   *time.Time `bson:"settled_at,omitempty" json:"settled_at,omitempty"`
	DeletedAt   *time.Time `bson:"deleted_at,omitempty" json:"-"`
}

// IntentUpdate carries the fields a status transition may set.
// Zero values are left untouched.
type IntentUpdate struct {
	Status         IntentStatus
	SubmissionHash string
	BlockNumber    uint64
	Confirmations  uint64
	SettlementFee  *Amount
	LedgerTime     *time.Time
	ErrorMessage   string
	At             time.Time
}

// Apply mutates intent in place. Callers check the transition first.
func (u IntentUpdate) Apply(intent *PurchaseIntent) {
	intent.Status = u.Status
	intent.UpdatedAt = u.At
	if u.SubmissionHash != "" {
		intent.SubmissionHash = u.SubmissionHash
		at := u.At
		intent.SubmittedAt = &at
	}
	if u.BlockNumber != 0 {
		intent.BlockNumber = u.BlockNumber
	}
	if u.Confirmations != 0 {
		intent.Confirmations = u.Confirmations
	}
	if u.SettlementFee != nil {
		intent.SettlementFee = *u.SettlementFee
	}
	if u.LedgerTime != nil {
		t := *u.LedgerTime
		intent.LedgerTime = &t
	}
	if u.ErrorMessage != "" {
		intent.ErrorMessage = u.ErrorMessage
	}
	if u.Status.IsTerminal() {
		at := u.At
		intent.SettledAt = &at
	}
}
